package agent_test

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/lockdrop-actors/actors/builtin"
	"github.com/filecoin-project/lockdrop-actors/actors/builtin/lockdrop"
	"github.com/filecoin-project/lockdrop-actors/support/agent"
	"github.com/filecoin-project/lockdrop-actors/support/vm"
)

func newSim(t *testing.T, factoryCode cid.Cid, seed int64) *agent.Sim {
	ctx := context.Background()
	config := agent.SimConfig{
		AccountCount:          10,
		AccountInitialBalance: abi.NewTokenAmount(1_000_000),
		Seed:                  seed,
		FactoryCode:           factoryCode,
		Depositor: agent.DepositorAgentConfig{
			LockRate:   0.3,
			MaxDeposit: 10_000,
		},
	}
	sim, err := agent.NewSim(ctx, t, vm.DefaultConfig(), config)
	require.NoError(t, err)
	return sim
}

func TestDepositorsLockAndRecover(t *testing.T) {
	sim := newSim(t, cid.Undef, 42)
	for i := 0; i < 200; i++ {
		require.NoError(t, sim.Tick())
	}

	v := sim.GetVM()
	supply := big.Mul(abi.NewTokenAmount(1_000_000), big.NewInt(10))
	vm.CheckStateInvariants(t, v, supply)

	locks, unlocks := 0, 0
	for _, d := range sim.Depositors {
		locks += d.Locks
		unlocks += d.Unlocks
		assert.True(t, d.Recovered.LessThanEqual(d.Deposited))
		assert.False(t, d.Recovered.IsZero())

		// Whatever is not locked up is back with the depositor.
		balance, err := v.GetBalance(d.Address)
		require.NoError(t, err)
		assert.True(t, balance.LessThanEqual(abi.NewTokenAmount(1_000_000)))
	}
	assert.Greater(t, locks, 0)
	assert.Greater(t, unlocks, 0)
	// Locks open five ticks after they are made, so all but the last few have been recovered.
	assert.LessOrEqual(t, locks-unlocks, 9*6*3)

	var st lockdrop.State
	require.NoError(t, v.GetState(sim.Factory, &st))
	assert.Equal(t, uint64(locks), st.NextSalt)
	vm.RequireBalance(t, v, sim.Factory, big.Zero())
}

func TestHalfRetainFactoryKeepsRemainder(t *testing.T) {
	sim := newSim(t, builtin.LegacyLockdropActorCodeID, 7)
	for i := 0; i < 50; i++ {
		require.NoError(t, sim.Tick())
	}

	v := sim.GetVM()
	deposited := big.Zero()
	for _, d := range sim.Depositors {
		deposited = big.Add(deposited, d.Deposited)
	}
	retained, err := v.GetBalance(sim.Factory)
	require.NoError(t, err)
	// The factory keeps the rounded-up half of each deposit.
	assert.True(t, retained.GreaterThanEqual(big.Div(deposited, big.NewInt(2))))
	assert.True(t, retained.LessThanEqual(deposited))
}

func TestSimIsDeterministic(t *testing.T) {
	run := func() string {
		sim := newSim(t, cid.Undef, 99)
		for i := 0; i < 30; i++ {
			require.NoError(t, sim.Tick())
		}
		root, err := sim.GetVM().StateRoot()
		require.NoError(t, err)
		return root.String()
	}
	assert.Equal(t, run(), run())
}

func TestRateIterator(t *testing.T) {
	ri := agent.NewRateIterator(2.0, 1)
	events := 0
	for i := 0; i < 1000; i++ {
		require.NoError(t, ri.Tick(func() error {
			events++
			return nil
		}))
	}
	assert.InDelta(t, 2000, events, 300)

	never := agent.NewRateIterator(0, 1)
	require.NoError(t, never.Tick(func() error {
		t.Fatal("event at zero rate")
		return nil
	}))
}
