package test

import (
	"context"
	"os"
	"testing"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/filecoin-project/lockdrop-actors/actors/builtin"
	"github.com/filecoin-project/lockdrop-actors/actors/builtin/lock"
	"github.com/filecoin-project/lockdrop-actors/actors/builtin/lockdrop"
	"github.com/filecoin-project/lockdrop-actors/actors/runtime"
	"github.com/filecoin-project/lockdrop-actors/support/vm"
)

var factorySalt = []byte("factory")

// Deploys a lockdrop factory of the given code on behalf of deployer, wired to the built-in lock code.
func deployFactory(t *testing.T, v *vm.VM, deployer addr.Address, code cid.Cid) addr.Address {
	params := lockdrop.ConstructorParams{LockCode: builtin.LockActorCodeID}
	factory, exit, err := v.DeployActor(deployer, code, &params, big.Zero(), factorySalt)
	require.NoError(t, err)
	require.Equal(t, exitcode.Ok, exit)
	return factory
}

// Returns the address of the lock the factory deploys with its nth salt.
func lockAddress(t *testing.T, factory addr.Address, n uint64) addr.Address {
	a, err := vm.DeriveChildAddress(factory, builtin.LockActorCodeID, lockdrop.SaltFor(n))
	require.NoError(t, err)
	return a
}

func lockState(t *testing.T, v *vm.VM, lockAddr addr.Address) lock.State {
	var st lock.State
	require.NoError(t, v.GetState(lockAddr, &st))
	return st
}

func checkFactoryInvariants(t *testing.T, v *vm.VM, factory addr.Address, locks uint64) {
	var st lockdrop.State
	require.NoError(t, v.GetState(factory, &st))
	balance, err := v.GetBalance(factory)
	require.NoError(t, err)

	summary, msgs := lockdrop.CheckStateInvariants(&st, balance)
	require.True(t, msgs.IsEmpty(), msgs.Messages())
	require.Equal(t, locks, summary.LocksDeployed)
}

func checkLockInvariants(t *testing.T, v *vm.VM, lockAddr addr.Address) *lock.StateSummary {
	st := lockState(t, v, lockAddr)
	balance, err := v.GetBalance(lockAddr)
	require.NoError(t, err)

	summary, msgs := lock.CheckStateInvariants(&st, balance, v.Timestamp())
	require.True(t, msgs.IsEmpty(), msgs.Messages())
	return summary
}

//
// Fixtures
//

type unlockStep struct {
	Caller string            `yaml:"caller"`
	At     runtime.Timestamp `yaml:"at"`
	Result string            `yaml:"result"`
}

type lockScenario struct {
	Name        string            `yaml:"name"`
	Factory     string            `yaml:"factory"`
	Deposit     string            `yaml:"deposit"`
	LockAt      runtime.Timestamp `yaml:"lock_at"`
	UnlockAfter runtime.Timestamp `yaml:"unlock_after"`
	Endowment   string            `yaml:"endowment"`
	Unlocks     []unlockStep      `yaml:"unlocks"`
}

var unlockResults = map[string]exitcode.ExitCode{
	"ok":           exitcode.Ok,
	"too-early":    lock.ErrTooEarly,
	"unauthorized": lock.ErrUnauthorized,
}

var factoryCodes = map[string]cid.Cid{
	builtin.ActorNameByCode(builtin.LockdropActorCodeID):          builtin.LockdropActorCodeID,
	builtin.ActorNameByCode(builtin.LegacyLockdropActorCodeID):    builtin.LegacyLockdropActorCodeID,
	builtin.ActorNameByCode(builtin.ImmediateLockdropActorCodeID): builtin.ImmediateLockdropActorCodeID,
}

func loadLockScenarios(t *testing.T) []lockScenario {
	data, err := os.ReadFile("testdata/lock_scenarios.yaml")
	require.NoError(t, err)
	var scenarios []lockScenario
	require.NoError(t, yaml.Unmarshal(data, &scenarios))
	require.NotEmpty(t, scenarios)
	return scenarios
}

func mustAmount(t *testing.T, s string) abi.TokenAmount {
	a, err := big.FromString(s)
	require.NoError(t, err)
	return a
}

func newScenarioVM(t *testing.T, n int) (*vm.VM, []addr.Address) {
	return vm.NewVMWithAccounts(context.Background(), t, vm.DefaultConfig(), n, abi.NewTokenAmount(10_000))
}
