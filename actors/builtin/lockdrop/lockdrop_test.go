package lockdrop_test

import (
	"bytes"
	"context"
	"math"
	"testing"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xorcare/golden"

	"github.com/filecoin-project/lockdrop-actors/actors/builtin"
	"github.com/filecoin-project/lockdrop-actors/actors/builtin/lock"
	"github.com/filecoin-project/lockdrop-actors/actors/builtin/lockdrop"
	"github.com/filecoin-project/lockdrop-actors/actors/runtime"
	"github.com/filecoin-project/lockdrop-actors/support/mock"
	tutil "github.com/filecoin-project/lockdrop-actors/support/testing"
)

func TestExports(t *testing.T) {
	mock.CheckActorExports(t, lockdrop.Actor{})
}

func TestZeroValueIsDefaultFactory(t *testing.T) {
	a := lockdrop.Actor{}
	assert.Equal(t, builtin.LockdropActorCodeID, a.Code())
	assert.Equal(t, lockdrop.DefaultPolicy, a.Policy())

	legacy := lockdrop.NewActor(builtin.LegacyLockdropActorCodeID, lockdrop.LegacyPolicy)
	assert.Equal(t, builtin.LegacyLockdropActorCodeID, legacy.Code())
	assert.Equal(t, lockdrop.HalfRetain, legacy.Policy().Endowment)
}

func TestEndowmentPolicy(t *testing.T) {
	testCases := []struct {
		policy    lockdrop.EndowmentPolicy
		deposit   int64
		endowment int64
	}{
		{lockdrop.FullForward, 0, 0},
		{lockdrop.FullForward, 7, 7},
		{lockdrop.FullForward, 100, 100},
		{lockdrop.HalfRetain, 0, 0},
		{lockdrop.HalfRetain, 1, 0},
		{lockdrop.HalfRetain, 7, 3},
		{lockdrop.HalfRetain, 99, 49},
		{lockdrop.HalfRetain, 100, 50},
	}
	for _, tc := range testCases {
		got := tc.policy.Of(abi.NewTokenAmount(tc.deposit))
		assert.True(t, got.Equals(abi.NewTokenAmount(tc.endowment)), "%s of %d: got %v", tc.policy, tc.deposit, got)
	}
}

func TestConstruction(t *testing.T) {
	ctx := context.Background()
	receiver := tutil.NewActorAddr(t, "factory")
	deployer := tutil.NewIDAddr(t, 100)

	builder := mock.NewBuilder(ctx, receiver).WithCaller(deployer)

	t.Run("stores lock code", func(t *testing.T) {
		rt := builder.Build(t)
		actor := newHarness(t, lockdrop.Actor{})
		actor.constructAndVerify(rt, builtin.LockActorCodeID)

		var st lockdrop.State
		rt.GetState(&st)
		assert.Equal(t, builtin.LockActorCodeID, st.LockCode)
		assert.Equal(t, uint64(0), st.NextSalt)
	})

	t.Run("fails with undefined lock code", func(t *testing.T) {
		rt := builder.Build(t)
		rt.ExpectValidateCallerAny()
		rt.ExpectAbort(exitcode.ErrIllegalArgument, func() {
			rt.Call(lockdrop.Actor{}.Constructor, &lockdrop.ConstructorParams{LockCode: cid.Undef})
		})
		rt.Verify()
	})

	t.Run("fails with value", func(t *testing.T) {
		rt := builder.WithBalance(abi.NewTokenAmount(1), abi.NewTokenAmount(1)).Build(t)
		rt.ExpectValidateCallerAny()
		rt.ExpectAbort(exitcode.ErrIllegalArgument, func() {
			rt.Call(lockdrop.Actor{}.Constructor, &lockdrop.ConstructorParams{LockCode: builtin.LockActorCodeID})
		})
		rt.Verify()
	})
}

func TestLock(t *testing.T) {
	ctx := context.Background()
	receiver := tutil.NewActorAddr(t, "factory")
	deployer := tutil.NewIDAddr(t, 100)
	alice := tutil.NewIDAddr(t, 101)
	bob := tutil.NewIDAddr(t, 102)
	firstChild := tutil.NewActorAddr(t, "child-0")
	secondChild := tutil.NewActorAddr(t, "child-1")

	setup := func(t *testing.T, a lockdrop.Actor) (*mock.Runtime, *lockdropHarness) {
		rt := mock.NewBuilder(ctx, receiver).
			WithCaller(deployer).
			WithTimestamp(1000).
			Build(t)
		actor := newHarness(t, a)
		actor.constructAndVerify(rt, builtin.LockActorCodeID)
		return rt, actor
	}

	t.Run("full forward deposit", func(t *testing.T) {
		rt, actor := setup(t, lockdrop.Actor{})
		deposit := abi.NewTokenAmount(100)

		actor.lock(rt, alice, deposit, deposit, 1005, 0, firstChild)
		balance := rt.GetBalance()
		assert.True(t, balance.IsZero())
		actor.checkState(rt, 1)
	})

	t.Run("each lock gets a fresh salt", func(t *testing.T) {
		rt, actor := setup(t, lockdrop.Actor{})
		deposit := abi.NewTokenAmount(10)

		actor.lock(rt, alice, deposit, deposit, 1005, 0, firstChild)
		rt.SetTimestamp(1003)
		actor.lock(rt, bob, deposit, deposit, 1008, 1, secondChild)
		actor.checkState(rt, 2)
	})

	t.Run("zero deposit", func(t *testing.T) {
		rt, actor := setup(t, lockdrop.Actor{})
		actor.lock(rt, alice, big.Zero(), big.Zero(), 1005, 0, firstChild)
		actor.checkState(rt, 1)
	})

	t.Run("half retain keeps remainder", func(t *testing.T) {
		rt, actor := setup(t, lockdrop.NewActor(builtin.LegacyLockdropActorCodeID, lockdrop.LegacyPolicy))
		actor.lock(rt, bob, abi.NewTokenAmount(99), abi.NewTokenAmount(49), 1005, 0, firstChild)
		assert.Equal(t, abi.NewTokenAmount(50), rt.GetBalance())
	})

	t.Run("half retain of one endows nothing", func(t *testing.T) {
		rt, actor := setup(t, lockdrop.NewActor(builtin.LegacyLockdropActorCodeID, lockdrop.LegacyPolicy))
		actor.lock(rt, bob, abi.NewTokenAmount(1), big.Zero(), 1005, 0, firstChild)
		assert.Equal(t, abi.NewTokenAmount(1), rt.GetBalance())
	})

	t.Run("zero delay", func(t *testing.T) {
		rt, actor := setup(t, lockdrop.NewActor(builtin.ImmediateLockdropActorCodeID, lockdrop.ImmediatePolicy))
		actor.lock(rt, alice, abi.NewTokenAmount(5), abi.NewTokenAmount(5), 1000, 0, firstChild)
	})

	t.Run("deployment failure", func(t *testing.T) {
		rt, actor := setup(t, lockdrop.Actor{})
		deposit := abi.NewTokenAmount(100)
		before := rt.StateRoot()

		actor.prepareLock(rt, alice, deposit)
		rt.ExpectDeployChild(builtin.LockActorCodeID, &lock.ConstructorParams{Owner: alice, UnlockAfter: 1005},
			deposit, lockdrop.SaltFor(0), addr.Undef, exitcode.SysErrForbidden)
		rt.ExpectLogsContain("lock deployment failed")
		rt.ExpectAbort(lockdrop.ErrInstantiationFailed, func() {
			rt.Call(actor.Lock, nil)
		})
		rt.Verify()

		// The salt nonce is not consumed and the deposit is still held for refund.
		assert.Equal(t, before, rt.StateRoot())
		assert.Equal(t, deposit, rt.GetBalance())
	})

	t.Run("child holds less than endowment", func(t *testing.T) {
		rt, actor := setup(t, lockdrop.Actor{})
		deposit := abi.NewTokenAmount(100)
		short := abi.NewTokenAmount(99)

		actor.prepareLock(rt, alice, deposit)
		rt.ExpectDeployChild(builtin.LockActorCodeID, &lock.ConstructorParams{Owner: alice, UnlockAfter: 1005},
			deposit, lockdrop.SaltFor(0), firstChild, exitcode.Ok)
		rt.ExpectSend(firstChild, builtin.MethodsLock.Balance, nil, big.Zero(), &short, exitcode.Ok)
		rt.ExpectLogsContain("endowment check failed")
		rt.ExpectAbort(lockdrop.ErrEndowmentMismatch, func() {
			rt.Call(actor.Lock, nil)
		})
		rt.Verify()
		assert.Equal(t, deposit, rt.GetBalance())
	})

	t.Run("child balance unreadable", func(t *testing.T) {
		rt, actor := setup(t, lockdrop.Actor{})
		deposit := abi.NewTokenAmount(100)

		actor.prepareLock(rt, alice, deposit)
		rt.ExpectDeployChild(builtin.LockActorCodeID, &lock.ConstructorParams{Owner: alice, UnlockAfter: 1005},
			deposit, lockdrop.SaltFor(0), firstChild, exitcode.Ok)
		rt.ExpectSend(firstChild, builtin.MethodsLock.Balance, nil, big.Zero(), nil, exitcode.SysErrInvalidMethod)
		rt.ExpectAbort(lockdrop.ErrEndowmentMismatch, func() {
			rt.Call(actor.Lock, nil)
		})
		rt.Verify()
	})

	t.Run("deadline overflow", func(t *testing.T) {
		rt, actor := setup(t, lockdrop.Actor{})
		rt.SetTimestamp(runtime.Timestamp(math.MaxUint64 - 2))

		actor.prepareLock(rt, alice, abi.NewTokenAmount(1))
		rt.ExpectAbort(exitcode.ErrIllegalState, func() {
			rt.Call(actor.Lock, nil)
		})
		rt.Verify()
	})
}

func TestSaltFor(t *testing.T) {
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0}, lockdrop.SaltFor(0))
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 1, 2}, lockdrop.SaltFor(258))

	st := lockdrop.ConstructState(builtin.LockActorCodeID)
	assert.Equal(t, lockdrop.SaltFor(0), st.TakeSalt())
	assert.Equal(t, lockdrop.SaltFor(1), st.TakeSalt())
	assert.Equal(t, uint64(2), st.NextSalt)
}

func TestStateEncoding(t *testing.T) {
	st := lockdrop.ConstructState(builtin.LockActorCodeID)
	st.NextSalt = 3
	buf := new(bytes.Buffer)
	require.NoError(t, st.MarshalCBOR(buf))
	golden.Assert(t, buf.Bytes())

	var out lockdrop.State
	require.NoError(t, out.UnmarshalCBOR(bytes.NewReader(buf.Bytes())))
	assert.Equal(t, *st, out)
}

type lockdropHarness struct {
	lockdrop.Actor
	t testing.TB
}

func newHarness(t testing.TB, a lockdrop.Actor) *lockdropHarness {
	return &lockdropHarness{Actor: a, t: t}
}

func (h *lockdropHarness) constructAndVerify(rt *mock.Runtime, lockCode cid.Cid) {
	rt.ExpectValidateCallerAny()
	ret := rt.Call(h.Constructor, &lockdrop.ConstructorParams{LockCode: lockCode})
	assert.Nil(h.t, ret)
	rt.Verify()
}

// Sets up the runtime for a deposit, as the host would before invoking Lock.
func (h *lockdropHarness) prepareLock(rt *mock.Runtime, depositor addr.Address, deposit abi.TokenAmount) {
	rt.SetCaller(depositor)
	rt.SetReceived(deposit)
	rt.SetBalance(big.Add(rt.GetBalance(), deposit))
	rt.ExpectValidateCallerAny()
}

func (h *lockdropHarness) lock(rt *mock.Runtime, depositor addr.Address, deposit, endowment abi.TokenAmount,
	unlockAfter runtime.Timestamp, nonce uint64, child addr.Address) {
	h.prepareLock(rt, depositor, deposit)

	var st lockdrop.State
	rt.GetState(&st)
	require.Equal(h.t, nonce, st.NextSalt)

	rt.ExpectDeployChild(st.LockCode, &lock.ConstructorParams{Owner: depositor, UnlockAfter: unlockAfter},
		endowment, lockdrop.SaltFor(nonce), child, exitcode.Ok)
	rt.ExpectSend(child, builtin.MethodsLock.Balance, nil, big.Zero(), &endowment, exitcode.Ok)
	rt.ExpectLogsContain("locked")

	ret := rt.Call(h.Lock, nil)
	assert.Nil(h.t, ret)
	rt.Verify()
	rt.SetReceived(big.Zero())
}

func (h *lockdropHarness) checkState(rt *mock.Runtime, deployed uint64) {
	var st lockdrop.State
	rt.GetState(&st)
	summary, acc := lockdrop.CheckStateInvariants(&st, rt.GetBalance())
	assert.True(h.t, acc.IsEmpty(), acc.Messages())
	assert.Equal(h.t, deployed, summary.LocksDeployed)
}
