package lock

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	rtt "github.com/filecoin-project/go-state-types/rt"
	"github.com/ipfs/go-cid"

	"github.com/filecoin-project/lockdrop-actors/actors/builtin"
	"github.com/filecoin-project/lockdrop-actors/actors/runtime"
)

// Lock actor error codes
const (
	// The unlock deadline has not passed yet.
	ErrTooEarly = exitcode.FirstActorSpecificExitCode + iota
	// The caller is not the owner of the lock.
	ErrUnauthorized
	// The host refused the payout because a balance would fall below its existential deposit.
	ErrBelowThreshold
	// The host refused the payout for any other reason.
	ErrTransferFailed
)

type Actor struct{}

func (a Actor) Exports() []interface{} {
	return []interface{}{
		builtin.MethodConstructor: a.Constructor,
		2:                         a.Unlock,
		3:                         a.Balance,
	}
}

func (a Actor) Code() cid.Cid {
	return builtin.LockActorCodeID
}

func (a Actor) IsSingleton() bool {
	return false
}

func (a Actor) State() cbor.Er {
	return new(State)
}

var _ runtime.VMActor = Actor{}

type ConstructorParams struct {
	Owner       addr.Address
	UnlockAfter runtime.Timestamp
}

func (a Actor) Constructor(rt runtime.Runtime, params *ConstructorParams) *abi.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()
	builtin.RequireNoValue(rt)
	builtin.RequireParam(rt, params.Owner != addr.Undef, "lock owner must be defined")

	st := ConstructState(params.Owner, params.UnlockAfter)
	rt.State().Create(st)
	return nil
}

// Unlock pays the lock's entire balance, including any value sent with this call, to the owner.
// It may only be invoked by the owner, strictly after the unlock timestamp.
func (a Actor) Unlock(rt runtime.Runtime, _ *abi.EmptyValue) *abi.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()

	var st State
	rt.State().Readonly(&st)

	err := st.CheckUnlock(rt.Message().Caller(), rt.BlockTimestamp())
	if err != nil {
		rt.Log(builtin.GetActorLogLevel(a, rtt.WARN), "unlock refused: %s", err)
	}
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "cannot unlock")

	amount := rt.CurrentBalance()
	_, code := rt.Send(st.Owner, builtin.MethodSend, nil, amount)
	err = payoutError(code, st.Owner, amount)
	if err != nil {
		rt.Log(builtin.GetActorLogLevel(a, rtt.WARN), "payout failed: %s", err)
	}
	builtin.RequireNoErr(rt, err, ErrTransferFailed, "failed to pay out lock")
	return nil
}

// Balance returns the lock's current balance.
func (a Actor) Balance(rt runtime.Runtime, _ *abi.EmptyValue) *abi.TokenAmount {
	rt.ValidateImmediateCallerAcceptAny()
	builtin.RequireNoValue(rt)

	balance := rt.CurrentBalance()
	return &balance
}

// Maps the exit code of the payout transfer to a lock error.
func payoutError(code exitcode.ExitCode, to addr.Address, amount abi.TokenAmount) error {
	switch {
	case code.IsSuccess():
		return nil
	case code == runtime.SysErrBelowThreshold:
		return ErrBelowThreshold.Wrapf("transfer of %v to %v would leave a balance below the existential deposit", amount, to)
	default:
		return ErrTransferFailed.Wrapf("transfer of %v to %v failed with exit code %d", amount, to, code)
	}
}
