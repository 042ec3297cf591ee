package lockdrop

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	rtt "github.com/filecoin-project/go-state-types/rt"
	"github.com/ipfs/go-cid"

	"github.com/filecoin-project/lockdrop-actors/actors/builtin"
	"github.com/filecoin-project/lockdrop-actors/actors/builtin/lock"
	"github.com/filecoin-project/lockdrop-actors/actors/runtime"
)

// Lockdrop actor error codes
const (
	// The host could not deploy the lock.
	ErrInstantiationFailed = exitcode.FirstActorSpecificExitCode + iota
	// The deployed lock holds less than its endowment.
	ErrEndowmentMismatch
)

// Actor is a lockdrop factory. The zero value is the default factory.
type Actor struct {
	code   cid.Cid
	policy Policy
}

// NewActor returns a factory build with its own code and policy.
func NewActor(code cid.Cid, policy Policy) Actor {
	return Actor{code: code, policy: policy}
}

func (a Actor) Exports() []interface{} {
	return []interface{}{
		builtin.MethodConstructor: a.Constructor,
		2:                         a.Lock,
	}
}

func (a Actor) Code() cid.Cid {
	if !a.code.Defined() {
		return builtin.LockdropActorCodeID
	}
	return a.code
}

func (a Actor) Policy() Policy {
	if !a.code.Defined() {
		return DefaultPolicy
	}
	return a.policy
}

func (a Actor) IsSingleton() bool {
	return false
}

func (a Actor) State() cbor.Er {
	return new(State)
}

var _ runtime.VMActor = Actor{}

type ConstructorParams struct {
	LockCode cid.Cid
}

func (a Actor) Constructor(rt runtime.Runtime, params *ConstructorParams) *abi.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()
	builtin.RequireNoValue(rt)
	builtin.RequireParam(rt, params.LockCode.Defined(), "lock code must be defined")

	st := ConstructState(params.LockCode)
	rt.State().Create(st)
	return nil
}

// Lock deploys a new lock owned by the caller, endowed from the value sent with this call.
// The lock opens after the current timestamp plus the factory's unlock delay.
func (a Actor) Lock(rt runtime.Runtime, _ *abi.EmptyValue) *abi.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()
	policy := a.Policy()

	depositor := rt.Message().Caller()
	deposit := rt.Message().ValueReceived()
	now := rt.BlockTimestamp()

	unlockAfter, ok := now.Add(policy.UnlockDelay)
	if !ok {
		rt.Abortf(exitcode.ErrIllegalState, "unlock deadline overflows: %v + %d", now, policy.UnlockDelay)
	}
	endowment := policy.Endowment.Of(deposit)

	var st State
	var salt []byte
	rt.State().Transaction(&st, func() {
		salt = st.TakeSalt()
	})

	params := &lock.ConstructorParams{Owner: depositor, UnlockAfter: unlockAfter}
	child, code := rt.DeployChild(st.LockCode, params, endowment, salt)
	if !code.IsSuccess() {
		rt.Log(builtin.GetActorLogLevel(a, rtt.WARN), "lock deployment failed with exit code %d", code)
		rt.Abortf(ErrInstantiationFailed, "failed to deploy lock for %v with salt %x: exit code %d", depositor, salt, code)
	}

	err := checkEndowment(lock.NewHandle(rt, child), endowment)
	if err != nil {
		rt.Log(builtin.GetActorLogLevel(a, rtt.WARN), "endowment check failed: %s", err)
	}
	builtin.RequireNoErr(rt, err, ErrEndowmentMismatch, "lock %v not endowed", child)

	rt.Log(builtin.GetActorLogLevel(a, rtt.DEBUG), "locked %v of deposit %v from %v in %v until %v (%s)",
		endowment, deposit, depositor, child, unlockAfter, policy.Endowment)
	return nil
}

// balancer is the one capability the factory needs from a deployed lock.
type balancer interface {
	Address() addr.Address
	Balance() (abi.TokenAmount, error)
}

func checkEndowment(child balancer, endowment abi.TokenAmount) error {
	balance, err := child.Balance()
	if err != nil {
		return ErrEndowmentMismatch.Wrapf("failed to read balance of %v: %w", child.Address(), err)
	}
	if balance.LessThan(endowment) {
		return ErrEndowmentMismatch.Wrapf("lock %v holds %v, less than endowment %v", child.Address(), balance, endowment)
	}
	return nil
}
