package puppet

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"

	"github.com/filecoin-project/lockdrop-actors/actors/builtin"
	"github.com/filecoin-project/lockdrop-actors/actors/runtime"
)

// The puppet actor exercises host behaviour that the built-in actors never trigger.
// It is only installed by tests.
type Actor struct{}

var PuppetActorCodeID = builtin.MakeCode("lockdrop/test/puppet")

var Methods = struct {
	Constructor       abi.MethodNum
	Forward           abi.MethodNum
	SendInTransaction abi.MethodNum
	Unvalidated       abi.MethodNum
	ForwardThenAbort  abi.MethodNum
}{builtin.MethodConstructor, 2, 3, 4, 5}

func (a Actor) Exports() []interface{} {
	return []interface{}{
		builtin.MethodConstructor: a.Constructor,
		2:                         a.Forward,
		3:                         a.SendInTransaction,
		4:                         a.Unvalidated,
		5:                         a.ForwardThenAbort,
	}
}

func (a Actor) Code() cid.Cid {
	return PuppetActorCodeID
}

func (a Actor) IsSingleton() bool {
	return false
}

func (a Actor) State() cbor.Er {
	return new(State)
}

var _ runtime.VMActor = Actor{}

func (a Actor) Constructor(rt runtime.Runtime, _ *abi.EmptyValue) *abi.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()
	rt.State().Create(&State{Creator: rt.Message().Caller()})
	return nil
}

// Forward sends the puppet's whole balance to an address.
func (a Actor) Forward(rt runtime.Runtime, to *addr.Address) *abi.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()
	_, code := rt.Send(*to, builtin.MethodSend, nil, rt.CurrentBalance())
	builtin.RequireSuccess(rt, code, "failed to forward to %v", *to)
	return nil
}

// SendInTransaction attempts a send from within a state transaction.
func (a Actor) SendInTransaction(rt runtime.Runtime, to *addr.Address) *abi.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()
	var st State
	rt.State().Transaction(&st, func() {
		rt.Send(*to, builtin.MethodSend, nil, big.Zero())
	})
	return nil
}

// Unvalidated returns without validating its caller.
func (a Actor) Unvalidated(_ runtime.Runtime, _ *abi.EmptyValue) *abi.EmptyValue {
	return nil
}

func (a Actor) ForwardThenAbort(rt runtime.Runtime, to *addr.Address) *abi.EmptyValue {
	a.Forward(rt, to)
	rt.Abortf(exitcode.ErrIllegalState, "forwarded, then changed my mind")
	return nil
}

type State struct {
	Creator addr.Address
}
