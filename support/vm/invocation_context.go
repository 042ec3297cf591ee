package vm

import (
	"bytes"
	"context"
	"fmt"
	"reflect"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	rtt "github.com/filecoin-project/go-state-types/rt"
	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/lockdrop-actors/actors/builtin"
	"github.com/filecoin-project/lockdrop-actors/actors/runtime"
	"github.com/filecoin-project/lockdrop-actors/actors/states"
)

// Context for an individual message invocation, including inter-actor sends.
type invocationContext struct {
	rt                *VM
	topLevel          *topLevelContext
	msg               InternalMessage // The message being processed
	isCallerValidated bool
	allowSideEffects  bool
}

// Context for a top-level invocation sequence
type topLevelContext struct {
	originatorCallSeq uint64 // Call sequence number of the top-level message
}

func newInvocationContext(rt *VM, topLevel *topLevelContext, msg InternalMessage) invocationContext {
	return invocationContext{
		rt:                rt,
		topLevel:          topLevel,
		msg:               msg,
		isCallerValidated: false,
		allowSideEffects:  true,
	}
}

var _ runtime.StateHandle = (*invocationContext)(nil)
var _ runtime.Runtime = (*invocationContext)(nil)

// An abort raised by an actor or by the host on an actor's behalf.
type abort struct {
	code exitcode.ExitCode
	msg  string
}

// A failure of the host itself. It is not caught by the invocation that raised it.
type hostFault struct {
	err error
}

/////////////////////////////////////////////
//          Runtime methods
/////////////////////////////////////////////

func (ic *invocationContext) Message() runtime.Message {
	return ic.msg
}

func (ic *invocationContext) BlockTimestamp() runtime.Timestamp {
	return ic.rt.timestamp
}

func (ic *invocationContext) ValidateImmediateCallerAcceptAny() {
	ic.assertf(!ic.isCallerValidated, "caller has been double validated")
	ic.isCallerValidated = true
}

func (ic *invocationContext) ValidateImmediateCallerIs(addrs ...address.Address) {
	ic.assertf(!ic.isCallerValidated, "caller has been double validated")
	ic.isCallerValidated = true
	for _, addr := range addrs {
		if ic.msg.from == addr {
			return
		}
	}
	ic.Abortf(exitcode.SysErrForbidden, "caller %s is not one of supported", ic.msg.from)
}

func (ic *invocationContext) CurrentBalance() abi.TokenAmount {
	return ic.loadActor(ic.msg.to).Balance
}

func (ic *invocationContext) State() runtime.StateHandle {
	return ic
}

func (ic *invocationContext) Send(toAddr address.Address, methodNum abi.MethodNum, params cbor.Marshaler, value abi.TokenAmount) (runtime.SendReturn, exitcode.ExitCode) {
	ic.assertSideEffectsAllowed()

	snapshot := ic.checkpoint()
	newMsg := InternalMessage{
		from:   ic.msg.to,
		to:     toAddr,
		value:  value,
		method: methodNum,
		params: params,
	}
	newCtx := newInvocationContext(ic.rt, ic.topLevel, newMsg)
	ret, code := newCtx.invoke()
	if !code.IsSuccess() {
		ic.rollback(snapshot)
	}
	return ret, code
}

func (ic *invocationContext) DeployChild(code cid.Cid, params cbor.Marshaler, endowment abi.TokenAmount, salt []byte) (address.Address, exitcode.ExitCode) {
	ic.assertSideEffectsAllowed()

	if _, found := ic.rt.actorImpls[code]; !found {
		log.Debugw("deploy of unknown code", "parent", ic.msg.to, "code", code)
		return address.Undef, exitcode.SysErrorIllegalArgument
	}
	if endowment.Sign() < 0 {
		return address.Undef, exitcode.SysErrorIllegalArgument
	}
	childAddr, err := DeriveChildAddress(ic.msg.to, code, salt)
	if err != nil {
		ic.fatal(err)
	}
	if _, found, err := ic.rt.GetActor(childAddr); err != nil {
		ic.fatal(err)
	} else if found {
		log.Debugw("deploy address collision", "parent", ic.msg.to, "child", childAddr)
		return address.Undef, exitcode.SysErrForbidden
	}

	snapshot := ic.checkpoint()
	ic.setActor(childAddr, &states.Actor{
		Code:    code,
		Head:    ic.rt.emptyObject,
		Balance: big.Zero(),
	})

	// The endowment is in place before the constructor runs, but not received by it.
	xfer, err := ic.rt.transfer(ic.msg.to, childAddr, endowment)
	if err != nil {
		ic.fatal(err)
	}
	if !xfer.IsSuccess() {
		ic.rollback(snapshot)
		return address.Undef, xfer
	}

	newMsg := InternalMessage{
		from:   ic.msg.to,
		to:     childAddr,
		value:  big.Zero(),
		method: builtin.MethodConstructor,
		params: params,
	}
	newCtx := newInvocationContext(ic.rt, ic.topLevel, newMsg)
	if _, ctorCode := newCtx.invoke(); !ctorCode.IsSuccess() {
		ic.rollback(snapshot)
		return address.Undef, ctorCode
	}
	return childAddr, exitcode.Ok
}

func (ic *invocationContext) Abortf(errExitCode exitcode.ExitCode, msg string, args ...interface{}) {
	panic(abort{errExitCode, fmt.Sprintf(msg, args...)})
}

func (ic *invocationContext) Log(level rtt.LogLevel, msg string, args ...interface{}) {
	ic.rt.logActor(ic.msg.to, level, fmt.Sprintf(msg, args...))
}

func (ic *invocationContext) Context() context.Context {
	return ic.rt.ctx
}

/////////////////////////////////////////////
//          State handle methods
/////////////////////////////////////////////

func (ic *invocationContext) Create(obj cbor.Marshaler) {
	actor := ic.loadActor(ic.msg.to)
	if !actor.Head.Equals(ic.rt.emptyObject) {
		ic.Abortf(exitcode.SysErrorIllegalActor, "failed to construct actor state: already initialized")
	}
	ic.replace(obj)
}

func (ic *invocationContext) Readonly(obj cbor.Unmarshaler) {
	actor := ic.loadActor(ic.msg.to)
	if err := ic.rt.store.Get(ic.rt.ctx, actor.Head, obj); err != nil {
		ic.Abortf(exitcode.ErrSerialization, "failed to load state of %v: %s", ic.msg.to, err)
	}
}

func (ic *invocationContext) Transaction(obj cbor.Er, f func()) {
	if !ic.allowSideEffects {
		ic.Abortf(exitcode.SysErrorIllegalActor, "nested transaction")
	}
	ic.Readonly(obj)
	ic.allowSideEffects = false
	f()
	ic.allowSideEffects = true
	ic.replace(obj)
}

func (ic *invocationContext) replace(obj cbor.Marshaler) {
	c, err := ic.rt.store.Put(ic.rt.ctx, obj)
	if err != nil {
		ic.Abortf(exitcode.ErrSerialization, "failed to store state of %v: %s", ic.msg.to, err)
	}
	actor := ic.loadActor(ic.msg.to)
	actor.Head = c
	ic.setActor(ic.msg.to, actor)
}

/////////////////////////////////////////////
//          Invocation
/////////////////////////////////////////////

// invoke delivers the message: it materializes the receiver if needed, moves the value and
// dispatches the method. Aborts are caught here and reported as the exit code; the caller is
// responsible for rolling back.
func (ic *invocationContext) invoke() (ret returnWrapper, errcode exitcode.ExitCode) {
	vm := ic.rt
	inv := &Invocation{Msg: &ic.msg}
	if len(vm.invocationStack) > 0 {
		parent := vm.invocationStack[len(vm.invocationStack)-1]
		parent.SubInvocations = append(parent.SubInvocations, inv)
	} else {
		vm.invocations = append(vm.invocations, inv)
	}
	vm.invocationStack = append(vm.invocationStack, inv)

	defer func() {
		vm.invocationStack = vm.invocationStack[:len(vm.invocationStack)-1]
		if r := recover(); r != nil {
			a, ok := r.(abort)
			if !ok {
				panic(r)
			}
			log.Debugw("invocation aborted", "to", ic.msg.to, "method", ic.msg.method, "exitcode", a.code, "reason", a.msg)
			ret = returnWrapper{}
			errcode = a.code
		}
		inv.Exitcode = errcode
		inv.Ret = ret.inner
	}()

	// 1. load or implicitly create the target actor
	toActor := ic.resolveTarget(ic.msg.to)

	// 2. transfer funds carried by the msg
	xfer, err := vm.transfer(ic.msg.from, ic.msg.to, ic.msg.value)
	if err != nil {
		ic.fatal(err)
	}
	if !xfer.IsSuccess() {
		ic.Abortf(xfer, "failed to transfer %v from %v to %v", ic.msg.value, ic.msg.from, ic.msg.to)
	}

	// 3. a plain send only moves value
	if ic.msg.method == builtin.MethodSend {
		return returnWrapper{}, exitcode.Ok
	}

	// 4. invoke the method on the actor's implementation
	impl, found := vm.actorImpls[toActor.Code]
	if !found {
		ic.Abortf(exitcode.SysErrorIllegalActor, "no implementation for actor code %v", toActor.Code)
	}
	out := ic.dispatch(impl, ic.msg.method, ic.msg.params)

	// 5. every exported method must have checked its caller
	if !ic.isCallerValidated {
		ic.Abortf(exitcode.SysErrorIllegalActor, "caller MUST be validated during method execution")
	}
	return returnWrapper{out}, exitcode.Ok
}

// resolveTarget loads the actor at target. A missing non-actor address gets an account actor,
// constructed on behalf of the system.
func (ic *invocationContext) resolveTarget(target address.Address) *states.Actor {
	act, found, err := ic.rt.GetActor(target)
	if err != nil {
		ic.fatal(err)
	}
	if found {
		return act
	}
	if target.Protocol() == address.Actor {
		ic.Abortf(exitcode.SysErrInvalidReceiver, "actor %v does not exist", target)
	}

	ic.setActor(target, &states.Actor{
		Code:    builtin.AccountActorCodeID,
		Head:    ic.rt.emptyObject,
		Balance: big.Zero(),
	})
	newMsg := InternalMessage{
		from:   builtin.SystemActorAddr,
		to:     target,
		value:  big.Zero(),
		method: builtin.MethodsAccount.Constructor,
		params: &target,
	}
	newCtx := newInvocationContext(ic.rt, ic.topLevel, newMsg)
	if _, code := newCtx.invoke(); !code.IsSuccess() {
		ic.Abortf(code, "failed to construct account for %v", target)
	}
	return ic.loadActor(target)
}

func (ic *invocationContext) dispatch(actor runtime.VMActor, method abi.MethodNum, arg interface{}) cbor.Marshaler {
	exports := actor.Exports()
	if uint64(method) >= uint64(len(exports)) || exports[method] == nil {
		ic.Abortf(exitcode.SysErrInvalidMethod, "actor %v has no method %d", ic.msg.to, method)
	}
	meth := reflect.ValueOf(exports[method])
	param := reflect.New(meth.Type().In(1).Elem())

	if arg != nil {
		marshaler, ok := arg.(cbor.Marshaler)
		if !ok {
			ic.Abortf(exitcode.ErrSerialization, "params of type %T are not CBOR marshalable", arg)
		}
		buf := new(bytes.Buffer)
		if err := marshaler.MarshalCBOR(buf); err != nil {
			ic.Abortf(exitcode.ErrSerialization, "failed to encode params: %s", err)
		}
		if buf.Len() > 0 {
			if err := param.Interface().(cbor.Unmarshaler).UnmarshalCBOR(buf); err != nil {
				ic.Abortf(exitcode.ErrSerialization, "failed to decode params: %s", err)
			}
		}
	}

	ret := meth.Call([]reflect.Value{reflect.ValueOf(ic), param})
	if ret[0].IsNil() {
		return nil
	}
	return ret[0].Interface().(cbor.Marshaler)
}

/////////////////////////////////////////////
//          Helpers
/////////////////////////////////////////////

func (ic *invocationContext) loadActor(a address.Address) *states.Actor {
	act, found, err := ic.rt.GetActor(a)
	if err != nil {
		ic.fatal(err)
	}
	if !found {
		ic.fatal(xerrors.Errorf("actor %v not found", a))
	}
	return act
}

func (ic *invocationContext) setActor(a address.Address, act *states.Actor) {
	if err := ic.rt.setActor(ic.rt.ctx, a, act); err != nil {
		ic.fatal(err)
	}
}

func (ic *invocationContext) checkpoint() cid.Cid {
	root, err := ic.rt.checkpoint()
	if err != nil {
		ic.fatal(err)
	}
	return root
}

func (ic *invocationContext) rollback(root cid.Cid) {
	if err := ic.rt.rollback(root); err != nil {
		ic.fatal(err)
	}
}

func (ic *invocationContext) assertSideEffectsAllowed() {
	if !ic.allowSideEffects {
		ic.Abortf(exitcode.SysErrorIllegalActor, "side-effect within transaction")
	}
}

func (ic *invocationContext) assertf(condition bool, msg string, args ...interface{}) {
	if !condition {
		ic.Abortf(exitcode.SysErrorIllegalActor, msg, args...)
	}
}

func (ic *invocationContext) fatal(err error) {
	panic(hostFault{err})
}

// returnWrapper carries an invocation's return value to a sender.
type returnWrapper struct {
	inner cbor.Marshaler
}

func (r returnWrapper) Into(o cbor.Unmarshaler) error {
	if r.inner == nil {
		return xerrors.New("failed to unmarshal nil return")
	}
	b := bytes.Buffer{}
	if err := r.inner.MarshalCBOR(&b); err != nil {
		return err
	}
	return o.UnmarshalCBOR(&b)
}

/////////////////////////////////////////////
//          Message
/////////////////////////////////////////////

var _ runtime.Message = InternalMessage{}

func (m InternalMessage) Caller() address.Address {
	return m.from
}

func (m InternalMessage) Receiver() address.Address {
	return m.to
}

func (m InternalMessage) ValueReceived() abi.TokenAmount {
	return m.value
}
