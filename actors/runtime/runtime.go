package runtime

import (
	"context"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/filecoin-project/go-state-types/rt"
	cid "github.com/ipfs/go-cid"
)

// Runtime is the ledger host's view of the executing invocation.
// This is everything that is accessible to actors, beyond parameters.
type Runtime interface {
	// Information related to the current message being executed.
	Message() Message

	// The timestamp of the block including the current message, in host ticks.
	// Non-decreasing across successive blocks.
	BlockTimestamp() Timestamp

	// Validates the caller against some predicate.
	// Exported actor methods must invoke at least one caller validation before returning.
	ValidateImmediateCallerAcceptAny()
	ValidateImmediateCallerIs(addrs ...addr.Address)

	// The balance of the receiver. Includes the value received with the current message.
	CurrentBalance() abi.TokenAmount

	// Provides a handle for the actor's state object.
	State() StateHandle

	// Sends a message to another actor, returning the exit code and return value envelope.
	// A plain value transfer uses builtin.MethodSend with nil params.
	// If the invoked method does not return successfully, its state changes (and that of any messages it sent in turn)
	// will be rolled back.
	Send(toAddr addr.Address, methodNum abi.MethodNum, params cbor.Marshaler, value abi.TokenAmount) (SendReturn, exitcode.ExitCode)

	// Instantiates a new actor from the code `code` at the address derived from
	// (receiver, code, salt), moves `endowment` from the receiver's balance to it and invokes its
	// constructor with `params`. The constructor does not observe the endowment as received value.
	// On any failure nothing is created, no value moves and a non-success exit code is returned.
	DeployChild(code cid.Cid, params cbor.Marshaler, endowment abi.TokenAmount, salt []byte) (addr.Address, exitcode.ExitCode)

	// Halts execution upon an error from which the receiver cannot recover. The caller will receive the exitcode and
	// an empty return value. State changes made within this call will be rolled back.
	// This method does not return.
	// The message and args are for diagnostic purposes and do not persist on chain. They should be suitable for
	// passing to fmt.Errorf(msg, args...).
	Abortf(errExitCode exitcode.ExitCode, msg string, args ...interface{})

	// Log records a diagnostic message. Log lines are not persisted.
	Log(level rt.LogLevel, msg string, args ...interface{})

	// Provides a Go context for use by the host's stores.
	// Actor code should not use this context directly.
	Context() context.Context
}

// Message contains information available to the actor about the executing message.
type Message interface {
	// The address of the immediate calling actor.
	Caller() addr.Address

	// The address of the actor receiving the message.
	Receiver() addr.Address

	// The value attached to the message being processed, implicitly added to CurrentBalance() before method invocation.
	ValueReceived() abi.TokenAmount
}

// The return type from a message send from one actor to another. This abstracts over the internal representation of
// the return, in particular whether it has been serialized to bytes or just passed through.
// Production code is expected to de/serialize, but test and other code may pass the value straight through.
type SendReturn interface {
	Into(cbor.Unmarshaler) error
}

// StateHandle provides mutable, exclusive access to actor state.
type StateHandle interface {
	// Create initializes the state object.
	// This is only valid in a constructor function and when the state has not yet been initialized.
	Create(obj cbor.Marshaler)

	// Readonly loads a readonly copy of the state into the argument.
	//
	// Any modification to the state is illegal and will result in an abort.
	Readonly(obj cbor.Unmarshaler)

	// Transaction loads a mutable version of the state into the `obj` argument and protects
	// the execution from side effects (including message send).
	//
	// The second argument is a function which allows the caller to mutate the state.
	//
	// If the state is modified after this function returns, execution will abort.
	//
	// # Usage
	// ```go
	// var state SomeState
	// rt.State().Transaction(&state, func() {
	//   // make some changes
	//   state.ImLoaded = true
	// })
	// ```
	Transaction(obj cbor.Er, f func())
}
