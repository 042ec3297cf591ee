package vm

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	rtt "github.com/filecoin-project/go-state-types/rt"
	"github.com/ipfs/go-cid"
	ipldcbor "github.com/ipfs/go-ipld-cbor"
	logging "github.com/ipfs/go-log/v2"
	"github.com/minio/blake2b-simd"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/lockdrop-actors/actors/builtin"
	"github.com/filecoin-project/lockdrop-actors/actors/builtin/account"
	"github.com/filecoin-project/lockdrop-actors/actors/builtin/exported"
	"github.com/filecoin-project/lockdrop-actors/actors/runtime"
	"github.com/filecoin-project/lockdrop-actors/actors/states"
	"github.com/filecoin-project/lockdrop-actors/actors/util/adt"
	"github.com/filecoin-project/lockdrop-actors/support/ipld"
)

var log = logging.Logger("vm")

// VM is a simplified message execution framework for the purposes of testing inter-actor interaction.
// The VM maintains actor state and can be used to simulate message validation for a single block.
// Messages are executed in order, and a failed message rolls back every change it made.
type VM struct {
	ctx        context.Context
	actorImpls ActorImplLookup
	store      adt.Store
	blocks     *ipld.MetricsBlockStore
	closer     io.Closer

	timestamp          runtime.Timestamp
	existentialDeposit abi.TokenAmount

	stateRoot   cid.Cid      // The last committed root.
	actors      *states.Tree // The current (not necessarily committed) state tree.
	emptyObject cid.Cid

	logs            []string
	invocationStack []*Invocation
	invocations     []*Invocation
	trace           *traceWriter
	accountSeed     int
}

// ActorImplLookup maps actor code to the implementation invoked for it.
type ActorImplLookup map[cid.Cid]runtime.VMActor

type InternalMessage struct {
	from   address.Address
	to     address.Address
	value  abi.TokenAmount
	method abi.MethodNum
	params interface{}
}

func (m InternalMessage) From() address.Address {
	return m.from
}

func (m InternalMessage) To() address.Address {
	return m.to
}

func (m InternalMessage) Value() abi.TokenAmount {
	return m.value
}

func (m InternalMessage) Method() abi.MethodNum {
	return m.method
}

func (m InternalMessage) Params() interface{} {
	return m.params
}

type Invocation struct {
	Msg            *InternalMessage
	Exitcode       exitcode.ExitCode
	Ret            cbor.Marshaler
	SubInvocations []*Invocation
}

type MessageResult struct {
	Ret  cbor.Marshaler
	Code exitcode.ExitCode
}

// NewVM creates a VM over store, running the given actor implementations.
func NewVM(ctx context.Context, actorImpls ActorImplLookup, store adt.Store, cfg Config) (*VM, error) {
	deposit, err := cfg.Deposit()
	if err != nil {
		return nil, err
	}
	if cfg.LogLevel != "" {
		if err := logging.SetLogLevel("vm", cfg.LogLevel); err != nil {
			return nil, xerrors.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
		}
	}

	actors, err := states.NewTree(store)
	if err != nil {
		return nil, err
	}
	actorRoot, err := actors.Flush()
	if err != nil {
		return nil, err
	}

	emptyObject, err := store.Put(ctx, []struct{}{})
	if err != nil {
		return nil, xerrors.Errorf("failed to store empty object: %w", err)
	}

	trace, err := newTraceWriter(cfg.TraceDir)
	if err != nil {
		return nil, err
	}

	return &VM{
		ctx:                ctx,
		actorImpls:         actorImpls,
		store:              store,
		existentialDeposit: deposit,
		stateRoot:          actorRoot,
		actors:             actors,
		emptyObject:        emptyObject,
		trace:              trace,
	}, nil
}

// Open creates a VM running the built-in actors over the block store selected by cfg.
// The VM must be closed to release an on-disk block store.
func Open(ctx context.Context, cfg Config) (*VM, error) {
	var bs ipldcbor.IpldBlockstore
	var closer io.Closer
	if cfg.BlockstorePath != "" {
		badgerStore, err := ipld.OpenBadgerBlockStore(cfg.BlockstorePath)
		if err != nil {
			return nil, err
		}
		bs, closer = badgerStore, badgerStore
	} else {
		bs = ipld.NewBlockStoreInMemory()
	}
	metrics := ipld.NewMetricsBlockStore(bs)

	v, err := NewVM(ctx, BuiltinLookup(), adt.WrapBlockStore(ctx, metrics), cfg)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}
	v.blocks = metrics
	v.closer = closer
	return v, nil
}

// BuiltinLookup returns the lookup of all built-in actors.
func BuiltinLookup() ActorImplLookup {
	lookup := ActorImplLookup{}
	for _, ba := range exported.BuiltinActors() {
		lookup[ba.Code()] = ba
	}
	return lookup
}

// Close releases the VM's block store, and flushes the trace.
func (vm *VM) Close() error {
	var err error
	if vm.trace != nil {
		err = vm.trace.close()
	}
	if vm.closer != nil {
		if cerr := vm.closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

//
// State tree
//

func (vm *VM) rollback(root cid.Cid) error {
	var err error
	vm.actors, err = states.LoadTree(vm.store, root)
	if err != nil {
		return err
	}

	// reset the root node
	vm.stateRoot = root
	return nil
}

func (vm *VM) GetActor(a address.Address) (*states.Actor, bool, error) {
	return vm.actors.GetActor(a)
}

// setActor sets the the actor to the given value whether it previously existed or not.
//
// This method will not check if the actor previously existed, it will blindly overwrite it.
func (vm *VM) setActor(_ context.Context, key address.Address, a *states.Actor) error {
	return vm.actors.SetActor(key, a)
}

// setActorState stores the state and updates the addressed actor
func (vm *VM) setActorState(ctx context.Context, key address.Address, state cbor.Marshaler) error {
	stateCid, err := vm.store.Put(ctx, state)
	if err != nil {
		return err
	}
	a, found, err := vm.GetActor(key)
	if err != nil {
		return err
	}
	if !found {
		return xerrors.Errorf("could not find actor %s to set state", key)
	}
	a.Head = stateCid
	return vm.setActor(ctx, key, a)
}

// checkpoint writes the current state tree and returns its root.
func (vm *VM) checkpoint() (cid.Cid, error) {
	root, err := vm.actors.Flush()
	if err != nil {
		return cid.Undef, err
	}
	vm.stateRoot = root
	return root, nil
}

// StateRoot returns the root of the state tree, committing pending changes.
func (vm *VM) StateRoot() (cid.Cid, error) {
	return vm.checkpoint()
}

// GetState loads the state of the actor at addr into out.
func (vm *VM) GetState(addr address.Address, out cbor.Unmarshaler) error {
	act, found, err := vm.GetActor(addr)
	if err != nil {
		return err
	}
	if !found {
		return xerrors.Errorf("actor %v not found", addr)
	}
	return vm.store.Get(vm.ctx, act.Head, out)
}

// GetBalance returns the balance of the actor at addr, zero if there is none.
func (vm *VM) GetBalance(addr address.Address) (abi.TokenAmount, error) {
	act, found, err := vm.GetActor(addr)
	if err != nil {
		return big.Zero(), err
	}
	if !found {
		return big.Zero(), nil
	}
	return act.Balance, nil
}

// CreateAccount installs an account actor for a party outside the ledger.
func (vm *VM) CreateAccount(addr address.Address, balance abi.TokenAmount) error {
	if addr.Protocol() == address.Actor {
		return xerrors.Errorf("account address %v must not use the actor protocol", addr)
	}
	if _, found, err := vm.GetActor(addr); err != nil {
		return err
	} else if found {
		return xerrors.Errorf("actor %v already exists", addr)
	}
	head, err := vm.store.Put(vm.ctx, &account.State{Address: addr})
	if err != nil {
		return err
	}
	if err := vm.setActor(vm.ctx, addr, &states.Actor{Code: builtin.AccountActorCodeID, Head: head, Balance: balance}); err != nil {
		return err
	}
	_, err = vm.checkpoint()
	return err
}

// SetTimestamp advances the block timestamp seen by subsequent messages.
func (vm *VM) SetTimestamp(ts runtime.Timestamp) error {
	if ts < vm.timestamp {
		return xerrors.Errorf("timestamp %v precedes current timestamp %v", ts, vm.timestamp)
	}
	vm.timestamp = ts
	return nil
}

func (vm *VM) Timestamp() runtime.Timestamp {
	return vm.timestamp
}

func (vm *VM) Store() adt.Store {
	return vm.store
}

// GetStateTree returns the state tree with pending changes committed.
func (vm *VM) GetStateTree() (*states.Tree, error) {
	if _, err := vm.checkpoint(); err != nil {
		return nil, err
	}
	return vm.actors, nil
}

// GetTotalActorBalance sums the balances of every actor in the state tree.
func (vm *VM) GetTotalActorBalance() (abi.TokenAmount, error) {
	total := big.Zero()
	err := vm.actors.ForEach(func(_ address.Address, act *states.Actor) error {
		total = big.Add(total, act.Balance)
		return nil
	})
	return total, err
}

// BlockStats returns the block store access counts, if the VM was opened with Open.
func (vm *VM) BlockStats() (reads, writes uint64) {
	if vm.blocks == nil {
		return 0, 0
	}
	return vm.blocks.ReadCount(), vm.blocks.WriteCount()
}

//
// Message application
//

// ApplyMessage applies a top-level message from an external party.
// The error return is reserved for failures of the host itself. A message that aborts is reported
// through the result's exit code, and every change it made is rolled back.
func (vm *VM) ApplyMessage(from, to address.Address, value abi.TokenAmount, method abi.MethodNum, params cbor.Marshaler) (MessageResult, error) {
	msg := InternalMessage{
		from:   from,
		to:     to,
		value:  value,
		method: method,
		params: params,
	}
	return vm.applyTopLevel(msg, func(ic *invocationContext) (returnWrapper, exitcode.ExitCode) {
		return ic.invoke()
	})
}

// DeployActor instantiates an actor from code as a top-level message of the external party from,
// which becomes the new actor's parent. The endowment is taken from from's balance.
func (vm *VM) DeployActor(from address.Address, code cid.Cid, params cbor.Marshaler, endowment abi.TokenAmount, salt []byte) (address.Address, exitcode.ExitCode, error) {
	var deployed address.Address
	msg := InternalMessage{
		from:   from,
		to:     from,
		value:  big.Zero(),
		method: builtin.MethodSend,
		params: params,
	}
	result, err := vm.applyTopLevel(msg, func(ic *invocationContext) (returnWrapper, exitcode.ExitCode) {
		var exit exitcode.ExitCode
		deployed, exit = ic.DeployChild(code, params, endowment, salt)
		return returnWrapper{}, exit
	})
	if err != nil || !result.Code.IsSuccess() {
		return address.Undef, result.Code, err
	}
	return deployed, exitcode.Ok, nil
}

// applyTopLevel runs apply as one top-level message.
// An error means the host failed, and the state is back at the root committed before the message,
// sequence number included.
func (vm *VM) applyTopLevel(msg InternalMessage, apply func(ic *invocationContext) (returnWrapper, exitcode.ExitCode)) (result MessageResult, err error) {
	startRoot := vm.stateRoot
	defer func() {
		if r := recover(); r != nil {
			fault, ok := r.(hostFault)
			if !ok {
				panic(r)
			}
			vm.invocationStack = nil
			result, err = MessageResult{}, xerrors.Errorf("host failure applying message to %v: %w", msg.to, fault.err)
		}
		if err != nil {
			if rerr := vm.rollback(startRoot); rerr != nil {
				err = xerrors.Errorf("rollback to %v failed (%s): %w", startRoot, rerr, err)
			}
		}
	}()

	fromActor, found, err := vm.GetActor(msg.from)
	if err != nil {
		return MessageResult{}, err
	}
	if !found {
		return MessageResult{Code: exitcode.SysErrSenderInvalid}, nil
	}
	if msg.value.Sign() < 0 {
		return MessageResult{Code: exitcode.SysErrForbidden}, nil
	}

	// The sequence number advances whether or not the message succeeds.
	callSeq := fromActor.CallSeqNum
	fromActor.CallSeqNum++
	if err := vm.setActor(vm.ctx, msg.from, fromActor); err != nil {
		return MessageResult{}, err
	}

	// checkpoint state
	// Even if the message fails, the following accumulated changes will be applied:
	// - CallSeqNumber increment
	priorRoot, err := vm.checkpoint()
	if err != nil {
		return MessageResult{}, err
	}

	topLevel := topLevelContext{originatorCallSeq: callSeq}
	ctx := newInvocationContext(vm, &topLevel, msg)
	ret, exitCode := apply(&ctx)

	if exitCode.IsSuccess() {
		if _, err := vm.checkpoint(); err != nil {
			return MessageResult{}, err
		}
	} else {
		log.Debugw("message aborted", "from", msg.from, "to", msg.to, "method", msg.method, "exitcode", exitCode)
		if err := vm.rollback(priorRoot); err != nil {
			return MessageResult{}, err
		}
	}

	if err := vm.trace.record(callSeq, msg, exitCode, vm.stateRoot); err != nil {
		return MessageResult{}, err
	}

	return MessageResult{
		Ret:  ret.inner,
		Code: exitCode,
	}, nil
}

// transfer debits money from one account and credits it to another.
// The returned exit code is non-zero if the transfer is not permitted. In that case no balance changes.
func (vm *VM) transfer(debitFrom address.Address, creditTo address.Address, amount abi.TokenAmount) (exitcode.ExitCode, error) {
	if amount.Sign() < 0 {
		return exitcode.SysErrForbidden, nil
	}
	if amount.IsZero() || debitFrom == creditTo {
		return exitcode.Ok, nil
	}

	fromActor, found, err := vm.GetActor(debitFrom)
	if err != nil {
		return exitcode.Ok, err
	}
	if !found {
		return exitcode.SysErrSenderInvalid, nil
	}
	toActor, found, err := vm.GetActor(creditTo)
	if err != nil {
		return exitcode.Ok, err
	}
	if !found {
		return exitcode.SysErrInvalidReceiver, nil
	}

	if fromActor.Balance.LessThan(amount) {
		return exitcode.SysErrInsufficientFunds, nil
	}
	fromActor.Balance = big.Sub(fromActor.Balance, amount)
	toActor.Balance = big.Add(toActor.Balance, amount)
	if vm.belowDeposit(fromActor.Balance) || vm.belowDeposit(toActor.Balance) {
		return runtime.SysErrBelowThreshold, nil
	}

	if err := vm.setActor(vm.ctx, debitFrom, fromActor); err != nil {
		return exitcode.Ok, err
	}
	if err := vm.setActor(vm.ctx, creditTo, toActor); err != nil {
		return exitcode.Ok, err
	}
	return exitcode.Ok, nil
}

// A balance that is neither empty nor at least the existential deposit is dust.
func (vm *VM) belowDeposit(balance abi.TokenAmount) bool {
	return !balance.IsZero() && balance.LessThan(vm.existentialDeposit)
}

//
// Inspection
//

func (vm *VM) Invocations() []*Invocation {
	return vm.invocations
}

// LastInvocation returns the invocation of the most recent top-level message.
func (vm *VM) LastInvocation() *Invocation {
	if len(vm.invocations) == 0 {
		return nil
	}
	return vm.invocations[len(vm.invocations)-1]
}

func (vm *VM) ClearInvocations() {
	vm.invocations = []*Invocation{}
}

// Logs returns the lines logged by actors.
func (vm *VM) Logs() []string {
	return vm.logs
}

//
// Addresses
//

// DeriveChildAddress computes the address of an actor deployed by parent from code with salt.
// Each component is length-prefixed so that distinct inputs never share a preimage.
func DeriveChildAddress(parent address.Address, code cid.Cid, salt []byte) (address.Address, error) {
	if parent.Empty() {
		return address.Undef, xerrors.New("parent address is undefined")
	}
	if !code.Defined() {
		return address.Undef, xerrors.New("code is undefined")
	}
	buf := new(bytes.Buffer)
	for _, part := range [][]byte{parent.Bytes(), code.Bytes(), salt} {
		var prefix [binary.MaxVarintLen64]byte
		n := binary.PutUvarint(prefix[:], uint64(len(part)))
		buf.Write(prefix[:n])
		buf.Write(part)
	}
	digest := blake2b.Sum256(buf.Bytes())
	return address.NewActorAddress(digest[:])
}

// logActor records an actor's log line and forwards it to the "vm" logger.
func (vm *VM) logActor(receiver address.Address, level rtt.LogLevel, line string) {
	vm.logs = append(vm.logs, line)
	switch level {
	case rtt.DEBUG:
		log.Debugw(line, "actor", receiver)
	case rtt.INFO:
		log.Infow(line, "actor", receiver)
	case rtt.WARN:
		log.Warnw(line, "actor", receiver)
	default:
		log.Errorw(line, "actor", receiver)
	}
}
