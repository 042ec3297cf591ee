package agent

import (
	"context"
	"math/rand"
	"strings"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/lockdrop-actors/actors/builtin"
	"github.com/filecoin-project/lockdrop-actors/actors/builtin/lockdrop"
	"github.com/filecoin-project/lockdrop-actors/actors/runtime"
	"github.com/filecoin-project/lockdrop-actors/support/vm"
)

type SimConfig struct {
	AccountCount          int
	AccountInitialBalance abi.TokenAmount
	Seed                  int64
	FactoryCode           cid.Cid // defaults to the built-in lockdrop factory
	Depositor             DepositorAgentConfig
}

// Sim drives depositor agents against a single lockdrop factory, one tick per timestamp.
type Sim struct {
	Config     SimConfig
	Accounts   []address.Address
	Depositors []*DepositorAgent
	Factory    address.Address

	v   *vm.VM
	rnd *rand.Rand
}

// SimState is the view of the ledger agents see.
type SimState interface {
	Timestamp() runtime.Timestamp
	GetState(addr address.Address, out cbor.Unmarshaler) error
	GetBalance(addr address.Address) (abi.TokenAmount, error)
}

type ReturnHandler func(s SimState, msg message, ret cbor.Marshaler) error

type message struct {
	From          address.Address
	To            address.Address
	Value         abi.TokenAmount
	Method        abi.MethodNum
	Params        cbor.Marshaler
	ReturnHandler ReturnHandler
}

type Agent interface {
	Tick(s SimState) ([]message, error)
}

// NewSim creates the ledger with funded accounts. The first account deploys the factory and every
// other account becomes a depositor.
func NewSim(ctx context.Context, t testing.TB, cfg vm.Config, config SimConfig) (*Sim, error) {
	if config.AccountCount < 2 {
		return nil, xerrors.Errorf("simulation needs at least 2 accounts, got %d", config.AccountCount)
	}
	code := config.FactoryCode
	if !code.Defined() {
		code = builtin.LockdropActorCodeID
	}

	v, accounts := vm.NewVMWithAccounts(ctx, t, cfg, config.AccountCount, config.AccountInitialBalance)
	factory, exit, err := v.DeployActor(accounts[0], code, &lockdrop.ConstructorParams{LockCode: builtin.LockActorCodeID}, big.Zero(), nil)
	if err != nil {
		return nil, err
	}
	if !exit.IsSuccess() {
		return nil, xerrors.Errorf("exitcode %d: failed to deploy factory", exit)
	}

	rnd := rand.New(rand.NewSource(config.Seed))
	sim := &Sim{
		Config:   config,
		Accounts: accounts,
		Factory:  factory,
		v:        v,
		rnd:      rnd,
	}
	for _, addr := range accounts[1:] {
		sim.Depositors = append(sim.Depositors, NewDepositorAgent(addr, factory, config.Depositor, rnd.Int63()))
	}
	return sim, nil
}

// Tick applies every agent's messages for the current timestamp in random order, then advances
// the timestamp. Every message is expected to succeed.
func (s *Sim) Tick() error {
	var blockMessages []message
	for _, agent := range s.Depositors {
		msgs, err := agent.Tick(s.v)
		if err != nil {
			return err
		}
		blockMessages = append(blockMessages, msgs...)
	}

	s.rnd.Shuffle(len(blockMessages), func(i, j int) {
		blockMessages[i], blockMessages[j] = blockMessages[j], blockMessages[i]
	})

	for _, msg := range blockMessages {
		result, err := s.v.ApplyMessage(msg.From, msg.To, msg.Value, msg.Method, msg.Params)
		if err != nil {
			return err
		}
		if result.Code != exitcode.Ok {
			return xerrors.Errorf("exitcode %d: message failed: %v\n%s\n", result.Code, msg, strings.Join(s.v.Logs(), "\n"))
		}
		if msg.ReturnHandler != nil {
			if err := msg.ReturnHandler(s.v, msg, result.Ret); err != nil {
				return err
			}
		}
	}

	return s.v.SetTimestamp(s.v.Timestamp() + 1)
}

func (s *Sim) GetVM() *vm.VM {
	return s.v
}

var _ Agent = (*DepositorAgent)(nil)
var _ SimState = (*vm.VM)(nil)
