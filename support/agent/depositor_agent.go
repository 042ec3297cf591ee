package agent

import (
	"container/heap"
	"math/rand"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/cbor"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/lockdrop-actors/actors/builtin"
	"github.com/filecoin-project/lockdrop-actors/actors/builtin/lock"
	"github.com/filecoin-project/lockdrop-actors/actors/builtin/lockdrop"
	"github.com/filecoin-project/lockdrop-actors/actors/runtime"
	"github.com/filecoin-project/lockdrop-actors/support/vm"
)

type DepositorAgentConfig struct {
	LockRate   float64 // average number of locks per tick
	MaxDeposit int64   // deposits are drawn uniformly from [0, MaxDeposit]
}

// DepositorAgent locks funds in a lockdrop factory and unlocks each of its locks once it opens.
type DepositorAgent struct {
	Address address.Address
	Factory address.Address

	config     DepositorAgentConfig
	lockEvents *RateIterator
	rnd        *rand.Rand

	pending lockQueue // locks awaiting their deadline, earliest first

	Deposited abi.TokenAmount
	Recovered abi.TokenAmount
	Locks     int
	Unlocks   int
}

func NewDepositorAgent(addr, factory address.Address, config DepositorAgentConfig, rndSeed int64) *DepositorAgent {
	rnd := rand.New(rand.NewSource(rndSeed))
	return &DepositorAgent{
		Address:    addr,
		Factory:    factory,
		config:     config,
		lockEvents: NewRateIterator(config.LockRate, rnd.Int63()),
		rnd:        rnd,
		Deposited:  big.Zero(),
		Recovered:  big.Zero(),
	}
}

func (da *DepositorAgent) Tick(s SimState) ([]message, error) {
	var msgs []message

	// unlock every lock whose deadline has passed
	for len(da.pending) > 0 && s.Timestamp() > da.pending[0].unlockAfter {
		msgs = append(msgs, da.unlock(heap.Pop(&da.pending).(pendingLock)))
	}

	balance, err := s.GetBalance(da.Address)
	if err != nil {
		return nil, err
	}
	err = da.lockEvents.Tick(func() error {
		deposit := big.NewInt(da.rnd.Int63n(da.config.MaxDeposit + 1))
		if balance.LessThan(deposit) {
			return nil
		}
		balance = big.Sub(balance, deposit)
		msgs = append(msgs, da.lock(deposit))
		return nil
	})
	return msgs, err
}

func (da *DepositorAgent) lock(deposit abi.TokenAmount) message {
	return message{
		From:   da.Address,
		To:     da.Factory,
		Value:  deposit,
		Method: builtin.MethodsLockdrop.Lock,
		ReturnHandler: func(s SimState, msg message, _ cbor.Marshaler) error {
			// The lock just deployed used the factory's latest salt.
			var fst lockdrop.State
			if err := s.GetState(da.Factory, &fst); err != nil {
				return err
			}
			if fst.NextSalt == 0 {
				return xerrors.Errorf("factory %v has deployed no locks", da.Factory)
			}
			lockAddr, err := vm.DeriveChildAddress(da.Factory, fst.LockCode, lockdrop.SaltFor(fst.NextSalt-1))
			if err != nil {
				return err
			}

			var lst lock.State
			if err := s.GetState(lockAddr, &lst); err != nil {
				return xerrors.Errorf("failed to load lock %v: %w", lockAddr, err)
			}
			if lst.Owner != da.Address {
				return xerrors.Errorf("lock %v is owned by %v, not depositor %v", lockAddr, lst.Owner, da.Address)
			}

			endowment, err := s.GetBalance(lockAddr)
			if err != nil {
				return err
			}

			heap.Push(&da.pending, pendingLock{address: lockAddr, unlockAfter: lst.UnlockAfter, amount: endowment})
			da.Deposited = big.Add(da.Deposited, msg.Value)
			da.Locks++
			return nil
		},
	}
}

func (da *DepositorAgent) unlock(pl pendingLock) message {
	return message{
		From:   da.Address,
		To:     pl.address,
		Value:  big.Zero(),
		Method: builtin.MethodsLock.Unlock,
		ReturnHandler: func(s SimState, _ message, _ cbor.Marshaler) error {
			balance, err := s.GetBalance(pl.address)
			if err != nil {
				return err
			}
			if !balance.IsZero() {
				return xerrors.Errorf("lock %v holds %v after unlock", pl.address, balance)
			}
			da.Recovered = big.Add(da.Recovered, pl.amount)
			da.Unlocks++
			return nil
		},
	}
}

//
// Pending lock queue
//

type pendingLock struct {
	address     address.Address
	unlockAfter runtime.Timestamp
	amount      abi.TokenAmount
}

// lockQueue is a min-heap of pending locks ordered by deadline.
type lockQueue []pendingLock

func (q lockQueue) Len() int            { return len(q) }
func (q lockQueue) Less(i, j int) bool  { return q[i].unlockAfter < q[j].unlockAfter }
func (q lockQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *lockQueue) Push(x interface{}) { *q = append(*q, x.(pendingLock)) }
func (q *lockQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
