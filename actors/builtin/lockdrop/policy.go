package lockdrop

import (
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
)

// EndowmentPolicy decides how much of a deposit endows the new lock.
type EndowmentPolicy int

const (
	// The whole deposit endows the lock.
	FullForward EndowmentPolicy = iota
	// Half the deposit, rounded down, endows the lock. The remainder stays with the factory.
	HalfRetain
)

func (p EndowmentPolicy) String() string {
	switch p {
	case FullForward:
		return "full-forward"
	case HalfRetain:
		return "half-retain"
	default:
		return "unknown"
	}
}

// Of returns the endowment for a deposit.
func (p EndowmentPolicy) Of(deposit abi.TokenAmount) abi.TokenAmount {
	if p == HalfRetain {
		return big.Div(deposit, big.NewInt(2))
	}
	return deposit
}

// Policy is fixed for a factory build.
type Policy struct {
	// Ticks between the deposit and the earliest unlock deadline.
	UnlockDelay uint64
	Endowment   EndowmentPolicy
}

var (
	DefaultPolicy = Policy{UnlockDelay: 5, Endowment: FullForward}
	// Policy of the half-retain factory.
	LegacyPolicy = Policy{UnlockDelay: 5, Endowment: HalfRetain}
	// Policy of the factory without a waiting period.
	ImmediatePolicy = Policy{UnlockDelay: 0, Endowment: FullForward}
)
