package lock

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"

	"github.com/filecoin-project/lockdrop-actors/actors/builtin"
	"github.com/filecoin-project/lockdrop-actors/actors/runtime"
)

type StateSummary struct {
	Owner       addr.Address
	UnlockAfter runtime.Timestamp
	Open        bool
}

// Checks internal invariants of lock state.
func CheckStateInvariants(st *State, balance abi.TokenAmount, now runtime.Timestamp) (*StateSummary, *builtin.MessageAccumulator) {
	acc := &builtin.MessageAccumulator{}

	acc.Require(st.Owner.Protocol() != addr.Unknown, "lock owner %v is undefined", st.Owner)
	acc.Require(balance.Sign() >= 0, "lock balance %v is negative", balance)

	return &StateSummary{
		Owner:       st.Owner,
		UnlockAfter: st.UnlockAfter,
		Open:        st.IsOpen(now),
	}, acc
}
