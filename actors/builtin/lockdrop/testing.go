package lockdrop

import (
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-cid"

	"github.com/filecoin-project/lockdrop-actors/actors/builtin"
)

type StateSummary struct {
	LockCode      cid.Cid
	LocksDeployed uint64
}

// Checks internal invariants of lockdrop state.
func CheckStateInvariants(st *State, balance abi.TokenAmount) (*StateSummary, *builtin.MessageAccumulator) {
	acc := &builtin.MessageAccumulator{}

	acc.Require(st.LockCode.Defined(), "lock code is undefined")
	acc.Require(balance.Sign() >= 0, "factory balance %v is negative", balance)

	return &StateSummary{
		LockCode:      st.LockCode,
		LocksDeployed: st.NextSalt,
	}, acc
}
