package account

import (
	"github.com/filecoin-project/go-address"

	"github.com/filecoin-project/lockdrop-actors/actors/builtin"
)

type StateSummary struct {
	Address address.Address
}

// Checks internal invariants of account state.
func CheckStateInvariants(st *State) (*StateSummary, *builtin.MessageAccumulator) {
	acc := &builtin.MessageAccumulator{}
	acc.Require(
		st.Address.Protocol() != address.Actor && st.Address.Protocol() != address.Unknown,
		"account address %v must not use the actor protocol", st.Address)

	return &StateSummary{
		Address: st.Address,
	}, acc
}
