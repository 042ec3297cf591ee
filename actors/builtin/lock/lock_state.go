package lock

import (
	addr "github.com/filecoin-project/go-address"

	"github.com/filecoin-project/lockdrop-actors/actors/runtime"
)

// State is set once by the constructor and never mutated.
type State struct {
	// The only address allowed to unlock.
	Owner addr.Address
	// Funds are released strictly after this timestamp.
	UnlockAfter runtime.Timestamp
}

func ConstructState(owner addr.Address, unlockAfter runtime.Timestamp) *State {
	return &State{
		Owner:       owner,
		UnlockAfter: unlockAfter,
	}
}

// CheckUnlock returns an error if caller may not unlock at now.
// The deadline is checked before the caller.
func (st *State) CheckUnlock(caller addr.Address, now runtime.Timestamp) error {
	if !st.IsOpen(now) {
		return ErrTooEarly.Wrapf("lock opens after %v, now %v", st.UnlockAfter, now)
	}
	if caller != st.Owner {
		return ErrUnauthorized.Wrapf("caller %v is not the lock owner %v", caller, st.Owner)
	}
	return nil
}

// IsOpen reports whether the deadline has passed at now.
func (st *State) IsOpen(now runtime.Timestamp) bool {
	return now.After(st.UnlockAfter)
}
