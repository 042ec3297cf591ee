package lockdrop

import (
	"encoding/binary"

	"github.com/ipfs/go-cid"
)

type State struct {
	// Code of the locks this factory deploys. Set once by the constructor.
	LockCode cid.Cid
	// Nonce for the salt of the next deployed lock.
	NextSalt uint64
}

func ConstructState(lockCode cid.Cid) *State {
	return &State{
		LockCode: lockCode,
		NextSalt: 0,
	}
}

// TakeSalt returns the salt for the next deployment and advances the nonce.
func (st *State) TakeSalt() []byte {
	salt := SaltFor(st.NextSalt)
	st.NextSalt++
	return salt
}

// SaltFor returns the salt bytes of a nonce, big-endian.
func SaltFor(nonce uint64) []byte {
	salt := make([]byte, 8)
	binary.BigEndian.PutUint64(salt, nonce)
	return salt
}
