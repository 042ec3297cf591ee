package builtin

import (
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// The built-in actor code IDs
var (
	AccountActorCodeID           cid.Cid
	LockActorCodeID              cid.Cid
	LockdropActorCodeID          cid.Cid
	LegacyLockdropActorCodeID    cid.Cid
	ImmediateLockdropActorCodeID cid.Cid
)

var builtinCodeBuilder = cid.V1Builder{Codec: cid.Raw, MhType: mh.IDENTITY}

// MakeCode returns the identity-hashed code CID for an actor template name.
func MakeCode(name string) cid.Cid {
	c, err := builtinCodeBuilder.Sum([]byte(name))
	if err != nil {
		panic(err)
	}
	return c
}

func init() {
	AccountActorCodeID = MakeCode("lockdrop/1/account")
	LockActorCodeID = MakeCode("lockdrop/1/lock")
	LockdropActorCodeID = MakeCode("lockdrop/1/lockdrop")
	// Half-retain factory, matching the first deployed lockdrop.
	LegacyLockdropActorCodeID = MakeCode("lockdrop/1/lockdrop-halfretain")
	// Factory whose locks open on the tick after the deposit.
	ImmediateLockdropActorCodeID = MakeCode("lockdrop/1/lockdrop-immediate")
}

// IsBuiltinActor returns true if the code belongs to an actor defined in this repo.
func IsBuiltinActor(code cid.Cid) bool {
	return code.Equals(AccountActorCodeID) ||
		code.Equals(LockActorCodeID) ||
		code.Equals(LockdropActorCodeID) ||
		code.Equals(LegacyLockdropActorCodeID) ||
		code.Equals(ImmediateLockdropActorCodeID)
}

// ActorNameByCode returns the (string) name of the actor given a cid code.
func ActorNameByCode(code cid.Cid) string {
	if !code.Defined() {
		return "<undefined>"
	}
	switch {
	case code.Equals(AccountActorCodeID):
		return "lockdrop/1/account"
	case code.Equals(LockActorCodeID):
		return "lockdrop/1/lock"
	case code.Equals(LockdropActorCodeID):
		return "lockdrop/1/lockdrop"
	case code.Equals(LegacyLockdropActorCodeID):
		return "lockdrop/1/lockdrop-halfretain"
	case code.Equals(ImmediateLockdropActorCodeID):
		return "lockdrop/1/lockdrop-immediate"
	}
	return "<unknown>"
}
