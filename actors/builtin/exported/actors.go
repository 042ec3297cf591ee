package exported

import (
	"github.com/filecoin-project/lockdrop-actors/actors/builtin"
	"github.com/filecoin-project/lockdrop-actors/actors/builtin/account"
	"github.com/filecoin-project/lockdrop-actors/actors/builtin/lock"
	"github.com/filecoin-project/lockdrop-actors/actors/builtin/lockdrop"
	"github.com/filecoin-project/lockdrop-actors/actors/runtime"
)

// BuiltinActors returns every actor implementation the ledger host can run, one per code.
func BuiltinActors() []runtime.VMActor {
	return []runtime.VMActor{
		account.Actor{},
		lock.Actor{},
		lockdrop.Actor{},
		lockdrop.NewActor(builtin.LegacyLockdropActorCodeID, lockdrop.LegacyPolicy),
		lockdrop.NewActor(builtin.ImmediateLockdropActorCodeID, lockdrop.ImmediatePolicy),
	}
}
