package states

import (
	"fmt"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"

	"github.com/filecoin-project/lockdrop-actors/actors/builtin"
	"github.com/filecoin-project/lockdrop-actors/actors/builtin/account"
	"github.com/filecoin-project/lockdrop-actors/actors/builtin/lock"
	"github.com/filecoin-project/lockdrop-actors/actors/builtin/lockdrop"
	"github.com/filecoin-project/lockdrop-actors/actors/runtime"
)

// Within this code, Go errors are not expected, but are often converted to messages so that execution
// can continue to find more errors rather than fail with no insight.
// Only errors thar are particularly troublesome to recover from should propagate as Go errors.
func CheckStateInvariants(tree *Tree, expectedBalanceTotal abi.TokenAmount, now runtime.Timestamp) (*builtin.MessageAccumulator, error) {
	acc := &builtin.MessageAccumulator{}
	totalBalance := big.Zero()
	lockSummaries := make(map[addr.Address]*lock.StateSummary)
	factorySummaries := make(map[addr.Address]*lockdrop.StateSummary)

	if err := tree.ForEach(func(key addr.Address, actor *Actor) error {
		acc := acc.WithPrefix(fmt.Sprintf("%v ", key)) // Intentional shadow
		totalBalance = big.Add(totalBalance, actor.Balance)

		switch {
		case actor.Code.Equals(builtin.AccountActorCodeID):
			var st account.State
			if err := tree.Store.Get(tree.Store.Context(), actor.Head, &st); err != nil {
				return err
			}
			summary, msgs := account.CheckStateInvariants(&st)
			acc.WithPrefix("account: ").AddAll(msgs)
			acc.Require(summary.Address == key, "account at %v holds address %v", key, summary.Address)

		case actor.Code.Equals(builtin.LockActorCodeID):
			var st lock.State
			if err := tree.Store.Get(tree.Store.Context(), actor.Head, &st); err != nil {
				return err
			}
			summary, msgs := lock.CheckStateInvariants(&st, actor.Balance, now)
			acc.WithPrefix("lock: ").AddAll(msgs)
			acc.Require(key.Protocol() == addr.Actor, "lock address %v does not use the actor protocol", key)
			lockSummaries[key] = summary

		case actor.Code.Equals(builtin.LockdropActorCodeID), actor.Code.Equals(builtin.LegacyLockdropActorCodeID),
			actor.Code.Equals(builtin.ImmediateLockdropActorCodeID):
			var st lockdrop.State
			if err := tree.Store.Get(tree.Store.Context(), actor.Head, &st); err != nil {
				return err
			}
			summary, msgs := lockdrop.CheckStateInvariants(&st, actor.Balance)
			acc.WithPrefix("lockdrop: ").AddAll(msgs)
			factorySummaries[key] = summary

		default:
			acc.Addf("unexpected actor code %v", actor.Code)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	//
	// Perform cross-actor checks from state summaries here.
	//

	CheckLocksAgainstFactories(acc, lockSummaries, factorySummaries)

	if !totalBalance.Equals(expectedBalanceTotal) {
		acc.Addf("total token balance is %v, expected %v", totalBalance, expectedBalanceTotal)
	}

	return acc, nil
}

// Every lock is deployed by a factory, so there are never more locks than factories have deployed.
func CheckLocksAgainstFactories(acc *builtin.MessageAccumulator, locks map[addr.Address]*lock.StateSummary, factories map[addr.Address]*lockdrop.StateSummary) {
	deployed := uint64(0)
	for _, f := range factories {
		deployed += f.LocksDeployed
	}
	acc.Require(uint64(len(locks)) <= deployed, "%d locks exist but factories deployed %d", len(locks), deployed)
}
