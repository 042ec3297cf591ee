package main

import (
	gen "github.com/whyrusleeping/cbor-gen"

	"github.com/filecoin-project/lockdrop-actors/actors/builtin/account"
	"github.com/filecoin-project/lockdrop-actors/actors/builtin/lock"
	"github.com/filecoin-project/lockdrop-actors/actors/builtin/lockdrop"
	"github.com/filecoin-project/lockdrop-actors/actors/states"
)

func main() {
	// Actors
	if err := gen.WriteTupleEncodersToFile("./actors/builtin/account/cbor_gen.go", "account",
		// actor state
		account.State{},
	); err != nil {
		panic(err)
	}

	if err := gen.WriteTupleEncodersToFile("./actors/builtin/lock/cbor_gen.go", "lock",
		// actor state
		lock.State{},
		// method params
		lock.ConstructorParams{},
	); err != nil {
		panic(err)
	}

	if err := gen.WriteTupleEncodersToFile("./actors/builtin/lockdrop/cbor_gen.go", "lockdrop",
		// actor state
		lockdrop.State{},
		// method params
		lockdrop.ConstructorParams{},
	); err != nil {
		panic(err)
	}

	// State tree
	if err := gen.WriteTupleEncodersToFile("./actors/states/cbor_gen.go", "states",
		states.Actor{},
	); err != nil {
		panic(err)
	}
}
