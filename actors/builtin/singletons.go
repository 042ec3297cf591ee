package builtin

import (
	addr "github.com/filecoin-project/go-address"
)

// Addresses for singleton system actors.
var (
	// The host acts as this address when it constructs actors on its own behalf,
	// e.g. an account created implicitly by a value transfer.
	SystemActorAddr = mustMakeAddress(addr.NewIDAddress(0))
)

func mustMakeAddress(a addr.Address, err error) addr.Address {
	if err != nil {
		panic(err)
	}
	return a
}
