package lock

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/lockdrop-actors/actors/builtin"
	"github.com/filecoin-project/lockdrop-actors/actors/runtime"
)

// Handle gives another actor typed access to a deployed lock.
type Handle struct {
	rt      runtime.Runtime
	address addr.Address
}

func NewHandle(rt runtime.Runtime, address addr.Address) Handle {
	return Handle{rt: rt, address: address}
}

func (h Handle) Address() addr.Address {
	return h.address
}

// Balance queries the lock's balance with a message send.
// The returned error carries the exit code of a failed send.
func (h Handle) Balance() (abi.TokenAmount, error) {
	ret, code := h.rt.Send(h.address, builtin.MethodsLock.Balance, nil, big.Zero())
	if !code.IsSuccess() {
		return big.Zero(), code.Wrapf("balance query to lock %v failed", h.address)
	}
	var balance abi.TokenAmount
	if err := ret.Into(&balance); err != nil {
		return big.Zero(), xerrors.Errorf("failed to decode balance of lock %v: %w", h.address, err)
	}
	return balance, nil
}
