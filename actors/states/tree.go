package states

import (
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/lockdrop-actors/actors/util/adt"
)

// Actor is the ledger's record of a unit in the state tree.
type Actor struct {
	// Identifies the type of actor (string coded as a CID), see `builtin/codes.go`.
	Code cid.Cid
	// CID of the root of optional actor-specific sub-state.
	Head cid.Cid
	// Number of top-level messages sent by this actor.
	CallSeqNum uint64
	// Token balance of the actor.
	Balance abi.TokenAmount
}

// Tree is a map of addresses to actor records.
type Tree struct {
	Map   *adt.Map
	Store adt.Store
}

// NewTree creates an empty state tree.
func NewTree(store adt.Store) (*Tree, error) {
	m, err := adt.MakeEmptyMap(store, adt.DefaultHamtBitwidth)
	if err != nil {
		return nil, xerrors.Errorf("failed to create state tree: %w", err)
	}
	return &Tree{Map: m, Store: store}, nil
}

// LoadTree loads the state tree rooted at root.
func LoadTree(store adt.Store, root cid.Cid) (*Tree, error) {
	m, err := adt.AsMap(store, root, adt.DefaultHamtBitwidth)
	if err != nil {
		return nil, xerrors.Errorf("failed to load state tree %s: %w", root, err)
	}
	return &Tree{Map: m, Store: store}, nil
}

// Flush writes pending changes and returns the tree's root.
func (t *Tree) Flush() (cid.Cid, error) {
	return t.Map.Root()
}

func (t *Tree) GetActor(addr address.Address) (*Actor, bool, error) {
	var actor Actor
	found, err := t.Map.Get(abi.AddrKey(addr), &actor)
	if err != nil {
		return nil, false, xerrors.Errorf("failed to get actor %v: %w", addr, err)
	}
	return &actor, found, nil
}

// SetActor sets the actor at addr whether or not it previously existed.
func (t *Tree) SetActor(addr address.Address, actor *Actor) error {
	if err := t.Map.Put(abi.AddrKey(addr), actor); err != nil {
		return xerrors.Errorf("setting actor %v in state tree failed: %w", addr, err)
	}
	return nil
}

// ForEach calls fn for every actor in the tree, in key order.
// The actor passed to fn is reused between calls.
func (t *Tree) ForEach(fn func(addr address.Address, actor *Actor) error) error {
	var val Actor
	return t.Map.ForEach(&val, func(key string) error {
		addr, err := address.NewFromBytes([]byte(key))
		if err != nil {
			return err
		}
		return fn(addr, &val)
	})
}
