package ipld

import (
	"github.com/dgraph-io/badger/v4"
	block "github.com/ipfs/go-block-format"
	cid "github.com/ipfs/go-cid"
	ipldcbor "github.com/ipfs/go-ipld-cbor"
	"golang.org/x/xerrors"
)

// BadgerBlockStore keeps blocks in a badger database, keyed by CID bytes.
type BadgerBlockStore struct {
	db *badger.DB
}

var _ ipldcbor.IpldBlockstore = (*BadgerBlockStore)(nil)

// OpenBadgerBlockStore opens (or creates) a block store at path.
// An empty path opens a store held in memory.
func OpenBadgerBlockStore(path string) (*BadgerBlockStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, xerrors.Errorf("failed to open badger block store at %q: %w", path, err)
	}
	return &BadgerBlockStore{db: db}, nil
}

func (bs *BadgerBlockStore) Get(c cid.Cid) (block.Block, error) {
	var data []byte
	err := bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(c.Bytes())
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if xerrors.Is(err, badger.ErrKeyNotFound) {
		return nil, xerrors.Errorf("%v: %w", c, ErrNotFound)
	}
	if err != nil {
		return nil, xerrors.Errorf("failed to read block %v: %w", c, err)
	}
	return block.NewBlockWithCid(data, c)
}

func (bs *BadgerBlockStore) Put(b block.Block) error {
	err := bs.db.Update(func(txn *badger.Txn) error {
		return txn.Set(b.Cid().Bytes(), b.RawData())
	})
	if err != nil {
		return xerrors.Errorf("failed to write block %v: %w", b.Cid(), err)
	}
	return nil
}

func (bs *BadgerBlockStore) Close() error {
	return bs.db.Close()
}
