// Package kv implements the database.Storage interface on top of badger.
// Each block is stored under its own key so the snapshot can be inspected
// and rewritten block by block.
package kv

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/arthachain/ledger/foundation/blockchain/database"
	"github.com/dgraph-io/badger/v4"
)

var (
	heightKey   = []byte("meta/height")
	blockPrefix = []byte("block/")
)

// KV stores the chain in a badger database.
type KV struct {
	db *badger.DB
}

// New opens or creates the badger database at the specified directory.
func New(dir string) (*KV, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}

	return &KV{db: db}, nil
}

// Close releases the badger database.
func (kv *KV) Close() error {
	return kv.db.Close()
}

// Load reads every block up to the recorded height.
func (kv *KV) Load() ([]database.Block, error) {
	var chain []database.Block

	err := kv.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(heightKey)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return database.ErrNoSnapshot
			}
			return err
		}

		var height uint64
		if err := item.Value(func(val []byte) error {
			if len(val) != 8 {
				return errors.New("corrupt height record")
			}
			height = binary.BigEndian.Uint64(val)
			return nil
		}); err != nil {
			return err
		}

		chain = make([]database.Block, 0, height+1)
		for i := uint64(0); i <= height; i++ {
			item, err := txn.Get(blockKey(i))
			if err != nil {
				return fmt.Errorf("block %d: %w", i, err)
			}

			var block database.Block
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &block)
			}); err != nil {
				return fmt.Errorf("block %d: %w", i, err)
			}

			chain = append(chain, block)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return chain, nil
}

// Save rewrites the stored chain. Blocks above the new height left over
// from a longer replaced chain are removed.
func (kv *KV) Save(chain []database.Block) error {
	if len(chain) == 0 {
		return errors.New("empty chain")
	}

	oldHeight, hasOld, err := kv.height()
	if err != nil {
		return err
	}

	wb := kv.db.NewWriteBatch()
	defer wb.Cancel()

	for _, block := range chain {
		data, err := json.Marshal(block)
		if err != nil {
			return err
		}

		if err := wb.Set(blockKey(block.Index), data); err != nil {
			return err
		}
	}

	newHeight := uint64(len(chain) - 1)
	if hasOld {
		for i := newHeight + 1; i <= oldHeight; i++ {
			if err := wb.Delete(blockKey(i)); err != nil {
				return err
			}
		}
	}

	var h [8]byte
	binary.BigEndian.PutUint64(h[:], newHeight)
	if err := wb.Set(heightKey, h[:]); err != nil {
		return err
	}

	return wb.Flush()
}

// =============================================================================

// height returns the recorded chain height if one exists.
func (kv *KV) height() (uint64, bool, error) {
	var height uint64
	var found bool

	err := kv.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(heightKey)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}

		return item.Value(func(val []byte) error {
			if len(val) == 8 {
				height = binary.BigEndian.Uint64(val)
				found = true
			}
			return nil
		})
	})

	return height, found, err
}

// blockKey returns the key for the block at the specified index. Keys sort
// in index order.
func blockKey(index uint64) []byte {
	key := make([]byte, len(blockPrefix)+8)
	copy(key, blockPrefix)
	binary.BigEndian.PutUint64(key[len(blockPrefix):], index)
	return key
}
