// Package bolt implements the ability to save and load the ledger in a bolt
// database file. The snapshot and target are kept under one key and each
// retained block under its index.
package bolt

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/pocketcoin/node/foundation/blockchain/database"
	"github.com/pocketcoin/node/foundation/blockchain/storage"
)

var (
	bucketMeta   = []byte("meta")
	bucketBlocks = []byte("blocks")
	keyLedger    = []byte("ledger")
)

// Bolt represents the serialization implementation for saving the ledger
// in a bolt database. This implements the storage.Storage interface.
type Bolt struct {
	db *bolt.DB
}

// New opens or creates the database file at the path.
func New(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketBlocks} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &Bolt{db: db}, nil
}

// Close releases the database file.
func (b *Bolt) Close() error {
	return b.db.Close()
}

// Save replaces the stored ledger in a single transaction.
func (b *Bolt) Save(ls database.LedgerState) error {
	rec := database.NewLedgerRecord(ls)

	chain := rec.Chain
	rec.Chain = nil

	meta, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketBlocks); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}

		blocks, err := tx.CreateBucket(bucketBlocks)
		if err != nil {
			return err
		}

		for _, br := range chain {
			data, err := json.Marshal(br)
			if err != nil {
				return err
			}

			if err := blocks.Put(indexKey(br.Index), data); err != nil {
				return err
			}
		}

		return tx.Bucket(bucketMeta).Put(keyLedger, meta)
	})
}

// Load reads the stored ledger. Blocks come back in index order.
func (b *Bolt) Load() (database.LedgerState, error) {
	var rec database.LedgerRecord

	err := b.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta).Get(keyLedger)
		if meta == nil {
			return storage.ErrNotFound
		}

		if err := json.Unmarshal(meta, &rec); err != nil {
			return fmt.Errorf("decode ledger: %w", err)
		}

		return tx.Bucket(bucketBlocks).ForEach(func(k, v []byte) error {
			var br database.BlockRecord
			if err := json.Unmarshal(v, &br); err != nil {
				return fmt.Errorf("decode block %d: %w", binary.BigEndian.Uint64(k), err)
			}

			rec.Chain = append(rec.Chain, br)
			return nil
		})
	})
	if err != nil {
		return database.LedgerState{}, err
	}

	return database.ToLedgerState(rec)
}

// Reset will clear out the stored ledger.
func (b *Bolt) Reset() error {
	return b.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketBlocks} {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}

func indexKey(index uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, index)
	return key
}
