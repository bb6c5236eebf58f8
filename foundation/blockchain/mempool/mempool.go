// Package mempool maintains the mempool for the blockchain.
package mempool

import (
	"slices"
	"sync"

	"github.com/pocketcoin/node/foundation/blockchain/database"
	"github.com/pocketcoin/node/foundation/blockchain/mempool/selector"
)

// Validator is the behavior needed to decide which transactions may stay
// in the pool.
type Validator interface {
	IsValidTransaction(tx database.Tx) bool
}

// Mempool represents a cache of pending transactions kept in arrival order.
// The pool is never persisted.
type Mempool struct {
	pool     []database.Tx
	mu       sync.RWMutex
	selectFn selector.Func
}

// New constructs a new mempool using the default sort strategy.
func New() (*Mempool, error) {
	return NewWithStrategy(selector.StrategyFIFO)
}

// NewWithStrategy constructs a new mempool with specified sort strategy.
func NewWithStrategy(strategy string) (*Mempool, error) {
	selectFn, err := selector.Retrieve(strategy)
	if err != nil {
		return nil, err
	}

	mp := Mempool{
		selectFn: selectFn,
	}

	return &mp, nil
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Add appends a transaction to the pool without validation. CleanUp
// removes whatever doesn't belong.
func (mp *Mempool) Add(tx database.Tx) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = append(mp.pool, tx)

	return len(mp.pool)
}

// Delete removes the transaction with the hash from the pool.
func (mp *Mempool) Delete(hash string) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = slices.DeleteFunc(mp.pool, func(tx database.Tx) bool {
		return tx.Hash() == hash
	})
}

// CleanUp keeps only the first copy of each transaction that the validator
// still accepts. It returns the number of transactions removed.
func (mp *Mempool) CleanUp(v Validator) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	seen := make(map[string]struct{}, len(mp.pool))
	kept := make([]database.Tx, 0, len(mp.pool))

	for _, tx := range mp.pool {
		hash := tx.Hash()
		if _, exists := seen[hash]; exists {
			continue
		}
		seen[hash] = struct{}{}

		if v.IsValidTransaction(tx) {
			kept = append(kept, tx)
		}
	}

	removed := len(mp.pool) - len(kept)
	mp.pool = kept

	return removed
}

// HasTransaction reports whether a transaction with the hash is pending.
func (mp *Mempool) HasTransaction(hash string) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	for _, tx := range mp.pool {
		if tx.Hash() == hash {
			return true
		}
	}
	return false
}

// Copy returns the pending transactions in arrival order.
func (mp *Mempool) Copy() []database.Tx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return slices.Clone(mp.pool)
}

// Serialize returns the wire form of the pending transactions in arrival
// order.
func (mp *Mempool) Serialize() []database.TxRecord {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	recs := make([]database.TxRecord, len(mp.pool))
	for i, tx := range mp.pool {
		recs[i] = database.NewTxRecord(tx)
	}
	return recs
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = nil
}

// PickBest uses the configured sort strategy to return the next set
// of transactions for the next block. Passing -1 returns every
// transaction in strategy order.
func (mp *Mempool) PickBest(howMany int) []database.Tx {
	mp.mu.RLock()
	txs := slices.Clone(mp.pool)
	mp.mu.RUnlock()

	return mp.selectFn(txs, howMany)
}
