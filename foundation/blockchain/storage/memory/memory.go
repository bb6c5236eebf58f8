// Package memory implements the ability to save and load the ledger in
// memory.
package memory

import (
	"sync"

	"github.com/pocketcoin/node/foundation/blockchain/database"
	"github.com/pocketcoin/node/foundation/blockchain/storage"
)

// Memory represents the serialization implementation for saving the ledger
// in memory. This implements the storage.Storage interface.
type Memory struct {
	mu     sync.RWMutex
	record *database.LedgerRecord
}

// New constructs an Memory value for use.
func New() *Memory {
	return &Memory{}
}

// Close in this implementation has nothing to do since everything
// is in memory.
func (m *Memory) Close() error {
	return nil
}

// Save replaces the stored ledger. The wire form is kept so later changes
// to the caller's values can't leak in.
func (m *Memory) Save(ls database.LedgerState) error {
	rec := database.NewLedgerRecord(ls)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.record = &rec
	return nil
}

// Load returns the stored ledger.
func (m *Memory) Load() (database.LedgerState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.record == nil {
		return database.LedgerState{}, storage.ErrNotFound
	}

	return database.ToLedgerState(*m.record)
}

// Reset will clear out the stored ledger.
func (m *Memory) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record = nil
	return nil
}
