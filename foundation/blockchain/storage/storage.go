// Package storage defines how a node keeps its ledger across restarts. The
// mempool is never stored.
package storage

import (
	"errors"

	"github.com/pocketcoin/node/foundation/blockchain/database"
)

// ErrNotFound is returned by Load when nothing has been saved yet.
var ErrNotFound = errors.New("ledger not found")

// Storage interface represents the behavior required to be implemented by any
// package providing support for saving and loading the ledger.
type Storage interface {
	Save(ls database.LedgerState) error
	Load() (database.LedgerState, error)
	Reset() error
	Close() error
}
