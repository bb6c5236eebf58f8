// Package commands contains the functionality for the set of commands
// currently supported by the admin tool.
package commands

import (
	"errors"
	"fmt"

	"github.com/pocketcoin/node/foundation/blockchain/database"
	"github.com/pocketcoin/node/foundation/blockchain/genesis"
	"github.com/pocketcoin/node/foundation/blockchain/storage"
)

// ErrHelp is returned when the command isn't known.
var ErrHelp = errors.New("provide a command")

// loadLedger replays the saved ledger so the admin tool only reports a
// chain the node would accept.
func loadLedger(gen genesis.Genesis, strg storage.Storage) (*database.Ledger, error) {
	ls, err := strg.Load()
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}

	return database.ValidateFullChain(gen, ls)
}
