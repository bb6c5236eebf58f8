package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/pocketcoin/node/foundation/blockchain/database"
	"github.com/pocketcoin/node/foundation/blockchain/genesis"
	"github.com/pocketcoin/node/foundation/blockchain/storage"
)

// maxTransactions caps the transactions listed for an account.
const maxTransactions = 50

// Transactions writes the latest confirmed transactions for the account.
func Transactions(w io.Writer, account string, gen genesis.Genesis, strg storage.Storage) error {
	if account == "" {
		return errors.New("account is required")
	}

	accountID, err := database.ToAccountID(account)
	if err != nil {
		return err
	}

	ledger, err := loadLedger(gen, strg)
	if err != nil {
		return err
	}

	for _, tx := range ledger.LatestTransactions(accountID, maxTransactions) {
		fmt.Fprintf(w, "Hash: %s  %s\n", tx.Hash(), tx)
	}

	return nil
}

// Chain writes a summary of every retained block.
func Chain(w io.Writer, gen genesis.Genesis, strg storage.Storage) error {
	ledger, err := loadLedger(gen, strg)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Length: %d  TotalWork: %s  Target: %064x\n\n", ledger.Length(), ledger.TotalWork(), ledger.Target())

	for _, b := range ledger.Blocks() {
		var fees uint64
		for _, tx := range b.Trans {
			if tx.Type == database.TxStandard {
				fees += tx.Fee
			}
		}

		fmt.Fprintf(w, "Block: %d  Hash: %s  Txs: %d  Fees: %d  Size: %d\n", b.Index, b.Hash(), len(b.Trans), fees, b.Size())
	}

	return nil
}
