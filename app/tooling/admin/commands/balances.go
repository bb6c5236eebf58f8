package commands

import (
	"fmt"
	"io"

	"github.com/pocketcoin/node/foundation/blockchain/database"
	"github.com/pocketcoin/node/foundation/blockchain/genesis"
	"github.com/pocketcoin/node/foundation/blockchain/storage"
)

// Balances writes the confirmed balances, or only the balance of the
// account when one is provided.
func Balances(w io.Writer, account string, gen genesis.Genesis, strg storage.Storage) error {
	ledger, err := loadLedger(gen, strg)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "LatestBlockHash: %s\n\n", ledger.LatestBlockHash())

	if account != "" {
		accountID, err := database.ToAccountID(account)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Account: %s  Balance: %d\n", accountID, ledger.ConfirmedBalance(accountID))
		return nil
	}

	for _, bal := range ledger.Balances() {
		fmt.Fprintf(w, "Account: %s  Balance: %d\n", bal.AccountID, bal.Balance)
	}

	return nil
}
