package selector

import (
	"github.com/pocketcoin/node/foundation/blockchain/database"
)

// fifoSelect returns transactions in the order they arrived.
var fifoSelect = func(transactions []database.Tx, howMany int) []database.Tx {
	if howMany < 0 || howMany > len(transactions) {
		howMany = len(transactions)
	}

	final := make([]database.Tx, howMany)
	copy(final, transactions)

	return final
}
