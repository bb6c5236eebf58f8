package selector

import (
	"sort"

	"github.com/pocketcoin/node/foundation/blockchain/database"
)

// feeSelect returns transactions with the best fee while respecting the
// arrival order for each sender.
var feeSelect = func(transactions []database.Tx, howMany int) []database.Tx {
	if howMany < 0 {
		howMany = len(transactions)
	}

	/*
		Arrival: Bill:150, Pavl:75, Bill:250, Edua:100, Pavl:200, Edua:75
	*/

	// Group the transactions by sender keeping arrival order inside each
	// group and across the first transaction of each group.
	var senders []database.AccountID
	m := make(map[database.AccountID][]database.Tx)
	for _, tx := range transactions {
		if _, exists := m[tx.FromID]; !exists {
			senders = append(senders, tx.FromID)
		}
		m[tx.FromID] = append(m[tx.FromID], tx)
	}

	/*
		Bill: 150, 250
		Pavl:  75, 200
		Edua: 100,  75
	*/

	// Pick the first transaction in the slice for each sender. Each
	// iteration represents a new row of selections. Keep doing that until
	// all the transactions have been selected.
	var rows [][]database.Tx
	for {
		var row []database.Tx
		for _, from := range senders {
			if len(m[from]) > 0 {
				row = append(row, m[from][0])
				m[from] = m[from][1:]
			}
		}
		if row == nil {
			break
		}
		rows = append(rows, row)
	}

	/*
		0: Bill:150, Pavl:75,  Edua:100
		1: Bill:250, Pavl:200, Edua:75
	*/

	// Sort each row by fee unless we will take all transactions from that
	// row anyway. Then try to select the number of requested transactions.
	// Keep pulling transactions from each row until the amount is fulfilled
	// or there are no more transactions.
	final := []database.Tx{}
	for _, row := range rows {
		need := howMany - len(final)
		if len(row) > need {
			sort.Stable(byFee(row))
			final = append(final, row[:need]...)
			break
		}
		final = append(final, row...)
	}

	/*
		howMany 4: Bill:150, Pavl:75, Edua:100, Bill:250
	*/

	return final
}
