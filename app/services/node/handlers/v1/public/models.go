package public

import (
	"github.com/pocketcoin/node/business/sys/validate"
	"github.com/pocketcoin/node/foundation/blockchain/database"
)

type balance struct {
	Account database.AccountID `json:"account"`
	Name    string             `json:"name,omitempty"`
	Balance int64              `json:"balance"`
}

type balances struct {
	LatestBlock string    `json:"latest_block"`
	Uncommitted int       `json:"uncommitted"`
	Balances    []balance `json:"balances"`
}

type tx struct {
	Hash      string                    `json:"hash"`
	Type      database.TxType           `json:"type"`
	From      database.AccountID        `json:"from,omitempty"`
	FromName  string                    `json:"from_name,omitempty"`
	To        database.AccountID        `json:"to"`
	ToName    string                    `json:"to_name,omitempty"`
	Amount    uint64                    `json:"amount"`
	Fee       uint64                    `json:"fee"`
	TimeStamp int64                     `json:"timestamp"`
	Signature *database.SignatureRecord `json:"signature,omitempty"`
}

type block struct {
	Index        uint64 `json:"index"`
	Hash         string `json:"hash"`
	PreviousHash string `json:"previousHash"`
	TimeStamp    int64  `json:"timestamp"`
	Nonce        uint64 `json:"nonce"`
	Trans        []tx   `json:"transactions"`
}

// =============================================================================

// newTx is what a wallet posts to submit a signed transaction. It's the
// wire form of a standard transaction.
type newTx struct {
	From      string                    `json:"from" validate:"required,address"`
	To        string                    `json:"to" validate:"required,address"`
	Amount    uint64                    `json:"amount" validate:"gt=0"`
	Fee       uint64                    `json:"fee"`
	TimeStamp int64                     `json:"timestamp" validate:"gt=0"`
	Type      string                    `json:"type" validate:"required,eq=standard"`
	Signature *database.SignatureRecord `json:"signature" validate:"required"`
}

// Validate checks the data in the model is considered clean.
func (ntx newTx) Validate() error {
	return validate.Check(ntx)
}

// toTx converts the submission into a transaction. The signature is
// checked by the ledger.
func (ntx newTx) toTx() (database.Tx, error) {
	from := ntx.From

	rec := database.TxRecord{
		From:      &from,
		To:        ntx.To,
		Amount:    ntx.Amount,
		Fee:       ntx.Fee,
		TimeStamp: ntx.TimeStamp,
		Type:      ntx.Type,
		Signature: ntx.Signature,
	}

	return database.ToTx(rec)
}
