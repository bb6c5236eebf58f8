package database

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pocketcoin/node/foundation/blockchain/signature"
)

// ErrInvalidRecord is returned when a wire record can't be converted into
// a domain value.
var ErrInvalidRecord = errors.New("invalid record")

// TxType identifies the variant of a transaction.
type TxType string

// Set of transaction variants.
const (
	TxStandard TxType = "standard"
	TxCoinbase TxType = "coinbase"
)

// =============================================================================

// TxSignature binds a signature to the public key that produced it.
type TxSignature struct {
	PublicKey string
	signature.Signature
}

// Tx is the transactional information between two parties. A coinbase
// transaction has no from account and carries no signature.
type Tx struct {
	Type      TxType
	FromID    AccountID
	ToID      AccountID
	Amount    uint64
	Fee       uint64
	TimeStamp int64
	Sig       *TxSignature
}

// NewTx constructs a new standard transaction stamped with the current time.
func NewTx(fromID AccountID, toID AccountID, amount uint64, fee uint64) (Tx, error) {
	if !fromID.IsAccountID() {
		return Tx{}, fmt.Errorf("from account is not properly formatted")
	}

	if !toID.IsAccountID() {
		return Tx{}, fmt.Errorf("to account is not properly formatted")
	}

	if fee > math.MaxInt64 || amount > math.MaxInt64-fee {
		return Tx{}, fmt.Errorf("amount plus fee overflows")
	}

	tx := Tx{
		Type:      TxStandard,
		FromID:    fromID,
		ToID:      toID,
		Amount:    amount,
		Fee:       fee,
		TimeStamp: time.Now().UnixMilli(),
	}

	return tx, nil
}

// NewCoinbaseTx constructs the transaction that pays the block reward and
// fees to the miner.
func NewCoinbaseTx(toID AccountID, amount uint64) Tx {
	return Tx{
		Type:      TxCoinbase,
		ToID:      toID,
		Amount:    amount,
		TimeStamp: time.Now().UnixMilli(),
	}
}

// Hash returns the content hash of the transaction. The signature is not
// part of the hash.
func (tx Tx) Hash() string {
	var b strings.Builder
	b.WriteString(string(tx.FromID))
	b.WriteString(string(tx.ToID))
	b.WriteString(strconv.FormatUint(tx.Amount, 10))
	b.WriteString(strconv.FormatUint(tx.Fee, 10))
	b.WriteString(string(tx.Type))
	b.WriteString(strconv.FormatInt(tx.TimeStamp, 10))

	return signature.Hash(b.String())
}

// Sign uses the specified private key to sign the transaction.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (Tx, error) {
	sig, err := signature.Sign(privateKey, tx.Hash())
	if err != nil {
		return Tx{}, err
	}

	tx.Sig = &TxSignature{
		PublicKey: signature.PublicKeyHex(privateKey),
		Signature: sig,
	}

	return tx, nil
}

// IsExemptFromSignature reports whether the transaction is valid without
// a signature.
func (tx Tx) IsExemptFromSignature() bool {
	return tx.Type == TxCoinbase
}

// Verify checks the signature was produced by the owner of the from account
// over this transaction's content.
func (tx Tx) Verify() bool {
	switch tx.Type {
	case TxCoinbase:
		return true

	case TxStandard:
		if tx.Sig == nil {
			return false
		}

		if PublicKeyToAccountID(tx.Sig.PublicKey) != tx.FromID {
			return false
		}

		return signature.Verify(tx.Sig.PublicKey, tx.Hash(), tx.Sig.Signature)
	}

	return false
}

// Spend returns the total amount debited from the sender.
func (tx Tx) Spend() int64 {
	return int64(tx.Amount + tx.Fee)
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	if tx.Type == TxCoinbase {
		return fmt.Sprintf("coinbase->%s:%d", tx.ToID, tx.Amount)
	}
	return fmt.Sprintf("%s->%s:%d+%d", tx.FromID, tx.ToID, tx.Amount, tx.Fee)
}

// =============================================================================

// SignatureRecord is the wire form of a signature: a two element array of
// the public key and the {r, s} pair.
type SignatureRecord struct {
	PublicKey string
	R         string
	S         string
}

// MarshalJSON implements the json.Marshaler interface.
func (sr SignatureRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{sr.PublicKey, signature.Signature{R: sr.R, S: sr.S}})
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (sr *SignatureRecord) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}

	if len(parts) != 2 {
		return errors.New("signature must hold a public key and an {r, s} pair")
	}

	var pub string
	if err := json.Unmarshal(parts[0], &pub); err != nil {
		return fmt.Errorf("signature public key: %w", err)
	}

	var rs signature.Signature
	if err := json.Unmarshal(parts[1], &rs); err != nil {
		return fmt.Errorf("signature values: %w", err)
	}

	sr.PublicKey = pub
	sr.R = rs.R
	sr.S = rs.S

	return nil
}

// TxRecord is the wire form of a transaction.
type TxRecord struct {
	From      *string          `json:"from"`
	To        string           `json:"to"`
	Amount    uint64           `json:"amount"`
	Fee       uint64           `json:"fee"`
	TimeStamp int64            `json:"timestamp"`
	Type      string           `json:"type"`
	Signature *SignatureRecord `json:"signature"`
}

// NewTxRecord constructs the wire form of the transaction.
func NewTxRecord(tx Tx) TxRecord {
	rec := TxRecord{
		To:        string(tx.ToID),
		Amount:    tx.Amount,
		Fee:       tx.Fee,
		TimeStamp: tx.TimeStamp,
		Type:      string(tx.Type),
	}

	if tx.Type != TxCoinbase {
		from := string(tx.FromID)
		rec.From = &from
	}

	if tx.Sig != nil {
		rec.Signature = &SignatureRecord{
			PublicKey: tx.Sig.PublicKey,
			R:         tx.Sig.R,
			S:         tx.Sig.S,
		}
	}

	return rec
}

// ToTx converts a wire record into a transaction, rejecting malformed
// records. Signatures are not verified here.
func ToTx(rec TxRecord) (Tx, error) {
	toID, err := ToAccountID(rec.To)
	if err != nil {
		return Tx{}, fmt.Errorf("%w: to: %w", ErrInvalidRecord, err)
	}

	if rec.Fee > math.MaxInt64 || rec.Amount > math.MaxInt64-rec.Fee {
		return Tx{}, fmt.Errorf("%w: amount plus fee overflows", ErrInvalidRecord)
	}

	tx := Tx{
		Type:      TxType(rec.Type),
		ToID:      toID,
		Amount:    rec.Amount,
		Fee:       rec.Fee,
		TimeStamp: rec.TimeStamp,
	}

	switch tx.Type {
	case TxCoinbase:
		if rec.From != nil {
			return Tx{}, fmt.Errorf("%w: coinbase must not have a from account", ErrInvalidRecord)
		}
		if rec.Signature != nil {
			return Tx{}, fmt.Errorf("%w: coinbase must not be signed", ErrInvalidRecord)
		}
		if rec.Fee != 0 {
			return Tx{}, fmt.Errorf("%w: coinbase must not pay a fee", ErrInvalidRecord)
		}

	case TxStandard:
		if rec.From == nil {
			return Tx{}, fmt.Errorf("%w: missing from account", ErrInvalidRecord)
		}

		fromID, err := ToAccountID(*rec.From)
		if err != nil {
			return Tx{}, fmt.Errorf("%w: from: %w", ErrInvalidRecord, err)
		}
		tx.FromID = fromID

		if rec.Signature == nil {
			return Tx{}, fmt.Errorf("%w: missing signature", ErrInvalidRecord)
		}

		if !signature.IsPublicKey(rec.Signature.PublicKey) {
			return Tx{}, fmt.Errorf("%w: malformed signature public key", ErrInvalidRecord)
		}

		tx.Sig = &TxSignature{
			PublicKey: rec.Signature.PublicKey,
			Signature: signature.Signature{R: rec.Signature.R, S: rec.Signature.S},
		}

	default:
		return Tx{}, fmt.Errorf("%w: unknown transaction type %q", ErrInvalidRecord, rec.Type)
	}

	return tx, nil
}

// DecodeTxs parses a JSON array of transaction records.
func DecodeTxs(data []byte) ([]Tx, error) {
	var recs []TxRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	txs := make([]Tx, len(recs))
	for i, rec := range recs {
		tx, err := ToTx(rec)
		if err != nil {
			return nil, fmt.Errorf("tx[%d]: %w", i, err)
		}
		txs[i] = tx
	}

	return txs, nil
}

// EncodeTxs produces the JSON array of transaction records.
func EncodeTxs(txs []Tx) []byte {
	recs := make([]TxRecord, len(txs))
	for i, tx := range txs {
		recs[i] = NewTxRecord(tx)
	}

	// A slice of plain records always marshals.
	data, _ := json.Marshal(recs)
	return data
}
