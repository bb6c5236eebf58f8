package database

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/pocketcoin/node/foundation/blockchain/signature"
)

// GenesisPrevHash is the previous hash recorded by the genesis block.
const GenesisPrevHash = "0"

// Block represents a group of transactions batched together.
type Block struct {
	Index         uint64
	TimeStamp     int64
	Trans         []Tx
	PrevBlockHash string
	Nonce         uint64
}

// NewBlock constructs an empty block that extends the block with the
// specified hash.
func NewBlock(index uint64, prevBlockHash string) Block {
	return Block{
		Index:         index,
		TimeStamp:     time.Now().UnixMilli(),
		Trans:         []Tx{},
		PrevBlockHash: prevBlockHash,
	}
}

// Hash returns the unique hash for the block.
func (b Block) Hash() string {
	return HashHeader(b, EncodeTxs(b.Trans))
}

// NewNonce moves the block to the next candidate in the proof of work
// search.
func (b *Block) NewNonce() {
	b.Nonce++
	b.TimeStamp = time.Now().UnixMilli()
}

// Size returns the number of bytes in the serialized block.
func (b Block) Size() int {
	data, err := json.Marshal(NewBlockRecord(b))
	if err != nil {
		return 0
	}
	return len(data)
}

// Coinbase returns the coinbase transaction in the block if one exists.
func (b Block) Coinbase() (Tx, bool) {
	for _, tx := range b.Trans {
		if tx.Type == TxCoinbase {
			return tx, true
		}
	}
	return Tx{}, false
}

// HashHeader hashes the block using an already encoded transaction list.
// The miner uses this to avoid encoding the transactions on every attempt.
func HashHeader(b Block, encodedTrans []byte) string {
	var sb strings.Builder
	sb.WriteString(strconv.FormatUint(b.Index, 10))
	sb.WriteString(b.PrevBlockHash)
	sb.WriteString(strconv.FormatInt(b.TimeStamp, 10))
	sb.Write(encodedTrans)
	sb.WriteString(strconv.FormatUint(b.Nonce, 10))

	return signature.Hash(sb.String())
}

// HashToInt converts a hex hash into its numeric value for comparison with
// a proof of work target.
func HashToInt(hash string) *big.Int {
	n, ok := new(big.Int).SetString(hash, 16)
	if !ok {
		return new(big.Int).Set(MaxTarget)
	}
	return n
}

// =============================================================================

// BlockRecord is the wire form of a block.
type BlockRecord struct {
	Index         uint64     `json:"index"`
	TimeStamp     int64      `json:"timestamp"`
	Trans         []TxRecord `json:"transactions"`
	PrevBlockHash string     `json:"previousHash"`
	Nonce         uint64     `json:"nonce"`
}

// NewBlockRecord constructs the wire form of the block.
func NewBlockRecord(b Block) BlockRecord {
	trans := make([]TxRecord, len(b.Trans))
	for i, tx := range b.Trans {
		trans[i] = NewTxRecord(tx)
	}

	return BlockRecord{
		Index:         b.Index,
		TimeStamp:     b.TimeStamp,
		Trans:         trans,
		PrevBlockHash: b.PrevBlockHash,
		Nonce:         b.Nonce,
	}
}

// ToBlock converts a wire record into a block, rejecting malformed records.
func ToBlock(rec BlockRecord) (Block, error) {
	if rec.PrevBlockHash == "" {
		return Block{}, fmt.Errorf("%w: block %d: missing previous hash", ErrInvalidRecord, rec.Index)
	}

	trans := make([]Tx, len(rec.Trans))
	for i, tr := range rec.Trans {
		tx, err := ToTx(tr)
		if err != nil {
			return Block{}, fmt.Errorf("block %d: tx[%d]: %w", rec.Index, i, err)
		}
		trans[i] = tx
	}

	b := Block{
		Index:         rec.Index,
		TimeStamp:     rec.TimeStamp,
		Trans:         trans,
		PrevBlockHash: rec.PrevBlockHash,
		Nonce:         rec.Nonce,
	}

	return b, nil
}
