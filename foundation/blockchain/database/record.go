package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/pocketcoin/node/foundation/blockchain/genesis"
)

// SnapshotRecord is the wire form of a snapshot. Every field is omitted
// until the first block is pruned.
type SnapshotRecord struct {
	Height             uint64           `json:"height,omitempty"`
	LastBlockHash      string           `json:"lastBlockHash,omitempty"`
	LastBlockTimeStamp int64            `json:"lastBlockTimestamp,omitempty"`
	Ledger             map[string]int64 `json:"ledger,omitempty"`
	Target             *big.Int         `json:"target,omitempty"`
	TimeStamps         []int64          `json:"timestamps,omitempty"`
}

// LedgerRecord is the wire form of a ledger as shared with peers and
// written to storage.
type LedgerRecord struct {
	Snapshot SnapshotRecord `json:"snapshot"`
	Target   *big.Int       `json:"target"`
	Chain    []BlockRecord  `json:"chain"`
}

// LedgerState is a decoded but unverified ledger. Only ValidateFullChain
// turns it into a Ledger.
type LedgerState struct {
	Snapshot Snapshot
	Target   *big.Int
	Blocks   []Block
}

// =============================================================================

// State returns the ledger's contents.
func (l *Ledger) State() LedgerState {
	return LedgerState{
		Snapshot: l.Snapshot(),
		Target:   l.Target(),
		Blocks:   l.Blocks(),
	}
}

// Encode returns the JSON form of the ledger.
func (l *Ledger) Encode() ([]byte, error) {
	return json.Marshal(NewLedgerRecord(l.State()))
}

// NewLedgerRecord constructs the wire form of the ledger state.
func NewLedgerRecord(ls LedgerState) LedgerRecord {
	snap := SnapshotRecord{
		Height:             ls.Snapshot.Height,
		LastBlockHash:      ls.Snapshot.LastBlockHash,
		LastBlockTimeStamp: ls.Snapshot.LastBlockTimeStamp,
		Target:             ls.Snapshot.Target,
		TimeStamps:         ls.Snapshot.TimeStamps,
	}

	if len(ls.Snapshot.Balances) > 0 {
		snap.Ledger = make(map[string]int64, len(ls.Snapshot.Balances))
		for id, bal := range ls.Snapshot.Balances {
			snap.Ledger[string(id)] = bal
		}
	}

	chain := make([]BlockRecord, len(ls.Blocks))
	for i, b := range ls.Blocks {
		chain[i] = NewBlockRecord(b)
	}

	return LedgerRecord{
		Snapshot: snap,
		Target:   ls.Target,
		Chain:    chain,
	}
}

// ToLedgerState converts a wire record into a ledger state, rejecting
// malformed records. Consensus rules are not checked here.
func ToLedgerState(rec LedgerRecord) (LedgerState, error) {
	if len(rec.Chain) == 0 {
		return LedgerState{}, fmt.Errorf("%w: empty chain", ErrInvalidRecord)
	}

	if rec.Target == nil || rec.Target.Sign() <= 0 || rec.Target.Cmp(MaxTarget) > 0 {
		return LedgerState{}, fmt.Errorf("%w: target out of range", ErrInvalidRecord)
	}

	snap, err := toSnapshot(rec.Snapshot)
	if err != nil {
		return LedgerState{}, err
	}

	blocks := make([]Block, len(rec.Chain))
	for i, br := range rec.Chain {
		b, err := ToBlock(br)
		if err != nil {
			return LedgerState{}, err
		}

		if i > 0 && b.Index != blocks[i-1].Index+1 {
			return LedgerState{}, fmt.Errorf("%w: block %d does not follow block %d", ErrInvalidRecord, b.Index, blocks[i-1].Index)
		}

		blocks[i] = b
	}

	ls := LedgerState{
		Snapshot: snap,
		Target:   new(big.Int).Set(rec.Target),
		Blocks:   blocks,
	}

	return ls, nil
}

func toSnapshot(rec SnapshotRecord) (Snapshot, error) {
	if rec.LastBlockHash == "" {
		if rec.Height != 0 || len(rec.Ledger) > 0 || rec.Target != nil || len(rec.TimeStamps) > 0 {
			return Snapshot{}, fmt.Errorf("%w: snapshot without a last block hash", ErrInvalidRecord)
		}
		return Snapshot{}, nil
	}

	if rec.Target != nil && (rec.Target.Sign() <= 0 || rec.Target.Cmp(MaxTarget) > 0) {
		return Snapshot{}, fmt.Errorf("%w: snapshot target out of range", ErrInvalidRecord)
	}

	snap := Snapshot{
		Height:             rec.Height,
		LastBlockHash:      rec.LastBlockHash,
		LastBlockTimeStamp: rec.LastBlockTimeStamp,
		Balances:           make(map[AccountID]int64, len(rec.Ledger)),
		TimeStamps:         append([]int64(nil), rec.TimeStamps...),
	}

	if rec.Target != nil {
		snap.Target = new(big.Int).Set(rec.Target)
	}

	for addr, bal := range rec.Ledger {
		id, err := ToAccountID(addr)
		if err != nil {
			return Snapshot{}, fmt.Errorf("%w: snapshot account %q: %w", ErrInvalidRecord, addr, err)
		}
		if bal < 0 {
			return Snapshot{}, fmt.Errorf("%w: snapshot account %s has negative balance", ErrInvalidRecord, addr)
		}
		snap.Balances[id] = bal
	}

	return snap, nil
}

// DecodeLedger parses the JSON form of a ledger.
func DecodeLedger(data []byte) (LedgerState, error) {
	var rec LedgerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return LedgerState{}, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	return ToLedgerState(rec)
}

// =============================================================================

// ValidateFullChain replays the ledger state block by block into a fresh
// ledger built from the genesis and returns it. The state is accepted only
// if every block replays.
func ValidateFullChain(gen genesis.Genesis, ls LedgerState) (*Ledger, error) {
	if err := gen.Validate(); err != nil {
		return nil, err
	}

	if len(ls.Blocks) == 0 {
		return nil, errors.New("empty chain")
	}

	front := ls.Blocks[0]

	var l *Ledger
	switch {
	case ls.Snapshot.IsEmpty():
		var err error
		if l, err = New(gen); err != nil {
			return nil, err
		}

		if front.Index != 0 || front.Hash() != l.tipHash {
			return nil, errors.New("chain does not start with our genesis block")
		}

	default:
		snap := ls.Snapshot
		if front.Index != snap.Height+1 {
			return nil, fmt.Errorf("front block %d does not follow snapshot height %d", front.Index, snap.Height)
		}

		if front.PrevBlockHash != snap.LastBlockHash {
			return nil, errors.New("front block does not link to the snapshot")
		}

		if front.TimeStamp < snap.LastBlockTimeStamp {
			return nil, errors.New("front block is older than the snapshot")
		}

		l = newFromSnapshot(gen, snap, front)
	}

	for _, b := range ls.Blocks[1:] {
		if err := l.AddBlock(b); err != nil {
			return nil, fmt.Errorf("replay block %d: %w", b.Index, err)
		}
	}

	return l, nil
}
