// Package database handles the ledger: the retained chain of blocks, the
// snapshot of balances folded out of pruned blocks, and the consensus rules
// that decide which blocks may extend the chain.
package database

import (
	"errors"
	"fmt"
	"maps"
	"math/big"
	"slices"
	"time"

	"github.com/pocketcoin/node/foundation/blockchain/genesis"
)

// ErrInvalidBlock is returned by AddBlock when the block can't extend the
// chain. The underlying reason is wrapped.
var ErrInvalidBlock = errors.New("invalid block")

// maxClockDrift is how far into the future a block timestamp may be.
const maxClockDrift = 5 * time.Second

// =============================================================================

// Snapshot is the summary of every block pruned from the front of the chain.
type Snapshot struct {
	Height             uint64
	LastBlockHash      string
	LastBlockTimeStamp int64
	Balances           map[AccountID]int64

	// Target is the proof of work target in force after the front block of
	// the retained chain. TimeStamps holds the most recent pruned block
	// timestamps, oldest first, so retargeting can look past the front.
	Target     *big.Int
	TimeStamps []int64
}

// IsEmpty reports whether nothing has been pruned yet.
func (s Snapshot) IsEmpty() bool {
	return s.LastBlockHash == ""
}

func (s Snapshot) clone() Snapshot {
	s.Balances = maps.Clone(s.Balances)
	s.TimeStamps = slices.Clone(s.TimeStamps)
	if s.Target != nil {
		s.Target = new(big.Int).Set(s.Target)
	}
	return s
}

// =============================================================================

// Ledger manages the retained chain and the balances it implies. A Ledger
// is not safe for concurrent mutation; readers should work from a Clone.
type Ledger struct {
	genesis  genesis.Genesis
	chain    []Block
	targets  []*big.Int
	snapshot Snapshot
	tipHash  string
}

// New constructs a ledger holding only the genesis block.
func New(gen genesis.Genesis) (*Ledger, error) {
	if err := gen.Validate(); err != nil {
		return nil, err
	}

	gb := GenesisBlock(gen)

	l := Ledger{
		genesis: gen,
		chain:   []Block{gb},
		targets: []*big.Int{gen.Target()},
		tipHash: gb.Hash(),
	}

	return &l, nil
}

// GenesisBlock returns the first block of every chain built from the genesis.
func GenesisBlock(gen genesis.Genesis) Block {
	return Block{
		Index:         0,
		TimeStamp:     gen.TimeStamp,
		Trans:         []Tx{},
		PrevBlockHash: GenesisPrevHash,
	}
}

// newFromSnapshot constructs a ledger whose retained chain starts at the
// front block that follows the snapshot.
func newFromSnapshot(gen genesis.Genesis, snap Snapshot, front Block) *Ledger {
	target := snap.Target
	if target == nil {
		target = gen.Target()
	}

	l := Ledger{
		genesis:  gen,
		chain:    []Block{front},
		targets:  []*big.Int{target},
		snapshot: snap.clone(),
		tipHash:  front.Hash(),
	}
	l.snapshot.Target = target

	return &l
}

// Clone returns an independent copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	c := Ledger{
		genesis:  l.genesis,
		chain:    slices.Clone(l.chain),
		targets:  slices.Clone(l.targets),
		snapshot: l.snapshot.clone(),
		tipHash:  l.tipHash,
	}

	return &c
}

// Genesis returns the consensus parameters the ledger runs under.
func (l *Ledger) Genesis() genesis.Genesis {
	return l.genesis
}

// LatestBlock returns the tip of the chain.
func (l *Ledger) LatestBlock() Block {
	return l.chain[len(l.chain)-1]
}

// LatestBlockHash returns the hash of the tip of the chain.
func (l *Ledger) LatestBlockHash() string {
	return l.tipHash
}

// Length returns the number of blocks in the chain including pruned blocks.
func (l *Ledger) Length() uint64 {
	return l.LatestBlock().Index + 1
}

// Blocks returns a copy of the retained chain.
func (l *Ledger) Blocks() []Block {
	blocks := slices.Clone(l.chain)
	for i := range blocks {
		blocks[i].Trans = slices.Clone(blocks[i].Trans)
	}
	return blocks
}

// Snapshot returns a copy of the pruned history summary.
func (l *Ledger) Snapshot() Snapshot {
	return l.snapshot.clone()
}

// Target returns the current proof of work target.
func (l *Ledger) Target() *big.Int {
	return new(big.Int).Set(l.targets[len(l.targets)-1])
}

// BlockReward returns the coinbase reward for the block at the index.
func (l *Ledger) BlockReward(index uint64) uint64 {
	return l.genesis.BlockReward(index)
}

// BlockTemplate returns an empty block extending the current tip.
func (l *Ledger) BlockTemplate() Block {
	return NewBlock(l.LatestBlock().Index+1, l.tipHash)
}

// =============================================================================

// AddBlock validates the block and appends it to the chain, recomputing the
// target and pruning the front of the chain as needed.
func (l *Ledger) AddBlock(b Block) error {
	if err := l.Validate(b); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBlock, err)
	}

	l.chain = append(l.chain, b)
	l.tipHash = b.Hash()
	l.targets = append(l.targets, l.recomputeTarget())
	l.prune()

	return nil
}

// ValidToInsert reports whether the block can extend the chain.
func (l *Ledger) ValidToInsert(b Block) bool {
	return l.Validate(b) == nil
}

// Validate returns the first reason the block can't extend the chain.
func (l *Ledger) Validate(b Block) error {
	if err := l.ValidateSeal(b, b.Hash()); err != nil {
		return err
	}

	return l.ValidateContents(b)
}

// ValidateSeal checks the header rules for a block with the given hash:
// index continuity, timestamp bounds, linkage and proof of work.
func (l *Ledger) ValidateSeal(b Block, hash string) error {
	tip := l.LatestBlock()

	if b.Index != tip.Index+1 {
		return fmt.Errorf("block index is not the next index, got %d, exp %d", b.Index, tip.Index+1)
	}

	if b.TimeStamp < tip.TimeStamp {
		return fmt.Errorf("block timestamp %d is before parent timestamp %d", b.TimeStamp, tip.TimeStamp)
	}

	if limit := time.Now().Add(maxClockDrift).UnixMilli(); b.TimeStamp > limit {
		return fmt.Errorf("block timestamp %d is too far in the future", b.TimeStamp)
	}

	if b.PrevBlockHash != l.tipHash {
		return fmt.Errorf("previous block hash doesn't match our latest block, got %s, exp %s", b.PrevBlockHash, l.tipHash)
	}

	if !l.isHashSolved(hash) {
		return fmt.Errorf("block hash %s is above the target", hash)
	}

	return nil
}

// ValidateContents checks the body rules for a block: the size bound and
// the transaction set.
func (l *Ledger) ValidateContents(b Block) error {
	if size := b.Size(); size > l.genesis.MaxBlockSize {
		return fmt.Errorf("block size %d exceeds maximum %d", size, l.genesis.MaxBlockSize)
	}

	return l.verifyBlockTransactions(b)
}

func (l *Ledger) isHashSolved(hash string) bool {
	return HashToInt(hash).Cmp(l.targets[len(l.targets)-1]) <= 0
}

// verifyBlockTransactions checks every transaction in the block is
// affordable in order and the coinbase pays exactly the reward plus fees.
func (l *Ledger) verifyBlockTransactions(b Block) error {
	var coinbases int
	for _, tx := range b.Trans {
		if tx.Type == TxCoinbase {
			coinbases++
		}
	}
	if coinbases > 1 {
		return fmt.Errorf("block has %d coinbase transactions", coinbases)
	}

	confirmed := l.confirmedHashes()
	seen := make(map[string]struct{}, len(b.Trans))

	var fees uint64
	for i, tx := range b.Trans {
		if tx.IsExemptFromSignature() {
			continue
		}

		if !tx.Verify() {
			return fmt.Errorf("tx[%d] %s: invalid signature", i, tx)
		}

		hash := tx.Hash()
		if _, exists := confirmed[hash]; exists {
			return fmt.Errorf("tx[%d] %s: already confirmed", i, tx)
		}
		if _, exists := seen[hash]; exists {
			return fmt.Errorf("tx[%d] %s: duplicated in block", i, tx)
		}
		seen[hash] = struct{}{}

		balance := l.ConfirmedBalance(tx.FromID)
		for _, prior := range b.Trans[:i] {
			balance += effect(prior, tx.FromID)
		}

		if balance < tx.Spend() {
			return fmt.Errorf("tx[%d] %s: insufficient funds, balance %d", i, tx, balance)
		}

		fees += tx.Fee
	}

	if cb, exists := b.Coinbase(); exists {
		exp := l.BlockReward(b.Index) + fees
		if cb.Amount != exp {
			return fmt.Errorf("coinbase amount %d, exp %d", cb.Amount, exp)
		}
	}

	return nil
}

// =============================================================================

// IsValidTransaction reports whether the standard transaction could be
// included in the next block on its own.
func (l *Ledger) IsValidTransaction(tx Tx) bool {
	if tx.Type != TxStandard || !tx.Verify() {
		return false
	}

	if l.ConfirmedBalance(tx.FromID) < tx.Spend() {
		return false
	}

	return !l.HasTransactionHash(tx.Hash())
}

// HasTransactionHash reports whether a transaction with the hash is
// confirmed on the retained chain. Pruned transactions are not remembered.
func (l *Ledger) HasTransactionHash(hash string) bool {
	for _, b := range l.chain {
		for _, tx := range b.Trans {
			if tx.Hash() == hash {
				return true
			}
		}
	}
	return false
}

func (l *Ledger) confirmedHashes() map[string]struct{} {
	hashes := make(map[string]struct{})
	for _, b := range l.chain {
		for _, tx := range b.Trans {
			hashes[tx.Hash()] = struct{}{}
		}
	}
	return hashes
}

// TotalWork returns the sum of the expected work behind every retained block.
func (l *Ledger) TotalWork() *big.Int {
	total := new(big.Int)
	for _, b := range l.chain {
		total.Add(total, Work(b.Hash()))
	}
	return total
}

// Work returns the expected number of attempts needed to find the hash.
func Work(hash string) *big.Int {
	d := new(big.Int).Add(HashToInt(hash), big.NewInt(1))
	return d.Quo(MaxTarget, d)
}

// =============================================================================

// prune folds blocks off the front of the chain into the snapshot until the
// chain is within the retention limit.
func (l *Ledger) prune() {
	for len(l.chain) > l.genesis.MaxChainLength {
		pruned := l.chain[0]

		l.chain = slices.Clone(l.chain[1:])
		l.targets = slices.Clone(l.targets[1:])

		if l.snapshot.Balances == nil {
			l.snapshot.Balances = make(map[AccountID]int64)
		}

		for _, tx := range pruned.Trans {
			if !tx.Verify() {
				continue
			}

			if tx.Type != TxCoinbase {
				l.snapshot.Balances[tx.FromID] -= tx.Spend()
			}
			l.snapshot.Balances[tx.ToID] += int64(tx.Amount)

			for _, id := range []AccountID{tx.FromID, tx.ToID} {
				if bal, exists := l.snapshot.Balances[id]; exists && bal == 0 {
					delete(l.snapshot.Balances, id)
				}
			}
		}

		l.snapshot.Height = pruned.Index
		l.snapshot.LastBlockHash = l.chain[0].PrevBlockHash
		l.snapshot.LastBlockTimeStamp = pruned.TimeStamp
		l.snapshot.Target = l.targets[0]

		l.snapshot.TimeStamps = append(l.snapshot.TimeStamps, pruned.TimeStamp)
		if n := len(l.snapshot.TimeStamps) - int(l.genesis.RetargetInterval); n > 0 {
			l.snapshot.TimeStamps = slices.Clone(l.snapshot.TimeStamps[n:])
		}
	}
}

// effect returns how the transaction changes the account's balance.
func effect(tx Tx, id AccountID) int64 {
	var delta int64
	if tx.Type != TxCoinbase && tx.FromID == id {
		delta -= tx.Spend()
	}
	if tx.ToID == id {
		delta += int64(tx.Amount)
	}
	return delta
}
