// Package miner performs the proof of work search for the next block. A
// search runs on its own goroutine against private copies of the ledger and
// mempool and reports a single result.
package miner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pocketcoin/node/foundation/blockchain/database"
)

// ErrCancelled is reported when a search is cancelled before it finds a
// block.
var ErrCancelled = context.Canceled

// nonceReserve is room kept in the block for the nonce to grow to its
// widest decimal form while searching.
var nonceReserve = len(strconv.FormatUint(math.MaxUint64, 10)) - 1

// EventHandler defines a function that is called when events
// occur in the processing of mining a block.
type EventHandler func(v string, args ...any)

// Config represents the configuration required to construct a miner.
type Config struct {
	Beneficiary database.AccountID
	EvHandler   EventHandler
}

// Result is the outcome of one search, tagged with the generation of the
// task that produced it.
type Result struct {
	Generation uint64
	Block      database.Block
	Duration   time.Duration
	Err        error
}

// =============================================================================

// Miner starts searches and collects their results on a single channel.
type Miner struct {
	beneficiary database.AccountID
	evHandler   EventHandler
	generation  atomic.Uint64
	results     chan Result
	wg          sync.WaitGroup
	shut        chan struct{}
	shutOnce    sync.Once
}

// New constructs a miner that pays rewards to the beneficiary.
func New(cfg Config) (*Miner, error) {
	if !cfg.Beneficiary.IsAccountID() {
		return nil, fmt.Errorf("beneficiary %q is not a valid account", cfg.Beneficiary)
	}

	ev := cfg.EvHandler
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	m := Miner{
		beneficiary: cfg.Beneficiary,
		evHandler:   ev,
		results:     make(chan Result, 1),
		shut:        make(chan struct{}),
	}

	return &m, nil
}

// Beneficiary returns the account receiving block rewards.
func (m *Miner) Beneficiary() database.AccountID {
	return m.beneficiary
}

// Results returns the channel every task reports on.
func (m *Miner) Results() <-chan Result {
	return m.results
}

// Generation returns the generation of the most recently started task.
func (m *Miner) Generation() uint64 {
	return m.generation.Load()
}

// Shutdown stops result delivery and waits for every search goroutine to
// return. Running tasks must be cancelled first.
func (m *Miner) Shutdown() {
	m.shutOnce.Do(func() { close(m.shut) })
	m.wg.Wait()
}

// Start begins a search for a block extending the ledger using the
// transactions in order. The ledger and transactions must not be shared
// with anything that mutates them.
func (m *Miner) Start(ledger *database.Ledger, txs []database.Tx) *Task {
	ctx, cancel := context.WithCancel(context.Background())

	t := Task{
		generation: m.generation.Add(1),
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	m.wg.Add(1)
	go func() {
		defer func() {
			cancel()
			close(t.done)
			m.wg.Done()
		}()

		m.evHandler("miner: Start: MINING: generation[%d]: started", t.generation)

		start := time.Now()
		block, err := m.Search(ctx, ledger, txs)

		r := Result{
			Generation: t.generation,
			Block:      block,
			Duration:   time.Since(start),
			Err:        err,
		}

		m.evHandler("miner: Start: MINING: generation[%d]: completed: duration[%v]", t.generation, r.Duration)

		select {
		case m.results <- r:
		case <-m.shut:
		case <-ctx.Done():
			if err == nil {
				m.evHandler("miner: Start: MINING: generation[%d]: solved block dropped after cancel", t.generation)
			}
		}
	}()

	return &t
}

// Search builds a candidate block from the ledger tip and the transactions
// and searches nonces until the block is valid to insert.
func (m *Miner) Search(ctx context.Context, ledger *database.Ledger, txs []database.Tx) (database.Block, error) {
	gen := ledger.Genesis()

	b := ledger.BlockTemplate()
	reward := ledger.BlockReward(b.Index)
	coinbase := database.NewCoinbaseTx(m.beneficiary, reward)

	picked, fees := m.pick(ledger, b, coinbase, txs, gen.MaxBlockSize-nonceReserve)

	coinbase.Amount = reward + fees
	b.Trans = append(picked, coinbase)

	m.evHandler("miner: Search: MINING: block[%d]: txs[%d]: fees[%d]", b.Index, len(picked), fees)

	if err := ledger.ValidateContents(b); err != nil {
		return database.Block{}, fmt.Errorf("candidate block: %w", err)
	}

	encoded := database.EncodeTxs(b.Trans)

	var attempts uint64
	for {
		if attempts%1024 == 0 {
			if err := ctx.Err(); err != nil {
				m.evHandler("miner: Search: MINING: block[%d]: CANCELLED: attempts[%d]", b.Index, attempts)
				return database.Block{}, err
			}
		}
		attempts++

		hash := database.HashHeader(b, encoded)
		if ledger.ValidateSeal(b, hash) == nil {
			break
		}

		b.NewNonce()
	}

	if err := ledger.Validate(b); err != nil {
		return database.Block{}, fmt.Errorf("solved block: %w", err)
	}

	m.evHandler("miner: Search: MINING: block[%d]: SOLVED: hash[%s]: attempts[%d]", b.Index, b.Hash(), attempts)

	return b, nil
}

// pick selects the transactions that are valid in order against the
// ledger, counting earlier picks from the same block, while the block
// stays within the size limit. The size is measured with the coinbase
// paying the fees collected so far.
func (m *Miner) pick(ledger *database.Ledger, b database.Block, coinbase database.Tx, txs []database.Tx, maxSize int) ([]database.Tx, uint64) {
	picked := []database.Tx{}
	seen := make(map[string]struct{})
	balances := make(map[database.AccountID]int64)

	balance := func(id database.AccountID) int64 {
		if bal, exists := balances[id]; exists {
			return bal
		}
		bal := ledger.ConfirmedBalance(id)
		balances[id] = bal
		return bal
	}

	var fees uint64
	for _, tx := range txs {
		hash := tx.Hash()
		if _, exists := seen[hash]; exists {
			continue
		}

		if tx.Type != database.TxStandard || !tx.Verify() || ledger.HasTransactionHash(hash) || balance(tx.FromID) < tx.Spend() {
			m.evHandler("miner: pick: MINING: tx[%s]: skipped: not valid for this block", tx)
			continue
		}

		cb := coinbase
		cb.Amount += fees + tx.Fee
		b.Trans = append(append(picked[:len(picked):len(picked)], tx), cb)
		if b.Size() > maxSize {
			m.evHandler("miner: pick: MINING: tx[%s]: skipped: block full", tx)
			continue
		}

		seen[hash] = struct{}{}
		picked = append(picked, tx)
		balances[tx.FromID] = balance(tx.FromID) - tx.Spend()
		balances[tx.ToID] = balance(tx.ToID) + int64(tx.Amount)
		fees += tx.Fee
	}

	return picked, fees
}

// =============================================================================

// Task is the handle for one running search.
type Task struct {
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
}

// Generation returns the generation number of the task.
func (t *Task) Generation() uint64 {
	return t.generation
}

// Cancel stops the search and waits for its goroutine to return.
func (t *Task) Cancel() {
	t.cancel()
	<-t.done
}

// Done is closed once the search goroutine has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// IsCancelled reports whether the error came from cancelling a search.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
