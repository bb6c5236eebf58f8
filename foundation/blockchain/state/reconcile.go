package state

import (
	"fmt"
	"time"

	"github.com/pocketcoin/node/foundation/blockchain/database"
	"github.com/pocketcoin/node/foundation/blockchain/miner"
)

// reconcileChain adopts the peer's ledger when it carries strictly more
// work than ours.
func (s *State) reconcileChain(pl peerLedger) {
	ours := s.ledger.TotalWork()
	theirs := pl.ledger.TotalWork()

	if theirs.Cmp(ours) <= 0 {
		s.evHandler("state: reconcileChain: peer-node[%s]: length[%d]: not more work: ignored", pl.from, pl.ledger.Length())
		return
	}

	s.evHandler("viewer: state: reconcileChain: peer-node[%s]: ADOPTED: length[%d]: tip[%s]", pl.from, pl.ledger.Length(), pl.ledger.LatestBlockHash())

	s.ledger = pl.ledger

	if removed := s.mempool.CleanUp(s.ledger); removed > 0 {
		s.evHandler("state: reconcileChain: mempool: removed[%d]", removed)
		s.signalShareMempool()
	}

	s.ledgerChanged()
}

// reconcileMempool admits the peer's transactions that are new to us and
// valid against our ledger.
func (s *State) reconcileMempool(pm peerMempool) {
	var added int

	for _, tx := range pm.txs {
		hash := tx.Hash()

		if s.mempool.HasTransaction(hash) || s.ledger.HasTransactionHash(hash) {
			continue
		}

		if !s.ledger.IsValidTransaction(tx) {
			s.evHandler("state: reconcileMempool: peer-node[%s]: tx[%s]: not valid: skipped", pm.from, tx)
			continue
		}

		s.mempool.Add(tx)
		added++
	}

	if added == 0 {
		return
	}

	s.evHandler("state: reconcileMempool: peer-node[%s]: added[%d]", pm.from, added)

	s.mempool.CleanUp(s.ledger)
	s.signalShareMempool()
	s.restartMining()
	s.publishView()
}

// addLocalTransaction validates a transaction submitted to this node and
// adds it to the mempool.
func (s *State) addLocalTransaction(tx database.Tx) error {
	hash := tx.Hash()

	if s.mempool.HasTransaction(hash) || s.ledger.HasTransactionHash(hash) {
		return fmt.Errorf("%w: %s", ErrDuplicateTransaction, hash)
	}

	if !s.ledger.IsValidTransaction(tx) {
		return fmt.Errorf("%w: %s", ErrInvalidTransaction, tx)
	}

	s.mempool.Add(tx)
	s.mempool.CleanUp(s.ledger)

	s.evHandler("viewer: state: addLocalTransaction: tx[%s]: added: mempool[%d]", tx, s.mempool.Count())

	s.signalShareMempool()
	s.restartMining()
	s.publishView()

	return nil
}

// completeMining appends a block found by the current search. Results
// from older searches are discarded.
func (s *State) completeMining(r miner.Result) {
	if s.task == nil || r.Generation != s.task.Generation() {
		s.evHandler("state: completeMining: generation[%d]: STALE: discarded", r.Generation)
		return
	}

	switch {
	case miner.IsCancelled(r.Err):
		return

	case r.Err != nil:
		s.evHandler("state: completeMining: generation[%d]: ERROR: %s: retry in %v", r.Generation, r.Err, minerRetryDelay)
		s.task = nil
		s.retry = time.After(minerRetryDelay)
		return
	}

	s.task = nil

	if err := s.ledger.AddBlock(r.Block); err != nil {
		s.evHandler("state: completeMining: block[%d]: REJECTED: %s", r.Block.Index, err)
		s.restartMining()
		return
	}

	s.evHandler("viewer: state: completeMining: block[%d]: MINED: hash[%s]: txs[%d]: duration[%v]", r.Block.Index, r.Block.Hash(), len(r.Block.Trans), r.Duration)

	if removed := s.mempool.CleanUp(s.ledger); removed > 0 {
		s.evHandler("state: completeMining: mempool: removed[%d]", removed)
		s.signalShareMempool()
	}

	s.ledgerChanged()
}

// =============================================================================

// ledgerChanged saves and shares the ledger and starts mining on top of
// the new tip.
func (s *State) ledgerChanged() {
	s.saveLedger()
	s.signalShareLedger()
	s.restartMining()
	s.publishView()
}

// saveLedger writes the ledger to storage. Failures are logged; the node
// keeps running from memory.
func (s *State) saveLedger() {
	if s.storage == nil {
		return
	}

	if err := s.storage.Save(s.ledger.State()); err != nil {
		s.evHandler("state: saveLedger: ERROR: %s", err)
	}
}

// restartMining cancels the running search and starts a new one against
// the current ledger and mempool.
func (s *State) restartMining() {
	s.retry = nil

	if s.task != nil {
		s.task.Cancel()
		s.task = nil
	}

	if !s.miningAllowed || s.isShutdown() {
		return
	}

	s.task = s.miner.Start(s.ledger.Clone(), s.mempool.PickBest(-1))
}
