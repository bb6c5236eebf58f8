package state

import (
	"context"
	"errors"
	"time"

	"github.com/pocketcoin/node/foundation/blockchain/database"
	"github.com/pocketcoin/node/foundation/blockchain/gossip"
	"github.com/pocketcoin/node/foundation/blockchain/peer"
)

// resubscribeDelay is how long to wait before retrying a failed
// subscription on the gossip directory.
const resubscribeDelay = 2 * time.Second

// peerLedger is a peer's ledger that already replayed from our genesis.
type peerLedger struct {
	from   string
	ledger *database.Ledger
}

// peerMempool is a peer's decoded mempool.
type peerMempool struct {
	from string
	txs  []database.Tx
}

// submission is a local transaction waiting for the control goroutine's
// verdict.
type submission struct {
	tx    database.Tx
	reply chan error
}

// =============================================================================

// Run starts all the background processes for the node: the control loop,
// ledger and mempool sharing, presence announcements and peer discovery.
func (s *State) Run() {
	s.runOnce.Do(func() {

		// Load the set of operations we need to run.
		operations := []func(){
			s.controlOperations,
			s.shareOperations,
			s.announceOperations,
			s.peerOperations,
		}

		// Set waitgroup to match the number of G's we need for the set
		// of operations we have.
		g := len(operations)
		s.wg.Add(g)

		// We don't want to return until we know all the G's are up and running.
		hasStarted := make(chan bool)

		// Start all the operational G's.
		for _, op := range operations {
			go func(op func()) {
				defer s.wg.Done()
				hasStarted <- true
				op()
			}(op)
		}

		// Wait for the G's to report they are running.
		for range g {
			<-hasStarted
		}
	})
}

// =============================================================================

// controlOperations is the only G that changes the ledger and mempool.
func (s *State) controlOperations() {
	s.evHandler("state: controlOperations: G started")
	defer s.evHandler("state: controlOperations: G completed")

	defer func() {
		if s.task != nil {
			s.task.Cancel()
		}
	}()

	s.signalShareLedger()
	s.signalShareMempool()
	s.restartMining()

	for {
		select {
		case pl := <-s.peerLedgers:
			s.reconcileChain(pl)

		case pm := <-s.peerMempools:
			s.reconcileMempool(pm)

		case sub := <-s.submissions:
			sub.reply <- s.addLocalTransaction(sub.tx)

		case r := <-s.miner.Results():
			s.completeMining(r)

		case <-s.retry:
			s.evHandler("state: controlOperations: retrying mining")
			s.restartMining()

		case <-s.shut:
			s.evHandler("state: controlOperations: received shut signal")
			return
		}
	}
}

// shareOperations publishes the latest ledger and mempool on the gossip
// directory. Signals raised while a publish is running collapse into one.
func (s *State) shareOperations() {
	s.evHandler("state: shareOperations: G started")
	defer s.evHandler("state: shareOperations: G completed")

	for {
		select {
		case <-s.shareLedger:
			if !s.isShutdown() {
				s.runShareLedgerOperation()
			}

		case <-s.shareMempool:
			if !s.isShutdown() {
				s.runShareMempoolOperation()
			}

		case <-s.shut:
			s.evHandler("state: shareOperations: received shut signal")
			return
		}
	}
}

// announceOperations keeps this node's presence on the gossip directory
// fresh.
func (s *State) announceOperations() {
	s.evHandler("state: announceOperations: G started")
	defer s.evHandler("state: announceOperations: G completed")

	ticker := time.NewTicker(s.announceInterval)
	defer ticker.Stop()

	for {
		if err := s.directory.Announce(s.ctx, s.identity); err != nil && !s.isShutdown() {
			s.evHandler("state: announceOperations: ERROR: %s", err)
		}

		select {
		case <-ticker.C:
		case <-s.shut:
			s.evHandler("state: announceOperations: received shut signal")
			return
		}
	}
}

// peerOperations subscribes to the ledger and mempool of every peer the
// directory reports.
func (s *State) peerOperations() {
	s.evHandler("state: peerOperations: G started")
	defer s.evHandler("state: peerOperations: G completed")

	for {
		err := s.directory.EnumeratePeers(s.ctx, s.addPeer)
		if s.isShutdown() {
			s.evHandler("state: peerOperations: received shut signal")
			return
		}

		s.evHandler("state: peerOperations: EnumeratePeers: ERROR: %s", err)

		select {
		case <-time.After(resubscribeDelay):
		case <-s.shut:
			return
		}
	}
}

// addPeer records a newly discovered peer and starts listening to it.
func (s *State) addPeer(identity string) {
	if identity == s.identity {
		return
	}

	if !s.knownPeers.Add(peer.New(identity)) {
		return
	}

	s.evHandler("state: addPeer: peer-node[%s]: added", identity)

	s.wg.Add(2)
	go s.subscribe(identity, gossip.BlockchainPath(identity), func(payload []byte) {
		s.receivePeerLedger(identity, payload)
	})
	go s.subscribe(identity, gossip.MempoolPath(identity), func(payload []byte) {
		s.receivePeerMempool(identity, payload)
	})
}

// subscribe listens on the path until shutdown, resubscribing after
// directory failures.
func (s *State) subscribe(identity string, path string, fn gossip.Handler) {
	defer s.wg.Done()

	for {
		err := s.directory.Subscribe(s.ctx, path, fn)
		if s.isShutdown() || errors.Is(err, context.Canceled) {
			return
		}

		s.evHandler("state: subscribe: peer-node[%s]: path[%s]: ERROR: %s", identity, path, err)

		select {
		case <-time.After(resubscribeDelay):
		case <-s.shut:
			return
		}
	}
}

// =============================================================================

// signalShareLedger queues a publish of the ledger. If there is already a
// signal pending in the channel, the pending publish will pick up the
// latest ledger.
func (s *State) signalShareLedger() {
	select {
	case s.shareLedger <- struct{}{}:
	default:
	}
}

// signalShareMempool queues a publish of the mempool.
func (s *State) signalShareMempool() {
	select {
	case s.shareMempool <- struct{}{}:
	default:
	}
}

// runShareLedgerOperation publishes the ledger from the latest view.
func (s *State) runShareLedgerOperation() {
	data, err := s.View().Ledger.Encode()
	if err != nil {
		s.evHandler("state: runShareLedgerOperation: encode: ERROR: %s", err)
		return
	}

	if err := s.directory.Publish(s.ctx, gossip.BlockchainPath(s.identity), data); err != nil {
		s.evHandler("state: runShareLedgerOperation: publish: ERROR: %s", err)
		return
	}

	s.evHandler("state: runShareLedgerOperation: shared ledger: bytes[%d]", len(data))
}

// runShareMempoolOperation publishes the mempool from the latest view.
func (s *State) runShareMempoolOperation() {
	data := database.EncodeTxs(s.View().Mempool)

	if err := s.directory.Publish(s.ctx, gossip.MempoolPath(s.identity), data); err != nil {
		s.evHandler("state: runShareMempoolOperation: publish: ERROR: %s", err)
		return
	}

	s.evHandler("state: runShareMempoolOperation: shared mempool: bytes[%d]", len(data))
}

// =============================================================================

// receivePeerLedger parses and replays a peer's ledger before handing it
// to the control goroutine. Invalid ledgers are logged and dropped.
func (s *State) receivePeerLedger(from string, payload []byte) {
	ls, err := database.DecodeLedger(payload)
	if err != nil {
		s.evHandler("state: receivePeerLedger: peer-node[%s]: decode: DROPPED: %s", from, err)
		return
	}

	ledger, err := database.ValidateFullChain(s.genesis, ls)
	if err != nil {
		s.evHandler("state: receivePeerLedger: peer-node[%s]: replay: DROPPED: %s", from, err)
		return
	}

	select {
	case s.peerLedgers <- peerLedger{from: from, ledger: ledger}:
	case <-s.shut:
	}
}

// receivePeerMempool parses a peer's mempool before handing it to the
// control goroutine.
func (s *State) receivePeerMempool(from string, payload []byte) {
	txs, err := database.DecodeTxs(payload)
	if err != nil {
		s.evHandler("state: receivePeerMempool: peer-node[%s]: decode: DROPPED: %s", from, err)
		return
	}

	select {
	case s.peerMempools <- peerMempool{from: from, txs: txs}:
	case <-s.shut:
	}
}

// SubmitTransaction hands a signed transaction to the node. The returned
// error wraps ErrInvalidTransaction or ErrDuplicateTransaction when the
// node refuses it.
func (s *State) SubmitTransaction(ctx context.Context, tx database.Tx) error {
	sub := submission{
		tx:    tx,
		reply: make(chan error, 1),
	}

	select {
	case s.submissions <- sub:
	case <-s.shut:
		return ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-sub.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReceiveLedger accepts a ledger pushed directly by a peer. It's handled
// the same way as one read from the gossip directory.
func (s *State) ReceiveLedger(from string, payload []byte) {
	s.receivePeerLedger(from, payload)
}

// ReceiveMempool accepts a mempool pushed directly by a peer.
func (s *State) ReceiveMempool(from string, payload []byte) {
	s.receivePeerMempool(from, payload)
}
