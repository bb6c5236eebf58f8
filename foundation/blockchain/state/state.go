// Package state is the core API for the blockchain and implements all the
// business rules and processing. A single control goroutine owns the ledger
// and mempool; everything else talks to it over channels and reads the
// immutable view it publishes after every change.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pocketcoin/node/foundation/blockchain/database"
	"github.com/pocketcoin/node/foundation/blockchain/genesis"
	"github.com/pocketcoin/node/foundation/blockchain/gossip"
	"github.com/pocketcoin/node/foundation/blockchain/mempool"
	"github.com/pocketcoin/node/foundation/blockchain/mempool/selector"
	"github.com/pocketcoin/node/foundation/blockchain/miner"
	"github.com/pocketcoin/node/foundation/blockchain/peer"
	"github.com/pocketcoin/node/foundation/blockchain/storage"
)

// Set of errors returned to callers submitting transactions.
var (
	ErrInvalidTransaction   = errors.New("transaction is not valid against the ledger")
	ErrDuplicateTransaction = errors.New("transaction is already known")
	ErrShutdown             = errors.New("node is shutting down")
)

// defaultAnnounceInterval is how often a node refreshes its presence on the
// gossip directory.
const defaultAnnounceInterval = 30 * time.Second

// minerRetryDelay is how long the node waits to search again after a
// search failed with an error.
const minerRetryDelay = time.Second

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of the blockchain.
type EventHandler func(v string, args ...any)

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	Identity         string
	Beneficiary      database.AccountID
	Genesis          genesis.Genesis
	Storage          storage.Storage
	Directory        gossip.Directory
	SelectStrategy   string
	KnownPeers       *peer.PeerSet
	AnnounceInterval time.Duration
	DisableMining    bool
	EvHandler        EventHandler
}

// View is an immutable copy of the node's ledger and mempool. Nothing
// changes a view once it's published.
type View struct {
	Ledger  *database.Ledger
	Mempool []database.Tx
}

// State manages the blockchain database.
type State struct {
	identity         string
	genesis          genesis.Genesis
	evHandler        EventHandler
	storage          storage.Storage
	directory        gossip.Directory
	knownPeers       *peer.PeerSet
	announceInterval time.Duration
	miningAllowed    bool

	// Owned by the control goroutine.
	ledger  *database.Ledger
	mempool *mempool.Mempool
	miner   *miner.Miner
	task    *miner.Task
	retry   <-chan time.Time

	view atomic.Pointer[View]

	peerLedgers  chan peerLedger
	peerMempools chan peerMempool
	submissions  chan submission
	shareLedger  chan struct{}
	shareMempool chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	shut     chan struct{}
	wg       sync.WaitGroup
	runOnce  sync.Once
	shutOnce sync.Once
}

// New constructs a new blockchain node. The ledger is loaded from storage
// when one was saved before, otherwise the chain starts at the genesis
// block. Call Run to start processing.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if cfg.Identity == "" {
		return nil, errors.New("identity is required")
	}

	if cfg.Directory == nil {
		return nil, errors.New("gossip directory is required")
	}

	if err := cfg.Genesis.Validate(); err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}

	ledger, err := loadLedger(cfg.Genesis, cfg.Storage, ev)
	if err != nil {
		return nil, err
	}

	strategy := cfg.SelectStrategy
	if strategy == "" {
		strategy = selector.StrategyFIFO
	}

	// Construct a mempool with the specified sort strategy.
	mp, err := mempool.NewWithStrategy(strategy)
	if err != nil {
		return nil, err
	}

	mnr, err := miner.New(miner.Config{
		Beneficiary: cfg.Beneficiary,
		EvHandler:   miner.EventHandler(ev),
	})
	if err != nil {
		return nil, err
	}

	knownPeers := cfg.KnownPeers
	if knownPeers == nil {
		knownPeers = peer.NewPeerSet()
	}

	announce := cfg.AnnounceInterval
	if announce <= 0 {
		announce = defaultAnnounceInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := State{
		identity:         cfg.Identity,
		genesis:          cfg.Genesis,
		evHandler:        ev,
		storage:          cfg.Storage,
		directory:        cfg.Directory,
		knownPeers:       knownPeers,
		announceInterval: announce,
		miningAllowed:    !cfg.DisableMining,

		ledger:  ledger,
		mempool: mp,
		miner:   mnr,

		peerLedgers:  make(chan peerLedger),
		peerMempools: make(chan peerMempool),
		submissions:  make(chan submission),
		shareLedger:  make(chan struct{}, 1),
		shareMempool: make(chan struct{}, 1),

		ctx:    ctx,
		cancel: cancel,
		shut:   make(chan struct{}),
	}

	s.publishView()

	return &s, nil
}

// loadLedger replays the saved ledger. A node without storage, or with
// nothing saved, starts from the genesis block.
func loadLedger(gen genesis.Genesis, strg storage.Storage, ev EventHandler) (*database.Ledger, error) {
	if strg == nil {
		return database.New(gen)
	}

	ls, err := strg.Load()
	switch {
	case errors.Is(err, storage.ErrNotFound):
		ev("state: loadLedger: nothing saved: starting from genesis")
		return database.New(gen)

	case err != nil:
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	ledger, err := database.ValidateFullChain(gen, ls)
	if err != nil {
		return nil, fmt.Errorf("replay saved ledger: %w", err)
	}

	ev("state: loadLedger: replayed saved ledger: length[%d]: tip[%s]", ledger.Length(), ledger.LatestBlockHash())

	return ledger, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: Shutdown: started")
	defer s.evHandler("state: Shutdown: completed")

	s.shutOnce.Do(func() {
		s.cancel()
		close(s.shut)
	})

	s.wg.Wait()
	s.miner.Shutdown()

	// Make sure the database is properly closed.
	if s.storage != nil {
		return s.storage.Close()
	}

	return nil
}

// isShutdown is used to test if a shutdown has been signaled.
func (s *State) isShutdown() bool {
	select {
	case <-s.shut:
		return true
	default:
		return false
	}
}

// Identity returns the name this node announces on the gossip directory.
func (s *State) Identity() string {
	return s.identity
}

// Genesis returns the consensus parameters the node runs with.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// Beneficiary returns the account receiving this node's block rewards.
func (s *State) Beneficiary() database.AccountID {
	return s.miner.Beneficiary()
}

// IsMiningAllowed reports whether the node searches for blocks.
func (s *State) IsMiningAllowed() bool {
	return s.miningAllowed
}

// View returns the latest published view of the ledger and mempool.
func (s *State) View() *View {
	return s.view.Load()
}

// publishView swaps in a fresh copy of the ledger and mempool for readers.
func (s *State) publishView() {
	v := View{
		Ledger:  s.ledger.Clone(),
		Mempool: s.mempool.Copy(),
	}

	s.view.Store(&v)
}
