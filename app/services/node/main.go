package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pocketcoin/node/app/services/node/handlers"
	"github.com/pocketcoin/node/foundation/blockchain/database"
	"github.com/pocketcoin/node/foundation/blockchain/genesis"
	"github.com/pocketcoin/node/foundation/blockchain/gossip"
	"github.com/pocketcoin/node/foundation/blockchain/gossip/memory"
	"github.com/pocketcoin/node/foundation/blockchain/gossip/redis"
	"github.com/pocketcoin/node/foundation/blockchain/peer"
	"github.com/pocketcoin/node/foundation/blockchain/signature"
	"github.com/pocketcoin/node/foundation/blockchain/state"
	"github.com/pocketcoin/node/foundation/blockchain/storage"
	"github.com/pocketcoin/node/foundation/blockchain/storage/bolt"
	strgmem "github.com/pocketcoin/node/foundation/blockchain/storage/memory"
	"github.com/pocketcoin/node/foundation/events"
	"github.com/pocketcoin/node/foundation/logger"
	"github.com/pocketcoin/node/foundation/nameservice"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	// This is all the configuration for the application and the default values.
	// Configuration values will be passed through the application as individual
	// values.
	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
			PrivateHost     string        `conf:"default:0.0.0.0:9080"`
			CORSOrigins     []string      `conf:"default:*"`
		}
		State struct {
			Identity         string        `conf:"help:name announced on the gossip directory or random when empty"`
			GenesisPath      string        `conf:"default:zblock/genesis.json"`
			MinerName        string        `conf:"default:miner1"`
			SelectStrategy   string        `conf:"default:fee"`
			KnownPeers       []string      `conf:"help:peer identities to follow before discovery finds them"`
			AnnounceInterval time.Duration `conf:"default:30s"`
			DisableMining    bool          `conf:"default:false"`
		}
		Gossip struct {
			RedisAddrs  []string      `conf:"help:redis addresses or the in-process directory when empty"`
			Password    string        `conf:"mask"`
			DB          int           `conf:"default:0"`
			Prefix      string        `conf:"default:pocketcoin:"`
			PresenceTTL time.Duration `conf:"default:2m"`
		}
		Storage struct {
			Path     string `conf:"default:zblock/ledger.db"`
			InMemory bool   `conf:"default:false,help:keep the ledger in memory only"`
		}
		NameService struct {
			Folder string `conf:"default:zblock/accounts/"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "pocketcoin proof of work node",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Name Service Support

	// The nameservice package provides name resolution for account addresses.
	// The names come from the file names in the zblock/accounts folder.
	ns, err := nameservice.New(cfg.NameService.Folder)
	if err != nil {
		return fmt.Errorf("unable to load account name service: %w", err)
	}

	// Logging the accounts for documentation in the logs.
	for account, name := range ns.Copy() {
		log.Infow("startup", "status", "nameservce", "name", name, "account", account)
	}

	// =========================================================================
	// Blockchain Support

	// The consensus parameters are shared by every node on the network. A
	// node without a genesis file runs the default parameters.
	gen, err := genesis.Load(cfg.State.GenesisPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Infow("startup", "status", "genesis file not found, using defaults", "path", cfg.State.GenesisPath)
		gen = genesis.Default()

	case err != nil:
		return fmt.Errorf("unable to load genesis: %w", err)
	}

	// Need to load the private key file for the configured miner so the account
	// can get credited with block rewards and fees.
	path := fmt.Sprintf("%s%s%s", cfg.NameService.Folder, cfg.State.MinerName, nameservice.KeyExtension)
	privateKey, err := signature.LoadKey(path)
	if err != nil {
		return fmt.Errorf("unable to load private key for node: %w", err)
	}
	beneficiary := database.PrivateKeyToAccountID(privateKey)

	identity := cfg.State.Identity
	if identity == "" {
		identity = uuid.NewString()
	}

	// A peer set is a collection of known nodes in the network. Discovery
	// on the gossip directory adds to it.
	peerSet := peer.NewPeerSet()
	for _, id := range cfg.State.KnownPeers {
		peerSet.Add(peer.New(id))
	}

	// The gossip directory is how nodes find each other and share their
	// ledgers and mempools.
	var directory gossip.Directory
	switch len(cfg.Gossip.RedisAddrs) {
	case 0:
		log.Infow("startup", "status", "using in-process gossip directory")
		directory = memory.New()

	default:
		log.Infow("startup", "status", "connecting to redis gossip directory", "addrs", cfg.Gossip.RedisAddrs)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		rds, err := redis.New(ctx, redis.Config{
			Addrs:       cfg.Gossip.RedisAddrs,
			Password:    cfg.Gossip.Password,
			DB:          cfg.Gossip.DB,
			Prefix:      cfg.Gossip.Prefix,
			PresenceTTL: cfg.Gossip.PresenceTTL,
		})
		if err != nil {
			return fmt.Errorf("unable to connect to redis: %w", err)
		}
		defer rds.Close()

		directory = rds
	}

	// The ledger is kept across restarts unless the node runs in memory.
	// The mempool never is.
	var strg storage.Storage
	switch {
	case cfg.Storage.InMemory:
		log.Infow("startup", "status", "ledger kept in memory only")
		strg = strgmem.New()

	default:
		strg, err = bolt.New(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("unable to open ledger storage: %w", err)
		}
	}

	// The blockchain packages accept a function of this signature to allow the
	// application to log. For now, these raw messages are sent to any websocket
	// client that is connected into the system through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		if strings.HasPrefix(s, "viewer:") {
			evts.Send(s)
		}
	}

	// The state value represents the blockchain node and manages the blockchain
	// database and provides an API for application support.
	state, err := state.New(state.Config{
		Identity:         identity,
		Beneficiary:      beneficiary,
		Genesis:          gen,
		Storage:          strg,
		Directory:        directory,
		SelectStrategy:   cfg.State.SelectStrategy,
		KnownPeers:       peerSet,
		AnnounceInterval: cfg.State.AnnounceInterval,
		DisableMining:    cfg.State.DisableMining,
		EvHandler:        ev,
	})
	if err != nil {
		strg.Close()
		return err
	}
	defer state.Shutdown()

	log.Infow("startup", "status", "node started", "identity", identity, "beneficiary", beneficiary, "mining", state.IsMiningAllowed())

	// Run starts mining, sharing and peer discovery.
	state.Run()

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	// The Debug function returns a mux to listen and serve on for all the debug
	// related endpoints. This includes the standard library endpoints.

	// Construct the mux for the debug calls.
	debugMux := handlers.DebugMux(build, log, state)

	// Start the service listening for debug requests.
	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug v1 router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	// Construct the mux for the public API calls.
	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    state,
		NS:       ns,
		Evts:     evts,
		Origins:  cfg.Web.CORSOrigins,
	})

	// Construct a server to service the requests against the mux.
	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Start Private Service

	log.Infow("startup", "status", "initializing V1 private API support")

	// Construct the mux for the private API calls.
	privateMux := handlers.PrivateMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    state,
	})

	// Construct a server to service the requests against the mux.
	private := http.Server{
		Addr:         cfg.Web.PrivateHost,
		Handler:      privateMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "private api router started", "host", private.Addr)
		serverErrors <- private.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		// Give outstanding requests a deadline for completion.
		ctx, cancelPub := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPub()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown private API started")
		if err := private.Shutdown(ctx); err != nil {
			private.Close()
			return fmt.Errorf("could not stop private service gracefully: %w", err)
		}

		// Give outstanding requests a deadline for completion.
		ctx, cancelPri := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPri()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown public API started")
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}
	}

	return nil
}
