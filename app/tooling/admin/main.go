// This program performs administrative tasks against a node's saved ledger.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ardanlabs/conf/v3"
	"go.uber.org/zap"

	"github.com/pocketcoin/node/app/tooling/admin/commands"
	"github.com/pocketcoin/node/foundation/blockchain/genesis"
	"github.com/pocketcoin/node/foundation/blockchain/storage/bolt"
	"github.com/pocketcoin/node/foundation/logger"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("ADMIN")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		if !errors.Is(err, commands.ErrHelp) {
			log.Errorw("startup", "ERROR", err)
		}
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {
	cfg := struct {
		conf.Version
		Args        conf.Args
		GenesisPath string `conf:"default:zblock/genesis.json"`
		StoragePath string `conf:"default:zblock/ledger.db"`
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "pocketcoin ledger administration",
		},
	}

	const prefix = "ADMIN"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	gen, err := genesis.Load(cfg.GenesisPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		gen = genesis.Default()
	case err != nil:
		return fmt.Errorf("loading genesis: %w", err)
	}

	strg, err := bolt.New(cfg.StoragePath)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer strg.Close()

	log.Infow("admin", "command", cfg.Args.Num(0), "storage", cfg.StoragePath)

	return processCommands(cfg.Args, gen, strg)
}

// processCommands handles the execution of the commands specified on
// the command line.
func processCommands(args conf.Args, gen genesis.Genesis, strg *bolt.Bolt) error {
	switch args.Num(0) {
	case "bals":
		if err := commands.Balances(os.Stdout, args.Num(1), gen, strg); err != nil {
			return fmt.Errorf("getting balances: %w", err)
		}

	case "trans":
		if err := commands.Transactions(os.Stdout, args.Num(1), gen, strg); err != nil {
			return fmt.Errorf("getting transactions: %w", err)
		}

	case "chain":
		if err := commands.Chain(os.Stdout, gen, strg); err != nil {
			return fmt.Errorf("getting chain: %w", err)
		}

	case "reset":
		if err := strg.Reset(); err != nil {
			return fmt.Errorf("resetting storage: %w", err)
		}
		fmt.Println("ledger storage cleared")

	default:
		fmt.Println("bals [account]:  show confirmed balances")
		fmt.Println("trans <account>: show the latest transactions for an account")
		fmt.Println("chain:           summarize the saved chain")
		fmt.Println("reset:           clear the saved ledger")
		return commands.ErrHelp
	}

	return nil
}
