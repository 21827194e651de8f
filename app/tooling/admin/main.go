// This program performs offline administrative tasks against a node's
// chain snapshot.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ardanlabs/conf/v3"
	"github.com/arthachain/ledger/app/tooling/admin/commands"
	"github.com/arthachain/ledger/foundation/blockchain/database"
	"github.com/arthachain/ledger/foundation/blockchain/database/storage/disk"
	"github.com/arthachain/ledger/foundation/blockchain/database/storage/kv"
	"github.com/arthachain/ledger/foundation/blockchain/genesis"
	"github.com/arthachain/ledger/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

type config struct {
	conf.Version
	Args  conf.Args
	State struct {
		Consensus   string `conf:"default:pow"`
		GenesisPath string `conf:"default:zblock/genesis.json"`
		Storage     string `conf:"default:disk"`
		DBPath      string `conf:"default:zblock/chain.json"`
	}
}

func main() {

	// Construct the application logger.
	log, err := logger.New("ADMIN")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(log); err != nil {
		if !errors.Is(err, commands.ErrHelp) {
			log.Errorw("admin", "ERROR", err)
		}
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {
	cfg := config{
		Version: conf.Version{
			Build: build,
			Desc:  "artha ledger admin",
		},
	}

	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	return processCommands(cfg)
}

// processCommands handles the execution of the commands specified on
// the command line.
func processCommands(cfg config) error {
	gen, err := genesis.Load(cfg.State.GenesisPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading genesis: %w", err)
		}
		if gen, err = genesis.Default(cfg.State.Consensus); err != nil {
			return fmt.Errorf("loading genesis: %w", err)
		}
	}

	strg, err := openStorage(cfg.State.Storage, cfg.State.DBPath)
	if err != nil {
		return err
	}
	defer strg.Close()

	chain, err := strg.Load()
	if err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}

	switch cfg.Args.Num(0) {
	case "verify":
		if err := commands.Verify(os.Stdout, gen, chain); err != nil {
			return fmt.Errorf("verifying chain: %w", err)
		}

	case "balances":
		if err := commands.Balances(os.Stdout, chain, cfg.Args.Num(1)); err != nil {
			return fmt.Errorf("getting balances: %w", err)
		}

	default:
		fmt.Println("verify:   replay the snapshot and run full chain validation")
		fmt.Println("balances: print the balances of the snapshot, optionally for one account")
		fmt.Println("provide a command to get more help.")
		return commands.ErrHelp
	}

	return nil
}

func openStorage(backend string, path string) (database.Storage, error) {
	switch backend {
	case "disk":
		return disk.New(path)
	case "badger":
		return kv.New(path)
	}

	return nil, fmt.Errorf("unknown storage backend %q", backend)
}
