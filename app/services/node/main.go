package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/arthachain/ledger/app/services/node/handlers"
	"github.com/arthachain/ledger/foundation/blockchain/consensus"
	"github.com/arthachain/ledger/foundation/blockchain/consensus/pos"
	"github.com/arthachain/ledger/foundation/blockchain/consensus/pow"
	"github.com/arthachain/ledger/foundation/blockchain/database"
	"github.com/arthachain/ledger/foundation/blockchain/database/storage/disk"
	"github.com/arthachain/ledger/foundation/blockchain/database/storage/kv"
	"github.com/arthachain/ledger/foundation/blockchain/genesis"
	"github.com/arthachain/ledger/foundation/blockchain/mempool"
	"github.com/arthachain/ledger/foundation/blockchain/network"
	"github.com/arthachain/ledger/foundation/blockchain/peer"
	"github.com/arthachain/ledger/foundation/blockchain/state"
	"github.com/arthachain/ledger/foundation/blockchain/worker"
	"github.com/arthachain/ledger/foundation/events"
	"github.com/arthachain/ledger/foundation/logger"
	"github.com/arthachain/ledger/foundation/nameservice"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
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

	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
			CorsOrigins     []string      `conf:"default:*"`
		}
		State struct {
			Consensus       string        `conf:"default:pow"`
			GenesisPath     string        `conf:"default:zblock/genesis.json"`
			Storage         string        `conf:"default:disk"`
			DBPath          string        `conf:"default:zblock/chain.json"`
			Beneficiary     string        `conf:"default:miner1"`
			ValidatorKey    string        `conf:"help:key file of this node when it is a proof of stake validator"`
			Produce         bool          `conf:"default:true"`
			TransPerBlock   uint16        `conf:"help:overrides the built-in genesis when no genesis file exists"`
			BlockInterval   time.Duration `conf:"help:overrides the built-in genesis when no genesis file exists"`
			MempoolCapacity int           `conf:"default:5000"`
			MempoolExpiry   time.Duration `conf:"default:30m"`
			SelectStrategy  string        `conf:"default:timestamp"`
		}
		Net struct {
			Host              string        `conf:"default:0.0.0.0:9080"`
			Advertise         string        `conf:"help:address announced to peers, defaults to the bound address"`
			BootstrapURL      string        `conf:"help:http endpoint returning bootstrap_peers"`
			BootstrapPeers    []string      `conf:"default:0.0.0.0:9080;0.0.0.0:9180"`
			MaxPeers          int           `conf:"default:32"`
			IdleTimeout       time.Duration `conf:"default:120s"`
			MaintainInterval  time.Duration `conf:"default:30s"`
			HeartbeatInterval time.Duration `conf:"default:60s"`
		}
		NameService struct {
			Folder string `conf:"default:zblock/accounts/"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "artha ledger node",
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

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Name Service Support

	// The names come from the key file names in the accounts folder.
	ns, err := nameservice.New(cfg.NameService.Folder)
	if err != nil {
		return fmt.Errorf("unable to load account name service: %w", err)
	}

	for account, name := range ns.Copy() {
		log.Infow("startup", "status", "nameservice", "name", name, "account", account)
	}

	// =========================================================================
	// Blockchain Support

	gen, err := loadGenesis(cfg.State.GenesisPath, cfg.State.Consensus, cfg.State.TransPerBlock, cfg.State.BlockInterval)
	if err != nil {
		return fmt.Errorf("loading genesis: %w", err)
	}
	log.Infow("startup", "status", "genesis", "consensus", gen.Consensus, "hash", gen.Block().Hash())

	// The blockchain packages accept a function of this signature to allow the
	// application to log. Events marked for viewers are also sent to any
	// websocket client that is connected into the system.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.SendViewer(s)
	}

	var validatorKey *ecdsa.PrivateKey
	if cfg.State.ValidatorKey != "" {
		validatorKey, err = crypto.LoadECDSA(cfg.State.ValidatorKey)
		if err != nil {
			return fmt.Errorf("unable to load validator key: %w", err)
		}
	}

	// A proof of stake validator is rewarded on its validator address, any
	// other node on the configured beneficiary key file.
	var beneficiary database.AccountID
	switch {
	case validatorKey != nil:
		beneficiary = database.PublicKeyToAccountID(&validatorKey.PublicKey)

	default:
		path := fmt.Sprintf("%s%s.ecdsa", cfg.NameService.Folder, cfg.State.Beneficiary)
		privateKey, err := crypto.LoadECDSA(path)
		if err != nil {
			return fmt.Errorf("unable to load private key for node: %w", err)
		}
		beneficiary = database.PublicKeyToAccountID(&privateKey.PublicKey)
	}

	strategy, err := newStrategy(gen, validatorKey, ev)
	if err != nil {
		return fmt.Errorf("constructing consensus: %w", err)
	}

	strg, err := newStorage(cfg.State.Storage, cfg.State.DBPath)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}

	st, err := state.New(state.Config{
		Beneficiary: beneficiary,
		Genesis:     gen,
		Consensus:   strategy,
		Storage:     strg,
		Mempool: mempool.Config{
			Capacity: cfg.State.MempoolCapacity,
			Expiry:   cfg.State.MempoolExpiry,
			Strategy: cfg.State.SelectStrategy,
		},
		EvHandler: ev,
	})
	if err != nil {
		strg.Close()
		return err
	}
	defer st.Shutdown()

	// =========================================================================
	// Peer Network Support

	knownPeers := peer.NewPeerSet(0)
	for _, host := range cfg.Net.BootstrapPeers {
		knownPeers.Add(peer.New(host))
	}

	node, err := network.New(network.Config{
		Host:           cfg.Net.Host,
		Advertise:      cfg.Net.Advertise,
		State:          st,
		KnownPeers:     knownPeers,
		BootstrapURL:   cfg.Net.BootstrapURL,
		BootstrapPeers: cfg.Net.BootstrapPeers,
		MaxPeers:       cfg.Net.MaxPeers,
		IdleTimeout:    cfg.Net.IdleTimeout,
		EvHandler:      ev,
	})
	if err != nil {
		return fmt.Errorf("constructing network: %w", err)
	}

	// The worker implements the background workflows such as block
	// production, transaction sharing, and peer maintenance. The worker
	// registers itself with the state before any peer can reach it.
	wrk := worker.New(worker.Config{
		State:             st,
		Network:           node,
		Produce:           cfg.State.Produce && (gen.Consensus == genesis.ConsensusPOW || validatorKey != nil),
		MaintainInterval:  cfg.Net.MaintainInterval,
		HeartbeatInterval: cfg.Net.HeartbeatInterval,
		EvHandler:         ev,
	})

	// Failing to bind the peer listener is the only fatal network error.
	if err := node.Start(); err != nil {
		return fmt.Errorf("starting network: %w", err)
	}
	defer node.Shutdown()
	log.Infow("startup", "status", "peer network started", "host", node.Addr())

	wrk.Start()

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	debugMux := handlers.DebugMux(build, log, st, node)

	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug v1 router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    st,
		Net:      node,
		NS:       ns,
		Evts:     evts,
		Origins:  cfg.Web.CorsOrigins,
	})

	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		log.Infow("shutdown", "status", "shutdown public API started")
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}
	}

	return nil
}

// =============================================================================

// loadGenesis reads the genesis file. Without one the built-in parameters
// for the consensus are used, with the optional overrides applied.
func loadGenesis(path string, consensus string, transPerBlock uint16, blockInterval time.Duration) (genesis.Genesis, error) {
	gen, err := genesis.Load(path)
	switch {
	case err == nil:
		if gen.Consensus != consensus {
			return genesis.Genesis{}, fmt.Errorf("genesis file runs %q, node configured for %q", gen.Consensus, consensus)
		}
		return gen, nil

	case !errors.Is(err, fs.ErrNotExist):
		return genesis.Genesis{}, err
	}

	gen, err = genesis.Default(consensus)
	if err != nil {
		return genesis.Genesis{}, err
	}

	if transPerBlock > 0 {
		gen.TransPerBlock = transPerBlock
	}
	if blockInterval >= time.Second {
		gen.BlockTime = uint64(blockInterval / time.Second)
	}

	return gen, nil
}

// newStrategy constructs the consensus strategy the genesis names.
func newStrategy(gen genesis.Genesis, validatorKey *ecdsa.PrivateKey, ev func(v string, args ...any)) (consensus.Strategy, error) {
	switch gen.Consensus {
	case genesis.ConsensusPOW:
		return pow.New(pow.Config{
			RetargetInterval: gen.RetargetInterval,
			BlockTime:        time.Duration(gen.BlockTime) * time.Second,
			EvHandler:        ev,
		}), nil

	case genesis.ConsensusPOS:
		return pos.New(pos.Config{
			Validators: gen.Validators,
			PrivateKey: validatorKey,
			EvHandler:  ev,
		})
	}

	return nil, fmt.Errorf("unknown consensus %q", gen.Consensus)
}

// newStorage opens the snapshot backend.
func newStorage(backend string, path string) (database.Storage, error) {
	switch backend {
	case "disk":
		return disk.New(path)
	case "badger":
		return kv.New(path)
	}

	return nil, fmt.Errorf("unknown storage backend %q", backend)
}
