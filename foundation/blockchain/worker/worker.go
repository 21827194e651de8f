// Package worker implements block production, peer maintenance and
// transaction sharing for the blockchain.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/arthachain/ledger/foundation/blockchain/database"
	"github.com/arthachain/ledger/foundation/blockchain/state"
)

// Defaults applied when a Config value is left at zero.
const (
	DefaultMaintainInterval  = 30 * time.Second
	DefaultHeartbeatInterval = 60 * time.Second
)

// Network represents the overlay operations the worker drives.
type Network interface {
	Bootstrap(ctx context.Context) int
	Maintain(ctx context.Context)
	Heartbeat()
	BroadcastTransaction(tx database.Tx) int
	BroadcastBlock(block database.Block) int
}

// Config represents the configuration required to run the worker.
type Config struct {
	State             *state.State
	Network           Network
	Produce           bool
	MaintainInterval  time.Duration
	HeartbeatInterval time.Duration
	EvHandler         state.EventHandler
}

// =============================================================================

// Worker manages the background workflows of the node.
type Worker struct {
	state             *state.State
	net               Network
	produce           bool
	blockTime         time.Duration
	maintainInterval  time.Duration
	heartbeatInterval time.Duration
	wg                sync.WaitGroup
	shut              chan struct{}
	startMining       chan bool
	cancelMining      chan bool
	txSharing         chan database.Tx
	evHandler         state.EventHandler
}

// New creates a worker and registers it with the state package. Nothing
// runs until Start is called, so the node can register the worker before
// it begins accepting peers.
func New(cfg Config) *Worker {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if cfg.MaintainInterval <= 0 {
		cfg.MaintainInterval = DefaultMaintainInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}

	w := Worker{
		state:             cfg.State,
		net:               cfg.Network,
		produce:           cfg.Produce,
		blockTime:         time.Duration(cfg.State.Genesis().BlockTime) * time.Second,
		maintainInterval:  cfg.MaintainInterval,
		heartbeatInterval: cfg.HeartbeatInterval,
		shut:              make(chan struct{}),
		startMining:       make(chan bool, 1),
		cancelMining:      make(chan bool, 1),
		txSharing:         make(chan database.Tx, maxTxShareRequests),
		evHandler:         ev,
	}

	// Register this worker with the state package.
	cfg.State.RegisterWorker(&w)

	return &w
}

// Start syncs the node with its peers and starts the background processes.
// It does not return until every goroutine is running.
func (w *Worker) Start() {

	// Update this node before starting any support G's.
	w.Sync()

	// Load the set of operations we need to run.
	operations := []func(){
		w.peerOperations,
		w.heartbeatOperations,
		w.shareTxOperations,
	}

	if w.produce {
		operations = append(operations, w.miningOperations)
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutines performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: signal cancel mining")
	w.SignalCancelMining()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// SignalStartMining starts a block production operation. If there is
// already a signal pending in the channel, just return since an operation
// will start.
func (w *Worker) SignalStartMining() {
	if !w.produce {
		return
	}

	select {
	case w.startMining <- true:
	default:
	}
	w.evHandler("worker: SignalStartMining: mining signaled")
}

// SignalCancelMining signals the G executing the runMiningOperation function
// to stop immediately.
func (w *Worker) SignalCancelMining() {
	select {
	case w.cancelMining <- true:
	default:
	}
	w.evHandler("worker: SignalCancelMining: MINING: CANCEL: signaled")
}

// SignalShareTx signals a share transaction operation. If
// maxTxShareRequests signals exist in the channel, we won't send these.
func (w *Worker) SignalShareTx(tx database.Tx) {
	select {
	case w.txSharing <- tx:
		w.evHandler("worker: SignalShareTx: share Tx signaled")
	default:
		w.evHandler("worker: SignalShareTx: queue full, transactions won't be shared.")
	}
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
