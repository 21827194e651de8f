// Package state is the core API for the blockchain and implements all the
// business rules and processing.
package state

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/arthachain/ledger/foundation/blockchain/consensus"
	"github.com/arthachain/ledger/foundation/blockchain/database"
	"github.com/arthachain/ledger/foundation/blockchain/genesis"
	"github.com/arthachain/ledger/foundation/blockchain/mempool"
)

// Set of errors returned by the state API.
var (
	ErrChainNotLonger  = errors.New("chain is not longer than ours")
	ErrBlockKnown      = errors.New("block already on chain")
	ErrTxConfirmed     = errors.New("transaction already confirmed")
	ErrSupplyExhausted = errors.New("block rewards exhausted")
)

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for block production, peer updates, and
// transaction sharing.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining()
	SignalShareTx(tx database.Tx)
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	Beneficiary database.AccountID
	Genesis     genesis.Genesis
	Consensus   consensus.Strategy
	Storage     database.Storage
	Mempool     mempool.Config
	EvHandler   EventHandler
}

// State manages the blockchain. One lock guards the chain and the mempool
// as a single unit so no reader sees a block appended while its
// transactions are still pending.
type State struct {
	mu sync.RWMutex

	beneficiary database.AccountID
	evHandler   EventHandler
	genesis     genesis.Genesis
	genesisHash string
	consensus   consensus.Strategy
	storage     database.Storage
	mempool     *mempool.Mempool
	chain       []database.Block

	worker atomic.Pointer[registered]
}

// New constructs a new blockchain for data management. The chain is restored
// from storage when the snapshot is present and valid; otherwise a fresh
// chain holding only the genesis block is started.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if err := cfg.Genesis.Validate(); err != nil {
		return nil, err
	}

	if cfg.Consensus == nil {
		return nil, errors.New("consensus strategy is required")
	}

	if cfg.Consensus.Name() != cfg.Genesis.Consensus {
		return nil, errors.New("consensus strategy does not match the genesis file")
	}

	if cfg.Storage == nil {
		return nil, errors.New("storage is required")
	}

	if !cfg.Beneficiary.IsAccountID() {
		return nil, errors.New("beneficiary account is not properly formatted")
	}

	// Construct a mempool with the specified sort strategy.
	mp, err := mempool.New(cfg.Mempool)
	if err != nil {
		return nil, err
	}

	genesisBlock := cfg.Genesis.Block()

	// Create the State to provide support for managing the blockchain.
	state := State{
		beneficiary: cfg.Beneficiary,
		evHandler:   ev,
		genesis:     cfg.Genesis,
		genesisHash: genesisBlock.Hash(),
		consensus:   cfg.Consensus,
		storage:     cfg.Storage,
		mempool:     mp,
	}
	state.worker.Store(&registered{nopWorker{}})

	state.chain = state.loadOrInit(genesisBlock)

	// The worker is replaced by the call to worker.New which registers
	// itself before the node accepts any peer or http traffic.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {

	// Make sure the storage is properly closed.
	defer func() {
		s.storage.Close()
	}()

	// Stop all blockchain writing activity.
	s.Worker().Shutdown()

	return nil
}

// =============================================================================

// loadOrInit restores the persisted chain. An unreadable or invalid snapshot
// is never trusted: it is discarded and a fresh genesis chain is saved.
func (s *State) loadOrInit(genesisBlock database.Block) []database.Block {
	chain, err := s.storage.Load()
	switch {
	case errors.Is(err, database.ErrNoSnapshot):
		s.evHandler("state: loadOrInit: no snapshot, starting from genesis")

	case err != nil:
		s.evHandler("state: loadOrInit: WARNING: snapshot unreadable, starting from genesis: %s", err)

	default:
		if _, err := s.ValidateChain(chain); err != nil {
			s.evHandler("state: loadOrInit: WARNING: snapshot invalid, starting from genesis: %s", err)
			break
		}

		s.evHandler("state: loadOrInit: restored chain: height[%d]", chain[len(chain)-1].Index)
		return chain
	}

	chain = []database.Block{genesisBlock}
	s.save(chain)

	return chain
}

// save persists the chain snapshot. A failure is only reported since the
// in memory chain stays authoritative until the next successful save.
func (s *State) save(chain []database.Block) {
	if err := s.storage.Save(chain); err != nil {
		s.evHandler("state: save: WARNING: snapshot not saved: %s", err)
	}
}

// =============================================================================

// RegisterWorker installs the worker signaled by block and transaction
// processing. It is safe to call while the state is in use.
func (s *State) RegisterWorker(w Worker) {
	s.worker.Store(&registered{w})
}

// Worker returns the registered worker.
func (s *State) Worker() Worker {
	return s.worker.Load().Worker
}

// registered boxes the interface so it can be swapped atomically.
type registered struct {
	Worker
}

// nopWorker is used until a worker registers itself.
type nopWorker struct{}

func (nopWorker) Shutdown()                   {}
func (nopWorker) SignalStartMining()          {}
func (nopWorker) SignalCancelMining()         {}
func (nopWorker) SignalShareTx(_ database.Tx) {}
