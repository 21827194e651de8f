package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/arthachain/ledger/foundation/blockchain/consensus"
	"github.com/arthachain/ledger/foundation/blockchain/state"
)

// CORE NOTE: Block production runs on its own goroutine for both consensus
// strategies. A cycle starts every block time, or sooner when a new
// transaction wakes the producer. Under proof of work every cycle searches
// for a nonce; under proof of stake the strategy refuses to propose unless
// this node owns the slot, so the cycle ends quietly.

// miningOperations handles block production.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	ticker := time.NewTicker(w.blockTime)
	defer ticker.Stop()

	for {
		select {
		case <-w.startMining:
			if !w.isShutdown() {
				w.runMiningOperation()
			}
		case <-ticker.C:
			if !w.isShutdown() {
				w.runMiningOperation()
			}
		case <-w.shut:
			w.evHandler("worker: miningOperations: received shut signal")
			return
		}
	}
}

// runMiningOperation produces one block and gossips it.
func (w *Worker) runMiningOperation() {
	w.evHandler("worker: runMiningOperation: MINING: started")
	defer w.evHandler("worker: runMiningOperation: MINING: completed")

	// Drain the cancel mining channel before starting.
	select {
	case <-w.cancelMining:
		w.evHandler("worker: runMiningOperation: MINING: drained cancel channel")
	default:
	}

	// Create a context so mining can be cancelled.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Can't return from this function until this G is complete.
	var wg sync.WaitGroup
	wg.Add(1)

	// This G exists to cancel the mining operation.
	go func() {
		defer wg.Done()

		select {
		case <-w.cancelMining:
			w.evHandler("worker: runMiningOperation: MINING: CANCEL: requested")
			cancel()
		case <-w.shut:
			cancel()
		case <-ctx.Done():
		}
	}()

	t := time.Now()
	block, err := w.state.ProduceBlock(ctx)
	duration := time.Since(t)

	cancel()
	wg.Wait()

	w.evHandler("worker: runMiningOperation: MINING: mining duration[%v]", duration)

	if err != nil {
		switch {
		case errors.Is(err, consensus.ErrWrongSlot):
			w.evHandler("worker: runMiningOperation: MINING: not our slot")
		case errors.Is(err, state.ErrSupplyExhausted):
			w.evHandler("worker: runMiningOperation: MINING: WARNING: supply exhausted")
		case errors.Is(err, consensus.ErrStaleTip), ctx.Err() != nil:
			w.evHandler("worker: runMiningOperation: MINING: CANCEL: complete")
		default:
			w.evHandler("worker: runMiningOperation: MINING: ERROR: %s", err)
		}
		return
	}

	// WOW, we produced a block. Propose the new block to the network.
	n := w.net.BroadcastBlock(block)
	w.evHandler("worker: runMiningOperation: MINING: blk[%d]: sent to peers[%d]", block.Index, n)
}
