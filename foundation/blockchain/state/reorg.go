package state

import (
	"fmt"
	"time"

	"github.com/arthachain/ledger/foundation/blockchain/database"
)

// ReplaceChain is the fork choice rule. The candidate is adopted only when it
// is strictly longer than our chain and passes full validation; ties keep
// the incumbent. The candidate is validated outside the lock and its length
// is checked again before it is adopted.
func (s *State) ReplaceChain(candidate []database.Block) error {
	if len(candidate) <= s.length() {
		return ErrChainNotLonger
	}

	s.evHandler("state: ReplaceChain: validating candidate: height[%d]", len(candidate)-1)

	replay, err := s.ValidateChain(candidate)
	if err != nil {
		return fmt.Errorf("validating chain: %w", err)
	}

	chain := append([]database.Block(nil), candidate...)

	s.mu.Lock()
	{
		if len(chain) <= len(s.chain) {
			s.mu.Unlock()
			return ErrChainNotLonger
		}

		orphaned := orphanedTxs(s.chain, chain)
		s.chain = chain

		removed := s.mempool.Reconcile(replay)

		// Transactions from our discarded blocks go back to the pool when
		// the new chain did not confirm them and they are still affordable.
		now := time.Now()
		var restored int
		for _, tx := range orphaned {
			if replay.IsConfirmed(tx.ID()) {
				continue
			}
			if _, err := s.mempool.Submit(tx, replay.Balance(tx.Sender), now); err == nil {
				restored++
			}
		}

		s.save(s.chain)

		s.evHandler("state: ReplaceChain: adopted: height[%d]: mempool removed[%d] restored[%d]", len(chain)-1, removed, restored)
	}
	s.mu.Unlock()

	s.evHandler("viewer: chain: replaced: height[%d]", len(chain)-1)

	// If a block is being produced locally it is now stale.
	s.Worker().SignalCancelMining()

	return nil
}

// orphanedTxs returns the non coinbase transactions of the blocks in old
// that the adopted chain replaces.
func orphanedTxs(old []database.Block, adopted []database.Block) []database.Tx {
	fork := 0
	for fork < len(old) && fork < len(adopted) && old[fork].Hash() == adopted[fork].Hash() {
		fork++
	}

	var txs []database.Tx
	for _, block := range old[fork:] {
		for _, tx := range block.Transactions {
			if !tx.IsCoinbase() {
				txs = append(txs, tx)
			}
		}
	}

	return txs
}
