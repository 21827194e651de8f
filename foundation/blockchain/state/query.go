package state

import (
	"github.com/arthachain/ledger/foundation/blockchain/consensus"
	"github.com/arthachain/ledger/foundation/blockchain/database"
	"github.com/arthachain/ledger/foundation/blockchain/genesis"
	"github.com/shopspring/decimal"
)

// QueryLatest represents to query the latest block in the chain.
const QueryLatest = ^uint64(0) >> 1

// =============================================================================

// Genesis returns the chain parameters.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// Consensus returns the strategy the node runs.
func (s *State) Consensus() consensus.Strategy {
	return s.consensus
}

// Beneficiary returns the account rewarded for blocks this node produces.
func (s *State) Beneficiary() database.AccountID {
	return s.beneficiary
}

// LatestBlock returns the tip of the chain.
func (s *State) LatestBlock() database.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.chain[len(s.chain)-1]
}

// Height returns the index of the tip of the chain.
func (s *State) Height() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.chain[len(s.chain)-1].Index
}

// Chain returns a copy of the chain.
func (s *State) Chain() []database.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]database.Block(nil), s.chain...)
}

// BlockByIndex returns the block at the height, if the chain holds one.
func (s *State) BlockByIndex(index uint64) (database.Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index >= uint64(len(s.chain)) {
		return database.Block{}, false
	}

	return s.chain[index], true
}

// QueryBlocksByNumber returns the blocks in the inclusive range. QueryLatest
// may be used for either bound.
func (s *State) QueryBlocksByNumber(from uint64, to uint64) []database.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()

	height := s.chain[len(s.chain)-1].Index
	if from == QueryLatest {
		from = height
	}
	if to == QueryLatest || to > height {
		to = height
	}

	if from > to {
		return nil
	}

	return append([]database.Block(nil), s.chain[from:to+1]...)
}

// Mempool returns a copy of the pending transactions.
func (s *State) Mempool() []database.Tx {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.mempool.Copy()
}

// MempoolLength returns the current length of the mempool.
func (s *State) MempoolLength() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.mempool.Count()
}

// BalanceOf folds the confirmed history of the account plus the net effect
// of its pending transactions.
func (s *State) BalanceOf(account database.AccountID) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	replay, err := database.ReplayChain(s.chain)
	if err != nil {
		s.evHandler("state: BalanceOf: ERROR: %s", err)
		return decimal.Zero
	}

	return replay.Balance(account).Add(s.mempool.Pending(account))
}

// Balances returns the pending aware balance of every account seen on the
// chain or in the mempool.
func (s *State) Balances() map[database.AccountID]decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	replay, err := database.ReplayChain(s.chain)
	if err != nil {
		s.evHandler("state: Balances: ERROR: %s", err)
		return nil
	}

	balances := replay.Balances()
	for _, tx := range s.mempool.Copy() {
		balances[tx.Sender] = balances[tx.Sender].Sub(tx.Amount)
		balances[tx.Recipient] = balances[tx.Recipient].Add(tx.Amount)
	}

	return balances
}

// =============================================================================

// length returns the number of blocks in the chain.
func (s *State) length() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.chain)
}
