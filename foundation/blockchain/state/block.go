package state

import (
	"context"
	"errors"
	"time"

	"github.com/arthachain/ledger/foundation/blockchain/consensus"
	"github.com/arthachain/ledger/foundation/blockchain/database"
)

// ProduceBlock assembles a candidate block from the mempool, has the
// consensus strategy seal it and appends it to the chain. The coinbase is
// always the last transaction. The block is validated before it is returned
// so a node never announces a block it would itself reject.
func (s *State) ProduceBlock(ctx context.Context) (database.Block, error) {
	s.mu.RLock()
	prior := s.chain
	s.mu.RUnlock()

	tip := prior[len(prior)-1]
	next := tip.Index + 1

	if limit, capped := s.genesis.MaxBlocks(); capped && next > limit {
		return database.Block{}, ErrSupplyExhausted
	}

	s.evHandler("state: ProduceBlock: PRODUCING: blk[%d]: select transactions", next)

	replay, err := database.ReplayChain(prior)
	if err != nil {
		return database.Block{}, err
	}

	trans := s.mempool.DrainForBlock(replay.Balances(), int(s.genesis.TransPerBlock))

	now := time.Now().UTC().UnixMilli()
	if now < tip.Timestamp {
		now = tip.Timestamp
	}

	candidate := database.Block{
		Index:        next,
		Timestamp:    now,
		Transactions: append(trans, database.NewCoinbaseTx(s.beneficiary, s.genesis.MiningReward, now)),
		PreviousHash: tip.Hash(),
		Producer:     s.beneficiary,
	}

	s.evHandler("state: ProduceBlock: PRODUCING: blk[%d]: txs[%d]: propose", next, len(trans))

	prop := consensus.Proposal{
		Prior:     prior,
		Candidate: candidate,
		Stale: func() bool {
			return s.Height() != tip.Index
		},
	}

	block, err := s.consensus.ProposeBlock(ctx, prop)
	if err != nil {
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	if err := s.AppendBlock(block); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// AppendBlock validates the block as the direct extension of the chain and
// appends it. Its transactions leave the mempool in the same locked step and
// the snapshot is rewritten.
func (s *State) AppendBlock(block database.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ValidateBlock(block, s.chain); err != nil {
		s.evHandler("state: AppendBlock: blk[%d]: REJECTED: %s", block.Index, err)
		return err
	}

	s.chain = append(s.chain, block)
	s.mempool.Delete(block.TxIDs()...)
	s.save(s.chain)

	s.evHandler("viewer: block: blk[%d]: hash[%s]: txs[%d]: producer[%s]", block.Index, block.Hash(), len(block.Transactions), block.Producer)

	return nil
}

// ProcessProposedBlock takes a block received from a peer, validates it and
// if that passes, appends it. A block we already hold returns ErrBlockKnown.
// Any other error means the block is not a valid direct extension and the
// caller should resync since our view may simply be behind.
func (s *State) ProcessProposedBlock(block database.Block) error {
	s.evHandler("state: ProcessProposedBlock: started: blk[%d]", block.Index)
	defer s.evHandler("state: ProcessProposedBlock: completed: blk[%d]", block.Index)

	if s.hasBlock(block) {
		return ErrBlockKnown
	}

	if err := s.AppendBlock(block); err != nil {
		if errors.Is(err, database.ErrChainForked) && s.hasBlock(block) {
			return ErrBlockKnown
		}
		return err
	}

	// If a block is being produced locally it is now stale.
	s.Worker().SignalCancelMining()

	return nil
}

// hasBlock reports whether the block sits on our chain at its index.
func (s *State) hasBlock(block database.Block) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if block.Index >= uint64(len(s.chain)) {
		return false
	}

	return s.chain[block.Index].Hash() == block.Hash()
}
