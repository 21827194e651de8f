package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/arthachain/ledger/foundation/blockchain/database"
)

// maxFutureDrift is how far ahead of the local clock a block timestamp may be.
const maxFutureDrift = 2 * time.Minute

// ValidateBlock checks the candidate can extend the prior chain. The prior
// chain must itself be valid.
func (s *State) ValidateBlock(block database.Block, prior []database.Block) error {
	if len(prior) == 0 {
		return errors.New("no prior chain")
	}

	replay, err := database.ReplayChain(prior)
	if err != nil {
		return err
	}

	return s.validateBlock(block, prior, replay, time.Now())
}

// ValidateChain runs full end to end validation of a chain, every block and
// not just the tip, and returns the replay of all its transactions.
func (s *State) ValidateChain(chain []database.Block) (*database.Replay, error) {
	if len(chain) == 0 {
		return nil, errors.New("empty chain")
	}

	if hash := chain[0].Hash(); hash != s.genesisHash {
		return nil, fmt.Errorf("genesis hash %s does not match ours %s", hash, s.genesisHash)
	}

	replay := database.NewReplay()
	now := time.Now()

	for i := 1; i < len(chain); i++ {
		if err := s.validateBlock(chain[i], chain[:i], replay, now); err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
	}

	return replay, nil
}

// =============================================================================

// validateBlock runs the ordered block checks. The replay holds the folded
// history of prior and is advanced by the block's transactions; on error it
// is left partially applied and must be discarded.
func (s *State) validateBlock(block database.Block, prior []database.Block, replay *database.Replay, now time.Time) error {
	parent := prior[len(prior)-1]

	s.evHandler("state: validateBlock: blk[%d]: check: block is the next index", block.Index)

	if block.Index != parent.Index+1 {
		return fmt.Errorf("%w: block index %d, exp %d", database.ErrChainForked, block.Index, parent.Index+1)
	}

	s.evHandler("state: validateBlock: blk[%d]: check: previous hash matches parent", block.Index)

	if parentHash := parent.Hash(); block.PreviousHash != parentHash {
		return fmt.Errorf("%w: previous hash %s, exp %s", database.ErrChainForked, block.PreviousHash, parentHash)
	}

	s.evHandler("state: validateBlock: blk[%d]: check: timestamp is not before parent or in the future", block.Index)

	if block.Timestamp < parent.Timestamp {
		return fmt.Errorf("block timestamp %d is before parent %d", block.Timestamp, parent.Timestamp)
	}

	if block.Timestamp > now.Add(maxFutureDrift).UnixMilli() {
		return fmt.Errorf("block timestamp %d is too far in the future", block.Timestamp)
	}

	s.evHandler("state: validateBlock: blk[%d]: check: consensus proof", block.Index)

	if err := s.consensus.ValidateProof(prior, block); err != nil {
		return err
	}

	if limit, capped := s.genesis.MaxBlocks(); capped && block.Index > limit {
		return fmt.Errorf("%w: block %d is past the last rewarded block %d", ErrSupplyExhausted, block.Index, limit)
	}

	s.evHandler("state: validateBlock: blk[%d]: check: exactly one coinbase of the fixed reward", block.Index)

	if err := s.validateCoinbase(block); err != nil {
		return err
	}

	s.evHandler("state: validateBlock: blk[%d]: check: transactions are signed and affordable", block.Index)

	if n := len(block.Transactions) - 1; n > int(s.genesis.TransPerBlock) {
		return fmt.Errorf("block holds %d transactions, max %d", n, s.genesis.TransPerBlock)
	}

	inBlock := make(map[string]struct{}, len(block.Transactions))
	for _, tx := range block.Transactions {
		if !tx.IsCoinbase() {
			if err := tx.Validate(); err != nil {
				return fmt.Errorf("tx %s: %w", tx, err)
			}

			id := tx.ID()
			if _, dup := inBlock[id]; dup || replay.IsConfirmed(id) {
				return fmt.Errorf("tx %s: %w", tx, ErrTxConfirmed)
			}
			inBlock[id] = struct{}{}
		}

		if err := replay.ApplyTx(tx); err != nil {
			return fmt.Errorf("tx %s: %w", tx, err)
		}
	}

	return nil
}

// validateCoinbase checks the block pays exactly one reward of the fixed
// amount, to its producer, as its last transaction.
func (s *State) validateCoinbase(block database.Block) error {
	cb := block.Coinbase()
	if len(cb) != 1 {
		return fmt.Errorf("block holds %d coinbase transactions, exp 1", len(cb))
	}

	last := block.Transactions[len(block.Transactions)-1]
	if !last.IsCoinbase() {
		return errors.New("coinbase is not the last transaction")
	}

	if !last.Amount.Equal(s.genesis.MiningReward) {
		return fmt.Errorf("coinbase pays %s, exp %s", database.FormatAmount(last.Amount), database.FormatAmount(s.genesis.MiningReward))
	}

	if !block.Producer.IsAccountID() || last.Recipient != block.Producer {
		return fmt.Errorf("coinbase pays %s, not the producer %s", last.Recipient, block.Producer)
	}

	return nil
}
