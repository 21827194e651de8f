package database

import (
	"errors"
	"fmt"

	"github.com/arthachain/ledger/foundation/blockchain/signature"
)

// GenesisPrevHash is the previous hash recorded by the genesis block.
const GenesisPrevHash = "0"

// ErrChainForked is returned when a block does not link to our tip. The
// local view may simply be behind, so the caller should resync.
var ErrChainForked = errors.New("blockchain forked, start resync")

// =============================================================================

// Block represents a group of transactions batched together. The nonce and
// difficulty fields are used by proof of work; the validator key and block
// signature by proof of stake. A block is never modified once appended.
type Block struct {
	Index              uint64    `json:"index"`
	Timestamp          int64     `json:"timestamp"` // Unix milliseconds.
	Transactions       []Tx      `json:"transactions"`
	PreviousHash       string    `json:"previous_hash"`
	Producer           AccountID `json:"producer_address"`
	Nonce              uint64    `json:"nonce"`
	Difficulty         uint64    `json:"difficulty"`
	ValidatorPublicKey string    `json:"validator_public_key,omitempty"`
	Signature          string    `json:"block_signature,omitempty"`
}

// Hash returns the unique hash for the Block. The block signature is not
// part of the hash since it is produced over the hashed content.
func (b Block) Hash() string {
	return signature.Hash(b.Hashable())
}

// Hashable returns the canonical field set of the block, excluding the
// producer's signature.
func (b Block) Hashable() map[string]any {
	trans := make([]map[string]any, len(b.Transactions))
	for i, tx := range b.Transactions {
		trans[i] = tx.hashable()
	}

	return map[string]any{
		"index":                b.Index,
		"timestamp":            b.Timestamp,
		"transactions":         trans,
		"previous_hash":        b.PreviousHash,
		"producer_address":     b.Producer,
		"nonce":                b.Nonce,
		"difficulty":           b.Difficulty,
		"validator_public_key": b.ValidatorPublicKey,
	}
}

// Coinbase returns the reward transactions found in the block.
func (b Block) Coinbase() []Tx {
	var cb []Tx
	for _, tx := range b.Transactions {
		if tx.IsCoinbase() {
			cb = append(cb, tx)
		}
	}

	return cb
}

// TxIDs returns the ids of the non coinbase transactions in the block.
func (b Block) TxIDs() []string {
	ids := make([]string, 0, len(b.Transactions))
	for _, tx := range b.Transactions {
		if !tx.IsCoinbase() {
			ids = append(ids, tx.ID())
		}
	}

	return ids
}

// =============================================================================

// ValidateLinkage checks the structural invariant of a chain: the genesis
// block sits at index 0 and every later block sits at its position and
// names the hash of its parent.
func ValidateLinkage(chain []Block) error {
	if len(chain) == 0 {
		return errors.New("empty chain")
	}

	if chain[0].Index != 0 || chain[0].PreviousHash != GenesisPrevHash {
		return errors.New("invalid genesis block")
	}

	for i := 1; i < len(chain); i++ {
		if chain[i].Index != uint64(i) {
			return fmt.Errorf("block %d: index %d out of place", i, chain[i].Index)
		}

		if exp := chain[i-1].Hash(); chain[i].PreviousHash != exp {
			return fmt.Errorf("block %d: previous hash %s, exp %s", i, chain[i].PreviousHash, exp)
		}
	}

	return nil
}
