// Package consensus defines the strategy a node uses to decide who may
// extend the chain and how a candidate block is sealed and checked.
package consensus

import (
	"context"
	"errors"

	"github.com/arthachain/ledger/foundation/blockchain/database"
)

// Set of errors shared by the strategies.
var (
	ErrStaleTip  = errors.New("chain tip moved while proposing")
	ErrWrongSlot = errors.New("block producer does not own the slot")
	ErrBadProof  = errors.New("invalid consensus proof")
)

// EventHandler defines a function that is called when events
// occur in the processing of proposing blocks.
type EventHandler func(v string, args ...any)

// Proposal carries what a strategy needs to seal a candidate block. The
// candidate already holds its transactions, with the coinbase last.
type Proposal struct {
	Prior     []database.Block
	Candidate database.Block

	// Stale reports whether the local tip moved past Prior. Strategies
	// doing long running work check it periodically and abort.
	Stale func() bool
}

// Strategy is implemented by every consensus variant. A node runs exactly
// one strategy, selected at startup.
type Strategy interface {

	// Name returns the name of the strategy as used in the genesis file.
	Name() string

	// SelectProducer returns the identity allowed to produce the block at
	// the height, or an empty string when any node may compete.
	SelectProducer(height uint64) string

	// ProposeBlock fills the consensus fields of the candidate and seals it.
	ProposeBlock(ctx context.Context, p Proposal) (database.Block, error)

	// ValidateProof checks the consensus fields of a block against the
	// chain it extends.
	ValidateProof(prior []database.Block, block database.Block) error
}
