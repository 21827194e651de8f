// Package pow implements the proof of work consensus strategy: competitive
// nonce search against a target derived from a retargeted difficulty.
package pow

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/arthachain/ledger/foundation/blockchain/consensus"
	"github.com/arthachain/ledger/foundation/blockchain/database"
	"github.com/holiman/uint256"
)

// Name is the name of this strategy in the genesis file.
const Name = "pow"

// MaxDifficulty is the largest difficulty a block may carry.
const MaxDifficulty uint64 = math.MaxUint64

// tipCheckInterval is the number of nonce attempts between checks of
// whether another block extended our tip.
const tipCheckInterval = 1_000

// maxTarget is the largest possible proof hash, 2^256-1.
var maxTarget = new(uint256.Int).SetAllOne()

// Config represents the parameters the strategy needs.
type Config struct {
	RetargetInterval uint64
	BlockTime        time.Duration
	EvHandler        consensus.EventHandler
}

// POW represents the proof of work strategy.
type POW struct {
	interval  uint64
	blockTime time.Duration
	evHandler consensus.EventHandler
}

// New constructs a proof of work strategy.
func New(cfg Config) *POW {
	ev := func(v string, args ...any) {}
	if cfg.EvHandler != nil {
		ev = cfg.EvHandler
	}

	return &POW{
		interval:  cfg.RetargetInterval,
		blockTime: cfg.BlockTime,
		evHandler: ev,
	}
}

// Name implements the consensus.Strategy interface.
func (p *POW) Name() string {
	return Name
}

// SelectProducer implements the consensus.Strategy interface. Any node may
// compete for any height.
func (p *POW) SelectProducer(height uint64) string {
	return ""
}

// ProposeBlock sets the difficulty of the candidate and searches nonces from
// zero upward until the proof holds, the context is cancelled or the local
// tip moves.
func (p *POW) ProposeBlock(ctx context.Context, prop consensus.Proposal) (database.Block, error) {
	block := prop.Candidate
	block.Difficulty = p.NextDifficulty(prop.Prior)
	target := Target(block.Difficulty)

	p.evHandler("pow: ProposeBlock: MINING: started: blk[%d]: difficulty[%d]", block.Index, block.Difficulty)
	defer p.evHandler("pow: ProposeBlock: MINING: completed: blk[%d]", block.Index)

	for nonce := uint64(0); ; nonce++ {
		if nonce%tipCheckInterval == 0 {
			if ctx.Err() != nil {
				p.evHandler("pow: ProposeBlock: MINING: CANCELLED: attempts[%d]", nonce)
				return database.Block{}, ctx.Err()
			}

			if prop.Stale != nil && prop.Stale() {
				p.evHandler("pow: ProposeBlock: MINING: STALE: attempts[%d]", nonce)
				return database.Block{}, consensus.ErrStaleTip
			}
		}

		if proofHash(block.PreviousHash, nonce).Cmp(target) <= 0 {
			block.Nonce = nonce
			p.evHandler("pow: ProposeBlock: MINING: SOLVED: blk[%d]: nonce[%d]", block.Index, nonce)
			return block, nil
		}

		if nonce == math.MaxUint64 {
			return database.Block{}, fmt.Errorf("nonce space exhausted")
		}
	}
}

// ValidateProof checks the block carries the difficulty the retarget rule
// gives for its height and a nonce meeting that difficulty.
func (p *POW) ValidateProof(prior []database.Block, block database.Block) error {
	if exp := p.NextDifficulty(prior); block.Difficulty != exp {
		return fmt.Errorf("%w: difficulty %d, exp %d", consensus.ErrBadProof, block.Difficulty, exp)
	}

	if !IsValidProof(block.PreviousHash, block.Nonce, block.Difficulty) {
		return fmt.Errorf("%w: nonce %d does not meet difficulty %d", consensus.ErrBadProof, block.Nonce, block.Difficulty)
	}

	return nil
}

// NextDifficulty returns the difficulty for the block extending prior.
// Retargeting happens only when the last block sits on an interval
// boundary; otherwise the last difficulty is inherited.
func (p *POW) NextDifficulty(prior []database.Block) uint64 {
	last := prior[len(prior)-1]

	if p.interval == 0 || last.Index == 0 || last.Index%p.interval != 0 || last.Index < p.interval {
		return last.Difficulty
	}

	first := prior[last.Index-p.interval]
	actual := last.Timestamp - first.Timestamp
	expected := int64(p.interval) * p.blockTime.Milliseconds()

	return Retarget(last.Difficulty, actual, expected)
}

// =============================================================================

// Retarget scales the difficulty by how far the actual interval time strayed
// from the expected time. Intervals more than twice as slow halve it, more
// than twice as fast double it, and smaller deviations move it by a tenth.
// The result is clamped to [1, MaxDifficulty].
func Retarget(difficulty uint64, actual int64, expected int64) uint64 {
	d := uint256.NewInt(difficulty)

	switch {
	case actual > expected*2:
		d.Rsh(d, 1)
	case actual < expected/2:
		d.Lsh(d, 1)
	case actual > expected:
		d.Mul(d, uint256.NewInt(9))
		d.Div(d, uint256.NewInt(10))
	case actual < expected:
		d.Mul(d, uint256.NewInt(11))
		d.Div(d, uint256.NewInt(10))
	}

	if !d.IsUint64() {
		return MaxDifficulty
	}

	if d.Uint64() < 1 {
		return 1
	}

	return d.Uint64()
}

// Target returns the largest proof hash valid for the difficulty.
func Target(difficulty uint64) *uint256.Int {
	if difficulty == 0 {
		return new(uint256.Int)
	}

	return new(uint256.Int).Div(maxTarget, uint256.NewInt(difficulty))
}

// IsValidProof reports whether the hash of the previous hash and nonce,
// read as an integer, is at most the target for the difficulty.
func IsValidProof(prevHash string, nonce uint64, difficulty uint64) bool {
	if difficulty == 0 {
		return false
	}

	return proofHash(prevHash, nonce).Cmp(Target(difficulty)) <= 0
}

// proofHash returns sha256(prevHash || nonce) as a 256 bit integer.
func proofHash(prevHash string, nonce uint64) *uint256.Int {
	data := make([]byte, 0, len(prevHash)+20)
	data = append(data, prevHash...)
	data = strconv.AppendUint(data, nonce, 10)

	h := sha256.Sum256(data)
	return new(uint256.Int).SetBytes32(h[:])
}
