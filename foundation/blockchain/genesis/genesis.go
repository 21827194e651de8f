// Package genesis maintains access to the genesis file, which holds the
// parameters every node of one chain must agree on.
package genesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/arthachain/ledger/foundation/blockchain/database"
	"github.com/shopspring/decimal"
)

// Set of consensus strategies a chain can run.
const (
	ConsensusPOW = "pow"
	ConsensusPOS = "pos"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date             time.Time       `json:"date"`
	ChainID          uint16          `json:"chain_id"`          // The chain id represents an unique id for this running instance.
	Consensus        string          `json:"consensus"`         // Either pow or pos.
	TransPerBlock    uint16          `json:"trans_per_block"`   // The maximum number of transactions that can be in a block, excluding the coinbase.
	Difficulty       uint64          `json:"difficulty"`        // Starting proof of work difficulty recorded in the genesis block.
	RetargetInterval uint64          `json:"retarget_interval"` // Number of blocks between difficulty adjustments.
	BlockTime        uint64          `json:"block_time"`        // Target seconds between blocks.
	MiningReward     decimal.Decimal `json:"mining_reward"`     // Reward for producing a block.
	MaxSupply        decimal.Decimal `json:"max_supply"`        // Total coins that may be minted, zero means no cap.
	Validators       []string        `json:"validators"`        // Ordered validator public keys for proof of stake.
}

// Default returns the built-in parameters for the specified consensus.
func Default(consensus string) (Genesis, error) {
	date := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	switch consensus {
	case ConsensusPOW:
		return Genesis{
			Date:             date,
			ChainID:          1,
			Consensus:        ConsensusPOW,
			TransPerBlock:    100,
			Difficulty:       200_000,
			RetargetInterval: 10,
			BlockTime:        3,
			MiningReward:     decimal.NewFromInt(50),
			MaxSupply:        decimal.NewFromInt(30_000_000),
		}, nil

	case ConsensusPOS:
		return Genesis{
			Date:          date,
			ChainID:       2,
			Consensus:     ConsensusPOS,
			TransPerBlock: 100,
			BlockTime:     10,
			MiningReward:  decimal.NewFromInt(5),
		}, nil
	}

	return Genesis{}, fmt.Errorf("unknown consensus %q", consensus)
}

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, err
	}

	if err := genesis.Validate(); err != nil {
		return Genesis{}, fmt.Errorf("genesis %s: %w", path, err)
	}

	return genesis, nil
}

// Validate checks the parameters are usable.
func (g Genesis) Validate() error {
	switch g.Consensus {
	case ConsensusPOW:
		if g.Difficulty == 0 {
			return errors.New("difficulty must be at least 1")
		}
		if g.RetargetInterval == 0 {
			return errors.New("retarget interval must be at least 1")
		}

	case ConsensusPOS:
		if len(g.Validators) == 0 {
			return errors.New("proof of stake needs at least one validator")
		}

	default:
		return fmt.Errorf("unknown consensus %q", g.Consensus)
	}

	if !g.MiningReward.IsPositive() || !database.HasValidPrecision(g.MiningReward) {
		return errors.New("mining reward must be a positive amount")
	}

	if g.BlockTime == 0 {
		return errors.New("block time must be at least one second")
	}

	if g.TransPerBlock == 0 {
		return errors.New("trans per block must be at least 1")
	}

	return nil
}

// Block returns the genesis block. It is derived from the parameters only so
// every node on the same parameters agrees on its hash.
func (g Genesis) Block() database.Block {
	block := database.Block{
		Index:        0,
		Timestamp:    g.Date.UnixMilli(),
		PreviousHash: database.GenesisPrevHash,
	}

	if g.Consensus == ConsensusPOW {
		block.Difficulty = g.Difficulty
	}

	return block
}

// MaxBlocks returns the highest block index that may pay a reward under the
// supply cap, and false when the supply is not capped.
func (g Genesis) MaxBlocks() (uint64, bool) {
	if !g.MaxSupply.IsPositive() {
		return 0, false
	}

	return uint64(g.MaxSupply.Div(g.MiningReward).IntPart()), true
}
