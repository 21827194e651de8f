package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/arthachain/ledger/foundation/blockchain/consensus"
	"github.com/arthachain/ledger/foundation/blockchain/consensus/pos"
	"github.com/arthachain/ledger/foundation/blockchain/consensus/pow"
	"github.com/arthachain/ledger/foundation/blockchain/database"
	"github.com/arthachain/ledger/foundation/blockchain/database/storage/memory"
	"github.com/arthachain/ledger/foundation/blockchain/genesis"
	"github.com/arthachain/ledger/foundation/blockchain/state"
)

// Verify runs the full chain validation a node applies to a candidate
// chain. The snapshot is checked against a scratch ledger so nothing on
// disk is touched.
func Verify(w io.Writer, gen genesis.Genesis, chain []database.Block) error {
	strategy, err := newStrategy(gen)
	if err != nil {
		return err
	}

	strg, err := memory.New()
	if err != nil {
		return err
	}

	st, err := state.New(state.Config{
		Beneficiary: database.AccountID("0x" + strings.Repeat("0", 64)),
		Genesis:     gen,
		Consensus:   strategy,
		Storage:     strg,
	})
	if err != nil {
		return err
	}
	defer st.Shutdown()

	replay, err := st.ValidateChain(chain)
	if err != nil {
		return err
	}

	var minted int
	for _, blk := range chain {
		minted += len(blk.Coinbase())
	}

	fmt.Fprintf(w, "Chain valid: height[%d] tip[%s] accounts[%d] rewards[%d]\n",
		chain[len(chain)-1].Index, chain[len(chain)-1].Hash(), len(replay.Balances()), minted)

	return nil
}

func newStrategy(gen genesis.Genesis) (consensus.Strategy, error) {
	switch gen.Consensus {
	case genesis.ConsensusPOW:
		return pow.New(pow.Config{
			RetargetInterval: gen.RetargetInterval,
			BlockTime:        time.Duration(gen.BlockTime) * time.Second,
		}), nil

	case genesis.ConsensusPOS:
		return pos.New(pos.Config{
			Validators: gen.Validators,
		})
	}

	return nil, fmt.Errorf("unknown consensus %q", gen.Consensus)
}
