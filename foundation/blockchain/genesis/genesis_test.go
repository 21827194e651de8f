package genesis_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arthachain/ledger/foundation/blockchain/genesis"
	"github.com/shopspring/decimal"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func Test_Default(t *testing.T) {
	t.Log("Given the need to start a chain from the built-in parameters.")
	{
		for _, consensus := range []string{genesis.ConsensusPOW, genesis.ConsensusPOS} {
			g, err := genesis.Default(consensus)
			if err != nil {
				t.Fatalf("\t%s\tShould return the %s parameters: %s", failed, consensus, err)
			}
			t.Logf("\t%s\tShould return the %s parameters.", success, consensus)

			again, _ := genesis.Default(consensus)
			if g.Block().Hash() != again.Block().Hash() {
				t.Fatalf("\t%s\tShould derive the same %s genesis block every time.", failed, consensus)
			}
			t.Logf("\t%s\tShould derive the same %s genesis block every time.", success, consensus)
		}

		if _, err := genesis.Default("poa"); err == nil {
			t.Fatalf("\t%s\tShould fail on an unknown consensus.", failed)
		}
		t.Logf("\t%s\tShould fail on an unknown consensus.", success)

		pos, _ := genesis.Default(genesis.ConsensusPOS)
		if err := pos.Validate(); err == nil {
			t.Fatalf("\t%s\tShould require validators for proof of stake.", failed)
		}
		t.Logf("\t%s\tShould require validators for proof of stake.", success)
	}
}

func Test_Load(t *testing.T) {
	dir := t.TempDir()

	t.Log("Given the need to load the genesis file.")
	{
		good := filepath.Join(dir, "genesis.json")
		content := `{"date":"2024-01-01T00:00:00Z","chain_id":1,"consensus":"pow","trans_per_block":10,"difficulty":4,"retarget_interval":5,"block_time":3,"mining_reward":"50","max_supply":"500"}`
		if err := os.WriteFile(good, []byte(content), 0600); err != nil {
			t.Fatalf("\t%s\tShould be able to write the file: %s", failed, err)
		}

		g, err := genesis.Load(good)
		if err != nil {
			t.Fatalf("\t%s\tShould load a valid file: %s", failed, err)
		}
		t.Logf("\t%s\tShould load a valid file.", success)

		if !g.MiningReward.Equal(decimal.NewFromInt(50)) || g.Block().Difficulty != 4 {
			t.Fatalf("\t%s\tShould carry the reward and difficulty.", failed)
		}
		t.Logf("\t%s\tShould carry the reward and difficulty.", success)

		limit, capped := g.MaxBlocks()
		if !capped || limit != 10 {
			t.Fatalf("\t%s\tShould allow 10 rewarded blocks, got %d.", failed, limit)
		}
		t.Logf("\t%s\tShould allow 10 rewarded blocks.", success)

		bad := filepath.Join(dir, "bad.json")
		if err := os.WriteFile(bad, []byte(`{"consensus":"pow","difficulty":0}`), 0600); err != nil {
			t.Fatalf("\t%s\tShould be able to write the file: %s", failed, err)
		}

		if _, err := genesis.Load(bad); err == nil {
			t.Fatalf("\t%s\tShould reject a zero difficulty.", failed)
		}
		t.Logf("\t%s\tShould reject a zero difficulty.", success)

		noLimit := filepath.Join(dir, "nolimit.json")
		content = `{"date":"2024-01-01T00:00:00Z","chain_id":1,"consensus":"pow","difficulty":4,"retarget_interval":5,"block_time":3,"mining_reward":"50"}`
		if err := os.WriteFile(noLimit, []byte(content), 0600); err != nil {
			t.Fatalf("\t%s\tShould be able to write the file: %s", failed, err)
		}

		if _, err := genesis.Load(noLimit); err == nil {
			t.Fatalf("\t%s\tShould reject a file without trans_per_block.", failed)
		}
		t.Logf("\t%s\tShould reject a file without trans_per_block.", success)
	}
}
