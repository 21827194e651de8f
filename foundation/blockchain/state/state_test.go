package state_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/arthachain/ledger/foundation/blockchain/consensus/pow"
	"github.com/arthachain/ledger/foundation/blockchain/database"
	"github.com/arthachain/ledger/foundation/blockchain/database/storage/memory"
	"github.com/arthachain/ledger/foundation/blockchain/genesis"
	"github.com/arthachain/ledger/foundation/blockchain/state"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func testGenesis(reward int64) genesis.Genesis {
	return genesis.Genesis{
		Date:             time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		ChainID:          99,
		Consensus:        genesis.ConsensusPOW,
		TransPerBlock:    10,
		Difficulty:       1,
		RetargetInterval: 10,
		BlockTime:        3,
		MiningReward:     decimal.NewFromInt(reward),
	}
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()

	pk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a key: %s", failed, err)
	}

	return pk
}

func account(pk *ecdsa.PrivateKey) database.AccountID {
	return database.PublicKeyToAccountID(&pk.PublicKey)
}

func newState(t *testing.T, g genesis.Genesis, beneficiary database.AccountID, strg database.Storage) *state.State {
	t.Helper()

	if strg == nil {
		var err error
		if strg, err = memory.New(); err != nil {
			t.Fatalf("\t%s\tShould be able to construct storage: %s", failed, err)
		}
	}

	s, err := state.New(state.Config{
		Beneficiary: beneficiary,
		Genesis:     g,
		Consensus:   pow.New(pow.Config{RetargetInterval: g.RetargetInterval, BlockTime: time.Duration(g.BlockTime) * time.Second}),
		Storage:     strg,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the state: %s", failed, err)
	}

	return s
}

func produce(t *testing.T, s *state.State, n int) {
	t.Helper()

	for i := 0; i < n; i++ {
		if _, err := s.ProduceBlock(context.Background()); err != nil {
			t.Fatalf("\t%s\tShould be able to produce a block: %s", failed, err)
		}
	}
}

func transfer(t *testing.T, from *ecdsa.PrivateKey, to database.AccountID, amount int64) database.Tx {
	t.Helper()

	tx, err := database.NewTx(account(from), to, decimal.NewFromInt(amount))
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct a transaction: %s", failed, err)
	}

	signed, err := tx.Sign(from)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign the transaction: %s", failed, err)
	}

	return signed
}

// =============================================================================

func Test_GenesisOnly(t *testing.T) {
	t.Log("Given the need to start a chain from genesis.")
	{
		s := newState(t, testGenesis(20), account(newKey(t)), nil)

		if s.Height() != 0 {
			t.Fatalf("\t%s\tShould start at height 0, got %d.", failed, s.Height())
		}
		t.Logf("\t%s\tShould start at height 0.", success)

		if !s.BalanceOf(account(newKey(t))).IsZero() {
			t.Fatalf("\t%s\tShould report a zero balance for any address.", failed)
		}
		t.Logf("\t%s\tShould report a zero balance for any address.", success)

		if s.LatestBlock().PreviousHash != database.GenesisPrevHash {
			t.Fatalf("\t%s\tShould hold the genesis block as the tip.", failed)
		}
		t.Logf("\t%s\tShould hold the genesis block as the tip.", success)
	}
}

func Test_SubmitAndProduce(t *testing.T) {
	a := newKey(t)
	b := account(newKey(t))
	m := account(newKey(t))

	t.Log("Given the need to submit transactions and produce blocks.")
	{
		nodeA := newState(t, testGenesis(20), account(a), nil)
		produce(t, nodeA, 1)

		if got := nodeA.BalanceOf(account(a)); !got.Equal(decimal.NewFromInt(20)) {
			t.Fatalf("\t%s\tShould credit the block reward, got %s.", failed, got)
		}
		t.Logf("\t%s\tShould credit the block reward.", success)

		nodeM := newState(t, testGenesis(20), m, nil)
		if err := nodeM.ReplaceChain(nodeA.Chain()); err != nil {
			t.Fatalf("\t%s\tShould adopt the longer chain: %s", failed, err)
		}

		tx := transfer(t, a, b, 10)
		if _, err := nodeM.UpsertWalletTransaction(tx); err != nil {
			t.Fatalf("\t%s\tShould accept {A->B, 10} when A holds 20: %s", failed, err)
		}
		t.Logf("\t%s\tShould accept {A->B, 10} when A holds 20.", success)

		if got := nodeM.BalanceOf(account(a)); !got.Equal(decimal.NewFromInt(10)) {
			t.Fatalf("\t%s\tShould show A at 10 pending aware, got %s.", failed, got)
		}
		if got := nodeM.BalanceOf(b); !got.Equal(decimal.NewFromInt(10)) {
			t.Fatalf("\t%s\tShould show B at 10 pending aware, got %s.", failed, got)
		}
		t.Logf("\t%s\tShould show A and B at 10 pending aware.", success)

		if _, err := nodeM.UpsertWalletTransaction(tx); err == nil {
			t.Fatalf("\t%s\tShould refuse the same transaction twice.", failed)
		}
		if nodeM.MempoolLength() != 1 {
			t.Fatalf("\t%s\tShould hold exactly one pending entry, got %d.", failed, nodeM.MempoolLength())
		}
		t.Logf("\t%s\tShould hold exactly one pending entry.", success)

		block, err := nodeM.ProduceBlock(context.Background())
		if err != nil {
			t.Fatalf("\t%s\tShould produce a block with the transaction: %s", failed, err)
		}

		if n := len(block.Transactions); n != 2 || !block.Transactions[n-1].IsCoinbase() {
			t.Fatalf("\t%s\tShould hold the transfer and the coinbase last.", failed)
		}
		t.Logf("\t%s\tShould hold the transfer and the coinbase last.", success)

		if got := nodeM.BalanceOf(m); !got.Equal(decimal.NewFromInt(20)) {
			t.Fatalf("\t%s\tShould pay the producer the reward, got %s.", failed, got)
		}
		t.Logf("\t%s\tShould pay the producer the reward.", success)

		if nodeM.MempoolLength() != 0 {
			t.Fatalf("\t%s\tShould remove the confirmed transaction from the mempool.", failed)
		}
		t.Logf("\t%s\tShould remove the confirmed transaction from the mempool.", success)

		if _, err := nodeM.UpsertWalletTransaction(tx); !errors.Is(err, state.ErrTxConfirmed) {
			t.Fatalf("\t%s\tShould refuse a transaction already confirmed: %v", failed, err)
		}
		t.Logf("\t%s\tShould refuse a transaction already confirmed.", success)
	}
}

func Test_InsufficientFunds(t *testing.T) {
	a := newKey(t)

	t.Log("Given the need to refuse unaffordable transactions.")
	{
		s := newState(t, testGenesis(5), account(a), nil)
		produce(t, s, 1)

		if _, err := s.UpsertWalletTransaction(transfer(t, a, account(newKey(t)), 10)); !errors.Is(err, database.ErrInsufficientFunds) {
			t.Fatalf("\t%s\tShould refuse {A->B, 10} when A holds 5: %v", failed, err)
		}
		t.Logf("\t%s\tShould refuse {A->B, 10} when A holds 5.", success)

		if s.MempoolLength() != 0 {
			t.Fatalf("\t%s\tShould leave the mempool empty.", failed)
		}
		t.Logf("\t%s\tShould leave the mempool empty.", success)
	}
}

func Test_ForkChoice(t *testing.T) {
	g := testGenesis(20)

	t.Log("Given the need to pick the longest valid chain.")
	{
		x := newState(t, g, account(newKey(t)), nil)
		y := newState(t, g, account(newKey(t)), nil)
		z := newState(t, g, account(newKey(t)), nil)

		produce(t, x, 2)
		produce(t, y, 3)
		produce(t, z, 3)

		if err := x.ReplaceChain(y.Chain()); err != nil {
			t.Fatalf("\t%s\tShould adopt a chain one block longer: %s", failed, err)
		}
		if x.LatestBlock().Hash() != y.LatestBlock().Hash() {
			t.Fatalf("\t%s\tShould hold the adopted tip.", failed)
		}
		t.Logf("\t%s\tShould adopt a chain one block longer.", success)

		tip := y.LatestBlock().Hash()
		if err := y.ReplaceChain(z.Chain()); !errors.Is(err, state.ErrChainNotLonger) {
			t.Fatalf("\t%s\tShould keep the incumbent on equal length: %v", failed, err)
		}
		if y.LatestBlock().Hash() != tip {
			t.Fatalf("\t%s\tShould not change the tip on equal length.", failed)
		}
		t.Logf("\t%s\tShould keep the incumbent on equal length.", success)

		produce(t, z, 1)
		bad := z.Chain()
		last := &bad[len(bad)-1]
		last.Transactions = append([]database.Tx(nil), last.Transactions...)
		last.Transactions[len(last.Transactions)-1].Amount = decimal.NewFromInt(1000)

		if err := y.ReplaceChain(bad); err == nil || errors.Is(err, state.ErrChainNotLonger) {
			t.Fatalf("\t%s\tShould reject a longer chain that fails validation: %v", failed, err)
		}
		if y.LatestBlock().Hash() != tip {
			t.Fatalf("\t%s\tShould not change the tip for an invalid chain.", failed)
		}
		t.Logf("\t%s\tShould reject a longer chain that fails validation.", success)

		other := testGenesis(20)
		other.Date = other.Date.Add(time.Hour)
		w := newState(t, other, account(newKey(t)), nil)
		produce(t, w, 6)
		if err := y.ReplaceChain(w.Chain()); err == nil {
			t.Fatalf("\t%s\tShould reject a chain from another genesis.", failed)
		}
		t.Logf("\t%s\tShould reject a chain from another genesis.", success)
	}
}

func Test_ForkChoiceMempool(t *testing.T) {
	a := newKey(t)
	b := account(newKey(t))
	g := testGenesis(20)

	t.Log("Given the need to keep the mempool in step with an adopted chain.")
	{
		x := newState(t, g, account(a), nil)
		produce(t, x, 1)

		y := newState(t, g, account(newKey(t)), nil)
		if err := y.ReplaceChain(x.Chain()); err != nil {
			t.Fatalf("\t%s\tShould adopt the funded chain: %s", failed, err)
		}

		tx := transfer(t, a, b, 10)
		if _, err := y.UpsertWalletTransaction(tx); err != nil {
			t.Fatalf("\t%s\tShould accept the transfer while partitioned: %s", failed, err)
		}
		if _, err := x.UpsertNodeTransaction(tx); err != nil {
			t.Fatalf("\t%s\tShould accept the transfer on the other node: %s", failed, err)
		}
		produce(t, x, 1)

		if err := y.ReplaceChain(x.Chain()); err != nil {
			t.Fatalf("\t%s\tShould adopt the chain that confirmed the transfer: %s", failed, err)
		}
		if y.MempoolLength() != 0 {
			t.Fatalf("\t%s\tShould drop the transfer confirmed by the adopted chain, got %d pending.", failed, y.MempoolLength())
		}
		if got := y.BalanceOf(b); !got.Equal(decimal.NewFromInt(10)) {
			t.Fatalf("\t%s\tShould show B at 10 once, got %s.", failed, got)
		}
		t.Logf("\t%s\tShould drop the transfer confirmed by the adopted chain.", success)
	}

	t.Log("Given the need to re-offer transactions from a discarded fork.")
	{
		x := newState(t, g, account(a), nil)
		produce(t, x, 1)

		y := newState(t, g, account(newKey(t)), nil)
		if err := y.ReplaceChain(x.Chain()); err != nil {
			t.Fatalf("\t%s\tShould adopt the funded chain: %s", failed, err)
		}

		tx := transfer(t, a, b, 10)
		if _, err := y.UpsertWalletTransaction(tx); err != nil {
			t.Fatalf("\t%s\tShould accept the transfer: %s", failed, err)
		}
		produce(t, y, 1)
		if y.MempoolLength() != 0 {
			t.Fatalf("\t%s\tShould confirm the transfer on the short fork.", failed)
		}

		produce(t, x, 2)
		if err := y.ReplaceChain(x.Chain()); err != nil {
			t.Fatalf("\t%s\tShould adopt the longer fork: %s", failed, err)
		}

		pending := y.Mempool()
		if len(pending) != 1 || pending[0].ID() != tx.ID() {
			t.Fatalf("\t%s\tShould return the orphaned transfer to the mempool, got %d pending.", failed, len(pending))
		}
		t.Logf("\t%s\tShould return the orphaned transfer to the mempool.", success)

		if got := y.BalanceOf(b); !got.Equal(decimal.NewFromInt(10)) {
			t.Fatalf("\t%s\tShould show B at 10 pending aware, got %s.", failed, got)
		}
		t.Logf("\t%s\tShould show B at 10 pending aware.", success)
	}
}

func Test_SignatureReplay(t *testing.T) {
	a := newKey(t)

	t.Log("Given the need to refuse re-encoded copies of a signed transaction.")
	{
		s := newState(t, testGenesis(20), account(a), nil)
		produce(t, s, 1)

		tx := transfer(t, a, account(newKey(t)), 5)
		if _, err := s.UpsertWalletTransaction(tx); err != nil {
			t.Fatalf("\t%s\tShould accept the original transfer: %s", failed, err)
		}

		upper := tx
		upper.Signature = "0x" + strings.ToUpper(tx.Signature[2:])

		raw := hexutil.MustDecode(tx.Signature)
		raw[crypto.RecoveryIDOffset] ^= 1
		flipped := tx
		flipped.Signature = hexutil.Encode(raw)

		for i, variant := range []database.Tx{upper, flipped} {
			if _, err := s.UpsertWalletTransaction(variant); !errors.Is(err, database.ErrInvalidSignature) {
				t.Fatalf("\t%s\tTest %d:\tShould refuse the re-encoded signature: %v", failed, i, err)
			}
			t.Logf("\t%s\tTest %d:\tShould refuse the re-encoded signature.", success, i)
		}

		if s.MempoolLength() != 1 {
			t.Fatalf("\t%s\tShould hold exactly one pending entry, got %d.", failed, s.MempoolLength())
		}
		t.Logf("\t%s\tShould hold exactly one pending entry.", success)

		produce(t, s, 1)
		if _, err := s.UpsertWalletTransaction(upper); err == nil {
			t.Fatalf("\t%s\tShould refuse a re-encoded copy of a confirmed transfer.", failed)
		}
		t.Logf("\t%s\tShould refuse a re-encoded copy of a confirmed transfer.", success)
	}
}

func Test_ChainInvariants(t *testing.T) {
	a := newKey(t)
	b := newKey(t)

	t.Log("Given the need to keep the chain linked and balances non negative.")
	{
		s := newState(t, testGenesis(20), account(a), nil)
		produce(t, s, 2)

		for _, amount := range []int64{15, 10, 10} {
			if _, err := s.UpsertWalletTransaction(transfer(t, a, account(b), amount)); err != nil {
				t.Fatalf("\t%s\tShould accept the transfer of %d: %s", failed, amount, err)
			}
			time.Sleep(2 * time.Millisecond)
		}
		produce(t, s, 12)

		chain := s.Chain()
		if err := database.ValidateLinkage(chain); err != nil {
			t.Fatalf("\t%s\tShould keep every block linked to its parent: %s", failed, err)
		}
		t.Logf("\t%s\tShould keep every block linked to its parent.", success)

		for i := 1; i <= len(chain); i++ {
			r, err := database.ReplayChain(chain[:i])
			if err != nil {
				t.Fatalf("\t%s\tShould replay prefix %d: %s", failed, i, err)
			}
			for acct, bal := range r.Balances() {
				if bal.IsNegative() {
					t.Fatalf("\t%s\tShould never see %s negative at prefix %d.", failed, acct, i)
				}
			}
		}
		t.Logf("\t%s\tShould never see a negative balance at any prefix.", success)

		if chain[11].Difficulty != 1 {
			t.Fatalf("\t%s\tShould keep the difficulty at the floor after a slow interval, got %d.", failed, chain[11].Difficulty)
		}
		t.Logf("\t%s\tShould keep the difficulty at the floor after a slow interval.", success)
	}
}

func Test_AppendBlock(t *testing.T) {
	a := newKey(t)

	t.Log("Given the need to reject invalid blocks.")
	{
		producer := newState(t, testGenesis(20), account(a), nil)
		produce(t, producer, 1)
		block := producer.LatestBlock()

		s := newState(t, testGenesis(20), account(newKey(t)), nil)

		greedy := block
		greedy.Transactions = []database.Tx{database.NewCoinbaseTx(block.Producer, decimal.NewFromInt(21), block.Timestamp)}
		if err := s.AppendBlock(greedy); err == nil {
			t.Fatalf("\t%s\tShould reject a coinbase above the reward.", failed)
		}
		t.Logf("\t%s\tShould reject a coinbase above the reward.", success)

		double := block
		double.Transactions = append([]database.Tx{database.NewCoinbaseTx(block.Producer, decimal.NewFromInt(20), 1)}, block.Transactions...)
		if err := s.AppendBlock(double); err == nil {
			t.Fatalf("\t%s\tShould reject two coinbase transactions.", failed)
		}
		t.Logf("\t%s\tShould reject two coinbase transactions.", success)

		ahead := block
		ahead.Index = 5
		if err := s.AppendBlock(ahead); !errors.Is(err, database.ErrChainForked) {
			t.Fatalf("\t%s\tShould ask for a resync on a gap: %v", failed, err)
		}
		t.Logf("\t%s\tShould ask for a resync on a gap.", success)

		if err := s.ProcessProposedBlock(block); err != nil {
			t.Fatalf("\t%s\tShould accept the valid peer block: %s", failed, err)
		}
		t.Logf("\t%s\tShould accept the valid peer block.", success)

		if err := s.ProcessProposedBlock(block); !errors.Is(err, state.ErrBlockKnown) {
			t.Fatalf("\t%s\tShould report a block it already holds: %v", failed, err)
		}
		t.Logf("\t%s\tShould report a block it already holds.", success)
	}
}

func Test_LoadOrInit(t *testing.T) {
	a := newKey(t)

	t.Log("Given the need to restore the chain from a snapshot.")
	{
		strg, err := memory.New()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct storage: %s", failed, err)
		}

		s := newState(t, testGenesis(20), account(a), strg)
		produce(t, s, 2)

		restored := newState(t, testGenesis(20), account(a), strg)
		if restored.Height() != 2 {
			t.Fatalf("\t%s\tShould restore a valid snapshot, got height %d.", failed, restored.Height())
		}
		t.Logf("\t%s\tShould restore a valid snapshot.", success)

		chain := s.Chain()
		chain[2].PreviousHash = "0xdead"
		if err := strg.Save(chain); err != nil {
			t.Fatalf("\t%s\tShould be able to save: %s", failed, err)
		}

		fresh := newState(t, testGenesis(20), account(a), strg)
		if fresh.Height() != 0 {
			t.Fatalf("\t%s\tShould fall back to genesis on an invalid snapshot, got height %d.", failed, fresh.Height())
		}
		t.Logf("\t%s\tShould fall back to genesis on an invalid snapshot.", success)
	}
}
