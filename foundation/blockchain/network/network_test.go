package network_test

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arthachain/ledger/foundation/blockchain/consensus/pow"
	"github.com/arthachain/ledger/foundation/blockchain/database"
	"github.com/arthachain/ledger/foundation/blockchain/database/storage/memory"
	"github.com/arthachain/ledger/foundation/blockchain/genesis"
	"github.com/arthachain/ledger/foundation/blockchain/network"
	"github.com/arthachain/ledger/foundation/blockchain/state"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func newState(t *testing.T, beneficiary *ecdsa.PrivateKey) *state.State {
	t.Helper()

	g := genesis.Genesis{
		Date:             time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		ChainID:          99,
		Consensus:        genesis.ConsensusPOW,
		TransPerBlock:    10,
		Difficulty:       1,
		RetargetInterval: 10,
		BlockTime:        3,
		MiningReward:     decimal.NewFromInt(20),
	}

	strg, err := memory.New()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct storage: %s", failed, err)
	}

	s, err := state.New(state.Config{
		Beneficiary: database.PublicKeyToAccountID(&beneficiary.PublicKey),
		Genesis:     g,
		Consensus:   pow.New(pow.Config{RetargetInterval: g.RetargetInterval, BlockTime: 3 * time.Second}),
		Storage:     strg,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the state: %s", failed, err)
	}

	return s
}

func newNode(t *testing.T, s *state.State, cfg network.Config) *network.Node {
	t.Helper()

	cfg.Host = "127.0.0.1:0"
	cfg.State = s

	n, err := network.New(cfg)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the node: %s", failed, err)
	}

	if err := n.Start(); err != nil {
		t.Fatalf("\t%s\tShould be able to start the node: %s", failed, err)
	}
	t.Cleanup(n.Shutdown)

	return n
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()

	pk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a key: %s", failed, err)
	}

	return pk
}

// waitFor polls the condition until it holds or the deadline passes.
func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}

	return false
}

// =============================================================================

func Test_Message(t *testing.T) {
	t.Log("Given the need to encode and decode wire messages.")
	{
		msg, err := network.NewMessage(network.Hello{Address: "127.0.0.1:9080", Height: 7})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to build a message: %s", failed, err)
		}

		data, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to marshal a message: %s", failed, err)
		}

		var back network.Message
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("\t%s\tShould be able to unmarshal a message: %s", failed, err)
		}

		payload, err := back.Decode()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to decode the payload: %s", failed, err)
		}

		if hello, ok := payload.(network.Hello); !ok || hello.Height != 7 || hello.Address != "127.0.0.1:9080" {
			t.Fatalf("\t%s\tShould decode the HELLO payload, got %#v.", failed, payload)
		}
		t.Logf("\t%s\tShould decode the HELLO payload.", success)

		if _, err := (network.Message{Type: network.TypePing}).Decode(); err != nil {
			t.Fatalf("\t%s\tShould decode a PING without data: %s", failed, err)
		}
		t.Logf("\t%s\tShould decode a PING without data.", success)

		if _, err := (network.Message{Type: "GOSSIP"}).Decode(); !errors.Is(err, network.ErrUnknownMessage) {
			t.Fatalf("\t%s\tShould refuse an unknown type: %v", failed, err)
		}
		t.Logf("\t%s\tShould refuse an unknown type.", success)

		bad := network.Message{Type: network.TypeNewBlock, Data: json.RawMessage(`{"block":"nope"}`)}
		if _, err := bad.Decode(); err == nil {
			t.Fatalf("\t%s\tShould refuse a payload of the wrong shape.", failed)
		}
		t.Logf("\t%s\tShould refuse a payload of the wrong shape.", success)
	}
}

func Test_Sync(t *testing.T) {
	keyA := newKey(t)

	t.Log("Given the need to converge two nodes over the overlay.")
	{
		stateA := newState(t, keyA)
		for i := 0; i < 2; i++ {
			if _, err := stateA.ProduceBlock(context.Background()); err != nil {
				t.Fatalf("\t%s\tShould be able to produce a block: %s", failed, err)
			}
		}

		nodeA := newNode(t, stateA, network.Config{})

		stateB := newState(t, newKey(t))
		nodeB := newNode(t, stateB, network.Config{BootstrapPeers: []string{nodeA.Addr()}})

		if n := nodeB.Bootstrap(context.Background()); n != 1 {
			t.Fatalf("\t%s\tShould reach the bootstrap peer, reached %d.", failed, n)
		}
		t.Logf("\t%s\tShould reach the bootstrap peer.", success)

		if !waitFor(func() bool { return stateB.Height() == 2 }) {
			t.Fatalf("\t%s\tShould resync to height 2, got %d.", failed, stateB.Height())
		}
		t.Logf("\t%s\tShould resync to the longer chain.", success)

		if !waitFor(func() bool { return nodeA.PeerCount() == 1 }) {
			t.Fatalf("\t%s\tShould register the inbound peer.", failed)
		}
		if !waitFor(func() bool { return len(nodeA.Peers()) == 1 && nodeA.Peers()[0].Host == nodeB.Addr() }) {
			t.Fatalf("\t%s\tShould learn the listen address of the inbound peer.", failed)
		}
		t.Logf("\t%s\tShould learn the listen address of the inbound peer.", success)

		block, err := stateA.ProduceBlock(context.Background())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to produce a block: %s", failed, err)
		}
		nodeA.BroadcastBlock(block)

		if !waitFor(func() bool { return stateB.LatestBlock().Hash() == block.Hash() }) {
			t.Fatalf("\t%s\tShould append the gossiped block.", failed)
		}
		t.Logf("\t%s\tShould append the gossiped block.", success)

		tx, err := database.NewTx(database.PublicKeyToAccountID(&keyA.PublicKey), database.PublicKeyToAccountID(&newKey(t).PublicKey), decimal.NewFromInt(5))
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a transaction: %s", failed, err)
		}
		if tx, err = tx.Sign(keyA); err != nil {
			t.Fatalf("\t%s\tShould be able to sign the transaction: %s", failed, err)
		}

		if _, err := stateA.UpsertWalletTransaction(tx); err != nil {
			t.Fatalf("\t%s\tShould accept the transaction locally: %s", failed, err)
		}
		nodeA.BroadcastTransaction(tx)

		if !waitFor(func() bool { return stateB.MempoolLength() == 1 }) {
			t.Fatalf("\t%s\tShould admit the gossiped transaction.", failed)
		}
		t.Logf("\t%s\tShould admit the gossiped transaction.", success)

		if err := nodeB.Connect(context.Background(), nodeA.Addr()); !errors.Is(err, network.ErrAlreadyConnected) {
			t.Fatalf("\t%s\tShould refuse a second connection to the same peer: %v", failed, err)
		}
		t.Logf("\t%s\tShould refuse a second connection to the same peer.", success)

		if err := nodeB.Connect(context.Background(), nodeB.Addr()); !errors.Is(err, network.ErrSelfConnect) {
			t.Fatalf("\t%s\tShould refuse to connect to itself: %v", failed, err)
		}
		t.Logf("\t%s\tShould refuse to connect to itself.", success)
	}
}

func Test_Partition(t *testing.T) {
	keyA := newKey(t)

	t.Log("Given the need to drop pending transactions a resync confirmed.")
	{
		stateA := newState(t, keyA)
		if _, err := stateA.ProduceBlock(context.Background()); err != nil {
			t.Fatalf("\t%s\tShould be able to produce a block: %s", failed, err)
		}

		stateB := newState(t, newKey(t))
		if err := stateB.ReplaceChain(stateA.Chain()); err != nil {
			t.Fatalf("\t%s\tShould start from the same funded chain: %s", failed, err)
		}

		tx, err := database.NewTx(database.PublicKeyToAccountID(&keyA.PublicKey), database.PublicKeyToAccountID(&newKey(t).PublicKey), decimal.NewFromInt(5))
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a transaction: %s", failed, err)
		}
		if tx, err = tx.Sign(keyA); err != nil {
			t.Fatalf("\t%s\tShould be able to sign the transaction: %s", failed, err)
		}

		if _, err := stateA.UpsertWalletTransaction(tx); err != nil {
			t.Fatalf("\t%s\tShould accept the transaction on A: %s", failed, err)
		}
		if _, err := stateB.UpsertNodeTransaction(tx); err != nil {
			t.Fatalf("\t%s\tShould accept the transaction on B: %s", failed, err)
		}

		block, err := stateA.ProduceBlock(context.Background())
		if err != nil {
			t.Fatalf("\t%s\tShould mine the transaction on A while partitioned: %s", failed, err)
		}
		if stateB.MempoolLength() != 1 {
			t.Fatalf("\t%s\tShould still hold the transaction on B.", failed)
		}

		nodeA := newNode(t, stateA, network.Config{})
		nodeB := newNode(t, stateB, network.Config{BootstrapPeers: []string{nodeA.Addr()}})

		if n := nodeB.Bootstrap(context.Background()); n != 1 {
			t.Fatalf("\t%s\tShould reach A after the partition heals, reached %d.", failed, n)
		}

		if !waitFor(func() bool { return stateB.LatestBlock().Hash() == block.Hash() }) {
			t.Fatalf("\t%s\tShould resync to the chain of A.", failed)
		}
		t.Logf("\t%s\tShould resync to the chain of A.", success)

		if stateB.MempoolLength() != 0 {
			t.Fatalf("\t%s\tShould drop the confirmed transaction, got %d pending.", failed, stateB.MempoolLength())
		}
		t.Logf("\t%s\tShould drop the confirmed transaction.", success)
	}
}

func Test_Malformed(t *testing.T) {
	t.Log("Given the need to evict a peer sending garbage.")
	{
		node := newNode(t, newState(t, newKey(t)), network.Config{})

		conn, err := net.Dial("tcp", node.Addr())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to dial the node: %s", failed, err)
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))

		line, err := r.ReadBytes('\n')
		if err != nil {
			t.Fatalf("\t%s\tShould receive a HELLO: %s", failed, err)
		}

		var msg network.Message
		if err := json.Unmarshal(line, &msg); err != nil || msg.Type != network.TypeHello {
			t.Fatalf("\t%s\tShould receive a HELLO first, got %q.", failed, line)
		}
		t.Logf("\t%s\tShould receive a HELLO first.", success)

		if _, err := conn.Write([]byte("{\"type\":\"PING\"}\n")); err != nil {
			t.Fatalf("\t%s\tShould be able to write: %s", failed, err)
		}

		line, err = r.ReadBytes('\n')
		if err != nil || json.Unmarshal(line, &msg) != nil || msg.Type != network.TypePong {
			t.Fatalf("\t%s\tShould answer a PING with a PONG: %v", failed, err)
		}
		t.Logf("\t%s\tShould answer a PING with a PONG.", success)

		for i := 0; i < 3; i++ {
			if _, err := conn.Write([]byte("not json\n")); err != nil {
				t.Fatalf("\t%s\tShould be able to write: %s", failed, err)
			}
		}

		if _, err := r.ReadBytes('\n'); err == nil {
			t.Fatalf("\t%s\tShould close the connection after three malformed lines.", failed)
		}
		t.Logf("\t%s\tShould close the connection after three malformed lines.", success)

		if !waitFor(func() bool { return node.PeerCount() == 0 }) {
			t.Fatalf("\t%s\tShould evict the peer.", failed)
		}
		t.Logf("\t%s\tShould evict the peer.", success)
	}
}

func Test_BootstrapURL(t *testing.T) {
	t.Log("Given the need to find bootstrap peers over HTTP.")
	{
		seed := newNode(t, newState(t, newKey(t)), network.Config{})

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string][]string{"bootstrap_peers": {seed.Addr()}})
		}))
		defer srv.Close()

		node := newNode(t, newState(t, newKey(t)), network.Config{BootstrapURL: srv.URL})
		if n := node.Bootstrap(context.Background()); n != 1 {
			t.Fatalf("\t%s\tShould reach the peer served by the URL, reached %d.", failed, n)
		}
		t.Logf("\t%s\tShould reach the peer served by the URL.", success)

		fallback := newNode(t, newState(t, newKey(t)), network.Config{
			BootstrapURL:   "http://127.0.0.1:1/peers",
			BootstrapPeers: []string{seed.Addr()},
		})
		if n := fallback.Bootstrap(context.Background()); n != 1 {
			t.Fatalf("\t%s\tShould fall back to the static peers, reached %d.", failed, n)
		}
		t.Logf("\t%s\tShould fall back to the static peers.", success)

		lonely := newNode(t, newState(t, newKey(t)), network.Config{})
		if n := lonely.Bootstrap(context.Background()); n != 0 {
			t.Fatalf("\t%s\tShould run standalone without peers, reached %d.", failed, n)
		}
		t.Logf("\t%s\tShould run standalone without peers.", success)
	}
}

func Test_SelfConnect(t *testing.T) {
	t.Log("Given the need to never dial our own listener.")
	{
		node, err := network.New(network.Config{Host: "0.0.0.0:0", State: newState(t, newKey(t))})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the node: %s", failed, err)
		}
		if err := node.Start(); err != nil {
			t.Fatalf("\t%s\tShould be able to start the node: %s", failed, err)
		}
		defer node.Shutdown()

		_, port, err := net.SplitHostPort(node.Addr())
		if err != nil {
			t.Fatalf("\t%s\tShould advertise a host and port, got %q: %s", failed, node.Addr(), err)
		}

		aliases := []string{
			net.JoinHostPort("0.0.0.0", port),
			net.JoinHostPort("::", port),
			net.JoinHostPort("127.0.0.1", port),
			net.JoinHostPort("localhost", port),
		}

		for testID, addr := range aliases {
			f := func(t *testing.T) {
				if err := node.Connect(context.Background(), addr); !errors.Is(err, network.ErrSelfConnect) {
					t.Fatalf("\t%s\tTest %d:\tShould refuse to dial %s: %v", failed, testID, addr, err)
				}
				t.Logf("\t%s\tTest %d:\tShould refuse to dial %s.", success, testID, addr)
			}

			t.Run(addr, f)
		}

		twin, err := network.New(network.Config{
			Host:           "0.0.0.0:" + port,
			Advertise:      node.Addr(),
			State:          newState(t, newKey(t)),
			BootstrapPeers: aliases,
		})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the node: %s", failed, err)
		}
		defer twin.Shutdown()

		if n := twin.Bootstrap(context.Background()); n != 0 || len(twin.KnownPeers()) != 0 {
			t.Fatalf("\t%s\tShould skip bootstrap entries naming itself, reached %d.", failed, n)
		}
		t.Logf("\t%s\tShould skip bootstrap entries naming itself.", success)
	}
}
