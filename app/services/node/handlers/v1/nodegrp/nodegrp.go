// Package nodegrp maintains the group of handlers for operating a node.
package nodegrp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/arthachain/ledger/business/sys/validate"
	"github.com/arthachain/ledger/business/web/errs"
	"github.com/arthachain/ledger/foundation/blockchain/database"
	"github.com/arthachain/ledger/foundation/blockchain/mempool"
	"github.com/arthachain/ledger/foundation/blockchain/peer"
	"github.com/arthachain/ledger/foundation/blockchain/state"
	"github.com/arthachain/ledger/foundation/events"
	"github.com/arthachain/ledger/foundation/nameservice"
	"github.com/arthachain/ledger/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Network represents the peer layer behavior the handlers need.
type Network interface {
	Peers() []peer.Status
	PeerCount() int
	KnownPeers() []peer.Peer
	Bootstrap(ctx context.Context) int
	RequestChain() int
}

// Handlers manages the set of node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	Net   Network
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// SubmitTransaction adds a signed wallet transaction to the mempool.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var stx submitTx
	if err := web.Decode(r, &stx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if err := validate.Check(stx); err != nil {
		return err
	}

	dbTx, err := toDatabaseTx(stx)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	h.Log.Infow("submit tx", "traceid", v.TraceID, "sender", dbTx.Sender, "recipient", dbTx.Recipient, "amount", dbTx.Amount)

	accepted, err := h.State.UpsertWalletTransaction(dbTx)
	if err != nil {
		switch {
		case errors.Is(err, mempool.ErrMempoolFull):
			return errs.NewTrusted(err, http.StatusServiceUnavailable)
		case errors.Is(err, mempool.ErrTxExists), errors.Is(err, state.ErrTxConfirmed):
			return errs.NewTrusted(err, http.StatusConflict)
		default:
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
	}

	resp := struct {
		Status string `json:"status"`
		ID     string `json:"id"`
	}{
		Status: "transaction added to mempool",
		ID:     accepted.ID(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Balance returns the pending aware balance of a single account.
func (h Handlers) Balance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	account, err := database.ToAccountID(web.Param(r, "address"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	bal := balance{
		Address: account,
		Name:    h.NS.Lookup(account),
		Balance: database.FormatAmount(h.State.BalanceOf(account)),
	}

	return web.Respond(ctx, w, bal, http.StatusOK)
}

// Accounts returns the balances of every account known to the chain.
func (h Handlers) Accounts(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	blkBalances := h.State.Balances()

	bals := make([]balance, 0, len(blkBalances))
	for account, amount := range blkBalances {
		if account == database.CoinbaseID {
			continue
		}
		bals = append(bals, balance{
			Address: account,
			Name:    h.NS.Lookup(account),
			Balance: database.FormatAmount(amount),
		})
	}
	sort.Slice(bals, func(i, j int) bool { return bals[i].Address < bals[j].Address })

	latest := h.State.LatestBlock()

	resp := balances{
		LatestBlock: latest.Hash(),
		Height:      latest.Index,
		Uncommitted: h.State.MempoolLength(),
		Balances:    bals,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Status returns a summary of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	latest := h.State.LatestBlock()

	st := status{
		Height:      latest.Index,
		LatestBlock: latest.Hash(),
		GenesisHash: h.State.Genesis().Block().Hash(),
		Consensus:   h.State.Consensus().Name(),
		Beneficiary: h.State.Beneficiary(),
		Uncommitted: h.State.MempoolLength(),
		Peers:       h.Net.PeerCount(),
		KnownPeers:  h.Net.KnownPeers(),
	}

	return web.Respond(ctx, w, st, http.StatusOK)
}

// Blocks returns the chain, optionally bounded by the from and to query
// parameters.
func (h Handlers) Blocks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	from, err := queryIndex(r, "from", 0)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	to, err := queryIndex(r, "to", state.QueryLatest)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if from > to {
		return errs.NewTrusted(fmt.Errorf("from %d is greater than to %d", from, to), http.StatusBadRequest)
	}

	dbBlocks := h.State.QueryBlocksByNumber(from, to)
	if len(dbBlocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	blocks := make([]block, len(dbBlocks))
	for i, blk := range dbBlocks {
		blocks[i] = block{
			Index:              blk.Index,
			Hash:               blk.Hash(),
			PreviousHash:       blk.PreviousHash,
			Timestamp:          blk.Timestamp,
			Producer:           blk.Producer,
			ProducerName:       h.NS.Lookup(blk.Producer),
			Nonce:              blk.Nonce,
			Difficulty:         blk.Difficulty,
			ValidatorPublicKey: blk.ValidatorPublicKey,
			Signature:          blk.Signature,
			Transactions:       h.toTxs(blk.Transactions),
		}
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.toTxs(h.State.Mempool()), http.StatusOK)
}

// Peers returns the connected peers.
func (h Handlers) Peers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.Net.Peers(), http.StatusOK)
}

// Sync forces a resynchronization with the network. With no connected
// peers the node bootstraps first.
func (h Handlers) Sync(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if h.Net.PeerCount() == 0 {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		h.Net.Bootstrap(ctx)
	}

	resp := struct {
		Requested int `json:"requested"`
	}{
		Requested: h.Net.RequestChain(),
	}

	return web.Respond(ctx, w, resp, http.StatusAccepted)
}

// SignalMining wakes the block producer.
func (h Handlers) SignalMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.State.Worker().SignalStartMining()

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "mining signaled",
	}

	return web.Respond(ctx, w, resp, http.StatusAccepted)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.Genesis(), http.StatusOK)
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return nil
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// =============================================================================

func (h Handlers) toTxs(dbTxs []database.Tx) []tx {
	txs := make([]tx, len(dbTxs))
	for i, dbTx := range dbTxs {
		txs[i] = tx{
			ID:            dbTx.ID(),
			Sender:        dbTx.Sender,
			SenderName:    h.NS.Lookup(dbTx.Sender),
			Recipient:     dbTx.Recipient,
			RecipientName: h.NS.Lookup(dbTx.Recipient),
			Amount:        database.FormatAmount(dbTx.Amount),
			Timestamp:     dbTx.Timestamp,
			Signature:     dbTx.Signature,
		}
	}
	return txs
}

func queryIndex(r *http.Request, key string, def uint64) (uint64, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, nil
	}

	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}
