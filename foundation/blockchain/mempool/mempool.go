// Package mempool maintains the pool of transactions waiting to be included
// in a block.
package mempool

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arthachain/ledger/foundation/blockchain/database"
	"github.com/arthachain/ledger/foundation/blockchain/mempool/selector"
	"github.com/shopspring/decimal"
)

// Set of errors returned by Submit.
var (
	ErrMempoolFull = errors.New("mempool is full")
	ErrTxExists    = errors.New("transaction already pending")
	ErrCoinbase    = errors.New("coinbase transactions can't be submitted")
)

// Defaults applied when a Config value is left at zero.
const (
	DefaultCapacity = 5000
	DefaultExpiry   = 30 * time.Minute
)

// Config represents the configuration of the pool.
type Config struct {
	Capacity int
	Expiry   time.Duration
	Strategy string
}

// entry is a pending transaction and the time the pool accepted it.
type entry struct {
	tx    database.Tx
	added time.Time
}

// Mempool represents a bounded cache of transactions keyed by transaction id.
// A full pool refuses new submissions instead of evicting older entries.
type Mempool struct {
	mu       sync.RWMutex
	pool     map[string]entry
	capacity int
	expiry   time.Duration
	selectFn selector.Func
}

// New constructs a new mempool using the configured select strategy.
func New(cfg Config) (*Mempool, error) {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultExpiry
	}
	if cfg.Strategy == "" {
		cfg.Strategy = selector.StrategyTimestamp
	}

	selectFn, err := selector.Retrieve(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	mp := Mempool{
		pool:     make(map[string]entry),
		capacity: cfg.Capacity,
		expiry:   cfg.Expiry,
		selectFn: selectFn,
	}

	return &mp, nil
}

// Count returns the current number of transactions in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Contains reports whether the transaction id is pending.
func (mp *Mempool) Contains(id string) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	_, exists := mp.pool[id]
	return exists
}

// Submit validates the transaction and stores it. The confirmed value is the
// sender's balance on the chain; pending entries touching the sender are
// added on top so funds already reserved can't be spent twice.
func (mp *Mempool) Submit(tx database.Tx, confirmed decimal.Decimal, now time.Time) (database.Tx, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pruneExpired(now)

	id := tx.ID()
	if _, exists := mp.pool[id]; exists {
		return database.Tx{}, ErrTxExists
	}

	if len(mp.pool) >= mp.capacity {
		return database.Tx{}, ErrMempoolFull
	}

	if tx.IsCoinbase() {
		return database.Tx{}, ErrCoinbase
	}

	if err := tx.Validate(); err != nil {
		return database.Tx{}, err
	}

	available := confirmed.Add(mp.pending(tx.Sender))
	if available.LessThan(tx.Amount) {
		return database.Tx{}, fmt.Errorf("%w: %s has %s available, needs %s", database.ErrInsufficientFunds, tx.Sender, database.FormatAmount(available), database.FormatAmount(tx.Amount))
	}

	mp.pool[id] = entry{tx: tx, added: now}

	return tx, nil
}

// Pending returns the net effect of the pending transactions on the account.
func (mp *Mempool) Pending(account database.AccountID) decimal.Decimal {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return mp.pending(account)
}

// PruneExpired removes entries older than the expiry horizon and returns
// how many were removed.
func (mp *Mempool) PruneExpired(now time.Time) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	return mp.pruneExpired(now)
}

// Delete removes the specified transaction ids from the pool.
func (mp *Mempool) Delete(ids ...string) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	for _, id := range ids {
		delete(mp.pool, id)
	}
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]entry)
}

// Copy returns the pending transactions in select strategy order.
func (mp *Mempool) Copy() []database.Tx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return mp.selectFn(mp.values())
}

// DrainForBlock selects up to maxCount transactions, in select strategy
// order, that stay jointly affordable when applied one after another to the
// balances. A transaction that would take its sender negative given the
// earlier selections is skipped. The balances map is updated in place and
// the selected transactions stay pending until their block is appended.
// A negative maxCount selects without limit.
func (mp *Mempool) DrainForBlock(balances map[database.AccountID]decimal.Decimal, maxCount int) []database.Tx {
	mp.mu.RLock()
	ordered := mp.selectFn(mp.values())
	mp.mu.RUnlock()

	var selected []database.Tx
	for _, tx := range ordered {
		if maxCount >= 0 && len(selected) == maxCount {
			break
		}

		if !applyTx(balances, tx) {
			continue
		}

		selected = append(selected, tx)
	}

	return selected
}

// Reconcile brings the pool in line with a new canonical chain. Entries the
// chain already confirms are removed, then the remaining entries are
// replayed oldest first against the chain balances and the ones no longer
// affordable are dropped. It returns the number of entries removed.
func (mp *Mempool) Reconcile(replay *database.Replay) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var removed int
	for id := range mp.pool {
		if replay.IsConfirmed(id) {
			delete(mp.pool, id)
			removed++
		}
	}

	oldestFirst, _ := selector.Retrieve(selector.StrategyTimestamp)

	balances := replay.Balances()
	for _, tx := range oldestFirst(mp.values()) {
		if !applyTx(balances, tx) {
			delete(mp.pool, tx.ID())
			removed++
		}
	}

	return removed
}

// =============================================================================

// applyTx moves the amount between the balances unless the sender would go
// negative, in which case nothing changes and false is returned.
func applyTx(balances map[database.AccountID]decimal.Decimal, tx database.Tx) bool {
	bal := balances[tx.Sender].Sub(tx.Amount)
	if bal.IsNegative() {
		return false
	}

	balances[tx.Sender] = bal
	balances[tx.Recipient] = balances[tx.Recipient].Add(tx.Amount)

	return true
}

// pending sums the effect of every pending entry on the account. The caller
// must hold the lock.
func (mp *Mempool) pending(account database.AccountID) decimal.Decimal {
	net := decimal.Zero
	for _, e := range mp.pool {
		if e.tx.Sender == account {
			net = net.Sub(e.tx.Amount)
		}
		if e.tx.Recipient == account {
			net = net.Add(e.tx.Amount)
		}
	}

	return net
}

// pruneExpired removes expired entries. The caller must hold the lock.
func (mp *Mempool) pruneExpired(now time.Time) int {
	var removed int
	for id, e := range mp.pool {
		if now.Sub(e.added) > mp.expiry {
			delete(mp.pool, id)
			removed++
		}
	}

	return removed
}

// values returns the pending transactions in no particular order. The
// caller must hold the lock.
func (mp *Mempool) values() []database.Tx {
	list := make([]database.Tx, 0, len(mp.pool))
	for _, e := range mp.pool {
		list = append(list, e.tx)
	}

	return list
}
