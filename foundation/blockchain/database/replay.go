package database

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInsufficientFunds is returned when a transfer would leave the sender
// with a negative balance.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Replay folds transactions in chain order into account balances. Balances
// are never stored; they are always derived by replaying history.
type Replay struct {
	balances  map[AccountID]decimal.Decimal
	confirmed map[string]struct{}
}

// NewReplay constructs an empty replay, the state before genesis.
func NewReplay() *Replay {
	return &Replay{
		balances:  make(map[AccountID]decimal.Decimal),
		confirmed: make(map[string]struct{}),
	}
}

// ReplayChain folds every transaction of the chain.
func ReplayChain(chain []Block) (*Replay, error) {
	r := NewReplay()
	for _, block := range chain {
		if err := r.ApplyBlock(block); err != nil {
			return nil, fmt.Errorf("block %d: %w", block.Index, err)
		}
	}

	return r, nil
}

// ApplyBlock folds the block's transactions in order. On error the replay
// is left partially applied and must be discarded.
func (r *Replay) ApplyBlock(block Block) error {
	for _, tx := range block.Transactions {
		if err := r.ApplyTx(tx); err != nil {
			return err
		}
	}

	return nil
}

// ApplyTx folds one transaction. A coinbase only credits its recipient.
// A transfer must not take the sender's running balance below zero.
func (r *Replay) ApplyTx(tx Tx) error {
	if !tx.IsCoinbase() {
		bal := r.balances[tx.Sender].Sub(tx.Amount)
		if bal.IsNegative() {
			return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, tx.Sender, FormatAmount(r.balances[tx.Sender]), FormatAmount(tx.Amount))
		}
		r.balances[tx.Sender] = bal
		r.confirmed[tx.ID()] = struct{}{}
	}

	r.balances[tx.Recipient] = r.balances[tx.Recipient].Add(tx.Amount)

	return nil
}

// Balance returns the replayed balance of the account.
func (r *Replay) Balance(account AccountID) decimal.Decimal {
	return r.balances[account]
}

// Balances returns a copy of every replayed balance.
func (r *Replay) Balances() map[AccountID]decimal.Decimal {
	cpy := make(map[AccountID]decimal.Decimal, len(r.balances))
	for k, v := range r.balances {
		cpy[k] = v
	}

	return cpy
}

// IsConfirmed reports whether the transaction id was already replayed.
func (r *Replay) IsConfirmed(id string) bool {
	_, exists := r.confirmed[id]
	return exists
}
