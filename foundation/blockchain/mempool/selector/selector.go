// Package selector provides different transaction selecting algorithms.
package selector

import (
	"fmt"
	"sort"

	"github.com/arthachain/ledger/foundation/blockchain/database"
)

// List of different select strategies.
const (
	StrategyTimestamp = "timestamp"
	StrategyAmount    = "amount"
)

// Map of different select strategies with functions.
var strategies = map[string]Func{
	StrategyTimestamp: timestampSelect,
	StrategyAmount:    amountSelect,
}

// Func defines a function that takes the pending transactions and returns
// them in the order they should be considered for the next block. The input
// slice must not be modified.
type Func func(transactions []database.Tx) []database.Tx

// Retrieve returns the specified select strategy function.
func Retrieve(strategy string) (Func, error) {
	fn, exists := strategies[strategy]
	if !exists {
		return nil, fmt.Errorf("strategy %q does not exist", strategy)
	}
	return fn, nil
}

// =============================================================================

// timestampSelect orders the transactions oldest first.
func timestampSelect(transactions []database.Tx) []database.Tx {
	list := make(byTimestamp, len(transactions))
	copy(list, transactions)
	sort.Sort(list)

	return list
}

// amountSelect orders the transactions by largest transfer first.
func amountSelect(transactions []database.Tx) []database.Tx {
	list := make(byAmount, len(transactions))
	copy(list, transactions)
	sort.Sort(list)

	return list
}

// =============================================================================

// byTimestamp provides sorting support by the transaction timestamp. Ties
// are broken by id so every node orders the same set the same way.
type byTimestamp []database.Tx

// Len returns the number of transactions in the list.
func (bt byTimestamp) Len() int {
	return len(bt)
}

// Less helps to sort the list by timestamp in ascending order.
func (bt byTimestamp) Less(i, j int) bool {
	if bt[i].Timestamp != bt[j].Timestamp {
		return bt[i].Timestamp < bt[j].Timestamp
	}
	return bt[i].ID() < bt[j].ID()
}

// Swap moves transactions in the order of the timestamp value.
func (bt byTimestamp) Swap(i, j int) {
	bt[i], bt[j] = bt[j], bt[i]
}

// =============================================================================

// byAmount provides sorting support by the transferred amount.
type byAmount []database.Tx

// Len returns the number of transactions in the list.
func (ba byAmount) Len() int {
	return len(ba)
}

// Less helps to sort the list by amount in descending order, oldest first
// for equal amounts.
func (ba byAmount) Less(i, j int) bool {
	if c := ba[i].Amount.Cmp(ba[j].Amount); c != 0 {
		return c > 0
	}
	return byTimestamp(ba).Less(i, j)
}

// Swap moves transactions in the order of the amount value.
func (ba byAmount) Swap(i, j int) {
	ba[i], ba[j] = ba[j], ba[i]
}
