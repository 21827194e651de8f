package state

import (
	"fmt"
	"time"

	"github.com/arthachain/ledger/foundation/blockchain/database"
)

// UpsertWalletTransaction accepts a transaction submitted locally, by a
// wallet or operator. On success it is shared with the network and block
// production is signaled.
func (s *State) UpsertWalletTransaction(tx database.Tx) (database.Tx, error) {
	tx, err := s.submit(tx)
	if err != nil {
		return database.Tx{}, err
	}

	s.Worker().SignalShareTx(tx)
	s.Worker().SignalStartMining()

	return tx, nil
}

// UpsertNodeTransaction accepts a transaction gossiped by a peer. The
// network layer re-broadcasts it, so only block production is signaled.
func (s *State) UpsertNodeTransaction(tx database.Tx) (database.Tx, error) {
	tx, err := s.submit(tx)
	if err != nil {
		return database.Tx{}, err
	}

	s.Worker().SignalStartMining()

	return tx, nil
}

// submit runs the mempool admission against the current chain under the
// state lock, so the balance seen is never a half applied block.
func (s *State) submit(tx database.Tx) (database.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	replay, err := database.ReplayChain(s.chain)
	if err != nil {
		return database.Tx{}, err
	}

	if replay.IsConfirmed(tx.ID()) {
		return database.Tx{}, ErrTxConfirmed
	}

	accepted, err := s.mempool.Submit(tx, replay.Balance(tx.Sender), time.Now())
	if err != nil {
		return database.Tx{}, fmt.Errorf("submit tx %s: %w", tx, err)
	}

	s.evHandler("viewer: tx: accepted: id[%s]: %s", accepted.ID(), accepted)

	return accepted, nil
}
