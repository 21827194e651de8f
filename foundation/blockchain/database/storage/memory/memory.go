// Package memory implements the database.Storage interface in memory. It is
// used by tests and by tooling that must not touch the snapshot on disk.
package memory

import (
	"sync"

	"github.com/arthachain/ledger/foundation/blockchain/database"
)

// Memory keeps the last saved chain in memory.
type Memory struct {
	mu    sync.RWMutex
	chain []database.Block
}

// New constructs an empty memory storage.
func New() (*Memory, error) {
	return &Memory{}, nil
}

// Close has nothing to release.
func (m *Memory) Close() error {
	return nil
}

// Load returns a copy of the last saved chain.
func (m *Memory) Load() ([]database.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.chain) == 0 {
		return nil, database.ErrNoSnapshot
	}

	return append([]database.Block(nil), m.chain...), nil
}

// Save keeps a copy of the chain.
func (m *Memory) Save(chain []database.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.chain = append([]database.Block(nil), chain...)
	return nil
}
