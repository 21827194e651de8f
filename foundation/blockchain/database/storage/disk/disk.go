// Package disk implements the database.Storage interface as a single human
// readable JSON snapshot file.
package disk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/arthachain/ledger/foundation/blockchain/database"
)

// Disk represents the serialization implementation for reading and storing
// the chain as one JSON file. A save writes a temporary file and renames it
// over the snapshot so a crash never leaves a partially written file behind.
type Disk struct {
	path string
}

// New constructs a Disk value for use, creating the parent directory.
func New(path string) (*Disk, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	return &Disk{path: path}, nil
}

// Close in this implementation has nothing to do since the file is
// opened and closed on every operation.
func (d *Disk) Close() error {
	return nil
}

// Load reads the snapshot file.
func (d *Disk) Load() ([]database.Block, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, database.ErrNoSnapshot
		}
		return nil, err
	}

	var chain []database.Block
	if err := json.Unmarshal(data, &chain); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}

	if len(chain) == 0 {
		return nil, database.ErrNoSnapshot
	}

	return chain, nil
}

// Save rewrites the snapshot file with the specified chain.
func (d *Disk) Save(chain []database.Block) error {

	// Marshal the chain for writing to disk in a more human readable format.
	data, err := json.MarshalIndent(chain, "", "  ")
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(d.path), filepath.Base(d.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, d.path)
}
