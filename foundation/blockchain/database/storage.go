package database

import "errors"

// ErrNoSnapshot is returned by Storage.Load when nothing was saved yet.
var ErrNoSnapshot = errors.New("no snapshot")

// Storage persists the chain snapshot. A snapshot is rewritten in full after
// every successful append or chain replacement.
type Storage interface {
	Load() ([]Block, error)
	Save(chain []Block) error
	Close() error
}
