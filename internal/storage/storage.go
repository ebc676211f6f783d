// Package storage provides the client's local persistent key-value slot.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var ErrNotFound = errors.New("key not found")

type Slot interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Close() error
}

const (
	BackendBolt   = "bolt"
	BackendBadger = "badger"
)

// Open creates the parent directory of path if needed and opens the slot with
// the named backend.
func Open(backend, path string) (Slot, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("error creating storage directory: %w", err)
	}

	switch backend {
	case BackendBolt, "":
		return OpenBolt(path)
	case BackendBadger:
		return OpenBadger(path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
