// Package snapshot persists the last good copy of entity lists so they can be
// served while the remote store is unreachable.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when no snapshot exists for a key.
var ErrNotFound = errors.New("snapshot not found")

const keyPrefix = "list:"

// Entry is a stored snapshot.
type Entry struct {
	SavedAt time.Time       `json:"saved_at"`
	Items   json.RawMessage `json:"items"`
}

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens (or creates) a snapshot store at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	return open(badger.DefaultOptions(path), logger)
}

// OpenInMemory opens a store that keeps everything in memory.
func OpenInMemory(logger *slog.Logger) (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true), logger)
}

func open(opts badger.Options, logger *slog.Logger) (*Store, error) {
	opts.Logger = nil
	opts.CompactL0OnClose = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot db: %w", err)
	}
	if logger != nil {
		logger.Info("Snapshot store opened", "path", opts.Dir, "in_memory", opts.InMemory)
	}
	return &Store{db: db, logger: logger}, nil
}

// Save stores items under key, replacing any previous snapshot.
func (s *Store) Save(key string, items any) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	data, err := json.Marshal(Entry{SavedAt: time.Now().UTC(), Items: raw})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot entry: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+key), data)
	})
}

// Load decodes the snapshot stored under key into dest and returns when it
// was saved.
func (s *Store) Load(key string, dest any) (time.Time, error) {
	var entry Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}

	if err := json.Unmarshal(entry.Items, dest); err != nil {
		return time.Time{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return entry.SavedAt, nil
}

// Delete removes the snapshot under key. Missing keys are not an error.
func (s *Store) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + key))
	})
}

// Close gracefully closes the database.
func (s *Store) Close() error {
	if s.logger != nil {
		s.logger.Info("Closing snapshot store")
	}
	return s.db.Close()
}

// Shutdown implements do.Shutdowner.
func (s *Store) Shutdown() error {
	return s.Close()
}
