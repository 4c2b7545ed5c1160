// Package badger provides a BadgerDB-backed snapshot store for the quota ledger.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	sr "github.com/ineyio/searchrouter"
	"github.com/ineyio/searchrouter/quota"
)

// Store persists ledger snapshots as one key per backend.
type Store struct {
	db     *badger.DB
	prefix string
	owned  bool
}

var _ quota.Store = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix sets the key prefix (default "searchrouter/quota/").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// New creates a store over an open database.
func New(db *badger.DB, opts ...Option) *Store {
	s := &Store{db: db, prefix: "searchrouter/quota/"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens a BadgerDB database in dir, creating the directory if needed.
// An empty dir opens an in-memory database. Close releases the database.
func Open(dir string, opts ...Option) (*Store, error) {
	var bopts badger.Options
	if dir == "" {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("quota/badger: create directory: %w", err)
		}
		bopts = badger.DefaultOptions(dir)
	}
	bopts.Logger = &loggerAdapter{logger: slog.Default()}
	bopts.Compression = options.None

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("quota/badger: open: %w", err)
	}

	s := New(db, opts...)
	s.owned = true
	return s, nil
}

// Close closes the database if the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func (s *Store) lastResetKey() []byte { return []byte(s.prefix + "last_reset") }
func (s *Store) entryPrefix() []byte  { return []byte(s.prefix + "entry/") }

func (s *Store) entryKey(backend string) []byte {
	return append(s.entryPrefix(), backend...)
}

// Load reads the snapshot.
func (s *Store) Load(_ context.Context) (quota.Snapshot, error) {
	var snap quota.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.lastResetKey())
		if errors.Is(err, badger.ErrKeyNotFound) {
			return sr.ErrSnapshotNotFound
		}
		if err != nil {
			return err
		}
		err = item.Value(func(val []byte) error {
			t, err := quota.ParseTimestamp(string(val))
			snap.LastReset = t
			return err
		})
		if err != nil {
			return err
		}

		snap.Quotas = make(map[string]quota.Entry)
		prefix := s.entryPrefix()
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			name := strings.TrimPrefix(string(item.Key()), string(prefix))
			var e quota.Entry
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
				return fmt.Errorf("decode entry %q: %w", name, err)
			}
			snap.Quotas[name] = e
		}
		return nil
	})
	if errors.Is(err, sr.ErrSnapshotNotFound) {
		return quota.Snapshot{}, err
	}
	if err != nil {
		return quota.Snapshot{}, fmt.Errorf("quota/badger: load: %w", err)
	}
	return snap, nil
}

// Save replaces the stored snapshot in a single transaction.
func (s *Store) Save(_ context.Context, snap quota.Snapshot) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		prefix := s.entryPrefix()
		var stale [][]byte
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			name := strings.TrimPrefix(string(it.Item().Key()), string(prefix))
			if _, ok := snap.Quotas[name]; !ok {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		it.Close()
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}

		for name, e := range snap.Quotas {
			val, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := txn.Set(s.entryKey(name), val); err != nil {
				return err
			}
		}
		return txn.Set(s.lastResetKey(), []byte(snap.LastReset.Format(time.RFC3339Nano)))
	})
	if err != nil {
		return fmt.Errorf("quota/badger: save: %w", err)
	}
	return nil
}

// loggerAdapter adapts slog.Logger to the badger.Logger interface.
type loggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*loggerAdapter)(nil)

func (a *loggerAdapter) Errorf(msg string, items ...any) {
	a.logger.Error(fmt.Sprintf(msg, items...))
}

func (a *loggerAdapter) Warningf(msg string, items ...any) {
	a.logger.Warn(fmt.Sprintf(msg, items...))
}

func (a *loggerAdapter) Infof(msg string, items ...any) {
	a.logger.Debug(fmt.Sprintf(msg, items...))
}

func (a *loggerAdapter) Debugf(msg string, items ...any) {
	a.logger.Debug(fmt.Sprintf(msg, items...))
}
