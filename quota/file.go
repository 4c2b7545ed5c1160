package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	sr "github.com/ineyio/searchrouter"
)

// FileStore keeps the ledger snapshot in a human-readable JSON file.
type FileStore struct {
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a store at path, or at searchrouter.DefaultLedgerPath
// in the working directory when path is empty.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = sr.DefaultLedgerPath
	}
	return &FileStore{path: path}
}

// Path returns the file location.
func (s *FileStore) Path() string { return s.path }

// Load reads the snapshot from disk.
func (s *FileStore) Load(_ context.Context) (Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, sr.ErrSnapshotNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("quota: read %s: %w", s.path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("quota: decode %s: %w", s.path, err)
	}
	return snap, nil
}

// Save writes the snapshot to a temporary file and renames it into place.
func (s *FileStore) Save(_ context.Context, snap Snapshot) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("quota: create directory: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("quota: encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".quota-*.tmp")
	if err != nil {
		return fmt.Errorf("quota: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("quota: write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("quota: close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("quota: replace %s: %w", s.path, err)
	}
	return nil
}
