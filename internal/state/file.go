package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"paper-trading-bot/internal/logging"
)

// FileStore persists the snapshot as one JSON document. Writes go
// through a temp file and rename so a crash mid-write never leaves a
// truncated snapshot.
type FileStore struct {
	path string
	log  *logging.Logger
}

// NewFileStore creates a store writing to the given path.
func NewFileStore(path string, log *logging.Logger) *FileStore {
	return &FileStore{path: path, log: log.WithComponent("state_file")}
}

// Save writes the snapshot to disk.
func (s *FileStore) Save(_ context.Context, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("cannot save nil snapshot")
	}
	snap.SavedAt = time.Now().UTC()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state directory: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	s.log.Info("position snapshot saved", "path", s.path, "symbol", snap.Position.Symbol)
	return nil
}

// Load reads and deletes the snapshot. The delete happens only after a
// successful parse, so a corrupt file stays on disk for inspection.
func (s *FileStore) Load(_ context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", s.path, err)
	}
	if err := os.Remove(s.path); err != nil {
		s.log.Warn("could not remove consumed snapshot", "path", s.path, "error", err.Error())
	}
	s.log.Info("position snapshot loaded",
		"path", s.path,
		"symbol", snap.Position.Symbol,
		"saved_at", snap.SavedAt,
	)
	return &snap, nil
}

// Clear removes any persisted snapshot.
func (s *FileStore) Clear(_ context.Context) error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove snapshot: %w", err)
	}
	return nil
}
