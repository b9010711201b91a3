// Package evidence is the append-only settlement log behind the history and
// leaderboard views.
package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/playperu/geooracle/internal/geoguess"
)

// Store persists settlement records. Appends are serialized by the
// implementation; Records returns a snapshot in append order.
type Store interface {
	Append(ctx context.Context, rec geoguess.SettlementRecord) error
	Records(ctx context.Context) ([]geoguess.SettlementRecord, error)
}

// FileStore keeps the log in memory and rewrites the whole JSON file on
// every append.
type FileStore struct {
	path    string
	logger  *slog.Logger
	mu      sync.Mutex
	records []geoguess.SettlementRecord
}

// OpenFileStore loads path if present. An unreadable or malformed file is
// logged and treated as an empty log.
func OpenFileStore(logger *slog.Logger, path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}

	s := &FileStore{path: path, logger: logger}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		logger.Error("failed to load history file", "path", path, "error", err)
		return s, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		logger.Error("failed to load history file", "path", path, "error", err)
		return s, nil
	}
	for _, r := range raw {
		var rec geoguess.SettlementRecord
		if err := json.Unmarshal(r, &rec); err != nil {
			logger.Warn("skipping malformed history entry", "path", path, "error", err)
			continue
		}
		s.records = append(s.records, rec)
	}
	logger.Info("loaded settlement history", "path", path, "records", len(s.records))
	return s, nil
}

// Path is the backing file.
func (s *FileStore) Path() string { return s.path }

// Check reports whether the history directory is still usable.
func (s *FileStore) Check(_ context.Context) error {
	info, err := os.Stat(filepath.Dir(s.path))
	if err != nil {
		return fmt.Errorf("stat history dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("history dir %s is not a directory", filepath.Dir(s.path))
	}
	return nil
}

func (s *FileStore) Append(_ context.Context, rec geoguess.SettlementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := append(s.records[:len(s.records):len(s.records)], rec)
	if err := s.write(next); err != nil {
		return err
	}
	s.records = next
	return nil
}

func (s *FileStore) Records(_ context.Context) ([]geoguess.SettlementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]geoguess.SettlementRecord(nil), s.records...), nil
}

// write replaces the file via a temp file and rename.
func (s *FileStore) write(records []geoguess.SettlementRecord) error {
	if records == nil {
		records = []geoguess.SettlementRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp history file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing history: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing history: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing history file: %w", err)
	}
	return nil
}
