// Package localstore persists the device state tree as one JSON file.
package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"attendpro/internal/app"

	"github.com/sirupsen/logrus"
)

type FileStore struct {
	mu     sync.Mutex
	path   string
	ws     *app.Workspace
	logger *logrus.Entry
}

func NewFileStore(path string, logger *logrus.Entry) *FileStore {
	return &FileStore{path: path, logger: logger}
}

func (f *FileStore) Path() string { return f.path }

// Load reads the state file. A missing file yields an empty state.
func (f *FileStore) Load() (*app.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return app.NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", f.path, err)
	}
	st := app.NewState()
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("failed to decode state file %s: %w", f.path, err)
	}
	return st, nil
}

// Save writes st atomically through a temp file in the same directory.
func (f *FileStore) Save(st *app.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.write(st)
}

func (f *FileStore) write(st *app.State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".attendpro-state-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Attach saves the workspace after every commit.
func (f *FileStore) Attach(ws *app.Workspace) {
	f.ws = ws
	ws.Observe(f)
}

// OnCommit snapshots and writes under one lock, so the file always ends on
// the newest state even when commits come from several goroutines.
func (f *FileStore) OnCommit(c app.Commit) {
	if f.ws == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.write(f.ws.Snapshot()); err != nil {
		f.logger.WithError(err).WithField("reason", c.Reason).Error("Failed to persist local state")
	}
}
