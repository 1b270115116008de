/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/chainguard-dev/clog"
)

// Store loads and atomically saves a job's State.
type Store interface {
	// Load returns the persisted state. A missing or unreadable document
	// yields an empty State, equivalent to a first run.
	Load(ctx context.Context) *State
	// SaveAtomic replaces the persisted state in one step.
	SaveAtomic(ctx context.Context, s *State) error
}

// FileStore keeps State in a JSON file readable only by its owner.
type FileStore struct {
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a FileStore at path.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("state file path cannot be empty")
	}
	return &FileStore{path: path}, nil
}

// Path returns the state file location.
func (f *FileStore) Path() string {
	return f.path
}

// Load implements Store.
func (f *FileStore) Load(ctx context.Context) *State {
	log := clog.FromContext(ctx).With("path", f.path)

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Info("No state file, starting fresh")
		return &State{}
	}
	if err != nil {
		log.With("error", err).Warn("Failed to read state file, starting fresh")
		return &State{}
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		log.With("error", err).Warn("Corrupt state file, starting fresh")
		return &State{}
	}
	return &s
}

// SaveAtomic implements Store. The document is written to a temporary file in
// the same directory and renamed over the target, so readers see either the
// old or the new state.
func (f *FileStore) SaveAtomic(ctx context.Context, s *State) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		return fmt.Errorf("chmod temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("rename state file: %w", err)
	}
	success = true

	clog.FromContext(ctx).With("path", f.path, "cursor", s.Cursor.LastEventID).Debug("Saved state")
	return nil
}
