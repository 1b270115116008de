/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store. Saved states are deep-copied through
// JSON so later mutation by the caller is not observed.
type MemoryStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
	err   error
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a MemoryStore seeded with initial, which may be nil.
func NewMemoryStore(initial *State) *MemoryStore {
	m := &MemoryStore{}
	if initial != nil {
		m.data, _ = json.Marshal(initial)
	}
	return m
}

// FailSaves makes every subsequent SaveAtomic return err.
func (m *MemoryStore) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Saves returns how many times state was saved.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Load implements Store.
func (m *MemoryStore) Load(context.Context) *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s State
	if m.data != nil {
		_ = json.Unmarshal(m.data, &s)
	}
	return &s
}

// SaveAtomic implements Store.
func (m *MemoryStore) SaveAtomic(_ context.Context, s *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	m.data = data
	m.saves++
	return nil
}
