// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package library

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process Repository for tests and single-node setups
// without a database.
type MemoryStore struct {
	mu     sync.RWMutex
	assets map[string]Asset
}

var _ Repository = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{assets: make(map[string]Asset)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assets[id]
	if !ok {
		return Asset{}, fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}
	return a, nil
}

func (m *MemoryStore) Ensure(_ context.Context, id string) (Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[id]
	if !ok {
		a = Asset{ID: id, UpdatedAt: time.Now().UTC()}
		m.assets[id] = a
	}
	return a, nil
}

func (m *MemoryStore) update(id string, fn func(*Asset)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[id]
	if !ok {
		a = Asset{ID: id}
	}
	fn(&a)
	a.UpdatedAt = time.Now().UTC()
	m.assets[id] = a
}

func (m *MemoryStore) SetPlayableFile(_ context.Context, id, name string) error {
	m.update(id, func(a *Asset) { a.PlayableFile = name })
	return nil
}

func (m *MemoryStore) ClearPlayableFile(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.assets[id]; ok {
		a.PlayableFile = ""
		a.UpdatedAt = time.Now().UTC()
		m.assets[id] = a
	}
	return nil
}

func (m *MemoryStore) SetDeleted(_ context.Context, id string, deleted bool) error {
	m.update(id, func(a *Asset) { a.Deleted = deleted })
	return nil
}
