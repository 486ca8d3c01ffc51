package cache

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
)

// Memory is an in-process cache guarded by a single RWMutex.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemory returns an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

// Get returns a copy of the stored entry.
func (m *Memory) Get(_ context.Context, key string) (json.RawMessage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(data), true, nil
}

// Set stores a copy of value if key is absent.
func (m *Memory) Set(_ context.Context, key string, value json.RawMessage) error {
	if !validEntry(value) {
		return ErrInvalidEntry
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; exists {
		return nil
	}
	m.entries[key] = slices.Clone(value)
	return nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
