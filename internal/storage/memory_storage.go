package storage

import (
	"sort"
	"sync"

	"github.com/bassista/go_syncstore/internal/logger"
)

// MemoryStorage keeps values in a map. It backs the "memory" storage type and
// tests that need a storage whose failures can be switched on and off.
type MemoryStorage struct {
	mu    sync.RWMutex
	items map[string]string
	opts  options
}

func NewMemoryStorage(opts ...Option) *MemoryStorage {
	return &MemoryStorage{items: map[string]string{}, opts: buildOptions(opts)}
}

// NewMemoryStorageFromMap creates a MemoryStorage pre-populated with items.
func NewMemoryStorageFromMap(items map[string]string, opts ...Option) *MemoryStorage {
	ms := NewMemoryStorage(opts...)
	for k, v := range items {
		ms.items[k] = v
	}
	return ms
}

func (m *MemoryStorage) Read(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.opts.disabled {
		return "", false, ErrDisabled
	}
	value, ok := m.items[key]
	logger.WithKey("memory-storage", key).Tracef("read: found=%v", ok)
	return value, ok, nil
}

func (m *MemoryStorage) Write(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.opts.checkWrite(m.items, key, value); err != nil {
		return err
	}
	logger.WithKey("memory-storage", key).Tracef("write: %d bytes", len(value))
	m.items[key] = value
	return nil
}

func (m *MemoryStorage) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.opts.disabled {
		return ErrDisabled
	}
	if m.opts.readOnly {
		return ErrReadOnly
	}
	delete(m.items, key)
	return nil
}

// Keys returns the stored keys in lexical order.
func (m *MemoryStorage) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.opts.disabled {
		return nil, ErrDisabled
	}
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// SetReadOnly toggles read-only mode.
func (m *MemoryStorage) SetReadOnly(readOnly bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.readOnly = readOnly
}

// SetDisabled toggles disabled mode.
func (m *MemoryStorage) SetDisabled(disabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.disabled = disabled
}
