package kv

import (
	"sync"
	"unicode/utf8"
)

// MemoryBackend is an in-process Backend with an optional size quota.
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[string]string
	quota int
}

// NewMemoryBackend returns an empty backend. A quota of zero is unlimited;
// otherwise writes that would push the summed key+value length past quota
// fail with ErrQuotaExceeded.
func NewMemoryBackend(quota int) *MemoryBackend {
	return &MemoryBackend{items: make(map[string]string), quota: quota}
}

func (m *MemoryBackend) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *MemoryBackend) GetItem(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *MemoryBackend) SetItem(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.quota > 0 {
		size := 0
		for k, v := range m.items {
			if k == key {
				continue
			}
			size += utf8.RuneCountInString(k) + utf8.RuneCountInString(v)
		}
		if size+utf8.RuneCountInString(key)+utf8.RuneCountInString(value) > m.quota {
			return ErrQuotaExceeded
		}
	}
	m.items[key] = value
	return nil
}

func (m *MemoryBackend) RemoveItem(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}
