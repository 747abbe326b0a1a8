// Package kv is a namespaced JSON wrapper over a synchronous string
// key/value backend. Reads fail open to a default and writes fail soft.
package kv

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"
)

// DefaultPrefix namespaces every persisted key.
const DefaultPrefix = "productivity_notebook_"

const probeKey = "__test__"

// ErrQuotaExceeded is returned by a backend that refuses a write for size.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Backend is the physical key/value storage shared with unrelated data.
type Backend interface {
	Keys() ([]string, error)
	GetItem(key string) (value string, ok bool, err error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

// Replacer is implemented by backends that can swap every key under a
// prefix in one atomic step.
type Replacer interface {
	ReplacePrefix(prefix string, items map[string]string) error
}

type Store struct {
	backend Backend
	prefix  string
	logger  *slog.Logger
}

// New returns a Store over b. An empty prefix uses DefaultPrefix.
func New(b Backend, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{backend: b, prefix: prefix, logger: slog.Default()}
}

func (s *Store) Prefix() string { return s.prefix }

func (s *Store) key(k string) string { return s.prefix + k }

// Put encodes value and stores it under key.
func (s *Store) Put(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.backend.SetItem(s.key(key), string(data)); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Set is Put with the error logged and dropped.
func (s *Store) Set(key string, value any) {
	if err := s.Put(key, value); err != nil {
		s.logger.Warn("kv save failed", "key", key, "error", err)
	}
}

// Get decodes the value stored under key into dst. It reports false, leaving
// dst untouched, when the key is absent or unreadable.
func (s *Store) Get(key string, dst any) bool {
	raw, ok, err := s.backend.GetItem(s.key(key))
	if err != nil {
		s.logger.Warn("kv read failed", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		s.logger.Warn("kv decode failed", "key", key, "error", err)
		return false
	}
	return true
}

// GetOr returns the value under key, or def when absent or unreadable.
func GetOr[T any](s *Store, key string, def T) T {
	var v T
	if !s.Get(key, &v) {
		return def
	}
	return v
}

func (s *Store) Remove(key string) {
	if err := s.backend.RemoveItem(s.key(key)); err != nil {
		s.logger.Warn("kv remove failed", "key", key, "error", err)
	}
}

// namespaced lists backend keys that carry the prefix.
func (s *Store) namespaced() ([]string, error) {
	keys, err := s.backend.Keys()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, k := range keys {
		if strings.HasPrefix(k, s.prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Clear removes every namespaced key and nothing else.
func (s *Store) Clear() {
	if err := s.clear(); err != nil {
		s.logger.Warn("kv clear failed", "error", err)
	}
}

func (s *Store) clear() error {
	keys, err := s.namespaced()
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.backend.RemoveItem(k); err != nil {
			return fmt.Errorf("removing %s: %w", k, err)
		}
	}
	return nil
}

// IsSupported probes the backend with a write/remove round trip.
func (s *Store) IsSupported() bool {
	if err := s.backend.SetItem(probeKey, "test"); err != nil {
		return false
	}
	return s.backend.RemoveItem(probeKey) == nil
}

// SizeInBytes sums the character lengths of namespaced keys and values.
func (s *Store) SizeInBytes() int {
	keys, err := s.namespaced()
	if err != nil {
		s.logger.Warn("kv size failed", "error", err)
		return 0
	}
	total := 0
	for _, k := range keys {
		v, ok, err := s.backend.GetItem(k)
		if err != nil || !ok {
			continue
		}
		total += utf8.RuneCountInString(k) + utf8.RuneCountInString(v)
	}
	return total
}

// Entries returns the raw JSON of every namespaced key, keyed without the
// prefix.
func (s *Store) Entries() (map[string]string, error) {
	keys, err := s.namespaced()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, ok, err := s.backend.GetItem(k)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", k, err)
		}
		if ok {
			out[strings.TrimPrefix(k, s.prefix)] = v
		}
	}
	return out, nil
}

// Replace swaps the whole namespace for items. It reports whether the swap
// was atomic; backends without Replacer are cleared and then written, so a
// failure part way leaves the namespace partially overwritten.
func (s *Store) Replace(items map[string]json.RawMessage) (atomic bool, err error) {
	encoded := make(map[string]string, len(items))
	for k, v := range items {
		encoded[s.key(k)] = string(v)
	}

	if r, ok := s.backend.(Replacer); ok {
		if err := r.ReplacePrefix(s.prefix, encoded); err != nil {
			return true, err
		}
		return true, nil
	}

	if err := s.clear(); err != nil {
		return false, fmt.Errorf("clearing namespace: %w", err)
	}
	keys := make([]string, 0, len(encoded))
	for k := range encoded {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := s.backend.SetItem(k, encoded[k]); err != nil {
			return false, fmt.Errorf("writing %s: %w", k, err)
		}
	}
	return false, nil
}
