// Package backup exports the persisted namespace as one versioned JSON
// document and restores it.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/kalambet/notebook/internal/kv"
)

// Version is written into every exported document.
const Version = "1.0"

// ErrFormat is returned when an import document has no usable data object.
var ErrFormat = errors.New("invalid backup format")

// ExportError names the entry that stopped an export.
type ExportError struct {
	Key string
	Err error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("exporting %q: %v", e.Key, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// Document is the backup file layout.
type Document struct {
	Version   string                     `json:"version"`
	Timestamp time.Time                  `json:"timestamp"`
	Data      map[string]json.RawMessage `json:"data"`
}

// Source is the namespace being backed up.
type Source interface {
	Entries() (map[string]string, error)
}

// Target is the namespace being restored.
type Target interface {
	Replace(items map[string]json.RawMessage) (atomic bool, err error)
}

// Export reads every namespaced entry and returns the indented document.
// The first entry that is not valid JSON aborts the export.
func Export(src Source, now time.Time) ([]byte, error) {
	entries, err := src.Entries()
	if err != nil {
		return nil, fmt.Errorf("reading namespace: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data := make(map[string]json.RawMessage, len(entries))
	for _, k := range keys {
		raw := entries[k]
		if raw == "" {
			continue
		}
		if !json.Valid([]byte(raw)) {
			return nil, &ExportError{Key: k, Err: errors.New("stored value is not valid JSON")}
		}
		data[k] = json.RawMessage(raw)
	}

	doc := Document{Version: Version, Timestamp: now.UTC(), Data: data}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding backup: %w", err)
	}
	return out, nil
}

// Import validates doc and replaces the namespace with its data. The
// namespace is untouched when the document shape is invalid.
func Import(dst Target, doc []byte) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(doc, &envelope); err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if len(envelope.Data) == 0 || envelope.Data[0] != '{' {
		return fmt.Errorf("%w: data must be an object", ErrFormat)
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}

	atomic, err := dst.Replace(data)
	if err != nil {
		if !atomic {
			slog.Warn("backup import failed part way; namespace may be partially overwritten", "error", err)
		}
		return fmt.Errorf("restoring backup: %w", err)
	}
	slog.Info("backup imported", "keys", len(data), "atomic", atomic)
	return nil
}

// FileName returns the download name for a backup taken at now.
func FileName(now time.Time) string {
	return fmt.Sprintf("productivity_notebook_backup_%s.json", now.UTC().Format("2006-01-02"))
}

// Download exports src into dir and returns the written path.
func Download(src Source, dir string, now time.Time) (string, error) {
	out, err := Export(src, now)
	if err != nil {
		return "", err
	}
	return Write(dir, out, now)
}

// Write stores doc in dir under the download name for now.
func Write(dir string, doc []byte, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}
	path := filepath.Join(dir, FileName(now))
	if err := os.WriteFile(path, doc, 0o600); err != nil {
		return "", fmt.Errorf("writing backup: %w", err)
	}
	return path, nil
}

var _ Source = (*kv.Store)(nil)
var _ Target = (*kv.Store)(nil)
