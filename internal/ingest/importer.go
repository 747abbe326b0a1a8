// Package ingest turns markdown, text, HTML and PDF files into notes.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kalambet/notebook/internal/model"
)

// MaxFileSize caps the size of an imported file.
const MaxFileSize = 10 << 20 // 10MB

var (
	ErrTooLarge = errors.New("file too large")
	ErrEmpty    = errors.New("no text to import")
)

// NoteCreator is the note store the importer writes to.
type NoteCreator interface {
	Create(ctx context.Context, in model.NoteInput) (model.Note, error)
}

// Options tag and file the imported notes.
type Options struct {
	Tags      []string
	ProjectID *string
}

type Importer struct {
	notes  NoteCreator
	logger *slog.Logger
}

func NewImporter(notes NoteCreator) *Importer {
	return &Importer{notes: notes, logger: slog.Default()}
}

// Import extracts name/data and creates one note from it.
func (im *Importer) Import(ctx context.Context, name string, data []byte, opts Options) (model.Note, error) {
	format, ok := DetectFormat(name)
	if !ok {
		return model.Note{}, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(name))
	}
	if len(data) > MaxFileSize {
		return model.Note{}, fmt.Errorf("%s: %w", name, ErrTooLarge)
	}

	doc, err := Extract(format, name, data)
	if err != nil {
		return model.Note{}, err
	}
	if doc.Content == "" {
		return model.Note{}, fmt.Errorf("%s: %w", name, ErrEmpty)
	}

	n, err := im.notes.Create(ctx, model.NoteInput{
		Title:     doc.Title,
		Content:   doc.Content,
		Tags:      opts.Tags,
		ProjectID: opts.ProjectID,
	})
	if err != nil {
		return model.Note{}, fmt.Errorf("creating note: %w", err)
	}
	im.logger.Info("imported note", "file", name, "format", format, "id", n.ID)
	return n, nil
}

// ImportFile reads path and imports it.
func (im *Importer) ImportFile(ctx context.Context, path string, opts Options) (model.Note, error) {
	info, err := os.Stat(path)
	if err != nil {
		return model.Note{}, err
	}
	if info.Size() > MaxFileSize {
		return model.Note{}, fmt.Errorf("%s: %w", path, ErrTooLarge)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Note{}, err
	}
	return im.Import(ctx, filepath.Base(path), data, opts)
}
