package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	importedDir = "imported"
	failedDir   = "failed"
)

// Worker watches an inbox directory and imports the files dropped into it.
// Imported files move to inbox/imported, rejected ones to inbox/failed.
type Worker struct {
	importer *Importer
	dir      string
	opts     Options
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker for dir.
// If pollInterval is <= 0, it defaults to 2s.
func NewWorker(importer *Importer, dir string, opts Options, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Worker{
		importer: importer,
		dir:      dir,
		opts:     opts,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls the inbox until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("inbox iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce imports the first pending file in name order.
// Returns true if a file was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	name, err := w.next()
	if err != nil {
		return false, fmt.Errorf("scanning inbox: %w", err)
	}
	if name == "" {
		return false, nil
	}

	path := filepath.Join(w.dir, name)
	dest := importedDir
	if _, err := w.importer.ImportFile(ctx, path, w.opts); err != nil {
		w.logger.Warn("import failed", "file", name, "error", err)
		dest = failedDir
	}
	if err := w.move(name, dest); err != nil {
		return true, fmt.Errorf("moving %s: %w", name, err)
	}
	return true, nil
}

func (w *Worker) next() (string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if _, ok := DetectFormat(e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)
	return names[0], nil
}

func (w *Worker) move(name, sub string) error {
	dir := filepath.Join(w.dir, sub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.Rename(filepath.Join(w.dir, name), filepath.Join(dir, name))
}
