// Package app builds the notebook process: storage, the namespaced kv store,
// the sync registry and every entity store.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/notebook/internal/backup"
	"github.com/kalambet/notebook/internal/clock"
	"github.com/kalambet/notebook/internal/config"
	"github.com/kalambet/notebook/internal/datasync"
	"github.com/kalambet/notebook/internal/kv"
	"github.com/kalambet/notebook/internal/model"
	"github.com/kalambet/notebook/internal/notes"
	"github.com/kalambet/notebook/internal/pomodoro"
	"github.com/kalambet/notebook/internal/projects"
	"github.com/kalambet/notebook/internal/seed"
	"github.com/kalambet/notebook/internal/storage"
	"github.com/kalambet/notebook/internal/tags"
	"github.com/kalambet/notebook/internal/tasks"
)

type seeder interface {
	notes.Seeder
	tasks.Seeder
	projects.Seeder
	pomodoro.Seeder
	tags.Seeder
}

// Backend serves the commands of every store. *storage.Store implements it.
type Backend interface {
	notes.Remote
	tasks.Remote
	projects.Remote
	pomodoro.Remote
	tags.Remote
}

type Options struct {
	// Clock stamps every store and the database. Nil uses the wall clock.
	Clock  clock.Clock
	Logger *slog.Logger
	// Backend replaces the database when set. Nothing is opened on disk,
	// the kv namespace lives in memory and every store sends its commands
	// to Backend.
	Backend Backend
}

type App struct {
	Config   config.Config
	Storage  *storage.Store // nil when Options.Backend is set
	KV       *kv.Store
	Registry *datasync.Registry
	Clock    *clock.Monotonic

	Notes    *notes.Store
	Tasks    *tasks.Store
	Projects *projects.Store
	Pomodoro *pomodoro.Store
	Tags     *tags.Store

	logger  *slog.Logger
	backend Backend

	mu      sync.Mutex
	syncCtx context.Context
	syncing bool
}

// New opens storage in cfg.Storage.DataDir (":memory:" for an in-memory
// database) and builds every store over it. With opts.Backend set no
// storage is opened.
func New(cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{
		Config:   cfg,
		Registry: datasync.NewRegistry(),
		Clock:    clock.NewMonotonic(opts.Clock),
		logger:   logger,
		backend:  opts.Backend,
	}
	if opts.Backend != nil {
		a.KV = kv.New(kv.NewMemoryBackend(0), cfg.Storage.Namespace)
	} else {
		db, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
		db.SetQuota(cfg.Storage.QuotaBytes)
		if opts.Clock != nil {
			db.SetClock(opts.Clock)
		}
		a.Storage = db
		a.KV = kv.New(db, cfg.Storage.Namespace)
		if cfg.Sync.Remote {
			a.backend = db
		}
	}

	// A backend is the source of truth for its records, so the kv snapshot
	// is never seeded in front of one.
	var fixtures seeder = seed.Empty{}
	if cfg.Seed.Enabled && a.backend == nil {
		fixtures = seed.Default()
	}

	notesOpts := notes.Options{KV: a.KV, Registry: a.Registry, Seed: fixtures, Clock: a.Clock, Logger: logger}
	tasksOpts := tasks.Options{KV: a.KV, Registry: a.Registry, Seed: fixtures, Clock: a.Clock, Logger: logger}
	projectsOpts := projects.Options{KV: a.KV, Registry: a.Registry, Seed: fixtures, Clock: a.Clock, Logger: logger}
	pomodoroOpts := pomodoro.Options{KV: a.KV, Registry: a.Registry, Seed: fixtures, Clock: a.Clock, Logger: logger}
	tagsOpts := tags.Options{KV: a.KV, Registry: a.Registry, Seed: fixtures, Clock: a.Clock, Logger: logger}
	if a.backend != nil {
		notesOpts.Remote = a.backend
		tasksOpts.Remote = a.backend
		projectsOpts.Remote = a.backend
		pomodoroOpts.Remote = a.backend
		tagsOpts.Remote = a.backend
	}

	a.Notes = notes.New(notesOpts)
	a.Tasks = tasks.New(tasksOpts)
	a.Pomodoro = pomodoro.New(pomodoroOpts)

	tagsOpts.Notes = a.Notes
	a.Tags = tags.New(tagsOpts)

	projectsOpts.Stats = localStats{app: a}
	a.Projects = projects.New(projectsOpts)

	logger.Debug("notebook ready", "remote", a.backend != nil, "namespace", a.KV.Prefix(), "domains", a.Registry.Keys())
	return a, nil
}

// Backend returns the command backend of the stores, or nil for a local app.
func (a *App) Backend() Backend { return a.backend }

// Start begins periodic sync passes until ctx is cancelled or Close runs.
func (a *App) Start(ctx context.Context) {
	a.mu.Lock()
	a.syncCtx, a.syncing = ctx, true
	a.mu.Unlock()
	a.Registry.StartAutoSync(ctx, a.Config.SyncInterval())
}

// Refresh fetches every collection concurrently.
func (a *App) Refresh(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { _, err := a.Notes.FetchAll(ctx); return err })
	g.Go(func() error { _, err := a.Tasks.FetchAll(ctx); return err })
	g.Go(func() error { _, err := a.Projects.FetchAll(ctx); return err })
	g.Go(func() error { _, err := a.Pomodoro.FetchAll(ctx); return err })
	g.Go(func() error { _, err := a.Tags.FetchAll(ctx); return err })
	return g.Wait()
}

// Sync runs one sync pass over every store.
func (a *App) Sync(ctx context.Context) error {
	return a.Registry.TriggerSync(ctx)
}

// Export syncs pending changes and returns the backup document.
func (a *App) Export(ctx context.Context) ([]byte, error) {
	if err := a.Sync(ctx); err != nil {
		return nil, fmt.Errorf("syncing before export: %w", err)
	}
	return backup.Export(a.KV, a.Clock.Now())
}

// Download syncs pending changes and writes the backup file to the backup
// directory.
func (a *App) Download(ctx context.Context) (string, error) {
	if err := a.Sync(ctx); err != nil {
		return "", fmt.Errorf("syncing before export: %w", err)
	}
	return backup.Download(a.KV, a.Config.BackupDir(), a.Clock.Now())
}

// Restore replaces the namespace with doc and reloads every store. A remote
// app replays the collections into the database first. Periodic sync is
// paused meanwhile so no pass writes the old collections back.
func (a *App) Restore(ctx context.Context, doc []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.syncing {
		a.Registry.StopAutoSync()
	}
	var target backup.Target = a.KV
	if db, ok := a.backend.(*storage.Store); ok {
		target = tableTarget{ctx: ctx, db: db, kv: a.KV}
	}
	err := backup.Import(target, doc)
	if err == nil {
		a.Notes.Reload()
		a.Tasks.Reload()
		a.Projects.Reload()
		a.Pomodoro.Reload()
		a.Tags.Reload()
	}
	if a.syncing && a.syncCtx.Err() == nil {
		a.Registry.StartAutoSync(a.syncCtx, a.Config.SyncInterval())
	}
	if err != nil {
		return err
	}
	a.logger.Info("backup restored")
	return nil
}

// Close stops periodic sync, runs a final pass and closes storage.
func (a *App) Close() error {
	a.mu.Lock()
	a.syncing = false
	a.mu.Unlock()

	a.Registry.StopAutoSync()
	syncErr := a.Registry.TriggerSync(context.Background())
	if syncErr != nil {
		a.logger.Warn("final sync failed", "error", syncErr)
	}
	if a.Storage == nil {
		return syncErr
	}
	return errors.Join(syncErr, a.Storage.Close())
}

// tableTarget writes restored collections to the entity tables before the
// kv namespace. The namespace is untouched when the tables cannot be
// replaced.
type tableTarget struct {
	ctx context.Context
	db  *storage.Store
	kv  *kv.Store
}

func (t tableTarget) Replace(items map[string]json.RawMessage) (bool, error) {
	var e storage.Entities
	fields := map[string]any{
		notes.Key:            &e.Notes,
		tasks.Key:            &e.Tasks,
		projects.Key:         &e.Projects,
		pomodoro.SessionsKey: &e.Sessions,
		tags.Key:             &e.Tags,
	}
	for key, dst := range fields {
		raw, ok := items[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return true, fmt.Errorf("%w: decoding %s: %v", backup.ErrFormat, key, err)
		}
	}
	if err := t.db.ReplaceEntities(t.ctx, e); err != nil {
		return true, err
	}
	return t.kv.Replace(items)
}

// localStats counts project references across the local collections.
// Sessions count when their task belongs to the project.
type localStats struct {
	app *App
}

func (l localStats) ProjectStats(_ context.Context, id int64) (model.ProjectStats, error) {
	var st model.ProjectStats
	key := strconv.FormatInt(id, 10)
	for _, n := range l.app.Notes.State().Notes {
		if n.ProjectID != nil && *n.ProjectID == key {
			st.TotalNotes++
		}
	}
	projectTasks := map[int64]bool{}
	for _, t := range l.app.Tasks.State().Tasks {
		if t.ProjectID == nil || *t.ProjectID != id {
			continue
		}
		projectTasks[t.ID] = true
		st.TotalTasks++
		if t.Completed {
			st.CompletedTasks++
		}
	}
	for _, ps := range l.app.Pomodoro.State().Sessions {
		if ps.TaskID != nil && projectTasks[*ps.TaskID] {
			st.TotalPomodoroSessions++
		}
	}
	return st, nil
}
