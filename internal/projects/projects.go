// Package projects owns the project collection, per-project statistics and
// the transient kanban boards.
package projects

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/kalambet/notebook/internal/clock"
	"github.com/kalambet/notebook/internal/datasync"
	"github.com/kalambet/notebook/internal/kv"
	"github.com/kalambet/notebook/internal/model"
	"github.com/kalambet/notebook/internal/state"
)

const Key = "projects"

// ErrNoStats is returned by LoadStats when no statistics source is wired.
var ErrNoStats = errors.New("project statistics unavailable")

type Remote interface {
	ListProjects(ctx context.Context) ([]model.Project, error)
	CreateProject(ctx context.Context, in model.ProjectInput) (model.Project, error)
	UpdateProject(ctx context.Context, id int64, p model.ProjectPatch) (model.Project, error)
	DeleteProject(ctx context.Context, id int64) error
	StatsSource
}

// StatsSource counts the entities that reference a project.
type StatsSource interface {
	ProjectStats(ctx context.Context, id int64) (model.ProjectStats, error)
}

type Seeder interface {
	SeedProjects(now time.Time) []model.Project
	SeedColumns(projectID int64) []model.KanbanColumn
}

type Options struct {
	KV       *kv.Store
	Registry *datasync.Registry
	Seed     Seeder
	Remote   Remote
	// Stats serves LoadStats for local stores. Ignored when Remote is set.
	Stats  StatsSource
	Clock  *clock.Monotonic
	Logger *slog.Logger
}

type State struct {
	Projects []model.Project
	Current  *model.Project
	Stats    map[int64]model.ProjectStats
	Columns  map[int64][]model.KanbanColumn
	Loading  bool
	Error    string
}

type Store struct {
	kv     *kv.Store
	seed   Seeder
	remote Remote
	stats  StatsSource
	clock  *clock.Monotonic
	logger *slog.Logger

	state   *state.Container[State]
	tracker state.Tracker
}

func New(opts Options) *Store {
	s := &Store{
		kv:     opts.KV,
		seed:   opts.Seed,
		remote: opts.Remote,
		stats:  opts.Stats,
		clock:  opts.Clock,
		logger: opts.Logger,
	}
	if s.remote != nil {
		s.stats = s.remote
	}
	if s.kv == nil {
		s.kv = kv.New(kv.NewMemoryBackend(0), "")
	}
	if s.clock == nil {
		s.clock = clock.NewMonotonic(nil)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.state = state.New(State{
		Projects: s.load(),
		Stats:    map[int64]model.ProjectStats{},
		Columns:  map[int64][]model.KanbanColumn{},
	})
	if opts.Registry != nil {
		opts.Registry.Register(Key, s.sync)
	}
	return s
}

func (s *Store) load() []model.Project {
	projects := kv.GetOr(s.kv, Key, []model.Project(nil))
	if len(projects) == 0 && s.seed != nil {
		projects = s.seed.SeedProjects(s.clock.Now())
		if len(projects) > 0 {
			s.kv.Set(Key, projects)
		}
	}
	return projects
}

func (s *Store) sync(context.Context) error {
	gen := s.tracker.Mark()
	if err := s.kv.Put(Key, s.state.Get().Projects); err != nil {
		return err
	}
	s.tracker.Saved(gen)
	return nil
}

func (s *Store) State() State { return s.state.Get() }

func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	return s.state.Subscribe(fn)
}

func (s *Store) Reload() {
	projects := s.load()
	s.state.Update(func(st *State) {
		st.Projects = projects
		st.Current = nil
		st.Stats = map[int64]model.ProjectStats{}
		st.Error = ""
		s.tracker.Reset()
	})
}

func (s *Store) begin() {
	s.state.Update(func(st *State) {
		st.Loading = true
		st.Error = ""
	})
}

func (s *Store) fail(err error) error {
	s.state.Update(func(st *State) {
		st.Loading = false
		st.Error = err.Error()
	})
	return err
}

func (s *Store) FetchAll(ctx context.Context) ([]model.Project, error) {
	s.begin()
	if s.remote != nil {
		projects, err := s.remote.ListProjects(ctx)
		if err != nil {
			return nil, s.fail(err)
		}
		st := s.state.Update(func(st *State) {
			st.Projects = projects
			st.Loading = false
			s.tracker.Touch()
		})
		return st.Projects, nil
	}
	if gen, clean := s.tracker.Clean(); clean {
		projects := s.load()
		st := s.state.Update(func(st *State) {
			if s.tracker.Unchanged(gen) {
				st.Projects = projects
			}
			st.Loading = false
		})
		return st.Projects, nil
	}
	return s.state.Update(func(st *State) { st.Loading = false }).Projects, nil
}

// Create prepends a new project. Color defaults to model.DefaultProjectColor.
func (s *Store) Create(ctx context.Context, in model.ProjectInput) (model.Project, error) {
	if err := in.Validate(); err != nil {
		return model.Project{}, err
	}

	var p model.Project
	if s.remote != nil {
		s.begin()
		created, err := s.remote.CreateProject(ctx, in)
		if err != nil {
			return model.Project{}, s.fail(err)
		}
		p = created
	} else {
		now := s.clock.Now()
		p = model.Project{
			ID:          s.clock.NextID(),
			Name:        in.Name,
			Description: in.Description,
			Color:       in.ColorOrDefault(),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}

	s.state.Update(func(st *State) {
		st.Projects = append([]model.Project{p}, st.Projects...)
		st.Loading = false
		s.tracker.Touch()
	})
	return p, nil
}

func (s *Store) Update(ctx context.Context, id int64, patch model.ProjectPatch) (model.Project, error) {
	if err := patch.Validate(); err != nil {
		return model.Project{}, err
	}

	var remote *model.Project
	if s.remote != nil {
		s.begin()
		p, err := s.remote.UpdateProject(ctx, id, patch)
		if err != nil {
			return model.Project{}, s.fail(err)
		}
		remote = &p
	}

	now := s.clock.Now()
	var (
		updated model.Project
		found   bool
	)
	s.state.Update(func(st *State) {
		st.Loading = false
		i := slices.IndexFunc(st.Projects, func(p model.Project) bool { return p.ID == id })
		switch {
		case remote != nil:
			updated, found = *remote, true
		case i >= 0:
			current := st.Projects[i]
			updated, found = patch.Apply(current), true
			updated.UpdatedAt = clock.Later(current.UpdatedAt, now)
		}
		if !found {
			return
		}
		if i >= 0 {
			projects := slices.Clone(st.Projects)
			projects[i] = updated
			st.Projects = projects
		}
		if st.Current != nil && st.Current.ID == id {
			cur := updated
			st.Current = &cur
		}
		s.tracker.Touch()
	})
	if !found {
		s.logger.Warn("update of unknown project", "id", id)
		return model.Project{}, fmt.Errorf("project %d: %w", id, model.ErrNotFound)
	}
	return updated, nil
}

// Delete removes the project only; entities referencing it are kept.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if s.remote != nil {
		s.begin()
		if err := s.remote.DeleteProject(ctx, id); err != nil {
			return s.fail(err)
		}
	}
	s.state.Update(func(st *State) {
		st.Projects = slices.DeleteFunc(slices.Clone(st.Projects), func(p model.Project) bool { return p.ID == id })
		if st.Current != nil && st.Current.ID == id {
			st.Current = nil
		}
		stats := maps.Clone(st.Stats)
		delete(stats, id)
		st.Stats = stats
		cols := maps.Clone(st.Columns)
		delete(cols, id)
		st.Columns = cols
		st.Loading = false
		s.tracker.Touch()
	})
	return nil
}

func (s *Store) Archive(ctx context.Context, id int64) (model.Project, error) {
	archived := true
	return s.Update(ctx, id, model.ProjectPatch{Archived: &archived})
}

func (s *Store) Unarchive(ctx context.Context, id int64) (model.Project, error) {
	archived := false
	return s.Update(ctx, id, model.ProjectPatch{Archived: &archived})
}

// SetCurrent selects a project. Zero clears the selection.
func (s *Store) SetCurrent(id int64) error {
	if id == 0 {
		s.state.Update(func(st *State) { st.Current = nil })
		return nil
	}
	p, ok := s.Get(id)
	if !ok {
		return fmt.Errorf("project %d: %w", id, model.ErrNotFound)
	}
	s.state.Update(func(st *State) { st.Current = &p })
	return nil
}

// Active returns the projects that are not archived.
func (s *Store) Active() []model.Project {
	out := []model.Project{}
	for _, p := range s.state.Get().Projects {
		if !p.Archived {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) Get(id int64) (model.Project, bool) {
	for _, p := range s.state.Get().Projects {
		if p.ID == id {
			return p, true
		}
	}
	return model.Project{}, false
}

// LoadStats fetches statistics for a project and caches them in State.Stats.
// Failures are logged and returned; the error field is left alone.
func (s *Store) LoadStats(ctx context.Context, id int64) (model.ProjectStats, error) {
	if s.stats == nil {
		return model.ProjectStats{}, ErrNoStats
	}
	st, err := s.stats.ProjectStats(ctx, id)
	if err != nil {
		s.logger.Warn("loading project stats failed", "id", id, "error", err)
		return model.ProjectStats{}, err
	}
	s.state.Update(func(cur *State) {
		stats := maps.Clone(cur.Stats)
		if stats == nil {
			stats = map[int64]model.ProjectStats{}
		}
		stats[id] = st
		cur.Stats = stats
	})
	return st, nil
}
