// Package tasks owns the in-memory task collection and its manual order.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/kalambet/notebook/internal/clock"
	"github.com/kalambet/notebook/internal/datasync"
	"github.com/kalambet/notebook/internal/kv"
	"github.com/kalambet/notebook/internal/model"
	"github.com/kalambet/notebook/internal/state"
)

const Key = "tasks"

type Filter string

const (
	FilterAll       Filter = "all"
	FilterPending   Filter = "pending"
	FilterCompleted Filter = "completed"
)

func (f Filter) Valid() bool {
	switch f {
	case FilterAll, FilterPending, FilterCompleted:
		return true
	}
	return false
}

type Remote interface {
	ListTasks(ctx context.Context) ([]model.Task, error)
	CreateTask(ctx context.Context, in model.TaskInput) (model.Task, error)
	UpdateTask(ctx context.Context, id int64, p model.TaskPatch) (model.Task, error)
	DeleteTask(ctx context.Context, id int64) error
	ReorderTasks(ctx context.Context, ids []int64) error
}

type Seeder interface {
	SeedTasks(now time.Time) []model.Task
}

type Options struct {
	KV       *kv.Store
	Registry *datasync.Registry
	Seed     Seeder
	Remote   Remote
	Clock    *clock.Monotonic
	Logger   *slog.Logger
}

type State struct {
	Tasks   []model.Task
	Filter  Filter
	Loading bool
	Error   string
}

type Store struct {
	kv     *kv.Store
	seed   Seeder
	remote Remote
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
		clock:  opts.Clock,
		logger: opts.Logger,
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
	s.state = state.New(State{Tasks: s.load(), Filter: FilterAll})
	if opts.Registry != nil {
		opts.Registry.Register(Key, s.sync)
	}
	return s
}

func (s *Store) load() []model.Task {
	tasks := kv.GetOr(s.kv, Key, []model.Task(nil))
	if len(tasks) == 0 && s.seed != nil {
		tasks = s.seed.SeedTasks(s.clock.Now())
		if len(tasks) > 0 {
			s.kv.Set(Key, tasks)
		}
	}
	return tasks
}

func (s *Store) sync(context.Context) error {
	gen := s.tracker.Mark()
	if err := s.kv.Put(Key, s.state.Get().Tasks); err != nil {
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
	tasks := s.load()
	s.state.Update(func(st *State) {
		st.Tasks = tasks
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

func (s *Store) set(fn func(tasks []model.Task) []model.Task) State {
	return s.state.Update(func(st *State) {
		st.Tasks = fn(slices.Clone(st.Tasks))
		st.Loading = false
		s.tracker.Touch()
	})
}

// edit replaces the task with id by fn's result within one state update.
// It reports false, touching nothing, when the task is absent.
func (s *Store) edit(id int64, fn func(model.Task) model.Task) (model.Task, bool) {
	var (
		out   model.Task
		found bool
	)
	s.state.Update(func(st *State) {
		i := slices.IndexFunc(st.Tasks, func(t model.Task) bool { return t.ID == id })
		if i < 0 {
			return
		}
		tasks := slices.Clone(st.Tasks)
		out = fn(tasks[i])
		tasks[i] = out
		st.Tasks = tasks
		st.Loading = false
		s.tracker.Touch()
		found = true
	})
	return out, found
}

func (s *Store) FetchAll(ctx context.Context) ([]model.Task, error) {
	s.begin()
	if s.remote != nil {
		tasks, err := s.remote.ListTasks(ctx)
		if err != nil {
			return nil, s.fail(err)
		}
		return s.set(func([]model.Task) []model.Task { return tasks }).Tasks, nil
	}
	if gen, clean := s.tracker.Clean(); clean {
		tasks := s.load()
		st := s.state.Update(func(st *State) {
			if s.tracker.Unchanged(gen) {
				st.Tasks = tasks
			}
			st.Loading = false
		})
		return st.Tasks, nil
	}
	return s.state.Update(func(st *State) { st.Loading = false }).Tasks, nil
}

// Create prepends a task positioned after the current collection. Priority
// defaults to medium.
func (s *Store) Create(ctx context.Context, in model.TaskInput) (model.Task, error) {
	if err := in.Validate(); err != nil {
		return model.Task{}, err
	}

	var t model.Task
	if s.remote != nil {
		s.begin()
		created, err := s.remote.CreateTask(ctx, in)
		if err != nil {
			return model.Task{}, s.fail(err)
		}
		t = created
	} else {
		now := s.clock.Now()
		t = model.Task{
			ID:           s.clock.NextID(),
			Title:        in.Title,
			Description:  in.Description,
			Priority:     in.PriorityOrDefault(),
			DueDate:      in.DueDate,
			CreatedAt:    now,
			UpdatedAt:    now,
			ProjectID:    in.ProjectID,
			ParentTaskID: in.ParentTaskID,
		}
	}

	local := s.remote == nil
	s.set(func(tasks []model.Task) []model.Task {
		if local {
			t.Position = len(tasks) + 1
		}
		return append([]model.Task{t}, tasks...)
	})
	return t, nil
}

func (s *Store) Update(ctx context.Context, id int64, p model.TaskPatch) (model.Task, error) {
	if err := p.Validate(id); err != nil {
		return model.Task{}, err
	}

	if s.remote == nil {
		now := s.clock.Now()
		updated, ok := s.edit(id, func(t model.Task) model.Task {
			u := p.Apply(t)
			u.UpdatedAt = clock.Later(t.UpdatedAt, now)
			return u
		})
		if !ok {
			s.logger.Warn("update of unknown task", "id", id)
			return model.Task{}, fmt.Errorf("task %d: %w", id, model.ErrNotFound)
		}
		return updated, nil
	}

	s.begin()
	updated, err := s.remote.UpdateTask(ctx, id, p)
	if err != nil {
		return model.Task{}, s.fail(err)
	}
	s.replace(updated)
	return updated, nil
}

func (s *Store) replace(updated model.Task) {
	s.set(func(tasks []model.Task) []model.Task {
		for i := range tasks {
			if tasks[i].ID == updated.ID {
				tasks[i] = updated
			}
		}
		return tasks
	})
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	if s.remote != nil {
		s.begin()
		if err := s.remote.DeleteTask(ctx, id); err != nil {
			return s.fail(err)
		}
	}
	s.set(func(tasks []model.Task) []model.Task {
		return slices.DeleteFunc(tasks, func(t model.Task) bool { return t.ID == id })
	})
	return nil
}

// ToggleComplete flips the completion flag.
func (s *Store) ToggleComplete(ctx context.Context, id int64) (model.Task, error) {
	if s.remote == nil {
		now := s.clock.Now()
		t, ok := s.edit(id, func(t model.Task) model.Task {
			prev := t.UpdatedAt
			t.Completed = !t.Completed
			t.UpdatedAt = clock.Later(prev, now)
			return t
		})
		if !ok {
			s.logger.Warn("toggle of unknown task", "id", id)
			return model.Task{}, fmt.Errorf("task %d: %w", id, model.ErrNotFound)
		}
		return t, nil
	}
	t, ok := s.Get(id)
	if !ok {
		s.logger.Warn("toggle of unknown task", "id", id)
		return model.Task{}, fmt.Errorf("task %d: %w", id, model.ErrNotFound)
	}
	done := !t.Completed
	return s.Update(ctx, id, model.TaskPatch{Completed: &done})
}

// Reorder writes position onto the task with id and touches no other task.
// Two tasks may end up sharing a position.
func (s *Store) Reorder(ctx context.Context, id int64, position int) (model.Task, error) {
	return s.Update(ctx, id, model.TaskPatch{Position: &position})
}

// Move places the task at index in position order, clamped to the
// collection, and renumbers every task 1..n.
func (s *Store) Move(ctx context.Context, id int64, index int) error {
	if s.remote != nil {
		ids, ok := moveOrder(s.state.Get().Tasks, id, index)
		if !ok {
			return fmt.Errorf("task %d: %w", id, model.ErrNotFound)
		}
		s.begin()
		if err := s.remote.ReorderTasks(ctx, ids); err != nil {
			return s.fail(err)
		}
		s.set(func(tasks []model.Task) []model.Task { return renumber(tasks, ids, s.clock.Now()) })
		return nil
	}

	now := s.clock.Now()
	found := false
	s.state.Update(func(st *State) {
		ids, ok := moveOrder(st.Tasks, id, index)
		if !ok {
			return
		}
		st.Tasks = renumber(slices.Clone(st.Tasks), ids, now)
		st.Loading = false
		s.tracker.Touch()
		found = true
	})
	if !found {
		return fmt.Errorf("task %d: %w", id, model.ErrNotFound)
	}
	return nil
}

// SetOrder renumbers the tasks in the order of ids. Unknown IDs are skipped
// and tasks missing from ids follow in their current order.
func (s *Store) SetOrder(ctx context.Context, ids []int64) error {
	if s.remote != nil {
		full := completeOrder(s.state.Get().Tasks, ids)
		s.begin()
		if err := s.remote.ReorderTasks(ctx, full); err != nil {
			return s.fail(err)
		}
		s.set(func(tasks []model.Task) []model.Task { return renumber(tasks, full, s.clock.Now()) })
		return nil
	}

	now := s.clock.Now()
	s.state.Update(func(st *State) {
		st.Tasks = renumber(slices.Clone(st.Tasks), completeOrder(st.Tasks, ids), now)
		st.Loading = false
		s.tracker.Touch()
	})
	return nil
}

func completeOrder(tasks []model.Task, ids []int64) []int64 {
	known := make(map[int64]bool, len(tasks))
	for _, t := range tasks {
		known[t.ID] = true
	}
	out := make([]int64, 0, len(tasks))
	seen := make(map[int64]bool, len(tasks))
	for _, id := range ids {
		if known[id] && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, t := range sortedByPosition(tasks) {
		if !seen[t.ID] {
			out = append(out, t.ID)
		}
	}
	return out
}

// moveOrder returns the task IDs in position order with id moved to index.
func moveOrder(tasks []model.Task, id int64, index int) ([]int64, bool) {
	ordered := sortedByPosition(tasks)
	from := slices.IndexFunc(ordered, func(t model.Task) bool { return t.ID == id })
	if from < 0 {
		return nil, false
	}
	moved := ordered[from]
	ordered = slices.Delete(ordered, from, from+1)
	index = max(0, min(index, len(ordered)))
	ordered = slices.Insert(ordered, index, moved)

	ids := make([]int64, len(ordered))
	for i, t := range ordered {
		ids[i] = t.ID
	}
	return ids, true
}

// renumber gives the task at ids[i] position i+1. Tasks whose position does
// not change keep their timestamp.
func renumber(tasks []model.Task, ids []int64, now time.Time) []model.Task {
	positions := make(map[int64]int, len(ids))
	for i, id := range ids {
		positions[id] = i + 1
	}
	for i := range tasks {
		if p, ok := positions[tasks[i].ID]; ok && tasks[i].Position != p {
			tasks[i].Position = p
			tasks[i].UpdatedAt = clock.Later(tasks[i].UpdatedAt, now)
		}
	}
	return tasks
}

func (s *Store) Get(id int64) (model.Task, bool) {
	for _, t := range s.state.Get().Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return model.Task{}, false
}

func (s *Store) ByProject(projectID int64) []model.Task {
	return s.where(func(t model.Task) bool { return t.ProjectID != nil && *t.ProjectID == projectID })
}

// Subtasks returns the direct children of parentID.
func (s *Store) Subtasks(parentID int64) []model.Task {
	return s.where(func(t model.Task) bool { return t.ParentTaskID != nil && *t.ParentTaskID == parentID })
}

func (s *Store) SetFilter(f Filter) error {
	if !f.Valid() {
		return &model.ValidationError{Field: "filter", Message: "must be all, pending or completed"}
	}
	s.state.Update(func(st *State) { st.Filter = f })
	return nil
}

// Visible returns the tasks passing the current filter in position order.
// Equal positions keep their collection order.
func (s *Store) Visible() []model.Task {
	st := s.state.Get()
	var keep func(model.Task) bool
	switch st.Filter {
	case FilterPending:
		keep = func(t model.Task) bool { return !t.Completed }
	case FilterCompleted:
		keep = func(t model.Task) bool { return t.Completed }
	default:
		keep = func(model.Task) bool { return true }
	}
	out := []model.Task{}
	for _, t := range st.Tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	return sortedByPosition(out)
}

func (s *Store) where(keep func(model.Task) bool) []model.Task {
	out := []model.Task{}
	for _, t := range s.state.Get().Tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

func sortedByPosition(tasks []model.Task) []model.Task {
	out := slices.Clone(tasks)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}
