// Package notes owns the in-memory note collection.
package notes

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/notebook/internal/clock"
	"github.com/kalambet/notebook/internal/datasync"
	"github.com/kalambet/notebook/internal/kv"
	"github.com/kalambet/notebook/internal/model"
	"github.com/kalambet/notebook/internal/state"
)

// Key is the persisted key and the sync registry domain.
const Key = "notes"

// Remote is the command backend used instead of local simulation when set.
type Remote interface {
	ListNotes(ctx context.Context) ([]model.Note, error)
	CreateNote(ctx context.Context, in model.NoteInput) (model.Note, error)
	UpdateNote(ctx context.Context, id string, p model.NotePatch) (model.Note, error)
	DeleteNote(ctx context.Context, id string) error
	SearchNotes(ctx context.Context, query string) ([]model.Note, error)
}

// Seeder supplies example notes for an empty store.
type Seeder interface {
	SeedNotes(now time.Time) []model.Note
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
	Notes   []model.Note
	Current *model.Note
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

// New loads the persisted snapshot, seeding it when empty, and registers
// the store's sync callback.
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
	s.state = state.New(State{Notes: s.load()})
	if opts.Registry != nil {
		opts.Registry.Register(Key, s.sync)
	}
	return s
}

func (s *Store) load() []model.Note {
	notes := kv.GetOr(s.kv, Key, []model.Note(nil))
	if len(notes) == 0 && s.seed != nil {
		notes = s.seed.SeedNotes(s.clock.Now())
		if len(notes) > 0 {
			s.kv.Set(Key, notes)
		}
	}
	return notes
}

func (s *Store) sync(context.Context) error {
	gen := s.tracker.Mark()
	if err := s.kv.Put(Key, s.state.Get().Notes); err != nil {
		return err
	}
	s.tracker.Saved(gen)
	return nil
}

func (s *Store) State() State { return s.state.Get() }

func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	return s.state.Subscribe(fn)
}

// Reload replaces the collection with the persisted snapshot, discarding
// unsynced changes. Used after a restore.
func (s *Store) Reload() {
	notes := s.load()
	s.state.Update(func(st *State) {
		st.Notes = notes
		st.Current = nil
		st.Error = ""
		s.tracker.Reset()
	})
}

func (s *Store) fail(err error) error {
	s.state.Update(func(st *State) {
		st.Loading = false
		st.Error = err.Error()
	})
	return err
}

func (s *Store) begin() {
	s.state.Update(func(st *State) {
		st.Loading = true
		st.Error = ""
	})
}

// FetchAll refreshes the collection from the remote backend, or from the
// persisted snapshot when the store is local and has no unsynced changes.
func (s *Store) FetchAll(ctx context.Context) ([]model.Note, error) {
	s.begin()
	if s.remote != nil {
		notes, err := s.remote.ListNotes(ctx)
		if err != nil {
			return nil, s.fail(err)
		}
		st := s.state.Update(func(st *State) {
			st.Notes = notes
			st.Loading = false
			s.tracker.Touch()
		})
		return st.Notes, nil
	}

	if gen, clean := s.tracker.Clean(); clean {
		notes := s.load()
		st := s.state.Update(func(st *State) {
			// A mutation since Clean is newer than the snapshot.
			if s.tracker.Unchanged(gen) {
				st.Notes = notes
			}
			st.Loading = false
		})
		return st.Notes, nil
	}
	st := s.state.Update(func(st *State) { st.Loading = false })
	return st.Notes, nil
}

// Create validates in and prepends the new note.
func (s *Store) Create(ctx context.Context, in model.NoteInput) (model.Note, error) {
	if err := in.Validate(); err != nil {
		return model.Note{}, err
	}

	var n model.Note
	if s.remote != nil {
		s.begin()
		created, err := s.remote.CreateNote(ctx, in)
		if err != nil {
			return model.Note{}, s.fail(err)
		}
		n = created
	} else {
		now := s.clock.Now()
		n = model.Note{
			ID:        uuid.NewString(),
			Title:     in.Title,
			Content:   in.Content,
			Tags:      append([]string(nil), in.Tags...),
			CreatedAt: now,
			UpdatedAt: now,
			ProjectID: in.ProjectID,
		}
	}

	s.state.Update(func(st *State) {
		st.Notes = append([]model.Note{n}, st.Notes...)
		st.Loading = false
		s.tracker.Touch()
	})
	return n, nil
}

// Update merges p into the note with id. A missing id is reported as
// model.ErrNotFound and leaves the state untouched.
func (s *Store) Update(ctx context.Context, id string, p model.NotePatch) (model.Note, error) {
	if err := p.Validate(); err != nil {
		return model.Note{}, err
	}

	if s.remote != nil {
		s.begin()
		n, err := s.remote.UpdateNote(ctx, id, p)
		if err != nil {
			return model.Note{}, s.fail(err)
		}
		s.modify(id, func(model.Note) (model.Note, bool) { return n, true })
		return n, nil
	}

	now := s.clock.Now()
	updated, ok := s.modify(id, func(n model.Note) (model.Note, bool) {
		u := p.Apply(n)
		u.UpdatedAt = clock.Later(n.UpdatedAt, now)
		return u, true
	})
	if !ok {
		s.logger.Warn("update of unknown note", "id", id)
		return model.Note{}, fmt.Errorf("note %s: %w", id, model.ErrNotFound)
	}
	return updated, nil
}

// modify runs fn on the note with id inside one state update and stores the
// result when fn reports a change. It returns false when the note is absent.
func (s *Store) modify(id string, fn func(model.Note) (model.Note, bool)) (model.Note, bool) {
	var (
		out   model.Note
		found bool
	)
	s.state.Update(func(st *State) {
		st.Loading = false
		i := slices.IndexFunc(st.Notes, func(n model.Note) bool { return n.ID == id })
		if i < 0 {
			return
		}
		found = true
		next, changed := fn(st.Notes[i])
		out = next
		if !changed {
			return
		}
		notes := slices.Clone(st.Notes)
		notes[i] = next
		st.Notes = notes
		if st.Current != nil && st.Current.ID == id {
			cur := next
			st.Current = &cur
		}
		s.tracker.Touch()
	})
	return out, found
}

// Delete removes the note and clears the selection if it was current.
func (s *Store) Delete(ctx context.Context, id string) error {
	if s.remote != nil {
		s.begin()
		if err := s.remote.DeleteNote(ctx, id); err != nil {
			return s.fail(err)
		}
	}
	s.state.Update(func(st *State) {
		st.Notes = slices.DeleteFunc(slices.Clone(st.Notes), func(n model.Note) bool { return n.ID == id })
		if st.Current != nil && st.Current.ID == id {
			st.Current = nil
		}
		st.Loading = false
		s.tracker.Touch()
	})
	return nil
}

// SetCurrent selects the note with id. An empty id clears the selection.
func (s *Store) SetCurrent(id string) error {
	if id == "" {
		s.state.Update(func(st *State) { st.Current = nil })
		return nil
	}
	n, ok := s.find(id)
	if !ok {
		return fmt.Errorf("note %s: %w", id, model.ErrNotFound)
	}
	s.state.Update(func(st *State) { st.Current = &n })
	return nil
}

// Search returns the notes matching query. A blank query is FetchAll.
// The collection itself is never filtered.
func (s *Store) Search(ctx context.Context, query string) ([]model.Note, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return s.FetchAll(ctx)
	}
	if s.remote != nil {
		s.begin()
		found, err := s.remote.SearchNotes(ctx, q)
		if err != nil {
			return nil, s.fail(err)
		}
		s.state.Update(func(st *State) { st.Loading = false })
		return found, nil
	}
	return filter(s.state.Get().Notes, func(n model.Note) bool { return matches(n, q) }), nil
}

func matches(n model.Note, q string) bool {
	q = strings.ToLower(q)
	if strings.Contains(strings.ToLower(n.Title), q) || strings.Contains(strings.ToLower(n.Content), q) {
		return true
	}
	for _, tag := range n.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

func (s *Store) ByProject(projectID string) []model.Note {
	return filter(s.state.Get().Notes, func(n model.Note) bool {
		return n.ProjectID != nil && *n.ProjectID == projectID
	})
}

// ByTag returns the notes carrying the tag name.
func (s *Store) ByTag(name string) []model.Note {
	return filter(s.state.Get().Notes, func(n model.Note) bool { return slices.Contains(n.Tags, name) })
}

// IDsWithTag returns the IDs of the notes carrying the tag name.
func (s *Store) IDsWithTag(name string) []string {
	var ids []string
	for _, n := range s.ByTag(name) {
		ids = append(ids, n.ID)
	}
	return ids
}

// AddTag adds the tag name to a note. Adding a name twice is a no-op.
func (s *Store) AddTag(ctx context.Context, id, name string) error {
	return s.retag(ctx, id, func(tags []string) ([]string, bool) {
		if slices.Contains(tags, name) {
			return tags, false
		}
		return append(slices.Clone(tags), name), true
	})
}

// RemoveTag drops the tag name from a note.
func (s *Store) RemoveTag(ctx context.Context, id, name string) error {
	return s.retag(ctx, id, func(tags []string) ([]string, bool) {
		if !slices.Contains(tags, name) {
			return tags, false
		}
		return slices.DeleteFunc(slices.Clone(tags), func(t string) bool { return t == name }), true
	})
}

// retag rewrites the tag list of a note. Locally the read and the write
// happen in one state update.
func (s *Store) retag(ctx context.Context, id string, fn func([]string) ([]string, bool)) error {
	if s.remote != nil {
		n, ok := s.find(id)
		if !ok {
			return fmt.Errorf("note %s: %w", id, model.ErrNotFound)
		}
		tags, changed := fn(n.Tags)
		if !changed {
			return nil
		}
		_, err := s.Update(ctx, id, model.NotePatch{Tags: &tags})
		return err
	}

	now := s.clock.Now()
	_, ok := s.modify(id, func(n model.Note) (model.Note, bool) {
		tags, changed := fn(n.Tags)
		if !changed {
			return n, false
		}
		prev := n.UpdatedAt
		n.Tags = tags
		n.UpdatedAt = clock.Later(prev, now)
		return n, true
	})
	if !ok {
		return fmt.Errorf("note %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// TagNames returns the tag names of a note.
func (s *Store) TagNames(id string) ([]string, error) {
	n, ok := s.find(id)
	if !ok {
		return nil, fmt.Errorf("note %s: %w", id, model.ErrNotFound)
	}
	return slices.Clone(n.Tags), nil
}

func (s *Store) find(id string) (model.Note, bool) {
	for _, n := range s.state.Get().Notes {
		if n.ID == id {
			return n, true
		}
	}
	return model.Note{}, false
}

func filter(notes []model.Note, keep func(model.Note) bool) []model.Note {
	out := []model.Note{}
	for _, n := range notes {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}
