// Package tags owns the tag collection and the tag/note links.
//
// Notes carry their tags by name. With a remote backend, links go through
// the note_tags table; locally, tag IDs are resolved to names and the note
// store is edited directly.
package tags

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/kalambet/notebook/internal/clock"
	"github.com/kalambet/notebook/internal/datasync"
	"github.com/kalambet/notebook/internal/kv"
	"github.com/kalambet/notebook/internal/model"
	"github.com/kalambet/notebook/internal/state"
)

const Key = "tags"

// ErrNoNotes is returned by local link operations when no note store is wired.
var ErrNoNotes = errors.New("note store unavailable")

type Remote interface {
	ListTags(ctx context.Context) ([]model.Tag, error)
	CreateTag(ctx context.Context, in model.TagInput) (model.Tag, error)
	UpdateTag(ctx context.Context, id int64, p model.TagPatch) (model.Tag, error)
	DeleteTag(ctx context.Context, id int64) error
	AddTagToNote(ctx context.Context, noteID string, tagID int64) error
	RemoveTagFromNote(ctx context.Context, noteID string, tagID int64) error
	TagsForNote(ctx context.Context, noteID string) ([]model.Tag, error)
	NotesByTag(ctx context.Context, tagID int64) ([]string, error)
}

// NoteTagger edits tag names on notes. *notes.Store implements it.
type NoteTagger interface {
	AddTag(ctx context.Context, noteID, name string) error
	RemoveTag(ctx context.Context, noteID, name string) error
	IDsWithTag(name string) []string
	TagNames(noteID string) ([]string, error)
}

type Seeder interface {
	SeedTags(now time.Time) []model.Tag
}

type Options struct {
	KV       *kv.Store
	Registry *datasync.Registry
	Seed     Seeder
	Remote   Remote
	// Notes serves link operations for local stores. Ignored when Remote is set.
	Notes  NoteTagger
	Clock  *clock.Monotonic
	Logger *slog.Logger
}

type State struct {
	Tags    []model.Tag
	Loading bool
	Error   string
}

type Store struct {
	kv     *kv.Store
	seed   Seeder
	remote Remote
	notes  NoteTagger
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
		notes:  opts.Notes,
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
	s.state = state.New(State{Tags: s.load()})
	if opts.Registry != nil {
		opts.Registry.Register(Key, s.sync)
	}
	return s
}

func (s *Store) load() []model.Tag {
	tags := kv.GetOr(s.kv, Key, []model.Tag(nil))
	if len(tags) == 0 && s.seed != nil {
		tags = s.seed.SeedTags(s.clock.Now())
		if len(tags) > 0 {
			s.kv.Set(Key, tags)
		}
	}
	return tags
}

func (s *Store) sync(context.Context) error {
	gen := s.tracker.Mark()
	if err := s.kv.Put(Key, s.state.Get().Tags); err != nil {
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
	tags := s.load()
	s.state.Update(func(st *State) {
		st.Tags = tags
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

func (s *Store) done() {
	s.state.Update(func(st *State) { st.Loading = false })
}

func (s *Store) fail(err error) error {
	s.state.Update(func(st *State) {
		st.Loading = false
		st.Error = err.Error()
	})
	return err
}

func (s *Store) FetchAll(ctx context.Context) ([]model.Tag, error) {
	s.begin()
	if s.remote != nil {
		tags, err := s.remote.ListTags(ctx)
		if err != nil {
			return nil, s.fail(err)
		}
		st := s.state.Update(func(st *State) {
			st.Tags = tags
			st.Loading = false
			s.tracker.Touch()
		})
		return st.Tags, nil
	}
	if gen, clean := s.tracker.Clean(); clean {
		tags := s.load()
		st := s.state.Update(func(st *State) {
			if s.tracker.Unchanged(gen) {
				st.Tags = tags
			}
			st.Loading = false
		})
		return st.Tags, nil
	}
	return s.state.Update(func(st *State) { st.Loading = false }).Tags, nil
}

// Create prepends a tag. Names are unique; the color defaults to
// model.DefaultTagColor.
func (s *Store) Create(ctx context.Context, in model.TagInput) (model.Tag, error) {
	if err := in.Validate(); err != nil {
		return model.Tag{}, err
	}
	name := strings.TrimSpace(in.Name)

	if s.remote != nil {
		s.begin()
		tag, err := s.remote.CreateTag(ctx, in)
		if err != nil {
			return model.Tag{}, s.fail(err)
		}
		s.state.Update(func(st *State) {
			st.Tags = append([]model.Tag{tag}, st.Tags...)
			st.Loading = false
			s.tracker.Touch()
		})
		return tag, nil
	}

	tag := model.Tag{
		ID:        s.clock.NextID(),
		Name:      name,
		Color:     in.ColorOrDefault(),
		CreatedAt: s.clock.Now(),
	}
	taken := false
	s.state.Update(func(st *State) {
		if slices.ContainsFunc(st.Tags, func(t model.Tag) bool { return t.Name == name }) {
			taken = true
			return
		}
		st.Tags = append([]model.Tag{tag}, st.Tags...)
		s.tracker.Touch()
	})
	if taken {
		return model.Tag{}, fmt.Errorf("tag %q: %w", name, model.ErrDuplicate)
	}
	return tag, nil
}

// Update renames or recolors a tag. A local rename is carried over to every
// note that holds the old name.
func (s *Store) Update(ctx context.Context, id int64, p model.TagPatch) (model.Tag, error) {
	if err := p.Validate(); err != nil {
		return model.Tag{}, err
	}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		p.Name = &name
	}

	if s.remote != nil {
		s.begin()
		t, err := s.remote.UpdateTag(ctx, id, p)
		if err != nil {
			return model.Tag{}, s.fail(err)
		}
		s.state.Update(func(st *State) {
			tags := slices.Clone(st.Tags)
			for i := range tags {
				if tags[i].ID == id {
					tags[i] = t
				}
			}
			st.Tags = tags
			st.Loading = false
			s.tracker.Touch()
		})
		return t, nil
	}

	var (
		updated  model.Tag
		previous string
		err      error
	)
	s.state.Update(func(st *State) {
		i := slices.IndexFunc(st.Tags, func(t model.Tag) bool { return t.ID == id })
		if i < 0 {
			err = fmt.Errorf("tag %d: %w", id, model.ErrNotFound)
			return
		}
		current := st.Tags[i]
		if p.Name != nil && *p.Name != current.Name &&
			slices.ContainsFunc(st.Tags, func(t model.Tag) bool { return t.Name == *p.Name }) {
			err = fmt.Errorf("tag %q: %w", *p.Name, model.ErrDuplicate)
			return
		}
		previous = current.Name
		updated = p.Apply(current)
		tags := slices.Clone(st.Tags)
		tags[i] = updated
		st.Tags = tags
		s.tracker.Touch()
	})
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			s.logger.Warn("update of unknown tag", "id", id)
		}
		return model.Tag{}, err
	}
	if updated.Name != previous {
		if err := s.renameOnNotes(ctx, previous, updated.Name); err != nil {
			return model.Tag{}, err
		}
	}
	return updated, nil
}

// Delete removes a tag and, locally, strips its name from every note.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if s.remote != nil {
		s.begin()
		if err := s.remote.DeleteTag(ctx, id); err != nil {
			return s.fail(err)
		}
	} else if t, ok := s.Get(id); ok && s.notes != nil {
		for _, noteID := range s.notes.IDsWithTag(t.Name) {
			if err := s.notes.RemoveTag(ctx, noteID, t.Name); err != nil {
				return err
			}
		}
	}
	s.state.Update(func(st *State) {
		st.Tags = slices.DeleteFunc(slices.Clone(st.Tags), func(t model.Tag) bool { return t.ID == id })
		st.Loading = false
		s.tracker.Touch()
	})
	return nil
}

func (s *Store) AddToNote(ctx context.Context, noteID string, tagID int64) error {
	if s.remote != nil {
		s.begin()
		if err := s.remote.AddTagToNote(ctx, noteID, tagID); err != nil {
			return s.fail(err)
		}
		s.done()
		return nil
	}
	name, err := s.localName(tagID)
	if err != nil {
		return err
	}
	return s.notes.AddTag(ctx, noteID, name)
}

func (s *Store) RemoveFromNote(ctx context.Context, noteID string, tagID int64) error {
	if s.remote != nil {
		s.begin()
		if err := s.remote.RemoveTagFromNote(ctx, noteID, tagID); err != nil {
			return s.fail(err)
		}
		s.done()
		return nil
	}
	name, err := s.localName(tagID)
	if err != nil {
		return err
	}
	return s.notes.RemoveTag(ctx, noteID, name)
}

// TagsForNote returns the tags linked to a note, in name order. Locally, tag
// names on the note that have no tag record are skipped.
func (s *Store) TagsForNote(ctx context.Context, noteID string) ([]model.Tag, error) {
	if s.remote != nil {
		s.begin()
		tags, err := s.remote.TagsForNote(ctx, noteID)
		if err != nil {
			return nil, s.fail(err)
		}
		s.done()
		return tags, nil
	}
	if s.notes == nil {
		return nil, ErrNoNotes
	}
	names, err := s.notes.TagNames(noteID)
	if err != nil {
		return nil, err
	}
	out := []model.Tag{}
	for _, name := range names {
		if t, ok := s.byName(name); ok {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b model.Tag) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// NotesByTag returns the IDs of the notes carrying a tag.
func (s *Store) NotesByTag(ctx context.Context, tagID int64) ([]string, error) {
	if s.remote != nil {
		s.begin()
		ids, err := s.remote.NotesByTag(ctx, tagID)
		if err != nil {
			return nil, s.fail(err)
		}
		s.done()
		return ids, nil
	}
	name, err := s.localName(tagID)
	if err != nil {
		return nil, err
	}
	return s.notes.IDsWithTag(name), nil
}

func (s *Store) Get(id int64) (model.Tag, bool) {
	for _, t := range s.state.Get().Tags {
		if t.ID == id {
			return t, true
		}
	}
	return model.Tag{}, false
}

func (s *Store) byName(name string) (model.Tag, bool) {
	for _, t := range s.state.Get().Tags {
		if t.Name == name {
			return t, true
		}
	}
	return model.Tag{}, false
}

func (s *Store) localName(tagID int64) (string, error) {
	if s.notes == nil {
		return "", ErrNoNotes
	}
	t, ok := s.Get(tagID)
	if !ok {
		return "", fmt.Errorf("tag %d: %w", tagID, model.ErrNotFound)
	}
	return t.Name, nil
}

func (s *Store) renameOnNotes(ctx context.Context, from, to string) error {
	if s.notes == nil {
		return nil
	}
	for _, noteID := range s.notes.IDsWithTag(from) {
		if err := s.notes.AddTag(ctx, noteID, to); err != nil {
			return err
		}
		if err := s.notes.RemoveTag(ctx, noteID, from); err != nil {
			return err
		}
	}
	return nil
}
