package notes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/notebook/internal/clock"
	"github.com/kalambet/notebook/internal/datasync"
	"github.com/kalambet/notebook/internal/kv"
	"github.com/kalambet/notebook/internal/model"
	"github.com/kalambet/notebook/internal/seed"
)

var t0 = time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	store    *Store
	kv       *kv.Store
	backend  *kv.MemoryBackend
	registry *datasync.Registry
	clock    *clock.Fake
}

func newFixture(t *testing.T, seeder Seeder, remote Remote) *fixture {
	t.Helper()
	b := kv.NewMemoryBackend(0)
	f := &fixture{
		kv:       kv.New(b, ""),
		backend:  b,
		registry: datasync.NewRegistry(),
		clock:    clock.NewFake(t0),
	}
	f.store = New(Options{
		KV:       f.kv,
		Registry: f.registry,
		Seed:     seeder,
		Remote:   remote,
		Clock:    clock.NewMonotonic(f.clock),
	})
	return f
}

func (f *fixture) persisted(t *testing.T) []model.Note {
	t.Helper()
	return kv.GetOr(f.kv, Key, []model.Note(nil))
}

func ptr[T any](v T) *T { return &v }

func TestNewSeedsAndPersistsEmptyStore(t *testing.T) {
	f := newFixture(t, seed.Default(), nil)

	notes := f.store.State().Notes
	if len(notes) != 1 {
		t.Fatalf("seeded notes = %d, want 1", len(notes))
	}
	if got := f.persisted(t); len(got) != 1 {
		t.Errorf("seed not persisted immediately: %v", got)
	}
	if keys := f.registry.Keys(); len(keys) != 1 || keys[0] != Key {
		t.Errorf("registry keys = %v", keys)
	}
}

func TestNewLoadsExistingSnapshot(t *testing.T) {
	b := kv.NewMemoryBackend(0)
	store := kv.New(b, "")
	store.Set(Key, []model.Note{{ID: "a", Title: "kept"}, {ID: "b", Title: "also"}})

	s := New(Options{KV: store, Seed: seed.Default()})
	if got := s.State().Notes; len(got) != 2 || got[0].Title != "kept" {
		t.Errorf("loaded notes = %+v", got)
	}
}

func TestCreateTimestampsAndOrder(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	first, err := f.store.Create(ctx, model.NoteInput{Title: "one"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, _ := f.store.Create(ctx, model.NoteInput{Title: "two", Tags: []string{"x"}})

	if !first.CreatedAt.Equal(first.UpdatedAt) {
		t.Errorf("created %v != updated %v", first.CreatedAt, first.UpdatedAt)
	}
	if !second.CreatedAt.After(first.CreatedAt) {
		t.Errorf("second note not after first: %v <= %v", second.CreatedAt, first.CreatedAt)
	}
	if first.ID == second.ID {
		t.Error("duplicate IDs")
	}
	notes := f.store.State().Notes
	if notes[0].ID != second.ID {
		t.Errorf("newest note not first: %+v", notes)
	}
}

func TestCreateRejectsBlankTitle(t *testing.T) {
	f := newFixture(t, nil, nil)
	_, err := f.store.Create(context.Background(), model.NoteInput{Title: " "})
	if !model.IsValidation(err) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if len(f.store.State().Notes) != 0 {
		t.Error("state changed on validation failure")
	}
}

func TestUpdateMergesAndRefreshesTimestamp(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	n, _ := f.store.Create(ctx, model.NoteInput{Title: "draft", Content: "body", Tags: []string{"a"}})

	got, err := f.store.Update(ctx, n.ID, model.NotePatch{Title: ptr("final")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Title != "final" || got.Content != "body" || len(got.Tags) != 1 {
		t.Errorf("merge wrong: %+v", got)
	}
	if !got.UpdatedAt.After(n.UpdatedAt) {
		t.Errorf("updated_at did not increase")
	}
	if !got.CreatedAt.Equal(n.CreatedAt) {
		t.Errorf("created_at changed")
	}
}

func TestUpdateUnknownIDLeavesState(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	f.store.Create(ctx, model.NoteInput{Title: "only"})
	before := f.store.State()

	_, err := f.store.Update(ctx, "missing", model.NotePatch{Title: ptr("x")})
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	after := f.store.State()
	if len(after.Notes) != len(before.Notes) || after.Notes[0].Title != "only" {
		t.Errorf("state changed: %+v", after.Notes)
	}
}

func TestDeleteClearsCurrent(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	a, _ := f.store.Create(ctx, model.NoteInput{Title: "a"})
	f.store.Create(ctx, model.NoteInput{Title: "b"})

	if err := f.store.SetCurrent(a.ID); err != nil {
		t.Fatalf("SetCurrent: %v", err)
	}
	if err := f.store.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	st := f.store.State()
	if len(st.Notes) != 1 || st.Current != nil {
		t.Errorf("after delete: %d notes, current %v", len(st.Notes), st.Current)
	}

	f.store.Delete(ctx, "missing")
	if got := len(f.store.State().Notes); got != 1 {
		t.Errorf("deleting a missing id changed cardinality to %d", got)
	}
}

func TestPersistenceHappensOnSync(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	f.store.Create(ctx, model.NoteInput{Title: "later"})

	if got := f.persisted(t); len(got) != 0 {
		t.Fatalf("persisted before sync: %v", got)
	}
	if err := f.registry.TriggerSync(ctx); err != nil {
		t.Fatalf("TriggerSync: %v", err)
	}
	first, _, _ := f.backend.GetItem(kv.DefaultPrefix + Key)
	f.registry.TriggerSync(ctx)
	second, _, _ := f.backend.GetItem(kv.DefaultPrefix + Key)

	if first == "" || first != second {
		t.Errorf("repeated sync not byte-identical:\n%s\n%s", first, second)
	}
}

func TestSearch(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	f.store.Create(ctx, model.NoteInput{Title: "Groceries", Content: "Milk and eggs"})
	f.store.Create(ctx, model.NoteInput{Title: "Ideas", Tags: []string{"Side-Project"}})
	f.store.Create(ctx, model.NoteInput{Title: "Other"})

	got, _ := f.store.Search(ctx, "milk")
	if len(got) != 1 || got[0].Title != "Groceries" {
		t.Errorf("content search = %+v", got)
	}
	got, _ = f.store.Search(ctx, "side")
	if len(got) != 1 || got[0].Title != "Ideas" {
		t.Errorf("tag search = %+v", got)
	}
	if len(f.store.State().Notes) != 3 {
		t.Error("search filtered the collection")
	}
}

func TestBlankSearchIsFetchAll(t *testing.T) {
	f := newFixture(t, seed.Default(), nil)
	ctx := context.Background()

	all, err := f.store.FetchAll(ctx)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	blank, err := f.store.Search(ctx, "   ")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(all) != len(blank) || all[0].ID != blank[0].ID {
		t.Errorf("Search(blank) = %+v, FetchAll = %+v", blank, all)
	}
}

func TestFetchAllKeepsUnsyncedChanges(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	f.store.Create(ctx, model.NoteInput{Title: "pending"})

	notes, _ := f.store.FetchAll(ctx)
	if len(notes) != 1 {
		t.Fatalf("FetchAll dropped a pending note: %+v", notes)
	}
}

func TestReloadAfterExternalWrite(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.store.Create(context.Background(), model.NoteInput{Title: "local"})
	f.kv.Set(Key, []model.Note{{ID: "r", Title: "restored"}})

	f.store.Reload()
	notes := f.store.State().Notes
	if len(notes) != 1 || notes[0].Title != "restored" {
		t.Errorf("after Reload = %+v", notes)
	}
}

func TestTagHelpers(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	n, _ := f.store.Create(ctx, model.NoteInput{Title: "n"})
	f.store.Create(ctx, model.NoteInput{Title: "m", Tags: []string{"work"}})

	if err := f.store.AddTag(ctx, n.ID, "work"); err != nil {
		t.Fatalf("AddTag: %v", err)
	}
	f.store.AddTag(ctx, n.ID, "work")
	if ids := f.store.IDsWithTag("work"); len(ids) != 2 {
		t.Errorf("IDsWithTag = %v", ids)
	}
	if err := f.store.RemoveTag(ctx, n.ID, "work"); err != nil {
		t.Fatalf("RemoveTag: %v", err)
	}
	if got := f.store.ByTag("work"); len(got) != 1 || got[0].Title != "m" {
		t.Errorf("ByTag = %+v", got)
	}
	if names, err := f.store.TagNames(n.ID); err != nil || len(names) != 0 {
		t.Errorf("TagNames = %v, %v", names, err)
	}
	if _, err := f.store.TagNames("missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("TagNames missing = %v", err)
	}
}

func TestByProject(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	f.store.Create(ctx, model.NoteInput{Title: "a", ProjectID: ptr("7")})
	f.store.Create(ctx, model.NoteInput{Title: "b"})

	if got := f.store.ByProject("7"); len(got) != 1 || got[0].Title != "a" {
		t.Errorf("ByProject = %+v", got)
	}
}

func TestSubscribersSeeMutationsSynchronously(t *testing.T) {
	f := newFixture(t, nil, nil)
	var counts []int
	unsub := f.store.Subscribe(func(st State) { counts = append(counts, len(st.Notes)) })
	defer unsub()

	f.store.Create(context.Background(), model.NoteInput{Title: "x"})
	if len(counts) == 0 || counts[len(counts)-1] != 1 {
		t.Errorf("subscriber saw %v", counts)
	}
}

type failingRemote struct{ err error }

func (r failingRemote) ListNotes(context.Context) ([]model.Note, error) { return nil, r.err }
func (r failingRemote) CreateNote(context.Context, model.NoteInput) (model.Note, error) {
	return model.Note{}, r.err
}
func (r failingRemote) UpdateNote(context.Context, string, model.NotePatch) (model.Note, error) {
	return model.Note{}, r.err
}
func (r failingRemote) DeleteNote(context.Context, string) error { return r.err }
func (r failingRemote) SearchNotes(context.Context, string) ([]model.Note, error) {
	return nil, r.err
}

func TestRemoteFailureKeepsCollection(t *testing.T) {
	b := kv.NewMemoryBackend(0)
	store := kv.New(b, "")
	store.Set(Key, []model.Note{{ID: "a", Title: "cached"}})
	s := New(Options{KV: store, Remote: failingRemote{err: errors.New("database is locked")}})

	if _, err := s.FetchAll(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	st := s.State()
	if st.Error != "database is locked" {
		t.Errorf("Error = %q, want the remote message verbatim", st.Error)
	}
	if st.Loading {
		t.Error("Loading left set")
	}
	if len(st.Notes) != 1 || st.Notes[0].Title != "cached" {
		t.Errorf("collection changed: %+v", st.Notes)
	}

	if err := s.Delete(context.Background(), "a"); err == nil {
		t.Fatal("expected delete error")
	}
	if len(s.State().Notes) != 1 {
		t.Error("failed remote delete removed the note")
	}
}

func TestConcurrentUpdatesKeepEveryField(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	for round := 0; round < 200; round++ {
		n, _ := f.store.Create(ctx, model.NoteInput{Title: "draft"})
		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			f.store.Update(ctx, n.ID, model.NotePatch{Title: ptr("final")})
		}()
		go func() {
			defer wg.Done()
			f.store.Update(ctx, n.ID, model.NotePatch{Content: ptr("body")})
		}()
		go func() {
			defer wg.Done()
			f.store.AddTag(ctx, n.ID, "work")
		}()
		wg.Wait()

		got, _ := f.store.find(n.ID)
		if got.Title != "final" || got.Content != "body" || len(got.Tags) != 1 {
			t.Fatalf("round %d: note = %+v, want every update applied", round, got)
		}
	}
}

func TestFetchAllKeepsConcurrentCreates(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	for round := 0; round < 200; round++ {
		f.registry.TriggerSync(ctx)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.store.Create(ctx, model.NoteInput{Title: "n"})
		}()
		go func() {
			defer wg.Done()
			f.store.FetchAll(ctx)
		}()
		wg.Wait()

		if got := len(f.store.State().Notes); got != round+1 {
			t.Fatalf("round %d: %d notes, want %d", round, got, round+1)
		}
	}
}
