package tasks

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/notebook/internal/clock"
	"github.com/kalambet/notebook/internal/datasync"
	"github.com/kalambet/notebook/internal/kv"
	"github.com/kalambet/notebook/internal/model"
	"github.com/kalambet/notebook/internal/seed"
	"github.com/kalambet/notebook/internal/storage"
)

var t0 = time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func newStore(t *testing.T, opts Options) (*Store, *kv.Store, *datasync.Registry) {
	t.Helper()
	if opts.KV == nil {
		opts.KV = kv.New(kv.NewMemoryBackend(0), "")
	}
	if opts.Registry == nil {
		opts.Registry = datasync.NewRegistry()
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewMonotonic(clock.NewFake(t0))
	}
	return New(opts), opts.KV, opts.Registry
}

func TestTaskLifecycle(t *testing.T) {
	backend := kv.NewMemoryBackend(0)
	store := kv.New(backend, "")
	s, _, reg := newStore(t, Options{KV: store, Seed: seed.Default()})
	ctx := context.Background()
	reg.TriggerSync(ctx)

	others := map[string]string{}
	for _, k := range []string{"notes", "pomodoro_sessions", "pomodoro_settings"} {
		v, _, _ := backend.GetItem(kv.DefaultPrefix + k)
		others[k] = v
	}

	before := len(s.State().Tasks)
	task, err := s.Create(ctx, model.TaskInput{Title: "Write changelog"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if task.Completed || task.Priority != model.PriorityMedium {
		t.Errorf("new task = %+v", task)
	}
	if task.Position != before+1 || task.Position != len(s.State().Tasks) {
		t.Errorf("position = %d, want %d", task.Position, before+1)
	}
	if s.State().Tasks[0].ID != task.ID {
		t.Error("new task not prepended")
	}
	reg.TriggerSync(ctx)

	toggled, err := s.ToggleComplete(ctx, task.ID)
	if err != nil || !toggled.Completed {
		t.Fatalf("ToggleComplete = %+v, %v", toggled, err)
	}
	reg.TriggerSync(ctx)

	if err := s.Delete(ctx, task.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := s.Get(task.ID); ok {
		t.Error("task still present after delete")
	}
	reg.TriggerSync(ctx)

	persisted := kv.GetOr(store, Key, []model.Task(nil))
	if len(persisted) != before {
		t.Errorf("persisted tasks = %d, want %d", len(persisted), before)
	}
	for k, v := range others {
		got, _, _ := backend.GetItem(kv.DefaultPrefix + k)
		if got != v {
			t.Errorf("key %s written by task operations", k)
		}
	}
}

func TestCreatedIDsAndTimestampsIncrease(t *testing.T) {
	s, _, _ := newStore(t, Options{})
	ctx := context.Background()

	var last model.Task
	for i := 0; i < 5; i++ {
		task, err := s.Create(ctx, model.TaskInput{Title: "t"})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if !task.CreatedAt.Equal(task.UpdatedAt) {
			t.Errorf("created %v != updated %v", task.CreatedAt, task.UpdatedAt)
		}
		if i > 0 && (task.ID <= last.ID || !task.CreatedAt.After(last.CreatedAt)) {
			t.Errorf("task %d not after previous: %+v vs %+v", i, task, last)
		}
		last = task
	}
}

func TestCreateValidation(t *testing.T) {
	s, _, _ := newStore(t, Options{})
	ctx := context.Background()

	if _, err := s.Create(ctx, model.TaskInput{}); !model.IsValidation(err) {
		t.Errorf("blank title error = %v", err)
	}
	if _, err := s.Create(ctx, model.TaskInput{Title: "x", Priority: "urgent"}); !model.IsValidation(err) {
		t.Errorf("bad priority error = %v", err)
	}
	if len(s.State().Tasks) != 0 {
		t.Error("invalid input reached state")
	}
}

func TestUpdateProperties(t *testing.T) {
	s, _, _ := newStore(t, Options{})
	ctx := context.Background()
	task, _ := s.Create(ctx, model.TaskInput{Title: "a", Description: "keep", Priority: model.PriorityLow})

	got, err := s.Update(ctx, task.ID, model.TaskPatch{Title: ptr("b"), DueDate: ptr("2024-03-01")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Title != "b" || got.DueDate != "2024-03-01" {
		t.Errorf("named fields not applied: %+v", got)
	}
	if got.Description != "keep" || got.Priority != model.PriorityLow || got.Position != task.Position {
		t.Errorf("unnamed fields changed: %+v", got)
	}
	if !got.UpdatedAt.After(task.UpdatedAt) {
		t.Error("updated_at did not increase")
	}

	if _, err := s.Update(ctx, task.ID, model.TaskPatch{ParentTaskID: &task.ID}); !model.IsValidation(err) {
		t.Errorf("self-parent error = %v", err)
	}
	if _, err := s.Update(ctx, 42, model.TaskPatch{Title: ptr("x")}); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("missing id error = %v", err)
	}
}

func TestDeleteMissingLeavesCardinality(t *testing.T) {
	s, _, _ := newStore(t, Options{})
	ctx := context.Background()
	s.Create(ctx, model.TaskInput{Title: "a"})

	s.Delete(ctx, 12345)
	if got := len(s.State().Tasks); got != 1 {
		t.Errorf("tasks = %d, want 1", got)
	}
}

func TestReorderWritesOnePosition(t *testing.T) {
	s, _, _ := newStore(t, Options{})
	ctx := context.Background()
	a, _ := s.Create(ctx, model.TaskInput{Title: "a"})
	b, _ := s.Create(ctx, model.TaskInput{Title: "b"})
	c, _ := s.Create(ctx, model.TaskInput{Title: "c"})

	if _, err := s.Reorder(ctx, c.ID, 1); err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	gotA, _ := s.Get(a.ID)
	gotB, _ := s.Get(b.ID)
	gotC, _ := s.Get(c.ID)
	if gotA.Position != 1 || gotB.Position != 2 || gotC.Position != 1 {
		t.Errorf("positions a=%d b=%d c=%d, want 1 2 1", gotA.Position, gotB.Position, gotC.Position)
	}

	// Equal positions keep collection order, and c precedes a there.
	visible := s.Visible()
	if visible[0].ID != c.ID || visible[1].ID != a.ID || visible[2].ID != b.ID {
		t.Errorf("visible order = %v", []int64{visible[0].ID, visible[1].ID, visible[2].ID})
	}
}

func TestMoveRenumbers(t *testing.T) {
	s, _, _ := newStore(t, Options{})
	ctx := context.Background()
	a, _ := s.Create(ctx, model.TaskInput{Title: "a"})
	b, _ := s.Create(ctx, model.TaskInput{Title: "b"})
	c, _ := s.Create(ctx, model.TaskInput{Title: "c"})

	if err := s.Move(ctx, c.ID, 0); err != nil {
		t.Fatalf("Move: %v", err)
	}
	want := map[int64]int{c.ID: 1, a.ID: 2, b.ID: 3}
	for id, pos := range want {
		got, _ := s.Get(id)
		if got.Position != pos {
			t.Errorf("task %d position = %d, want %d", id, got.Position, pos)
		}
	}

	if err := s.Move(ctx, a.ID, 99); err != nil {
		t.Fatalf("Move past end: %v", err)
	}
	if got, _ := s.Get(a.ID); got.Position != 3 {
		t.Errorf("clamped move position = %d, want 3", got.Position)
	}
	if err := s.Move(ctx, 777, 0); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("move missing error = %v", err)
	}
}

func TestConcurrentUpdatesKeepEveryField(t *testing.T) {
	s, _, _ := newStore(t, Options{})
	ctx := context.Background()

	for round := 0; round < 200; round++ {
		task, _ := s.Create(ctx, model.TaskInput{Title: "draft"})
		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			s.Update(ctx, task.ID, model.TaskPatch{Title: ptr("final")})
		}()
		go func() {
			defer wg.Done()
			s.Update(ctx, task.ID, model.TaskPatch{Description: ptr("details")})
		}()
		go func() {
			defer wg.Done()
			s.ToggleComplete(ctx, task.ID)
		}()
		wg.Wait()

		got, _ := s.Get(task.ID)
		if got.Title != "final" || got.Description != "details" || !got.Completed {
			t.Fatalf("round %d: task = %+v, want every update applied", round, got)
		}
	}
}

func TestConcurrentTogglesDoNotCollapse(t *testing.T) {
	s, _, _ := newStore(t, Options{})
	ctx := context.Background()
	task, _ := s.Create(ctx, model.TaskInput{Title: "flip"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.ToggleComplete(ctx, task.ID)
		}()
	}
	wg.Wait()

	if got, _ := s.Get(task.ID); got.Completed {
		t.Error("an even number of toggles left the task completed")
	}
}

func TestFetchAllKeepsConcurrentCreates(t *testing.T) {
	s, _, reg := newStore(t, Options{})
	ctx := context.Background()

	for round := 0; round < 200; round++ {
		reg.TriggerSync(ctx)
		var (
			wg      sync.WaitGroup
			created model.Task
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			created, _ = s.Create(ctx, model.TaskInput{Title: "racing"})
		}()
		go func() {
			defer wg.Done()
			s.FetchAll(ctx)
		}()
		wg.Wait()

		if _, ok := s.Get(created.ID); !ok {
			t.Fatalf("round %d: FetchAll dropped a task created alongside it", round)
		}
	}
}

func TestFiltersAndDerivedViews(t *testing.T) {
	s, _, _ := newStore(t, Options{})
	ctx := context.Background()
	pid := int64(9)
	parent, _ := s.Create(ctx, model.TaskInput{Title: "parent", ProjectID: &pid})
	child, _ := s.Create(ctx, model.TaskInput{Title: "child", ParentTaskID: &parent.ID})
	s.ToggleComplete(ctx, child.ID)

	if got := s.ByProject(pid); len(got) != 1 || got[0].ID != parent.ID {
		t.Errorf("ByProject = %+v", got)
	}
	if got := s.Subtasks(parent.ID); len(got) != 1 || got[0].ID != child.ID {
		t.Errorf("Subtasks = %+v", got)
	}

	if err := s.SetFilter(FilterCompleted); err != nil {
		t.Fatalf("SetFilter: %v", err)
	}
	if got := s.Visible(); len(got) != 1 || got[0].ID != child.ID {
		t.Errorf("completed = %+v", got)
	}
	s.SetFilter(FilterPending)
	if got := s.Visible(); len(got) != 1 || got[0].ID != parent.ID {
		t.Errorf("pending = %+v", got)
	}
	if err := s.SetFilter("later"); !model.IsValidation(err) {
		t.Errorf("bad filter error = %v", err)
	}
}

func TestSQLiteRemote(t *testing.T) {
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, store, reg := newStore(t, Options{Remote: db})
	ctx := context.Background()

	if _, err := s.Create(ctx, model.TaskInput{Title: "a"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	b, _ := s.Create(ctx, model.TaskInput{Title: "b"})
	if err := s.Move(ctx, b.ID, 0); err != nil {
		t.Fatalf("Move: %v", err)
	}

	remote, _ := db.GetTask(ctx, b.ID)
	if remote.Position != 1 {
		t.Errorf("remote position = %d, want 1", remote.Position)
	}

	fetched, err := s.FetchAll(ctx)
	if err != nil || len(fetched) != 2 {
		t.Fatalf("FetchAll = %+v, %v", fetched, err)
	}
	if _, err := s.Update(ctx, 999, model.TaskPatch{Title: ptr("x")}); err == nil {
		t.Error("expected error for missing remote task")
	}
	if st := s.State(); st.Error == "" || len(st.Tasks) != 2 {
		t.Errorf("state after remote failure = %+v", st)
	}

	reg.TriggerSync(ctx)
	if cached := kv.GetOr(store, Key, []model.Task(nil)); len(cached) != 2 {
		t.Errorf("kv cache = %d tasks, want 2", len(cached))
	}
}

func TestSetOrder(t *testing.T) {
	s, _, _ := newStore(t, Options{})
	ctx := context.Background()
	a, _ := s.Create(ctx, model.TaskInput{Title: "a"})
	s.Create(ctx, model.TaskInput{Title: "b"})
	c, _ := s.Create(ctx, model.TaskInput{Title: "c"})

	if err := s.SetOrder(ctx, []int64{c.ID, 999, a.ID, c.ID}); err != nil {
		t.Fatalf("SetOrder: %v", err)
	}
	var got []string
	for _, task := range sortedByPosition(s.State().Tasks) {
		got = append(got, fmt.Sprintf("%s%d", task.Title, task.Position))
	}
	want := []string{"c1", "a2", "b3"}
	if !slices.Equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}
