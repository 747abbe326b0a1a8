package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/kalambet/notebook/internal/clock"
	"github.com/kalambet/notebook/internal/kv"
	"github.com/kalambet/notebook/internal/model"
)

var t0 = time.Date(2024, 5, 6, 9, 30, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	s.SetClock(clock.NewFake(t0))
	return s
}

func ptr[T any](v T) *T { return &v }

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_notes_project_id", "idx_note_tags_tag_id", "idx_tasks_position", "idx_pomodoro_task_id"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying index %s: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %s not found", idx)
		}
	}
}

func TestParseMigrationVersion(t *testing.T) {
	v, err := parseMigrationVersion("001_init.sql")
	if err != nil || v != 1 {
		t.Errorf("parseMigrationVersion = %d, %v", v, err)
	}
	if _, err := parseMigrationVersion("init.sql"); err == nil {
		t.Error("expected error for unnumbered migration")
	}
}

// --- kv ---

func TestKVBackendThroughStore(t *testing.T) {
	s := openTestStore(t)
	store := kv.New(s, "")

	store.Set("notes", []string{"a", "b"})
	if got := kv.GetOr(store, "notes", []string(nil)); len(got) != 2 {
		t.Fatalf("round trip = %v", got)
	}
	if err := s.SetItem("unrelated", "x"); err != nil {
		t.Fatalf("SetItem: %v", err)
	}

	store.Clear()
	if _, ok, _ := s.GetItem("unrelated"); !ok {
		t.Error("Clear removed a key outside the namespace")
	}
	if _, ok, _ := s.GetItem(kv.DefaultPrefix + "notes"); ok {
		t.Error("Clear left a namespaced key")
	}
	if !store.IsSupported() {
		t.Error("IsSupported = false on SQLite backend")
	}
}

func TestKVQuota(t *testing.T) {
	s := openTestStore(t)
	s.SetQuota(20)

	if err := s.SetItem("k", "0123456789"); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := s.SetItem("k2", "0123456789"); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("over-quota write error = %v, want ErrQuotaExceeded", err)
	}
	// Overwriting a key only counts its new size.
	if err := s.SetItem("k", "0123456789abcdef"); err != nil {
		t.Errorf("overwrite within quota: %v", err)
	}
}

func TestReplacePrefixIsAtomic(t *testing.T) {
	s := openTestStore(t)
	store := kv.New(s, "")
	store.Set("notes", []string{"before"})

	s.SetQuota(60)
	big := json.RawMessage(`"0123456789012345678901234567890123456789012345678901234567890123456789"`)
	atomic, err := store.Replace(map[string]json.RawMessage{"tasks": big})
	if !atomic {
		t.Error("SQLite replace reported non-atomic")
	}
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Replace error = %v, want ErrQuotaExceeded", err)
	}
	if got := kv.GetOr(store, "notes", []string(nil)); len(got) != 1 || got[0] != "before" {
		t.Errorf("namespace changed after failed replace: %v", got)
	}

	s.SetQuota(0)
	if _, err := store.Replace(map[string]json.RawMessage{"tasks": json.RawMessage(`[]`)}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	entries, err := store.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 || entries["tasks"] != "[]" {
		t.Errorf("entries after replace = %v", entries)
	}
}

// --- notes and tags ---

func TestNoteCRUDWithTags(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n, err := s.CreateNote(ctx, model.NoteInput{Title: "Plan", Content: "write things", Tags: []string{"work", "ideas"}})
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if !n.CreatedAt.Equal(n.UpdatedAt) {
		t.Errorf("created_at %v != updated_at %v", n.CreatedAt, n.UpdatedAt)
	}
	if len(n.Tags) != 2 || n.Tags[0] != "ideas" || n.Tags[1] != "work" {
		t.Errorf("tags = %v, want [ideas work]", n.Tags)
	}

	updated, err := s.UpdateNote(ctx, n.ID, model.NotePatch{Content: ptr("rewritten"), Tags: &[]string{"work"}})
	if err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}
	if updated.Title != "Plan" || updated.Content != "rewritten" {
		t.Errorf("update merged wrong: %+v", updated)
	}
	if !updated.UpdatedAt.After(n.UpdatedAt) {
		t.Errorf("updated_at did not increase: %v -> %v", n.UpdatedAt, updated.UpdatedAt)
	}
	if len(updated.Tags) != 1 || updated.Tags[0] != "work" {
		t.Errorf("tags after update = %v", updated.Tags)
	}

	notes, err := s.ListNotes(ctx)
	if err != nil || len(notes) != 1 {
		t.Fatalf("ListNotes = %v, %v", notes, err)
	}

	if err := s.DeleteNote(ctx, n.ID); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	if err := s.DeleteNote(ctx, n.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
	if _, err := s.UpdateNote(ctx, n.ID, model.NotePatch{Title: ptr("x")}); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("update missing note error = %v", err)
	}
}

func TestCreateNoteValidation(t *testing.T) {
	s := openTestStore(t)
	_, err := s.CreateNote(context.Background(), model.NoteInput{Title: "  "})
	if !model.IsValidation(err) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	notes, _ := s.ListNotes(context.Background())
	if len(notes) != 0 {
		t.Errorf("invalid note was stored")
	}
}

func TestSearchNotes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mustNote := func(in model.NoteInput) {
		t.Helper()
		if _, err := s.CreateNote(ctx, in); err != nil {
			t.Fatalf("CreateNote: %v", err)
		}
	}
	mustNote(model.NoteInput{Title: "Groceries", Content: "milk"})
	mustNote(model.NoteInput{Title: "Standup", Content: "blocked on review"})
	mustNote(model.NoteInput{Title: "Misc", Content: "nothing", Tags: []string{"review"}})

	tests := map[string]int{"milk": 1, "REVIEW": 2, "zzz": 0}
	for q, want := range tests {
		got, err := s.SearchNotes(ctx, q)
		if err != nil {
			t.Fatalf("SearchNotes(%q): %v", q, err)
		}
		if len(got) != want {
			t.Errorf("SearchNotes(%q) = %d notes, want %d", q, len(got), want)
		}
	}
}

func TestTagLinking(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	note, _ := s.CreateNote(ctx, model.NoteInput{Title: "n"})
	tag, err := s.CreateTag(ctx, model.TagInput{Name: "urgent"})
	if err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	if tag.Color != model.DefaultTagColor {
		t.Errorf("color = %q, want default", tag.Color)
	}
	if _, err := s.CreateTag(ctx, model.TagInput{Name: "urgent"}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate tag error = %v", err)
	}

	if err := s.AddTagToNote(ctx, note.ID, tag.ID); err != nil {
		t.Fatalf("AddTagToNote: %v", err)
	}
	if err := s.AddTagToNote(ctx, note.ID, tag.ID); err != nil {
		t.Fatalf("second AddTagToNote: %v", err)
	}
	if err := s.AddTagToNote(ctx, "missing", tag.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("link to missing note error = %v", err)
	}

	tags, _ := s.TagsForNote(ctx, note.ID)
	if len(tags) != 1 || tags[0].ID != tag.ID {
		t.Errorf("TagsForNote = %+v", tags)
	}
	ids, _ := s.NotesByTag(ctx, tag.ID)
	if len(ids) != 1 || ids[0] != note.ID {
		t.Errorf("NotesByTag = %v", ids)
	}

	renamed, err := s.UpdateTag(ctx, tag.ID, model.TagPatch{Name: ptr("later")})
	if err != nil || renamed.Name != "later" {
		t.Fatalf("UpdateTag = %+v, %v", renamed, err)
	}
	got, _ := s.GetNote(ctx, note.ID)
	if len(got.Tags) != 1 || got.Tags[0] != "later" {
		t.Errorf("note tags after rename = %v", got.Tags)
	}

	if err := s.RemoveTagFromNote(ctx, note.ID, tag.ID); err != nil {
		t.Fatalf("RemoveTagFromNote: %v", err)
	}
	if ids, _ := s.NotesByTag(ctx, tag.ID); len(ids) != 0 {
		t.Errorf("NotesByTag after remove = %v", ids)
	}

	s.AddTagToNote(ctx, note.ID, tag.ID)
	if err := s.DeleteTag(ctx, tag.ID); err != nil {
		t.Fatalf("DeleteTag: %v", err)
	}
	if tags, _ := s.TagsForNote(ctx, note.ID); len(tags) != 0 {
		t.Errorf("links survived tag delete: %+v", tags)
	}
}

// --- projects and tasks ---

func TestProjectLifecycleAndStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, model.ProjectInput{Name: "Launch"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if p.Color != model.DefaultProjectColor || p.Archived {
		t.Errorf("new project = %+v", p)
	}

	pid := p.ID
	done, _ := s.CreateTask(ctx, model.TaskInput{Title: "a", ProjectID: &pid})
	s.CreateTask(ctx, model.TaskInput{Title: "b", ProjectID: &pid})
	s.CreateTask(ctx, model.TaskInput{Title: "other"})
	s.UpdateTask(ctx, done.ID, model.TaskPatch{Completed: ptr(true)})
	s.CreateNote(ctx, model.NoteInput{Title: "n", ProjectID: ptr(strconv.FormatInt(pid, 10))})
	s.StartSession(ctx, model.SessionInput{TaskID: &done.ID, SessionType: model.SessionWork, DurationMinutes: 25})

	st, err := s.ProjectStats(ctx, pid)
	if err != nil {
		t.Fatalf("ProjectStats: %v", err)
	}
	want := model.ProjectStats{TotalNotes: 1, TotalTasks: 2, CompletedTasks: 1, TotalPomodoroSessions: 1}
	if st != want {
		t.Errorf("stats = %+v, want %+v", st, want)
	}

	archived, err := s.UpdateProject(ctx, pid, model.ProjectPatch{Archived: ptr(true)})
	if err != nil || !archived.Archived || archived.Name != "Launch" {
		t.Fatalf("archive = %+v, %v", archived, err)
	}

	if err := s.DeleteProject(ctx, pid); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	tasks, _ := s.ListTasks(ctx)
	if len(tasks) != 3 {
		t.Errorf("deleting a project removed tasks: %d left", len(tasks))
	}
	if _, err := s.ProjectStats(ctx, pid); !errors.Is(err, ErrNotFound) {
		t.Errorf("stats for deleted project error = %v", err)
	}
}

func TestTaskPositionsAndReorder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var ids []int64
	for i, title := range []string{"a", "b", "c"} {
		task, err := s.CreateTask(ctx, model.TaskInput{Title: title})
		if err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
		if task.Position != i+1 {
			t.Errorf("task %s position = %d, want %d", title, task.Position, i+1)
		}
		if task.Priority != model.PriorityMedium {
			t.Errorf("default priority = %q", task.Priority)
		}
		ids = append(ids, task.ID)
	}

	if _, err := s.UpdateTask(ctx, ids[0], model.TaskPatch{ParentTaskID: &ids[0]}); !model.IsValidation(err) {
		t.Errorf("self-parent error = %v, want ValidationError", err)
	}

	if err := s.ReorderTasks(ctx, []int64{ids[2], ids[0], ids[1]}); err != nil {
		t.Fatalf("ReorderTasks: %v", err)
	}
	for want, id := range []int64{ids[2], ids[0], ids[1]} {
		task, _ := s.GetTask(ctx, id)
		if task.Position != want+1 {
			t.Errorf("task %d position = %d, want %d", id, task.Position, want+1)
		}
	}

	if err := s.ReorderTasks(ctx, []int64{ids[1], 999}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("reorder with missing id error = %v", err)
	}
	task, _ := s.GetTask(ctx, ids[1])
	if task.Position != 3 {
		t.Errorf("failed reorder changed positions: %d", task.Position)
	}
}

// --- pomodoro ---

func TestSessionsAndStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	fake := clock.NewFake(t0)
	s.SetClock(fake)

	work, err := s.StartSession(ctx, model.SessionInput{SessionType: model.SessionWork, DurationMinutes: 25})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	fake.Advance(25 * time.Minute)
	completed, err := s.CompleteSession(ctx, work.ID)
	if err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}
	if !completed.Completed || completed.CompletedAt == nil || !completed.CompletedAt.Equal(t0.Add(25*time.Minute)) {
		t.Errorf("completed session = %+v", completed)
	}

	brk, _ := s.StartSession(ctx, model.SessionInput{SessionType: model.SessionShortBreak, DurationMinutes: 5})
	s.CompleteSession(ctx, brk.ID)
	pending, _ := s.StartSession(ctx, model.SessionInput{SessionType: model.SessionWork, DurationMinutes: 25})

	st, err := s.SessionStats(ctx, t0)
	if err != nil {
		t.Fatalf("SessionStats: %v", err)
	}
	want := model.PomodoroStats{TotalSessions: 3, CompletedSessions: 2, TotalFocusTime: 25, SessionsToday: 3, FocusTimeToday: 25}
	if st != want {
		t.Errorf("stats = %+v, want %+v", st, want)
	}

	tomorrow, _ := s.SessionStats(ctx, t0.Add(24*time.Hour))
	if tomorrow.SessionsToday != 0 || tomorrow.TotalSessions != 3 {
		t.Errorf("stats for the next day = %+v", tomorrow)
	}

	if err := s.CancelSession(ctx, pending.ID); err != nil {
		t.Fatalf("CancelSession: %v", err)
	}
	sessions, _ := s.ListSessions(ctx)
	if len(sessions) != 2 {
		t.Errorf("sessions after cancel = %d, want 2", len(sessions))
	}
}

func TestSessionsByTask(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	task, _ := s.CreateTask(ctx, model.TaskInput{Title: "focus"})

	s.StartSession(ctx, model.SessionInput{TaskID: &task.ID, SessionType: model.SessionWork, DurationMinutes: 25})
	s.StartSession(ctx, model.SessionInput{SessionType: model.SessionWork, DurationMinutes: 25})

	got, err := s.SessionsByTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("SessionsByTask: %v", err)
	}
	if len(got) != 1 || got[0].TaskID == nil || *got[0].TaskID != task.ID {
		t.Errorf("SessionsByTask = %+v", got)
	}
}
