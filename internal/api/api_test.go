package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/notebook/internal/app"
	"github.com/kalambet/notebook/internal/clock"
	"github.com/kalambet/notebook/internal/config"
	"github.com/kalambet/notebook/internal/ingest"
	"github.com/kalambet/notebook/internal/kv"
	"github.com/kalambet/notebook/internal/model"
)

var t0 = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func newTestApp(t *testing.T) *app.App {
	t.Helper()
	cfg := config.Config{
		Server:  config.ServerConfig{Port: 4100},
		Storage: config.StorageConfig{DataDir: ":memory:", Namespace: kv.DefaultPrefix, QuotaBytes: config.DefaultQuotaBytes},
		Sync:    config.SyncConfig{Interval: "30s"},
		Seed:    config.SeedConfig{Enabled: true},
		Backup:  config.BackupConfig{Dir: t.TempDir()},
	}
	a, err := app.New(cfg, app.Options{Clock: clock.NewFake(t0)})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func newTestHandler(t *testing.T) (http.Handler, *app.App) {
	t.Helper()
	a := newTestApp(t)
	return NewHandler(Deps{App: a, Importer: ingest.NewImporter(a.Notes)}), a
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := do(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode[map[string]string](t, rec); got["status"] != "ok" {
		t.Errorf("body = %v", got)
	}
}

func TestNotesCRUD(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodPost, "/notes", model.NoteInput{Title: "Groceries", Content: "milk", Tags: []string{"home"}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body)
	}
	created := decode[model.Note](t, rec)

	rec = do(t, h, http.MethodGet, "/notes", nil)
	if list := decode[[]model.Note](t, rec); len(list) != 2 || list[0].ID != created.ID {
		t.Fatalf("list = %+v", list)
	}

	rec = do(t, h, http.MethodGet, "/notes?q=MILK", nil)
	if list := decode[[]model.Note](t, rec); len(list) != 1 || list[0].ID != created.ID {
		t.Errorf("search = %+v", list)
	}

	title := "Groceries for Sunday"
	rec = do(t, h, http.MethodPatch, "/notes/"+created.ID, model.NotePatch{Title: &title})
	if rec.Code != http.StatusOK || decode[model.Note](t, rec).Title != title {
		t.Errorf("update = %d %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodGet, "/notes/"+created.ID, nil)
	if rec.Code != http.StatusOK || decode[model.Note](t, rec).Title != title {
		t.Errorf("get = %d %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodDelete, "/notes/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("delete status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/notes/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d", rec.Code)
	}
}

func TestValidationAndDecodeErrors(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodPost, "/notes", model.NoteInput{Title: "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if e := decode[errorBody](t, rec); e.Error.Type != "invalid_request_error" || !strings.Contains(e.Error.Message, "title") {
		t.Errorf("error = %+v", e)
	}

	req := httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader("{broken"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d", rr.Code)
	}

	rec = do(t, h, http.MethodPatch, "/tasks/abc", model.TaskPatch{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", rec.Code)
	}
}

func TestTasksFilterToggleMove(t *testing.T) {
	h, a := newTestHandler(t)

	seeded := a.Tasks.State().Tasks
	first := seeded[0].ID
	rec := do(t, h, http.MethodPost, "/tasks/"+strconv.FormatInt(first, 10)+"/toggle", nil)
	if rec.Code != http.StatusOK || !decode[model.Task](t, rec).Completed {
		t.Fatalf("toggle = %d %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodGet, "/tasks?filter=completed", nil)
	if list := decode[[]model.Task](t, rec); len(list) != 1 || list[0].ID != first {
		t.Errorf("completed = %+v", list)
	}
	rec = do(t, h, http.MethodGet, "/tasks?filter=pending", nil)
	if list := decode[[]model.Task](t, rec); len(list) != 2 {
		t.Errorf("pending = %d", len(list))
	}
	rec = do(t, h, http.MethodGet, "/tasks?filter=bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus filter status = %d", rec.Code)
	}

	last := seeded[len(seeded)-1].ID
	rec = do(t, h, http.MethodPost, "/tasks/"+strconv.FormatInt(last, 10)+"/move", moveRequest{Index: 0})
	if rec.Code != http.StatusOK {
		t.Fatalf("move = %d %s", rec.Code, rec.Body)
	}
	list := decode[[]model.Task](t, do(t, h, http.MethodGet, "/tasks", nil))
	if list[0].ID != last || list[0].Position != 1 {
		t.Errorf("after move first = %+v", list[0])
	}

	title := "renamed"
	rec = do(t, h, http.MethodPatch, "/tasks/42", model.TaskPatch{Title: &title})
	if rec.Code != http.StatusNotFound {
		t.Errorf("update unknown = %d", rec.Code)
	}
}

func TestTasksOrder(t *testing.T) {
	h, a := newTestHandler(t)

	seeded := a.Tasks.State().Tasks
	last := seeded[len(seeded)-1].ID
	rec := do(t, h, http.MethodPut, "/tasks/order", orderRequest{IDs: []int64{last}})
	if rec.Code != http.StatusOK {
		t.Fatalf("order = %d %s", rec.Code, rec.Body)
	}
	list := decode[[]model.Task](t, do(t, h, http.MethodGet, "/tasks", nil))
	if len(list) != len(seeded) || list[0].ID != last || list[0].Position != 1 {
		t.Errorf("after order = %+v", list)
	}
}

func TestProjectsAndBoard(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodPost, "/projects", model.ProjectInput{Name: "Garden"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", rec.Code, rec.Body)
	}
	p := decode[model.Project](t, rec)
	if p.Color != model.DefaultProjectColor {
		t.Errorf("color = %q", p.Color)
	}
	base := "/projects/" + strconv.FormatInt(p.ID, 10)

	rec = do(t, h, http.MethodPost, base+"/archive", nil)
	if !decode[model.Project](t, rec).Archived {
		t.Errorf("archive = %s", rec.Body)
	}
	if list := decode[[]model.Project](t, do(t, h, http.MethodGet, "/projects?active=true", nil)); len(list) != 3 {
		t.Errorf("active = %d, want 3", len(list))
	}

	rec = do(t, h, http.MethodGet, base+"/stats", nil)
	if rec.Code != http.StatusOK || decode[model.ProjectStats](t, rec) != (model.ProjectStats{}) {
		t.Errorf("stats = %d %s", rec.Code, rec.Body)
	}

	board := decode[[]model.KanbanColumn](t, do(t, h, http.MethodGet, base+"/board", nil))
	if len(board) != 4 || board[0].ID != "todo" {
		t.Fatalf("board = %+v", board)
	}

	rec = do(t, h, http.MethodPost, base+"/board/cards/task-1/move", moveCardRequest{From: "todo", To: "done", Index: 99})
	if rec.Code != http.StatusOK {
		t.Fatalf("move card = %d %s", rec.Code, rec.Body)
	}
	board = decode[[]model.KanbanColumn](t, rec)
	done := board[len(board)-1]
	if len(done.Tasks) != 2 || done.Tasks[1].ID != "task-1" {
		t.Errorf("done column = %+v", done.Tasks)
	}

	rec = do(t, h, http.MethodPost, base+"/board/columns", columnRequest{Title: "Blocked"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create column = %d %s", rec.Code, rec.Body)
	}
	col := decode[model.KanbanColumn](t, rec)

	rec = do(t, h, http.MethodPost, base+"/board/columns/"+col.ID+"/cards", model.KanbanTask{Title: "Wait for parts"})
	if rec.Code != http.StatusCreated || decode[model.KanbanTask](t, rec).Priority != model.PriorityMedium {
		t.Errorf("create card = %d %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodDelete, base+"/board/columns/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete unknown column = %d", rec.Code)
	}

	reset := decode[[]model.KanbanColumn](t, do(t, h, http.MethodPost, base+"/board/reset", nil))
	if len(reset) != 4 {
		t.Errorf("reset board has %d columns", len(reset))
	}
}

func TestTagsAndNoteLinks(t *testing.T) {
	h, a := newTestHandler(t)

	rec := do(t, h, http.MethodPost, "/tags", model.TagInput{Name: "work"})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate tag = %d", rec.Code)
	}

	noteID := a.Notes.State().Notes[0].ID
	rec = do(t, h, http.MethodPut, "/notes/"+noteID+"/tags/3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("link = %d %s", rec.Code, rec.Body)
	}
	linked := decode[[]model.Tag](t, do(t, h, http.MethodGet, "/notes/"+noteID+"/tags", nil))
	if len(linked) != 3 || linked[2].Name != "work" {
		t.Errorf("note tags = %+v", linked)
	}

	ids := decode[[]string](t, do(t, h, http.MethodGet, "/tags/3/notes", nil))
	if len(ids) != 1 || ids[0] != noteID {
		t.Errorf("notes by tag = %v", ids)
	}

	rec = do(t, h, http.MethodDelete, "/notes/"+noteID+"/tags/3", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("unlink = %d", rec.Code)
	}
	if ids := decode[[]string](t, do(t, h, http.MethodGet, "/tags/3/notes", nil)); len(ids) != 0 {
		t.Errorf("notes after unlink = %v", ids)
	}
}

func TestPomodoroFlow(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodPost, "/pomodoro/sessions", model.SessionInput{SessionType: model.SessionWork, DurationMinutes: 25})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start = %d %s", rec.Code, rec.Body)
	}
	ps := decode[model.PomodoroSession](t, rec)

	view := decode[timerView](t, do(t, h, http.MethodPost, "/pomodoro/timer/start", nil))
	if !view.Running || view.TimeRemaining != 25*60 || view.Current == nil || view.Current.ID != ps.ID {
		t.Errorf("timer = %+v", view)
	}
	if rec := do(t, h, http.MethodPost, "/pomodoro/timer/rewind", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown action = %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/pomodoro/sessions/"+strconv.FormatInt(ps.ID, 10)+"/complete", nil)
	if rec.Code != http.StatusOK || !decode[model.PomodoroSession](t, rec).Completed {
		t.Errorf("complete = %d %s", rec.Code, rec.Body)
	}
	view = decode[timerView](t, do(t, h, http.MethodGet, "/pomodoro", nil))
	if view.Running {
		t.Error("timer still running after completing the current session")
	}

	st := decode[model.PomodoroStats](t, do(t, h, http.MethodGet, "/pomodoro/stats", nil))
	if st.TotalSessions != 4 || st.CompletedSessions != 4 {
		t.Errorf("stats = %+v", st)
	}

	work := 50
	rec = do(t, h, http.MethodPatch, "/pomodoro/settings", model.SettingsPatch{WorkDuration: &work})
	if rec.Code != http.StatusOK || decode[model.PomodoroSettings](t, rec).WorkDuration != 50 {
		t.Errorf("settings = %d %s", rec.Code, rec.Body)
	}
	zero := 0
	if rec := do(t, h, http.MethodPatch, "/pomodoro/settings", model.SettingsPatch{WorkDuration: &zero}); rec.Code != http.StatusBadRequest {
		t.Errorf("zero duration = %d", rec.Code)
	}
}

func TestBackupRoundTrip(t *testing.T) {
	h, a := newTestHandler(t)

	rec := do(t, h, http.MethodGet, "/backup", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export = %d %s", rec.Code, rec.Body)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "productivity_notebook_backup_2024-03-04.json") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	doc := rec.Body.Bytes()

	do(t, h, http.MethodPost, "/notes", model.NoteInput{Title: "after backup"})
	if n := len(a.Notes.State().Notes); n != 2 {
		t.Fatalf("notes before restore = %d", n)
	}

	req := httptest.NewRequest(http.MethodPost, "/backup", bytes.NewReader(doc))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("restore = %d %s", rr.Code, rr.Body)
	}
	if n := len(a.Notes.State().Notes); n != 1 {
		t.Errorf("notes after restore = %d, want 1", n)
	}

	req = httptest.NewRequest(http.MethodPost, "/backup", strings.NewReader(`{"version":"1.0"}`))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad document = %d %s", rr.Code, rr.Body)
	}
}

func TestSyncAndStorage(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodPost, "/sync", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sync = %d %s", rec.Code, rec.Body)
	}
	info := decode[map[string]any](t, do(t, h, http.MethodGet, "/storage", nil))
	if info["namespace"] != kv.DefaultPrefix || info["supported"] != true {
		t.Errorf("storage = %v", info)
	}
	if size, _ := info["size_bytes"].(float64); size <= 0 {
		t.Errorf("size_bytes = %v", info["size_bytes"])
	}
}

func TestUploadIngest(t *testing.T) {
	h, a := newTestHandler(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "meeting.md")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("# Standup\n\n- nothing blocked"))
	mw.WriteField("tag", "meetings")
	mw.WriteField("project_id", "1")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/ingest", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload = %d %s", rec.Code, rec.Body)
	}
	n := decode[model.Note](t, rec)
	if n.Title != "Standup" || len(n.Tags) != 1 || n.ProjectID == nil || *n.ProjectID != "1" {
		t.Errorf("note = %+v", n)
	}
	if got := a.Notes.State().Notes[0].ID; got != n.ID {
		t.Errorf("store head = %s, want %s", got, n.ID)
	}
}

func TestUploadRejectsUnsupported(t *testing.T) {
	h, _ := newTestHandler(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", "photo.png")
	fw.Write([]byte{0x89, 'P', 'N', 'G'})
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/ingest", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d %s", rec.Code, rec.Body)
	}
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodOptions, "/notes", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q", got)
	}
}
