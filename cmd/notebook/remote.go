package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kalambet/notebook/internal/app"
	"github.com/kalambet/notebook/internal/model"
)

// apiClient serves the stores while a server is running.
var _ app.Backend = (*apiClient)(nil)

func (c *apiClient) call(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	return decodeJSON(resp, out)
}

func idPath(prefix string, id int64) string {
	return prefix + "/" + strconv.FormatInt(id, 10)
}

func notePath(id string) string {
	return "/notes/" + url.PathEscape(id)
}

func (c *apiClient) ListNotes(ctx context.Context) ([]model.Note, error) {
	var out []model.Note
	err := c.call(ctx, http.MethodGet, "/notes", nil, &out)
	return out, err
}

func (c *apiClient) SearchNotes(ctx context.Context, query string) ([]model.Note, error) {
	var out []model.Note
	err := c.call(ctx, http.MethodGet, "/notes?q="+url.QueryEscape(query), nil, &out)
	return out, err
}

func (c *apiClient) CreateNote(ctx context.Context, in model.NoteInput) (model.Note, error) {
	var out model.Note
	err := c.call(ctx, http.MethodPost, "/notes", in, &out)
	return out, err
}

func (c *apiClient) UpdateNote(ctx context.Context, id string, p model.NotePatch) (model.Note, error) {
	var out model.Note
	err := c.call(ctx, http.MethodPatch, notePath(id), p, &out)
	return out, err
}

func (c *apiClient) DeleteNote(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, notePath(id), nil, nil)
}

func (c *apiClient) ListTasks(ctx context.Context) ([]model.Task, error) {
	var out []model.Task
	err := c.call(ctx, http.MethodGet, "/tasks", nil, &out)
	return out, err
}

func (c *apiClient) CreateTask(ctx context.Context, in model.TaskInput) (model.Task, error) {
	var out model.Task
	err := c.call(ctx, http.MethodPost, "/tasks", in, &out)
	return out, err
}

func (c *apiClient) UpdateTask(ctx context.Context, id int64, p model.TaskPatch) (model.Task, error) {
	var out model.Task
	err := c.call(ctx, http.MethodPatch, idPath("/tasks", id), p, &out)
	return out, err
}

func (c *apiClient) DeleteTask(ctx context.Context, id int64) error {
	return c.call(ctx, http.MethodDelete, idPath("/tasks", id), nil, nil)
}

func (c *apiClient) ReorderTasks(ctx context.Context, ids []int64) error {
	return c.call(ctx, http.MethodPut, "/tasks/order", map[string][]int64{"ids": ids}, nil)
}

func (c *apiClient) ListProjects(ctx context.Context) ([]model.Project, error) {
	var out []model.Project
	err := c.call(ctx, http.MethodGet, "/projects", nil, &out)
	return out, err
}

func (c *apiClient) CreateProject(ctx context.Context, in model.ProjectInput) (model.Project, error) {
	var out model.Project
	err := c.call(ctx, http.MethodPost, "/projects", in, &out)
	return out, err
}

func (c *apiClient) UpdateProject(ctx context.Context, id int64, p model.ProjectPatch) (model.Project, error) {
	var out model.Project
	err := c.call(ctx, http.MethodPatch, idPath("/projects", id), p, &out)
	return out, err
}

func (c *apiClient) DeleteProject(ctx context.Context, id int64) error {
	return c.call(ctx, http.MethodDelete, idPath("/projects", id), nil, nil)
}

func (c *apiClient) ProjectStats(ctx context.Context, id int64) (model.ProjectStats, error) {
	var out model.ProjectStats
	err := c.call(ctx, http.MethodGet, idPath("/projects", id)+"/stats", nil, &out)
	return out, err
}

func (c *apiClient) ListSessions(ctx context.Context) ([]model.PomodoroSession, error) {
	var out []model.PomodoroSession
	err := c.call(ctx, http.MethodGet, "/pomodoro/sessions", nil, &out)
	return out, err
}

func (c *apiClient) SessionsByTask(ctx context.Context, taskID int64) ([]model.PomodoroSession, error) {
	var out []model.PomodoroSession
	path := "/pomodoro/sessions?task_id=" + strconv.FormatInt(taskID, 10)
	err := c.call(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *apiClient) StartSession(ctx context.Context, in model.SessionInput) (model.PomodoroSession, error) {
	var out model.PomodoroSession
	err := c.call(ctx, http.MethodPost, "/pomodoro/sessions", in, &out)
	return out, err
}

func (c *apiClient) CompleteSession(ctx context.Context, id int64) (model.PomodoroSession, error) {
	var out model.PomodoroSession
	err := c.call(ctx, http.MethodPost, idPath("/pomodoro/sessions", id)+"/complete", nil, &out)
	return out, err
}

func (c *apiClient) CancelSession(ctx context.Context, id int64) error {
	return c.call(ctx, http.MethodDelete, idPath("/pomodoro/sessions", id), nil, nil)
}

// SessionStats asks the server, which counts "today" on its own clock.
func (c *apiClient) SessionStats(ctx context.Context, _ time.Time) (model.PomodoroStats, error) {
	var out model.PomodoroStats
	err := c.call(ctx, http.MethodGet, "/pomodoro/stats", nil, &out)
	return out, err
}

func (c *apiClient) ListTags(ctx context.Context) ([]model.Tag, error) {
	var out []model.Tag
	err := c.call(ctx, http.MethodGet, "/tags", nil, &out)
	return out, err
}

func (c *apiClient) CreateTag(ctx context.Context, in model.TagInput) (model.Tag, error) {
	var out model.Tag
	err := c.call(ctx, http.MethodPost, "/tags", in, &out)
	return out, err
}

func (c *apiClient) UpdateTag(ctx context.Context, id int64, p model.TagPatch) (model.Tag, error) {
	var out model.Tag
	err := c.call(ctx, http.MethodPatch, idPath("/tags", id), p, &out)
	return out, err
}

func (c *apiClient) DeleteTag(ctx context.Context, id int64) error {
	return c.call(ctx, http.MethodDelete, idPath("/tags", id), nil, nil)
}

func (c *apiClient) AddTagToNote(ctx context.Context, noteID string, tagID int64) error {
	return c.call(ctx, http.MethodPut, idPath(notePath(noteID)+"/tags", tagID), nil, nil)
}

func (c *apiClient) RemoveTagFromNote(ctx context.Context, noteID string, tagID int64) error {
	return c.call(ctx, http.MethodDelete, idPath(notePath(noteID)+"/tags", tagID), nil, nil)
}

func (c *apiClient) TagsForNote(ctx context.Context, noteID string) ([]model.Tag, error) {
	var out []model.Tag
	err := c.call(ctx, http.MethodGet, notePath(noteID)+"/tags", nil, &out)
	return out, err
}

func (c *apiClient) NotesByTag(ctx context.Context, tagID int64) ([]string, error) {
	var out []string
	err := c.call(ctx, http.MethodGet, idPath("/tags", tagID)+"/notes", nil, &out)
	return out, err
}

type timerReport struct {
	Running       bool                   `json:"running"`
	TimeRemaining int                    `json:"time_remaining"`
	Settings      model.PomodoroSettings `json:"settings"`
}

func (c *apiClient) pomodoroSettings(ctx context.Context) (model.PomodoroSettings, error) {
	var rep timerReport
	err := c.call(ctx, http.MethodGet, "/pomodoro", nil, &rep)
	return rep.Settings, err
}

func (c *apiClient) updateSettings(ctx context.Context, p model.SettingsPatch) (model.PomodoroSettings, error) {
	var out model.PomodoroSettings
	err := c.call(ctx, http.MethodPatch, "/pomodoro/settings", p, &out)
	return out, err
}

// exportBackup returns the server's backup document.
func (c *apiClient) exportBackup(ctx context.Context) ([]byte, error) {
	resp, err := c.get(ctx, "/backup")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, readError(resp)
	}
	doc, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading backup: %w", err)
	}
	return doc, nil
}

func (c *apiClient) restoreBackup(ctx context.Context, doc []byte) error {
	if !json.Valid(doc) {
		return fmt.Errorf("backup is not valid JSON")
	}
	return c.call(ctx, http.MethodPost, "/backup", json.RawMessage(doc), nil)
}
