package api

import (
	"net/http"
	"slices"
	"strconv"

	"github.com/kalambet/notebook/internal/model"
	"github.com/kalambet/notebook/internal/tasks"
)

// listTasks returns tasks in position order. ?filter= narrows by completion
// and ?project_id= by project.
func listTasks(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := tasks.Filter(r.URL.Query().Get("filter"))
		if filter == "" {
			filter = tasks.FilterAll
		}
		if !filter.Valid() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "filter must be all, pending or completed")
			return
		}
		var project *int64
		if s := r.URL.Query().Get("project_id"); s != "" {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid project_id %q", s)
				return
			}
			project = &id
		}

		list, err := deps.App.Tasks.FetchAll(r.Context())
		if err != nil {
			storeError(w, err)
			return
		}
		out := []model.Task{}
		for _, t := range list {
			if filter == tasks.FilterPending && t.Completed || filter == tasks.FilterCompleted && !t.Completed {
				continue
			}
			if project != nil && (t.ProjectID == nil || *t.ProjectID != *project) {
				continue
			}
			out = append(out, t)
		}
		slices.SortStableFunc(out, func(a, b model.Task) int { return a.Position - b.Position })
		writeJSON(w, http.StatusOK, out)
	}
}

func createTask(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in model.TaskInput
		if !decodeBody(w, r, &in) {
			return
		}
		t, err := deps.App.Tasks.Create(r.Context(), in)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

func updateTask(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64Param(w, r, "id")
		if !ok {
			return
		}
		var p model.TaskPatch
		if !decodeBody(w, r, &p) {
			return
		}
		t, err := deps.App.Tasks.Update(r.Context(), id, p)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func deleteTask(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64Param(w, r, "id")
		if !ok {
			return
		}
		if err := deps.App.Tasks.Delete(r.Context(), id); err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func toggleTask(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64Param(w, r, "id")
		if !ok {
			return
		}
		t, err := deps.App.Tasks.ToggleComplete(r.Context(), id)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

type moveRequest struct {
	Index int `json:"index"`
}

func moveTask(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64Param(w, r, "id")
		if !ok {
			return
		}
		var req moveRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := deps.App.Tasks.Move(r.Context(), id, req.Index); err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, deps.App.Tasks.Visible())
	}
}

type orderRequest struct {
	IDs []int64 `json:"ids"`
}

// orderTasks renumbers the tasks in the order of the posted IDs.
func orderTasks(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req orderRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := deps.App.Tasks.SetOrder(r.Context(), req.IDs); err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, deps.App.Tasks.Visible())
	}
}
