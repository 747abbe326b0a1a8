package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/notebook/internal/model"
)

// listProjects returns every project; ?active=true drops archived ones.
func listProjects(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := deps.App.Projects.FetchAll(r.Context())
		if err != nil {
			storeError(w, err)
			return
		}
		if r.URL.Query().Get("active") == "true" {
			list = deps.App.Projects.Active()
		}
		if list == nil {
			list = []model.Project{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func createProject(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in model.ProjectInput
		if !decodeBody(w, r, &in) {
			return
		}
		p, err := deps.App.Projects.Create(r.Context(), in)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func updateProject(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64Param(w, r, "id")
		if !ok {
			return
		}
		var patch model.ProjectPatch
		if !decodeBody(w, r, &patch) {
			return
		}
		p, err := deps.App.Projects.Update(r.Context(), id, patch)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func deleteProject(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64Param(w, r, "id")
		if !ok {
			return
		}
		if err := deps.App.Projects.Delete(r.Context(), id); err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func archiveProject(deps Deps, archive bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64Param(w, r, "id")
		if !ok {
			return
		}
		var (
			p   model.Project
			err error
		)
		if archive {
			p, err = deps.App.Projects.Archive(r.Context(), id)
		} else {
			p, err = deps.App.Projects.Unarchive(r.Context(), id)
		}
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func projectStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64Param(w, r, "id")
		if !ok {
			return
		}
		st, err := deps.App.Projects.LoadStats(r.Context(), id)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// getBoard returns the board of a project, building it on first use.
func getBoard(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64Param(w, r, "id")
		if !ok {
			return
		}
		cols := deps.App.Projects.Columns(id)
		if cols == nil {
			cols = deps.App.Projects.FetchColumns(id)
		}
		writeJSON(w, http.StatusOK, cols)
	}
}

func resetBoard(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64Param(w, r, "id")
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, deps.App.Projects.FetchColumns(id))
	}
}

type columnRequest struct {
	Title string `json:"title"`
	Color string `json:"color"`
}

func createColumn(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64Param(w, r, "id")
		if !ok {
			return
		}
		var req columnRequest
		if !decodeBody(w, r, &req) {
			return
		}
		col, err := deps.App.Projects.CreateColumn(id, req.Title, req.Color)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, col)
	}
}

func updateColumn(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p model.ColumnPatch
		if !decodeBody(w, r, &p) {
			return
		}
		col, err := deps.App.Projects.UpdateColumn(chi.URLParam(r, "column"), p)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, col)
	}
}

func deleteColumn(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64Param(w, r, "id")
		if !ok {
			return
		}
		if err := deps.App.Projects.DeleteColumn(id, chi.URLParam(r, "column")); err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func createCard(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64Param(w, r, "id")
		if !ok {
			return
		}
		var card model.KanbanTask
		if !decodeBody(w, r, &card) {
			return
		}
		created, err := deps.App.Projects.CreateTask(id, chi.URLParam(r, "column"), card)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func updateCard(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64Param(w, r, "id")
		if !ok {
			return
		}
		var p model.KanbanTaskPatch
		if !decodeBody(w, r, &p) {
			return
		}
		card, err := deps.App.Projects.UpdateTask(id, chi.URLParam(r, "card"), p)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, card)
	}
}

func deleteCard(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64Param(w, r, "id")
		if !ok {
			return
		}
		if err := deps.App.Projects.DeleteTask(id, chi.URLParam(r, "card")); err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

type moveCardRequest struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Index int    `json:"index"`
}

func moveCard(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64Param(w, r, "id")
		if !ok {
			return
		}
		var req moveCardRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := deps.App.Projects.MoveTask(id, chi.URLParam(r, "card"), req.From, req.To, req.Index); err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, deps.App.Projects.Columns(id))
	}
}
