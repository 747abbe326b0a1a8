// Package api exposes the notebook stores over HTTP, a websocket event
// stream and MCP tools.
package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/kalambet/notebook/internal/app"
	"github.com/kalambet/notebook/internal/ingest"
)

const maxRequestBodySize = 1 << 20 // 1MB

type Deps struct {
	App      *app.App
	Importer *ingest.Importer
	// Hub streams store changes on /ws. Nil disables the route.
	Hub *Hub
	// AllowedOrigins defaults to every origin.
	AllowedOrigins []string
}

// NewHandler returns the command API router wrapped in CORS.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Route("/notes", func(r chi.Router) {
		r.Get("/", listNotes(deps))
		r.Post("/", createNote(deps))
		r.Get("/{id}", getNote(deps))
		r.Patch("/{id}", updateNote(deps))
		r.Delete("/{id}", deleteNote(deps))
		r.Get("/{id}/tags", noteTags(deps))
		r.Put("/{id}/tags/{tagID}", addNoteTag(deps))
		r.Delete("/{id}/tags/{tagID}", removeNoteTag(deps))
	})

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", listTasks(deps))
		r.Post("/", createTask(deps))
		r.Put("/order", orderTasks(deps))
		r.Patch("/{id}", updateTask(deps))
		r.Delete("/{id}", deleteTask(deps))
		r.Post("/{id}/toggle", toggleTask(deps))
		r.Post("/{id}/move", moveTask(deps))
	})

	r.Route("/projects", func(r chi.Router) {
		r.Get("/", listProjects(deps))
		r.Post("/", createProject(deps))
		r.Patch("/{id}", updateProject(deps))
		r.Delete("/{id}", deleteProject(deps))
		r.Post("/{id}/archive", archiveProject(deps, true))
		r.Post("/{id}/unarchive", archiveProject(deps, false))
		r.Get("/{id}/stats", projectStats(deps))
		r.Route("/{id}/board", func(r chi.Router) {
			r.Get("/", getBoard(deps))
			r.Post("/reset", resetBoard(deps))
			r.Post("/columns", createColumn(deps))
			r.Patch("/columns/{column}", updateColumn(deps))
			r.Delete("/columns/{column}", deleteColumn(deps))
			r.Post("/columns/{column}/cards", createCard(deps))
			r.Patch("/cards/{card}", updateCard(deps))
			r.Delete("/cards/{card}", deleteCard(deps))
			r.Post("/cards/{card}/move", moveCard(deps))
		})
	})

	r.Route("/pomodoro", func(r chi.Router) {
		r.Get("/", pomodoroState(deps))
		r.Get("/sessions", listSessions(deps))
		r.Post("/sessions", startSession(deps))
		r.Post("/sessions/{id}/complete", completeSession(deps))
		r.Delete("/sessions/{id}", cancelSession(deps))
		r.Get("/stats", pomodoroStats(deps))
		r.Patch("/settings", updateSettings(deps))
		r.Post("/timer/{action}", timerAction(deps))
	})

	r.Route("/tags", func(r chi.Router) {
		r.Get("/", listTags(deps))
		r.Post("/", createTag(deps))
		r.Patch("/{id}", updateTag(deps))
		r.Delete("/{id}", deleteTag(deps))
		r.Get("/{id}/notes", tagNotes(deps))
	})

	r.Post("/sync", triggerSync(deps))
	r.Get("/backup", exportBackup(deps))
	r.Post("/backup", restoreBackup(deps))
	r.Get("/storage", storageInfo(deps))
	if deps.Importer != nil {
		r.Post("/ingest", uploadFile(deps))
	}
	if deps.Hub != nil {
		r.Get("/ws", deps.Hub.ServeWS)
	}

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// int64Param parses a numeric path parameter, answering 400 when it is not
// one.
func int64Param(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid %s %q", key, chi.URLParam(r, key))
		return 0, false
	}
	return v, true
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
