package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/notebook/internal/model"
)

// listNotes returns every note, or the matches of ?q=, capped by ?limit=.
func listNotes(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			list []model.Note
			err  error
		)
		if q := r.URL.Query().Get("q"); q != "" {
			list, err = deps.App.Notes.Search(r.Context(), q)
		} else {
			list, err = deps.App.Notes.FetchAll(r.Context())
		}
		if err != nil {
			storeError(w, err)
			return
		}
		if limit := parseIntParam(r, "limit", 0, 0); limit > 0 && len(list) > limit {
			list = list[:limit]
		}
		if list == nil {
			list = []model.Note{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func createNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in model.NoteInput
		if !decodeBody(w, r, &in) {
			return
		}
		n, err := deps.App.Notes.Create(r.Context(), in)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, n)
	}
}

func getNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		for _, n := range deps.App.Notes.State().Notes {
			if n.ID == id {
				writeJSON(w, http.StatusOK, n)
				return
			}
		}
		storeError(w, fmt.Errorf("note %s: %w", id, model.ErrNotFound))
	}
}

func updateNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p model.NotePatch
		if !decodeBody(w, r, &p) {
			return
		}
		n, err := deps.App.Notes.Update(r.Context(), chi.URLParam(r, "id"), p)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, n)
	}
}

func deleteNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.App.Notes.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func noteTags(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := deps.App.Tags.TagsForNote(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			storeError(w, err)
			return
		}
		if list == nil {
			list = []model.Tag{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func addNoteTag(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tagID, ok := int64Param(w, r, "tagID")
		if !ok {
			return
		}
		if err := deps.App.Tags.AddToNote(r.Context(), chi.URLParam(r, "id"), tagID); err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "tagged"})
	}
}

func removeNoteTag(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tagID, ok := int64Param(w, r, "tagID")
		if !ok {
			return
		}
		if err := deps.App.Tags.RemoveFromNote(r.Context(), chi.URLParam(r, "id"), tagID); err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "untagged"})
	}
}
