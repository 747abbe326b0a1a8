package api

import (
	"net/http"

	"github.com/kalambet/notebook/internal/model"
)

func listTags(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := deps.App.Tags.FetchAll(r.Context())
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

func createTag(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in model.TagInput
		if !decodeBody(w, r, &in) {
			return
		}
		t, err := deps.App.Tags.Create(r.Context(), in)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

func updateTag(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64Param(w, r, "id")
		if !ok {
			return
		}
		var p model.TagPatch
		if !decodeBody(w, r, &p) {
			return
		}
		t, err := deps.App.Tags.Update(r.Context(), id, p)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func deleteTag(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64Param(w, r, "id")
		if !ok {
			return
		}
		if err := deps.App.Tags.Delete(r.Context(), id); err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func tagNotes(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64Param(w, r, "id")
		if !ok {
			return
		}
		ids, err := deps.App.Tags.NotesByTag(r.Context(), id)
		if err != nil {
			storeError(w, err)
			return
		}
		if ids == nil {
			ids = []string{}
		}
		writeJSON(w, http.StatusOK, ids)
	}
}
