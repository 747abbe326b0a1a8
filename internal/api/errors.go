package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kalambet/notebook/internal/backup"
	"github.com/kalambet/notebook/internal/ingest"
	"github.com/kalambet/notebook/internal/kv"
	"github.com/kalambet/notebook/internal/model"
	"github.com/kalambet/notebook/internal/projects"
	"github.com/kalambet/notebook/internal/tags"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// storeError maps a store error onto a status code and error type.
func storeError(w http.ResponseWriter, err error) {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", ve.Error())
	case errors.Is(err, model.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, model.ErrDuplicate):
		httpError(w, http.StatusConflict, "conflict", "%v", err)
	case errors.Is(err, backup.ErrFormat),
		errors.Is(err, ingest.ErrUnsupported),
		errors.Is(err, ingest.ErrEmpty):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, ingest.ErrTooLarge):
		httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "%v", err)
	case errors.Is(err, kv.ErrQuotaExceeded):
		httpError(w, http.StatusInsufficientStorage, "storage_error", "%v", err)
	case errors.Is(err, projects.ErrNoStats), errors.Is(err, tags.ErrNoNotes):
		httpError(w, http.StatusNotImplemented, "api_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}
