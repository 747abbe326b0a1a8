package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/kalambet/notebook/internal/backup"
	"github.com/kalambet/notebook/internal/ingest"
)

const maxUploadSize = ingest.MaxFileSize + 1<<20

func triggerSync(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.App.Sync(r.Context()); err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "synced", "keys": deps.App.Registry.Keys()})
	}
}

// exportBackup answers with the backup document as an attachment.
func exportBackup(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := deps.App.Export(r.Context())
		if err != nil {
			storeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="`+backup.FileName(deps.App.Clock.Now())+`"`)
		w.Write(doc)
	}
}

func restoreBackup(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		defer r.Body.Close()
		doc, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading backup: %v", err)
			return
		}
		if err := deps.App.Restore(r.Context(), doc); err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "restored"})
	}
}

func storageInfo(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"namespace":  deps.App.KV.Prefix(),
			"supported":  deps.App.KV.IsSupported(),
			"size_bytes": deps.App.KV.SizeInBytes(),
			"auto_sync":  deps.App.Registry.Running(),
		})
	}
}

// uploadFile imports the multipart "file" field as a note. Repeated "tag"
// fields and "project_id" are applied to it.
func uploadFile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid upload: %v", err)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file is required")
			return
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading upload: %v", err)
			return
		}

		var opts ingest.Options
		for _, t := range r.MultipartForm.Value["tag"] {
			if t = strings.TrimSpace(t); t != "" {
				opts.Tags = append(opts.Tags, t)
			}
		}
		if p := r.FormValue("project_id"); p != "" {
			opts.ProjectID = &p
		}

		n, err := deps.Importer.Import(r.Context(), hdr.Filename, data, opts)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, n)
	}
}
