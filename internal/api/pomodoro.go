package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/notebook/internal/model"
)

type timerView struct {
	Current       *model.PomodoroSession `json:"current,omitempty"`
	Running       bool                   `json:"running"`
	TimeRemaining int                    `json:"time_remaining"`
	Settings      model.PomodoroSettings `json:"settings"`
}

func currentTimer(deps Deps) timerView {
	st := deps.App.Pomodoro.State()
	return timerView{
		Current:       st.Current,
		Running:       st.Running,
		TimeRemaining: st.TimeRemaining,
		Settings:      st.Settings,
	}
}

func pomodoroState(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, currentTimer(deps))
	}
}

// listSessions returns the sessions, newest first, or those of ?task_id=.
func listSessions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			list []model.PomodoroSession
			err  error
		)
		if s := r.URL.Query().Get("task_id"); s != "" {
			taskID, perr := strconv.ParseInt(s, 10, 64)
			if perr != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid task_id %q", s)
				return
			}
			list, err = deps.App.Pomodoro.ByTask(r.Context(), taskID)
		} else {
			list, err = deps.App.Pomodoro.FetchAll(r.Context())
		}
		if err != nil {
			storeError(w, err)
			return
		}
		if limit := parseIntParam(r, "limit", 0, 0); limit > 0 && len(list) > limit {
			list = list[:limit]
		}
		if list == nil {
			list = []model.PomodoroSession{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func startSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in model.SessionInput
		if !decodeBody(w, r, &in) {
			return
		}
		ps, err := deps.App.Pomodoro.Start(r.Context(), in)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, ps)
	}
}

func completeSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64Param(w, r, "id")
		if !ok {
			return
		}
		ps, err := deps.App.Pomodoro.Complete(r.Context(), id)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ps)
	}
}

func cancelSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64Param(w, r, "id")
		if !ok {
			return
		}
		if err := deps.App.Pomodoro.Cancel(r.Context(), id); err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	}
}

func pomodoroStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := deps.App.Pomodoro.LoadStats(r.Context())
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func updateSettings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p model.SettingsPatch
		if !decodeBody(w, r, &p) {
			return
		}
		s, err := deps.App.Pomodoro.UpdateSettings(p)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// timerAction drives the countdown: start, pause or reset.
func timerAction(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch action := chi.URLParam(r, "action"); action {
		case "start":
			deps.App.Pomodoro.StartTimer()
		case "pause":
			deps.App.Pomodoro.PauseTimer()
		case "reset":
			deps.App.Pomodoro.ResetTimer()
		default:
			httpError(w, http.StatusNotFound, "not_found", "unknown timer action %q", action)
			return
		}
		writeJSON(w, http.StatusOK, currentTimer(deps))
	}
}
