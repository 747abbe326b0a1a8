package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kalambet/notebook/internal/model"
)

const sessionColumns = "id, task_id, session_type, duration_minutes, completed, started_at, completed_at"

func scanSession(sc scanner) (model.PomodoroSession, error) {
	var ps model.PomodoroSession
	var taskID sql.NullInt64
	var sessionType, startedAt string
	var completed int
	var completedAt sql.NullString
	if err := sc.Scan(&ps.ID, &taskID, &sessionType, &ps.DurationMinutes, &completed, &startedAt, &completedAt); err != nil {
		return model.PomodoroSession{}, err
	}
	ps.TaskID = intPtr(taskID)
	ps.SessionType = model.SessionType(sessionType)
	ps.Completed = completed != 0
	var err error
	if ps.StartedAt, err = parseTime("started_at", startedAt); err != nil {
		return model.PomodoroSession{}, err
	}
	if completedAt.Valid {
		t, err := parseTime("completed_at", completedAt.String)
		if err != nil {
			return model.PomodoroSession{}, err
		}
		ps.CompletedAt = &t
	}
	return ps, nil
}

func (s *Store) querySessions(ctx context.Context, query string, args ...any) ([]model.PomodoroSession, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PomodoroSession
	for rows.Next() {
		ps, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

// ListSessions returns every session, most recently started first.
func (s *Store) ListSessions(ctx context.Context) ([]model.PomodoroSession, error) {
	return s.querySessions(ctx, "SELECT "+sessionColumns+" FROM pomodoro_sessions ORDER BY started_at DESC, id DESC")
}

func (s *Store) SessionsByTask(ctx context.Context, taskID int64) ([]model.PomodoroSession, error) {
	return s.querySessions(ctx,
		"SELECT "+sessionColumns+" FROM pomodoro_sessions WHERE task_id = ? ORDER BY started_at DESC, id DESC", taskID)
}

func (s *Store) getSession(ctx context.Context, id int64) (model.PomodoroSession, error) {
	ps, err := scanSession(s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM pomodoro_sessions WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return model.PomodoroSession{}, notFound("session", id)
	}
	return ps, err
}

func (s *Store) StartSession(ctx context.Context, in model.SessionInput) (model.PomodoroSession, error) {
	if err := in.Validate(); err != nil {
		return model.PomodoroSession{}, err
	}
	ps := model.PomodoroSession{
		TaskID:          in.TaskID,
		SessionType:     in.SessionType,
		DurationMinutes: in.DurationMinutes,
		StartedAt:       s.clock.Now(),
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pomodoro_sessions (task_id, session_type, duration_minutes, completed, started_at)
		VALUES (?, ?, ?, 0, ?)`,
		nullInt(ps.TaskID), string(ps.SessionType), ps.DurationMinutes, formatTime(ps.StartedAt),
	)
	if err != nil {
		return model.PomodoroSession{}, fmt.Errorf("inserting session: %w", err)
	}
	if ps.ID, err = res.LastInsertId(); err != nil {
		return model.PomodoroSession{}, err
	}
	return ps, nil
}

// CompleteSession marks a session completed now. Completing twice keeps the
// first completion time.
func (s *Store) CompleteSession(ctx context.Context, id int64) (model.PomodoroSession, error) {
	ps, err := s.getSession(ctx, id)
	if err != nil {
		return model.PomodoroSession{}, err
	}
	if ps.Completed {
		return ps, nil
	}
	now := s.clock.Now()
	if _, err := s.db.ExecContext(ctx,
		"UPDATE pomodoro_sessions SET completed = 1, completed_at = ? WHERE id = ?", formatTime(now), id,
	); err != nil {
		return model.PomodoroSession{}, fmt.Errorf("completing session: %w", err)
	}
	ps.Completed = true
	ps.CompletedAt = &now
	return ps, nil
}

// CancelSession discards a session.
func (s *Store) CancelSession(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM pomodoro_sessions WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("session", id)
	}
	return nil
}

// SessionStats aggregates sessions. Focus time counts completed work
// sessions only; "today" is the UTC day containing now.
func (s *Store) SessionStats(ctx context.Context, now time.Time) (model.PomodoroStats, error) {
	day := now.UTC().Truncate(24 * time.Hour)
	from, to := formatTime(day), formatTime(day.Add(24*time.Hour))

	var st model.PomodoroStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(completed), 0),
			COALESCE(SUM(CASE WHEN completed = 1 AND session_type = 'work' THEN duration_minutes ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN started_at >= ? AND started_at < ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN started_at >= ? AND started_at < ? AND completed = 1 AND session_type = 'work'
				THEN duration_minutes ELSE 0 END), 0)
		FROM pomodoro_sessions`,
		from, to, from, to,
	).Scan(&st.TotalSessions, &st.CompletedSessions, &st.TotalFocusTime, &st.SessionsToday, &st.FocusTimeToday)
	if err != nil {
		return model.PomodoroStats{}, fmt.Errorf("aggregating sessions: %w", err)
	}
	return st, nil
}
