package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kalambet/notebook/internal/model"
)

// Entities is a complete set of records for ReplaceEntities.
type Entities struct {
	Notes    []model.Note
	Tasks    []model.Task
	Projects []model.Project
	Sessions []model.PomodoroSession
	Tags     []model.Tag
}

// ReplaceEntities swaps the contents of every entity table for e in one
// transaction. Records keep their IDs. Note tags are linked by name and a
// name without a tag record gets one with the default color.
func (s *Store) ReplaceEntities(ctx context.Context, e Entities) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning restore transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"note_tags", "notes", "tags", "tasks", "projects", "pomodoro_sessions"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	for _, t := range e.Tags {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO tags (id, name, color, created_at) VALUES (?, ?, ?, ?)",
			t.ID, t.Name, t.Color, formatTime(t.CreatedAt),
		); err != nil {
			return fmt.Errorf("restoring tag %q: %w", t.Name, err)
		}
	}
	for _, p := range e.Projects {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projects (id, name, description, color, archived, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Name, p.Description, p.Color, boolInt(p.Archived), formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
		); err != nil {
			return fmt.Errorf("restoring project %d: %w", p.ID, err)
		}
	}
	for _, n := range e.Notes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO notes (id, title, content, created_at, updated_at, project_id)
			VALUES (?, ?, ?, ?, ?, ?)`,
			n.ID, n.Title, n.Content, formatTime(n.CreatedAt), formatTime(n.UpdatedAt), nullString(n.ProjectID),
		); err != nil {
			return fmt.Errorf("restoring note %s: %w", n.ID, err)
		}
		if err := s.setNoteTags(ctx, tx, n.ID, n.Tags); err != nil {
			return err
		}
	}
	for i, t := range e.Tasks {
		pos := t.Position
		if pos <= 0 {
			pos = i + 1
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (id, title, description, completed, priority, due_date, created_at, updated_at, project_id, parent_task_id, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Title, t.Description, boolInt(t.Completed), string(t.Priority), t.DueDate,
			formatTime(t.CreatedAt), formatTime(t.UpdatedAt), nullInt(t.ProjectID), nullInt(t.ParentTaskID), pos,
		); err != nil {
			return fmt.Errorf("restoring task %d: %w", t.ID, err)
		}
	}
	for _, ps := range e.Sessions {
		var completedAt sql.NullString
		if ps.CompletedAt != nil {
			completedAt = sql.NullString{String: formatTime(*ps.CompletedAt), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pomodoro_sessions (id, task_id, session_type, duration_minutes, completed, started_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ps.ID, nullInt(ps.TaskID), string(ps.SessionType), ps.DurationMinutes, boolInt(ps.Completed),
			formatTime(ps.StartedAt), completedAt,
		); err != nil {
			return fmt.Errorf("restoring session %d: %w", ps.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing restore: %w", err)
	}
	return nil
}
