package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/kalambet/notebook/internal/clock"
	"github.com/kalambet/notebook/internal/model"
)

const projectColumns = "id, name, description, color, archived, created_at, updated_at"

func scanProject(sc scanner) (model.Project, error) {
	var p model.Project
	var archived int
	var createdAt, updatedAt string
	if err := sc.Scan(&p.ID, &p.Name, &p.Description, &p.Color, &archived, &createdAt, &updatedAt); err != nil {
		return model.Project{}, err
	}
	p.Archived = archived != 0
	var err error
	if p.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return model.Project{}, err
	}
	if p.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return model.Project{}, err
	}
	return p, nil
}

// ListProjects returns every project, newest first.
func (s *Store) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+projectColumns+" FROM projects ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *Store) GetProject(ctx context.Context, id int64) (model.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return model.Project{}, notFound("project", id)
	}
	return p, err
}

func (s *Store) CreateProject(ctx context.Context, in model.ProjectInput) (model.Project, error) {
	if err := in.Validate(); err != nil {
		return model.Project{}, err
	}
	now := s.clock.Now()
	p := model.Project{
		Name:        in.Name,
		Description: in.Description,
		Color:       in.ColorOrDefault(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (name, description, color, archived, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)`,
		p.Name, p.Description, p.Color, formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return model.Project{}, fmt.Errorf("inserting project: %w", err)
	}
	if p.ID, err = res.LastInsertId(); err != nil {
		return model.Project{}, err
	}
	return p, nil
}

func (s *Store) UpdateProject(ctx context.Context, id int64, patch model.ProjectPatch) (model.Project, error) {
	if err := patch.Validate(); err != nil {
		return model.Project{}, err
	}
	current, err := s.GetProject(ctx, id)
	if err != nil {
		return model.Project{}, err
	}
	p := patch.Apply(current)
	p.UpdatedAt = clock.Later(current.UpdatedAt, s.clock.Now())

	if _, err := s.db.ExecContext(ctx, `
		UPDATE projects SET name = ?, description = ?, color = ?, archived = ?, updated_at = ? WHERE id = ?`,
		p.Name, p.Description, p.Color, boolInt(p.Archived), formatTime(p.UpdatedAt), id,
	); err != nil {
		return model.Project{}, fmt.Errorf("updating project: %w", err)
	}
	return p, nil
}

// DeleteProject removes the project only. Tasks, notes and sessions that
// reference it are kept.
func (s *Store) DeleteProject(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("project", id)
	}
	return nil
}

// ProjectStats counts the notes, tasks and pomodoro sessions that reference
// project id. Sessions count through their linked task.
func (s *Store) ProjectStats(ctx context.Context, id int64) (model.ProjectStats, error) {
	if _, err := s.GetProject(ctx, id); err != nil {
		return model.ProjectStats{}, err
	}
	var st model.ProjectStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM notes WHERE project_id = ?),
			(SELECT COUNT(*) FROM tasks WHERE project_id = ?),
			(SELECT COUNT(*) FROM tasks WHERE project_id = ? AND completed = 1),
			(SELECT COUNT(*) FROM pomodoro_sessions ps JOIN tasks t ON t.id = ps.task_id WHERE t.project_id = ?)`,
		strconv.FormatInt(id, 10), id, id, id,
	).Scan(&st.TotalNotes, &st.TotalTasks, &st.CompletedTasks, &st.TotalPomodoroSessions)
	if err != nil {
		return model.ProjectStats{}, fmt.Errorf("counting project %d: %w", id, err)
	}
	return st, nil
}
