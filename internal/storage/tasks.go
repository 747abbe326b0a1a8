package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kalambet/notebook/internal/clock"
	"github.com/kalambet/notebook/internal/model"
)

const taskColumns = "id, title, description, completed, priority, due_date, created_at, updated_at, project_id, parent_task_id, position"

func scanTask(sc scanner) (model.Task, error) {
	var t model.Task
	var completed int
	var priority, createdAt, updatedAt string
	var projectID, parentID sql.NullInt64
	if err := sc.Scan(&t.ID, &t.Title, &t.Description, &completed, &priority, &t.DueDate,
		&createdAt, &updatedAt, &projectID, &parentID, &t.Position); err != nil {
		return model.Task{}, err
	}
	t.Completed = completed != 0
	t.Priority = model.Priority(priority)
	t.ProjectID = intPtr(projectID)
	t.ParentTaskID = intPtr(parentID)
	var err error
	if t.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return model.Task{}, err
	}
	if t.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return model.Task{}, err
	}
	return t, nil
}

// ListTasks returns every task, newest first.
func (s *Store) ListTasks(ctx context.Context) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+taskColumns+" FROM tasks ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *Store) GetTask(ctx context.Context, id int64) (model.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return model.Task{}, notFound("task", id)
	}
	return t, err
}

// CreateTask inserts a task positioned after every existing task.
func (s *Store) CreateTask(ctx context.Context, in model.TaskInput) (model.Task, error) {
	if err := in.Validate(); err != nil {
		return model.Task{}, err
	}
	now := s.clock.Now()
	t := model.Task{
		Title:        in.Title,
		Description:  in.Description,
		Priority:     in.PriorityOrDefault(),
		DueDate:      in.DueDate,
		CreatedAt:    now,
		UpdatedAt:    now,
		ProjectID:    in.ProjectID,
		ParentTaskID: in.ParentTaskID,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Task{}, fmt.Errorf("beginning task transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks").Scan(&count); err != nil {
		return model.Task{}, err
	}
	t.Position = count + 1

	res, err := tx.ExecContext(ctx, `
		INSERT INTO tasks (title, description, completed, priority, due_date, created_at, updated_at, project_id, parent_task_id, position)
		VALUES (?, ?, 0, ?, ?, ?, ?, ?, ?, ?)`,
		t.Title, t.Description, string(t.Priority), t.DueDate, formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
		nullInt(t.ProjectID), nullInt(t.ParentTaskID), t.Position,
	)
	if err != nil {
		return model.Task{}, fmt.Errorf("inserting task: %w", err)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return model.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Task{}, fmt.Errorf("committing task: %w", err)
	}
	return t, nil
}

func (s *Store) UpdateTask(ctx context.Context, id int64, p model.TaskPatch) (model.Task, error) {
	if err := p.Validate(id); err != nil {
		return model.Task{}, err
	}
	current, err := s.GetTask(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	t := p.Apply(current)
	t.UpdatedAt = clock.Later(current.UpdatedAt, s.clock.Now())

	if _, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET title = ?, description = ?, completed = ?, priority = ?, due_date = ?,
			updated_at = ?, project_id = ?, parent_task_id = ?, position = ?
		WHERE id = ?`,
		t.Title, t.Description, boolInt(t.Completed), string(t.Priority), t.DueDate,
		formatTime(t.UpdatedAt), nullInt(t.ProjectID), nullInt(t.ParentTaskID), t.Position, id,
	); err != nil {
		return model.Task{}, fmt.Errorf("updating task: %w", err)
	}
	return t, nil
}

func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("task", id)
	}
	return nil
}

// ReorderTasks assigns positions 1..n to ids in order and refreshes their
// updated_at. It fails without changes if any id is missing.
func (s *Store) ReorderTasks(ctx context.Context, ids []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning reorder transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(s.clock.Now())
	for i, id := range ids {
		res, err := tx.ExecContext(ctx, "UPDATE tasks SET position = ?, updated_at = ? WHERE id = ? AND position != ?", i+1, now, id, i+1)
		if err != nil {
			return fmt.Errorf("positioning task %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var exists int
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks WHERE id = ?", id).Scan(&exists); err != nil {
				return err
			}
			if exists == 0 {
				return notFound("task", id)
			}
		}
	}
	return tx.Commit()
}
