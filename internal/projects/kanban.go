package projects

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/kalambet/notebook/internal/model"
)

const defaultColumnColor = "#6B7280"

// Boards are rebuilt from the seeder on every FetchColumns and are never
// persisted.

// FetchColumns resets the board of projectID and returns it.
func (s *Store) FetchColumns(projectID int64) []model.KanbanColumn {
	var cols []model.KanbanColumn
	if s.seed != nil {
		cols = s.seed.SeedColumns(projectID)
	}
	if cols == nil {
		cols = []model.KanbanColumn{}
	}
	s.setBoard(projectID, cols)
	return cloneBoard(cols)
}

// Columns returns a copy of the current board of projectID.
func (s *Store) Columns(projectID int64) []model.KanbanColumn {
	return cloneBoard(s.state.Get().Columns[projectID])
}

func (s *Store) setBoard(projectID int64, cols []model.KanbanColumn) {
	s.state.Update(func(st *State) {
		boards := maps.Clone(st.Columns)
		if boards == nil {
			boards = map[int64][]model.KanbanColumn{}
		}
		boards[projectID] = cols
		st.Columns = boards
	})
}

// editBoard applies fn to a deep copy of the board. The board is left
// unchanged when fn fails.
func (s *Store) editBoard(projectID int64, fn func(cols []model.KanbanColumn) ([]model.KanbanColumn, error)) error {
	var ferr error
	s.state.Update(func(st *State) {
		cols, err := fn(cloneBoard(st.Columns[projectID]))
		if err != nil {
			ferr = err
			return
		}
		boards := maps.Clone(st.Columns)
		if boards == nil {
			boards = map[int64][]model.KanbanColumn{}
		}
		boards[projectID] = cols
		st.Columns = boards
	})
	return ferr
}

// CreateColumn appends an empty column to the board of projectID.
func (s *Store) CreateColumn(projectID int64, title, color string) (model.KanbanColumn, error) {
	if err := model.Required("title", title); err != nil {
		return model.KanbanColumn{}, err
	}
	if strings.TrimSpace(color) == "" {
		color = defaultColumnColor
	}
	col := model.KanbanColumn{ID: "column-" + uuid.NewString(), Title: title, Color: color, Tasks: []model.KanbanTask{}}
	err := s.editBoard(projectID, func(cols []model.KanbanColumn) ([]model.KanbanColumn, error) {
		return append(cols, col), nil
	})
	return col, err
}

// UpdateColumn patches the column with columnID on whichever board holds it.
func (s *Store) UpdateColumn(columnID string, p model.ColumnPatch) (model.KanbanColumn, error) {
	if err := p.Validate(); err != nil {
		return model.KanbanColumn{}, err
	}
	var updated model.KanbanColumn
	found := false
	s.state.Update(func(st *State) {
		boards := make(map[int64][]model.KanbanColumn, len(st.Columns))
		for pid, cols := range st.Columns {
			i := slices.IndexFunc(cols, func(c model.KanbanColumn) bool { return c.ID == columnID })
			if i < 0 {
				boards[pid] = cols
				continue
			}
			cols = cloneBoard(cols)
			if p.Title != nil {
				cols[i].Title = *p.Title
			}
			if p.Color != nil {
				cols[i].Color = *p.Color
			}
			updated, found = cols[i], true
			boards[pid] = cols
		}
		st.Columns = boards
	})
	if !found {
		return model.KanbanColumn{}, fmt.Errorf("column %s: %w", columnID, model.ErrNotFound)
	}
	return updated, nil
}

func (s *Store) DeleteColumn(projectID int64, columnID string) error {
	return s.editBoard(projectID, func(cols []model.KanbanColumn) ([]model.KanbanColumn, error) {
		i := slices.IndexFunc(cols, func(c model.KanbanColumn) bool { return c.ID == columnID })
		if i < 0 {
			return nil, fmt.Errorf("column %s: %w", columnID, model.ErrNotFound)
		}
		return slices.Delete(cols, i, i+1), nil
	})
}

// MoveTask removes a card from its source column and inserts it at index in
// the destination column. The index is clamped to the destination length.
func (s *Store) MoveTask(projectID int64, taskID, fromColumn, toColumn string, index int) error {
	return s.editBoard(projectID, func(cols []model.KanbanColumn) ([]model.KanbanColumn, error) {
		src := slices.IndexFunc(cols, func(c model.KanbanColumn) bool { return c.ID == fromColumn })
		dst := slices.IndexFunc(cols, func(c model.KanbanColumn) bool { return c.ID == toColumn })
		if src < 0 {
			return nil, fmt.Errorf("column %s: %w", fromColumn, model.ErrNotFound)
		}
		if dst < 0 {
			return nil, fmt.Errorf("column %s: %w", toColumn, model.ErrNotFound)
		}
		i := slices.IndexFunc(cols[src].Tasks, func(t model.KanbanTask) bool { return t.ID == taskID })
		if i < 0 {
			return nil, fmt.Errorf("card %s: %w", taskID, model.ErrNotFound)
		}

		card := cols[src].Tasks[i]
		cols[src].Tasks = slices.Delete(cols[src].Tasks, i, i+1)
		index = max(0, min(index, len(cols[dst].Tasks)))
		cols[dst].Tasks = slices.Insert(cols[dst].Tasks, index, card)
		return cols, nil
	})
}

// CreateTask appends a card to a column. The ID of card is replaced.
func (s *Store) CreateTask(projectID int64, columnID string, card model.KanbanTask) (model.KanbanTask, error) {
	if err := model.Required("title", card.Title); err != nil {
		return model.KanbanTask{}, err
	}
	if card.Priority == "" {
		card.Priority = model.PriorityMedium
	}
	if !card.Priority.Valid() {
		return model.KanbanTask{}, &model.ValidationError{Field: "priority", Message: "must be low, medium or high"}
	}
	card.ID = "task-" + uuid.NewString()
	card.Tags = append([]string{}, card.Tags...)

	err := s.editBoard(projectID, func(cols []model.KanbanColumn) ([]model.KanbanColumn, error) {
		i := slices.IndexFunc(cols, func(c model.KanbanColumn) bool { return c.ID == columnID })
		if i < 0 {
			return nil, fmt.Errorf("column %s: %w", columnID, model.ErrNotFound)
		}
		cols[i].Tasks = append(cols[i].Tasks, card)
		return cols, nil
	})
	if err != nil {
		return model.KanbanTask{}, err
	}
	return card, nil
}

func (s *Store) UpdateTask(projectID int64, taskID string, p model.KanbanTaskPatch) (model.KanbanTask, error) {
	if err := p.Validate(); err != nil {
		return model.KanbanTask{}, err
	}
	var updated model.KanbanTask
	err := s.editBoard(projectID, func(cols []model.KanbanColumn) ([]model.KanbanColumn, error) {
		for ci := range cols {
			for ti := range cols[ci].Tasks {
				if cols[ci].Tasks[ti].ID == taskID {
					updated = p.Apply(cols[ci].Tasks[ti])
					cols[ci].Tasks[ti] = updated
					return cols, nil
				}
			}
		}
		return nil, fmt.Errorf("card %s: %w", taskID, model.ErrNotFound)
	})
	return updated, err
}

func (s *Store) DeleteTask(projectID int64, taskID string) error {
	return s.editBoard(projectID, func(cols []model.KanbanColumn) ([]model.KanbanColumn, error) {
		removed := false
		for ci := range cols {
			before := len(cols[ci].Tasks)
			cols[ci].Tasks = slices.DeleteFunc(cols[ci].Tasks, func(t model.KanbanTask) bool { return t.ID == taskID })
			removed = removed || len(cols[ci].Tasks) != before
		}
		if !removed {
			return nil, fmt.Errorf("card %s: %w", taskID, model.ErrNotFound)
		}
		return cols, nil
	})
}

func cloneBoard(cols []model.KanbanColumn) []model.KanbanColumn {
	if cols == nil {
		return nil
	}
	out := make([]model.KanbanColumn, len(cols))
	for i, c := range cols {
		c.Tasks = slices.Clone(c.Tasks)
		if c.Tasks == nil {
			c.Tasks = []model.KanbanTask{}
		}
		out[i] = c
	}
	return out
}
