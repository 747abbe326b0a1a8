package model

import "strings"

// NoteInput creates a note.
type NoteInput struct {
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags,omitempty"`
	ProjectID *string  `json:"project_id,omitempty"`
}

func (in NoteInput) Validate() error {
	return Required("title", in.Title)
}

// NotePatch holds the fields of a partial note update. Nil fields are left
// unchanged.
type NotePatch struct {
	Title     *string   `json:"title,omitempty"`
	Content   *string   `json:"content,omitempty"`
	Tags      *[]string `json:"tags,omitempty"`
	ProjectID *string   `json:"project_id,omitempty"`
}

func (p NotePatch) Validate() error {
	if p.Title != nil {
		return Required("title", *p.Title)
	}
	return nil
}

// Apply merges p into n. Timestamps are the caller's job.
func (p NotePatch) Apply(n Note) Note {
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Content != nil {
		n.Content = *p.Content
	}
	if p.Tags != nil {
		n.Tags = append([]string(nil), (*p.Tags)...)
	}
	if p.ProjectID != nil {
		id := *p.ProjectID
		n.ProjectID = &id
	}
	return n
}

// TaskInput creates a task. An empty priority means medium.
type TaskInput struct {
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Priority     Priority `json:"priority,omitempty"`
	DueDate      string   `json:"due_date,omitempty"`
	ProjectID    *int64   `json:"project_id,omitempty"`
	ParentTaskID *int64   `json:"parent_task_id,omitempty"`
}

func (in TaskInput) Validate() error {
	if err := Required("title", in.Title); err != nil {
		return err
	}
	if in.Priority != "" && !in.Priority.Valid() {
		return &ValidationError{Field: "priority", Message: "must be low, medium or high"}
	}
	return nil
}

// PriorityOrDefault returns the input priority, or medium when unset.
func (in TaskInput) PriorityOrDefault() Priority {
	if in.Priority == "" {
		return PriorityMedium
	}
	return in.Priority
}

type TaskPatch struct {
	Title        *string   `json:"title,omitempty"`
	Description  *string   `json:"description,omitempty"`
	Completed    *bool     `json:"completed,omitempty"`
	Priority     *Priority `json:"priority,omitempty"`
	DueDate      *string   `json:"due_date,omitempty"`
	ProjectID    *int64    `json:"project_id,omitempty"`
	ParentTaskID *int64    `json:"parent_task_id,omitempty"`
	Position     *int      `json:"position,omitempty"`
}

// Validate checks the patch against the task it will be applied to.
func (p TaskPatch) Validate(id int64) error {
	if p.Title != nil {
		if err := Required("title", *p.Title); err != nil {
			return err
		}
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return &ValidationError{Field: "priority", Message: "must be low, medium or high"}
	}
	if p.ParentTaskID != nil && *p.ParentTaskID == id {
		return &ValidationError{Field: "parent_task_id", Message: "a task cannot be its own parent"}
	}
	return nil
}

func (p TaskPatch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	if p.ProjectID != nil {
		id := *p.ProjectID
		t.ProjectID = &id
	}
	if p.ParentTaskID != nil {
		id := *p.ParentTaskID
		t.ParentTaskID = &id
	}
	if p.Position != nil {
		t.Position = *p.Position
	}
	return t
}

// ProjectInput creates a project. An empty color means DefaultProjectColor.
type ProjectInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
}

func (in ProjectInput) Validate() error {
	return Required("name", in.Name)
}

func (in ProjectInput) ColorOrDefault() string {
	if strings.TrimSpace(in.Color) == "" {
		return DefaultProjectColor
	}
	return in.Color
}

type ProjectPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
	Archived    *bool   `json:"archived,omitempty"`
}

func (p ProjectPatch) Validate() error {
	if p.Name != nil {
		return Required("name", *p.Name)
	}
	return nil
}

func (p ProjectPatch) Apply(pr Project) Project {
	if p.Name != nil {
		pr.Name = *p.Name
	}
	if p.Description != nil {
		pr.Description = *p.Description
	}
	if p.Color != nil {
		pr.Color = *p.Color
	}
	if p.Archived != nil {
		pr.Archived = *p.Archived
	}
	return pr
}

// TagInput creates a tag. An empty color means DefaultTagColor.
type TagInput struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

func (in TagInput) Validate() error {
	return Required("name", in.Name)
}

func (in TagInput) ColorOrDefault() string {
	if strings.TrimSpace(in.Color) == "" {
		return DefaultTagColor
	}
	return in.Color
}

type TagPatch struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

func (p TagPatch) Validate() error {
	if p.Name != nil {
		return Required("name", *p.Name)
	}
	return nil
}

func (p TagPatch) Apply(t Tag) Tag {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Color != nil {
		t.Color = *p.Color
	}
	return t
}

// SessionInput starts a pomodoro session.
type SessionInput struct {
	TaskID          *int64      `json:"task_id,omitempty"`
	SessionType     SessionType `json:"session_type"`
	DurationMinutes int         `json:"duration_minutes"`
}

func (in SessionInput) Validate() error {
	if !in.SessionType.Valid() {
		return &ValidationError{Field: "session_type", Message: "must be work, short_break or long_break"}
	}
	if in.DurationMinutes <= 0 {
		return &ValidationError{Field: "duration_minutes", Message: "must be positive"}
	}
	return nil
}

type ColumnPatch struct {
	Title *string `json:"title,omitempty"`
	Color *string `json:"color,omitempty"`
}

func (p ColumnPatch) Validate() error {
	if p.Title != nil {
		return Required("title", *p.Title)
	}
	return nil
}

// KanbanTaskPatch updates a board card.
type KanbanTaskPatch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Priority    *Priority `json:"priority,omitempty"`
	Assignee    *string   `json:"assignee,omitempty"`
	DueDate     *string   `json:"dueDate,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
}

func (p KanbanTaskPatch) Validate() error {
	if p.Title != nil {
		if err := Required("title", *p.Title); err != nil {
			return err
		}
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return &ValidationError{Field: "priority", Message: "must be low, medium or high"}
	}
	return nil
}

func (p KanbanTaskPatch) Apply(t KanbanTask) KanbanTask {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Assignee != nil {
		t.Assignee = *p.Assignee
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	if p.Tags != nil {
		t.Tags = append([]string(nil), (*p.Tags)...)
	}
	return t
}

// SettingsPatch updates timer lengths. Nil fields are kept.
type SettingsPatch struct {
	WorkDuration       *int `json:"workDuration,omitempty"`
	ShortBreakDuration *int `json:"shortBreakDuration,omitempty"`
	LongBreakDuration  *int `json:"longBreakDuration,omitempty"`
}

func (p SettingsPatch) Validate() error {
	fields := []struct {
		name string
		v    *int
	}{
		{"workDuration", p.WorkDuration},
		{"shortBreakDuration", p.ShortBreakDuration},
		{"longBreakDuration", p.LongBreakDuration},
	}
	for _, f := range fields {
		if f.v != nil && *f.v <= 0 {
			return &ValidationError{Field: f.name, Message: "must be positive"}
		}
	}
	return nil
}

func (p SettingsPatch) Apply(s PomodoroSettings) PomodoroSettings {
	if p.WorkDuration != nil {
		s.WorkDuration = *p.WorkDuration
	}
	if p.ShortBreakDuration != nil {
		s.ShortBreakDuration = *p.ShortBreakDuration
	}
	if p.LongBreakDuration != nil {
		s.LongBreakDuration = *p.LongBreakDuration
	}
	return s
}
