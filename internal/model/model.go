// Package model holds the entity types shared by the stores, the command
// backend and the transport layers.
package model

import "time"

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type SessionType string

const (
	SessionWork       SessionType = "work"
	SessionShortBreak SessionType = "short_break"
	SessionLongBreak  SessionType = "long_break"
)

func (s SessionType) Valid() bool {
	switch s {
	case SessionWork, SessionShortBreak, SessionLongBreak:
		return true
	}
	return false
}

type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ProjectID *string   `json:"project_id,omitempty"`
}

type Task struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Completed    bool      `json:"completed"`
	Priority     Priority  `json:"priority"`
	DueDate      string    `json:"due_date,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	ProjectID    *int64    `json:"project_id,omitempty"`
	ParentTaskID *int64    `json:"parent_task_id,omitempty"`
	Position     int       `json:"position"`
}

type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Color       string    `json:"color"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Archived    bool      `json:"archived"`
}

// ProjectStats aggregates the entities that reference a project.
type ProjectStats struct {
	TotalNotes            int `json:"total_notes"`
	TotalTasks            int `json:"total_tasks"`
	CompletedTasks        int `json:"completed_tasks"`
	TotalPomodoroSessions int `json:"total_pomodoro_sessions"`
}

// KanbanColumn is a transient board column; its task order is board order.
type KanbanColumn struct {
	ID    string       `json:"id"`
	Title string       `json:"title"`
	Color string       `json:"color"`
	Tasks []KanbanTask `json:"tasks"`
}

// KanbanTask is a board card. It is unrelated to Task.
type KanbanTask struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    Priority `json:"priority"`
	Assignee    string   `json:"assignee,omitempty"`
	DueDate     string   `json:"dueDate,omitempty"`
	Tags        []string `json:"tags"`
}

type PomodoroSession struct {
	ID              int64       `json:"id"`
	TaskID          *int64      `json:"task_id,omitempty"`
	SessionType     SessionType `json:"session_type"`
	DurationMinutes int         `json:"duration_minutes"`
	Completed       bool        `json:"completed"`
	StartedAt       time.Time   `json:"started_at"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
}

// PomodoroSettings are timer lengths in minutes.
type PomodoroSettings struct {
	WorkDuration       int `json:"workDuration"`
	ShortBreakDuration int `json:"shortBreakDuration"`
	LongBreakDuration  int `json:"longBreakDuration"`
}

// DefaultPomodoroSettings is 25/5/15.
func DefaultPomodoroSettings() PomodoroSettings {
	return PomodoroSettings{WorkDuration: 25, ShortBreakDuration: 5, LongBreakDuration: 15}
}

// WithDefaults replaces zero or negative durations with the defaults.
func (s PomodoroSettings) WithDefaults() PomodoroSettings {
	d := DefaultPomodoroSettings()
	if s.WorkDuration <= 0 {
		s.WorkDuration = d.WorkDuration
	}
	if s.ShortBreakDuration <= 0 {
		s.ShortBreakDuration = d.ShortBreakDuration
	}
	if s.LongBreakDuration <= 0 {
		s.LongBreakDuration = d.LongBreakDuration
	}
	return s
}

type PomodoroStats struct {
	TotalSessions     int `json:"total_sessions"`
	CompletedSessions int `json:"completed_sessions"`
	TotalFocusTime    int `json:"total_focus_time"`
	SessionsToday     int `json:"sessions_today"`
	FocusTimeToday    int `json:"focus_time_today"`
}

type Tag struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	DefaultProjectColor = "#3B82F6"
	DefaultTagColor     = "#6B7280"
)
