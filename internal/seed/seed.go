// Package seed supplies the example data stores fall back to when their
// persisted snapshot is empty.
package seed

import (
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kalambet/notebook/internal/model"
)

//go:embed seed.yaml
var defaultYAML []byte

type fixtures struct {
	Notes    []noteFixture    `yaml:"notes"`
	Tasks    []taskFixture    `yaml:"tasks"`
	Projects []projectFixture `yaml:"projects"`
	Tags     []tagFixture     `yaml:"tags"`
	Sessions []sessionFixture `yaml:"sessions"`
	Columns  []columnFixture  `yaml:"columns"`
}

type noteFixture struct {
	ID      string   `yaml:"id"`
	Title   string   `yaml:"title"`
	Content string   `yaml:"content"`
	Tags    []string `yaml:"tags"`
	Age     string   `yaml:"age"`
}

type taskFixture struct {
	ID          int64  `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Priority    string `yaml:"priority"`
	DueDate     string `yaml:"due_date"`
	Position    int    `yaml:"position"`
	Age         string `yaml:"age"`
}

type projectFixture struct {
	ID          int64  `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Color       string `yaml:"color"`
	Created     string `yaml:"created"`
	Updated     string `yaml:"updated"`
}

type tagFixture struct {
	ID    int64  `yaml:"id"`
	Name  string `yaml:"name"`
	Color string `yaml:"color"`
	Age   string `yaml:"age"`
}

type sessionFixture struct {
	ID      int64  `yaml:"id"`
	Type    string `yaml:"type"`
	Minutes int    `yaml:"minutes"`
	Age     string `yaml:"age"`
}

type columnFixture struct {
	ID    string     `yaml:"id"`
	Title string     `yaml:"title"`
	Color string     `yaml:"color"`
	Tasks []cardSeed `yaml:"tasks"`
}

type cardSeed struct {
	ID          string   `yaml:"id"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Priority    string   `yaml:"priority"`
	Assignee    string   `yaml:"assignee"`
	DueDate     string   `yaml:"due_date"`
	Tags        []string `yaml:"tags"`
}

// Provider builds example entities. Relative ages in the fixtures are
// resolved against the time passed to each method.
type Provider struct {
	f fixtures
}

// Default returns the Provider backed by the embedded fixtures.
func Default() *Provider {
	p, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("seed: embedded fixtures: %v", err))
	}
	return p
}

// Parse reads fixtures in the embedded YAML layout.
func Parse(data []byte) (*Provider, error) {
	var f fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing seed data: %w", err)
	}
	for _, n := range f.Notes {
		if _, err := age(n.Age); err != nil {
			return nil, fmt.Errorf("note %s: %w", n.ID, err)
		}
	}
	for _, t := range f.Tasks {
		if _, err := age(t.Age); err != nil {
			return nil, fmt.Errorf("task %d: %w", t.ID, err)
		}
		if !model.Priority(t.Priority).Valid() {
			return nil, fmt.Errorf("task %d: unknown priority %q", t.ID, t.Priority)
		}
	}
	for _, p := range f.Projects {
		for _, ts := range []string{p.Created, p.Updated} {
			if _, err := time.Parse(time.RFC3339, ts); err != nil {
				return nil, fmt.Errorf("project %d: %w", p.ID, err)
			}
		}
	}
	for _, t := range f.Tags {
		if _, err := age(t.Age); err != nil {
			return nil, fmt.Errorf("tag %d: %w", t.ID, err)
		}
	}
	for _, s := range f.Sessions {
		if _, err := age(s.Age); err != nil {
			return nil, fmt.Errorf("session %d: %w", s.ID, err)
		}
		if !model.SessionType(s.Type).Valid() {
			return nil, fmt.Errorf("session %d: unknown type %q", s.ID, s.Type)
		}
	}
	return &Provider{f: f}, nil
}

func age(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing age %q: %w", s, err)
	}
	return d, nil
}

func mustAge(s string) time.Duration {
	d, _ := age(s)
	return d
}

func (p *Provider) SeedNotes(now time.Time) []model.Note {
	out := make([]model.Note, 0, len(p.f.Notes))
	for _, n := range p.f.Notes {
		ts := now.Add(-mustAge(n.Age))
		out = append(out, model.Note{
			ID:        n.ID,
			Title:     n.Title,
			Content:   n.Content,
			Tags:      append([]string(nil), n.Tags...),
			CreatedAt: ts,
			UpdatedAt: ts,
		})
	}
	return out
}

func (p *Provider) SeedTasks(now time.Time) []model.Task {
	out := make([]model.Task, 0, len(p.f.Tasks))
	for _, t := range p.f.Tasks {
		ts := now.Add(-mustAge(t.Age))
		out = append(out, model.Task{
			ID:          t.ID,
			Title:       t.Title,
			Description: t.Description,
			Priority:    model.Priority(t.Priority),
			DueDate:     t.DueDate,
			CreatedAt:   ts,
			UpdatedAt:   ts,
			Position:    t.Position,
		})
	}
	return out
}

func (p *Provider) SeedProjects(time.Time) []model.Project {
	out := make([]model.Project, 0, len(p.f.Projects))
	for _, pr := range p.f.Projects {
		created, _ := time.Parse(time.RFC3339, pr.Created)
		updated, _ := time.Parse(time.RFC3339, pr.Updated)
		out = append(out, model.Project{
			ID:          pr.ID,
			Name:        pr.Name,
			Description: pr.Description,
			Color:       pr.Color,
			CreatedAt:   created,
			UpdatedAt:   updated,
		})
	}
	return out
}

func (p *Provider) SeedTags(now time.Time) []model.Tag {
	out := make([]model.Tag, 0, len(p.f.Tags))
	for _, t := range p.f.Tags {
		out = append(out, model.Tag{
			ID:        t.ID,
			Name:      t.Name,
			Color:     t.Color,
			CreatedAt: now.Add(-mustAge(t.Age)),
		})
	}
	return out
}

// SeedSessions returns completed sessions that started the fixture age ago.
func (p *Provider) SeedSessions(now time.Time) []model.PomodoroSession {
	out := make([]model.PomodoroSession, 0, len(p.f.Sessions))
	for _, s := range p.f.Sessions {
		started := now.Add(-mustAge(s.Age))
		completed := started.Add(time.Duration(s.Minutes) * time.Minute)
		out = append(out, model.PomodoroSession{
			ID:              s.ID,
			SessionType:     model.SessionType(s.Type),
			DurationMinutes: s.Minutes,
			Completed:       true,
			StartedAt:       started,
			CompletedAt:     &completed,
		})
	}
	return out
}

// SeedColumns returns a fresh board. Every project gets the same layout.
func (p *Provider) SeedColumns(int64) []model.KanbanColumn {
	out := make([]model.KanbanColumn, 0, len(p.f.Columns))
	for _, c := range p.f.Columns {
		col := model.KanbanColumn{ID: c.ID, Title: c.Title, Color: c.Color, Tasks: []model.KanbanTask{}}
		for _, t := range c.Tasks {
			col.Tasks = append(col.Tasks, model.KanbanTask{
				ID:          t.ID,
				Title:       t.Title,
				Description: t.Description,
				Priority:    model.Priority(t.Priority),
				Assignee:    t.Assignee,
				DueDate:     t.DueDate,
				Tags:        append([]string(nil), t.Tags...),
			})
		}
		out = append(out, col)
	}
	return out
}

// Empty seeds nothing. Stores built with it start with empty collections.
type Empty struct{}

func (Empty) SeedNotes(time.Time) []model.Note               { return nil }
func (Empty) SeedTasks(time.Time) []model.Task               { return nil }
func (Empty) SeedProjects(time.Time) []model.Project         { return nil }
func (Empty) SeedTags(time.Time) []model.Tag                 { return nil }
func (Empty) SeedSessions(time.Time) []model.PomodoroSession { return nil }
func (Empty) SeedColumns(int64) []model.KanbanColumn         { return nil }
