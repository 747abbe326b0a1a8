package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kalambet/notebook/internal/clock"
	"github.com/kalambet/notebook/internal/model"
)

const noteColumns = "id, title, content, created_at, updated_at, project_id"

func scanNote(sc scanner) (model.Note, error) {
	var n model.Note
	var createdAt, updatedAt string
	var projectID sql.NullString
	if err := sc.Scan(&n.ID, &n.Title, &n.Content, &createdAt, &updatedAt, &projectID); err != nil {
		return model.Note{}, err
	}
	var err error
	if n.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return model.Note{}, err
	}
	if n.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return model.Note{}, err
	}
	n.ProjectID = stringPtr(projectID)
	return n, nil
}

// ListNotes returns every note, newest first, with its tag names.
func (s *Store) ListNotes(ctx context.Context) ([]model.Note, error) {
	return s.queryNotes(ctx, "SELECT "+noteColumns+" FROM notes ORDER BY created_at DESC, id")
}

// SearchNotes matches query against note titles, contents and tag names.
func (s *Store) SearchNotes(ctx context.Context, query string) ([]model.Note, error) {
	pattern := "%" + strings.TrimSpace(query) + "%"
	return s.queryNotes(ctx, `
		SELECT `+noteColumns+` FROM notes
		WHERE title LIKE ? OR content LIKE ? OR id IN (
			SELECT nt.note_id FROM note_tags nt JOIN tags t ON t.id = nt.tag_id WHERE t.name LIKE ?
		)
		ORDER BY created_at DESC, id`,
		pattern, pattern, pattern,
	)
}

func (s *Store) queryNotes(ctx context.Context, query string, args ...any) ([]model.Note, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []model.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	tags, err := s.noteTagNames(ctx)
	if err != nil {
		return nil, err
	}
	for i := range notes {
		notes[i].Tags = tags[notes[i].ID]
	}
	return notes, nil
}

// noteTagNames maps note IDs to their tag names in name order.
func (s *Store) noteTagNames(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT nt.note_id, t.name FROM note_tags nt
		JOIN tags t ON t.id = nt.tag_id
		ORDER BY t.name`)
	if err != nil {
		return nil, fmt.Errorf("loading note tags: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var noteID, name string
		if err := rows.Scan(&noteID, &name); err != nil {
			return nil, err
		}
		out[noteID] = append(out[noteID], name)
	}
	return out, rows.Err()
}

func (s *Store) GetNote(ctx context.Context, id string) (model.Note, error) {
	n, err := scanNote(s.db.QueryRowContext(ctx, "SELECT "+noteColumns+" FROM notes WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return model.Note{}, notFound("note", id)
	}
	if err != nil {
		return model.Note{}, err
	}
	tags, err := s.tagNamesForNote(ctx, s.db, id)
	if err != nil {
		return model.Note{}, err
	}
	n.Tags = tags
	return n, nil
}

// CreateNote inserts a note and links it to the named tags, creating tags
// that do not exist yet.
func (s *Store) CreateNote(ctx context.Context, in model.NoteInput) (model.Note, error) {
	if err := in.Validate(); err != nil {
		return model.Note{}, err
	}
	now := s.clock.Now()
	n := model.Note{
		ID:        uuid.NewString(),
		Title:     in.Title,
		Content:   in.Content,
		CreatedAt: now,
		UpdatedAt: now,
		ProjectID: in.ProjectID,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Note{}, fmt.Errorf("beginning note transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO notes (id, title, content, created_at, updated_at, project_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.Title, n.Content, formatTime(n.CreatedAt), formatTime(n.UpdatedAt), nullString(n.ProjectID),
	); err != nil {
		return model.Note{}, fmt.Errorf("inserting note: %w", err)
	}
	if err := s.setNoteTags(ctx, tx, n.ID, in.Tags); err != nil {
		return model.Note{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Note{}, fmt.Errorf("committing note: %w", err)
	}

	n.Tags, err = s.tagNamesForNote(ctx, s.db, n.ID)
	if err != nil {
		return model.Note{}, err
	}
	return n, nil
}

func (s *Store) UpdateNote(ctx context.Context, id string, p model.NotePatch) (model.Note, error) {
	if err := p.Validate(); err != nil {
		return model.Note{}, err
	}
	current, err := s.GetNote(ctx, id)
	if err != nil {
		return model.Note{}, err
	}
	n := p.Apply(current)
	n.UpdatedAt = clock.Later(current.UpdatedAt, s.clock.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Note{}, fmt.Errorf("beginning note transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE notes SET title = ?, content = ?, updated_at = ?, project_id = ? WHERE id = ?`,
		n.Title, n.Content, formatTime(n.UpdatedAt), nullString(n.ProjectID), id,
	); err != nil {
		return model.Note{}, fmt.Errorf("updating note: %w", err)
	}
	if p.Tags != nil {
		if _, err := tx.ExecContext(ctx, "DELETE FROM note_tags WHERE note_id = ?", id); err != nil {
			return model.Note{}, fmt.Errorf("clearing note tags: %w", err)
		}
		if err := s.setNoteTags(ctx, tx, id, *p.Tags); err != nil {
			return model.Note{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return model.Note{}, fmt.Errorf("committing note: %w", err)
	}

	n.Tags, err = s.tagNamesForNote(ctx, s.db, id)
	if err != nil {
		return model.Note{}, err
	}
	return n, nil
}

func (s *Store) DeleteNote(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("note", id)
	}
	return nil
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) setNoteTags(ctx context.Context, q execQuerier, noteID string, names []string) error {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		tagID, err := s.ensureTag(ctx, q, name)
		if err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx,
			"INSERT OR IGNORE INTO note_tags (note_id, tag_id) VALUES (?, ?)", noteID, tagID,
		); err != nil {
			return fmt.Errorf("linking tag %q: %w", name, err)
		}
	}
	return nil
}

// ensureTag returns the ID of the tag called name, creating it with the
// default color when missing.
func (s *Store) ensureTag(ctx context.Context, q execQuerier, name string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, "SELECT id FROM tags WHERE name = ?", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("looking up tag %q: %w", name, err)
	}
	res, err := q.ExecContext(ctx,
		"INSERT INTO tags (name, color, created_at) VALUES (?, ?, ?)",
		name, model.DefaultTagColor, formatTime(s.clock.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("creating tag %q: %w", name, err)
	}
	return res.LastInsertId()
}

func (s *Store) tagNamesForNote(ctx context.Context, q execQuerier, noteID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT t.name FROM tags t
		JOIN note_tags nt ON t.id = nt.tag_id
		WHERE nt.note_id = ?
		ORDER BY t.name`, noteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
