package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kalambet/notebook/internal/model"
)

func scanTag(sc scanner) (model.Tag, error) {
	var t model.Tag
	var createdAt string
	if err := sc.Scan(&t.ID, &t.Name, &t.Color, &createdAt); err != nil {
		return model.Tag{}, err
	}
	var err error
	if t.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return model.Tag{}, err
	}
	return t, nil
}

func (s *Store) queryTags(ctx context.Context, query string, args ...any) ([]model.Tag, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []model.Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// ListTags returns every tag in name order.
func (s *Store) ListTags(ctx context.Context) ([]model.Tag, error) {
	return s.queryTags(ctx, "SELECT id, name, color, created_at FROM tags ORDER BY name ASC")
}

func (s *Store) GetTag(ctx context.Context, id int64) (model.Tag, error) {
	t, err := scanTag(s.db.QueryRowContext(ctx, "SELECT id, name, color, created_at FROM tags WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return model.Tag{}, notFound("tag", id)
	}
	return t, err
}

func (s *Store) CreateTag(ctx context.Context, in model.TagInput) (model.Tag, error) {
	if err := in.Validate(); err != nil {
		return model.Tag{}, err
	}
	t := model.Tag{Name: strings.TrimSpace(in.Name), Color: in.ColorOrDefault(), CreatedAt: s.clock.Now()}

	var exists int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tags WHERE name = ?", t.Name).Scan(&exists); err != nil {
		return model.Tag{}, err
	}
	if exists > 0 {
		return model.Tag{}, fmt.Errorf("tag %q: %w", t.Name, ErrDuplicate)
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO tags (name, color, created_at) VALUES (?, ?, ?)",
		t.Name, t.Color, formatTime(t.CreatedAt),
	)
	if err != nil {
		return model.Tag{}, fmt.Errorf("inserting tag: %w", err)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return model.Tag{}, err
	}
	return t, nil
}

func (s *Store) UpdateTag(ctx context.Context, id int64, p model.TagPatch) (model.Tag, error) {
	if err := p.Validate(); err != nil {
		return model.Tag{}, err
	}
	current, err := s.GetTag(ctx, id)
	if err != nil {
		return model.Tag{}, err
	}
	t := p.Apply(current)
	if t.Name != current.Name {
		var exists int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tags WHERE name = ? AND id != ?", t.Name, id).Scan(&exists); err != nil {
			return model.Tag{}, err
		}
		if exists > 0 {
			return model.Tag{}, fmt.Errorf("tag %q: %w", t.Name, ErrDuplicate)
		}
	}
	if _, err := s.db.ExecContext(ctx, "UPDATE tags SET name = ?, color = ? WHERE id = ?", t.Name, t.Color, id); err != nil {
		return model.Tag{}, fmt.Errorf("updating tag: %w", err)
	}
	return t, nil
}

// DeleteTag removes the tag and its note links.
func (s *Store) DeleteTag(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tags WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("tag", id)
	}
	return nil
}

// AddTagToNote links a tag to a note. Linking twice is a no-op.
func (s *Store) AddTagToNote(ctx context.Context, noteID string, tagID int64) error {
	if err := s.requireNoteAndTag(ctx, noteID, tagID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO note_tags (note_id, tag_id) VALUES (?, ?)", noteID, tagID)
	return err
}

func (s *Store) RemoveTagFromNote(ctx context.Context, noteID string, tagID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM note_tags WHERE note_id = ? AND tag_id = ?", noteID, tagID)
	return err
}

func (s *Store) TagsForNote(ctx context.Context, noteID string) ([]model.Tag, error) {
	return s.queryTags(ctx, `
		SELECT t.id, t.name, t.color, t.created_at FROM tags t
		JOIN note_tags nt ON t.id = nt.tag_id
		WHERE nt.note_id = ?
		ORDER BY t.name ASC`, noteID)
}

// NotesByTag returns the IDs of the notes linked to tagID.
func (s *Store) NotesByTag(ctx context.Context, tagID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT note_id FROM note_tags WHERE tag_id = ? ORDER BY note_id", tagID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) requireNoteAndTag(ctx context.Context, noteID string, tagID int64) error {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM notes WHERE id = ?", noteID).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return notFound("note", noteID)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tags WHERE id = ?", tagID).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return notFound("tag", tagID)
	}
	return nil
}
