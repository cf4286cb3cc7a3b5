package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Tag labels items. An item may carry any number of tags.
type Tag struct {
	ID        string
	Name      string
	Color     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateTag inserts a new tag. A zero ID gets a fresh UUID.
func (s *Store) CreateTag(t *Tag) error {
	if !s.open() {
		return ErrNotOpen
	}
	if strings.TrimSpace(t.Name) == "" {
		return ErrNameRequired
	}

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO tags (id, name, color, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, t.ID, t.Name, t.Color, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateID, t.ID)
		}
		return fmt.Errorf("store: failed to insert tag: %w", err)
	}

	s.log.Debug("tag created", zap.String("id", t.ID))
	return nil
}

// GetTag fetches one tag by ID.
func (s *Store) GetTag(id string) (*Tag, error) {
	if !s.open() {
		return nil, ErrNotOpen
	}

	var t Tag
	err := s.db.QueryRow(`
		SELECT id, name, color, created_at, updated_at FROM tags WHERE id = ?
	`, id).Scan(&t.ID, &t.Name, &t.Color, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrTagNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: failed to read tag: %w", err)
	}
	return &t, nil
}

// FindTagByName returns the tag with the given name, matched
// case-insensitively, or ErrTagNotFound.
func (s *Store) FindTagByName(name string) (*Tag, error) {
	if !s.open() {
		return nil, ErrNotOpen
	}

	var t Tag
	err := s.db.QueryRow(`
		SELECT id, name, color, created_at, updated_at
		FROM tags WHERE name = ? COLLATE NOCASE
	`, name).Scan(&t.ID, &t.Name, &t.Color, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrTagNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("store: failed to read tag: %w", err)
	}
	return &t, nil
}

// ListTags returns all tags ordered by name.
func (s *Store) ListTags() ([]Tag, error) {
	if !s.open() {
		return nil, ErrNotOpen
	}

	rows, err := s.db.Query(`
		SELECT id, name, color, created_at, updated_at
		FROM tags ORDER BY name COLLATE NOCASE, id
	`)
	if err != nil {
		return nil, fmt.Errorf("store: failed to list tags: %w", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Color, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: failed to scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: failed to list tags: %w", err)
	}
	return tags, nil
}

// UpdateTag renames a tag or changes its color.
func (s *Store) UpdateTag(t *Tag) error {
	if !s.open() {
		return ErrNotOpen
	}
	if strings.TrimSpace(t.Name) == "" {
		return ErrNameRequired
	}

	t.UpdatedAt = time.Now().UTC()
	res, err := s.db.Exec(`
		UPDATE tags SET name = ?, color = ?, updated_at = ? WHERE id = ?
	`, t.Name, t.Color, t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("store: failed to update tag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrTagNotFound, t.ID)
	}
	return nil
}

// DeleteTag removes a tag and its item links via cascade.
func (s *Store) DeleteTag(id string) error {
	tx, err := s.begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM tags WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("store: failed to delete tag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrTagNotFound, id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: failed to commit tag delete: %w", err)
	}

	s.log.Debug("tag deleted", zap.String("id", id))
	return nil
}
