package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Project groups items. Deleting a project detaches its items rather than
// deleting them.
type Project struct {
	ID        string
	Name      string
	Icon      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateProject inserts a new project. A zero ID gets a fresh UUID.
func (s *Store) CreateProject(p *Project) error {
	if !s.open() {
		return ErrNotOpen
	}
	if strings.TrimSpace(p.Name) == "" {
		return ErrNameRequired
	}

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO projects (id, name, icon, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Icon, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateID, p.ID)
		}
		return fmt.Errorf("store: failed to insert project: %w", err)
	}

	s.log.Debug("project created", zap.String("id", p.ID))
	return nil
}

// GetProject fetches one project by ID.
func (s *Store) GetProject(id string) (*Project, error) {
	if !s.open() {
		return nil, ErrNotOpen
	}

	var p Project
	err := s.db.QueryRow(`
		SELECT id, name, icon, created_at, updated_at FROM projects WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &p.Icon, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: failed to read project: %w", err)
	}
	return &p, nil
}

// ListProjects returns all projects ordered by name.
func (s *Store) ListProjects() ([]Project, error) {
	if !s.open() {
		return nil, ErrNotOpen
	}

	rows, err := s.db.Query(`
		SELECT id, name, icon, created_at, updated_at
		FROM projects ORDER BY name COLLATE NOCASE, id
	`)
	if err != nil {
		return nil, fmt.Errorf("store: failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Icon, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: failed to list projects: %w", err)
	}
	return projects, nil
}

// UpdateProject renames a project or changes its icon.
func (s *Store) UpdateProject(p *Project) error {
	if !s.open() {
		return ErrNotOpen
	}
	if strings.TrimSpace(p.Name) == "" {
		return ErrNameRequired
	}

	p.UpdatedAt = time.Now().UTC()
	res, err := s.db.Exec(`
		UPDATE projects SET name = ?, icon = ?, updated_at = ? WHERE id = ?
	`, p.Name, p.Icon, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("store: failed to update project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, p.ID)
	}
	return nil
}

// DeleteProject removes a project. Items referencing it keep existing with
// a null project, per the schema's ON DELETE SET NULL.
func (s *Store) DeleteProject(id string) error {
	tx, err := s.begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("store: failed to delete project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: failed to commit project delete: %w", err)
	}

	s.log.Debug("project deleted", zap.String("id", id))
	return nil
}
