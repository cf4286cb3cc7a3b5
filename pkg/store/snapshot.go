package store

import (
	"fmt"

	"github.com/lockboxapp/lockbox/pkg/crypto"
)

// Snapshot is a full decrypted copy of the vault contents. Re-keying and
// backup export both work from a snapshot so they never read the database
// twice with inconsistent views.
type Snapshot struct {
	Projects []Project
	Tags     []Tag
	Items    []Item
}

// Snapshot reads and decrypts everything in the store.
func (s *Store) Snapshot() (*Snapshot, error) {
	if !s.open() {
		return nil, ErrNotOpen
	}

	projects, err := s.ListProjects()
	if err != nil {
		return nil, err
	}
	tags, err := s.ListTags()
	if err != nil {
		return nil, err
	}

	summaries, err := s.ListItems(ItemFilter{})
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(summaries))
	for _, sum := range summaries {
		item, err := s.GetItem(sum.ID)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}

	return &Snapshot{Projects: projects, Tags: tags, Items: items}, nil
}

// Restore writes a snapshot into the store, preserving IDs and timestamps.
// The store should be empty; existing rows with colliding IDs fail the
// restore. Everything happens in one transaction, so a failed restore
// leaves the store untouched.
func (s *Store) Restore(snap *Snapshot) error {
	return s.restore(snap, false)
}

// Replace wipes the store and writes the snapshot in the same transaction.
// A failure anywhere rolls back to the previous contents instead of leaving
// the store emptied.
func (s *Store) Replace(snap *Snapshot) error {
	return s.restore(snap, true)
}

func (s *Store) restore(snap *Snapshot, wipe bool) error {
	if !s.open() {
		return ErrNotOpen
	}

	// Encrypt payloads up front so a crypto failure cannot leave a
	// half-written transaction hanging on the single connection.
	blobs := make(map[string][]byte, len(snap.Items))
	for i := range snap.Items {
		item := &snap.Items[i]
		blob, err := crypto.EncryptRecord(item.Payload, s.key)
		if err != nil {
			return fmt.Errorf("store: failed to encrypt payload for %s: %w", item.ID, err)
		}
		blobs[item.ID] = blob
	}

	tx, err := s.begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if wipe {
		for _, table := range []string{"item_tags", "items", "tags", "projects"} {
			if _, err := tx.Exec("DELETE FROM " + table); err != nil {
				return fmt.Errorf("store: failed to wipe %s: %w", table, err)
			}
		}
	}

	for _, p := range snap.Projects {
		_, err := tx.Exec(`
			INSERT INTO projects (id, name, icon, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, p.ID, p.Name, p.Icon, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: project %s", ErrDuplicateID, p.ID)
			}
			return fmt.Errorf("store: failed to restore project: %w", err)
		}
	}

	for _, t := range snap.Tags {
		_, err := tx.Exec(`
			INSERT INTO tags (id, name, color, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, t.ID, t.Name, t.Color, t.CreatedAt, t.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: tag %s", ErrDuplicateID, t.ID)
			}
			return fmt.Errorf("store: failed to restore tag: %w", err)
		}
	}

	for i := range snap.Items {
		item := &snap.Items[i]
		_, err := tx.Exec(`
			INSERT INTO items (id, name, type, project_id, is_favorite, created_at, updated_at, encrypted_payload)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, item.ID, item.Name, string(item.Type), item.ProjectID,
			boolToInt(item.IsFavorite), item.CreatedAt, item.UpdatedAt, blobs[item.ID])
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: item %s", ErrDuplicateID, item.ID)
			}
			return fmt.Errorf("store: failed to restore item: %w", err)
		}
		for _, tagID := range item.TagIDs {
			if _, err := tx.Exec(
				"INSERT OR IGNORE INTO item_tags (item_id, tag_id) VALUES (?, ?)",
				item.ID, tagID); err != nil {
				return fmt.Errorf("store: failed to restore tag link: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: failed to commit restore: %w", err)
	}
	return nil
}

// Wipe deletes all projects, tags and items. Schema and settings survive.
func (s *Store) Wipe() error {
	tx, err := s.begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"item_tags", "items", "tags", "projects"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("store: failed to wipe %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: failed to commit wipe: %w", err)
	}
	return nil
}

// Counts reports how many rows of each kind the store holds.
func (s *Store) Counts() (projects, tags, items int, err error) {
	if !s.open() {
		return 0, 0, 0, ErrNotOpen
	}
	for _, q := range []struct {
		table string
		dst   *int
	}{
		{"projects", &projects},
		{"tags", &tags},
		{"items", &items},
	} {
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + q.table).Scan(q.dst); err != nil {
			return 0, 0, 0, fmt.Errorf("store: failed to count %s: %w", q.table, err)
		}
	}
	return projects, tags, items, nil
}
