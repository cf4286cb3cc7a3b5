package store

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lockboxapp/lockbox/pkg/crypto"
)

// Item is a stored credential. Name, Type, ProjectID, TagIDs, IsFavorite and
// the timestamps are plaintext metadata; Payload is the only encrypted part.
type Item struct {
	ID         string
	Name       string
	Type       ItemType
	ProjectID  *string
	TagIDs     []string
	IsFavorite bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Payload    Payload
}

// CreateItem inserts a new item, encrypting its payload under the store key.
// A zero ID gets a fresh UUID. The payload type must match item.Type.
func (s *Store) CreateItem(item *Item) error {
	if !s.open() {
		return ErrNotOpen
	}
	if strings.TrimSpace(item.Name) == "" {
		return ErrNameRequired
	}
	if !ValidType(item.Type) {
		return fmt.Errorf("%w: %q", ErrUnknownItemType, item.Type)
	}
	if item.Payload.Type != item.Type {
		return fmt.Errorf("store: payload type %q does not match item type %q",
			item.Payload.Type, item.Type)
	}

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	blob, err := crypto.EncryptRecord(item.Payload, s.key)
	if err != nil {
		return fmt.Errorf("store: failed to encrypt payload: %w", err)
	}

	tx, err := s.begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.checkProjectExists(tx, item.ProjectID); err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO items (id, name, type, project_id, is_favorite, created_at, updated_at, encrypted_payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.Name, string(item.Type), item.ProjectID, boolToInt(item.IsFavorite),
		item.CreatedAt, item.UpdatedAt, blob)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateID, item.ID)
		}
		return fmt.Errorf("store: failed to insert item: %w", err)
	}

	if err := replaceItemTags(tx, item.ID, item.TagIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: failed to commit item: %w", err)
	}

	s.log.Debug("item created",
		zap.String("id", item.ID),
		zap.String("type", string(item.Type)))
	return nil
}

// GetItem fetches one item by ID, decrypting its payload.
func (s *Store) GetItem(id string) (*Item, error) {
	if !s.open() {
		return nil, ErrNotOpen
	}

	row := s.db.QueryRow(`
		SELECT id, name, type, project_id, is_favorite, created_at, updated_at, encrypted_payload
		FROM items WHERE id = ?
	`, id)

	item, blob, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: failed to read item: %w", err)
	}

	item.Payload, err = crypto.DecryptRecord[Payload](blob, s.key)
	if err != nil {
		return nil, fmt.Errorf("store: failed to decrypt payload for %s: %w", id, err)
	}

	item.TagIDs, err = s.itemTagIDs(id)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ItemSummary is a list row: everything about an item except its payload.
// Decryption is deferred until a specific item is requested.
type ItemSummary struct {
	ID         string
	Name       string
	Type       ItemType
	ProjectID  *string
	TagIDs     []string
	IsFavorite bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ItemFilter narrows ListItems. Zero-value fields do not filter.
type ItemFilter struct {
	Type      ItemType
	ProjectID *string
	TagID     string
	Favorite  bool
}

// ListItems returns item summaries matching the filter, ordered by name.
// Payloads stay encrypted on disk.
func (s *Store) ListItems(filter ItemFilter) ([]ItemSummary, error) {
	if !s.open() {
		return nil, ErrNotOpen
	}

	query := `
		SELECT i.id, i.name, i.type, i.project_id, i.is_favorite, i.created_at, i.updated_at
		FROM items i
	`
	var conds []string
	var args []any

	if filter.TagID != "" {
		query += " JOIN item_tags it ON it.item_id = i.id"
		conds = append(conds, "it.tag_id = ?")
		args = append(args, filter.TagID)
	}
	if filter.Type != "" {
		conds = append(conds, "i.type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.ProjectID != nil {
		conds = append(conds, "i.project_id = ?")
		args = append(args, *filter.ProjectID)
	}
	if filter.Favorite {
		conds = append(conds, "i.is_favorite = 1")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY i.name COLLATE NOCASE, i.id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: failed to list items: %w", err)
	}
	defer rows.Close()

	var items []ItemSummary
	for rows.Next() {
		var it ItemSummary
		var typ string
		var fav int
		if err := rows.Scan(&it.ID, &it.Name, &typ, &it.ProjectID, &fav,
			&it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: failed to scan item: %w", err)
		}
		it.Type = ItemType(typ)
		it.IsFavorite = fav != 0
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: failed to list items: %w", err)
	}

	for i := range items {
		items[i].TagIDs, err = s.itemTagIDs(items[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return items, nil
}

// SearchItems returns summaries whose name contains the query,
// case-insensitively, optionally narrowed to one type. Payload contents are
// not searched.
func (s *Store) SearchItems(query string, typ ItemType) ([]ItemSummary, error) {
	if !s.open() {
		return nil, ErrNotOpen
	}

	all, err := s.ListItems(ItemFilter{Type: typ})
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return all, nil
	}

	var matched []ItemSummary
	for _, it := range all {
		if strings.Contains(strings.ToLower(it.Name), q) ||
			strings.Contains(strings.ToLower(string(it.Type)), q) {
			matched = append(matched, it)
		}
	}
	return matched, nil
}

// UpdateItem replaces an existing item's metadata, tags and payload.
// CreatedAt is preserved; UpdatedAt is set to now.
func (s *Store) UpdateItem(item *Item) error {
	if !s.open() {
		return ErrNotOpen
	}
	if strings.TrimSpace(item.Name) == "" {
		return ErrNameRequired
	}
	if !ValidType(item.Type) {
		return fmt.Errorf("%w: %q", ErrUnknownItemType, item.Type)
	}
	if item.Payload.Type != item.Type {
		return fmt.Errorf("store: payload type %q does not match item type %q",
			item.Payload.Type, item.Type)
	}

	item.UpdatedAt = time.Now().UTC()

	blob, err := crypto.EncryptRecord(item.Payload, s.key)
	if err != nil {
		return fmt.Errorf("store: failed to encrypt payload: %w", err)
	}

	tx, err := s.begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.checkProjectExists(tx, item.ProjectID); err != nil {
		return err
	}

	res, err := tx.Exec(`
		UPDATE items
		SET name = ?, type = ?, project_id = ?, is_favorite = ?, updated_at = ?, encrypted_payload = ?
		WHERE id = ?
	`, item.Name, string(item.Type), item.ProjectID, boolToInt(item.IsFavorite),
		item.UpdatedAt, blob, item.ID)
	if err != nil {
		return fmt.Errorf("store: failed to update item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrItemNotFound, item.ID)
	}

	if err := replaceItemTags(tx, item.ID, item.TagIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: failed to commit item update: %w", err)
	}

	s.log.Debug("item updated", zap.String("id", item.ID))
	return nil
}

// DeleteItem removes an item; tag links go with it via cascade.
func (s *Store) DeleteItem(id string) error {
	tx, err := s.begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM items WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("store: failed to delete item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: failed to commit item delete: %w", err)
	}

	s.log.Debug("item deleted", zap.String("id", id))
	return nil
}

// SetFavorite toggles the plaintext favorite flag without touching the
// payload.
func (s *Store) SetFavorite(id string, favorite bool) error {
	if !s.open() {
		return ErrNotOpen
	}

	res, err := s.db.Exec(`
		UPDATE items SET is_favorite = ?, updated_at = ? WHERE id = ?
	`, boolToInt(favorite), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: failed to set favorite: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return nil
}

// itemTagIDs returns the sorted tag IDs linked to an item.
func (s *Store) itemTagIDs(itemID string) ([]string, error) {
	rows, err := s.db.Query("SELECT tag_id FROM item_tags WHERE item_id = ?", itemID)
	if err != nil {
		return nil, fmt.Errorf("store: failed to read item tags: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: failed to scan tag id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: failed to read item tags: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// replaceItemTags rewrites an item's tag links inside the caller's
// transaction. Unknown tag IDs surface as ErrTagNotFound.
func replaceItemTags(tx *sql.Tx, itemID string, tagIDs []string) error {
	if _, err := tx.Exec("DELETE FROM item_tags WHERE item_id = ?", itemID); err != nil {
		return fmt.Errorf("store: failed to clear item tags: %w", err)
	}
	for _, tagID := range tagIDs {
		var exists int
		err := tx.QueryRow("SELECT 1 FROM tags WHERE id = ?", tagID).Scan(&exists)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", ErrTagNotFound, tagID)
		}
		if err != nil {
			return fmt.Errorf("store: failed to check tag: %w", err)
		}
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO item_tags (item_id, tag_id) VALUES (?, ?)",
			itemID, tagID); err != nil {
			return fmt.Errorf("store: failed to link tag: %w", err)
		}
	}
	return nil
}

// checkProjectExists validates an optional project reference inside the
// caller's transaction.
func (s *Store) checkProjectExists(tx *sql.Tx, projectID *string) error {
	if projectID == nil {
		return nil
	}
	var exists int
	err := tx.QueryRow("SELECT 1 FROM projects WHERE id = ?", *projectID).Scan(&exists)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, *projectID)
	}
	if err != nil {
		return fmt.Errorf("store: failed to check project: %w", err)
	}
	return nil
}

// scanItem reads an item row plus its payload blob.
func scanItem(row *sql.Row) (*Item, []byte, error) {
	var it Item
	var typ string
	var fav int
	var blob []byte
	err := row.Scan(&it.ID, &it.Name, &typ, &it.ProjectID, &fav,
		&it.CreatedAt, &it.UpdatedAt, &blob)
	if err != nil {
		return nil, nil, err
	}
	it.Type = ItemType(typ)
	it.IsFavorite = fav != 0
	return &it, blob, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation recognizes a primary-key conflict without depending on
// driver-specific error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
