package store

import (
	"database/sql"
	"fmt"
)

// Schema version constants.
const (
	// SchemaVersion1 is the base schema: projects, tags, items, item_tags.
	SchemaVersion1 = 1
	// SchemaVersion2 adds the plaintext is_favorite column to items.
	SchemaVersion2 = 2
	// CurrentSchemaVersion is the version new databases are created at.
	CurrentSchemaVersion = SchemaVersion2
)

// migrateSchema brings the database to CurrentSchemaVersion. Each migration
// is additive and idempotent, so re-running on an up-to-date database is
// harmless.
func migrateSchema(db *sql.DB) error {
	version, err := getSchemaVersion(db)
	if err != nil {
		return err
	}

	if version < SchemaVersion1 {
		if err := migrateToV1(db); err != nil {
			return fmt.Errorf("store: migration to v1 failed: %w", err)
		}
	}
	if version < SchemaVersion2 {
		if err := migrateToV2(db); err != nil {
			return fmt.Errorf("store: migration to v2 failed: %w", err)
		}
	}

	return nil
}

// getSchemaVersion reads the stored schema version from the settings table.
// Returns 0 for a fresh database.
func getSchemaVersion(db *sql.DB) (int, error) {
	var tableName string
	err := db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='settings'
	`).Scan(&tableName)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: failed to check settings table: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT value FROM settings WHERE key = 'schema_version'").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: failed to read schema version: %w", err)
	}
	return version, nil
}

// setSchemaVersion records the schema version in the settings table.
func setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create settings table: %w", err)
	}
	_, err = tx.Exec(`
		INSERT OR REPLACE INTO settings (key, value) VALUES ('schema_version', ?)
	`, version)
	if err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

// migrateToV1 creates the base schema.
func migrateToV1(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			icon TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create projects table: %w", err)
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS tags (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			color TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create tags table: %w", err)
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			project_id TEXT REFERENCES projects(id) ON DELETE SET NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			encrypted_payload BLOB NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create items table: %w", err)
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS item_tags (
			item_id TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
			tag_id TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
			PRIMARY KEY (item_id, tag_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create item_tags table: %w", err)
	}

	_, err = tx.Exec("CREATE INDEX IF NOT EXISTS idx_items_project ON items(project_id)")
	if err != nil {
		return fmt.Errorf("failed to create idx_items_project: %w", err)
	}
	_, err = tx.Exec("CREATE INDEX IF NOT EXISTS idx_items_type ON items(type)")
	if err != nil {
		return fmt.Errorf("failed to create idx_items_type: %w", err)
	}

	if err := setSchemaVersion(tx, SchemaVersion1); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

// migrateToV2 adds the is_favorite column with a default, so existing rows
// stay valid without rewriting them.
func migrateToV2(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	columns, err := getTableColumns(tx, "items")
	if err != nil {
		return fmt.Errorf("failed to get items columns: %w", err)
	}
	if !columns["is_favorite"] {
		_, err = tx.Exec("ALTER TABLE items ADD COLUMN is_favorite INTEGER NOT NULL DEFAULT 0")
		if err != nil {
			return fmt.Errorf("failed to add is_favorite column: %w", err)
		}
	}

	if err := setSchemaVersion(tx, SchemaVersion2); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

// getTableColumns returns the set of column names for a table.
func getTableColumns(tx *sql.Tx, tableName string) (map[string]bool, error) {
	rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		columns[name] = true
	}
	return columns, rows.Err()
}
