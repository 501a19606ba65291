package db

import (
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

// migrations is the list of all migrations in order
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_document_tables",
		Up:      migrationV1,
	},
	{
		Version: 2,
		Name:    "add_activity_logs",
		Up:      migrationV2,
	},
	{
		Version: 3,
		Name:    "add_doc_name_index",
		Up:      migrationV3,
	},
}

// RunMigrations executes all pending migrations
func RunMigrations(conn *sql.DB) error {
	// Create schema_version table if it doesn't exist
	if _, err := conn.Exec(schemaVersionSQL); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	// Get current schema version
	var currentVersion int
	err := conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	// Run pending migrations
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		// Record migration
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// CurrentVersion returns the highest applied migration.
func CurrentVersion(conn *sql.DB) (int, error) {
	var v int
	err := conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("failed to get current schema version: %w", err)
	}
	return v, nil
}

// LatestVersion returns the schema version this binary migrates to.
func LatestVersion() int {
	return migrations[len(migrations)-1].Version
}

// migrationV1 creates the document, attachment and change tables
func migrationV1(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			rev TEXT NOT NULL,
			type TEXT NOT NULL CHECK(type IN ('project', 'installation')),
			doc_name TEXT,
			body TEXT NOT NULL,
			deleted INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(type, deleted);
		CREATE TABLE IF NOT EXISTS attachments (
			doc_id TEXT NOT NULL,
			name TEXT NOT NULL,
			content_type TEXT NOT NULL,
			digest TEXT NOT NULL,
			length INTEGER NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (doc_id, name),
			FOREIGN KEY (doc_id) REFERENCES documents(id) ON DELETE CASCADE
		);
		CREATE TABLE IF NOT EXISTS changes (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			doc_id TEXT NOT NULL,
			rev TEXT NOT NULL,
			deleted INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_changes_doc ON changes(doc_id, seq);
	`)
	return err
}

// migrationV2 adds the activity log
func migrationV2(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS activity_logs (
			id TEXT PRIMARY KEY,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
			actor_id TEXT,
			doc_type TEXT NOT NULL,
			doc_id TEXT NOT NULL,
			project_id TEXT,
			action TEXT NOT NULL CHECK(action IN ('create', 'update', 'delete')),
			field_name TEXT,
			old_value TEXT,
			new_value TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_activity_logs_doc ON activity_logs(doc_id);
		CREATE INDEX IF NOT EXISTS idx_activity_logs_timestamp ON activity_logs(timestamp);
	`)
	return err
}

// migrationV3 indexes project names for uniqueness checks
func migrationV3(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_documents_doc_name ON documents(type, doc_name)`)
	return err
}
