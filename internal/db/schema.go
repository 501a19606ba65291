package db

import (
	"database/sql"
	"fmt"
)

// SchemaSQL is the complete schema for fresh installs.
// This schema reflects the current state after all migrations.
//
// This is the SINGLE SOURCE OF TRUTH for the database schema. All tests use
// this schema via GetSchemaSQL(); tests must not hardcode CREATE TABLE
// statements.
//
// When adding new columns or tables:
//  1. Add a migration in migrations.go
//  2. Update SchemaSQL here
const SchemaSQL = `
-- Documents (projects and installations). body holds data_, metadata_ and
-- children as JSON; deleted rows are tombstones that keep the last revision.
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
CREATE INDEX IF NOT EXISTS idx_documents_doc_name ON documents(type, doc_name);

-- Binary attachments, stored inline per document
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

-- Change log feeding live subscriptions
CREATE TABLE IF NOT EXISTS changes (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	doc_id TEXT NOT NULL,
	rev TEXT NOT NULL,
	deleted INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_changes_doc ON changes(doc_id, seq);

-- Activity log (audit trail)
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
`

const schemaVersionSQL = `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)
`

// InitSchema creates the schema on a fresh database and runs pending
// migrations on an existing one.
func InitSchema(conn *sql.DB) error {
	// Check if schema_version table exists to determine if this is a fresh install
	var tableCount int
	err := conn.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableCount)
	if err != nil {
		return err
	}

	if tableCount > 0 {
		return RunMigrations(conn)
	}

	// Fresh install - create the schema directly and mark every migration
	// as applied
	if _, err := conn.Exec(SchemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if _, err := conn.Exec(schemaVersionSQL); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}
	for _, m := range migrations {
		if _, err := conn.Exec("INSERT INTO schema_version (version) VALUES (?)", m.Version); err != nil {
			return err
		}
	}
	return nil
}

// GetSchemaSQL returns the authoritative schema SQL for use by tests.
// Tests should use this instead of hardcoding their own schema to prevent drift.
func GetSchemaSQL() string {
	return SchemaSQL
}
