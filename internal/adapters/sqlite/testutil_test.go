// Package sqlite_test contains integration tests for SQLite repositories.
//
// # Schema Protection
//
// This file is the SINGLE POINT where the database schema is loaded for tests.
// All test setup functions use db.GetSchemaSQL() to ensure tests run against
// the authoritative schema, preventing drift between test and production.
//
// DO NOT hardcode CREATE TABLE statements in test files. Instead, use
// setupTestDB() and the seed* helpers.
package sqlite_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/fieldstore/internal/db"
	"github.com/example/fieldstore/internal/models"
)

// setupTestDB creates an in-memory database with the authoritative schema.
// This is the single shared test database setup function for all repository tests.
// Uses db.GetSchemaSQL() to prevent test schemas from drifting.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	// Every connection to ":memory:" is a separate database.
	testDB.SetMaxOpenConns(1)

	// Use the authoritative schema from schema.go
	_, err = testDB.Exec(db.GetSchemaSQL())
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		testDB.Close()
	})

	return testDB
}

// newProjectDoc returns an unsaved project document.
func newProjectDoc(id, name string) *models.Document {
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	return &models.Document{
		ID:   id,
		Type: models.DocTypeProject,
		Data: map[string]any{},
		Metadata: models.Metadata{
			DocName:        name,
			CreatedAt:      now,
			LastModifiedAt: now,
		},
		Children: []string{},
	}
}

// newInstallationDoc returns an unsaved installation document.
func newInstallationDoc(id, name, template string) *models.Document {
	doc := newProjectDoc(id, name)
	doc.Type = models.DocTypeInstallation
	doc.Metadata.TemplateName = template
	return doc
}

// seedDocument writes doc and returns its new revision.
func seedDocument(t *testing.T, put func(context.Context, *models.Document) (models.PutResult, error), doc *models.Document) string {
	t.Helper()
	res, err := put(context.Background(), doc)
	if err != nil {
		t.Fatalf("failed to seed document %s: %v", doc.ID, err)
	}
	doc.Rev = res.Rev
	return res.Rev
}
