package testutil

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

// CreateInMemoryDB creates an empty in-memory SQLite database.
// It is limited to one connection so every query sees the same database.
func CreateInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// CreateLegacyDB creates an in-memory database with a table the event store
// does not know about, for inspect and migration tests
func CreateLegacyDB(t *testing.T) *sql.DB {
	t.Helper()
	db := CreateInMemoryDB(t)
	if _, err := db.Exec(`CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT)`); err != nil {
		t.Fatalf("Failed to create notes table: %v", err)
	}
	stmt, err := db.Prepare("INSERT INTO notes (body) VALUES (?)")
	if err != nil {
		t.Fatalf("Failed to prepare insert statement: %v", err)
	}
	defer stmt.Close()
	for _, body := range []string{"first", "second", "third"} {
		if _, err := stmt.Exec(body); err != nil {
			t.Fatalf("Failed to insert note: %v", err)
		}
	}
	return db
}
