package db

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
)

// OpenTestDB opens a SQLite database in t.TempDir(), runs all migrations and
// registers cleanup.
func OpenTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.sqlite")
	db, err := New(DriverSQLite, path+"?_busy_timeout=5000", 1, 1, "15m")
	if err != nil {
		t.Fatalf("open test sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := Migrate(db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return db
}
