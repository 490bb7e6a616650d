package database

import (
	"path/filepath"
	"testing"
)

// NewTestDB returns a freshly migrated database under t.TempDir. It is
// closed during test cleanup.
func NewTestDB(t testing.TB) *DB {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "bridge.db"))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
