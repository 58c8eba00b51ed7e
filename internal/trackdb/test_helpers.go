package trackdb

import (
	"path/filepath"
	"testing"
)

// newTestDB opens a migrated database in a per-test temp directory.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracklet_test.db")
	db, err := NewDB(path)
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
