// Package sqlitetest opens migrated throwaway databases for tests.
package sqlitetest

import (
	"context"
	"path/filepath"
	"testing"

	"repairdesk/infrastructure/sqlite"
)

// Open returns a database in t.TempDir() at the latest schema version,
// closed when the test ends.
func Open(t testing.TB) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}
