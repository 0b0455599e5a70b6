// Package testutil collects the setup boilerplate shared by the memory
// engine's package-level tests: every component test opens its own
// migrated, temp-file-backed database and wants it closed when the test
// ends.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/loomkeep/loomkeep/internal/database"
)

// OpenTestDB opens a fresh, fully migrated database under t.TempDir()
// and registers its Close for test cleanup.
func OpenTestDB(t *testing.T) *database.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "loomkeep.db")
	db, err := database.Open(path)
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
