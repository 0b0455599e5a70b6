package testutil

import "testing"

func TestOpenTestDBIsMigratedAndUsable(t *testing.T) {
	db := OpenTestDB(t)

	if err := db.Conn().Ping(); err != nil {
		t.Fatalf("ping failed: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM memory`).Scan(&count); err != nil {
		t.Fatalf("expected migrations to have created the memory table: %v", err)
	}
	if count != 0 {
		t.Errorf("expected an empty memory table, got %d rows", count)
	}
}

func TestOpenTestDBReportsPathInSubtest(t *testing.T) {
	var path string
	t.Run("inner", func(t *testing.T) {
		db := OpenTestDB(t)
		path = db.Path()
	})
	if path == "" {
		t.Fatal("expected OpenTestDB to report a path")
	}
}
