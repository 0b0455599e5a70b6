package maintenance

import (
	"testing"
	"time"

	"github.com/loomkeep/loomkeep/internal/database"
	"github.com/loomkeep/loomkeep/internal/testutil"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	return testutil.OpenTestDB(t)
}

func insertMemory(t *testing.T, db *database.DB, id string, createdAt time.Time, accessCount int) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO memory (id, content, category, time_created, time_updated, access_count) VALUES (?, ?, 'fact', ?, ?, ?)`,
		id, "memory "+id, createdAt.Unix(), createdAt.Unix(), accessCount,
	)
	if err != nil {
		t.Fatalf("insert memory: %v", err)
	}
}

func TestPurgeRemovesOldUnaccessedMemories(t *testing.T) {
	db := newTestDB(t)
	insertMemory(t, db, "old", time.Now().AddDate(0, 0, -100), 0)
	insertMemory(t, db, "recent", time.Now(), 0)

	m := New(db, 0)
	count, err := m.Purge(30)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if count != 1 {
		t.Errorf("Purge removed %d rows, want 1", count)
	}

	var remaining int
	db.QueryRow(`SELECT COUNT(*) FROM memory`).Scan(&remaining)
	if remaining != 1 {
		t.Errorf("remaining rows = %d, want 1", remaining)
	}
}

func TestPurgeSparesAccessedMemories(t *testing.T) {
	db := newTestDB(t)
	insertMemory(t, db, "old-but-used", time.Now().AddDate(0, 0, -100), 3)

	m := New(db, 0)
	count, err := m.Purge(30)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if count != 0 {
		t.Errorf("Purge removed %d accessed rows, want 0", count)
	}
}

func TestEnforceCapDeletesLeastValuableRows(t *testing.T) {
	db := newTestDB(t)
	insertMemory(t, db, "low-value", time.Now().AddDate(0, 0, -5), 0)
	insertMemory(t, db, "high-value", time.Now(), 10)

	m := New(db, 1)
	count, err := m.EnforceCap()
	if err != nil {
		t.Fatalf("EnforceCap: %v", err)
	}
	if count != 1 {
		t.Fatalf("EnforceCap removed %d rows, want 1", count)
	}

	var remainingID string
	if err := db.QueryRow(`SELECT id FROM memory`).Scan(&remainingID); err != nil {
		t.Fatalf("query remaining: %v", err)
	}
	if remainingID != "high-value" {
		t.Errorf("remaining row = %q, want high-value", remainingID)
	}
}

func TestEnforceCapNoopWhenUnderCap(t *testing.T) {
	db := newTestDB(t)
	insertMemory(t, db, "only-one", time.Now(), 0)

	m := New(db, 10)
	count, err := m.EnforceCap()
	if err != nil {
		t.Fatalf("EnforceCap: %v", err)
	}
	if count != 0 {
		t.Errorf("EnforceCap removed %d rows under cap, want 0", count)
	}
}

func TestEnforceCapDisabledWhenZero(t *testing.T) {
	db := newTestDB(t)
	insertMemory(t, db, "a", time.Now(), 0)
	insertMemory(t, db, "b", time.Now(), 0)

	m := New(db, 0)
	count, err := m.EnforceCap()
	if err != nil {
		t.Fatalf("EnforceCap: %v", err)
	}
	if count != 0 {
		t.Errorf("expected cap enforcement disabled, removed %d", count)
	}
}

func TestMaybeRunSkipsWithinInterval(t *testing.T) {
	db := newTestDB(t)
	m := New(db, 0)

	_, ran := m.MaybeRun(0)
	if !ran {
		t.Fatal("expected first MaybeRun to execute")
	}

	_, ranAgain := m.MaybeRun(0)
	if ranAgain {
		t.Error("expected second MaybeRun within interval to be skipped")
	}
}

func TestRunCompletesWithoutStepErrors(t *testing.T) {
	db := newTestDB(t)
	insertMemory(t, db, "a", time.Now(), 0)

	m := New(db, 0)
	report := m.Run(0)

	if report.OptimizeError != "" {
		t.Errorf("unexpected optimize error: %s", report.OptimizeError)
	}
	if report.SizeBytes <= 0 {
		t.Error("expected a positive database size")
	}
}
