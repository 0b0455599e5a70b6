package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "github.com/mattn/go-sqlite3"
)

// ErrUnavailable is returned by Exec, Query and Begin (and so by every
// operation built on them) on a handle whose migrations failed at Open;
// QueryRow does not consult it. It is latched for the process lifetime:
// the tool layer's catch-all renders it verbatim as the spec's
// user-visible "database unavailable" message (§7, Init failure).
var ErrUnavailable = errors.New("database unavailable")

// DB is the process-wide singleton database handle described by spec
// §5: a single writer serialized behind the embedded store's own
// locking, plus an advisory file lock that makes a second loomkeep
// process sharing the same path fail fast at Open instead of
// corrupting WAL state.
type DB struct {
	db   *sql.DB
	path string
	lock *flock.Flock
	mu   sync.RWMutex

	initMu     sync.Mutex
	initFailed error
}

// Open creates the parent directory if needed, opens the SQLite file
// with WAL journaling and foreign keys on, acquires the advisory lock,
// and runs migrations. On migration failure the returned error is
// latched: every subsequent Exec, Query or Begin through this handle
// fails the same way without retrying (spec §4.1, §5).
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire database lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("database at %s is already open by another process", path)
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection serializes writers; the WAL still lets
	// concurrent readers proceed against the last committed snapshot.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		lock.Unlock()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	d := &DB{db: sqlDB, path: path, lock: lock}

	if err := runMigrations(sqlDB); err != nil {
		d.initFailed = err
		// The handle is still returned, connection and lock held open:
		// checkInit latches ErrUnavailable on every subsequent call so a
		// long-running server process can report failure from the tool
		// layer instead of never starting.
		return d, fmt.Errorf("init schema: %w", err)
	}

	return d, nil
}

// checkInit returns the latched unavailability error, if any, so every
// operation on a handle that failed migration reports the same failure.
func (d *DB) checkInit() error {
	d.initMu.Lock()
	defer d.initMu.Unlock()
	if d.initFailed != nil {
		return ErrUnavailable
	}
	return nil
}

// Conn exposes the underlying *sql.DB for components that need direct
// query access (store, graph, maintenance). Callers must not call
// SetMaxOpenConns or otherwise alter pool configuration.
func (d *DB) Conn() *sql.DB { return d.db }

// Exec runs a statement under the handle's write lock.
func (d *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	if err := d.checkInit(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db.Exec(query, args...)
}

// Query runs a read query under the handle's read lock.
func (d *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	if err := d.checkInit(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db.Query(query, args...)
}

// QueryRow runs a single-row read query under the handle's read lock.
// It does not check the init-failed latch: on a handle whose migrations
// failed, the row carries whatever error the query itself produces
// (or a result, if the tables it reads exist), not ErrUnavailable.
func (d *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db.QueryRow(query, args...)
}

// Begin starts a transaction. Callers are responsible for Commit or
// Rollback.
func (d *DB) Begin() (*sql.Tx, error) {
	if err := d.checkInit(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db.Begin()
}

// Path returns the filesystem path backing this handle.
func (d *DB) Path() string { return d.path }

// Vacuum reclaims free pages. Called by Maintenance (component F).
func (d *DB) Vacuum() error {
	_, err := d.Exec("VACUUM")
	return err
}

// Optimize runs the full-text engine's optimize command.
func (d *DB) Optimize() error {
	_, err := d.Exec(`INSERT INTO memory_fts(memory_fts) VALUES('optimize')`)
	return err
}

// Checkpoint truncates the write-ahead log. Run on Close after
// PRAGMA optimize, errors swallowed.
func (d *DB) Checkpoint() error {
	_, err := d.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Stats is a coarse snapshot of row counts and database size, used by
// Maintenance's size accounting.
type Stats struct {
	MemoryCount  int
	TagCount     int
	LinkCount    int
	SessionCount int
	SizeBytes    int64
}

// GetStats gathers row counts and on-disk size.
func (d *DB) GetStats() (*Stats, error) {
	s := &Stats{}
	if err := d.QueryRow(`SELECT COUNT(*) FROM memory`).Scan(&s.MemoryCount); err != nil {
		return nil, err
	}
	if err := d.QueryRow(`SELECT COUNT(*) FROM memory_tags`).Scan(&s.TagCount); err != nil {
		return nil, err
	}
	if err := d.QueryRow(`SELECT COUNT(*) FROM memory_links`).Scan(&s.LinkCount); err != nil {
		return nil, err
	}
	if err := d.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&s.SessionCount); err != nil {
		return nil, err
	}
	if info, err := os.Stat(d.path); err == nil {
		s.SizeBytes = info.Size()
	}
	return s, nil
}

// GetMetadata reads a single metadata value, returning ("", false) if
// absent.
func (d *DB) GetMetadata(key string) (string, bool) {
	var value string
	err := d.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", false
	}
	return value, true
}

// SetMetadata upserts a single metadata value.
func (d *DB) SetMetadata(key, value string) error {
	_, err := d.Exec(`INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// EnsureSession upserts a session's last-seen timestamp, used by Store
// on every write (non-fatal on failure per the teacher's pattern).
func (d *DB) EnsureSession(sessionID string, now time.Time) error {
	if sessionID == "" {
		return nil
	}
	ts := now.Unix()
	_, err := d.Exec(`
		INSERT INTO sessions (id, time_first_seen, time_last_seen) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET time_last_seen = excluded.time_last_seen
	`, sessionID, ts, ts)
	return err
}

// Close runs SQLite's built-in optimizer pragma, checkpoints the WAL,
// and releases the advisory lock, swallowing errors from the first two
// (spec §4.1). Idempotent.
func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	d.Exec("PRAGMA optimize")
	d.Checkpoint()
	err := d.db.Close()
	d.db = nil
	if d.lock != nil {
		d.lock.Unlock()
	}
	return err
}
