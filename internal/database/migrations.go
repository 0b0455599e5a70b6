package database

import (
	"database/sql"
	"fmt"

	"github.com/loomkeep/loomkeep/internal/logging"
)

var log = logging.GetLogger("database")

// migration is one forward step of the schema. up runs inside its own
// transaction; failure aborts the whole Open call and latches the
// database as init-failed (see database.go).
type migration struct {
	version     int
	description string
	up          func(tx *sql.Tx) error
}

// migrations lists every step in order. Versions 1-2 establish the
// base schema (including the access-tracking columns) and the
// full-text index (schema.go); versions 3-6 backfill the full-text
// index, ensure the links, metadata and session tables exist, and add
// the composite (project_id, category) index used by scoped queries.
var migrations = []migration{
	{
		version:     1,
		description: "base memory table and tag table",
		up: func(tx *sql.Tx) error {
			_, err := tx.Exec(CoreSchema)
			return err
		},
	},
	{
		version:     2,
		description: "full-text index and sync triggers",
		up: func(tx *sql.Tx) error {
			_, err := tx.Exec(FTS5Schema)
			return err
		},
	},
	{
		version:     3,
		description: "backfill full-text index for any pre-existing rows",
		up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				INSERT INTO memory_fts(rowid, content, category, source)
				SELECT rowid, content, category, source FROM memory
				WHERE rowid NOT IN (SELECT rowid FROM memory_fts)
			`)
			return err
		},
	},
	{
		version:     4,
		description: "memory_links relationship graph",
		up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS memory_links (
					source_id    TEXT NOT NULL REFERENCES memory(id) ON DELETE CASCADE,
					target_id    TEXT NOT NULL REFERENCES memory(id) ON DELETE CASCADE,
					relationship TEXT NOT NULL CHECK (relationship IN ('related', 'supersedes', 'contradicts', 'extends')),
					PRIMARY KEY (source_id, target_id)
				);
				CREATE INDEX IF NOT EXISTS idx_memory_links_target ON memory_links(target_id);
				CREATE INDEX IF NOT EXISTS idx_memory_links_relationship ON memory_links(relationship);
			`)
			return err
		},
	},
	{
		version:     5,
		description: "metadata key-value table and session tracking",
		up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS metadata (
					key   TEXT PRIMARY KEY,
					value TEXT NOT NULL
				);
				CREATE TABLE IF NOT EXISTS sessions (
					id              TEXT PRIMARY KEY,
					time_first_seen INTEGER NOT NULL,
					time_last_seen  INTEGER NOT NULL
				);
			`)
			return err
		},
	},
	{
		version:     6,
		description: "composite index for scoped ranking queries",
		up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE INDEX IF NOT EXISTS idx_memory_project_category ON memory(project_id, category);
			`)
			return err
		},
	},
}

// runMigrations applies every migration with version greater than the
// currently recorded one, each in its own transaction. Forward-only:
// there is no down path, matching spec §4.1.
func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS _migrations (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	current := 0
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM _migrations`)
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("read current schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}

		if err := m.up(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.version, m.description, err)
		}

		if _, err := tx.Exec(
			`INSERT INTO _migrations (version, description, applied_at) VALUES (?, ?, strftime('%s','now'))`,
			m.version, m.description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}

		log.Info("migration applied", "version", m.version, "description", m.description)
	}

	return nil
}

// MigrationRecord mirrors one row of _migrations for callers that want
// to inspect applied history (e.g. a "doctor" CLI check).
type MigrationRecord struct {
	Version     int
	Description string
	AppliedAt   int64
}

// Migrations returns the applied migration history ordered by version.
func (d *DB) Migrations() ([]MigrationRecord, error) {
	rows, err := d.db.Query(`SELECT version, description, applied_at FROM _migrations ORDER BY version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MigrationRecord
	for rows.Next() {
		var r MigrationRecord
		if err := rows.Scan(&r.Version, &r.Description, &r.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
