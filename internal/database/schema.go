// Package database owns the on-disk schema for loomkeep: the base
// tables, the full-text index, and the triggers that keep the two in
// sync. See migrations.go for how the schema below is applied and
// versioned, and database.go for the connection wrapper built on top.
package database

// CoreSchema creates the base relational tables at schema version 1.
// Indexes are created alongside their tables rather than deferred,
// matching the teacher's single-statement-block style.
const CoreSchema = `
CREATE TABLE IF NOT EXISTS memory (
	id                 TEXT PRIMARY KEY,
	content            TEXT NOT NULL,
	category           TEXT NOT NULL DEFAULT 'general',
	session_id         TEXT,
	project_id         TEXT,
	source             TEXT,
	time_created       INTEGER NOT NULL,
	time_updated       INTEGER NOT NULL,
	access_count       INTEGER NOT NULL DEFAULT 0,
	time_last_accessed INTEGER
);

CREATE INDEX IF NOT EXISTS idx_memory_session ON memory(session_id);
CREATE INDEX IF NOT EXISTS idx_memory_category ON memory(category);
CREATE INDEX IF NOT EXISTS idx_memory_project ON memory(project_id);
CREATE INDEX IF NOT EXISTS idx_memory_time_created ON memory(time_created);

CREATE TABLE IF NOT EXISTS memory_tags (
	memory_id TEXT NOT NULL REFERENCES memory(id) ON DELETE CASCADE,
	tag       TEXT NOT NULL,
	PRIMARY KEY (memory_id, tag)
);

CREATE INDEX IF NOT EXISTS idx_memory_tags_tag ON memory_tags(tag);

CREATE TABLE IF NOT EXISTS memory_links (
	source_id    TEXT NOT NULL REFERENCES memory(id) ON DELETE CASCADE,
	target_id    TEXT NOT NULL REFERENCES memory(id) ON DELETE CASCADE,
	relationship TEXT NOT NULL CHECK (relationship IN ('related', 'supersedes', 'contradicts', 'extends')),
	PRIMARY KEY (source_id, target_id)
);

CREATE INDEX IF NOT EXISTS idx_memory_links_target ON memory_links(target_id);
CREATE INDEX IF NOT EXISTS idx_memory_links_relationship ON memory_links(relationship);

CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	time_first_seen INTEGER NOT NULL,
	time_last_seen  INTEGER NOT NULL
);
`

// FTS5Schema creates the external-content full-text index over memory
// and the triggers that keep it synchronized on every write. The
// external-content form (content=memory, content_rowid=rowid) avoids
// duplicating the indexed text on disk, at the cost of needing the
// 'delete' special-command form in the update/delete triggers — the
// same pattern used for multi-column FTS synchronization elsewhere in
// the retrieved corpus.
const FTS5Schema = `
CREATE VIRTUAL TABLE IF NOT EXISTS memory_fts USING fts5(
	content,
	category,
	source,
	content='memory',
	content_rowid='rowid',
	tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS memory_fts_insert AFTER INSERT ON memory BEGIN
	INSERT INTO memory_fts(rowid, content, category, source)
	VALUES (new.rowid, new.content, new.category, new.source);
END;

CREATE TRIGGER IF NOT EXISTS memory_fts_delete AFTER DELETE ON memory BEGIN
	INSERT INTO memory_fts(memory_fts, rowid, content, category, source)
	VALUES ('delete', old.rowid, old.content, old.category, old.source);
END;

CREATE TRIGGER IF NOT EXISTS memory_fts_update AFTER UPDATE ON memory BEGIN
	INSERT INTO memory_fts(memory_fts, rowid, content, category, source)
	VALUES ('delete', old.rowid, old.content, old.category, old.source);
	INSERT INTO memory_fts(rowid, content, category, source)
	VALUES (new.rowid, new.content, new.category, new.source);
END;
`

// RelationshipTypes is the closed vocabulary accepted by memory_links.
var RelationshipTypes = []string{"related", "supersedes", "contradicts", "extends"}

// IsValidRelationshipType reports whether rel is a recognized link type.
func IsValidRelationshipType(rel string) bool {
	for _, r := range RelationshipTypes {
		if r == rel {
			return true
		}
	}
	return false
}

// DefaultCategories is the configured set used when no override is
// supplied via configuration. Unknown category values are still
// accepted on write (spec §3), this list only seeds the default.
var DefaultCategories = []string{
	"decision", "pattern", "debugging", "preference",
	"convention", "discovery", "anti-pattern", "general",
}

// SchemaVersion is the latest schema version this binary knows how to
// migrate to. See migrations.go.
const SchemaVersion = 6
