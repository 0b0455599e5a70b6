// Package graph implements the tag and link operations of spec §4.7,
// replacing the teacher's unimplemented relationship stub. Grounded on
// the teacher's relationship CRUD (CreateRelationship/GetGraph-style
// adjacency queries, since removed from internal/database/operations.go)
// and the memory_tags/memory_links schema in internal/database/schema.go.
package graph

import (
	"fmt"
	"strings"

	"github.com/loomkeep/loomkeep/internal/database"
)

// Graph wraps a database handle with tag and link operations.
type Graph struct {
	db *database.DB
}

// New wires a Graph atop an open database handle.
func New(db *database.DB) *Graph {
	return &Graph{db: db}
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// GetTags returns every tag attached to a memory.
func (g *Graph) GetTags(memoryID string) ([]string, error) {
	rows, err := g.db.Query(`SELECT tag FROM memory_tags WHERE memory_id = ? ORDER BY tag`, memoryID)
	if err != nil {
		return nil, fmt.Errorf("get tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// AddTags idempotently attaches tags to a memory (spec §4.7 add([tags])).
func (g *Graph) AddTags(memoryID string, tags []string) error {
	tx, err := g.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, tag := range tags {
		n := normalizeTag(tag)
		if n == "" {
			continue
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO memory_tags (memory_id, tag) VALUES (?, ?)`, memoryID, n); err != nil {
			return fmt.Errorf("add tag %q: %w", n, err)
		}
	}
	return tx.Commit()
}

// RemoveTags detaches the given tags from a memory.
func (g *Graph) RemoveTags(memoryID string, tags []string) error {
	tx, err := g.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, tag := range tags {
		n := normalizeTag(tag)
		if _, err := tx.Exec(`DELETE FROM memory_tags WHERE memory_id = ? AND tag = ?`, memoryID, n); err != nil {
			return fmt.Errorf("remove tag %q: %w", n, err)
		}
	}
	return tx.Commit()
}

// SetTags clears the existing tag set and replaces it wholesale
// (spec §4.7 set([tags])).
func (g *Graph) SetTags(memoryID string, tags []string) error {
	tx, err := g.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM memory_tags WHERE memory_id = ?`, memoryID); err != nil {
		return err
	}
	for _, tag := range tags {
		n := normalizeTag(tag)
		if n == "" {
			continue
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO memory_tags (memory_id, tag) VALUES (?, ?)`, memoryID, n); err != nil {
			return fmt.Errorf("set tag %q: %w", n, err)
		}
	}
	return tx.Commit()
}

// TagCount pairs a tag with how many memories carry it.
type TagCount struct {
	Tag   string
	Count int
}

// ListAllTags returns every distinct tag ordered by usage (spec §4.7
// listAll()).
func (g *Graph) ListAllTags() ([]TagCount, error) {
	rows, err := g.db.Query(`SELECT tag, COUNT(*) as c FROM memory_tags GROUP BY tag ORDER BY c DESC, tag ASC`)
	if err != nil {
		return nil, fmt.Errorf("list all tags: %w", err)
	}
	defer rows.Close()

	var out []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// SearchByTagOptions filters searchByTag (spec §4.7).
type SearchByTagOptions struct {
	ProjectID string
	Limit     int
}

// SearchByTag returns memory ids carrying the given tag, newest first.
func (g *Graph) SearchByTag(tag string, opts SearchByTagOptions) ([]string, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT m.id FROM memory m
		JOIN memory_tags t ON t.memory_id = m.id
		WHERE t.tag = ?`
	args := []interface{}{normalizeTag(tag)}

	if opts.ProjectID != "" {
		query += " AND (m.project_id = ? OR m.project_id IS NULL)"
		args = append(args, opts.ProjectID)
	}
	query += " ORDER BY m.time_created DESC LIMIT ?"
	args = append(args, limit)

	rows, err := g.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("search by tag: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Link is one edge in the memory link graph, with the other endpoint
// materialized and directionality preserved (spec §4.7).
type Link struct {
	OtherID      string
	Relationship string
	// Outgoing is true when the memory queried was the source of this
	// edge, false when it was the target.
	Outgoing bool
}

// AddLink upserts an edge between source and target. Returns false if
// either id is unknown, source==target, or rel is not an allowed
// relationship type (spec §4.7 add(source, target, rel)).
func (g *Graph) AddLink(source, target, rel string) (bool, error) {
	if source == target {
		return false, nil
	}
	if !database.IsValidRelationshipType(rel) {
		return false, nil
	}

	for _, id := range []string{source, target} {
		var exists int
		if err := g.db.QueryRow(`SELECT COUNT(*) FROM memory WHERE id = ?`, id).Scan(&exists); err != nil {
			return false, err
		}
		if exists == 0 {
			return false, nil
		}
	}

	_, err := g.db.Exec(`
		INSERT INTO memory_links (source_id, target_id, relationship)
		VALUES (?, ?, ?)
		ON CONFLICT(source_id, target_id) DO UPDATE SET relationship = excluded.relationship`,
		source, target, rel)
	if err != nil {
		return false, fmt.Errorf("add link: %w", err)
	}
	return true, nil
}

// RemoveLink removes the edge between source and target, if any.
func (g *Graph) RemoveLink(source, target string) error {
	_, err := g.db.Exec(`DELETE FROM memory_links WHERE source_id = ? AND target_id = ?`, source, target)
	if err != nil {
		return fmt.Errorf("remove link: %w", err)
	}
	return nil
}

// ListLinks returns every edge touching memoryID in either direction
// (spec §4.7 list(memoryId)).
func (g *Graph) ListLinks(memoryID string) ([]Link, error) {
	rows, err := g.db.Query(`
		SELECT target_id, relationship, 1 FROM memory_links WHERE source_id = ?
		UNION ALL
		SELECT source_id, relationship, 0 FROM memory_links WHERE target_id = ?`,
		memoryID, memoryID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var l Link
		var outgoing int
		if err := rows.Scan(&l.OtherID, &l.Relationship, &outgoing); err != nil {
			return nil, err
		}
		l.Outgoing = outgoing == 1
		links = append(links, l)
	}
	return links, rows.Err()
}
