// Package store implements the Memory entity store (component B of
// spec §4.2): insert, update, delete, get, list, stats, refresh, and
// the keyword search pathway that chains the Query Normalizer (C) and
// Ranker (D) together. Grounded on the teacher's
// internal/database/operations.go (dynamic SET/WHERE builders,
// nullString helper, BM25 normalization) and internal/memory/service.go
// (validation/enrichment flow).
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loomkeep/loomkeep/internal/database"
	"github.com/loomkeep/loomkeep/internal/dedup"
	"github.com/loomkeep/loomkeep/internal/logging"
	"github.com/loomkeep/loomkeep/internal/querynorm"
	"github.com/loomkeep/loomkeep/internal/ranker"
)

var log = logging.GetLogger("store")

// MaxContentLength is the spec §3 hard limit on Memory.content.
const MaxContentLength = 10000

// Memory is the atomic stored fact (spec §3).
type Memory struct {
	ID               string
	Content          string
	Category         string
	SessionID        string
	ProjectID        *string
	Source           string
	TimeCreated      time.Time
	TimeUpdated      time.Time
	AccessCount      int
	TimeLastAccessed *time.Time
	Tags             []string
}

// Store wraps a database handle with the Memory CRUD contract and a
// deduplicator for insert-time duplicate suppression.
type Store struct {
	db    *database.DB
	dedup *dedup.Deduplicator
}

// New wires a Store atop an open database handle.
func New(db *database.DB) *Store {
	return &Store{db: db, dedup: dedup.New(db)}
}

// InsertInput carries the fields a caller supplies to Insert; Force
// bypasses deduplication (used by the file knowledge cache upsert,
// spec §4.8).
type InsertInput struct {
	Content   string
	Category  string
	SessionID string
	ProjectID *string
	Source    string
	Tags      []string
	Force     bool
}

// Insert implements spec §4.2's insert operation, including the
// exact/near-duplicate short-circuit of §4.5.
func (s *Store) Insert(in InsertInput) (*Memory, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, fmt.Errorf("content is required")
	}
	if len(content) > MaxContentLength {
		return nil, fmt.Errorf("content exceeds maximum length of %d characters", MaxContentLength)
	}

	category := in.Category
	if category == "" {
		category = "general"
	}

	if !in.Force {
		result, err := s.dedup.Check(content, in.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("dedup check: %w", err)
		}
		if result.Exact {
			return s.Get(result.MemoryID)
		}
		if result.Near {
			updated := content
			patch := Patch{Content: &updated}
			if in.Category != "" {
				patch.Category = &category
			}
			if in.Source != "" {
				patch.Source = &in.Source
			}
			return s.Update(result.MemoryID, patch)
		}
	}

	now := time.Now()
	m := &Memory{
		ID:          uuid.NewString(),
		Content:     content,
		Category:    category,
		SessionID:   in.SessionID,
		ProjectID:   in.ProjectID,
		Source:      in.Source,
		TimeCreated: now,
		TimeUpdated: now,
		Tags:        normalizeTags(in.Tags),
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin insert transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO memory (id, content, category, session_id, project_id, source, time_created, time_updated, access_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		m.ID, m.Content, m.Category, nullString(m.SessionID), m.ProjectID, nullString(m.Source),
		m.TimeCreated.Unix(), m.TimeUpdated.Unix(),
	); err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}

	for _, tag := range m.Tags {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO memory_tags (memory_id, tag) VALUES (?, ?)`, m.ID, tag); err != nil {
			return nil, fmt.Errorf("insert tag: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert: %w", err)
	}

	if m.SessionID != "" {
		if err := s.db.EnsureSession(m.SessionID, now); err != nil {
			log.Warn("failed to track session", "session_id", m.SessionID, "error", err)
		}
	}

	return m, nil
}

// Patch carries optional fields for Update; nil means "leave unchanged".
type Patch struct {
	Content  *string
	Category *string
	Source   *string
	Tags     []string // nil means unchanged; non-nil replaces the tag set
}

// Update implements spec §4.2's update operation: only supplied fields
// change, time_updated always bumps. Returns nil, nil if id is unknown.
func (s *Store) Update(id string, patch Patch) (*Memory, error) {
	existing, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	var sets []string
	var args []interface{}

	if patch.Content != nil {
		trimmed := strings.TrimSpace(*patch.Content)
		if trimmed == "" {
			return nil, fmt.Errorf("content cannot be empty")
		}
		if len(trimmed) > MaxContentLength {
			return nil, fmt.Errorf("content exceeds maximum length of %d characters", MaxContentLength)
		}
		sets = append(sets, "content = ?")
		args = append(args, trimmed)
	}
	if patch.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *patch.Category)
	}
	if patch.Source != nil {
		sets = append(sets, "source = ?")
		args = append(args, nullString(*patch.Source))
	}

	sets = append(sets, "time_updated = ?")
	args = append(args, time.Now().Unix())
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE memory SET %s WHERE id = ?`, strings.Join(sets, ", "))
	result, err := s.db.Exec(query, args...)
	if err != nil {
		return nil, fmt.Errorf("update memory: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return nil, nil
	}

	if patch.Tags != nil {
		if err := s.replaceTags(id, normalizeTags(patch.Tags)); err != nil {
			return nil, err
		}
	}

	return s.Get(id)
}

func (s *Store) replaceTags(id string, tags []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM memory_tags WHERE memory_id = ?`, id); err != nil {
		return err
	}
	for _, tag := range tags {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO memory_tags (memory_id, tag) VALUES (?, ?)`, id, tag); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Delete removes a memory; cascading FKs remove its tags and links
// (spec §3 invariant 1). Returns whether a row was removed.
func (s *Store) Delete(id string) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM memory WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete memory: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Get fetches a single memory by id, returning (nil, nil) if unknown.
func (s *Store) Get(id string) (*Memory, error) {
	row := s.db.QueryRow(`
		SELECT id, content, category, session_id, project_id, source,
		       time_created, time_updated, access_count, time_last_accessed
		FROM memory WHERE id = ?`, id)

	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	m.Tags, err = s.tagsFor(id)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Scope controls how List filters by project, per spec §4.2.
type Scope string

const (
	ScopeProject Scope = "project"
	ScopeGlobal  Scope = "global"
	ScopeAll     Scope = "all"
)

// ListFilters carries the optional filters for List.
type ListFilters struct {
	Category  string
	ProjectID string
	SessionID string
	Scope     Scope
	Limit     int
}

// List implements spec §4.2's list operation and scope semantics.
func (s *Store) List(f ListFilters) ([]*Memory, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}

	var where []string
	var args []interface{}

	switch f.Scope {
	case ScopeGlobal:
		where = append(where, "project_id IS NULL")
	case ScopeAll:
		if f.ProjectID != "" {
			where = append(where, "(project_id = ? OR project_id IS NULL)")
			args = append(args, f.ProjectID)
		}
	default: // ScopeProject or unset
		if f.ProjectID != "" {
			where = append(where, "project_id = ?")
			args = append(args, f.ProjectID)
		}
	}

	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	}

	query := "SELECT id, content, category, session_id, project_id, source, time_created, time_updated, access_count, time_last_accessed FROM memory"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY time_created DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var out []*Memory
	for rows.Next() {
		m, err := scanMemoryRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, m := range out {
		m.Tags, err = s.tagsFor(m.ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Stats implements spec §4.2's stats operation.
type Stats struct {
	Total      int
	ByCategory map[string]int
}

// GetStats returns memory counts overall and per category.
func (s *Store) GetStats() (*Stats, error) {
	st := &Stats{ByCategory: make(map[string]int)}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM memory`).Scan(&st.Total); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT category, COUNT(*) FROM memory GROUP BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var cat string
		var count int
		if err := rows.Scan(&cat, &count); err != nil {
			return nil, err
		}
		st.ByCategory[cat] = count
	}
	return st, rows.Err()
}

// Refresh implements spec §4.2's refresh operation: +5 access_count,
// stamp time_last_accessed. Returns (nil, nil) if id is unknown.
func (s *Store) Refresh(id string) (*Memory, error) {
	now := time.Now().Unix()
	result, err := s.db.Exec(
		`UPDATE memory SET access_count = access_count + 5, time_last_accessed = ? WHERE id = ?`,
		now, id,
	)
	if err != nil {
		return nil, fmt.Errorf("refresh memory: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return nil, nil
	}
	return s.Get(id)
}

// SearchOptions carries the parameters for the keyword search pathway
// (spec §2 control flow: Query Normalizer -> full-text query -> Ranker).
type SearchOptions struct {
	Query     string
	ProjectID string
	Scope     Scope
	Category  string
	Limit     int
}

// SearchResult pairs a Memory with its final rank.
type SearchResult struct {
	Memory    *Memory
	Relevance float64
}

// Search normalizes the query, runs it against the full-text index
// overfetched per ranker.OverfetchLimit, re-ranks with time decay and
// access boost, and bumps access_count/time_last_accessed on every
// returned row (spec §4.4 step 5). A malformed full-text query yields
// an empty result set rather than an error (spec §4.4, §7).
func (s *Store) Search(opts SearchOptions) ([]SearchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	normalized := querynorm.Normalize(opts.Query)
	if normalized == "" {
		return nil, nil
	}

	var where []string
	args := []interface{}{normalized}

	switch opts.Scope {
	case ScopeGlobal:
		where = append(where, "m.project_id IS NULL")
	case ScopeAll:
		if opts.ProjectID != "" {
			where = append(where, "(m.project_id = ? OR m.project_id IS NULL)")
			args = append(args, opts.ProjectID)
		}
	default:
		if opts.ProjectID != "" {
			where = append(where, "m.project_id = ?")
			args = append(args, opts.ProjectID)
		}
	}
	if opts.Category != "" {
		where = append(where, "m.category = ?")
		args = append(args, opts.Category)
	}

	query := `
		SELECT m.id, m.content, m.category, m.session_id, m.project_id, m.source,
		       m.time_created, m.time_updated, m.access_count, m.time_last_accessed,
		       bm25(memory_fts) as rank
		FROM memory_fts
		JOIN memory m ON m.rowid = memory_fts.rowid
		WHERE memory_fts MATCH ?`
	if len(where) > 0 {
		query += " AND " + strings.Join(where, " AND ")
	}
	query += " ORDER BY rank LIMIT ?"
	args = append(args, ranker.OverfetchLimit(limit))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		log.Warn("full-text search failed, returning empty result", "query", normalized, "error", err)
		return nil, nil
	}
	defer rows.Close()

	var memories []*Memory
	var candidates []ranker.Candidate
	order := 0
	for rows.Next() {
		var m Memory
		var sessionID, source, projectID sql.NullString
		var lastAccessed sql.NullInt64
		var createdUnix, updatedUnix int64
		var baseRank float64

		if err := rows.Scan(&m.ID, &m.Content, &m.Category, &sessionID, &projectID, &source,
			&createdUnix, &updatedUnix, &m.AccessCount, &lastAccessed, &baseRank); err != nil {
			return nil, err
		}
		m.SessionID = sessionID.String
		m.Source = source.String
		if projectID.Valid {
			pid := projectID.String
			m.ProjectID = &pid
		}
		m.TimeCreated = time.Unix(createdUnix, 0)
		m.TimeUpdated = time.Unix(updatedUnix, 0)
		if lastAccessed.Valid {
			t := time.Unix(lastAccessed.Int64, 0)
			m.TimeLastAccessed = &t
		}

		memories = append(memories, &m)
		candidates = append(candidates, ranker.Candidate{
			ID: m.ID, BaseRank: baseRank, TimeCreated: m.TimeCreated,
			AccessCount: m.AccessCount, OriginalOrder: order,
		})
		order++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	byID := make(map[string]*Memory, len(memories))
	for _, m := range memories {
		byID[m.ID] = m
	}

	ranked := ranker.Rank(candidates, time.Now(), limit)

	results := make([]SearchResult, 0, len(ranked))
	for _, r := range ranked {
		m := byID[r.ID]
		tags, err := s.tagsFor(m.ID)
		if err != nil {
			return nil, err
		}
		m.Tags = tags

		if refreshed, err := s.Refresh(m.ID); err != nil {
			log.Warn("failed to bump access count on search hit", "memory_id", m.ID, "error", err)
		} else if refreshed != nil {
			m.AccessCount = refreshed.AccessCount
			m.TimeLastAccessed = refreshed.TimeLastAccessed
		}

		results = append(results, SearchResult{Memory: m, Relevance: normalizeRelevance(r.FinalRank)})
	}
	return results, nil
}

// normalizeRelevance maps a (typically negative) bm25-derived final
// rank onto a 0..1 scale for display, clamping at the edges.
func normalizeRelevance(finalRank float64) float64 {
	relevance := 1 - (finalRank / -10)
	if relevance < 0 {
		return 0
	}
	if relevance > 1 {
		return 1
	}
	return relevance
}

func (s *Store) tagsFor(memoryID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT tag FROM memory_tags WHERE memory_id = ? ORDER BY tag`, memoryID)
	if err != nil {
		return nil, err
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

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range tags {
		n := strings.ToLower(strings.TrimSpace(t))
		if n != "" && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row rowScanner) (*Memory, error) {
	return scanMemoryRow(row)
}

func scanMemoryRow(row rowScanner) (*Memory, error) {
	var m Memory
	var sessionID, source, projectID sql.NullString
	var lastAccessed sql.NullInt64
	var createdUnix, updatedUnix int64

	if err := row.Scan(&m.ID, &m.Content, &m.Category, &sessionID, &projectID, &source,
		&createdUnix, &updatedUnix, &m.AccessCount, &lastAccessed); err != nil {
		return nil, err
	}

	m.SessionID = sessionID.String
	m.Source = source.String
	if projectID.Valid {
		pid := projectID.String
		m.ProjectID = &pid
	}
	m.TimeCreated = time.Unix(createdUnix, 0)
	m.TimeUpdated = time.Unix(updatedUnix, 0)
	if lastAccessed.Valid {
		t := time.Unix(lastAccessed.Int64, 0)
		m.TimeLastAccessed = &t
	}
	return &m, nil
}
