// Package dedup implements the exact and near-duplicate detection
// described in spec §4.5. It is grounded on the scan/query shapes in
// the teacher's internal/database/operations.go, with the
// content-hash-style dedup concept cross-checked against
// other_examples' hurttlocker-cortex store.go (ContentHash/FindByHash).
package dedup

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/loomkeep/loomkeep/internal/database"
	"github.com/loomkeep/loomkeep/internal/logging"
	"github.com/loomkeep/loomkeep/internal/querynorm"
)

var log = logging.GetLogger("dedup")

// JaccardThreshold is the similarity above which two memories are
// considered near-duplicates (spec §4.5 step 4).
const JaccardThreshold = 0.6

// ScanWindow is how many of the most recently created memories in
// scope are checked for an exact duplicate (spec §4.5 step 2).
const ScanWindow = 100

// Result describes what Check found, if anything.
type Result struct {
	Exact bool
	Near  bool
	// MemoryID is the id of the matching memory when Exact or Near is true.
	MemoryID string
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// normalizeContent implements spec §4.5 step 1: lowercase, trim,
// collapse internal whitespace runs.
func normalizeContent(content string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(content)), " ")
}

// Deduplicator checks candidate content against recently stored
// memories in a project+global scope.
type Deduplicator struct {
	db *database.DB
}

// New wraps a database handle for duplicate detection.
func New(db *database.DB) *Deduplicator {
	return &Deduplicator{db: db}
}

// scopeClause returns the WHERE fragment and bind args restricting to
// a project plus its global memories, matching the "project+global
// scope" language in spec §4.5.
func scopeClause(projectID *string) (string, []interface{}) {
	if projectID == nil || *projectID == "" {
		return "project_id IS NULL", nil
	}
	return "(project_id = ? OR project_id IS NULL)", []interface{}{*projectID}
}

// Check runs the full spec §4.5 procedure: exact scan, then
// distinctive-token OR query with Jaccard scoring. A failed full-text
// query is logged and treated as no duplicate (non-fatal per spec).
func (d *Deduplicator) Check(content string, projectID *string) (Result, error) {
	normalized := normalizeContent(content)
	clause, args := scopeClause(projectID)

	rows, err := d.db.Query(fmt.Sprintf(
		`SELECT id, content FROM memory WHERE %s ORDER BY time_created DESC LIMIT ?`, clause,
	), append(args, ScanWindow)...)
	if err != nil {
		return Result{}, fmt.Errorf("exact-duplicate scan: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, existing string
		if err := rows.Scan(&id, &existing); err != nil {
			return Result{}, err
		}
		if normalizeContent(existing) == normalized {
			return Result{Exact: true, MemoryID: id}, nil
		}
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}

	return d.checkNear(normalized, clause, args)
}

func (d *Deduplicator) checkNear(normalized, scopeSQL string, scopeArgs []interface{}) (Result, error) {
	tokens := querynorm.Tokens(normalized)
	if len(tokens) == 0 {
		return Result{}, nil
	}

	sorted := append([]string(nil), tokens...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	keep := int(math.Ceil(float64(len(sorted)) * 0.6))
	if keep < 3 {
		keep = 3
	}
	if keep > len(sorted) {
		keep = len(sorted)
	}
	distinctive := sorted[:keep]

	ftsQuery := strings.Join(distinctive, " OR ")

	query := fmt.Sprintf(`
		SELECT m.id, m.content FROM memory_fts f
		JOIN memory m ON m.rowid = f.rowid
		WHERE memory_fts MATCH ? AND %s
		ORDER BY bm25(memory_fts)
		LIMIT 5
	`, scopeSQL)

	args := append([]interface{}{ftsQuery}, scopeArgs...)

	rows, err := d.db.Query(query, args...)
	if err != nil {
		log.Warn("near-duplicate query failed, treating as no duplicate", "error", err)
		return Result{}, nil
	}
	defer rows.Close()

	candidateWords := wordSet(normalized)

	for rows.Next() {
		var id, existing string
		if err := rows.Scan(&id, &existing); err != nil {
			return Result{}, err
		}
		similarity := jaccard(candidateWords, wordSet(normalizeContent(existing)))
		if similarity > JaccardThreshold {
			return Result{Near: true, MemoryID: id}, nil
		}
	}
	if err := rows.Err(); err != nil {
		log.Warn("near-duplicate row scan failed, treating as no duplicate", "error", err)
		return Result{}, nil
	}

	return Result{}, nil
}

func wordSet(normalized string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(normalized) {
		if len(w) > 1 {
			set[w] = true
		}
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
