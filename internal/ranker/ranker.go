// Package ranker re-scores full-text search hits with time decay and
// access-count boost, per spec §4.4. The BM25-to-relevance normalization
// idiom is grounded on the teacher's internal/database/operations.go
// SearchFTS; the decay/boost formulas themselves are grounded on the
// DecayRate/LastReinforced fields the hurttlocker-cortex example keeps
// on its Facts.
package ranker

import (
	"math"
	"sort"
	"time"
)

// DecayRate is the default per-day decay applied to a memory's base
// rank, giving roughly a 90-day half-life.
const DecayRate = 0.0077

// Candidate is one full-text hit plus the fields the ranker needs.
// BaseRank follows FTS5's bm25() convention: more negative is better.
type Candidate struct {
	ID            string
	BaseRank      float64
	TimeCreated   time.Time
	AccessCount   int
	OriginalOrder int
}

// Ranked is a Candidate annotated with its recomputed rank.
type Ranked struct {
	Candidate
	FinalRank float64
}

// Rank multiplies each candidate's base rank by its decay factor
// (1/(1+ageDays·DecayRate)) and access boost (1+log2(1+AccessCount)·0.1),
// so older memories drift toward zero and frequently accessed ones
// further below it, then sorts ascending by FinalRank (more negative
// ranks first, matching bm25 convention) and truncates to limit. Ties
// break on original full-text row order.
func Rank(candidates []Candidate, now time.Time, limit int) []Ranked {
	ranked := make([]Ranked, len(candidates))
	for i, c := range candidates {
		ageDays := now.Sub(c.TimeCreated).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		decayFactor := 1 / (1 + ageDays*DecayRate)
		accessBoost := 1 + math.Log2(1+float64(c.AccessCount))*0.1
		ranked[i] = Ranked{
			Candidate: c,
			FinalRank: c.BaseRank * decayFactor * accessBoost,
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].FinalRank != ranked[j].FinalRank {
			return ranked[i].FinalRank < ranked[j].FinalRank
		}
		return ranked[i].OriginalOrder < ranked[j].OriginalOrder
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// OverfetchLimit returns how many rows the caller should request from
// the full-text engine before ranking, per spec §4.4 step 1:
// min(limit*3, 100).
func OverfetchLimit(limit int) int {
	n := limit * 3
	if n > 100 {
		return 100
	}
	if n <= 0 {
		return 100
	}
	return n
}
