package ranker

import (
	"testing"
	"time"
)

func TestRankOrdersByFinalRankAscending(t *testing.T) {
	now := time.Now()
	candidates := []Candidate{
		{ID: "old-no-access", BaseRank: -5, TimeCreated: now.Add(-200 * 24 * time.Hour), AccessCount: 0, OriginalOrder: 0},
		{ID: "fresh-popular", BaseRank: -5, TimeCreated: now, AccessCount: 50, OriginalOrder: 1},
	}

	got := Rank(candidates, now, 10)
	if len(got) != 2 {
		t.Fatalf("expected 2 ranked results, got %d", len(got))
	}
	if got[0].ID != "fresh-popular" {
		t.Errorf("expected fresh-popular to rank first, got %s first", got[0].ID)
	}
}

func TestRankTruncatesToLimit(t *testing.T) {
	now := time.Now()
	var candidates []Candidate
	for i := 0; i < 10; i++ {
		candidates = append(candidates, Candidate{ID: "x", BaseRank: -1, TimeCreated: now, OriginalOrder: i})
	}
	got := Rank(candidates, now, 3)
	if len(got) != 3 {
		t.Errorf("expected 3 results after truncation, got %d", len(got))
	}
}

func TestRankTieBreaksOnOriginalOrder(t *testing.T) {
	now := time.Now()
	candidates := []Candidate{
		{ID: "second", BaseRank: -5, TimeCreated: now, OriginalOrder: 1},
		{ID: "first", BaseRank: -5, TimeCreated: now, OriginalOrder: 0},
	}
	got := Rank(candidates, now, 10)
	if got[0].ID != "first" {
		t.Errorf("expected tie to break on OriginalOrder, got %s first", got[0].ID)
	}
}

func TestOverfetchLimitCapsAt100(t *testing.T) {
	if OverfetchLimit(50) != 100 {
		t.Errorf("OverfetchLimit(50) = %d, want 100", OverfetchLimit(50))
	}
	if OverfetchLimit(10) != 30 {
		t.Errorf("OverfetchLimit(10) = %d, want 30", OverfetchLimit(10))
	}
}
