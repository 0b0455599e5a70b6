package store

import (
	"testing"

	"github.com/loomkeep/loomkeep/internal/testutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(testutil.OpenTestDB(t))
}

func TestInsertAssignsIDAndDefaults(t *testing.T) {
	s := newTestStore(t)

	m, err := s.Insert(InsertInput{Content: "always run tests before pushing"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if m.ID == "" {
		t.Error("expected a generated id")
	}
	if m.Category != "general" {
		t.Errorf("expected default category general, got %q", m.Category)
	}
}

func TestInsertRejectsEmptyContent(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Insert(InsertInput{Content: "   "}); err == nil {
		t.Error("expected error for empty content")
	}
}

func TestInsertRejectsOverlongContent(t *testing.T) {
	s := newTestStore(t)
	huge := make([]byte, MaxContentLength+1)
	for i := range huge {
		huge[i] = 'a'
	}
	if _, err := s.Insert(InsertInput{Content: string(huge)}); err == nil {
		t.Error("expected error for overlong content")
	}
}

func TestInsertExactDuplicateReturnsExisting(t *testing.T) {
	s := newTestStore(t)

	first, err := s.Insert(InsertInput{Content: "use context timeouts for all database calls"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	second, err := s.Insert(InsertInput{Content: "  Use Context Timeouts For All Database Calls  "})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("expected exact duplicate to return existing id %s, got %s", first.ID, second.ID)
	}
}

func TestInsertForceBypassesDedup(t *testing.T) {
	s := newTestStore(t)

	first, err := s.Insert(InsertInput{Content: "ship behind a feature flag"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	second, err := s.Insert(InsertInput{Content: "ship behind a feature flag", Force: true})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if second.ID == first.ID {
		t.Error("expected Force: true to bypass dedup and create a new row")
	}
}

func TestGetReturnsNilForUnknownID(t *testing.T) {
	s := newTestStore(t)
	m, err := s.Get("does-not-exist")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if m != nil {
		t.Errorf("expected nil for unknown id, got %+v", m)
	}
}

func TestUpdateChangesOnlySuppliedFields(t *testing.T) {
	s := newTestStore(t)
	m, err := s.Insert(InsertInput{Content: "original content", Category: "fact"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	newContent := "updated content"
	updated, err := s.Update(m.ID, Patch{Content: &newContent})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Content != newContent {
		t.Errorf("Content = %q, want %q", updated.Content, newContent)
	}
	if updated.Category != "fact" {
		t.Errorf("Category changed unexpectedly to %q", updated.Category)
	}
}

func TestUpdateUnknownIDReturnsNil(t *testing.T) {
	s := newTestStore(t)
	newContent := "x"
	m, err := s.Update("nope", Patch{Content: &newContent})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if m != nil {
		t.Error("expected nil for unknown id")
	}
}

func TestDeleteRemovesMemory(t *testing.T) {
	s := newTestStore(t)
	m, _ := s.Insert(InsertInput{Content: "ephemeral fact"})

	ok, err := s.Delete(m.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !ok {
		t.Error("expected Delete to report a removed row")
	}

	got, err := s.Get(m.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Error("expected memory to be gone after delete")
	}
}

func TestListFiltersByCategory(t *testing.T) {
	s := newTestStore(t)
	s.Insert(InsertInput{Content: "fact one", Category: "fact"})
	s.Insert(InsertInput{Content: "preference one", Category: "preference"})

	facts, err := s.List(ListFilters{Category: "fact"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(facts) != 1 || facts[0].Category != "fact" {
		t.Errorf("expected exactly one fact memory, got %+v", facts)
	}
}

func TestListScopeGlobalExcludesProjectMemories(t *testing.T) {
	s := newTestStore(t)
	proj := "proj-a"
	s.Insert(InsertInput{Content: "project-scoped memory", ProjectID: &proj})
	s.Insert(InsertInput{Content: "global-scoped memory"})

	global, err := s.List(ListFilters{Scope: ScopeGlobal})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(global) != 1 || global[0].Content != "global-scoped memory" {
		t.Errorf("expected only the global memory, got %+v", global)
	}
}

func TestListScopeAllUnionsProjectAndGlobal(t *testing.T) {
	s := newTestStore(t)
	proj := "proj-a"
	s.Insert(InsertInput{Content: "project-scoped memory", ProjectID: &proj})
	s.Insert(InsertInput{Content: "global-scoped memory"})

	all, err := s.List(ListFilters{Scope: ScopeAll, ProjectID: proj})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 memories for scope=all, got %d", len(all))
	}
}

func TestRefreshBumpsAccessCountByFive(t *testing.T) {
	s := newTestStore(t)
	m, _ := s.Insert(InsertInput{Content: "frequently needed fact"})

	refreshed, err := s.Refresh(m.ID)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.AccessCount != 5 {
		t.Errorf("AccessCount = %d, want 5", refreshed.AccessCount)
	}
	if refreshed.TimeLastAccessed == nil {
		t.Error("expected time_last_accessed to be set")
	}
}

func TestGetStatsCountsByCategory(t *testing.T) {
	s := newTestStore(t)
	s.Insert(InsertInput{Content: "fact one", Category: "fact"})
	s.Insert(InsertInput{Content: "fact two", Category: "fact"})
	s.Insert(InsertInput{Content: "preference one", Category: "preference"})

	stats, err := s.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.ByCategory["fact"] != 2 {
		t.Errorf("ByCategory[fact] = %d, want 2", stats.ByCategory["fact"])
	}
}

func TestSearchFindsInsertedMemory(t *testing.T) {
	s := newTestStore(t)
	s.Insert(InsertInput{Content: "the deploy pipeline uses canary releases"})
	s.Insert(InsertInput{Content: "unrelated fact about spreadsheets"})

	results, err := s.Search(SearchOptions{Query: "canary deploy"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 search hit, got %d", len(results))
	}
	if results[0].Memory.AccessCount == 0 {
		t.Error("expected search hit to bump access_count")
	}
}

func TestSearchAllStopwordQueryReturnsNoResults(t *testing.T) {
	s := newTestStore(t)
	s.Insert(InsertInput{Content: "some fact"})

	results, err := s.Search(SearchOptions{Query: "the and or"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results for an all-stopword query, got %d", len(results))
	}
}
