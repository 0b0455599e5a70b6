package graph

import (
	"testing"
	"time"

	"github.com/loomkeep/loomkeep/internal/database"
	"github.com/loomkeep/loomkeep/internal/testutil"
)

func newTestGraph(t *testing.T) (*Graph, *database.DB) {
	t.Helper()
	db := testutil.OpenTestDB(t)
	return New(db), db
}

func insertMemory(t *testing.T, db *database.DB, id string) {
	t.Helper()
	now := time.Now().Unix()
	_, err := db.Exec(
		`INSERT INTO memory (id, content, category, time_created, time_updated, access_count) VALUES (?, 'content', 'fact', ?, ?, 0)`,
		id, now, now,
	)
	if err != nil {
		t.Fatalf("insert memory: %v", err)
	}
}

func TestAddTagsIsIdempotent(t *testing.T) {
	g, db := newTestGraph(t)
	insertMemory(t, db, "m1")

	if err := g.AddTags("m1", []string{"Go", "go", " backend "}); err != nil {
		t.Fatalf("AddTags: %v", err)
	}
	tags, err := g.GetTags("m1")
	if err != nil {
		t.Fatalf("GetTags: %v", err)
	}
	if len(tags) != 2 {
		t.Errorf("expected 2 distinct normalized tags, got %v", tags)
	}
}

func TestSetTagsReplacesWholesale(t *testing.T) {
	g, db := newTestGraph(t)
	insertMemory(t, db, "m1")
	g.AddTags("m1", []string{"old"})

	if err := g.SetTags("m1", []string{"new"}); err != nil {
		t.Fatalf("SetTags: %v", err)
	}
	tags, _ := g.GetTags("m1")
	if len(tags) != 1 || tags[0] != "new" {
		t.Errorf("expected tags to be replaced with [new], got %v", tags)
	}
}

func TestRemoveTags(t *testing.T) {
	g, db := newTestGraph(t)
	insertMemory(t, db, "m1")
	g.AddTags("m1", []string{"keep", "drop"})

	if err := g.RemoveTags("m1", []string{"drop"}); err != nil {
		t.Fatalf("RemoveTags: %v", err)
	}
	tags, _ := g.GetTags("m1")
	if len(tags) != 1 || tags[0] != "keep" {
		t.Errorf("expected only [keep] to remain, got %v", tags)
	}
}

func TestListAllTagsOrdersByCount(t *testing.T) {
	g, db := newTestGraph(t)
	insertMemory(t, db, "m1")
	insertMemory(t, db, "m2")
	g.AddTags("m1", []string{"popular"})
	g.AddTags("m2", []string{"popular", "rare"})

	all, err := g.ListAllTags()
	if err != nil {
		t.Fatalf("ListAllTags: %v", err)
	}
	if len(all) != 2 || all[0].Tag != "popular" || all[0].Count != 2 {
		t.Errorf("expected popular first with count 2, got %+v", all)
	}
}

func TestAddLinkRejectsSelfLink(t *testing.T) {
	g, db := newTestGraph(t)
	insertMemory(t, db, "m1")

	ok, err := g.AddLink("m1", "m1", "related")
	if err != nil {
		t.Fatalf("AddLink: %v", err)
	}
	if ok {
		t.Error("expected self-link to be rejected")
	}
}

func TestAddLinkRejectsUnknownRelationship(t *testing.T) {
	g, db := newTestGraph(t)
	insertMemory(t, db, "m1")
	insertMemory(t, db, "m2")

	ok, err := g.AddLink("m1", "m2", "loves")
	if err != nil {
		t.Fatalf("AddLink: %v", err)
	}
	if ok {
		t.Error("expected unknown relationship to be rejected")
	}
}

func TestAddLinkRejectsMissingMemory(t *testing.T) {
	g, db := newTestGraph(t)
	insertMemory(t, db, "m1")

	ok, err := g.AddLink("m1", "does-not-exist", "related")
	if err != nil {
		t.Fatalf("AddLink: %v", err)
	}
	if ok {
		t.Error("expected missing target memory to be rejected")
	}
}

func TestListLinksPreservesDirectionality(t *testing.T) {
	g, db := newTestGraph(t)
	insertMemory(t, db, "m1")
	insertMemory(t, db, "m2")

	if _, err := g.AddLink("m1", "m2", "supersedes"); err != nil {
		t.Fatalf("AddLink: %v", err)
	}

	fromSource, err := g.ListLinks("m1")
	if err != nil {
		t.Fatalf("ListLinks: %v", err)
	}
	if len(fromSource) != 1 || !fromSource[0].Outgoing || fromSource[0].OtherID != "m2" {
		t.Errorf("expected outgoing link to m2, got %+v", fromSource)
	}

	fromTarget, err := g.ListLinks("m2")
	if err != nil {
		t.Fatalf("ListLinks: %v", err)
	}
	if len(fromTarget) != 1 || fromTarget[0].Outgoing || fromTarget[0].OtherID != "m1" {
		t.Errorf("expected incoming link from m1, got %+v", fromTarget)
	}
}

func TestAddLinkUpsertsRelationship(t *testing.T) {
	g, db := newTestGraph(t)
	insertMemory(t, db, "m1")
	insertMemory(t, db, "m2")

	g.AddLink("m1", "m2", "related")
	g.AddLink("m1", "m2", "contradicts")

	links, _ := g.ListLinks("m1")
	if len(links) != 1 || links[0].Relationship != "contradicts" {
		t.Errorf("expected upsert to overwrite relationship, got %+v", links)
	}
}
