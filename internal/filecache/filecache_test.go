package filecache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/loomkeep/loomkeep/internal/graph"
	"github.com/loomkeep/loomkeep/internal/store"
	"github.com/loomkeep/loomkeep/internal/testutil"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	db := testutil.OpenTestDB(t)
	return New(store.New(db), graph.New(db))
}

func TestCheckFreshnessReturnsNotExistsWhenNoMemory(t *testing.T) {
	c := newTestCache(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "README.md")
	os.WriteFile(path, []byte("# Hello"), 0644)

	f, err := c.CheckFreshness(path, "")
	if err != nil {
		t.Fatalf("CheckFreshness: %v", err)
	}
	if f.Exists {
		t.Error("expected Exists=false for a file never cached")
	}
}

func TestUpsertThenCheckFreshnessIsFresh(t *testing.T) {
	c := newTestCache(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "README.md")
	os.WriteFile(path, []byte("# Hello\n\nWorld"), 0644)

	if _, err := c.Upsert(UpsertInput{Path: path, Content: "# Hello\n\nWorld", Source: "file-scan"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	f, err := c.CheckFreshness(path, "")
	if err != nil {
		t.Fatalf("CheckFreshness: %v", err)
	}
	if !f.Exists {
		t.Fatal("expected memory to exist after upsert")
	}
	if !f.Fresh {
		t.Error("expected freshly upserted file to be fresh")
	}
}

func TestUpsertUpdatesExistingMemoryForSamePath(t *testing.T) {
	c := newTestCache(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "README.md")
	os.WriteFile(path, []byte("v1"), 0644)

	first, err := c.Upsert(UpsertInput{Path: path, Content: "v1", Source: "file-scan"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	os.WriteFile(path, []byte("v2"), 0644)
	second, err := c.Upsert(UpsertInput{Path: path, Content: "v2", Source: "file-scan"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("expected upsert to reuse the same memory id, got %s vs %s", first.ID, second.ID)
	}
	if second.Content != "v2" {
		t.Errorf("Content = %q, want v2", second.Content)
	}
}

func TestUpsertPreservesNonFingerprintTags(t *testing.T) {
	c := newTestCache(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "README.md")
	os.WriteFile(path, []byte("v1"), 0644)

	first, err := c.Upsert(UpsertInput{Path: path, Content: "v1", Tags: []string{"important"}, Source: "file-scan"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	foundImportant := false
	for _, tag := range first.Tags {
		if tag == "important" {
			foundImportant = true
		}
	}
	if !foundImportant {
		t.Fatalf("expected 'important' tag on first upsert, got %v", first.Tags)
	}

	second, err := c.Upsert(UpsertInput{Path: path, Content: "v2", Source: "file-scan"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	foundImportant = false
	for _, tag := range second.Tags {
		if tag == "important" {
			foundImportant = true
		}
	}
	if !foundImportant {
		t.Errorf("expected 'important' tag preserved across upsert, got %v", second.Tags)
	}
}

func TestChunkMarkdownSplitsByHeading(t *testing.T) {
	content := "# Title\n\nIntro text.\n\n## Section A\n\nBody A.\n\n## Section B\n\nBody B.\n"
	chunks := chunkMarkdown(content)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for headed markdown, got %d: %v", len(chunks), chunks)
	}
}

func TestChunkMarkdownCapsAtMaxChunks(t *testing.T) {
	var sb []byte
	for i := 0; i < MaxChunks+5; i++ {
		sb = append(sb, []byte("## Heading\n\nbody text here\n\n")...)
	}
	chunks := chunkMarkdown(string(sb))
	if len(chunks) > MaxChunks {
		t.Errorf("expected at most %d chunks, got %d", MaxChunks, len(chunks))
	}
}

func TestSummarizeManifestIsNonEmpty(t *testing.T) {
	raw := "module example.com/foo\n\ngo 1.23\n"
	summary := summarizeManifest("go.mod", raw)
	if summary == "" {
		t.Error("expected a non-empty summary")
	}
}
