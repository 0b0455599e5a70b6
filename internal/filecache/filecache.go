// Package filecache implements the file knowledge cache of spec §4.8:
// at most one live memory per absolute file path, carrying a
// fingerprint of last-seen content so repeated scans skip unchanged
// files. Grounded on the teacher's session/project detection (git-root
// walking, since removed from internal/memory/session.go) and chunking
// idiom (section/paragraph splitting, since removed from
// internal/memory/chunker.go), reimplemented here atop goldmark for
// heading-aware markdown chunking.
package filecache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/loomkeep/loomkeep/internal/graph"
	"github.com/loomkeep/loomkeep/internal/logging"
	"github.com/loomkeep/loomkeep/internal/store"
)

var log = logging.GetLogger("filecache")

// MaxFileSize is the spec §4.8 cap on files considered during scanOnStartup.
const MaxFileSize = 50 * 1024

const (
	tagFilepathPrefix = "filepath:"
	tagGitPrefix      = "git:"
	tagMTimePrefix    = "mtime:"
)

// CanonicalFiles is the fixed list of project metadata files
// scanOnStartup inspects, relative to the scanned directory.
var CanonicalFiles = []string{
	"README.md",
	"package.json",
	"go.mod",
	"pyproject.toml",
	"Cargo.toml",
	".editorconfig",
}

// manifestFiles are treated as package manifests: summarized rather
// than chunked.
var manifestFiles = map[string]bool{
	"package.json":   true,
	"go.mod":         true,
	"pyproject.toml": true,
	"Cargo.toml":     true,
}

func filepathTag(absPath string) string {
	return tagFilepathPrefix + strings.ToLower(absPath)
}

func gitTag(hash string) string      { return tagGitPrefix + hash }
func mtimeTag(ms string) string      { return tagMTimePrefix + ms }
func isFingerprintTag(t string) bool {
	return strings.HasPrefix(t, tagFilepathPrefix) || strings.HasPrefix(t, tagGitPrefix) || strings.HasPrefix(t, tagMTimePrefix)
}

// Cache wires the store and tag graph into the file-freshness contract.
type Cache struct {
	store *store.Store
	graph *graph.Graph
	// seenThisRun tracks absolute paths already handled in the current
	// process's scanOnStartup pass, to avoid rescanning within one run.
	seenThisRun map[string]bool
}

// New wires a Cache atop a Store and its Graph.
func New(s *store.Store, g *graph.Graph) *Cache {
	return &Cache{store: s, graph: g, seenThisRun: make(map[string]bool)}
}

// Freshness is the result of checkFreshness.
type Freshness struct {
	Exists        bool
	Fresh         bool
	StoredContent string
	MemoryID      string
}

func (c *Cache) findByPath(absPath, projectID string) (*store.Memory, error) {
	ids, err := c.graph.SearchByTag(filepathTag(absPath), graph.SearchByTagOptions{ProjectID: projectID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return c.store.Get(ids[0])
}

// CheckFreshness implements spec §4.8 checkFreshness(path, projectId).
func (c *Cache) CheckFreshness(path, projectID string) (Freshness, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Freshness{}, fmt.Errorf("resolve path: %w", err)
	}

	m, err := c.findByPath(abs, projectID)
	if err != nil {
		return Freshness{}, err
	}
	if m == nil {
		return Freshness{}, nil
	}

	current, err := fingerprintOf(abs)
	if err != nil {
		return Freshness{Exists: true, MemoryID: m.ID, StoredContent: m.Content}, nil
	}

	var storedGit, storedMTime string
	for _, tag := range m.Tags {
		switch {
		case strings.HasPrefix(tag, tagGitPrefix):
			storedGit = strings.TrimPrefix(tag, tagGitPrefix)
		case strings.HasPrefix(tag, tagMTimePrefix):
			storedMTime = strings.TrimPrefix(tag, tagMTimePrefix)
		}
	}

	fresh := false
	if current.GitHash != "" && storedGit != "" {
		fresh = current.GitHash == storedGit
	} else if storedMTimeMS, ok := parseMTime(storedMTime); ok {
		diff := current.MTimeMS - storedMTimeMS
		if diff < 0 {
			diff = -diff
		}
		fresh = diff < 1000
	}

	return Freshness{Exists: true, Fresh: fresh, StoredContent: m.Content, MemoryID: m.ID}, nil
}

// UpsertInput carries the fields for Upsert.
type UpsertInput struct {
	Path      string
	Content   string
	Tags      []string
	Source    string
	SessionID string
	ProjectID string
}

// Upsert implements spec §4.8 upsert(path, content, tags, source,
// sessionId): updates the existing fingerprinted memory for path if
// one exists, preserving any non-fingerprint tags, or inserts a new
// memory bypassing dedup.
func (c *Cache) Upsert(in UpsertInput) (*store.Memory, error) {
	abs, err := filepath.Abs(in.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	fp, err := fingerprintOf(abs)
	if err != nil {
		log.Warn("fingerprint unavailable, proceeding without it", "path", abs, "error", err)
	}

	fingerprintTags := []string{filepathTag(abs)}
	if fp.GitHash != "" {
		fingerprintTags = append(fingerprintTags, gitTag(fp.GitHash))
	}
	if fp.MTimeMS != 0 {
		fingerprintTags = append(fingerprintTags, mtimeTag(formatMTime(fp.MTimeMS)))
	}

	existing, err := c.findByPath(abs, in.ProjectID)
	if err != nil {
		return nil, err
	}

	var projectID *string
	if in.ProjectID != "" {
		projectID = &in.ProjectID
	}

	if existing != nil {
		var preserved []string
		for _, tag := range existing.Tags {
			if !isFingerprintTag(tag) {
				preserved = append(preserved, tag)
			}
		}
		merged := append(append([]string{}, preserved...), in.Tags...)
		merged = append(merged, fingerprintTags...)

		content := in.Content
		source := in.Source
		updated, err := c.store.Update(existing.ID, store.Patch{Content: &content, Source: &source})
		if err != nil {
			return nil, err
		}
		if err := c.graph.SetTags(existing.ID, merged); err != nil {
			return nil, err
		}
		updated.Tags = merged
		return updated, nil
	}

	tags := append(append([]string{}, in.Tags...), fingerprintTags...)
	return c.store.Insert(store.InsertInput{
		Content:   in.Content,
		Category:  "file-knowledge",
		SessionID: in.SessionID,
		ProjectID: projectID,
		Source:    in.Source,
		Tags:      tags,
		Force:     true,
	})
}

// ScanOnStartup implements spec §4.8 scanOnStartup(directory, projectId):
// walks the fixed canonical-file list, skipping files already handled
// this run or already fresh, summarizing manifests and chunking the
// rest.
func (c *Cache) ScanOnStartup(directory, projectID string) error {
	for _, name := range CanonicalFiles {
		path := filepath.Join(directory, name)
		abs, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		if c.seenThisRun[abs] {
			continue
		}
		c.seenThisRun[abs] = true

		info, err := os.Stat(path)
		if err != nil || info.IsDir() || info.Size() > MaxFileSize {
			continue
		}

		fresh, err := c.CheckFreshness(path, projectID)
		if err != nil {
			log.Warn("freshness check failed, scanning anyway", "path", path, "error", err)
		} else if fresh.Exists && fresh.Fresh {
			continue
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			log.Warn("failed to read canonical file", "path", path, "error", err)
			continue
		}

		var content string
		if manifestFiles[name] {
			content = summarizeManifest(name, string(raw))
			if _, err := c.Upsert(UpsertInput{Path: path, Content: content, Source: "file-scan", ProjectID: projectID}); err != nil {
				log.Warn("upsert manifest summary failed", "path", path, "error", err)
			}
			continue
		}

		chunks := chunkMarkdown(string(raw))
		for i, chunk := range chunks {
			chunkPath := fmt.Sprintf("%s#chunk%d", path, i)
			if _, err := c.Upsert(UpsertInput{Path: chunkPath, Content: chunk, Source: "file-scan", ProjectID: projectID}); err != nil {
				log.Warn("upsert file chunk failed", "path", chunkPath, "error", err)
			}
		}
	}
	return nil
}

// summarizeManifest reduces a package manifest to a short structured
// description rather than storing it verbatim.
func summarizeManifest(name, raw string) string {
	lines := strings.Split(raw, "\n")
	var nonBlank []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" {
			nonBlank = append(nonBlank, l)
		}
		if len(nonBlank) >= 10 {
			break
		}
	}
	summary := strings.Join(nonBlank, " | ")
	if len(summary) > MaxChunkLen {
		summary = summary[:MaxChunkLen]
	}
	return fmt.Sprintf("%s manifest: %s", name, summary)
}
