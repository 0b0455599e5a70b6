package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/loomkeep/loomkeep/internal/database"
	"github.com/loomkeep/loomkeep/internal/filecache"
	"github.com/loomkeep/loomkeep/internal/graph"
	"github.com/loomkeep/loomkeep/internal/maintenance"
	"github.com/loomkeep/loomkeep/internal/store"
	"github.com/loomkeep/loomkeep/pkg/config"
)

// dateParser resolves relative natural-language dates (e.g. "90 days
// ago", "3 months ago") for the cleanup command's --purge-older-than
// flag, alongside plain integer day counts.
var dateParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	return w
}()

// parsePurgeWindow accepts either a bare day count ("90") or a
// natural-language relative date ("90 days ago", "3 months ago") and
// returns the number of days to purge beyond.
func parsePurgeWindow(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if days, err := strconv.Atoi(s); err == nil {
		return days, nil
	}

	now := time.Now()
	r, err := dateParser.Parse(s, now)
	if err != nil || r == nil {
		return 0, fmt.Errorf("could not parse %q as a day count or relative date", s)
	}
	days := int(now.Sub(r.Time).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days, nil
}

var (
	// store flags
	storeCategory  string
	storeTags      []string
	storeProjectID string
	storeSessionID string
	storeSource    string
	storeForce     bool

	// search flags
	searchLimit     int
	searchCategory  string
	searchProjectID string
	searchScope     string

	// update flags
	updateContent  string
	updateCategory string
	updateTags     []string

	// list flags
	listLimit     int
	listCategory  string
	listProjectID string
	listSessionID string
	listScope     string

	// tag flags
	tagProjectID string
	tagLimit     int

	// link flags
	linkRelationship string

	// cleanup flags
	cleanupPurgeOlderThan string
	cleanupVacuum         bool

	// file-check flags
	fileCheckProjectID string
)

var storeCmd = &cobra.Command{
	Use:   "store <content>",
	Short: "Store a memory",
	Long: `Store a new memory with the given content.

Examples:
  loomkeep store "prefer table-driven tests in this repo"
  loomkeep store "CI needs GOFLAGS=-mod=mod" --category gotcha --tags ci,go
  loomkeep store "use cobra for CLI commands" --project-id myapp --force`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runStore(strings.Join(args, " "))
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search memories",
	Long: `Search stored memories by keyword, ranked by relevance, recency, and
access frequency.

Examples:
  loomkeep search "table-driven tests"
  loomkeep search "ci" --limit 5 --category gotcha
  loomkeep search "go routines" --scope global`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runSearch(strings.Join(args, " "))
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get a memory by ID",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runGet(args[0])
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List memories",
	Long: `List stored memories with optional filtering.

Examples:
  loomkeep list
  loomkeep list --limit 20 --category decision
  loomkeep list --project-id myapp --scope all`,
	Run: func(cmd *cobra.Command, args []string) {
		runList()
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a memory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runUpdate(args[0])
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"forget"},
	Short:   "Delete a memory",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runDelete(args[0])
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh <id>",
	Short: "Bump access count and last-accessed time on a memory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runRefresh(args[0])
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory counts overall and per category",
	Run: func(cmd *cobra.Command, args []string) {
		runStats()
	},
}

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage and query tags on memories",
}

var tagAddCmd = &cobra.Command{
	Use:   "add <id> <tag> [tag...]",
	Short: "Add tags to a memory",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runTagAdd(args[0], args[1:])
	},
}

var tagRemoveCmd = &cobra.Command{
	Use:   "remove <id> <tag> [tag...]",
	Short: "Remove tags from a memory",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runTagRemove(args[0], args[1:])
	},
}

var tagListCmd = &cobra.Command{
	Use:   "list <id>",
	Short: "List tags on a memory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runTagList(args[0])
	},
}

var tagListAllCmd = &cobra.Command{
	Use:   "list-all",
	Short: "List every distinct tag, ordered by usage",
	Run: func(cmd *cobra.Command, args []string) {
		runTagListAll()
	},
}

var tagSearchCmd = &cobra.Command{
	Use:   "search <tag>",
	Short: "Find memories carrying a tag",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runTagSearch(args[0])
	},
}

var linkCmd = &cobra.Command{
	Use:   "link <id1> <id2>",
	Short: "Link two memories",
	Long: `Create a directed edge between two memories.

Examples:
  loomkeep link <id1> <id2> --relationship related
  loomkeep link <id1> <id2> --relationship supersedes`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runLink(args[0], args[1])
	},
}

var unlinkCmd = &cobra.Command{
	Use:   "unlink <id1> <id2>",
	Short: "Remove the link between two memories",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runUnlink(args[0], args[1])
	},
}

var linksCmd = &cobra.Command{
	Use:   "links <id>",
	Short: "List a memory's links",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runLinks(args[0])
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Run maintenance: optimize indexes, purge old memories, enforce the cap",
	Long: `Runs index optimization, age-based purge, and cap enforcement in one
pass. Each step fails independently; no step aborts the rest.

Examples:
  loomkeep cleanup
  loomkeep cleanup --purge-older-than 90 --vacuum
  loomkeep cleanup --purge-older-than "6 months ago"`,
	Run: func(cmd *cobra.Command, args []string) {
		runCleanup()
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all memories as a JSON document to stdout",
	Run: func(cmd *cobra.Command, args []string) {
		runExport()
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import memories from a previously exported JSON document",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runImport(args[0])
	},
}

var fileCheckCmd = &cobra.Command{
	Use:   "file-check <path>",
	Short: "Check whether a cached file memory is still fresh",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runFileCheck(args[0])
	},
}

func init() {
	rootCmd.AddCommand(storeCmd, searchCmd, getCmd, listCmd, updateCmd, deleteCmd, refreshCmd, statsCmd)
	rootCmd.AddCommand(tagCmd, linkCmd, unlinkCmd, linksCmd, cleanupCmd, exportCmd, importCmd, fileCheckCmd)

	tagCmd.AddCommand(tagAddCmd, tagRemoveCmd, tagListCmd, tagListAllCmd, tagSearchCmd)

	storeCmd.Flags().StringVarP(&storeCategory, "category", "c", "", "category (default: general)")
	storeCmd.Flags().StringSliceVarP(&storeTags, "tags", "t", nil, "tags (comma-separated)")
	storeCmd.Flags().StringVar(&storeProjectID, "project-id", "", "project scope (empty: global)")
	storeCmd.Flags().StringVar(&storeSessionID, "session-id", "", "originating session id")
	storeCmd.Flags().StringVarP(&storeSource, "source", "s", "", "source of the memory")
	storeCmd.Flags().BoolVar(&storeForce, "force", false, "bypass deduplication")

	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 10, "maximum results")
	searchCmd.Flags().StringVarP(&searchCategory, "category", "c", "", "filter by category")
	searchCmd.Flags().StringVar(&searchProjectID, "project-id", "", "filter by project")
	searchCmd.Flags().StringVar(&searchScope, "scope", "", "project, global, or all (default: project)")

	updateCmd.Flags().StringVar(&updateContent, "content", "", "new content")
	updateCmd.Flags().StringVarP(&updateCategory, "category", "c", "", "new category")
	updateCmd.Flags().StringSliceVarP(&updateTags, "tags", "t", nil, "new tags (replaces existing)")

	listCmd.Flags().IntVarP(&listLimit, "limit", "l", 20, "maximum results")
	listCmd.Flags().StringVarP(&listCategory, "category", "c", "", "filter by category")
	listCmd.Flags().StringVar(&listProjectID, "project-id", "", "filter by project")
	listCmd.Flags().StringVar(&listSessionID, "session-id", "", "filter by session")
	listCmd.Flags().StringVar(&listScope, "scope", "", "project, global, or all (default: project)")

	tagSearchCmd.Flags().StringVar(&tagProjectID, "project-id", "", "filter by project")
	tagSearchCmd.Flags().IntVarP(&tagLimit, "limit", "l", 20, "maximum results")

	linkCmd.Flags().StringVarP(&linkRelationship, "relationship", "r", "related",
		fmt.Sprintf("relationship type (%s)", strings.Join(database.RelationshipTypes, ", ")))

	cleanupCmd.Flags().StringVar(&cleanupPurgeOlderThan, "purge-older-than", "",
		`purge memories older than this (day count, e.g. "90", or a relative date, e.g. "6 months ago"); empty: skip`)
	cleanupCmd.Flags().BoolVar(&cleanupVacuum, "vacuum", false, "reclaim disk space after purge")

	fileCheckCmd.Flags().StringVar(&fileCheckProjectID, "project-id", "", "project scope")
}

func openStores() (*database.DB, *store.Store, *graph.Graph, *config.Config) {
	cfg := loadConfigOrExit()
	db := openDatabaseOrExit(cfg)
	return db, store.New(db), graph.New(db), cfg
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseScope(s string) store.Scope {
	switch s {
	case "global":
		return store.ScopeGlobal
	case "all":
		return store.ScopeAll
	default:
		return store.ScopeProject
	}
}

func optionalProjectID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

func printMemory(m *store.Memory) {
	fmt.Printf("ID:       %s\n", m.ID)
	fmt.Printf("Content:  %s\n", m.Content)
	fmt.Printf("Category: %s\n", m.Category)
	if len(m.Tags) > 0 {
		fmt.Printf("Tags:     %s\n", strings.Join(m.Tags, ", "))
	}
	if m.ProjectID != nil {
		fmt.Printf("Project:  %s\n", *m.ProjectID)
	}
	if m.Source != "" {
		fmt.Printf("Source:   %s\n", m.Source)
	}
	fmt.Printf("Created:  %s\n", m.TimeCreated.Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated:  %s\n", m.TimeUpdated.Format("2006-01-02 15:04:05"))
	fmt.Printf("Accessed: %d times\n", m.AccessCount)
}

func runStore(content string) {
	db, st, _, _ := openStores()
	defer db.Close()

	m, err := st.Insert(store.InsertInput{
		Content:   content,
		Category:  storeCategory,
		SessionID: storeSessionID,
		ProjectID: optionalProjectID(storeProjectID),
		Source:    storeSource,
		Tags:      storeTags,
		Force:     storeForce,
	})
	exitOnError(err)

	fmt.Println("Memory stored.")
	printMemory(m)
}

func runSearch(query string) {
	db, st, _, _ := openStores()
	defer db.Close()

	results, err := st.Search(store.SearchOptions{
		Query:     query,
		ProjectID: searchProjectID,
		Scope:     parseScope(searchScope),
		Category:  searchCategory,
		Limit:     searchLimit,
	})
	exitOnError(err)

	fmt.Printf("Found %d result(s) for %q\n\n", len(results), query)
	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s\n", i+1, r.Relevance, truncate(r.Memory.Content, 100))
		fmt.Printf("   ID: %s | Category: %s", r.Memory.ID, r.Memory.Category)
		if len(r.Memory.Tags) > 0 {
			fmt.Printf(" | Tags: %s", strings.Join(r.Memory.Tags, ", "))
		}
		fmt.Println()
	}
}

func runGet(id string) {
	db, st, _, _ := openStores()
	defer db.Close()

	m, err := st.Get(id)
	exitOnError(err)
	if m == nil {
		fmt.Fprintf(os.Stderr, "memory not found: %s\n", id)
		os.Exit(1)
	}
	printMemory(m)
}

func runList() {
	db, st, _, _ := openStores()
	defer db.Close()

	memories, err := st.List(store.ListFilters{
		Category:  listCategory,
		ProjectID: listProjectID,
		SessionID: listSessionID,
		Scope:     parseScope(listScope),
		Limit:     listLimit,
	})
	exitOnError(err)

	fmt.Printf("%d memor%s\n\n", len(memories), plural(len(memories)))
	for i, m := range memories {
		fmt.Printf("%d. %s\n", i+1, truncate(m.Content, 100))
		fmt.Printf("   ID: %s | Category: %s | Created: %s\n",
			m.ID, m.Category, m.TimeCreated.Format("2006-01-02"))
	}
}

func runUpdate(id string) {
	db, st, _, _ := openStores()
	defer db.Close()

	patch := store.Patch{}
	if updateContent != "" {
		patch.Content = &updateContent
	}
	if updateCategory != "" {
		patch.Category = &updateCategory
	}
	if len(updateTags) > 0 {
		patch.Tags = updateTags
	}

	m, err := st.Update(id, patch)
	exitOnError(err)
	if m == nil {
		fmt.Fprintf(os.Stderr, "memory not found: %s\n", id)
		os.Exit(1)
	}

	fmt.Println("Memory updated.")
	printMemory(m)
}

func runDelete(id string) {
	db, st, _, _ := openStores()
	defer db.Close()

	deleted, err := st.Delete(id)
	exitOnError(err)
	if !deleted {
		fmt.Fprintf(os.Stderr, "memory not found: %s\n", id)
		os.Exit(1)
	}
	fmt.Println("Memory deleted.")
}

func runRefresh(id string) {
	db, st, _, _ := openStores()
	defer db.Close()

	m, err := st.Refresh(id)
	exitOnError(err)
	if m == nil {
		fmt.Fprintf(os.Stderr, "memory not found: %s\n", id)
		os.Exit(1)
	}
	fmt.Printf("Refreshed %s (access_count=%d)\n", m.ID, m.AccessCount)
}

func runStats() {
	db, st, _, _ := openStores()
	defer db.Close()

	s, err := st.GetStats()
	exitOnError(err)

	fmt.Printf("Total memories: %d\n\n", s.Total)
	for cat, count := range s.ByCategory {
		fmt.Printf("  %-15s %d\n", cat, count)
	}
}

func runTagAdd(id string, tags []string) {
	db, _, gr, _ := openStores()
	defer db.Close()

	exitOnError(gr.AddTags(id, tags))
	fmt.Printf("Added %d tag(s) to %s\n", len(tags), id)
}

func runTagRemove(id string, tags []string) {
	db, _, gr, _ := openStores()
	defer db.Close()

	exitOnError(gr.RemoveTags(id, tags))
	fmt.Printf("Removed %d tag(s) from %s\n", len(tags), id)
}

func runTagList(id string) {
	db, _, gr, _ := openStores()
	defer db.Close()

	tags, err := gr.GetTags(id)
	exitOnError(err)
	if len(tags) == 0 {
		fmt.Println("No tags.")
		return
	}
	fmt.Println(strings.Join(tags, ", "))
}

func runTagListAll() {
	db, _, gr, _ := openStores()
	defer db.Close()

	tags, err := gr.ListAllTags()
	exitOnError(err)
	for _, tc := range tags {
		fmt.Printf("%-20s %d\n", tc.Tag, tc.Count)
	}
}

func runTagSearch(tag string) {
	db, st, gr, _ := openStores()
	defer db.Close()

	ids, err := gr.SearchByTag(tag, graph.SearchByTagOptions{ProjectID: tagProjectID, Limit: tagLimit})
	exitOnError(err)

	fmt.Printf("%d memor%s tagged %q\n\n", len(ids), plural(len(ids)), tag)
	for i, id := range ids {
		m, err := st.Get(id)
		exitOnError(err)
		if m == nil {
			continue
		}
		fmt.Printf("%d. %s\n   ID: %s\n", i+1, truncate(m.Content, 100), m.ID)
	}
}

func runLink(source, target string) {
	db, _, gr, _ := openStores()
	defer db.Close()

	ok, err := gr.AddLink(source, target, linkRelationship)
	exitOnError(err)
	if !ok {
		fmt.Fprintf(os.Stderr, "link not created: check that both ids exist, differ, and the relationship is one of %s\n",
			strings.Join(database.RelationshipTypes, ", "))
		os.Exit(1)
	}
	fmt.Printf("Linked %s -> %s (%s)\n", source, target, linkRelationship)
}

func runUnlink(source, target string) {
	db, _, gr, _ := openStores()
	defer db.Close()

	exitOnError(gr.RemoveLink(source, target))
	fmt.Printf("Unlinked %s -> %s\n", source, target)
}

func runLinks(id string) {
	db, _, gr, _ := openStores()
	defer db.Close()

	links, err := gr.ListLinks(id)
	exitOnError(err)

	if len(links) == 0 {
		fmt.Println("No links.")
		return
	}
	for _, l := range links {
		arrow := "->"
		if !l.Outgoing {
			arrow = "<-"
		}
		fmt.Printf("%s %s (%s)\n", arrow, l.OtherID, l.Relationship)
	}
}

func runCleanup() {
	db, _, _, cfg := openStores()
	defer db.Close()

	m := maintenance.New(db, cfg.Memory.MaxMemories)
	if cleanupVacuum {
		if err := m.Vacuum(); err != nil {
			fmt.Fprintf(os.Stderr, "vacuum failed: %v\n", err)
		}
	}

	purgeDays, err := parsePurgeWindow(cleanupPurgeOlderThan)
	exitOnError(err)

	report := m.Run(purgeDays)
	fmt.Println("Cleanup report:")
	if report.OptimizeError != "" {
		fmt.Printf("  optimize: FAILED (%s)\n", report.OptimizeError)
	} else {
		fmt.Println("  optimize: ok")
	}
	if report.PurgeError != "" {
		fmt.Printf("  purge:    FAILED (%s)\n", report.PurgeError)
	} else {
		fmt.Printf("  purge:    %d removed\n", report.PurgedCount)
	}
	if report.CapError != "" {
		fmt.Printf("  cap:      FAILED (%s)\n", report.CapError)
	} else if report.CapEnforced > 0 {
		fmt.Printf("  cap:      %d removed\n", report.CapEnforced)
	}
	if report.SizeError == "" {
		fmt.Printf("  size:     %d bytes\n", report.SizeBytes)
	}
}

// exportDocument mirrors the shape produced by the MCP and REST export
// surfaces so a file written by one can be read back by the other.
type exportDocument struct {
	Version    int              `json:"version"`
	ExportedAt string           `json:"exported_at"`
	Memories   []exportedMemory `json:"memories"`
}

type exportedLink struct {
	TargetID     string `json:"target_id"`
	Relationship string `json:"relationship"`
}

type exportedMemory struct {
	ID          string         `json:"id"`
	Content     string         `json:"content"`
	Category    string         `json:"category"`
	SessionID   string         `json:"session_id"`
	ProjectID   *string        `json:"project_id,omitempty"`
	Source      string         `json:"source"`
	Tags        []string       `json:"tags"`
	TimeCreated string         `json:"time_created"`
	TimeUpdated string         `json:"time_updated"`
	AccessCount int            `json:"access_count"`
	Links       []exportedLink `json:"links,omitempty"`
}

func runExport() {
	db, st, gr, _ := openStores()
	defer db.Close()

	memories, err := st.List(store.ListFilters{Scope: store.ScopeAll, Limit: 1 << 30})
	exitOnError(err)

	doc := exportDocument{
		Version:    1,
		ExportedAt: time.Now().Format(time.RFC3339),
		Memories:   make([]exportedMemory, 0, len(memories)),
	}
	for _, m := range memories {
		links, err := gr.ListLinks(m.ID)
		exitOnError(err)

		var outgoing []exportedLink
		for _, l := range links {
			if l.Outgoing {
				outgoing = append(outgoing, exportedLink{TargetID: l.OtherID, Relationship: l.Relationship})
			}
		}

		doc.Memories = append(doc.Memories, exportedMemory{
			ID:          m.ID,
			Content:     m.Content,
			Category:    m.Category,
			SessionID:   m.SessionID,
			AccessCount: m.AccessCount,
			ProjectID:   m.ProjectID,
			Source:      m.Source,
			Tags:        m.Tags,
			TimeCreated: m.TimeCreated.Format("2006-01-02T15:04:05Z07:00"),
			TimeUpdated: m.TimeUpdated.Format("2006-01-02T15:04:05Z07:00"),
			Links:       outgoing,
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	exitOnError(enc.Encode(doc))
}

func runImport(path string) {
	raw, err := os.ReadFile(path)
	exitOnError(err)

	var doc exportDocument
	exitOnError(json.Unmarshal(raw, &doc))

	db, st, gr, _ := openStores()
	defer db.Close()

	idMap := make(map[string]string, len(doc.Memories))
	imported := 0
	for _, em := range doc.Memories {
		if existing, _ := st.Get(em.ID); existing != nil {
			idMap[em.ID] = em.ID
			continue
		}
		m, err := st.Insert(store.InsertInput{
			Content:   em.Content,
			Category:  em.Category,
			SessionID: em.SessionID,
			ProjectID: em.ProjectID,
			Source:    em.Source,
			Tags:      em.Tags,
			Force:     true,
		})
		exitOnError(err)
		idMap[em.ID] = m.ID
		imported++
	}

	links := 0
	for _, em := range doc.Memories {
		source, ok := idMap[em.ID]
		if !ok {
			continue
		}
		for _, l := range em.Links {
			target, ok := idMap[l.TargetID]
			if !ok || !database.IsValidRelationshipType(l.Relationship) {
				continue
			}
			if added, err := gr.AddLink(source, target, l.Relationship); err == nil && added {
				links++
			}
		}
	}

	fmt.Printf("Imported %d memor%s and %d link%s.\n", imported, plural(imported), links, pluralS(links))
}

func runFileCheck(path string) {
	db, st, gr, _ := openStores()
	defer db.Close()

	fc := filecache.New(st, gr)
	fresh, err := fc.CheckFreshness(path, fileCheckProjectID)
	exitOnError(err)

	if !fresh.Exists {
		fmt.Println("No cached memory for this file.")
		return
	}
	fmt.Printf("Memory:  %s\n", fresh.MemoryID)
	fmt.Printf("Fresh:   %t\n", fresh.Fresh)
	if !fresh.Fresh {
		fmt.Println("The file has changed since it was cached.")
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}

func pluralS(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
