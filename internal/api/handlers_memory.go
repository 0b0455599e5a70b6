package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loomkeep/loomkeep/internal/database"
	"github.com/loomkeep/loomkeep/internal/graph"
	"github.com/loomkeep/loomkeep/internal/store"
)

// RateLimitStats surfaces the tool-call limiter's counters alongside
// memory stats so an operator can tell a quiet store from a throttled one.
type RateLimitStats struct {
	Enabled       bool               `json:"enabled"`
	TotalAllowed  uint64             `json:"total_allowed"`
	TotalRejected uint64             `json:"total_rejected"`
	RejectionRate float64            `json:"rejection_rate"`
	GlobalTokens  float64            `json:"global_tokens_available"`
	ToolTokens    map[string]float64 `json:"tool_tokens_available,omitempty"`
}

// MemoryStatsData is the response body for GET /memories/stats.
type MemoryStatsData struct {
	Total      int             `json:"total"`
	ByCategory map[string]int  `json:"by_category"`
	RateLimit  *RateLimitStats `json:"rate_limit,omitempty"`
}

// MemoryData is the wire representation of a store.Memory.
type MemoryData struct {
	ID               string    `json:"id"`
	Content          string    `json:"content"`
	Category         string    `json:"category"`
	SessionID        string    `json:"session_id,omitempty"`
	ProjectID        string    `json:"project_id,omitempty"`
	Source           string    `json:"source,omitempty"`
	Tags             []string  `json:"tags"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	AccessCount      int       `json:"access_count"`
	LastAccessed     *time.Time `json:"last_accessed,omitempty"`
}

func toMemoryData(m *store.Memory) *MemoryData {
	data := &MemoryData{
		ID:          m.ID,
		Content:     m.Content,
		Category:    m.Category,
		SessionID:   m.SessionID,
		Source:      m.Source,
		Tags:        m.Tags,
		CreatedAt:   m.TimeCreated,
		UpdatedAt:   m.TimeUpdated,
		AccessCount: m.AccessCount,
	}
	if m.ProjectID != nil {
		data.ProjectID = *m.ProjectID
	}
	if m.TimeLastAccessed != nil {
		data.LastAccessed = m.TimeLastAccessed
	}
	if data.Tags == nil {
		data.Tags = []string{}
	}
	return data
}

// CreateMemoryRequest represents a memory creation request.
type CreateMemoryRequest struct {
	Content   string   `json:"content" binding:"required"`
	Category  string   `json:"category"`
	ProjectID string   `json:"project_id"`
	SessionID string   `json:"session_id"`
	Source    string   `json:"source"`
	Tags      []string `json:"tags"`
	Force     bool     `json:"force"`
}

// UpdateMemoryRequest represents a memory update request.
type UpdateMemoryRequest struct {
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Source   string   `json:"source"`
	Tags     []string `json:"tags"`
}

// createMemory handles POST /api/v1/memories.
func (s *Server) createMemory(c *gin.Context) {
	var req CreateMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "Invalid request body: "+err.Error())
		return
	}
	if err := validateContent(req.Content); err != nil {
		BadRequestError(c, err.Error())
		return
	}
	if err := validateTags(req.Tags); err != nil {
		BadRequestError(c, err.Error())
		return
	}

	var projectID *string
	if req.ProjectID != "" {
		projectID = &req.ProjectID
	}

	mem, err := s.store.Insert(store.InsertInput{
		Content:   req.Content,
		Category:  req.Category,
		SessionID: req.SessionID,
		ProjectID: projectID,
		Source:    req.Source,
		Tags:      req.Tags,
		Force:     req.Force,
	})
	if err != nil {
		InternalError(c, "Failed to store memory: "+err.Error())
		return
	}

	CreatedResponse(c, "Memory stored successfully", toMemoryData(mem))
}

// getMemory handles GET /api/v1/memories/:id.
func (s *Server) getMemory(c *gin.Context) {
	id := c.Param("id")

	mem, err := s.store.Get(id)
	if err != nil {
		InternalError(c, "Failed to get memory: "+err.Error())
		return
	}
	if mem == nil {
		NotFoundErrorWithID(c, id)
		return
	}

	SuccessResponse(c, "Memory retrieved successfully", toMemoryData(mem))
}

// listMemories handles GET /api/v1/memories.
func (s *Server) listMemories(c *gin.Context) {
	limit := clampLimit(parseIntQuery(c, "limit", DefaultLimit))

	memories, err := s.store.List(store.ListFilters{
		Category:  c.Query("category"),
		ProjectID: c.Query("project_id"),
		SessionID: c.Query("session_id"),
		Scope:     store.Scope(c.Query("scope")),
		Limit:     limit,
	})
	if err != nil {
		InternalError(c, "Failed to list memories: "+err.Error())
		return
	}

	results := make([]*MemoryData, len(memories))
	for i, m := range memories {
		results[i] = toMemoryData(m)
	}

	SuccessResponse(c, "Listed memories", results)
}

// SearchResultData pairs a memory with its relevance.
type SearchResultData struct {
	Memory    *MemoryData `json:"memory"`
	Relevance float64     `json:"relevance"`
}

// searchMemories handles GET /api/v1/memories/search.
func (s *Server) searchMemories(c *gin.Context) {
	query := c.Query("query")
	if err := validateQuery(query); err != nil {
		BadRequestError(c, err.Error())
		return
	}

	limit := clampLimit(parseIntQuery(c, "limit", DefaultLimit))

	results, err := s.store.Search(store.SearchOptions{
		Query:     query,
		ProjectID: c.Query("project_id"),
		Category:  c.Query("category"),
		Scope:     store.Scope(c.Query("scope")),
		Limit:     limit,
	})
	if err != nil {
		InternalError(c, "Search failed: "+err.Error())
		return
	}

	out := make([]*SearchResultData, len(results))
	for i, r := range results {
		out[i] = &SearchResultData{Memory: toMemoryData(r.Memory), Relevance: r.Relevance}
	}

	SuccessResponse(c, "Search complete", out)
}

// updateMemory handles PUT /api/v1/memories/:id.
func (s *Server) updateMemory(c *gin.Context) {
	id := c.Param("id")

	var req UpdateMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "Invalid request body: "+err.Error())
		return
	}

	patch := store.Patch{}
	if req.Content != "" {
		patch.Content = &req.Content
	}
	if req.Category != "" {
		patch.Category = &req.Category
	}
	if req.Source != "" {
		patch.Source = &req.Source
	}
	if req.Tags != nil {
		patch.Tags = req.Tags
	}

	mem, err := s.store.Update(id, patch)
	if err != nil {
		InternalError(c, "Failed to update memory: "+err.Error())
		return
	}
	if mem == nil {
		NotFoundError(c, "Memory not found")
		return
	}

	SuccessResponse(c, "Memory updated successfully", toMemoryData(mem))
}

// deleteMemory handles DELETE /api/v1/memories/:id.
func (s *Server) deleteMemory(c *gin.Context) {
	id := c.Param("id")

	ok, err := s.store.Delete(id)
	if err != nil {
		InternalError(c, "Failed to delete memory: "+err.Error())
		return
	}
	if !ok {
		NotFoundError(c, "Memory not found")
		return
	}

	SuccessResponse(c, "Memory deleted successfully", gin.H{"id": id, "status": "deleted"})
}

// refreshMemory handles POST /api/v1/memories/:id/refresh.
func (s *Server) refreshMemory(c *gin.Context) {
	id := c.Param("id")

	mem, err := s.store.Refresh(id)
	if err != nil {
		InternalError(c, "Failed to refresh memory: "+err.Error())
		return
	}
	if mem == nil {
		NotFoundError(c, "Memory not found")
		return
	}

	SuccessResponse(c, "Memory refreshed", toMemoryData(mem))
}

// memoryStats handles GET /api/v1/memories/stats.
func (s *Server) memoryStats(c *gin.Context) {
	stats, err := s.store.GetStats()
	if err != nil {
		InternalError(c, "Failed to get stats: "+err.Error())
		return
	}

	data := &MemoryStatsData{Total: stats.Total, ByCategory: stats.ByCategory}
	if s.rateLimiter != nil {
		metrics := s.rateLimiter.GetMetrics()
		bucketStats := s.rateLimiter.GetStats()
		data.RateLimit = &RateLimitStats{
			Enabled:       bucketStats.Enabled,
			TotalAllowed:  metrics.TotalAllowed(),
			TotalRejected: metrics.TotalRejected(),
			RejectionRate: metrics.RejectionRate(),
			GlobalTokens:  bucketStats.GlobalTokens,
			ToolTokens:    bucketStats.ToolTokens,
		}
	}
	SuccessResponse(c, "Stats retrieved", data)
}

// listMemoryTags handles GET /api/v1/memories/:id/tags.
func (s *Server) listMemoryTags(c *gin.Context) {
	tags, err := s.graph.GetTags(c.Param("id"))
	if err != nil {
		InternalError(c, "Failed to list tags: "+err.Error())
		return
	}
	SuccessResponse(c, "Tags retrieved", tags)
}

// TagsRequest is the body for tag mutation endpoints.
type TagsRequest struct {
	Tags []string `json:"tags" binding:"required"`
}

// addMemoryTags handles POST /api/v1/memories/:id/tags.
func (s *Server) addMemoryTags(c *gin.Context) {
	var req TagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "Invalid request body: "+err.Error())
		return
	}
	if err := validateTags(req.Tags); err != nil {
		BadRequestError(c, err.Error())
		return
	}
	if err := s.graph.AddTags(c.Param("id"), req.Tags); err != nil {
		InternalError(c, "Failed to add tags: "+err.Error())
		return
	}
	SuccessResponse(c, "Tags added", nil)
}

// removeMemoryTags handles DELETE /api/v1/memories/:id/tags.
func (s *Server) removeMemoryTags(c *gin.Context) {
	var req TagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "Invalid request body: "+err.Error())
		return
	}
	if err := s.graph.RemoveTags(c.Param("id"), req.Tags); err != nil {
		InternalError(c, "Failed to remove tags: "+err.Error())
		return
	}
	SuccessResponse(c, "Tags removed", nil)
}

// listAllTags handles GET /api/v1/tags.
func (s *Server) listAllTags(c *gin.Context) {
	tags, err := s.graph.ListAllTags()
	if err != nil {
		InternalError(c, "Failed to list tags: "+err.Error())
		return
	}
	SuccessResponse(c, "Tags retrieved", tags)
}

// searchByTag handles GET /api/v1/tags/:tag.
func (s *Server) searchByTag(c *gin.Context) {
	ids, err := s.graph.SearchByTag(c.Param("tag"), graph.SearchByTagOptions{
		ProjectID: c.Query("project_id"),
		Limit:     clampLimit(parseIntQuery(c, "limit", DefaultLimit)),
	})
	if err != nil {
		InternalError(c, "Tag search failed: "+err.Error())
		return
	}
	SuccessResponse(c, "Tag search complete", ids)
}

// LinkData is the wire representation of a graph.Link.
type LinkData struct {
	OtherID      string `json:"other_id"`
	Relationship string `json:"relationship"`
	Outgoing     bool   `json:"outgoing"`
}

// listLinks handles GET /api/v1/memories/:id/links.
func (s *Server) listLinks(c *gin.Context) {
	links, err := s.graph.ListLinks(c.Param("id"))
	if err != nil {
		InternalError(c, "Failed to list links: "+err.Error())
		return
	}

	out := make([]LinkData, len(links))
	for i, l := range links {
		out[i] = LinkData{OtherID: l.OtherID, Relationship: l.Relationship, Outgoing: l.Outgoing}
	}

	SuccessResponse(c, "Links retrieved", out)
}

// LinkRequest is the body for link mutation endpoints.
type LinkRequest struct {
	SourceID     string `json:"source_id" binding:"required"`
	TargetID     string `json:"target_id" binding:"required"`
	Relationship string `json:"relationship"`
}

// createLink handles POST /api/v1/links.
func (s *Server) createLink(c *gin.Context) {
	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "Invalid request body: "+err.Error())
		return
	}

	ok, err := s.graph.AddLink(req.SourceID, req.TargetID, req.Relationship)
	if err != nil {
		BadRequestError(c, err.Error())
		return
	}

	SuccessResponse(c, "Link created", gin.H{"success": ok})
}

// removeLink handles DELETE /api/v1/links.
func (s *Server) removeLink(c *gin.Context) {
	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "Invalid request body: "+err.Error())
		return
	}

	if err := s.graph.RemoveLink(req.SourceID, req.TargetID); err != nil {
		InternalError(c, "Failed to remove link: "+err.Error())
		return
	}

	SuccessResponse(c, "Link removed", nil)
}

// CleanupRequest is the body for the maintenance cleanup endpoint.
type CleanupRequest struct {
	PurgeDays int  `json:"purge_days"`
	Vacuum    bool `json:"vacuum"`
}

// runCleanup handles POST /api/v1/maintenance/cleanup.
func (s *Server) runCleanup(c *gin.Context) {
	var req CleanupRequest
	_ = c.ShouldBindJSON(&req)

	if req.Vacuum {
		if err := s.maintainer.Vacuum(); err != nil {
			s.log.Warn("vacuum failed during cleanup", "error", err)
		}
	}

	report := s.maintainer.Run(req.PurgeDays)
	SuccessResponse(c, "Maintenance complete", report)
}

// ExportLink is one outgoing link recorded in an export document.
type ExportLink struct {
	TargetID     string `json:"target_id"`
	Relationship string `json:"relationship"`
}

// ExportMemory is one memory recorded in an export document.
type ExportMemory struct {
	ID          string       `json:"id"`
	Content     string       `json:"content"`
	Category    string       `json:"category"`
	Source      string       `json:"source,omitempty"`
	ProjectID   string       `json:"project_id,omitempty"`
	TimeCreated string       `json:"time_created"`
	TimeUpdated string       `json:"time_updated"`
	AccessCount int          `json:"access_count"`
	Tags        []string     `json:"tags,omitempty"`
	Links       []ExportLink `json:"links,omitempty"`
}

// ExportDocument is the export format v1.
type ExportDocument struct {
	Version    int            `json:"version"`
	ExportedAt string         `json:"exported_at"`
	Memories   []ExportMemory `json:"memories"`
}

// exportMemories handles GET /api/v1/export.
func (s *Server) exportMemories(c *gin.Context) {
	memories, err := s.store.List(store.ListFilters{
		ProjectID: c.Query("project_id"),
		Scope:     store.ScopeAll,
		Limit:     1 << 30,
	})
	if err != nil {
		InternalError(c, "Export failed: "+err.Error())
		return
	}

	doc := ExportDocument{Version: 1, ExportedAt: time.Now().Format(time.RFC3339)}
	for _, m := range memories {
		links, err := s.graph.ListLinks(m.ID)
		if err != nil {
			InternalError(c, "Export failed: "+err.Error())
			return
		}
		em := ExportMemory{
			ID: m.ID, Content: m.Content, Category: m.Category, Source: m.Source,
			TimeCreated: m.TimeCreated.Format(time.RFC3339), TimeUpdated: m.TimeUpdated.Format(time.RFC3339),
			AccessCount: m.AccessCount, Tags: m.Tags,
		}
		if m.ProjectID != nil {
			em.ProjectID = *m.ProjectID
		}
		for _, l := range links {
			if l.Outgoing {
				em.Links = append(em.Links, ExportLink{TargetID: l.OtherID, Relationship: l.Relationship})
			}
		}
		doc.Memories = append(doc.Memories, em)
	}

	c.JSON(http.StatusOK, doc)
}

// importMemories handles POST /api/v1/import.
func (s *Server) importMemories(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		BadRequestError(c, "Failed to read request body: "+err.Error())
		return
	}

	var doc ExportDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		BadRequestError(c, "Invalid export document: "+err.Error())
		return
	}

	idMap := make(map[string]string)
	imported, skipped := 0, 0

	for _, em := range doc.Memories {
		if existing, err := s.store.Get(em.ID); err == nil && existing != nil {
			idMap[em.ID] = em.ID
			skipped++
			continue
		}

		var projectID *string
		if em.ProjectID != "" {
			projectID = &em.ProjectID
		}
		mem, err := s.store.Insert(store.InsertInput{
			Content: em.Content, Category: em.Category, ProjectID: projectID,
			Source: em.Source, Tags: em.Tags, Force: true,
		})
		if err != nil {
			InternalError(c, "Import failed: "+err.Error())
			return
		}
		idMap[em.ID] = mem.ID
		imported++
	}

	for _, em := range doc.Memories {
		sourceID, ok := idMap[em.ID]
		if !ok {
			continue
		}
		for _, link := range em.Links {
			targetID, ok := idMap[link.TargetID]
			if !ok || !database.IsValidRelationshipType(link.Relationship) {
				continue
			}
			if _, err := s.graph.AddLink(sourceID, targetID, link.Relationship); err != nil {
				s.log.Warn("failed to restore link during import", "error", err)
			}
		}
	}

	SuccessResponse(c, "Import complete", gin.H{"imported": imported, "skipped": skipped})
}

// checkFile handles GET /api/v1/files/check.
func (s *Server) checkFile(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		BadRequestError(c, "path is required")
		return
	}

	f, err := s.filecache.CheckFreshness(path, c.Query("project_id"))
	if err != nil {
		InternalError(c, "File check failed: "+err.Error())
		return
	}

	SuccessResponse(c, "File checked", gin.H{"exists": f.Exists, "fresh": f.Fresh, "path": path})
}

// healthHandler handles GET /api/v1/health.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// parseIntQuery parses an integer query parameter, falling back to a default.
func parseIntQuery(c *gin.Context, key string, defaultVal int) int {
	val := c.Query(key)
	if val == "" {
		return defaultVal
	}
	var result int
	if !parseIntString(val, &result) {
		return defaultVal
	}
	return result
}

func parseIntString(s string, result *int) bool {
	if s == "" {
		return false
	}
	var n int
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return false
		}
		n = n*10 + int(ch-'0')
	}
	*result = n
	return true
}
