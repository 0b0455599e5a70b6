package mcp

import (
	"time"

	"github.com/loomkeep/loomkeep/internal/graph"
	"github.com/loomkeep/loomkeep/internal/maintenance"
	"github.com/loomkeep/loomkeep/internal/ratelimit"
	"github.com/loomkeep/loomkeep/internal/store"
)

// MemoryDTO is the wire representation of a store.Memory.
type MemoryDTO struct {
	ID               string   `json:"id"`
	Content          string   `json:"content"`
	Category         string   `json:"category"`
	SessionID        string   `json:"session_id,omitempty"`
	ProjectID        string   `json:"project_id,omitempty"`
	Source           string   `json:"source,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	TimeCreated      string   `json:"time_created"`
	TimeUpdated      string   `json:"time_updated"`
	AccessCount      int      `json:"access_count"`
	TimeLastAccessed string   `json:"time_last_accessed,omitempty"`
}

func toMemoryDTO(m *store.Memory) MemoryDTO {
	dto := MemoryDTO{
		ID:          m.ID,
		Content:     m.Content,
		Category:    m.Category,
		SessionID:   m.SessionID,
		Source:      m.Source,
		Tags:        m.Tags,
		TimeCreated: m.TimeCreated.Format(time.RFC3339),
		TimeUpdated: m.TimeUpdated.Format(time.RFC3339),
		AccessCount: m.AccessCount,
	}
	if m.ProjectID != nil {
		dto.ProjectID = *m.ProjectID
	}
	if m.TimeLastAccessed != nil {
		dto.TimeLastAccessed = m.TimeLastAccessed.Format(time.RFC3339)
	}
	return dto
}

// StoreResponse is the result of memory_store.
type StoreResponse struct {
	Memory MemoryDTO `json:"memory"`
}

// SearchResultDTO pairs a memory with its relevance.
type SearchResultDTO struct {
	Memory    MemoryDTO `json:"memory"`
	Relevance float64   `json:"relevance"`
}

// SearchResponse is the result of memory_search.
type SearchResponse struct {
	Query   string            `json:"query"`
	Count   int               `json:"count"`
	Results []SearchResultDTO `json:"results"`
}

// MemoryOpResponse is the result of memory_update/memory_refresh:
// Success is false when the id was unknown.
type MemoryOpResponse struct {
	Success bool       `json:"success"`
	Memory  *MemoryDTO `json:"memory,omitempty"`
	Message string     `json:"message,omitempty"`
}

// DeleteResponse is the result of memory_delete.
type DeleteResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

// ListResponse is the result of memory_list.
type ListResponse struct {
	Count     int         `json:"count"`
	Memories  []MemoryDTO `json:"memories"`
}

// StatsResponse is the result of memory_stats.
type StatsResponse struct {
	Total      int                `json:"total"`
	ByCategory map[string]int     `json:"by_category"`
	RateLimit  *RateLimitStatsDTO `json:"rate_limit,omitempty"`
}

// RateLimitStatsDTO surfaces the tool-call limiter's counters so an
// operator can tell memory_stats from a client that's being throttled.
type RateLimitStatsDTO struct {
	Enabled       bool               `json:"enabled"`
	TotalAllowed  uint64             `json:"total_allowed"`
	TotalRejected uint64             `json:"total_rejected"`
	RejectionRate float64            `json:"rejection_rate"`
	GlobalTokens  float64            `json:"global_tokens_available"`
	ToolTokens    map[string]float64 `json:"tool_tokens_available,omitempty"`
}

func toStatsResponse(s *store.Stats, limiter *ratelimit.Limiter) *StatsResponse {
	resp := &StatsResponse{Total: s.Total, ByCategory: s.ByCategory}
	if limiter != nil {
		snap := limiter.GetMetrics().Snapshot()
		bucketStats := limiter.GetStats()
		resp.RateLimit = &RateLimitStatsDTO{
			Enabled:       bucketStats.Enabled,
			TotalAllowed:  snap.TotalAllowed,
			TotalRejected: snap.TotalRejected,
			RejectionRate: limiter.GetMetrics().RejectionRate(),
			GlobalTokens:  bucketStats.GlobalTokens,
			ToolTokens:    bucketStats.ToolTokens,
		}
	}
	return resp
}

// TagCountDTO pairs a tag with its usage count.
type TagCountDTO struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// TagResponse covers every memory_tag subaction; only the fields
// relevant to the invoked action are populated.
type TagResponse struct {
	Success bool          `json:"success,omitempty"`
	Tags    []string      `json:"tags,omitempty"`
	AllTags []TagCountDTO `json:"all_tags,omitempty"`
	IDs     []string      `json:"ids,omitempty"`
}

// LinkDTO is the wire representation of a graph.Link.
type LinkDTO struct {
	OtherID      string `json:"other_id"`
	Relationship string `json:"relationship"`
	Outgoing     bool   `json:"outgoing"`
}

func toLinkDTOs(links []graph.Link) []LinkDTO {
	out := make([]LinkDTO, len(links))
	for i, l := range links {
		out[i] = LinkDTO{OtherID: l.OtherID, Relationship: l.Relationship, Outgoing: l.Outgoing}
	}
	return out
}

// LinkResponse covers every memory_link subaction.
type LinkResponse struct {
	Success bool      `json:"success,omitempty"`
	Links   []LinkDTO `json:"links,omitempty"`
}

// CleanupResponse is the result of memory_cleanup.
type CleanupResponse struct {
	OptimizeError string `json:"optimize_error,omitempty"`
	PurgedCount   int    `json:"purged_count"`
	PurgeError    string `json:"purge_error,omitempty"`
	CapEnforced   int    `json:"cap_enforced"`
	CapError      string `json:"cap_error,omitempty"`
	SizeBytes     int64  `json:"size_bytes"`
	SizeError     string `json:"size_error,omitempty"`
}

func toCleanupResponse(r maintenance.Report) CleanupResponse {
	return CleanupResponse{
		OptimizeError: r.OptimizeError,
		PurgedCount:   r.PurgedCount,
		PurgeError:    r.PurgeError,
		CapEnforced:   r.CapEnforced,
		CapError:      r.CapError,
		SizeBytes:     r.SizeBytes,
		SizeError:     r.SizeError,
	}
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

// ExportDocument is the spec §6 export format v1.
type ExportDocument struct {
	Version    int            `json:"version"`
	ExportedAt string         `json:"exported_at"`
	Memories   []ExportMemory `json:"memories"`
}

// ImportResponse is the result of memory_import.
type ImportResponse struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// FileCheckResponse is the result of memory_file_check.
type FileCheckResponse struct {
	Exists bool   `json:"exists"`
	Fresh  bool   `json:"fresh"`
	Path   string `json:"path"`
}
