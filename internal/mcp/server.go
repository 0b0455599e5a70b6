package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/loomkeep/loomkeep/internal/database"
	"github.com/loomkeep/loomkeep/internal/filecache"
	"github.com/loomkeep/loomkeep/internal/graph"
	"github.com/loomkeep/loomkeep/internal/logging"
	"github.com/loomkeep/loomkeep/internal/maintenance"
	"github.com/loomkeep/loomkeep/internal/ratelimit"
	"github.com/loomkeep/loomkeep/internal/store"
	"github.com/loomkeep/loomkeep/pkg/config"
)

const (
	ProtocolVersion = "2024-11-05"
	ServerName      = "loomkeep"
	ServerVersion   = "1.0.0"
)

// RateLimitExceeded is a JSON-RPC error code in the implementation-defined
// range (-32000 to -32099) signaling a tool call was throttled.
const RateLimitExceeded = -32001

// RateLimitErrorData is the error.data payload accompanying RateLimitExceeded.
type RateLimitErrorData struct {
	RetryAfterMs int64  `json:"retry_after_ms"`
	LimitType    string `json:"limit_type"`
	Message      string `json:"message"`
}

// Server implements the MCP stdio server for the memory tool surface.
type Server struct {
	cfg         *config.Config
	store       *store.Store
	graph       *graph.Graph
	maintainer  *maintenance.Maintainer
	filecache   *filecache.Cache
	rateLimiter *ratelimit.Limiter
	formatter   *Formatter
	log         *logging.Logger

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	mu          sync.Mutex
	initialized bool
}

// NewServer wires the memory engine components into an MCP server.
func NewServer(db *database.DB, cfg *config.Config) *Server {
	log := logging.GetLogger("mcp")
	log.Info("initializing MCP server", "version", ServerVersion, "protocol", ProtocolVersion)

	st := store.New(db)
	gr := graph.New(db)

	var rateLimiterInstance *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		rateLimiterInstance = ratelimit.NewLimiter(&cfg.RateLimit)
		log.Info("rate limiting enabled", "global_rps", cfg.RateLimit.Global.RequestsPerSecond)
	}

	return &Server{
		cfg:         cfg,
		store:       st,
		graph:       gr,
		maintainer:  maintenance.New(db, cfg.Memory.MaxMemories),
		filecache:   filecache.New(st, gr),
		rateLimiter: rateLimiterInstance,
		formatter:   NewFormatter(),
		log:         log,
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
	}
}

// Run starts the MCP server main loop, reading one JSON-RPC request per line.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("starting MCP server main loop")
	scanner := bufio.NewScanner(s.stdin)
	scanner.Buffer(make([]byte, 1024*1024), 10*1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			s.log.Info("context cancelled, shutting down")
			return ctx.Err()
		default:
		}

		line := scanner.Text()
		if line == "" {
			continue
		}

		response := s.handleRequest(ctx, line)
		if response != nil {
			s.sendResponse(response)
		}
	}

	if err := scanner.Err(); err != nil {
		s.log.Error("scanner error", "error", err)
		return fmt.Errorf("scanner error: %w", err)
	}

	s.log.Info("MCP server shutdown complete")
	return nil
}

// handleRequest processes a single JSON-RPC request.
func (s *Server) handleRequest(ctx context.Context, line string) *Response {
	var req Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		s.log.Error("failed to parse request", "error", err)
		return &Response{
			JSONRPC: "2.0",
			Error: &RPCError{
				Code:    ParseError,
				Message: "Parse error",
				Data:    err.Error(),
			},
		}
	}

	s.log.Debug("received request", "method", req.Method, "id", req.ID)

	if req.JSONRPC != "2.0" {
		s.log.Warn("invalid jsonrpc version", "version", req.JSONRPC)
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &RPCError{
				Code:    InvalidRequest,
				Message: "Invalid Request",
				Data:    "jsonrpc must be '2.0'",
			},
		}
	}

	switch req.Method {
	case "initialize":
		s.log.Info("handling initialize request")
		return s.handleInitialize(req)
	case "initialized":
		s.log.Debug("received initialized notification")
		return nil
	case "tools/list":
		s.log.Debug("handling tools/list request")
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "prompts/list":
		s.log.Debug("handling prompts/list request")
		return s.handlePromptsList(req)
	case "prompts/get":
		s.log.Debug("handling prompts/get request")
		return s.handlePromptsGet(req)
	case "ping":
		s.log.Debug("handling ping request")
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		s.log.Warn("method not found", "method", req.Method)
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &RPCError{
				Code:    MethodNotFound,
				Message: "Method not found",
				Data:    req.Method,
			},
		}
	}
}

// handleInitialize handles the initialize request.
func (s *Server) handleInitialize(req Request) *Response {
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: InitializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities: ServerCapabilities{
				Tools: &ToolsCapability{
					ListChanged: false,
				},
				Prompts: &PromptsCapability{
					ListChanged: false,
				},
			},
			ServerInfo: ServerInfo{
				Name:    ServerName,
				Version: ServerVersion,
			},
		},
	}
}

// handlePromptsList returns available prompts for automatic behavior.
func (s *Server) handlePromptsList(req Request) *Response {
	prompts := []Prompt{
		{
			Name:        "auto-memory",
			Description: "Instructions for automatic memory storage and retrieval",
			Arguments:   []PromptArgument{},
		},
	}

	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: PromptsListResult{
			Prompts: prompts,
		},
	}
}

// handlePromptsGet returns the content of a specific prompt.
func (s *Server) handlePromptsGet(req Request) *Response {
	var params struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &RPCError{
				Code:    InvalidParams,
				Message: "Invalid params",
				Data:    err.Error(),
			},
		}
	}

	if params.Name != "auto-memory" {
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &RPCError{
				Code:    InvalidParams,
				Message: "Prompt not found",
				Data:    params.Name,
			},
		}
	}

	promptContent := `# Persistent Memory

You have access to a persistent, per-project memory store. Use it proactively to build and leverage a knowledge base across sessions.

## SEARCH FIRST
At the start of a task, call memory_search for context related to the topic at hand: past decisions, preferences, and known gotchas.

## STORE AS YOU GO
Call memory_store when the user shares information worth keeping:

| Type | Example | Category |
|------|---------|----------|
| Decision | "We chose X because..." | decision |
| Debugging insight | "The bug was caused by..." | anti-pattern |
| Architecture | "This service handles..." | general |
| Preference | "I prefer X over Y" | preference |

## TAGGING
Use memory_tag to attach consistent, searchable tags (language, subsystem, topic).

## LINKING
Use memory_link to connect related memories (relationship: related, supersedes, contradicts, extends) so future searches surface context as a graph, not isolated rows.

## FILE FRESHNESS
Before relying on remembered file contents, call memory_file_check — the cache fingerprints files by git commit hash and mtime and reports whether a stored summary is stale.`

	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: PromptGetResult{
			Description: "Instructions for automatic memory storage and retrieval",
			Messages: []PromptMessage{
				{
					Role: "user",
					Content: ContentBlock{
						Type: "text",
						Text: promptContent,
					},
				},
			},
		},
	}
}

// handleToolsList returns the list of available tools.
func (s *Server) handleToolsList(req Request) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: ToolsListResult{
			Tools: s.getToolDefinitions(),
		},
	}
}

// handleToolsCall handles tool invocation.
func (s *Server) handleToolsCall(ctx context.Context, req Request) *Response {
	var params CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.log.Error("failed to parse tool params", "error", err)
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &RPCError{
				Code:    InvalidParams,
				Message: "Invalid params",
				Data:    err.Error(),
			},
		}
	}

	s.log.LogRequest("tools/call", "tool", params.Name)

	if s.rateLimiter != nil {
		result := s.rateLimiter.Allow(params.Name)
		if !result.Allowed {
			s.log.Warn("rate limit exceeded", "tool", params.Name, "limit_type", result.LimitType, "retry_after_ms", result.RetryAfter.Milliseconds())
			return &Response{
				JSONRPC: "2.0",
				ID:      req.ID,
				Error: &RPCError{
					Code:    RateLimitExceeded,
					Message: "Rate limit exceeded",
					Data: RateLimitErrorData{
						RetryAfterMs: result.RetryAfter.Milliseconds(),
						LimitType:    result.LimitType,
						Message:      fmt.Sprintf("Rate limit exceeded for %s. Retry after %v.", result.LimitType, result.RetryAfter),
					},
				},
			}
		}
	}

	startTime := time.Now()

	result, err := s.callTool(ctx, params.Name, params.Arguments)
	if err != nil {
		duration := time.Since(startTime).Seconds() * 1000
		s.log.LogError("tool_call", err, "tool", params.Name, "duration_ms", duration)
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: CallToolResult{
				Content: []ContentBlock{
					{Type: "text", Text: fmt.Sprintf("❌ **Error**\n\n```\n%v\n```", err)},
				},
				IsError: true,
			},
		}
	}

	duration := time.Since(startTime)
	durationMs := duration.Seconds() * 1000
	s.log.LogResponse("tools/call", durationMs, "tool", params.Name)

	formattedOutput := s.formatter.FormatToolResponse(params.Name, result, duration)

	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: CallToolResult{
			Content: []ContentBlock{
				{Type: "text", Text: formattedOutput},
			},
		},
	}
}

// callTool dispatches to the appropriate tool handler.
func (s *Server) callTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal arguments: %w", err)
	}

	switch name {
	case "memory_store":
		return s.handleMemoryStore(ctx, argsJSON)
	case "memory_search":
		return s.handleMemorySearch(ctx, argsJSON)
	case "memory_update":
		return s.handleMemoryUpdate(ctx, argsJSON)
	case "memory_delete":
		return s.handleMemoryDelete(ctx, argsJSON)
	case "memory_list":
		return s.handleMemoryList(ctx, argsJSON)
	case "memory_stats":
		return s.handleMemoryStats(ctx, argsJSON)
	case "memory_refresh":
		return s.handleMemoryRefresh(ctx, argsJSON)
	case "memory_tag":
		return s.handleMemoryTag(ctx, argsJSON)
	case "memory_link":
		return s.handleMemoryLink(ctx, argsJSON)
	case "memory_cleanup":
		return s.handleMemoryCleanup(ctx, argsJSON)
	case "memory_export":
		return s.handleMemoryExport(ctx, argsJSON)
	case "memory_import":
		return s.handleMemoryImport(ctx, argsJSON)
	case "memory_file_check":
		return s.handleMemoryFileCheck(ctx, argsJSON)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// sendResponse sends a JSON-RPC response to stdout.
func (s *Server) sendResponse(resp *Response) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("failed to marshal response", "error", err)
		return
	}

	fmt.Fprintln(s.stdout, string(data))
}

// getToolDefinitions returns all tool definitions for the memory surface.
func (s *Server) getToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "memory_store",
			Description: "Store a new memory, deduplicating against recent exact and near-duplicate matches",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"content":    {Type: "string", Description: "The memory content to store"},
					"category":   {Type: "string", Description: "Category, defaults to general"},
					"project_id": {Type: "string", Description: "Project scope identifier"},
					"session_id": {Type: "string", Description: "Session identifier"},
					"source":     {Type: "string", Description: "Where this memory came from"},
					"tags":       {Type: "array", Description: "Tags for categorization", Items: &Property{Type: "string"}},
					"force":      {Type: "boolean", Description: "Bypass deduplication", Default: false},
				},
				Required: []string{"content"},
			},
		},
		{
			Name:        "memory_search",
			Description: "Search memories by normalized full-text query, ranked by relevance, recency, and access frequency",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"query":      {Type: "string", Description: "Search query text"},
					"category":   {Type: "string", Description: "Filter by category"},
					"project_id": {Type: "string", Description: "Project scope identifier"},
					"scope":      {Type: "string", Description: "Scope: project, global, or all", Enum: []string{"project", "global", "all"}},
					"limit":      {Type: "integer", Description: "Maximum number of results", Default: 10},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "memory_update",
			Description: "Update an existing memory's content, category, source, or tags",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"id":       {Type: "string", Description: "Memory ID to update"},
					"content":  {Type: "string", Description: "New content"},
					"category": {Type: "string", Description: "New category"},
					"source":   {Type: "string", Description: "New source"},
					"tags":     {Type: "array", Description: "Replacement tag set", Items: &Property{Type: "string"}},
				},
				Required: []string{"id"},
			},
		},
		{
			Name:        "memory_delete",
			Description: "Delete a memory by ID",
			InputSchema: InputSchema{
				Type:       "object",
				Properties: map[string]Property{"id": {Type: "string", Description: "Memory ID to delete"}},
				Required:   []string{"id"},
			},
		},
		{
			Name:        "memory_list",
			Description: "List memories with optional category/project/session filtering and scope control",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"category":   {Type: "string", Description: "Filter by category"},
					"project_id": {Type: "string", Description: "Project scope identifier"},
					"session_id": {Type: "string", Description: "Filter by session"},
					"scope":      {Type: "string", Description: "Scope: project, global, or all", Enum: []string{"project", "global", "all"}},
					"limit":      {Type: "integer", Description: "Maximum number of results"},
				},
			},
		},
		{
			Name:        "memory_stats",
			Description: "Report total memory count and per-category breakdown",
			InputSchema: InputSchema{Type: "object"},
		},
		{
			Name:        "memory_refresh",
			Description: "Bump a memory's access count, marking it as recently used",
			InputSchema: InputSchema{
				Type:       "object",
				Properties: map[string]Property{"id": {Type: "string", Description: "Memory ID to refresh"}},
				Required:   []string{"id"},
			},
		},
		{
			Name:        "memory_tag",
			Description: "Manage tags on a memory: add, remove, list, list_all, or search by tag",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"action":     {Type: "string", Enum: []string{"add", "remove", "list", "list_all", "search"}},
					"memory_id":  {Type: "string", Description: "Target memory ID (add/remove/list)"},
					"tags":       {Type: "array", Description: "Tags to add or remove", Items: &Property{Type: "string"}},
					"tag":        {Type: "string", Description: "Tag to search for (search)"},
					"project_id": {Type: "string", Description: "Project scope for search"},
					"limit":      {Type: "integer", Description: "Maximum results for search"},
				},
				Required: []string{"action"},
			},
		},
		{
			Name:        "memory_link",
			Description: "Manage links between memories: link, unlink, or list",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"action":       {Type: "string", Enum: []string{"link", "unlink", "list"}},
					"source_id":    {Type: "string", Description: "Source memory ID (link/unlink)"},
					"target_id":    {Type: "string", Description: "Target memory ID (link/unlink)"},
					"relationship": {Type: "string", Description: "Relationship type (link)", Enum: []string{"related", "supersedes", "contradicts", "extends"}},
					"memory_id":    {Type: "string", Description: "Memory ID to list links for (list)"},
				},
				Required: []string{"action"},
			},
		},
		{
			Name:        "memory_cleanup",
			Description: "Run maintenance: optimize, optionally vacuum, purge old unaccessed memories, enforce the memory cap",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"purge_days": {Type: "integer", Description: "Purge unaccessed memories older than this many days"},
					"vacuum":     {Type: "boolean", Description: "Reclaim disk space with VACUUM", Default: false},
				},
			},
		},
		{
			Name:        "memory_export",
			Description: "Export memories and their links as a portable JSON document",
			InputSchema: InputSchema{
				Type:       "object",
				Properties: map[string]Property{"project_id": {Type: "string", Description: "Limit export to a project (plus global)"}},
			},
		},
		{
			Name:        "memory_import",
			Description: "Import a previously exported JSON document, skipping memories that already exist",
			InputSchema: InputSchema{
				Type:       "object",
				Properties: map[string]Property{"document": {Type: "object", Description: "The export document to import"}},
				Required:   []string{"document"},
			},
		},
		{
			Name:        "memory_file_check",
			Description: "Check whether the cached knowledge for a file is fresh against its current git hash and mtime",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"path":       {Type: "string", Description: "Absolute or repo-relative file path"},
					"project_id": {Type: "string", Description: "Project scope identifier"},
				},
				Required: []string{"path"},
			},
		},
	}
}
