package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/loomkeep/loomkeep/internal/database"
	"github.com/loomkeep/loomkeep/internal/graph"
	"github.com/loomkeep/loomkeep/internal/store"
)

func (s *Server) handleMemoryStore(ctx context.Context, argsJSON []byte) (interface{}, error) {
	var p MemoryStoreParams
	if err := json.Unmarshal(argsJSON, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	var projectID *string
	if p.ProjectID != "" {
		projectID = &p.ProjectID
	}

	m, err := s.store.Insert(store.InsertInput{
		Content:   p.Content,
		Category:  p.Category,
		SessionID: p.SessionID,
		ProjectID: projectID,
		Source:    p.Source,
		Tags:      p.Tags,
		Force:     p.Force,
	})
	if err != nil {
		return nil, err
	}
	return &StoreResponse{Memory: toMemoryDTO(m)}, nil
}

func (s *Server) handleMemorySearch(ctx context.Context, argsJSON []byte) (interface{}, error) {
	var p MemorySearchParams
	if err := json.Unmarshal(argsJSON, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	limit := p.Limit
	if limit <= 0 {
		limit = s.cfg.Memory.SearchLimit
	}

	results, err := s.store.Search(store.SearchOptions{
		Query:     p.Query,
		ProjectID: p.ProjectID,
		Scope:     store.Scope(p.Scope),
		Category:  p.Category,
		Limit:     limit,
	})
	if err != nil {
		return nil, err
	}

	resp := &SearchResponse{Query: p.Query, Count: len(results)}
	for _, r := range results {
		resp.Results = append(resp.Results, SearchResultDTO{Memory: toMemoryDTO(r.Memory), Relevance: r.Relevance})
	}
	return resp, nil
}

func (s *Server) handleMemoryUpdate(ctx context.Context, argsJSON []byte) (interface{}, error) {
	var p MemoryUpdateParams
	if err := json.Unmarshal(argsJSON, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	patch := store.Patch{}
	if p.Content != "" {
		patch.Content = &p.Content
	}
	if p.Category != "" {
		patch.Category = &p.Category
	}
	if p.Source != "" {
		patch.Source = &p.Source
	}
	if p.Tags != nil {
		patch.Tags = p.Tags
	}

	m, err := s.store.Update(p.ID, patch)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return &MemoryOpResponse{Success: false, Message: "memory not found"}, nil
	}
	dto := toMemoryDTO(m)
	return &MemoryOpResponse{Success: true, Memory: &dto}, nil
}

func (s *Server) handleMemoryDelete(ctx context.Context, argsJSON []byte) (interface{}, error) {
	var p MemoryDeleteParams
	if err := json.Unmarshal(argsJSON, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	ok, err := s.store.Delete(p.ID)
	if err != nil {
		return nil, err
	}
	return &DeleteResponse{Success: ok, ID: p.ID}, nil
}

func (s *Server) handleMemoryList(ctx context.Context, argsJSON []byte) (interface{}, error) {
	var p MemoryListParams
	if err := json.Unmarshal(argsJSON, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	memories, err := s.store.List(store.ListFilters{
		Category:  p.Category,
		ProjectID: p.ProjectID,
		SessionID: p.SessionID,
		Scope:     store.Scope(p.Scope),
		Limit:     p.Limit,
	})
	if err != nil {
		return nil, err
	}

	resp := &ListResponse{Count: len(memories)}
	for _, m := range memories {
		resp.Memories = append(resp.Memories, toMemoryDTO(m))
	}
	return resp, nil
}

func (s *Server) handleMemoryStats(ctx context.Context, argsJSON []byte) (interface{}, error) {
	stats, err := s.store.GetStats()
	if err != nil {
		return nil, err
	}
	return toStatsResponse(stats, s.rateLimiter), nil
}

func (s *Server) handleMemoryRefresh(ctx context.Context, argsJSON []byte) (interface{}, error) {
	var p MemoryRefreshParams
	if err := json.Unmarshal(argsJSON, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	m, err := s.store.Refresh(p.ID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return &MemoryOpResponse{Success: false, Message: "memory not found"}, nil
	}
	dto := toMemoryDTO(m)
	return &MemoryOpResponse{Success: true, Memory: &dto}, nil
}

func (s *Server) handleMemoryTag(ctx context.Context, argsJSON []byte) (interface{}, error) {
	var p MemoryTagParams
	if err := json.Unmarshal(argsJSON, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	switch p.Action {
	case "add":
		if err := s.graph.AddTags(p.MemoryID, p.Tags); err != nil {
			return nil, err
		}
		return &TagResponse{Success: true}, nil
	case "remove":
		if err := s.graph.RemoveTags(p.MemoryID, p.Tags); err != nil {
			return nil, err
		}
		return &TagResponse{Success: true}, nil
	case "list":
		tags, err := s.graph.GetTags(p.MemoryID)
		if err != nil {
			return nil, err
		}
		return &TagResponse{Tags: tags}, nil
	case "list_all":
		all, err := s.graph.ListAllTags()
		if err != nil {
			return nil, err
		}
		resp := &TagResponse{}
		for _, tc := range all {
			resp.AllTags = append(resp.AllTags, TagCountDTO{Tag: tc.Tag, Count: tc.Count})
		}
		return resp, nil
	case "search":
		ids, err := s.graph.SearchByTag(p.Tag, graph.SearchByTagOptions{ProjectID: p.ProjectID, Limit: p.Limit})
		if err != nil {
			return nil, err
		}
		return &TagResponse{IDs: ids}, nil
	default:
		return nil, fmt.Errorf("unknown memory_tag action: %s", p.Action)
	}
}

func (s *Server) handleMemoryLink(ctx context.Context, argsJSON []byte) (interface{}, error) {
	var p MemoryLinkParams
	if err := json.Unmarshal(argsJSON, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	switch p.Action {
	case "link":
		ok, err := s.graph.AddLink(p.SourceID, p.TargetID, p.Relationship)
		if err != nil {
			return nil, err
		}
		return &LinkResponse{Success: ok}, nil
	case "unlink":
		if err := s.graph.RemoveLink(p.SourceID, p.TargetID); err != nil {
			return nil, err
		}
		return &LinkResponse{Success: true}, nil
	case "list":
		links, err := s.graph.ListLinks(p.MemoryID)
		if err != nil {
			return nil, err
		}
		return &LinkResponse{Links: toLinkDTOs(links)}, nil
	default:
		return nil, fmt.Errorf("unknown memory_link action: %s", p.Action)
	}
}

func (s *Server) handleMemoryCleanup(ctx context.Context, argsJSON []byte) (interface{}, error) {
	var p MemoryCleanupParams
	if err := json.Unmarshal(argsJSON, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	if p.Vacuum {
		if err := s.maintainer.Vacuum(); err != nil {
			s.log.Warn("vacuum failed during memory_cleanup", "error", err)
		}
	}
	report := s.maintainer.Run(p.PurgeDays)
	return toCleanupResponse(report), nil
}

func (s *Server) handleMemoryExport(ctx context.Context, argsJSON []byte) (interface{}, error) {
	var p MemoryExportParams
	if err := json.Unmarshal(argsJSON, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	scope := store.ScopeAll
	memories, err := s.store.List(store.ListFilters{ProjectID: p.ProjectID, Scope: scope, Limit: 1 << 30})
	if err != nil {
		return nil, err
	}

	doc := ExportDocument{Version: 1, ExportedAt: time.Now().Format(time.RFC3339)}
	for _, m := range memories {
		links, err := s.graph.ListLinks(m.ID)
		if err != nil {
			return nil, err
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
	return &doc, nil
}

func (s *Server) handleMemoryImport(ctx context.Context, argsJSON []byte) (interface{}, error) {
	var p MemoryImportParams
	if err := json.Unmarshal(argsJSON, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	var doc ExportDocument
	if err := json.Unmarshal(p.Document, &doc); err != nil {
		return nil, fmt.Errorf("invalid export document: %w", err)
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
		m, err := s.store.Insert(store.InsertInput{
			Content: em.Content, Category: em.Category, ProjectID: projectID,
			Source: em.Source, Tags: em.Tags, Force: true,
		})
		if err != nil {
			return nil, err
		}
		idMap[em.ID] = m.ID
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

	return &ImportResponse{Imported: imported, Skipped: skipped}, nil
}

func (s *Server) handleMemoryFileCheck(ctx context.Context, argsJSON []byte) (interface{}, error) {
	var p MemoryFileCheckParams
	if err := json.Unmarshal(argsJSON, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	f, err := s.filecache.CheckFreshness(p.Path, p.ProjectID)
	if err != nil {
		return nil, err
	}
	return &FileCheckResponse{Exists: f.Exists, Fresh: f.Fresh, Path: p.Path}, nil
}
