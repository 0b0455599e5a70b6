package mcp

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Formatter handles UX-friendly output formatting for MCP responses.
type Formatter struct{}

// NewFormatter creates a new formatter.
func NewFormatter() *Formatter {
	return &Formatter{}
}

// FormatToolResponse formats a tool response with rich UX elements.
func (f *Formatter) FormatToolResponse(toolName string, result interface{}, duration time.Duration) string {
	var sb strings.Builder

	icon := f.getToolIcon(toolName)
	sb.WriteString(fmt.Sprintf("\n%s **%s**\n", icon, f.formatToolName(toolName)))
	sb.WriteString(f.getToolTagline(toolName))
	sb.WriteString("\n")
	sb.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	switch toolName {
	case "memory_store":
		sb.WriteString(f.formatStore(result))
	case "memory_search":
		sb.WriteString(f.formatSearch(result))
	case "memory_update", "memory_refresh":
		sb.WriteString(f.formatMemoryOp(result))
	case "memory_delete":
		sb.WriteString(f.formatDelete(result))
	case "memory_list":
		sb.WriteString(f.formatList(result))
	case "memory_stats":
		sb.WriteString(f.formatStats(result))
	case "memory_tag":
		sb.WriteString(f.formatTag(result))
	case "memory_link":
		sb.WriteString(f.formatLink(result))
	case "memory_cleanup":
		sb.WriteString(f.formatCleanup(result))
	case "memory_export":
		sb.WriteString(f.formatExport(result))
	case "memory_import":
		sb.WriteString(f.formatImport(result))
	case "memory_file_check":
		sb.WriteString(f.formatFileCheck(result))
	default:
		sb.WriteString(f.fallbackJSON(result))
	}

	sb.WriteString("\n\n")
	sb.WriteString(f.formatPerformance(duration))

	suggestions := f.getSuggestions(toolName)
	if len(suggestions) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString("💡 **Next Steps**\n")
		for _, s := range suggestions {
			sb.WriteString(fmt.Sprintf("   → %s\n", s))
		}
	}

	sb.WriteString("\n\n")
	sb.WriteString("<details>\n<summary>📋 Raw JSON Response</summary>\n\n```json\n")
	jsonBytes, _ := json.MarshalIndent(result, "", "  ")
	sb.WriteString(string(jsonBytes))
	sb.WriteString("\n```\n</details>")

	return sb.String()
}

func (f *Formatter) getToolIcon(toolName string) string {
	icons := map[string]string{
		"memory_store":      "💾",
		"memory_search":      "🔍",
		"memory_update":      "✏️",
		"memory_delete":      "🗑️",
		"memory_list":        "📚",
		"memory_stats":       "📈",
		"memory_refresh":     "🔄",
		"memory_tag":         "🏷️",
		"memory_link":        "🕸️",
		"memory_cleanup":     "🧹",
		"memory_export":      "📤",
		"memory_import":      "📥",
		"memory_file_check":  "📄",
	}
	if icon, ok := icons[toolName]; ok {
		return icon
	}
	return "⚡"
}

func (f *Formatter) formatToolName(name string) string {
	parts := strings.Split(name, "_")
	for i, p := range parts {
		parts[i] = strings.Title(p)
	}
	return strings.Join(parts, " ")
}

func (f *Formatter) getToolTagline(toolName string) string {
	taglines := map[string]string{
		"memory_store":      "Persisting knowledge for future recall",
		"memory_search":      "Finding relevant memories across your knowledge base",
		"memory_update":      "Evolving your stored knowledge",
		"memory_delete":      "Removing outdated information",
		"memory_list":        "Browsing your knowledge base",
		"memory_stats":       "System metrics and analytics",
		"memory_refresh":     "Marking a memory as recently used",
		"memory_tag":         "Organizing memories with tags",
		"memory_link":        "Mapping connections in your knowledge graph",
		"memory_cleanup":     "Reclaiming space and pruning stale memories",
		"memory_export":      "Packaging your knowledge base for transfer",
		"memory_import":      "Restoring a knowledge base from export",
		"memory_file_check":  "Verifying cached file knowledge is still fresh",
	}
	if tagline, ok := taglines[toolName]; ok {
		return fmt.Sprintf("*%s*", tagline)
	}
	return ""
}

func (f *Formatter) formatMemoryCard(m MemoryDTO) string {
	var sb strings.Builder
	sb.WriteString("```yaml\n")
	sb.WriteString(fmt.Sprintf("category: %s\n", m.Category))
	if len(m.Tags) > 0 {
		sb.WriteString(fmt.Sprintf("tags: [%s]\n", strings.Join(m.Tags, ", ")))
	}
	if m.ProjectID != "" {
		sb.WriteString(fmt.Sprintf("project: %s\n", m.ProjectID))
	}
	sb.WriteString(fmt.Sprintf("access_count: %d\n", m.AccessCount))
	sb.WriteString(fmt.Sprintf("created: %s\n", f.formatTime(m.TimeCreated)))
	sb.WriteString("```\n")
	return sb.String()
}

func (f *Formatter) formatStore(result interface{}) string {
	data, ok := result.(*StoreResponse)
	if !ok {
		return f.fallbackJSON(result)
	}

	var sb strings.Builder
	sb.WriteString("✅ **Memory Stored**\n\n")
	sb.WriteString(fmt.Sprintf("```\n%s\n```\n\n", f.truncateContent(data.Memory.Content, 300)))
	sb.WriteString(fmt.Sprintf("`ID: %s`\n\n", f.truncateID(data.Memory.ID)))
	sb.WriteString(f.formatMemoryCard(data.Memory))
	return sb.String()
}

func (f *Formatter) formatSearch(result interface{}) string {
	data, ok := result.(*SearchResponse)
	if !ok {
		return f.fallbackJSON(result)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📊 **Found %d result(s)** for query: `%s`\n", data.Count, data.Query))

	if data.Count == 0 {
		sb.WriteString("\n```\nNo memories match your search criteria.\n```\n")
		sb.WriteString("\n💡 Try broadening your search terms or widening the scope.")
		return sb.String()
	}

	sb.WriteString("\n")
	for i, r := range data.Results {
		relevanceBar := f.makeProgressBar(r.Relevance, 10)
		relevancePercent := int(r.Relevance * 100)
		sb.WriteString(fmt.Sprintf("### %d. Memory `%s`\n", i+1, f.truncateID(r.Memory.ID)))
		sb.WriteString(fmt.Sprintf("**Relevance:** %s %d%%\n\n", relevanceBar, relevancePercent))
		sb.WriteString(fmt.Sprintf("> %s\n\n", f.truncateContent(r.Memory.Content, 200)))
		sb.WriteString(f.formatMemoryCard(r.Memory))
		sb.WriteString("\n")
	}

	return sb.String()
}

func (f *Formatter) formatMemoryOp(result interface{}) string {
	data, ok := result.(*MemoryOpResponse)
	if !ok {
		return f.fallbackJSON(result)
	}

	var sb strings.Builder
	if !data.Success {
		sb.WriteString("❌ **Operation Failed**\n")
		if data.Message != "" {
			sb.WriteString(fmt.Sprintf("\n%s", data.Message))
		}
		return sb.String()
	}

	sb.WriteString("✅ **Memory Updated**\n\n")
	if data.Memory != nil {
		sb.WriteString(fmt.Sprintf("`ID: %s`\n\n", f.truncateID(data.Memory.ID)))
		sb.WriteString(fmt.Sprintf("```\n%s\n```\n\n", f.truncateContent(data.Memory.Content, 300)))
		sb.WriteString(f.formatMemoryCard(*data.Memory))
	}
	return sb.String()
}

func (f *Formatter) formatDelete(result interface{}) string {
	data, ok := result.(*DeleteResponse)
	if !ok {
		return f.fallbackJSON(result)
	}

	if data.Success {
		return fmt.Sprintf("🗑️ **Memory Deleted**\n\n`ID: %s`", f.truncateID(data.ID))
	}
	return fmt.Sprintf("❌ **Memory Not Found**\n\n`ID: %s`", f.truncateID(data.ID))
}

func (f *Formatter) formatList(result interface{}) string {
	data, ok := result.(*ListResponse)
	if !ok {
		return f.fallbackJSON(result)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📚 **%d memor%s**\n\n", data.Count, plural(data.Count)))

	if data.Count == 0 {
		sb.WriteString("```\nNo memories match the given filters.\n```")
		return sb.String()
	}

	sb.WriteString("```\n")
	sb.WriteString(fmt.Sprintf("%-10s │ %-14s │ %-5s │ %s\n", "ID", "CATEGORY", "USES", "CONTENT"))
	sb.WriteString("───────────┼────────────────┼───────┼─────────────────────────\n")
	for _, m := range data.Memories {
		sb.WriteString(fmt.Sprintf("%-10s │ %-14s │ %5d │ %s\n",
			f.truncateID(m.ID), m.Category, m.AccessCount, f.truncateContent(m.Content, 40)))
	}
	sb.WriteString("```")

	return sb.String()
}

func (f *Formatter) formatStats(result interface{}) string {
	data, ok := result.(*StatsResponse)
	if !ok {
		return f.fallbackJSON(result)
	}

	var sb strings.Builder
	sb.WriteString("📈 **Memory Statistics**\n\n")
	sb.WriteString("┌────────────────────────────────────────┐\n")
	sb.WriteString(fmt.Sprintf("│  📝 Total:        %6d               │\n", data.Total))
	sb.WriteString("└────────────────────────────────────────┘\n")

	if len(data.ByCategory) > 0 {
		sb.WriteString("\n**By Category:**\n")
		for cat, count := range data.ByCategory {
			bar := f.makeProgressBar(float64(count)/float64(max(data.Total, 1)), 15)
			sb.WriteString(fmt.Sprintf("  %s %-16s %d\n", bar, cat, count))
		}
	}

	if rl := data.RateLimit; rl != nil {
		sb.WriteString("\n**Rate limiting:**\n")
		sb.WriteString(fmt.Sprintf("  allowed %d, rejected %d (%.1f%% rejection), %.0f global tokens available\n",
			rl.TotalAllowed, rl.TotalRejected, rl.RejectionRate*100, rl.GlobalTokens))
	}

	return sb.String()
}

func (f *Formatter) formatTag(result interface{}) string {
	data, ok := result.(*TagResponse)
	if !ok {
		return f.fallbackJSON(result)
	}

	var sb strings.Builder
	switch {
	case len(data.AllTags) > 0:
		sb.WriteString("🏷️ **All Tags**\n\n")
		for _, tc := range data.AllTags {
			sb.WriteString(fmt.Sprintf("  %-24s %d\n", tc.Tag, tc.Count))
		}
	case len(data.IDs) > 0:
		sb.WriteString(fmt.Sprintf("🏷️ **%d memor%s tagged**\n\n", len(data.IDs), plural(len(data.IDs))))
		for _, id := range data.IDs {
			sb.WriteString(fmt.Sprintf("  `%s`\n", f.truncateID(id)))
		}
	case len(data.Tags) > 0:
		sb.WriteString(fmt.Sprintf("🏷️ **Tags:** %s\n", strings.Join(data.Tags, ", ")))
	default:
		sb.WriteString(fmt.Sprintf("✅ **Tag operation %s**\n", f.boolToEmoji(data.Success)))
	}
	return sb.String()
}

func (f *Formatter) formatLink(result interface{}) string {
	data, ok := result.(*LinkResponse)
	if !ok {
		return f.fallbackJSON(result)
	}

	var sb strings.Builder
	if len(data.Links) == 0 && !data.Success {
		sb.WriteString("🕸️ **No links found**")
		return sb.String()
	}
	if len(data.Links) == 0 {
		sb.WriteString(fmt.Sprintf("✅ **Link operation %s**\n", f.boolToEmoji(data.Success)))
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("🕸️ **%d link(s)**\n\n", len(data.Links)))
	for _, l := range data.Links {
		direction := "→"
		if !l.Outgoing {
			direction = "←"
		}
		sb.WriteString(fmt.Sprintf("  %s %s `%s`\n", direction, f.formatRelType(l.Relationship), f.truncateID(l.OtherID)))
	}
	return sb.String()
}

func (f *Formatter) formatCleanup(result interface{}) string {
	data, ok := result.(CleanupResponse)
	if !ok {
		if p, ok2 := result.(*CleanupResponse); ok2 {
			data = *p
		} else {
			return f.fallbackJSON(result)
		}
	}

	var sb strings.Builder
	sb.WriteString("🧹 **Maintenance Complete**\n\n")
	sb.WriteString("```yaml\n")
	sb.WriteString(fmt.Sprintf("purged: %d\n", data.PurgedCount))
	sb.WriteString(fmt.Sprintf("cap_enforced: %d\n", data.CapEnforced))
	sb.WriteString(fmt.Sprintf("size_bytes: %d\n", data.SizeBytes))
	sb.WriteString("```\n")

	for _, e := range []struct{ label, msg string }{
		{"optimize", data.OptimizeError},
		{"purge", data.PurgeError},
		{"cap", data.CapError},
		{"size", data.SizeError},
	} {
		if e.msg != "" {
			sb.WriteString(fmt.Sprintf("⚠️ %s step reported: %s\n", e.label, e.msg))
		}
	}

	return sb.String()
}

func (f *Formatter) formatExport(result interface{}) string {
	data, ok := result.(*ExportDocument)
	if !ok {
		return f.fallbackJSON(result)
	}
	return fmt.Sprintf("📤 **Exported %d memor%s** as of %s", len(data.Memories), plural(len(data.Memories)), data.ExportedAt)
}

func (f *Formatter) formatImport(result interface{}) string {
	data, ok := result.(*ImportResponse)
	if !ok {
		return f.fallbackJSON(result)
	}
	return fmt.Sprintf("📥 **Import Complete**\n\nImported: %d | Skipped (already present): %d", data.Imported, data.Skipped)
}

func (f *Formatter) formatFileCheck(result interface{}) string {
	data, ok := result.(*FileCheckResponse)
	if !ok {
		return f.fallbackJSON(result)
	}

	if !data.Exists {
		return fmt.Sprintf("📄 **No cached knowledge** for `%s`", data.Path)
	}
	status := "🟢 fresh"
	if !data.Fresh {
		status = "🟡 stale"
	}
	return fmt.Sprintf("📄 **%s** — %s", data.Path, status)
}

func (f *Formatter) formatPerformance(duration time.Duration) string {
	ms := duration.Milliseconds()
	var speedIcon string
	switch {
	case ms < 100:
		speedIcon = "⚡"
	case ms < 500:
		speedIcon = "🚀"
	case ms < 1000:
		speedIcon = "✓"
	default:
		speedIcon = "🐢"
	}
	return fmt.Sprintf("%s *Completed in %dms*", speedIcon, ms)
}

func (f *Formatter) getSuggestions(toolName string) []string {
	suggestions := map[string][]string{
		"memory_store": {
			"Use `memory_search` to verify the memory was indexed",
			"Use `memory_tag` to attach searchable tags",
			"Use `memory_link` to connect it to related memories",
		},
		"memory_search": {
			"Use `memory_refresh` to boost a result's recall priority",
			"Use `memory_link` to map connections between results",
		},
		"memory_tag": {
			"Use `memory_tag` with action search to find memories by this tag",
		},
		"memory_cleanup": {
			"Use `memory_stats` to confirm the new totals",
		},
		"memory_export": {
			"Use `memory_import` on the destination to restore this document",
		},
	}

	if s, ok := suggestions[toolName]; ok {
		return s
	}
	return nil
}

// Helper functions

func (f *Formatter) makeProgressBar(value float64, width int) string {
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}
	filled := int(value * float64(width))
	empty := width - filled
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", empty) + "]"
}

func (f *Formatter) truncateID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:8] + "..."
}

func (f *Formatter) truncateContent(content string, maxLen int) string {
	content = strings.ReplaceAll(content, "\n", " ")
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen-3] + "..."
}

func (f *Formatter) formatTime(timeStr string) string {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05-07:00",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, timeStr); err == nil {
			return t.Format("Jan 02, 2006 15:04")
		}
	}
	return timeStr
}

func (f *Formatter) boolToEmoji(b bool) string {
	if b {
		return "✅"
	}
	return "❌"
}

func (f *Formatter) formatRelType(relType string) string {
	icons := map[string]string{
		"related":     "🔗 Related",
		"supersedes":  "⏭️ Supersedes",
		"contradicts": "⚔️ Contradicts",
		"extends":     "📈 Extends",
	}
	if icon, ok := icons[relType]; ok {
		return icon
	}
	return relType
}

func (f *Formatter) fallbackJSON(result interface{}) string {
	jsonBytes, _ := json.MarshalIndent(result, "", "  ")
	return string(jsonBytes)
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
