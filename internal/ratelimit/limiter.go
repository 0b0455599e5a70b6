package ratelimit

import (
	"sync"
	"time"
)

// LimitResult is the outcome of a single Allow check against a tool call.
type LimitResult struct {
	Allowed    bool
	RetryAfter time.Duration // how long to back off if rejected
	LimitType  string        // "global", "disabled", or the tool name that rejected
	Remaining  float64       // tokens left in the bucket that decided this
}

// Limiter throttles calls into the memory_* tool surface: one global
// bucket shared by every call, plus an optional per-tool bucket for the
// heavier operations (memory_cleanup, memory_export, memory_import) that
// shouldn't be allowed to run back-to-back even when the global budget
// has headroom.
type Limiter struct {
	mu           sync.RWMutex
	enabled      bool
	globalBucket *Bucket
	toolBuckets  map[string]*Bucket
	config       *Config
	metrics      *Metrics
}

// NewLimiter builds a Limiter from cfg, falling back to DefaultConfig
// when cfg is nil.
func NewLimiter(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	l := &Limiter{
		enabled:     cfg.Enabled,
		toolBuckets: make(map[string]*Bucket),
		config:      cfg,
		metrics:     NewMetrics(),
		globalBucket: NewBucket(
			float64(cfg.Global.BurstSize),
			cfg.Global.RequestsPerSecond,
		),
	}

	for _, limit := range cfg.Tools {
		l.toolBuckets[limit.Name] = NewBucket(float64(limit.BurstSize), limit.RequestsPerSecond)
	}

	return l
}

// Allow decides whether a call to the named tool may proceed, consuming
// one token from the global bucket and, if configured, the tool's own
// bucket. Either bucket being empty rejects the call.
func (l *Limiter) Allow(toolName string) *LimitResult {
	if !l.enabled {
		return &LimitResult{Allowed: true, LimitType: "disabled", Remaining: -1}
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.globalBucket.TryConsume(1) {
		l.metrics.RecordRejection("global", toolName)
		return &LimitResult{
			Allowed:    false,
			RetryAfter: l.globalBucket.TimeToWait(1),
			LimitType:  "global",
			Remaining:  l.globalBucket.Tokens(),
		}
	}

	toolBucket, hasLimit := l.toolBuckets[toolName]
	if !hasLimit {
		l.metrics.RecordAllowed(toolName)
		return &LimitResult{Allowed: true, LimitType: "global", Remaining: l.globalBucket.Tokens()}
	}

	if !toolBucket.TryConsume(1) {
		// The global token was already spent above; give it back so a
		// tool-specific rejection doesn't also cost the shared budget.
		l.globalBucket.TryConsume(-1)
		l.metrics.RecordRejection(toolName, toolName)
		return &LimitResult{
			Allowed:    false,
			RetryAfter: toolBucket.TimeToWait(1),
			LimitType:  toolName,
			Remaining:  toolBucket.Tokens(),
		}
	}

	l.metrics.RecordAllowed(toolName)
	return &LimitResult{Allowed: true, LimitType: toolName, Remaining: toolBucket.Tokens()}
}

// IsEnabled reports whether calls are currently being throttled at all.
func (l *Limiter) IsEnabled() bool {
	return l.enabled
}

// SetEnabled toggles throttling without rebuilding the buckets.
func (l *Limiter) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

// GetMetrics exposes the allow/reject counters for the memory_stats and
// REST stats surfaces to report alongside the store's own counts.
func (l *Limiter) GetMetrics() *Metrics {
	return l.metrics
}

// GetToolBucket returns the bucket for toolName, or nil if it has no
// tool-specific limit configured.
func (l *Limiter) GetToolBucket(toolName string) *Bucket {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.toolBuckets[toolName]
}

// GetGlobalBucket returns the shared bucket every call consumes from.
func (l *Limiter) GetGlobalBucket() *Bucket {
	return l.globalBucket
}

// Reset fills every bucket back to capacity.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.globalBucket.Reset()
	for _, bucket := range l.toolBuckets {
		bucket.Reset()
	}
}

// Stats is a snapshot of current bucket levels, as opposed to Metrics'
// cumulative allow/reject counters.
type Stats struct {
	Enabled      bool               `json:"enabled"`
	GlobalTokens float64            `json:"global_tokens"`
	ToolTokens   map[string]float64 `json:"tool_tokens"`
}

// GetStats reports the current token balance of every bucket.
func (l *Limiter) GetStats() *Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := &Stats{
		Enabled:      l.enabled,
		GlobalTokens: l.globalBucket.Tokens(),
		ToolTokens:   make(map[string]float64),
	}
	for name, bucket := range l.toolBuckets {
		stats.ToolTokens[name] = bucket.Tokens()
	}
	return stats
}
