package ratelimit

import (
	"testing"
)

func TestNewLimiter(t *testing.T) {
	cfg := &Config{
		Enabled: true,
		Global: LimitConfig{
			RequestsPerSecond: 100,
			BurstSize:         200,
		},
		Tools: []ToolLimit{
			{Name: "memory_search", RequestsPerSecond: 20, BurstSize: 40},
		},
	}

	limiter := NewLimiter(cfg)

	if !limiter.IsEnabled() {
		t.Error("expected limiter to be enabled")
	}

	if limiter.GetGlobalBucket() == nil {
		t.Error("expected global bucket to exist")
	}

	if limiter.GetToolBucket("memory_search") == nil {
		t.Error("expected memory_search bucket to exist")
	}

	if limiter.GetToolBucket("memory_unknown") != nil {
		t.Error("expected bucket for an unconfigured tool to be nil")
	}
}

func TestAllowGlobalLimit(t *testing.T) {
	cfg := &Config{
		Enabled: true,
		Global: LimitConfig{
			RequestsPerSecond: 1,
			BurstSize:         2,
		},
	}

	limiter := NewLimiter(cfg)

	// First two calls should succeed (burst)
	result1 := limiter.Allow("memory_store")
	if !result1.Allowed {
		t.Error("expected first call to be allowed")
	}

	result2 := limiter.Allow("memory_store")
	if !result2.Allowed {
		t.Error("expected second call to be allowed")
	}

	// Third call should fail (exceeded burst)
	result3 := limiter.Allow("memory_store")
	if result3.Allowed {
		t.Error("expected third call to be rejected")
	}
	if result3.LimitType != "global" {
		t.Errorf("expected limit type 'global', got '%s'", result3.LimitType)
	}
}

func TestAllowToolLimit(t *testing.T) {
	cfg := &Config{
		Enabled: true,
		Global: LimitConfig{
			RequestsPerSecond: 100,
			BurstSize:         200,
		},
		Tools: []ToolLimit{
			{Name: "memory_cleanup", RequestsPerSecond: 1, BurstSize: 1},
		},
	}

	limiter := NewLimiter(cfg)

	// First call to the throttled tool should succeed
	result1 := limiter.Allow("memory_cleanup")
	if !result1.Allowed {
		t.Error("expected first memory_cleanup call to be allowed")
	}

	// Second call should be rejected by the tool-specific bucket
	result2 := limiter.Allow("memory_cleanup")
	if result2.Allowed {
		t.Error("expected second memory_cleanup call to be rejected")
	}
	if result2.LimitType != "memory_cleanup" {
		t.Errorf("expected limit type 'memory_cleanup', got '%s'", result2.LimitType)
	}

	// A rejected tool-specific call must not also cost the global budget.
	result3 := limiter.Allow("memory_search")
	if !result3.Allowed {
		t.Error("expected memory_search (untouched by the tool limit) to be allowed")
	}
}

func TestDisabledLimiter(t *testing.T) {
	cfg := &Config{
		Enabled: false,
		Global: LimitConfig{
			RequestsPerSecond: 1,
			BurstSize:         1,
		},
	}

	limiter := NewLimiter(cfg)

	// Every call is allowed when throttling is disabled entirely.
	for i := 0; i < 100; i++ {
		result := limiter.Allow("memory_store")
		if !result.Allowed {
			t.Errorf("expected call %d to be allowed when disabled", i)
		}
		if result.LimitType != "disabled" {
			t.Errorf("expected limit type 'disabled', got '%s'", result.LimitType)
		}
	}
}

func TestSetEnabled(t *testing.T) {
	cfg := &Config{
		Enabled: true,
		Global: LimitConfig{
			RequestsPerSecond: 1,
			BurstSize:         1,
		},
	}

	limiter := NewLimiter(cfg)
	limiter.Allow("memory_store") // drain the global bucket

	result := limiter.Allow("memory_store")
	if result.Allowed {
		t.Error("expected call to be rejected while enabled and drained")
	}

	limiter.SetEnabled(false)

	result = limiter.Allow("memory_store")
	if !result.Allowed {
		t.Error("expected call to be allowed once throttling is disabled")
	}
}

func TestGetStats(t *testing.T) {
	cfg := &Config{
		Enabled: true,
		Global: LimitConfig{
			RequestsPerSecond: 100,
			BurstSize:         200,
		},
		Tools: []ToolLimit{
			{Name: "memory_search", RequestsPerSecond: 20, BurstSize: 40},
		},
	}

	limiter := NewLimiter(cfg)
	stats := limiter.GetStats()

	if !stats.Enabled {
		t.Error("expected stats.Enabled to be true")
	}
	if stats.GlobalTokens < 199 {
		t.Errorf("expected ~200 global tokens, got %f", stats.GlobalTokens)
	}
	if _, ok := stats.ToolTokens["memory_search"]; !ok {
		t.Error("expected memory_search tool tokens in stats")
	}
}

func TestGetMetrics(t *testing.T) {
	cfg := &Config{
		Enabled: true,
		Global: LimitConfig{
			RequestsPerSecond: 1,
			BurstSize:         1,
		},
	}

	limiter := NewLimiter(cfg)
	limiter.Allow("memory_store")  // allowed, drains the bucket
	limiter.Allow("memory_search") // rejected, bucket is empty

	snap := limiter.GetMetrics().Snapshot()
	if snap.TotalAllowed != 1 {
		t.Errorf("expected 1 allowed call, got %d", snap.TotalAllowed)
	}
	if snap.TotalRejected != 1 {
		t.Errorf("expected 1 rejected call, got %d", snap.TotalRejected)
	}
	if rate := limiter.GetMetrics().RejectionRate(); rate != 0.5 {
		t.Errorf("expected rejection rate 0.5, got %f", rate)
	}
}

func TestLimiterReset(t *testing.T) {
	cfg := &Config{
		Enabled: true,
		Global: LimitConfig{
			RequestsPerSecond: 1,
			BurstSize:         2,
		},
	}

	limiter := NewLimiter(cfg)

	limiter.Allow("memory_store")
	limiter.Allow("memory_store")
	limiter.Reset()

	result := limiter.Allow("memory_store")
	if !result.Allowed {
		t.Error("expected call to be allowed after reset")
	}
}
