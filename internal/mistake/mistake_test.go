package mistake

import (
	"testing"

	"github.com/loomkeep/loomkeep/internal/store"
	"github.com/loomkeep/loomkeep/internal/testutil"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	return New(store.New(testutil.OpenTestDB(t)))
}

func TestExtractStoresMemoryOnTestFailure(t *testing.T) {
	e := newTestExtractor(t)
	output := "running tests\nFAIL: TestSomething failed\nexit status 1"

	m, err := e.Extract("sess-1", "go-test", output, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if m == nil {
		t.Fatal("expected a stored memory for a test failure")
	}
	if m.Category != "anti-pattern" {
		t.Errorf("Category = %q, want anti-pattern", m.Category)
	}
}

func TestExtractIgnoresCleanOutput(t *testing.T) {
	e := newTestExtractor(t)
	m, err := e.Extract("sess-1", "go-test", "running tests\nPASS\nok", nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if m != nil {
		t.Error("expected no stored memory for clean output")
	}
}

func TestExtractSuppressesWarningsWithoutHardError(t *testing.T) {
	e := newTestExtractor(t)
	m, err := e.Extract("sess-1", "go-build", "warning: deprecated API usage", nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if m != nil {
		t.Error("expected warning-only output to be suppressed")
	}
}

func TestExtractDeduplicatesSameSignatureWithinSession(t *testing.T) {
	e := newTestExtractor(t)
	output := "FAIL: TestSomething failed"

	first, err := e.Extract("sess-1", "go-test", output, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if first == nil {
		t.Fatal("expected first extraction to store a memory")
	}

	second, err := e.Extract("sess-1", "go-test", output, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if second != nil {
		t.Error("expected duplicate signature within session to be suppressed")
	}
}

func TestExtractEnforcesPerSessionCap(t *testing.T) {
	e := newTestExtractor(t)

	for i := 0; i < MaxPerSession; i++ {
		output := "FAIL: TestCase" + string(rune('A'+i)) + " failed"
		if _, err := e.Extract("sess-1", "go-test", output, nil); err != nil {
			t.Fatalf("Extract %d: %v", i, err)
		}
	}

	over, err := e.Extract("sess-1", "go-test", "FAIL: TestOneTooMany failed", nil)
	if err != nil {
		t.Fatalf("Extract over cap: %v", err)
	}
	if over != nil {
		t.Error("expected extraction beyond MaxPerSession to be suppressed")
	}
}
