package scr

import (
	"path/filepath"
	"testing"
)

func TestDeduplicateReducerPrunesRepeats(t *testing.T) {
	state := newState("sess-1")
	messages := []Message{
		{ID: "1", Role: "user", Content: "hello"},
		{ID: "2", Role: "user", Content: "hello"},
	}
	out := deduplicateReducer(messages, state)
	if out[0].Pruned {
		t.Error("expected first occurrence to stay live")
	}
	if !out[1].Pruned {
		t.Error("expected repeat to be pruned")
	}
}

func TestPurgeErrorsReducerKeepsOnlyLatestError(t *testing.T) {
	state := newState("sess-1")
	messages := []Message{
		{ID: "1", Role: "error", Content: "first failure"},
		{ID: "2", Role: "user", Content: "retry"},
		{ID: "3", Role: "error", Content: "second failure"},
	}
	out := purgeErrorsReducer(messages, state)
	if !out[0].Pruned {
		t.Error("expected earlier error to be pruned")
	}
	if out[2].Pruned {
		t.Error("expected latest error to remain live")
	}
}

func TestRunPersistsStateAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	p := New(dir)

	messages := []Message{{ID: "1", Role: "user", Content: "hi"}}
	_, state1, err := p.Run("sess-1", messages)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state1.Counters["live"] != 1 {
		t.Errorf("expected live=1, got %d", state1.Counters["live"])
	}

	if _, err := p.loadState("sess-1"); err != nil {
		t.Fatalf("expected state to persist to %s: %v", filepath.Join(dir, "sess-1.scr-state.json"), err)
	}
}

func TestInjectCapabilityAppendsOnce(t *testing.T) {
	out := InjectCapability("base prompt")
	if out == "base prompt" {
		t.Error("expected capability description to be appended")
	}
}

func TestMessagesAreNeverDeletedOnlyAnnotated(t *testing.T) {
	state := newState("sess-1")
	messages := []Message{
		{ID: "1", Role: "user", Content: "dup"},
		{ID: "2", Role: "user", Content: "dup"},
	}
	out := deduplicateReducer(messages, state)
	if len(out) != 2 {
		t.Errorf("expected reducer to preserve message count, got %d", len(out))
	}
}
