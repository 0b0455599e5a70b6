// Package scr implements the abstract pipeline shape of spec §4.10: a
// synchronous, cooperative message-transform pass over a session's
// transcript, applying an ordered list of reducers that annotate
// messages as pruned without deleting them, plus a system-prompt
// capability injector. Grounded on the teacher's cooperative,
// single-threaded engine-state model (spec §5) and the MCP tool
// surface's JSON-RPC request/response shape in internal/mcp.
package scr

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Message is one entry in the transcript the pipeline transforms.
type Message struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
	Pruned  bool   `json:"pruned"`
	// PruneReason names which reducer pruned this message, empty if none.
	PruneReason string `json:"prune_reason,omitempty"`
}

// State is the per-session counters and prune bookkeeping a Pipeline
// carries across runs (spec §4.10: "counters, prune maps, stats").
type State struct {
	SessionID   string         `json:"session_id"`
	PrunedByID  map[string]string `json:"pruned_by_id"`
	Counters    map[string]int    `json:"counters"`
}

func newState(sessionID string) *State {
	return &State{SessionID: sessionID, PrunedByID: make(map[string]string), Counters: make(map[string]int)}
}

// Reducer inspects the transcript and State, returning the (possibly
// annotated) transcript. Reducers never delete messages; they set
// Pruned/PruneReason.
type Reducer func(messages []Message, state *State) []Message

// Pipeline runs an ordered reducer chain synchronously within one
// message-transform call, persisting State to disk between calls.
type Pipeline struct {
	reducers []Reducer
	stateDir string
	mu       sync.Mutex
}

// New wires a Pipeline with the standard reducer order: deduplicate,
// supersede-writes, purge-errors, then a unified prune pass.
func New(stateDir string) *Pipeline {
	return &Pipeline{
		reducers: []Reducer{
			deduplicateReducer,
			supersedeWritesReducer,
			purgeErrorsReducer,
			unifiedPruneReducer,
		},
		stateDir: stateDir,
	}
}

// Run executes the reducer chain over messages for sessionID, loading
// and persisting State keyed by session id. It never blocks on I/O
// beyond the local state file (spec §5: cooperative, synchronous).
func (p *Pipeline) Run(sessionID string, messages []Message) ([]Message, *State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, err := p.loadState(sessionID)
	if err != nil {
		state = newState(sessionID)
	}

	for _, reduce := range p.reducers {
		messages = reduce(messages, state)
	}

	if err := p.saveState(state); err != nil {
		return messages, state, err
	}
	return messages, state, nil
}

func (p *Pipeline) statePath(sessionID string) string {
	return filepath.Join(p.stateDir, sessionID+".scr-state.json")
}

func (p *Pipeline) loadState(sessionID string) (*State, error) {
	raw, err := os.ReadFile(p.statePath(sessionID))
	if err != nil {
		return nil, err
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if s.PrunedByID == nil {
		s.PrunedByID = make(map[string]string)
	}
	if s.Counters == nil {
		s.Counters = make(map[string]int)
	}
	return &s, nil
}

func (p *Pipeline) saveState(s *State) error {
	if err := os.MkdirAll(p.stateDir, 0755); err != nil {
		return err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(p.statePath(s.SessionID), raw, 0644)
}

// deduplicateReducer prunes exact-content repeats of an earlier
// non-pruned message, keeping the first occurrence live.
func deduplicateReducer(messages []Message, state *State) []Message {
	seen := make(map[string]bool)
	for i := range messages {
		if messages[i].Pruned {
			continue
		}
		key := messages[i].Role + "|" + messages[i].Content
		if seen[key] {
			messages[i].Pruned = true
			messages[i].PruneReason = "duplicate"
			state.Counters["deduplicated"]++
			state.PrunedByID[messages[i].ID] = "duplicate"
			continue
		}
		seen[key] = true
	}
	return messages
}

// supersedeWritesReducer prunes every earlier "tool-result" message
// once a later one exists, modeling a "latest write wins" transcript
// convention for assistant tool-call results. Messages of other roles
// are left untouched.
func supersedeWritesReducer(messages []Message, state *State) []Message {
	lastIndexByRole := make(map[string]int)
	for i := range messages {
		if messages[i].Pruned {
			continue
		}
		lastIndexByRole[messages[i].Role] = i
	}
	for role, lastIdx := range lastIndexByRole {
		for i := range messages {
			if i == lastIdx || messages[i].Pruned || messages[i].Role != role {
				continue
			}
			if messages[i].Role == "tool-result" {
				messages[i].Pruned = true
				messages[i].PruneReason = "superseded"
				state.Counters["superseded"]++
				state.PrunedByID[messages[i].ID] = "superseded"
			}
		}
	}
	return messages
}

// purgeErrorsReducer prunes every error-role message except the most
// recent one, keeping only the latest failure visible.
func purgeErrorsReducer(messages []Message, state *State) []Message {
	lastErrorIdx := -1
	for i, m := range messages {
		if m.Role == "error" && !m.Pruned {
			lastErrorIdx = i
		}
	}
	for i := range messages {
		if messages[i].Role == "error" && !messages[i].Pruned && i != lastErrorIdx {
			messages[i].Pruned = true
			messages[i].PruneReason = "purged-error"
			state.Counters["purged_errors"]++
			state.PrunedByID[messages[i].ID] = "purged-error"
		}
	}
	return messages
}

// unifiedPruneReducer is the final pass: it records the total live
// count for observability, making no further changes.
func unifiedPruneReducer(messages []Message, state *State) []Message {
	live := 0
	for _, m := range messages {
		if !m.Pruned {
			live++
		}
	}
	state.Counters["live"] = live
	return messages
}

// CapabilityDescription is injected into the system prompt so the
// host can describe what the pipeline offers.
const CapabilityDescription = "This session's transcript is pruned cooperatively: duplicate, superseded, and stale error messages are marked pruned in place, never deleted."

// InjectCapability appends the capability description to a system
// prompt, once.
func InjectCapability(systemPrompt string) string {
	if systemPrompt == "" {
		return CapabilityDescription
	}
	if strings.Contains(systemPrompt, CapabilityDescription) {
		return systemPrompt
	}
	return systemPrompt + "\n\n" + CapabilityDescription
}
