// Package mistake implements the bounded-rate failure-signature
// extractor of spec §4.9: it watches external tool output for error
// patterns and stores at most a handful of anti-pattern memories per
// session. Grounded on the teacher's pattern-matching idiom in
// internal/memory/session.go (since removed) and the store's Insert
// contract in internal/store.
package mistake

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/loomkeep/loomkeep/internal/store"
)

// MaxPerSession is the hard cap on stored mistakes per session (spec §4.9).
const MaxPerSession = 10

// ContextRadius is how many surrounding lines are kept around a match.
const ContextRadius = 1

// ContextMaxLen is the character cap on extracted context.
const ContextMaxLen = 300

// errorPatterns is the fixed list of signatures recognized as real
// failures, covering test failures, compile/type errors,
// command-not-found/permission errors, git conflicts, and dependency
// errors.
var errorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bFAIL\b.*test`),
	regexp.MustCompile(`(?i)test(s)? failed`),
	regexp.MustCompile(`(?i)panic:`),
	regexp.MustCompile(`(?i)assertion(Error)?[: ]`),
	regexp.MustCompile(`(?i)syntax error`),
	regexp.MustCompile(`(?i)type(Error)? *:`),
	regexp.MustCompile(`(?i)cannot find module`),
	regexp.MustCompile(`(?i)undefined(: | reference)`),
	regexp.MustCompile(`(?i)command not found`),
	regexp.MustCompile(`(?i)permission denied`),
	regexp.MustCompile(`(?i)no such file or directory`),
	regexp.MustCompile(`(?i)merge conflict`),
	regexp.MustCompile(`(?i)conflict \(content\)`),
	regexp.MustCompile(`(?i)CONFLICT \(`),
	regexp.MustCompile(`(?i)npm err!`),
	regexp.MustCompile(`(?i)could not resolve dependency`),
	regexp.MustCompile(`(?i)ModuleNotFoundError`),
	regexp.MustCompile(`(?i)ImportError`),
}

// falsePositivePatterns suppress storage: warnings and deprecations
// that incidentally contain a keyword from errorPatterns.
var falsePositivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bwarning\b`),
	regexp.MustCompile(`(?i)\bdeprecated\b`),
	regexp.MustCompile(`(?i)\bnotice\b`),
}

// Extractor watches tool output and stores bounded, deduplicated
// mistake memories per session.
type Extractor struct {
	store *store.Store
	// seenSignatures tracks signatures already stored this session to
	// avoid duplicate storage within the session cap.
	seenSignatures map[string]map[string]bool
	countPerSession map[string]int
}

// New wires an Extractor atop a Store.
func New(s *store.Store) *Extractor {
	return &Extractor{
		store:           s,
		seenSignatures:  make(map[string]map[string]bool),
		countPerSession: make(map[string]int),
	}
}

// Extract scans output for the first matching error pattern. If found,
// not a duplicate signature within the session, and the session is
// under its cap, it stores a memory and returns it. Returns (nil, nil)
// when nothing was stored.
func (e *Extractor) Extract(sessionID, tool, output string, projectID *string) (*store.Memory, error) {
	lines := strings.Split(output, "\n")

	matchIdx := -1
	var pattern *regexp.Regexp
	for i, line := range lines {
		if isFalsePositive(line) {
			continue
		}
		for _, p := range errorPatterns {
			if p.MatchString(line) {
				matchIdx = i
				pattern = p
				break
			}
		}
		if matchIdx >= 0 {
			break
		}
	}
	if matchIdx < 0 {
		return nil, nil
	}

	signature := signatureOf(pattern, lines[matchIdx])

	if e.countPerSession[sessionID] >= MaxPerSession {
		return nil, nil
	}
	if e.seenSignatures[sessionID] == nil {
		e.seenSignatures[sessionID] = make(map[string]bool)
	}
	if e.seenSignatures[sessionID][signature] {
		return nil, nil
	}

	context := surroundingContext(lines, matchIdx)

	m, err := e.store.Insert(store.InsertInput{
		Content:   context,
		Category:  "anti-pattern",
		SessionID: sessionID,
		ProjectID: projectID,
		Source:    fmt.Sprintf("mistake-tracking: %s", tool),
		Tags:      []string{"anti-pattern", "mistake", tool},
		Force:     true,
	})
	if err != nil {
		return nil, err
	}

	e.seenSignatures[sessionID][signature] = true
	e.countPerSession[sessionID]++
	return m, nil
}

// hardErrorSubstrings are explicit signals strong enough to override a
// false-positive match on the same line (spec §4.9: "unless a real
// error pattern still matches an explicit substring outside the
// warning text").
var hardErrorSubstrings = []string{"panic:", "fatal:", "FAIL"}

func isFalsePositive(line string) bool {
	isWarning := false
	for _, p := range falsePositivePatterns {
		if p.MatchString(line) {
			isWarning = true
			break
		}
	}
	if !isWarning {
		return false
	}
	for _, substr := range hardErrorSubstrings {
		if strings.Contains(line, substr) {
			return false
		}
	}
	return true
}

func signatureOf(pattern *regexp.Regexp, line string) string {
	return pattern.String() + "|" + strings.TrimSpace(line)
}

func surroundingContext(lines []string, idx int) string {
	start := idx - ContextRadius
	if start < 0 {
		start = 0
	}
	end := idx + ContextRadius + 1
	if end > len(lines) {
		end = len(lines)
	}
	joined := strings.Join(lines[start:end], "\n")
	if len(joined) > ContextMaxLen {
		joined = joined[:ContextMaxLen]
	}
	return joined
}
