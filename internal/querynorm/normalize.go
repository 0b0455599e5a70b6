// Package querynorm turns free-form user text into a full-text query
// string safe to hand to SQLite's FTS5 engine, per spec §4.3. It
// generalizes the teacher's single-purpose escapeFTS5Query (which only
// escaped embedded quotes) into the full normalize-strip-fallback
// pipeline the specification calls for.
package querynorm

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var lower = cases.Lower(language.Und)

// specialChars are FTS5 operator/punctuation characters that must
// never reach the query string unescaped.
const specialChars = `"*(){}[]:^~!&|@#$%+=\<>,;?/-'`

// reservedOperators are FTS5 boolean operator keywords; stripped so a
// normalized query never accidentally invokes one.
var reservedOperators = map[string]bool{
	"and": true, "or": true, "not": true, "near": true,
}

// stopWords is a closed list of common English function words dropped
// from queries so they don't dominate token matching.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"to": true, "of": true, "in": true, "on": true, "at": true,
	"for": true, "with": true, "by": true, "from": true, "about": true,
	"as": true, "into": true, "like": true, "through": true, "after": true,
	"over": true, "between": true, "out": true, "against": true, "during": true,
	"this": true, "that": true, "these": true, "those": true, "it": true,
	"i": true, "you": true, "he": true, "she": true, "we": true, "they": true,
	"do": true, "does": true, "did": true, "can": true, "could": true,
	"will": true, "would": true, "should": true, "shall": true, "may": true,
	"might": true, "must": true, "have": true, "has": true, "had": true,
}

func stripSpecial(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(specialChars, r) {
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isKeepable(tok string) bool {
	return len(tok) > 1 && !stopWords[tok] && !reservedOperators[tok]
}

// Normalize implements spec §4.3 steps 1-5: strip FTS5 special
// characters, lowercase, drop short/stop/reserved-operator tokens,
// join the remainder with implicit AND, and fall back progressively if
// nothing survives.
func Normalize(input string) string {
	stripped := stripSpecial(input)
	lowered := lower.String(stripped)
	fields := strings.Fields(lowered)

	var kept []string
	for _, f := range fields {
		if isKeepable(f) {
			kept = append(kept, f)
		}
	}
	if len(kept) > 0 {
		return strings.Join(kept, " ")
	}

	// Fallback: re-split, keep anything longer than one character that
	// isn't a reserved operator, even if it's a stop word.
	var fallback []string
	for _, f := range fields {
		if len(f) > 1 && !reservedOperators[f] {
			fallback = append(fallback, f)
		}
	}
	if len(fallback) > 0 {
		return strings.Join(fallback, " ")
	}

	// Last resort: alphanumeric-and-whitespace residue of the original.
	var residue strings.Builder
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == ' ' {
			residue.WriteRune(r)
		}
	}
	return strings.TrimSpace(residue.String())
}

// Tokens returns the kept tokens from Normalize's primary pass without
// joining them, for callers (Deduplicator) that need to rank or select
// among individual tokens rather than a single query string.
func Tokens(input string) []string {
	stripped := stripSpecial(input)
	lowered := lower.String(stripped)
	fields := strings.Fields(lowered)

	var kept []string
	for _, f := range fields {
		if isKeepable(f) {
			kept = append(kept, f)
		}
	}
	return kept
}
