package querynorm

import (
	"strings"
	"testing"
)

func TestNormalizeStripsSpecialCharacters(t *testing.T) {
	got := Normalize(`foo "bar" AND (baz)`)
	for _, ch := range specialChars {
		if strings.ContainsRune(got, ch) {
			t.Fatalf("Normalize(%q) = %q, still contains special char %q", `foo "bar" AND (baz)`, got, string(ch))
		}
	}
}

func TestNormalizeDropsReservedOperators(t *testing.T) {
	got := Normalize("foo and bar or baz not qux")
	for _, op := range []string{"and", "or", "not", "near"} {
		for _, tok := range strings.Fields(got) {
			if tok == op {
				t.Fatalf("Normalize result %q contains reserved operator token %q", got, op)
			}
		}
	}
}

func TestNormalizeDropsStopWordsAndShortTokens(t *testing.T) {
	got := Normalize("the a database is fast")
	if strings.Contains(got, " a ") || strings.HasPrefix(got, "a ") {
		t.Errorf("expected short token 'a' dropped, got %q", got)
	}
	want := "database fast"
	if got != want {
		t.Errorf("Normalize = %q, want %q", got, want)
	}
}

func TestNormalizeFallsBackWhenAllTokensFiltered(t *testing.T) {
	got := Normalize("the is a an")
	if got == "" {
		t.Error("expected a non-empty fallback when every token is filtered")
	}
}

func TestNormalizeEmptyInputYieldsEmptyString(t *testing.T) {
	if got := Normalize(""); got != "" {
		t.Errorf("Normalize(\"\") = %q, want empty", got)
	}
}

func TestNormalizeIsCaseInsensitive(t *testing.T) {
	got := Normalize("DATABASE Migration")
	if got != "database migration" {
		t.Errorf("Normalize = %q, want lowercased tokens", got)
	}
}

func TestTokensMatchesNormalizeJoin(t *testing.T) {
	toks := Tokens("database migration pattern")
	if strings.Join(toks, " ") != Normalize("database migration pattern") {
		t.Errorf("Tokens/Normalize mismatch: %v vs %q", toks, Normalize("database migration pattern"))
	}
}
