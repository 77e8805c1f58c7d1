package query

import (
	"strings"
	"testing"
)

func TestSelectBest_PrefersFilenameVariant(t *testing.T) {
	res := preprocess(t, "token refresh in src/auth/login.ts")
	best := SelectBest(res)
	if !strings.Contains(best, "login.ts") {
		t.Errorf("filename variant should win, got %q", best)
	}
}

func TestSelectBest_LanguageVariant(t *testing.T) {
	res := preprocess(t, "django middleware ordering")
	best := SelectBest(res)
	if best == res.OriginalQuery {
		t.Errorf("language-qualified variant should beat the original, got %q", best)
	}
	if !strings.Contains(strings.ToLower(best), "python") {
		t.Errorf("expected the python-qualified variant, got %q", best)
	}
}

func TestSelectBest_FallsBackToNormalized(t *testing.T) {
	cfg := Config{MaxVariants: 20}
	res := New(cfg).Preprocess("Plain Query")
	if best := SelectBest(res); best != "plain query" {
		t.Errorf("expected the normalized query, got %q", best)
	}
}

func TestSelectBest_ImplementationVariantWhenNoPatterns(t *testing.T) {
	res := preprocess(t, "how to build a parser")
	best := SelectBest(res)
	if !strings.Contains(best, "implementation") {
		t.Errorf("implementation variant should be picked, got %q", best)
	}
}

func TestSelectMulti_Distinct(t *testing.T) {
	res := preprocess(t, "js auth token refresh in src/auth/login.ts")
	variants := SelectMulti(res, 3)
	if len(variants) == 0 {
		t.Fatal("expected at least one variant")
	}
	if len(variants) > 3 {
		t.Fatalf("expected at most 3 variants, got %d", len(variants))
	}
	seen := map[string]bool{}
	for _, v := range variants {
		if seen[v] {
			t.Errorf("duplicate variant %q", v)
		}
		seen[v] = true
	}
}

func TestSelectMulti_NeverEmpty(t *testing.T) {
	cfg := Config{MaxVariants: 20}
	res := New(cfg).Preprocess("anything")
	variants := SelectMulti(res, 3)
	if len(variants) == 0 {
		t.Fatal("SelectMulti must never return empty for n > 0")
	}
}

func TestSelectMulti_ZeroN(t *testing.T) {
	res := preprocess(t, "whatever")
	if got := SelectMulti(res, 0); got != nil {
		t.Errorf("n=0 should return nil, got %v", got)
	}
}
