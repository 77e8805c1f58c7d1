package query

import (
	"sort"
	"strings"
)

var implementationTerms = []string{"function", "class", "method", "implementation", "definition"}

var domainTerms = []string{"javascript", "python", "typescript", "authentication", "configuration", "database"}

// SelectBest picks the single variant most likely to retrieve well,
// by priority: filename match, language-qualified variant, variant with
// implementation vocabulary, variant with domain vocabulary, longest
// variant, and finally the normalized query.
func SelectBest(r *Result) string {
	original := strings.TrimSpace(r.OriginalQuery)

	if v, ok := pickFilename(r); ok {
		return v
	}
	if v, ok := pickLanguage(r, original); ok {
		return v
	}
	if v, ok := pickContaining(r, implementationTerms, original); ok {
		return v
	}
	if v, ok := pickContaining(r, domainTerms, original); ok {
		return v
	}
	if v, ok := pickLongest(r, original); ok {
		return v
	}
	return r.NormalizedQuery
}

// SelectMulti returns up to n distinct variants: the four priority picks
// in order, then the longest remaining variants. Never returns
// duplicates; never returns empty when n > 0.
func SelectMulti(r *Result, n int) []string {
	if n <= 0 {
		return nil
	}
	original := strings.TrimSpace(r.OriginalQuery)

	var out []string
	seen := map[string]bool{}
	take := func(v string, ok bool) {
		if !ok || seen[v] || len(out) >= n {
			return
		}
		seen[v] = true
		out = append(out, v)
	}

	take(pickFilename(r))
	take(pickLanguage(r, original))
	take(pickContaining(r, implementationTerms, original))
	take(pickContaining(r, domainTerms, original))

	if len(out) < n {
		rest := make([]string, 0, len(r.ExpandedTerms))
		for _, v := range r.ExpandedTerms {
			if !seen[v] && v != "" {
				rest = append(rest, v)
			}
		}
		sort.SliceStable(rest, func(i, j int) bool { return len(rest[i]) > len(rest[j]) })
		for _, v := range rest {
			take(v, true)
		}
	}

	if len(out) == 0 {
		out = append(out, r.NormalizedQuery)
	}
	return out
}

func pickFilename(r *Result) (string, bool) {
	filenames := r.Filenames()
	if len(filenames) == 0 {
		return "", false
	}
	for _, v := range r.ExpandedTerms {
		for _, f := range filenames {
			if strings.Contains(v, f) {
				return v, true
			}
		}
	}
	return "", false
}

func pickLanguage(r *Result, original string) (string, bool) {
	languages := r.Languages()
	if len(languages) == 0 {
		return "", false
	}
	for _, v := range r.ExpandedTerms {
		if v == original {
			continue
		}
		lower := strings.ToLower(v)
		for _, lang := range languages {
			if strings.Contains(lower, lang) {
				return v, true
			}
		}
	}
	return "", false
}

func pickContaining(r *Result, terms []string, original string) (string, bool) {
	for _, v := range r.ExpandedTerms {
		if v == original {
			continue
		}
		lower := strings.ToLower(v)
		for _, t := range terms {
			if strings.Contains(lower, t) {
				return v, true
			}
		}
	}
	return "", false
}

func pickLongest(r *Result, original string) (string, bool) {
	longest := ""
	for _, v := range r.ExpandedTerms {
		if len(v) > len(longest) {
			longest = v
		}
	}
	if len(longest) > len(original) {
		return longest, true
	}
	return "", false
}
