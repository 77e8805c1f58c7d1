// Package query rewrites user queries into a bounded, ordered set of
// search variants plus detected filename and language patterns. The
// rewriter is purely rule-based and deterministic.
package query

import (
	"fmt"
	"path/filepath"
	"strings"
)

const defaultMaxVariants = 20

// Config enables or disables individual preprocessing stages.
type Config struct {
	ExpandAbbreviations bool
	MapConcepts         bool
	SplitCase           bool
	DetectFilenames     bool
	DetectLanguages     bool
	ImplementationFocus bool
	MaxVariants         int
}

// DefaultConfig enables every stage.
func DefaultConfig() Config {
	return Config{
		ExpandAbbreviations: true,
		MapConcepts:         true,
		SplitCase:           true,
		DetectFilenames:     true,
		DetectLanguages:     true,
		ImplementationFocus: true,
		MaxVariants:         defaultMaxVariants,
	}
}

// Result is the outcome of preprocessing one query.
type Result struct {
	OriginalQuery    string
	NormalizedQuery  string
	ExpandedTerms    []string // ordered, deduplicated variants; first is the trimmed query
	DetectedPatterns []string // "filename:<path>" and "language:<tag>" entries
	Reasoning        []string
}

// Preprocessor applies the rewrite rules.
type Preprocessor struct {
	cfg Config
}

// New creates a preprocessor.
func New(cfg Config) *Preprocessor {
	if cfg.MaxVariants <= 0 {
		cfg.MaxVariants = defaultMaxVariants
	}
	return &Preprocessor{cfg: cfg}
}

// variantSet preserves insertion order and uniqueness.
type variantSet struct {
	order []string
	seen  map[string]bool
}

func newVariantSet(initial string) *variantSet {
	vs := &variantSet{seen: map[string]bool{}}
	vs.add(initial)
	return vs
}

func (vs *variantSet) add(v string) {
	if vs.seen[v] {
		return
	}
	vs.seen[v] = true
	vs.order = append(vs.order, v)
}

// Preprocess runs the enabled stages in order on the trimmed query.
func (p *Preprocessor) Preprocess(rawQuery string) *Result {
	query := strings.TrimSpace(rawQuery)
	res := &Result{
		OriginalQuery:   rawQuery,
		NormalizedQuery: normalize(query),
	}
	variants := newVariantSet(query)

	if p.cfg.ExpandAbbreviations {
		p.expandAbbreviations(query, variants, res)
	}
	if p.cfg.MapConcepts {
		p.mapConcepts(query, variants, res)
	}
	if p.cfg.SplitCase {
		p.splitCase(query, variants, res)
	}
	if p.cfg.DetectLanguages {
		p.detectLanguages(query, variants, res)
	}
	if p.cfg.DetectFilenames {
		p.detectFilenames(query, variants, res)
	}
	if p.cfg.ImplementationFocus {
		p.implementationFocus(query, variants, res)
	}

	if len(variants.order) > p.cfg.MaxVariants {
		variants.order = variants.order[:p.cfg.MaxVariants]
	}
	res.ExpandedTerms = variants.order
	return res
}

// expandAbbreviations applies every whole-word abbreviation rule to the
// query; a single variant with all expansions is added when anything
// fired.
func (p *Preprocessor) expandAbbreviations(query string, variants *variantSet, res *Result) {
	expanded := query
	for _, a := range abbreviations {
		expanded = a.re.ReplaceAllString(expanded, a.full)
	}
	if expanded != query {
		variants.add(expanded)
		res.Reasoning = append(res.Reasoning, "expanded abbreviations")
	}
}

func (p *Preprocessor) mapConcepts(query string, variants *variantSet, res *Result) {
	lower := strings.ToLower(query)
	for _, c := range concepts {
		if !strings.Contains(lower, c.key) {
			continue
		}
		for _, term := range c.terms {
			variants.add(term)
		}
		variants.add(c.key)
		res.Reasoning = append(res.Reasoning, fmt.Sprintf("mapped concept %q", c.key))
	}
}

// splitCase adds variants with camelCase terms space-split and
// snake_case terms with their underscores replaced by spaces, each
// applied to the whole query.
func (p *Preprocessor) splitCase(query string, variants *variantSet, res *Result) {
	for _, term := range strings.Fields(query) {
		if camelBoundaryRe.MatchString(term) {
			split := camelBoundaryRe.ReplaceAllStringFunc(term, func(m string) string {
				return m[:1] + " " + m[1:]
			})
			variants.add(strings.Replace(query, term, split, 1))
			res.Reasoning = append(res.Reasoning, fmt.Sprintf("split camelCase term %q", term))
		}
		if strings.Contains(term, "_") && !strings.HasPrefix(term, "_") {
			variants.add(strings.Replace(query, term, strings.ReplaceAll(term, "_", " "), 1))
			res.Reasoning = append(res.Reasoning, fmt.Sprintf("split snake_case term %q", term))
		}
	}
}

func (p *Preprocessor) detectLanguages(query string, variants *variantSet, res *Result) {
	for _, lp := range languagePatterns {
		for _, re := range lp.patterns {
			if re.MatchString(query) {
				res.DetectedPatterns = append(res.DetectedPatterns, "language:"+lp.name)
				variants.add(query + " " + lp.name)
				res.Reasoning = append(res.Reasoning, "detected language "+lp.name)
				break
			}
		}
	}
}

func (p *Preprocessor) detectFilenames(query string, variants *variantSet, res *Result) {
	seen := map[string]bool{}
	for _, re := range filenameRegexes {
		for _, match := range re.FindAllString(query, -1) {
			if seen[match] {
				continue
			}
			seen[match] = true
			res.DetectedPatterns = append(res.DetectedPatterns, "filename:"+match)
			base := strings.TrimSuffix(filepath.Base(match), filepath.Ext(match))
			variants.add(query + " " + base)
			res.Reasoning = append(res.Reasoning, "detected filename "+match)
		}
	}
}

func (p *Preprocessor) implementationFocus(query string, variants *variantSet, res *Result) {
	lower := strings.ToLower(query)
	for _, cue := range implementationCues {
		if strings.Contains(lower, cue) {
			variants.add(query + " function class method implementation")
			res.Reasoning = append(res.Reasoning, "implementation focus cue "+cue)
			break
		}
	}
	if codeDefinitionRe.MatchString(query) {
		variants.add(query + " implementation definition")
		res.Reasoning = append(res.Reasoning, "code definition pattern")
	}
}

// normalize lowercases and collapses whitespace.
func normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Filenames extracts the filename pattern payloads.
func (r *Result) Filenames() []string {
	return r.patterns("filename:")
}

// Languages extracts the language pattern payloads.
func (r *Result) Languages() []string {
	return r.patterns("language:")
}

func (r *Result) patterns(prefix string) []string {
	var out []string
	for _, p := range r.DetectedPatterns {
		if strings.HasPrefix(p, prefix) {
			out = append(out, strings.TrimPrefix(p, prefix))
		}
	}
	return out
}
