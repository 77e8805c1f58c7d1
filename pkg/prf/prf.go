package prf

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrInvalidArgument is returned for an empty original query.
var ErrInvalidArgument = errors.New("prf: empty query")

// Term source tags.
const (
	SourceTFIDF     = "tfidf"
	SourceFrequency = "frequency"
	SourceContext   = "context"
)

// ExpansionTerm is one candidate expansion term with its evidence.
type ExpansionTerm struct {
	Term          string
	Score         float64
	Frequency     int
	DocumentCount int
	Source        string
}

// Result is the outcome of one expansion attempt. Apart from an empty
// original query, expansion never fails: on any internal problem
// ExpandedQuery echoes the original and Reasoning records what happened.
type Result struct {
	OriginalQuery     string
	ExpandedQuery     string
	ExpansionTerms    []ExpansionTerm
	DocumentsAnalyzed int
	Reasoning         []string
	ProcessingTimeMS  int64
}

// Config holds PRF parameters.
type Config struct {
	Enabled        bool
	TopK           int     // pseudo-relevant documents to analyze (recommended 5-10)
	ExpansionTerms int     // terms added to the query (recommended 5-10)
	MinTermFreq    int
	OriginalWeight float64 // RM3 interpolation weight for the original query (recommended 0.6-0.8)
	CodeTokens     bool    // split identifiers before tokenization
	MinTermLength  int
	StopWords      map[string]bool
}

// DefaultConfig reads the PRF_* environment variables.
func DefaultConfig() Config {
	cfg := Config{
		Enabled:        true,
		TopK:           7,
		ExpansionTerms: 8,
		MinTermFreq:    2,
		OriginalWeight: 0.7,
		CodeTokens:     true,
		MinTermLength:  3,
		StopWords:      DefaultStopWords(),
	}
	if v := os.Getenv("PRF_ENABLED"); v != "" {
		cfg.Enabled = v != "false" && v != "0"
	}
	if v := os.Getenv("PRF_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TopK = n
		}
	}
	if v := os.Getenv("PRF_EXPANSION_TERMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ExpansionTerms = n
		}
	}
	if v := os.Getenv("PRF_MIN_TERM_FREQ"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MinTermFreq = n
		}
	}
	if v := os.Getenv("PRF_ORIGINAL_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.OriginalWeight = f
		}
	}
	if v := os.Getenv("PRF_CODE_TOKENS"); v != "" {
		cfg.CodeTokens = v != "false" && v != "0"
	}
	if v := os.Getenv("PRF_MIN_TERM_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MinTermLength = n
		}
	}
	return cfg
}

// DefaultStopWords covers English function words plus keywords common
// enough in code to be useless as expansion terms.
func DefaultStopWords() map[string]bool {
	words := []string{
		"the", "and", "for", "are", "but", "not", "you", "all", "can", "had",
		"was", "were", "been", "have", "has", "this", "that", "with", "from",
		"they", "will", "would", "there", "their", "what", "when", "where",
		"which", "while", "into", "than", "then", "them", "these", "some",
		"func", "function", "return", "class", "import", "package", "const",
		"var", "let", "new", "nil", "null", "none", "true", "false", "void",
		"int", "string", "bool", "self", "public", "private", "static",
	}
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Stats aggregates engine activity across queries.
type Stats struct {
	TotalQueries        int64
	AvgProcessingTimeMS float64
	SuccessRate         float64
}

// Engine performs RM3-style expansion. Safe for concurrent use.
type Engine struct {
	cfg Config

	mu                   sync.Mutex
	totalQueries         int64
	totalProcessingTime  time.Duration
	successfulExpansions int64
}

// NewEngine creates an engine with the given configuration.
func NewEngine(cfg Config) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = 7
	}
	if cfg.ExpansionTerms <= 0 {
		cfg.ExpansionTerms = 8
	}
	if cfg.MinTermLength <= 0 {
		cfg.MinTermLength = 3
	}
	if cfg.StopWords == nil {
		cfg.StopWords = DefaultStopWords()
	}
	return &Engine{cfg: cfg}
}

var noiseRegexes = []*regexp.Regexp{
	regexp.MustCompile(`^[a-z]$`),
	regexp.MustCompile(`^\d+[a-z]?$`),
	regexp.MustCompile(`^x{2,}$`),
	regexp.MustCompile(`^[xyz]\d*$`),
}

// Expand analyzes the top pseudo-relevant documents and builds an
// expanded query. Only an empty original query is an error; every other
// failure degrades to echoing the original.
func (e *Engine) Expand(originalQuery string, documents []string) (res *Result, err error) {
	if strings.TrimSpace(originalQuery) == "" {
		return nil, ErrInvalidArgument
	}

	start := time.Now()
	res = &Result{
		OriginalQuery: originalQuery,
		ExpandedQuery: originalQuery,
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("prf expansion recovered")
			res = &Result{
				OriginalQuery: originalQuery,
				ExpandedQuery: originalQuery,
				Reasoning:     []string{fmt.Sprintf("Expansion failed internally: %v", r)},
			}
			err = nil
		}
		res.ProcessingTimeMS = time.Since(start).Milliseconds()
		e.record(time.Since(start), len(res.ExpansionTerms) > 0)
	}()

	if len(documents) == 0 {
		res.Reasoning = append(res.Reasoning, "No search results provided")
		return res, nil
	}
	if required := min(3, e.cfg.TopK); len(documents) < required {
		res.Reasoning = append(res.Reasoning,
			fmt.Sprintf("Insufficient documents: %d < %d required", len(documents), required))
		return res, nil
	}

	topK := e.cfg.TopK
	if topK > len(documents) {
		topK = len(documents)
	}
	selected := documents[:topK]
	res.DocumentsAnalyzed = topK

	preprocessed := make([]string, topK)
	for i, doc := range selected {
		preprocessed[i] = e.preprocess(doc)
	}

	terms := e.scoreTerms(preprocessed)
	terms = e.filterTerms(terms, strings.ToLower(originalQuery))

	sort.SliceStable(terms, func(i, j int) bool {
		if terms[i].Score != terms[j].Score {
			return terms[i].Score > terms[j].Score
		}
		return terms[i].Term < terms[j].Term
	})
	if len(terms) > e.cfg.ExpansionTerms {
		terms = terms[:e.cfg.ExpansionTerms]
	}
	res.ExpansionTerms = terms

	if len(terms) > 0 {
		res.ExpandedQuery = e.interpolate(originalQuery, terms)
	}

	res.Reasoning = append(res.Reasoning, e.describe(res)...)
	return res, nil
}

// preprocess normalizes one document into a token stream. With
// CodeTokens, identifiers are split at camelCase, snake/kebab, and
// letter-digit boundaries first.
func (e *Engine) preprocess(doc string) string {
	s := doc
	if e.cfg.CodeTokens {
		s = camelRe.ReplaceAllString(s, "$1 $2")
		s = separatorRe.ReplaceAllString(s, " ")
		s = alphaNumRe.ReplaceAllString(s, "$1 $2")
		s = numAlphaRe.ReplaceAllString(s, "$1 $2")
	}
	s = nonWordRe.ReplaceAllString(s, " ")
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimSpace(strings.ToLower(s))
}

var (
	camelRe     = regexp.MustCompile(`([a-z])([A-Z])`)
	separatorRe = regexp.MustCompile(`[_\-]+`)
	alphaNumRe  = regexp.MustCompile(`([A-Za-z])([0-9])`)
	numAlphaRe  = regexp.MustCompile(`([0-9])([A-Za-z])`)
	nonWordRe   = regexp.MustCompile(`[^\w]`)
	numericRe   = regexp.MustCompile(`^\d+$`)
	letterRe    = regexp.MustCompile(`^[a-zA-Z]`)
)

// scoreTerms computes per-token TF-IDF over the corpus, keeping the
// maximum score across documents plus occurrence and document counts.
func (e *Engine) scoreTerms(docs []string) []ExpansionTerm {
	corpus := NewCorpus(docs)

	type acc struct {
		score     float64
		frequency int
		docCount  int
	}
	accs := map[string]*acc{}

	for _, tokens := range corpus.Docs() {
		seenInDoc := map[string]bool{}
		for _, tok := range tokens {
			a := accs[tok]
			if a == nil {
				a = &acc{}
				accs[tok] = a
			}
			a.frequency++
			if !seenInDoc[tok] {
				seenInDoc[tok] = true
				a.docCount++
				if score := corpus.TFIDF(tok, tokens); score > a.score {
					a.score = score
				}
			}
		}
	}

	terms := make([]ExpansionTerm, 0, len(accs))
	for tok, a := range accs {
		terms = append(terms, ExpansionTerm{
			Term:          tok,
			Score:         a.score,
			Frequency:     a.frequency,
			DocumentCount: a.docCount,
			Source:        SourceTFIDF,
		})
	}
	return terms
}

func (e *Engine) filterTerms(terms []ExpansionTerm, lowerOriginal string) []ExpansionTerm {
	out := terms[:0]
	for _, t := range terms {
		if len(t.Term) < e.cfg.MinTermLength {
			continue
		}
		if e.cfg.StopWords[t.Term] {
			continue
		}
		if strings.Contains(lowerOriginal, t.Term) {
			continue
		}
		if numericRe.MatchString(t.Term) {
			continue
		}
		if !letterRe.MatchString(t.Term) {
			continue
		}
		if isNoise(t.Term) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func isNoise(term string) bool {
	for _, re := range noiseRegexes {
		if re.MatchString(term) {
			return true
		}
	}
	return false
}

// interpolate concatenates per the RM3 approximation: the side with the
// greater weight leads.
func (e *Engine) interpolate(original string, terms []ExpansionTerm) string {
	words := make([]string, len(terms))
	for i, t := range terms {
		words[i] = t.Term
	}
	joined := strings.Join(words, " ")
	if 1-e.cfg.OriginalWeight > 0.5 {
		return joined + " " + original
	}
	return original + " " + joined
}

func (e *Engine) describe(res *Result) []string {
	lines := []string{
		fmt.Sprintf("Analyzed %d documents", res.DocumentsAnalyzed),
		fmt.Sprintf("Extracted %d expansion terms", len(res.ExpansionTerms)),
	}
	if n := len(res.ExpansionTerms); n > 0 {
		top := n
		if top > 3 {
			top = 3
		}
		names := make([]string, top)
		sum := 0.0
		for i, t := range res.ExpansionTerms {
			if i < top {
				names[i] = t.Term
			}
			sum += t.Score
		}
		lines = append(lines,
			fmt.Sprintf("Top terms: %s", strings.Join(names, ", ")),
			fmt.Sprintf("Average term score: %.4f", sum/float64(n)))
	}
	if e.cfg.CodeTokens {
		lines = append(lines, "Code-aware tokenization enabled")
	}
	return lines
}

func (e *Engine) record(elapsed time.Duration, success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.totalQueries++
	e.totalProcessingTime += elapsed
	if success {
		e.successfulExpansions++
	}
}

// Stats returns aggregate engine statistics.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Stats{TotalQueries: e.totalQueries}
	if e.totalQueries > 0 {
		s.AvgProcessingTimeMS = float64(e.totalProcessingTime.Milliseconds()) / float64(e.totalQueries)
		s.SuccessRate = float64(e.successfulExpansions) / float64(e.totalQueries)
	}
	return s
}

// ResetStats zeroes the counters.
func (e *Engine) ResetStats() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.totalQueries = 0
	e.totalProcessingTime = 0
	e.successfulExpansions = 0
}

// Enabled reports whether expansion is turned on.
func (e *Engine) Enabled() bool { return e.cfg.Enabled }

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
