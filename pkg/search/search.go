// Package search orchestrates retrieval: query preprocessing, variant
// selection, hybrid dense+sparse search, optional cross-encoder
// re-ranking, and PRF two-pass expansion.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"

	"github.com/quarrydev/quarry/pkg/embed"
	"github.com/quarrydev/quarry/pkg/index"
	"github.com/quarrydev/quarry/pkg/prf"
	"github.com/quarrydev/quarry/pkg/query"
	"github.com/quarrydev/quarry/pkg/rerank"
	"github.com/quarrydev/quarry/pkg/store"
)

// ErrNotIndexed is returned when the codebase has no collection.
var ErrNotIndexed = errors.New("search: codebase is not indexed")

const (
	defaultTopK      = 5
	defaultThreshold = 0.5
	defaultRRFK      = 100
	rerankCandidates = 50
	maxVariantFanout = 3
)

// Options configures one search call.
type Options struct {
	TopK       int
	Threshold  float64
	FilterExpr string
}

// DefaultOptions returns the standard search options.
func DefaultOptions() Options {
	return Options{TopK: defaultTopK, Threshold: defaultThreshold}
}

// Config holds retriever configuration.
type Config struct {
	HybridMode bool
	RRFK       int
	CacheSize  int
	CacheTTL   time.Duration
}

// DefaultConfig reads HYBRID_MODE.
func DefaultConfig() Config {
	cfg := Config{
		HybridMode: true,
		RRFK:       defaultRRFK,
		CacheSize:  100,
		CacheTTL:   5 * time.Minute,
	}
	if v := os.Getenv("HYBRID_MODE"); v != "" {
		cfg.HybridMode = v != "false" && v != "0"
	}
	return cfg
}

// Retriever serves queries against indexed codebases.
type Retriever struct {
	store    store.VectorStore
	provider embed.Provider
	reranker rerank.Reranker // nil disables re-ranking
	expander *prf.Engine     // nil disables PRF
	pre      *query.Preprocessor
	cfg      Config

	cache *expirable.LRU[string, []store.SearchResult]
}

// New creates a retriever. Reranker and expander may be nil.
func New(st store.VectorStore, provider embed.Provider, reranker rerank.Reranker, expander *prf.Engine, cfg Config) *Retriever {
	if cfg.RRFK <= 0 {
		cfg.RRFK = defaultRRFK
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 100
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &Retriever{
		store:    st,
		provider: provider,
		reranker: reranker,
		expander: expander,
		pre:      query.New(query.DefaultConfig()),
		cfg:      cfg,
		cache:    expirable.NewLRU[string, []store.SearchResult](cfg.CacheSize, nil, cfg.CacheTTL),
	}
}

// Search runs one retrieval pass for the codebase at codebasePath.
func (r *Retriever) Search(ctx context.Context, codebasePath, rawQuery string, opts Options) ([]store.SearchResult, error) {
	opts = fillOptions(opts)

	collection, err := r.collectionFor(ctx, codebasePath)
	if err != nil {
		return nil, err
	}

	cacheKey := r.cacheKey(collection, rawQuery, opts)
	if cached, ok := r.cache.Get(cacheKey); ok {
		log.Debug().Str("query", rawQuery).Int("results", len(cached)).Msg("query cache hit")
		return cached, nil
	}

	primary := r.selectVariant(rawQuery)

	results, err := r.retrieve(ctx, collection, primary, opts)
	if err != nil {
		return nil, err
	}

	if r.rerankEnabled() && len(results) > 0 {
		reranked, err := r.rerankResults(ctx, primary, results, opts.TopK)
		if err != nil {
			log.Warn().Err(err).Msg("reranking failed, returning fused results")
		} else {
			results = reranked
		}
	}
	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}

	r.cache.Add(cacheKey, results)
	return results, nil
}

// SearchWithPRF runs a widened first pass, expands the query from its
// top results, re-runs retrieval with the expanded query, and merges
// both passes. Any PRF problem falls back to the first pass.
func (r *Retriever) SearchWithPRF(ctx context.Context, codebasePath, rawQuery string, opts Options) ([]store.SearchResult, error) {
	opts = fillOptions(opts)
	if r.expander == nil || !r.expander.Enabled() {
		return r.Search(ctx, codebasePath, rawQuery, opts)
	}

	wideOpts := opts
	wideOpts.TopK = max(12, opts.TopK*2)
	wideOpts.Threshold = 0.8 * opts.Threshold

	firstPass, err := r.Search(ctx, codebasePath, rawQuery, wideOpts)
	if err != nil {
		return nil, err
	}
	if len(firstPass) == 0 {
		return nil, nil
	}

	docs := make([]string, len(firstPass))
	for i, res := range firstPass {
		docs[i] = res.Content
	}
	expansion, err := r.expander.Expand(rawQuery, docs)
	if err != nil || expansion.ExpandedQuery == rawQuery {
		return truncate(firstPass, opts.TopK), nil
	}
	log.Debug().Str("expanded", expansion.ExpandedQuery).
		Int("terms", len(expansion.ExpansionTerms)).Msg("prf expansion")

	secondPass, err := r.Search(ctx, codebasePath, expansion.ExpandedQuery, opts)
	if err != nil {
		log.Warn().Err(err).Msg("expansion pass failed, returning first pass")
		return truncate(firstPass, opts.TopK), nil
	}

	merged := mergeResults(secondPass, firstPass)
	return truncate(merged, opts.TopK), nil
}

// retrieve issues the store call for one variant.
func (r *Retriever) retrieve(ctx context.Context, collection, variant string, opts Options) ([]store.SearchResult, error) {
	limit := opts.TopK
	if r.rerankEnabled() {
		limit = min(opts.TopK*2, rerankCandidates)
	}

	emb, err := r.provider.Embed(ctx, variant)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	if r.cfg.HybridMode {
		reqs := []store.ANNSearchRequest{
			{Data: emb.Vector, AnnsField: "vector", Limit: limit},
			{Data: variant, AnnsField: "sparse_vector", Limit: limit},
		}
		return r.store.HybridSearch(ctx, collection, reqs, store.HybridOptions{
			RRFK:       r.cfg.RRFK,
			Limit:      limit,
			FilterExpr: opts.FilterExpr,
		})
	}
	return r.store.Search(ctx, collection, emb.Vector, store.SearchOptions{
		TopK:       limit,
		Threshold:  opts.Threshold,
		FilterExpr: opts.FilterExpr,
	})
}

// selectVariant preprocesses the query and picks the primary variant.
// Multi-query selection applies when preprocessing produced at least
// two variants and detected a pattern; the extra variants are logged,
// only the primary is issued.
func (r *Retriever) selectVariant(rawQuery string) string {
	pre := r.pre.Preprocess(rawQuery)

	multi := len(pre.ExpandedTerms) >= 2 && len(pre.DetectedPatterns) > 0
	if multi {
		variants := query.SelectMulti(pre, maxVariantFanout)
		if len(variants) > 1 {
			log.Debug().Strs("alternates", variants[1:]).Msg("unused query variants")
		}
		return variants[0]
	}
	return query.SelectBest(pre)
}

func (r *Retriever) rerankEnabled() bool {
	return r.reranker != nil && r.reranker.Enabled()
}

func (r *Retriever) rerankResults(ctx context.Context, variant string, results []store.SearchResult, topK int) ([]store.SearchResult, error) {
	contents := make([]string, len(results))
	for i, res := range results {
		contents[i] = res.Content
	}
	ranked, err := r.reranker.Rerank(ctx, variant, contents, topK)
	if err != nil {
		return nil, err
	}

	out := make([]store.SearchResult, 0, len(ranked))
	for _, rr := range ranked {
		if rr.Index < 0 || rr.Index >= len(results) {
			continue
		}
		res := results[rr.Index]
		res.Score = rr.Score
		out = append(out, res)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// collectionFor resolves the collection and checks it exists.
func (r *Retriever) collectionFor(ctx context.Context, codebasePath string) (string, error) {
	absPath, err := filepath.Abs(codebasePath)
	if err != nil {
		return "", err
	}
	collection := index.CollectionName(absPath, r.cfg.HybridMode)
	exists, err := r.store.HasCollection(ctx, collection)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrNotIndexed
	}
	return collection, nil
}

func (r *Retriever) cacheKey(collection, rawQuery string, opts Options) string {
	h := sha256.New()
	_, _ = fmt.Fprintf(h, "%s:%s:%d:%.4f:%s:%t",
		collection, rawQuery, opts.TopK, opts.Threshold, opts.FilterExpr, r.rerankEnabled())
	return hex.EncodeToString(h.Sum(nil)[:8])
}

// mergeResults concatenates the lists, deduplicating by
// (relative_path, start_line, end_line); earlier lists win.
func mergeResults(lists ...[]store.SearchResult) []store.SearchResult {
	seen := map[string]bool{}
	var out []store.SearchResult
	for _, list := range lists {
		for _, res := range list {
			key := res.RelativePath + ":" + strconv.Itoa(res.StartLine) + ":" + strconv.Itoa(res.EndLine)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, res)
		}
	}
	return out
}

func fillOptions(opts Options) Options {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.Threshold <= 0 {
		opts.Threshold = defaultThreshold
	}
	return opts
}

func truncate(results []store.SearchResult, n int) []store.SearchResult {
	if len(results) > n {
		return results[:n]
	}
	return results
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
