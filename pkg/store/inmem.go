package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// InMemStore is a complete VectorStore kept in process memory. It backs
// tests and QUARRY_STORE=memory runs; ranking semantics mirror the
// sqlite-vec store (cosine similarity, FTS-style term scoring, RRF).
type InMemStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	dimension   int
	hybrid      bool
	description string
	docs        []*VectorDocument
	byID        map[string]int
}

// NewInMem creates an empty in-memory store.
func NewInMem() *InMemStore {
	return &InMemStore{collections: map[string]*memCollection{}}
}

func (s *InMemStore) HasCollection(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok, nil
}

func (s *InMemStore) CreateCollection(_ context.Context, name string, dimension int, description string) error {
	return s.create(name, dimension, description, false)
}

func (s *InMemStore) CreateHybridCollection(_ context.Context, name string, dimension int, description string) error {
	return s.create(name, dimension, description, true)
}

func (s *InMemStore) create(name string, dimension int, description string, hybrid bool) error {
	if dimension <= 0 {
		return fmt.Errorf("store: invalid dimension %d", dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; ok {
		return nil
	}
	s.collections[name] = &memCollection{
		dimension:   dimension,
		hybrid:      hybrid,
		description: description,
		byID:        map[string]int{},
	}
	return nil
}

func (s *InMemStore) DropCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	return nil
}

func (s *InMemStore) Insert(_ context.Context, name string, docs []*VectorDocument) error {
	return s.insert(name, docs)
}

func (s *InMemStore) InsertHybrid(_ context.Context, name string, docs []*VectorDocument) error {
	return s.insert(name, docs)
}

func (s *InMemStore) insert(name string, docs []*VectorDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[name]
	if !ok {
		return ErrCollectionNotFound
	}
	for _, doc := range docs {
		if len(doc.Vector) != col.dimension {
			return fmt.Errorf("store: vector dimension %d does not match collection dimension %d",
				len(doc.Vector), col.dimension)
		}
		if i, ok := col.byID[doc.ID]; ok {
			col.docs[i] = doc
			continue
		}
		col.byID[doc.ID] = len(col.docs)
		col.docs = append(col.docs, doc)
	}
	return nil
}

func (s *InMemStore) Search(_ context.Context, name string, vector []float32, opts SearchOptions) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[name]
	if !ok {
		return nil, ErrCollectionNotFound
	}
	filter, err := parseFilter(opts.FilterExpr)
	if err != nil {
		return nil, err
	}

	results := col.denseSearch(vector, filter)
	out := results[:0]
	for _, r := range results {
		if opts.Threshold > 0 && r.Score < opts.Threshold {
			continue
		}
		out = append(out, r)
	}
	if opts.TopK > 0 && len(out) > opts.TopK {
		out = out[:opts.TopK]
	}
	return out, nil
}

func (s *InMemStore) HybridSearch(_ context.Context, name string, reqs []ANNSearchRequest, opts HybridOptions) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[name]
	if !ok {
		return nil, ErrCollectionNotFound
	}
	filter, err := parseFilter(opts.FilterExpr)
	if err != nil {
		return nil, err
	}

	lists := make([][]SearchResult, 0, len(reqs))
	for _, req := range reqs {
		var list []SearchResult
		switch data := req.Data.(type) {
		case []float32:
			list = col.denseSearch(data, filter)
		case string:
			list = col.sparseSearch(data, filter)
		default:
			return nil, fmt.Errorf("store: unsupported search data type %T", req.Data)
		}
		if req.Limit > 0 && len(list) > req.Limit {
			list = list[:req.Limit]
		}
		lists = append(lists, list)
	}
	return rrfFuse(lists, opts.RRFK, opts.Limit), nil
}

func (c *memCollection) denseSearch(vector []float32, filter *filterExpr) []SearchResult {
	var results []SearchResult
	for _, doc := range c.docs {
		if !filter.matches(doc) {
			continue
		}
		results = append(results, toResult(doc, cosineSimilarity(vector, doc.Vector)))
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}

// sparseSearch scores documents by query-term frequency, a stand-in for
// the FTS index the sqlite store uses.
func (c *memCollection) sparseSearch(queryText string, filter *filterExpr) []SearchResult {
	terms := strings.Fields(strings.ToLower(queryText))
	if len(terms) == 0 {
		return nil
	}
	var results []SearchResult
	for _, doc := range c.docs {
		if !filter.matches(doc) {
			continue
		}
		content := strings.ToLower(doc.Content)
		score := 0.0
		for _, t := range terms {
			score += float64(strings.Count(content, t))
		}
		if score > 0 {
			results = append(results, toResult(doc, score))
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}

func (s *InMemStore) Query(_ context.Context, name string, filterExpr string, outputFields []string, limit int) ([]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[name]
	if !ok {
		return nil, ErrCollectionNotFound
	}
	filter, err := parseFilter(filterExpr)
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	for _, doc := range col.docs {
		if !filter.matches(doc) {
			continue
		}
		row := map[string]any{}
		for _, f := range outputFields {
			switch f {
			case "id":
				row[f] = doc.ID
			case "content":
				row[f] = doc.Content
			case "relative_path":
				row[f] = doc.RelativePath
			case "start_line":
				row[f] = doc.StartLine
			case "end_line":
				row[f] = doc.EndLine
			case "file_extension":
				row[f] = doc.FileExtension
			default:
				if v, ok := doc.Metadata[f]; ok {
					row[f] = v
				}
			}
		}
		rows = append(rows, row)
		if limit > 0 && len(rows) >= limit {
			break
		}
	}
	return rows, nil
}

func (s *InMemStore) Delete(_ context.Context, name string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[name]
	if !ok {
		return ErrCollectionNotFound
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := col.docs[:0]
	for _, doc := range col.docs {
		if !drop[doc.ID] {
			kept = append(kept, doc)
		}
	}
	col.docs = kept
	col.byID = make(map[string]int, len(kept))
	for i, doc := range kept {
		col.byID[doc.ID] = i
	}
	return nil
}

func (s *InMemStore) Close() error { return nil }

// Count returns the number of documents in a collection (test helper).
func (s *InMemStore) Count(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if col, ok := s.collections[name]; ok {
		return len(col.docs)
	}
	return 0
}

func toResult(doc *VectorDocument, score float64) SearchResult {
	return SearchResult{
		Content:      doc.Content,
		RelativePath: doc.RelativePath,
		StartLine:    doc.StartLine,
		EndLine:      doc.EndLine,
		Language:     doc.Metadata["language"],
		Score:        score,
	}
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
