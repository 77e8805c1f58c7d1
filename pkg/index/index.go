// Package index drives the indexing pipeline: enumerate files, chunk,
// embed (through the content-addressed cache), and insert into the
// vector store. Incremental reindexing diffs a content-hash snapshot of
// the tree; watch mode keeps the index current from file events.
package index

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/quarrydev/quarry/pkg/chunk"
	"github.com/quarrydev/quarry/pkg/embed"
	"github.com/quarrydev/quarry/pkg/embedcache"
	"github.com/quarrydev/quarry/pkg/snapshot"
	"github.com/quarrydev/quarry/pkg/store"
)

const (
	defaultBatchSize  = 100
	defaultChunkLimit = 450_000
)

// defaultExtensions are indexed unless overridden.
var defaultExtensions = []string{
	".ts", ".tsx", ".js", ".jsx", ".py", ".java", ".cpp", ".c", ".h", ".hpp",
	".cs", ".go", ".rs", ".php", ".rb", ".swift", ".kt", ".scala", ".m", ".mm",
	".md", ".markdown", ".ipynb",
}

// Status values reported by an indexing run.
const (
	StatusCompleted    = "completed"
	StatusLimitReached = "limit_reached"
)

// Result summarizes one indexing invocation.
type Result struct {
	IndexedFiles int
	TotalChunks  int
	Status       string
}

// Progress is passed to the progress callback. The first 10% covers
// preparation, the remaining 90% file processing.
type Progress struct {
	Phase      string
	Current    int
	Total      int
	Percentage float64
}

// ProgressFunc receives progress updates; may be nil.
type ProgressFunc func(Progress)

// Config holds indexer configuration.
type Config struct {
	BatchSize      int  // chunks per embedding batch (EMBEDDING_BATCH_SIZE)
	ChunkLimit     int  // hard per-invocation ceiling
	HybridMode     bool // hybrid (dense+sparse) collections (HYBRID_MODE)
	ForceReindex   bool
	Extensions     []string // extra extensions on top of the defaults
	IgnorePatterns []string // extra ignore patterns
	ChunkConfig    *chunk.Config
}

// DefaultConfig reads the indexing environment variables.
func DefaultConfig() Config {
	cfg := Config{
		BatchSize:   defaultBatchSize,
		ChunkLimit:  defaultChunkLimit,
		HybridMode:  true,
		ChunkConfig: chunk.DefaultConfig(),
	}
	if v := os.Getenv("EMBEDDING_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BatchSize = n
		}
	}
	if v := os.Getenv("HYBRID_MODE"); v != "" {
		cfg.HybridMode = v != "false" && v != "0"
	}
	if v := os.Getenv("CUSTOM_EXTENSIONS"); v != "" {
		for _, ext := range strings.Split(v, ",") {
			ext = strings.TrimSpace(ext)
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			cfg.Extensions = append(cfg.Extensions, ext)
		}
	}
	return cfg
}

// CollectionName derives the store collection for a codebase from the
// md5 of its absolute path, prefixed by retrieval mode so both modes
// can coexist.
func CollectionName(absPath string, hybrid bool) string {
	prefix := "code_chunks"
	if hybrid {
		prefix = "hybrid_code_chunks"
	}
	sum := md5.Sum([]byte(absPath))
	return prefix + "_" + hex.EncodeToString(sum[:])[:8]
}

// Indexer indexes one codebase into one collection.
type Indexer struct {
	codebasePath string
	collection   string
	cfg          Config

	store    store.VectorStore
	provider embed.Provider
	cache    *embedcache.Cache
	ignore   *IgnoreRules
	snap     *snapshot.Synchronizer

	extensions map[string]bool
}

// New creates an indexer for the codebase at path.
func New(path string, st store.VectorStore, provider embed.Provider, cache *embedcache.Cache, cfg Config) (*Indexer, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.ChunkLimit <= 0 {
		cfg.ChunkLimit = defaultChunkLimit
	}
	if cfg.ChunkConfig == nil {
		cfg.ChunkConfig = chunk.DefaultConfig()
	}

	extensions := map[string]bool{}
	for _, ext := range defaultExtensions {
		extensions[ext] = true
	}
	for _, ext := range cfg.Extensions {
		extensions[strings.ToLower(ext)] = true
	}

	idx := &Indexer{
		codebasePath: absPath,
		collection:   CollectionName(absPath, cfg.HybridMode),
		cfg:          cfg,
		store:        st,
		provider:     provider,
		cache:        cache,
		ignore:       LoadIgnoreRules(absPath, cfg.IgnorePatterns),
		extensions:   extensions,
	}

	snapDir := snapshotDir()
	idx.snap, err = snapshot.New(absPath, snapDir, idx.eligible)
	if err != nil {
		return nil, err
	}
	return idx, nil
}

func snapshotDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "quarry", "snapshots")
	}
	return filepath.Join(home, ".quarry", "snapshots")
}

// Collection returns the collection name this indexer writes to.
func (idx *Indexer) Collection() string { return idx.collection }

// eligible is the shared file filter: extension allowlist plus ignore
// rules, over repository-relative POSIX paths.
func (idx *Indexer) eligible(relPath string) bool {
	if !idx.extensions[strings.ToLower(filepath.Ext(relPath))] {
		return false
	}
	return !idx.ignore.Ignored(relPath)
}

// Index performs a full index of the codebase.
func (idx *Indexer) Index(ctx context.Context, progress ProgressFunc) (*Result, error) {
	report(progress, "preparing", 0, 1, 0)
	if err := idx.prepareCollection(ctx); err != nil {
		return nil, err
	}

	files, err := idx.enumerate()
	if err != nil {
		return nil, err
	}
	report(progress, "prepared", 1, 1, 10)

	res, err := idx.processFiles(ctx, files, progress)
	if err != nil {
		return nil, err
	}

	// Commit the snapshot only after the whole job succeeded.
	if err := idx.snap.Initialize(); err == nil {
		if _, err := idx.snap.CheckForChanges(); err == nil {
			if err := idx.snap.Commit(); err != nil {
				log.Warn().Err(err).Msg("snapshot commit failed")
			}
		}
	}
	return res, nil
}

// IndexIncremental reindexes only files changed since the last snapshot
// commit.
func (idx *Indexer) IndexIncremental(ctx context.Context, progress ProgressFunc) (*Result, error) {
	report(progress, "preparing", 0, 1, 0)
	if err := idx.prepareCollection(ctx); err != nil {
		return nil, err
	}
	if err := idx.snap.Initialize(); err != nil {
		return nil, err
	}
	changes, err := idx.snap.CheckForChanges()
	if err != nil {
		return nil, err
	}
	report(progress, "prepared", 1, 1, 10)

	if changes.Empty() {
		report(progress, "completed", 0, 0, 100)
		return &Result{Status: StatusCompleted}, nil
	}

	for _, rel := range append(append([]string{}, changes.Removed...), changes.Modified...) {
		if err := idx.DeleteFileChunks(ctx, rel); err != nil {
			return nil, fmt.Errorf("delete chunks for %s: %w", rel, err)
		}
	}

	reindex := append(append([]string{}, changes.Added...), changes.Modified...)
	res, err := idx.processFiles(ctx, reindex, progress)
	if err != nil {
		return nil, err
	}

	if err := idx.snap.Commit(); err != nil {
		log.Warn().Err(err).Msg("snapshot commit failed")
	}
	return res, nil
}

func (idx *Indexer) prepareCollection(ctx context.Context) error {
	exists, err := idx.store.HasCollection(ctx, idx.collection)
	if err != nil {
		return err
	}
	if exists && idx.cfg.ForceReindex {
		if err := idx.store.DropCollection(ctx, idx.collection); err != nil {
			return err
		}
		exists = false
	}
	if exists {
		return nil
	}

	dimension, err := idx.provider.DetectDimension(ctx)
	if err != nil {
		return fmt.Errorf("detect embedding dimension: %w", err)
	}
	description := "code chunks for " + idx.codebasePath
	if idx.cfg.HybridMode {
		return idx.store.CreateHybridCollection(ctx, idx.collection, dimension, description)
	}
	return idx.store.CreateCollection(ctx, idx.collection, dimension, description)
}

// enumerate lists eligible files as repository-relative POSIX paths.
func (idx *Indexer) enumerate() ([]string, error) {
	var files []string
	err := filepath.WalkDir(idx.codebasePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(idx.codebasePath, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && idx.ignore.Ignored(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if idx.eligible(rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", idx.codebasePath, err)
	}
	return files, nil
}

// pendingChunk is a chunk waiting in the embedding buffer.
type pendingChunk struct {
	chunk      chunk.Chunk
	relPath    string
	chunkIndex int
	hash       string
}

// processFiles streams chunks through the bounded embedding buffer.
func (idx *Indexer) processFiles(ctx context.Context, files []string, progress ProgressFunc) (*Result, error) {
	res := &Result{Status: StatusCompleted}
	var buffer []pendingChunk

	flush := func() error {
		if len(buffer) == 0 {
			return nil
		}
		if err := idx.flushBatch(ctx, buffer); err != nil {
			return err
		}
		res.TotalChunks += len(buffer)
		buffer = buffer[:0]
		return nil
	}

	for i, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		content, err := os.ReadFile(filepath.Join(idx.codebasePath, filepath.FromSlash(rel)))
		if err != nil {
			log.Warn().Err(err).Str("file", rel).Msg("skipping unreadable file")
			continue
		}

		language := languageForPath(rel)
		chunks := chunk.ChunkFile(string(content), language, rel, idx.cfg.ChunkConfig)
		for ci, c := range chunks {
			if res.TotalChunks+len(buffer) >= idx.cfg.ChunkLimit {
				if err := flush(); err != nil {
					return nil, err
				}
				res.IndexedFiles = i + 1
				res.Status = StatusLimitReached
				log.Warn().Int("limit", idx.cfg.ChunkLimit).Msg("chunk limit reached, stopping")
				return res, nil
			}
			buffer = append(buffer, pendingChunk{
				chunk:      c,
				relPath:    rel,
				chunkIndex: ci,
				hash:       embedcache.HashContent(c.Content),
			})
			if len(buffer) >= idx.cfg.BatchSize {
				if err := flush(); err != nil {
					return nil, err
				}
			}
		}
		res.IndexedFiles = i + 1
		report(progress, "indexing", i+1, len(files), 10+90*float64(i+1)/float64(max(len(files), 1)))
	}

	if err := flush(); err != nil {
		return nil, err
	}
	report(progress, "completed", len(files), len(files), 100)
	return res, nil
}

// flushBatch resolves embeddings (cache first, provider for misses) and
// inserts one batch of documents.
func (idx *Indexer) flushBatch(ctx context.Context, batch []pendingChunk) error {
	hashes := make([]string, len(batch))
	for i, p := range batch {
		hashes[i] = p.hash
	}
	cached := idx.cache.GetMany(hashes)

	var missTexts []string
	var missHashes []string
	seenMiss := map[string]bool{}
	for _, p := range batch {
		if _, ok := cached[p.hash]; ok || seenMiss[p.hash] {
			continue
		}
		seenMiss[p.hash] = true
		missTexts = append(missTexts, p.chunk.Content)
		missHashes = append(missHashes, p.hash)
	}

	if len(missTexts) > 0 {
		vectors, err := idx.provider.EmbedBatch(ctx, missTexts)
		if err != nil {
			return fmt.Errorf("embed batch: %w", err)
		}
		if len(vectors) != len(missTexts) {
			return fmt.Errorf("embed batch returned %d vectors for %d texts", len(vectors), len(missTexts))
		}
		fresh := make(map[string][]float32, len(vectors))
		for i, v := range vectors {
			cached[missHashes[i]] = v
			fresh[missHashes[i]] = v
		}
		idx.cache.SetMany(fresh)
	}

	docs := make([]*store.VectorDocument, 0, len(batch))
	for _, p := range batch {
		vector, ok := cached[p.hash]
		if !ok {
			return fmt.Errorf("missing embedding for chunk %s:%d", p.relPath, p.chunkIndex)
		}
		docs = append(docs, &store.VectorDocument{
			ID:            documentID(p.relPath, p.chunk.StartLine, p.chunk.EndLine, p.chunk.Content),
			Content:       p.chunk.Content,
			Vector:        vector,
			RelativePath:  p.relPath,
			StartLine:     p.chunk.StartLine,
			EndLine:       p.chunk.EndLine,
			FileExtension: strings.ToLower(filepath.Ext(p.relPath)),
			Metadata: map[string]string{
				"language":      p.chunk.Language,
				"codebase_path": idx.codebasePath,
				"chunk_index":   strconv.Itoa(p.chunkIndex),
			},
		})
	}

	if idx.cfg.HybridMode {
		return idx.store.InsertHybrid(ctx, idx.collection, docs)
	}
	return idx.store.Insert(ctx, idx.collection, docs)
}

// documentID derives a stable identity: an unchanged chunk re-indexes
// to the same document.
func documentID(relPath string, startLine, endLine int, content string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d:%s", relPath, startLine, endLine, content)))
	return hex.EncodeToString(sum[:])[:32]
}

// DeleteFileChunks removes every document whose relative_path equals
// the given path.
func (idx *Indexer) DeleteFileChunks(ctx context.Context, relPath string) error {
	expr := store.PathFilter(relPath)
	rows, err := idx.store.Query(ctx, idx.collection, expr, []string{"id"}, 0)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if id, ok := row["id"].(string); ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return idx.store.Delete(ctx, idx.collection, ids)
}

// Clear drops the collection and the snapshot.
func (idx *Indexer) Clear(ctx context.Context) error {
	if err := idx.store.DropCollection(ctx, idx.collection); err != nil {
		return err
	}
	return idx.snap.Delete()
}

// Watch runs a full index, then keeps the collection current from
// debounced file events until the context ends.
func (idx *Indexer) Watch(ctx context.Context, progress ProgressFunc) error {
	if _, err := idx.Index(ctx, progress); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	err = filepath.WalkDir(idx.codebasePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			rel, relErr := filepath.Rel(idx.codebasePath, path)
			if relErr == nil && rel != "." && idx.ignore.Ignored(filepath.ToSlash(rel)) {
				return filepath.SkipDir
			}
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	var mu sync.Mutex
	pending := map[string]bool{}
	var debounce *time.Timer

	handle := func() {
		mu.Lock()
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		pending = map[string]bool{}
		mu.Unlock()

		for _, path := range paths {
			rel, err := filepath.Rel(idx.codebasePath, path)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if !idx.eligible(rel) {
				continue
			}
			if _, err := os.Stat(path); err != nil {
				if err := idx.DeleteFileChunks(ctx, rel); err != nil {
					log.Warn().Err(err).Str("file", rel).Msg("delete on watch failed")
				} else {
					log.Info().Str("file", rel).Msg("removed from index")
				}
				continue
			}
			if err := idx.DeleteFileChunks(ctx, rel); err != nil {
				log.Warn().Err(err).Str("file", rel).Msg("stale delete failed")
			}
			if _, err := idx.processFiles(ctx, []string{rel}, nil); err != nil {
				log.Warn().Err(err).Str("file", rel).Msg("reindex on watch failed")
			} else {
				log.Info().Str("file", rel).Msg("reindexed")
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			mu.Lock()
			pending[event.Name] = true
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(500*time.Millisecond, handle)
			mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("watch error")
		}
	}
}

// languageForPath maps a file to its language tag via the grammar
// registry, defaulting to the bare extension.
func languageForPath(relPath string) string {
	if g := chunk.GetGrammarByPath(relPath); g != nil {
		return g.Name
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(relPath)), ".")
	if ext == "markdown" || ext == "md" {
		return "markdown"
	}
	return ext
}

func report(progress ProgressFunc, phase string, current, total int, percentage float64) {
	if progress != nil {
		progress(Progress{Phase: phase, Current: current, Total: total, Percentage: percentage})
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
