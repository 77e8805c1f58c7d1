package index

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quarrydev/quarry/pkg/embed"
	"github.com/quarrydev/quarry/pkg/embedcache"
	"github.com/quarrydev/quarry/pkg/store"
)

// fakeProvider returns deterministic vectors derived from the text.
type fakeProvider struct {
	calls int
}

func (f *fakeProvider) Embed(_ context.Context, text string) (*embed.Embedding, error) {
	f.calls++
	return &embed.Embedding{Vector: fakeVector(text), Dimension: 4}, nil
}

func (f *fakeProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = fakeVector(t)
	}
	return out, nil
}

func (f *fakeProvider) DetectDimension(context.Context) (int, error) { return 4, nil }
func (f *fakeProvider) Provider() string                            { return "fake" }

func fakeVector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, 4)
	for i := range vec {
		vec[i] = float32(sum[i])/255.0 + 0.01
	}
	return vec
}

func testCache(t *testing.T) *embedcache.Cache {
	t.Helper()
	cfg := embedcache.DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "cache.db")
	cfg.CleanupEnabled = false
	c := embedcache.Open(cfg)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testIndexer(t *testing.T, dir string, st store.VectorStore, cfg Config) *Indexer {
	t.Helper()
	t.Setenv("HOME", t.TempDir()) // isolate snapshots
	idx, err := New(dir, st, &fakeProvider{}, testCache(t), cfg)
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

const goSource = `package demo

import "fmt"

func Hello() {
	fmt.Println("hello")
}

func Goodbye() {
	fmt.Println("goodbye")
}
`

func TestCollectionName(t *testing.T) {
	a := CollectionName("/repo/one", true)
	b := CollectionName("/repo/one", false)
	c := CollectionName("/repo/two", true)

	if !strings.HasPrefix(a, "hybrid_code_chunks_") {
		t.Errorf("hybrid prefix missing: %s", a)
	}
	if !strings.HasPrefix(b, "code_chunks_") {
		t.Errorf("dense prefix missing: %s", b)
	}
	if a == c {
		t.Error("different paths must name different collections")
	}
	if a != CollectionName("/repo/one", true) {
		t.Error("collection name must be deterministic")
	}
}

func TestIndex_FullIndex(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", goSource)
	writeFile(t, dir, "util/helper.py", "import os\n\ndef helper():\n    return os.getcwd()\n")
	writeFile(t, dir, "node_modules/x/dep.js", "function ignored() {}")
	writeFile(t, dir, "notes.txt", "not an indexed extension")

	st := store.NewInMem()
	cfg := DefaultConfig()
	cfg.HybridMode = false
	idx := testIndexer(t, dir, st, cfg)

	res, err := idx.Index(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", res.Status)
	}
	if res.IndexedFiles != 2 {
		t.Errorf("expected 2 indexed files, got %d", res.IndexedFiles)
	}
	if res.TotalChunks == 0 {
		t.Error("expected chunks to be produced")
	}
	if st.Count(idx.Collection()) != res.TotalChunks {
		t.Errorf("store holds %d docs, result says %d", st.Count(idx.Collection()), res.TotalChunks)
	}

	rows, err := st.Query(context.Background(), idx.Collection(), "", []string{"relative_path"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, row := range rows {
		rel := row["relative_path"].(string)
		if strings.Contains(rel, "node_modules") || strings.HasSuffix(rel, ".txt") {
			t.Errorf("ignored file was indexed: %s", rel)
		}
	}
}

func TestIndex_ProgressPhases(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", goSource)

	st := store.NewInMem()
	idx := testIndexer(t, dir, st, DefaultConfig())

	var phases []string
	var last float64
	progress := func(p Progress) {
		phases = append(phases, p.Phase)
		if p.Percentage < last {
			t.Errorf("percentage went backwards: %v -> %v", last, p.Percentage)
		}
		last = p.Percentage
	}
	if _, err := idx.Index(context.Background(), progress); err != nil {
		t.Fatal(err)
	}
	if len(phases) == 0 || phases[0] != "preparing" {
		t.Errorf("expected a preparing phase first, got %v", phases)
	}
	if last != 100 {
		t.Errorf("final percentage should be 100, got %v", last)
	}
}

func TestIndex_ChunkLimit(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", goSource)
	writeFile(t, dir, "other.go", goSource)

	st := store.NewInMem()
	cfg := DefaultConfig()
	cfg.ChunkLimit = 1
	idx := testIndexer(t, dir, st, cfg)

	res, err := idx.Index(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusLimitReached {
		t.Errorf("expected limit_reached, got %s", res.Status)
	}
	if res.TotalChunks > 1 {
		t.Errorf("ceiling of 1 chunk exceeded: %d", res.TotalChunks)
	}
}

func TestIndex_IncrementalUnchanged(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", goSource)

	st := store.NewInMem()
	idx := testIndexer(t, dir, st, DefaultConfig())
	ctx := context.Background()

	if _, err := idx.Index(ctx, nil); err != nil {
		t.Fatal(err)
	}
	countBefore := st.Count(idx.Collection())

	res, err := idx.IndexIncremental(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalChunks != 0 {
		t.Errorf("unchanged tree should reindex nothing, got %d chunks", res.TotalChunks)
	}
	if st.Count(idx.Collection()) != countBefore {
		t.Error("store must be untouched for an unchanged tree")
	}
}

func TestIndex_IncrementalModifiedAndRemoved(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", goSource)
	writeFile(t, dir, "gone.go", "package demo\n\nfunc Doomed() {}\n")

	st := store.NewInMem()
	idx := testIndexer(t, dir, st, DefaultConfig())
	ctx := context.Background()

	if _, err := idx.Index(ctx, nil); err != nil {
		t.Fatal(err)
	}

	writeFile(t, dir, "main.go", strings.Replace(goSource, "hello", "howdy", 1))
	if err := os.Remove(filepath.Join(dir, "gone.go")); err != nil {
		t.Fatal(err)
	}

	if _, err := idx.IndexIncremental(ctx, nil); err != nil {
		t.Fatal(err)
	}

	rows, err := st.Query(ctx, idx.Collection(), store.PathFilter("gone.go"), []string{"id"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("removed file should have no documents, found %d", len(rows))
	}

	rows, err = st.Query(ctx, idx.Collection(), store.PathFilter("main.go"), []string{"content"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	foundNew := false
	for _, row := range rows {
		if strings.Contains(row["content"].(string), "howdy") {
			foundNew = true
		}
	}
	if !foundNew {
		t.Error("modified file should be reindexed with new content")
	}
}

func TestDeleteFileChunks(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", goSource)

	st := store.NewInMem()
	idx := testIndexer(t, dir, st, DefaultConfig())
	ctx := context.Background()

	if _, err := idx.Index(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if err := idx.DeleteFileChunks(ctx, "main.go"); err != nil {
		t.Fatal(err)
	}
	if n := st.Count(idx.Collection()); n != 0 {
		t.Errorf("expected empty collection after delete, got %d docs", n)
	}
}

func TestIndex_DocumentIdentityStable(t *testing.T) {
	a := documentID("main.go", 1, 5, "func Hello() {}")
	b := documentID("main.go", 1, 5, "func Hello() {}")
	c := documentID("main.go", 1, 5, "func Hello() { changed }")
	if a != b {
		t.Error("identical chunks must share an id")
	}
	if a == c {
		t.Error("changed content must change the id")
	}
}

func TestIndex_Cancellation(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", goSource)

	st := store.NewInMem()
	idx := testIndexer(t, dir, st, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := idx.Index(ctx, nil); err == nil {
		t.Error("a canceled context should abort indexing")
	}
}
