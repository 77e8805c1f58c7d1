package store

import (
	"context"
	"testing"
)

func openVecStore(t *testing.T) *SQLiteVecStore {
	t.Helper()
	s, err := OpenSQLiteVec(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteVec_CollectionLifecycle(t *testing.T) {
	s := openVecStore(t)
	ctx := context.Background()

	ok, err := s.HasCollection(ctx, "c1")
	if err != nil || ok {
		t.Fatalf("collection should not exist yet: %v %v", ok, err)
	}
	if err := s.CreateHybridCollection(ctx, "c1", 3, "test"); err != nil {
		t.Fatal(err)
	}
	ok, _ = s.HasCollection(ctx, "c1")
	if !ok {
		t.Fatal("collection should exist after create")
	}
	if err := s.DropCollection(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	ok, _ = s.HasCollection(ctx, "c1")
	if ok {
		t.Fatal("collection should be gone after drop")
	}
}

func TestSQLiteVec_InsertSearchRoundTrip(t *testing.T) {
	s := openVecStore(t)
	ctx := context.Background()

	if err := s.CreateCollection(ctx, "dense", 3, "test"); err != nil {
		t.Fatal(err)
	}
	err := s.Insert(ctx, "dense", []*VectorDocument{
		doc("1", "a.go", "alpha content", 1, []float32{1, 0, 0}),
		doc("2", "b.go", "beta content", 1, []float32{0, 1, 0}),
	})
	if err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(ctx, "dense", []float32{1, 0, 0}, SearchOptions{TopK: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	if results[0].RelativePath != "a.go" {
		t.Errorf("nearest vector should rank first, got %s", results[0].RelativePath)
	}
	if results[0].Score < results[len(results)-1].Score {
		t.Error("scores must be descending")
	}
}

func TestSQLiteVec_HybridSearch(t *testing.T) {
	s := openVecStore(t)
	ctx := context.Background()

	if err := s.CreateHybridCollection(ctx, "hybrid", 3, "test"); err != nil {
		t.Fatal(err)
	}
	err := s.InsertHybrid(ctx, "hybrid", []*VectorDocument{
		doc("1", "a.go", "retry backoff logic", 1, []float32{1, 0, 0}),
		doc("2", "b.go", "unrelated words entirely", 1, []float32{0, 1, 0}),
	})
	if err != nil {
		t.Fatal(err)
	}

	reqs := []ANNSearchRequest{
		{Data: []float32{1, 0, 0}, AnnsField: "vector", Limit: 2},
		{Data: "retry backoff", AnnsField: "sparse_vector", Limit: 2},
	}
	results, err := s.HybridSearch(ctx, "hybrid", reqs, HybridOptions{RRFK: 100, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("expected fused results")
	}
	if results[0].RelativePath != "a.go" {
		t.Errorf("doc hit by both legs should fuse first, got %s", results[0].RelativePath)
	}
}

func TestSQLiteVec_QueryAndDelete(t *testing.T) {
	s := openVecStore(t)
	ctx := context.Background()

	if err := s.CreateCollection(ctx, "qd", 3, "test"); err != nil {
		t.Fatal(err)
	}
	err := s.Insert(ctx, "qd", []*VectorDocument{
		doc("1", "a.go", "aa", 1, []float32{1, 0, 0}),
		doc("2", "a.go", "bb", 5, []float32{0, 1, 0}),
		doc("3", "b.go", "cc", 1, []float32{0, 0, 1}),
	})
	if err != nil {
		t.Fatal(err)
	}

	rows, err := s.Query(ctx, "qd", PathFilter("a.go"), []string{"id"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row["id"].(string)
	}
	if err := s.Delete(ctx, "qd", ids); err != nil {
		t.Fatal(err)
	}

	rows, _ = s.Query(ctx, "qd", PathFilter("a.go"), []string{"id"}, 0)
	if len(rows) != 0 {
		t.Errorf("a.go rows should be deleted, got %d", len(rows))
	}
}

func TestSQLiteVec_SearchMissingCollection(t *testing.T) {
	s := openVecStore(t)
	_, err := s.Search(context.Background(), "ghost", []float32{1, 0, 0}, SearchOptions{TopK: 1})
	if err != ErrCollectionNotFound {
		t.Errorf("expected ErrCollectionNotFound, got %v", err)
	}
}
