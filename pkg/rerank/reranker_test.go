package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func rerankServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		var req rerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		// Score documents in reverse input order.
		results := make([]Result, len(req.Documents))
		for i := range req.Documents {
			results[i] = Result{Index: i, Score: float64(i)}
		}
		_ = json.NewEncoder(w).Encode(rerankResponse{Results: results})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRerank(t *testing.T) {
	server := rerankServer(t)
	c := NewClient(Config{Endpoint: server.URL, Enabled: true})

	results, err := c.Rerank(context.Background(), "query", []string{"a", "b", "c"}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected top 2, got %d", len(results))
	}
	if results[0].Index != 2 {
		t.Errorf("highest score should come first, got index %d", results[0].Index)
	}
	if results[0].Score < results[1].Score {
		t.Error("results must be sorted by score descending")
	}
}

func TestRerank_EmptyDocuments(t *testing.T) {
	c := NewClient(Config{Endpoint: "http://localhost:0", Enabled: true})
	results, err := c.Rerank(context.Background(), "q", nil, 5)
	if err != nil || results != nil {
		t.Errorf("empty documents should be a no-op, got %v %v", results, err)
	}
}

func TestInitialize_OneShot(t *testing.T) {
	var health atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			health.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewClient(Config{Endpoint: server.URL, Enabled: true})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := c.Initialize(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if health.Load() != 1 {
		t.Errorf("initialization must happen once, saw %d health checks", health.Load())
	}
}

func TestInitialize_Failure(t *testing.T) {
	c := NewClient(Config{Endpoint: "http://127.0.0.1:1", Enabled: true})
	if err := c.Initialize(context.Background()); err == nil {
		t.Error("unreachable server should fail initialization")
	}
	// The failure is sticky by design: same one-shot guard.
	if err := c.Initialize(context.Background()); err == nil {
		t.Error("subsequent calls should report the same failure")
	}
}

func TestDefaultConfig_Disabled(t *testing.T) {
	c := NewClient(DefaultConfig())
	if c.Enabled() {
		t.Error("reranker should be disabled by default")
	}
}
