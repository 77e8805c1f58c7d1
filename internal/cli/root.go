// Package cli wires the quarry commands: index, search (the root
// command), watch, status, and clear.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quarrydev/quarry/pkg/embed"
	"github.com/quarrydev/quarry/pkg/embedcache"
	"github.com/quarrydev/quarry/pkg/index"
	"github.com/quarrydev/quarry/pkg/prf"
	"github.com/quarrydev/quarry/pkg/rerank"
	"github.com/quarrydev/quarry/pkg/search"
	"github.com/quarrydev/quarry/pkg/store"
)

var (
	limit       int
	threshold   float64
	jsonOutput  bool
	showContext bool
	usePRF      bool
	useRerank   bool
	filterExpr  string
	forceIndex  bool
	incremental bool
)

// Execute runs the root command.
func Execute() error {
	setupLogging()
	_ = godotenv.Load()
	return rootCmd.Execute()
}

func setupLogging() {
	level := zerolog.WarnLevel
	if v := os.Getenv("QUARRY_LOG"); v != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(v)); err == nil {
			level = parsed
		}
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()
}

var rootCmd = &cobra.Command{
	Use:   "quarry [query]",
	Short: "Semantic code search with hybrid retrieval",
	Long: `quarry indexes a source tree into syntax-aware chunks and serves
queries that combine dense vector search with sparse lexical matching,
optionally re-ranked by a cross-encoder or expanded with
pseudo-relevance feedback.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.Flags().IntVarP(&limit, "limit", "n", 5, "Maximum number of results")
	rootCmd.Flags().Float64Var(&threshold, "threshold", 0.5, "Minimum similarity score")
	rootCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	rootCmd.Flags().BoolVarP(&showContext, "context", "c", false, "Show chunk content")
	rootCmd.Flags().BoolVar(&usePRF, "prf", false, "Expand the query with pseudo-relevance feedback")
	rootCmd.Flags().BoolVar(&useRerank, "rerank", false, "Re-rank results with the cross-encoder")
	rootCmd.Flags().StringVar(&filterExpr, "filter", "", `Filter expression, e.g. relative_path == "src/main.ts"`)

	indexCmd.Flags().BoolVar(&forceIndex, "force", false, "Drop and recreate the collection")
	indexCmd.Flags().BoolVar(&incremental, "incremental", false, "Reindex only changed files")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(clearCmd)
}

// openStore selects the vector-store backend; QUARRY_STORE=memory gives
// an ephemeral in-process store.
func openStore() (store.VectorStore, error) {
	if os.Getenv("QUARRY_STORE") == "memory" {
		return store.NewInMem(), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return store.OpenSQLiteVec(filepath.Join(home, ".quarry", "collections"))
}

func newRetriever(st store.VectorStore) *search.Retriever {
	var reranker rerank.Reranker
	rerankCfg := rerank.DefaultConfig()
	if useRerank {
		rerankCfg.Enabled = true
	}
	if rerankCfg.Enabled {
		reranker = rerank.NewClient(rerankCfg)
	}

	var expander *prf.Engine
	prfCfg := prf.DefaultConfig()
	if usePRF {
		prfCfg.Enabled = true
	}
	if prfCfg.Enabled {
		expander = prf.NewEngine(prfCfg)
	}

	return search.New(st, embed.New(), reranker, expander, search.DefaultConfig())
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	queryText := args[0]

	ctx, cancel := signalContext()
	defer cancel()

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	retriever := newRetriever(st)
	opts := search.Options{TopK: limit, Threshold: threshold, FilterExpr: filterExpr}

	var results []store.SearchResult
	if usePRF {
		results, err = retriever.SearchWithPRF(ctx, ".", queryText, opts)
	} else {
		results, err = retriever.Search(ctx, ".", queryText, opts)
	}
	if errors.Is(err, search.ErrNotIndexed) {
		fmt.Println("Not indexed. Run 'quarry index .' first.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	return outputResults(results)
}

func outputResults(results []store.SearchResult) error {
	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(results)
	}
	if len(results) == 0 {
		fmt.Println("No results found")
		return nil
	}
	for _, r := range results {
		fmt.Printf("%s:%d-%d (%.3f)\n", r.RelativePath, r.StartLine, r.EndLine, r.Score)
		if showContext {
			lines := strings.Split(r.Content, "\n")
			if len(lines) > 8 {
				lines = lines[:8]
			}
			for _, line := range lines {
				if len(line) > 100 {
					line = line[:97] + "..."
				}
				fmt.Printf("  %s\n", line)
			}
			fmt.Println()
		}
	}
	return nil
}

func newIndexer(path string, st store.VectorStore, cache *embedcache.Cache, force bool) (*index.Indexer, error) {
	cfg := index.DefaultConfig()
	cfg.ForceReindex = force
	return index.New(path, st, embed.New(), cache, cfg)
}

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a directory for semantic search",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}

		ctx, cancel := signalContext()
		defer cancel()

		st, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		cache := embedcache.Open(embedcache.DefaultConfig())
		defer func() { _ = cache.Close() }()

		idx, err := newIndexer(path, st, cache, forceIndex)
		if err != nil {
			return err
		}

		progress := func(p index.Progress) {
			fmt.Printf("\r%s: %d/%d (%.0f%%)", p.Phase, p.Current, p.Total, p.Percentage)
		}

		var res *index.Result
		if incremental {
			res, err = idx.IndexIncremental(ctx, progress)
		} else {
			res, err = idx.Index(ctx, progress)
		}
		if err != nil {
			return fmt.Errorf("indexing failed: %w", err)
		}

		fmt.Printf("\nIndexed %d files, %d chunks (%s)\n",
			res.IndexedFiles, res.TotalChunks, res.Status)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Index a directory and keep it current from file events",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}

		ctx, cancel := signalContext()
		defer cancel()

		st, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		cache := embedcache.Open(embedcache.DefaultConfig())
		defer func() { _ = cache.Close() }()

		idx, err := newIndexer(path, st, cache, false)
		if err != nil {
			return err
		}

		fmt.Println("Watching for changes... (Ctrl+C to stop)")
		return idx.Watch(ctx, nil)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [path]",
	Short: "Show index and cache status",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}
		absPath, err := filepath.Abs(path)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		st, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		cfg := index.DefaultConfig()
		collection := index.CollectionName(absPath, cfg.HybridMode)
		exists, err := st.HasCollection(ctx, collection)
		if err != nil {
			return err
		}
		fmt.Printf("Codebase: %s\n", absPath)
		fmt.Printf("Collection: %s (exists: %t)\n", collection, exists)
		if exists {
			rows, err := st.Query(ctx, collection, "", []string{"id"}, 0)
			if err == nil {
				fmt.Printf("Documents: %d\n", len(rows))
			}
		}

		cache := embedcache.Open(embedcache.DefaultConfig())
		defer func() { _ = cache.Close() }()
		stats := cache.Stats()
		fmt.Printf("Cache entries: %d (%d bytes)\n", stats.TotalEntries, stats.SizeBytes)
		fmt.Printf("Cache oldest/newest: %d / %d (epoch ms)\n", stats.OldestTS, stats.NewestTS)
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear [path]",
	Short: "Drop the index for a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}

		ctx, cancel := signalContext()
		defer cancel()

		st, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		cache := embedcache.Open(embedcache.DefaultConfig())
		defer func() { _ = cache.Close() }()

		idx, err := newIndexer(path, st, cache, false)
		if err != nil {
			return err
		}
		if err := idx.Clear(ctx); err != nil {
			return fmt.Errorf("clear failed: %w", err)
		}
		fmt.Println("Index cleared")
		return nil
	},
}
