package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/sync/errgroup"
)

// SQLiteVecStore keeps each collection in its own SQLite database under
// a root directory, with a vec0 virtual table for the dense index and
// FTS5 for the sparse leg of hybrid collections.
type SQLiteVecStore struct {
	dir string

	mu   sync.Mutex
	open map[string]*collectionDB
}

type collectionDB struct {
	db        *sql.DB
	dimension int
	hybrid    bool
}

// OpenSQLiteVec opens a store rooted at dir (created if missing).
func OpenSQLiteVec(dir string) (*SQLiteVecStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	sqlite_vec.Auto()
	return &SQLiteVecStore{dir: dir, open: map[string]*collectionDB{}}, nil
}

func (s *SQLiteVecStore) path(name string) string {
	return filepath.Join(s.dir, name+".db")
}

func (s *SQLiteVecStore) HasCollection(_ context.Context, name string) (bool, error) {
	_, err := os.Stat(s.path(name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *SQLiteVecStore) CreateCollection(ctx context.Context, name string, dimension int, description string) error {
	return s.create(ctx, name, dimension, description, false)
}

func (s *SQLiteVecStore) CreateHybridCollection(ctx context.Context, name string, dimension int, description string) error {
	return s.create(ctx, name, dimension, description, true)
}

func (s *SQLiteVecStore) create(ctx context.Context, name string, dimension int, description string, hybrid bool) error {
	if dimension <= 0 {
		return fmt.Errorf("store: invalid dimension %d", dimension)
	}
	db, err := openSQLite(s.path(name))
	if err != nil {
		return err
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			relative_path TEXT NOT NULL,
			start_line INTEGER NOT NULL,
			end_line INTEGER NOT NULL,
			file_extension TEXT,
			metadata TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_relative_path ON chunks(relative_path)`,
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
			embedding float[%d] distance_metric=cosine,
			doc_id TEXT
		)`, dimension),
		`CREATE TABLE IF NOT EXISTS collection_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	if hybrid {
		queries = append(queries,
			`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(doc_id UNINDEXED, content)`)
	}
	for _, q := range queries {
		if _, err := db.ExecContext(ctx, q); err != nil {
			_ = db.Close()
			return fmt.Errorf("init collection %s: %w", name, err)
		}
	}

	meta := map[string]string{
		"dimension":   fmt.Sprintf("%d", dimension),
		"hybrid":      fmt.Sprintf("%t", hybrid),
		"description": description,
	}
	for k, v := range meta {
		if _, err := db.ExecContext(ctx,
			`INSERT OR REPLACE INTO collection_meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			_ = db.Close()
			return err
		}
	}

	s.mu.Lock()
	s.open[name] = &collectionDB{db: db, dimension: dimension, hybrid: hybrid}
	s.mu.Unlock()
	return nil
}

func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open collection database: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=10000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}
	return db, nil
}

// collection returns the open handle for a collection, opening it
// lazily when the database file exists.
func (s *SQLiteVecStore) collection(name string) (*collectionDB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.open[name]; ok {
		return col, nil
	}
	if _, err := os.Stat(s.path(name)); err != nil {
		return nil, ErrCollectionNotFound
	}
	db, err := openSQLite(s.path(name))
	if err != nil {
		return nil, err
	}

	col := &collectionDB{db: db}
	rows, err := db.Query(`SELECT key, value FROM collection_meta`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("read collection meta: %w", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			continue
		}
		switch k {
		case "dimension":
			_, _ = fmt.Sscanf(v, "%d", &col.dimension)
		case "hybrid":
			col.hybrid = v == "true"
		}
	}
	_ = rows.Close()

	s.open[name] = col
	return col, nil
}

func (s *SQLiteVecStore) DropCollection(_ context.Context, name string) error {
	s.mu.Lock()
	if col, ok := s.open[name]; ok {
		_ = col.db.Close()
		delete(s.open, name)
	}
	s.mu.Unlock()

	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(s.path(name) + suffix); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (s *SQLiteVecStore) Insert(ctx context.Context, name string, docs []*VectorDocument) error {
	return s.insert(ctx, name, docs)
}

func (s *SQLiteVecStore) InsertHybrid(ctx context.Context, name string, docs []*VectorDocument) error {
	return s.insert(ctx, name, docs)
}

func (s *SQLiteVecStore) insert(ctx context.Context, name string, docs []*VectorDocument) error {
	col, err := s.collection(name)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if len(doc.Vector) != col.dimension {
			return fmt.Errorf("store: vector dimension %d does not match collection dimension %d",
				len(doc.Vector), col.dimension)
		}
	}

	tx, err := col.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, doc := range docs {
		metadata, _ := json.Marshal(doc.Metadata)
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO chunks
			 (id, content, relative_path, start_line, end_line, file_extension, metadata)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			doc.ID, doc.Content, doc.RelativePath, doc.StartLine, doc.EndLine,
			doc.FileExtension, string(metadata)); err != nil {
			return fmt.Errorf("insert chunk %s: %w", doc.ID, err)
		}

		blob, err := sqlite_vec.SerializeFloat32(doc.Vector)
		if err != nil {
			return fmt.Errorf("serialize vector: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM vec_chunks WHERE doc_id = ?`, doc.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vec_chunks (embedding, doc_id) VALUES (?, ?)`, blob, doc.ID); err != nil {
			return fmt.Errorf("insert vector: %w", err)
		}

		if col.hybrid {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM chunks_fts WHERE doc_id = ?`, doc.ID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO chunks_fts (doc_id, content) VALUES (?, ?)`, doc.ID, doc.Content); err != nil {
				return fmt.Errorf("insert sparse row: %w", err)
			}
		}
	}
	return tx.Commit()
}

func (s *SQLiteVecStore) Search(ctx context.Context, name string, vector []float32, opts SearchOptions) ([]SearchResult, error) {
	col, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	filter, err := parseFilter(opts.FilterExpr)
	if err != nil {
		return nil, err
	}

	results, err := col.denseSearch(ctx, vector, opts.TopK, filter)
	if err != nil {
		return nil, err
	}
	if opts.Threshold > 0 {
		kept := results[:0]
		for _, r := range results {
			if r.Score >= opts.Threshold {
				kept = append(kept, r)
			}
		}
		results = kept
	}
	if opts.TopK > 0 && len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	return results, nil
}

func (s *SQLiteVecStore) HybridSearch(ctx context.Context, name string, reqs []ANNSearchRequest, opts HybridOptions) ([]SearchResult, error) {
	col, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	filter, err := parseFilter(opts.FilterExpr)
	if err != nil {
		return nil, err
	}

	lists := make([][]SearchResult, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		g.Go(func() error {
			var list []SearchResult
			var err error
			switch data := req.Data.(type) {
			case []float32:
				list, err = col.denseSearch(gctx, data, req.Limit, filter)
			case string:
				list, err = col.sparseSearch(gctx, data, req.Limit, filter)
			default:
				err = fmt.Errorf("store: unsupported search data type %T", req.Data)
			}
			if err != nil {
				return err
			}
			lists[i] = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rrfFuse(lists, opts.RRFK, opts.Limit), nil
}

// denseSearch runs KNN over vec_chunks, then loads the chunk rows. With
// a filter, more candidates are fetched so post-filtering can still
// fill the limit.
func (c *collectionDB) denseSearch(ctx context.Context, vector []float32, limit int, filter *filterExpr) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	knnLimit := limit
	if filter != nil {
		knnLimit = limit * 5
	}

	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT doc_id, distance
		FROM vec_chunks
		WHERE embedding MATCH ?
		ORDER BY distance
		LIMIT ?
	`, blob, knnLimit)
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}

	ids := []string{}
	scores := map[string]float64{}
	for rows.Next() {
		var id string
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
		scores[id] = 1 - distance // cosine distance -> similarity
	}
	_ = rows.Close()

	results, err := c.loadChunks(ctx, ids, scores, filter)
	if err != nil {
		return nil, err
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// sparseSearch scores via FTS5 BM25. bm25() is lower-is-better and
// negative, so the sign flips.
func (c *collectionDB) sparseSearch(ctx context.Context, queryText string, limit int, filter *filterExpr) ([]SearchResult, error) {
	if !c.hybrid {
		return nil, fmt.Errorf("store: sparse search on a dense-only collection")
	}
	if limit <= 0 {
		limit = 10
	}
	match := ftsQuery(queryText)
	if match == "" {
		return nil, nil
	}
	fetchLimit := limit
	if filter != nil {
		fetchLimit = limit * 5
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT doc_id, bm25(chunks_fts) AS score
		FROM chunks_fts
		WHERE chunks_fts MATCH ?
		ORDER BY score
		LIMIT ?
	`, match, fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("sparse search: %w", err)
	}

	ids := []string{}
	scores := map[string]float64{}
	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
		scores[id] = -score
	}
	_ = rows.Close()

	results, err := c.loadChunks(ctx, ids, scores, filter)
	if err != nil {
		return nil, err
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// loadChunks fetches chunk rows for ids, preserving the given ranking
// and applying the filter.
func (c *collectionDB) loadChunks(ctx context.Context, ids []string, scores map[string]float64, filter *filterExpr) ([]SearchResult, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, content, relative_path, start_line, end_line, file_extension, metadata
		FROM chunks WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byID := map[string]SearchResult{}
	for rows.Next() {
		var doc VectorDocument
		var metadataStr string
		if err := rows.Scan(&doc.ID, &doc.Content, &doc.RelativePath,
			&doc.StartLine, &doc.EndLine, &doc.FileExtension, &metadataStr); err != nil {
			return nil, err
		}
		if metadataStr != "" {
			_ = json.Unmarshal([]byte(metadataStr), &doc.Metadata)
		}
		if !filter.matches(&doc) {
			continue
		}
		byID[doc.ID] = toResult(&doc, scores[doc.ID])
	}

	results := make([]SearchResult, 0, len(byID))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			results = append(results, r)
		}
	}
	return results, nil
}

func (s *SQLiteVecStore) Query(ctx context.Context, name string, filterExpr string, outputFields []string, limit int) ([]map[string]any, error) {
	col, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	filter, err := parseFilter(filterExpr)
	if err != nil {
		return nil, err
	}

	queryStr := `SELECT id, content, relative_path, start_line, end_line, file_extension, metadata FROM chunks`
	var args []any
	if filter != nil {
		if column := filter.column(); column != "" {
			queryStr += ` WHERE ` + column + ` = ?`
			args = append(args, filter.value)
			filter = nil // already applied in SQL
		}
	}
	if limit > 0 {
		queryStr += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := col.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []map[string]any
	for rows.Next() {
		var doc VectorDocument
		var metadataStr string
		if err := rows.Scan(&doc.ID, &doc.Content, &doc.RelativePath,
			&doc.StartLine, &doc.EndLine, &doc.FileExtension, &metadataStr); err != nil {
			return nil, err
		}
		if metadataStr != "" {
			_ = json.Unmarshal([]byte(metadataStr), &doc.Metadata)
		}
		if !filter.matches(&doc) {
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
		out = append(out, row)
	}
	return out, nil
}

func (s *SQLiteVecStore) Delete(ctx context.Context, name string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	col, err := s.collection(name)
	if err != nil {
		return err
	}

	tx, err := col.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM vec_chunks WHERE doc_id = ?`, id); err != nil {
			return err
		}
		if col.hybrid {
			if _, err := tx.ExecContext(ctx, `DELETE FROM chunks_fts WHERE doc_id = ?`, id); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func (s *SQLiteVecStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for name, col := range s.open {
		if err := col.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.open, name)
	}
	return firstErr
}

// ftsQuery converts free text to an OR-joined FTS5 MATCH expression,
// quoting terms that contain FTS5 operators.
func ftsQuery(text string) string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,?!\"'`:;()[]{}*")
		if len(w) < 2 {
			continue
		}
		if strings.ContainsAny(w, `^*"():-`) {
			w = `"` + strings.ReplaceAll(w, `"`, `""`) + `"`
		}
		terms = append(terms, w)
	}
	return strings.Join(terms, " OR ")
}
