// Package embedcache is a persistent, content-addressed cache of dense
// embedding vectors. The key is the SHA-256 of the chunk's trimmed
// content, so identical chunks across files share one cached vector.
//
// The cache is a pure accelerator: if the backing database cannot be
// opened every operation becomes a no-op and callers proceed without it.
package embedcache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const (
	defaultMaxAgeDays           = 7
	defaultMaxSizeMB            = 500
	defaultCleanupIntervalHours = 24
)

// Config holds cache configuration.
type Config struct {
	Path            string        // Database file path (default ~/.quarry/embeddings/cache.db)
	MaxAge          time.Duration // Entries older than this are evicted
	MaxSizeBytes    int64         // Above this, the oldest 10% of rows are evicted
	CleanupInterval time.Duration // Periodic cleanup cadence; 0 uses the default
	CleanupEnabled  bool
}

// DefaultConfig reads the CACHE_* environment variables.
func DefaultConfig() Config {
	cfg := Config{
		MaxAge:          defaultMaxAgeDays * 24 * time.Hour,
		MaxSizeBytes:    defaultMaxSizeMB * 1024 * 1024,
		CleanupInterval: defaultCleanupIntervalHours * time.Hour,
		CleanupEnabled:  true,
	}
	if v := os.Getenv("CACHE_MAX_AGE_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxAge = time.Duration(n) * 24 * time.Hour
		}
	}
	if v := os.Getenv("CACHE_MAX_SIZE_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxSizeBytes = int64(n) * 1024 * 1024
		}
	}
	if v := os.Getenv("CACHE_CLEANUP_INTERVAL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CleanupInterval = time.Duration(n) * time.Hour
		}
	}
	if v := os.Getenv("CACHE_CLEANUP_ENABLED"); v != "" {
		cfg.CleanupEnabled = v != "false" && v != "0"
	}
	return cfg
}

// Stats describes the cache contents.
type Stats struct {
	TotalEntries int64
	SizeBytes    int64
	OldestTS     int64 // epoch ms, 0 when empty
	NewestTS     int64
}

// Cache is the SQLite-backed embedding cache. A nil db means the cache
// is degraded: all operations are no-ops.
type Cache struct {
	db  *sql.DB
	cfg Config

	mu     sync.Mutex
	ticker *time.Ticker
	done   chan struct{}
}

// HashContent returns the cache key for a chunk: lowercase-hex SHA-256
// of the trimmed content.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(content)))
	return hex.EncodeToString(sum[:])
}

// Open opens (or creates) the cache database. Failure to open yields a
// degraded no-op cache rather than an error: the cache is an
// optimization, not a dependency.
func Open(cfg Config) *Cache {
	if cfg.Path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Warn().Err(err).Msg("embedding cache disabled: no home directory")
			return &Cache{cfg: cfg}
		}
		cfg.Path = filepath.Join(home, ".quarry", "embeddings", "cache.db")
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaultCleanupIntervalHours * time.Hour
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		log.Warn().Err(err).Msg("embedding cache disabled: cannot create directory")
		return &Cache{cfg: cfg}
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		log.Warn().Err(err).Msg("embedding cache disabled: cannot open database")
		return &Cache{cfg: cfg}
	}
	// A single connection serializes reads and writes within this
	// process; WAL lets other connections read during a write.
	db.SetMaxOpenConns(1)

	c := &Cache{db: db, cfg: cfg}
	if err := c.init(); err != nil {
		log.Warn().Err(err).Msg("embedding cache disabled: schema init failed")
		_ = db.Close()
		c.db = nil
		return c
	}

	if cfg.CleanupEnabled {
		if _, err := c.Cleanup(cfg.MaxAge); err != nil {
			log.Warn().Err(err).Msg("embedding cache startup cleanup failed")
		}
		c.startCleanupLoop()
	}
	return c
}

func (c *Cache) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS embeddings (
			content_hash TEXT PRIMARY KEY,
			embedding BLOB NOT NULL,
			dimension INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_embeddings_created_at ON embeddings(created_at)`,
	}
	for _, q := range queries {
		if _, err := c.db.Exec(q); err != nil {
			return fmt.Errorf("init cache schema: %w", err)
		}
	}
	return nil
}

func (c *Cache) startCleanupLoop() {
	c.ticker = time.NewTicker(c.cfg.CleanupInterval)
	c.done = make(chan struct{})
	go func() {
		for {
			select {
			case <-c.ticker.C:
				if n, err := c.Cleanup(c.cfg.MaxAge); err == nil && n > 0 {
					log.Debug().Int64("removed", n).Msg("embedding cache cleanup")
				}
			case <-c.done:
				return
			}
		}
	}()
}

// Get returns the cached vector for a content hash, or nil.
func (c *Cache) Get(hash string) []float32 {
	if c.db == nil {
		return nil
	}
	var blob []byte
	var dim int
	err := c.db.QueryRow(
		`SELECT embedding, dimension FROM embeddings WHERE content_hash = ?`, hash,
	).Scan(&blob, &dim)
	if err != nil {
		return nil
	}
	return decodeVector(blob, dim)
}

// GetMany returns the cached vectors for the given hashes. Misses are
// simply absent from the map.
func (c *Cache) GetMany(hashes []string) map[string][]float32 {
	out := make(map[string][]float32, len(hashes))
	if c.db == nil || len(hashes) == 0 {
		return out
	}

	placeholders := strings.Repeat("?,", len(hashes))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(hashes))
	for i, h := range hashes {
		args[i] = h
	}

	rows, err := c.db.Query(
		`SELECT content_hash, embedding, dimension FROM embeddings WHERE content_hash IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return out
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var hash string
		var blob []byte
		var dim int
		if err := rows.Scan(&hash, &blob, &dim); err != nil {
			continue
		}
		if v := decodeVector(blob, dim); v != nil {
			out[hash] = v
		}
	}
	return out
}

// Set upserts a single vector.
func (c *Cache) Set(hash string, vector []float32) {
	c.SetMany(map[string][]float32{hash: vector})
}

// SetMany upserts vectors in one transaction.
func (c *Cache) SetMany(vectors map[string][]float32) {
	if c.db == nil || len(vectors) == 0 {
		return
	}

	tx, err := c.db.Begin()
	if err != nil {
		log.Warn().Err(err).Msg("embedding cache write skipped")
		return
	}
	stmt, err := tx.Prepare(
		`INSERT INTO embeddings (content_hash, embedding, dimension, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(content_hash) DO UPDATE SET
		   embedding = excluded.embedding,
		   dimension = excluded.dimension,
		   created_at = excluded.created_at`,
	)
	if err != nil {
		_ = tx.Rollback()
		return
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UnixMilli()
	for hash, vec := range vectors {
		if len(vec) == 0 {
			continue
		}
		if _, err := stmt.Exec(hash, encodeVector(vec), len(vec), now); err != nil {
			_ = tx.Rollback()
			return
		}
	}
	if err := tx.Commit(); err != nil {
		log.Warn().Err(err).Msg("embedding cache commit failed")
	}
}

// Stats returns entry count, payload size, and timestamp bounds.
func (c *Cache) Stats() Stats {
	var s Stats
	if c.db == nil {
		return s
	}
	_ = c.db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(LENGTH(embedding)), 0),
		        COALESCE(MIN(created_at), 0),
		        COALESCE(MAX(created_at), 0)
		 FROM embeddings`,
	).Scan(&s.TotalEntries, &s.SizeBytes, &s.OldestTS, &s.NewestTS)
	return s
}

// Cleanup evicts rows older than maxAge and, if the cache is still over
// its size bound, the oldest 10% of remaining rows. Returns the number
// of rows removed.
func (c *Cache) Cleanup(maxAge time.Duration) (int64, error) {
	if c.db == nil {
		return 0, nil
	}

	cutoff := time.Now().Add(-maxAge).UnixMilli()
	res, err := c.db.Exec(`DELETE FROM embeddings WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("age eviction: %w", err)
	}
	removed, _ := res.RowsAffected()

	s := c.Stats()
	if s.SizeBytes > c.cfg.MaxSizeBytes && s.TotalEntries > 0 {
		evict := s.TotalEntries / 10
		if evict < 1 {
			evict = 1
		}
		res, err = c.db.Exec(
			`DELETE FROM embeddings WHERE content_hash IN (
				SELECT content_hash FROM embeddings ORDER BY created_at ASC LIMIT ?
			)`, evict)
		if err != nil {
			return removed, fmt.Errorf("size eviction: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	return removed, nil
}

// Close stops the cleanup loop and closes the database.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.ticker != nil {
		c.ticker.Stop()
		close(c.done)
		c.ticker = nil
	}
	c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Available reports whether the backing database is usable.
func (c *Cache) Available() bool {
	return c.db != nil
}

// encodeVector packs a vector as little-endian float32s.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks a little-endian float32 blob, validating the
// declared dimension.
func decodeVector(blob []byte, dim int) []float32 {
	if dim <= 0 || len(blob) != 4*dim {
		return nil
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}
