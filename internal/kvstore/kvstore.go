// Package kvstore is the on-disk key/value cache of indexed trees. Entries
// are keyed by (path, content hash) so an unchanged file parses once across
// sessions; blobs are zstd-compressed. A generation id groups all rows
// written by one cache lifetime, and clearing the cache mints a fresh
// generation and purges the rest.
package kvstore

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Store is a sqlite-backed blob cache.
type Store struct {
	conn    *sql.DB
	logger  *slog.Logger
	dbPath  string
	enc     *zstd.Encoder
	dec     *zstd.Decoder
	currGen string
}

// Open opens or creates the cache database at dbPath, creating parent
// directories as needed.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `
CREATE TABLE IF NOT EXISTS trees (
    path         TEXT    NOT NULL,
    content_hash INTEGER NOT NULL,
    generation   TEXT    NOT NULL,
    data         BLOB    NOT NULL,
    PRIMARY KEY (path, content_hash)
);
CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);`
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	s := &Store{
		conn:   conn,
		logger: logger,
		dbPath: dbPath,
		enc:    enc,
		dec:    dec,
	}

	if err := s.loadGeneration(); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) loadGeneration() error {
	row := s.conn.QueryRow(`SELECT value FROM meta WHERE key = 'generation'`)
	switch err := row.Scan(&s.currGen); err {
	case nil:
		return nil
	case sql.ErrNoRows:
		s.currGen = uuid.NewString()
		_, err := s.conn.Exec(`INSERT INTO meta (key, value) VALUES ('generation', ?)`, s.currGen)
		if err != nil {
			return fmt.Errorf("failed to store cache generation: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("failed to read cache generation: %w", err)
	}
}

// Generation returns the current cache generation id.
func (s *Store) Generation() string {
	return s.currGen
}

// Get returns the cached blob for (path, contentHash), or (nil, false) on a
// miss. Read failures count as misses; the cache is advisory.
func (s *Store) Get(path string, contentHash uint64) ([]byte, bool) {
	var compressed []byte
	row := s.conn.QueryRow(
		`SELECT data FROM trees WHERE path = ? AND content_hash = ?`,
		path, int64(contentHash))
	if err := row.Scan(&compressed); err != nil {
		if err != sql.ErrNoRows {
			s.logger.Warn("cache read failed", "path", path, "error", err.Error())
		}
		return nil, false
	}

	data, err := s.dec.DecodeAll(compressed, nil)
	if err != nil {
		s.logger.Warn("cache blob corrupt, ignoring", "path", path, "error", err.Error())
		return nil, false
	}
	return data, true
}

// Put stores a blob under (path, contentHash), replacing any previous entry
// for the path at a different hash.
func (s *Store) Put(path string, contentHash uint64, data []byte) error {
	compressed := s.enc.EncodeAll(data, nil)

	_, err := s.conn.Exec(`DELETE FROM trees WHERE path = ? AND content_hash != ?`,
		path, int64(contentHash))
	if err != nil {
		return fmt.Errorf("failed to evict stale cache rows: %w", err)
	}

	_, err = s.conn.Exec(
		`INSERT OR REPLACE INTO trees (path, content_hash, generation, data) VALUES (?, ?, ?, ?)`,
		path, int64(contentHash), s.currGen, compressed)
	if err != nil {
		return fmt.Errorf("failed to write cache row: %w", err)
	}
	return nil
}

// Clear drops every cached tree and mints a fresh generation.
func (s *Store) Clear() error {
	if _, err := s.conn.Exec(`DELETE FROM trees`); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	s.currGen = uuid.NewString()
	_, err := s.conn.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES ('generation', ?)`, s.currGen)
	if err != nil {
		return fmt.Errorf("failed to store cache generation: %w", err)
	}
	s.logger.Info("tree cache cleared", "generation", s.currGen)
	return nil
}

// Close releases the database and codec resources.
func (s *Store) Close() error {
	s.dec.Close()
	if err := s.enc.Close(); err != nil {
		s.logger.Warn("failed to close zstd encoder", "error", err.Error())
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
