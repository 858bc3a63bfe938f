// Package tokencache persists validated bearer-token claims so restarts don't
// force every caller through full verification again. The file lives at
// TOKEN_CACHE_PATH; without one the auth helper runs on its in-memory cache
// alone.
package tokencache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cbattlegear/azure-data-chat/log"
	_ "github.com/mattn/go-sqlite3"
)

// Store is a SQLite-backed cache of token claims keyed by token hash.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the cache database at path and applies migrations.
func Open(path string) (*Store, error) {
	if err := ensureDirectory(path); err != nil {
		return nil, fmt.Errorf("failed to create token cache directory: %w", err)
	}

	// WAL mode and a busy timeout keep concurrent request handlers from
	// tripping over each other on the single writer
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open token cache: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping token cache: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate token cache: %w", err)
	}

	log.Info().Str("path", path).Msg("token cache opened")
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the cached claims for tokenHash, or ok=false when absent or
// expired as of now.
func (s *Store) Get(tokenHash string, now time.Time) (map[string]any, bool, error) {
	if s == nil {
		return nil, false, nil
	}

	var raw string
	err := s.db.QueryRow(
		"SELECT claims FROM token_claims WHERE token_hash = ? AND expires_at > ?",
		tokenHash, now.Unix(),
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var claims map[string]any
	if err := json.Unmarshal([]byte(raw), &claims); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached claims: %w", err)
	}
	return claims, true, nil
}

// Put stores claims for tokenHash until expiresAt, replacing any prior entry.
func (s *Store) Put(tokenHash string, claims map[string]any, expiresAt time.Time) error {
	if s == nil {
		return nil
	}

	raw, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("failed to encode claims: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO token_claims (token_hash, claims, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(token_hash) DO UPDATE SET
			claims = excluded.claims,
			expires_at = excluded.expires_at
	`, tokenHash, string(raw), expiresAt.Unix())
	return err
}

// Prune deletes entries expired as of now and returns how many were removed.
func (s *Store) Prune(now time.Time) (int64, error) {
	if s == nil {
		return 0, nil
	}

	res, err := s.db.Exec("DELETE FROM token_claims WHERE expires_at <= ?", now.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ensureDirectory creates the directory for the cache file if it doesn't exist
func ensureDirectory(path string) error {
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}
