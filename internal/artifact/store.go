// Package artifact persists mapping documents in SQLite, keyed by the path
// frames refer to them by.
package artifact

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no artifact exists for a path
var ErrNotFound = errors.New("artifact not found")

// Artifact is a stored mapping document
type Artifact struct {
	Path      string    `json:"path"`
	Content   string    `json:"content,omitempty"`
	Size      int64     `json:"size"`
	SHA256    string    `json:"sha256"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists artifacts to SQLite
type Store struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
	now  func() time.Time
}

// Open opens (and creates if needed) the store at path
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{
		db:   db,
		path: path,
		now:  time.Now,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS artifacts (
			path        TEXT PRIMARY KEY,
			content     TEXT NOT NULL,
			size        INTEGER NOT NULL,
			sha256      TEXT NOT NULL,
			created_at  TIMESTAMP NOT NULL,
			updated_at  TIMESTAMP NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_artifacts_updated_at ON artifacts(updated_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Put inserts or replaces the artifact at path. created_at survives replacement.
func (s *Store) Put(ctx context.Context, path, content string) (*Artifact, error) {
	if path == "" {
		return nil, fmt.Errorf("artifact path is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sum := sha256.Sum256([]byte(content))
	now := s.now().UTC()
	a := &Artifact{
		Path:      path,
		Size:      int64(len(content)),
		SHA256:    hex.EncodeToString(sum[:]),
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (path, content, size, sha256, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			content = excluded.content,
			size = excluded.size,
			sha256 = excluded.sha256,
			updated_at = excluded.updated_at
	`, a.Path, content, a.Size, a.SHA256, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store artifact %q: %w", path, err)
	}

	if err := s.db.QueryRowContext(ctx,
		"SELECT created_at FROM artifacts WHERE path = ?", path,
	).Scan(&a.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to read back artifact %q: %w", path, err)
	}

	return a, nil
}

// Get returns the artifact at path, or ErrNotFound
func (s *Store) Get(ctx context.Context, path string) (*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var a Artifact
	err := s.db.QueryRowContext(ctx,
		"SELECT path, content, size, sha256, created_at, updated_at FROM artifacts WHERE path = ?",
		path,
	).Scan(&a.Path, &a.Content, &a.Size, &a.SHA256, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact %q: %w", path, err)
	}
	return &a, nil
}

// List returns every artifact whose path starts with prefix, without content, ordered by path
func (s *Store) List(ctx context.Context, prefix string) ([]Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// LIKE ignores ASCII case, so the substr comparison keeps the match exact
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, size, sha256, created_at, updated_at FROM artifacts
		WHERE path LIKE ? ESCAPE '\' AND substr(path, 1, length(?)) = ?
		ORDER BY path`,
		escapeLike(prefix)+"%", prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	results := make([]Artifact, 0)
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.Path, &a.Size, &a.SHA256, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	return results, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Delete removes the artifact at path, or returns ErrNotFound
func (s *Store) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM artifacts WHERE path = ?", path)
	if err != nil {
		return fmt.Errorf("failed to delete artifact %q: %w", path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete artifact %q: %w", path, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
