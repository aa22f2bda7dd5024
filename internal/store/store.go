// Package store provides the SQLite-backed source catalog: one row per
// ingested document or video transcript, recording what was indexed and how
// many chunks it produced. The vectors themselves live in the vector index;
// the catalog is what lists, describes and deletes sources by id.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// ErrNotFound is returned when a source id is not in the catalog.
var ErrNotFound = errors.New("store: source not found")

// Kind classifies a source.
type Kind string

const (
	// KindDocument is an uploaded or fetched document, typically a PDF.
	KindDocument Kind = "document"
	// KindVideo is a video transcript keyed by the video id.
	KindVideo Kind = "video"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool { return k == KindDocument || k == KindVideo }

// Source is one catalog entry.
type Source struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Title      string    `json:"title,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	ByteLength int64     `json:"byte_length"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// SourceStore persists the catalog. Implementations must be safe for
// concurrent use.
type SourceStore interface {
	// Put inserts or replaces the entry with src.ID. A zero CreatedAt is set
	// to the current time.
	Put(ctx context.Context, src Source) error
	// Get returns the entry for id, or ErrNotFound.
	Get(ctx context.Context, id string) (Source, error)
	// List returns every entry, newest first.
	List(ctx context.Context) ([]Source, error)
	// Delete removes the entry for id, or returns ErrNotFound.
	Delete(ctx context.Context, id string) error
	// Ping checks that the database is reachable.
	Ping(ctx context.Context) error
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a SourceStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns ~/.docqa/catalog.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".docqa")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "catalog.db"), nil
}

// Open opens (or creates) a SQLiteStore at path and migrates the schema.
// Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// A single connection avoids SQLITE_BUSY and keeps ":memory:" databases
	// from splitting across connections.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sources (
    id           TEXT    PRIMARY KEY,
    kind         TEXT    NOT NULL CHECK(kind IN ('document','video')),
    title        TEXT    NOT NULL DEFAULT '',
    summary      TEXT    NOT NULL DEFAULT '',
    byte_length  INTEGER NOT NULL,
    chunk_count  INTEGER NOT NULL,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_sources_created ON sources (created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Put inserts or replaces src.
func (s *SQLiteStore) Put(ctx context.Context, src Source) error {
	if src.ID == "" {
		return fmt.Errorf("store: put: source id must not be empty")
	}
	if !src.Kind.Valid() {
		return fmt.Errorf("store: put: invalid kind %q", src.Kind)
	}
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now()
	}

	const q = `
INSERT INTO sources (id, kind, title, summary, byte_length, chunk_count, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    kind = excluded.kind,
    title = excluded.title,
    summary = excluded.summary,
    byte_length = excluded.byte_length,
    chunk_count = excluded.chunk_count,
    created_at = excluded.created_at`
	_, err := s.db.ExecContext(ctx, q, src.ID, string(src.Kind), src.Title, src.Summary, src.ByteLength, src.ChunkCount, src.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("store: put %s: %w", src.ID, err)
	}
	return nil
}

// Get returns the entry for id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Source, error) {
	const q = `SELECT id, kind, title, summary, byte_length, chunk_count, created_at FROM sources WHERE id = ?`
	src, err := scanSource(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Source{}, ErrNotFound
	}
	if err != nil {
		return Source{}, fmt.Errorf("store: get %s: %w", id, err)
	}
	return src, nil
}

// List returns every entry, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]Source, error) {
	const q = `SELECT id, kind, title, summary, byte_length, chunk_count, created_at FROM sources ORDER BY created_at DESC, id ASC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list scan: %w", err)
		}
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list rows: %w", err)
	}
	return out, nil
}

// Delete removes the entry for id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks that the database answers.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(r rowScanner) (Source, error) {
	var (
		src  Source
		kind string
		ts   int64
	)
	if err := r.Scan(&src.ID, &kind, &src.Title, &src.Summary, &src.ByteLength, &src.ChunkCount, &ts); err != nil {
		return Source{}, err
	}
	src.Kind = Kind(kind)
	src.CreatedAt = time.Unix(ts, 0)
	return src, nil
}
