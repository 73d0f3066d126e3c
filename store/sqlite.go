package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/alimasry/go-office-kit/ot"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 0,
    revisions TEXT NOT NULL DEFAULT '[]',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Operation journal; idx is the 0-based history index.
CREATE TABLE IF NOT EXISTS operations (
    doc_id TEXT NOT NULL,
    idx INTEGER NOT NULL,
    ops TEXT NOT NULL,
    PRIMARY KEY (doc_id, idx)
);
`

// SQLiteStore is a SQLite-backed implementation of DocumentStore.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteStore opens the database at dsn, creating the schema if needed.
// Use ":memory:" for a throwaway store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, content, version, revisions, created_at, updated_at) VALUES (?, ?, 0, '[]', ?, ?)`,
		id, content, now, now)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return fmt.Errorf("document %q: %w", id, ErrExists)
	}
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*DocumentInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, content, version, revisions, created_at, updated_at FROM documents WHERE id = ?`, id)
	info, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	return info, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*DocumentInfo, error) {
	var (
		info             DocumentInfo
		revs             string
		created, updated int64
	)
	if err := row.Scan(&info.ID, &info.Content, &info.Version, &revs, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(revs), &info.Revisions); err != nil {
		return nil, fmt.Errorf("document %s revisions: %w", info.ID, err)
	}
	info.CreatedAt = time.UnixMilli(created)
	info.UpdatedAt = time.UnixMilli(updated)
	return &info, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]DocumentInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, version, revisions, created_at, updated_at FROM documents ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []DocumentInfo
	for rows.Next() {
		info, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *info)
	}
	return result, rows.Err()
}

// exec runs a single-row update and maps "no row" to ErrNotFound.
func (s *SQLiteStore) exec(ctx context.Context, id, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) UpdateContent(ctx context.Context, id, content string, version int) error {
	return s.exec(ctx, id,
		`UPDATE documents SET content = ?, version = ?, updated_at = ? WHERE id = ?`,
		content, version, time.Now().UnixMilli(), id)
}

func (s *SQLiteStore) PutRevisions(ctx context.Context, id string, revs []Revision) error {
	if revs == nil {
		revs = []Revision{}
	}
	data, err := json.Marshal(revs)
	if err != nil {
		return err
	}
	return s.exec(ctx, id,
		`UPDATE documents SET revisions = ?, updated_at = ? WHERE id = ?`,
		string(data), time.Now().UnixMilli(), id)
}

func (s *SQLiteStore) AppendOperation(ctx context.Context, id string, op ot.Operation, version int) error {
	data, err := json.Marshal(op)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE documents SET version = ?, updated_at = ? WHERE id = ?`,
		version, time.Now().UnixMilli(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	// Version v is the state after history[v-1].
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO operations (doc_id, idx, ops) VALUES (?, ?, ?)`,
		id, version-1, string(data)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetOperations(ctx context.Context, id string, fromVersion int) ([]ot.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if fromVersion < 0 {
		return nil, fmt.Errorf("invalid version %d", fromVersion)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT ops FROM operations WHERE doc_id = ? AND idx >= ? ORDER BY idx`, id, fromVersion)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []ot.Operation
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var op ot.Operation
		if err := json.Unmarshal([]byte(data), &op); err != nil {
			return nil, fmt.Errorf("decode operation: %w", err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}
