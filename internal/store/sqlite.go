package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLite is the durable Backend. The driver is pure Go (modernc.org/sqlite),
// so the daemon stays CGO-free. A single connection is used; SQLite's own
// WAL journal mode provides concurrent readers.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and if necessary creates) the database at path and
// initializes the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("store: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLite{db: db}
	if err := s.configurePragmas(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) configurePragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, q := range pragmas {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("set pragma %q: %w", q, err)
		}
	}
	return nil
}

func (s *SQLite) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS list_entries (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id TEXT NOT NULL,
			list TEXT NOT NULL,
			entry BLOB NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_list_entries_tenant_list
			ON list_entries(tenant_id, list, seq);`,
		`CREATE TABLE IF NOT EXISTS documents (
			tenant_id TEXT NOT NULL,
			collection TEXT NOT NULL,
			key TEXT NOT NULL,
			doc BLOB NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (tenant_id, collection, key)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// ListAppend implements Backend.
func (s *SQLite) ListAppend(ctx context.Context, tenantID, list string, entry []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO list_entries (tenant_id, list, entry) VALUES (?, ?, ?);`,
		tenantID, list, entry)
	if err != nil {
		return fmt.Errorf("list append: %w", err)
	}
	return nil
}

// ListRange implements Backend.
func (s *SQLite) ListRange(ctx context.Context, tenantID, list string, limit int) ([][]byte, error) {
	var rows *sql.Rows
	var err error
	if limit > 0 {
		// Take the newest limit rows, then return them oldest-first.
		rows, err = s.db.QueryContext(ctx, `
			SELECT entry FROM (
				SELECT seq, entry FROM list_entries
				WHERE tenant_id = ? AND list = ?
				ORDER BY seq DESC LIMIT ?
			) ORDER BY seq ASC;`, tenantID, list, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT entry FROM list_entries
			WHERE tenant_id = ? AND list = ?
			ORDER BY seq ASC;`, tenantID, list)
	}
	if err != nil {
		return nil, fmt.Errorf("list range: %w", err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var entry []byte
		if err := rows.Scan(&entry); err != nil {
			return nil, fmt.Errorf("scan list entry: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list range rows: %w", err)
	}
	return out, nil
}

// ListTrim implements Backend.
func (s *SQLite) ListTrim(ctx context.Context, tenantID, list string, max int) error {
	if max < 0 {
		max = 0
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM list_entries
		WHERE tenant_id = ? AND list = ? AND seq NOT IN (
			SELECT seq FROM list_entries
			WHERE tenant_id = ? AND list = ?
			ORDER BY seq DESC LIMIT ?
		);`, tenantID, list, tenantID, list, max)
	if err != nil {
		return fmt.Errorf("list trim: %w", err)
	}
	return nil
}

// ListLen implements Backend.
func (s *SQLite) ListLen(ctx context.Context, tenantID, list string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM list_entries WHERE tenant_id = ? AND list = ?;`,
		tenantID, list).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("list len: %w", err)
	}
	return n, nil
}

// PutDoc implements Backend.
func (s *SQLite) PutDoc(ctx context.Context, tenantID, collection, key string, doc []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (tenant_id, collection, key, doc, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (tenant_id, collection, key)
		DO UPDATE SET doc = excluded.doc, updated_at = CURRENT_TIMESTAMP;`,
		tenantID, collection, key, doc)
	if err != nil {
		return fmt.Errorf("put doc: %w", err)
	}
	return nil
}

// GetDoc implements Backend.
func (s *SQLite) GetDoc(ctx context.Context, tenantID, collection, key string) ([]byte, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM documents WHERE tenant_id = ? AND collection = ? AND key = ?;`,
		tenantID, collection, key).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get doc: %w", err)
	}
	return doc, nil
}

// Close implements Backend.
func (s *SQLite) Close() error {
	return s.db.Close()
}
