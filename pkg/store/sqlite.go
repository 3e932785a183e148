package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// CompilationStore persists compilation records.
type CompilationStore interface {
	Put(ctx context.Context, r *CompilationRecord) error
	Get(ctx context.Context, id string) (*CompilationRecord, error)
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*CompilationRecord, error)
}

// OpenSQLite opens (creating if needed) a sqlite database at path. Use
// ":memory:" for an ephemeral store.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite %s: %w", path, err)
	}
	return db, nil
}

// SQLiteStore is a CompilationStore on sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps db and ensures the schema exists.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS compilations (
        id TEXT PRIMARY KEY,
        session_id TEXT NOT NULL,
        kind TEXT NOT NULL,
        network TEXT NOT NULL,
        contract_hash TEXT NOT NULL,
        bundle_hash TEXT NOT NULL DEFAULT '',
        receipt JSON,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_compilations_session ON compilations (session_id, created_at);`
	if _, err := s.db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("store: migrate sqlite: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, r *CompilationRecord) error {
	query := `INSERT INTO compilations (
        id, session_id, kind, network, contract_hash, bundle_hash, receipt, created_at
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	createdAt := r.CreatedAt.UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.SessionID, r.Kind, r.Network, r.ContractHash, r.BundleHash, string(r.Receipt), createdAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert compilation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*CompilationRecord, error) {
	query := `
        SELECT id, session_id, kind, network, contract_hash, bundle_hash, receipt, created_at
        FROM compilations
        WHERE id = ?
    `
	row := s.db.QueryRowContext(ctx, query, id)
	return scanSQLiteRecord(row.Scan)
}

func (s *SQLiteStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]*CompilationRecord, error) {
	query := `
        SELECT id, session_id, kind, network, contract_hash, bundle_hash, receipt, created_at
        FROM compilations
        WHERE session_id = ?
        ORDER BY created_at DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list compilations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*CompilationRecord
	for rows.Next() {
		r, err := scanSQLiteRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list compilations: %w", err)
	}
	return records, nil
}

func scanSQLiteRecord(scan func(...any) error) (*CompilationRecord, error) {
	var (
		r         CompilationRecord
		receipt   sql.NullString
		createdAt string
	)
	err := scan(&r.ID, &r.SessionID, &r.Kind, &r.Network, &r.ContractHash, &r.BundleHash, &receipt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan compilation: %w", err)
	}
	if receipt.Valid && receipt.String != "" {
		r.Receipt = []byte(receipt.String)
	}
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
