package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// OpenPostgres opens a Postgres connection from a DSN.
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	return db, nil
}

// PostgresStore is a CompilationStore on PostgreSQL, for deployments with
// more than one engine replica.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Init creates the schema if it does not exist.
func (s *PostgresStore) Init(ctx context.Context) error {
	query := `
    CREATE TABLE IF NOT EXISTS compilations (
        id TEXT PRIMARY KEY,
        session_id TEXT NOT NULL,
        kind TEXT NOT NULL,
        network TEXT NOT NULL,
        contract_hash TEXT NOT NULL,
        bundle_hash TEXT NOT NULL DEFAULT '',
        receipt JSONB,
        created_at TIMESTAMPTZ NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_compilations_session ON compilations (session_id, created_at);`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("store: init postgres schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, r *CompilationRecord) error {
	query := `INSERT INTO compilations (
        id, session_id, kind, network, contract_hash, bundle_hash, receipt, created_at
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.SessionID, r.Kind, r.Network, r.ContractHash, r.BundleHash, string(r.Receipt), r.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("store: insert compilation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*CompilationRecord, error) {
	query := `
        SELECT id, session_id, kind, network, contract_hash, bundle_hash, receipt, created_at
        FROM compilations
        WHERE id = $1
    `
	row := s.db.QueryRowContext(ctx, query, id)
	return scanPostgresRecord(row.Scan)
}

func (s *PostgresStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]*CompilationRecord, error) {
	query := `
        SELECT id, session_id, kind, network, contract_hash, bundle_hash, receipt, created_at
        FROM compilations
        WHERE session_id = $1
        ORDER BY created_at DESC
        LIMIT $2
    `
	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list compilations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*CompilationRecord
	for rows.Next() {
		r, err := scanPostgresRecord(rows.Scan)
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

func scanPostgresRecord(scan func(...any) error) (*CompilationRecord, error) {
	var (
		r       CompilationRecord
		receipt sql.NullString
	)
	err := scan(&r.ID, &r.SessionID, &r.Kind, &r.Network, &r.ContractHash, &r.BundleHash, &receipt, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan compilation: %w", err)
	}
	if receipt.Valid && receipt.String != "" {
		r.Receipt = []byte(receipt.String)
	}
	return &r, nil
}
