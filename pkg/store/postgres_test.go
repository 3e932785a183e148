package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStorePut(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresStore(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO compilations")).
		WithArgs("rec-1", "sess-1", "vault", "regtest", "sha256:aa", "sha256:bb", `{"id":"r"}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = s.Put(ctx, &CompilationRecord{
		ID:           "rec-1",
		SessionID:    "sess-1",
		Kind:         "vault",
		Network:      "regtest",
		ContractHash: "sha256:aa",
		BundleHash:   "sha256:bb",
		Receipt:      json.RawMessage(`{"id":"r"}`),
		CreatedAt:    time.Now(),
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresStore(db)
	ctx := context.Background()
	created := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	cols := []string{"id", "session_id", "kind", "network", "contract_hash", "bundle_hash", "receipt", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1")).
		WithArgs("rec-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("rec-1", "sess-1", "vault", "regtest", "sha256:aa", "sha256:bb", `{"id":"r"}`, created))

	r, err := s.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "vault", r.Kind)
	assert.Equal(t, "sha256:bb", r.BundleHash)
	assert.JSONEq(t, `{"id":"r"}`, string(r.Receipt))
	assert.Equal(t, created, r.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresStore(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1")).
		WithArgs("absent").
		WillReturnError(sql.ErrNoRows)

	_, err = s.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStoreListBySession(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresStore(db)
	created := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	cols := []string{"id", "session_id", "kind", "network", "contract_hash", "bundle_hash", "receipt", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta("WHERE session_id = $1")).
		WithArgs("sess-1", 10).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("rec-2", "sess-1", "vault", "regtest", "sha256:cc", "", nil, created.Add(time.Hour)).
			AddRow("rec-1", "sess-1", "vault", "regtest", "sha256:aa", "sha256:bb", `{"id":"r"}`, created))

	records, err := s.ListBySession(context.Background(), "sess-1", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "rec-2", records[0].ID)
	assert.Nil(t, records[0].Receipt)
	assert.Equal(t, "rec-1", records[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreInit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresStore(db)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS compilations").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, s.Init(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
