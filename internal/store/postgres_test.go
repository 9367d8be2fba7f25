package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-intel/internal/cache"
	"github.com/sells-group/company-intel/internal/model"
)

var fixedNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock, now: func() time.Time { return fixedNow }}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS lookup_cache`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), []byte(`["Acme"]`), "queued", fixedNow, fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), []string{"Acme"})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"id", "names", "status", "report", "error", "created_at", "updated_at"}).
		AddRow("run-1", []byte(`["Acme","Globex"]`), "complete", []byte(`{"run_id":"run-1","status":"complete","companies":[],"competitors":{}}`), nil, fixedNow, fixedNow)
	mock.ExpectQuery(`SELECT id, names, status, report, error, created_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(rows)

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme", "Globex"}, run.Names)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.NotNil(t, run.Report)
	assert.Equal(t, "run-1", run.Report.RunID)
	assert.Empty(t, run.Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, names, status, report, error, created_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRunStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs("enriching", fixedNow, "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRunStatus(context.Background(), "missing", model.RunStatusEnriching)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FailRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET error`).
		WithArgs("boom", "failed", fixedNow, "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.FailRun(context.Background(), "run-1", "boom"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM runs WHERE true AND status = \$1 ORDER BY created_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("failed", 5, 10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "names", "status", "report", "error", "created_at", "updated_at"}))

	runs, err := s.ListRuns(context.Background(), RunFilter{Status: model.RunStatusFailed, Limit: 5, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetLookup_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT attributes, stored_at, expires_at FROM lookup_cache`).
		WithArgs("wikidata", "Unknown", fixedNow).
		WillReturnError(pgx.ErrNoRows)

	entry, err := s.GetLookup(context.Background(), cache.Key{Provider: "wikidata", Name: "Unknown"})
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetLookup_Hit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"attributes", "stored_at", "expires_at"}).
		AddRow([]byte(`{"website":"https://acme.example"}`), fixedNow, nil)
	mock.ExpectQuery(`SELECT attributes, stored_at, expires_at FROM lookup_cache`).
		WithArgs("wikidata", "Acme", fixedNow).
		WillReturnRows(rows)

	entry, err := s.GetLookup(context.Background(), cache.Key{Provider: "wikidata", Name: "Acme"})
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.NotNil(t, entry.Attributes.Website)
	assert.Equal(t, "https://acme.example", *entry.Attributes.Website)
	assert.True(t, entry.ExpiresAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetLookup_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs("wikipedia", "Acme", pgxmock.AnyArg(), fixedNow, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SetLookup(context.Background(), cache.Entry{
		Key:       cache.Key{Provider: "wikipedia", Name: "Acme"},
		StoredAt:  fixedNow,
		ExpiresAt: fixedNow.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteExpiredLookups(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM lookup_cache WHERE expires_at IS NOT NULL AND expires_at <= \$1`).
		WithArgs(fixedNow).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := s.DeleteExpiredLookups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Close_NoPool(t *testing.T) {
	s := &PostgresStore{}
	assert.NoError(t, s.Close())
}
