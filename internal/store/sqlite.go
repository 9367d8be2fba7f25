package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/company-intel/internal/cache"
	"github.com/sells-group/company-intel/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Lookup timestamps are unix milliseconds; a NULL expires_at never expires.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	names      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	report     TEXT,
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS lookup_cache (
	provider   TEXT NOT NULL,
	name       TEXT NOT NULL,
	attributes TEXT NOT NULL,
	stored_at  INTEGER NOT NULL,
	expires_at INTEGER,
	PRIMARY KEY (provider, name)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_lookup_cache_expires_at ON lookup_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, names []string) (*model.Run, error) {
	id := uuid.New().String()
	now := s.now().UTC()

	namesJSON, err := json.Marshal(names)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal names")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, names, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(namesJSON), string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Names:     names,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), s.now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, report *model.Report) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal report")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET report = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(reportJSON), string(model.RunStatusComplete), s.now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET error = ?, status = ?, updated_at = ? WHERE id = ?`,
		reason, string(model.RunStatusFailed), s.now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, names, status, report, error, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, names, status, report, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

// GetLookup implements cache.Store.
func (s *SQLiteStore) GetLookup(ctx context.Context, key cache.Key) (*cache.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT attributes, stored_at, expires_at FROM lookup_cache
		 WHERE provider = ? AND name = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key.Provider, key.Name, s.now().UnixMilli(),
	)

	var attrsJSON string
	var storedAt int64
	var expiresAt sql.NullInt64
	err := row.Scan(&attrsJSON, &storedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get lookup")
	}

	entry := &cache.Entry{Key: key, StoredAt: time.UnixMilli(storedAt).UTC()}
	if expiresAt.Valid {
		entry.ExpiresAt = time.UnixMilli(expiresAt.Int64).UTC()
	}
	if err := json.Unmarshal([]byte(attrsJSON), &entry.Attributes); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal lookup attributes")
	}
	return entry, nil
}

// SetLookup implements cache.Store. A later write for the same key replaces
// the earlier one.
func (s *SQLiteStore) SetLookup(ctx context.Context, entry cache.Entry) error {
	attrsJSON, err := json.Marshal(entry.Attributes)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal lookup attributes")
	}
	var expiresAt sql.NullInt64
	if !entry.ExpiresAt.IsZero() {
		expiresAt = sql.NullInt64{Int64: entry.ExpiresAt.UnixMilli(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lookup_cache (provider, name, attributes, stored_at, expires_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (provider, name) DO UPDATE SET
			attributes = excluded.attributes,
			stored_at = excluded.stored_at,
			expires_at = excluded.expires_at`,
		entry.Provider, entry.Name, string(attrsJSON), entry.StoredAt.UnixMilli(), expiresAt,
	)
	return eris.Wrap(err, "sqlite: set lookup")
}

// DeleteExpiredLookups implements cache.Store.
func (s *SQLiteStore) DeleteExpiredLookups(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM lookup_cache WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		s.now().UnixMilli(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired lookups")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrRunNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var namesJSON string
	var reportJSON, errMsg sql.NullString

	err := row.Scan(&r.ID, &namesJSON, &r.Status, &reportJSON, &errMsg, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(namesJSON), &r.Names); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal names")
	}
	if reportJSON.Valid {
		r.Report = &model.Report{}
		if err := json.Unmarshal([]byte(reportJSON.String), r.Report); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal report")
		}
	}
	r.Error = errMsg.String
	return &r, nil
}
