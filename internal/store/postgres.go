package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/company-intel/internal/cache"
	"github.com/sells-group/company-intel/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot cache path.
var preparedStatements = map[string]string{
	"get_lookup": `SELECT attributes, stored_at, expires_at FROM lookup_cache WHERE provider = $1 AND name = $2 AND (expires_at IS NULL OR expires_at > $3)`,
	"set_lookup": `INSERT INTO lookup_cache (provider, name, attributes, stored_at, expires_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (provider, name) DO UPDATE SET attributes = EXCLUDED.attributes, stored_at = EXCLUDED.stored_at, expires_at = EXCLUDED.expires_at`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: time.Now}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	names      JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	report     JSONB,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS lookup_cache (
	provider   TEXT NOT NULL,
	name       TEXT NOT NULL,
	attributes JSONB NOT NULL,
	stored_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ,
	PRIMARY KEY (provider, name)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_lookup_cache_expires_at ON lookup_cache(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, names []string) (*model.Run, error) {
	id := uuid.New().String()
	now := s.now().UTC()

	namesJSON, err := json.Marshal(names)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal names")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, names, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, namesJSON, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Names:     names,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), s.now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	return checkTag(tag, runID)
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, report *model.Report) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal report")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET report = $1, status = $2, updated_at = $3 WHERE id = $4`,
		reportJSON, string(model.RunStatusComplete), s.now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	return checkTag(tag, runID)
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET error = $1, status = $2, updated_at = $3 WHERE id = $4`,
		reason, string(model.RunStatusFailed), s.now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	return checkTag(tag, runID)
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, names, status, report, error, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPgRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, names, status, report, error, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

// GetLookup implements cache.Store.
func (s *PostgresStore) GetLookup(ctx context.Context, key cache.Key) (*cache.Entry, error) {
	var attrsJSON []byte
	var storedAt time.Time
	var expiresAt *time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT attributes, stored_at, expires_at FROM lookup_cache WHERE provider = $1 AND name = $2 AND (expires_at IS NULL OR expires_at > $3)`,
		key.Provider, key.Name, s.now().UTC(),
	).Scan(&attrsJSON, &storedAt, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get lookup")
	}

	entry := &cache.Entry{Key: key, StoredAt: storedAt}
	if expiresAt != nil {
		entry.ExpiresAt = *expiresAt
	}
	if err := json.Unmarshal(attrsJSON, &entry.Attributes); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal lookup attributes")
	}
	return entry, nil
}

// SetLookup implements cache.Store.
func (s *PostgresStore) SetLookup(ctx context.Context, entry cache.Entry) error {
	attrsJSON, err := json.Marshal(entry.Attributes)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal lookup attributes")
	}
	var expiresAt *time.Time
	if !entry.ExpiresAt.IsZero() {
		t := entry.ExpiresAt.UTC()
		expiresAt = &t
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO lookup_cache (provider, name, attributes, stored_at, expires_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (provider, name) DO UPDATE SET attributes = EXCLUDED.attributes, stored_at = EXCLUDED.stored_at, expires_at = EXCLUDED.expires_at`,
		entry.Provider, entry.Name, attrsJSON, entry.StoredAt.UTC(), expiresAt,
	)
	return eris.Wrap(err, "postgres: set lookup")
}

// DeleteExpiredLookups implements cache.Store.
func (s *PostgresStore) DeleteExpiredLookups(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM lookup_cache WHERE expires_at IS NOT NULL AND expires_at <= $1`,
		s.now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired lookups")
	}
	return int(tag.RowsAffected()), nil
}

func checkTag(tag pgconn.CommandTag, runID string) error {
	if tag.RowsAffected() == 0 {
		return eris.Wrap(ErrRunNotFound, runID)
	}
	return nil
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var namesJSON []byte
	var reportJSON []byte
	var errMsg *string
	var status string

	if err := row.Scan(&r.ID, &namesJSON, &status, &reportJSON, &errMsg, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	r.Status = model.RunStatus(status)

	if err := json.Unmarshal(namesJSON, &r.Names); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal names")
	}
	if len(reportJSON) > 0 {
		r.Report = &model.Report{}
		if err := json.Unmarshal(reportJSON, r.Report); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal report")
		}
	}
	if errMsg != nil {
		r.Error = *errMsg
	}
	return &r, nil
}
