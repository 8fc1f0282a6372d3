package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/postalcrawl/internal/db"
	"github.com/sells-group/postalcrawl/internal/model"
	"github.com/sells-group/postalcrawl/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"get_cached_geocode": `SELECT resolved, cached_at FROM geocode_cache WHERE key = $1`,
	"set_cached_geocode": `INSERT INTO geocode_cache (key, resolved, cached_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET resolved = EXCLUDED.resolved, cached_at = EXCLUDED.cached_at`,
	"insert_run": `INSERT INTO runs (id, archive, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
	"delete_dlq": `DELETE FROM dead_letter_queue WHERE id = $1`,
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
CREATE TABLE IF NOT EXISTS geocode_cache (
	key       TEXT PRIMARY KEY,
	resolved  JSONB,
	cached_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	archive    TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	stats      JSONB,
	error      TEXT NOT NULL DEFAULT '',
	candidates INTEGER NOT NULL DEFAULT 0,
	matched    INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS records (
	record_key  TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL DEFAULT '',
	url         TEXT NOT NULL,
	warc_rec_id TEXT NOT NULL,
	warc_date   TEXT NOT NULL,
	claimed     JSONB NOT NULL,
	resolved    JSONB,
	location    BYTEA,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	candidate      JSONB NOT NULL,
	source         TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_archive ON runs(archive);
CREATE INDEX IF NOT EXISTS idx_records_run_id ON records(run_id);
CREATE INDEX IF NOT EXISTS idx_dlq_error_type ON dead_letter_queue(error_type);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
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

func (s *PostgresStore) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

func (s *PostgresStore) GetCachedGeocode(ctx context.Context, key string, maxAge time.Duration) (*model.ResolvedAddress, bool, error) {
	var resolved []byte
	var cachedAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT resolved, cached_at FROM geocode_cache WHERE key = $1`, key,
	).Scan(&resolved, &cachedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: get cached geocode")
	}
	if !cacheFresh(cachedAt, maxAge, s.clock()) {
		return nil, false, nil
	}
	res, err := decodeResolved(resolved)
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

func (s *PostgresStore) SetCachedGeocode(ctx context.Context, key string, res *model.ResolvedAddress) error {
	data, err := encodeResolved(res)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO geocode_cache (key, resolved, cached_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET resolved = EXCLUDED.resolved, cached_at = EXCLUDED.cached_at`,
		key, data, s.clock().UTC(),
	)
	return eris.Wrap(err, "postgres: set cached geocode")
}

func (s *PostgresStore) CreateRun(ctx context.Context, archive string) (*model.Run, error) {
	id := uuid.New().String()
	now := s.clock().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, archive, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, archive, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &model.Run{
		ID:        id,
		Archive:   archive,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, sum model.RunSummary) error {
	statsJSON, err := json.Marshal(sum.Stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, stats = $2, error = $3, candidates = $4, matched = $5, updated_at = $6 WHERE id = $7`,
		string(sum.Status), statsJSON, sum.Error, sum.Candidates, sum.Matched, s.clock().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, archive, status, stats, error, candidates, matched, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Archive != "" {
		query += fmt.Sprintf(` AND archive = $%d`, argIdx)
		args = append(args, filter.Archive)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
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
		var r model.Run
		var statsJSON []byte
		if err := rows.Scan(&r.ID, &r.Archive, &r.Status, &statsJSON, &r.Error,
			&r.Candidates, &r.Matched, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if statsJSON != nil {
			if err := json.Unmarshal(statsJSON, &r.Stats); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal stats")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

var recordsUpsert = db.UpsertConfig{
	Table:        "records",
	Columns:      recordColumns,
	ConflictKeys: []string{"record_key"},
	UpdateCols:   []string{"run_id", "resolved", "location"},
}

// SaveRecords stages rows with COPY and merges them on record_key. Rows in one
// batch sharing a key collapse to the last one.
func (s *PostgresStore) SaveRecords(ctx context.Context, runID string, recs []model.Record) (int64, error) {
	now := s.clock().UTC()
	index := make(map[string]int, len(recs))
	rows := make([][]any, 0, len(recs))
	for _, r := range recs {
		row, err := newRecordRow(runID, r, now)
		if err != nil {
			return 0, err
		}
		vals := []any{row.Key, row.RunID, row.URL, row.RecordID, row.Date,
			row.Claimed, row.Resolved, row.Location, row.CreatedAt}
		if i, ok := index[row.Key]; ok {
			rows[i] = vals
			continue
		}
		index[row.Key] = len(rows)
		rows = append(rows, vals)
	}
	n, err := db.BulkUpsert(ctx, s.pool, recordsUpsert, rows)
	return n, eris.Wrap(err, "postgres: save records")
}

// Dead letter queue methods

func (s *PostgresStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	candidateJSON, err := json.Marshal(entry.Candidate)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal dlq candidate")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO dead_letter_queue
		 (id, candidate, source, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		   error = $4, error_type = $5, retry_count = $6,
		   next_retry_at = $8, last_failed_at = $10`,
		entry.ID, candidateJSON, entry.Source, entry.Error, entry.ErrorType,
		entry.RetryCount, entry.MaxRetries,
		entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: enqueue dlq")
}

func (s *PostgresStore) ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, candidate, source, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM dead_letter_queue
	          WHERE retry_count < max_retries`
	args := []any{}
	argIdx := 1

	if !filter.ReadyAt.IsZero() {
		query += fmt.Sprintf(` AND next_retry_at <= $%d`, argIdx)
		args = append(args, filter.ReadyAt)
		argIdx++
	}
	if filter.ErrorType != "" {
		query += fmt.Sprintf(` AND error_type = $%d`, argIdx)
		args = append(args, filter.ErrorType)
		argIdx++
	}
	query += ` ORDER BY next_retry_at ASC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var candidateJSON []byte
		if err := rows.Scan(&e.ID, &candidateJSON, &e.Source, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries,
			&e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		if err := json.Unmarshal(candidateJSON, &e.Candidate); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal dlq candidate")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list dlq iterate")
}

func (s *PostgresStore) DeleteDLQ(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM dead_letter_queue WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: delete dlq")
}
