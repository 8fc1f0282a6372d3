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

	"github.com/sells-group/postalcrawl/internal/model"
	"github.com/sells-group/postalcrawl/internal/resilience"
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

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS geocode_cache (
	key       TEXT PRIMARY KEY,
	resolved  TEXT,
	cached_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	archive    TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	stats      TEXT,
	error      TEXT NOT NULL DEFAULT '',
	candidates INTEGER NOT NULL DEFAULT 0,
	matched    INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
	record_key  TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL DEFAULT '',
	url         TEXT NOT NULL,
	warc_rec_id TEXT NOT NULL,
	warc_date   TEXT NOT NULL,
	claimed     TEXT NOT NULL,
	resolved    TEXT,
	location    BLOB,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY,
	candidate      TEXT NOT NULL,
	source         TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  DATETIME NOT NULL,
	created_at     DATETIME NOT NULL,
	last_failed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_archive ON runs(archive);
CREATE INDEX IF NOT EXISTS idx_records_run_id ON records(run_id);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetCachedGeocode(ctx context.Context, key string, maxAge time.Duration) (*model.ResolvedAddress, bool, error) {
	var resolved sql.NullString
	var cachedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT resolved, cached_at FROM geocode_cache WHERE key = ?`, key,
	).Scan(&resolved, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: get cached geocode")
	}
	if !cacheFresh(cachedAt, maxAge, s.now()) {
		return nil, false, nil
	}
	if !resolved.Valid {
		return nil, true, nil
	}
	res, err := decodeResolved([]byte(resolved.String))
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

func (s *SQLiteStore) SetCachedGeocode(ctx context.Context, key string, res *model.ResolvedAddress) error {
	data, err := encodeResolved(res)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO geocode_cache (key, resolved, cached_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET resolved = excluded.resolved, cached_at = excluded.cached_at`,
		key, nullString(data), s.now().UTC(),
	)
	return eris.Wrap(err, "sqlite: set cached geocode")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, archive string) (*model.Run, error) {
	id := uuid.New().String()
	now := s.now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, archive, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, archive, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &model.Run{
		ID:        id,
		Archive:   archive,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, sum model.RunSummary) error {
	statsJSON, err := json.Marshal(sum.Stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, stats = ?, error = ?, candidates = ?, matched = ?, updated_at = ? WHERE id = ?`,
		string(sum.Status), string(statsJSON), sum.Error, sum.Candidates, sum.Matched, s.now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, archive, status, stats, error, candidates, matched, created_at, updated_at FROM runs WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Archive != "" {
		query += ` AND archive = ?`
		args = append(args, filter.Archive)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, listLimit(filter.Limit), max(filter.Offset, 0))

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
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveRecords(ctx context.Context, runID string, recs []model.Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin save records")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (record_key, run_id, url, warc_rec_id, warc_date, claimed, resolved, location, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(record_key) DO UPDATE SET
		   run_id = excluded.run_id, resolved = excluded.resolved, location = excluded.location`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare save records")
	}
	defer stmt.Close() //nolint:errcheck

	now := s.now().UTC()
	for _, r := range recs {
		row, err := newRecordRow(runID, r, now)
		if err != nil {
			return 0, err
		}
		_, err = stmt.ExecContext(ctx, row.Key, row.RunID, row.URL, row.RecordID, row.Date,
			string(row.Claimed), nullString(row.Resolved), nullBlob(row.Location), row.CreatedAt)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: save record %s", r.RecordID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit save records")
	}
	return int64(len(recs)), nil
}

func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	candidateJSON, err := json.Marshal(entry.Candidate)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal dlq candidate")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dead_letter_queue
		 (id, candidate, source, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   error = excluded.error, error_type = excluded.error_type, retry_count = excluded.retry_count,
		   next_retry_at = excluded.next_retry_at, last_failed_at = excluded.last_failed_at`,
		entry.ID, string(candidateJSON), entry.Source, entry.Error, entry.ErrorType,
		entry.RetryCount, entry.MaxRetries, entry.NextRetryAt.UTC(), entry.CreatedAt.UTC(), entry.LastFailedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: enqueue dlq")
}

// ListDLQ returns entries with retries left, soonest first. The ReadyAt
// cut-off is applied after the query since SQLite compares timestamps as text.
func (s *SQLiteStore) ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, candidate, source, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM dead_letter_queue WHERE retry_count < max_retries`
	var args []any
	if filter.ErrorType != "" {
		query += ` AND error_type = ?`
		args = append(args, filter.ErrorType)
	}
	query += ` ORDER BY next_retry_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list dlq")
	}
	defer rows.Close() //nolint:errcheck

	limit := listLimit(filter.Limit)
	var entries []resilience.DLQEntry
	for rows.Next() && len(entries) < limit {
		var e resilience.DLQEntry
		var candidateJSON string
		if err := rows.Scan(&e.ID, &candidateJSON, &e.Source, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		if !filter.ReadyAt.IsZero() && e.NextRetryAt.After(filter.ReadyAt) {
			continue
		}
		if err := json.Unmarshal([]byte(candidateJSON), &e.Candidate); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal dlq candidate")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list dlq iterate")
}

func (s *SQLiteStore) DeleteDLQ(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: delete dlq")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var statsJSON sql.NullString
	err := row.Scan(&r.ID, &r.Archive, &r.Status, &statsJSON, &r.Error,
		&r.Candidates, &r.Matched, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if statsJSON.Valid && statsJSON.String != "" && statsJSON.String != "null" {
		if err := json.Unmarshal([]byte(statsJSON.String), &r.Stats); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal stats")
		}
	}
	return &r, nil
}

func nullString(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func nullBlob(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}

func listLimit(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}
