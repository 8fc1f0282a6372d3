package db

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig describes a bulk insert that overwrites rows sharing a key.
type UpsertConfig struct {
	Table        string
	Columns      []string
	ConflictKeys []string
	UpdateCols   []string // nil updates every non-key column
}

func (cfg UpsertConfig) updateColumns() []string {
	if cfg.UpdateCols != nil {
		return cfg.UpdateCols
	}
	var cols []string
	for _, c := range cfg.Columns {
		if !slices.Contains(cfg.ConflictKeys, c) {
			cols = append(cols, c)
		}
	}
	return cols
}

// upsertSQL moves staged rows into the target table.
func (cfg UpsertConfig) upsertSQL(staging string) string {
	cols := quoteAndJoin(cfg.Columns)
	action := "DO NOTHING"
	if update := cfg.updateColumns(); len(update) > 0 {
		sets := make([]string, len(update))
		for i, c := range update {
			id := pgx.Identifier{c}.Sanitize()
			sets[i] = id + " = EXCLUDED." + id
		}
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		Identifier(cfg.Table).Sanitize(), cols, cols,
		pgx.Identifier{staging}.Sanitize(), quoteAndJoin(cfg.ConflictKeys), action)
}

// BulkUpsert stages rows in a temporary table with COPY, then merges them
// into the target in one transaction. It returns the number of rows written.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return 0, eris.New("db: upsert: no conflict keys specified")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	staging := "_stage_" + strings.ReplaceAll(cfg.Table, ".", "_")
	create := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{staging}.Sanitize(), Identifier(cfg.Table).Sanitize())
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: stage %s", cfg.Table)
	}
	if _, err := CopyFrom(ctx, tx, staging, cfg.Columns, rows); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: %s", cfg.Table)
	}
	tag, err := tx.Exec(ctx, cfg.upsertSQL(staging))
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: merge %s", cfg.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}
