package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// ReplaceRows swaps every row of table whose keyColumn equals key for rows,
// loading the new rows with COPY. Delete and copy share one transaction so a
// retried write never leaves duplicates behind.
func ReplaceRows(ctx context.Context, pool Pool, table, keyColumn string, key any, columns []string, rows [][]any) (int64, error) {
	del := "DELETE FROM " + pgx.Identifier{table}.Sanitize() +
		" WHERE " + pgx.Identifier{keyColumn}.Sanitize() + " = $1"

	if len(rows) == 0 {
		if _, err := pool.Exec(ctx, del, key); err != nil {
			return 0, eris.Wrapf(err, "db: clear %s", table)
		}
		return 0, nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: begin replace")
	}

	if _, err := tx.Exec(ctx, del, key); err != nil {
		_ = tx.Rollback(ctx)
		return 0, eris.Wrapf(err, "db: clear %s", table)
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: commit replace")
	}
	return n, nil
}
