package pg

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"schemasync/internal/engine"
	"schemasync/internal/syncerr"
)

// apply runs one DDL statement. Server errors keep their SQLSTATE in the
// error details; nothing is skipped or retried.
func (a *Adapter) apply(ctx context.Context, db engine.DB, table, stmt string) error {
	stmt = strings.TrimSpace(stmt)
	a.log().Debug("pg ddl", "table", table, "sql", stmt)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		details := map[string]any{"statement": stmt}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			details["sqlstate"] = pgErr.Code
			if pgErr.ConstraintName != "" {
				details["constraint"] = pgErr.ConstraintName
			}
		}
		return syncerr.Wrap(syncerr.CategoryExecution, syncerr.CodeDDLFailed, "ddl apply failed", err).
			ForTable(table).
			WithDetails(details)
	}
	return nil
}

func (a *Adapter) log() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}
