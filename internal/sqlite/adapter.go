// Package sqlite is the SQLite backend, built on the pure Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"

	"schemasync/internal/engine"
	"schemasync/internal/schema"
	"schemasync/internal/sqlddl"
	"schemasync/internal/syncerr"
)

// Kind is the registry name of this backend.
const Kind = "sqlite3"

// Adapter implements engine.Adapter for SQLite.
type Adapter struct {
	Logger *slog.Logger
}

var _ engine.Adapter = (*Adapter)(nil)

func New(logger *slog.Logger) *Adapter {
	return &Adapter{Logger: logger}
}

// Open opens dsn with the "sqlite" driver. In-memory databases are pinned to
// one connection, otherwise every pooled connection would see its own empty
// database.
func Open(ctx context.Context, dsn string, timeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

var ddl = sqlddl.Builder{Quote: sqlddl.ANSIQuote}

func (a *Adapter) CreateTable(ctx context.Context, db engine.DB, name string, fields []schema.Field) error {
	stmt, err := ddl.CreateTable(name, fields)
	if err != nil {
		return syncerr.InTable(err, name)
	}
	return a.apply(ctx, db, name, stmt)
}

func (a *Adapter) CreateField(ctx context.Context, db engine.DB, table string, f schema.Field) error {
	stmt, err := ddl.AddColumn(table, f)
	if err != nil {
		return syncerr.InTable(err, table)
	}
	return a.apply(ctx, db, table, stmt)
}

// AlterField is refused; SQLite has no ALTER COLUMN and rebuilding the table
// is out of scope.
func (a *Adapter) AlterField(_ context.Context, _ engine.DB, table string, f schema.Field) error {
	return syncerr.Newf(syncerr.CategoryUnsupported, syncerr.CodeAlterField,
		"can't update field %q yet (wanted %s)", f.Name, f).ForTable(table)
}

func (a *Adapter) CreateIndex(ctx context.Context, db engine.DB, table string, idx schema.Index) error {
	return a.apply(ctx, db, table, ddl.CreateIndex(table, idx))
}

func (a *Adapter) DropIndex(ctx context.Context, db engine.DB, table, name string) error {
	return a.apply(ctx, db, table, ddl.DropIndex(name))
}

var spaces = regexp.MustCompile(`\s+`)

func normalizeType(t string) string {
	t = strings.ToUpper(strings.TrimSpace(spaces.ReplaceAllString(t, " ")))
	t = strings.ReplaceAll(t, " (", "(")
	t = strings.ReplaceAll(t, ", ", ",")
	switch t {
	case "INT":
		return "INTEGER"
	case "BOOL":
		return "BOOLEAN"
	}
	return t
}

// TypeMatches compares declared type names. SQLite stores the declared name
// verbatim, so only case, spacing and the INT/BOOL shorthands are folded.
func (a *Adapter) TypeMatches(current, desired string) bool {
	return normalizeType(current) == normalizeType(desired)
}

func (a *Adapter) apply(ctx context.Context, db engine.DB, table, stmt string) error {
	a.log().Debug("sqlite ddl", "table", table, "sql", stmt)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		details := map[string]any{"statement": stmt}
		var se *msqlite.Error
		if errors.As(err, &se) {
			details["sqlite_code"] = se.Code()
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
