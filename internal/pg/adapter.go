// Package pg is the PostgreSQL backend: catalog extraction through
// pg_catalog and DDL through the pgx stdlib driver.
package pg

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"schemasync/internal/engine"
	"schemasync/internal/schema"
	"schemasync/internal/sqlddl"
	"schemasync/internal/syncerr"
)

// Kind is the registry name of this backend.
const Kind = "postgresql"

const defaultNamespace = "public"

// Adapter implements engine.Adapter for PostgreSQL.
type Adapter struct {
	// Namespace is the schema tables live in; empty means "public".
	Namespace string
	Logger    *slog.Logger
}

var _ engine.Adapter = (*Adapter)(nil)

func New(logger *slog.Logger) *Adapter {
	return &Adapter{Logger: logger}
}

func (a *Adapter) namespace() string {
	if a.Namespace == "" {
		return defaultNamespace
	}
	return a.Namespace
}

func (a *Adapter) ddl() sqlddl.Builder {
	ns := a.namespace()
	return sqlddl.Builder{
		Quote:   func(s string) string { return pgx.Identifier{s}.Sanitize() },
		Qualify: func(s string) string { return pgx.Identifier{ns, s}.Sanitize() },
	}
}

func (a *Adapter) CreateTable(ctx context.Context, db engine.DB, name string, fields []schema.Field) error {
	stmt, err := a.ddl().CreateTable(name, fields)
	if err != nil {
		return syncerr.InTable(err, name)
	}
	return a.apply(ctx, db, name, stmt)
}

func (a *Adapter) CreateField(ctx context.Context, db engine.DB, table string, f schema.Field) error {
	stmt, err := a.ddl().AddColumn(table, f)
	if err != nil {
		return syncerr.InTable(err, table)
	}
	return a.apply(ctx, db, table, stmt)
}

// AlterField is refused: changing a live column's type or constraints may
// rewrite or reject stored rows.
func (a *Adapter) AlterField(_ context.Context, _ engine.DB, table string, f schema.Field) error {
	return syncerr.Newf(syncerr.CategoryUnsupported, syncerr.CodeAlterField,
		"can't update field %q yet (wanted %s)", f.Name, f).ForTable(table)
}

func (a *Adapter) CreateIndex(ctx context.Context, db engine.DB, table string, idx schema.Index) error {
	return a.apply(ctx, db, table, a.ddl().CreateIndex(table, idx))
}

func (a *Adapter) DropIndex(ctx context.Context, db engine.DB, table, name string) error {
	return a.apply(ctx, db, table, a.ddl().DropIndex(name))
}
