package pg

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"schemasync/internal/engine"
	"schemasync/internal/schema"
	"schemasync/internal/syncerr"
)

const (
	tablesQuery = `SELECT c.relname
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind IN ('r', 'p') AND n.nspname = $1
ORDER BY c.relname`

	columnsQuery = `SELECT a.attname,
       pg_catalog.format_type(a.atttypid, a.atttypmod),
       COALESCE(bool_or(i.indisprimary), false),
       pg_catalog.pg_get_expr(d.adbin, d.adrelid)
FROM pg_catalog.pg_attribute a
LEFT JOIN pg_catalog.pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
LEFT JOIN pg_catalog.pg_index i ON i.indrelid = a.attrelid AND i.indisprimary AND a.attnum = ANY(i.indkey)
WHERE a.attrelid = $1::regclass AND a.attnum > 0 AND NOT a.attisdropped
GROUP BY a.attnum, a.attname, a.atttypid, a.atttypmod, d.adbin, d.adrelid
ORDER BY a.attnum`

	indexesQuery = `SELECT ic.relname,
       i.indisunique,
       array_to_string(ARRAY(
           SELECT a.attname
           FROM unnest(i.indkey) WITH ORDINALITY AS k(attnum, ord)
           JOIN pg_catalog.pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = k.attnum
           ORDER BY k.ord), ',')
FROM pg_catalog.pg_index i
JOIN pg_catalog.pg_class ic ON ic.oid = i.indexrelid
WHERE i.indrelid = $1::regclass AND NOT i.indisprimary
ORDER BY ic.relname`
)

// maxCatalogQueries bounds concurrent catalog reads within one extraction.
const maxCatalogQueries = 8

// ExtractSchema reads every ordinary table in the adapter's namespace. Each
// table's columns and indexes are fetched concurrently; the table is only
// assembled once both lists are in.
func (a *Adapter) ExtractSchema(ctx context.Context, db engine.DB) (*schema.Schema, error) {
	ns := a.namespace()
	names, err := a.tableNames(ctx, db, ns)
	if err != nil {
		return nil, err
	}

	tables := make([]*schema.Table, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxCatalogQueries)
	for i, name := range names {
		t := schema.NewTable(name)
		tables[i] = t
		rel := pgx.Identifier{ns, name}.Sanitize()
		var mu sync.Mutex
		g.Go(func() error {
			fields, err := a.columns(gctx, db, rel)
			if err != nil {
				return extractionErr(name, err)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, f := range fields {
				t.Fields[f.Name] = f
			}
			return nil
		})
		g.Go(func() error {
			idx, err := a.indexes(gctx, db, rel)
			if err != nil {
				return extractionErr(name, err)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, ix := range idx {
				t.Indexes[ix.Name] = ix
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := schema.New()
	for _, t := range tables {
		out.Add(t)
	}
	a.log().Debug("pg schema extracted", "namespace", ns, "tables", len(tables))
	return out, nil
}

func (a *Adapter) tableNames(ctx context.Context, db engine.DB, ns string) ([]string, error) {
	rows, err := db.QueryContext(ctx, tablesQuery, ns)
	if err != nil {
		return nil, extractionErr("", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, extractionErr("", err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, extractionErr("", err)
	}
	return names, nil
}

func (a *Adapter) columns(ctx context.Context, db engine.DB, rel string) ([]schema.Field, error) {
	rows, err := db.QueryContext(ctx, columnsQuery, rel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []schema.Field
	for rows.Next() {
		var (
			name, typ string
			primary   bool
			def       *string
		)
		if err := rows.Scan(&name, &typ, &primary, &def); err != nil {
			return nil, err
		}
		f := schema.Field{Name: name, Type: typ, Options: schema.Options{}}
		if primary {
			f.Options[schema.OptPrimary] = true
		}
		if def != nil {
			f.Options[schema.OptDefault] = parseDefault(*def)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (a *Adapter) indexes(ctx context.Context, db engine.DB, rel string) ([]schema.Index, error) {
	rows, err := db.QueryContext(ctx, indexesQuery, rel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []schema.Index
	for rows.Next() {
		var (
			ix   schema.Index
			cols string
		)
		if err := rows.Scan(&ix.Name, &ix.Unique, &cols); err != nil {
			return nil, err
		}
		if cols != "" {
			ix.Fields = strings.Split(cols, ",")
		}
		out = append(out, ix)
	}
	return out, rows.Err()
}

// parseDefault turns a catalog default expression into a number when it is
// a plain literal such as "0", "(-1)" or "'2.5'::numeric". Anything else is
// kept as the raw expression.
func parseDefault(expr string) any {
	s := strings.TrimSpace(expr)
	if i := strings.Index(s, "::"); i >= 0 {
		s = s[:i]
	}
	for strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	s = strings.Trim(s, "'")
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return expr
}

func extractionErr(table string, err error) error {
	return syncerr.Wrap(syncerr.CategoryExtraction, syncerr.CodeCatalogRead, "catalog read failed", err).ForTable(table)
}
