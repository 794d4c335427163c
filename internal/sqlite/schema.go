package sqlite

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"schemasync/internal/engine"
	"schemasync/internal/schema"
	"schemasync/internal/syncerr"
)

const (
	tablesQuery  = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	columnsQuery = `SELECT name, type, pk, dflt_value FROM pragma_table_info(?) ORDER BY cid`
	// origin 'c' keeps CREATE INDEX indexes and skips the automatic ones
	// backing PRIMARY KEY and UNIQUE constraints.
	indexListQuery = `SELECT name, "unique" FROM pragma_index_list(?) WHERE origin = 'c' ORDER BY name`
	indexInfoQuery = `SELECT name FROM pragma_index_info(?) ORDER BY seqno`
)

// ExtractSchema reads sqlite_master and the table_info/index_list pragmas.
// Columns and indexes of a table are read concurrently.
func (a *Adapter) ExtractSchema(ctx context.Context, db engine.DB) (*schema.Schema, error) {
	names, err := queryStrings(ctx, db, tablesQuery)
	if err != nil {
		return nil, extractionErr("", err)
	}

	out := schema.New()
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		t := schema.NewTable(name)
		out.Add(t)
		var mu sync.Mutex
		g.Go(func() error {
			fields, err := columns(gctx, db, name)
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
			idx, err := indexes(gctx, db, name)
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
	a.log().Debug("sqlite schema extracted", "tables", len(names))
	return out, nil
}

func columns(ctx context.Context, db engine.DB, table string) ([]schema.Field, error) {
	rows, err := db.QueryContext(ctx, columnsQuery, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []schema.Field
	for rows.Next() {
		var (
			name, typ string
			pk        int
			def       sql.NullString
		)
		if err := rows.Scan(&name, &typ, &pk, &def); err != nil {
			return nil, err
		}
		f := schema.Field{Name: name, Type: typ, Options: schema.Options{}}
		if pk > 0 {
			f.Options[schema.OptPrimary] = true
		}
		if def.Valid {
			f.Options[schema.OptDefault] = parseDefault(def.String)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// indexes lists the index names first and closes that cursor before reading
// each index's columns, so a single pinned connection is never held twice.
func indexes(ctx context.Context, db engine.DB, table string) ([]schema.Index, error) {
	rows, err := db.QueryContext(ctx, indexListQuery, table)
	if err != nil {
		return nil, err
	}
	var out []schema.Index
	for rows.Next() {
		var (
			ix     schema.Index
			unique int
		)
		if err := rows.Scan(&ix.Name, &unique); err != nil {
			rows.Close()
			return nil, err
		}
		ix.Unique = unique != 0
		out = append(out, ix)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range out {
		cols, err := queryStrings(ctx, db, indexInfoQuery, out[i].Name)
		if err != nil {
			return nil, err
		}
		out[i].Fields = cols
	}
	return out, nil
}

func queryStrings(ctx context.Context, db engine.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// parseDefault converts a numeric literal default ("0", "(-1)", "2.5") to a
// number; other expressions are kept verbatim.
func parseDefault(expr string) any {
	s := strings.TrimSpace(expr)
	for strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
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
