// Package sqlddl renders the handful of DDL statements the adapters issue.
// Dialects differ only in identifier quoting.
package sqlddl

import (
	"fmt"
	"strconv"
	"strings"

	"schemasync/internal/schema"
	"schemasync/internal/syncerr"
)

// Builder renders statements with the given identifier quoting. Qualify,
// when set, renders schema-level object names (tables, dropped indexes).
type Builder struct {
	Quote   func(ident string) string
	Qualify func(name string) string
}

// ANSIQuote wraps ident in double quotes, doubling embedded quotes.
func ANSIQuote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (b Builder) quote(s string) string {
	if b.Quote == nil {
		return ANSIQuote(s)
	}
	return b.Quote(s)
}

func (b Builder) qualify(s string) string {
	if b.Qualify == nil {
		return b.quote(s)
	}
	return b.Qualify(s)
}

// Column renders "name type [PRIMARY KEY] [DEFAULT n]".
func (b Builder) Column(f schema.Field) (string, error) {
	var sb strings.Builder
	sb.WriteString(b.quote(f.Name))
	sb.WriteByte(' ')
	sb.WriteString(f.Type)
	if f.Primary() {
		sb.WriteString(" PRIMARY KEY")
	}
	if v, ok := f.Default(); ok {
		lit, err := NumericLiteral(v)
		if err != nil {
			return "", syncerr.Wrap(syncerr.CategoryDefinition, syncerr.CodeNonNumeric,
				fmt.Sprintf("field %q", f.Name), err)
		}
		sb.WriteString(" DEFAULT ")
		sb.WriteString(lit)
	}
	return sb.String(), nil
}

// NumericLiteral formats a numeric default; anything else is rejected.
func NumericLiteral(v any) (string, error) {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n), nil
	case int32:
		return strconv.FormatInt(int64(n), 10), nil
	case int64:
		return strconv.FormatInt(n, 10), nil
	case uint64:
		return strconv.FormatUint(n, 10), nil
	case float32:
		return strconv.FormatFloat(float64(n), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64), nil
	}
	if f, ok := schema.AsNumber(v); ok {
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	}
	return "", fmt.Errorf("non-numeric defaults unsupported: %v (%T)", v, v)
}

func (b Builder) CreateTable(name string, fields []schema.Field) (string, error) {
	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		c, err := b.Column(f)
		if err != nil {
			return "", err
		}
		cols = append(cols, c)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", b.qualify(name), strings.Join(cols, ", ")), nil
}

func (b Builder) AddColumn(table string, f schema.Field) (string, error) {
	c, err := b.Column(f)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", b.qualify(table), c), nil
}

func (b Builder) CreateIndex(table string, idx schema.Index) string {
	cols := make([]string, len(idx.Fields))
	for i, f := range idx.Fields {
		cols[i] = b.quote(f)
	}
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, b.quote(idx.Name), b.qualify(table), strings.Join(cols, ", "))
}

func (b Builder) DropIndex(name string) string {
	return "DROP INDEX " + b.qualify(name)
}
