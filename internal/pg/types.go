package pg

import (
	"regexp"
	"strconv"
	"strings"
)

// synonyms folds the spellings Postgres accepts for one type onto the name
// format_type reports.
var synonyms = map[string]string{
	"int":         "integer",
	"int4":        "integer",
	"serial":      "integer",
	"serial4":     "integer",
	"int8":        "bigint",
	"bigserial":   "bigint",
	"serial8":     "bigint",
	"int2":        "smallint",
	"smallserial": "smallint",
	"serial2":     "smallint",
	"float8":      "double precision",
	"float":       "double precision",
	"float4":      "real",
	"bool":        "boolean",
	"varchar":     "character varying",
	"char":        "character",
	"bpchar":      "character",
	"decimal":     "numeric",
	"timestamptz": "timestamp with time zone",
	"timestamp":   "timestamp without time zone",
	"timetz":      "time with time zone",
	"time":        "time without time zone",
	"varbit":      "bit varying",
}

var (
	spaces   = regexp.MustCompile(`\s+`)
	typeSpec = regexp.MustCompile(`^([a-z0-9_ ]+?)\s*(\([^)]*\))?\s*((?:with|without) time zone)?\s*(\[\])?$`)
)

// pgType is a type name split into the parts format_type may reorder:
// "timestamptz(3)" and "timestamp(3) with time zone" share all three.
type pgType struct {
	base  string
	mod   string
	array bool
}

// parseType lowercases t, collapses whitespace and maps aliases onto the
// catalog spelling. Names it cannot split are kept whole in base.
func parseType(t string) pgType {
	t = strings.ToLower(strings.TrimSpace(spaces.ReplaceAllString(t, " ")))
	m := typeSpec.FindStringSubmatch(t)
	if m == nil {
		return pgType{base: t}
	}
	base := m[1]
	if m[3] != "" {
		base += " " + m[3]
	}
	mod := strings.ReplaceAll(m[2], " ", "")
	switch base {
	case "char", "character", "bit":
		if mod == "" {
			mod = "(1)"
		}
	case "float":
		// float(p) is real up to 24 bits of precision, double precision above.
		if p, err := strconv.Atoi(strings.Trim(mod, "()")); err == nil {
			mod = ""
			if p <= 24 {
				base = "real"
			}
		}
	}
	if s, ok := synonyms[base]; ok {
		base = s
	}
	return pgType{base: base, mod: mod, array: m[4] != ""}
}

// TypeMatches reports whether the catalog type and the declared type name
// the same Postgres type.
func (a *Adapter) TypeMatches(current, desired string) bool {
	return parseType(current) == parseType(desired)
}
