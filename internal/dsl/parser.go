// Package dsl loads desired-schema files (.dsl and .yaml) and turns them
// into engine definitions.
package dsl

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"schemasync/internal/schema"
	"schemasync/internal/syncerr"
)

var (
	tableRe = regexp.MustCompile(`^table\s+([\w.]+)\s*:\s*$`)
	indexRe = regexp.MustCompile(`^index\s+(\w+)\s*\(([^)]*)\)\s*(.*)$`)
	fieldRe = regexp.MustCompile(`^(\w+)\s*:\s*(.+)$`)
)

// splitTokens splits on blanks outside quotes and parentheses, so
// `numeric(10, 2) default=0` gives two tokens.
func splitTokens(s string) []string {
	var out []string
	var buf []rune
	inSingle, inDouble := false, false
	depth := 0

	flush := func() {
		if len(buf) > 0 {
			out = append(out, string(buf))
			buf = buf[:0]
		}
	}

	for _, r := range s {
		switch r {
		case '\'':
			if !inDouble && depth == 0 {
				inSingle = !inSingle
			}
			buf = append(buf, r)
		case '"':
			if !inSingle && depth == 0 {
				inDouble = !inDouble
			}
			buf = append(buf, r)
		case '(':
			if !inSingle && !inDouble {
				depth++
			}
			buf = append(buf, r)
		case ')':
			if !inSingle && !inDouble && depth > 0 {
				depth--
			}
			buf = append(buf, r)
		default:
			if (r == ' ' || r == '\t') && !inSingle && !inDouble && depth == 0 {
				flush()
				continue
			}
			buf = append(buf, r)
		}
	}
	flush()
	return out
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

// parseValue reads an option value: bools and numbers become typed values,
// anything else (quoted or not) stays a string.
func parseValue(v string) any {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') {
		return unquote(v)
	}
	switch strings.ToLower(v) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}

func stripComment(line string) string {
	inSingle, inDouble := false, false
	for i, r := range line {
		switch r {
		case '\'':
			inSingle = !inSingle && !inDouble
		case '"':
			inDouble = !inDouble && !inSingle
		case '#':
			if !inSingle && !inDouble {
				return line[:i]
			}
		}
	}
	return line
}

// Parse reads the line grammar:
//
//	table people:
//	  id: integer primary
//	  score: integer default=0
//	  index people_name(name, score) unique
func Parse(r io.Reader, path string) (*Document, error) {
	doc := &Document{Path: path}
	var current *Table

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(stripComment(scanner.Text()))
		if line == "" {
			continue
		}

		if m := tableRe.FindStringSubmatch(line); m != nil {
			current = &Table{Name: m[1], Line: lineNo}
			doc.Tables = append(doc.Tables, current)
			continue
		}
		if current == nil {
			return nil, syntaxErr(path, lineNo, "expected `table <name>:`, got %q", line)
		}

		if m := indexRe.FindStringSubmatch(line); m != nil {
			ix := Index{Name: m[1], Line: lineNo}
			for _, p := range strings.Split(m[2], ",") {
				if p = strings.TrimSpace(p); p != "" {
					ix.Fields = append(ix.Fields, p)
				}
			}
			for _, tok := range splitTokens(m[3]) {
				switch strings.ToLower(tok) {
				case "unique":
					ix.Unique = true
				default:
					return nil, syntaxErr(path, lineNo, "unknown index flag %q", tok)
				}
			}
			current.Indexes = append(current.Indexes, ix)
			continue
		}

		if m := fieldRe.FindStringSubmatch(line); m != nil {
			toks := splitTokens(m[2])
			f := Field{Name: m[1], Type: unquote(toks[0]), Options: schema.Options{}, Line: lineNo}
			for _, tok := range toks[1:] {
				k, v, hasValue := strings.Cut(tok, "=")
				k = strings.ToLower(strings.TrimSpace(k))
				if k == "" {
					return nil, syntaxErr(path, lineNo, "empty option in %q", tok)
				}
				if !hasValue {
					f.Options[k] = true
					continue
				}
				f.Options[k] = parseValue(strings.TrimSpace(v))
			}
			current.Fields = append(current.Fields, f)
			continue
		}

		return nil, syntaxErr(path, lineNo, "unrecognized line %q", line)
	}
	if err := scanner.Err(); err != nil {
		return nil, syncerr.Wrap(syncerr.CategoryDefinition, syncerr.CodeInvalidDocument, "read "+path, err)
	}
	return doc, nil
}

// ParseFile opens and parses one .dsl file.
func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, path)
}

func syntaxErr(path string, line int, format string, args ...any) error {
	msg := fmt.Sprintf("%s:%d: ", path, line) + fmt.Sprintf(format, args...)
	return syncerr.New(syncerr.CategoryDefinition, syncerr.CodeInvalidDocument, msg).
		WithDetails(map[string]any{"file": path, "line": line})
}
