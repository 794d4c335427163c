package dsl

import "schemasync/internal/schema"

// Document is one schema file.
type Document struct {
	Path   string   `json:"path"`
	Tables []*Table `json:"tables"`
}

// Table is a table block as written in a schema file. Order of fields and
// indexes is kept so new tables get their columns in declaration order.
type Table struct {
	Name    string  `json:"name"`
	Line    int     `json:"line,omitempty"`
	Fields  []Field `json:"fields"`
	Indexes []Index `json:"indexes,omitempty"`
}

type Field struct {
	Name    string         `json:"name"`
	Type    string         `json:"type"`
	Options schema.Options `json:"options,omitempty"`
	Line    int            `json:"line,omitempty"`
}

type Index struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
	Unique bool     `json:"unique,omitempty"`
	Line   int      `json:"line,omitempty"`
}
