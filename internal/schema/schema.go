// Package schema holds the in-memory model shared by the current (extracted)
// and desired (declared) database structure.
package schema

import (
	"fmt"
	"sort"
)

// Recognized field option keys.
const (
	OptPrimary = "primary"
	OptDefault = "default"
)

// Options are the per-field options. Only keys that were actually declared
// take part in comparison.
type Options map[string]any

// Schema maps table name -> table.
type Schema struct {
	Tables map[string]*Table `json:"tables"`
}

// Table is the structure of one table: fields and indexes by name.
type Table struct {
	Name    string           `json:"name"`
	Fields  map[string]Field `json:"fields"`
	Indexes map[string]Index `json:"indexes"`
}

// Field is a column definition. Type is backend native when extracted.
type Field struct {
	Name    string  `json:"name"`
	Type    string  `json:"type"`
	Options Options `json:"options,omitempty"`
}

// Index is a named index over an ordered list of fields.
type Index struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
	Unique bool     `json:"unique"`
}

func New() *Schema {
	return &Schema{Tables: map[string]*Table{}}
}

func NewTable(name string) *Table {
	return &Table{
		Name:    name,
		Fields:  map[string]Field{},
		Indexes: map[string]Index{},
	}
}

// Table returns the named table, nil when it does not exist.
func (s *Schema) Table(name string) *Table {
	if s == nil || s.Tables == nil {
		return nil
	}
	return s.Tables[name]
}

// Add registers t under its name, replacing any previous table.
func (s *Schema) Add(t *Table) {
	if s.Tables == nil {
		s.Tables = map[string]*Table{}
	}
	s.Tables[t.Name] = t
}

// TableNames returns table names in lexical order.
func (s *Schema) TableNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Tables))
	for n := range s.Tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Primary reports whether the field is declared as primary key.
func (f Field) Primary() bool {
	v, _ := f.Options[OptPrimary].(bool)
	return v
}

// Default returns the default value and whether one is set.
func (f Field) Default() (any, bool) {
	v, ok := f.Options[OptDefault]
	return v, ok && v != nil
}

func (f Field) String() string {
	return fmt.Sprintf("%s %s %v", f.Name, f.Type, map[string]any(f.Options))
}

// Equal compares field sequence (length and order) and uniqueness.
func (i Index) Equal(o Index) bool {
	if i.Unique != o.Unique || len(i.Fields) != len(o.Fields) {
		return false
	}
	for k := range i.Fields {
		if i.Fields[k] != o.Fields[k] {
			return false
		}
	}
	return true
}

// Clone returns a copy that does not share the Fields slice.
func (i Index) Clone() Index {
	i.Fields = append([]string(nil), i.Fields...)
	return i
}

// Clone returns a copy that does not share the option map.
func (f Field) Clone() Field {
	if f.Options != nil {
		opts := make(Options, len(f.Options))
		for k, v := range f.Options {
			opts[k] = v
		}
		f.Options = opts
	}
	return f
}

// DiffersFrom reports whether any key of declared has a different value in
// current. Keys absent from declared are not looked at.
func (declared Options) DiffersFrom(current Options) bool {
	for k, want := range declared {
		got, ok := current[k]
		if !ok {
			// primary=false and a missing primary key mean the same thing
			if k == OptPrimary && want == false {
				continue
			}
			return true
		}
		if !ValuesEqual(want, got) {
			return true
		}
	}
	return false
}

// ValuesEqual compares option values, treating all numeric kinds by value.
func ValuesEqual(a, b any) bool {
	fa, aNum := AsNumber(a)
	fb, bNum := AsNumber(b)
	if aNum || bNum {
		return aNum && bNum && fa == fb
	}
	return a == b
}

// AsNumber converts any Go numeric value to float64.
func AsNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
