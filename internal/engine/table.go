package engine

import (
	"schemasync/internal/schema"
	"schemasync/internal/syncerr"
)

// Definition declares part of the desired schema. Returning an error, like
// any failed declaration, aborts the whole run before anything executes.
type Definition func(s *SchemaDef) error

// TableFunc declares the fields and indexes of one table.
type TableFunc func(t *TableDef) error

// SchemaDef is handed to Definition routines. It only exposes Table.
type SchemaDef struct {
	current     *schema.Schema
	typeMatches func(current, desired string) bool
	queue       *Queue
	declared    map[string]struct{}
	err         error
}

func newSchemaDef(current *schema.Schema, typeMatches func(string, string) bool, q *Queue) *SchemaDef {
	return &SchemaDef{
		current:     current,
		typeMatches: typeMatches,
		queue:       q,
		declared:    map[string]struct{}{},
	}
}

// Table evaluates fn against the current snapshot of the named table and
// queues the resulting actions. The first error sticks: later calls are
// ignored and the run fails with it.
func (s *SchemaDef) Table(name string, fn TableFunc) {
	if s.err != nil {
		return
	}
	if name == "" {
		s.err = syncerr.New(syncerr.CategoryDefinition, syncerr.CodeInvalidName, "table name is empty")
		return
	}
	if _, dup := s.declared[name]; dup {
		s.err = syncerr.New(syncerr.CategoryDefinition, syncerr.CodeDuplicateTable,
			"table declared more than once in this run").ForTable(name)
		return
	}
	s.declared[name] = struct{}{}

	t := newTableDef(name, s.current.Table(name), s.typeMatches)
	actions, err := t.evaluate(fn)
	if err != nil {
		s.err = err
		return
	}
	s.queue.Push(actions...)
}

// Err returns the first declaration error, if any.
func (s *SchemaDef) Err() error { return s.err }

// TableDef collects the declarations of one table and diffs them against the
// table's current structure (nil when the table does not exist yet).
type TableDef struct {
	name        string
	current     *schema.Table
	typeMatches func(current, desired string) bool

	fields  []schema.Field
	fieldNS map[string]struct{}
	indexNS map[string]struct{}
	actions []Action
	err     error
}

func newTableDef(name string, current *schema.Table, typeMatches func(string, string) bool) *TableDef {
	if typeMatches == nil {
		typeMatches = func(c, d string) bool { return c == d }
	}
	return &TableDef{
		name:        name,
		current:     current,
		typeMatches: typeMatches,
		fieldNS:     map[string]struct{}{},
		indexNS:     map[string]struct{}{},
	}
}

func (t *TableDef) Name() string { return t.name }

// IsNew reports whether the table was absent from the snapshot.
func (t *TableDef) IsNew() bool { return t.current == nil }

// Field declares a column. Several option maps are merged, later keys win.
func (t *TableDef) Field(name, typ string, opts ...schema.Options) {
	if t.err != nil {
		return
	}
	if name == "" || typ == "" {
		t.fail(syncerr.Newf(syncerr.CategoryDefinition, syncerr.CodeInvalidName,
			"field needs a name and a type (got %q %q)", name, typ))
		return
	}
	if _, dup := t.fieldNS[name]; dup {
		t.fail(syncerr.Newf(syncerr.CategoryDefinition, syncerr.CodeDuplicateField,
			"field %q declared twice", name))
		return
	}
	t.fieldNS[name] = struct{}{}

	merged := schema.Options{}
	for _, o := range opts {
		for k, v := range o {
			merged[k] = v
		}
	}
	if err := validateOptions(name, merged); err != nil {
		t.fail(err)
		return
	}
	if v, ok := merged[schema.OptDefault]; ok && v == nil {
		delete(merged, schema.OptDefault)
	}
	f := schema.Field{Name: name, Type: typ, Options: merged}

	if t.IsNew() {
		t.fields = append(t.fields, f)
		return
	}

	cur, ok := t.current.Fields[name]
	switch {
	case !ok:
		t.actions = append(t.actions, CreateField{Table: t.name, Field: f})
	case !t.typeMatches(cur.Type, typ) || merged.DiffersFrom(cur.Options):
		t.actions = append(t.actions, AlterField{Table: t.name, Field: f})
	}
}

// Index declares an index. unique defaults to false.
func (t *TableDef) Index(name string, fields []string, unique ...bool) {
	if t.err != nil {
		return
	}
	if name == "" || len(fields) == 0 {
		t.fail(syncerr.Newf(syncerr.CategoryDefinition, syncerr.CodeInvalidName,
			"index %q needs a name and at least one field", name))
		return
	}
	for _, f := range fields {
		if f == "" {
			t.fail(syncerr.Newf(syncerr.CategoryDefinition, syncerr.CodeInvalidName,
				"index %q has an empty field name", name))
			return
		}
	}
	if _, dup := t.indexNS[name]; dup {
		t.fail(syncerr.Newf(syncerr.CategoryDefinition, syncerr.CodeDuplicateIndex,
			"index %q declared twice", name))
		return
	}
	t.indexNS[name] = struct{}{}

	want := schema.Index{
		Name:   name,
		Fields: append([]string(nil), fields...),
		Unique: len(unique) > 0 && unique[0],
	}

	var cur schema.Index
	var exists bool
	if t.current != nil {
		cur, exists = t.current.Indexes[name]
	}
	switch {
	case !exists:
		t.actions = append(t.actions, CreateIndex{Table: t.name, Index: want})
	case !cur.Equal(want):
		// indexes cannot be altered in place
		t.actions = append(t.actions,
			DropIndex{Table: t.name, Name: name},
			CreateIndex{Table: t.name, Index: want},
		)
	}
}

func (t *TableDef) fail(err *syncerr.Error) {
	t.err = err.ForTable(t.name)
}

// evaluate runs fn and returns the table's actions. A new table yields one
// CreateTable, carrying the fields in declaration order, ahead of its index
// actions. On error nothing from this table is returned.
func (t *TableDef) evaluate(fn TableFunc) (actions []Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			actions = nil
			err = syncerr.Newf(syncerr.CategoryDefinition, syncerr.CodeRoutineFailed,
				"definition panicked: %v", r).ForTable(t.name)
		}
	}()

	if fn != nil {
		if ferr := fn(t); ferr != nil && t.err == nil {
			t.err = asDefinitionError(ferr, t.name)
		}
	}
	if t.err != nil {
		return nil, t.err
	}
	if t.IsNew() {
		out := make([]Action, 0, len(t.actions)+1)
		out = append(out, CreateTable{Table: t.name, Fields: t.fields})
		return append(out, t.actions...), nil
	}
	return t.actions, nil
}

func validateOptions(field string, opts schema.Options) *syncerr.Error {
	for k, v := range opts {
		switch k {
		case schema.OptPrimary:
			if _, ok := v.(bool); !ok {
				return syncerr.Newf(syncerr.CategoryDefinition, syncerr.CodeInvalidOption,
					"field %q: primary must be a bool, got %T", field, v)
			}
		case schema.OptDefault:
			if v == nil {
				continue
			}
			if _, ok := schema.AsNumber(v); !ok {
				return syncerr.Newf(syncerr.CategoryDefinition, syncerr.CodeNonNumeric,
					"field %q: non-numeric defaults unsupported (got %v)", field, v)
			}
		default:
			return syncerr.Newf(syncerr.CategoryDefinition, syncerr.CodeInvalidOption,
				"field %q: unknown option %q", field, k)
		}
	}
	return nil
}

func asDefinitionError(err error, table string) error {
	if syncerr.GetCategory(err) != "" {
		return err
	}
	return syncerr.Wrap(syncerr.CategoryDefinition, syncerr.CodeRoutineFailed,
		"definition routine failed", err).ForTable(table)
}
