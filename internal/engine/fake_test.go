package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"schemasync/internal/schema"
	"schemasync/internal/syncerr"
)

// memAdapter keeps the "database" in memory and records every backend call.
type memAdapter struct {
	mu         sync.Mutex
	state      *schema.Schema
	calls      []string
	extracts   int
	extractErr error
	failOn     map[string]error
	matches    func(current, desired string) bool
}

func newMemAdapter() *memAdapter {
	return &memAdapter{state: schema.New(), failOn: map[string]error{}}
}

func (m *memAdapter) record(call string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	if err, ok := m.failOn[call]; ok {
		return err
	}
	return nil
}

func (m *memAdapter) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *memAdapter) ExtractSchema(_ context.Context, _ DB) (*schema.Schema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extracts++
	if m.extractErr != nil {
		return nil, m.extractErr
	}
	out := schema.New()
	for name, t := range m.state.Tables {
		cp := schema.NewTable(name)
		for fn, f := range t.Fields {
			cp.Fields[fn] = f.Clone()
		}
		for in, ix := range t.Indexes {
			cp.Indexes[in] = ix.Clone()
		}
		out.Add(cp)
	}
	return out, nil
}

func (m *memAdapter) CreateTable(_ context.Context, _ DB, name string, fields []schema.Field) error {
	if err := m.record("create_table " + name); err != nil {
		return err
	}
	t := schema.NewTable(name)
	for _, f := range fields {
		t.Fields[f.Name] = f.Clone()
	}
	m.mu.Lock()
	m.state.Add(t)
	m.mu.Unlock()
	return nil
}

func (m *memAdapter) CreateField(_ context.Context, _ DB, table string, f schema.Field) error {
	if err := m.record("create_field " + table + "." + f.Name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.state.Table(table)
	if t == nil {
		return fmt.Errorf("no such table %s", table)
	}
	t.Fields[f.Name] = f.Clone()
	return nil
}

func (m *memAdapter) AlterField(_ context.Context, _ DB, table string, f schema.Field) error {
	return syncerr.Newf(syncerr.CategoryUnsupported, syncerr.CodeAlterField,
		"can't update field %q yet", f.Name).ForTable(table)
}

func (m *memAdapter) CreateIndex(_ context.Context, _ DB, table string, idx schema.Index) error {
	u := ""
	if idx.Unique {
		u = " unique"
	}
	if err := m.record(fmt.Sprintf("create_index %s.%s(%s)%s", table, idx.Name, strings.Join(idx.Fields, ","), u)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.state.Table(table)
	if t == nil {
		return fmt.Errorf("no such table %s", table)
	}
	t.Indexes[idx.Name] = idx.Clone()
	return nil
}

func (m *memAdapter) DropIndex(_ context.Context, _ DB, table, name string) error {
	if err := m.record("drop_index " + table + "." + name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.state.Table(table); t != nil {
		delete(t.Indexes, name)
	}
	return nil
}

func (m *memAdapter) TypeMatches(current, desired string) bool {
	if m.matches != nil {
		return m.matches(current, desired)
	}
	return strings.EqualFold(current, desired)
}
