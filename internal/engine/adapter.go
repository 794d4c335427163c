package engine

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"schemasync/internal/schema"
	"schemasync/internal/syncerr"
)

// DB is the connection an adapter works against. *sql.DB, *sql.Conn and
// *sql.Tx all satisfy it.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Adapter is the backend specific half of a run. Each action maps to one
// DDL call.
type Adapter interface {
	ExtractSchema(ctx context.Context, db DB) (*schema.Schema, error)
	CreateTable(ctx context.Context, db DB, name string, fields []schema.Field) error
	CreateField(ctx context.Context, db DB, table string, f schema.Field) error
	// AlterField must fail with an UNSUPPORTED_OPERATION error unless the
	// adapter can apply the change without touching stored data.
	AlterField(ctx context.Context, db DB, table string, f schema.Field) error
	CreateIndex(ctx context.Context, db DB, table string, idx schema.Index) error
	DropIndex(ctx context.Context, db DB, table, name string) error
	TypeMatches(current, desired string) bool
}

// Registry maps backend kinds ("postgresql", "sqlite3", ...) to adapters.
// Build one at process start and pass it down.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: map[string]Adapter{}}
}

// Register adds or replaces the adapter for kind.
func (r *Registry) Register(kind string, a Adapter) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[kind] = a
	return r
}

// Lookup returns the adapter for kind or a CONFIGURATION error.
func (r *Registry) Lookup(kind string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[kind]
	if !ok {
		return nil, syncerr.Newf(syncerr.CategoryConfiguration, syncerr.CodeUnknownBackend,
			"unknown db type: %q", kind)
	}
	return a, nil
}

// Kinds lists the registered backend kinds in lexical order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
