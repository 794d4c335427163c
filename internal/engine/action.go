package engine

import (
	"context"
	"fmt"
	"strings"

	"schemasync/internal/schema"
)

// Kind tags an action variant.
type Kind string

const (
	KindCreateTable Kind = "create_table"
	KindCreateField Kind = "create_field"
	KindAlterField  Kind = "alter_field"
	KindCreateIndex Kind = "create_index"
	KindDropIndex   Kind = "drop_index"
)

// Action is one structural change. Each action is applied with exactly one
// adapter call and carries everything that call needs.
type Action interface {
	Kind() Kind
	TableName() string
	String() string
	apply(ctx context.Context, a Adapter, db DB) error
}

type CreateTable struct {
	Table  string
	Fields []schema.Field
}

type CreateField struct {
	Table string
	Field schema.Field
}

type AlterField struct {
	Table string
	Field schema.Field
}

type CreateIndex struct {
	Table string
	Index schema.Index
}

// DropIndex only carries the name of the index being replaced.
type DropIndex struct {
	Table string
	Name  string
}

func (CreateTable) Kind() Kind { return KindCreateTable }
func (CreateField) Kind() Kind { return KindCreateField }
func (AlterField) Kind() Kind  { return KindAlterField }
func (CreateIndex) Kind() Kind { return KindCreateIndex }
func (DropIndex) Kind() Kind   { return KindDropIndex }

func (c CreateTable) TableName() string { return c.Table }
func (c CreateField) TableName() string { return c.Table }
func (c AlterField) TableName() string  { return c.Table }
func (c CreateIndex) TableName() string { return c.Table }
func (c DropIndex) TableName() string   { return c.Table }

func (c CreateTable) String() string {
	names := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		names = append(names, f.Name+" "+f.Type)
	}
	return fmt.Sprintf("create table %s (%s)", c.Table, strings.Join(names, ", "))
}

func (c CreateField) String() string {
	return fmt.Sprintf("add field %s.%s %s", c.Table, c.Field.Name, c.Field.Type)
}

func (c AlterField) String() string {
	return fmt.Sprintf("alter field %s.%s %s", c.Table, c.Field.Name, c.Field.Type)
}

func (c CreateIndex) String() string {
	u := ""
	if c.Index.Unique {
		u = "unique "
	}
	return fmt.Sprintf("create %sindex %s on %s(%s)", u, c.Index.Name, c.Table, strings.Join(c.Index.Fields, ", "))
}

func (c DropIndex) String() string {
	return fmt.Sprintf("drop index %s on %s", c.Name, c.Table)
}

func (c CreateTable) apply(ctx context.Context, a Adapter, db DB) error {
	return a.CreateTable(ctx, db, c.Table, c.Fields)
}

func (c CreateField) apply(ctx context.Context, a Adapter, db DB) error {
	return a.CreateField(ctx, db, c.Table, c.Field)
}

func (c AlterField) apply(ctx context.Context, a Adapter, db DB) error {
	return a.AlterField(ctx, db, c.Table, c.Field)
}

func (c CreateIndex) apply(ctx context.Context, a Adapter, db DB) error {
	return a.CreateIndex(ctx, db, c.Table, c.Index)
}

func (c DropIndex) apply(ctx context.Context, a Adapter, db DB) error {
	return a.DropIndex(ctx, db, c.Table, c.Name)
}
