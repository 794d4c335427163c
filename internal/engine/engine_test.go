package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemasync/internal/schema"
	"schemasync/internal/syncerr"
)

func peopleDef(s *SchemaDef) error {
	s.Table("people", func(t *TableDef) error {
		t.Field("id", "integer", schema.Options{schema.OptPrimary: true})
		return nil
	})
	return nil
}

func TestCreatesTableOnEmptyDatabase(t *testing.T) {
	ad := newMemAdapter()

	actions, err := New(ad, nil).Plan(context.Background(), peopleDef)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, CreateTable{
		Table: "people",
		Fields: []schema.Field{
			{Name: "id", Type: "integer", Options: schema.Options{schema.OptPrimary: true}},
		},
	}, actions[0])

	require.NoError(t, New(ad, nil).Run(context.Background(), peopleDef))
	assert.Equal(t, []string{"create_table people"}, ad.Calls())

	e := New(ad, nil)
	again, err := e.Plan(context.Background(), peopleDef)
	require.NoError(t, err)
	assert.Empty(t, again)
	require.NotNil(t, e.Current())
	assert.Contains(t, e.Current().Tables, "people")
}

func TestSecondRunIssuesNoCalls(t *testing.T) {
	ad := newMemAdapter()
	def := func(s *SchemaDef) error {
		s.Table("people", func(t *TableDef) error {
			t.Field("id", "integer", schema.Options{schema.OptPrimary: true})
			t.Field("name", "text")
			t.Field("score", "integer", schema.Options{schema.OptDefault: 1})
			t.Index("people_name", []string{"name", "score"}, true)
			return nil
		})
		return nil
	}
	require.NoError(t, New(ad, nil).Run(context.Background(), def))
	first := len(ad.Calls())
	require.NoError(t, New(ad, nil).Run(context.Background(), def))
	assert.Len(t, ad.Calls(), first)
}

func TestCreateTableRunsBeforeEveryOtherAction(t *testing.T) {
	ad := newMemAdapter()
	ad.state.Add(&schema.Table{
		Name:    "accounts",
		Fields:  map[string]schema.Field{"id": {Name: "id", Type: "integer", Options: schema.Options{schema.OptPrimary: true}}},
		Indexes: map[string]schema.Index{},
	})

	first := func(s *SchemaDef) error {
		s.Table("accounts", func(t *TableDef) error {
			t.Field("id", "integer", schema.Options{schema.OptPrimary: true})
			t.Field("owner", "text")
			return nil
		})
		return nil
	}
	second := func(s *SchemaDef) error {
		s.Table("people", func(t *TableDef) error {
			t.Index("people_name", []string{"name"})
			t.Field("id", "integer", schema.Options{schema.OptPrimary: true})
			t.Field("name", "text")
			return nil
		})
		return nil
	}

	require.NoError(t, New(ad, nil).Run(context.Background(), first, second))
	assert.Equal(t, []string{
		"create_table people",
		"create_field accounts.owner",
		"create_index people.people_name(name)",
	}, ad.Calls())
	assert.Len(t, ad.state.Table("people").Fields, 2)
}

func TestIndexChangeIsDropThenCreate(t *testing.T) {
	ad := newMemAdapter()
	ad.state.Add(&schema.Table{
		Name:    "people",
		Fields:  map[string]schema.Field{"name": {Name: "name", Type: "text"}},
		Indexes: map[string]schema.Index{"nameidx": {Name: "nameidx", Fields: []string{"name"}, Unique: true}},
	})
	def := func(s *SchemaDef) error {
		s.Table("people", func(t *TableDef) error {
			t.Field("name", "text")
			t.Index("nameidx", []string{"name"})
			return nil
		})
		return nil
	}

	actions, err := New(ad, nil).Plan(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, []Action{
		DropIndex{Table: "people", Name: "nameidx"},
		CreateIndex{Table: "people", Index: schema.Index{Name: "nameidx", Fields: []string{"name"}, Unique: false}},
	}, actions)
}

func TestIndexFieldOrderMatters(t *testing.T) {
	ad := newMemAdapter()
	ad.state.Add(&schema.Table{
		Name:    "people",
		Fields:  map[string]schema.Field{},
		Indexes: map[string]schema.Index{"ab": {Name: "ab", Fields: []string{"a", "b"}}},
	})
	def := func(s *SchemaDef) error {
		s.Table("people", func(t *TableDef) error {
			t.Index("ab", []string{"b", "a"})
			return nil
		})
		return nil
	}
	require.NoError(t, New(ad, nil).Run(context.Background(), def))
	assert.Equal(t, []string{"drop_index people.ab", "create_index people.ab(b,a)"}, ad.Calls())
}

func TestChangedFieldIsRejected(t *testing.T) {
	cases := map[string]func(t *TableDef){
		"type":    func(t *TableDef) { t.Field("score", "text") },
		"default": func(t *TableDef) { t.Field("score", "integer", schema.Options{schema.OptDefault: 2}) },
		"primary": func(t *TableDef) { t.Field("score", "integer", schema.Options{schema.OptPrimary: true}) },
	}
	for name, decl := range cases {
		t.Run(name, func(t *testing.T) {
			ad := newMemAdapter()
			ad.state.Add(&schema.Table{
				Name: "people",
				Fields: map[string]schema.Field{
					"score": {Name: "score", Type: "integer", Options: schema.Options{schema.OptPrimary: false, schema.OptDefault: int64(1)}},
				},
				Indexes: map[string]schema.Index{},
			})
			def := func(s *SchemaDef) error {
				s.Table("people", func(t *TableDef) error {
					decl(t)
					return nil
				})
				return nil
			}
			e := New(ad, nil)
			err := e.Run(context.Background(), def)
			require.Error(t, err)
			assert.ErrorIs(t, err, syncerr.ErrUnsupported)
			assert.Empty(t, ad.Calls())
			assert.Equal(t, StateFailed, e.State())
		})
	}
}

func TestUndeclaredOptionsAreNotCompared(t *testing.T) {
	ad := newMemAdapter()
	ad.state.Add(&schema.Table{
		Name: "people",
		Fields: map[string]schema.Field{
			"score": {Name: "score", Type: "INTEGER", Options: schema.Options{schema.OptPrimary: false, schema.OptDefault: int64(1)}},
		},
		Indexes: map[string]schema.Index{},
	})
	def := func(s *SchemaDef) error {
		s.Table("people", func(t *TableDef) error {
			t.Field("score", "integer")
			return nil
		})
		return nil
	}
	actions, err := New(ad, nil).Plan(context.Background(), def)
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestTypeMatchesNormalizesNames(t *testing.T) {
	ad := newMemAdapter()
	ad.matches = func(current, desired string) bool {
		return current == "int4" && desired == "serial" || current == desired
	}
	ad.state.Add(&schema.Table{
		Name:    "people",
		Fields:  map[string]schema.Field{"id": {Name: "id", Type: "int4", Options: schema.Options{schema.OptPrimary: true}}},
		Indexes: map[string]schema.Index{},
	})
	def := func(s *SchemaDef) error {
		s.Table("people", func(t *TableDef) error {
			t.Field("id", "serial", schema.Options{schema.OptPrimary: true})
			return nil
		})
		return nil
	}
	actions, err := New(ad, nil).Plan(context.Background(), def)
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestNonNumericDefaultFailsBeforeQueueing(t *testing.T) {
	ad := newMemAdapter()
	def := func(s *SchemaDef) error {
		s.Table("valid", func(t *TableDef) error {
			t.Field("id", "integer")
			return nil
		})
		s.Table("people", func(t *TableDef) error {
			t.Field("id", "integer", schema.Options{schema.OptPrimary: true})
			t.Field("name", "text", schema.Options{schema.OptDefault: "bob"})
			t.Field("age", "integer")
			return nil
		})
		return nil
	}

	e := New(ad, nil)
	err := e.Run(context.Background(), def)
	require.Error(t, err)
	assert.ErrorIs(t, err, syncerr.ErrDefinition)
	assert.Equal(t, syncerr.CodeNonNumeric, syncerr.GetCode(err))
	assert.Empty(t, ad.Calls())
	assert.Equal(t, 0, e.Applied())
}

func TestDefinitionErrorsAbortWholeRun(t *testing.T) {
	valid := func(s *SchemaDef) error {
		s.Table("accounts", func(t *TableDef) error {
			t.Field("id", "integer")
			return nil
		})
		return nil
	}
	cases := map[string]struct {
		def  Definition
		code string
	}{
		"duplicate field": {func(s *SchemaDef) error {
			s.Table("people", func(t *TableDef) error {
				t.Field("id", "integer")
				t.Field("id", "text")
				return nil
			})
			return nil
		}, syncerr.CodeDuplicateField},
		"duplicate index": {func(s *SchemaDef) error {
			s.Table("people", func(t *TableDef) error {
				t.Field("id", "integer")
				t.Index("ix", []string{"id"})
				t.Index("ix", []string{"id"}, true)
				return nil
			})
			return nil
		}, syncerr.CodeDuplicateIndex},
		"table declared again": {func(s *SchemaDef) error {
			s.Table("accounts", func(t *TableDef) error { return nil })
			return nil
		}, syncerr.CodeDuplicateTable},
		"unknown option": {func(s *SchemaDef) error {
			s.Table("people", func(t *TableDef) error {
				t.Field("id", "integer", schema.Options{"nullable": true})
				return nil
			})
			return nil
		}, syncerr.CodeInvalidOption},
		"table routine error": {func(s *SchemaDef) error {
			s.Table("people", func(t *TableDef) error { return errors.New("nope") })
			return nil
		}, syncerr.CodeRoutineFailed},
		"definition error": {func(s *SchemaDef) error {
			return errors.New("nope")
		}, syncerr.CodeRoutineFailed},
		"panic": {func(s *SchemaDef) error {
			panic("boom")
		}, syncerr.CodeRoutineFailed},
		"empty index": {func(s *SchemaDef) error {
			s.Table("people", func(t *TableDef) error {
				t.Index("ix", nil)
				return nil
			})
			return nil
		}, syncerr.CodeInvalidName},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			ad := newMemAdapter()
			e := New(ad, nil)
			err := e.Run(context.Background(), valid, tc.def)
			require.Error(t, err)
			assert.ErrorIs(t, err, syncerr.ErrDefinition)
			assert.Equal(t, tc.code, syncerr.GetCode(err))
			assert.Empty(t, ad.Calls(), "no action may run after a definition error")
			assert.Equal(t, StateFailed, e.State())
		})
	}
}

func TestExecutionFailureStopsQueue(t *testing.T) {
	ad := newMemAdapter()
	ad.failOn["create_field people.name"] = errors.New("permission denied")
	ad.state.Add(&schema.Table{Name: "people", Fields: map[string]schema.Field{}, Indexes: map[string]schema.Index{}})
	def := func(s *SchemaDef) error {
		s.Table("people", func(t *TableDef) error {
			t.Field("id", "integer")
			t.Field("name", "text")
			t.Field("age", "integer")
			return nil
		})
		return nil
	}

	e := New(ad, nil)
	err := e.Run(context.Background(), def)
	require.Error(t, err)
	assert.ErrorIs(t, err, syncerr.ErrExecution)
	assert.Equal(t, "people", err.(*syncerr.Error).Table)
	assert.Equal(t, []string{"create_field people.id", "create_field people.name"}, ad.Calls())
	assert.Equal(t, 1, e.Applied())
	// no rollback: the first column stays
	assert.Contains(t, ad.state.Table("people").Fields, "id")
}

func TestExtractionFailure(t *testing.T) {
	ad := newMemAdapter()
	ad.extractErr = errors.New("connection refused")
	e := New(ad, nil)
	called := false
	err := e.Run(context.Background(), func(s *SchemaDef) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, syncerr.ErrExtraction)
	assert.False(t, called)
	assert.Equal(t, StateFailed, e.State())
}

func TestRunIsSingleShot(t *testing.T) {
	ad := newMemAdapter()
	e := New(ad, nil)
	require.NoError(t, e.Run(context.Background(), peopleDef))
	assert.Equal(t, StateDone, e.State())

	err := e.Run(context.Background(), peopleDef)
	assert.ErrorIs(t, err, ErrAlreadyRun)
	_, err = e.Plan(context.Background(), peopleDef)
	assert.ErrorIs(t, err, ErrAlreadyRun)
	assert.Equal(t, 1, ad.extracts)
}

func TestEmptyQueueIsDone(t *testing.T) {
	ad := newMemAdapter()
	e := New(ad, nil)
	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, StateDone, e.State())
	assert.Empty(t, ad.Calls())
}

func TestSynchronizeUnknownBackend(t *testing.T) {
	ad := newMemAdapter()
	reg := NewRegistry().Register("memory", ad)

	err := Synchronize(context.Background(), reg, "oracle", nil, []Definition{peopleDef})
	require.Error(t, err)
	assert.ErrorIs(t, err, syncerr.ErrConfiguration)
	assert.Equal(t, 0, ad.extracts)

	require.NoError(t, Synchronize(context.Background(), reg, "memory", nil, []Definition{peopleDef}))
	assert.Equal(t, []string{"create_table people"}, ad.Calls())
}

func TestSynchronizeAsyncCompletesOnce(t *testing.T) {
	reg := NewRegistry().Register("memory", newMemAdapter())

	var calls atomic.Int32
	done := make(chan error, 2)
	SynchronizeAsync(context.Background(), reg, "memory", nil, []Definition{peopleDef}, func(err error) {
		calls.Add(1)
		done <- err
	})
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("onComplete not called")
	}
	assert.Equal(t, int32(1), calls.Load())

	SynchronizeAsync(context.Background(), reg, "nope", nil, nil, func(err error) { done <- err })
	assert.ErrorIs(t, <-done, syncerr.ErrConfiguration)
}

type recordingObserver struct {
	actions []Kind
	state   State
	count   int
	err     error
}

func (o *recordingObserver) ActionApplied(a Action, _ time.Duration, _ error) {
	o.actions = append(o.actions, a.Kind())
}

func (o *recordingObserver) RunFinished(state State, actions int, _ time.Duration, err error) {
	o.state, o.count, o.err = state, actions, err
}

func TestObserverSeesActionsAndResult(t *testing.T) {
	obs := &recordingObserver{}
	def := func(s *SchemaDef) error {
		s.Table("people", func(t *TableDef) error {
			t.Field("id", "integer")
			t.Index("people_id", []string{"id"}, true)
			return nil
		})
		return nil
	}
	require.NoError(t, New(newMemAdapter(), nil, WithObserver(obs)).Run(context.Background(), def))
	assert.Equal(t, []Kind{KindCreateTable, KindCreateIndex}, obs.actions)
	assert.Equal(t, StateDone, obs.state)
	assert.Equal(t, 2, obs.count)
	assert.NoError(t, obs.err)
}

func TestRegistryKinds(t *testing.T) {
	reg := NewRegistry().Register("sqlite3", newMemAdapter()).Register("postgresql", newMemAdapter())
	assert.Equal(t, []string{"postgresql", "sqlite3"}, reg.Kinds())
}

func TestQueueDrainsCreationsFirst(t *testing.T) {
	var q Queue
	q.Push(
		CreateField{Table: "a", Field: schema.Field{Name: "x", Type: "int"}},
		CreateTable{Table: "b"},
		DropIndex{Table: "a", Name: "ix"},
		CreateTable{Table: "c"},
	)
	kinds := []string{}
	for _, a := range q.Actions() {
		kinds = append(kinds, a.String())
	}
	assert.Equal(t, []string{
		"create table b ()",
		"create table c ()",
		"add field a.x int",
		"drop index ix on a",
	}, kinds)
	assert.Equal(t, 4, q.Len())
}
