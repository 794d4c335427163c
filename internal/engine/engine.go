// Package engine diffs a declared schema against the structure extracted
// from a live database and applies the resulting actions through a backend
// adapter, one at a time.
package engine

import (
	"context"
	"log/slog"
	"time"

	"schemasync/internal/schema"
	"schemasync/internal/syncerr"
)

// State of a run. A run only moves forward.
type State string

const (
	StateIdle       State = "idle"
	StateExtracting State = "extracting_schema"
	StateEvaluating State = "evaluating_definitions"
	StateExecuting  State = "executing_actions"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// ErrAlreadyRun is returned when Run or Plan is called on a used Engine.
var ErrAlreadyRun = syncerr.New(syncerr.CategoryConfiguration, syncerr.CodeAlreadyRun,
	"engine runs are single-shot")

// Observer receives run events, e.g. for metrics. Calls happen on the
// goroutine driving the run.
type Observer interface {
	ActionApplied(a Action, d time.Duration, err error)
	RunFinished(state State, actions int, d time.Duration, err error)
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// Engine owns one synchronization run against one connection.
type Engine struct {
	adapter  Adapter
	db       DB
	logger   *slog.Logger
	observer Observer

	state   State
	current *schema.Schema
	queue   Queue
	applied int
}

func New(adapter Adapter, db DB, opts ...Option) *Engine {
	e := &Engine{
		adapter: adapter,
		db:      db,
		logger:  slog.Default(),
		state:   StateIdle,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) State() State { return e.state }

// Current is the snapshot extracted at the start of the run.
func (e *Engine) Current() *schema.Schema { return e.current }

// Applied is the number of actions that succeeded.
func (e *Engine) Applied() int { return e.applied }

// Run extracts the current schema, evaluates defs in order and applies the
// queued actions sequentially. The first error ends the run; actions that
// already ran stay applied.
func (e *Engine) Run(ctx context.Context, defs ...Definition) (err error) {
	if e.state != StateIdle {
		return ErrAlreadyRun
	}
	start := time.Now()
	defer func() { e.finish(start, err) }()

	if err := e.prepare(ctx, defs); err != nil {
		return err
	}
	return e.execute(ctx)
}

// Plan runs extraction and evaluation only and returns the actions a Run
// would apply, in execution order.
func (e *Engine) Plan(ctx context.Context, defs ...Definition) (actions []Action, err error) {
	if e.state != StateIdle {
		return nil, ErrAlreadyRun
	}
	start := time.Now()
	defer func() { e.finish(start, err) }()

	if err := e.prepare(ctx, defs); err != nil {
		return nil, err
	}
	return e.queue.Actions(), nil
}

func (e *Engine) prepare(ctx context.Context, defs []Definition) error {
	e.transition(StateExtracting)
	current, err := e.adapter.ExtractSchema(ctx, e.db)
	if err != nil {
		if syncerr.GetCategory(err) == "" {
			err = syncerr.Wrap(syncerr.CategoryExtraction, syncerr.CodeCatalogRead, "extract schema", err)
		}
		return err
	}
	if current == nil {
		current = schema.New()
	}
	e.current = current
	e.logger.Debug("schema extracted", "tables", len(current.Tables))

	e.transition(StateEvaluating)
	// actions are only handed to the run queue once every definition passed
	var pending Queue
	sd := newSchemaDef(current, e.adapter.TypeMatches, &pending)
	for i, def := range defs {
		if def == nil {
			continue
		}
		if err := evalDefinition(def, sd); err != nil {
			e.logger.Warn("definition rejected", "definition", i, "error", err)
			return err
		}
	}
	e.queue = pending
	e.logger.Info("definitions evaluated", "definitions", len(defs), "actions", e.queue.Len())
	return nil
}

func evalDefinition(def Definition, sd *SchemaDef) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = syncerr.Newf(syncerr.CategoryDefinition, syncerr.CodeRoutineFailed,
				"definition panicked: %v", r)
		}
	}()
	derr := def(sd)
	if sd.Err() != nil {
		return sd.Err()
	}
	if derr != nil {
		if syncerr.GetCategory(derr) == "" {
			derr = syncerr.Wrap(syncerr.CategoryDefinition, syncerr.CodeRoutineFailed,
				"definition routine failed", derr)
		}
		return derr
	}
	return nil
}

func (e *Engine) execute(ctx context.Context) error {
	e.transition(StateExecuting)
	for i, a := range e.queue.Actions() {
		start := time.Now()
		err := a.apply(ctx, e.adapter, e.db)
		if err != nil {
			err = classifyActionError(a, err)
		}
		if e.observer != nil {
			e.observer.ActionApplied(a, time.Since(start), err)
		}
		if err != nil {
			e.logger.Error("action failed", "index", i, "action", a.String(), "error", err)
			return err
		}
		e.applied++
		e.logger.Info("action applied", "index", i, "action", a.String())
	}
	return nil
}

// classifyActionError keeps adapter categories and files anything else as
// an EXECUTION error bound to the action's table.
func classifyActionError(a Action, err error) error {
	if syncerr.GetCategory(err) != "" {
		return err
	}
	return syncerr.Wrap(syncerr.CategoryExecution, syncerr.CodeDDLFailed, a.String(), err).ForTable(a.TableName())
}

func (e *Engine) finish(start time.Time, err error) {
	if err != nil {
		e.transition(StateFailed)
	} else {
		e.transition(StateDone)
	}
	if e.observer != nil {
		e.observer.RunFinished(e.state, e.applied, time.Since(start), err)
	}
}

func (e *Engine) transition(s State) {
	e.logger.Debug("run state", "from", e.state, "to", s)
	e.state = s
}
