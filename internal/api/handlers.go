package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"schemasync/internal/engine"
	"schemasync/internal/metrics"
	"schemasync/internal/syncerr"
)

// Server wires the HTTP surface to one database and backend kind.
type Server struct {
	Storage  *Storage
	Registry *engine.Registry
	Kind     string
	DB       engine.DB
	Logger   *slog.Logger
	Metrics  *metrics.Collector
	// Timeout bounds extraction and planning requests; zero means none.
	Timeout time.Duration
	// BaseContext outlives requests; async runs are bound to it.
	BaseContext context.Context
}

func (s *Server) log() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Server) baseContext() context.Context {
	if s.BaseContext == nil {
		return context.Background()
	}
	return s.BaseContext
}

func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if s.Timeout > 0 {
		return context.WithTimeout(c.Request.Context(), s.Timeout)
	}
	return context.WithCancel(c.Request.Context())
}

// runObserver keeps a Run record current and forwards to the metrics.
type runObserver struct {
	id      string
	storage *Storage
	next    engine.Observer
}

func (o runObserver) ActionApplied(a engine.Action, d time.Duration, err error) {
	if err == nil {
		o.storage.update(o.id, func(r *Run) { r.Actions++; r.State = engine.StateExecuting })
	}
	if o.next != nil {
		o.next.ActionApplied(a, d, err)
	}
}

func (o runObserver) RunFinished(state engine.State, actions int, d time.Duration, err error) {
	o.storage.update(o.id, func(r *Run) { r.State = state; r.Actions = actions })
	if o.next != nil {
		o.next.RunFinished(state, actions, d, err)
	}
}

// StartSync launches an asynchronous run and returns its id. Only one run
// may be active at a time.
func (s *Server) StartSync(trigger string) (string, error) {
	run, err := s.Storage.begin(trigger, false)
	if err != nil {
		return "", err
	}
	s.launch(run)
	return run.ID, nil
}

// QueueSync is StartSync for callers that must not lose a request: while a
// run is active it returns "" and one more run starts when that run ends.
// Repeated requests during one run collapse into a single follow-up.
func (s *Server) QueueSync(trigger string) (string, error) {
	run, err := s.Storage.begin(trigger, true)
	if errors.Is(err, ErrRunInProgress) {
		s.log().Info("sync queued", "trigger", trigger)
		return "", nil
	}
	if err != nil {
		return "", err
	}
	s.launch(run)
	return run.ID, nil
}

func (s *Server) launch(run *Run) {
	id, trigger := run.ID, run.Trigger
	log := s.log().With("run", id, "trigger", trigger)
	log.Info("sync started")

	var next engine.Observer
	if s.Metrics != nil {
		next = s.Metrics
	}
	obs := runObserver{id: id, storage: s.Storage, next: next}

	engine.SynchronizeAsync(s.baseContext(), s.Registry, s.Kind, s.DB, s.Storage.Definitions(),
		func(err error) {
			now := time.Now().UTC()
			queued := s.Storage.finish(id, func(r *Run) {
				r.FinishedAt = &now
				if err != nil {
					r.State = engine.StateFailed
					r.Error = err.Error()
					r.ErrorCategory = string(syncerr.GetCategory(err))
				} else {
					r.State = engine.StateDone
				}
			})
			if err != nil {
				log.Error("sync failed", "error", err)
			} else {
				log.Info("sync finished")
			}
			if queued != "" {
				if _, err := s.QueueSync(queued); err != nil {
					log.Warn("queued sync not started", "error", err)
				}
			}
		},
		engine.WithLogger(log), engine.WithObserver(obs))
}

// statusFor maps error categories onto HTTP statuses.
func statusFor(err error) int {
	switch syncerr.GetCategory(err) {
	case syncerr.CategoryDefinition, syncerr.CategoryUnsupported:
		return http.StatusUnprocessableEntity
	case syncerr.CategoryExtraction, syncerr.CategoryExecution:
		return http.StatusBadGateway
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func errorBody(err error) gin.H {
	h := gin.H{"error": err.Error()}
	var se *syncerr.Error
	if errors.As(err, &se) {
		h["category"] = se.Category
		h["code"] = se.Code
		if se.Table != "" {
			h["table"] = se.Table
		}
		if len(se.Details) > 0 {
			h["details"] = se.Details
		}
	}
	return h
}

// GET /api/schema
func SchemaHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		adapter, err := s.Registry.Lookup(s.Kind)
		if err != nil {
			c.JSON(statusFor(err), errorBody(err))
			return
		}
		ctx, cancel := s.requestContext(c)
		defer cancel()
		current, err := adapter.ExtractSchema(ctx, s.DB)
		if err != nil {
			c.JSON(statusFor(err), errorBody(err))
			return
		}
		c.JSON(http.StatusOK, current)
	}
}

type planItem struct {
	Kind        engine.Kind `json:"kind"`
	Table       string      `json:"table"`
	Description string      `json:"description"`
}

// GET /api/plan returns the actions a sync would run and the schema they
// were planned against.
func PlanHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		adapter, err := s.Registry.Lookup(s.Kind)
		if err != nil {
			c.JSON(statusFor(err), errorBody(err))
			return
		}
		ctx, cancel := s.requestContext(c)
		defer cancel()
		e := engine.New(adapter, s.DB, engine.WithLogger(s.log()))
		actions, err := e.Plan(ctx, s.Storage.Definitions()...)
		if err != nil {
			c.JSON(statusFor(err), errorBody(err))
			return
		}
		out := make([]planItem, 0, len(actions))
		for _, a := range actions {
			out = append(out, planItem{Kind: a.Kind(), Table: a.TableName(), Description: a.String()})
		}
		c.JSON(http.StatusOK, gin.H{"actions": out, "schema": e.Current()})
	}
}

// POST /api/sync
func SyncHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := s.StartSync("api")
		if errors.Is(err, ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "active": s.Storage.Active()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Header("Location", "/api/runs/"+id)
		c.JSON(http.StatusAccepted, gin.H{"id": id})
	}
}

// GET /api/runs/:id
func RunHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		r, ok := s.Storage.Run(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
			return
		}
		c.JSON(http.StatusOK, r)
	}
}

// GET /api/runs
func RunListHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Storage.Runs())
	}
}
