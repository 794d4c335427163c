package api

import (
	"errors"
	"io"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"schemasync/internal/dsl"
	"schemasync/internal/engine"
)

// maxRuns bounds the run history kept in memory.
const maxRuns = 100

// ErrRunInProgress is returned when a sync is requested while one runs.
var ErrRunInProgress = errors.New("a synchronization run is already in progress")

// Run is the externally visible record of one synchronization.
type Run struct {
	ID            string       `json:"id"`
	State         engine.State `json:"state"`
	Error         string       `json:"error,omitempty"`
	ErrorCategory string       `json:"error_category,omitempty"`
	Actions       int          `json:"actions"`
	Trigger       string       `json:"trigger"`
	StartedAt     time.Time    `json:"started_at"`
	FinishedAt    *time.Time   `json:"finished_at,omitempty"`
}

// Storage holds the loaded schema files and the run history.
type Storage struct {
	mu        sync.RWMutex
	SchemaDir string
	Docs      []*dsl.Document
	runs      map[string]*Run
	order     []string
	active    string
	pending   string // trigger of a run requested while active was set
	entropy   io.Reader
}

func NewStorage(schemaDir string, docs []*dsl.Document) *Storage {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Storage{
		SchemaDir: schemaDir,
		Docs:      docs,
		runs:      make(map[string]*Run),
		entropy:   ulid.Monotonic(src, 0),
	}
}

// newID must be called with mu held: the monotonic entropy source is not
// safe for concurrent use.
func (s *Storage) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// Definitions snapshots the current schema files as engine definitions.
func (s *Storage) Definitions() []engine.Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return dsl.Definitions(s.Docs)
}

// Replace swaps in a freshly loaded set of schema files.
func (s *Storage) Replace(dir string, docs []*dsl.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SchemaDir = dir
	s.Docs = docs
}

func (s *Storage) Snapshot() (string, []*dsl.Document) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.SchemaDir, s.Docs
}

// begin registers a new run unless one is active. With queue set, a
// refused request is remembered and handed back by finish.
func (s *Storage) begin(trigger string, queue bool) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != "" {
		if queue {
			s.pending = trigger
		}
		return nil, ErrRunInProgress
	}
	r := &Run{
		ID:        s.newID(),
		State:     engine.StateIdle,
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
	}
	s.runs[r.ID] = r
	s.order = append(s.order, r.ID)
	if len(s.order) > maxRuns {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
	s.active = r.ID
	return r, nil
}

func (s *Storage) update(id string, fn func(r *Run)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[id]; ok {
		fn(r)
	}
}

// finish records the outcome and frees the active slot. It returns the
// trigger of a queued request, if any, clearing it.
func (s *Storage) finish(id string, fn func(r *Run)) (next string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[id]; ok {
		fn(r)
	}
	if s.active == id {
		s.active = ""
		next, s.pending = s.pending, ""
	}
	return next
}

// Run returns a copy of the run with id.
func (s *Storage) Run(id string) (Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return Run{}, false
	}
	return *r, true
}

// Runs lists runs newest first.
func (s *Storage) Runs() []Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Run, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// Active returns the id of the running sync, or "".
func (s *Storage) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}
