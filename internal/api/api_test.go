package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemasync/internal/dsl"
	"schemasync/internal/engine"
	"schemasync/internal/metrics"
	"schemasync/internal/schema"
	"schemasync/internal/sqlite"
)

func init() { gin.SetMode(gin.TestMode) }

const peopleDSL = `table people:
  id: integer primary
  name: text
  index people_name(name) unique
`

type fixture struct {
	dir    string
	db     *sql.DB
	server *Server
	router *gin.Engine
}

func newFixture(t *testing.T, reg *engine.Registry, kind string) *fixture {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "people.dsl"), []byte(peopleDSL), 0o644))
	docs, err := dsl.LoadAll(dir)
	require.NoError(t, err)

	db, err := sqlite.Open(context.Background(), ":memory:", time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	if reg == nil {
		reg = engine.NewRegistry().Register(sqlite.Kind, sqlite.New(nil))
		kind = sqlite.Kind
	}
	s := &Server{
		Storage:  NewStorage(dir, docs),
		Registry: reg,
		Kind:     kind,
		DB:       db,
		Metrics:  metrics.New(),
		Timeout:  5 * time.Second,
	}
	return &fixture{dir: dir, db: db, server: s, router: NewRouter(s)}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *fixture) waitRun(t *testing.T, id string) Run {
	t.Helper()
	var r Run
	require.Eventually(t, func() bool {
		rec := f.do(t, http.MethodGet, "/api/runs/"+id, "")
		if rec.Code != http.StatusOK {
			return false
		}
		r = decode[Run](t, rec)
		return r.FinishedAt != nil
	}, 5*time.Second, 10*time.Millisecond)
	return r
}

type planResponse struct {
	Actions []planItem     `json:"actions"`
	Schema  *schema.Schema `json:"schema"`
}

func TestSyncFlow(t *testing.T) {
	f := newFixture(t, nil, "")

	rec := f.do(t, http.MethodGet, "/api/plan", "")
	require.Equal(t, http.StatusOK, rec.Code)
	plan := decode[planResponse](t, rec)
	require.Len(t, plan.Actions, 2)
	require.NotNil(t, plan.Schema)
	assert.Empty(t, plan.Schema.Tables)
	assert.Equal(t, engine.KindCreateTable, plan.Actions[0].Kind)
	assert.Equal(t, engine.KindCreateIndex, plan.Actions[1].Kind)

	rec = f.do(t, http.MethodPost, "/api/sync", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode[map[string]string](t, rec)["id"]
	require.NotEmpty(t, id)

	run := f.waitRun(t, id)
	assert.Equal(t, engine.StateDone, run.State)
	assert.Equal(t, 2, run.Actions)
	assert.Empty(t, run.Error)
	assert.Equal(t, "api", run.Trigger)

	rec = f.do(t, http.MethodGet, "/api/plan", "")
	require.Equal(t, http.StatusOK, rec.Code)
	plan = decode[planResponse](t, rec)
	assert.Empty(t, plan.Actions)
	require.Contains(t, plan.Schema.Tables, "people")
	assert.Contains(t, plan.Schema.Tables["people"].Fields, "name")

	rec = f.do(t, http.MethodGet, "/api/schema", "")
	require.Equal(t, http.StatusOK, rec.Code)
	current := decode[schema.Schema](t, rec)
	require.Contains(t, current.Tables, "people")
	assert.Contains(t, current.Tables["people"].Indexes, "people_name")

	rec = f.do(t, http.MethodGet, "/api/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]Run](t, rec), 1)

	rec = f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `schemasync_runs_total{category="",state="done"} 1`)
}

func TestSyncFailureRecorded(t *testing.T) {
	f := newFixture(t, nil, "")
	_, err := f.db.Exec(`CREATE TABLE people (id integer PRIMARY KEY, name integer)`)
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/plan", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/sync", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	run := f.waitRun(t, decode[map[string]string](t, rec)["id"])
	assert.Equal(t, engine.StateFailed, run.State)
	assert.Equal(t, "UNSUPPORTED_OPERATION", run.ErrorCategory)
	assert.Contains(t, run.Error, "name")
}

// gated blocks extraction until release is closed.
type gated struct {
	*sqlite.Adapter
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gated) ExtractSchema(ctx context.Context, db engine.DB) (*schema.Schema, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.Adapter.ExtractSchema(ctx, db)
}

func TestSyncConflict(t *testing.T) {
	g := &gated{Adapter: sqlite.New(nil), entered: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, engine.NewRegistry().Register("gated", g), "gated")

	rec := f.do(t, http.MethodPost, "/api/sync", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode[map[string]string](t, rec)["id"]
	<-g.entered

	rec = f.do(t, http.MethodPost, "/api/sync", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, id, decode[map[string]string](t, rec)["active"])

	close(g.release)
	assert.Equal(t, engine.StateDone, f.waitRun(t, id).State)
}

func TestQueuedSyncRunsAfterActive(t *testing.T) {
	g := &gated{Adapter: sqlite.New(nil), entered: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, engine.NewRegistry().Register("gated", g), "gated")

	first, err := f.server.QueueSync("watch")
	require.NoError(t, err)
	require.NotEmpty(t, first)
	<-g.entered

	for i := 0; i < 3; i++ {
		id, err := f.server.QueueSync("watch")
		require.NoError(t, err)
		assert.Empty(t, id)
	}

	close(g.release)
	assert.Equal(t, engine.StateDone, f.waitRun(t, first).State)
	require.Eventually(t, func() bool {
		runs := f.server.Storage.Runs()
		return len(runs) == 2 && runs[0].FinishedAt != nil
	}, 5*time.Second, 10*time.Millisecond)

	runs := f.server.Storage.Runs()
	assert.Equal(t, "watch", runs[0].Trigger)
	assert.Equal(t, engine.StateDone, runs[0].State)
	assert.Equal(t, 0, runs[0].Actions)
	assert.Empty(t, f.server.Storage.Active())
}

func TestUnknownBackend(t *testing.T) {
	f := newFixture(t, engine.NewRegistry(), "oracle")

	rec := f.do(t, http.MethodGet, "/api/schema", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "CONFIGURATION", decode[map[string]any](t, rec)["category"])

	rec = f.do(t, http.MethodPost, "/api/sync", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	run := f.waitRun(t, decode[map[string]string](t, rec)["id"])
	assert.Equal(t, engine.StateFailed, run.State)
	assert.Equal(t, "CONFIGURATION", run.ErrorCategory)
}

func TestRunNotFound(t *testing.T) {
	f := newFixture(t, nil, "")
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/runs/nope", "").Code)
}

func TestMeta(t *testing.T) {
	f := newFixture(t, nil, "")

	rec := f.do(t, http.MethodGet, "/api/meta", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]metaTableListItem](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "people", list[0].Table)
	assert.Equal(t, 2, list[0].Fields)
	assert.Equal(t, 1, list[0].Indexes)

	rec = f.do(t, http.MethodGet, "/api/meta/people", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "people", decode[map[string]any](t, rec)["name"])

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/meta/ghost", "").Code)
}

func TestReload(t *testing.T) {
	f := newFixture(t, nil, "")
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "tags.dsl"), []byte("table tags:\n  code: text primary\n"), 0o644))

	rec := f.do(t, http.MethodPost, "/api/admin/reload", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 2, decode[map[string]any](t, rec)["tables"])

	bad := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(bad, "x.dsl"),
		[]byte("table x:\n  id: integer\n  index x_ghost(ghost)\n"), 0o644))
	rec = f.do(t, http.MethodPost, "/api/admin/reload", `{"schema_dir": "`+bad+`"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ghost")

	dir, docs := f.server.Storage.Snapshot()
	assert.Equal(t, f.dir, dir, "failed reload keeps the previous files")
	assert.Len(t, docs, 2)

	rec = f.do(t, http.MethodPost, "/api/admin/reload", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLintEndpoint(t *testing.T) {
	f := newFixture(t, nil, "")
	rec := f.do(t, http.MethodGet, "/api/lint", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"issues": []}`, rec.Body.String())
}

func TestRunHistoryBounded(t *testing.T) {
	s := NewStorage("", nil)
	var first string
	for i := 0; i < maxRuns+5; i++ {
		r, err := s.begin("test", false)
		require.NoError(t, err)
		if i == 0 {
			first = r.ID
		}
		s.finish(r.ID, func(r *Run) { r.State = engine.StateDone })
	}
	assert.Len(t, s.Runs(), maxRuns)
	_, ok := s.Run(first)
	assert.False(t, ok)
}
