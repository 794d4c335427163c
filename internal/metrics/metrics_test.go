package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemasync/internal/engine"
	"schemasync/internal/syncerr"
)

func TestObserverCounts(t *testing.T) {
	c := New()
	c.ActionApplied(engine.CreateTable{Table: "people"}, time.Millisecond, nil)
	c.ActionApplied(engine.DropIndex{Table: "people", Name: "ix"}, time.Millisecond, errors.New("boom"))
	c.RunFinished(engine.StateFailed, 1, time.Second,
		syncerr.New(syncerr.CategoryExecution, syncerr.CodeDDLFailed, "boom"))
	c.RunFinished(engine.StateDone, 0, time.Second, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Actions.WithLabelValues("create_table", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Actions.WithLabelValues("drop_index", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Runs.WithLabelValues("failed", "EXECUTION")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Runs.WithLabelValues("done", "")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.LastRunActions))

	n, err := testutil.GatherAndCount(c.Registry(), "schemasync_runs_total", "schemasync_actions_total")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestHandler(t *testing.T) {
	c := New()
	c.RunFinished(engine.StateDone, 2, time.Second, nil)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "schemasync_runs_total")
	assert.Contains(t, rec.Body.String(), "schemasync_last_run_actions 2")
}
