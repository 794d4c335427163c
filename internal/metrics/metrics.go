// Package metrics exposes synchronization runs as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"schemasync/internal/engine"
	"schemasync/internal/syncerr"
)

const namespace = "schemasync"

// Collector implements engine.Observer on its own registry.
type Collector struct {
	registry *prometheus.Registry

	Runs            *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	Actions         *prometheus.CounterVec
	ActionDuration  *prometheus.HistogramVec
	LastRunActions  prometheus.Gauge
	LastRunFinished prometheus.Gauge
}

var _ engine.Observer = (*Collector)(nil)

func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Synchronization runs by final state and error category",
		}, []string{"state", "category"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of synchronization runs in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"state"}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Schema actions executed by kind and status",
		}, []string{"kind", "status"}),
		ActionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Duration of individual schema actions in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		LastRunActions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_actions",
			Help:      "Actions applied by the most recent run",
		}),
		LastRunFinished: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_finished_timestamp_seconds",
			Help:      "Unix time the most recent run finished",
		}),
	}
	reg.MustRegister(c.Runs, c.RunDuration, c.Actions, c.ActionDuration, c.LastRunActions, c.LastRunFinished)
	return c
}

func (c *Collector) ActionApplied(a engine.Action, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	kind := string(a.Kind())
	c.Actions.WithLabelValues(kind, status).Inc()
	c.ActionDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (c *Collector) RunFinished(state engine.State, actions int, d time.Duration, err error) {
	category := string(syncerr.GetCategory(err))
	if err != nil && category == "" {
		category = "UNKNOWN"
	}
	c.Runs.WithLabelValues(string(state), category).Inc()
	c.RunDuration.WithLabelValues(string(state)).Observe(d.Seconds())
	c.LastRunActions.Set(float64(actions))
	c.LastRunFinished.SetToCurrentTime()
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
