package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AngelCh415/perfmerge/internal/models"
)

// Collectors live on a private registry so tests and multiple pipelines do
// not collide on the global one. A nil *Collectors records nothing.
type Collectors struct {
	Registry   *prometheus.Registry
	Runs       *prometheus.CounterVec
	RowsLoaded *prometheus.CounterVec
	Recovered  *prometheus.CounterVec
	Dropped    *prometheus.CounterVec
	Reconciled prometheus.Gauge
	Duration   prometheus.Histogram
}

func NewCollectors() *Collectors {
	c := &Collectors{
		Registry: prometheus.NewRegistry(),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perfmerge_runs_total",
			Help: "Merge runs by outcome.",
		}, []string{"status"}),
		RowsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perfmerge_rows_loaded_total",
			Help: "Rows read per source.",
		}, []string{"source"}),
		Recovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perfmerge_recovered_values_total",
			Help: "Malformed values replaced by a fallback, by kind.",
		}, []string{"kind"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perfmerge_dropped_rows_total",
			Help: "Rows excluded from aggregation.",
		}, []string{"source"}),
		Reconciled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "perfmerge_reconciled_rows",
			Help: "Rows written by the last successful run.",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "perfmerge_run_duration_seconds",
			Help:    "Wall time of merge runs.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	c.Registry.MustRegister(c.Runs, c.RowsLoaded, c.Recovered, c.Dropped, c.Reconciled, c.Duration)
	return c
}

func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})
}

func (c *Collectors) ObserveLoad(source string, rows int) {
	if c == nil {
		return
	}
	c.RowsLoaded.WithLabelValues(source).Add(float64(rows))
}

func (c *Collectors) ObserveDropped(source string, rows int) {
	if c == nil || rows == 0 {
		return
	}
	c.Dropped.WithLabelValues(source).Add(float64(rows))
}

func (c *Collectors) ObserveRun(res *models.RunResult, err error, took time.Duration) {
	if c == nil {
		return
	}
	c.Duration.Observe(took.Seconds())
	if err != nil {
		c.Runs.WithLabelValues("error").Inc()
		return
	}
	c.Runs.WithLabelValues("ok").Inc()
	if res == nil {
		return
	}
	c.Reconciled.Set(float64(res.Rows))
	c.Recovered.WithLabelValues("date").Add(float64(res.Issues.BadDates))
	c.Recovered.WithLabelValues("id").Add(float64(res.Issues.BadIDs))
	c.Recovered.WithLabelValues("number").Add(float64(res.Issues.BadNumbers))
}
