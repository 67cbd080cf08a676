// Package metrics exports harvest run metrics to Prometheus and InfluxDB.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/02loveslollipop/sensorthings-metadata/internal/harvest"
)

const namespace = "sta_harvester"

// Metrics holds the harvest collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal       *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	Records         *prometheus.GaugeVec
	SkippedEntities prometheus.Counter
	PagesFetched    prometheus.Counter
	LastSuccess     prometheus.Gauge
}

// New creates the collectors and registers them with Go runtime metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "harvest",
				Name:      "runs_total",
				Help:      "Harvest runs by outcome (success, partial, failed)",
			},
			[]string{"status"},
		),

		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "harvest",
				Name:      "duration_seconds",
				Help:      "Harvest run duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),

		Records: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "records",
				Name:      "current",
				Help:      "Records of the last completed run by classification (total, created, updated, unchanged)",
			},
			[]string{"class"},
		),

		SkippedEntities: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "harvest",
				Name:      "skipped_entities_total",
				Help:      "Malformed upstream entities skipped",
			},
		),

		PagesFetched: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "harvest",
				Name:      "pages_fetched_total",
				Help:      "Upstream pages fetched",
			},
		),

		LastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "harvest",
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last run that produced a snapshot",
			},
		),
	}

	m.registry.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.Records,
		m.SkippedEntities,
		m.PagesFetched,
		m.LastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Name() string { return "prometheus" }

// Publish implements harvest.Publisher.
func (m *Metrics) Publish(_ context.Context, run harvest.Run) error {
	m.RunsTotal.WithLabelValues(run.Status()).Inc()
	m.RunDuration.Observe(run.Duration.Seconds())
	m.SkippedEntities.Add(float64(run.Skipped))
	m.PagesFetched.Add(float64(run.Pages))

	snap := run.Snapshot
	if snap == nil {
		return nil
	}
	m.LastSuccess.Set(float64(snap.HarvestedAt.Unix()))
	m.Records.WithLabelValues("total").Set(float64(len(snap.Records)))
	if sum := snap.Incremental; sum != nil {
		m.Records.WithLabelValues("created").Set(float64(sum.Created))
		m.Records.WithLabelValues("updated").Set(float64(sum.Updated))
		m.Records.WithLabelValues("unchanged").Set(float64(sum.Unchanged))
	}
	return nil
}
