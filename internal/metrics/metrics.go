// Package metrics holds the prometheus collectors of agencyops.
//
// Collectors live in a private registry so tests can build as many
// instances as they like.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agencyops/internal/eventbus"
	"agencyops/internal/schedule"
)

const namespace = "agencyops"

type Metrics struct {
	reg *prometheus.Registry

	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	TaskRuns      *prometheus.CounterVec
	TaskDuration  *prometheus.HistogramVec
	BucketSkipped *prometheus.CounterVec
	ProbeResults  *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		TaskRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_runs_total",
			Help:      "Scheduled task executions by bucket and result",
		}, []string{"bucket", "result"}),
		TaskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Duration of scheduled task executions in seconds",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"bucket"}),
		BucketSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bucket_skipped_total",
			Help:      "Buckets skipped because they already ran in the current window",
		}, []string{"bucket"}),
		ProbeResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_results_total",
			Help:      "Provider probe outcomes",
		}, []string{"integration", "status"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ObserveHTTP(method, route string, status int, took time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

func (m *Metrics) ObserveProbe(integration, status string) {
	m.ProbeResults.WithLabelValues(integration, status).Inc()
}

// Consume records scheduler events from bus until ctx is done.
func (m *Metrics) Consume(ctx context.Context, bus eventbus.Bus) {
	ch, unsub := bus.Subscribe(64, "task.finished", "bucket.")
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			m.record(e)
		}
	}
}

func (m *Metrics) record(e eventbus.Event) {
	switch e.Type {
	case eventbus.TypeTaskFinished:
		r, ok := e.Data.(schedule.TaskResult)
		if !ok {
			return
		}
		result := "ok"
		switch {
		case r.TimedOut:
			result = "timeout"
		case !r.OK:
			result = "failed"
		}
		m.TaskRuns.WithLabelValues(r.Bucket, result).Inc()
		m.TaskDuration.WithLabelValues(r.Bucket).Observe(r.Took.Seconds())
	case eventbus.TypeBucketSkipped:
		b, ok := e.Data.(schedule.BucketReport)
		if !ok {
			return
		}
		m.BucketSkipped.WithLabelValues(b.Name).Inc()
	}
}
