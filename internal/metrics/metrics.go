// Package metrics exposes Courier's Prometheus instruments. A single Metrics
// value implements the storage MetricsHook, the subscription Observer and
// the store's ArchiverHook so every layer reports into one registry.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rzbill/courier/internal/envelope"
	"github.com/rzbill/courier/internal/subscriptions"
)

const namespace = "courier"

// Metrics holds every collector. The zero value is not usable; call New.
type Metrics struct {
	reg *prometheus.Registry

	storageWrite   prometheus.Histogram
	storageRead    prometheus.Histogram
	batchCommit    prometheus.Histogram
	batchOps       prometheus.Counter
	batchBytes     prometheus.Counter
	published      prometheus.Counter
	publishBatches prometheus.Counter
	queries        *prometheus.CounterVec
	subsActive     *prometheus.GaugeVec
	subsClosed     *prometheus.CounterVec
	backpressure   prometheus.Counter
	delivered      prometheus.Counter
	trimmed        prometheus.Counter
}

// New builds the collectors on a private registry, including Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		storageWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "storage", Name: "write_seconds",
			Help: "Latency of single-key storage writes.", Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		storageRead: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "storage", Name: "read_seconds",
			Help: "Latency of point reads.", Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14),
		}),
		batchCommit: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "storage", Name: "batch_commit_seconds",
			Help: "Latency of batch commits.", Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		batchOps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "storage", Name: "batch_ops_total",
			Help: "Operations committed in batches.",
		}),
		batchBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "storage", Name: "batch_bytes_total",
			Help: "Bytes committed in batches.",
		}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "published_envelopes_total",
			Help: "Envelopes durably appended.",
		}),
		publishBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "publish_requests_total",
			Help: "Successful Publish calls.",
		}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "queries_total",
			Help: "Queries by kind and outcome.",
		}, []string{"kind", "outcome"}),
		subsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "subscriptions", Name: "active",
			Help: "Live subscriptions by kind (topics or all).",
		}, []string{"kind"}),
		subsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "subscriptions", Name: "closed_total",
			Help: "Subscriptions that reached a terminal state.",
		}, []string{"state"}),
		backpressure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "subscriptions", Name: "backpressure_total",
			Help: "Subscriptions closed because their queue was full.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "subscriptions", Name: "delivered_total",
			Help: "Envelopes enqueued to subscriptions.",
		}),
		trimmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "retention", Name: "deleted_total",
			Help: "Envelopes removed by retention.",
		}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.storageWrite, m.storageRead, m.batchCommit, m.batchOps, m.batchBytes,
		m.published, m.publishBatches, m.queries,
		m.subsActive, m.subsClosed, m.backpressure, m.delivered, m.trimmed,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ObserveWrite(elapsed time.Duration, _ int) {
	m.storageWrite.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRead(elapsed time.Duration, _ int) {
	m.storageRead.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int) {
	m.batchCommit.Observe(elapsed.Seconds())
	m.batchOps.Add(float64(numOps))
	m.batchBytes.Add(float64(bytes))
}

// ObservePublish counts one successful Publish of n envelopes.
func (m *Metrics) ObservePublish(n int) {
	m.publishBatches.Inc()
	m.published.Add(float64(n))
}

// ObserveQuery counts a query of kind "query" or "batch".
func (m *Metrics) ObserveQuery(kind string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, envelope.ErrInvalidArgument):
		outcome = "invalid"
	default:
		outcome = "error"
	}
	m.queries.WithLabelValues(kind, outcome).Inc()
}

func kindLabel(all bool) string {
	if all {
		return "all"
	}
	return "topics"
}

func (m *Metrics) Opened(all bool) { m.subsActive.WithLabelValues(kindLabel(all)).Inc() }

func (m *Metrics) Closed(all bool, state subscriptions.State, err error) {
	m.subsActive.WithLabelValues(kindLabel(all)).Dec()
	m.subsClosed.WithLabelValues(state.String()).Inc()
	if errors.Is(err, envelope.ErrBackpressureExceeded) {
		m.backpressure.Inc()
	}
}

func (m *Metrics) Delivered(n int) { m.delivered.Add(float64(n)) }

func (m *Metrics) EmitTrimRange(_ string, deleted int, _ envelope.Cursor) {
	m.trimmed.Add(float64(deleted))
}
