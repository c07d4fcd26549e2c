package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ecaptureq"

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is
// valid and records nothing, so components can be built without one.
type Metrics struct {
	registry *prometheus.Registry

	FramesReceived *prometheus.CounterVec
	DecodeErrors   *prometheus.CounterVec
	RecordsIngest  prometheus.Counter
	Diagnostics    *prometheus.CounterVec
	Flushes        *prometheus.CounterVec
	Reconnects     prometheus.Counter

	AppendedBatches prometheus.Counter
	TableRows       prometheus.Gauge
	QueryDuration   *prometheus.HistogramVec
	QueryErrors     prometheus.Counter

	PushedRows prometheus.Counter
	PushPolls  *prometheus.CounterVec
	SinkErrors *prometheus.CounterVec

	StorageOps *prometheus.HistogramVec
}

// New creates a registry with Go and process collectors plus the pipeline
// metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := &Metrics{
		registry: reg,
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "frames_total",
			Help: "Frames read from the event source by frame kind.",
		}, []string{"kind"}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "decode_errors_total",
			Help: "Frames skipped because they could not be decoded.",
		}, []string{"kind"}),
		RecordsIngest: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "records_total",
			Help: "Event records handed to the store.",
		}),
		Diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "diagnostics_total",
			Help: "Heartbeats and process logs received.",
		}, []string{"type"}),
		Flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "flushes_total",
			Help: "Batch flushes by trigger (count, timer or disconnect).",
		}, []string{"reason"}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "reconnects_total",
			Help: "Connection attempts after the first.",
		}),
		AppendedBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "appended_batches_total",
			Help: "Batches appended to the packets table.",
		}),
		TableRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "store", Name: "rows",
			Help: "Rows in the packets table.",
		}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "store", Name: "query_duration_seconds",
			Help:    "Snapshot query latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"status"}),
		QueryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "query_errors_total",
			Help: "Queries rejected by the engine.",
		}),
		PushedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "push", Name: "rows_total",
			Help: "Rows forwarded to output sinks.",
		}),
		PushPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "push", Name: "polls_total",
			Help: "Push poll ticks by outcome (rows, empty, error).",
		}, []string{"outcome"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sink", Name: "errors_total",
			Help: "Emit failures by sink.",
		}, []string{"sink"}),
		StorageOps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "diag_storage", Name: "op_duration_seconds",
			Help:    "Diagnostics store operation latency.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14),
		}, []string{"op"}),
	}
	reg.MustRegister(
		m.FramesReceived, m.DecodeErrors, m.RecordsIngest, m.Diagnostics, m.Flushes, m.Reconnects,
		m.AppendedBatches, m.TableRows, m.QueryDuration, m.QueryErrors,
		m.PushedRows, m.PushPolls, m.SinkErrors, m.StorageOps,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) Frame(kind string) {
	if m != nil {
		m.FramesReceived.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) DecodeError(kind string) {
	if m != nil {
		m.DecodeErrors.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Diagnostic(typ string) {
	if m != nil {
		m.Diagnostics.WithLabelValues(typ).Inc()
	}
}

func (m *Metrics) Flush(reason string, rows int) {
	if m != nil {
		m.Flushes.WithLabelValues(reason).Inc()
		m.RecordsIngest.Add(float64(rows))
	}
}

func (m *Metrics) Reconnect() {
	if m != nil {
		m.Reconnects.Inc()
	}
}

func (m *Metrics) Appended(total uint64) {
	if m != nil {
		m.AppendedBatches.Inc()
		m.TableRows.Set(float64(total))
	}
}

func (m *Metrics) Query(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		m.QueryErrors.Inc()
	}
	m.QueryDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (m *Metrics) Poll(outcome string, rows int) {
	if m != nil {
		m.PushPolls.WithLabelValues(outcome).Inc()
		m.PushedRows.Add(float64(rows))
	}
}

func (m *Metrics) SinkError(sink string) {
	if m != nil {
		m.SinkErrors.WithLabelValues(sink).Inc()
	}
}

// StorageHook adapts the metrics to the Pebble wrapper's observation hook.
type StorageHook struct{ M *Metrics }

func (h StorageHook) ObserveWrite(elapsed time.Duration, _ int) { h.observe("write", elapsed) }
func (h StorageHook) ObserveRead(elapsed time.Duration, _ int)  { h.observe("read", elapsed) }
func (h StorageHook) ObserveBatchCommit(elapsed time.Duration, _ int, _ int) {
	h.observe("commit", elapsed)
}

func (h StorageHook) observe(op string, elapsed time.Duration) {
	if h.M != nil {
		h.M.StorageOps.WithLabelValues(op).Observe(elapsed.Seconds())
	}
}
