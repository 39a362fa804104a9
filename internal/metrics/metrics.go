package metrics

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "generator_events_published_total",
		Help: "Total telemetry events published to the broker",
	})

	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "generator_publish_failures_total",
		Help: "Total events dropped after a publish failure",
	})

	EventsConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_events_consumed_total",
		Help: "Total telemetry events decoded from the stream",
	})

	DecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_decode_failures_total",
		Help: "Total malformed payloads skipped",
	})

	AnomaliesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_anomalies_detected_total",
		Help: "Total anomaly records emitted, by type",
	}, []string{"type"})

	FlushSuccess = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_flush_success_total",
		Help: "Total batch flushes committed to storage",
	})

	FlushFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_flush_failures_total",
		Help: "Total batch flushes discarded after a storage failure",
	})

	FlushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_flush_duration_seconds",
		Help:    "Storage flush duration",
		Buckets: prometheus.DefBuckets,
	})

	Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supervisor_reconnects_total",
		Help: "Total reconnect cycles, by collaborator",
	}, []string{"target"})
)

// Router serves /metrics and /healthz for the process.
func Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return r
}
