package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StageMetrics holds the task counters and duration histogram for one
// processing stage (asr, vision, nlp). Label sets follow the worker
// convention: attempts and durations by (task, channel_id), outcomes by
// (task, outcome, channel_id).
type StageMetrics struct {
	Attempts *prometheus.CounterVec
	Outcomes *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewStageMetrics registers the metric families for a stage on reg.
// Family names follow the `<stage>_task_*` convention.
func NewStageMetrics(reg prometheus.Registerer, stage string) *StageMetrics {
	factory := promauto.With(reg)
	return &StageMetrics{
		Attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_task_attempts_total", stage),
			Help: fmt.Sprintf("%s task attempts", stage),
		}, []string{"task", "channel_id"}),
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_task_outcomes_total", stage),
			Help: fmt.Sprintf("%s task outcomes by status", stage),
		}, []string{"task", "outcome", "channel_id"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    fmt.Sprintf("%s_task_duration_seconds", stage),
			Help:    fmt.Sprintf("%s task duration seconds", stage),
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"task", "channel_id"}),
	}
}

// RecorderMetrics holds supervisor instrumentation.
type RecorderMetrics struct {
	Heartbeats      *prometheus.CounterVec
	LastHeartbeat   *prometheus.GaugeVec
	SegmentsUpserts *prometheus.CounterVec
	LegRestarts     *prometheus.CounterVec
}

// NewRecorderMetrics registers the capture supervisor families on reg.
func NewRecorderMetrics(reg prometheus.Registerer) *RecorderMetrics {
	factory := promauto.With(reg)
	return &RecorderMetrics{
		Heartbeats: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_heartbeats_total",
			Help: "Supervisor heartbeat ticks",
		}, []string{"channel_id"}),
		LastHeartbeat: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "recorder_last_heartbeat_timestamp_seconds",
			Help: "Unix time of the last supervisor heartbeat",
		}, []string{"channel_id"}),
		SegmentsUpserts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_segments_upserted_total",
			Help: "Segments registered by the detector",
		}, []string{"channel_id", "media_type"}),
		LegRestarts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_leg_restarts_total",
			Help: "Capture leg restarts",
		}, []string{"channel_id", "leg"}),
	}
}

// APIMetrics holds HTTP request instrumentation for the read API.
type APIMetrics struct {
	Requests *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
}

// NewAPIMetrics registers the API request families on reg.
func NewAPIMetrics(reg prometheus.Registerer) *APIMetrics {
	factory := promauto.With(reg)
	return &APIMetrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "API requests by method, path and status",
		}, []string{"method", "path", "status"}),
		Latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// ServeMetrics exposes reg on /metrics at the given port in a background
// goroutine. A port of 0 disables the listener; workers use this when no
// *_METRICS_PORT is configured.
func ServeMetrics(reg *prometheus.Registry, port int) *http.Server {
	if port == 0 {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
