// Package metrics exposes Prometheus collectors for the split ledger.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "splitpay",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "splitpay",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "splitpay",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	splitsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "splitpay",
			Subsystem: "splits",
			Name:      "created_total",
			Help:      "Total number of splits created.",
		},
	)

	contributions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "splitpay",
			Subsystem: "splits",
			Name:      "contributions_total",
			Help:      "Total number of accepted contributions.",
		},
	)

	splitsClosed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "splitpay",
			Subsystem: "splits",
			Name:      "closed_total",
			Help:      "Total number of splits fully funded and paid out.",
		},
	)

	splitsCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "splitpay",
			Subsystem: "splits",
			Name:      "cancelled_total",
			Help:      "Total number of splits cancelled by their initiator.",
		},
	)

	refunds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "splitpay",
			Subsystem: "splits",
			Name:      "refunds_total",
			Help:      "Total number of contributor withdrawals paid back.",
		},
	)

	transferFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "splitpay",
			Subsystem: "splits",
			Name:      "transfer_failures_total",
			Help:      "Total number of external asset transfers that failed.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		splitsCreated,
		contributions,
		splitsClosed,
		splitsCancelled,
		refunds,
		transferFailures,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordSplitCreated increments the split creation counter.
func RecordSplitCreated() { splitsCreated.Inc() }

// RecordContribution increments the accepted-contribution counter.
func RecordContribution() { contributions.Inc() }

// RecordSplitClosed increments the funded-and-paid counter.
func RecordSplitClosed() { splitsClosed.Inc() }

// RecordSplitCancelled increments the cancellation counter.
func RecordSplitCancelled() { splitsCancelled.Inc() }

// RecordRefund increments the withdrawal refund counter.
func RecordRefund() { refunds.Inc() }

// RecordTransferFailure increments the failed-transfer counter.
func RecordTransferFailure() { transferFailures.Inc() }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "splits" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/splits"
	}
	if len(parts) == 2 {
		return "/splits/:id"
	}
	return "/splits/:id/" + parts[2]
}
