package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apductl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "apductl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apductl",
			Subsystem: "dispatch",
			Name:      "frames_total",
			Help:      "Received command frames by handler and outcome.",
		},
		[]string{"handler", "outcome"},
	)
	handlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "apductl",
			Subsystem: "dispatch",
			Name:      "handler_duration_seconds",
			Help:      "Handler execution time in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"handler"},
	)
	resetsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "apductl",
			Subsystem: "supervisor",
			Name:      "transport_resets_total",
			Help:      "Transport resets that forced a channel bring-up.",
		},
	)
	innerFaultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apductl",
			Subsystem: "supervisor",
			Name:      "inner_faults_total",
			Help:      "Faults that restarted the main cycle.",
		},
		[]string{"reason"},
	)
	userWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "apductl",
			Subsystem: "supervisor",
			Name:      "user_wait_seconds",
			Help:      "Time spent suspended waiting for a user decision.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300},
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, framesTotal, handlerDuration, resetsTotal, innerFaultsTotal, userWait)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// RecordFrame counts one dispatched or rejected frame. handler is empty for
// frames rejected before lookup.
func RecordFrame(handler, outcome string, duration time.Duration) {
	RegisterMetrics()
	if handler == "" {
		handler = "none"
	}
	framesTotal.WithLabelValues(handler, outcome).Inc()
	if duration > 0 {
		handlerDuration.WithLabelValues(handler).Observe(duration.Seconds())
	}
}

func RecordReset() {
	RegisterMetrics()
	resetsTotal.Inc()
}

func RecordInnerFault(reason string) {
	RegisterMetrics()
	innerFaultsTotal.WithLabelValues(reason).Inc()
}

func RecordUserWait(duration time.Duration) {
	RegisterMetrics()
	userWait.Observe(duration.Seconds())
}
