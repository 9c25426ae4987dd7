// Package metrics holds the Prometheus collectors for timebill. Collectors
// register on the default registry, which the API exposes at /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "timebill"

// ─── Timer ──────────────────────────────────────────────────────────────────

var TimerStarted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "timer",
	Name:      "started_total",
	Help:      "Total timers started.",
})

var TimerStopped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "timer",
	Name:      "stopped_total",
	Help:      "Total timers stopped.",
})

var TimerStartConflicts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "timer",
	Name:      "start_conflicts_total",
	Help:      "Timer starts rejected because a timer was already running.",
})

// ─── Entries ────────────────────────────────────────────────────────────────

var EntriesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "entries",
	Name:      "created_total",
	Help:      "Time entries created, by source (timer, manual, duration).",
}, []string{"source"})

// ─── Invoices ───────────────────────────────────────────────────────────────

var InvoicesGenerated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "invoices",
	Name:      "generated_total",
	Help:      "Invoices generated.",
})

var InvoiceNumberRetries = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "invoices",
	Name:      "number_retries_total",
	Help:      "Invoice generations retried after an invoice number collision.",
})

var InvoiceStatusChanges = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "invoices",
	Name:      "status_changes_total",
	Help:      "Invoice status changes, by new status.",
}, []string{"status"})

var InvoicesDeleted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "invoices",
	Name:      "deleted_total",
	Help:      "Invoices soft-deleted.",
})

// ─── HTTP ───────────────────────────────────────────────────────────────────

var HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency by method, route pattern, and status.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route", "status"})

// Instrument records request latency under the matched chi route pattern so
// ids in paths do not explode label cardinality.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
