// Package api exposes the time tracking and invoicing operations over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/andy/timebill/internal/identity"
	"github.com/andy/timebill/internal/metrics"
	"github.com/andy/timebill/internal/service"
)

// Server is the timebill HTTP API server.
type Server struct {
	timer    service.TimerService
	entries  service.EntryService
	invoices service.InvoiceService
	reports  service.ReportService
	identity identity.Provider

	clock          func() time.Time
	timeout        time.Duration
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(
	timer service.TimerService,
	entries service.EntryService,
	invoices service.InvoiceService,
	reports service.ReportService,
	id identity.Provider,
) *Server {
	return &Server{
		timer:    timer,
		entries:  entries,
		invoices: invoices,
		reports:  reports,
		identity: id,
		clock:    time.Now,
		timeout:  30 * time.Second,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetTimeout bounds how long a request may run.
func (s *Server) SetTimeout(d time.Duration) { s.timeout = d }

// SetClock replaces the clock used for request defaults such as "today".
func (s *Server) SetClock(now func() time.Time) { s.clock = now }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(metrics.Instrument)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireOwner)

		r.Route("/timer", func(r chi.Router) {
			r.Get("/", s.handleTimerStatus)
			r.Post("/start", s.handleTimerStart)
			r.Post("/stop", s.handleTimerStop)
		})

		r.Route("/entries", func(r chi.Router) {
			r.Get("/", s.handleListEntries)
			r.Post("/", s.handleCreateEntry)
			r.Post("/manual", s.handleCreateManualEntry)
			r.Get("/{id}", s.handleGetEntry)
			r.Patch("/{id}", s.handleUpdateEntry)
			r.Delete("/{id}", s.handleDeleteEntry)
			r.Get("/{id}/history", s.handleEntryHistory)
		})

		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", s.handleListInvoices)
			r.Post("/generate", s.handleGenerateInvoice)
			r.Post("/mark-overdue", s.handleMarkOverdue)
			r.Get("/{id}", s.handleGetInvoice)
			r.Patch("/{id}", s.handleUpdateInvoice)
			r.Delete("/{id}", s.handleDeleteInvoice)
			r.Post("/{id}/status", s.handleSetInvoiceStatus)
			r.Get("/{id}/pdf", s.handleInvoicePDF)
		})

		r.Get("/reports/summary", s.handleSummary)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

type ownerKey struct{}

// requireOwner resolves the request owner or rejects the request.
func (s *Server) requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, err := s.identity.Identify(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, errUnauthorized, "missing or invalid owner identity")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey{}, owner)))
	})
}

func ownerFrom(r *http.Request) string {
	owner, _ := r.Context().Value(ownerKey{}).(string)
	return owner
}
