package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andy/timebill/internal/db"
	"github.com/andy/timebill/internal/domain"
	"github.com/andy/timebill/internal/identity"
	"github.com/andy/timebill/internal/render"
	"github.com/andy/timebill/internal/repository"
	"github.com/andy/timebill/internal/service"
)

var t0 = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

type testAPI struct {
	handler http.Handler
	clock   *domain.FixedClock
	client  *domain.Client
	project *domain.Project
}

func setupAPI(t *testing.T) *testAPI {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "timebill.db"), "")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.RunMigrations(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := repository.NewStore(database)
	clock := &domain.FixedClock{T: t0}
	catalog := service.NewCatalogService(store, clock)

	client, err := catalog.AddClient(context.Background(), "u1", "Acme", "", "")
	if err != nil {
		t.Fatalf("add client: %v", err)
	}
	project, err := catalog.AddProject(context.Background(), "u1", "Website", &client.ID, decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("add project: %v", err)
	}

	srv := NewServer(
		service.NewTimerService(store, clock),
		service.NewEntryService(store, clock),
		service.NewInvoiceService(store, clock, render.NewPDFRenderer(), service.InvoiceOptions{}),
		service.NewReportService(store, clock),
		identity.NewHeaderProvider(identity.Config{}),
	)
	srv.SetClock(clock.Now)
	srv.EnableMetrics()

	return &testAPI{handler: srv.Handler(), clock: clock, client: client, project: project}
}

// do sends a request as owner (none when empty) and returns the recorder
func (a *testAPI) do(t *testing.T, owner, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, rd)
	if owner != "" {
		req.Header.Set("X-Owner-ID", owner)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func errorType(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode[map[string]map[string]string](t, w)
	return body["error"]["type"]
}

func TestHealth(t *testing.T) {
	a := setupAPI(t)
	w := a.do(t, "", http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	a := setupAPI(t)
	a.do(t, "u1", http.MethodGet, "/api/timer", nil)

	w := a.do(t, "", http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "timebill_http_request_duration_seconds") {
		t.Error("request histogram missing from /metrics")
	}
}

func TestRequiresOwner(t *testing.T) {
	a := setupAPI(t)
	w := a.do(t, "", http.MethodGet, "/api/timer", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if got := errorType(t, w); got != "unauthorized" {
		t.Errorf("error type = %q", got)
	}
}

func TestTimerFlow(t *testing.T) {
	a := setupAPI(t)

	w := a.do(t, "u1", http.MethodPost, "/api/timer/start", map[string]string{"project_id": a.project.ID})
	if w.Code != http.StatusCreated {
		t.Fatalf("start: expected 201, got %d: %s", w.Code, w.Body)
	}

	w = a.do(t, "u1", http.MethodPost, "/api/timer/start", map[string]string{"project_id": a.project.ID})
	if w.Code != http.StatusConflict || errorType(t, w) != "conflict" {
		t.Fatalf("second start: expected 409 conflict, got %d: %s", w.Code, w.Body)
	}

	a.clock.Advance(125 * time.Second)
	w = a.do(t, "u1", http.MethodGet, "/api/timer", nil)
	status := decode[timerStatusResponse](t, w)
	if !status.Running || status.ElapsedSeconds != 125 {
		t.Errorf("status = %+v", status)
	}

	w = a.do(t, "u1", http.MethodPost, "/api/timer/stop", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stop: expected 200, got %d: %s", w.Code, w.Body)
	}
	entry := decode[domain.TimeEntry](t, w)
	if entry.DurationSeconds == nil || *entry.DurationSeconds != 125 {
		t.Errorf("duration = %v", entry.DurationSeconds)
	}

	w = a.do(t, "u1", http.MethodPost, "/api/timer/stop", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("stop without timer: expected 404, got %d", w.Code)
	}
}

func TestEntriesEndpoints(t *testing.T) {
	a := setupAPI(t)

	w := a.do(t, "u1", http.MethodPost, "/api/entries/manual", map[string]any{
		"project_id":       a.project.ID,
		"start_time":       "2025-03-03T09:00:00Z",
		"duration_seconds": 7200,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("manual: expected 201, got %d: %s", w.Code, w.Body)
	}
	manual := decode[domain.TimeEntry](t, w)
	if manual.EndTime == nil || manual.EndTime.Format(time.RFC3339) != "2025-03-03T11:00:00Z" {
		t.Errorf("end = %v", manual.EndTime)
	}

	w = a.do(t, "u1", http.MethodPost, "/api/entries", map[string]any{
		"project_id": a.project.ID,
		"start_time": "2025-03-04T10:00:00Z",
		"end_time":   "2025-03-04T09:00:00Z",
	})
	if w.Code != http.StatusUnprocessableEntity || errorType(t, w) != "validation" {
		t.Fatalf("end before start: expected 422, got %d: %s", w.Code, w.Body)
	}

	w = a.do(t, "u1", http.MethodPost, "/api/entries", map[string]any{
		"project_id": a.project.ID,
		"start_time": "2025-03-04T09:00:00Z",
		"end_time":   "2025-03-04T10:00:00Z",
		"billable":   false,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body)
	}

	w = a.do(t, "u1", http.MethodGet, "/api/entries?billable=true&end_date=2025-03-03", nil)
	list := decode[listResponse[*domain.TimeEntry]](t, w)
	if len(list.Items) != 1 || list.Items[0].ID != manual.ID || list.Limit != domain.DefaultListLimit {
		t.Fatalf("filtered list = %+v", list)
	}

	w = a.do(t, "u1", http.MethodGet, "/api/entries?limit=501", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("oversized limit: expected 422, got %d", w.Code)
	}
	w = a.do(t, "u1", http.MethodGet, "/api/entries?billable=maybe", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad bool: expected 400, got %d", w.Code)
	}

	w = a.do(t, "u1", http.MethodPatch, "/api/entries/"+manual.ID, map[string]any{
		"description": "standup",
		"reason":      "typo",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d: %s", w.Code, w.Body)
	}

	w = a.do(t, "u1", http.MethodGet, "/api/entries/"+manual.ID+"/history", nil)
	history := decode[[]domain.EntryHistory](t, w)
	if len(history) != 1 || history[0].FieldName != "description" || history[0].ChangeReason != "typo" {
		t.Errorf("history = %+v", history)
	}

	// Other owners see nothing.
	w = a.do(t, "u2", http.MethodGet, "/api/entries/"+manual.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("foreign get: expected 404, got %d", w.Code)
	}

	w = a.do(t, "u1", http.MethodDelete, "/api/entries/"+manual.ID+"?reason=dup", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", w.Code)
	}
	w = a.do(t, "u1", http.MethodGet, "/api/entries/"+manual.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("deleted get: expected 404, got %d", w.Code)
	}
}

func TestInvoiceLifecycle(t *testing.T) {
	a := setupAPI(t)

	var ids []string
	for _, secs := range []int{5400, 7200} {
		w := a.do(t, "u1", http.MethodPost, "/api/entries/manual", map[string]any{
			"project_id":       a.project.ID,
			"start_time":       "2025-03-01T09:00:00Z",
			"duration_seconds": secs,
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("manual: %d %s", w.Code, w.Body)
		}
		ids = append(ids, decode[domain.TimeEntry](t, w).ID)
	}

	w := a.do(t, "u1", http.MethodPost, "/api/invoices/generate", map[string]any{
		"client_id":      a.client.ID,
		"time_entry_ids": ids,
		"issue_date":     "2025-03-03",
		"due_date":       "2025-04-02",
		"tax_rate":       "0.08",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("generate: expected 201, got %d: %s", w.Code, w.Body)
	}
	inv := decode[domain.Invoice](t, w)
	if inv.InvoiceNumber != "INV-001" || !inv.Total.Equal(decimal.RequireFromString("378")) {
		t.Fatalf("invoice = %s total %s", inv.InvoiceNumber, inv.Total)
	}

	w = a.do(t, "u1", http.MethodPost, "/api/invoices/generate", map[string]any{
		"client_id":      a.client.ID,
		"time_entry_ids": ids[:1],
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("regenerate: expected 409, got %d: %s", w.Code, w.Body)
	}

	w = a.do(t, "u1", http.MethodGet, "/api/invoices/"+inv.ID+"/pdf", nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("pdf: got %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")) {
		t.Error("pdf body is not a PDF")
	}

	w = a.do(t, "u1", http.MethodPost, "/api/invoices/"+inv.ID+"/status", map[string]string{"status": "sent"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d: %s", w.Code, w.Body)
	}
	w = a.do(t, "u1", http.MethodPost, "/api/invoices/"+inv.ID+"/status", map[string]string{"status": "void"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown status: expected 422, got %d", w.Code)
	}

	w = a.do(t, "u1", http.MethodPost, "/api/invoices/mark-overdue", map[string]string{"today": "2025-04-03"})
	overdue := decode[markOverdueResponse](t, w)
	if overdue.Count != 1 || overdue.Marked[0].Status != domain.InvoiceStatusOverdue {
		t.Fatalf("mark-overdue = %+v", overdue)
	}

	w = a.do(t, "u1", http.MethodPost, "/api/invoices/"+inv.ID+"/status", map[string]string{"status": "paid"})
	if w.Code != http.StatusOK {
		t.Fatalf("paid: expected 200, got %d", w.Code)
	}

	w = a.do(t, "u1", http.MethodPatch, "/api/invoices/"+inv.ID, map[string]string{"notes": "late"})
	if w.Code != http.StatusConflict {
		t.Fatalf("notes on paid: expected 409, got %d", w.Code)
	}
	w = a.do(t, "u1", http.MethodDelete, "/api/invoices/"+inv.ID, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("delete paid: expected 409, got %d", w.Code)
	}

	w = a.do(t, "u1", http.MethodGet, "/api/invoices?status=paid", nil)
	list := decode[listResponse[*domain.Invoice]](t, w)
	if len(list.Items) != 1 {
		t.Errorf("paid list = %d items", len(list.Items))
	}

	w = a.do(t, "u1", http.MethodGet, "/api/reports/summary", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("summary: expected 200, got %d", w.Code)
	}
}

func TestMalformedJSON(t *testing.T) {
	a := setupAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/timer/start", strings.NewReader("{"))
	req.Header.Set("X-Owner-ID", "u1")
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest || errorType(t, w) != "bad_request" {
		t.Fatalf("expected 400 bad_request, got %d: %s", w.Code, w.Body)
	}
}
