package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/andy/timebill/internal/domain"
)

type createEntryRequest struct {
	ProjectID   string    `json:"project_id"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Billable    *bool     `json:"billable"`
}

type manualEntryRequest struct {
	ProjectID       string    `json:"project_id"`
	Description     string    `json:"description"`
	StartTime       time.Time `json:"start_time"`
	DurationSeconds int64     `json:"duration_seconds"`
	Billable        *bool     `json:"billable"`
}

type listResponse[T any] struct {
	Items  []T `json:"items"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// billable defaults to true when omitted
func billable(b *bool) bool {
	return b == nil || *b
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.ProjectID == "" || req.StartTime.IsZero() || req.EndTime.IsZero() {
		writeError(w, http.StatusBadRequest, errBadRequest, "project_id, start_time and end_time are required")
		return
	}

	entry, err := s.entries.Create(r.Context(), ownerFrom(r), req.ProjectID, req.Description,
		req.StartTime, req.EndTime, billable(req.Billable))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleCreateManualEntry(w http.ResponseWriter, r *http.Request) {
	var req manualEntryRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.ProjectID == "" || req.StartTime.IsZero() {
		writeError(w, http.StatusBadRequest, errBadRequest, "project_id and start_time are required")
		return
	}

	entry, err := s.entries.CreateFromDuration(r.Context(), ownerFrom(r), req.ProjectID, req.Description,
		req.StartTime, req.DurationSeconds, billable(req.Billable))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	filter, err := entryFilterFromQuery(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	entries, err := s.entries.List(r.Context(), ownerFrom(r), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	// List normalized its own copy; report the page that was applied.
	if filter.Limit == 0 {
		filter.Limit = domain.DefaultListLimit
	}
	writeJSON(w, http.StatusOK, listResponse[*domain.TimeEntry]{Items: entries, Offset: filter.Offset, Limit: filter.Limit})
}

// entryFilterFromQuery reads the list filters. end_date is inclusive.
func entryFilterFromQuery(r *http.Request) (domain.EntryFilter, error) {
	var f domain.EntryFilter
	var err error

	f.ProjectID = queryString(r, "project_id")
	if f.From, err = optionalDate("start_date", queryString(r, "start_date")); err != nil {
		return f, err
	}
	if f.To, err = optionalDate("end_date", queryString(r, "end_date")); err != nil {
		return f, err
	}
	if f.To != nil {
		next := f.To.AddDate(0, 0, 1)
		f.To = &next
	}
	if f.IsBillable, err = queryBool(r, "billable"); err != nil {
		return f, err
	}
	if f.IsInvoiced, err = queryBool(r, "invoiced"); err != nil {
		return f, err
	}
	if f.Offset, err = queryInt(r, "offset"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		return f, err
	}
	return f, nil
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.entries.Get(r.Context(), ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	var patch domain.EntryPatch
	if err := decodeJSON(r, &patch, false); err != nil {
		writeServiceError(w, r, err)
		return
	}

	entry, err := s.entries.Update(r.Context(), ownerFrom(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("reason")
	if err := s.entries.Delete(r.Context(), ownerFrom(r), chi.URLParam(r, "id"), reason); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEntryHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.entries.History(r.Context(), ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}
