package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/andy/timebill/internal/domain"
	"github.com/andy/timebill/internal/service"
)

type generateInvoiceRequest struct {
	ClientID     string           `json:"client_id"`
	TimeEntryIDs []string         `json:"time_entry_ids"`
	IssueDate    string           `json:"issue_date"`
	DueDate      string           `json:"due_date"`
	TaxRate      *decimal.Decimal `json:"tax_rate"`
	Notes        string           `json:"notes"`
	PaymentTerms *string          `json:"payment_terms"`
}

type updateInvoiceRequest struct {
	Status       *string          `json:"status"`
	IssueDate    *string          `json:"issue_date"`
	DueDate      *string          `json:"due_date"`
	TaxRate      *decimal.Decimal `json:"tax_rate"`
	Notes        *string          `json:"notes"`
	PaymentTerms *string          `json:"payment_terms"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type markOverdueRequest struct {
	Today string `json:"today"`
}

type markOverdueResponse struct {
	Count   int               `json:"count"`
	Marked  []*domain.Invoice `json:"marked"`
	AsOfDay string            `json:"as_of"`
}

func (s *Server) handleGenerateInvoice(w http.ResponseWriter, r *http.Request) {
	var req generateInvoiceRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.ClientID == "" {
		writeError(w, http.StatusBadRequest, errBadRequest, "client_id is required")
		return
	}

	gen := service.GenerateRequest{
		ClientID:     req.ClientID,
		TimeEntryIDs: req.TimeEntryIDs,
		TaxRate:      req.TaxRate,
		Notes:        req.Notes,
		PaymentTerms: req.PaymentTerms,
	}
	if issue, err := optionalDate("issue_date", &req.IssueDate); err != nil {
		writeServiceError(w, r, err)
		return
	} else if issue != nil {
		gen.IssueDate = *issue
	}
	if due, err := optionalDate("due_date", &req.DueDate); err != nil {
		writeServiceError(w, r, err)
		return
	} else if due != nil {
		gen.DueDate = *due
	}

	invoice, err := s.invoices.Generate(r.Context(), ownerFrom(r), gen)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, invoice)
}

func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	var filter domain.InvoiceFilter
	var err error

	filter.ClientID = queryString(r, "client_id")
	if raw := queryString(r, "status"); raw != nil {
		status, err := domain.ParseInvoiceStatus(*raw)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		filter.Status = &status
	}
	if filter.Offset, err = queryInt(r, "offset"); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		writeServiceError(w, r, err)
		return
	}

	invoices, err := s.invoices.List(r.Context(), ownerFrom(r), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if filter.Limit == 0 {
		filter.Limit = domain.DefaultListLimit
	}
	writeJSON(w, http.StatusOK, listResponse[*domain.Invoice]{Items: invoices, Offset: filter.Offset, Limit: filter.Limit})
}

func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	invoice, err := s.invoices.Get(r.Context(), ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

func (s *Server) handleUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	var req updateInvoiceRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, r, err)
		return
	}

	patch, err := req.toPatch()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	invoice, err := s.invoices.Update(r.Context(), ownerFrom(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

func (req updateInvoiceRequest) toPatch() (domain.InvoicePatch, error) {
	patch := domain.InvoicePatch{
		TaxRate:      req.TaxRate,
		Notes:        req.Notes,
		PaymentTerms: req.PaymentTerms,
	}
	var err error

	if req.Status != nil {
		status, err := domain.ParseInvoiceStatus(*req.Status)
		if err != nil {
			return patch, err
		}
		patch.Status = &status
	}
	if req.IssueDate != nil {
		if patch.IssueDate, err = optionalDate("issue_date", req.IssueDate); err != nil || patch.IssueDate == nil {
			return patch, orRequired(err, "issue_date")
		}
	}
	if req.DueDate != nil {
		if patch.DueDate, err = optionalDate("due_date", req.DueDate); err != nil || patch.DueDate == nil {
			return patch, orRequired(err, "due_date")
		}
	}
	return patch, nil
}

func orRequired(err error, key string) error {
	if err != nil {
		return err
	}
	return malformed("%s cannot be empty", key)
}

func (s *Server) handleSetInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, r, err)
		return
	}

	status, err := domain.ParseInvoiceStatus(req.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	invoice, err := s.invoices.SetStatus(r.Context(), ownerFrom(r), chi.URLParam(r, "id"), status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

func (s *Server) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := s.invoices.Delete(r.Context(), ownerFrom(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInvoicePDF(w http.ResponseWriter, r *http.Request) {
	pdf, invoice, err := s.invoices.RenderPDF(r.Context(), ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", invoice.InvoiceNumber+".pdf"))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}

func (s *Server) handleMarkOverdue(w http.ResponseWriter, r *http.Request) {
	var req markOverdueRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeServiceError(w, r, err)
		return
	}

	today := domain.TruncateDate(s.clock().UTC())
	if req.Today != "" {
		t, err := parseDate("today", req.Today)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		today = t
	}

	marked, err := s.invoices.MarkOverdue(r.Context(), ownerFrom(r), today)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, markOverdueResponse{
		Count:   len(marked),
		Marked:  marked,
		AsOfDay: today.Format(domain.DateLayout),
	})
}
