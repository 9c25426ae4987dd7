package api

import "net/http"

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.reports.Summary(r.Context(), ownerFrom(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
