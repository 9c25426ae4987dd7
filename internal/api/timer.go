package api

import (
	"net/http"

	"github.com/andy/timebill/internal/domain"
)

type startTimerRequest struct {
	ProjectID   string `json:"project_id"`
	Description string `json:"description"`
}

type timerStatusResponse struct {
	Running        bool              `json:"running"`
	Entry          *domain.TimeEntry `json:"entry,omitempty"`
	ElapsedSeconds int64             `json:"elapsed_seconds"`
}

func (s *Server) handleTimerStart(w http.ResponseWriter, r *http.Request) {
	var req startTimerRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.ProjectID == "" {
		writeError(w, http.StatusBadRequest, errBadRequest, "project_id is required")
		return
	}

	entry, err := s.timer.Start(r.Context(), ownerFrom(r), req.ProjectID, req.Description)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleTimerStop(w http.ResponseWriter, r *http.Request) {
	entry, err := s.timer.Stop(r.Context(), ownerFrom(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleTimerStatus(w http.ResponseWriter, r *http.Request) {
	running, err := s.timer.Running(r.Context(), ownerFrom(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := timerStatusResponse{}
	if running != nil {
		resp = timerStatusResponse{Running: true, Entry: running.Entry, ElapsedSeconds: running.ElapsedSeconds}
	}
	writeJSON(w, http.StatusOK, resp)
}
