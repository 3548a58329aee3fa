package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/oakbyte/labpanel/internal/backend"
	"github.com/oakbyte/labpanel/internal/dispatcher"
)

type actionRequest struct {
	ResourceID string `json:"resource_id"`
	Verb       string `json:"verb"`
}

func (s *Server) handleSubmitAction(w http.ResponseWriter, r *http.Request) {
	if !s.store.Configured() {
		writeError(w, http.StatusServiceUnavailable, "panel is not configured yet")
		return
	}

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ResourceID == "" {
		writeError(w, http.StatusBadRequest, "resource_id is required")
		return
	}
	verb, err := backend.ParseVerb(req.Verb)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	act, err := s.disp.Submit(req.ResourceID, verb)
	if err != nil {
		var unknown *backend.UnknownResourceError
		if errors.As(err, &unknown) {
			writeTaxonomyError(w, http.StatusNotFound, backend.Reason(err), err)
			return
		}
		writeTaxonomyError(w, http.StatusBadGateway, backend.Reason(err), err)
		return
	}

	// Accepted, not done: the handle is polled for the outcome.
	writeJSON(w, http.StatusAccepted, act)
}

func (s *Server) handleGetAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	act, err := s.disp.Get(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if act == nil {
		writeError(w, http.StatusNotFound, "action not found")
		return
	}
	writeJSON(w, http.StatusOK, act)
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	actions, err := s.disp.Recent(50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if actions == nil {
		actions = []*dispatcher.Action{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"actions": actions,
		"total":   len(actions),
	})
}
