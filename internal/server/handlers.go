package server

import (
	"encoding/json"
	"net/http"

	"github.com/oakbyte/labpanel/internal/version"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeTaxonomyError includes the machine-readable reason so the UI can
// distinguish, say, a stale resource from an auth problem.
func writeTaxonomyError(w http.ResponseWriter, status int, reason string, err error) {
	writeJSON(w, status, map[string]string{
		"error":  err.Error(),
		"reason": reason,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.agg.Current()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"version":    version.Version,
		"configured": s.store.Configured(),
		"backends":   snap.Backends,
	})
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agg.Current())
}
