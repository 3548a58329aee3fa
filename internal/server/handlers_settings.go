package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/oakbyte/labpanel/internal/config"
)

// settingsRequest mirrors the config shape. The token secret is accepted on
// input but never echoed back; an omitted secret on update keeps the
// current one.
type settingsRequest struct {
	Proxmox *struct {
		BaseURL             string `json:"base_url"`
		User                string `json:"user"`
		TokenID             string `json:"token_id"`
		TokenSecret         string `json:"token_secret"`
		TLSSkipVerify       bool   `json:"tls_skip_verify"`
		TLSCACertPath       string `json:"tls_ca_cert"`
		PollIntervalSeconds int    `json:"poll_interval_seconds"`
	} `json:"proxmox"`
	Docker *struct {
		SocketPath          string `json:"socket_path"`
		PollIntervalSeconds int    `json:"poll_interval_seconds"`
		StopGraceSeconds    int    `json:"stop_grace_seconds"`
	} `json:"docker"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	cfg := s.store.Current()
	if cfg == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"configured": false})
		return
	}
	red := cfg.Redacted()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"configured": true,
		"proxmox": map[string]interface{}{
			"base_url":              red.Proxmox.BaseURL,
			"user":                  red.Proxmox.User,
			"token_id":              red.Proxmox.TokenID,
			"token_secret":          red.Proxmox.TokenSecret,
			"tls_skip_verify":       red.Proxmox.TLSSkipVerify,
			"tls_ca_cert":           red.Proxmox.TLSCACertPath,
			"poll_interval_seconds": red.Proxmox.PollIntervalSeconds,
		},
		"docker": map[string]interface{}{
			"socket_path":           red.Docker.SocketPath,
			"poll_interval_seconds": red.Docker.PollIntervalSeconds,
			"stop_grace_seconds":    red.Docker.StopGraceSeconds,
		},
		"auth": map[string]interface{}{"mode": red.Auth.Mode},
	})
}

// handleUpdateSettings applies a reconfiguration: the new config is
// validated and persisted, then swapped in atomically and the backend
// clients rebuilt from it. A client mid-poll keeps the config it started
// with; nothing observes a half-updated credential set.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Build the candidate from a copy of the current config so partial
	// updates and first-time setup both work.
	var next config.Config
	if cur := s.store.Current(); cur != nil {
		next = *cur
	}

	if req.Proxmox != nil {
		p := req.Proxmox
		if p.BaseURL != "" {
			next.Proxmox.BaseURL = p.BaseURL
		}
		if p.User != "" {
			next.Proxmox.User = p.User
		}
		if p.TokenID != "" {
			next.Proxmox.TokenID = p.TokenID
		}
		if p.TokenSecret != "" && p.TokenSecret != config.RedactedPlaceholder {
			next.Proxmox.TokenSecret = p.TokenSecret
		}
		next.Proxmox.TLSSkipVerify = p.TLSSkipVerify
		next.Proxmox.TLSCACertPath = p.TLSCACertPath
		if p.PollIntervalSeconds > 0 {
			next.Proxmox.PollIntervalSeconds = p.PollIntervalSeconds
		}
	}
	if req.Docker != nil {
		dk := req.Docker
		if dk.SocketPath != "" {
			next.Docker.SocketPath = dk.SocketPath
		}
		if dk.PollIntervalSeconds > 0 {
			next.Docker.PollIntervalSeconds = dk.PollIntervalSeconds
		}
		if dk.StopGraceSeconds > 0 {
			next.Docker.StopGraceSeconds = dk.StopGraceSeconds
		}
	}

	if err := s.store.Replace(&next); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid settings: %v", err))
		return
	}

	if s.rebuild != nil {
		if err := s.rebuild(s.store.Current()); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("rebuilding clients: %v", err))
			return
		}
	}

	s.handleGetSettings(w, r)
}
