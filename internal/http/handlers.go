package http

import (
	"encoding/json"
	"net/http"
	"time"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		L_warn("http: status - wrong method", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	topics := map[string]int{}
	if s.topics != nil {
		topics = s.topics()
	}
	peers := 0
	if s.peers != nil {
		peers = s.peers()
	}

	status := struct {
		Status      string         `json:"status"`
		Version     string         `json:"version"`
		Uptime      string         `json:"uptime"`
		Peers       int            `json:"peers"`
		Subscribers map[string]int `json:"subscribers"`
	}{
		Status:      "ready",
		Version:     s.version,
		Uptime:      s.metrics.Uptime().Round(time.Second).String(),
		Peers:       peers,
		Subscribers: topics,
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		L_debug("http: status encode failed", "error", err)
	}
}

// handleMetrics handles GET /api/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(s.metrics.GetSnapshot()); err != nil {
		L_debug("http: metrics encode failed", "error", err)
	}
}
