package webhook

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

const maxBodySize = 1 << 20

// CORS headers on every webhook response
var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "authorization, x-client-info, apikey, content-type, x-vapi-secret",
	"Access-Control-Allow-Methods": "POST, OPTIONS",
}

// Handler serves the webhook endpoint
type Handler struct {
	correlator *Correlator
}

// NewHandler creates the HTTP handler for c
func NewHandler(c *Correlator) *Handler {
	return &Handler{correlator: c}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		L_debug("webhook: write response failed", "error", err)
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for k, v := range corsHeaders {
		w.Header().Set(k, v)
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			L_error("webhook: panic", "panic", rec)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fmt.Sprint(rec)})
		}
	}()

	start := time.Now()
	var req Request
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		L_warn("webhook: bad body", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	msg := req.Message
	L_debug("webhook: received", "type", msg.Type, "call", callID(msg.Call))

	ctx := r.Context()
	h.correlator.Announce(ctx, msg.Call)

	switch msg.Type {
	case TypeToolCalls:
		toolCalls, err := msg.ParseToolCalls()
		if err != nil {
			L_error("webhook: no tool calls in message", "error", err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		L_info("webhook: processing tool calls", "count", len(toolCalls), "call", callID(msg.Call))
		results := h.correlator.HandleToolCalls(ctx, msg.Call, toolCalls)
		writeJSON(w, http.StatusOK, Response{Results: results})
		L_debug("webhook: tool calls answered", "count", len(results), "elapsed", time.Since(start))
		return
	case TypeStatusUpdate:
		status := ""
		if msg.Call != nil {
			status = msg.Call.Status
		}
		L_info("webhook: call status", "call", callID(msg.Call), "status", status)
	case TypeTranscript:
		L_debug("webhook: transcript", "role", msg.Role, "text", msg.Transcript)
	default:
		L_debug("webhook: ignored message", "type", msg.Type)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func callID(c *Call) string {
	if c == nil {
		return ""
	}
	return c.ID
}
