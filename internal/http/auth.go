package http

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

// presentedKey returns the api key a request carries. Browsers cannot set
// headers on websocket upgrades, so the query string is accepted too.
func presentedKey(r *http.Request) string {
	if v := r.Header.Get("X-Vapi-Secret"); v != "" {
		return v
	}
	if v := r.Header.Get("Apikey"); v != "" {
		return v
	}
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return r.URL.Query().Get("apikey")
}

// apiKeyAuth rejects requests without the configured key. Preflight
// requests pass so CORS keeps working.
func (s *Server) apiKeyAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || r.Method == http.MethodOptions {
			handler(w, r)
			return
		}

		clientIP := s.clientIP(r)
		key := presentedKey(r)
		if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			s.rateLimiter.RecordFailure(clientIP)
			s.metrics.RecordFailure("http", "auth", "bad_key")
			L_warn("http: auth failed", "ip", clientIP, "path", r.URL.Path, "keyPresent", key != "")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		s.rateLimiter.ClearFailure(clientIP)
		s.metrics.RecordSuccess("http", "auth")
		handler(w, r)
	}
}

// writeError answers with {"error": msg}. CORS stays open so a browser
// caller can read the failure.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ParseTrustedProxies accepts plain addresses and CIDR ranges
func ParseTrustedProxies(entries []string) ([]*net.IPNet, error) {
	out := make([]*net.IPNet, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if _, n, err := net.ParseCIDR(e); err == nil {
			out = append(out, n)
			continue
		}
		ip := net.ParseIP(e)
		if ip == nil {
			return nil, fmt.Errorf("http: invalid trusted proxy %q", e)
		}
		bits := 128
		if ip.To4() != nil {
			ip, bits = ip.To4(), 32
		}
		out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return out, nil
}

func (s *Server) isTrusted(addr string) bool {
	ip := net.ParseIP(strings.TrimSpace(addr))
	if ip == nil {
		return false
	}
	for _, n := range s.trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// clientIP is the peer address, or when the peer is a trusted proxy, the
// nearest untrusted hop in X-Forwarded-For (then X-Real-IP).
func (s *Server) clientIP(r *http.Request) string {
	remote, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		remote = r.RemoteAddr
	}
	if !s.isTrusted(remote) {
		return remote
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop != "" && !s.isTrusted(hop) {
				return hop
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return remote
}
