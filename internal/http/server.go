// Package http provides the HTTP server for the webhook, the realtime
// transport and the status API.
package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/roelfdiedericks/voicenav/internal/metrics"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

// Server represents the HTTP server
type Server struct {
	server      *http.Server
	listener    net.Listener
	rateLimiter *RateLimiter
	apiKey      string
	version     string
	trusted     []*net.IPNet
	wg          sync.WaitGroup

	webhook  http.Handler
	realtime http.Handler
	topics   func() map[string]int
	peers    func() int
	metrics  *metrics.Manager
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Listen       string // Address to listen on (e.g., ":8787", "127.0.0.1:8787")
	APIKey       string // Empty disables the check
	WebhookPath  string
	RealtimePath string
	Version      string

	// TrustedProxies are addresses or CIDRs allowed to set X-Forwarded-For
	TrustedProxies []string
}

// Deps are the handlers and introspection hooks the server exposes
type Deps struct {
	Webhook  http.Handler
	Realtime http.Handler
	Topics   func() map[string]int // subscribers per topic
	Peers    func() int            // connected realtime peers
	Metrics  *metrics.Manager
}

// NewServer creates a new HTTP server instance
func NewServer(cfg *ServerConfig, deps Deps) (*Server, error) {
	if deps.Webhook == nil {
		return nil, fmt.Errorf("http: webhook handler is required")
	}
	L_debug("http: NewServer starting", "listen", cfg.Listen, "webhook", cfg.WebhookPath, "realtime", cfg.RealtimePath)

	listen := cfg.Listen
	if listen == "" {
		listen = "127.0.0.1:8787"
	}
	webhookPath := cfg.WebhookPath
	if webhookPath == "" {
		webhookPath = "/vapi-webhook"
	}
	realtimePath := cfg.RealtimePath
	if realtimePath == "" {
		realtimePath = "/realtime"
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.GetInstance()
	}
	if cfg.APIKey == "" {
		L_warn("http: no api key configured, endpoints are unauthenticated")
	}
	trusted, err := ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	s := &Server{
		rateLimiter: NewRateLimiter(time.Second, time.Minute),
		apiKey:      cfg.APIKey,
		version:     cfg.Version,
		trusted:     trusted,
		webhook:     deps.Webhook,
		realtime:    deps.Realtime,
		topics:      deps.Topics,
		peers:       deps.Peers,
		metrics:     deps.Metrics,
	}

	s.server = &http.Server{
		Addr:              listen,
		Handler:           s.routes(webhookPath, realtimePath),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second, // read calls wait on the page
		IdleTimeout:       120 * time.Second,
	}

	return s, nil
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// routes configures all HTTP routes
func (s *Server) routes(webhookPath, realtimePath string) http.Handler {
	mux := http.NewServeMux()

	// Apply middleware chain: logging -> strip headers -> rate limit -> auth
	wrap := func(h http.HandlerFunc) http.HandlerFunc {
		return s.logRequest(s.stripHeaders(s.rateLimit(s.apiKeyAuth(h))))
	}

	mux.HandleFunc(webhookPath, wrap(s.webhook.ServeHTTP))
	if s.realtime != nil {
		// no request logging wrapper: the hijacked connection outlives it
		mux.HandleFunc(realtimePath, s.stripHeaders(s.rateLimit(s.apiKeyAuth(s.realtime.ServeHTTP))))
	}
	mux.HandleFunc("/api/status", wrap(s.handleStatus))
	mux.HandleFunc("/api/metrics", wrap(s.handleMetrics))

	return mux
}

// Start listens and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("http: listen %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		L_info("http: server starting", "addr", ln.Addr().String())

		err := s.server.Serve(ln)
		if err != nil && err != http.ErrServerClosed {
			L_error("http: server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.server.Addr
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		L_error("http: shutdown error", "error", err)
		return err
	}

	s.wg.Wait()
	L_info("http: server stopped")
	return nil
}

// logRequest wraps an HTTP handler to log requests
func (s *Server) logRequest(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(lw, r)

		s.metrics.RecordDuration("http", strings.TrimPrefix(r.URL.Path, "/"), time.Since(start))
		L_trace("http: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", lw.statusCode,
			"duration", time.Since(start))
	}
}

// loggingResponseWriter wraps ResponseWriter to capture status code
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lw *loggingResponseWriter) WriteHeader(code int) {
	lw.statusCode = code
	lw.ResponseWriter.WriteHeader(code)
}

// stripHeaders removes fingerprinting headers
func (s *Server) stripHeaders(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Del("Server")
		w.Header().Del("X-Powered-By")

		handler(w, r)
	}
}
