package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"zoocal/internal/config"
	appLog "zoocal/internal/log"
	"zoocal/internal/metrics"
	"zoocal/internal/model"
)

// DefinitionSource supplies the current event definitions.
type DefinitionSource interface {
	Definitions() ([]model.EventDefinition, error)
}

// Server provides the HTTP API: expanded events, static datasets, QR codes,
// greetings, health and metrics.
type Server struct {
	cfg     *config.Config
	defs    DefinitionSource
	metrics *metrics.Metrics
	loc     *time.Location
	mux     *http.ServeMux
	cache   *expansionCache

	// now is swapped in tests.
	now func() time.Time
}

// NewServer constructs a new Server. m may be nil to disable metrics.
func NewServer(cfg *config.Config, defs DefinitionSource, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:     cfg,
		defs:    defs,
		metrics: m,
		loc:     cfg.Location(),
		mux:     http.NewServeMux(),
		now:     time.Now,
	}
	if _, ok := defs.(versionedSource); ok {
		s.cache = newExpansionCache()
	}
	s.registerRoutes()
	return s
}

// Handler returns the mux wrapped in request logging and metrics, plus
// basic auth and per-client rate limiting when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", s.cfg.Listen)
		h = s.basicAuthMiddleware(h)
	}
	if s.cfg.RateLimitPerMin > 0 {
		h = s.rateLimitMiddleware(h)
	}
	return s.requestLogger(h)
}

// Run serves on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /events", s.handleEvents)
	s.mux.HandleFunc("GET /events.ics", s.handleEventsICS)
	s.mux.HandleFunc("GET /calendar.ics", s.handleCalendarICS)
	s.mux.HandleFunc("GET /news", s.handleDataFile("news.json"))
	s.mux.HandleFunc("GET /animals", s.handleDataFile("animals.json"))
	s.mux.HandleFunc("GET /qr_code", s.handleQRCode)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /{name}", s.handleGreeting)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured with both
// a username and a password.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="zoocal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
