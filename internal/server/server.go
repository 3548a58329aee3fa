package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/oakbyte/labpanel/internal/aggregator"
	"github.com/oakbyte/labpanel/internal/config"
	"github.com/oakbyte/labpanel/internal/dispatcher"
)

// Rebuilder reconstructs the backend clients from a freshly validated
// config. Called after a settings update; the old clients are dropped, not
// mutated.
type Rebuilder func(cfg *config.Config) error

// Server is the gateway-facing HTTP surface: inventory reads, action
// submission, settings. The web front-end itself lives elsewhere and only
// consumes this API.
type Server struct {
	store   *config.Store
	agg     *aggregator.Aggregator
	disp    *dispatcher.Dispatcher
	rebuild Rebuilder
	http    *http.Server

	sessions *sessionSet
}

// New creates a new Server bound per the service config. When the panel is
// not configured yet, addr falls back to the defaults and most routes
// report 503 until settings are submitted.
func New(store *config.Store, agg *aggregator.Aggregator, disp *dispatcher.Dispatcher, rebuild Rebuilder) *Server {
	s := &Server{
		store:    store,
		agg:      agg,
		disp:     disp,
		rebuild:  rebuild,
		sessions: newSessionSet(),
	}

	bind := config.DefaultBindAddress
	port := config.DefaultPort
	if cfg := store.Current(); cfg != nil {
		bind = cfg.Service.BindAddress
		port = cfg.Service.Port
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/inventory", s.handleInventory)
	mux.HandleFunc("GET /api/inventory/ws", s.handleInventoryWS)

	mux.HandleFunc("POST /api/actions", s.withAuth(s.handleSubmitAction))
	mux.HandleFunc("GET /api/actions", s.handleListActions)
	mux.HandleFunc("GET /api/actions/{id}", s.handleGetAction)

	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", s.withAuth(s.handleUpdateSettings))

	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("GET /api/auth/check", s.handleAuthCheck)

	var handler http.Handler = mux
	handler = maxBodyMiddleware(handler, 1<<20) // 1 MB limit for API requests
	handler = corsMiddleware(handler)
	handler = logMiddleware(handler)

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", bind, port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the root handler, used by httptest in the package tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

func maxBodyMiddleware(next http.Handler, maxBytes int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip WebSocket upgrades; everything else mutating gets capped.
		if r.Body != nil && strings.HasPrefix(r.URL.Path, "/api/") && r.Method != "GET" &&
			!strings.Contains(r.Header.Get("Upgrade"), "websocket") {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			// Reflect the origin only for this server's own host, plus
			// localhost origins for front-end development.
			host := r.Host
			sameHost := strings.HasPrefix(origin, "http://"+host) || strings.HasPrefix(origin, "https://"+host)
			devHost := strings.Contains(origin, "://localhost:") || strings.Contains(origin, "://127.0.0.1:")
			if sameHost || devHost {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Upgrade, Connection")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[http] %s %s %s", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}
