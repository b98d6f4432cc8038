// Package web serves the deck over HTTP: a JSON API, an SSE event stream and
// a websocket per terminal.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/dontbeterm/dontbeterm/internal/deck"
	"github.com/dontbeterm/dontbeterm/internal/logging"
	"github.com/dontbeterm/dontbeterm/internal/topic"
)

const (
	// DefaultListenAddr keeps the control surface on loopback.
	DefaultListenAddr = "127.0.0.1:8421"

	DefaultRefreshInterval = 2 * time.Second
)

// Config defines runtime options for the web server.
type Config struct {
	ListenAddr string
	Token      string
	Version    string

	Deck      *deck.Deck
	Terminals TerminalLookup
	Probe     *topic.CLIProbe

	// RefreshInterval is the minimum gap between accepted POST
	// /api/topics/refresh calls. Zero uses DefaultRefreshInterval; negative
	// disables the limit.
	RefreshInterval time.Duration

	// RefreshLimiter, when set, replaces the limiter built from RefreshInterval.
	RefreshLimiter *rate.Limiter
}

// Server wraps an HTTP server for the deck.
type Server struct {
	cfg        Config
	deck       *deck.Deck
	terminals  TerminalLookup
	probe      *topic.CLIProbe
	refresh    *rate.Limiter
	httpServer *http.Server
	log        *slog.Logger

	baseCtx    context.Context
	cancelBase context.CancelFunc
}

func newRefreshLimiter(interval time.Duration) *rate.Limiter {
	switch {
	case interval < 0:
		return rate.NewLimiter(rate.Inf, 1)
	case interval == 0:
		interval = DefaultRefreshInterval
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// NewServer creates a new web server with routes and middleware.
func NewServer(cfg Config) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.RefreshLimiter == nil {
		cfg.RefreshLimiter = newRefreshLimiter(cfg.RefreshInterval)
	}
	if cfg.Probe == nil {
		cfg.Probe = topic.NewCLIProbe("", nil)
	}

	s := &Server{
		cfg:       cfg,
		deck:      cfg.Deck,
		terminals: cfg.Terminals,
		probe:     cfg.Probe,
		refresh:   cfg.RefreshLimiter,
		log:       logging.ForComponent(logging.CompWeb),
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)

	mux.HandleFunc("GET /api/sessions", s.authorized(s.handleListSessions))
	mux.HandleFunc("POST /api/sessions", s.authorized(s.handleCreateSession))
	mux.HandleFunc("GET /api/sessions/{id}", s.authorized(s.handleGetSession))
	mux.HandleFunc("PATCH /api/sessions/{id}", s.authorized(s.handleRenameSession))
	mux.HandleFunc("DELETE /api/sessions/{id}", s.authorized(s.handleCloseSession))
	mux.HandleFunc("POST /api/sessions/{id}/activate", s.authorized(s.handleActivateSession))
	mux.HandleFunc("POST /api/sessions/{id}/input", s.authorized(s.handleSessionInput))
	mux.HandleFunc("POST /api/sessions/{id}/resize", s.authorized(s.handleSessionResize))
	mux.HandleFunc("GET /api/sessions/{id}/preview", s.authorized(s.handleSessionPreview))
	mux.HandleFunc("POST /api/drop", s.authorized(s.handleDropPaths))

	mux.HandleFunc("POST /api/topics/refresh", s.authorized(s.handleRefreshTopics))

	mux.HandleFunc("GET /api/cli/status", s.authorized(s.handleCLIStatus))
	mux.HandleFunc("POST /api/cli/check", s.authorized(s.handleCLICheck))
	mux.HandleFunc("POST /api/cli/test", s.authorized(s.handleCLITest))
	mux.HandleFunc("GET /api/cli/guide", s.authorized(s.handleCLIGuide))

	mux.HandleFunc("GET /api/logs", s.authorized(s.handleLogs))
	mux.HandleFunc("GET /events", s.authorized(s.handleEvents))
	mux.HandleFunc("GET /ws/terminal/{id}", s.authorized(s.handleTerminalWS))

	handler := withRecover(mux)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		BaseContext:       func(_ net.Listener) context.Context { return s.baseCtx },
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          log.New(logging.NewBridgeWriter(logging.CompWeb), "", 0),
	}

	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the configured HTTP handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until shutdown or error. Returns nil on graceful shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("web_server_listening", slog.String("addr", ln.Addr().String()), slog.Bool("token", s.cfg.Token != ""))
	err := s.httpServer.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	// Ends long-lived handlers (SSE/WS) promptly.
	s.cancelBase()

	err := s.httpServer.Shutdown(ctx)
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if closeErr := s.httpServer.Close(); closeErr != nil {
			return fmt.Errorf("graceful shutdown timed out and force close failed: %w", closeErr)
		}
		return nil
	}
	return err
}

func (s *Server) String() string {
	return fmt.Sprintf("web-server(addr=%s, token=%t)", s.cfg.ListenAddr, s.cfg.Token != "")
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	resp := map[string]any{
		"ok":      true,
		"version": s.cfg.Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	}
	if s.deck != nil {
		resp["sessions"] = len(s.deck.Sessions())
	}
	writeJSON(w, http.StatusOK, resp)
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.ForComponent(logging.CompWeb).Error("panic",
					slog.String("recover", fmt.Sprintf("%v", rec)),
					slog.String("path", r.URL.Path))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiErrorResponse{
		Error: apiError{
			Code:    code,
			Message: message,
		},
	})
}

// decodeBody reads a small JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
