package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/lexgate/internal/auth"
	"github.com/mattjoyce/lexgate/internal/dispatch"
	"github.com/mattjoyce/lexgate/internal/prefs"
	"github.com/mattjoyce/lexgate/internal/protocol"
	"github.com/mattjoyce/lexgate/internal/worker"
)

//go:generate mockgen -destination=mocks/mock_dispatcher.go -package=mocks github.com/mattjoyce/lexgate/internal/api Dispatcher

// Dispatcher is the subset of *dispatch.Dispatcher the API serves.
type Dispatcher interface {
	Check(ctx context.Context, lang, text string) (*protocol.CheckResult, error)
	Spell(ctx context.Context, lang, word string) (*protocol.SpellResult, error)
	ListPreferences(lang string) (prefs.Table, error)
	Languages() dispatch.Languages
	Health() []worker.ActorStats
}

// DefaultRequestTimeout bounds how long a handler waits for a worker.
const DefaultRequestTimeout = 30 * time.Second

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is a single bearer token with full access.
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens         []auth.TokenConfig
	RequestTimeout time.Duration
}

// Server represents the HTTP API server
type Server struct {
	config     Config
	dispatcher Dispatcher
	logger     *slog.Logger
	keyring    *auth.Keyring
	server     *http.Server
	startedAt  time.Time
}

// New creates a new API server instance
func New(config Config, dispatcher Dispatcher, logger *slog.Logger) *Server {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	return &Server{
		config:     config,
		dispatcher: dispatcher,
		logger:     logger,
		keyring:    auth.NewKeyring(config.APIKey, config.Tokens),
		startedAt:  time.Now(),
	}
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.setupRoutes(),
		ReadTimeout: 10 * time.Second,
		// Leave room for a full request timeout plus encoding.
		WriteTimeout: s.config.RequestTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen, "auth", s.keyring.Enabled())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	r.Get("/openapi.json", s.handleOpenAPI)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.requireScopes(auth.ScopeCheck, auth.ScopePreferences)).Get("/languages", s.handleLanguages)
		r.With(s.requireScopes(auth.ScopeCheck)).Post("/grammar/{lang}", s.handleGrammar)
		r.With(s.requireScopes(auth.ScopePreferences)).Get("/grammar/{lang}/preferences", s.handlePreferences)
		r.With(s.requireScopes(auth.ScopeCheck)).Post("/speller/{lang}", s.handleSpeller)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
