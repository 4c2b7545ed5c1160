// Package httpapi exposes a searchrouter Dispatcher over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	sr "github.com/ineyio/searchrouter"
)

// Dispatcher is the subset of *searchrouter.Dispatcher the server uses.
type Dispatcher interface {
	Search(ctx context.Context, req sr.SearchRequest) sr.SearchResponse
	QuotaStatus(ctx context.Context) (map[string]sr.QuotaStatus, error)
	ResetQuota(ctx context.Context, backend string) error
	Catalog() *sr.Catalog
	Backends() []string
}

var _ Dispatcher = (*sr.Dispatcher)(nil)

// Config holds server configuration.
type Config struct {
	Listen string
	// MaxDeadline caps the deadline a client may request. Zero means no cap.
	MaxDeadline time.Duration
}

// Server serves search and quota endpoints.
type Server struct {
	config     Config
	dispatcher Dispatcher
	logger     *slog.Logger
	server     *http.Server
	startedAt  time.Time
}

// New creates a server over the given dispatcher.
func New(config Config, dispatcher Dispatcher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:     config,
		dispatcher: dispatcher,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

// Start runs the server until ctx is cancelled or serving fails.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/search", s.handleSearch)
	r.Get("/strategies", s.handleStrategies)
	r.Route("/quota", func(r chi.Router) {
		r.Get("/", s.handleQuotaStatus)
		r.Post("/reset", s.handleQuotaReset)
	})

	return r
}

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
