package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/sozercan/patentgpt/apimodels"
	"github.com/sozercan/patentgpt/internal/config"
)

// Analyzer answers analysis requests.
type Analyzer interface {
	Analyze(ctx context.Context, req apimodels.AnalysisRequest) (*apimodels.AnalysisResponse, error)
}

type Server struct {
	cfg      config.Config
	router   chi.Router
	server   *http.Server
	analyzer Analyzer
}

func New(cfg config.Config, analyzer Analyzer) *Server {
	s := &Server{
		cfg:      cfg,
		router:   chi.NewRouter(),
		analyzer: analyzer,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	if s.cfg.Server.TrustProxy {
		s.router.Use(middleware.RealIP)
	}
	s.router.Use(loggingMiddleware)
	s.router.Use(recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	s.router.Use(httprate.Limit(
		s.cfg.RateLimit.Requests,
		s.cfg.RateLimit.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(handleRateLimited),
	))

	s.router.NotFound(handleNotFound)
	s.router.MethodNotAllowed(handleMethodNotAllowed)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/analyze", s.handleAnalyze)
}

// Handler exposes the routed handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run() error {
	serverErrors := make(chan error, 1)

	go func() {
		slog.Info("Server running", "address", s.server.Addr, "port", s.cfg.Server.Port)
		slog.Info("Available endpoints", "endpoints", []string{
			"GET /health",
			"GET /api/analyze?query=your_query_here",
		})
		serverErrors <- s.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		slog.Info("Starting shutdown", "signal", sig)

		timeout := s.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.Info("Server stopped")
	}

	return nil
}
