package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mselser95/crossvenue-arb/internal/storage"
	"github.com/mselser95/crossvenue-arb/pkg/config"
	"github.com/mselser95/crossvenue-arb/pkg/eventbus"
	"github.com/mselser95/crossvenue-arb/pkg/healthprobe"
	"github.com/mselser95/crossvenue-arb/pkg/types"
)

// Executor is the execution surface the API drives.
type Executor interface {
	Execute(ctx context.Context, opportunityID string) (*types.ExecutionResult, error)
	CancelExecution(ctx context.Context, opportunityID string) error
}

// Syncer triggers a market identity sync on demand.
type Syncer interface {
	Sync(ctx context.Context) error
}

// Server provides the REST API, the push feed, metrics, and health checks.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// Config holds server configuration.
type Config struct {
	Port          string
	AppConfig     *config.Config
	Storage       storage.Storage
	Executor      Executor
	Syncer        Syncer
	Bus           *eventbus.Bus
	HealthChecker *healthprobe.Checker
	Logger        *zap.Logger
}

// New creates the HTTP server and mounts all routes.
func New(cfg *Config) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/health", cfg.HealthChecker.Health())
	r.Get("/ready", cfg.HealthChecker.Ready())

	api := &apiHandler{
		cfg:      cfg.AppConfig,
		storage:  cfg.Storage,
		executor: cfg.Executor,
		syncer:   cfg.Syncer,
		logger:   cfg.Logger,
	}

	feed := newStreamHandler(cfg.Bus, cfg.Storage, cfg.Logger)

	r.Route("/api", func(r chi.Router) {
		// The push feed holds its connection open; the timeout middleware
		// only wraps the request/response endpoints.
		r.Get("/stream", feed.handle)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/health", api.handleHealth)
			r.Get("/opportunities", api.handleOpportunities)
			r.Get("/opportunities/active", api.handleActiveOpportunities)
			r.Get("/markets", api.handleMarkets)
			r.Post("/markets/sync", api.handleMarketSync)
			r.Get("/trades", api.handleTrades)
			r.Post("/execute/{id}", api.handleExecute)
			r.Post("/execute/{id}/cancel", api.handleCancelExecution)
			r.Get("/config", api.handleGetConfig)
			r.Post("/config", api.handleUpdateConfig)
		})
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		server: server,
		logger: cfg.Logger,
	}
}

// Start runs the server. Blocks until the server stops or fails.
func (s *Server) Start() error {
	s.logger.Info("http-server-starting", zap.String("addr", s.server.Addr))

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http-server-shutting-down")

	err := s.server.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("http-server-shutdown-complete")
	return nil
}
