package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/digitalrebelz/arbitrage-app/pkg/healthprobe"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server provides HTTP endpoints for metrics, health checks and the
// read-only reporting API.
type Server struct {
	server        *http.Server
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
}

// Config holds server configuration. The API sources are optional; routes
// for missing sources are not mounted.
type Config struct {
	Port          string
	Logger        *zap.Logger
	HealthChecker *healthprobe.HealthChecker
	Opportunities OpportunitySource
	Trades        TradeSource
	Portfolio     PortfolioSource
	Risk          RiskSource
	Books         BookSource
	Breaker       BreakerSource
}

// New creates a new HTTP server.
func New(cfg *Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Routes
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/health", cfg.HealthChecker.Health())
	r.Get("/ready", cfg.HealthChecker.Ready())

	api := NewAPIHandler(cfg, logger)
	r.Route("/api", func(r chi.Router) {
		if cfg.Opportunities != nil {
			r.Get("/opportunities", api.HandleOpportunities)
		}
		if cfg.Trades != nil {
			r.Get("/trades", api.HandleTrades)
		}
		if cfg.Portfolio != nil {
			r.Get("/portfolio", api.HandlePortfolio)
		}
		if cfg.Risk != nil && cfg.Portfolio != nil {
			r.Get("/risk", api.HandleRisk)
			r.Post("/risk/clear-halt", api.HandleClearHalt)
		}
		if cfg.Breaker != nil {
			r.Get("/circuit-breaker", api.HandleCircuitBreaker)
		}
		if cfg.Books != nil {
			r.Get("/orderbook", NewOrderbookHandler(cfg.Books, logger).HandleOrderbook)
		}
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		server:        server,
		logger:        logger,
		healthChecker: cfg.HealthChecker,
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
// This is a blocking call that returns when the server stops or encounters an error.
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
