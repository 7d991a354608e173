// Package server exposes the analysis engine over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/ledgerlens/internal/analysis"
	"github.com/mbd888/ledgerlens/internal/config"
	"github.com/mbd888/ledgerlens/internal/health"
	"github.com/mbd888/ledgerlens/internal/ledger"
	"github.com/mbd888/ledgerlens/internal/logging"
	"github.com/mbd888/ledgerlens/internal/metrics"
	"github.com/mbd888/ledgerlens/internal/ratelimit"
	"github.com/mbd888/ledgerlens/internal/realtime"
	"github.com/mbd888/ledgerlens/internal/risk"
	"github.com/mbd888/ledgerlens/internal/validation"
)

// Version is reported by /health. Set by ldflags in cmd/server.
var Version = "dev"

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg            *config.Config
	source         ledger.Source
	engine         *analysis.Engine
	realtimeHub    *realtime.Hub
	health         *health.Registry
	rateLimiter    *ratelimit.Limiter
	allowedOrigins []string
	router         *gin.Engine
	httpSrv        *http.Server
	logger         *slog.Logger
	cancelRunCtx   context.CancelFunc // cancels background goroutines started in Run

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithSource replaces the JSON-RPC ledger client (for testing)
func WithSource(src ledger.Source) Option {
	return func(s *Server) {
		s.source = src
	}
}

// WithAllowedOrigins restricts CORS to the given origins.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}
	for _, opt := range opts {
		opt(s)
	}

	model, err := cfg.RiskModel()
	if err != nil {
		return nil, fmt.Errorf("load risk model: %w", err)
	}

	s.health = health.NewRegistry(5 * time.Second)
	if s.source == nil {
		rpc := ledger.NewRPCClient(cfg.LedgerRPCURL,
			ledger.WithHTTPClient(&http.Client{Timeout: cfg.LedgerTimeout}),
			ledger.WithRateLimit(cfg.LedgerRPS, cfg.LedgerBurst),
			ledger.WithRPCLogger(s.logger),
		)
		s.source = rpc
		s.health.Register("ledger_circuits", health.BreakerCheck("ledger_circuits", rpc.Breaker(), ledger.Methods...))
		s.logger.Info("ledger source configured", "endpoint", cfg.LedgerRPCURL, "rps", cfg.LedgerRPS)
	}
	if p, ok := s.source.(health.Pinger); ok {
		s.health.Register("ledger", health.PingCheck("ledger", p))
	}

	s.realtimeHub = realtime.NewHub(s.logger)
	s.engine = analysis.NewEngine(s.source, risk.NewScorer(model), analysis.WithLogger(s.logger))
	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimitRPM,
		BurstSize:         cfg.RateBurst,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	v1 := s.router.Group("/v1")
	v1.Use(validation.AddressParamMiddleware())

	// Each analysis fans out into many ledger calls; throttle per client.
	v1.POST("/analyses", s.rateLimiter.Middleware(), s.analyzeHandler)
	v1.GET("/accounts/:address/risk", s.rateLimiter.Middleware(), s.accountRiskHandler)
	v1.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// Analyses are synchronous; leave room for the analysis timeout.
		WriteTimeout: s.cfg.AnalysisTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "ledger", s.cfg.LedgerRPCURL)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.realtimeHub.Run(runCtx)

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		cancel()
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Hub returns the progress hub.
func (s *Server) Hub() *realtime.Hub {
	return s.realtimeHub
}
