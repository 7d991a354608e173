package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/ledgerlens/internal/analysis"
	"github.com/mbd888/ledgerlens/internal/health"
	"github.com/mbd888/ledgerlens/internal/logging"
	"github.com/mbd888/ledgerlens/internal/validation"
)

// Upper bounds a caller may request for one analysis.
const (
	MaxRequestDepth = 6
	MaxRequestNodes = 500
)

// AnalyzeRequest is the body of POST /v1/analyses.
type AnalyzeRequest struct {
	Address  string `json:"address"`
	MaxDepth int    `json:"maxDepth,omitempty"`
	MaxNodes int    `json:"maxNodes,omitempty"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error   string                      `json:"error"`
	Message string                      `json:"message"`
	RunID   string                      `json:"runId,omitempty"`
	Fields  validation.ValidationErrors `json:"fields,omitempty"`
}

func (s *Server) analyzeHandler(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "body must be JSON: " + err.Error()})
		return
	}
	req.Address = validation.SanitizeAddress(req.Address)
	if errs := validation.Validate(
		validation.Required("address", req.Address),
		validation.ValidAccount("address", req.Address),
		validation.IntRange("maxDepth", req.MaxDepth, MaxRequestDepth),
		validation.IntRange("maxNodes", req.MaxNodes, MaxRequestNodes),
	); len(errs) > 0 {
		code := "invalid_request"
		if errs[0].Field == "address" {
			code = "invalid_address"
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: code, Message: errs.Error(), Fields: errs})
		return
	}

	opts := analysis.RunOptions{MaxDepth: req.MaxDepth, MaxNodes: req.MaxNodes}
	if opts.MaxDepth == 0 {
		opts.MaxDepth = s.cfg.MaxDepth
	}
	if opts.MaxNodes == 0 {
		opts.MaxNodes = s.cfg.MaxNodes
	}

	ctx := c.Request.Context()
	if s.cfg.AnalysisTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.AnalysisTimeout)
		defer cancel()
	}

	var track sync.Once
	run, err := s.engine.RunWithProgress(ctx, req.Address, opts, func(p analysis.Progress) {
		track.Do(func() {
			s.realtimeHub.Track(p.RunID, req.Address)
			c.Header("X-Run-ID", p.RunID)
		})
		s.realtimeHub.PublishProgress(p)
	})
	if err != nil {
		status, code := statusFor(err)
		logging.L(ctx).Warn("analysis request failed", "address", req.Address, "run_id", run.ID, "error", err)
		c.JSON(status, ErrorResponse{Error: code, Message: err.Error(), RunID: run.ID})
		return
	}
	c.JSON(http.StatusOK, run.Report())
}

func (s *Server) accountRiskHandler(c *gin.Context) {
	addr := c.Param("address")
	a, err := s.engine.ScoreAccount(c.Request.Context(), addr)
	if err != nil {
		status, code := statusFor(err)
		c.JSON(status, ErrorResponse{Error: code, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, a)
}

// statusFor maps engine errors onto HTTP statuses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, analysis.ErrInvalidAddress):
		return http.StatusBadRequest, "invalid_address"
	case errors.Is(err, analysis.ErrLedgerUnavailable):
		return http.StatusBadGateway, "ledger_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "analysis_timeout"
	case errors.Is(err, context.Canceled):
		return 499, "client_closed_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Realtime  map[string]any  `json:"realtime,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ok, checks := s.health.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !ok {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   Version,
		Checks:    checks,
		Realtime:  s.realtimeHub.Stats(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
