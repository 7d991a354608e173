// ledgerlens API server - network risk analysis for XRP Ledger accounts
package main

import (
	"context"
	"os"
	"time"

	"github.com/mbd888/ledgerlens/internal/config"
	"github.com/mbd888/ledgerlens/internal/logging"
	"github.com/mbd888/ledgerlens/internal/server"
	"github.com/mbd888/ledgerlens/internal/traces"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting ledgerlens",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)
	logger.Info("configuration loaded",
		"env", cfg.Env,
		"ledger_rpc_url", cfg.LedgerRPCURL,
		"risk_model_file", cfg.RiskModelFile,
	)

	ctx := context.Background()
	shutdownTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, Version, logger)
	if err != nil {
		logger.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTraces(sctx); err != nil {
			logger.Warn("trace shutdown failed", "error", err)
		}
	}()

	server.Version = Version
	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
