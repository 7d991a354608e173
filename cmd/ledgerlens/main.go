// ledgerlens CLI - analyse the network around an XRP Ledger account from
// the terminal.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/mbd888/ledgerlens/internal/analysis"
	"github.com/mbd888/ledgerlens/internal/config"
	"github.com/mbd888/ledgerlens/internal/ledger"
	"github.com/mbd888/ledgerlens/internal/logging"
	"github.com/mbd888/ledgerlens/internal/risk"
)

// Version is set by ldflags.
var Version = "dev"

var (
	rpcURL     string
	modelFile  string
	logLevel   string
	jsonOutput bool

	logger *slog.Logger
	engine *analysis.Engine
)

var rootCmd = &cobra.Command{
	Use:           "ledgerlens <command>",
	Short:         "Network risk analysis for XRP Ledger accounts",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("rpc-url") {
			cfg.LedgerRPCURL = rpcURL
		}
		if cmd.Flags().Changed("risk-model") {
			cfg.RiskModelFile = modelFile
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		// stdout carries the report; logs go to stderr.
		logger = logging.NewWriter(os.Stderr, cfg.LogLevel, "text")

		model, err := cfg.RiskModel()
		if err != nil {
			return fmt.Errorf("load risk model: %w", err)
		}
		src := ledger.NewRPCClient(cfg.LedgerRPCURL,
			ledger.WithHTTPClient(&http.Client{Timeout: cfg.LedgerTimeout}),
			ledger.WithRateLimit(cfg.LedgerRPS, cfg.LedgerBurst),
			ledger.WithRPCLogger(logger),
		)
		engine = analysis.NewEngine(src, risk.NewScorer(model), analysis.WithLogger(logger))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rpcURL, "rpc-url", config.DefaultLedgerRPCURL, "rippled JSON-RPC endpoint (overrides LEDGER_RPC_URL)")
	rootCmd.PersistentFlags().StringVar(&modelFile, "risk-model", "", "YAML risk model overlay (overrides RISK_MODEL_FILE)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(scoreCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
