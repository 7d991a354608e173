package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mbd888/ledgerlens/internal/analysis"
)

var (
	maxDepth     int
	maxNodes     int
	showProgress bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <address>",
	Short: "Map the network around an account and report its risk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var progress io.Writer
		if showProgress {
			progress = os.Stderr
		}
		return runAnalyze(ctx, engine, args[0], analysis.RunOptions{MaxDepth: maxDepth, MaxNodes: maxNodes}, os.Stdout, progress, jsonOutput)
	},
}

func init() {
	analyzeCmd.Flags().IntVar(&maxDepth, "max-depth", 0, "hops to expand from the account (0 uses the model default)")
	analyzeCmd.Flags().IntVar(&maxNodes, "max-nodes", 0, "maximum nodes to discover (0 uses the model default)")
	analyzeCmd.Flags().BoolVar(&showProgress, "progress", false, "print progress to stderr")
}

// runAnalyze runs one analysis and renders it to out. A failed run still
// prints the partial report before returning the error.
func runAnalyze(ctx context.Context, eng *analysis.Engine, address string, opts analysis.RunOptions, out, progress io.Writer, asJSON bool) error {
	var fn func(analysis.Progress)
	if progress != nil {
		fn = func(p analysis.Progress) { fmt.Fprintln(progress, formatProgress(p)) }
	}

	run, err := eng.RunWithProgress(ctx, address, opts, fn)
	rep := run.Report()
	if asJSON {
		if jerr := printJSON(out, rep); jerr != nil {
			return jerr
		}
	} else if rep.State != analysis.StateFailed || len(rep.Nodes) > 0 {
		renderReport(out, rep)
	}
	if err != nil {
		return fmt.Errorf("analysis %s failed: %w", run.ID, err)
	}
	return nil
}
