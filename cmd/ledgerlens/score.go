package main

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mbd888/ledgerlens/internal/analysis"
)

var scoreCmd = &cobra.Command{
	Use:   "score <address>",
	Short: "Score a single account without exploring its network",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScore(cmd.Context(), engine, args[0], os.Stdout, jsonOutput)
	},
}

func runScore(ctx context.Context, eng *analysis.Engine, address string, out io.Writer, asJSON bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := eng.ScoreAccount(ctx, address)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(out, a)
	}
	renderAssessment(out, a)
	return nil
}
