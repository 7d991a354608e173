package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/mbd888/ledgerlens/internal/analysis"
	"github.com/mbd888/ledgerlens/internal/graph"
	"github.com/mbd888/ledgerlens/internal/risk"
)

// topNodes is how many of the riskiest nodes the table lists.
const topNodes = 10

var (
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	sectionStyle = lipgloss.NewStyle().Bold(true)

	severityStyles = map[risk.Severity]lipgloss.Style{
		risk.SeverityCritical: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true), // Red
		risk.SeverityHigh:     lipgloss.NewStyle().Foreground(lipgloss.Color("208")),            // Orange
		risk.SeverityMedium:   lipgloss.NewStyle().Foreground(lipgloss.Color("220")),            // Yellow
		risk.SeverityLow:      lipgloss.NewStyle().Foreground(lipgloss.Color("42")),             // Green
		risk.SeverityInfo:     lipgloss.NewStyle().Foreground(lipgloss.Color("39")),             // Blue
	}
)

func severity(s risk.Severity) string {
	label := strings.ToUpper(string(s))
	if st, ok := severityStyles[s]; ok {
		return st.Render(label)
	}
	return label
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func formatProgress(p analysis.Progress) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", p.RunID, p.State)
	switch {
	case p.Account != "":
		fmt.Fprintf(&sb, " %s (depth %d)", p.Account, p.Depth)
	case p.Total > 0:
		fmt.Fprintf(&sb, " %d/%d", p.Done, p.Total)
	}
	fmt.Fprintf(&sb, " nodes=%d edges=%d", p.Nodes, p.Edges)
	if p.Message != "" {
		fmt.Fprintf(&sb, " %s", p.Message)
	}
	return sb.String()
}

func renderReport(w io.Writer, rep *analysis.Report) {
	nr := rep.NetworkRisk
	fmt.Fprintln(w, headerStyle.Render("Network risk for "+rep.SeedID))
	fmt.Fprintf(w, "  Level:      %s (score %.2f, %d%%)\n", severity(nr.Level), nr.Score, rep.Metrics.RiskScorePercent)
	fmt.Fprintf(w, "  Accounts:   %d\n", rep.Metrics.ConnectedAccountCount)
	fmt.Fprintf(w, "  Assets:     %d\n", rep.Metrics.ConnectedAssetCount)
	fmt.Fprintf(w, "  Edges:      %d (%d suspicious)\n", len(rep.Edges), rep.Metrics.SuspiciousEdgeCount)
	fmt.Fprintf(w, "  Known bad:  %d\n", nr.KnownBadCount)
	if rep.Failures > 0 {
		fmt.Fprintf(w, "  Failures:   %d ledger lookups\n", rep.Failures)
	}
	if rep.Error != "" {
		fmt.Fprintf(w, "  Error:      %s\n", rep.Error)
	}

	if len(rep.Findings) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, sectionStyle.Render("Findings"))
		for _, f := range rep.Findings {
			fmt.Fprintf(w, "  %-8s %s\n", severity(f.Severity), f.Description)
		}
	}

	if top := topRisk(rep.Nodes, rep.SeedID, topNodes); len(top) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, sectionStyle.Render("Riskiest nodes"))
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  ID\tKIND\tRISK\tREASONS")
		for _, n := range top {
			fmt.Fprintf(tw, "  %s\t%s\t%.2f\t%s\n", n.ID, n.Kind, n.RiskLevel, strings.Join(n.Reasons, "; "))
		}
		_ = tw.Flush()
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, subtleStyle.Render("Run "+rep.RunID))
}

// topRisk returns up to n non-seed nodes with positive risk, riskiest first.
func topRisk(nodes []graph.Node, seedID string, n int) []graph.Node {
	out := make([]graph.Node, 0, len(nodes))
	for _, node := range nodes {
		if node.ID != seedID && node.RiskLevel > 0 {
			out = append(out, node)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RiskLevel > out[j].RiskLevel })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func renderAssessment(w io.Writer, a *analysis.AccountAssessment) {
	fmt.Fprintln(w, headerStyle.Render("Account "+a.Address))
	fmt.Fprintf(w, "  Level:      %s (%.2f)\n", severity(a.Level), a.Score.Immediate)
	fmt.Fprintf(w, "  Base score: %.2f\n", a.Score.Basic)
	fmt.Fprintf(w, "  Pattern:    %s\n", a.Score.Pattern)
	fmt.Fprintf(w, "  Known bad:  %t\n", a.Score.IsKnownHighRisk)
	fmt.Fprintf(w, "  Creator:    %t\n", a.Score.IsCreator)
	fmt.Fprintf(w, "  Payments:   %d (%d asset transfers)\n", a.Interaction.Payments, a.Interaction.AssetTransfers)
	if a.Score.Degraded {
		fmt.Fprintln(w, subtleStyle.Render("  some ledger data was unavailable"))
	}
	if len(a.Score.Reasons) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, sectionStyle.Render("Reasons"))
		for _, r := range a.Score.Reasons {
			fmt.Fprintf(w, "  - %s\n", r)
		}
	}
}
