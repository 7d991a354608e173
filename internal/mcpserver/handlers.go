package mcpserver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/ledgerlens/internal/analysis"
	"github.com/mbd888/ledgerlens/internal/graph"
)

// topAccounts is how many riskiest nodes an analysis summary lists.
const topAccounts = 5

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *Client
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *Client) *Handlers {
	return &Handlers{client: client}
}

// HandleAnalyzeAccount runs a full network analysis.
func (h *Handlers) HandleAnalyzeAccount(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := strings.TrimSpace(req.GetString("address", ""))
	if address == "" {
		return mcp.NewToolResultError("address is required"), nil
	}
	maxDepth := req.GetInt("max_depth", 0)
	maxNodes := req.GetInt("max_nodes", 0)

	rep, err := h.client.Analyze(ctx, address, maxDepth, maxNodes)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Analysis failed: %v", err)), nil
	}
	return mcp.NewToolResultText(formatReport(rep)), nil
}

// HandleScoreAccount scores one account without traversal.
func (h *Handlers) HandleScoreAccount(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := strings.TrimSpace(req.GetString("address", ""))
	if address == "" {
		return mcp.NewToolResultError("address is required"), nil
	}

	a, err := h.client.ScoreAccount(ctx, address)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Scoring failed: %v", err)), nil
	}
	return mcp.NewToolResultText(formatAssessment(a)), nil
}

// HandleServiceHealth reports the API server's health.
func (h *Handlers) HandleServiceHealth(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := h.client.Health(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Service unhealthy: %v", err)), nil
	}
	status, _ := doc["status"].(string)
	version, _ := doc["version"].(string)
	return mcp.NewToolResultText(fmt.Sprintf("Service status: %s (version %s)", status, version)), nil
}

// -----------------------------------------------------------------------------
// Formatting
// -----------------------------------------------------------------------------

func formatReport(rep *analysis.Report) string {
	var sb strings.Builder
	nr := rep.NetworkRisk
	fmt.Fprintf(&sb, "Network risk for %s: %s (score %.2f)\n", rep.SeedID, strings.ToUpper(string(nr.Level)), nr.Score)
	fmt.Fprintf(&sb, "Discovered %d accounts and %d assets across %d relationships",
		rep.Metrics.ConnectedAccountCount, rep.Metrics.ConnectedAssetCount, len(rep.Edges))
	if rep.Metrics.SuspiciousEdgeCount > 0 {
		fmt.Fprintf(&sb, " (%d suspicious)", rep.Metrics.SuspiciousEdgeCount)
	}
	sb.WriteString(".\n")
	if nr.KnownBadCount > 0 {
		fmt.Fprintf(&sb, "Known high-risk wallets in network: %d\n", nr.KnownBadCount)
	}
	if rep.Failures > 0 {
		fmt.Fprintf(&sb, "Note: %d ledger lookups failed; affected accounts were scored conservatively.\n", rep.Failures)
	}

	if len(rep.Findings) > 0 {
		sb.WriteString("\nFindings:\n")
		for _, f := range rep.Findings {
			fmt.Fprintf(&sb, "- [%s] %s\n", f.Severity, f.Description)
		}
	}

	if top := riskiest(rep.Nodes, rep.SeedID, topAccounts); len(top) > 0 {
		sb.WriteString("\nRiskiest nodes:\n")
		for i, n := range top {
			fmt.Fprintf(&sb, "%d. %s (%s) risk %.2f", i+1, n.ID, n.Kind, n.RiskLevel)
			if len(n.Reasons) > 0 {
				fmt.Fprintf(&sb, ": %s", strings.Join(n.Reasons, "; "))
			}
			sb.WriteString("\n")
		}
	}
	fmt.Fprintf(&sb, "\nRun ID: %s", rep.RunID)
	return sb.String()
}

// riskiest returns up to n non-seed nodes by descending risk, ties in
// discovery order.
func riskiest(nodes []graph.Node, seedID string, n int) []graph.Node {
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

func formatAssessment(a *analysis.AccountAssessment) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Account %s: %s risk (%.2f)\n", a.Address, strings.ToUpper(string(a.Level)), a.Score.Immediate)
	fmt.Fprintf(&sb, "Base score: %.2f | Behaviour: %s\n", a.Score.Basic, a.Score.Pattern)
	if a.Score.IsKnownHighRisk {
		sb.WriteString("This is a KNOWN HIGH-RISK wallet.\n")
	}
	if a.Score.IsCreator {
		sb.WriteString("Looks like a token creator account.\n")
	}
	if a.Score.Degraded {
		sb.WriteString("Some ledger data was unavailable; unknown factors were scored conservatively.\n")
	}
	ix := a.Interaction
	fmt.Fprintf(&sb, "Recent activity: %d payments, %d asset transfers", ix.Payments, ix.AssetTransfers)
	if !ix.FirstSeen.IsZero() {
		fmt.Fprintf(&sb, " between %s and %s", ix.FirstSeen.Format("2006-01-02"), ix.LastSeen.Format("2006-01-02"))
	}
	sb.WriteString("\n")
	if len(a.Score.Reasons) > 0 {
		sb.WriteString("\nReasons:\n")
		for _, r := range a.Score.Reasons {
			fmt.Fprintf(&sb, "- %s\n", r)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
