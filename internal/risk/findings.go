package risk

import (
	"fmt"
	"slices"

	"github.com/mbd888/ledgerlens/internal/graph"
)

// Finding kinds.
const (
	FindingTopRiskAccounts       = "top_risk_accounts"
	FindingKnownHighRiskWallets  = "known_high_risk_wallets"
	FindingCreatorAccounts       = "creator_accounts"
	FindingHighRiskEarly         = "high_risk_early_participants"
	FindingHighRiskAssets        = "high_risk_assets"
	FindingSuspiciousTransaction = "suspicious_transactions"
	FindingHighRiskConnections   = "high_risk_connections"
	FindingNetworkRisk           = "network_risk_assessment"
)

// Finding is a human-readable summary derived from the finished graph.
type Finding struct {
	Kind        string         `json:"kind"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
}

// AccountRef identifies a node in finding details.
type AccountRef struct {
	ID      string   `json:"id"`
	Risk    float64  `json:"risk"`
	Reasons []string `json:"reasons,omitempty"`
}

// EdgeRef identifies an edge in finding details.
type EdgeRef struct {
	Source string                 `json:"source"`
	Target string                 `json:"target"`
	Kind   graph.RelationshipKind `json:"kind"`
	Weight float64                `json:"weight"`
}

// GenerateFindings summarizes a finalized graph. The result always ends
// with exactly one network_risk_assessment finding built from nr.
func (s *Scorer) GenerateFindings(g *graph.Store, seedID string, nr NetworkRisk) []Finding {
	f := s.model.Findings
	var findings []Finding

	var accounts, knownBad, creators, early, assets []*graph.Node
	for _, n := range g.Nodes() {
		switch n.Kind {
		case graph.KindAccount:
			if n.IsKnownHighRisk {
				knownBad = append(knownBad, n)
			}
			if n.IsCreatorAccount {
				creators = append(creators, n)
			}
			if n.ID == seedID {
				continue
			}
			accounts = append(accounts, n)
			if n.IsEarlyParticipant && n.RiskLevel >= f.HighRiskEarly {
				early = append(early, n)
			}
		case graph.KindAsset:
			if n.RiskLevel >= f.HighRiskAsset {
				assets = append(assets, n)
			}
		}
	}

	if len(accounts) > 0 {
		ranked := slices.Clone(accounts)
		slices.SortStableFunc(ranked, func(a, b *graph.Node) int {
			switch {
			case a.RiskLevel > b.RiskLevel:
				return -1
			case a.RiskLevel < b.RiskLevel:
				return 1
			default:
				return 0
			}
		})
		top := ranked[:min(len(ranked), max(f.TopN, 1))]
		findings = append(findings, Finding{
			Kind:        FindingTopRiskAccounts,
			Severity:    s.SeverityFor(top[0].RiskLevel),
			Description: fmt.Sprintf("Top %d highest-risk connected accounts", len(top)),
			Details:     map[string]any{"accounts": refs(top)},
		})
	}

	if len(knownBad) > 0 {
		findings = append(findings, Finding{
			Kind:        FindingKnownHighRiskWallets,
			Severity:    SeverityCritical,
			Description: fmt.Sprintf("%d known high-risk wallets found in the network", len(knownBad)),
			Details:     map[string]any{"accounts": refs(knownBad)},
		})
	}

	if len(creators) > 0 {
		findings = append(findings, Finding{
			Kind:        FindingCreatorAccounts,
			Severity:    SeverityHigh,
			Description: fmt.Sprintf("%d accounts look like speculative asset creators", len(creators)),
			Details:     map[string]any{"accounts": refs(creators)},
		})
	}

	if len(early) > 0 {
		findings = append(findings, Finding{
			Kind:        FindingHighRiskEarly,
			Severity:    SeverityHigh,
			Description: fmt.Sprintf("%d high-risk early participants in discovered assets", len(early)),
			Details:     map[string]any{"accounts": refs(early)},
		})
	}

	if len(assets) > 0 {
		worst := 0.0
		for _, a := range assets {
			worst = max(worst, a.RiskLevel)
		}
		findings = append(findings, Finding{
			Kind:        FindingHighRiskAssets,
			Severity:    s.SeverityFor(worst),
			Description: fmt.Sprintf("%d high-risk issued assets", len(assets)),
			Details:     map[string]any{"assets": refs(assets)},
		})
	}

	var suspicious, hotLinks []EdgeRef
	for _, e := range g.Edges() {
		if e.IsSuspicious && len(suspicious) < f.MaxSuspiciousListed {
			suspicious = append(suspicious, edgeRef(e))
		}
		a, b := g.FindNode(e.Source), g.FindNode(e.Target)
		if a.IsAccount() && b.IsAccount() &&
			a.RiskLevel >= f.HighRiskConnection && b.RiskLevel >= f.HighRiskConnection &&
			len(hotLinks) < f.MaxConnectionsListed {
			hotLinks = append(hotLinks, edgeRef(e))
		}
	}
	if n := g.SuspiciousEdgeCount(); n > 0 {
		findings = append(findings, Finding{
			Kind:        FindingSuspiciousTransaction,
			Severity:    SeverityMedium,
			Description: fmt.Sprintf("%d suspicious relationships", n),
			Details:     map[string]any{"count": n, "edges": suspicious},
		})
	}
	if len(hotLinks) > 0 {
		findings = append(findings, Finding{
			Kind:        FindingHighRiskConnections,
			Severity:    SeverityHigh,
			Description: fmt.Sprintf("%d direct links between high-risk accounts", len(hotLinks)),
			Details:     map[string]any{"edges": hotLinks},
		})
	}

	findings = append(findings, Finding{
		Kind:        FindingNetworkRisk,
		Severity:    nr.Level,
		Description: fmt.Sprintf("Overall network risk is %s (%.0f%%)", nr.Level, nr.Score*100),
		Details: map[string]any{
			"score":         nr.Score,
			"level":         string(nr.Level),
			"meanRisk":      nr.MeanRisk,
			"maxRisk":       nr.MaxRisk,
			"density":       nr.Density,
			"knownBadCount": nr.KnownBadCount,
		},
	})
	return findings
}

func refs(nodes []*graph.Node) []AccountRef {
	out := make([]AccountRef, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, AccountRef{ID: n.ID, Risk: n.RiskLevel, Reasons: slices.Clone(n.Reasons)})
	}
	return out
}

func edgeRef(e *graph.Edge) EdgeRef {
	return EdgeRef{Source: e.Source, Target: e.Target, Kind: e.Kind, Weight: e.Weight}
}
