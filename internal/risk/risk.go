// Package risk implements heuristic risk scoring for ledger accounts, issued
// assets and transactions.
//
// Scoring runs in two stages. At discovery time the Scorer turns raw ledger
// evidence into an immutable BaseRiskInputs per node and an immediate risk
// used for traversal decisions. After expansion, Finalize is a pure function
// of the graph and those inputs. Scores range from 0.0 (no indicators) to
// 1.0 (known bad). They are heuristic indicators, not verified findings.
package risk

import (
	"math"

	"github.com/mbd888/ledgerlens/internal/graph"
	"github.com/mbd888/ledgerlens/internal/riskmodel"
)

// Severity grades findings and the overall network risk.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Behavioural patterns assigned to accounts from transaction timing.
const (
	PatternNormal        = "normal"
	PatternInactive      = "inactive"
	PatternHighFrequency = "high_frequency"
	PatternBurst         = "burst"
)

// Scorer evaluates accounts, assets and transactions against a Model.
// It holds no per-run state and is safe for concurrent use.
type Scorer struct {
	model *riskmodel.Model
}

// NewScorer creates a scorer for model. A nil model uses the defaults.
func NewScorer(model *riskmodel.Model) *Scorer {
	if model == nil {
		model = riskmodel.Default()
	}
	return &Scorer{model: model}
}

// Model returns the scorer's configuration.
func (s *Scorer) Model() *riskmodel.Model { return s.model }

// SeverityFor bands a score with the model's network thresholds.
func (s *Scorer) SeverityFor(score float64) Severity {
	n := s.model.Network
	switch {
	case score >= n.Critical:
		return SeverityCritical
	case score >= n.High:
		return SeverityHigh
	case score >= n.Medium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Radius sizes a node for display from its risk and role.
func Radius(n *graph.Node, isSeed bool) float64 {
	if isSeed {
		return 14
	}
	if n.Kind == graph.KindAsset {
		return 8 + 6*n.RiskLevel
	}
	r := 6 + 10*n.RiskLevel
	if n.IsCreatorAccount {
		r += 4
	}
	return r
}

// clamp bounds v to [0,1]; NaN becomes 0.
func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// round3 rounds to three decimal places.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
