package risk

import (
	"fmt"

	"github.com/mbd888/ledgerlens/internal/graph"
)

// BaseRiskInputs is the stage-one result for one node, fixed at discovery.
type BaseRiskInputs struct {
	Kind graph.Kind `json:"kind"`

	// Account inputs.
	Basic              float64            `json:"basic"`
	Enhanced           graph.EnhancedRisk `json:"enhanced"`
	TrustPosition      int                `json:"trustPosition"`
	IsKnownHighRisk    bool               `json:"isKnownHighRisk"`
	IsCreator          bool               `json:"isCreator"`
	IsEarlyParticipant bool               `json:"isEarlyParticipant"`
	// EarlyRisk is the banded early-participant risk, 0 when not early.
	EarlyRisk float64 `json:"earlyRisk"`
	Degraded  bool    `json:"degraded"`

	// Asset inputs.
	AssetBase float64 `json:"assetBase"`
	IssuerID  string  `json:"issuerId"`
}

// Inputs maps node id to its stage-one inputs.
type Inputs map[string]BaseRiskInputs

// FinalRisk is the stage-two result for one node.
type FinalRisk struct {
	Risk    float64  `json:"risk"`
	Reasons []string `json:"reasons,omitempty"`
}

// EarlyBandRisk maps a 0-based first-appearance position to risk. Positions
// past the last band return 0.
func EarlyBandRisk(p int) float64 {
	switch {
	case p < 0:
		return 0
	case p < 10:
		return 0.90 - 0.02*float64(p)
	case p < 20:
		return 0.70 - 0.01*float64(p-10)
	case p < 30:
		return 0.50 - 0.01*float64(p-20)
	case p < 50:
		return 0.30 - 0.005*float64(p-30)
	default:
		return 0
	}
}

// Finalize computes final risk for every node in g that has inputs. It does
// not modify g. Accounts are computed first so assets can inherit their
// issuer's final risk.
func (s *Scorer) Finalize(g *graph.Store, in Inputs, seedID string) map[string]FinalRisk {
	out := make(map[string]FinalRisk, len(in))
	seedNeighbors := make(map[string]bool)
	for _, id := range g.Neighbors(seedID) {
		if n := g.FindNode(id); n != nil && n.IsAccount() {
			seedNeighbors[id] = true
		}
	}

	for _, n := range g.Nodes() {
		inputs, ok := in[n.ID]
		if !ok || n.Kind != graph.KindAccount {
			continue
		}
		out[n.ID] = s.finalAccount(g, n, inputs, seedNeighbors)
	}

	for _, n := range g.Nodes() {
		inputs, ok := in[n.ID]
		if !ok || n.Kind != graph.KindAsset {
			continue
		}
		issuerRisk := s.model.Final.Placeholder
		if issuer := g.FindNode(inputs.IssuerID); issuer != nil {
			issuerRisk = issuer.RiskLevel
			if f, ok := out[inputs.IssuerID]; ok {
				issuerRisk = max(issuerRisk, f.Risk)
			}
		}
		out[n.ID] = FinalRisk{Risk: s.WithIssuer(inputs.AssetBase, issuerRisk)}
	}
	return out
}

func (s *Scorer) finalAccount(g *graph.Store, n *graph.Node, in BaseRiskInputs, seedNeighbors map[string]bool) FinalRisk {
	if in.IsKnownHighRisk {
		return FinalRisk{Risk: 1, Reasons: []string{"on known high-risk list"}}
	}
	w := s.model.Final
	var reasons []string
	r := in.Basic

	if pos := in.TrustPosition; pos >= 1 && pos <= w.TrustPositionMax {
		r += w.TrustPositionBonus * float64(w.TrustPositionMax+1-pos) / float64(w.TrustPositionMax)
		reasons = append(reasons, fmt.Sprintf("trust line position %d", pos))
	}
	if in.Enhanced.CreatorConnection || in.IsCreator {
		r += w.CreatorBonus
		if in.Enhanced.CreatorConnection {
			reasons = append(reasons, "early holder transacting with the issuer")
		}
	}

	e := in.Enhanced
	r += e.Activity*w.ActivityWeight + e.Age*w.AgeWeight + e.Volume*w.VolumeWeight + e.TrustPosition*w.TrustWeight

	suspicious := e.SuspiciousConnections
	graphSuspicious := 0
	for _, edge := range g.EdgesOf(n.ID) {
		if edge.IsSuspicious {
			graphSuspicious++
		}
	}
	suspicious = max(suspicious, graphSuspicious)
	if suspicious > 0 {
		r += min(w.SuspiciousConnStep*float64(suspicious), w.SuspiciousConnCap)
		reasons = append(reasons, fmt.Sprintf("%d suspicious connections", suspicious))
	}

	if in.IsEarlyParticipant {
		r += w.EarlyParticipantBonus
		r = max(r, in.EarlyRisk)
		reasons = append(reasons, "early participant in a new asset")
	}

	if seedNeighbors[n.ID] {
		links := 0
		for _, other := range g.Neighbors(n.ID) {
			if other != n.ID && seedNeighbors[other] {
				links++
			}
		}
		if links > 0 {
			r += min(w.InterconnectionStep*float64(links), w.InterconnectionCap)
			reasons = append(reasons, fmt.Sprintf("linked to %d other direct counterparties", links))
		}
	}

	return FinalRisk{Risk: round3(clamp(r)), Reasons: reasons}
}

// Apply writes finals into g for the given node ids. Risk never decreases,
// except that known-bad accounts are forced to 1.0. Radius is refreshed.
func Apply(g *graph.Store, finals map[string]FinalRisk, ids []string, seedID string) {
	for _, id := range ids {
		n := g.FindNode(id)
		f, ok := finals[id]
		if n == nil || !ok {
			continue
		}
		if n.IsKnownHighRisk {
			n.RiskLevel = 1
		} else {
			n.RiskLevel = max(n.RiskLevel, f.Risk)
		}
		for _, r := range f.Reasons {
			n.AddReason(r)
		}
		n.Radius = max(n.Radius, Radius(n, id == seedID))
	}
}
