package risk

import (
	"math"

	"github.com/mbd888/ledgerlens/internal/graph"
)

// Metrics summarizes a finished graph.
type Metrics struct {
	RiskScorePercent      int `json:"riskScorePercent"`
	ConnectedAccountCount int `json:"connectedAccountCount"`
	ConnectedAssetCount   int `json:"connectedAssetCount"`
	SuspiciousEdgeCount   int `json:"suspiciousEdgeCount"`
}

// NetworkRisk is the aggregate risk of the whole discovered network.
type NetworkRisk struct {
	Score         float64  `json:"score"`
	Level         Severity `json:"level"`
	MeanRisk      float64  `json:"meanRisk"`
	MaxRisk       float64  `json:"maxRisk"`
	Density       float64  `json:"density"`
	KnownBadCount int      `json:"knownBadCount"`
}

// ComputeMetrics derives the report metrics. Risk statistics cover every
// node except the seed; larger networks amplify the percentage up to the
// configured node count.
func (s *Scorer) ComputeMetrics(g *graph.Store, seedID string) Metrics {
	m := Metrics{SuspiciousEdgeCount: g.SuspiciousEdgeCount()}
	var sum float64
	var n int
	for _, node := range g.Nodes() {
		if node.ID == seedID {
			continue
		}
		n++
		sum += node.RiskLevel
		switch node.Kind {
		case graph.KindAccount:
			m.ConnectedAccountCount++
		case graph.KindAsset:
			m.ConnectedAssetCount++
		}
	}
	if n == 0 {
		return m
	}
	amp := s.model.Final.NodeCountAmplification
	if amp <= 0 {
		amp = 1
	}
	mean := sum / float64(n)
	m.RiskScorePercent = int(math.Round(mean * 100 * float64(min(n, amp)) / float64(amp)))
	return m
}

// ComputeNetworkRisk blends mean and max node risk with an interconnection
// density term. Known-bad accounts dominate when present.
func (s *Scorer) ComputeNetworkRisk(g *graph.Store, seedID string) NetworkRisk {
	w := s.model.Network
	var nr NetworkRisk
	var sum float64
	var n int
	for _, node := range g.Nodes() {
		if node.IsKnownHighRisk {
			nr.KnownBadCount++
		}
		if node.ID == seedID {
			continue
		}
		n++
		sum += node.RiskLevel
		nr.MaxRisk = max(nr.MaxRisk, node.RiskLevel)
	}
	if n > 0 {
		nr.MeanRisk = sum / float64(n)
	}
	if nodes, edges := g.NodeCount(), g.EdgeCount(); nodes > 0 && edges > 0 {
		ratio := float64(edges) / float64(nodes)
		nr.Density = ratio / (w.DensityKnee + ratio)
	}

	score := w.MeanWeight*nr.MeanRisk + w.DensityWeight*nr.Density + w.MaxWeight*nr.MaxRisk
	if nr.KnownBadCount > 0 {
		score = max(score, w.KnownBadFloor+min(w.KnownBadCap, w.KnownBadStep*float64(nr.KnownBadCount)))
	}
	nr.Score = round3(clamp(score))
	nr.MeanRisk = round3(nr.MeanRisk)
	nr.Density = round3(nr.Density)
	nr.Level = s.SeverityFor(nr.Score)
	return nr
}
