package analysis

import (
	"time"

	"github.com/mbd888/ledgerlens/internal/graph"
	"github.com/mbd888/ledgerlens/internal/risk"
)

// enrich adds the structural edges that transaction evidence alone does not
// produce. Known-bad pairings always land; relation and shared-asset edges
// are added only while the edge count is below the run's node budget.
func (r *runner) enrich() {
	r.pairKnownBad()
	r.relateAccounts()
	r.linkSharedAssets()
}

// pairKnownBad connects every known high-risk account to every other one
// and to the seed with a suspicious edge.
func (r *runner) pairKnownBad() {
	g := r.run.Store
	var bad []string
	for _, n := range g.Nodes() {
		if n.IsAccount() && n.IsKnownHighRisk {
			bad = append(bad, n.ID)
		}
	}
	for i, a := range bad {
		if a != r.run.SeedID {
			g.UpsertEdge(graph.Edge{Source: r.run.SeedID, Target: a, Weight: 1, IsSuspicious: true, Kind: graph.RelHighRiskPairing})
		}
		for _, b := range bad[i+1:] {
			g.UpsertEdge(graph.Edge{Source: a, Target: b, Weight: 1, IsSuspicious: true, Kind: graph.RelHighRiskPairing})
		}
	}
}

// relateAccounts links accounts first seen within the timing window of each
// other, or sharing a non-trivial behavioural pattern.
func (r *runner) relateAccounts() {
	g := r.run.Store
	var accounts []*graph.Node
	for _, n := range g.Nodes() {
		if n.IsAccount() {
			accounts = append(accounts, n)
		}
	}
	w := r.model.Enrichment
	for i, a := range accounts {
		for _, b := range accounts[i+1:] {
			if related(a, b, w.TimingWindow) {
				if !r.link(graph.Edge{Source: a.ID, Target: b.ID, Weight: w.RelatedWeight, Kind: graph.RelRelatedAccounts}) {
					return
				}
			}
		}
	}
}

// link upserts an enrichment edge. It reports false once a new edge would
// push the edge count past MaxNodes; merges into existing edges still apply.
func (r *runner) link(e graph.Edge) bool {
	g := r.run.Store
	if !g.HasEdge(e.Source, e.Target) && g.EdgeCount() >= r.run.MaxNodes {
		return false
	}
	g.UpsertEdge(e)
	return true
}

func related(a, b *graph.Node, window time.Duration) bool {
	if a.Pattern == b.Pattern && (a.Pattern == risk.PatternBurst || a.Pattern == risk.PatternHighFrequency) {
		return true
	}
	if a.Interaction == nil || b.Interaction == nil {
		return false
	}
	fa, fb := a.Interaction.FirstSeen, b.Interaction.FirstSeen
	if fa.IsZero() || fb.IsZero() {
		return false
	}
	d := fa.Sub(fb)
	if d < 0 {
		d = -d
	}
	return d <= window
}

// linkSharedAssets connects accounts that interacted with the same asset,
// up to SharedAssetMaxMembers per asset.
func (r *runner) linkSharedAssets() {
	g := r.run.Store
	w := r.model.Enrichment
	for _, asset := range g.Nodes() {
		if asset.Kind != graph.KindAsset {
			continue
		}
		var members []string
		for _, id := range g.Neighbors(asset.ID) {
			if n := g.FindNode(id); n != nil && n.IsAccount() {
				members = append(members, id)
				if len(members) >= w.SharedAssetMaxMembers {
					break
				}
			}
		}
		for i, a := range members {
			for _, b := range members[i+1:] {
				if !r.link(graph.Edge{Source: a, Target: b, Weight: w.SharedAssetWeight, Kind: graph.RelSharedAsset}) {
					return
				}
			}
		}
	}
}
