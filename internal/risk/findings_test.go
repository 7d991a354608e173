package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/ledgerlens/internal/graph"
)

func kinds(fs []Finding) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.Kind)
	}
	return out
}

func TestGenerateFindingsSeedOnly(t *testing.T) {
	s := NewScorer(nil)
	g := graph.NewStore()
	account(g, "S", 0)

	nr := s.ComputeNetworkRisk(g, "S")
	fs := s.GenerateFindings(g, "S", nr)
	require.Len(t, fs, 1)
	assert.Equal(t, FindingNetworkRisk, fs[0].Kind)
	assert.Equal(t, SeverityLow, fs[0].Severity)
	assert.Equal(t, 0.0, fs[0].Details["score"])
}

func TestGenerateFindingsRiskyNetwork(t *testing.T) {
	s := NewScorer(nil)
	g := graph.NewStore()
	account(g, "S", 0.1)
	a := account(g, "A", 0.9)
	a.IsKnownHighRisk = true
	b := account(g, "B", 0.75)
	b.IsCreatorAccount = true
	c := account(g, "C", 0.72)
	c.IsEarlyParticipant = true
	account(g, "D", 0.2)
	g.UpsertNode(graph.Node{ID: "MOON.B", Kind: graph.KindAsset, RiskLevel: 0.8, IssuerID: "B"})
	link(g, "S", "A", false)
	link(g, "A", "B", true)
	link(g, "S", "D", false)

	nr := s.ComputeNetworkRisk(g, "S")
	fs := s.GenerateFindings(g, "S", nr)

	assert.Equal(t, []string{
		FindingTopRiskAccounts,
		FindingKnownHighRiskWallets,
		FindingCreatorAccounts,
		FindingHighRiskEarly,
		FindingHighRiskAssets,
		FindingSuspiciousTransaction,
		FindingHighRiskConnections,
		FindingNetworkRisk,
	}, kinds(fs))

	top := fs[0].Details["accounts"].([]AccountRef)
	require.Len(t, top, 4)
	assert.Equal(t, []string{"A", "B", "C", "D"}, []string{top[0].ID, top[1].ID, top[2].ID, top[3].ID})
	assert.Equal(t, SeverityCritical, fs[0].Severity)

	assert.Equal(t, SeverityCritical, fs[1].Severity)
	assert.Equal(t, SeverityCritical, fs[4].Severity)

	links := fs[6].Details["edges"].([]EdgeRef)
	require.Len(t, links, 1)
	assert.ElementsMatch(t, []string{"A", "B"}, []string{links[0].Source, links[0].Target})

	last := fs[len(fs)-1]
	assert.Equal(t, nr.Level, last.Severity)
	assert.Equal(t, nr.Score, last.Details["score"])
}

func TestGenerateFindingsTopNStable(t *testing.T) {
	s := NewScorer(nil)
	g := graph.NewStore()
	account(g, "S", 0)
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		account(g, id, 0.3)
	}
	account(g, "h", 0.6)

	fs := s.GenerateFindings(g, "S", s.ComputeNetworkRisk(g, "S"))
	top := fs[0].Details["accounts"].([]AccountRef)
	require.Len(t, top, 5)
	got := []string{top[0].ID, top[1].ID, top[2].ID, top[3].ID, top[4].ID}
	assert.Equal(t, []string{"h", "a", "b", "c", "d"}, got, "ties keep discovery order")
}

func TestGenerateFindingsExactlyOneNetworkAssessment(t *testing.T) {
	s := NewScorer(nil)
	g := sampleGraph()

	count := 0
	for _, f := range s.GenerateFindings(g, "S", s.ComputeNetworkRisk(g, "S")) {
		if f.Kind == FindingNetworkRisk {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
