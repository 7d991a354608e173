package analysis

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/ledgerlens/internal/graph"
	"github.com/mbd888/ledgerlens/internal/ledger"
	"github.com/mbd888/ledgerlens/internal/risk"
	"github.com/mbd888/ledgerlens/internal/riskmodel"
	"github.com/mbd888/ledgerlens/internal/testutil"
)

func newTestEngine(src ledger.Source, model *riskmodel.Model, opts ...Option) *Engine {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(src, risk.NewScorer(model), append([]Option{WithLogger(quiet)}, opts...)...)
}

func findingKinds(fs []risk.Finding) map[string]int {
	out := make(map[string]int)
	for _, f := range fs {
		out[f.Kind]++
	}
	return out
}

func assertRiskInRange(t *testing.T, g *graph.Store) {
	t.Helper()
	for _, n := range g.Nodes() {
		assert.GreaterOrEqual(t, n.RiskLevel, 0.0, n.ID)
		assert.LessOrEqual(t, n.RiskLevel, 1.0, n.ID)
	}
}

// issuerFixture builds a seed that issues GEM to three holders who open
// trust lines in order.
func issuerFixture() (*ledger.MemorySource, string, []string) {
	src := ledger.NewMemorySource()
	issuer := testutil.Address(1)
	holders := []string{testutil.Address(11), testutil.Address(12), testutil.Address(13)}

	src.AddAccount(issuer, 86_000_000)
	for _, h := range holders {
		src.AddAccount(h, 60_000_000)
	}
	src.AddIssuedAsset(issuer, "GEM", "5000000")
	for i, h := range holders {
		src.AddTransaction(testutil.TrustSet(h, "GEM", issuer, time.Duration(i)*time.Minute))
		src.AddTrustline(h, issuer, "GEM", "1000")
	}
	src.AddTransaction(testutil.IssuedPayment(issuer, holders[0], "GEM", issuer, "1000", 3*time.Minute))
	src.AddTransaction(testutil.IssuedPayment(issuer, holders[1], "GEM", issuer, "1000", 4*time.Minute))
	return src, issuer, holders
}

func TestRunSeedWithoutActivity(t *testing.T) {
	src := ledger.NewMemorySource()
	seed := testutil.Address(1)
	src.AddAccount(seed, 60_000_000)

	run, err := newTestEngine(src, nil).Run(context.Background(), seed, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, StateComplete, run.State)
	assert.Equal(t, 1, run.Store.NodeCount())
	assert.Zero(t, run.Store.EdgeCount())
	assert.Equal(t, risk.Metrics{}, run.Metrics)
	assert.Equal(t, 1, findingKinds(run.Findings)[risk.FindingNetworkRisk])
	assert.Len(t, run.Findings, 1)
}

func TestRunSingleLowRiskCounterparty(t *testing.T) {
	src := ledger.NewMemorySource()
	seed, b := testutil.Address(1), testutil.Address(2)
	src.AddAccount(seed, 60_000_000)
	src.AddAccount(b, 60_000_000)
	for i := 12; i > 0; i-- {
		src.AddTransaction(testutil.Payment(b, testutil.Address(200+i), 10, -time.Duration(i)*72*time.Hour))
	}
	src.AddTransaction(testutil.Payment(seed, b, 100, 0))

	run, err := newTestEngine(src, nil).Run(context.Background(), seed, RunOptions{MaxDepth: 1})
	require.NoError(t, err)

	g := run.Store
	assert.Equal(t, 2, g.NodeCount())
	require.Equal(t, 1, g.EdgeCount())
	edge := g.Edge(seed, b)
	require.NotNil(t, edge)
	assert.False(t, edge.IsSuspicious)
	assert.Equal(t, graph.RelPayment, edge.Kind)

	node := g.FindNode(b)
	require.NotNil(t, node)
	assert.Less(t, node.RiskLevel, 0.5)
	assert.InDelta(t, 0.05, node.RiskLevel, 1e-9)
	assert.Equal(t, 1, run.Metrics.ConnectedAccountCount)
}

func TestRunKnownHighRiskCounterparty(t *testing.T) {
	src := ledger.NewMemorySource()
	seed, bad, beyond := testutil.Address(1), testutil.Address(66), testutil.Address(67)
	src.AddAccount(seed, 60_000_000)
	src.AddAccount(bad, 60_000_000)
	src.AddAccount(beyond, 60_000_000)
	src.AddTransaction(testutil.Payment(seed, bad, 50, 0))
	src.AddTransaction(testutil.Payment(bad, beyond, 50, time.Hour))

	model := riskmodel.Default().WithKnownHighRisk(bad)
	run, err := newTestEngine(src, model).Run(context.Background(), seed, RunOptions{})
	require.NoError(t, err)

	g := run.Store
	node := g.FindNode(bad)
	require.NotNil(t, node)
	assert.Equal(t, 1.0, node.RiskLevel)
	assert.True(t, node.IsKnownHighRisk)

	edge := g.Edge(seed, bad)
	require.NotNil(t, edge)
	assert.True(t, edge.IsSuspicious)
	assert.True(t, edge.HasKind(graph.RelHighRiskPairing))

	assert.Nil(t, g.FindNode(beyond), "high-risk accounts are recorded but not expanded")
	kinds := findingKinds(run.Findings)
	assert.Equal(t, 1, kinds[risk.FindingKnownHighRiskWallets])
	assert.Equal(t, 1, kinds[risk.FindingNetworkRisk])
	assert.Equal(t, risk.SeverityCritical, run.NetworkRisk.Level)
}

func TestRunHypedAssetWithFewHolders(t *testing.T) {
	src := ledger.NewMemorySource()
	seed := testutil.Address(1)
	src.AddAccount(seed, 60_000_000)
	src.AddIssuedAsset(seed, "MOON", "1000")

	run, err := newTestEngine(src, nil).Run(context.Background(), seed, RunOptions{})
	require.NoError(t, err)

	assetID := graph.AssetID("MOON", seed)
	asset := run.Store.FindNode(assetID)
	require.NotNil(t, asset)
	assert.Equal(t, graph.KindAsset, asset.Kind)
	assert.Equal(t, seed, asset.IssuerID)
	assert.GreaterOrEqual(t, asset.RiskLevel, 0.7)
	assert.Contains(t, asset.Reasons, `suspicious asset name "MOON"`)
	assert.Contains(t, asset.Reasons, "few holders (~0)")
	assert.True(t, asset.IssueDateEstimated)
	assert.True(t, run.Store.Edge(seed, assetID).HasKind(graph.RelAssetIssuance))

	assert.Equal(t, 1, findingKinds(run.Findings)[risk.FindingHighRiskAssets])
	assert.Equal(t, 1, run.Metrics.ConnectedAssetCount)
	assert.True(t, run.Store.FindNode(seed).IsCreatorAccount)
}

func TestRunEarlyParticipants(t *testing.T) {
	src, issuer, holders := issuerFixture()

	run, err := newTestEngine(src, nil).Run(context.Background(), issuer, RunOptions{})
	require.NoError(t, err)

	g := run.Store
	assetID := graph.AssetID("GEM", issuer)
	asset := g.FindNode(assetID)
	require.NotNil(t, asset)
	assert.False(t, asset.IssueDateEstimated)
	assert.True(t, asset.IssueDate.Equal(testutil.Epoch))
	assert.Equal(t, 3, asset.EstimatedHolderCount)

	for i, h := range holders {
		n := g.FindNode(h)
		require.NotNil(t, n, h)
		assert.True(t, n.IsEarlyParticipant, h)
		assert.Equal(t, i+1, n.EarlyRank, h)
		assert.Equal(t, i+1, n.TrustPosition, h)
		assert.GreaterOrEqual(t, n.RiskLevel, risk.EarlyBandRisk(i), h)
		e := g.Edge(h, assetID)
		require.NotNil(t, e, h)
		assert.True(t, e.HasKind(graph.RelEarlyAssetActivity))
	}

	first := g.FindNode(holders[0])
	require.NotNil(t, first.Enhanced)
	assert.True(t, first.Enhanced.CreatorConnection)
	assert.Equal(t, 1, findingKinds(run.Findings)[risk.FindingHighRiskEarly])
	assertRiskInRange(t, g)
}

func TestRunNeverExpandsAnAccountTwice(t *testing.T) {
	src := ledger.NewMemorySource()
	a, b, c := testutil.Address(1), testutil.Address(2), testutil.Address(3)
	for _, addr := range []string{a, b, c} {
		src.AddAccount(addr, 60_000_000)
	}
	src.AddTransaction(testutil.Payment(a, b, 5, 0))
	src.AddTransaction(testutil.Payment(b, c, 5, time.Hour))
	src.AddTransaction(testutil.Payment(c, a, 5, 2*time.Hour))
	src.AddTransaction(testutil.Payment(b, a, 5, 3*time.Hour))

	var expanded []string
	engine := newTestEngine(src, nil, WithProgress(func(p Progress) {
		if p.State == StateExpanding && p.Account != "" {
			expanded = append(expanded, p.Account)
		}
	}))
	run, err := engine.Run(context.Background(), a, RunOptions{MaxDepth: 10})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{a, b, c}, expanded)
	assert.Equal(t, 3, run.Store.NodeCount())
	// Expansion and immediate scoring share one upstream request.
	assert.Equal(t, 1, src.Calls("account_tx", b))
}

func TestRunRespectsDepthBudget(t *testing.T) {
	src := ledger.NewMemorySource()
	chain := []string{testutil.Address(1), testutil.Address(2), testutil.Address(3), testutil.Address(4), testutil.Address(5)}
	for i := 0; i+1 < len(chain); i++ {
		src.AddAccount(chain[i], 60_000_000)
		src.AddTransaction(testutil.Payment(chain[i], chain[i+1], 5, time.Duration(i)*time.Hour))
	}

	run, err := newTestEngine(src, nil).Run(context.Background(), chain[0], RunOptions{MaxDepth: 2})
	require.NoError(t, err)

	g := run.Store
	assert.NotNil(t, g.FindNode(chain[1]))
	assert.NotNil(t, g.FindNode(chain[2]), "nodes at the depth limit are recorded")
	assert.Nil(t, g.FindNode(chain[3]), "nodes at the depth limit are not expanded")
}

func TestRunRespectsNodeBudget(t *testing.T) {
	src := ledger.NewMemorySource()
	seed := testutil.Address(1)
	src.AddAccount(seed, 60_000_000)
	for i := range 30 {
		src.AddTransaction(testutil.Payment(seed, testutil.Address(100+i), 5, time.Duration(i)*time.Hour))
	}

	run, err := newTestEngine(src, nil).Run(context.Background(), seed, RunOptions{MaxNodes: 10})
	require.NoError(t, err)
	assert.Equal(t, 10, run.Store.NodeCount())
	for _, e := range run.Store.Edges() {
		assert.NotNil(t, run.Store.FindNode(e.Source))
		assert.NotNil(t, run.Store.FindNode(e.Target))
	}

	run, err = newTestEngine(src, nil).Run(context.Background(), seed, RunOptions{MaxNodes: 100, MaxDepth: 1})
	require.NoError(t, err)
	assert.Equal(t, 1+riskmodel.Default().Traversal.MaxNeighborsPerNode, run.Store.NodeCount())
}

func TestRunKnownHighRiskSeed(t *testing.T) {
	src := ledger.NewMemorySource()
	seed := testutil.Address(1)
	src.AddAccount(seed, 60_000_000)

	run, err := newTestEngine(src, riskmodel.Default().WithKnownHighRisk(seed)).Run(context.Background(), seed, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, run.Store.FindNode(seed).RiskLevel)
	assert.Equal(t, 1, run.NetworkRisk.KnownBadCount)
}

func TestRunRiskStaysInRangeForExtremeAmounts(t *testing.T) {
	src := ledger.NewMemorySource()
	seed, whale, odd := testutil.Address(1), testutil.Address(2), testutil.Address(3)
	src.AddAccount(seed, 90_000_000)
	src.AddAccount(whale, 90_000_000)
	src.AddTransaction(testutil.Payment(seed, whale, 9_000_000_000_000, 0))
	src.AddTransaction(ledger.Transaction{
		Type: ledger.TxPayment, Account: seed, Destination: odd,
		Amount: ledger.Native("-5000000"), Date: testutil.Epoch.Add(time.Minute),
	})

	run, err := newTestEngine(src, nil).Run(context.Background(), seed, RunOptions{})
	require.NoError(t, err)
	assertRiskInRange(t, run.Store)
	assert.True(t, run.Store.Edge(seed, whale).IsSuspicious)
	assert.False(t, run.Store.Edge(seed, odd).IsSuspicious)
}

func TestRunDegradesOnNodeFailure(t *testing.T) {
	src := ledger.NewMemorySource()
	seed, flaky := testutil.Address(1), testutil.Address(2)
	src.AddAccount(seed, 60_000_000)
	src.AddTransaction(testutil.Payment(seed, flaky, 5, 0))
	src.Fail(flaky, fmt.Errorf("%w: connection reset", ledger.ErrNetwork))

	run, err := newTestEngine(src, nil).Run(context.Background(), seed, RunOptions{})
	require.NoError(t, err)

	node := run.Store.FindNode(flaky)
	require.NotNil(t, node)
	assert.True(t, node.Degraded)
	assert.GreaterOrEqual(t, node.RiskLevel, 0.5)
	assert.Positive(t, run.Failures)
	assert.Equal(t, StateComplete, run.State)
}

func TestRunFailsWhenSeedUnreachable(t *testing.T) {
	src := ledger.NewMemorySource()
	seed := testutil.Address(1)
	src.AddAccount(seed, 60_000_000)
	src.Fail(seed, fmt.Errorf("%w: timeout", ledger.ErrNetwork))

	run, err := newTestEngine(src, nil).Run(context.Background(), seed, RunOptions{})
	require.ErrorIs(t, err, ErrLedgerUnavailable)
	require.NotNil(t, run)
	assert.Equal(t, StateFailed, run.State)
	assert.Equal(t, 1, run.Store.NodeCount(), "partial graph stays inspectable")
	assert.NotEmpty(t, run.Report().Error)
}

func TestRunUnfundedSeed(t *testing.T) {
	src := ledger.NewMemorySource()
	seed := testutil.Address(1)

	run, err := newTestEngine(src, nil).Run(context.Background(), seed, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, run.Store.NodeCount())
}

func TestRunInvalidAddress(t *testing.T) {
	src := ledger.NewMemorySource()

	run, err := newTestEngine(src, nil).Run(context.Background(), "not-an-address", RunOptions{})
	require.ErrorIs(t, err, ErrInvalidAddress)
	assert.Equal(t, StateFailed, run.State)
	assert.Zero(t, run.Store.NodeCount())
	assert.Zero(t, src.Calls("account_tx", "not-an-address"))
}

func TestRunCanceled(t *testing.T) {
	src, issuer, _ := issuerFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := newTestEngine(src, nil).Run(ctx, issuer, RunOptions{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, run.State)
}

func TestRunIsDeterministic(t *testing.T) {
	src, issuer, _ := issuerFixture()
	engine := newTestEngine(src, nil)

	first, err := engine.Run(context.Background(), issuer, RunOptions{})
	require.NoError(t, err)
	second, err := engine.Run(context.Background(), issuer, RunOptions{})
	require.NoError(t, err)

	a, b := first.Report(), second.Report()
	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Equal(t, a.Nodes, b.Nodes)
	assert.Equal(t, a.Edges, b.Edges)
	assert.Equal(t, a.Findings, b.Findings)
	assert.Equal(t, a.Metrics, b.Metrics)
	assert.Equal(t, a.NetworkRisk, b.NetworkRisk)
}

func TestRunProgressStates(t *testing.T) {
	src, issuer, _ := issuerFixture()

	var states []State
	var runIDs = make(map[string]bool)
	engine := newTestEngine(src, nil, WithProgress(func(p Progress) {
		runIDs[p.RunID] = true
		if len(states) == 0 || states[len(states)-1] != p.State {
			states = append(states, p.State)
		}
	}))
	run, err := engine.Run(context.Background(), issuer, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, []State{
		StateValidating,
		StateExpanding,
		StateEarlyParticipants,
		StateFinalizing,
		StateFindings,
		StateComplete,
	}, states)
	assert.Equal(t, map[string]bool{run.ID: true}, runIDs)
}

func TestRunWithProgressCallsBothCallbacks(t *testing.T) {
	src := ledger.NewMemorySource()
	seed := testutil.Address(1)
	src.AddAccount(seed, 60_000_000)

	var engineEvents, callEvents int
	engine := newTestEngine(src, nil, WithProgress(func(Progress) { engineEvents++ }))
	_, err := engine.RunWithProgress(context.Background(), seed, RunOptions{}, func(Progress) { callEvents++ })
	require.NoError(t, err)
	assert.Positive(t, callEvents)
	assert.Equal(t, engineEvents, callEvents)
}

func TestScoreAccount(t *testing.T) {
	src := ledger.NewMemorySource()
	addr := testutil.Address(1)
	src.AddAccount(addr, 86_000_000)
	src.AddIssuedAsset(addr, "ELONPUMP", "100")

	engine := newTestEngine(src, nil)
	got, err := engine.ScoreAccount(context.Background(), ledger.WithTag(addr, 9))
	require.NoError(t, err)
	assert.Equal(t, addr, got.Address)
	assert.True(t, got.Score.IsCreator)
	assert.Greater(t, got.Score.Immediate, 0.5)

	_, err = engine.ScoreAccount(context.Background(), "rBad")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	src.Fail(addr, ledger.ErrNetwork)
	_, err = newTestEngine(src, nil).ScoreAccount(context.Background(), addr)
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
}

func countKind(g *graph.Store, kind graph.RelationshipKind) int {
	n := 0
	for _, e := range g.Edges() {
		if e.HasKind(kind) {
			n++
		}
	}
	return n
}

func TestRunRelatesAccountsFirstSeenTogether(t *testing.T) {
	src := ledger.NewMemorySource()
	seed, a, b, c := testutil.Address(1), testutil.Address(2), testutil.Address(3), testutil.Address(4)
	for _, addr := range []string{seed, a, b, c} {
		src.AddAccount(addr, 60_000_000)
	}
	src.AddTransaction(testutil.Payment(seed, a, 5, 0))
	src.AddTransaction(testutil.Payment(seed, b, 5, 2*time.Minute))
	src.AddTransaction(testutil.Payment(seed, c, 5, 3*time.Hour))

	run, err := newTestEngine(src, nil).Run(context.Background(), seed, RunOptions{})
	require.NoError(t, err)

	g := run.Store
	e := g.Edge(a, b)
	require.NotNil(t, e)
	assert.True(t, e.HasKind(graph.RelRelatedAccounts))
	assert.Equal(t, riskmodel.Default().Enrichment.RelatedWeight, e.Weight)
	assert.Nil(t, g.Edge(a, c), "first seen hours apart")
	assert.Nil(t, g.Edge(b, c))
}

func TestRunRelatesAccountsSharingBurstPattern(t *testing.T) {
	src := ledger.NewMemorySource()
	seed, a, b := testutil.Address(1), testutil.Address(2), testutil.Address(3)
	for _, addr := range []string{seed, a, b} {
		src.AddAccount(addr, 60_000_000)
	}
	for i := range 5 {
		src.AddTransaction(testutil.Payment(seed, a, 5, time.Duration(i)*time.Minute))
	}
	for i := range 5 {
		src.AddTransaction(testutil.Payment(seed, b, 5, 5*time.Hour+time.Duration(i)*time.Minute))
	}

	run, err := newTestEngine(src, nil).Run(context.Background(), seed, RunOptions{})
	require.NoError(t, err)

	g := run.Store
	require.NotNil(t, g.FindNode(a))
	require.NotNil(t, g.FindNode(b))
	assert.Equal(t, risk.PatternBurst, g.FindNode(a).Pattern)
	assert.Equal(t, risk.PatternBurst, g.FindNode(b).Pattern)
	e := g.Edge(a, b)
	require.NotNil(t, e, "first seen hours apart, linked by pattern")
	assert.True(t, e.HasKind(graph.RelRelatedAccounts))
}

func TestRunLinksEarlyParticipantsOfSharedAsset(t *testing.T) {
	src, issuer, holders := issuerFixture()

	run, err := newTestEngine(src, nil).Run(context.Background(), issuer, RunOptions{})
	require.NoError(t, err)

	g := run.Store
	for _, pair := range [][2]string{{holders[0], holders[1]}, {holders[1], holders[2]}, {holders[0], holders[2]}} {
		e := g.Edge(pair[0], pair[1])
		require.NotNil(t, e, pair)
		assert.True(t, e.HasKind(graph.RelSharedAsset), pair)
	}
}

func TestRunSharedAssetMemberLimit(t *testing.T) {
	src, issuer, holders := issuerFixture()
	model := riskmodel.Default()
	model.Enrichment.SharedAssetMaxMembers = 2

	run, err := newTestEngine(src, model).Run(context.Background(), issuer, RunOptions{})
	require.NoError(t, err)

	g := run.Store
	require.Len(t, g.Neighbors(graph.AssetID("GEM", issuer)), 1+len(holders))
	assert.Equal(t, 1, countKind(g, graph.RelSharedAsset))
	if e := g.Edge(holders[1], holders[2]); e != nil {
		assert.False(t, e.HasKind(graph.RelSharedAsset))
	}
}

func TestRunEnrichmentRespectsEdgeBudget(t *testing.T) {
	src := ledger.NewMemorySource()
	seed := testutil.Address(1)
	src.AddAccount(seed, 60_000_000)
	for i := range 9 {
		peer := testutil.Address(100 + i)
		src.AddAccount(peer, 60_000_000)
		src.AddTransaction(testutil.Payment(seed, peer, 5, time.Duration(i)*time.Second))
	}

	run, err := newTestEngine(src, nil).Run(context.Background(), seed, RunOptions{MaxNodes: 10})
	require.NoError(t, err)

	g := run.Store
	assert.Equal(t, 10, g.NodeCount())
	assert.LessOrEqual(t, g.EdgeCount(), 10)
	assert.Positive(t, countKind(g, graph.RelRelatedAccounts), "enrichment still links within the budget")
}

func TestRunEnrichmentKeepsKnownBadPairingsOverBudget(t *testing.T) {
	src := ledger.NewMemorySource()
	seed := testutil.Address(1)
	bad := []string{testutil.Address(2), testutil.Address(3), testutil.Address(4)}
	src.AddAccount(seed, 60_000_000)
	for i, b := range bad {
		src.AddAccount(b, 60_000_000)
		src.AddTransaction(testutil.Payment(seed, b, 5, time.Duration(i)*time.Hour))
	}

	model := riskmodel.Default().WithKnownHighRisk(bad...)
	run, err := newTestEngine(src, model).Run(context.Background(), seed, RunOptions{MaxNodes: 4})
	require.NoError(t, err)

	g := run.Store
	for i, a := range bad {
		for _, b := range bad[i+1:] {
			e := g.Edge(a, b)
			require.NotNil(t, e)
			assert.True(t, e.HasKind(graph.RelHighRiskPairing))
		}
	}
	assert.Equal(t, 6, g.EdgeCount())
}

func TestRunTrustPositionLearnedAfterHolderAssessed(t *testing.T) {
	src := ledger.NewMemorySource()
	seed, holder, issuer := testutil.Address(1), testutil.Address(2), testutil.Address(3)
	src.AddAccount(seed, 60_000_000)
	src.AddAccount(holder, 60_000_000)
	src.AddAccount(issuer, 10_000_000)
	src.AddTransaction(testutil.Payment(seed, holder, 5, 0))
	src.AddTransaction(testutil.Payment(issuer, seed, 5, time.Hour))
	src.AddIssuedAsset(issuer, "ABC", "1000")
	src.AddTrustline(holder, issuer, "ABC", "100")

	run, err := newTestEngine(src, nil).Run(context.Background(), seed, RunOptions{})
	require.NoError(t, err)

	n := run.Store.FindNode(holder)
	require.NotNil(t, n)
	assert.Equal(t, 1, n.TrustPosition)
	require.NotNil(t, n.Enhanced)
	assert.Equal(t, risk.TrustPositionScore(1), n.Enhanced.TrustPosition)
	assert.True(t, n.Enhanced.CreatorConnection, "holder paid by the seed")

	in := run.Inputs[holder]
	assert.Equal(t, 1, in.TrustPosition)
	assert.True(t, in.Enhanced.CreatorConnection)
}
