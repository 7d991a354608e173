package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/mbd888/ledgerlens/internal/graph"
	"github.com/mbd888/ledgerlens/internal/ledger"
	"github.com/mbd888/ledgerlens/internal/logging"
	"github.com/mbd888/ledgerlens/internal/metrics"
	"github.com/mbd888/ledgerlens/internal/risk"
	"github.com/mbd888/ledgerlens/internal/riskmodel"
	"github.com/mbd888/ledgerlens/internal/traces"
)

// runner carries the mutable state of one run. It is confined to the
// goroutine that called Engine.Run.
type runner struct {
	scorer *risk.Scorer
	model  *riskmodel.Model
	run    *Run
	src    ledger.Source
	emit   func(Progress)

	seedBase string
	queue    []workItem
	// visited is keyed by base address so tagged ids of one account are
	// expanded once.
	visited map[string]bool
	// trustPos is the 1-based trust-line position of holders of assets
	// issued by expanded accounts.
	trustPos map[string]int
	// creators are base addresses scored as asset creators so far.
	creators map[string]bool
	assets   []discoveredAsset
}

type workItem struct {
	id    string
	depth int
}

type discoveredAsset struct {
	id     string
	code   string
	issuer string
}

func (r *runner) execute(ctx context.Context, seed string) error {
	r.setState(StateValidating, "validating seed address")
	if !r.src.IsValidAddress(seed) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, seed)
	}

	r.seedBase = ledger.BaseAddress(seed)
	seedID := r.seedBase
	if r.model.Traversal.TrackDestinationTags {
		seedID = seed
	}
	r.run.SeedID = seedID
	seedNode := r.run.Store.UpsertNode(graph.Node{ID: seedID, Kind: graph.KindAccount})
	seedNode.Radius = risk.Radius(seedNode, true)

	r.setState(StateExpanding, "expanding account graph")
	r.visited[r.seedBase] = true
	r.queue = append(r.queue, workItem{id: seedID})
	for len(r.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := r.queue[0]
		r.queue = r.queue[1:]
		if err := r.expand(ctx, item); err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	r.setState(StateEarlyParticipants, fmt.Sprintf("ranking participants of %d assets", len(r.assets)))
	if err := r.identifyEarlyParticipants(ctx); err != nil {
		return err
	}

	r.setState(StateFinalizing, "finalizing risk")
	r.enrich()
	if err := r.finalize(ctx); err != nil {
		return err
	}

	r.setState(StateFindings, "generating findings")
	g := r.run.Store
	r.run.Metrics = r.scorer.ComputeMetrics(g, seedID)
	r.run.NetworkRisk = r.scorer.ComputeNetworkRisk(g, seedID)
	r.run.Findings = r.scorer.GenerateFindings(g, seedID, r.run.NetworkRisk)

	r.setState(StateComplete, fmt.Sprintf("network risk %s", r.run.NetworkRisk.Level))
	return nil
}

// expand fetches one account's history, trust lines and issued assets and
// records its neighbours and assets.
func (r *runner) expand(ctx context.Context, item workItem) error {
	addr := ledger.BaseAddress(item.id)
	ctx, span := traces.StartSpan(ctx, "analysis.expand", traces.Account(addr), traces.Depth(item.depth))
	defer traces.End(span, nil)

	tr := r.model.Traversal
	txs, txErr := r.src.AccountTransactions(ctx, addr, tr.TxFetchLimit)
	lines, lineErr := r.src.Trustlines(ctx, addr)
	issued, issErr := r.src.IssuedAssets(ctx, addr)

	isSeed := item.id == r.run.SeedID
	if isSeed && failed(txErr) && failed(lineErr) && failed(issErr) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w: %w", ErrLedgerUnavailable, errors.Join(txErr, lineErr, issErr))
	}
	r.absorb(ctx, "expand_transactions", addr, txErr)
	linesUnavailable := r.absorb(ctx, "expand_trustlines", addr, lineErr)
	r.absorb(ctx, "expand_issued_assets", addr, issErr)

	if isSeed {
		r.assess(ctx, item.id)
	}

	holders := r.recordTrustPositions(issued, lines)

	g := r.run.Store
	for _, nb := range r.neighbors(addr, txs, lines) {
		if g.FindNode(nb.id) == nil {
			if g.NodeCount() >= r.run.MaxNodes {
				continue
			}
			sc := r.assess(ctx, nb.id)
			base := ledger.BaseAddress(nb.id)
			if item.depth+1 < r.run.MaxDepth && !r.visited[base] && sc.Immediate < tr.StopExpansionThreshold {
				r.visited[base] = true
				r.queue = append(r.queue, workItem{id: nb.id, depth: item.depth + 1})
			}
		}
		g.UpsertEdge(graph.Edge{
			Source:       item.id,
			Target:       nb.id,
			Weight:       risk.EdgeWeight(nb.value),
			IsSuspicious: nb.suspicious,
			Kind:         nb.kind,
		})
	}

	for _, a := range issued {
		n := holders[a.AssetCode]
		if linesUnavailable {
			n = -1
		}
		r.addAsset(item.id, a, n)
	}

	r.notify(Progress{
		State:   StateExpanding,
		Account: item.id,
		Depth:   item.depth,
		Message: fmt.Sprintf("expanded %s", item.id),
	})
	return nil
}

// assess gathers evidence for an account, scores it and stores the node
// and its stage-one inputs. The seed keeps risk 0 until finalization.
func (r *runner) assess(ctx context.Context, id string) risk.AccountScore {
	ev, _ := r.gather(ctx, id)
	sc := r.scorer.ScoreAccount(ev)

	enhanced := sc.Enhanced
	interaction := risk.Summarize(ev.Transactions)
	isSeed := id == r.run.SeedID
	node := graph.Node{
		ID:               id,
		Kind:             graph.KindAccount,
		Degraded:         sc.Degraded,
		Reasons:          sc.Reasons,
		IsKnownHighRisk:  sc.IsKnownHighRisk,
		IsCreatorAccount: sc.IsCreator,
		TrustPosition:    ev.TrustPosition,
		Pattern:          sc.Pattern,
		Enhanced:         &enhanced,
		Interaction:      &interaction,
	}
	if !isSeed {
		node.RiskLevel = sc.Immediate
	}
	stored := r.run.Store.UpsertNode(node)
	stored.Radius = max(stored.Radius, risk.Radius(stored, isSeed))

	r.run.Inputs[id] = risk.BaseRiskInputs{
		Kind:            graph.KindAccount,
		Basic:           sc.Basic,
		Enhanced:        sc.Enhanced,
		TrustPosition:   ev.TrustPosition,
		IsKnownHighRisk: sc.IsKnownHighRisk,
		IsCreator:       sc.IsCreator,
		Degraded:        sc.Degraded,
	}
	if sc.IsCreator {
		r.creators[ledger.BaseAddress(id)] = true
	}
	return sc
}

// gather fetches the scoring evidence of an account through the run cache.
// It returns how many of the three fetches failed.
func (r *runner) gather(ctx context.Context, id string) (risk.AccountEvidence, int) {
	addr := ledger.BaseAddress(id)
	ev := risk.AccountEvidence{
		Address:       addr,
		TrustPosition: r.trustPos[addr],
		Seed:          r.seedBase,
		Creators:      r.creators,
	}
	unavailable := 0

	info, err := r.src.AccountInfo(ctx, addr)
	ev.Info = info
	if ev.InfoUnavailable = r.absorb(ctx, "score_account_info", addr, err); ev.InfoUnavailable {
		unavailable++
	}

	txs, err := r.src.AccountTransactions(ctx, addr, r.model.Traversal.TxFetchLimit)
	ev.Transactions = txs
	if ev.TransactionsUnavailable = r.absorb(ctx, "score_transactions", addr, err); ev.TransactionsUnavailable {
		unavailable++
	}

	issued, err := r.src.IssuedAssets(ctx, addr)
	ev.IssuedAssets = issued
	if r.absorb(ctx, "score_issued_assets", addr, err) {
		unavailable++
	}
	return ev, unavailable
}

// absorb logs and counts a per-node fetch error. It reports whether the
// data is unavailable; ErrNotFound means the account has no data, which is
// not a failure.
func (r *runner) absorb(ctx context.Context, stage, addr string, err error) bool {
	if !failed(err) {
		return false
	}
	r.run.Failures++
	metrics.NodeFetchFailuresTotal.WithLabelValues(stage).Inc()
	logging.L(ctx).Warn("ledger fetch failed, continuing with partial data",
		"stage", stage, "account", addr, "error", err)
	return true
}

func failed(err error) bool {
	return err != nil && !errors.Is(err, ledger.ErrNotFound)
}

type neighbor struct {
	id         string
	kind       graph.RelationshipKind
	value      float64
	suspicious bool
}

// neighbors extracts counterparties of addr in first-appearance order:
// transaction counterparties first, then trust-line peers. At most
// MaxNeighborsPerNode distinct neighbours are returned; later transactions
// with an already-listed neighbour still add to its value.
func (r *runner) neighbors(addr string, txs []ledger.Transaction, lines []ledger.Trustline) []*neighbor {
	limit := r.model.Traversal.MaxNeighborsPerNode
	index := make(map[string]*neighbor)
	var order []*neighbor
	add := func(id string, kind graph.RelationshipKind) *neighbor {
		if nb, ok := index[id]; ok {
			return nb
		}
		if len(order) >= limit {
			return nil
		}
		nb := &neighbor{id: id, kind: kind}
		index[id] = nb
		order = append(order, nb)
		return nb
	}

	for _, tx := range txs {
		cp := tx.Counterparty(addr)
		if cp == "" || cp == addr || !r.src.IsValidAddress(cp) {
			continue
		}
		id := cp
		if r.model.Traversal.TrackDestinationTags && tx.Destination == cp && tx.DestinationTag != nil {
			id = ledger.WithTag(cp, *tx.DestinationTag)
		}
		kind := graph.RelPayment
		if tx.Type == ledger.TxTrustSet {
			kind = graph.RelTrustEstablishment
		}
		nb := add(id, kind)
		if nb == nil {
			continue
		}
		nb.value += risk.TransferValue(tx)
		if r.scorer.IsSuspicious(r.scorer.ScoreTransaction(tx)) {
			nb.suspicious = true
		}
	}
	for _, tl := range lines {
		if tl.Counterparty == "" || tl.Counterparty == addr || !r.src.IsValidAddress(tl.Counterparty) {
			continue
		}
		add(tl.Counterparty, graph.RelTrustEstablishment)
	}
	return order
}

// recordTrustPositions numbers the holders of each asset issued by the
// account in trust-line order and returns the holder count per asset code.
func (r *runner) recordTrustPositions(issued []ledger.IssuedAsset, lines []ledger.Trustline) map[string]int {
	counts := make(map[string]int)
	if len(issued) == 0 {
		return counts
	}
	own := make(map[string]bool, len(issued))
	for _, a := range issued {
		own[a.AssetCode] = true
	}
	for _, tl := range lines {
		if !own[tl.AssetCode] || tl.Counterparty == "" {
			continue
		}
		counts[tl.AssetCode]++
		pos := counts[tl.AssetCode]
		if cur, ok := r.trustPos[tl.Counterparty]; !ok || pos < cur {
			r.trustPos[tl.Counterparty] = pos
		}
	}
	return counts
}

// addAsset records an issued asset and its issuance edge. holders is the
// observed trust-line count, or -1 when unknown.
func (r *runner) addAsset(issuerID string, a ledger.IssuedAsset, holders int) {
	g := r.run.Store
	issuer := ledger.BaseAddress(issuerID)
	id := graph.AssetID(a.AssetCode, issuer)

	if g.FindNode(id) == nil {
		if g.NodeCount() >= r.run.MaxNodes {
			return
		}
		sc := r.scorer.ScoreAsset(risk.AssetEvidence{
			Code:    a.AssetCode,
			Issuer:  issuer,
			Amount:  a.Amount,
			Holders: holders,
		})
		issuerRisk := 0.0
		if n := g.FindNode(issuerID); n != nil {
			issuerRisk = n.RiskLevel
		}
		stored := g.UpsertNode(graph.Node{
			ID:                   id,
			Kind:                 graph.KindAsset,
			RiskLevel:            r.scorer.WithIssuer(sc.Base, issuerRisk),
			Reasons:              sc.Reasons,
			IssuerID:             issuerID,
			AssetCode:            a.AssetCode,
			IssueDate:            sc.IssueDate,
			IssueDateEstimated:   sc.IssueDateEstimated,
			EstimatedHolderCount: sc.EstimatedHolders,
			IssuedAmount:         sc.IssuedAmount,
		})
		stored.Radius = risk.Radius(stored, false)
		r.run.Inputs[id] = risk.BaseRiskInputs{Kind: graph.KindAsset, AssetBase: sc.Base, IssuerID: issuerID}
		r.assets = append(r.assets, discoveredAsset{id: id, code: a.AssetCode, issuer: issuer})
	}

	g.UpsertEdge(graph.Edge{
		Source: issuerID,
		Target: id,
		Weight: risk.EdgeWeight(g.FindNode(id).IssuedAmount),
		Kind:   graph.RelAssetIssuance,
	})
}

// finalize applies stage-two risk in batches so progress can be reported
// on large graphs.
func (r *runner) finalize(ctx context.Context) error {
	g := r.run.Store
	r.refreshTrustPositions(ctx)
	finals := r.scorer.Finalize(g, r.run.Inputs, r.run.SeedID)

	nodes := g.Nodes()
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	batch := max(r.model.Traversal.FinalizeBatchSize, 1)
	for start := 0; start < len(ids); start += batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+batch, len(ids))
		risk.Apply(g, finals, ids[start:end], r.run.SeedID)
		r.notify(Progress{
			State:   StateFinalizing,
			Message: fmt.Sprintf("finalized %d of %d nodes", end, len(ids)),
			Done:    end,
			Total:   len(ids),
		})
	}
	return nil
}

// refreshTrustPositions applies trust positions recorded after an account
// was assessed. A holder reached before its issuer was scored with no
// position; its inputs and node are brought up to date here.
func (r *runner) refreshTrustPositions(ctx context.Context) {
	for _, n := range r.run.Store.Nodes() {
		if !n.IsAccount() {
			continue
		}
		addr := ledger.BaseAddress(n.ID)
		pos, ok := r.trustPos[addr]
		in, assessed := r.run.Inputs[n.ID]
		if !ok || !assessed || in.TrustPosition == pos {
			continue
		}
		in.TrustPosition = pos
		in.Enhanced.TrustPosition = risk.TrustPositionScore(pos)
		txs, err := r.src.AccountTransactions(ctx, addr, r.model.Traversal.TxFetchLimit)
		if err == nil {
			in.Enhanced.CreatorConnection = r.scorer.CreatorConnected(addr, r.seedBase, pos, txs)
		}
		r.run.Inputs[n.ID] = in

		enhanced := in.Enhanced
		n.Enhanced = &enhanced
		n.TrustPosition = pos
	}
}

func (r *runner) setState(s State, msg string) {
	r.run.State = s
	r.notify(Progress{State: s, Message: msg})
}

func (r *runner) notify(p Progress) {
	if r.emit == nil {
		return
	}
	p.RunID = r.run.ID
	p.Nodes = r.run.Store.NodeCount()
	p.Edges = r.run.Store.EdgeCount()
	r.emit(p)
}
