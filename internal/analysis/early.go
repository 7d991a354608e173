package analysis

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbd888/ledgerlens/internal/graph"
	"github.com/mbd888/ledgerlens/internal/ledger"
	"github.com/mbd888/ledgerlens/internal/risk"
)

// earlyTypes are the transaction types that count as taking part in a new
// asset.
var earlyTypes = map[string]bool{
	ledger.TxPayment:     true,
	ledger.TxTrustSet:    true,
	ledger.TxOfferCreate: true,
	ledger.TxAMMDeposit:  true,
	ledger.TxAMMCreate:   true,
}

// identifyEarlyParticipants ranks the first counterparties of every
// discovered asset. Fetches run concurrently; results are merged in asset
// discovery order so the graph does not depend on fetch timing.
func (r *runner) identifyEarlyParticipants(ctx context.Context) error {
	if len(r.assets) == 0 {
		return nil
	}
	tr := r.model.Traversal
	results := make([][]ledger.Transaction, len(r.assets))
	errs := make([]error, len(r.assets))

	var g errgroup.Group
	g.SetLimit(max(tr.EarlyParticipantConcurrency, 1))
	for i, a := range r.assets {
		g.Go(func() error {
			results[i], errs[i] = r.src.AssetFirstTransactions(ctx, a.issuer, a.code, tr.EarlyParticipantLimit)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	for i, a := range r.assets {
		if r.absorb(ctx, "early_participants", a.issuer, errs[i]) {
			continue
		}
		ranked := r.mergeEarly(ctx, a, results[i])
		r.notify(Progress{
			State:   StateEarlyParticipants,
			Message: fmt.Sprintf("%s: %d early participants", a.id, ranked),
			Done:    i + 1,
			Total:   len(r.assets),
		})
	}
	return nil
}

// mergeEarly flags the first participants of asset a and links them to it.
// It returns the number of ranked participants.
func (r *runner) mergeEarly(ctx context.Context, a discoveredAsset, txs []ledger.Transaction) int {
	g := r.run.Store
	asset := g.FindNode(a.id)
	if asset == nil {
		return 0
	}

	var ranked []string
	seen := make(map[string]bool)
	var earliest time.Time
	for _, tx := range txs {
		if !earlyTypes[tx.Type] {
			continue
		}
		if !tx.Date.IsZero() && (earliest.IsZero() || tx.Date.Before(earliest)) {
			earliest = tx.Date
		}
		for _, p := range []string{tx.Account, tx.Destination} {
			if p == "" || p == a.issuer || seen[p] || !r.src.IsValidAddress(p) {
				continue
			}
			seen[p] = true
			ranked = append(ranked, p)
		}
	}

	if !earliest.IsZero() {
		asset.IssueDate = earliest
		asset.IssueDateEstimated = false
	}
	asset.EstimatedHolderCount = max(asset.EstimatedHolderCount, len(ranked))

	for pos, addr := range ranked {
		band := risk.EarlyBandRisk(pos)
		if band <= 0 {
			break
		}
		id := r.accountID(addr)
		if g.FindNode(id) == nil {
			if g.NodeCount() >= r.run.MaxNodes {
				continue
			}
			r.assess(ctx, id)
		}
		node := g.UpsertNode(graph.Node{
			ID:                 id,
			Kind:               graph.KindAccount,
			IsEarlyParticipant: true,
			EarlyRank:          pos + 1,
		})
		node.AddReason(fmt.Sprintf("early participant #%d in %s", pos+1, a.code))

		in := r.run.Inputs[id]
		in.Kind = graph.KindAccount
		in.IsEarlyParticipant = true
		in.EarlyRisk = max(in.EarlyRisk, band)
		r.run.Inputs[id] = in

		g.UpsertEdge(graph.Edge{
			Source: id,
			Target: a.id,
			Weight: band,
			Kind:   graph.RelEarlyAssetActivity,
		})
	}
	return len(ranked)
}

// accountID maps a base address to the node id already used for it, so an
// early participant seen earlier under a tagged id is not duplicated.
func (r *runner) accountID(addr string) string {
	if addr == r.seedBase {
		return r.run.SeedID
	}
	if r.run.Store.FindNode(addr) != nil || !r.model.Traversal.TrackDestinationTags {
		return addr
	}
	for _, n := range r.run.Store.Nodes() {
		if n.IsAccount() && ledger.BaseAddress(n.ID) == addr {
			return n.ID
		}
	}
	return addr
}
