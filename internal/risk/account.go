package risk

import (
	"fmt"
	"slices"
	"time"

	"github.com/mbd888/ledgerlens/internal/graph"
	"github.com/mbd888/ledgerlens/internal/ledger"
	"github.com/mbd888/ledgerlens/internal/riskmodel"
)

// AccountEvidence is what the ledger told us about one account. Nil Info or
// a set *Unavailable flag means the fetch failed; the scorer substitutes
// medium-risk placeholders for the missing parts.
type AccountEvidence struct {
	Address string
	Info    *ledger.AccountInfo
	// Transactions, newest first.
	Transactions []ledger.Transaction
	IssuedAssets []ledger.IssuedAsset

	InfoUnavailable         bool
	TransactionsUnavailable bool

	// TrustPosition is the 1-based position among an asset's trust lines,
	// 0 when not applicable.
	TrustPosition int
	// Seed is the run's seed address, for the creator-connection check.
	Seed string
	// Creators are creator accounts already detected in this run.
	Creators map[string]bool
}

// AccountScore is the discovery-time assessment of an account.
type AccountScore struct {
	Basic     float64            `json:"basic"`
	Enhanced  graph.EnhancedRisk `json:"enhanced"`
	Immediate float64            `json:"immediate"`
	Factors   map[string]float64 `json:"factors"`
	Reasons   []string           `json:"reasons,omitempty"`

	IsKnownHighRisk bool   `json:"isKnownHighRisk"`
	IsCreator       bool   `json:"isCreator"`
	Degraded        bool   `json:"degraded"`
	Pattern         string `json:"pattern"`
}

// ScoreAccount computes the basic and enhanced scores of an account and
// blends them into the immediate risk used to gate expansion.
func (s *Scorer) ScoreAccount(ev AccountEvidence) AccountScore {
	addr := ledger.BaseAddress(ev.Address)
	out := AccountScore{
		Factors:         make(map[string]float64),
		IsKnownHighRisk: s.model.IsKnownHighRisk(addr),
		Degraded:        ev.InfoUnavailable || ev.TransactionsUnavailable,
		Pattern:         s.classifyPattern(ev.Transactions),
	}
	out.IsCreator = s.isCreator(ev)
	out.Enhanced = s.enhanced(ev)

	switch {
	case out.IsKnownHighRisk:
		out.Basic = 1
		out.Factors["known_high_risk"] = 1
		out.Reasons = append(out.Reasons, "on known high-risk list")
	case out.Degraded:
		out.Basic = s.model.Final.Placeholder
		out.Factors["placeholder"] = s.model.Final.Placeholder
		out.Reasons = append(out.Reasons, "incomplete ledger data")
	default:
		out.Basic = s.basic(ev, &out)
	}

	if out.IsCreator {
		out.Reasons = append(out.Reasons, "likely asset creator")
	}
	if out.Pattern == PatternBurst || out.Pattern == PatternHighFrequency {
		out.Reasons = append(out.Reasons, fmt.Sprintf("%s activity pattern", out.Pattern))
	}

	if out.IsKnownHighRisk {
		out.Immediate = 1
	} else {
		out.Immediate = round3(clamp(out.Basic + s.model.Account.EnhancedBlendWeight*out.Enhanced.Mean()))
	}
	out.Basic = round3(out.Basic)
	return out
}

func (s *Scorer) basic(ev AccountEvidence, out *AccountScore) float64 {
	w := s.model.Account
	addr := ledger.BaseAddress(ev.Address)
	var score float64

	if ev.Info != nil {
		if age := riskmodel.Lookup(w.AgeBands, float64(ev.Info.Sequence), 0); age > 0 {
			out.Factors["age"] = age
			out.Reasons = append(out.Reasons, "recently created account")
			score += age
		}
	}

	if n := len(ev.Transactions); w.LowActivityThreshold > 0 && n < w.LowActivityThreshold {
		p := w.LowActivityWeight * (1 - float64(n)/float64(w.LowActivityThreshold))
		out.Factors["low_activity"] = p
		out.Reasons = append(out.Reasons, fmt.Sprintf("low activity (%d transactions)", n))
		score += p
	}

	if w.ManyIssuancesThreshold > 0 && len(ev.IssuedAssets) >= w.ManyIssuancesThreshold {
		out.Factors["many_issuances"] = w.ManyIssuancesWeight
		out.Reasons = append(out.Reasons, fmt.Sprintf("issues %d assets", len(ev.IssuedAssets)))
		score += w.ManyIssuancesWeight
	}

	if name, ok := s.suspiciousIssuance(ev.IssuedAssets); ok {
		out.Factors["suspicious_name"] = w.SuspiciousNameWeight
		out.Reasons = append(out.Reasons, fmt.Sprintf("issues suspiciously named asset %s", name))
		score += w.SuspiciousNameWeight
	}

	creatorHit, badContacts := false, 0
	seen := make(map[string]bool)
	for _, tx := range ev.Transactions {
		cp := tx.Counterparty(addr)
		if cp == "" || cp == addr || seen[cp] {
			continue
		}
		seen[cp] = true
		if ev.Creators[cp] {
			creatorHit = true
		}
		if s.model.IsKnownHighRisk(cp) {
			badContacts++
		}
	}
	if creatorHit {
		out.Factors["creator_connection"] = w.CreatorConnectionWeight
		out.Reasons = append(out.Reasons, "transacted with a detected asset creator")
		score += w.CreatorConnectionWeight
	}
	if badContacts > 0 {
		p := min(float64(badContacts)*w.ProximityStep, w.ProximityCap)
		out.Factors["known_bad_proximity"] = p
		out.Reasons = append(out.Reasons, fmt.Sprintf("transacted with %d known high-risk accounts", badContacts))
		score += p
	}

	return clamp(score)
}

func (s *Scorer) enhanced(ev AccountEvidence) graph.EnhancedRisk {
	w := s.model.Account
	ph := s.model.Final.Placeholder
	var e graph.EnhancedRisk

	switch {
	case ev.TransactionsUnavailable:
		e.Activity, e.Volume = ph, ph
	default:
		e.Activity = s.activityScore(ev.Transactions)
		var volume float64
		for _, tx := range ev.Transactions {
			volume += TransferValue(tx)
		}
		e.Volume = riskmodel.Lookup(w.VolumeBands, volume, 0.1)
	}

	if ev.Info == nil {
		e.Age = ph
	} else {
		e.Age = riskmodel.Lookup(w.EnhancedAgeBands, float64(ev.Info.Sequence), 0.1)
	}

	e.TrustPosition = TrustPositionScore(ev.TrustPosition)

	e.CreatorConnection = s.CreatorConnected(ev.Address, ev.Seed, ev.TrustPosition, ev.Transactions)

	susp := make(map[string]bool)
	addr := ledger.BaseAddress(ev.Address)
	for _, tx := range ev.Transactions {
		if cp := tx.Counterparty(addr); cp != "" && !susp[cp] && s.IsSuspicious(s.ScoreTransaction(tx)) {
			susp[cp] = true
		}
	}
	e.SuspiciousConnections = len(susp)
	return e
}

// CreatorConnected reports whether an early holder, at trust position pos
// of an asset, transacted directly with the seed.
func (s *Scorer) CreatorConnected(address, seed string, pos int, txs []ledger.Transaction) bool {
	if pos < 1 || pos > s.model.Account.CreatorConnectionMaxPosition || seed == "" {
		return false
	}
	addr := ledger.BaseAddress(address)
	for _, tx := range txs {
		if tx.Counterparty(addr) == seed {
			return true
		}
	}
	return false
}

// TrustPositionScore maps a 1-based trust-line position to risk; 0 means
// not applicable.
func TrustPositionScore(pos int) float64 {
	switch {
	case pos <= 0:
		return 0
	case pos < 5:
		return 0.9
	case pos < 10:
		return 0.7
	case pos < 20:
		return 0.5
	case pos < 50:
		return 0.3
	default:
		return 0.1
	}
}

// activityScore inverts and bands the mean gap between transactions.
func (s *Scorer) activityScore(txs []ledger.Transaction) float64 {
	gap, ok := meanGap(txs)
	if !ok {
		return 0.5
	}
	switch {
	case gap < time.Hour:
		return 0.9
	case gap < 24*time.Hour:
		return 0.6
	case gap < 7*24*time.Hour:
		return 0.3
	default:
		return 0.1
	}
}

func (s *Scorer) classifyPattern(txs []ledger.Transaction) string {
	times := sortedTimes(txs)
	if len(times) == 0 {
		return PatternInactive
	}
	e := s.model.Enrichment
	if e.BurstCount > 1 && len(times) >= e.BurstCount {
		for i := 0; i+e.BurstCount-1 < len(times); i++ {
			if times[i+e.BurstCount-1].Sub(times[i]) <= e.BurstWindow {
				return PatternBurst
			}
		}
	}
	if gap, ok := meanGap(txs); ok && gap < e.HighFrequencyGap {
		return PatternHighFrequency
	}
	return PatternNormal
}

func (s *Scorer) isCreator(ev AccountEvidence) bool {
	if len(ev.IssuedAssets) == 0 {
		return false
	}
	w := s.model.Account
	if _, ok := s.suspiciousIssuance(ev.IssuedAssets); ok {
		return true
	}
	if w.ManyIssuancesThreshold > 0 && len(ev.IssuedAssets) >= w.ManyIssuancesThreshold {
		return true
	}
	return ev.Info != nil && float64(ev.Info.Sequence) > w.NewAccountSequence
}

func (s *Scorer) suspiciousIssuance(assets []ledger.IssuedAsset) (string, bool) {
	for _, a := range assets {
		if s.model.HasSuspiciousName(a.AssetCode) {
			return a.AssetCode, true
		}
	}
	return "", false
}

// Summarize aggregates transactions into an interaction summary.
func Summarize(txs []ledger.Transaction) graph.InteractionSummary {
	var sum graph.InteractionSummary
	for _, tx := range txs {
		switch {
		case tx.Type == ledger.TxTrustSet:
		case tx.Amount.IsNative():
			if tx.Type == ledger.TxPayment {
				sum.Payments++
			}
		default:
			sum.AssetTransfers++
		}
		sum.TotalValue += TransferValue(tx)
		if tx.Date.IsZero() {
			continue
		}
		if sum.FirstSeen.IsZero() || tx.Date.Before(sum.FirstSeen) {
			sum.FirstSeen = tx.Date
		}
		if tx.Date.After(sum.LastSeen) {
			sum.LastSeen = tx.Date
		}
	}
	return sum
}

func sortedTimes(txs []ledger.Transaction) []time.Time {
	times := make([]time.Time, 0, len(txs))
	for _, tx := range txs {
		if !tx.Date.IsZero() {
			times = append(times, tx.Date)
		}
	}
	slices.SortFunc(times, func(a, b time.Time) int { return a.Compare(b) })
	return times
}

// meanGap is the mean time between dated transactions; ok is false with
// fewer than two.
func meanGap(txs []ledger.Transaction) (time.Duration, bool) {
	times := sortedTimes(txs)
	if len(times) < 2 {
		return 0, false
	}
	span := times[len(times)-1].Sub(times[0])
	return span / time.Duration(len(times)-1), true
}
