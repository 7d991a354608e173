package risk

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// pseudoDateBase and pseudoDateSpanDays bound the deterministic fallback
// issue date.
var pseudoDateBase = time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC)

const pseudoDateSpanDays = 4000

// AssetEvidence describes one issued asset.
type AssetEvidence struct {
	Code   string
	Issuer string
	// Amount is the outstanding issued amount as reported by the ledger.
	Amount string
	// Holders is the observed trust-line count, or -1 when unknown.
	Holders int
}

// AssetScore is the issuer-independent part of an asset's risk.
type AssetScore struct {
	Base               float64            `json:"base"`
	EstimatedHolders   int                `json:"estimatedHolders"`
	IssuedAmount       float64            `json:"issuedAmount"`
	IssueDate          time.Time          `json:"issueDate"`
	IssueDateEstimated bool               `json:"issueDateEstimated"`
	Factors            map[string]float64 `json:"factors"`
	Reasons            []string           `json:"reasons,omitempty"`
}

// ScoreAsset computes the name and holder-count penalties of an asset. The
// issuer's risk is blended in by WithIssuer.
func (s *Scorer) ScoreAsset(ev AssetEvidence) AssetScore {
	w := s.model.Asset
	amount, err := strconv.ParseFloat(ev.Amount, 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		amount = 0
	}

	out := AssetScore{
		IssuedAmount:       amount,
		EstimatedHolders:   ev.Holders,
		IssueDate:          PseudoIssueDate(ev.Code, ev.Issuer),
		IssueDateEstimated: true,
		Factors:            make(map[string]float64),
	}
	if out.EstimatedHolders < 0 {
		out.EstimatedHolders = HolderProxy(amount)
	}

	if s.model.HasSuspiciousName(ev.Code) {
		out.Factors["suspicious_name"] = w.NameWeight
		out.Reasons = append(out.Reasons, fmt.Sprintf("suspicious asset name %q", ev.Code))
		out.Base += w.NameWeight
	}
	if out.EstimatedHolders < w.LowHolderThreshold {
		out.Factors["low_holders"] = w.LowHolderWeight
		out.Reasons = append(out.Reasons, fmt.Sprintf("few holders (~%d)", out.EstimatedHolders))
		out.Base += w.LowHolderWeight
	}
	out.Base = round3(clamp(out.Base))
	return out
}

// WithIssuer blends an issuer's risk into an asset base score.
func (s *Scorer) WithIssuer(base, issuerRisk float64) float64 {
	return round3(clamp(base + s.model.Asset.IssuerPassThrough*issuerRisk))
}

// HolderProxy estimates a holder count from the issued amount when trust
// lines are unavailable.
func HolderProxy(amount float64) int {
	if amount <= 0 {
		return 0
	}
	return int(10 * math.Log10(1+amount/1000))
}

// PseudoIssueDate derives a stable stand-in issue date from the asset id.
// It is replaced by the earliest observed transaction date when one is
// found.
func PseudoIssueDate(code, issuer string) time.Time {
	days := xxhash.Sum64String(code+"."+issuer) % pseudoDateSpanDays
	return pseudoDateBase.AddDate(0, 0, int(days))
}
