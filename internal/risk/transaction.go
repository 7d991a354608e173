package risk

import (
	"math"
	"strings"

	"github.com/mbd888/ledgerlens/internal/ledger"
)

// TransactionScore is the heuristic risk of one transaction. It only flags
// edges and is never stored on nodes.
type TransactionScore struct {
	Score   float64            `json:"score"`
	Factors map[string]float64 `json:"factors"`
}

// ScoreTransaction weighs amount size, round-number artifacts and memo
// solicitation keywords.
func (s *Scorer) ScoreTransaction(tx ledger.Transaction) TransactionScore {
	w := s.model.Transaction
	factors := make(map[string]float64, 3)

	// A TrustSet amount is a limit, not a transfer.
	if tx.Type != ledger.TxTrustSet {
		value := tx.Amount.Normalize()
		if value >= w.LargeAmountThreshold {
			factors["large_amount"] = math.Min(w.LargeAmountWeight*value/w.LargeAmountThreshold, w.LargeAmountCap)
		}
		if isRoundNumber(tx.Amount.Literal()) {
			factors["round_number"] = w.RoundNumberWeight
		}
	}
	for _, m := range tx.Memos {
		if s.model.HasMemoKeyword(m.Data) || s.model.HasMemoKeyword(m.Type) {
			factors["memo"] = w.MemoWeight
			break
		}
	}

	score := factors["large_amount"] + factors["round_number"] + factors["memo"]
	return TransactionScore{Score: round3(clamp(score)), Factors: factors}
}

// IsSuspicious reports whether a transaction score flags its edge.
func (s *Scorer) IsSuspicious(ts TransactionScore) bool {
	return ts.Score >= s.model.Transaction.SuspiciousThreshold
}

// EdgeWeight maps transferred value onto [0.1, 1] logarithmically.
func EdgeWeight(value float64) float64 {
	if value <= 0 || math.IsNaN(value) {
		return 0.1
	}
	w := math.Log10(1+value) / 6
	return math.Max(0.1, math.Min(1, w))
}

// isRoundNumber matches literals whose integer part ends in 000 or 999.
func isRoundNumber(lit string) bool {
	if i := strings.IndexByte(lit, '.'); i >= 0 {
		if strings.Trim(lit[i+1:], "0") != "" {
			return false
		}
		lit = lit[:i]
	}
	return len(lit) > 3 && (strings.HasSuffix(lit, "000") || strings.HasSuffix(lit, "999"))
}

// TransferValue is the normalized value moved by tx; trust limits move
// nothing.
func TransferValue(tx ledger.Transaction) float64 {
	if tx.Type == ledger.TxTrustSet {
		return 0
	}
	return tx.Amount.Normalize()
}
