package risk

import (
	"math"
	"testing"
	"time"
)

func TestScoreAssetPenalties(t *testing.T) {
	s := NewScorer(nil)

	hyped := s.ScoreAsset(AssetEvidence{Code: "MOON", Issuer: "rIssuer", Amount: "1000", Holders: 3})
	if hyped.Base != 0.7 {
		t.Errorf("hyped asset base = %f, want 0.7 (factors: %v)", hyped.Base, hyped.Factors)
	}
	if len(hyped.Reasons) != 2 {
		t.Errorf("expected name and holder reasons, got %v", hyped.Reasons)
	}

	plain := s.ScoreAsset(AssetEvidence{Code: "USD", Issuer: "rIssuer", Amount: "1000", Holders: 50})
	if plain.Base != 0 {
		t.Errorf("plain asset base = %f, want 0", plain.Base)
	}
}

func TestScoreAssetHolderProxy(t *testing.T) {
	s := NewScorer(nil)

	a := s.ScoreAsset(AssetEvidence{Code: "USD", Issuer: "rIssuer", Amount: "5000000", Holders: -1})
	if a.EstimatedHolders != 36 {
		t.Errorf("estimated holders = %d, want 36", a.EstimatedHolders)
	}
	if _, ok := a.Factors["low_holders"]; ok {
		t.Error("large issuance should not look thinly held")
	}

	bad := s.ScoreAsset(AssetEvidence{Code: "USD", Issuer: "rIssuer", Amount: "not-a-number", Holders: -1})
	if bad.IssuedAmount != 0 || bad.EstimatedHolders != 0 {
		t.Errorf("malformed amount should normalize to 0, got %f / %d", bad.IssuedAmount, bad.EstimatedHolders)
	}
}

func TestWithIssuer(t *testing.T) {
	s := NewScorer(nil)
	if got := s.WithIssuer(0.7, 1); got != 1 {
		t.Errorf("WithIssuer(0.7, 1) = %f, want clamp to 1", got)
	}
	if got := s.WithIssuer(0.4, 0.5); math.Abs(got-0.55) > 1e-9 {
		t.Errorf("WithIssuer(0.4, 0.5) = %f, want 0.55", got)
	}
}

func TestPseudoIssueDateStable(t *testing.T) {
	a := PseudoIssueDate("MOON", "rIssuer")
	b := PseudoIssueDate("MOON", "rIssuer")
	if !a.Equal(b) {
		t.Fatalf("pseudo date not stable: %v vs %v", a, b)
	}
	lo := time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC)
	hi := lo.AddDate(0, 0, pseudoDateSpanDays)
	if a.Before(lo) || !a.Before(hi) {
		t.Errorf("pseudo date %v outside [%v, %v)", a, lo, hi)
	}
}
