// Package riskmodel holds the static weight and threshold tables that drive
// scoring and traversal: account, asset and transaction weights, final-pass
// bonuses, network-risk bands, the known-high-risk address list and the
// traversal budget.
//
// A Model is read-only once loaded and may be shared across runs.
package riskmodel

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Band maps a lower bound to a score. Band tables are ordered by descending
// Min; the first band whose Min is exceeded wins.
type Band struct {
	Min   float64 `yaml:"min"`
	Score float64 `yaml:"score"`
}

// Lookup returns the score of the first band with v > Min, or fallback.
func Lookup(bands []Band, v, fallback float64) float64 {
	for _, b := range bands {
		if v > b.Min {
			return b.Score
		}
	}
	return fallback
}

// Traversal bounds one analysis run.
type Traversal struct {
	MaxDepth                    int     `yaml:"max_depth"`
	MaxNodes                    int     `yaml:"max_nodes"`
	MaxNeighborsPerNode         int     `yaml:"max_neighbors_per_node"`
	TxFetchLimit                int     `yaml:"tx_fetch_limit"`
	StopExpansionThreshold      float64 `yaml:"stop_expansion_threshold"`
	EarlyParticipantLimit       int     `yaml:"early_participant_limit"`
	EarlyParticipantConcurrency int     `yaml:"early_participant_concurrency"`
	FinalizeBatchSize           int     `yaml:"finalize_batch_size"`
	TrackDestinationTags        bool    `yaml:"track_destination_tags"`
}

// Account weights the per-account base and enhanced scores.
type Account struct {
	// AgeBands score the sequence-number age proxy for the base score.
	AgeBands                []Band  `yaml:"age_bands"`
	LowActivityThreshold    int     `yaml:"low_activity_threshold"`
	LowActivityWeight       float64 `yaml:"low_activity_weight"`
	ManyIssuancesThreshold  int     `yaml:"many_issuances_threshold"`
	ManyIssuancesWeight     float64 `yaml:"many_issuances_weight"`
	SuspiciousNameWeight    float64 `yaml:"suspicious_name_weight"`
	CreatorConnectionWeight float64 `yaml:"creator_connection_weight"`
	ProximityStep           float64 `yaml:"proximity_step"`
	ProximityCap            float64 `yaml:"proximity_cap"`
	// NewAccountSequence marks an account as recently created for creator
	// detection.
	NewAccountSequence float64 `yaml:"new_account_sequence"`

	// Enhanced sub-score tables.
	EnhancedAgeBands    []Band  `yaml:"enhanced_age_bands"`
	VolumeBands         []Band  `yaml:"volume_bands"`
	EnhancedBlendWeight float64 `yaml:"enhanced_blend_weight"`
	// CreatorConnectionMaxPosition bounds the creator-connection lookup to
	// the earliest trust-line holders.
	CreatorConnectionMaxPosition int `yaml:"creator_connection_max_position"`
}

// Asset weights the per-asset score.
type Asset struct {
	NameWeight         float64 `yaml:"name_weight"`
	LowHolderWeight    float64 `yaml:"low_holder_weight"`
	LowHolderThreshold int     `yaml:"low_holder_threshold"`
	IssuerPassThrough  float64 `yaml:"issuer_pass_through"`
}

// Transaction weights the per-transaction score used to flag edges.
type Transaction struct {
	LargeAmountThreshold float64 `yaml:"large_amount_threshold"`
	LargeAmountWeight    float64 `yaml:"large_amount_weight"`
	LargeAmountCap       float64 `yaml:"large_amount_cap"`
	RoundNumberWeight    float64 `yaml:"round_number_weight"`
	MemoWeight           float64 `yaml:"memo_weight"`
	SuspiciousThreshold  float64 `yaml:"suspicious_threshold"`
}

// Final weights the whole-graph aggregation pass.
type Final struct {
	TrustPositionBonus     float64 `yaml:"trust_position_bonus"`
	TrustPositionMax       int     `yaml:"trust_position_max"`
	CreatorBonus           float64 `yaml:"creator_bonus"`
	ActivityWeight         float64 `yaml:"activity_weight"`
	AgeWeight              float64 `yaml:"age_weight"`
	VolumeWeight           float64 `yaml:"volume_weight"`
	TrustWeight            float64 `yaml:"trust_weight"`
	SuspiciousConnStep     float64 `yaml:"suspicious_conn_step"`
	SuspiciousConnCap      float64 `yaml:"suspicious_conn_cap"`
	EarlyParticipantBonus  float64 `yaml:"early_participant_bonus"`
	InterconnectionStep    float64 `yaml:"interconnection_step"`
	InterconnectionCap     float64 `yaml:"interconnection_cap"`
	Placeholder            float64 `yaml:"placeholder"`
	NodeCountAmplification int     `yaml:"node_count_amplification"`
}

// Network weights the aggregate network-risk score and its bands.
type Network struct {
	MeanWeight    float64 `yaml:"mean_weight"`
	DensityWeight float64 `yaml:"density_weight"`
	MaxWeight     float64 `yaml:"max_weight"`
	DensityKnee   float64 `yaml:"density_knee"`
	KnownBadFloor float64 `yaml:"known_bad_floor"`
	KnownBadStep  float64 `yaml:"known_bad_step"`
	KnownBadCap   float64 `yaml:"known_bad_cap"`
	Critical      float64 `yaml:"critical"`
	High          float64 `yaml:"high"`
	Medium        float64 `yaml:"medium"`
}

// Enrichment tunes the post-expansion linking step.
type Enrichment struct {
	TimingWindow          time.Duration `yaml:"timing_window"`
	SharedAssetMaxMembers int           `yaml:"shared_asset_max_members"`
	RelatedWeight         float64       `yaml:"related_weight"`
	SharedAssetWeight     float64       `yaml:"shared_asset_weight"`
	HighFrequencyGap      time.Duration `yaml:"high_frequency_gap"`
	BurstWindow           time.Duration `yaml:"burst_window"`
	BurstCount            int           `yaml:"burst_count"`
}

// Findings tunes report generation.
type Findings struct {
	TopN                 int     `yaml:"top_n"`
	HighRiskAccount      float64 `yaml:"high_risk_account"`
	HighRiskAsset        float64 `yaml:"high_risk_asset"`
	HighRiskEarly        float64 `yaml:"high_risk_early"`
	HighRiskConnection   float64 `yaml:"high_risk_connection"`
	MaxSuspiciousListed  int     `yaml:"max_suspicious_listed"`
	MaxConnectionsListed int     `yaml:"max_connections_listed"`
}

// Model is the complete risk configuration.
type Model struct {
	Traversal       Traversal   `yaml:"traversal"`
	Account         Account     `yaml:"account"`
	Asset           Asset       `yaml:"asset"`
	Transaction     Transaction `yaml:"transaction"`
	Final           Final       `yaml:"final"`
	Network         Network     `yaml:"network"`
	Enrichment      Enrichment  `yaml:"enrichment"`
	Findings        Findings    `yaml:"findings"`
	SuspiciousNames []string    `yaml:"suspicious_names"`
	MemoKeywords    []string    `yaml:"memo_keywords"`
	KnownHighRisk   []string    `yaml:"known_high_risk"`

	known map[string]struct{}
}

// Default returns the built-in model.
func Default() *Model {
	m := &Model{
		Traversal: Traversal{
			MaxDepth:                    3,
			MaxNodes:                    50,
			MaxNeighborsPerNode:         15,
			TxFetchLimit:                50,
			StopExpansionThreshold:      0.8,
			EarlyParticipantLimit:       50,
			EarlyParticipantConcurrency: 4,
			FinalizeBatchSize:           20,
		},
		Account: Account{
			AgeBands:                []Band{{Min: 80_000_000, Score: 0.2}, {Min: 70_000_000, Score: 0.1}},
			LowActivityThreshold:    10,
			LowActivityWeight:       0.2,
			ManyIssuancesThreshold:  3,
			ManyIssuancesWeight:     0.2,
			SuspiciousNameWeight:    0.2,
			CreatorConnectionWeight: 0.25,
			ProximityStep:           0.1,
			ProximityCap:            0.3,
			NewAccountSequence:      80_000_000,
			EnhancedAgeBands: []Band{
				{Min: 85_000_000, Score: 0.9},
				{Min: 80_000_000, Score: 0.7},
				{Min: 70_000_000, Score: 0.4},
			},
			VolumeBands: []Band{
				{Min: 1_000_000, Score: 0.9},
				{Min: 100_000, Score: 0.6},
				{Min: 10_000, Score: 0.3},
			},
			EnhancedBlendWeight:          0.25,
			CreatorConnectionMaxPosition: 4,
		},
		Asset: Asset{
			NameWeight:         0.4,
			LowHolderWeight:    0.3,
			LowHolderThreshold: 10,
			IssuerPassThrough:  0.3,
		},
		Transaction: Transaction{
			LargeAmountThreshold: 10_000,
			LargeAmountWeight:    0.4,
			LargeAmountCap:       0.6,
			RoundNumberWeight:    0.2,
			MemoWeight:           0.3,
			SuspiciousThreshold:  0.5,
		},
		Final: Final{
			TrustPositionBonus:     0.2,
			TrustPositionMax:       9,
			CreatorBonus:           0.2,
			ActivityWeight:         0.1,
			AgeWeight:              0.1,
			VolumeWeight:           0.1,
			TrustWeight:            0.15,
			SuspiciousConnStep:     0.05,
			SuspiciousConnCap:      0.2,
			EarlyParticipantBonus:  0.15,
			InterconnectionStep:    0.05,
			InterconnectionCap:     0.2,
			Placeholder:            0.5,
			NodeCountAmplification: 10,
		},
		Network: Network{
			MeanWeight:    0.6,
			DensityWeight: 0.2,
			MaxWeight:     0.2,
			DensityKnee:   0.2,
			KnownBadFloor: 0.8,
			KnownBadStep:  0.05,
			KnownBadCap:   0.2,
			Critical:      0.8,
			High:          0.6,
			Medium:        0.35,
		},
		Enrichment: Enrichment{
			TimingWindow:          10 * time.Minute,
			SharedAssetMaxMembers: 10,
			RelatedWeight:         0.5,
			SharedAssetWeight:     0.3,
			HighFrequencyGap:      time.Hour,
			BurstWindow:           10 * time.Minute,
			BurstCount:            5,
		},
		Findings: Findings{
			TopN:                 5,
			HighRiskAccount:      0.7,
			HighRiskAsset:        0.5,
			HighRiskEarly:        0.7,
			HighRiskConnection:   0.7,
			MaxSuspiciousListed:  25,
			MaxConnectionsListed: 25,
		},
		SuspiciousNames: []string{
			"moon", "elon", "pump", "100x", "gem", "safe", "doge", "inu",
			"rocket", "lambo", "airdrop", "free", "giveaway",
		},
		MemoKeywords: []string{
			"airdrop", "claim", "free", "giveaway", "bonus", "reward", "visit", "http",
		},
	}
	m.index()
	return m
}

// LoadFile overlays the YAML file at path onto Default and validates the
// result. Fields absent from the file keep their defaults.
func LoadFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read risk model: %w", err)
	}
	return Parse(data)
}

// Parse overlays YAML data onto Default and validates the result.
func Parse(data []byte) (*Model, error) {
	m := Default()
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse risk model: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	m.index()
	return m, nil
}

// Validate checks budgets are positive and every threshold is a
// probability.
func (m *Model) Validate() error {
	var errs []error
	if m.Traversal.MaxDepth < 1 {
		errs = append(errs, fmt.Errorf("traversal.max_depth must be >= 1, got %d", m.Traversal.MaxDepth))
	}
	if m.Traversal.MaxNodes < 1 {
		errs = append(errs, fmt.Errorf("traversal.max_nodes must be >= 1, got %d", m.Traversal.MaxNodes))
	}
	if m.Traversal.MaxNeighborsPerNode < 1 {
		errs = append(errs, fmt.Errorf("traversal.max_neighbors_per_node must be >= 1, got %d", m.Traversal.MaxNeighborsPerNode))
	}
	if m.Traversal.TxFetchLimit < 1 {
		errs = append(errs, fmt.Errorf("traversal.tx_fetch_limit must be >= 1, got %d", m.Traversal.TxFetchLimit))
	}
	if m.Traversal.EarlyParticipantConcurrency < 1 {
		errs = append(errs, fmt.Errorf("traversal.early_participant_concurrency must be >= 1, got %d", m.Traversal.EarlyParticipantConcurrency))
	}
	if m.Traversal.FinalizeBatchSize < 1 {
		errs = append(errs, fmt.Errorf("traversal.finalize_batch_size must be >= 1, got %d", m.Traversal.FinalizeBatchSize))
	}
	probs := map[string]float64{
		"traversal.stop_expansion_threshold": m.Traversal.StopExpansionThreshold,
		"transaction.suspicious_threshold":   m.Transaction.SuspiciousThreshold,
		"asset.issuer_pass_through":          m.Asset.IssuerPassThrough,
		"final.placeholder":                  m.Final.Placeholder,
		"network.critical":                   m.Network.Critical,
		"network.high":                       m.Network.High,
		"network.medium":                     m.Network.Medium,
		"findings.high_risk_account":         m.Findings.HighRiskAccount,
		"findings.high_risk_asset":           m.Findings.HighRiskAsset,
	}
	for _, name := range slices.Sorted(maps.Keys(probs)) {
		if v := probs[name]; v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0,1], got %g", name, v))
		}
	}
	if !(m.Network.Medium <= m.Network.High && m.Network.High <= m.Network.Critical) {
		errs = append(errs, errors.New("network bands must satisfy medium <= high <= critical"))
	}
	if m.Transaction.LargeAmountThreshold <= 0 {
		errs = append(errs, errors.New("transaction.large_amount_threshold must be positive"))
	}
	return errors.Join(errs...)
}

// IsKnownHighRisk reports whether address is on the known-high-risk list.
// A destination-tag suffix is ignored.
func (m *Model) IsKnownHighRisk(address string) bool {
	if i := strings.IndexByte(address, ':'); i >= 0 {
		address = address[:i]
	}
	if m.known != nil {
		_, ok := m.known[address]
		return ok
	}
	for _, a := range m.KnownHighRisk {
		if a == address {
			return true
		}
	}
	return false
}

// HasSuspiciousName reports whether name contains a denylisted substring,
// case-insensitively.
func (m *Model) HasSuspiciousName(name string) bool {
	return containsAny(name, m.SuspiciousNames)
}

// HasMemoKeyword reports whether memo text contains a solicitation keyword.
func (m *Model) HasMemoKeyword(text string) bool {
	return containsAny(text, m.MemoKeywords)
}

// WithKnownHighRisk returns a copy of m with extra addresses appended to
// the known-high-risk list.
func (m *Model) WithKnownHighRisk(addresses ...string) *Model {
	cp := *m
	cp.KnownHighRisk = append(append([]string(nil), m.KnownHighRisk...), addresses...)
	cp.index()
	return &cp
}

func (m *Model) index() {
	m.known = make(map[string]struct{}, len(m.KnownHighRisk))
	for _, a := range m.KnownHighRisk {
		m.known[strings.TrimSpace(a)] = struct{}{}
	}
}

func containsAny(s string, needles []string) bool {
	if s == "" {
		return false
	}
	s = strings.ToLower(s)
	for _, n := range needles {
		if n != "" && strings.Contains(s, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
