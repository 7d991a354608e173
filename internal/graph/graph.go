// Package graph holds the accounts, assets and relationships discovered in
// one analysis run.
//
// A Store is owned by a single run and mutated by one goroutine; it does no
// locking. Nodes and edges are kept in insertion order so two runs over the
// same input produce identical output.
package graph

import (
	"slices"
	"time"
)

// Kind distinguishes accounts from issued assets.
type Kind string

const (
	KindAccount Kind = "account"
	KindAsset   Kind = "asset"
)

// RelationshipKind labels why two nodes are connected.
type RelationshipKind string

const (
	RelPayment            RelationshipKind = "payment"
	RelTrustEstablishment RelationshipKind = "trust_establishment"
	RelAssetIssuance      RelationshipKind = "asset_issuance"
	RelEarlyAssetActivity RelationshipKind = "early_asset_activity"
	RelHighRiskPairing    RelationshipKind = "high_risk_pairing"
	RelRelatedAccounts    RelationshipKind = "related_accounts"
	RelSharedAsset        RelationshipKind = "shared_asset"
)

// EnhancedRisk holds the parallel sub-scores computed at discovery time.
// Each score is in [0,1].
type EnhancedRisk struct {
	Activity              float64 `json:"activity"`
	Age                   float64 `json:"age"`
	Volume                float64 `json:"volume"`
	TrustPosition         float64 `json:"trustPosition"`
	CreatorConnection     bool    `json:"creatorConnection"`
	SuspiciousConnections int     `json:"suspiciousConnections"`
}

// Mean averages the four numeric sub-scores.
func (e EnhancedRisk) Mean() float64 {
	return (e.Activity + e.Age + e.Volume + e.TrustPosition) / 4
}

// InteractionSummary aggregates an account's observed transactions.
type InteractionSummary struct {
	Payments       int       `json:"payments"`
	AssetTransfers int       `json:"assetTransfers"`
	TotalValue     float64   `json:"totalValue"`
	FirstSeen      time.Time `json:"firstSeen,omitzero"`
	LastSeen       time.Time `json:"lastSeen,omitzero"`
}

// Node is a discovered account or asset.
type Node struct {
	ID        string  `json:"id"`
	Kind      Kind    `json:"kind"`
	RiskLevel float64 `json:"riskLevel"`
	Radius    float64 `json:"radius"`
	// Degraded is set when a ledger fetch for this node failed and
	// placeholder values were used.
	Degraded bool     `json:"degraded,omitempty"`
	Reasons  []string `json:"reasons,omitempty"`

	// Account attributes.
	IsKnownHighRisk    bool                `json:"isKnownHighRisk,omitempty"`
	IsEarlyParticipant bool                `json:"isEarlyParticipant,omitempty"`
	IsCreatorAccount   bool                `json:"isCreatorAccount,omitempty"`
	EarlyRank          int                 `json:"earlyRank,omitempty"` // 1-based first-appearance rank
	TrustPosition      int                 `json:"trustPosition,omitempty"`
	Pattern            string              `json:"pattern,omitempty"`
	Enhanced           *EnhancedRisk       `json:"enhancedRisk,omitempty"`
	Interaction        *InteractionSummary `json:"interactionSummary,omitempty"`

	// Asset attributes.
	IssuerID             string    `json:"issuerId,omitempty"`
	AssetCode            string    `json:"assetCode,omitempty"`
	IssueDate            time.Time `json:"issueDate,omitzero"`
	IssueDateEstimated   bool      `json:"issueDateEstimated,omitempty"`
	EstimatedHolderCount int       `json:"estimatedHolderCount,omitempty"`
	IssuedAmount         float64   `json:"issuedAmount,omitempty"`
}

// IsAccount reports whether n is an account node.
func (n *Node) IsAccount() bool { return n.Kind == KindAccount }

// AddReason appends r unless already present.
func (n *Node) AddReason(r string) {
	if r != "" && !slices.Contains(n.Reasons, r) {
		n.Reasons = append(n.Reasons, r)
	}
}

// merge folds the promotable fields of in into n. Nothing already known is
// overwritten with a blank.
func (n *Node) merge(in *Node) {
	n.IsKnownHighRisk = n.IsKnownHighRisk || in.IsKnownHighRisk
	n.IsEarlyParticipant = n.IsEarlyParticipant || in.IsEarlyParticipant
	n.IsCreatorAccount = n.IsCreatorAccount || in.IsCreatorAccount
	n.Degraded = n.Degraded || in.Degraded
	n.RiskLevel = max(n.RiskLevel, in.RiskLevel)
	n.Radius = max(n.Radius, in.Radius)
	if in.EarlyRank > 0 && (n.EarlyRank == 0 || in.EarlyRank < n.EarlyRank) {
		n.EarlyRank = in.EarlyRank
	}
	if n.TrustPosition == 0 {
		n.TrustPosition = in.TrustPosition
	}
	if n.Pattern == "" {
		n.Pattern = in.Pattern
	}
	if n.Enhanced == nil && in.Enhanced != nil {
		e := *in.Enhanced
		n.Enhanced = &e
	}
	if n.Interaction == nil && in.Interaction != nil {
		s := *in.Interaction
		n.Interaction = &s
	}
	if n.IssuerID == "" {
		n.IssuerID = in.IssuerID
	}
	if n.AssetCode == "" {
		n.AssetCode = in.AssetCode
	}
	if n.IssueDate.IsZero() {
		n.IssueDate, n.IssueDateEstimated = in.IssueDate, in.IssueDateEstimated
	}
	n.EstimatedHolderCount = max(n.EstimatedHolderCount, in.EstimatedHolderCount)
	n.IssuedAmount = max(n.IssuedAmount, in.IssuedAmount)
	for _, r := range in.Reasons {
		n.AddReason(r)
	}
}

// Edge is an undirected relationship. Kind is the kind of the first
// insertion; Kinds records every kind seen for the pair.
type Edge struct {
	Source       string             `json:"source"`
	Target       string             `json:"target"`
	Weight       float64            `json:"weight"`
	IsSuspicious bool               `json:"isSuspicious"`
	Kind         RelationshipKind   `json:"relationshipKind"`
	Kinds        []RelationshipKind `json:"kinds,omitempty"`
}

// Other returns the endpoint of e that is not id.
func (e *Edge) Other(id string) string {
	if e.Source == id {
		return e.Target
	}
	return e.Source
}

// HasKind reports whether k was ever recorded on e.
func (e *Edge) HasKind(k RelationshipKind) bool {
	return slices.Contains(e.Kinds, k)
}

// AssetID is the node id of an issued asset.
func AssetID(code, issuer string) string {
	return code + "." + issuer
}

func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}
