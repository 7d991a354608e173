// Package analysis drives one risk analysis run: it walks the ledger outward
// from a seed account, builds the relationship graph, and hands the result
// to the risk scorer for finalization and findings.
package analysis

import (
	"errors"
	"time"

	"github.com/mbd888/ledgerlens/internal/graph"
	"github.com/mbd888/ledgerlens/internal/risk"
)

var (
	// ErrInvalidAddress is returned before any I/O when the seed is not a
	// well-formed address.
	ErrInvalidAddress = errors.New("analysis: invalid seed address")
	// ErrLedgerUnavailable is returned when every fetch for the seed failed
	// with something other than ledger.ErrNotFound.
	ErrLedgerUnavailable = errors.New("analysis: ledger unavailable")
)

// State is the lifecycle phase of a run.
type State string

const (
	StateIdle              State = "idle"
	StateValidating        State = "validating"
	StateExpanding         State = "expanding"
	StateEarlyParticipants State = "identifying_early_participants"
	StateFinalizing        State = "finalizing_risk"
	StateFindings          State = "generating_findings"
	StateComplete          State = "complete"
	StateFailed            State = "failed"
)

// Progress is emitted on every state change, every expanded account and
// every finalize batch.
type Progress struct {
	RunID   string `json:"runId"`
	State   State  `json:"state"`
	Message string `json:"message,omitempty"`
	// Account is set while expanding.
	Account string `json:"account,omitempty"`
	Depth   int    `json:"depth,omitempty"`
	Nodes   int    `json:"nodes"`
	Edges   int    `json:"edges"`
	Done    int    `json:"done,omitempty"`
	Total   int    `json:"total,omitempty"`
}

// RunOptions override the model's traversal budgets for one run. Zero
// values keep the model defaults.
type RunOptions struct {
	MaxDepth int `json:"maxDepth,omitempty"`
	MaxNodes int `json:"maxNodes,omitempty"`
}

// Run is the state of one analysis. It is created fresh for every scan and
// never shared. After a fatal error the partial graph stays inspectable
// through Report.
type Run struct {
	ID     string
	SeedID string
	State  State
	Store  *graph.Store
	Inputs risk.Inputs

	MaxDepth int
	MaxNodes int

	Findings    []risk.Finding
	Metrics     risk.Metrics
	NetworkRisk risk.NetworkRisk
	Err         error

	// Failures counts per-node fetch errors absorbed by the traversal.
	Failures int

	StartedAt  time.Time
	FinishedAt time.Time
}

// Report is the presentation contract of a run.
type Report struct {
	RunID       string           `json:"runId"`
	SeedID      string           `json:"seedId"`
	State       State            `json:"state"`
	Nodes       []graph.Node     `json:"nodes"`
	Edges       []graph.Edge     `json:"edges"`
	Findings    []risk.Finding   `json:"findings"`
	Metrics     risk.Metrics     `json:"metrics"`
	NetworkRisk risk.NetworkRisk `json:"networkRisk"`
	Failures    int              `json:"failures,omitempty"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"startedAt"`
	FinishedAt  time.Time        `json:"finishedAt,omitzero"`
}

// Report snapshots the run. Nodes and edges are copies in insertion order.
func (r *Run) Report() *Report {
	rep := &Report{
		RunID:       r.ID,
		SeedID:      r.SeedID,
		State:       r.State,
		Findings:    r.Findings,
		Metrics:     r.Metrics,
		NetworkRisk: r.NetworkRisk,
		Failures:    r.Failures,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
	}
	if r.Store != nil {
		rep.Nodes, rep.Edges = r.Store.Snapshot()
	}
	if rep.Nodes == nil {
		rep.Nodes = []graph.Node{}
	}
	if rep.Edges == nil {
		rep.Edges = []graph.Edge{}
	}
	if rep.Findings == nil {
		rep.Findings = []risk.Finding{}
	}
	if r.Err != nil {
		rep.Error = r.Err.Error()
	}
	return rep
}
