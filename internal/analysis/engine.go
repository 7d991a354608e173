package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/ledgerlens/internal/graph"
	"github.com/mbd888/ledgerlens/internal/idgen"
	"github.com/mbd888/ledgerlens/internal/ledger"
	"github.com/mbd888/ledgerlens/internal/logging"
	"github.com/mbd888/ledgerlens/internal/metrics"
	"github.com/mbd888/ledgerlens/internal/risk"
	"github.com/mbd888/ledgerlens/internal/traces"
)

// Engine runs analyses against a ledger source. It holds no per-run state;
// every call to Run builds a fresh graph and a fresh request cache, so one
// Engine may serve concurrent runs.
type Engine struct {
	src      ledger.Source
	scorer   *risk.Scorer
	logger   *slog.Logger
	progress func(Progress)
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithProgress registers a callback for progress events. It is invoked on
// the run's goroutine and must not block.
func WithProgress(fn func(Progress)) Option {
	return func(e *Engine) { e.progress = fn }
}

// NewEngine creates an engine over src. A nil scorer uses the default model.
func NewEngine(src ledger.Source, scorer *risk.Scorer, opts ...Option) *Engine {
	if scorer == nil {
		scorer = risk.NewScorer(nil)
	}
	e := &Engine{
		src:    src,
		scorer: scorer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Scorer returns the engine's scorer.
func (e *Engine) Scorer() *risk.Scorer { return e.scorer }

// Run analyses the network around seed. The returned Run is never nil; on
// error it holds whatever graph was built before the failure.
func (e *Engine) Run(ctx context.Context, seed string, opts RunOptions) (*Run, error) {
	return e.run(ctx, seed, opts, e.progress)
}

// RunWithProgress is Run with a per-call progress callback, used when the
// caller needs to know the run id before the run finishes. The engine's own
// callback, if any, still fires.
func (e *Engine) RunWithProgress(ctx context.Context, seed string, opts RunOptions, fn func(Progress)) (*Run, error) {
	emit := fn
	if e.progress != nil && fn != nil {
		emit = func(p Progress) {
			e.progress(p)
			fn(p)
		}
	} else if fn == nil {
		emit = e.progress
	}
	return e.run(ctx, seed, opts, emit)
}

func (e *Engine) run(ctx context.Context, seed string, opts RunOptions, emit func(Progress)) (*Run, error) {
	model := e.scorer.Model()
	run := &Run{
		ID:        idgen.WithPrefix("run_"),
		State:     StateIdle,
		Store:     graph.NewStore(),
		Inputs:    make(risk.Inputs),
		MaxDepth:  model.Traversal.MaxDepth,
		MaxNodes:  model.Traversal.MaxNodes,
		StartedAt: time.Now().UTC(),
	}
	if opts.MaxDepth > 0 {
		run.MaxDepth = opts.MaxDepth
	}
	if opts.MaxNodes > 0 {
		run.MaxNodes = opts.MaxNodes
	}

	ctx = logging.WithRunID(ctx, run.ID)
	ctx = logging.WithLogger(ctx, e.logger)
	ctx, span := traces.StartSpan(ctx, "analysis.run", traces.RunID(run.ID), traces.Account(seed))

	metrics.ActiveAnalyses.Inc()
	defer metrics.ActiveAnalyses.Dec()

	r := &runner{
		scorer:   e.scorer,
		model:    model,
		run:      run,
		src:      ledger.NewRunCache(e.src),
		emit:     emit,
		visited:  make(map[string]bool),
		trustPos: make(map[string]int),
		creators: make(map[string]bool),
	}

	logging.L(ctx).Info("analysis started", "seed", seed, "max_depth", run.MaxDepth, "max_nodes", run.MaxNodes)
	err := r.execute(ctx, seed)
	run.FinishedAt = time.Now().UTC()
	elapsed := run.FinishedAt.Sub(run.StartedAt)

	metrics.AnalysisDuration.Observe(elapsed.Seconds())
	metrics.AnalysisRunsTotal.WithLabelValues(outcome(err)).Inc()
	metrics.AnalysisGraphNodes.Observe(float64(run.Store.NodeCount()))
	metrics.AnalysisGraphEdges.Observe(float64(run.Store.EdgeCount()))
	span.SetAttributes(traces.NodeCount(run.Store.NodeCount()))
	traces.End(span, err)

	if err != nil {
		run.Err = err
		r.setState(StateFailed, err.Error())
		logging.L(ctx).Warn("analysis failed", "seed", seed, "error", err, "nodes", run.Store.NodeCount())
		return run, err
	}
	logging.L(ctx).Info("analysis complete",
		"seed", seed,
		"nodes", run.Store.NodeCount(),
		"edges", run.Store.EdgeCount(),
		"failures", run.Failures,
		"network_risk", run.NetworkRisk.Score,
		"duration", elapsed,
	)
	return run, nil
}

// ScoreAccount computes the immediate score of a single account without
// traversal.
func (e *Engine) ScoreAccount(ctx context.Context, address string) (*AccountAssessment, error) {
	if !e.src.IsValidAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	addr := ledger.BaseAddress(address)
	ctx, span := traces.StartSpan(ctx, "analysis.score_account", traces.Account(addr))

	r := &runner{
		scorer:   e.scorer,
		model:    e.scorer.Model(),
		run:      &Run{Store: graph.NewStore(), Inputs: make(risk.Inputs)},
		src:      ledger.NewRunCache(e.src),
		trustPos: make(map[string]int),
		creators: make(map[string]bool),
		seedBase: addr,
	}
	ev, unavailable := r.gather(ctx, addr)
	if unavailable == 3 {
		err := fmt.Errorf("%w: %s", ErrLedgerUnavailable, addr)
		traces.End(span, err)
		return nil, err
	}
	sc := e.scorer.ScoreAccount(ev)
	traces.End(span, nil)
	return &AccountAssessment{
		Address:     addr,
		Score:       sc,
		Interaction: risk.Summarize(ev.Transactions),
		Level:       e.scorer.SeverityFor(sc.Immediate),
	}, nil
}

// AccountAssessment is the result of ScoreAccount.
type AccountAssessment struct {
	Address     string                   `json:"address"`
	Score       risk.AccountScore        `json:"score"`
	Interaction graph.InteractionSummary `json:"interactionSummary"`
	Level       risk.Severity            `json:"level"`
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "complete"
	case errors.Is(err, ErrInvalidAddress):
		return "invalid_address"
	case errors.Is(err, ErrLedgerUnavailable):
		return "ledger_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "failed"
	}
}
