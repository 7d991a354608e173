// Package circuitbreaker provides a per-key circuit breaker with
// closed → open → half-open state transitions. The ledger client keys it
// by RPC method so one failing command does not block the others.
package circuitbreaker

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrOpen is returned by Execute when the circuit for a key is open.
var ErrOpen = errors.New("circuit open")

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // requests flow through
	StateOpen                  // requests are rejected
	StateHalfOpen              // one probe allowed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var stateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ledgerlens",
	Subsystem: "circuitbreaker",
	Name:      "state_transitions_total",
	Help:      "Circuit breaker state transitions by key, from-state, and to-state.",
}, []string{"key", "from_state", "to_state"})

func init() {
	prometheus.MustRegister(stateTransitions)
}

// Config tunes a Breaker.
type Config struct {
	// Threshold is the number of consecutive failures that trips a key.
	Threshold int
	// OpenFor is how long a tripped key rejects before probing.
	OpenFor time.Duration
}

// DefaultConfig trips after 5 failures and probes after 30s.
func DefaultConfig() Config {
	return Config{Threshold: 5, OpenFor: 30 * time.Second}
}

type entry struct {
	state       State
	failures    int
	lastFailure time.Time
}

// Breaker tracks failure counts per key and trips open when they reach
// the threshold.
type Breaker struct {
	mu      sync.Mutex
	entries map[string]*entry
	cfg     Config
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a breaker. Zero fields in cfg fall back to DefaultConfig.
func New(cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = def.OpenFor
	}
	return &Breaker{
		entries: make(map[string]*entry),
		cfg:     cfg,
		now:     time.Now,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger used for state transitions.
func (b *Breaker) WithLogger(l *slog.Logger) *Breaker {
	b.logger = l
	return b
}

// Allow reports whether a request for key may proceed. An open key whose
// OpenFor has elapsed moves to half-open and admits exactly one probe.
func (b *Breaker) Allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return true
	}

	switch e.state {
	case StateOpen:
		if b.now().Sub(e.lastFailure) >= b.cfg.OpenFor {
			b.transition(e, key, StateHalfOpen)
			return true
		}
		return false
	case StateHalfOpen:
		return false
	default:
		return true
	}
}

// Success resets the failure count and closes a half-open key.
func (b *Breaker) Success(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return
	}
	if e.state == StateHalfOpen {
		b.transition(e, key, StateClosed)
	}
	e.failures = 0
}

// Failure records a failed request and trips the key when needed.
func (b *Breaker) Failure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		e = &entry{state: StateClosed}
		b.entries[key] = e
	}
	e.failures++
	e.lastFailure = b.now()

	switch {
	case e.state == StateHalfOpen:
		b.transition(e, key, StateOpen)
	case e.state == StateClosed && e.failures >= b.cfg.Threshold:
		b.transition(e, key, StateOpen)
	}
}

// Execute runs fn when key is allowed. fn's error counts as a failure only
// if countsAsFailure returns true for it (nil means every error counts).
func (b *Breaker) Execute(key string, fn func() error, countsAsFailure func(error) bool) error {
	if !b.Allow(key) {
		return ErrOpen
	}
	err := fn()
	if err != nil && (countsAsFailure == nil || countsAsFailure(err)) {
		b.Failure(key)
		return err
	}
	b.Success(key)
	return err
}

// State returns the current state for key; unknown keys are closed.
func (b *Breaker) State(key string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e, ok := b.entries[key]; ok {
		return e.state
	}
	return StateClosed
}

// transition changes state. Caller holds b.mu.
func (b *Breaker) transition(e *entry, key string, to State) {
	from := e.state
	if from == to {
		return
	}
	e.state = to
	stateTransitions.WithLabelValues(key, from.String(), to.String()).Inc()
	b.logger.Info("circuit state changed", "key", key, "from", from.String(), "to", to.String())
}
