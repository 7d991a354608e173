// Package health runs named readiness checks for the ledger and the
// resilience layer in front of it.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbd888/ledgerlens/internal/circuitbreaker"
)

// Status represents the health of a single subsystem.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Checker is a function that checks the health of a subsystem.
type Checker func(ctx context.Context) Status

// Registry holds named health checkers and runs them on demand.
type Registry struct {
	mu       sync.RWMutex
	checkers []namedChecker
	timeout  time.Duration
}

type namedChecker struct {
	name  string
	check Checker
}

// NewRegistry creates a registry whose checks each get timeout to answer.
// A zero timeout means 5s.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Registry{timeout: timeout}
}

// Register adds a named health checker.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	r.checkers = append(r.checkers, namedChecker{name: name, check: check})
	r.mu.Unlock()
}

// CheckAll runs all registered checkers concurrently and returns the
// aggregate health plus the per-subsystem results in registration order.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	checkers := make([]namedChecker, len(r.checkers))
	copy(checkers, r.checkers)
	r.mu.RUnlock()

	statuses = make([]Status, len(checkers))
	var g errgroup.Group
	for i, nc := range checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			st := nc.check(cctx)
			if st.Name == "" {
				st.Name = nc.name
			}
			statuses[i] = st
			return nil
		})
	}
	_ = g.Wait()

	healthy = true
	for _, st := range statuses {
		if !st.Healthy {
			healthy = false
		}
	}
	return healthy, statuses
}

// Pinger is anything that can prove it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports p healthy when Ping succeeds.
func PingCheck(name string, p Pinger) Checker {
	return func(ctx context.Context) Status {
		start := time.Now()
		err := p.Ping(ctx)
		st := Status{Name: name, Healthy: err == nil, Latency: time.Since(start).Round(time.Millisecond).String()}
		if err != nil {
			st.Detail = err.Error()
		}
		return st
	}
}

// BreakerCheck reports unhealthy while any of the given breaker keys is
// open.
func BreakerCheck(name string, b *circuitbreaker.Breaker, keys ...string) Checker {
	return func(context.Context) Status {
		for _, k := range keys {
			if s := b.State(k); s == circuitbreaker.StateOpen {
				return Status{Name: name, Healthy: false, Detail: fmt.Sprintf("circuit %s is %s", k, s)}
			}
		}
		return Status{Name: name, Healthy: true}
	}
}
