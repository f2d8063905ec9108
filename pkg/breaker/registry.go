// Package breaker implements the Circuit Breaker Registry (CBR, spec §4.3):
// one CLOSED/OPEN/HALF_OPEN state machine per external dependency, built on
// sony/gobreaker (the teacher's own circuit-breaking dependency) rather than
// hand-rolling the state machine — gobreaker already encodes exactly the
// three-state model, half-open probe budget, and rolling-window trip
// condition the spec calls for.
package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	apperrors "github.com/sentinel-ir/core/internal/errors"
)

// State mirrors gobreaker's state as the spec's own vocabulary, so callers
// outside this package never import gobreaker directly.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

func fromGobreakerState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Config is one dependency's breaker configuration (spec §6 configuration
// surface: breaker.failure_threshold, breaker.window_ms, breaker.cooldown_ms,
// breaker.halfopen_probes).
type Config struct {
	FailureThreshold uint32        // Fopen: consecutive failures that trip the breaker
	FailureRate      float64       // Ropen: rolling failure rate over Window that also trips it
	Window           time.Duration // W
	Cooldown         time.Duration // Tcool: OPEN -> HALF_OPEN delay
	HalfOpenProbes   uint32        // Kprobe: concurrent probes admitted while HALF_OPEN
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		FailureRate:      0.5,
		Window:           60 * time.Second,
		Cooldown:         30 * time.Second,
		HalfOpenProbes:   3,
	}
}

// Transition is emitted on every state change for observability (spec §4.3:
// "All transitions emit observable metrics").
type Transition struct {
	Dependency string
	From       State
	To         State
	At         time.Time
}

// Registry owns every dependency's breaker exclusively (spec §3 ownership);
// queries take a read lock on the registry map and return a snapshot of
// gobreaker's own state.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker
	onTrans  func(Transition)
}

func NewRegistry(onTransition func(Transition)) *Registry {
	if onTransition == nil {
		onTransition = func(Transition) {}
	}
	return &Registry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		onTrans:  onTransition,
	}
}

// ErrCircuitOpen is returned by Execute when the dependency's breaker is
// open; per spec §4.3 callers fall back to cached responses or degrade.
var ErrCircuitOpen = apperrors.New(apperrors.ErrorTypeNetwork, "circuit open").WithDetails("fail fast")

func (r *Registry) breakerFor(dependency string, cfg Config) *gobreaker.CircuitBreaker {
	r.mu.RLock()
	b, ok := r.breakers[dependency]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[dependency]; ok {
		return b
	}

	settings := gobreaker.Settings{
		Name:        dependency,
		MaxRequests: cfg.HalfOpenProbes,
		Interval:    cfg.Window,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= cfg.FailureThreshold {
				return true
			}
			if counts.Requests == 0 {
				return false
			}
			rate := float64(counts.TotalFailures) / float64(counts.Requests)
			return rate >= cfg.FailureRate
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.onTrans(Transition{
				Dependency: name,
				From:       fromGobreakerState(from),
				To:         fromGobreakerState(to),
				At:         time.Now(),
			})
		},
	}
	b = gobreaker.NewCircuitBreaker(settings)
	r.breakers[dependency] = b
	return b
}

// Execute runs fn under dependency's breaker using cfg on first registration
// (subsequent calls reuse the already-constructed breaker; cfg is ignored
// once a breaker exists). Returns ErrCircuitOpen without calling fn if the
// breaker is open.
func (r *Registry) Execute(ctx context.Context, dependency string, cfg Config, fn func(ctx context.Context) error) error {
	b := r.breakerFor(dependency, cfg)
	_, err := b.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, dependency)
	}
	return err
}

// State returns dependency's current breaker state, or StateClosed if the
// dependency has never been registered (a breaker that has never seen a
// call is vacuously closed).
func (r *Registry) State(dependency string) State {
	r.mu.RLock()
	b, ok := r.breakers[dependency]
	r.mu.RUnlock()
	if !ok {
		return StateClosed
	}
	return fromGobreakerState(b.State())
}

// Reset clears dependency's breaker back to CLOSED, if it exists.
func (r *Registry) Reset(dependency string) {
	r.mu.Lock()
	delete(r.breakers, dependency)
	r.mu.Unlock()
}
