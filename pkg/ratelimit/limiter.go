// Package ratelimit implements the rate-limiting half of the Rate Limiter &
// Cost Router (RCR, spec §4.4): a token-bucket per external dependency with
// priority lanes (CRITICAL > HIGH > NORMAL) that shed lower priorities
// first under saturation. Built on golang.org/x/time/rate, the standard Go
// token-bucket implementation (grounded on service_layer's dependency on
// the same package for exactly this purpose).
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/sentinel-ir/core/internal/errors"
)

// Priority orders lanes for shedding under saturation (spec §4.4).
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
	PriorityCritical
)

// Limits configures one dependency's bucket (spec §6: ratelimit.{dep}.rps,
// ratelimit.{dep}.burst).
type Limits struct {
	RPS   float64
	Burst int
}

// Limiter owns one token bucket per dependency.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	defaults Limits
}

func NewLimiter(defaults Limits) *Limiter {
	return &Limiter{
		buckets:  make(map[string]*rate.Limiter),
		defaults: defaults,
	}
}

func (l *Limiter) bucket(dependency string, limits Limits) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[dependency]
	if !ok {
		b = rate.NewLimiter(rate.Limit(limits.RPS), limits.Burst)
		l.buckets[dependency] = b
	}
	return b
}

// Acquire reserves costTokens from dependency's bucket by deadline, shedding
// low-priority callers first when tokens are scarce: a PriorityNormal
// request that would need to wait past deadline is denied immediately
// rather than queued, while PriorityCritical is given the full wait budget
// regardless (spec §4.4: "lower priorities are shed first under
// saturation").
func (l *Limiter) Acquire(ctx context.Context, dependency string, limits Limits, costTokens int, priority Priority, deadline time.Time) error {
	b := l.bucket(dependency, limits)

	now := time.Now()
	budget := deadline.Sub(now)
	if priority == PriorityNormal {
		// Normal-priority callers never wait more than a quarter of the
		// caller's own deadline budget before being shed.
		budget /= 4
	} else if priority == PriorityHigh {
		budget /= 2
	}
	if budget < 0 {
		budget = 0
	}

	reservation := b.ReserveN(now, costTokens)
	if !reservation.OK() {
		return apperrors.New(apperrors.ErrorTypeRateLimit, "requested tokens exceed bucket burst capacity").
			WithDetailsf("dependency=%s tokens=%d", dependency, costTokens)
	}
	wait := reservation.DelayFrom(now)
	if wait > budget {
		reservation.Cancel()
		return apperrors.Newf(apperrors.ErrorTypeRateLimit, "rate limit exceeded for %s", dependency).
			WithDetailsf("priority=%d wait=%s budget=%s", priority, wait, budget)
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		reservation.Cancel()
		return ctx.Err()
	}
}
