// Package resilience provides the retry and failover primitives the
// pipeline uses around provider calls.
//
// [Retry] implements the transient-error policy: a provider call that fails
// with a retryable error is attempted exactly once more with the same
// inputs. [Breaker] is a small circuit breaker (closed → open → half-open)
// used by [Chain] to bypass a persistently failing primary provider in
// favour of its registered fallback.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned when a breaker rejects a call without running it.
var ErrOpen = errors.New("resilience: circuit open")

// Retry runs fn and, when it fails with an error matching retryable,
// runs it exactly once more. The second error, if any, is returned wrapped
// so callers can tell a retried failure from a first-attempt one.
func Retry[R any](ctx context.Context, retryable error, fn func(context.Context) (R, error)) (R, error) {
	out, err := fn(ctx)
	if err == nil || !errors.Is(err, retryable) {
		return out, err
	}
	if ctx.Err() != nil {
		return out, err
	}
	slog.Debug("retrying transient provider failure", "err", err)
	out, err = fn(ctx)
	if err != nil {
		return out, fmt.Errorf("retry exhausted: %w", err)
	}
	return out, nil
}

// BreakerConfig tunes a [Breaker]. Zero values get defaults.
type BreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// MaxFailures is the consecutive-failure count that opens the breaker.
	// Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before allowing a
	// probe call. Default: 30s.
	ResetTimeout time.Duration
}

// Breaker is a three-state circuit breaker with a single-probe half-open
// state.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu       sync.Mutex
	failures int
	openedAt time.Time
	open     bool
	probing  bool
}

// NewBreaker creates a [Breaker] from cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &Breaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
	}
}

// Allow reports whether a call may proceed, transitioning open → half-open
// when the reset timeout has elapsed. Callers that get true must report the
// outcome via [Breaker.Record].
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return true
	}
	if time.Since(b.openedAt) < b.resetTimeout {
		return false
	}
	if b.probing {
		return false
	}
	b.probing = true
	slog.Info("circuit breaker probing", "name", b.name)
	return true
}

// Record feeds a call outcome back into the breaker.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.open {
			slog.Info("circuit breaker closed", "name", b.name)
		}
		b.open = false
		b.probing = false
		b.failures = 0
		return
	}

	b.probing = false
	b.failures++
	if b.open || b.failures >= b.maxFailures {
		if !b.open {
			slog.Warn("circuit breaker opened", "name", b.name, "failures", b.failures)
		}
		b.open = true
		b.openedAt = time.Now()
	}
}

// entry pairs a provider value with its breaker.
type entry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Chain wraps a primary provider and zero or more fallbacks of the same
// capability type. When the primary fails (or its breaker is open), the
// next healthy fallback is tried in registration order.
type Chain[T any] struct {
	entries []entry[T]
}

// NewChain creates a [Chain] with primary as the first entry.
func NewChain[T any](name string, primary T) *Chain[T] {
	return &Chain[T]{
		entries: []entry[T]{{
			name:    name,
			value:   primary,
			breaker: NewBreaker(BreakerConfig{Name: name}),
		}},
	}
}

// Add appends a fallback provider, tried after all earlier entries.
func (c *Chain[T]) Add(name string, fallback T) {
	c.entries = append(c.entries, entry[T]{
		name:    name,
		value:   fallback,
		breaker: NewBreaker(BreakerConfig{Name: name}),
	})
}

// Execute tries fn against each entry in order until one succeeds. Entries
// with an open breaker are skipped. The name of the entry that served the
// call is returned so reports can attribute their backend.
func Execute[T any, R any](c *Chain[T], fn func(T) (R, error)) (R, string, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range c.entries {
		e := &c.entries[i]
		if !e.breaker.Allow() {
			slog.Debug("skipping provider (circuit open)", "provider", e.name)
			continue
		}
		result, err := fn(e.value)
		e.breaker.Record(err)
		if err == nil {
			return result, e.name, nil
		}
		lastErr = err
		slog.Warn("provider failed, trying next", "provider", e.name, "error", err)
	}
	if lastErr == nil {
		lastErr = ErrOpen
	}
	return zero, "", fmt.Errorf("resilience: all providers failed: %w", lastErr)
}
