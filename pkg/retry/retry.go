// Package retry re-runs short operations that failed for a transient reason,
// waiting with capped exponential backoff between attempts.
//
// The progression engine retries database work that lost a race with another
// transaction: serialization failures, deadlocks and lock timeouts. Anything
// else is returned on the first failure.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MARKERS
// ══════════════════════════════════════════════════════════════════════════════

type verdict int

const (
	again verdict = iota + 1
	stop
)

type markedError struct {
	err     error
	verdict verdict
}

func (e *markedError) Error() string { return e.err.Error() }
func (e *markedError) Unwrap() error { return e.err }

func mark(err error, v verdict) error {
	if err == nil {
		return nil
	}
	return &markedError{err: err, verdict: v}
}

func verdictOf(err error) verdict {
	var m *markedError
	if errors.As(err, &m) {
		return m.verdict
	}
	return 0
}

// Retryable marks err as worth another attempt under the default policy.
func Retryable(err error) error { return mark(err, again) }

// Permanent marks err as final. It is returned unwrapped without retrying,
// whatever the policy's ShouldRetry says.
func Permanent(err error) error { return mark(err, stop) }

// IsRetryable reports whether err was marked with Retryable.
func IsRetryable(err error) bool { return verdictOf(err) == again }

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool { return verdictOf(err) == stop }

// unmark strips a marker added by this package so callers see their own error.
func unmark(err error) error {
	var m *markedError
	if errors.As(err, &m) && m == err {
		return m.err
	}
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// POLICY
// ══════════════════════════════════════════════════════════════════════════════

// Policy describes how often and how long to retry.
type Policy struct {
	// MaxAttempts counts the first attempt.
	MaxAttempts int

	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64

	// Jitter spreads each wait by up to ±Jitter of its length (0 to 1).
	Jitter float64

	// ShouldRetry classifies failures. Nil retries only Retryable errors.
	ShouldRetry func(error) bool

	// OnRetry runs before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultPolicy returns three attempts starting at 100ms.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.1,
	}
}

// Option adjusts a Policy.
type Option func(*Policy)

// WithMaxAttempts sets the total number of attempts.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.MaxAttempts = n
		}
	}
}

// WithBackoff sets the first wait and the cap on later waits.
func WithBackoff(base, max time.Duration) Option {
	return func(p *Policy) {
		if base > 0 {
			p.BaseDelay = base
		}
		if max >= base && max > 0 {
			p.MaxDelay = max
		}
	}
}

// WithJitter sets the jitter fraction.
func WithJitter(j float64) Option {
	return func(p *Policy) {
		if j >= 0 && j <= 1 {
			p.Jitter = j
		}
	}
}

// WithShouldRetry replaces the failure classifier.
func WithShouldRetry(fn func(error) bool) Option {
	return func(p *Policy) { p.ShouldRetry = fn }
}

// WithOnRetry sets a hook called before each wait.
func WithOnRetry(fn func(attempt int, err error, wait time.Duration)) Option {
	return func(p *Policy) { p.OnRetry = fn }
}

// ══════════════════════════════════════════════════════════════════════════════
// RETRIER
// ══════════════════════════════════════════════════════════════════════════════

// Retrier runs operations under a fixed Policy. It is safe for concurrent use.
type Retrier struct {
	policy Policy
}

// New builds a Retrier from DefaultPolicy and opts.
func New(opts ...Option) *Retrier {
	p := DefaultPolicy()
	for _, opt := range opts {
		opt(&p)
	}
	return &Retrier{policy: p}
}

// Transactions returns the retrier used around database statements and
// transactions: four quick attempts, retrying what isTransient accepts.
func Transactions(isTransient func(error) bool) *Retrier {
	return New(
		WithMaxAttempts(4),
		WithBackoff(25*time.Millisecond, time.Second),
		WithJitter(0.2),
		WithShouldRetry(isTransient),
	)
}

// Policy returns a copy of the retrier's policy.
func (r *Retrier) Policy() Policy { return r.policy }

// Do runs op until it succeeds, fails permanently, runs out of attempts, or
// ctx is done. The last error from op is returned with any marker removed.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var last error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return unmark(last)
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		last = err

		if IsPermanent(err) || !r.retries(err) || attempt == r.policy.MaxAttempts {
			return unmark(err)
		}

		wait := r.backoff(attempt)
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return unmark(last)
		case <-timer.C:
		}
	}

	return unmark(last)
}

func (r *Retrier) retries(err error) bool {
	if r.policy.ShouldRetry != nil {
		return r.policy.ShouldRetry(err)
	}
	return IsRetryable(err)
}

func (r *Retrier) backoff(attempt int) time.Duration {
	wait := float64(r.policy.BaseDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))
	wait = math.Min(wait, float64(r.policy.MaxDelay))
	if r.policy.Jitter > 0 {
		wait += wait * r.policy.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(math.Max(wait, 0))
}

// Do runs op with a one-off Retrier built from opts.
func Do(ctx context.Context, op func(ctx context.Context) error, opts ...Option) error {
	return New(opts...).Do(ctx, op)
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
