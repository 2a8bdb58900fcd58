// Package retry wraps remote operations with error classification and
// exponential backoff.
//
// Transient failures (connection errors, HTTP 429, HTTP 5xx, a busy local
// database) are retried up to a fixed attempt ceiling. Client errors such as
// 400/401/403/404 and unclassified errors are returned on the first attempt.
//
// The wait before attempt n+1 is
//
//	min(BaseDelay * 2^(n-1) * (1 + jitter), MaxDelay)
//
// with jitter drawn uniformly from [0, 1).
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Defaults mirror the ledger's remote API limits.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
	DefaultMaxDelay    = 30 * time.Second
)

// ErrExhausted is wrapped by the error returned after the final attempt.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy executes operations under a retry budget.
// A Policy is immutable after construction and safe for concurrent use.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	jitter      func() float64
	sleep       func(context.Context, time.Duration) error
	logger      *zap.Logger
}

// Option configures a Policy.
type Option func(*Policy)

// WithMaxAttempts sets the total number of attempts (first try included).
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithBaseDelay sets the delay before the first retry, before jitter.
func WithBaseDelay(d time.Duration) Option {
	return func(p *Policy) { p.baseDelay = d }
}

// WithMaxDelay caps a single wait.
func WithMaxDelay(d time.Duration) Option {
	return func(p *Policy) { p.maxDelay = d }
}

// WithJitter replaces the jitter source. Tests pass a constant.
func WithJitter(f func() float64) Option {
	return func(p *Policy) { p.jitter = f }
}

// WithSleep replaces the wait function. Tests record delays instead of sleeping.
func WithSleep(f func(context.Context, time.Duration) error) Option {
	return func(p *Policy) { p.sleep = f }
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(l *zap.Logger) Option {
	return func(p *Policy) { p.logger = l }
}

// New creates a Policy with defaults overridden by opts.
func New(opts ...Option) *Policy {
	p := &Policy{
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		maxDelay:    DefaultMaxDelay,
		jitter:      rand.Float64,
		sleep:       sleepContext,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxAttempts returns the attempt ceiling.
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// Delay returns the wait after the given failed attempt (1-based).
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := float64(p.baseDelay) * math.Pow(2, float64(attempt-1)) * (1 + p.jitter())
	if backoff > float64(p.maxDelay) {
		return p.maxDelay
	}
	return time.Duration(backoff)
}

// Do runs fn until it succeeds, fails with a non-transient error, or the
// attempt ceiling is reached. op names the operation in logs and errors.
func (p *Policy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				p.logger.Debug("operation recovered", zap.String("op", op), zap.Int("attempt", attempt))
			}
			return nil
		}
		lastErr = err

		// Only the caller's own cancellation or deadline stops retries outright.
		if ctx.Err() != nil {
			return err
		}
		class := Classify(err)
		if class != Transient {
			if class == Fatal {
				p.logger.Warn("non-retryable error", zap.String("op", op), zap.Error(err))
			}
			return err
		}
		if attempt == p.maxAttempts {
			break
		}

		wait := p.Delay(attempt)
		p.logger.Warn("transient error, backing off",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.maxAttempts),
			zap.Duration("delay", wait),
			zap.Error(err),
		)
		if err := p.sleep(ctx, wait); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	p.logger.Error("retries exhausted", zap.String("op", op), zap.Int("attempts", p.maxAttempts), zap.Error(lastErr))
	return fmt.Errorf("%s: %w after %d attempts: %w", op, ErrExhausted, p.maxAttempts, lastErr)
}

// Value is Do for operations that return a result.
func Value[T any](ctx context.Context, p *Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
