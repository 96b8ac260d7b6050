// Package resilience bounds calls to external collaborators with a
// per-attempt timeout and a capped exponential retry.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bull/rag-server/internal/config"
	"github.com/bull/rag-server/internal/domain"
)

// ErrExhausted wraps the last error once every attempt has failed.
var ErrExhausted = errors.New("retries exhausted")

// Observer is told how each call ended: "success", "validation",
// "cancelled" or "exhausted".
type Observer interface {
	CallFinished(operation, outcome string, attempts int)
}

// Policy is the budget for one kind of call.
type Policy struct {
	Timeout         time.Duration
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Observer        Observer
}

func (p Policy) observe(name, outcome string, attempts int) {
	if p.Observer != nil {
		p.Observer.CallFinished(name, outcome, attempts)
	}
}

// FromConfig converts a config call policy.
func FromConfig(p config.CallPolicy) Policy {
	return Policy{
		Timeout:         p.Timeout,
		MaxAttempts:     p.MaxAttempts,
		InitialInterval: p.InitialInterval,
		MaxInterval:     p.MaxInterval,
	}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	// Attempts are bounded by count, not elapsed time.
	b.MaxElapsedTime = 0

	attempts := max(p.MaxAttempts, 1)
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Call runs fn until it succeeds, returns a permanent error, or the attempt
// budget is spent. Validation errors are never retried. Each attempt gets its
// own deadline of p.Timeout.
func Call[T any](ctx context.Context, name string, p Policy, logger *slog.Logger, fn func(ctx context.Context) (T, error)) (T, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		result  T
		attempt int
	)
	operation := func() error {
		attempt++
		v, err := withTimeout(ctx, p.Timeout, name, fn)
		if err == nil {
			result = v
			if attempt > 1 {
				logger.Info("Call succeeded after retry", "operation", name, "attempt", attempt)
			}
			return nil
		}
		if domain.IsValidation(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		logger.Warn("Call failed", "operation", name, "attempt", attempt, "max_attempts", p.MaxAttempts, "error", err)
		return err
	}

	err := backoff.Retry(operation, p.backOff(ctx))
	if err == nil {
		p.observe(name, "success", attempt)
		return result, nil
	}

	var zero T
	if domain.IsValidation(err) {
		p.observe(name, "validation", attempt)
		return zero, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		p.observe(name, "cancelled", attempt)
		return zero, fmt.Errorf("%s: %w", name, ctxErr)
	}
	p.observe(name, "exhausted", attempt)
	return zero, fmt.Errorf("%s: %w after %d attempts: %w", name, ErrExhausted, attempt, err)
}

// withTimeout runs fn with a derived deadline and stops waiting as soon as
// the deadline passes, even if fn ignores its context.
func withTimeout[T any](ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(timeoutCtx)
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		return o.v, o.err
	case <-timeoutCtx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
		}
		return zero, fmt.Errorf("%s: %w (limit: %v)", name, context.DeadlineExceeded, timeout)
	}
}
