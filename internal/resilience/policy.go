// Package resilience provides the tiny retry/timeout policy combinator
// shared by the Snapcast, MQTT, and KNX transports and the startup
// orchestrator, built on explicit functions wrapping
// github.com/cenkalti/backoff/v4.
package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is an exponential-backoff-with-jitter retry policy.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	UseJitter  bool
	// OnAttempt is called before each attempt (including the first) with
	// the zero-based attempt number and the previous error, if any. It is
	// used to log "attempt N/M with the last error".
	OnAttempt func(attempt int, lastErr error)
}

// newBackOff builds the underlying cenkalti/backoff instance
// for p. Jitter is backoff's built-in RandomizationFactor; disabling
// jitter sets it to 0 for a deterministic delay sequence.
func (p Policy) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = 2
	if p.UseJitter {
		b.RandomizationFactor = 0.5
	} else {
		b.RandomizationFactor = 0
	}
	if p.MaxRetries <= 0 {
		b.MaxElapsedTime = 0 // unlimited retries: no elapsed-time cap either
	}
	return b
}

// Retry runs op until it succeeds, ctx is cancelled, or MaxRetries attempts
// have been made (0 meaning unlimited). It never swallows ctx cancellation:
// a cancelled context always returns immediately with ctx.Err().
func Retry(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	b := backoff.WithContext(p.newBackOff(), ctx)

	attempt := 0
	var lastErr error

	run := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if p.OnAttempt != nil {
			p.OnAttempt(attempt, lastErr)
		}
		err := op(ctx)
		if err != nil {
			lastErr = err
			attempt++
			if p.MaxRetries > 0 && attempt >= p.MaxRetries {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	if err := backoff.Retry(run, b); err != nil {
		if perm, ok := err.(*backoff.PermanentError); ok {
			return perm.Err
		}
		return err
	}
	return nil
}

// Timeout runs op with a derived context cancelled after d.
func Timeout(ctx context.Context, d time.Duration, op func(ctx context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return op(cctx)
}
