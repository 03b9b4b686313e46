// Package retry re-invokes operations that fail with transient errors.
//
// A Policy allows at most Attempts invocations. Between invocations it sleeps
// for the current delay and multiplies the delay by Backoff. Errors that are
// not Retryable are returned immediately, and the last attempt is never
// caught, so exhaustion surfaces the error of the final invocation.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultAttempts is the total number of invocations.
	DefaultAttempts = 4

	// DefaultDelay is the sleep before the second invocation.
	DefaultDelay = 3 * time.Second

	// DefaultBackoff multiplies the delay after every failed invocation.
	DefaultBackoff = 2.0
)

// Policy describes when and how often an operation is retried.
type Policy struct {
	// Attempts is the total number of invocations including the first one.
	Attempts int

	// Delay is the sleep after the first failure.
	Delay time.Duration

	// Backoff multiplies Delay after each failure. 1 keeps the delay constant.
	Backoff float64

	// Retryable reports whether an error is transient. A nil Retryable
	// retries every error.
	Retryable func(error) bool

	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Default returns the policy used by the HTTP helpers.
func Default() Policy {
	return Policy{
		Attempts: DefaultAttempts,
		Delay:    DefaultDelay,
		Backoff:  DefaultBackoff,
	}
}

func (p Policy) withDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultAttempts
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	if p.Backoff <= 0 {
		p.Backoff = DefaultBackoff
	}
	if p.Retryable == nil {
		p.Retryable = func(error) bool { return true }
	}
	if p.Sleep == nil {
		p.Sleep = sleep
	}
	return p
}

// Do invokes fn according to p.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue invokes fn according to p and returns the value of the first
// successful invocation.
func DoValue[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	p = p.withDefaults()
	l := log.Ctx(ctx)

	delay := p.Delay
	for remaining := p.Attempts; remaining > 1; remaining-- {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if !p.Retryable(err) {
			return v, err
		}

		l.Warn().
			Err(err).
			Dur("delay", delay).
			Int("remaining", remaining-1).
			Msgf("%v, retrying in %s", err, delay)

		if serr := p.Sleep(ctx, delay); serr != nil {
			return v, serr
		}
		delay = time.Duration(float64(delay) * p.Backoff)
	}

	return fn(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// On retries errors matching any of targets with errors.Is.
func On(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	}
}

// OnType retries errors that have an E in their chain.
func OnType[E error]() func(error) bool {
	return func(err error) bool {
		var target E
		return errors.As(err, &target)
	}
}

// Any retries an error if one of preds does.
func Any(preds ...func(error) bool) func(error) bool {
	return func(err error) bool {
		for _, p := range preds {
			if p(err) {
				return true
			}
		}
		return false
	}
}
