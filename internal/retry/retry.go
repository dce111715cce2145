package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Policy bounds how a retryable operation is re-attempted.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultPolicy mirrors the configured defaults: a small single-digit
// attempt budget with exponential spacing.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    4,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
		Multiplier:     2,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 500 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 8 * time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	return p
}

// ExhaustedError is the terminal failure after the attempt budget is
// spent. It embeds the last underlying error and the attempt count.
type ExhaustedError struct {
	Op       string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: retries exhausted after %d attempts: %v", e.Op, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable: Do returns it immediately without
// consuming the remaining attempt budget.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err (or anything it wraps) was marked with
// Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do runs fn under the policy, backing off exponentially between attempts.
// Errors marked Permanent short-circuit and are unwrapped before being
// returned; everything else is retried until the budget is spent, then
// wrapped in ExhaustedError.
func Do[T any](ctx context.Context, log zerolog.Logger, p Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	p = p.normalized()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialBackoff
	bo.MaxInterval = p.MaxBackoff
	bo.Multiplier = p.Multiplier
	bo.MaxElapsedTime = 0
	bo.RandomizationFactor = 0

	attempt := 0
	operation := func() (T, error) {
		var zero T
		attempt++
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if IsPermanent(err) {
			var pe *permanentError
			errors.As(err, &pe)
			return zero, backoff.Permanent(pe.err)
		}
		if attempt >= p.MaxAttempts {
			return zero, backoff.Permanent(&ExhaustedError{Op: op, Attempts: attempt, Last: err})
		}
		log.Warn().Str("op", op).Int("attempt", attempt).Err(err).Msg("transient failure, retrying")
		return zero, err
	}

	return backoff.RetryWithData(operation, backoff.WithContext(bo, ctx))
}

// WaitUntil suspends until the wall clock reaches t or the context is
// cancelled. It is the uniform primitive for "wait for a timelock offset"
// and "wait out the finality delay"; now is injectable for tests.
func WaitUntil(ctx context.Context, now func() time.Time, t time.Time) error {
	d := t.Sub(now())
	if d <= 0 {
		return nil
	}
	return Sleep(ctx, d)
}

// Sleep is a cancellable time.Sleep.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
