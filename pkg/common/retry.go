package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrRetriesExhausted is returned by Retry once all attempts failed with retryable errors.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryPolicy creates a fresh delay schedule for one Retry call.
type RetryPolicy func() backoff.BackOff

// LinearBackoff waits step, 2*step, 3*step, ... between attempts, capped at max.
func LinearBackoff(step, max time.Duration) RetryPolicy {
	return func() backoff.BackOff {
		return &linearBackOff{step: step, max: max}
	}
}

// CappedExponentialBackoff doubles the delay after every attempt, starting at initial and capped at max.
func CappedExponentialBackoff(initial, max time.Duration) RetryPolicy {
	return func() backoff.BackOff {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = initial
		bo.MaxInterval = max
		bo.Multiplier = 2
		bo.RandomizationFactor = 0
		bo.MaxElapsedTime = 0
		bo.Reset()
		return bo
	}
}

type linearBackOff struct {
	step, max time.Duration
	n         int64
}

func (l *linearBackOff) NextBackOff() time.Duration {
	l.n++
	d := time.Duration(l.n) * l.step
	if l.max > 0 && d > l.max {
		return l.max
	}
	return d
}

func (l *linearBackOff) Reset() {
	l.n = 0
}

// Permanent marks err as terminal: Retry returns it immediately without further attempts.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Retry runs op until it succeeds, returns a Permanent error, the context is canceled, or maxAttempts is reached.
// The attempt number passed to op starts at 1. notify, if set, is called before every wait.
func Retry[T any](
	ctx context.Context,
	maxAttempts int,
	policy RetryPolicy,
	op func(attempt int) (T, error),
	notify func(attempt int, err error, wait time.Duration),
) (T, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	schedule := policy()
	schedule.Reset()

	for attempt := 1; ; attempt++ {
		result, err := op(attempt)
		if err == nil {
			return result, nil
		}

		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return result, permanent.Err
		}

		if attempt >= maxAttempts {
			return result, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, err)
		}

		wait := schedule.NextBackOff()
		if wait == backoff.Stop {
			return result, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, err)
		}
		if notify != nil {
			notify(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, errors.Join(ctx.Err(), err)
		case <-timer.C:
		}
	}
}
