package ai

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

const (
	DefaultAttempts   = 6
	DefaultMinBackoff = time.Second
	DefaultMaxBackoff = 60 * time.Second
)

// ExhaustedRetriesError is returned once every attempt has failed.
type ExhaustedRetriesError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("completion failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedRetriesError) Unwrap() error {
	return e.Err
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth another attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Backoff is a randomized exponential retry policy: the n-th wait is drawn
// uniformly from [Min, min(Max, Min*2^(n-1))].
type Backoff struct {
	Attempts int
	Min      time.Duration
	Max      time.Duration

	random func() float64
	sleep  func(ctx context.Context, d time.Duration) error
}

func DefaultBackoff() Backoff {
	return Backoff{
		Attempts: DefaultAttempts,
		Min:      DefaultMinBackoff,
		Max:      DefaultMaxBackoff,
	}
}

func (b Backoff) normalized() Backoff {
	if b.Attempts <= 0 {
		b.Attempts = 1
	}
	if b.Min <= 0 {
		b.Min = DefaultMinBackoff
	}
	if b.Max < b.Min {
		b.Max = b.Min
	}
	if b.random == nil {
		b.random = rand.Float64
	}
	if b.sleep == nil {
		b.sleep = sleepContext
	}
	return b
}

// Delay returns the wait after the given failed attempt, counted from 1.
func (b Backoff) Delay(attempt int) time.Duration {
	b = b.normalized()

	high := b.Min
	for i := 1; i < attempt && high < b.Max; i++ {
		high *= 2
	}
	if high > b.Max {
		high = b.Max
	}
	if high <= b.Min {
		return b.Min
	}
	return b.Min + time.Duration(b.random()*float64(high-b.Min))
}

// Retry calls fn until it succeeds, returns a Permanent error, the context
// is done or the attempts run out.
func (b Backoff) Retry(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	b = b.normalized()

	for attempt := 1; ; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("completion interrupted: %w", ctx.Err())
		}
		if attempt >= b.Attempts {
			return &ExhaustedRetriesError{Attempts: attempt, Err: err}
		}

		if err := b.sleep(ctx, b.Delay(attempt)); err != nil {
			return fmt.Errorf("completion interrupted: %w", err)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
