package app

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/example/fieldstore/internal/models"
)

// RetryPolicy bounds conflict retries with exponential backoff and jitter.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// JitterFactor is the maximum jitter as a fraction of the delay (0.0 to 1.0).
	JitterFactor float64
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  10,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
		Multiplier:   2.0,
		JitterFactor: 0.3,
	}
}

// NextDelay returns the delay before retrying after failed attempt (0-based)
// and whether another attempt is allowed.
func (p RetryPolicy) NextDelay(attempt int) (time.Duration, bool) {
	if p.MaxAttempts > 0 && attempt+1 >= p.MaxAttempts {
		return 0, false
	}

	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(multiplier, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.JitterFactor > 0 {
		//nolint:gosec // jitter is not security-critical
		delay += delay * p.JitterFactor * (2*rand.Float64() - 1)
		if delay < 0 {
			delay = float64(p.InitialDelay)
		}
	}

	return time.Duration(delay), true
}

// retryOnConflict runs op until it succeeds, fails with anything other than
// a revision conflict, or the policy gives up. It returns the number of
// attempts made.
func retryOnConflict(ctx context.Context, p RetryPolicy, op func(attempt int) error) (int, error) {
	for attempt := 0; ; attempt++ {
		err := op(attempt)
		if err == nil || !models.IsConflict(err) {
			return attempt + 1, err
		}

		delay, ok := p.NextDelay(attempt)
		if !ok {
			return attempt + 1, &tooManyConflictsError{attempts: attempt + 1, last: err}
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt + 1, ctx.Err()
		case <-timer.C:
		}
	}
}

type tooManyConflictsError struct {
	attempts int
	last     error
}

func (e *tooManyConflictsError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", models.ErrTooManyConflicts, e.attempts, e.last)
}

func (e *tooManyConflictsError) Is(target error) bool {
	return target == models.ErrTooManyConflicts
}

func (e *tooManyConflictsError) Unwrap() error {
	return e.last
}
