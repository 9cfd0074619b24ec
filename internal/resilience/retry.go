package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Backoff controls retry behavior with exponential backoff and jitter.
type Backoff struct {
	// Attempts is the total number of tries including the first. Default: 3.
	Attempts int
	// Initial is the delay before the first retry. Default: 500ms.
	Initial time.Duration
	// Max caps a single delay. Default: 30s.
	Max time.Duration
	// Multiplier scales the delay after each attempt. Default: 2.
	Multiplier float64
	// Jitter is a fraction of the delay added or removed at random (0.25 = ±25%).
	Jitter float64
	// Retryable decides whether an error is worth another try. Nil means IsTransient.
	Retryable func(err error) bool
	// OnRetry runs before each sleep.
	OnRetry func(attempt int, err error)
}

// DefaultBackoff returns the backoff used for broker connects and webhooks.
func DefaultBackoff() Backoff {
	return Backoff{
		Attempts:   3,
		Initial:    500 * time.Millisecond,
		Max:        30 * time.Second,
		Multiplier: 2,
		Jitter:     0.25,
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempts
// run out, or ctx is cancelled. The last error is returned.
func Do(ctx context.Context, b Backoff, fn func(ctx context.Context) error) error {
	b = b.withDefaults()
	retryable := b.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var err error
	for attempt := 0; attempt < b.Attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil || !retryable(err) || attempt == b.Attempts-1 {
			return err
		}
		if b.OnRetry != nil {
			b.OnRetry(attempt+1, err)
		}

		timer := time.NewTimer(b.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

func (b Backoff) withDefaults() Backoff {
	if b.Attempts <= 0 {
		b.Attempts = 3
	}
	if b.Initial <= 0 {
		b.Initial = 500 * time.Millisecond
	}
	if b.Max <= 0 {
		b.Max = 30 * time.Second
	}
	if b.Multiplier <= 0 {
		b.Multiplier = 2
	}
	if b.Jitter < 0 {
		b.Jitter = 0
	}
	return b
}

func (b Backoff) delay(attempt int) time.Duration {
	d := float64(b.Initial) * math.Pow(b.Multiplier, float64(attempt))
	if d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * b.Jitter
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// LogRetry returns an OnRetry callback that logs each attempt.
func LogRetry(component, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("resilience: retrying",
			zap.String("component", component),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
