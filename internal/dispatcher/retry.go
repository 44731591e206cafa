package dispatcher

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/alvesdmateus/easydeploy/internal/gateway"
)

const (
	backoffMultiplier    = 2.0
	backoffJitterPercent = 0.1
)

// RetryPolicy controls retries of idempotent reads.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns 3 attempts, 500ms base, 10s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

// backoff returns the delay before the given retry attempt (1-based),
// growing exponentially up to MaxDelay with +/-10% jitter.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(backoffMultiplier, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	jitter := delay * backoffJitterPercent * (2*rand.Float64() - 1)
	delay += jitter

	return time.Duration(delay)
}

// retry runs fn until it succeeds, returns a non-retryable error, the
// attempts run out or ctx is done.
func (d *Dispatcher) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := d.retryPolicy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !gateway.IsRetryable(err) || attempt == attempts {
			return err
		}
		if ctx.Err() != nil {
			return err
		}

		delay := d.retryPolicy.backoff(attempt)
		d.metrics.RecordRetry(op)
		d.logger.Debug().
			Err(err).
			Str("operation", op).
			Int("attempt", attempt).
			Dur("backoff_delay", delay).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
