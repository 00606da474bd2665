package roomlog

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds the conditional-write retry loop of Append.
type RetryPolicy struct {
	// MaxAttempts caps conditional-write attempts. Zero or negative retries
	// forever with no delay.
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
	Factor      float64
	Jitter      bool
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 10,
		Base:        5 * time.Millisecond,
		Cap:         250 * time.Millisecond,
		Factor:      2.0,
		Jitter:      true,
	}
}

// backoff returns the delay before the attempt following the given one.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	if p.MaxAttempts <= 0 || p.Base <= 0 || attempt < 1 {
		return 0
	}
	factor := p.Factor
	if factor <= 0 {
		factor = 2.0
	}
	d := time.Duration(float64(p.Base) * math.Pow(factor, float64(attempt-1)))
	if p.Cap > 0 && d > p.Cap {
		d = p.Cap
	}
	if p.Jitter && d > 0 {
		d = time.Duration(rand.Int64N(int64(d)) + 1)
	}
	return d
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
