package tracking

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds redelivery of a single event. Delays grow
// exponentially from InitialDelay and are capped at MaxDelay; each delay is
// drawn uniformly from [0, cap] (full jitter).
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// SingleAttempt never retries.
func SingleAttempt() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

// DefaultRetryPolicy returns a policy with the given attempt budget,
// 200ms initial delay, 2x multiplier and 5s max delay.
func DefaultRetryPolicy(maxAttempts int) RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return RetryPolicy{
		MaxAttempts:  maxAttempts,
		InitialDelay: 200 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Backoff returns the upper bound of the delay before retry number attempt
// (1-indexed).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.InitialDelay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

func (p RetryPolicy) jittered(attempt int) time.Duration {
	ceiling := p.Backoff(attempt)
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(ceiling) + 1))
}

// Do runs fn until it succeeds, reports a permanent failure, runs out of
// attempts, or ctx is done. fn returns (ok, retryable).
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) (ok bool, retryable bool)) bool {
	limit := p.attempts()
	for attempt := 1; attempt <= limit; attempt++ {
		ok, retryable := fn(attempt)
		if ok {
			return true
		}
		if !retryable || attempt == limit {
			return false
		}

		t := time.NewTimer(p.jittered(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
	}
	return false
}
