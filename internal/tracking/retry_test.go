package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, InitialDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: 300 * time.Millisecond}

	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 300*time.Millisecond, p.Backoff(3))
	assert.Equal(t, time.Duration(0), p.Backoff(0))
}

func TestJitterWithinCeiling(t *testing.T) {
	p := DefaultRetryPolicy(3)
	for i := 0; i < 50; i++ {
		d := p.jittered(2)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, p.Backoff(2))
	}
}

func TestDoSingleAttempt(t *testing.T) {
	calls := 0
	ok := SingleAttempt().Do(context.Background(), func(int) (bool, bool) {
		calls++
		return false, true
	})
	assert.False(t, ok)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond}

	calls := 0
	ok := p.Do(context.Background(), func(attempt int) (bool, bool) {
		calls++
		return attempt == 3, true
	})
	assert.True(t, ok)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentFailure(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, InitialDelay: time.Millisecond}

	calls := 0
	ok := p.Do(context.Background(), func(int) (bool, bool) {
		calls++
		return false, false
	})
	assert.False(t, ok)
	assert.Equal(t, 1, calls)
}

func TestDoHonoursContext(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, InitialDelay: time.Hour, Multiplier: 1, MaxDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	ok := p.Do(ctx, func(int) (bool, bool) {
		calls++
		return false, true
	})
	assert.False(t, ok)
	assert.Equal(t, 1, calls)
}

func TestDefaultRetryPolicyFloor(t *testing.T) {
	assert.Equal(t, 1, DefaultRetryPolicy(0).MaxAttempts)
	assert.Equal(t, 1, RetryPolicy{}.attempts())
}
