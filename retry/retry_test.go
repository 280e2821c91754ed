package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errNotYet = errors.New("not yet")

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastPolicy(5), "count", func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errNotYet
		}
		return 42, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(4), "never", func(ctx context.Context) (string, error) {
		calls++
		return "", errNotYet
	})
	assert.Equal(t, 4, calls)
	assert.ErrorIs(t, err, ErrDeadlineExceeded)
	assert.ErrorIs(t, err, errNotYet)
}

func TestDoDeadline(t *testing.T) {
	p := Policy{
		MaxAttempts:  1000,
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Deadline:     50 * time.Millisecond,
	}
	start := time.Now()
	_, err := Do(context.Background(), p, "slow", func(ctx context.Context) (int, error) {
		return 0, errNotYet
	})
	assert.ErrorIs(t, err, ErrDeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDoCallerDeadlineIsNotPolicyDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	p := Policy{
		MaxAttempts:  1000,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Deadline:     time.Minute,
	}
	_, err := Do(ctx, p, "caller timeout", func(ctx context.Context) (int, error) {
		return 0, errNotYet
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrDeadlineExceeded)
}

func TestDoCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Policy{MaxAttempts: 100, InitialDelay: time.Minute}
	_, err := Do(ctx, p, "cancel", func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, errNotYet
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDelayBackoff(t *testing.T) {
	p := Policy{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 5*time.Second, p.Delay(3))
}
