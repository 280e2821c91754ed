/*
Package retry runs a function until it succeeds, under a bounded policy.

Used where the chain needs time to catch up with us:
a freshly broadcast dust output showing up in the utxo index,
a fill transaction getting mined before its proof can be fetched.
*/
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"
)

var ErrDeadlineExceeded = errors.New("retry policy exhausted")

// Policy bounds a retry loop by attempts and by wall clock.
// Zero fields fall back to the defaults.
type Policy struct {
	MaxAttempts  int           // total calls, including the first one
	InitialDelay time.Duration // wait after the first failure
	MaxDelay     time.Duration // cap of a single wait
	Multiplier   float64       // growth of the wait after each failure
	Deadline     time.Duration // overall budget, 0 = only MaxAttempts counts
}

const (
	DEFAULT_MAX_ATTEMPTS  = 10
	DEFAULT_INITIAL_DELAY = 1 * time.Second
	DEFAULT_MAX_DELAY     = 15 * time.Second
	DEFAULT_MULTIPLIER    = 2.0
	DEFAULT_DEADLINE      = 2 * time.Minute
)

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  DEFAULT_MAX_ATTEMPTS,
		InitialDelay: DEFAULT_INITIAL_DELAY,
		MaxDelay:     DEFAULT_MAX_DELAY,
		Multiplier:   DEFAULT_MULTIPLIER,
		Deadline:     DEFAULT_DEADLINE,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DEFAULT_MAX_ATTEMPTS
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DEFAULT_INITIAL_DELAY
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DEFAULT_MAX_DELAY
	}
	if p.Multiplier < 1 {
		p.Multiplier = DEFAULT_MULTIPLIER
	}
	return p
}

// Delay returns the wait after the given failed attempt (0 based).
func (p Policy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	d := float64(p.InitialDelay)
	for i := 0; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	return time.Duration(d)
}

// Do calls f until it returns nil error or the policy runs out.
// When the policy runs out the returned error wraps both ErrDeadlineExceeded and the last error of f.
// Cancellation or expiry of the caller's ctx stops the loop with that ctx.Err(),
// only the policy's own Deadline is reported as ErrDeadlineExceeded.
func Do[T any](ctx context.Context, p Policy, what string, f func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	p = p.withDefaults()
	parent := ctx

	if p.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Deadline)
		defer cancel()
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		result, err := f(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		logger.WithFields(logger.Fields{
			"what":    what,
			"attempt": attempt + 1,
			"max":     p.MaxAttempts,
			"err":     err,
		}).Debug("retrying")

		if attempt == p.MaxAttempts-1 {
			break
		}

		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			if err := parent.Err(); err != nil {
				return zero, err
			}
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && p.Deadline > 0 {
				return zero, fmt.Errorf("%s: deadline %v: %w: %w", what, p.Deadline, ErrDeadlineExceeded, lastErr)
			}
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, fmt.Errorf("%s: %d attempts: %w: %w", what, p.MaxAttempts, ErrDeadlineExceeded, lastErr)
}
