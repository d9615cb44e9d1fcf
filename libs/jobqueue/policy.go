package jobqueue

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy decides how long a failed job waits before its next attempt
// and when it is given up on.
type RetryPolicy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	// Jitter is the randomization factor in [0, 1). Zero yields exact
	// Initial * Multiplier^(n-1) delays.
	Jitter float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Initial:     30 * time.Second,
		Max:         30 * time.Minute,
		Multiplier:  2,
		Jitter:      0.2,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Initial <= 0 {
		p.Initial = def.Initial
	}
	if p.Max <= 0 {
		p.Max = def.Max
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		p.Jitter = 0
	}
	return p
}

// Delay returns the wait before retrying after the given failed attempt
// (1-based). A *backoff.RetryAfterError in err overrides the schedule.
func (p RetryPolicy) Delay(attempt int, err error) time.Duration {
	var after *backoff.RetryAfterError
	if errors.As(err, &after) && after.Duration > 0 {
		return after.Duration
	}
	p = p.withDefaults()
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.Initial,
		RandomizationFactor: p.Jitter,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.Max,
	}
	b.Reset()
	if attempt < 1 {
		attempt = 1
	}
	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// Exhausted reports whether job has used its attempt budget. A job's own
// MaxAttempts wins over the policy.
func (p RetryPolicy) Exhausted(job Job) bool {
	limit := job.MaxAttempts
	if limit <= 0 {
		limit = p.withDefaults().MaxAttempts
	}
	return job.Attempts >= limit
}

// IsPermanent reports whether err was marked with backoff.Permanent and must
// not be retried.
func IsPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}
