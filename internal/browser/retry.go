package browser

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the polling done while launching and connecting.
// The default is a fixed 500ms delay over 10 attempts; Exponential swaps in
// jittered exponential backoff capped by MaxElapsed, keeping the same attempt cap.
type RetryPolicy struct {
	Attempts    int
	Interval    time.Duration
	Exponential bool
	MaxElapsed  time.Duration
}

// DefaultRetryPolicy returns 10 attempts, 500ms apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:   10,
		Interval:   500 * time.Millisecond,
		MaxElapsed: 5 * time.Second,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.Attempts <= 0 {
		p.Attempts = d.Attempts
	}
	if p.Interval <= 0 {
		p.Interval = d.Interval
	}
	if p.MaxElapsed <= 0 {
		p.MaxElapsed = d.MaxElapsed
	}
	return p
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	p = p.normalized()

	var b backoff.BackOff
	if p.Exponential {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = p.Interval / 2
		eb.MaxInterval = p.Interval * 2
		eb.MaxElapsedTime = p.MaxElapsed
		b = eb
	} else {
		b = backoff.NewConstantBackOff(p.Interval)
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.Attempts-1)), ctx)
}

// Do runs op until it succeeds, returns a permanent error, or the policy
// is exhausted. It reports how many attempts were made.
func (p RetryPolicy) Do(ctx context.Context, op func() error) (int, error) {
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		return op()
	}, p.backOff(ctx))
	return attempts, err
}

// permanent stops a retry loop immediately.
func permanent(err error) error {
	return backoff.Permanent(err)
}
