package scraper

import (
	"context"
	"time"
)

// maxBackoff caps the delay when the policy sets no BackoffMax.
const maxBackoff = time.Hour

// RetryPolicy bounds how often a failed page is attempted again.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	BackoffMax time.Duration
}

// ShouldRetry reports whether err after the given number of completed
// retries warrants another attempt. Only transient failures are retried.
func (p RetryPolicy) ShouldRetry(err error, retries int) bool {
	if retries >= p.MaxRetries {
		return false
	}
	switch errorTypeLabel(err) {
	case "timeout", "connection", "rate_limited", "server":
		return true
	default:
		return false
	}
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := p.Backoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	limit := p.BackoffMax
	if limit <= 0 {
		limit = maxBackoff
	}

	// doubling stops at the cap, so large attempts cannot overflow
	delay := base
	for i := 1; i < attempt && delay < limit; i++ {
		delay *= 2
	}
	if delay > limit {
		delay = limit
	}
	return delay
}

// Wait sleeps for the backoff of attempt or until ctx is done.
func (p RetryPolicy) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.backoff(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
