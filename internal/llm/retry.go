package llm

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// transientError lets a backend mark an error as retryable-or-not
// explicitly; anything else defaults to retryable since most errors
// surfaced here come from HTTP round-trips.
type transientError interface {
	Transient() bool
}

// retryWithBackoff runs fn up to 3 attempts total with exponential
// backoff starting at 1s and doubling, so the two waits are about 1s
// and 2s (the backoff library's default randomization applies). Every
// error is retried unless it implements transientError and reports
// Transient() == false, in which case it is returned at once.
func retryWithBackoff(ctx context.Context, fn func() error) error {
	attempt := 0
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 1 * time.Second
	policy.Multiplier = 2
	policy.MaxElapsedTime = 0
	bo := backoff.WithMaxRetries(policy, 2) // 3 attempts total

	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx))
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var te transientError
	if errors.As(err, &te) {
		return te.Transient()
	}
	return true
}
