package fetch

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// RetryPolicy executes an operation up to MaxRetries+1 times with bounded
// exponential backoff. Delay before attempt n is
// min(BaseDelay*2^(n-1), MaxDelay) scaled by a jitter factor in [0.75, 1.25].
// Errors the Retryable predicate rejects abort immediately; the last error is
// always returned to the caller, never swallowed.
type RetryPolicy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Retryable  func(error) bool
}

// Do runs op under the policy. A nil Retryable treats every error as
// retryable except context cancellation.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.BaseDelay
	bo.MaxInterval = p.MaxDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.25
	bo.MaxElapsedTime = 0
	bo.Reset()

	attempt := 0
	wrapped := func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if !p.retryable(err) {
			return backoff.Permanent(err)
		}
		logrus.Warnf("Attempt %d failed: %v", attempt, err)
		return err
	}

	return backoff.Retry(wrapped, backoff.WithMaxRetries(backoff.WithContext(bo, ctx), p.MaxRetries))
}

func (p RetryPolicy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}
