package fetch

import (
	"context"
	"fmt"
	"time"

	"ratefeed/internal/adapters"
	"ratefeed/internal/domain"
)

// SourceFetcher performs one logical fetch for a source: rate limiting and
// the retry policy are applied here so the orchestrator only sees the final
// outcome of the attempt.
type SourceFetcher struct {
	limiters       *SourceLimiters
	retry          RetryPolicy
	attemptTimeout time.Duration
}

func NewSourceFetcher(limiters *SourceLimiters, retry RetryPolicy, attemptTimeout time.Duration) *SourceFetcher {
	if attemptTimeout <= 0 {
		attemptTimeout = 30 * time.Second
	}
	return &SourceFetcher{limiters: limiters, retry: retry, attemptTimeout: attemptTimeout}
}

// Fetch runs the source's fetch under the limiter and retry policy. Every
// attempt gets its own timeout so one stuck request cannot eat the cycle.
func (f *SourceFetcher) Fetch(ctx context.Context, src adapters.RateSource) ([]domain.RawRate, error) {
	var rates []domain.RawRate

	op := func() error {
		if err := f.limiters.Wait(ctx, src.ID()); err != nil {
			return err
		}
		attemptCtx, cancel := context.WithTimeout(ctx, f.attemptTimeout)
		defer cancel()

		got, err := src.Fetch(attemptCtx)
		if err != nil {
			return err
		}
		rates = got
		return nil
	}

	if err := f.retry.Do(ctx, op); err != nil {
		return nil, fmt.Errorf("fetch failed for source %q: %w", src.ID(), err)
	}
	return rates, nil
}
