package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"ratefeed/internal/adapters"
	"ratefeed/internal/domain"
	"ratefeed/internal/metrics"
)

// Orchestrator fans one fetch per enabled source out concurrently, joins all
// of them, and degrades failed sources to their last-known-good cache.
type Orchestrator struct {
	fetcher     *SourceFetcher
	cache       adapters.RawRateCache
	collector   *metrics.Collector
	maxCacheAge time.Duration
}

func NewOrchestrator(fetcher *SourceFetcher, cache adapters.RawRateCache, collector *metrics.Collector, maxCacheAge time.Duration) *Orchestrator {
	return &Orchestrator{
		fetcher:     fetcher,
		cache:       cache,
		collector:   collector,
		maxCacheAge: maxCacheAge,
	}
}

// FetchAll fetches every source concurrently and returns one result per
// source, in input order. It never returns early: all goroutines complete
// before the call returns, and a panic in one source's fetch is converted to
// a failed result for that source only.
func (o *Orchestrator) FetchAll(ctx context.Context, sources []adapters.RateSource) []domain.FetchResult {
	results := make([]domain.FetchResult, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		if !src.Enabled() {
			logrus.Debugf("Source %s is disabled, skipping", src.ID())
			results[i] = domain.FetchResult{SourceID: src.ID(), Skipped: true, FetchedAt: time.Now()}
			continue
		}

		wg.Add(1)
		go func(slot int, src adapters.RateSource) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logrus.Errorf("Panic fetching source %s: %v", src.ID(), r)
					results[slot] = o.degrade(domain.FetchResult{
						SourceID:  src.ID(),
						Err:       fmt.Errorf("panic during fetch: %v", r),
						FetchedAt: time.Now(),
					})
				}
			}()
			results[slot] = o.fetchOne(ctx, src)
		}(i, src)
	}
	wg.Wait()

	total, successful, skipped := 0, 0, 0
	for _, r := range results {
		total += len(r.Rates)
		if r.Success {
			successful++
		}
		if r.Skipped {
			skipped++
		}
	}
	logrus.Infof("Fetch complete: %d/%d sources successful (%d disabled), %d total rates",
		successful, len(results)-skipped, skipped, total)

	return results
}

// CachedRates returns the union of every source's last-known-good records,
// honoring the staleness bound.
func (o *Orchestrator) CachedRates() []domain.RawRate {
	return o.cache.All(o.maxCacheAge)
}

func (o *Orchestrator) fetchOne(ctx context.Context, src adapters.RateSource) domain.FetchResult {
	started := time.Now()
	result := domain.FetchResult{SourceID: src.ID(), FetchedAt: started}

	rates, err := o.fetcher.Fetch(ctx, src)
	elapsed := time.Since(started)

	switch {
	case err != nil:
		logrus.WithError(err).Warnf("Fetch failed for source %s", src.ID())
		result.Err = err
	case len(rates) == 0:
		// A reachable source with nothing to report is a soft failure;
		// an empty set must not overwrite the last-known-good data.
		logrus.Warnf("Source %s returned zero rates", src.ID())
		result.Err = domain.ErrEmptyPayload
	default:
		o.cache.Set(src.ID(), rates)
		result.Success = true
		result.Rates = rates
	}

	o.collector.RecordFetch(src.ID(), result.Success, elapsed)
	if result.Success {
		return result
	}
	return o.degrade(result)
}

// degrade backfills a failed result from the source's cached rates, if any.
// Success stays false so callers can tell fresh data from stale.
func (o *Orchestrator) degrade(result domain.FetchResult) domain.FetchResult {
	cached, ok := o.cache.Get(result.SourceID, o.maxCacheAge)
	if !ok {
		return result
	}
	logrus.Warnf("Using cached data for source %s (%d rates)", result.SourceID, len(cached))
	result.Rates = cached
	result.UsedCache = true
	o.collector.RecordCacheFallback(result.SourceID)
	return result
}
