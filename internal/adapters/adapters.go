package adapters

import (
	"context"
	"time"

	"ratefeed/internal/domain"
)

// RateSource is an independent origin of rate data. Implementations may try
// several strategies internally but present a single fetch call; an error
// means total failure for this attempt.
type RateSource interface {
	ID() string
	Name() string
	Enabled() bool
	Fetch(ctx context.Context) ([]domain.RawRate, error)
}

// RawRateCache holds each source's last-known-good raw rates. A maxAge of
// zero disables the staleness bound.
type RawRateCache interface {
	Get(sourceID string, maxAge time.Duration) ([]domain.RawRate, bool)
	Set(sourceID string, rates []domain.RawRate)
	All(maxAge time.Duration) []domain.RawRate
	Close()
}

// CycleRepository persists per-cycle summaries for later inspection.
type CycleRepository interface {
	Record(ctx context.Context, report domain.CycleReport) error
}
