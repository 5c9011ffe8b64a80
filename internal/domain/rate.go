package domain

import (
	"time"
)

// RawRate is a single observation exactly as one source reported it.
// Amounts stay strings until normalization so no precision is lost on ingest.
type RawRate struct {
	SourceID   string
	SourceName string
	FromTicker string
	ToTicker   string
	InAmount   string
	OutAmount  string
	Reserve    string
	MinAmount  string
	MaxAmount  string
	Param      string
	FetchedAt  time.Time
	SourceURL  string
}

// CanonicalRate is a normalized, export-ready record. InAmount is always "1",
// all amounts are plain decimal strings with trailing zeros stripped.
type CanonicalRate struct {
	FromCurrency string
	ToCurrency   string
	InAmount     string
	OutAmount    string
	Reserve      string
	MinAmount    string
	MaxAmount    string
	Param        string
	SourceID     string
	SourceName   string
}

// PairKey identifies a rate direction within one source, used for
// first-seen-wins deduplication inside a cycle.
type PairKey struct {
	From     string
	To       string
	SourceID string
}

func (r CanonicalRate) Key() PairKey {
	return PairKey{From: r.FromCurrency, To: r.ToCurrency, SourceID: r.SourceID}
}

// FetchResult is the outcome of one source's attempt within a cycle.
// UsedCache marks stale data served after a failed fetch; Success stays
// false in that case so callers can tell fresh from fallback. Skipped marks
// a disabled source that was never attempted and counts as neither.
type FetchResult struct {
	SourceID  string
	Success   bool
	Skipped   bool
	Rates     []RawRate
	Err       error
	UsedCache bool
	FetchedAt time.Time
}

// CycleReport summarizes one completed pipeline cycle for the history sink.
type CycleReport struct {
	ExecID         string
	StartedAt      time.Time
	FinishedAt     time.Time
	SourcesOK      int
	SourcesFailed  int
	UsedCache      int
	RawCount       int
	CanonicalCount int
	Exported       bool
}
