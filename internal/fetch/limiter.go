package fetch

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// SourceLimiters throttles outbound calls per source. Each source gets its
// own limiter with burst 1, so concurrent callers serialize and observe the
// configured minimum inter-call interval.
type SourceLimiters struct {
	perSecond float64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewSourceLimiters(callsPerSecond float64) *SourceLimiters {
	if callsPerSecond <= 0 {
		callsPerSecond = 5
	}
	return &SourceLimiters{
		perSecond: callsPerSecond,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the source may make its next call or ctx is done.
func (l *SourceLimiters) Wait(ctx context.Context, sourceID string) error {
	return l.limiter(sourceID).Wait(ctx)
}

func (l *SourceLimiters) limiter(sourceID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[sourceID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.perSecond), 1)
		l.limiters[sourceID] = lim
	}
	return lim
}
