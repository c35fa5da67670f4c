// Package mortgage provides the UK buy-to-let mortgage rate used in
// investment analysis. Rates are cached for a day; a fetch failure falls
// back to a stress-test worst case rather than failing the analysis.
package mortgage

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// FallbackRate is a worst-case buy-to-let rate, used when no live rate
// is available so investment analysis errs on the conservative side.
const FallbackRate = 7.5

const cacheDuration = 24 * time.Hour

// Fetcher retrieves the current rate from an external source.
type Fetcher func(ctx context.Context) (float64, error)

// RateSource serves the current mortgage rate with a 24 hour cache.
type RateSource struct {
	fetch Fetcher
	now   func() time.Time

	mu        sync.Mutex
	rate      float64
	fetchedAt time.Time
}

func NewRateSource(fetch Fetcher) *RateSource {
	if fetch == nil {
		fetch = NewBoEFetcher(nil)
	}
	return &RateSource{fetch: fetch, now: time.Now}
}

// CurrentRate returns the cached rate when fresh, otherwise fetches.
// Never returns an error; a failed fetch yields FallbackRate uncached so
// the next call retries.
func (s *RateSource) CurrentRate(ctx context.Context) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.fetchedAt.IsZero() && s.now().Sub(s.fetchedAt) < cacheDuration {
		return s.rate
	}

	rate, err := s.fetch(ctx)
	if err != nil {
		slog.Warn("Mortgage rate fetch failed, using fallback", "fallback", FallbackRate, "error", err)
		return FallbackRate
	}

	s.rate = rate
	s.fetchedAt = s.now()
	slog.Debug("Fetched mortgage rate", "rate", rate)
	return rate
}

// Refresh drops the cache so the next CurrentRate call fetches again.
func (s *RateSource) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchedAt = time.Time{}
}
