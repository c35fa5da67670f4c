package mortgage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCurrentRateCaches(t *testing.T) {
	calls := 0
	source := NewRateSource(func(context.Context) (float64, error) {
		calls++
		return 4.5, nil
	})

	ctx := context.Background()
	assert.Equal(t, 4.5, source.CurrentRate(ctx))
	assert.Equal(t, 4.5, source.CurrentRate(ctx))
	assert.Equal(t, 1, calls)
}

func TestCurrentRateExpiresAfterADay(t *testing.T) {
	calls := 0
	source := NewRateSource(func(context.Context) (float64, error) {
		calls++
		return 4.5, nil
	})

	now := time.Date(2026, time.August, 1, 9, 0, 0, 0, time.UTC)
	source.now = func() time.Time { return now }

	ctx := context.Background()
	source.CurrentRate(ctx)
	now = now.Add(25 * time.Hour)
	source.CurrentRate(ctx)

	assert.Equal(t, 2, calls)
}

func TestCurrentRateFallsBackOnError(t *testing.T) {
	calls := 0
	source := NewRateSource(func(context.Context) (float64, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("boe unavailable")
		}
		return 4.5, nil
	})

	ctx := context.Background()
	assert.Equal(t, FallbackRate, source.CurrentRate(ctx))
	// Failure is not cached, so the next call retries.
	assert.Equal(t, 4.5, source.CurrentRate(ctx))
}

func TestRefreshDropsCache(t *testing.T) {
	calls := 0
	source := NewRateSource(func(context.Context) (float64, error) {
		calls++
		return 5.0, nil
	})

	ctx := context.Background()
	source.CurrentRate(ctx)
	source.Refresh()
	source.CurrentRate(ctx)

	assert.Equal(t, 2, calls)
}
