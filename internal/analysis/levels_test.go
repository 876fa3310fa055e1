package analysis

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradevault/marketpulse/pkg/models"
)

func nyBar(t *testing.T, hour, min int, high, low float64) models.Bar {
	t.Helper()
	ts := time.Date(2025, 3, 10, hour, min, 0, 0, nyLoc)
	return models.Bar{
		Open: (high + low) / 2, High: high, Low: low, Close: (high + low) / 2,
		Volume: 500, Timestamp: ts,
	}
}

func TestSessionLevels(t *testing.T) {
	bars := []models.Bar{
		nyBar(t, 4, 5, 101, 99),    // premarket
		nyBar(t, 8, 0, 104, 100),   // premarket high
		nyBar(t, 9, 15, 103, 98),   // premarket low
		nyBar(t, 9, 30, 106, 102),  // opening range
		nyBar(t, 9, 55, 108, 104),  // opening range high
		nyBar(t, 10, 30, 109, 105), // regular session, ignored
	}
	sess := sessionLevels(bars)
	require.NotNil(t, sess)
	assert.Equal(t, 108.0, sess.orbHigh)
	assert.Equal(t, 102.0, sess.orbLow)
	assert.Equal(t, 104.0, sess.pmHigh)
	assert.Equal(t, 98.0, sess.pmLow)
}

func TestSessionLevels_OnlyMostRecentDay(t *testing.T) {
	old := nyBar(t, 9, 45, 200, 190)
	old.Timestamp = old.Timestamp.AddDate(0, 0, -1)
	bars := []models.Bar{
		old,
		nyBar(t, 9, 45, 108, 104),
	}
	sess := sessionLevels(bars)
	require.NotNil(t, sess)
	assert.Equal(t, 108.0, sess.orbHigh)
}

func TestSessionLevels_Empty(t *testing.T) {
	assert.Nil(t, sessionLevels(nil))
	// regular-session bars only: nothing to report
	assert.Nil(t, sessionLevels([]models.Bar{nyBar(t, 12, 0, 108, 104)}))
}

func TestGetKeyLevels_SortedByAbsoluteDistance(t *testing.T) {
	bars := trendingBars(50, 100, 0.5)
	data := &fakeData{
		quote: &models.Quote{
			Symbol: "TEST", Price: 120, PrevHigh: 121, PrevLow: 113,
			VWAP: 119.5, Timestamp: time.Now(),
		},
		bars:       map[string][]models.Bar{"5": bars, "1h": bars, "240": bars},
		indicators: map[string]float64{"ema": 118, "sma": 100},
	}
	svc := newTestService(data)

	levels, err := svc.GetKeyLevels(context.Background(), "TEST")
	require.NoError(t, err)
	require.NotEmpty(t, levels)

	for i := 1; i < len(levels); i++ {
		assert.LessOrEqual(t,
			math.Abs(levels[i-1].Distance),
			math.Abs(levels[i].Distance),
			"levels must be sorted ascending by |distance|")
	}

	// quote-derived levels carry their fixed base strengths
	for _, l := range levels {
		switch l.Type {
		case models.LevelVWAP:
			assert.Equal(t, 90.0, l.Strength)
		case models.LevelSMA200:
			assert.Equal(t, 95.0, l.Strength)
		case models.LevelPDH, models.LevelPDL:
			assert.Equal(t, 85.0, l.Strength)
		}
	}
}

func TestGetKeyLevels_LocalIndicatorFallback(t *testing.T) {
	daily := trendingBars(200, 100, 0.1)
	closes := make([]float64, len(daily))
	for i, b := range daily {
		closes[i] = b.Close
	}
	// no indicator endpoint values configured: EMA/SMA come from daily closes
	data := &fakeData{
		quote: &models.Quote{Symbol: "TEST", Price: 119, Timestamp: time.Now()},
		bars:  map[string][]models.Bar{"daily": daily},
	}
	svc := newTestService(data)

	levels, err := svc.GetKeyLevels(context.Background(), "TEST")
	require.NoError(t, err)

	found := map[models.LevelType]float64{}
	for _, l := range levels {
		found[l.Type] = l.Price
	}
	require.Contains(t, found, models.LevelEMA9)
	require.Contains(t, found, models.LevelEMA21)
	require.Contains(t, found, models.LevelSMA200)
	assert.InDelta(t, lastEMA(closes, 9), found[models.LevelEMA9], 1e-9)
	assert.InDelta(t, lastEMA(closes, 21), found[models.LevelEMA21], 1e-9)
	assert.InDelta(t, lastSMA(closes, 200), found[models.LevelSMA200], 1e-9)
}

func TestGetKeyLevels_NilWithoutQuote(t *testing.T) {
	data := &fakeData{quote: nil}
	svc := newTestService(data)

	levels, err := svc.GetKeyLevels(context.Background(), "TEST")
	require.NoError(t, err)
	assert.Nil(t, levels)
}
