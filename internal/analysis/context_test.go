package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradevault/marketpulse/pkg/models"
)

func TestGetMarketContext_Bias(t *testing.T) {
	data := &fakeData{
		quote: &models.Quote{
			Symbol: "SPY", Price: 500, ChangePercent: 0.8, Timestamp: time.Now(),
		},
	}
	svc := newTestService(data)

	mc := svc.GetMarketContext(context.Background())
	require.NotNil(t, mc)
	assert.Equal(t, models.TrendBullish, mc.Bias)
	assert.NotEmpty(t, mc.Indexes)

	assert.True(t, svc.AvoidShorts(context.Background()))
	assert.False(t, svc.AvoidLongs(context.Background()))
}

func TestGetMarketContext_FlatIsNeutral(t *testing.T) {
	data := &fakeData{
		quote: &models.Quote{Symbol: "SPY", Price: 500, ChangePercent: 0.05, Timestamp: time.Now()},
	}
	svc := newTestService(data)

	mc := svc.GetMarketContext(context.Background())
	require.NotNil(t, mc)
	assert.Equal(t, models.TrendNeutral, mc.Bias)
	assert.False(t, svc.AvoidLongs(context.Background()))
	assert.False(t, svc.AvoidShorts(context.Background()))
}

func TestGetMarketContext_NilWithoutQuotes(t *testing.T) {
	svc := newTestService(&fakeData{})
	assert.Nil(t, svc.GetMarketContext(context.Background()))
}

func TestGetActiveWarnings_Choppy(t *testing.T) {
	// alternating closes keep every timeframe neutral and alignment weak
	bars := make([]models.Bar, 50)
	for i := range bars {
		c := 100.0
		if i%2 == 0 {
			c = 100.2
		}
		bars[i] = models.Bar{
			Open: c, High: c + 0.3, Low: c - 0.3, Close: c,
			Volume:    1000,
			Timestamp: time.Now().Add(-time.Duration(50-i) * 5 * time.Minute),
		}
	}
	data := &fakeData{
		quote: &models.Quote{Symbol: "CHOP", Price: 100.1, Timestamp: time.Now()},
		bars:  map[string][]models.Bar{"5m": bars, "15m": bars, "1h": bars, "daily": bars},
	}
	svc := newTestService(data)

	warnings := svc.GetActiveWarnings(context.Background(), []string{"CHOP"})
	kinds := make([]string, 0, len(warnings))
	for _, w := range warnings {
		kinds = append(kinds, w.Kind)
	}
	assert.NotContains(t, kinds, "conflicting_timeframes", "neutral timeframes do not conflict")
}

func TestBreadth(t *testing.T) {
	bars := trendingBars(50, 100, 0.5)
	data := &fakeData{
		quote: &models.Quote{Symbol: "UP", Price: 125, Timestamp: time.Now()},
		bars:  map[string][]models.Bar{"daily": bars},
	}
	svc := newTestService(data)

	advancing, declining := svc.Breadth(context.Background(), []string{"UP", "ALSO_UP"})
	assert.Equal(t, 2, advancing)
	assert.Equal(t, 0, declining)
}
