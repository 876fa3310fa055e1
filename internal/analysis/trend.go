package analysis

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/tradevault/marketpulse/internal/cache"
	"github.com/tradevault/marketpulse/pkg/models"
)

// mtfTimeframes are the resolutions the multi-timeframe analysis always
// covers, in display order.
var mtfTimeframes = []string{"5m", "15m", "1h", "daily"}

const (
	trendBarCount = 50

	// price within this relative distance of an EMA reads as "at" it
	emaAtThresholdPct = 0.1
)

// GetTimeframeTrend classifies one symbol on one timeframe: EMA9/EMA21 over
// the closes, price position versus each EMA, EMA alignment, and the
// combined trend. The trend is bullish only when price is above both EMAs
// and the EMAs align bullish; symmetric for bearish; neutral otherwise.
func (s *Service) GetTimeframeTrend(ctx context.Context, symbol, timeframe string) (*models.TimeframeTrend, error) {
	bars, err := s.data.GetBars(ctx, symbol, timeframe, trendBarCount)
	if err != nil {
		return nil, fmt.Errorf("fetch %s bars: %w", timeframe, err)
	}
	if len(bars) < 21 {
		return nil, nil
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return classifyTrend(timeframe, closes[len(closes)-1], lastEMA(closes, 9), lastEMA(closes, 21)), nil
}

// classifyTrend is the pure classification core, separated for testability.
func classifyTrend(timeframe string, price, ema9, ema21 float64) *models.TimeframeTrend {
	if !isFinite(ema9) || !isFinite(ema21) || price <= 0 {
		return nil
	}

	tt := &models.TimeframeTrend{
		Timeframe:    timeframe,
		EMA9:         ema9,
		EMA21:        ema21,
		PriceVsEMA9:  pricePosition(price, ema9),
		PriceVsEMA21: pricePosition(price, ema21),
		EMAAlignment: emaAlignment(ema9, ema21),
		Trend:        models.TrendNeutral,
	}

	switch {
	case tt.PriceVsEMA9 == models.PriceAbove && tt.PriceVsEMA21 == models.PriceAbove && tt.EMAAlignment == models.AlignBullish:
		tt.Trend = models.TrendBullish
	case tt.PriceVsEMA9 == models.PriceBelow && tt.PriceVsEMA21 == models.PriceBelow && tt.EMAAlignment == models.AlignBearish:
		tt.Trend = models.TrendBearish
	}
	return tt
}

func pricePosition(price, ema float64) models.PricePosition {
	if ema == 0 {
		return models.PriceAt
	}
	diff := (price - ema) / ema * 100
	switch {
	case diff > emaAtThresholdPct:
		return models.PriceAbove
	case diff < -emaAtThresholdPct:
		return models.PriceBelow
	default:
		return models.PriceAt
	}
}

func emaAlignment(ema9, ema21 float64) models.EMAAlignment {
	if ema21 == 0 {
		return models.AlignMixed
	}
	diff := (ema9 - ema21) / ema21 * 100
	switch {
	case diff > emaAtThresholdPct:
		return models.AlignBullish
	case diff < -emaAtThresholdPct:
		return models.AlignBearish
	default:
		return models.AlignMixed
	}
}

// GetMTFAnalysis runs the per-timeframe classification for 5m/15m/1h/daily
// concurrently and aggregates bias, alignment, and conflicts. Timeframes
// whose data is unavailable are omitted; no usable timeframe at all makes
// the whole analysis nil. Results are cached briefly per symbol.
func (s *Service) GetMTFAnalysis(ctx context.Context, symbol string) (*models.MTFAnalysis, error) {
	return cache.GetOrCompute(ctx, s.cache, "mtf:"+symbol, mtfTTL, func(ctx context.Context) (*models.MTFAnalysis, error) {
		return s.computeMTF(ctx, symbol)
	})
}

func (s *Service) computeMTF(ctx context.Context, symbol string) (*models.MTFAnalysis, error) {
	price, ok := s.getCurrentPrice(ctx, symbol)
	if !ok {
		return nil, nil
	}

	results := make([]*models.TimeframeTrend, len(mtfTimeframes))
	var wg sync.WaitGroup
	for i, tf := range mtfTimeframes {
		wg.Add(1)
		go func(i int, tf string) {
			defer wg.Done()
			tt, err := s.GetTimeframeTrend(ctx, symbol, tf)
			if err != nil {
				s.logger.Warn("timeframe trend unavailable",
					zap.String("symbol", symbol), zap.String("timeframe", tf), zap.Error(err))
				return
			}
			results[i] = tt
		}(i, tf)
	}
	wg.Wait()

	var timeframes []models.TimeframeTrend
	for _, tt := range results {
		if tt != nil {
			timeframes = append(timeframes, *tt)
		}
	}
	if len(timeframes) == 0 {
		return nil, nil
	}

	bias, score, conflicts := aggregateBias(timeframes)
	return &models.MTFAnalysis{
		Symbol:                symbol,
		CurrentPrice:          price,
		Timeframes:            timeframes,
		OverallBias:           bias,
		AlignmentScore:        score,
		ConflictingTimeframes: conflicts,
	}, nil
}

// aggregateBias takes the majority vote across timeframes. A unanimous vote
// scores 100; otherwise the score is the majority fraction of 100, and an
// exact tie settles at 50.
func aggregateBias(timeframes []models.TimeframeTrend) (models.Trend, float64, []string) {
	counts := map[models.Trend]int{}
	for _, tt := range timeframes {
		counts[tt.Trend]++
	}

	bias := models.TrendNeutral
	best := 0
	tied := false
	for _, t := range []models.Trend{models.TrendBullish, models.TrendBearish, models.TrendNeutral} {
		switch {
		case counts[t] > best:
			bias, best, tied = t, counts[t], false
		case counts[t] == best && counts[t] > 0 && t != bias:
			tied = true
		}
	}

	n := len(timeframes)
	var score float64
	switch {
	case best == n:
		score = 100
	case tied:
		score = 50
	default:
		score = math.Round(float64(best) / float64(n) * 100)
		if score < 50 {
			score = 50
		}
	}

	var conflicts []string
	for _, tt := range timeframes {
		if tt.Trend != bias {
			conflicts = append(conflicts, tt.Timeframe)
		}
	}
	return bias, score, conflicts
}
