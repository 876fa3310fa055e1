package analysis

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/tradevault/marketpulse/pkg/models"
)

// index proxies used to read the broad market
var marketProxies = []string{"SPY", "QQQ"}

// IndexSnapshot is one index proxy's session read.
type IndexSnapshot struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"change_percent"`
}

// MarketContext summarizes the broad market for coaching consumers.
type MarketContext struct {
	Indexes []IndexSnapshot `json:"indexes"`
	Bias    models.Trend    `json:"bias"`
	AsOf    time.Time       `json:"as_of"`
}

// Warning flags a condition that should temper trade aggressiveness.
type Warning struct {
	Symbol  string `json:"symbol"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// GetMarketContext reads the index proxies and derives a broad-market bias.
// Returns nil when no proxy quote is available.
func (s *Service) GetMarketContext(ctx context.Context) *MarketContext {
	mc := &MarketContext{AsOf: time.Now()}
	up, down := 0, 0
	for _, sym := range marketProxies {
		q, err := s.getQuote(ctx, sym)
		if err != nil || q == nil {
			if err != nil {
				s.logger.Debug("market context: proxy quote unavailable", zap.String("symbol", sym), zap.Error(err))
			}
			continue
		}
		mc.Indexes = append(mc.Indexes, IndexSnapshot{
			Symbol:        sym,
			Price:         q.Price,
			ChangePercent: q.ChangePercent,
		})
		switch {
		case q.ChangePercent > 0.1:
			up++
		case q.ChangePercent < -0.1:
			down++
		}
	}
	if len(mc.Indexes) == 0 {
		return nil
	}

	mc.Bias = models.TrendNeutral
	switch {
	case up > 0 && down == 0:
		mc.Bias = models.TrendBullish
	case down > 0 && up == 0:
		mc.Bias = models.TrendBearish
	}
	return mc
}

// GetActiveWarnings inspects the given symbols for conditions worth
// flagging: conflicting timeframes, a choppy alignment score, and price
// extended far from the 5m EMA9. Unavailable data produces no warning.
func (s *Service) GetActiveWarnings(ctx context.Context, symbols []string) []Warning {
	var warnings []Warning
	for _, sym := range symbols {
		mtf, err := s.GetMTFAnalysis(ctx, sym)
		if err != nil || mtf == nil {
			continue
		}
		if len(mtf.ConflictingTimeframes) >= 2 {
			warnings = append(warnings, Warning{
				Symbol: sym,
				Kind:   "conflicting_timeframes",
				Message: fmt.Sprintf("%s has conflicting signals on %d timeframes; size down or stand aside",
					sym, len(mtf.ConflictingTimeframes)),
			})
		}
		if mtf.AlignmentScore < 60 {
			warnings = append(warnings, Warning{
				Symbol:  sym,
				Kind:    "choppy_market",
				Message: fmt.Sprintf("%s timeframe alignment is weak (%.0f); conditions look choppy", sym, mtf.AlignmentScore),
			})
		}
		for _, tt := range mtf.Timeframes {
			if tt.Timeframe != "5m" || tt.EMA9 == 0 {
				continue
			}
			ext := math.Abs(mtf.CurrentPrice-tt.EMA9) / tt.EMA9 * 100
			if ext > 1.5 {
				warnings = append(warnings, Warning{
					Symbol:  sym,
					Kind:    "extended_from_ema9",
					Message: fmt.Sprintf("%s is %.1f%% from its 5m EMA9; entries here are chasing", sym, ext),
				})
			}
		}
	}
	return warnings
}

// Breadth counts how many of the given symbols carry a bullish versus
// bearish daily trend.
func (s *Service) Breadth(ctx context.Context, symbols []string) (advancing, declining int) {
	for _, sym := range symbols {
		tt, err := s.GetTimeframeTrend(ctx, sym, "daily")
		if err != nil || tt == nil {
			continue
		}
		switch tt.Trend {
		case models.TrendBullish:
			advancing++
		case models.TrendBearish:
			declining++
		}
	}
	return advancing, declining
}

// AvoidLongs reports whether broad-market conditions argue against long
// entries. Unavailable context reads as no opinion.
func (s *Service) AvoidLongs(ctx context.Context) bool {
	mc := s.GetMarketContext(ctx)
	return mc != nil && mc.Bias == models.TrendBearish
}

// AvoidShorts is the symmetric read for short entries.
func (s *Service) AvoidShorts(ctx context.Context) bool {
	mc := s.GetMarketContext(ctx)
	return mc != nil && mc.Bias == models.TrendBullish
}
