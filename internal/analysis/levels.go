package analysis

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tradevault/marketpulse/pkg/models"
)

// Base strengths per level type, consumed downstream by the confluence
// engine.
var levelStrength = map[models.LevelType]float64{
	models.LevelVWAP:    90,
	models.LevelSMA200:  95,
	models.LevelPDH:     85,
	models.LevelPDL:     85,
	models.LevelEMA21:   75,
	models.LevelEMA9:    70,
	models.LevelORBHigh: 80,
	models.LevelORBLow:  80,
	models.LevelPMH:     75,
	models.LevelPML:     75,
}

const (
	swingMaxDistancePct = 5.0 // swing levels beyond this are ignored
	intradayBarCount    = 200 // 5m bars covering premarket and the session
)

// exchange-local session windows
var nyLoc = mustLoadNY()

func mustLoadNY() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("ET", -5*60*60)
	}
	return loc
}

// GetKeyLevels assembles every tracked level for a symbol: quote-derived
// (PDH/PDL/VWAP), indicator-derived (EMA9/EMA21/SMA200), session-derived
// (opening range, premarket high/low), and merged multi-timeframe swing
// levels. The result is sorted ascending by absolute distance from the
// current price. Optional inputs that fail are omitted, never fatal; a
// missing quote makes the whole list nil.
func (s *Service) GetKeyLevels(ctx context.Context, symbol string) ([]models.KeyLevel, error) {
	quote, err := s.getQuote(ctx, symbol)
	if err != nil || quote == nil || quote.Price == 0 {
		if err != nil {
			s.logger.Warn("key levels: quote unavailable", zap.String("symbol", symbol), zap.Error(err))
		}
		return nil, err
	}
	return s.computeKeyLevels(ctx, symbol, quote), nil
}

func (s *Service) computeKeyLevels(ctx context.Context, symbol string, quote *models.Quote) []models.KeyLevel {
	price := quote.Price
	var levels []models.KeyLevel

	add := func(typ models.LevelType, value float64, tf string, touches int) {
		if !isFinite(value) || value <= 0 {
			return
		}
		levels = append(levels, models.KeyLevel{
			Type:       typ,
			Price:      value,
			Strength:   levelStrength[typ],
			Distance:   (value - price) / price * 100,
			Timeframe:  tf,
			TouchCount: touches,
		})
	}

	// quote-derived
	add(models.LevelPDH, quote.PrevHigh, "daily", 0)
	add(models.LevelPDL, quote.PrevLow, "daily", 0)
	add(models.LevelVWAP, quote.VWAP, "daily", 0)

	// indicator-derived, computed locally from daily closes when the
	// indicator endpoint has no value
	var dailyCloses []float64
	loadDailyCloses := func() []float64 {
		if dailyCloses != nil {
			return dailyCloses
		}
		dailyCloses = []float64{}
		bars, err := s.data.GetBars(ctx, symbol, "daily", 200)
		if err != nil {
			s.logger.Debug("key levels: daily bars unavailable", zap.String("symbol", symbol), zap.Error(err))
			return dailyCloses
		}
		for _, b := range bars {
			dailyCloses = append(dailyCloses, b.Close)
		}
		return dailyCloses
	}

	for _, ind := range []struct {
		typ      models.LevelType
		name     string
		timespan string
		window   int
	}{
		{models.LevelEMA9, "ema", "day", 9},
		{models.LevelEMA21, "ema", "day", 21},
		{models.LevelSMA200, "sma", "day", 200},
	} {
		v, err := s.data.GetIndicator(ctx, ind.name, symbol, ind.timespan, ind.window)
		if err != nil {
			s.logger.Warn("key levels: indicator unavailable",
				zap.String("symbol", symbol), zap.String("indicator", ind.name), zap.Error(err))
		}
		if err != nil || !isFinite(v) {
			closes := loadDailyCloses()
			if ind.name == "sma" {
				v = lastSMA(closes, ind.window)
			} else {
				v = lastEMA(closes, ind.window)
			}
		}
		add(ind.typ, v, "daily", 0)
	}

	// session-derived
	if intraday, err := s.data.GetBars(ctx, symbol, "5", intradayBarCount); err != nil {
		s.logger.Warn("key levels: intraday bars unavailable", zap.String("symbol", symbol), zap.Error(err))
	} else if sess := sessionLevels(intraday); sess != nil {
		add(models.LevelORBHigh, sess.orbHigh, "5m", 0)
		add(models.LevelORBLow, sess.orbLow, "5m", 0)
		add(models.LevelPMH, sess.pmHigh, "5m", 0)
		add(models.LevelPML, sess.pmLow, "5m", 0)
	}

	// swing-derived, capped near the current price
	for _, sp := range s.swingLevels(ctx, symbol, price) {
		typ := swingLevelType(sp)
		levels = append(levels, models.KeyLevel{
			Type:       typ,
			Price:      sp.Price,
			Strength:   sp.Strength,
			Distance:   (sp.Price - price) / price * 100,
			Timeframe:  sp.Timeframe,
			TouchCount: sp.TouchCount,
		})
	}

	sort.SliceStable(levels, func(i, j int) bool {
		return math.Abs(levels[i].Distance) < math.Abs(levels[j].Distance)
	})
	return levels
}

// swingLevels detects and merges 1H/4H pivots near the current price. Swing
// detection is optional enrichment: any fetch failure yields an empty set.
func (s *Service) swingLevels(ctx context.Context, symbol string, price float64) []models.SwingPoint {
	oneHourBars, err := s.data.GetBars(ctx, symbol, "1h", 100)
	if err != nil {
		s.logger.Debug("swing levels: 1h bars unavailable", zap.String("symbol", symbol), zap.Error(err))
		return nil
	}
	fourHourBars, err := s.data.GetBars(ctx, symbol, "240", 60)
	if err != nil {
		s.logger.Debug("swing levels: 4h bars unavailable", zap.String("symbol", symbol), zap.Error(err))
		return nil
	}
	oneHour := DetectSwingPoints(oneHourBars, "1h")
	fourHour := DetectSwingPoints(fourHourBars, "4h")
	return FilterNearbyLevels(MergeMTFLevels(oneHour, fourHour), price, swingMaxDistancePct)
}

func swingLevelType(sp models.SwingPoint) models.LevelType {
	if sp.Timeframe == "4h" {
		if sp.Type == models.SwingHigh {
			return models.LevelSwingHi4H
		}
		return models.LevelSwingLo4H
	}
	if sp.Type == models.SwingHigh {
		return models.LevelSwingHi1H
	}
	return models.LevelSwingLo1H
}

type intradaySession struct {
	orbHigh, orbLow float64
	pmHigh, pmLow   float64
}

// sessionLevels extracts opening-range (09:30-10:00 ET) and premarket
// (04:00-09:30 ET) extremes for the most recent trading day present in the
// bar set.
func sessionLevels(bars []models.Bar) *intradaySession {
	if len(bars) == 0 {
		return nil
	}
	lastDay := bars[len(bars)-1].Timestamp.In(nyLoc)
	y, m, d := lastDay.Date()

	sess := &intradaySession{}
	for _, b := range bars {
		t := b.Timestamp.In(nyLoc)
		by, bm, bd := t.Date()
		if by != y || bm != m || bd != d {
			continue
		}
		mins := t.Hour()*60 + t.Minute()
		switch {
		case mins >= 9*60+30 && mins < 10*60:
			if b.High > sess.orbHigh {
				sess.orbHigh = b.High
			}
			if sess.orbLow == 0 || b.Low < sess.orbLow {
				sess.orbLow = b.Low
			}
		case mins >= 4*60 && mins < 9*60+30:
			if b.High > sess.pmHigh {
				sess.pmHigh = b.High
			}
			if sess.pmLow == 0 || b.Low < sess.pmLow {
				sess.pmLow = b.Low
			}
		}
	}
	if sess.orbHigh == 0 && sess.pmHigh == 0 {
		return nil
	}
	return sess
}
