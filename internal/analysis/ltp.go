package analysis

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tradevault/marketpulse/internal/cache"
	"github.com/tradevault/marketpulse/pkg/models"
)

// Confluence weighting and proximity thresholds.
const (
	levelWeight    = 0.35
	trendWeight    = 0.40
	patienceWeight = 0.25

	atLevelPct   = 0.3
	nearLevelPct = 0.8

	nearestLevelCount = 4
)

// GetLTPAnalysis produces the Levels/Trend/Patience confluence report for a
// symbol. The report is all-or-nothing: a missing quote or MTF analysis
// yields nil rather than a partial result. Reports are cached briefly per
// symbol.
func (s *Service) GetLTPAnalysis(ctx context.Context, symbol string) (*models.LTPAnalysis, error) {
	return cache.GetOrCompute(ctx, s.cache, "ltp:"+symbol, ltpTTL, func(ctx context.Context) (*models.LTPAnalysis, error) {
		return s.computeLTP(ctx, symbol)
	})
}

func (s *Service) computeLTP(ctx context.Context, symbol string) (*models.LTPAnalysis, error) {
	var (
		wg     sync.WaitGroup
		quote  *models.Quote
		mtf    *models.MTFAnalysis
		levels []models.KeyLevel

		patience = map[string]*models.PatienceCandle{}
		patMu    sync.Mutex
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		q, err := s.getQuote(ctx, symbol)
		if err != nil {
			s.logger.Warn("ltp: quote fetch failed", zap.String("symbol", symbol), zap.Error(err))
			return
		}
		quote = q
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		m, err := s.GetMTFAnalysis(ctx, symbol)
		if err != nil {
			s.logger.Warn("ltp: mtf analysis failed", zap.String("symbol", symbol), zap.Error(err))
			return
		}
		mtf = m
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		q, err := s.getQuote(ctx, symbol)
		if err != nil || q == nil || q.Price == 0 {
			return
		}
		levels = s.computeKeyLevels(ctx, symbol, q)
	}()

	for _, tf := range []string{"5m", "15m", "1h"} {
		wg.Add(1)
		go func(tf string) {
			defer wg.Done()
			bars, err := s.data.GetBars(ctx, symbol, tf, 10)
			if err != nil {
				s.logger.Debug("ltp: patience bars unavailable",
					zap.String("symbol", symbol), zap.String("timeframe", tf), zap.Error(err))
				return
			}
			if pc := DetectPatienceCandle(bars); pc != nil {
				patMu.Lock()
				patience[tf] = pc
				patMu.Unlock()
			}
		}(tf)
	}
	wg.Wait()

	// required inputs: no quote or no MTF means no report at all
	if quote == nil || quote.Price == 0 || mtf == nil {
		return nil, nil
	}

	ltpLevels := models.LTPLevels{
		Nearest: nearestLevels(levels, nearestLevelCount),
		PDH:     quote.PrevHigh,
		PDL:     quote.PrevLow,
		VWAP:    quote.VWAP,
	}
	ltpLevels.LevelScore = scoreLevels(ltpLevels.Nearest)

	ltpTrend := models.LTPTrend{
		MTF:        mtf,
		TrendScore: scoreTrend(mtf),
	}

	ltpPatience := models.LTPPatience{
		FiveMin:    patience["5m"],
		FifteenMin: patience["15m"],
		OneHour:    patience["1h"],
	}
	ltpPatience.PatienceScore = scorePatience(ltpPatience)

	confluence := int(math.Round(
		ltpLevels.LevelScore*levelWeight +
			ltpTrend.TrendScore*trendWeight +
			ltpPatience.PatienceScore*patienceWeight))
	if confluence < 0 {
		confluence = 0
	}
	if confluence > 100 {
		confluence = 100
	}

	grade := gradeFor(confluence)
	quality := qualityFor(grade)

	report := &models.LTPAnalysis{
		Symbol:          symbol,
		CurrentPrice:    quote.Price,
		Levels:          ltpLevels,
		Trend:           ltpTrend,
		Patience:        ltpPatience,
		ConfluenceScore: confluence,
		Grade:           grade,
		SetupQuality:    quality,
		GeneratedAt:     time.Now(),
	}
	report.Recommendation = s.recommendation(report)
	return report, nil
}

// nearestLevels keeps the closest n levels; input is already sorted
// ascending by absolute distance.
func nearestLevels(levels []models.KeyLevel, n int) []models.KeyLevel {
	if len(levels) <= n {
		return levels
	}
	return levels[:n]
}

// scoreLevels: baseline 50; at a level (within 0.3%) scores the level's
// strength plus a proximity bonus capped at 95; near a level (within 0.8%)
// scores 65.
func scoreLevels(nearest []models.KeyLevel) float64 {
	if len(nearest) == 0 {
		return 50
	}
	dist := math.Abs(nearest[0].Distance)
	switch {
	case dist <= atLevelPct:
		return math.Min(95, nearest[0].Strength+10)
	case dist <= nearLevelPct:
		return 65
	default:
		return 50
	}
}

// scoreTrend starts from the MTF alignment score, rewarding daily/intraday
// agreement (+10, capped 100) and penalizing conflict (-20, floored 30).
func scoreTrend(mtf *models.MTFAnalysis) float64 {
	score := mtf.AlignmentScore

	daily := models.TrendNeutral
	intradayCounts := map[models.Trend]int{}
	intradayTotal := 0
	for _, tt := range mtf.Timeframes {
		if tt.Timeframe == "daily" {
			daily = tt.Trend
			continue
		}
		intradayCounts[tt.Trend]++
		intradayTotal++
	}
	if daily == models.TrendNeutral || intradayTotal == 0 {
		return score
	}

	// fixed evaluation order keeps the majority pick deterministic; a tied
	// intraday read counts as neutral and adjusts nothing
	intraday := models.TrendNeutral
	best := 0
	tied := false
	for _, t := range []models.Trend{models.TrendBullish, models.TrendBearish, models.TrendNeutral} {
		switch {
		case intradayCounts[t] > best:
			intraday, best, tied = t, intradayCounts[t], false
		case intradayCounts[t] == best && intradayCounts[t] > 0 && t != intraday:
			tied = true
		}
	}
	if tied {
		return score
	}

	switch {
	case intraday == daily:
		score = math.Min(100, score+10)
	case intraday != models.TrendNeutral && intraday != daily:
		score = math.Max(30, score-20)
	}
	return score
}

// scorePatience: base 40 plus per-timeframe bonuses (confirmed/forming):
// 5m +20/+10, 15m +25/+12, 1h +15/+8, capped at 100.
func scorePatience(p models.LTPPatience) float64 {
	score := 40.0
	bonus := func(pc *models.PatienceCandle, confirmed, forming float64) {
		if pc == nil {
			return
		}
		switch {
		case pc.Confirmed:
			score += confirmed
		case pc.Forming:
			score += forming
		}
	}
	bonus(p.FiveMin, 20, 10)
	bonus(p.FifteenMin, 25, 12)
	bonus(p.OneHour, 15, 8)
	return math.Min(100, score)
}

// gradeFor maps a confluence score to a letter grade on fixed thresholds.
func gradeFor(score int) string {
	switch {
	case score >= 90:
		return "A+"
	case score >= 80:
		return "A"
	case score >= 70:
		return "B"
	case score >= 60:
		return "C"
	case score >= 50:
		return "D"
	default:
		return "F"
	}
}

func qualityFor(grade string) models.SetupQuality {
	switch grade {
	case "A+", "A":
		return models.SetupStrong
	case "B", "C":
		return models.SetupModerate
	case "D":
		return models.SetupWeak
	default:
		return models.SetupNone
	}
}

// recommendation renders the templated verdict, citing bias, level
// proximity, and patience-candle state, with an optional curriculum pointer.
func (s *Service) recommendation(r *models.LTPAnalysis) string {
	bias := string(r.Trend.MTF.OverallBias)

	proximity := "no tracked level nearby"
	if len(r.Levels.Nearest) > 0 {
		d := math.Abs(r.Levels.Nearest[0].Distance)
		switch {
		case d <= atLevelPct:
			proximity = fmt.Sprintf("price is at the %s level", r.Levels.Nearest[0].Type)
		case d <= nearLevelPct:
			proximity = fmt.Sprintf("price is near the %s level", r.Levels.Nearest[0].Type)
		default:
			proximity = fmt.Sprintf("nearest level (%s) is %.1f%% away", r.Levels.Nearest[0].Type, d)
		}
	}

	patienceState := "no patience candle yet"
	switch {
	case anyConfirmed(r.Patience):
		patienceState = "a confirmed patience candle"
	case anyForming(r.Patience):
		patienceState = "a forming patience candle"
	}

	var text string
	switch r.SetupQuality {
	case models.SetupStrong:
		text = fmt.Sprintf("Strong %s setup: %s with %s. Consider planning an entry with defined risk.", bias, proximity, patienceState)
	case models.SetupModerate:
		text = fmt.Sprintf("Moderate %s setup: %s, %s. Wait for additional confirmation before committing.", bias, proximity, patienceState)
	case models.SetupWeak:
		text = fmt.Sprintf("Weak setup (%s bias): %s and %s. Patience is the trade here.", bias, proximity, patienceState)
	default:
		text = fmt.Sprintf("No setup: bias is %s, %s, %s. Stand aside.", bias, proximity, patienceState)
	}

	if lesson, ok := s.curriculum.LessonFor("ltp_framework"); ok {
		text += " Review: " + lesson
	}
	return text
}

func anyConfirmed(p models.LTPPatience) bool {
	for _, pc := range []*models.PatienceCandle{p.FiveMin, p.FifteenMin, p.OneHour} {
		if pc != nil && pc.Confirmed {
			return true
		}
	}
	return false
}

func anyForming(p models.LTPPatience) bool {
	for _, pc := range []*models.PatienceCandle{p.FiveMin, p.FifteenMin, p.OneHour} {
		if pc != nil && pc.Forming {
			return true
		}
	}
	return false
}
