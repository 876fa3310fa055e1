package analysis

import (
	"math"
	"sort"

	"github.com/tradevault/marketpulse/pkg/models"
)

const (
	// fractal window on each side of a candidate pivot
	swingLookback = 2

	// a later bar "touches" a pivot when it comes within this percent of it
	touchTolerancePct = 0.3

	// a 1H pivot within this percent of a 4H pivot is absorbed into it
	mergeTolerancePct = 0.5

	swingBaseStrength4H = 70.0
	swingBaseStrength1H = 55.0
	swingTouchBonus     = 5.0
	swingMergeBonus     = 15.0

	maxSwingLevels = 4
)

// DetectSwingPoints finds fractal pivots in an ascending bar series. A bar
// is a pivot high (low) when its high (low) is the extremum over the
// lookback/lookahead window. Strength grows with the number of later bars
// that approach the level and respect it.
func DetectSwingPoints(bars []models.Bar, timeframe string) []models.SwingPoint {
	if len(bars) < 2*swingLookback+1 {
		return nil
	}

	base := swingBaseStrength1H
	if timeframe == "4h" || timeframe == "240" {
		base = swingBaseStrength4H
	}

	var out []models.SwingPoint
	for i := swingLookback; i < len(bars)-swingLookback; i++ {
		isHigh, isLow := true, true
		for j := i - swingLookback; j <= i+swingLookback; j++ {
			if j == i {
				continue
			}
			if bars[j].High > bars[i].High {
				isHigh = false
			}
			if bars[j].Low < bars[i].Low {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}
		if isHigh {
			touches := countTouches(bars[i+1:], bars[i].High, models.SwingHigh)
			out = append(out, models.SwingPoint{
				Price:      bars[i].High,
				Type:       models.SwingHigh,
				Timeframe:  timeframe,
				Strength:   math.Min(100, base+swingTouchBonus*float64(touches)),
				TouchCount: 1 + touches,
			})
		} else if isLow {
			touches := countTouches(bars[i+1:], bars[i].Low, models.SwingLow)
			out = append(out, models.SwingPoint{
				Price:      bars[i].Low,
				Type:       models.SwingLow,
				Timeframe:  timeframe,
				Strength:   math.Min(100, base+swingTouchBonus*float64(touches)),
				TouchCount: 1 + touches,
			})
		}
	}
	return out
}

// countTouches counts later bars that come within the touch tolerance of the
// level and close on the respecting side of it.
func countTouches(later []models.Bar, level float64, typ models.SwingType) int {
	if level == 0 {
		return 0
	}
	tol := level * touchTolerancePct / 100
	n := 0
	for _, b := range later {
		switch typ {
		case models.SwingHigh:
			if math.Abs(b.High-level) <= tol && b.Close < level {
				n++
			}
		case models.SwingLow:
			if math.Abs(b.Low-level) <= tol && b.Close > level {
				n++
			}
		}
	}
	return n
}

// MergeMTFLevels folds 1H pivots into 4H pivots. A 1H pivot of the same type
// within the merge tolerance of a 4H pivot is absorbed: touch counts add,
// strength is boosted, and the merged entry keeps the 4H timeframe. 1H
// pivots with no nearby 4H match remain standalone.
func MergeMTFLevels(oneHour, fourHour []models.SwingPoint) []models.SwingPoint {
	merged := make([]models.SwingPoint, len(fourHour))
	copy(merged, fourHour)

	for _, p := range oneHour {
		absorbed := false
		for i := range merged {
			if merged[i].Type != p.Type || merged[i].Price == 0 {
				continue
			}
			if math.Abs(merged[i].Price-p.Price)/merged[i].Price*100 <= mergeTolerancePct {
				merged[i].TouchCount += p.TouchCount
				merged[i].Strength = math.Min(100, math.Max(merged[i].Strength, p.Strength)+swingMergeBonus)
				absorbed = true
				break
			}
		}
		if !absorbed {
			merged = append(merged, p)
		}
	}
	return merged
}

// FilterNearbyLevels drops pivots further than maxPercent from the current
// price, then keeps the strongest maxSwingLevels entries (nearest first on
// equal strength).
func FilterNearbyLevels(levels []models.SwingPoint, currentPrice, maxPercent float64) []models.SwingPoint {
	if currentPrice <= 0 {
		return nil
	}
	kept := make([]models.SwingPoint, 0, len(levels))
	for _, l := range levels {
		dist := math.Abs(l.Price-currentPrice) / currentPrice * 100
		if dist <= maxPercent {
			kept = append(kept, l)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Strength != kept[j].Strength {
			return kept[i].Strength > kept[j].Strength
		}
		di := math.Abs(kept[i].Price - currentPrice)
		dj := math.Abs(kept[j].Price - currentPrice)
		return di < dj
	})
	if len(kept) > maxSwingLevels {
		kept = kept[:maxSwingLevels]
	}
	return kept
}
