package analysis

import (
	"github.com/tradevault/marketpulse/pkg/models"
)

const (
	patienceBodyMax = 0.5 // latest body under half the 3-bar average body
	patienceVolMax  = 0.7 // latest volume under 70% of the 3-bar average
)

// DetectPatienceCandle inspects the last three bars of a series for a
// low-body, low-volume consolidation bar. Forming requires the latest bar's
// body under half the 3-bar average body and its volume under 70% of the
// 3-bar average volume; confirmed additionally requires the prior bar to
// have closed against the detected direction. Returns nil with fewer than
// three bars.
func DetectPatienceCandle(bars []models.Bar) *models.PatienceCandle {
	if len(bars) < 3 {
		return nil
	}
	window := bars[len(bars)-3:]
	latest := window[2]
	prior := window[1]

	var bodySum, volSum float64
	for _, b := range window {
		bodySum += b.Body()
		volSum += b.Volume
	}
	avgBody := bodySum / 3
	avgVol := volSum / 3

	pc := &models.PatienceCandle{Direction: models.TrendNeutral}
	if avgBody > 0 {
		pc.BodyRatio = latest.Body() / avgBody
	}
	if avgVol > 0 {
		pc.VolRatio = latest.Volume / avgVol
	}

	switch {
	case latest.Close > latest.Open:
		pc.Direction = models.TrendBullish
	case latest.Close < latest.Open:
		pc.Direction = models.TrendBearish
	}

	if avgBody <= 0 || avgVol <= 0 {
		return pc
	}

	pc.Forming = latest.Body() < avgBody*patienceBodyMax && latest.Volume < avgVol*patienceVolMax
	if !pc.Forming {
		return pc
	}

	// consolidation should follow an opposing impulse bar
	switch pc.Direction {
	case models.TrendBullish:
		pc.Confirmed = prior.Close < prior.Open
	case models.TrendBearish:
		pc.Confirmed = prior.Close > prior.Open
	}
	return pc
}
