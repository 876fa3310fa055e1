package models

import (
	"time"
)

// Quote is an immutable snapshot of a symbol's current session, replaced
// wholesale on each fetch.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	Volume        float64   `json:"volume"`
	VWAP          float64   `json:"vwap"`
	PrevHigh      float64   `json:"prev_high"`
	PrevLow       float64   `json:"prev_low"`
	PrevClose     float64   `json:"prev_close"`
	Timestamp     time.Time `json:"timestamp"`
}

// Bar is a single OHLCV bar. Sequences of bars are always ordered ascending
// by Timestamp.
type Bar struct {
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	VWAP      float64   `json:"vwap,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Body returns the absolute open-to-close distance.
func (b Bar) Body() float64 {
	if b.Close >= b.Open {
		return b.Close - b.Open
	}
	return b.Open - b.Close
}

// Bullish reports whether the bar closed above its open.
func (b Bar) Bullish() bool { return b.Close > b.Open }

// LevelType identifies the origin of a key level.
type LevelType string

const (
	LevelPDH       LevelType = "pdh"
	LevelPDL       LevelType = "pdl"
	LevelVWAP      LevelType = "vwap"
	LevelEMA9      LevelType = "ema9"
	LevelEMA21     LevelType = "ema21"
	LevelSMA200    LevelType = "sma200"
	LevelORBHigh   LevelType = "orb_high"
	LevelORBLow    LevelType = "orb_low"
	LevelPMH       LevelType = "pmh"
	LevelPML       LevelType = "pml"
	LevelSwingHi1H LevelType = "swing_high_1h"
	LevelSwingLo1H LevelType = "swing_low_1h"
	LevelSwingHi4H LevelType = "swing_high_4h"
	LevelSwingLo4H LevelType = "swing_low_4h"
)

// KeyLevel is one priced level with its strength and signed distance from
// the current price in percent. Lists of KeyLevel are sorted ascending by
// the absolute distance.
type KeyLevel struct {
	Type       LevelType `json:"type"`
	Price      float64   `json:"price"`
	Strength   float64   `json:"strength"` // 0..100
	Distance   float64   `json:"distance"` // signed percent from current price
	TouchCount int       `json:"touch_count,omitempty"`
	Timeframe  string    `json:"timeframe,omitempty"`
}

// SwingType distinguishes pivot highs from pivot lows.
type SwingType string

const (
	SwingHigh SwingType = "high"
	SwingLow  SwingType = "low"
)

// SwingPoint is a detected price pivot on one timeframe.
type SwingPoint struct {
	Price      float64   `json:"price"`
	Type       SwingType `json:"type"`
	Timeframe  string    `json:"timeframe"`
	Strength   float64   `json:"strength"`
	TouchCount int       `json:"touch_count"`
}

// Trend classification values.
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
)

// PricePosition describes price relative to a moving average.
type PricePosition string

const (
	PriceAbove PricePosition = "above"
	PriceBelow PricePosition = "below"
	PriceAt    PricePosition = "at"
)

// EMAAlignment describes the fast/slow EMA relationship.
type EMAAlignment string

const (
	AlignBullish EMAAlignment = "bullish"
	AlignBearish EMAAlignment = "bearish"
	AlignMixed   EMAAlignment = "mixed"
)

// TimeframeTrend is the per-timeframe trend classification.
type TimeframeTrend struct {
	Timeframe    string        `json:"timeframe"`
	Trend        Trend         `json:"trend"`
	EMA9         float64       `json:"ema9"`
	EMA21        float64       `json:"ema21"`
	PriceVsEMA9  PricePosition `json:"price_vs_ema9"`
	PriceVsEMA21 PricePosition `json:"price_vs_ema21"`
	EMAAlignment EMAAlignment  `json:"ema_alignment"`
}

// MTFAnalysis is the multi-timeframe view for one symbol. It is derived and
// never mutated after creation.
type MTFAnalysis struct {
	Symbol                string           `json:"symbol"`
	CurrentPrice          float64          `json:"current_price"`
	Timeframes            []TimeframeTrend `json:"timeframes"`
	OverallBias           Trend            `json:"overall_bias"`
	AlignmentScore        float64          `json:"alignment_score"` // 0..100
	ConflictingTimeframes []string         `json:"conflicting_timeframes,omitempty"`
}

// PatienceCandle is the 3-bar consolidation read for one timeframe.
type PatienceCandle struct {
	Forming   bool    `json:"forming"`
	Confirmed bool    `json:"confirmed"`
	Direction Trend   `json:"direction"`
	BodyRatio float64 `json:"body_ratio"`   // latest body / 3-bar average body
	VolRatio  float64 `json:"volume_ratio"` // latest volume / 3-bar average volume
}

// SetupQuality buckets a grade into a plain-language verdict.
type SetupQuality string

const (
	SetupStrong   SetupQuality = "Strong"
	SetupModerate SetupQuality = "Moderate"
	SetupWeak     SetupQuality = "Weak"
	SetupNone     SetupQuality = "No Setup"
)

// LTPLevels is the levels leg of an LTP report.
type LTPLevels struct {
	Nearest    []KeyLevel `json:"nearest"` // closest 4, sorted by |distance|
	PDH        float64    `json:"pdh"`
	PDL        float64    `json:"pdl"`
	VWAP       float64    `json:"vwap"`
	LevelScore float64    `json:"level_score"`
}

// LTPTrend is the trend leg of an LTP report.
type LTPTrend struct {
	MTF        *MTFAnalysis `json:"mtf"`
	TrendScore float64      `json:"trend_score"`
}

// LTPPatience is the patience leg of an LTP report, one candle state per
// intraday timeframe.
type LTPPatience struct {
	FiveMin       *PatienceCandle `json:"5m,omitempty"`
	FifteenMin    *PatienceCandle `json:"15m,omitempty"`
	OneHour       *PatienceCandle `json:"1h,omitempty"`
	PatienceScore float64         `json:"patience_score"`
}

// LTPAnalysis is the terminal confluence report for one symbol. It is
// computed on demand and cached briefly; this subsystem never persists it.
type LTPAnalysis struct {
	Symbol          string       `json:"symbol"`
	CurrentPrice    float64      `json:"current_price"`
	Levels          LTPLevels    `json:"levels"`
	Trend           LTPTrend     `json:"trend"`
	Patience        LTPPatience  `json:"patience"`
	ConfluenceScore int          `json:"confluence_score"` // 0..100
	Grade           string       `json:"grade"`            // A+ .. F
	SetupQuality    SetupQuality `json:"setup_quality"`
	Recommendation  string       `json:"recommendation"`
	GeneratedAt     time.Time    `json:"generated_at"`
}

// StreamMessageType enumerates redistributor message kinds.
type StreamMessageType string

const (
	MessageQuote StreamMessageType = "quote"
	MessageTrade StreamMessageType = "trade"
	MessageBar   StreamMessageType = "bar"
	MessageInfo  StreamMessageType = "info"
)

// StreamMessage is the pub/sub envelope for one ingested tick.
type StreamMessage struct {
	Type      StreamMessageType `json:"type"`
	Symbol    string            `json:"symbol"`
	Price     float64           `json:"price"`
	Volume    float64           `json:"volume,omitempty"`
	Bar       *Bar              `json:"bar,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// CachedQuote is the hot-cache entry written on every ingested tick. Readers
// must check WrittenAt against the freshness window; expiry of the backing
// key is not relied on.
type CachedQuote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	WrittenAt time.Time `json:"written_at"`
}

// OptionType is "call" or "put".
type OptionType string

const (
	OptionCall OptionType = "call"
	OptionPut  OptionType = "put"
)

// OptionContract is one normalized option snapshot entry.
type OptionContract struct {
	Ticker     string     `json:"ticker"`
	Underlying string     `json:"underlying"`
	Type       OptionType `json:"type"`
	Strike     float64    `json:"strike"`
	Expiry     time.Time  `json:"expiry"`
	Last       float64    `json:"last"`
	Volume     float64    `json:"volume"`
	OI         float64    `json:"open_interest"`
	IV         float64    `json:"iv,omitempty"`
	Delta      float64    `json:"delta,omitempty"`
}

// OptionsChain is a snapshot chain split into calls and puts, each sorted
// ascending by strike.
type OptionsChain struct {
	Underlying string           `json:"underlying"`
	Calls      []OptionContract `json:"calls"`
	Puts       []OptionContract `json:"puts"`
}
