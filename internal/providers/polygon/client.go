package polygon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tradevault/marketpulse/internal/config"
	"github.com/tradevault/marketpulse/internal/ratelimit"
	"github.com/tradevault/marketpulse/pkg/metrics"
	"github.com/tradevault/marketpulse/pkg/models"
)

// ErrRateLimited is returned when the outbound request budget for the
// current window is exhausted.
var ErrRateLimited = errors.New("provider request rate limit exceeded")

// Indicator names accepted by GetIndicator.
const (
	IndicatorSMA  = "sma"
	IndicatorEMA  = "ema"
	IndicatorMACD = "macd"
	IndicatorRSI  = "rsi"
)

// Client is a stateless REST client for the upstream market data provider.
// It owns no mutable state beyond its API key and base URL. Without an API
// key every call returns nil/empty; the degradation is logged once.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	logger  *zap.Logger

	limiter     *ratelimit.Limiter
	reqPerMin   int
	warnedLimit atomic.Bool

	warnedDisabled atomic.Bool
}

// New creates a provider client. Timeouts and retries beyond the base HTTP
// timeout are the caller's responsibility via context.
func New(cfg config.ProviderConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// UseLimiter throttles outbound calls to perMinute requests across all
// endpoints. A perMinute of zero or less disables throttling.
func (c *Client) UseLimiter(l *ratelimit.Limiter, perMinute int) {
	c.limiter = l
	c.reqPerMin = perMinute
}

// enabled reports whether an API key is configured, logging the degraded
// mode once.
func (c *Client) enabled() bool {
	if c.apiKey != "" {
		return true
	}
	if c.warnedDisabled.CompareAndSwap(false, true) {
		c.logger.Warn("market data provider API key not configured, all market data calls return empty")
	}
	return false
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}, endpoint string) error {
	if c.limiter != nil && c.reqPerMin > 0 {
		decision, err := c.limiter.Take(ctx, "provider", c.reqPerMin, time.Minute)
		if err != nil {
			c.logger.Warn("rate limit check failed", zap.Error(err))
		}
		if !decision.Allowed {
			if c.warnedLimit.CompareAndSwap(false, true) {
				c.logger.Warn("provider request budget exhausted",
					zap.Int("per_minute", c.reqPerMin),
					zap.Time("reset_at", decision.ResetAt))
			}
			metrics.ProviderRequests.WithLabelValues(endpoint, "throttled").Inc()
			return ErrRateLimited
		}
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("apiKey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ProviderRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.ProviderRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("fetch %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.ProviderRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("decode %s: %w", path, err)
	}
	metrics.ProviderRequests.WithLabelValues(endpoint, "ok").Inc()
	return nil
}

// GetQuote fetches the snapshot quote for a symbol. Returns nil, nil when
// the provider is not configured or has no data for the symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if !c.enabled() {
		return nil, nil
	}
	var resp snapshotResponse
	path := fmt.Sprintf("/v2/snapshot/locale/us/markets/stocks/tickers/%s", symbol)
	if err := c.get(ctx, path, nil, &resp, "snapshot"); err != nil {
		return nil, err
	}

	t := resp.Ticker
	price := t.LastTrade.Price
	if price == 0 {
		price = t.Day.Close
	}
	if price == 0 {
		return nil, nil
	}
	return &models.Quote{
		Symbol:        symbol,
		Price:         price,
		Change:        t.TodaysChange,
		ChangePercent: t.TodaysChangePerc,
		Open:          t.Day.Open,
		High:          t.Day.High,
		Low:           t.Day.Low,
		Close:         t.Day.Close,
		Volume:        t.Day.Volume,
		VWAP:          t.Day.VWAP,
		PrevHigh:      t.PrevDay.High,
		PrevLow:       t.PrevDay.Low,
		PrevClose:     t.PrevDay.Close,
		Timestamp:     time.Unix(0, t.Updated),
	}, nil
}

// GetAggregates fetches OHLCV bars for a symbol. Malformed bars (missing or
// non-finite OHLC) are filtered out. Bars come back ascending by time.
func (c *Client) GetAggregates(ctx context.Context, symbol string, multiplier int, timespan string, from, to time.Time, limit int) ([]models.Bar, error) {
	if !c.enabled() {
		return nil, nil
	}
	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/%d/%s/%d/%d",
		symbol, multiplier, timespan, from.UnixMilli(), to.UnixMilli())
	params := url.Values{}
	params.Set("adjusted", "true")
	params.Set("sort", "asc")
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var resp aggsResponse
	if err := c.get(ctx, path, params, &resp, "aggregates"); err != nil {
		return nil, err
	}

	bars := make([]models.Bar, 0, len(resp.Results))
	for _, r := range resp.Results {
		if !validOHLC(r.Open, r.High, r.Low, r.Close) {
			c.logger.Warn("dropping malformed aggregate bar",
				zap.String("symbol", symbol),
				zap.Int64("timestamp", r.Timestamp))
			continue
		}
		bars = append(bars, models.Bar{
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
			VWAP:      r.VWAP,
			Timestamp: time.UnixMilli(r.Timestamp),
		})
	}
	return bars, nil
}

// GetBars is a convenience over GetAggregates: it normalizes a human
// timeframe label and fetches the trailing window that covers roughly
// `count` bars.
func (c *Client) GetBars(ctx context.Context, symbol, timeframe string, count int) ([]models.Bar, error) {
	multiplier, timespan, ok := NormalizeTimespan(timeframe)
	if !ok {
		return nil, fmt.Errorf("unknown timeframe %q", timeframe)
	}
	if count <= 0 {
		count = 50
	}
	to := time.Now()
	from := to.Add(-barSpan(multiplier, timespan, count))
	return c.GetAggregates(ctx, symbol, multiplier, timespan, from, to, count)
}

// GetIndicator fetches the latest value of a technical indicator
// (sma/ema/macd/rsi) at the given timespan and window. Returns NaN, nil
// when the provider is not configured or has no values.
func (c *Client) GetIndicator(ctx context.Context, indicator, symbol, timespan string, window int) (float64, error) {
	if !c.enabled() {
		return math.NaN(), nil
	}
	params := url.Values{}
	params.Set("timespan", timespan)
	params.Set("window", strconv.Itoa(window))
	params.Set("series_type", "close")
	params.Set("order", "desc")
	params.Set("limit", "1")

	var resp indicatorResponse
	path := fmt.Sprintf("/v1/indicators/%s/%s", indicator, symbol)
	if err := c.get(ctx, path, params, &resp, "indicator"); err != nil {
		return math.NaN(), err
	}
	if len(resp.Results.Values) == 0 {
		return math.NaN(), nil
	}
	return resp.Results.Values[0].Value, nil
}

// GetOptionsChain fetches the options snapshot for an underlying, split into
// calls and puts sorted ascending by strike. Contracts whose ticker fails
// the option symbol pattern are dropped with a warning, never surfaced as
// errors.
func (c *Client) GetOptionsChain(ctx context.Context, underlying string) (*models.OptionsChain, error) {
	if !c.enabled() {
		return nil, nil
	}
	params := url.Values{}
	params.Set("limit", "250")

	var resp optionsSnapshotResponse
	path := fmt.Sprintf("/v3/snapshot/options/%s", underlying)
	if err := c.get(ctx, path, params, &resp, "options"); err != nil {
		return nil, err
	}

	chain := &models.OptionsChain{Underlying: underlying}
	for _, r := range resp.Results {
		parsed, err := ParseOptionTicker(r.Details.Ticker)
		if err != nil {
			c.logger.Warn("dropping malformed option contract",
				zap.String("ticker", r.Details.Ticker),
				zap.Error(err))
			continue
		}
		contract := models.OptionContract{
			Ticker:     r.Details.Ticker,
			Underlying: parsed.Underlying,
			Type:       parsed.Type,
			Strike:     parsed.Strike,
			Expiry:     parsed.Expiry,
			Last:       r.Day.Close,
			Volume:     r.Day.Volume,
			OI:         r.OpenInterest,
			IV:         r.ImpliedVolatility,
			Delta:      r.Greeks.Delta,
		}
		if contract.Type == models.OptionCall {
			chain.Calls = append(chain.Calls, contract)
		} else {
			chain.Puts = append(chain.Puts, contract)
		}
	}
	sort.Slice(chain.Calls, func(i, j int) bool { return chain.Calls[i].Strike < chain.Calls[j].Strike })
	sort.Slice(chain.Puts, func(i, j int) bool { return chain.Puts[i].Strike < chain.Puts[j].Strike })
	return chain, nil
}

func validOHLC(o, h, l, cl float64) bool {
	for _, v := range []float64{o, h, l, cl} {
		if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func barSpan(multiplier int, timespan string, count int) time.Duration {
	var unit time.Duration
	switch timespan {
	case "minute":
		unit = time.Minute
	case "hour":
		unit = time.Hour
	case "week":
		unit = 7 * 24 * time.Hour
	default: // day
		unit = 24 * time.Hour
	}
	// pad generously for weekends and holidays on daily resolutions and
	// overnight gaps on intraday ones
	return time.Duration(multiplier*count) * unit * 2
}
