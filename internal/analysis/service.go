package analysis

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tradevault/marketpulse/internal/cache"
	"github.com/tradevault/marketpulse/pkg/models"
)

// MarketData is the slice of the provider client the analysis engines
// consume.
type MarketData interface {
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
	GetBars(ctx context.Context, symbol, timeframe string, count int) ([]models.Bar, error)
	GetIndicator(ctx context.Context, indicator, symbol, timespan string, window int) (float64, error)
}

// Cache TTLs. Quotes turn over fast; composite reports a bit slower.
const (
	quoteTTL = 10 * time.Second
	mtfTTL   = 60 * time.Second
	ltpTTL   = 30 * time.Second
)

// Service exposes the analysis engines. All entry points are read-only and
// may return nil/empty on upstream unavailability; callers must treat
// composite results as all-or-nothing.
type Service struct {
	data       MarketData
	cache      *cache.TieredCache
	curriculum Curriculum
	logger     *zap.Logger
}

// NewService wires the analysis service. curriculum may be nil; a no-op
// implementation is substituted at construction.
func NewService(logger *zap.Logger, data MarketData, tc *cache.TieredCache, curriculum Curriculum) *Service {
	if curriculum == nil {
		curriculum = NoopCurriculum{}
	}
	return &Service{
		data:       data,
		cache:      tc,
		curriculum: curriculum,
		logger:     logger,
	}
}

// getQuote returns the full snapshot quote through the compute cache.
func (s *Service) getQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	return cache.GetOrCompute(ctx, s.cache, "quote:"+symbol, quoteTTL, func(ctx context.Context) (*models.Quote, error) {
		return s.data.GetQuote(ctx, symbol)
	})
}

// getCurrentPrice answers price-only reads, letting a live hot-cache tick
// bypass the provider entirely.
func (s *Service) getCurrentPrice(ctx context.Context, symbol string) (float64, bool) {
	q, err := s.cache.GetQuoteOrCompute(ctx, symbol, quoteTTL, func(ctx context.Context) (*models.Quote, error) {
		return s.data.GetQuote(ctx, symbol)
	})
	if err != nil || q == nil || q.Price == 0 {
		return 0, false
	}
	return q.Price, true
}
