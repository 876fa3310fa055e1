package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tradevault/marketpulse/internal/analysis"
	"github.com/tradevault/marketpulse/internal/cache"
	"github.com/tradevault/marketpulse/internal/config"
	"github.com/tradevault/marketpulse/internal/providers/polygon"
	"github.com/tradevault/marketpulse/internal/ratelimit"
	"github.com/tradevault/marketpulse/internal/stream"
	"github.com/tradevault/marketpulse/pkg/logger"
	"github.com/tradevault/marketpulse/pkg/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	// Redis is optional: without it the cache runs in-process and the
	// redistributor fans out locally only.
	var rdb redis.UniversalClient
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	} else {
		zapLogger.Warn("no redis address configured, running with in-process cache only")
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			zapLogger.Info("metrics endpoint listening", zap.String("addr", cfg.MetricsAddr))
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				zapLogger.Warn("metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	hot := cache.NewHotCache(rdb, zapLogger)
	tiered := cache.NewTiered(rdb, hot, zapLogger)
	client := polygon.New(cfg.Provider, zapLogger)
	if cfg.Provider.RateLimit > 0 {
		client.UseLimiter(ratelimit.New(rdb, zapLogger), cfg.Provider.RateLimit)
	}
	mirror := stream.NewKafkaMirror(cfg.Kafka, zapLogger)
	redistributor := stream.New(rdb, hot, mirror, zapLogger)
	svc := analysis.NewService(zapLogger, client, tiered, nil)

	// keep hot quotes flowing for the watched symbols
	unsubscribe, err := redistributor.SubscribeToUpdates(cfg.Symbols, func(msg models.StreamMessage) {
		zapLogger.Debug("tick",
			zap.String("symbol", msg.Symbol),
			zap.String("type", string(msg.Type)),
			zap.Float64("price", msg.Price))
	})
	if err != nil {
		zapLogger.Fatal("failed to subscribe to market stream", zap.Error(err))
	}
	defer unsubscribe()

	zapLogger.Info("marketpulse started",
		zap.Strings("symbols", cfg.Symbols),
		zap.Bool("redis", rdb != nil),
		zap.Bool("kafka_mirror", mirror != nil))

	// periodic LTP sweep over the watched symbols
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		select {
		case <-ticker.C:
			for _, sym := range cfg.Symbols {
				report, err := svc.GetLTPAnalysis(ctx, sym)
				if err != nil {
					zapLogger.Warn("ltp sweep failed", zap.String("symbol", sym), zap.Error(err))
					continue
				}
				if report == nil {
					continue
				}
				zapLogger.Info("ltp report",
					zap.String("symbol", sym),
					zap.Int("confluence", report.ConfluenceScore),
					zap.String("grade", report.Grade),
					zap.String("quality", string(report.SetupQuality)))
			}
		case <-ctx.Done():
			zapLogger.Info("shutting down")
			if err := redistributor.Close(); err != nil {
				zapLogger.Warn("redistributor close failed", zap.Error(err))
			}
			return
		}
	}
}
