package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tiendita/internal/broker"
	"tiendita/internal/cache"
	"tiendita/internal/config"
	"tiendita/internal/httpapi"
	"tiendita/internal/promotion"
	"tiendita/internal/service"
	"tiendita/internal/store"
	"tiendita/internal/store/memory"
	"tiendita/internal/store/postgres"
	"tiendita/internal/util"
)

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Env); err != nil {
		panic(err)
	}
	defer util.SyncLogger()
	logger := util.GetLogger()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.JaegerEndpoint != "" {
		tp, err := util.InitTracer("tiendita", cfg.JaegerEndpoint)
		if err != nil {
			logger.Warn("tracing disabled", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tp.Shutdown(shutdownCtx)
			}()
		}
	}

	var repo store.Repository
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer func() { _ = pg.Close() }()
		repo = pg
		logger.Info("using postgres store")
	} else {
		repo = memory.NewSeeded()
		logger.Info("using seeded in-memory store")
	}

	var promoCache cache.PromotionCache = cache.NoopPromotionCache{}
	var prodCache cache.ProductCache = cache.NoopProductCache{}
	if cfg.RedisAddr != "" {
		rc := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rc.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Warn("redis unreachable, caches disabled", zap.Error(err))
			_ = rc.Close()
		} else {
			defer func() { _ = rc.Close() }()
			promoCache = cache.RedisPromotionCache{RedisCache: rc}
			prodCache = cache.RedisProductCache{RedisCache: rc}
			logger.Info("redis caches enabled", zap.String("addr", cfg.RedisAddr))
		}
	}

	var publisher broker.EventPublisher = broker.NoopEventPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		producer := broker.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicSales)
		defer func() { _ = producer.Close() }()
		publisher = broker.NewEventPublisher(producer)
		logger.Info("kafka publisher enabled",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopicSales))
	}

	svc := service.New(repo, promotion.NewEvaluator(), promoCache, prodCache, publisher, cfg.PromoCacheTTL, cfg.CatalogCacheTTL, cfg.DefaultTaxRatePercent)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL, repo)
	api := httpapi.New(svc, auth)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		os.Exit(1)
	}
}
