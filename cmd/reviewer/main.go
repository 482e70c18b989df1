package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"promptswap/internal/analyst"
	"promptswap/internal/client/binance"
	"promptswap/internal/config"
	"promptswap/internal/credentials"
	cronrunner "promptswap/internal/cron"
	"promptswap/internal/db"
	"promptswap/internal/handler"
	"promptswap/internal/llm"
	"promptswap/internal/lock"
	"promptswap/internal/logger"
	"promptswap/internal/metrics"
	"promptswap/internal/news"
	"promptswap/internal/portfolio"
	"promptswap/internal/rebalance"
	"promptswap/internal/repository"
	gormrepository "promptswap/internal/repository/gorm"
	memrepository "promptswap/internal/repository/memory"
	"promptswap/internal/review"
	"promptswap/internal/service"
	"promptswap/internal/trader"
)

func main() {
	cfgPath := os.Getenv("PS_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("PS_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	checks := map[string]func(context.Context) error{}

	var store repository.Repository
	dbConn, err := db.Open(cfg.DB)
	switch {
	case errors.Is(err, db.ErrMissingDSN):
		logger.Warn("db dsn empty, using in-memory storage")
		store = memrepository.New()
	case err != nil:
		logger.Fatal("db open failed", zap.Error(err))
	default:
		defer db.Close(dbConn)
		if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
			logger.Warn("failed to set timezone", zap.Error(err))
		}
		if err := db.AutoMigrate(dbConn); err != nil {
			logger.Fatal("auto-migrate failed", zap.Error(err))
		}
		store = gormrepository.New(dbConn.Gorm)
		checks["db"] = func(ctx context.Context) error { return db.Ping(ctx, dbConn) }
	}

	keys := credentials.Static{
		Exchange: credentials.ExchangeKeys{APIKey: cfg.Binance.APIKey, APISecret: cfg.Binance.APISecret},
		OpenAI:   cfg.OpenAI.APIKey,
	}
	exchangeClient := binance.NewClient(&http.Client{Timeout: cfg.Binance.Timeout}, cfg.Binance.BaseURL, cfg.Binance.RecvWindow, keys)
	aiClient := llm.NewOpenAI(&http.Client{Timeout: cfg.OpenAI.Timeout}, cfg.OpenAI.BaseURL, cfg.OpenAI.MaxOutputTokens)

	var runLocks lock.Locker = lock.NewSet()
	if cfg.Redis.Enabled {
		redisLock := lock.NewRedis(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, "promptswap:lock:", cfg.Redis.LockTTL)
		defer redisLock.Close()
		runLocks = redisLock
		checks["redis"] = redisLock.Ping
	}

	snapshots := &portfolio.Builder{Balances: exchangeClient, Pairs: exchangeClient}
	executor := &rebalance.Executor{
		Pairs:  exchangeClient,
		Orders: exchangeClient,
		Repo:   store,
		Locks:  runLocks,
		Logger: logger,
	}
	supervisor := &review.Supervisor{
		Repo: store,
		Analysts: &analyst.Analysts{
			Caller:           &analyst.Caller{AI: aiClient, Keys: keys, Model: cfg.Review.AnalystModel},
			News:             store,
			Market:           exchangeClient,
			NewsLookback:     cfg.Review.NewsLookback,
			NewsLimit:        cfg.Review.NewsLimit,
			TechnicalCandles: cfg.Review.TechnicalCandles,
			OrderBookDepth:   cfg.Review.OrderbookDepth,
		},
		Portfolio:  snapshots,
		Trader:     &trader.Engine{AI: aiClient, Keys: keys},
		Executor:   executor,
		Reconciler: &rebalance.Reconciler{Orders: exchangeClient, Repo: store, Logger: logger},
		Locks:      runLocks,
		Logger:     logger,
		Config:     cfg.Review,
	}
	agentSvc := &service.AgentService{Repo: store, Portfolio: snapshots, Logger: logger}
	rebalanceSvc := &service.RebalanceService{Repo: store, Portfolio: snapshots, Executor: executor, Logger: logger}
	ingester := &news.Ingester{
		HTTP:   &http.Client{Timeout: cfg.News.Timeout},
		Repo:   store,
		Agents: store,
		Logger: logger,
		Feeds:  cfg.News.Feeds,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(handler.AuditWrites(logger))

	(&handler.HealthHandler{Checks: checks}).Register(engine)
	(&handler.AgentHandler{
		Repo:      store,
		Reviews:   supervisor,
		Agents:    agentSvc,
		Rebalance: rebalanceSvc,
	}).Register(engine)
	if cfg.Metrics.Enabled {
		metrics.Register(nil)
		(&handler.MetricsHandler{Path: cfg.Metrics.Path}).Register(engine)
	}

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		intervals := make([]string, 0, len(cfg.Cron.Intervals))
		for interval := range cfg.Cron.Intervals {
			intervals = append(intervals, interval)
		}
		sort.Strings(intervals)
		for _, interval := range intervals {
			spec := cfg.Cron.Intervals[interval]
			_, err := cronRunner.Add("review "+interval, spec, func(ctx context.Context) {
				if err := supervisor.RunReviewBatch(ctx, interval); err != nil {
					logger.Warn("cron review batch failed", zap.String("interval", interval), zap.Error(err))
				}
			})
			if err != nil {
				logger.Fatal("invalid review cron spec", zap.String("interval", interval), zap.String("spec", spec), zap.Error(err))
			}
		}
		if cfg.News.Enabled && strings.TrimSpace(cfg.Cron.NewsSync) != "" {
			_, err := cronRunner.Add("news sync", cfg.Cron.NewsSync, func(ctx context.Context) {
				if _, err := ingester.Sync(ctx); err != nil {
					logger.Warn("cron news sync failed", zap.Error(err))
				}
			})
			if err != nil {
				logger.Fatal("invalid news cron spec", zap.String("spec", cfg.Cron.NewsSync), zap.Error(err))
			}
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
