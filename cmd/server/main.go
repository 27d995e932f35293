package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"signalmarket/internal/auth"
	"signalmarket/internal/blockchain"
	"signalmarket/internal/cache"
	"signalmarket/internal/config"
	cronrunner "signalmarket/internal/cron"
	"signalmarket/internal/db"
	"signalmarket/internal/handler"
	"signalmarket/internal/ledger"
	"signalmarket/internal/logger"
	"signalmarket/internal/oracle"
	"signalmarket/internal/outcome"
	gormrepository "signalmarket/internal/repository/gorm"
	"signalmarket/internal/settlement"
)

func main() {
	cfgPath := os.Getenv("SM_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("SM_ENV_ONLY"); envOnlyRaw != "" {
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

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)

	var priceCache oracle.Cache
	if cfg.Redis.Addr != "" {
		redisStore := cache.NewRedisStore(cfg.Redis)
		if err := redisStore.Ping(context.Background()); err != nil {
			logger.Warn("redis unreachable, using in-memory cache", zap.Error(err))
			priceCache = cache.NewMemoryStore()
		} else {
			defer redisStore.Close()
			priceCache = redisStore
		}
	} else {
		priceCache = cache.NewMemoryStore()
	}

	prices := &oracle.Client{
		HTTP:    &http.Client{Timeout: cfg.Oracle.Timeout},
		Logger:  logger,
		BaseURL: cfg.Oracle.BaseURL,
		Cache:   priceCache,
		TTL:     cfg.Oracle.CacheTTL,
	}

	verifier := &blockchain.Verifier{
		HTTP:             &http.Client{Timeout: cfg.Blockchain.Timeout},
		Logger:           logger,
		TronScanBaseURL:  cfg.Blockchain.TronScanBaseURL,
		EtherscanBaseURL: cfg.Blockchain.EtherscanBaseURL,
		EtherscanAPIKey:  cfg.Blockchain.EtherscanAPIKey,
	}

	book := &ledger.Ledger{Repo: store}
	engine := &settlement.Engine{
		Repo:     store,
		Ledger:   book,
		Verifier: verifier,
		Wallets:  cfg.Wallet,
		Logger:   logger,
	}

	jwt := auth.JWT{
		Secret:   []byte(cfg.Auth.JWTSecret),
		TokenTTL: cfg.Auth.TokenTTL,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(router)
	authHandler := &handler.AuthHandler{Repo: store, JWT: jwt, Logger: logger}
	authHandler.Register(router)
	signalsHandler := &handler.SignalsHandler{Repo: store, Prices: prices, JWT: jwt, Logger: logger}
	signalsHandler.Register(router)
	paymentsHandler := &handler.PaymentsHandler{Repo: store, Engine: engine, JWT: jwt, Logger: logger}
	paymentsHandler.Register(router)
	adminHandler := &handler.AdminHandler{Repo: store, Engine: engine, JWT: jwt, Logger: logger}
	adminHandler.Register(router)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Cron.Enabled {
		runner := cronrunner.New(logger, ctx)

		if cfg.Outcome.Enabled {
			poller := &outcome.Poller{
				Repo:      store,
				Prices:    prices,
				Logger:    logger,
				BatchSize: cfg.Outcome.BatchSize,
			}
			if _, err := runner.Add("outcome-poll", cfg.Outcome.Schedule, poller.RunOnce); err != nil {
				logger.Warn("cron register outcome poll failed", zap.Error(err))
			}
		}

		if _, err := runner.Add("subscription-expiry", "@every 10m", func(ctx context.Context) error {
			n, err := store.DeactivateExpiredSubscriptions(ctx, db.NowUTC())
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("deactivated expired subscriptions", zap.Int64("count", n))
			}
			return nil
		}); err != nil {
			logger.Warn("cron register subscription expiry failed", zap.Error(err))
		}

		runner.Start()
		defer runner.Stop()
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
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
