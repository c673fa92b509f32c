package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet_ledger/internal/adjutor"
	"wallet_ledger/internal/auth"
	"wallet_ledger/internal/config"
	"wallet_ledger/internal/handlers"
	"wallet_ledger/internal/infra"
	"wallet_ledger/internal/logging"
	"wallet_ledger/internal/middleware"
	"wallet_ledger/internal/migrations"
	"wallet_ledger/internal/repository"
	"wallet_ledger/internal/service"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	logger := logging.SetupLogger(cfg.LogLevel)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := migrations.Up(cfg.DBURL); err != nil {
		logger.Error("failed to apply migrations", "err", err)
		os.Exit(1)
	}

	pool, err := infra.NewPostgresPool(ctx, cfg.DBURL, cfg.DBMaxConns)
	if err != nil {
		logger.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "err", err)
		os.Exit(1)
	}
	if cache != nil {
		defer cache.Close()
	}

	txManager := repository.NewTxManager(pool, cfg.TxTimeout, logger)
	wallets := repository.NewWalletPGRepository(logger)
	users := repository.NewUserPGRepository(logger)
	ledger := repository.NewLedgerPGRepository(logger)

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	checker := adjutor.NewClient(cfg.AdjutorBaseURL, cfg.AdjutorAPIKey, cfg.AdjutorTimeout, cfg.AdjutorFailOpen, logger)

	walletSvc := service.NewWalletService(txManager, wallets, users, ledger, logger)
	userSvc := service.NewUserService(txManager, users, wallets, checker, tokens, logger, service.UserServiceConfig{
		DefaultCurrency:  cfg.DefaultCurrency,
		EnforceBlacklist: cfg.BlacklistEnforce,
	})
	handler := handlers.NewWalletHTTPHandler(walletSvc, userSvc, cfg.Debug)

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 3*time.Minute)
	defer limiter.Stop()

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(logger), limiter.Middleware())

	writeMW := []gin.HandlerFunc{middleware.RequireIdempotencyKey()}
	checks := map[string]handlers.HealthCheck{"postgres": pool.Ping}
	if cache != nil {
		writeMW = append(writeMW, middleware.Idempotency(cache, cfg.IdempotencyTTL, logger))
		checks["redis"] = func(ctx context.Context) error { return cache.Ping(ctx).Err() }
	}
	handler.RegisterRoutes(r, middleware.JWTAuth(tokens), writeMW...)
	handlers.RegisterSystemRoutes(r, checks)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Error("Server forced to shutdown", "err", err)
	}
	logger.Info("Server exiting")
}
