package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"fuelstation/backend/internal/cache"
	"fuelstation/backend/internal/config"
	"fuelstation/backend/internal/httpapi"
	"fuelstation/backend/internal/ingest"
	"fuelstation/backend/internal/logging"
	"fuelstation/backend/internal/metrics"
	"fuelstation/backend/internal/ocr"
	"fuelstation/backend/internal/service"
	"fuelstation/backend/internal/store"
	"fuelstation/backend/internal/store/memory"
	pgstore "fuelstation/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}

	logger, err := logging.NewLogger(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				logger.Fatal("apply schema", zap.Error(err))
			}
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres", zap.Bool("auto_migrate", cfg.AutoMigrate))
	} else {
		mem, err := memory.NewSeeded(logger)
		if err != nil {
			logger.Fatal("seed in-memory store", zap.Error(err))
		}
		repo = mem
		logger.Info("repository: in-memory")
	}

	nozzleCache := cache.NozzleCache(cache.NoopNozzleCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisNozzleCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using noop cache", zap.Error(err))
		} else {
			nozzleCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("cache: redis", zap.String("addr", cfg.RedisAddr))
		}
	} else {
		logger.Info("cache: noop")
	}

	recorder := metrics.New()
	pipeline := ingest.New(repo, logger, ingest.WithMetrics(recorder))

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithNozzleCache(nozzleCache, cfg.NozzleCacheTTL()),
	}
	if cfg.OCREndpoint != "" {
		opts = append(opts, service.WithExtractor(ocr.New(cfg.OCREndpoint, cfg.OCRAPIKey,
			ocr.WithPolling(cfg.OCRPollAttempts, cfg.OCRPollInterval()),
			ocr.WithLogger(logger),
			ocr.WithMetrics(recorder),
		)))
		logger.Info("ocr: enabled", zap.String("endpoint", cfg.OCREndpoint))
	} else {
		logger.Warn("ocr: OCR_ENDPOINT not set, photo uploads are disabled")
	}
	svc := service.New(repo, pipeline, opts...)

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo, logger)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger, recorder)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout(cfg),
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("fuel station backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.OCREndpoint == "" {
		return nil
	}
	endpoint, err := url.Parse(cfg.OCREndpoint)
	if err != nil || endpoint.Host == "" {
		return fmt.Errorf("OCR_ENDPOINT must be an absolute URL")
	}
	if endpoint.Scheme != "https" && !isLoopback(endpoint.Hostname()) {
		return fmt.Errorf("OCR_ENDPOINT must use https")
	}
	if strings.TrimSpace(cfg.OCRAPIKey) == "" {
		return fmt.Errorf("OCR_API_KEY must be set when OCR_ENDPOINT is configured")
	}
	return nil
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// writeTimeout leaves room for a full OCR polling cycle on upload requests.
func writeTimeout(cfg config.Config) time.Duration {
	polling := time.Duration(cfg.OCRPollAttempts) * cfg.OCRPollInterval()
	if timeout := polling + 20*time.Second; timeout > 30*time.Second {
		return timeout
	}
	return 30 * time.Second
}
