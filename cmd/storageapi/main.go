// Command storageapi runs the LLM observability storage core: the
// buffered ingest writers, their background auto-flush schedulers, and the
// authenticated HTTP query/analytics API, sharing one connection pool and
// metrics registry for the life of the process.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/llm-observatory-storage/internal/config"
	"github.com/iota-uz/llm-observatory-storage/internal/dbpool"
	"github.com/iota-uz/llm-observatory-storage/internal/httpapi"
	"github.com/iota-uz/llm-observatory-storage/internal/obsmetrics"
	"github.com/iota-uz/llm-observatory-storage/internal/writer"
	"github.com/iota-uz/llm-observatory-storage/pkg/middleware"
)

func main() {
	logger := logrus.StandardLogger()

	if err := godotenv.Load(); err != nil {
		logger.WithError(err).Debug("storageapi: no .env file found, continuing with process environment")
	}

	cfg, err := config.FromEnv()
	if err != nil {
		logger.WithError(err).Fatal("storageapi: loading configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := dbpool.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("storageapi: constructing connection pool")
	}
	defer pool.Close()

	metrics := obsmetrics.New()
	writerCfg := writer.DefaultConfig()

	traceWriter := writer.NewTraceWriter(pool.Pool(), pool.RawConn, writerCfg, cfg.Retry, metrics, logger)
	metricWriter := writer.NewMetricWriter(pool.Pool(), pool.RawConn, writerCfg, cfg.Retry, metrics, logger)
	logWriter := writer.NewLogWriter(pool.Pool(), pool.RawConn, writerCfg, cfg.Retry, metrics, logger)

	go traceWriter.Run(ctx)
	go metricWriter.Run(ctx)
	go logWriter.Run(ctx)

	var rateLimitStore middleware.Store
	if cache := pool.Cache(); cache != nil {
		rateLimitStore = middleware.NewRedisStore(cache)
	} else {
		logger.Warn("storageapi: no cache store configured, rate limiting degrades to memory store")
		rateLimitStore = middleware.NewMemoryStore()
	}

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Pool:        pool,
		Metrics:     metrics,
		JWTSecret:   []byte(cfg.Auth.JWTSecret),
		RateLimit:   rateLimitStore,
		DocsBaseURL: cfg.Auth.ErrorDocsURL,
	})

	server := &http.Server{
		Addr:              cfg.Auth.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.Auth.ListenAddr).Info("storageapi: listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("storageapi: http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("storageapi: shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("storageapi: http server shutdown")
	}
}
