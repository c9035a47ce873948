// Command feed-gateway runs the MBO ingest pipeline alongside the push
// (raw TCP) and pull (HTTP) subscriber endpoints.
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/quantfeed/mbo-gateway/internal/broadcast"
	"github.com/quantfeed/mbo-gateway/internal/config"
	"github.com/quantfeed/mbo-gateway/internal/ingest"
	"github.com/quantfeed/mbo-gateway/internal/market"
	"github.com/quantfeed/mbo-gateway/internal/ratemonitor"
	"github.com/quantfeed/mbo-gateway/internal/server"
	"github.com/quantfeed/mbo-gateway/internal/tailcache"
	"github.com/quantfeed/mbo-gateway/pkg/middleware"
	"github.com/quantfeed/mbo-gateway/pkg/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.NewLogger(config.ObservabilityConfig{
		ServiceName: cfg.Observability.ServiceName,
		LogLevel:    cfg.Observability.LogLevel,
		LogFormat:   cfg.Observability.LogFormat,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mkt := market.New()
	tc := tailcache.New()
	bc := broadcast.New()

	decoder, err := ingest.OpenJSONLDecoder(cfg.Feed.FilePath)
	if err != nil {
		logger.Error(ctx, "failed to open feed file", err, map[string]interface{}{"path": cfg.Feed.FilePath})
		os.Exit(1)
	}
	defer decoder.Close()

	metrics, err := observability.NewMetricsProvider(observability.MetricsConfig{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: "1.0.0",
		Namespace:      "mbo_gateway",
		Enabled:        true,
	})
	if err != nil {
		logger.Error(ctx, "failed to initialize metrics provider", err)
		os.Exit(1)
	}
	metrics.SetSubscriberCountCallback(func() int64 { return int64(bc.SubscriberCount()) })

	tracing, err := observability.NewTracingProvider(cfg.Observability)
	if err != nil {
		logger.Error(ctx, "failed to initialize tracing provider", err)
		os.Exit(1)
	}

	go func() {
		logger.Info(ctx, "metrics server listening", map[string]interface{}{"port": cfg.Observability.MetricsPort})
		if err := metrics.StartMetricsServer(cfg.Observability.MetricsPort); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "metrics server failed", err)
		}
	}()

	pipeline := ingest.NewPipeline(decoder, mkt, tc, bc, cfg.Feed.SleepTimeUS)
	pipeline.Metrics = metrics
	metrics.SetTailCacheSizeCallback(func() int64 { return int64(len(tc.Snapshot())) })

	healthChecker := observability.NewHealthChecker(logger)
	healthChecker.RegisterCheck("ingest", observability.IngestHealthCheck(pipeline.Done))
	healthChecker.RegisterCheck("broadcaster", observability.BroadcasterHealthCheck(bc.SubscriberCount))
	healthServer := observability.NewHealthServer(healthChecker, observability.ServiceInfo{
		Name:    cfg.Observability.ServiceName,
		Version: "1.0.0",
	}, logger)

	var lastRate atomic.Int64
	metrics.SetRateCallback(func() int64 { return lastRate.Load() })

	monitor := ratemonitor.New(pipeline.MessageCount(), time.Second, func(rate uint64) {
		lastRate.Store(int64(rate))
		logger.Info(ctx, "ingest rate sample", map[string]interface{}{"messages_per_second": rate})
	})

	go monitor.Run(ctx)

	go func() {
		if err := pipeline.Run(ctx); err != nil {
			logger.Error(ctx, "ingest pipeline terminated", err)
		} else {
			logger.Info(ctx, "ingest pipeline reached end of feed")
		}
	}()

	pushListener, err := net.Listen("tcp", cfg.Push.Addr)
	if err != nil {
		logger.Error(ctx, "failed to bind push listener", err, map[string]interface{}{"addr": cfg.Push.Addr})
		os.Exit(1)
	}
	pushServer := server.NewPushServer(bc, logger)
	pushServer.Metrics = metrics
	go func() {
		if err := pushServer.Serve(ctx, pushListener); err != nil {
			logger.Info(ctx, "push listener stopped", map[string]interface{}{"error": err.Error()})
		}
	}()

	router := server.PullRouterWithPerfLogger(tc, mkt, observability.NewPerformanceLogger(logger))
	healthServer.RegisterRoutes(router)
	handler := middleware.Recovery(logger)(
		middleware.Logging(logger)(
			middleware.Metrics(metrics)(
				middleware.Tracing(cfg.Observability.ServiceName)(
					middleware.CORS(cfg.Security.CORSAllowedOrigins)(
						middleware.RateLimit(cfg.RateLimit)(router),
					),
				),
			),
		),
	)

	httpServer := &http.Server{
		Addr:         cfg.Pull.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Pull.ReadTimeout,
		WriteTimeout: cfg.Pull.WriteTimeout,
		IdleTimeout:  cfg.Pull.IdleTimeout,
	}

	go func() {
		logger.Info(ctx, "pull server listening", map[string]interface{}{"addr": cfg.Pull.Addr})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "pull server failed", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	metrics.Shutdown(shutdownCtx)
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "tracing provider shutdown failed", err)
	}
}
