package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"pricecomparator/internal/cache"
	"pricecomparator/internal/config"
	"pricecomparator/internal/events"
	"pricecomparator/internal/feed"
	"pricecomparator/internal/handlers"
	"pricecomparator/internal/logger"
	"pricecomparator/internal/poller"
	"pricecomparator/internal/tracing"
	"pricecomparator/internal/widget"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	port := flag.String("port", cfg.Port, "Port for the comparator widget")
	instance := flag.String("instance", cfg.InstanceID, "Instance ID for this server")
	feedURL := flag.String("feed-url", cfg.FeedURL, "Price feed endpoint")
	interval := flag.Duration("interval", cfg.PollInterval, "Price poll interval")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.Parse()

	logger.InitLogger(*logLevel, cfg.LogFile)
	defer logger.Log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracing.InitTracer(ctx, "price-comparator", cfg.OTelEnabled)
	if err != nil {
		logger.Log.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Log.Error("Failed to shutdown tracer", zap.Error(err))
		}
	}()

	ctrl := widget.NewController()
	hub := handlers.NewHub()
	ctrl.Subscribe(hub.Publish)

	var limiter handlers.RateLimiter
	if cfg.RedisAddr != "" {
		rc, err := cache.NewClient(ctx, cfg.RedisAddr, *instance, cfg.TargetRatePerMinute)
		if err != nil {
			logger.Log.Warn("Redis unavailable, running without fan-out and rate limiting", zap.Error(err))
		} else {
			defer rc.Close()
			ctrl.Subscribe(rc.PublishSnapshot)
			limiter = rc
		}
	}

	if cfg.KafkaBroker != "" {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBroker, cfg.KafkaTopic)
		if err != nil {
			logger.Log.Warn("Kafka unavailable, price export disabled", zap.Error(err))
		} else {
			defer kp.Close()
			ctrl.Subscribe(kp.Publish)
		}
	}

	client := feed.NewClient(*feedURL, &http.Client{Timeout: cfg.FetchTimeout})
	p := poller.New(client, ctrl, *interval)
	if err := p.Start(ctx); err != nil {
		logger.Log.Fatal("Failed to start poller", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + *port,
		Handler:           handlers.NewRouter(handlers.New(ctrl, hub, limiter, *instance)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("Comparator widget listening",
			zap.String("port", *port),
			zap.String("instance", *instance),
			zap.String("feed_url", client.URL()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down")

	p.Stop()
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("HTTP server shutdown failed", zap.Error(err))
	}
}
