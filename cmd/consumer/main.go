package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/bscolinos/ford-fleet-streaming/internal/config"
	"github.com/bscolinos/ford-fleet-streaming/internal/detect"
	"github.com/bscolinos/ford-fleet-streaming/internal/logger"
	"github.com/bscolinos/ford-fleet-streaming/internal/metrics"
	"github.com/bscolinos/ford-fleet-streaming/internal/pipeline"
	"github.com/bscolinos/ford-fleet-streaming/internal/sim"
	"github.com/bscolinos/ford-fleet-streaming/internal/sink"
	"github.com/bscolinos/ford-fleet-streaming/internal/store"
	"github.com/bscolinos/ford-fleet-streaming/internal/stream"
	"github.com/bscolinos/ford-fleet-streaming/internal/supervisor"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found — using system environment variables")
	}

	cfg := config.Load()

	lg, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsSrv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: metrics.Router()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("metrics server failed", zap.Error(err))
		}
	}()

	retryDelay := time.Duration(cfg.ConnectRetryDelayMS) * time.Millisecond

	brokerSup := supervisor.New("broker", stream.CheckBroker(cfg.KafkaBrokers), cfg.MaxConnectRetries, retryDelay, lg)
	if err := brokerSup.Connect(ctx); err != nil {
		lg.Fatal("broker unavailable", zap.Strings("brokers", cfg.KafkaBrokers), zap.Error(err))
	}

	storage := store.NewPostgresStore(cfg)
	storageSup := supervisor.New("storage", storage.Connect, cfg.MaxConnectRetries, retryDelay, lg)
	if err := storageSup.Connect(ctx); err != nil {
		lg.Fatal("storage unavailable", zap.String("host", cfg.DBHost), zap.Error(err))
	}
	defer storage.Close()

	// The Redis mirror is optional: without it the dashboard goes stale but
	// ingestion keeps running.
	var mirror sink.Mirror
	redisMirror, err := store.NewRedisMirror(ctx, cfg)
	if err != nil {
		lg.Warn("redis unavailable, live state mirror disabled", zap.Error(err))
	} else {
		mirror = redisMirror
		defer redisMirror.Close()
	}

	topics := make([]string, 0, len(sim.Tenants))
	for _, t := range sim.Tenants {
		topics = append(topics, t.Topic)
	}
	reader := stream.NewGroupReader(cfg, topics)
	defer reader.Close()

	batcher := pipeline.NewBatcher(cfg.BatchSize, time.Duration(cfg.BatchTimeoutMS)*time.Millisecond)
	snk := sink.New(storage, mirror, lg)
	pollTimeout := time.Duration(cfg.PollTimeoutMS) * time.Millisecond
	p := pipeline.New(reader, detect.New(), batcher, snk, storageSup, pollTimeout, lg)

	lg.Info("consumer started",
		zap.Strings("topics", topics),
		zap.String("group", cfg.ConsumerGroup),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Int("batch_timeout_ms", cfg.BatchTimeoutMS),
	)

	runErr := p.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		lg.Error("metrics server shutdown failed", zap.Error(err))
	}

	if runErr != nil {
		lg.Fatal("pipeline terminated", zap.Error(runErr))
	}
	lg.Info("consumer stopped")
}
