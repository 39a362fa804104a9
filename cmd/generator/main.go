package main

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/bscolinos/ford-fleet-streaming/internal/config"
	"github.com/bscolinos/ford-fleet-streaming/internal/generator"
	"github.com/bscolinos/ford-fleet-streaming/internal/logger"
	"github.com/bscolinos/ford-fleet-streaming/internal/metrics"
	"github.com/bscolinos/ford-fleet-streaming/internal/sim"
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

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	fleets := make(map[string][]*sim.Simulator, len(sim.Tenants))
	writers := make(map[string]generator.EventWriter, len(sim.Tenants))

	for _, t := range sim.Tenants {
		fleets[t.ID] = sim.BuildFleet(t.ID, cfg.AnomalyProbability, rng)
		w := stream.NewTopicWriter(cfg.KafkaBrokers, t.Topic)
		defer w.Close()
		writers[t.Topic] = w

		lg.Info("created fleet",
			zap.String("tenant", t.Name),
			zap.String("topic", t.Topic),
			zap.Int("vehicles", len(fleets[t.ID])),
		)
	}

	gen := generator.New(writers, fleets, cfg.EventsPerSecond, lg)

	lg.Info("generator started",
		zap.Float64("events_per_second", cfg.EventsPerSecond),
		zap.Float64("anomaly_probability", cfg.AnomalyProbability),
	)

	if err := gen.Run(ctx); err != nil {
		lg.Error("generator stopped with error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		lg.Error("metrics server shutdown failed", zap.Error(err))
	}
	lg.Info("generator stopped")
}
