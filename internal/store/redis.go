package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bscolinos/ford-fleet-streaming/internal/config"
	"github.com/bscolinos/ford-fleet-streaming/internal/domain"
)

// RedisMirror keeps a hot copy of latest vehicle state and publishes live
// feeds for the dashboard layer. Everything here is best effort; the durable
// truth lives in Postgres.
type RedisMirror struct {
	client *redis.Client
}

func NewRedisMirror(ctx context.Context, cfg *config.Config) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisMirror{client: client}, nil
}

func (r *RedisMirror) Close() error {
	return r.client.Close()
}

func (r *RedisMirror) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// MirrorStates pushes the reduced latest-state rows in one pipeline: a state
// hash and geo entry per vehicle, plus a publish on the tenant's telemetry
// channel.
func (r *RedisMirror) MirrorStates(ctx context.Context, latest []*domain.TelemetryEvent) error {
	if len(latest) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, e := range latest {
		stateData := map[string]interface{}{
			"vehicle_id":  e.VehicleID,
			"tenant_id":   e.TenantID,
			"lat":         e.Latitude,
			"lon":         e.Longitude,
			"speed":       e.SpeedMph,
			"heading":     e.Heading,
			"fuel_pct":    e.FuelPct,
			"engine_temp": e.EngineTempF,
			"battery_v":   e.BatteryVoltage,
			"odometer":    e.OdometerMi,
			"ts":          e.Timestamp.Unix(),
		}

		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal state for %s: %w", e.VehicleID, err)
		}

		stateKey := fmt.Sprintf("vehicle:%s:state", e.VehicleID)
		geoKey := fmt.Sprintf("tenant:%s:geo", e.TenantID)
		channel := fmt.Sprintf("tenant:%s:telemetry", e.TenantID)

		pipe.HSet(ctx, stateKey, stateData)
		pipe.Expire(ctx, stateKey, 30*time.Second)
		pipe.GeoAdd(ctx, geoKey, &redis.GeoLocation{
			Name:      e.VehicleID,
			Longitude: e.Longitude,
			Latitude:  e.Latitude,
		})
		pipe.Publish(ctx, channel, payload)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis state pipeline: %w", err)
	}
	return nil
}

// PublishAnomalies pushes each anomaly onto its tenant's live anomaly
// channel.
func (r *RedisMirror) PublishAnomalies(ctx context.Context, anomalies []*domain.AnomalyRecord) error {
	pipe := r.client.Pipeline()
	for _, a := range anomalies {
		payload, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal anomaly %s: %w", a.AnomalyID, err)
		}
		channel := fmt.Sprintf("tenant:%s:anomalies", a.TenantID)
		pipe.Publish(ctx, channel, payload)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis anomaly publish: %w", err)
	}
	return nil
}
