package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bscolinos/ford-fleet-streaming/internal/config"
	"github.com/bscolinos/ford-fleet-streaming/internal/domain"
)

// PostgresStore owns the storage connection pool. The pool is created by
// Connect, not at construction, so the connection supervisor controls its
// lifecycle explicitly.
type PostgresStore struct {
	cfg  *config.Config
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg *config.Config) *PostgresStore {
	return &PostgresStore{cfg: cfg}
}

// Connect replaces any previous pool with a freshly pinged one. Safe to call
// again after a write failure.
func (s *PostgresStore) Connect(ctx context.Context) error {
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?pool_max_conns=%d",
		s.cfg.DBUser,
		s.cfg.DBPassword,
		s.cfg.DBHost,
		s.cfg.DBPort,
		s.cfg.DBName,
		s.cfg.DBMaxConns,
	)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return fmt.Errorf("create db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping db: %w", err)
	}

	if s.pool != nil {
		s.pool.Close()
	}
	s.pool = pool
	return nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("db pool not connected")
	}
	return s.pool.Ping(ctx)
}

var rawColumns = []string{
	"tenant_id",
	"vehicle_id",
	"ts",
	"region_id",
	"territory_id",
	"lat",
	"lon",
	"speed",
	"engine_temp",
	"fuel_pct",
	"battery_v",
	"odometer",
	"dtc_code",
	"heading",
	"rpm",
	"throttle_pct",
	"access_roles",
}

// The monotonic guard on last_seen_ts makes re-delivered older batches
// harmless: an upsert can only move a vehicle's state forward in event time.
const upsertStateSQL = `
	INSERT INTO vehicle_state
		(vehicle_id, last_seen_ts, status, lat, lon, speed, heading,
		 fuel_pct, engine_temp, battery_v, odometer)
	VALUES
		($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (vehicle_id) DO UPDATE SET
		last_seen_ts = excluded.last_seen_ts,
		status       = excluded.status,
		lat          = excluded.lat,
		lon          = excluded.lon,
		speed        = excluded.speed,
		heading      = excluded.heading,
		fuel_pct     = excluded.fuel_pct,
		engine_temp  = excluded.engine_temp,
		battery_v    = excluded.battery_v,
		odometer     = excluded.odometer
	WHERE vehicle_state.last_seen_ts <= excluded.last_seen_ts
`

const insertAnomalySQL = `
	INSERT INTO anomalies
		(anomaly_id, vehicle_id, tenant_id, region_id, territory_id,
		 detected_at, anomaly_type, severity, description,
		 metric_value, threshold_value, access_roles)
	VALUES
		($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT DO NOTHING
`

// WriteBatch performs the three flush writes in order — raw append, state
// upsert, anomaly insert — inside a single transaction. Either the whole
// flush lands or none of it does.
func (s *PostgresStore) WriteBatch(
	ctx context.Context,
	events []*domain.TelemetryEvent,
	states []*domain.VehicleState,
	anomalies []*domain.AnomalyRecord,
) error {
	if s.pool == nil {
		return fmt.Errorf("db pool not connected")
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin flush tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows := make([][]interface{}, len(events))
	for i, e := range events {
		var dtc interface{}
		if e.DTCCode != "" {
			dtc = e.DTCCode
		}
		rows[i] = []interface{}{
			e.TenantID,
			e.VehicleID,
			e.Timestamp.Time,
			e.RegionID,
			e.TerritoryID,
			e.Latitude,
			e.Longitude,
			e.SpeedMph,
			e.EngineTempF,
			e.FuelPct,
			e.BatteryVoltage,
			e.OdometerMi,
			dtc,
			e.Heading,
			e.RPM,
			e.ThrottlePct,
			e.AccessRoles,
		}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"telemetry_raw"}, rawColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("append %d raw events: %w", len(events), err)
	}

	batch := &pgx.Batch{}
	for _, st := range states {
		batch.Queue(upsertStateSQL,
			st.VehicleID,
			st.LastSeenTs,
			st.Status,
			st.Latitude,
			st.Longitude,
			st.SpeedMph,
			st.Heading,
			st.FuelPct,
			st.EngineTempF,
			st.BatteryVoltage,
			st.OdometerMi,
		)
	}
	for _, a := range anomalies {
		batch.Queue(insertAnomalySQL,
			a.AnomalyID,
			a.VehicleID,
			a.TenantID,
			a.RegionID,
			a.TerritoryID,
			a.DetectedAt.Time,
			string(a.AnomalyType),
			string(a.Severity),
			a.Description,
			a.MetricValue,
			a.ThresholdValue,
			a.AccessRoles,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert %d states, insert %d anomalies: %w", len(states), len(anomalies), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit flush tx: %w", err)
	}
	return nil
}
