package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found — using system environment variables")
	}

	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		dbGetEnv("DB_USER", "fleet_user"),
		dbGetEnv("DB_PASSWORD", "fleet_password"),
		dbGetEnv("DB_HOST", "localhost"),
		dbGetEnv("DB_PORT", "5432"),
		dbGetEnv("DB_NAME", "ford_fleet"),
	)

	ctx := context.Background()

	fmt.Println("Connecting to TimescaleDB...")
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure TimescaleDB is running:\n  docker-compose up -d timescaledb", err)
	}
	defer conn.Close(ctx)
	fmt.Println("✓ Connected")

	// Run all steps in order
	step1_extensions(ctx, conn)
	step2_raw_table(ctx, conn)
	step3_state_table(ctx, conn)
	step4_anomalies_table(ctx, conn)
	step5_indexes(ctx, conn)
	step6_verify(ctx, conn)

	fmt.Println("\n✅ Database initialised successfully")
	fmt.Println("   Run next: go run ./scripts/init_topics")
}

// ─────────────────────────────────────────────────────────────
// Step 1 — Extensions
// ─────────────────────────────────────────────────────────────
func step1_extensions(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 1: Extensions ──────────────────────────")

	// TimescaleDB — required for hypertable
	execOrFatal(ctx, conn,
		"CREATE EXTENSION IF NOT EXISTS timescaledb CASCADE;",
		"timescaledb extension",
	)
}

// ─────────────────────────────────────────────────────────────
// Step 2 — telemetry_raw table
// ─────────────────────────────────────────────────────────────
func step2_raw_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 2: telemetry_raw table ─────────────────")

	// Append-only raw event log. Every consumed event lands here exactly as
	// decoded; nothing ever updates or deletes a row.
	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS telemetry_raw (

			-- Event time as reported by the vehicle — TimescaleDB
			-- partitions data by this column
			ts             TIMESTAMPTZ      NOT NULL,

			-- Identity
			tenant_id      TEXT             NOT NULL,
			vehicle_id     TEXT             NOT NULL,
			region_id      TEXT             NOT NULL,
			territory_id   TEXT             NOT NULL,

			-- GPS
			lat            DOUBLE PRECISION NOT NULL,
			lon            DOUBLE PRECISION NOT NULL,

			-- Sensor readings
			speed          DOUBLE PRECISION NOT NULL DEFAULT 0,
			engine_temp    DOUBLE PRECISION NOT NULL DEFAULT 0,
			fuel_pct       DOUBLE PRECISION NOT NULL DEFAULT 0,
			battery_v      DOUBLE PRECISION NOT NULL DEFAULT 0,
			odometer       DOUBLE PRECISION NOT NULL DEFAULT 0,
			heading        DOUBLE PRECISION NOT NULL DEFAULT 0,
			rpm            INTEGER          NOT NULL DEFAULT 0,
			throttle_pct   DOUBLE PRECISION NOT NULL DEFAULT 0,

			-- NULL unless the event carried a diagnostic trouble code
			dtc_code       TEXT,

			-- Row-level-security tag consumed by the API layer
			access_roles   TEXT
		);
	`, "telemetry_raw table created")

	// Convert to TimescaleDB hypertable, partitioned into 7-day chunks
	execOrFatal(ctx, conn, `
		SELECT create_hypertable(
			'telemetry_raw',
			'ts',
			if_not_exists => TRUE
		);
	`, "telemetry_raw converted to hypertable")
}

// ─────────────────────────────────────────────────────────────
// Step 3 — vehicle_state table
// ─────────────────────────────────────────────────────────────
func step3_state_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 3: vehicle_state table ─────────────────")

	// One row per vehicle, overwritten on each newer observation. The
	// consumer's upsert guards on last_seen_ts so the row only ever moves
	// forward in event time.
	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS vehicle_state (

			vehicle_id     TEXT             PRIMARY KEY,

			-- Maximum event timestamp processed for this vehicle
			last_seen_ts   TIMESTAMPTZ      NOT NULL,

			status         TEXT             NOT NULL DEFAULT 'active',

			lat            DOUBLE PRECISION NOT NULL,
			lon            DOUBLE PRECISION NOT NULL,
			speed          DOUBLE PRECISION NOT NULL DEFAULT 0,
			heading        DOUBLE PRECISION NOT NULL DEFAULT 0,
			fuel_pct       DOUBLE PRECISION NOT NULL DEFAULT 0,
			engine_temp    DOUBLE PRECISION NOT NULL DEFAULT 0,
			battery_v      DOUBLE PRECISION NOT NULL DEFAULT 0,
			odometer       DOUBLE PRECISION NOT NULL DEFAULT 0
		);
	`, "vehicle_state table created")
}

// ─────────────────────────────────────────────────────────────
// Step 4 — anomalies table
// ─────────────────────────────────────────────────────────────
func step4_anomalies_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 4: anomalies table ─────────────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS anomalies (

			-- Generated by the consumer at detection time
			anomaly_id       UUID             PRIMARY KEY,

			-- Identity — same values as telemetry_raw
			vehicle_id       TEXT             NOT NULL,
			tenant_id        TEXT             NOT NULL,
			region_id        TEXT             NOT NULL,
			territory_id     TEXT             NOT NULL,

			-- Copied from the triggering event, not the wall clock
			detected_at      TIMESTAMPTZ      NOT NULL,

			-- Must exactly match domain.AnomalyType constants
			anomaly_type     TEXT             NOT NULL,

			-- Must exactly match domain.AnomalySeverity constants
			severity         TEXT             NOT NULL,

			description      TEXT             NOT NULL,

			-- NULL for the DTC_PRESENT rule, which has no threshold
			metric_value     DOUBLE PRECISION,
			threshold_value  DOUBLE PRECISION,

			access_roles     TEXT,

			-- Mutated only by the API layer; the pipeline writes false
			acknowledged     BOOLEAN          NOT NULL DEFAULT false,

			CONSTRAINT chk_anomaly_type CHECK (
				anomaly_type IN (
					'HIGH_ENGINE_TEMP', 'LOW_BATTERY', 'SPEEDING',
					'LOW_FUEL', 'DTC_PRESENT'
				)
			),

			CONSTRAINT chk_severity CHECK (
				severity IN ('info', 'warning', 'critical')
			)
		);
	`, "anomalies table created")
}

// ─────────────────────────────────────────────────────────────
// Step 5 — Indexes
// ─────────────────────────────────────────────────────────────
func step5_indexes(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 5: Indexes ─────────────────────────────")

	indexes := []struct {
		name string
		sql  string
		why  string
	}{
		{
			name: "idx_raw_vehicle_ts",
			sql: `CREATE INDEX IF NOT EXISTS idx_raw_vehicle_ts
				  ON telemetry_raw (vehicle_id, ts DESC);`,
			why: "query: telemetry history for one vehicle",
		},
		{
			name: "idx_raw_tenant_ts",
			sql: `CREATE INDEX IF NOT EXISTS idx_raw_tenant_ts
				  ON telemetry_raw (tenant_id, ts DESC);`,
			why: "query: all vehicles for a tenant",
		},
		{
			name: "idx_anomalies_vehicle",
			sql: `CREATE INDEX IF NOT EXISTS idx_anomalies_vehicle
				  ON anomalies (vehicle_id, detected_at DESC);`,
			why: "query: anomalies for one vehicle",
		},
		{
			name: "idx_anomalies_tenant",
			sql: `CREATE INDEX IF NOT EXISTS idx_anomalies_tenant
				  ON anomalies (tenant_id, detected_at DESC);`,
			why: "query: all anomalies for a tenant",
		},
		{
			name: "idx_anomalies_unacknowledged",
			sql: `CREATE INDEX IF NOT EXISTS idx_anomalies_unacknowledged
				  ON anomalies (tenant_id, detected_at DESC)
				  WHERE NOT acknowledged;`,
			why: "query: unacknowledged anomalies only (partial index)",
		},
	}

	for _, idx := range indexes {
		execOrFatal(ctx, conn, idx.sql,
			fmt.Sprintf("%-40s ← %s", idx.name, idx.why),
		)
	}
}

// ─────────────────────────────────────────────────────────────
// Step 6 — Verify everything was created
// ─────────────────────────────────────────────────────────────
func step6_verify(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 6: Verification ────────────────────────")

	tables := []string{"telemetry_raw", "vehicle_state", "anomalies"}
	for _, table := range tables {
		var exists bool
		err := conn.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_name = $1
			)
		`, table).Scan(&exists)
		if err != nil || !exists {
			log.Fatalf("Table %s was not created: %v", table, err)
		}
		fmt.Printf("  ✓ table: %s\n", table)
	}

	var hypertableName string
	err := conn.QueryRow(ctx, `
		SELECT hypertable_name
		FROM timescaledb_information.hypertables
		WHERE hypertable_name = 'telemetry_raw'
	`).Scan(&hypertableName)
	if err != nil {
		log.Fatalf("telemetry_raw is not a hypertable: %v", err)
	}
	fmt.Printf("  ✓ hypertable: %s (time partitioned)\n", hypertableName)

	var indexCount int
	err = conn.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM pg_indexes
		WHERE tablename IN ('telemetry_raw', 'anomalies')
		AND indexname LIKE 'idx_%'
	`).Scan(&indexCount)
	if err != nil {
		log.Fatalf("Index check failed: %v", err)
	}
	fmt.Printf("  ✓ indexes created: %d\n", indexCount)
}

// ─────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────

// execOrFatal runs a SQL statement and prints result or exits on error
func execOrFatal(ctx context.Context, conn *pgx.Conn, sql, label string) {
	_, err := conn.Exec(ctx, sql)
	if err != nil {
		log.Fatalf("FAILED — %s\nError: %v\nSQL: %s", label, err, sql)
	}
	fmt.Printf("  ✓ %s\n", label)
}

func dbGetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
