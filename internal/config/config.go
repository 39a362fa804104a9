package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// Kafka
	KafkaBrokers  []string
	ConsumerGroup string

	// TimescaleDB
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBMaxConns int32

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Generator
	EventsPerSecond    float64
	AnomalyProbability float64

	// Batch/flush tuning
	BatchSize      int
	BatchTimeoutMS int
	PollTimeoutMS  int

	// Connection supervision
	MaxConnectRetries    int
	ConnectRetryDelayMS  int
	OffsetCommitInterval int

	// Observability
	LogLevel    string
	MetricsPort string
}

func Load() *Config {
	return &Config{
		KafkaBrokers:         strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		ConsumerGroup:        getEnv("CONSUMER_GROUP", "fleet-telemetry-consumer"),
		DBHost:               getEnv("DB_HOST", "localhost"),
		DBPort:               getEnv("DB_PORT", "5432"),
		DBUser:               getEnv("DB_USER", "fleet_user"),
		DBPassword:           getEnv("DB_PASSWORD", "fleet_password"),
		DBName:               getEnv("DB_NAME", "ford_fleet"),
		DBMaxConns:           int32(getEnvInt("DB_MAX_CONNS", 15)),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		EventsPerSecond:      getEnvFloat("EVENTS_PER_SECOND", 10),
		AnomalyProbability:   getEnvFloat("ANOMALY_PROBABILITY", 0.02),
		BatchSize:            getEnvInt("BATCH_SIZE", 100),
		BatchTimeoutMS:       getEnvInt("BATCH_TIMEOUT_MS", 1000),
		PollTimeoutMS:        getEnvInt("POLL_TIMEOUT_MS", 100),
		MaxConnectRetries:    getEnvInt("MAX_CONNECT_RETRIES", 30),
		ConnectRetryDelayMS:  getEnvInt("CONNECT_RETRY_DELAY_MS", 2000),
		OffsetCommitInterval: getEnvInt("OFFSET_COMMIT_INTERVAL_MS", 5000),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		MetricsPort:          getEnv("METRICS_PORT", "9102"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
