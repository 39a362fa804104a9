package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"

	"github.com/bscolinos/ford-fleet-streaming/internal/sim"
)

// Creates the per-tenant telemetry topics. Partition count trades per-vehicle
// ordering for parallelism: messages are keyed by vehicle id, so any count
// preserves ordering within one vehicle.
func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found — using system environment variables")
	}

	broker := strings.Split(topicGetEnv("KAFKA_BROKERS", "localhost:9092"), ",")[0]
	partitions := topicGetEnvInt("TOPIC_PARTITIONS", 3)
	replication := topicGetEnvInt("TOPIC_REPLICATION", 1)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Printf("Connecting to Kafka at %s...\n", broker)
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure Kafka is running:\n  docker-compose up -d kafka", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		log.Fatalf("Get controller failed: %v", err)
	}
	controllerConn, err := kafka.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		log.Fatalf("Dial controller failed: %v", err)
	}
	defer controllerConn.Close()
	fmt.Println("✓ Connected")

	var configs []kafka.TopicConfig
	for _, t := range sim.Tenants {
		configs = append(configs, kafka.TopicConfig{
			Topic:             t.Topic,
			NumPartitions:     partitions,
			ReplicationFactor: replication,
		})
	}

	// Kafka may return an error when topics already exist; treat that as done.
	if err := controllerConn.CreateTopics(configs...); err != nil {
		fmt.Printf("  CreateTopics returned: %v (topics may already exist)\n", err)
	}
	for _, t := range sim.Tenants {
		fmt.Printf("  ✓ topic: %-24s (%d partitions, replication %d)\n", t.Topic, partitions, replication)
	}

	fmt.Println("\n✅ Topics initialised")
}

func topicGetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func topicGetEnvInt(key string, fallback int) int {
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
