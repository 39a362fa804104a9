// Package stream holds the Kafka wiring: one topic per tenant, messages
// keyed by vehicle id so per-vehicle ordering survives partitioning.
package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bscolinos/ford-fleet-streaming/internal/config"
)

// CheckBroker returns a supervisor connect func that verifies the broker is
// reachable.
func CheckBroker(brokers []string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if len(brokers) == 0 {
			return fmt.Errorf("no brokers configured")
		}
		conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
		if err != nil {
			return fmt.Errorf("dial broker %s: %w", brokers[0], err)
		}
		return conn.Close()
	}
}

// NewTopicWriter builds the producer-side writer for one tenant topic. The
// Hash balancer pins each vehicle id to one partition.
func NewTopicWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// NewGroupReader builds the consumer-group reader across all tenant topics.
// Offsets commit on a fixed interval, independent of flush success:
// at-least-once consumption, duplicates after a crash-restart accepted.
func NewGroupReader(cfg *config.Config, topics []string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		GroupID:        cfg.ConsumerGroup,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Duration(cfg.PollTimeoutMS) * time.Millisecond,
		CommitInterval: time.Duration(cfg.OffsetCommitInterval) * time.Millisecond,
		StartOffset:    kafka.LastOffset,
	})
}
