package generator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/bscolinos/ford-fleet-streaming/internal/metrics"
	"github.com/bscolinos/ford-fleet-streaming/internal/sim"
)

// EventWriter is the slice of kafka.Writer the generator publishes through.
type EventWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type vehicleRef struct {
	topic string
	sim   *sim.Simulator
}

// Generator round-robins every simulator across every tenant, pacing the
// aggregate stream to the configured rate. Once per full cycle the buffered
// messages are flushed per topic, bounding end-to-end latency to one cycle.
type Generator struct {
	writers  map[string]EventWriter
	vehicles []vehicleRef
	delay    time.Duration
	lg       *zap.Logger

	// now is swapped out in tests.
	now func() time.Time
}

// New wires one writer per tenant around the given fleets. The inter-event
// delay is 1/eventsPerSecond regardless of fleet size, so the aggregate rate
// stays fixed as vehicles are added.
func New(writers map[string]EventWriter, fleets map[string][]*sim.Simulator, eventsPerSecond float64, lg *zap.Logger) *Generator {
	var vehicles []vehicleRef
	for _, t := range sim.Tenants {
		for _, s := range fleets[t.ID] {
			vehicles = append(vehicles, vehicleRef{topic: t.Topic, sim: s})
		}
	}

	return &Generator{
		writers:  writers,
		vehicles: vehicles,
		delay:    time.Duration(float64(time.Second) / eventsPerSecond),
		lg:       lg,
		now:      time.Now,
	}
}

// Run loops until the context is cancelled. Publish failures are logged and
// the affected events dropped; delivery is at most once.
func (g *Generator) Run(ctx context.Context) error {
	g.lg.Info("starting telemetry generation",
		zap.Int("vehicles", len(g.vehicles)),
		zap.Duration("inter_event_delay", g.delay),
	)

	buffers := make(map[string][]kafka.Message, len(g.writers))
	eventCount := 0
	start := g.now()

	for {
		for _, v := range g.vehicles {
			if ctx.Err() != nil {
				return nil
			}

			event := v.sim.Advance(g.now())
			payload, err := json.Marshal(event)
			if err != nil {
				// Cannot happen for a fixed-shape event; guard anyway.
				g.lg.Error("marshal event failed", zap.String("vehicle_id", event.VehicleID), zap.Error(err))
				continue
			}

			buffers[v.topic] = append(buffers[v.topic], kafka.Message{
				Key:   []byte(event.VehicleID),
				Value: payload,
			})

			eventCount++
			if eventCount%1000 == 0 {
				elapsed := g.now().Sub(start).Seconds()
				g.lg.Info("generation progress",
					zap.Int("events", eventCount),
					zap.Float64("rate_per_sec", float64(eventCount)/elapsed),
					zap.String("vehicle_id", event.VehicleID),
				)
			}

			select {
			case <-time.After(g.delay):
			case <-ctx.Done():
				return nil
			}
		}

		g.flushBuffers(ctx, buffers)
	}
}

// flushBuffers writes each topic's buffered cycle synchronously. A failed
// topic write drops that cycle's events for the topic.
func (g *Generator) flushBuffers(ctx context.Context, buffers map[string][]kafka.Message) {
	for topic, msgs := range buffers {
		if len(msgs) == 0 {
			continue
		}
		if err := g.writers[topic].WriteMessages(ctx, msgs...); err != nil {
			metrics.PublishFailures.Add(float64(len(msgs)))
			g.lg.Warn("publish failed, dropping events",
				zap.String("topic", topic),
				zap.Int("dropped", len(msgs)),
				zap.Error(err),
			)
		} else {
			metrics.EventsPublished.Add(float64(len(msgs)))
		}
		buffers[topic] = msgs[:0]
	}
}
