package sink

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/bscolinos/ford-fleet-streaming/internal/domain"
)

// Storage performs the three durable writes of one flush — raw event append,
// latest-state upsert, anomaly insert — inside one transaction scope.
type Storage interface {
	WriteBatch(ctx context.Context, events []*domain.TelemetryEvent, states []*domain.VehicleState, anomalies []*domain.AnomalyRecord) error
}

// Mirror pushes latest state and anomalies to the hot store read by the live
// dashboard. Best effort: mirror failures never fail a flush.
type Mirror interface {
	MirrorStates(ctx context.Context, latest []*domain.TelemetryEvent) error
	PublishAnomalies(ctx context.Context, anomalies []*domain.AnomalyRecord) error
}

type Sink struct {
	storage Storage
	mirror  Mirror // nil when Redis is not configured
	lg      *zap.Logger
}

func New(storage Storage, mirror Mirror, lg *zap.Logger) *Sink {
	return &Sink{storage: storage, mirror: mirror, lg: lg}
}

// Flush writes one batch durably and then mirrors it. The state rows are
// reduced to the max-timestamp event per vehicle before the upsert, so event
// order inside the batch never matters.
func (s *Sink) Flush(ctx context.Context, batch *domain.Batch) error {
	if batch.Empty() {
		return nil
	}

	latest := latestPerVehicle(batch.Events)
	states := make([]*domain.VehicleState, len(latest))
	for i, e := range latest {
		states[i] = domain.StateFromEvent(e)
	}

	if err := s.storage.WriteBatch(ctx, batch.Events, states, batch.Anomalies); err != nil {
		return err
	}

	if s.mirror != nil {
		if err := s.mirror.MirrorStates(ctx, latest); err != nil {
			s.lg.Warn("state mirror failed", zap.Error(err))
		}
		if len(batch.Anomalies) > 0 {
			if err := s.mirror.PublishAnomalies(ctx, batch.Anomalies); err != nil {
				s.lg.Warn("anomaly publish failed", zap.Error(err))
			}
		}
	}

	return nil
}

// latestPerVehicle picks, per vehicle id, the event with the maximum
// timestamp. Output is sorted by vehicle id for stable write order.
func latestPerVehicle(events []*domain.TelemetryEvent) []*domain.TelemetryEvent {
	byVehicle := make(map[string]*domain.TelemetryEvent, len(events))
	for _, e := range events {
		cur, ok := byVehicle[e.VehicleID]
		if !ok || e.Timestamp.After(cur.Timestamp.Time) {
			byVehicle[e.VehicleID] = e
		}
	}

	out := make([]*domain.TelemetryEvent, 0, len(byVehicle))
	for _, e := range byVehicle {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out
}
