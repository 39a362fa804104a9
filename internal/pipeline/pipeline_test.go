package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bscolinos/ford-fleet-streaming/internal/detect"
	"github.com/bscolinos/ford-fleet-streaming/internal/domain"
	"github.com/bscolinos/ford-fleet-streaming/internal/sink"
	"github.com/bscolinos/ford-fleet-streaming/internal/supervisor"
)

type fakeReader struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.msgs) > 0 {
		m := f.msgs[0]
		f.msgs = f.msgs[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

type writeCall struct {
	events    []*domain.TelemetryEvent
	states    []*domain.VehicleState
	anomalies []*domain.AnomalyRecord
}

type recordingStorage struct {
	mu       sync.Mutex
	calls    []writeCall
	failures int // fail this many WriteBatch calls before succeeding
}

func (r *recordingStorage) WriteBatch(_ context.Context, events []*domain.TelemetryEvent, states []*domain.VehicleState, anomalies []*domain.AnomalyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return errors.New("connection reset by peer")
	}
	r.calls = append(r.calls, writeCall{events: events, states: states, anomalies: anomalies})
	return nil
}

func (r *recordingStorage) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("anomaly-%04d", n)
	}
}

func encodedEvent(t *testing.T, vehicleID string, ts time.Time, temp float64) kafka.Message {
	t.Helper()
	e := &domain.TelemetryEvent{
		TenantID:       "tenant_a",
		VehicleID:      vehicleID,
		Timestamp:      domain.NewEventTime(ts),
		RegionID:       "WEST",
		TerritoryID:    "WEST_1",
		SpeedMph:       50,
		EngineTempF:    temp,
		FuelPct:        60,
		BatteryVoltage: 13.0,
	}
	payload, err := json.Marshal(e)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(vehicleID), Value: payload, Topic: "tenant_a_telemetry"}
}

func connectedSupervisor(t *testing.T) *supervisor.Supervisor {
	t.Helper()
	s := supervisor.New("storage", func(context.Context) error { return nil }, 5, time.Millisecond, zap.NewNop())
	require.NoError(t, s.Connect(context.Background()))
	return s
}

func TestPipelineEndToEndSingleBatch(t *testing.T) {
	t1 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Second)
	t3 := t2.Add(time.Second)

	reader := &fakeReader{msgs: []kafka.Message{
		encodedEvent(t, "v1", t1, 200),
		encodedEvent(t, "v1", t2, 225),
		encodedEvent(t, "v1", t3, 210),
	}}
	storage := &recordingStorage{}
	batcher := NewBatcher(3, time.Hour)
	p := New(reader, detect.NewWithIDFunc(sequentialIDs()), batcher,
		sink.New(storage, nil, zap.NewNop()), connectedSupervisor(t),
		50*time.Millisecond, zap.NewNop())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		p.poll(ctx)
	}
	require.True(t, batcher.ShouldFlush())
	require.NoError(t, p.flush(ctx))

	require.Len(t, storage.calls, 1)
	call := storage.calls[0]

	assert.Len(t, call.events, 3, "all three events land in the raw log")

	// Exactly one anomaly, from the 225°F event.
	require.Len(t, call.anomalies, 1)
	a := call.anomalies[0]
	assert.Equal(t, domain.AnomalyHighEngineTemp, a.AnomalyType)
	require.NotNil(t, a.MetricValue)
	assert.Equal(t, 225.0, *a.MetricValue)
	assert.Equal(t, t2, a.DetectedAt.Time)

	// Latest state reflects the greatest timestamp, not the anomalous event.
	require.Len(t, call.states, 1)
	assert.Equal(t, t3, call.states[0].LastSeenTs)
	assert.Equal(t, 210.0, call.states[0].EngineTempF)
}

func TestPipelineSkipsMalformedEvents(t *testing.T) {
	good := encodedEvent(t, "v1", time.Now(), 200)
	reader := &fakeReader{msgs: []kafka.Message{
		{Value: []byte("not json"), Topic: "tenant_a_telemetry"},
		{Value: []byte(`{"vehicle_id":"","tenant_id":"tenant_a","ts":"2026-03-01T12:00:00.000000Z"}`), Topic: "tenant_a_telemetry"},
		good,
	}}
	batcher := NewBatcher(100, time.Hour)
	p := New(reader, detect.NewWithIDFunc(sequentialIDs()), batcher,
		sink.New(&recordingStorage{}, nil, zap.NewNop()), connectedSupervisor(t),
		50*time.Millisecond, zap.NewNop())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		p.poll(ctx)
	}

	assert.Equal(t, 1, batcher.Len(), "malformed events are skipped, the stream continues")
}

func TestPipelineReconnectsAndDiscardsFailedBatch(t *testing.T) {
	storage := &recordingStorage{failures: 1}
	sup := connectedSupervisor(t)

	var transitions []supervisor.State
	sup.OnTransition = func(_, to supervisor.State) { transitions = append(transitions, to) }

	batcher := NewBatcher(100, time.Hour)
	p := New(&fakeReader{}, detect.NewWithIDFunc(sequentialIDs()), batcher,
		sink.New(storage, nil, zap.NewNop()), sup,
		50*time.Millisecond, zap.NewNop())

	ctx := context.Background()

	t1 := time.Now()
	first := &domain.TelemetryEvent{TenantID: "tenant_a", VehicleID: "v1", Timestamp: domain.NewEventTime(t1)}
	batcher.Add(first, nil)

	// Failed flush is not fatal: the batch is discarded and the supervisor
	// runs Connected → Connecting → Connected.
	require.NoError(t, p.flush(ctx))
	assert.Equal(t, 0, storage.callCount())
	assert.Equal(t, []supervisor.State{supervisor.Disconnected, supervisor.Connecting, supervisor.Connected}, transitions)
	assert.Equal(t, supervisor.Connected, sup.State())

	// The next flush carries only new events and succeeds.
	second := &domain.TelemetryEvent{TenantID: "tenant_a", VehicleID: "v2", Timestamp: domain.NewEventTime(t1.Add(time.Second))}
	batcher.Add(second, nil)
	require.NoError(t, p.flush(ctx))

	require.Equal(t, 1, storage.callCount())
	require.Len(t, storage.calls[0].events, 1)
	assert.Equal(t, "v2", storage.calls[0].events[0].VehicleID, "discarded batch is never retried")
}

func TestPipelineFatalWhenReconnectExhausted(t *testing.T) {
	storage := &recordingStorage{failures: 100}

	connectErr := errors.New("connection refused")
	sup := supervisor.New("storage", func(context.Context) error { return connectErr }, 2, time.Millisecond, zap.NewNop())

	batcher := NewBatcher(100, time.Hour)
	p := New(&fakeReader{}, detect.NewWithIDFunc(sequentialIDs()), batcher,
		sink.New(storage, nil, zap.NewNop()), sup,
		50*time.Millisecond, zap.NewNop())

	batcher.Add(&domain.TelemetryEvent{TenantID: "tenant_a", VehicleID: "v1", Timestamp: domain.NewEventTime(time.Now())}, nil)

	err := p.flush(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, supervisor.ErrExhausted)
	assert.Equal(t, supervisor.Failed, sup.State())
}

func TestPipelineRunFlushesAtCapAndStopsOnCancel(t *testing.T) {
	now := time.Now()
	reader := &fakeReader{msgs: []kafka.Message{
		encodedEvent(t, "v1", now, 200),
		encodedEvent(t, "v2", now.Add(time.Second), 201),
	}}
	storage := &recordingStorage{}
	p := New(reader, detect.NewWithIDFunc(sequentialIDs()), NewBatcher(2, time.Hour),
		sink.New(storage, nil, zap.NewNop()), connectedSupervisor(t),
		10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return storage.callCount() == 1 },
		2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err, "cancellation is a clean stop")
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop on cancellation")
	}

	require.Len(t, storage.calls[0].events, 2)
	require.Len(t, storage.calls[0].states, 2)
}
