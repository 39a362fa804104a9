package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bscolinos/ford-fleet-streaming/internal/domain"
)

func testEvent(vehicleID string, ts time.Time) *domain.TelemetryEvent {
	return &domain.TelemetryEvent{
		TenantID:  "tenant_a",
		VehicleID: vehicleID,
		Timestamp: domain.NewEventTime(ts),
	}
}

func TestBatcherFlushesAtSizeCapBeforeTimeout(t *testing.T) {
	b := NewBatcher(3, time.Hour)

	base := time.Now()
	b.Add(testEvent("v1", base), nil)
	assert.False(t, b.ShouldFlush())
	b.Add(testEvent("v2", base), nil)
	assert.False(t, b.ShouldFlush())
	b.Add(testEvent("v3", base), nil)
	assert.True(t, b.ShouldFlush(), "size cap reached, timeout irrelevant")
}

func TestBatcherFlushesOnTimeoutWithSingleEvent(t *testing.T) {
	b := NewBatcher(1000, time.Second)

	clock := time.Now()
	b.now = func() time.Time { return clock }
	b.lastFlush = clock

	b.Add(testEvent("v1", clock), nil)
	assert.False(t, b.ShouldFlush())

	clock = clock.Add(time.Second)
	assert.True(t, b.ShouldFlush(), "timeout elapsed with one accumulated event")
}

func TestBatcherNeverFlushesEmpty(t *testing.T) {
	b := NewBatcher(10, time.Millisecond)

	clock := time.Now()
	b.now = func() time.Time { return clock }
	b.lastFlush = clock

	clock = clock.Add(time.Hour)
	assert.False(t, b.ShouldFlush(), "an empty batch is never due")
}

func TestBatcherTakeResetsAndTransfersOwnership(t *testing.T) {
	b := NewBatcher(10, time.Second)

	anomaly := &domain.AnomalyRecord{AnomalyID: "a1"}
	b.Add(testEvent("v1", time.Now()), []*domain.AnomalyRecord{anomaly})
	b.Add(testEvent("v2", time.Now()), nil)
	require.Equal(t, 2, b.Len())

	batch := b.Take()
	require.Len(t, batch.Events, 2)
	require.Len(t, batch.Anomalies, 1)

	assert.Equal(t, 0, b.Len())
	assert.False(t, b.ShouldFlush())

	// The taken batch is unaffected by further accumulation.
	b.Add(testEvent("v3", time.Now()), nil)
	assert.Len(t, batch.Events, 2)
}
