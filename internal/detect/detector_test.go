package detect

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bscolinos/ford-fleet-streaming/internal/domain"
)

// sequentialIDs keeps detector output comparable across calls.
func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("anomaly-%04d", n)
	}
}

func healthyEvent() *domain.TelemetryEvent {
	return &domain.TelemetryEvent{
		TenantID:       "tenant_a",
		VehicleID:      "v_a_w1_001",
		Timestamp:      domain.NewEventTime(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		RegionID:       "WEST",
		TerritoryID:    "WEST_1",
		SpeedMph:       55,
		EngineTempF:    195,
		FuelPct:        62,
		BatteryVoltage: 13.2,
		AccessRoles:    ",territory_west_1,region_west,admin_all,",
	}
}

func TestDetectHealthyEventProducesNothing(t *testing.T) {
	d := NewWithIDFunc(sequentialIDs())
	assert.Empty(t, d.Detect(healthyEvent()))
}

func TestDetectHighEngineTemp(t *testing.T) {
	d := NewWithIDFunc(sequentialIDs())

	e := healthyEvent()
	e.EngineTempF = 235.5

	records := d.Detect(e)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, domain.AnomalyHighEngineTemp, r.AnomalyType)
	assert.Equal(t, domain.SeverityCritical, r.Severity)
	require.NotNil(t, r.MetricValue)
	require.NotNil(t, r.ThresholdValue)
	assert.Equal(t, 235.5, *r.MetricValue)
	assert.Equal(t, 220.0, *r.ThresholdValue)
	assert.Equal(t, "engine_temp above threshold: 235.50 vs 220", r.Description)
	assert.Equal(t, e.VehicleID, r.VehicleID)
	assert.Equal(t, e.TenantID, r.TenantID)
	assert.Equal(t, e.Timestamp, r.DetectedAt)
	assert.Equal(t, e.AccessRoles, r.AccessRoles)
}

func TestDetectTempExactlyAtThresholdDoesNotFire(t *testing.T) {
	d := NewWithIDFunc(sequentialIDs())

	e := healthyEvent()
	e.EngineTempF = 220

	assert.Empty(t, d.Detect(e))
}

func TestDetectLowBattery(t *testing.T) {
	d := NewWithIDFunc(sequentialIDs())

	e := healthyEvent()
	e.BatteryVoltage = 10.9

	records := d.Detect(e)
	require.Len(t, records, 1)
	assert.Equal(t, domain.AnomalyLowBattery, records[0].AnomalyType)
	assert.Equal(t, domain.SeverityWarning, records[0].Severity)
	assert.Equal(t, "battery_v below threshold: 10.90 vs 11.5", records[0].Description)
}

func TestDetectDTCFiresRegardlessOfThresholds(t *testing.T) {
	d := NewWithIDFunc(sequentialIDs())

	e := healthyEvent()
	e.DTCCode = "P0300"

	records := d.Detect(e)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, domain.AnomalyDTCPresent, r.AnomalyType)
	assert.Equal(t, domain.SeverityWarning, r.Severity)
	assert.Equal(t, "Diagnostic trouble code detected: P0300", r.Description)
	assert.Nil(t, r.MetricValue)
	assert.Nil(t, r.ThresholdValue)
}

func TestDetectMultipleRulesFireIndependently(t *testing.T) {
	d := NewWithIDFunc(sequentialIDs())

	e := healthyEvent()
	e.EngineTempF = 240
	e.BatteryVoltage = 11.0
	e.SpeedMph = 84
	e.FuelPct = 6
	e.DTCCode = "P0562"

	records := d.Detect(e)
	require.Len(t, records, 5)

	// Table order, DTC last.
	types := make([]domain.AnomalyType, len(records))
	for i, r := range records {
		types[i] = r.AnomalyType
	}
	assert.Equal(t, []domain.AnomalyType{
		domain.AnomalyHighEngineTemp,
		domain.AnomalyLowBattery,
		domain.AnomalySpeeding,
		domain.AnomalyLowFuel,
		domain.AnomalyDTCPresent,
	}, types)
}

func TestDetectIsDeterministic(t *testing.T) {
	e := healthyEvent()
	e.EngineTempF = 240
	e.DTCCode = "P0420"

	first := NewWithIDFunc(sequentialIDs()).Detect(e)
	second := NewWithIDFunc(sequentialIDs()).Detect(e)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, *first[i], *second[i])
	}
}
