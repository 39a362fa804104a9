package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTimeWireFormat(t *testing.T) {
	ts := NewEventTime(time.Date(2026, 3, 1, 12, 30, 45, 123456000, time.UTC))

	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2026-03-01T12:30:45.123456Z"`, string(data))

	var parsed EventTime
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.True(t, parsed.Equal(ts.Time))
}

func TestDecodeEventRoundTrip(t *testing.T) {
	original := &TelemetryEvent{
		TenantID:       "tenant_a",
		VehicleID:      "v_a_w1_001",
		Timestamp:      NewEventTime(time.Date(2026, 3, 1, 12, 0, 0, 500000000, time.UTC)),
		RegionID:       "WEST",
		TerritoryID:    "WEST_1",
		Latitude:       47.6062,
		Longitude:      -122.3321,
		SpeedMph:       62.5,
		EngineTempF:    198.2,
		FuelPct:        73.4,
		BatteryVoltage: 13.1,
		OdometerMi:     45012,
		DTCCode:        "P0171",
		Heading:        271.4,
		RPM:            2750,
		ThrottlePct:    41.2,
		AccessRoles:    ",territory_west_1,region_west,admin_all,",
	}

	payload, err := json.Marshal(original)
	require.NoError(t, err)

	decoded, err := DecodeEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecodeEventRejectsMalformedPayloads(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		wantErr error
	}{
		{"not json", `{{{`, nil},
		{"missing tenant", `{"vehicle_id":"v1","ts":"2026-03-01T12:00:00.000000Z"}`, ErrMissingTenant},
		{"missing vehicle", `{"tenant_id":"tenant_a","ts":"2026-03-01T12:00:00.000000Z"}`, ErrMissingVehicle},
		{"missing timestamp", `{"tenant_id":"tenant_a","vehicle_id":"v1"}`, ErrMissingTimestamp},
		{"bad timestamp", `{"tenant_id":"tenant_a","vehicle_id":"v1","ts":"yesterday"}`, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decoded, err := DecodeEvent([]byte(tc.payload))
			require.Error(t, err)
			assert.Nil(t, decoded)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestDecodeEventToleratesAbsentOptionalFields(t *testing.T) {
	decoded, err := DecodeEvent([]byte(`{
		"tenant_id": "tenant_a",
		"vehicle_id": "v1",
		"ts": "2026-03-01T12:00:00.000000Z"
	}`))
	require.NoError(t, err)
	assert.Empty(t, decoded.DTCCode)
	assert.Zero(t, decoded.SpeedMph)
}

func TestStateFromEvent(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := &TelemetryEvent{
		VehicleID:      "v1",
		Timestamp:      NewEventTime(ts),
		Latitude:       40.7,
		Longitude:      -74.0,
		SpeedMph:       55,
		Heading:        180,
		FuelPct:        50,
		EngineTempF:    200,
		BatteryVoltage: 12.8,
		OdometerMi:     10000,
	}

	st := StateFromEvent(e)
	assert.Equal(t, "v1", st.VehicleID)
	assert.Equal(t, ts, st.LastSeenTs)
	assert.Equal(t, "active", st.Status)
	assert.Equal(t, 200.0, st.EngineTempF)
}
