package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventTime marshals as ISO-8601 UTC with microsecond precision, the wire
// format shared by the generator and the consumer.
type EventTime struct {
	time.Time
}

const eventTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

func NewEventTime(t time.Time) EventTime {
	return EventTime{t.UTC()}
}

func (t EventTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(eventTimeLayout))
}

func (t *EventTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("bad event timestamp %q: %w", s, err)
	}
	t.Time = parsed.UTC()
	return nil
}

// TelemetryEvent is one reading from one vehicle. Immutable once produced;
// everything downstream of the generator treats it as read-only.
type TelemetryEvent struct {
	TenantID    string    `json:"tenant_id"`
	VehicleID   string    `json:"vehicle_id"`
	Timestamp   EventTime `json:"ts"`
	RegionID    string    `json:"region_id"`
	TerritoryID string    `json:"territory_id"`

	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`

	SpeedMph       float64 `json:"speed"`
	EngineTempF    float64 `json:"engine_temp"`
	FuelPct        float64 `json:"fuel_pct"`
	BatteryVoltage float64 `json:"battery_v"`
	OdometerMi     float64 `json:"odometer"`
	DTCCode        string  `json:"dtc_code,omitempty"`
	Heading        float64 `json:"heading"`
	RPM            int     `json:"rpm"`
	ThrottlePct    float64 `json:"throttle_pct"`

	// Opaque role tag consumed by the API layer's row-level filtering.
	AccessRoles string `json:"access_roles,omitempty"`
}

// VehicleState is the latest-known row for one vehicle. One row per vehicle
// id; the stored timestamp is always the maximum event timestamp processed
// for that vehicle.
type VehicleState struct {
	VehicleID      string
	LastSeenTs     time.Time
	Status         string
	Latitude       float64
	Longitude      float64
	SpeedMph       float64
	Heading        float64
	FuelPct        float64
	EngineTempF    float64
	BatteryVoltage float64
	OdometerMi     float64
}

// StateFromEvent builds the latest-state row for an event.
func StateFromEvent(e *TelemetryEvent) *VehicleState {
	return &VehicleState{
		VehicleID:      e.VehicleID,
		LastSeenTs:     e.Timestamp.Time,
		Status:         "active",
		Latitude:       e.Latitude,
		Longitude:      e.Longitude,
		SpeedMph:       e.SpeedMph,
		Heading:        e.Heading,
		FuelPct:        e.FuelPct,
		EngineTempF:    e.EngineTempF,
		BatteryVoltage: e.BatteryVoltage,
		OdometerMi:     e.OdometerMi,
	}
}

type AnomalyType string

const (
	AnomalyHighEngineTemp AnomalyType = "HIGH_ENGINE_TEMP"
	AnomalyLowBattery     AnomalyType = "LOW_BATTERY"
	AnomalySpeeding       AnomalyType = "SPEEDING"
	AnomalyLowFuel        AnomalyType = "LOW_FUEL"
	AnomalyDTCPresent     AnomalyType = "DTC_PRESENT"
)

type AnomalySeverity string

const (
	SeverityInfo     AnomalySeverity = "info"
	SeverityWarning  AnomalySeverity = "warning"
	SeverityCritical AnomalySeverity = "critical"
)

// AnomalyRecord is emitted by detection and persisted once. The acknowledged
// flag on the stored row belongs to the API layer; the pipeline never reads
// an anomaly back after writing it.
type AnomalyRecord struct {
	AnomalyID      string          `json:"anomaly_id"`
	VehicleID      string          `json:"vehicle_id"`
	TenantID       string          `json:"tenant_id"`
	RegionID       string          `json:"region_id"`
	TerritoryID    string          `json:"territory_id"`
	DetectedAt     EventTime       `json:"detected_at"`
	AnomalyType    AnomalyType     `json:"anomaly_type"`
	Severity       AnomalySeverity `json:"severity"`
	Description    string          `json:"description"`
	MetricValue    *float64        `json:"metric_value"`
	ThresholdValue *float64        `json:"threshold_value"`
	AccessRoles    string          `json:"access_roles,omitempty"`
}

var (
	ErrMissingTenant    = errors.New("event missing tenant_id")
	ErrMissingVehicle   = errors.New("event missing vehicle_id")
	ErrMissingTimestamp = errors.New("event missing ts")
)

// DecodeEvent parses and validates one raw stream payload. A non-nil error
// means this payload must be skipped, not that the stream is broken.
func DecodeEvent(payload []byte) (*TelemetryEvent, error) {
	var e TelemetryEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if e.TenantID == "" {
		return nil, ErrMissingTenant
	}
	if e.VehicleID == "" {
		return nil, ErrMissingVehicle
	}
	if e.Timestamp.IsZero() {
		return nil, ErrMissingTimestamp
	}
	return &e, nil
}
