package detect

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/bscolinos/ford-fleet-streaming/internal/domain"
)

// Rule is one threshold check against a single metric field. Below inverts
// the comparison direction.
type Rule struct {
	Type      domain.AnomalyType
	Field     string
	Severity  domain.AnomalySeverity
	Threshold float64
	Below     bool
	Value     func(*domain.TelemetryEvent) float64
}

// DefaultRules is the fixed, ordered rule table. Every rule is evaluated for
// every event; multiple rules may fire independently.
var DefaultRules = []Rule{
	{
		Type:      domain.AnomalyHighEngineTemp,
		Field:     "engine_temp",
		Severity:  domain.SeverityCritical,
		Threshold: 220,
		Value:     func(e *domain.TelemetryEvent) float64 { return e.EngineTempF },
	},
	{
		Type:      domain.AnomalyLowBattery,
		Field:     "battery_v",
		Severity:  domain.SeverityWarning,
		Threshold: 11.5,
		Below:     true,
		Value:     func(e *domain.TelemetryEvent) float64 { return e.BatteryVoltage },
	},
	{
		Type:      domain.AnomalySpeeding,
		Field:     "speed",
		Severity:  domain.SeverityInfo,
		Threshold: 80,
		Value:     func(e *domain.TelemetryEvent) float64 { return e.SpeedMph },
	},
	{
		Type:      domain.AnomalyLowFuel,
		Field:     "fuel_pct",
		Severity:  domain.SeverityWarning,
		Threshold: 10,
		Below:     true,
		Value:     func(e *domain.TelemetryEvent) float64 { return e.FuelPct },
	},
}

// Detector evaluates the rule table per event. Stateless and side-effect
// free: there is no deduplication or hysteresis, so an event per crossing
// produces a record per crossing.
type Detector struct {
	rules []Rule

	// newID is swapped out in tests to make output comparable.
	newID func() string
}

func New() *Detector {
	return &Detector{rules: DefaultRules, newID: uuid.NewString}
}

// NewWithIDFunc builds a detector whose record ids come from idFunc.
func NewWithIDFunc(idFunc func() string) *Detector {
	return &Detector{rules: DefaultRules, newID: idFunc}
}

// Detect returns zero or more anomaly records for one event. The threshold
// rules are checked in table order; a diagnostic-code check runs last,
// independent of the table.
func (d *Detector) Detect(e *domain.TelemetryEvent) []*domain.AnomalyRecord {
	var out []*domain.AnomalyRecord

	for i := range d.rules {
		r := &d.rules[i]
		value := r.Value(e)

		triggered := value > r.Threshold
		if r.Below {
			triggered = value < r.Threshold
		}
		if !triggered {
			continue
		}

		direction := "above"
		if r.Below {
			direction = "below"
		}
		v, threshold := value, r.Threshold
		out = append(out, &domain.AnomalyRecord{
			AnomalyID:      d.newID(),
			VehicleID:      e.VehicleID,
			TenantID:       e.TenantID,
			RegionID:       e.RegionID,
			TerritoryID:    e.TerritoryID,
			DetectedAt:     e.Timestamp,
			AnomalyType:    r.Type,
			Severity:       r.Severity,
			Description:    fmt.Sprintf("%s %s threshold: %.2f vs %g", r.Field, direction, value, r.Threshold),
			MetricValue:    &v,
			ThresholdValue: &threshold,
			AccessRoles:    e.AccessRoles,
		})
	}

	if e.DTCCode != "" {
		out = append(out, &domain.AnomalyRecord{
			AnomalyID:   d.newID(),
			VehicleID:   e.VehicleID,
			TenantID:    e.TenantID,
			RegionID:    e.RegionID,
			TerritoryID: e.TerritoryID,
			DetectedAt:  e.Timestamp,
			AnomalyType: domain.AnomalyDTCPresent,
			Severity:    domain.SeverityWarning,
			Description: fmt.Sprintf("Diagnostic trouble code detected: %s", e.DTCCode),
			AccessRoles: e.AccessRoles,
		})
	}

	return out
}
