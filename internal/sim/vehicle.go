package sim

import (
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/bscolinos/ford-fleet-streaming/internal/domain"
)

// Physical bounds for the simulated fleet. Position is clamped to a
// continental US bounding box.
const (
	MinLat = 25.0
	MaxLat = 49.0
	MinLon = -125.0
	MaxLon = -70.0

	MaxSpeedMph = 85.0
	MinFuelPct  = 5.0

	normalTempMin = 170.0
	normalTempMax = 220.0
	faultTempMin  = 220.0
	faultTempMax  = 250.0

	normalBatteryMin = 11.5
	normalBatteryMax = 14.8
	faultBatteryMin  = 10.5
	faultBatteryMax  = 11.5

	lowFuelThreshold = 15.0
)

// Diagnostic trouble codes attached on the fault-injection path.
var dtcCodes = []string{
	"P0171", // system too lean
	"P0300", // random misfire
	"P0420", // catalyst efficiency
	"P0442", // EVAP leak
	"P0500", // vehicle speed sensor
	"P0700", // transmission control
	"P0562", // system voltage low
	"P0128", // coolant thermostat
}

// Simulator owns one vehicle's continuous physical state and produces one
// telemetry event per Advance call. It has no failure mode.
type Simulator struct {
	VehicleID   string
	TenantID    string
	RegionID    string
	TerritoryID string

	accessRoles string
	anomalyProb float64
	rng         *rand.Rand

	lat, lon    float64
	heading     float64
	speed       float64
	engineTemp  float64
	fuelPct     float64
	batteryV    float64
	odometer    float64
	rpm         int
	throttlePct float64
}

// NewSimulator seeds the vehicle near its territory's base coordinates with
// bounded random jitter.
func NewSimulator(vehicleID, tenantID, regionID, territoryID string, baseLat, baseLon, anomalyProb float64, rng *rand.Rand) *Simulator {
	return &Simulator{
		VehicleID:   vehicleID,
		TenantID:    tenantID,
		RegionID:    regionID,
		TerritoryID: territoryID,
		accessRoles: accessRolesTag(regionID, territoryID),
		anomalyProb: anomalyProb,
		rng:         rng,
		lat:         baseLat + rng.Float64() - 0.5,
		lon:         baseLon + rng.Float64() - 0.5,
		heading:     rng.Float64() * 360,
		speed:       rng.Float64() * 45,
		engineTemp:  180 + rng.Float64()*30,
		fuelPct:     40 + rng.Float64()*60,
		batteryV:    12.4 + rng.Float64()*2.0,
		odometer:    float64(10000 + rng.Intn(90000)),
		rpm:         800 + rng.Intn(1700),
		throttlePct: rng.Float64() * 50,
	}
}

// accessRolesTag matches the row-level-security tag format the API layer
// filters on: ",territory_x,region_y,admin_all,".
func accessRolesTag(regionID, territoryID string) string {
	return "," + strings.ToLower("territory_"+territoryID) + "," +
		strings.ToLower("region_"+regionID) + ",admin_all,"
}

// Advance moves the vehicle's physical state one step and returns the
// resulting event. Shape is deterministic, magnitudes are randomized; with
// probability anomalyProb the temperature, battery, or DTC paths jump into
// their designed fault bands.
func (s *Simulator) Advance(now time.Time) *domain.TelemetryEvent {
	// Position drifts along the current heading, scaled by speed
	// (roughly degrees per second at highway speed).
	speedFactor := s.speed / 3600 / 69
	s.lat += speedFactor * s.uniform(-0.5, 1.5) * s.sign()
	s.lon += speedFactor * s.uniform(-0.5, 1.5) * s.sign()
	s.lat = clamp(s.lat, MinLat, MaxLat)
	s.lon = clamp(s.lon, MinLon, MaxLon)

	s.heading = math.Mod(s.heading+s.uniform(-15, 15)+360, 360)
	s.speed = clamp(s.speed+s.uniform(-5, 5), 0, MaxSpeedMph)

	if s.rng.Float64() < s.anomalyProb {
		s.engineTemp = s.uniform(faultTempMin, faultTempMax)
	} else {
		s.engineTemp = clamp(s.engineTemp+s.uniform(-2, 2), normalTempMin, normalTempMax)
	}

	s.fuelPct = math.Max(MinFuelPct, s.fuelPct-s.rng.Float64()*0.1)
	if s.fuelPct < lowFuelThreshold && s.rng.Float64() > 0.8 {
		s.fuelPct = s.uniform(80, 100)
	}

	if s.rng.Float64() < s.anomalyProb {
		s.batteryV = s.uniform(faultBatteryMin, faultBatteryMax)
	} else {
		s.batteryV = clamp(s.batteryV+s.uniform(-0.1, 0.1), normalBatteryMin, normalBatteryMax)
	}

	s.odometer += float64(s.rng.Intn(3))

	// RPM and throttle follow speed with a little noise.
	s.rpm = int(clamp(800+(s.speed/MaxSpeedMph)*4000+s.uniform(-200, 200), 600, 6000))
	s.throttlePct = clamp(s.speed/MaxSpeedMph*100+s.uniform(-10, 10), 0, 100)

	dtc := ""
	if s.rng.Float64() < s.anomalyProb {
		dtc = dtcCodes[s.rng.Intn(len(dtcCodes))]
	}

	return &domain.TelemetryEvent{
		TenantID:       s.TenantID,
		VehicleID:      s.VehicleID,
		Timestamp:      domain.NewEventTime(now),
		RegionID:       s.RegionID,
		TerritoryID:    s.TerritoryID,
		Latitude:       round(s.lat, 7),
		Longitude:      round(s.lon, 7),
		SpeedMph:       round(s.speed, 2),
		EngineTempF:    round(s.engineTemp, 2),
		FuelPct:        round(s.fuelPct, 2),
		BatteryVoltage: round(s.batteryV, 2),
		OdometerMi:     s.odometer,
		DTCCode:        dtc,
		Heading:        round(s.heading, 2),
		RPM:            s.rpm,
		ThrottlePct:    round(s.throttlePct, 2),
		AccessRoles:    s.accessRoles,
	}
}

func (s *Simulator) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

func (s *Simulator) sign() float64 {
	if s.rng.Float64() > 0.5 {
		return 1
	}
	return -1
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
