package sim

import (
	"fmt"
	"math/rand"
)

// Tenant is one isolated fleet customer with its own stream topic.
type Tenant struct {
	ID    string
	Name  string
	Topic string
}

var Tenants = []Tenant{
	{ID: "tenant_a", Name: "Acme Logistics", Topic: "tenant_a_telemetry"},
	{ID: "tenant_b", Name: "BlueStar Transport", Topic: "tenant_b_telemetry"},
}

// TopicForTenant returns the stream topic carrying a tenant's events.
func TopicForTenant(tenantID string) string {
	return tenantID + "_telemetry"
}

type territoryGroup struct {
	prefix      string
	regionID    string
	territoryID string
	baseLat     float64
	baseLon     float64
	count       int
}

// Per-tenant fleet layout: vehicles clustered around metro base coordinates.
var fleetLayout = map[string][]territoryGroup{
	"tenant_a": {
		{"v_a_w1_", "WEST", "WEST_1", 47.6062, -122.3321, 20},
		{"v_a_w2_", "WEST", "WEST_2", 33.4484, -112.0740, 20},
		{"v_a_e1_", "EAST", "EAST_1", 40.7128, -74.0060, 15},
		{"v_a_e2_", "EAST", "EAST_2", 28.5383, -81.3792, 20},
		{"v_a_c1_", "CENTRAL", "CENTRAL_1", 41.8781, -87.6298, 12},
		{"v_a_c2_", "CENTRAL", "CENTRAL_2", 39.0997, -94.5786, 13},
	},
	"tenant_b": {
		{"v_b_w1_", "WEST", "WEST_1", 47.6062, -122.3321, 15},
		{"v_b_w2_", "WEST", "WEST_2", 33.4484, -112.0740, 15},
		{"v_b_e1_", "EAST", "EAST_1", 40.7128, -74.0060, 15},
		{"v_b_e2_", "EAST", "EAST_2", 28.5383, -81.3792, 15},
		{"v_b_c1_", "CENTRAL", "CENTRAL_1", 41.8781, -87.6298, 10},
		{"v_b_c2_", "CENTRAL", "CENTRAL_2", 39.0997, -94.5786, 10},
	},
}

// BuildFleet constructs the simulators for one tenant.
func BuildFleet(tenantID string, anomalyProb float64, rng *rand.Rand) []*Simulator {
	var vehicles []*Simulator
	for _, g := range fleetLayout[tenantID] {
		for i := 1; i <= g.count; i++ {
			vehicleID := fmt.Sprintf("%s%03d", g.prefix, i)
			vehicles = append(vehicles, NewSimulator(
				vehicleID, tenantID, g.regionID, g.territoryID,
				g.baseLat, g.baseLon, anomalyProb, rng,
			))
		}
	}
	return vehicles
}
