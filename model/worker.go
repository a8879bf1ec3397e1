package model

import (
	"strings"
	"time"
)

// Zones with their sensitivity factors. A factor below 1 amplifies gas and SpO2 risk
const (
	ZoneNormal      = "NORMAL"
	ZoneChemical    = "CHEMICAL"
	ZoneMining      = "MINING"
	ZoneFireRescue  = "FIRE-RESCUE"
	DefaultZoneName = ZoneNormal
)

// DefaultZoneSensitivity sensitivity factors used when the configuration has none
func DefaultZoneSensitivity() map[string]float64 {
	return map[string]float64{
		ZoneNormal:     1.0,
		ZoneChemical:   0.7,
		ZoneMining:     0.8,
		ZoneFireRescue: 0.85,
	}
}

// NormalizeZone upper-cases the zone name, empty means NORMAL
func NormalizeZone(zone string) string {
	zone = strings.ToUpper(strings.TrimSpace(zone))
	if zone == "" {
		return DefaultZoneName
	}
	return zone
}

// WorkerInfo registration data of a worker
type WorkerInfo struct {
	WorkerID string `json:"worker_id" conform:"trim" validate:"required"`
	Name     string `json:"name" conform:"trim" validate:"required"`
	Zone     string `json:"zone" conform:"trim,upper"`
}

// WorkerState current view of one worker. Exactly one per worker id
type WorkerState struct {
	WorkerID   string    `json:"worker_id"`
	Name       string    `json:"name"`
	Zone       string    `json:"zone"`
	Status     Status    `json:"status"`
	RiskScore  int       `json:"risk_score"`
	Latest     *Reading  `json:"latest,omitempty"`
	LastUpdate time.Time `json:"last_update"`
	// Last reading or poll of the worker
	LastSeen time.Time `json:"last_seen"`
	// Worker has an open session
	Online bool `json:"online"`
}
