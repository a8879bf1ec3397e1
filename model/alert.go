package model

import "time"

// AlertType source of an alert
type AlertType string

const (
	AlertVitals    AlertType = "VITALS"
	AlertHazard    AlertType = "HAZARD"
	AlertEmergency AlertType = "EMERGENCY"
	AlertManual    AlertType = "MANUAL"
)

// Priority of an alert on the admin dashboard
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Rank numeric order of the priority
func (p Priority) Rank() int {
	switch p {
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	default:
		return 0
	}
}

// Raise next priority level, CRITICAL stays CRITICAL
func (p Priority) Raise() Priority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium:
		return PriorityHigh
	default:
		return PriorityCritical
	}
}

// PriorityFor default priority of a vitals alert with the given severity
func PriorityFor(severity Status) Priority {
	switch severity {
	case StatusEmergency:
		return PriorityHigh
	case StatusWarning:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// AlertState lifecycle stage: OPEN -> ACKNOWLEDGED -> RESOLVED, or OPEN -> RESOLVED
type AlertState string

const (
	AlertOpen         AlertState = "OPEN"
	AlertAcknowledged AlertState = "ACKNOWLEDGED"
	AlertResolved     AlertState = "RESOLVED"
)

// Alert safety relevant event requiring admin attention
type Alert struct {
	ID       uint64    `json:"id"`
	WorkerID string    `json:"worker_id"`
	Type     AlertType `json:"alert_type"`
	Reason   string    `json:"reason"`
	Priority Priority  `json:"priority"`
	// Worker status the alert stands for. Used for deduplication and the emergency override
	Severity       Status     `json:"severity"`
	Timestamp      time.Time  `json:"timestamp"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	Resolved       bool       `json:"resolved"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	Escalation     bool       `json:"escalation_flag"`
	EscalatedAt    *time.Time `json:"escalated_at,omitempty"`
}

// State lifecycle stage of the alert
func (m Alert) State() AlertState {
	switch {
	case m.Resolved:
		return AlertResolved
	case m.Acknowledged:
		return AlertAcknowledged
	default:
		return AlertOpen
	}
}

// HazardType environmental hazard a worker can report
type HazardType string

const (
	HazardGasLeak    HazardType = "GAS_LEAK"
	HazardFire       HazardType = "FIRE"
	HazardOxygenDrop HazardType = "OXYGEN_DROP"
	HazardHeatBurst  HazardType = "HEAT_BURST"
)

// IsValid the hazard type is one of the known ones
func (h HazardType) IsValid() bool {
	switch h {
	case HazardGasLeak, HazardFire, HazardOxygenDrop, HazardHeatBurst:
		return true
	}
	return false
}
