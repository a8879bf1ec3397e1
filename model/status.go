package model

// Status coarse safety classification of a worker
type Status string

const (
	StatusSafe      Status = "SAFE"
	StatusWarning   Status = "WARNING"
	StatusEmergency Status = "EMERGENCY"
)

// Level numeric severity of the status. Unknown values rank as SAFE
func (s Status) Level() int {
	switch s {
	case StatusWarning:
		return 1
	case StatusEmergency:
		return 2
	default:
		return 0
	}
}

// Max returns the more severe of two statuses
func (s Status) Max(o Status) Status {
	if o.Level() > s.Level() {
		return o
	}
	if s == "" {
		return StatusSafe
	}
	return s
}

// Assessment result of classifying one reading
type Assessment struct {
	Status    Status `json:"status"`
	RiskScore int    `json:"risk_score"`
	// Normalised per-parameter risk (0-100) contributing to RiskScore
	Components map[string]int `json:"components"`
	// Thresholds that decided the status
	Reasons []string `json:"reasons"`
	// Status was forced to EMERGENCY by an unresolved emergency alert
	Overridden bool `json:"overridden,omitempty"`
}
