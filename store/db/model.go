package db

import (
	"time"

	"github.com/kirsrus/safetywatch/model"
)

type (
	// GormModelUnscoped gorm.Model without soft deletion
	GormModelUnscoped struct {
		ID        int `gorm:"primaryKey"`
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// User login of an admin or a worker
	User struct {
		GormModelUnscoped
		Username     string `gorm:"uniqueIndex"`
		Role         string
		WorkerID     string `gorm:"index"`
		PasswordHash string
	}
)

// TableName table name
func (User) TableName() string {
	return "users"
}

// ToUser maps the row to model.User
func (m User) ToUser() model.User {
	return model.User{
		Username:     m.Username,
		Role:         model.Role(m.Role),
		WorkerID:     m.WorkerID,
		PasswordHash: m.PasswordHash,
	}
}

type (
	// Worker roster entry
	Worker struct {
		GormModelUnscoped
		WorkerID string `gorm:"uniqueIndex"`
		Name     string
		Zone     string
	}
)

// TableName table name
func (Worker) TableName() string {
	return "workers"
}

// ToWorkerInfo maps the row to model.WorkerInfo
func (m Worker) ToWorkerInfo() model.WorkerInfo {
	return model.WorkerInfo{
		WorkerID: m.WorkerID,
		Name:     m.Name,
		Zone:     m.Zone,
	}
}

type (
	// Reading classified sensor reading
	Reading struct {
		GormModelUnscoped
		WorkerID    string    `gorm:"index"`
		Timestamp   time.Time `gorm:"index"`
		HeartRate   float64
		SpO2        float64
		Temperature float64
		Gas         float64
		Fatigue     int
		Status      string
		RiskScore   int
	}
)

// TableName table name
func (Reading) TableName() string {
	return "readings"
}

// FromReading fills the row from model.Reading
func (m *Reading) FromReading(r model.Reading) {
	*m = Reading{
		WorkerID:    r.WorkerID,
		Timestamp:   r.Timestamp,
		HeartRate:   r.HeartRate,
		SpO2:        r.SpO2,
		Temperature: r.Temperature,
		Gas:         r.Gas,
		Fatigue:     int(r.Fatigue),
		Status:      string(r.Status),
		RiskScore:   r.RiskScore,
	}
}

// ToReading maps the row to model.Reading
func (m Reading) ToReading() model.Reading {
	return model.Reading{
		WorkerID:    m.WorkerID,
		Timestamp:   m.Timestamp,
		HeartRate:   m.HeartRate,
		SpO2:        m.SpO2,
		Temperature: m.Temperature,
		Gas:         m.Gas,
		Fatigue:     model.Fatigue(m.Fatigue),
		Status:      model.Status(m.Status),
		RiskScore:   m.RiskScore,
	}
}

type (
	// Alert audit copy of an alert, one row per alert id
	Alert struct {
		GormModelUnscoped
		AlertID        uint64 `gorm:"uniqueIndex"`
		WorkerID       string `gorm:"index"`
		Type           string
		Reason         string
		Priority       string
		Severity       string
		Timestamp      time.Time `gorm:"index"`
		Acknowledged   bool
		AcknowledgedBy string
		AcknowledgedAt *time.Time
		Resolved       bool
		ResolvedAt     *time.Time
		Escalation     bool
		EscalatedAt    *time.Time
	}
)

// TableName table name
func (Alert) TableName() string {
	return "alerts"
}

// FromAlert fills the row from model.Alert
func (m *Alert) FromAlert(a model.Alert) {
	*m = Alert{
		AlertID:        a.ID,
		WorkerID:       a.WorkerID,
		Type:           string(a.Type),
		Reason:         a.Reason,
		Priority:       string(a.Priority),
		Severity:       string(a.Severity),
		Timestamp:      a.Timestamp,
		Acknowledged:   a.Acknowledged,
		AcknowledgedBy: a.AcknowledgedBy,
		AcknowledgedAt: a.AcknowledgedAt,
		Resolved:       a.Resolved,
		ResolvedAt:     a.ResolvedAt,
		Escalation:     a.Escalation,
		EscalatedAt:    a.EscalatedAt,
	}
}

// ToAlert maps the row to model.Alert
func (m Alert) ToAlert() model.Alert {
	return model.Alert{
		ID:             m.AlertID,
		WorkerID:       m.WorkerID,
		Type:           model.AlertType(m.Type),
		Reason:         m.Reason,
		Priority:       model.Priority(m.Priority),
		Severity:       model.Status(m.Severity),
		Timestamp:      m.Timestamp,
		Acknowledged:   m.Acknowledged,
		AcknowledgedBy: m.AcknowledgedBy,
		AcknowledgedAt: m.AcknowledgedAt,
		Resolved:       m.Resolved,
		ResolvedAt:     m.ResolvedAt,
		Escalation:     m.Escalation,
		EscalatedAt:    m.EscalatedAt,
	}
}

// Mutable columns of an alert
func (m Alert) updates() map[string]interface{} {
	return map[string]interface{}{
		"priority":        m.Priority,
		"acknowledged":    m.Acknowledged,
		"acknowledged_by": m.AcknowledgedBy,
		"acknowledged_at": m.AcknowledgedAt,
		"resolved":        m.Resolved,
		"resolved_at":     m.ResolvedAt,
		"escalation":      m.Escalation,
		"escalated_at":    m.EscalatedAt,
	}
}

type (
	// Message audit copy of a worker message, one row per message id. Acknowledged messages stay
	Message struct {
		GormModelUnscoped
		MessageID      uint64 `gorm:"uniqueIndex"`
		WorkerID       string `gorm:"index"`
		FromRole       string
		Text           string
		Command        string
		Delivered      bool
		Acknowledged   bool
		AcknowledgedAt *time.Time
		Timestamp      time.Time
	}
)

// TableName table name
func (Message) TableName() string {
	return "messages"
}

// FromMessage fills the row from model.Message
func (m *Message) FromMessage(msg model.Message) {
	*m = Message{
		MessageID:      msg.ID,
		WorkerID:       msg.WorkerID,
		FromRole:       string(msg.FromRole),
		Text:           msg.Text,
		Command:        msg.Command,
		Delivered:      msg.Delivered,
		Acknowledged:   msg.Acknowledged,
		AcknowledgedAt: msg.AcknowledgedAt,
		Timestamp:      msg.Timestamp,
	}
}

// Mutable columns of a message
func (m Message) updates() map[string]interface{} {
	return map[string]interface{}{
		"delivered":       m.Delivered,
		"acknowledged":    m.Acknowledged,
		"acknowledged_at": m.AcknowledgedAt,
	}
}
