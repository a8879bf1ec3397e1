package model

import (
	"strings"
	"time"
)

// Role author or holder of a session
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleSystem Role = "SYSTEM"
	RoleWorker Role = "WORKER"
)

// CommandStopWork directive the worker client renders as a blocking instruction
const CommandStopWork = "STOP WORK"

// ParseCommand recognises a machine-actionable command in an admin action
func ParseCommand(action string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(action)) {
	case CommandStopWork, "STOP", "STOP_WORK":
		return CommandStopWork, true
	}
	return "", false
}

// AdminAction quick operator decision on a worker
type AdminAction string

const (
	ActionAllow    AdminAction = "ALLOW"
	ActionRestrict AdminAction = "RESTRICT"
	ActionStop     AdminAction = "STOP"
)

// IsValid the action is one of the known ones
func (a AdminAction) IsValid() bool {
	switch a {
	case ActionAllow, ActionRestrict, ActionStop:
		return true
	}
	return false
}

// Message admin or system message queued for a worker
type Message struct {
	ID             uint64     `json:"id"`
	WorkerID       string     `json:"worker_id"`
	FromRole       Role       `json:"from_role"`
	Text           string     `json:"message"`
	Command        string     `json:"command,omitempty"`
	Delivered      bool       `json:"delivered"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
}
