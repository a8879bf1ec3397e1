package controller

import (
	"github.com/juju/errors"

	"github.com/kirsrus/safetywatch/model"
)

// ErrRateLimited the worker sent more readings than allowed per second
var ErrRateLimited = errors.New("reading rate limit exceeded")

// IsRateLimited checks whether err is ErrRateLimited
func IsRateLimited(err error) bool {
	return err != nil && errors.Cause(err) == ErrRateLimited
}

// ClassifierCtl maps a reading and the recent history of the worker to a status and risk score
//go:generate mockery --dir . --name ClassifierCtl --output ./mocks
type ClassifierCtl interface {
	// Classify pure function of the reading, the worker zone and the stored history (oldest first)
	Classify(reading model.Reading, zone string, history []model.Reading) model.Assessment
}

// AlertCtl alert lifecycle: creation on status transitions and reports, acknowledgement,
// resolution and escalation
//go:generate mockery --dir . --name AlertCtl --output ./mocks
type AlertCtl interface {
	// Creates a VITALS alert on an upward transition unless an unresolved alert of equal or
	// higher severity exists for the worker. Returns nil when nothing was created
	EvaluateTransition(workerID string, oldStatus, newStatus model.Status, riskScore int, reason string) *model.Alert
	// Creates an alert unconditionally
	Raise(workerID string, alertType model.AlertType, severity model.Status, priority model.Priority, reason string) model.Alert
	// Checks for an unresolved alert of the worker with at least the given severity
	HasUnresolved(workerID string, severity model.Status) bool
	// Marks an open alert acknowledged. NotFound for unknown or resolved alerts
	Acknowledge(id uint64, by string) error
	// Resolves an alert from any non-terminal state. Idempotent
	Resolve(id uint64) error
	// Flags open alerts older than the escalation window. Returns the newly escalated ones
	Escalate() []model.Alert
	// Drops resolved alerts older than the retention window from memory
	Prune() int
	// Alert by id
	Get(id uint64) (model.Alert, error)
	// Unresolved first, then priority descending, then oldest first
	ListActive() []model.Alert
}

// ChannelCtl per worker queue of admin messages and commands
//go:generate mockery --dir . --name ChannelCtl --output ./mocks
type ChannelCtl interface {
	// Queues a message. A recognised action becomes the command of the message
	Send(workerID, text, action string, from model.Role) (model.Message, error)
	// Unacknowledged messages in creation order, marked delivered
	PollPending(workerID string) []model.Message
	// Removes the message from the pending queue, keeping the acknowledgement record
	Acknowledge(workerID string, id uint64) error
	// Acknowledgement records of the worker
	Acknowledged(workerID string) []model.Message
}

// IngestResult outcome of one accepted reading
type IngestResult struct {
	State      model.WorkerState
	Assessment model.Assessment
	// Alert created by the transition, nil if none
	Alert *model.Alert
}

// WorkerCtl authoritative table of worker states and histories
//go:generate mockery --dir . --name WorkerCtl --output ./mocks
type WorkerCtl interface {
	// Registers a worker or updates its name and zone
	Register(info model.WorkerInfo) model.WorkerState
	// Marks the worker logged in or out
	SetOnline(workerID string, online bool) error
	// Records worker activity (a poll)
	Touch(workerID string) error
	// Stores and classifies a reading, then evaluates alerts, atomically per worker
	Ingest(workerID string, reading model.Reading) (*IngestResult, error)
	// Hazard report: status at least WARNING and an unconditional HAZARD alert
	ReportHazard(workerID string, hazard model.HazardType) (model.WorkerState, model.Alert, error)
	// Panic button: status EMERGENCY and an unconditional EMERGENCY alert
	ReportEmergency(workerID string) (model.WorkerState, model.Alert, error)
	// Raises inactivity emergencies for silent online workers
	CheckInactivity() []model.Alert
	// Current state of a worker
	State(workerID string) (model.WorkerState, error)
	// States ordered by worker id
	States() []model.WorkerState
	// Most recent limit readings in chronological order, limit <= 0 means all
	History(workerID string, limit int) ([]model.Reading, error)
}

// FeedCtl fan-in of external telemetry feeds
//go:generate mockery --dir . --name FeedCtl --output ./mocks
type FeedCtl interface {
	// Waits for the next reading from any feed. Returns the context error on shutdown
	EmitReading() (*model.Reading, error)
}

// WorkerPoll answer to a poll of the worker client
type WorkerPoll struct {
	Status    model.Status `json:"status"`
	RiskScore int          `json:"risk_score"`
	// The client plays an alarm while the worker is not SAFE
	PlaySound bool            `json:"play_sound"`
	Messages  []model.Message `json:"messages"`
	// Readings of the last minutes in chronological order
	History []model.Reading `json:"history"`
}

// ReadingResult answer to a submitted reading
type ReadingResult struct {
	Status    model.Status `json:"status"`
	RiskScore int          `json:"risk_score"`
	PlaySound bool         `json:"play_sound"`
	// The client shows the warning banner
	Banner bool             `json:"banner"`
	Detail model.Assessment `json:"detail"`
}

// AdminSnapshot point-in-time view of the dashboard
type AdminSnapshot struct {
	Workers []model.WorkerState `json:"workers"`
	Alerts  []model.Alert       `json:"alerts"`
}

// GatewayCtl stateless facade composing the engine for the HTTP and feed adapters
//go:generate mockery --dir . --name GatewayCtl --output ./mocks
type GatewayCtl interface {
	// Registers a worker from the roster
	Register(info model.WorkerInfo) model.WorkerState
	// Marks the worker logged in or out
	SetOnline(workerID string, online bool) error
	// Current state of the worker
	Worker(workerID string) (model.WorkerState, error)

	// Status and pending messages of the worker. Counts as activity
	WorkerPoll(workerID string) (*WorkerPoll, error)
	// Ingests a reading of the worker
	SubmitReading(workerID string, reading model.Reading) (*ReadingResult, error)
	// Hazard report of the worker
	ReportHazard(workerID string, hazard model.HazardType) (*ReadingResult, error)
	// Panic button of the worker
	ReportEmergency(workerID string) (*ReadingResult, error)
	// Acknowledges a message of the worker
	AckMessage(workerID string, id uint64) error

	// Workers and alerts after an escalation sweep
	AdminSnapshot() AdminSnapshot
	// Most recent limit readings of the worker in chronological order
	WorkerHistory(workerID string, limit int) ([]model.Reading, error)
	// Latest reading of the worker. NotFound when there is none
	Latest(workerID string) (model.Reading, error)
	// Queues an admin message for an existing worker
	SendMessage(workerID, text, action string) (model.Message, error)
	// ALLOW, RESTRICT or STOP decision on a worker
	AdminAction(workerID string, action model.AdminAction, by string) (model.Message, error)
	// Acknowledges an alert on behalf of the admin
	AckAlert(id uint64, by string) error
	// Resolves an alert
	ResolveAlert(id uint64) error
}
