package store

import (
	"time"

	"github.com/kirsrus/safetywatch/model"
)

// UserStore credentials of admins and workers
//go:generate mockery --dir . --name UserStore --output ./mocks
type UserStore interface {
	// User by login name. Missing users are checked through IsNotFound
	User(username string) (*model.User, error)
}

// AuditStore durable trail of readings, alerts and messages. The in-memory engine stays
// authoritative, the trail survives restarts
//go:generate mockery --dir . --name AuditStore --output ./mocks
type AuditStore interface {
	// Appends a classified reading
	SaveReading(reading model.Reading) error
	// Inserts or updates an alert by its id
	SaveAlert(alert model.Alert) error
	// Inserts or updates a message by its id
	SaveMessage(message model.Message) error
}

// ReportStore queries for the daily report
//go:generate mockery --dir . --name ReportStore --output ./mocks
type ReportStore interface {
	// Readings with from <= timestamp < to ordered by worker and time
	ReadingsBetween(from, to time.Time) ([]model.Reading, error)
	// Alerts raised with from <= timestamp < to ordered by time
	AlertsBetween(from, to time.Time) ([]model.Alert, error)
}

// DbStore repository of the database
//go:generate mockery --dir . --name DbStore --output ./mocks
type DbStore interface {
	UserStore
	AuditStore
	ReportStore

	// Checks that err means the records were not found
	IsNotFound(err error) bool

	// Registered workers ordered by worker id
	Workers() ([]model.WorkerInfo, error)
	// Registers a worker and its login. An empty pin keeps the stored one.
	// Returns true when the worker was added
	SetWorker(info model.WorkerInfo, pin string) (bool, error)
	// Creates or updates the admin login
	SetAdmin(username, password string) error

	// Highest stored alert and message ids, counters continue from them after a restart
	LastIDs() (alertID uint64, messageID uint64, err error)

	// Removes readings, resolved alerts and acknowledged messages older than days days
	Clean(days int) error
}
