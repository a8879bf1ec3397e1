package service

import (
	"context"
	"time"

	"github.com/kirsrus/safetywatch/model"
)

// WebSvc service of the HTTP interface
//go:generate mockery --dir . --name WebSvc --output ./mocks
type WebSvc interface {
	// Serves the static worker and admin clients
	Static(string)
	// Liveness check
	Health(string)
	// Login and logout routes
	Auth(string)
	// Routes of the worker client
	WorkerApi(string)
	// Routes of the admin dashboard
	AdminApi(string)
	// Starts listening. Blocks until the server stops
	Start() error
	// Stops the server
	Shutdown(ctx context.Context) error
}

// SessionSvc authentication and session table
//go:generate mockery --dir . --name SessionSvc --output ./mocks
type SessionSvc interface {
	// Checks the credentials of a user of the role and opens a session
	Login(role model.Role, username, password string) (model.Session, error)
	// Closes the session. Unknown tokens are ignored
	Logout(token string)
	// Session by token. Unauthorized when missing or expired
	Session(token string) (model.Session, error)
}

// TelemetrySvc a wearable feed. Holds the connection to its source
//go:generate mockery --dir . --name TelemetrySvc --output ./mocks
type TelemetrySvc interface {
	// Waits for the next reading of the feed
	EmitReading() (*model.Reading, error)
}

// NotifySvc out-of-band notification of escalated alerts
//go:generate mockery --dir . --name NotifySvc --output ./mocks
type NotifySvc interface {
	// Publishes an escalated alert
	AlertEscalated(alert model.Alert) error
}

// ReportSvc daily shift report
//go:generate mockery --dir . --name ReportSvc --output ./mocks
type ReportSvc interface {
	// Spreadsheet of the readings and alerts of the day containing date
	Daily(date time.Time) ([]byte, error)
}
