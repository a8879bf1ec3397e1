package worker

import (
	"io/ioutil"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/kirsrus/safetywatch/controller"
	"github.com/kirsrus/safetywatch/model"
	"github.com/kirsrus/safetywatch/store"
)

const (
	defaultHistorySize       = 100
	defaultInactivityTimeout = 45 * time.Second

	// Readings of the history passed to the classifier
	classifierHistory = 5

	overrideReason   = "unresolved emergency alert"
	inactivityReason = "No recent activity, possible unconsciousness"
	emergencyReason  = "Manual emergency button pressed"
	hazardReason     = "Hazard reported: "
)

// Table authoritative state of all workers. Built with NewTable.
// Every worker has its own lock: readings of one worker are serialized while different workers
// proceed in parallel. The table lock only guards membership
type Table struct {
	log *logrus.Entry

	classifierCtl controller.ClassifierCtl
	alertCtl      controller.AlertCtl
	audit         store.AuditStore
	now           func() time.Time

	historySize       int
	readingsPerSecond int
	inactivityTimeout time.Duration

	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu      sync.Mutex
	state   model.WorkerState
	history *history
	// Nil when readings are not limited
	limiter *rate.Limiter
	// An inactivity alert was raised since the last reading
	inactive bool
}

// ConfigTable configuration of Table
type ConfigTable struct {
	Log *logrus.Logger
	// Readings kept per worker
	HistorySize int
	// Readings accepted per worker per second, 0 or less disables the limit
	ReadingsPerSecond int
	// Silence of an online worker before an inactivity emergency
	InactivityTimeout time.Duration
	// Clock, time.Now when nil
	Now func() time.Time
}

// NewTable constructor of Table. audit is optional
func NewTable(classifierCtl controller.ClassifierCtl, alertCtl controller.AlertCtl, audit store.AuditStore, config *ConfigTable) (*Table, error) {
	if config == nil {
		return nil, errors.New("config is not set")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if classifierCtl == nil {
		return nil, errors.New("classifierCtl is not set")
	}
	if alertCtl == nil {
		return nil, errors.New("alertCtl is not set")
	}

	table := Table{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "worker",
			"scope":  "controller",
		}),
		classifierCtl: classifierCtl,
		alertCtl:      alertCtl,
		audit:         audit,
		now:           time.Now,

		historySize:       defaultHistorySize,
		readingsPerSecond: config.ReadingsPerSecond,
		inactivityTimeout: defaultInactivityTimeout,

		entries: make(map[string]*entry),
	}
	if config.Now != nil {
		table.now = config.Now
	}
	if config.HistorySize > 0 {
		table.historySize = config.HistorySize
	}
	if config.InactivityTimeout > 0 {
		table.inactivityTimeout = config.InactivityTimeout
	}

	return &table, nil
}

// Register adds the worker in the SAFE state. A known worker only gets its name and zone updated
func (m *Table) Register(info model.WorkerInfo) model.WorkerState {
	zone := model.NormalizeZone(info.Zone)

	m.mu.Lock()
	e, ok := m.entries[info.WorkerID]
	if !ok {
		e = &entry{
			state: model.WorkerState{
				WorkerID: info.WorkerID,
				Name:     info.Name,
				Zone:     zone,
				Status:   model.StatusSafe,
			},
			history: newHistory(m.historySize),
			limiter: newLimiter(m.readingsPerSecond),
		}
		m.entries[info.WorkerID] = e
	}
	m.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if ok {
		e.state.Name = info.Name
		e.state.Zone = zone
	} else {
		m.log.Infof("worker %s registered in zone %s", info.WorkerID, zone)
	}
	return e.snapshot()
}

// SetOnline marks the worker logged in or out
func (m *Table) SetOnline(workerID string, online bool) error {
	e, err := m.entry(workerID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Online = online
	if online {
		e.state.LastSeen = m.now()
		e.inactive = false
	}
	return nil
}

// Touch records a poll of the worker
func (m *Table) Touch(workerID string) error {
	e, err := m.entry(workerID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.LastSeen = m.now()
	return nil
}

// Ingest stores and classifies a reading of a logged in worker and evaluates the transition.
// Holding the worker lock for the whole call keeps history, state and alerts of one worker in
// arrival order. The server clock stamps the reading
func (m *Table) Ingest(workerID string, reading model.Reading) (*controller.IngestResult, error) {
	e, err := m.entry(workerID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.Online {
		return nil, errors.Unauthorizedf("worker %s is not logged in", workerID)
	}

	now := m.now()
	if !e.allow(now) {
		return nil, controller.ErrRateLimited
	}

	reading.WorkerID = workerID
	reading.Timestamp = now
	if e.state.Latest != nil && !now.After(e.state.Latest.Timestamp) {
		reading.Timestamp = e.state.Latest.Timestamp.Add(time.Microsecond)
	}

	assessment := m.classifierCtl.Classify(reading, e.state.Zone, e.history.recent(classifierHistory))
	if m.alertCtl.HasUnresolved(workerID, model.StatusEmergency) && assessment.Status != model.StatusEmergency {
		assessment.Status = model.StatusEmergency
		assessment.RiskScore = max(assessment.RiskScore, 90)
		assessment.Overridden = true
		assessment.Reasons = append(assessment.Reasons, overrideReason)
	}
	reading.Status = assessment.Status
	reading.RiskScore = assessment.RiskScore

	e.history.add(reading)
	oldStatus := e.state.Status
	latest := reading
	e.state.Latest = &latest
	e.state.Status = assessment.Status
	e.state.RiskScore = assessment.RiskScore
	e.state.LastUpdate = reading.Timestamp
	e.state.LastSeen = now
	e.inactive = false

	alert := m.alertCtl.EvaluateTransition(workerID, oldStatus, assessment.Status, assessment.RiskScore, strings.Join(assessment.Reasons, "; "))

	if m.audit != nil {
		if err := m.audit.SaveReading(reading); err != nil {
			m.log.Errorf("audit of reading of %s: %s", workerID, err)
		}
	}
	if oldStatus != assessment.Status {
		m.log.Infof("worker %s: %s -> %s, risk %d", workerID, oldStatus, assessment.Status, assessment.RiskScore)
	}

	return &controller.IngestResult{
		State:      e.snapshot(),
		Assessment: assessment,
		Alert:      alert,
	}, nil
}

// ReportHazard raises the worker to at least WARNING and creates a HAZARD alert. Does not need a
// session so that a hub can report for the worker
func (m *Table) ReportHazard(workerID string, hazard model.HazardType) (model.WorkerState, model.Alert, error) {
	if !hazard.IsValid() {
		return model.WorkerState{}, model.Alert{}, errors.NotValidf("hazard type %q", hazard)
	}
	e, err := m.entry(workerID)
	if err != nil {
		return model.WorkerState{}, model.Alert{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	m.raiseState(e, model.StatusWarning, 70)
	alert := m.alertCtl.Raise(workerID, model.AlertHazard, model.StatusWarning, model.PriorityHigh, hazardReason+string(hazard))
	return e.snapshot(), alert, nil
}

// ReportEmergency panic button: the worker becomes EMERGENCY with a CRITICAL alert that keeps the
// status until resolved
func (m *Table) ReportEmergency(workerID string) (model.WorkerState, model.Alert, error) {
	e, err := m.entry(workerID)
	if err != nil {
		return model.WorkerState{}, model.Alert{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	m.raiseState(e, model.StatusEmergency, 90)
	alert := m.alertCtl.Raise(workerID, model.AlertEmergency, model.StatusEmergency, model.PriorityCritical, emergencyReason)
	return e.snapshot(), alert, nil
}

// CheckInactivity raises an EMERGENCY alert for every online worker that sent readings before and
// has been silent longer than the inactivity timeout. Once per silence
func (m *Table) CheckInactivity() []model.Alert {
	now := m.now()
	res := make([]model.Alert, 0)
	for _, e := range m.snapshot() {
		e.mu.Lock()
		if e.state.Online && e.state.Latest != nil && !e.inactive &&
			now.Sub(e.state.LastSeen) > m.inactivityTimeout &&
			!m.alertCtl.HasUnresolved(e.state.WorkerID, model.StatusEmergency) {
			e.inactive = true
			m.raiseState(e, model.StatusEmergency, 90)
			alert := m.alertCtl.Raise(e.state.WorkerID, model.AlertEmergency, model.StatusEmergency, model.PriorityCritical, inactivityReason)
			m.log.Warnf("worker %s silent since %s", e.state.WorkerID, e.state.LastSeen.Format(time.RFC3339))
			res = append(res, alert)
		}
		e.mu.Unlock()
	}
	return res
}

// State current state of the worker
func (m *Table) State(workerID string) (model.WorkerState, error) {
	e, err := m.entry(workerID)
	if err != nil {
		return model.WorkerState{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot(), nil
}

// States of all workers ordered by worker id. Each state is consistent on its own
func (m *Table) States() []model.WorkerState {
	entries := m.snapshot()
	res := make([]model.WorkerState, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		res = append(res, e.snapshot())
		e.mu.Unlock()
	}
	sort.Slice(res, func(i, j int) bool { return res[i].WorkerID < res[j].WorkerID })
	return res
}

// History most recent limit readings in chronological order, limit <= 0 means all kept
func (m *Table) History(workerID string, limit int) ([]model.Reading, error) {
	e, err := m.entry(workerID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.recent(limit), nil
}

// Must be called with the entry locked
func (m *Table) raiseState(e *entry, status model.Status, minRisk int) {
	now := m.now()
	old := e.state.Status
	e.state.Status = e.state.Status.Max(status)
	e.state.RiskScore = max(e.state.RiskScore, minRisk)
	e.state.LastUpdate = now
	if old != e.state.Status {
		m.log.Infof("worker %s: %s -> %s by report", e.state.WorkerID, old, e.state.Status)
	}
}

func (m *Table) entry(workerID string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[workerID]
	if !ok {
		return nil, errors.NotFoundf("worker %s", workerID)
	}
	return e, nil
}

func (m *Table) snapshot() []*entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		res = append(res, e)
	}
	return res
}

// Must be called with the entry locked
func (e *entry) snapshot() model.WorkerState {
	res := e.state
	if e.state.Latest != nil {
		latest := *e.state.Latest
		res.Latest = &latest
	}
	return res
}

// Token bucket of perSecond readings refilled every second
func newLimiter(perSecond int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), perSecond)
}

func (e *entry) allow(now time.Time) bool {
	if e.limiter == nil {
		return true
	}
	return e.limiter.AllowN(now, 1)
}
