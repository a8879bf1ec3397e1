package alert

import (
	"io/ioutil"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/safetywatch/model"
	"github.com/kirsrus/safetywatch/service"
	"github.com/kirsrus/safetywatch/store"
)

const (
	defaultEscalationWindow  = 30 * time.Second
	defaultResolvedRetention = 5 * time.Minute
)

// Manager alert lifecycle of all workers. Built with NewManager.
// Alerts of one worker live in a bucket guarded by its own mutex, so workers never wait on each other.
// Ids come from a single atomic counter
type Manager struct {
	log *logrus.Entry

	audit  store.AuditStore
	notify service.NotifySvc
	now    func() time.Time

	escalationWindow  time.Duration
	resolvedRetention time.Duration

	lastID  atomic.Uint64
	mu      sync.RWMutex
	buckets map[string]*bucket
	// alert id -> worker id
	index sync.Map
}

type bucket struct {
	mu     sync.Mutex
	alerts []*model.Alert
}

// ConfigManager configuration of Manager
type ConfigManager struct {
	Log *logrus.Logger
	// Age after which an open unacknowledged alert is escalated
	EscalationWindow time.Duration
	// How long resolved alerts stay in memory
	ResolvedRetention time.Duration
	// Ids continue after this one
	LastID uint64
	// Clock, time.Now when nil
	Now func() time.Time
}

// NewManager constructor of Manager. audit and notify are optional
func NewManager(audit store.AuditStore, notify service.NotifySvc, config *ConfigManager) (*Manager, error) {
	if config == nil {
		return nil, errors.New("config is not set")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}

	manager := Manager{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "alert",
			"scope":  "controller",
		}),
		audit:  audit,
		notify: notify,
		now:    time.Now,

		escalationWindow:  defaultEscalationWindow,
		resolvedRetention: defaultResolvedRetention,

		buckets: make(map[string]*bucket),
	}
	if config.Now != nil {
		manager.now = config.Now
	}
	if config.EscalationWindow > 0 {
		manager.escalationWindow = config.EscalationWindow
	}
	if config.ResolvedRetention > 0 {
		manager.resolvedRetention = config.ResolvedRetention
	}
	manager.lastID.Store(config.LastID)

	return &manager, nil
}

// EvaluateTransition creates a VITALS alert on an upward transition of the status unless the worker
// already has an unresolved alert of equal or higher severity. Downward transitions resolve nothing
func (m *Manager) EvaluateTransition(workerID string, oldStatus, newStatus model.Status, riskScore int, reason string) *model.Alert {
	if newStatus.Level() <= oldStatus.Level() || newStatus.Level() == 0 {
		return nil
	}

	b := m.bucket(workerID)
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.hasUnresolved(newStatus) {
		m.log.Debugf("transition %s -> %s of %s suppressed by an unresolved alert", oldStatus, newStatus, workerID)
		return nil
	}

	if reason == "" {
		reason = "status changed to " + string(newStatus)
	}
	alert := m.create(b, workerID, model.AlertVitals, newStatus, model.PriorityFor(newStatus), reason)
	m.log.Infof("vitals alert %d for %s: %s -> %s, risk %d", alert.ID, workerID, oldStatus, newStatus, riskScore)
	return &alert
}

// Raise creates an alert without deduplication. Used for hazards, panic buttons, inactivity and
// admin actions
func (m *Manager) Raise(workerID string, alertType model.AlertType, severity model.Status, priority model.Priority, reason string) model.Alert {
	b := m.bucket(workerID)
	b.mu.Lock()
	defer b.mu.Unlock()

	alert := m.create(b, workerID, alertType, severity, priority, reason)
	m.log.Infof("%s alert %d for %s: %s", alertType, alert.ID, workerID, reason)
	return alert
}

// HasUnresolved checks for an unresolved alert of the worker with at least the given severity
func (m *Manager) HasUnresolved(workerID string, severity model.Status) bool {
	b, ok := m.lookup(workerID)
	if !ok {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hasUnresolved(severity)
}

// Acknowledge marks an open alert acknowledged by the admin. Repeated calls are no-ops.
// Unknown and resolved alerts give NotFound
func (m *Manager) Acknowledge(id uint64, by string) error {
	b, alert, err := m.find(id)
	if err != nil {
		return err
	}
	defer b.mu.Unlock()

	if alert.Resolved {
		return errors.NotFoundf("open alert %d", id)
	}
	if alert.Acknowledged {
		return nil
	}
	now := m.now()
	alert.Acknowledged = true
	alert.AcknowledgedBy = by
	alert.AcknowledgedAt = &now
	m.save(*alert)
	m.log.Infof("alert %d acknowledged by %s", id, by)
	return nil
}

// Resolve closes the alert from any non-terminal state. Resolving a resolved alert is a no-op
func (m *Manager) Resolve(id uint64) error {
	b, alert, err := m.find(id)
	if err != nil {
		return err
	}
	defer b.mu.Unlock()

	if alert.Resolved {
		return nil
	}
	now := m.now()
	alert.Resolved = true
	alert.ResolvedAt = &now
	alert.Escalation = false
	m.save(*alert)
	m.log.Infof("alert %d resolved", id)
	return nil
}

// Escalate flags every open unacknowledged alert older than the escalation window and raises
// its priority. An alert escalates at most once
func (m *Manager) Escalate() []model.Alert {
	now := m.now()
	escalated := make([]model.Alert, 0)

	for _, b := range m.snapshot() {
		b.mu.Lock()
		for _, a := range b.alerts {
			if a.State() != model.AlertOpen || a.Escalation || now.Sub(a.Timestamp) < m.escalationWindow {
				continue
			}
			at := now
			a.Escalation = true
			a.EscalatedAt = &at
			a.Priority = a.Priority.Raise()
			m.save(*a)
			escalated = append(escalated, *a)
		}
		b.mu.Unlock()
	}

	for _, a := range escalated {
		m.log.Warnf("alert %d of %s escalated to %s", a.ID, a.WorkerID, a.Priority)
		if m.notify != nil {
			go func(a model.Alert) {
				if err := m.notify.AlertEscalated(a); err != nil {
					m.log.Errorf("notification of alert %d: %s", a.ID, err)
				}
			}(a)
		}
	}
	return escalated
}

// Prune drops resolved alerts older than the retention window. They remain in the audit trail
func (m *Manager) Prune() int {
	limit := m.now().Add(-m.resolvedRetention)
	n := 0
	for _, b := range m.snapshot() {
		b.mu.Lock()
		kept := b.alerts[:0]
		for _, a := range b.alerts {
			if a.Resolved && a.ResolvedAt != nil && a.ResolvedAt.Before(limit) {
				m.index.Delete(a.ID)
				n++
				continue
			}
			kept = append(kept, a)
		}
		for i := len(kept); i < len(b.alerts); i++ {
			b.alerts[i] = nil
		}
		b.alerts = kept
		b.mu.Unlock()
	}
	if n != 0 {
		m.log.Debugf("pruned %d resolved alerts", n)
	}
	return n
}

// Get alert by id
func (m *Manager) Get(id uint64) (model.Alert, error) {
	b, alert, err := m.find(id)
	if err != nil {
		return model.Alert{}, err
	}
	defer b.mu.Unlock()
	return *alert, nil
}

// ListActive alerts in memory: unresolved first, then priority descending, then oldest first
func (m *Manager) ListActive() []model.Alert {
	res := make([]model.Alert, 0)
	for _, b := range m.snapshot() {
		b.mu.Lock()
		for _, a := range b.alerts {
			res = append(res, *a)
		}
		b.mu.Unlock()
	}
	sort.Slice(res, func(i, j int) bool {
		a, b := res[i], res[j]
		if a.Resolved != b.Resolved {
			return !a.Resolved
		}
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.ID < b.ID
	})
	return res
}

// Must be called with the bucket locked
func (m *Manager) create(b *bucket, workerID string, alertType model.AlertType, severity model.Status, priority model.Priority, reason string) model.Alert {
	alert := &model.Alert{
		ID:        m.lastID.Add(1),
		WorkerID:  workerID,
		Type:      alertType,
		Reason:    reason,
		Priority:  priority,
		Severity:  severity,
		Timestamp: m.now(),
	}
	b.alerts = append(b.alerts, alert)
	m.index.Store(alert.ID, workerID)
	m.save(*alert)
	return *alert
}

// Writes the alert to the audit trail. Failures are logged, the in-memory state stays authoritative
func (m *Manager) save(alert model.Alert) {
	if m.audit == nil {
		return
	}
	if err := m.audit.SaveAlert(alert); err != nil {
		m.log.Errorf("audit of alert %d: %s", alert.ID, err)
	}
}

// Returns the alert with its bucket locked. The caller unlocks
func (m *Manager) find(id uint64) (*bucket, *model.Alert, error) {
	workerID, ok := m.index.Load(id)
	if !ok {
		return nil, nil, errors.NotFoundf("alert %d", id)
	}
	b, ok := m.lookup(workerID.(string))
	if !ok {
		return nil, nil, errors.NotFoundf("alert %d", id)
	}
	b.mu.Lock()
	for _, a := range b.alerts {
		if a.ID == id {
			return b, a, nil
		}
	}
	b.mu.Unlock()
	return nil, nil, errors.NotFoundf("alert %d", id)
}

func (m *Manager) lookup(workerID string) (*bucket, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.buckets[workerID]
	return b, ok
}

func (m *Manager) bucket(workerID string) *bucket {
	if b, ok := m.lookup(workerID); ok {
		return b
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[workerID]
	if !ok {
		b = &bucket{}
		m.buckets[workerID] = b
	}
	return b
}

func (m *Manager) snapshot() []*bucket {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]*bucket, 0, len(m.buckets))
	for _, b := range m.buckets {
		res = append(res, b)
	}
	return res
}

func (b *bucket) hasUnresolved(severity model.Status) bool {
	for _, a := range b.alerts {
		if !a.Resolved && a.Severity.Level() >= severity.Level() {
			return true
		}
	}
	return false
}
