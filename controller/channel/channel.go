package channel

import (
	"io/ioutil"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/safetywatch/controller"
	"github.com/kirsrus/safetywatch/model"
	"github.com/kirsrus/safetywatch/store"
)

// Acknowledgement records kept in memory per worker
const defaultAckLogSize = 500

// Channel per worker queues of admin messages and commands. Built with NewChannel.
// A message stays pending until the worker acknowledges it
type Channel struct {
	log *logrus.Entry

	alertCtl controller.AlertCtl
	audit    store.AuditStore
	now      func() time.Time

	ackLogSize int

	lastID atomic.Uint64
	mu     sync.RWMutex
	queues map[string]*queue
}

type queue struct {
	mu      sync.Mutex
	pending []*model.Message
	acked   []model.Message
}

// ConfigChannel configuration of Channel
type ConfigChannel struct {
	Log *logrus.Logger
	// Ids continue after this one
	LastID uint64
	// Acknowledgement records kept in memory per worker
	AckLogSize int
	// Clock, time.Now when nil
	Now func() time.Time
}

// NewChannel constructor of Channel. Commands are logged as MANUAL alerts through alertCtl.
// audit is optional
func NewChannel(alertCtl controller.AlertCtl, audit store.AuditStore, config *ConfigChannel) (*Channel, error) {
	if config == nil {
		return nil, errors.New("config is not set")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if alertCtl == nil {
		return nil, errors.New("alertCtl is not set")
	}

	channel := Channel{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "channel",
			"scope":  "controller",
		}),
		alertCtl:   alertCtl,
		audit:      audit,
		now:        time.Now,
		ackLogSize: defaultAckLogSize,
		queues:     make(map[string]*queue),
	}
	if config.Now != nil {
		channel.now = config.Now
	}
	if config.AckLogSize > 0 {
		channel.ackLogSize = config.AckLogSize
	}
	channel.lastID.Store(config.LastID)

	return &channel, nil
}

// Send queues a message for the worker. An action naming a known command (STOP WORK) becomes the
// command of the message and is recorded as a MANUAL alert. The text defaults to the command
func (m *Channel) Send(workerID, text, action string, from model.Role) (model.Message, error) {
	text = strings.TrimSpace(text)
	command, isCommand := model.ParseCommand(action)
	if text == "" && !isCommand {
		return model.Message{}, errors.NotValidf("empty message")
	}
	if text == "" {
		text = command
	}
	if from == "" {
		from = model.RoleAdmin
	}

	q := m.queue(workerID)
	q.mu.Lock()
	msg := &model.Message{
		ID:        m.lastID.Add(1),
		WorkerID:  workerID,
		FromRole:  from,
		Text:      text,
		Command:   command,
		Timestamp: m.now(),
	}
	q.pending = append(q.pending, msg)
	m.save(*msg)
	res := *msg
	q.mu.Unlock()

	if isCommand {
		m.alertCtl.Raise(workerID, model.AlertManual, model.StatusSafe, model.PriorityMedium, "Admin issued "+command)
	}
	m.log.Infof("message %d queued for %s", res.ID, workerID)
	return res, nil
}

// PollPending unacknowledged messages in creation order. They are marked delivered and keep coming
// back on every poll until acknowledged
func (m *Channel) PollPending(workerID string) []model.Message {
	res := make([]model.Message, 0)
	q, ok := m.lookup(workerID)
	if !ok {
		return res
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, msg := range q.pending {
		if !msg.Delivered {
			msg.Delivered = true
			m.save(*msg)
		}
		res = append(res, *msg)
	}
	return res
}

// Acknowledge moves the message from the pending queue to the acknowledgement log.
// Acknowledging twice is a no-op, an unknown id gives NotFound
func (m *Channel) Acknowledge(workerID string, id uint64) error {
	q, ok := m.lookup(workerID)
	if !ok {
		return errors.NotFoundf("message %d", id)
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, msg := range q.pending {
		if msg.ID != id {
			continue
		}
		now := m.now()
		msg.Delivered = true
		msg.Acknowledged = true
		msg.AcknowledgedAt = &now
		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		q.acked = append(q.acked, *msg)
		if len(q.acked) > m.ackLogSize {
			q.acked = append([]model.Message(nil), q.acked[len(q.acked)-m.ackLogSize:]...)
		}
		m.save(*msg)
		m.log.Infof("message %d acknowledged by %s", id, workerID)
		return nil
	}
	for _, msg := range q.acked {
		if msg.ID == id {
			return nil
		}
	}
	return errors.NotFoundf("message %d", id)
}

// Acknowledged acknowledgement records of the worker kept in memory, oldest first
func (m *Channel) Acknowledged(workerID string) []model.Message {
	q, ok := m.lookup(workerID)
	if !ok {
		return []model.Message{}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.Message{}, q.acked...)
}

func (m *Channel) save(msg model.Message) {
	if m.audit == nil {
		return
	}
	if err := m.audit.SaveMessage(msg); err != nil {
		m.log.Errorf("audit of message %d: %s", msg.ID, err)
	}
}

func (m *Channel) lookup(workerID string) (*queue, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.queues[workerID]
	return q, ok
}

func (m *Channel) queue(workerID string) *queue {
	if q, ok := m.lookup(workerID); ok {
		return q
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[workerID]
	if !ok {
		q = &queue{}
		m.queues[workerID] = q
	}
	return q
}
