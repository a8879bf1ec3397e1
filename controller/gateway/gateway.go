package gateway

import (
	"io/ioutil"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/safetywatch/controller"
	"github.com/kirsrus/safetywatch/model"
)

// Readings of the worker returned with a poll
const pollHistoryWindow = 6 * time.Minute

// Gateway stateless facade over the worker table, the alert manager and the message channel.
// Built with NewGateway. Every read is a snapshot, nothing blocks waiting for new data
type Gateway struct {
	log *logrus.Entry
	now func() time.Time

	workerCtl  controller.WorkerCtl
	alertCtl   controller.AlertCtl
	channelCtl controller.ChannelCtl
}

// ConfigGateway configuration of Gateway
type ConfigGateway struct {
	Log *logrus.Logger
	// Clock, time.Now when nil
	Now func() time.Time
}

// NewGateway constructor of Gateway
func NewGateway(workerCtl controller.WorkerCtl, alertCtl controller.AlertCtl, channelCtl controller.ChannelCtl, config *ConfigGateway) (*Gateway, error) {
	if config == nil {
		return nil, errors.New("config is not set")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if workerCtl == nil {
		return nil, errors.New("workerCtl is not set")
	}
	if alertCtl == nil {
		return nil, errors.New("alertCtl is not set")
	}
	if channelCtl == nil {
		return nil, errors.New("channelCtl is not set")
	}

	return &Gateway{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "gateway",
			"scope":  "controller",
		}),
		now:        config.Now,
		workerCtl:  workerCtl,
		alertCtl:   alertCtl,
		channelCtl: channelCtl,
	}, nil
}

// Register registers a worker from the roster
func (m *Gateway) Register(info model.WorkerInfo) model.WorkerState {
	return m.workerCtl.Register(info)
}

// SetOnline marks the worker logged in or out
func (m *Gateway) SetOnline(workerID string, online bool) error {
	return m.workerCtl.SetOnline(workerID, online)
}

// Worker current state of the worker
func (m *Gateway) Worker(workerID string) (model.WorkerState, error) {
	return m.workerCtl.State(workerID)
}

// WorkerPoll status of the worker with the messages waiting for acknowledgement
// and the readings of the last pollHistoryWindow
func (m *Gateway) WorkerPoll(workerID string) (*controller.WorkerPoll, error) {
	if err := m.workerCtl.Touch(workerID); err != nil {
		return nil, errors.Trace(err)
	}
	state, err := m.workerCtl.State(workerID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	history, err := m.workerCtl.History(workerID, 0)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &controller.WorkerPoll{
		Status:    state.Status,
		RiskScore: state.RiskScore,
		PlaySound: state.Status != model.StatusSafe,
		Messages:  m.channelCtl.PollPending(workerID),
		History:   since(history, m.now().Add(-pollHistoryWindow)),
	}, nil
}

// since readings not older than from, history is chronological
func since(history []model.Reading, from time.Time) []model.Reading {
	i := len(history)
	for i > 0 && !history[i-1].Timestamp.Before(from) {
		i--
	}
	res := make([]model.Reading, len(history)-i)
	copy(res, history[i:])
	return res
}

// SubmitReading ingests a reading. The alarm sounds on an emergency or a new alert
func (m *Gateway) SubmitReading(workerID string, reading model.Reading) (*controller.ReadingResult, error) {
	res, err := m.workerCtl.Ingest(workerID, reading)
	if err != nil {
		return nil, errors.Trace(err)
	}
	status := res.State.Status
	return &controller.ReadingResult{
		Status:    status,
		RiskScore: res.State.RiskScore,
		PlaySound: status == model.StatusEmergency || res.Alert != nil,
		Banner:    status != model.StatusSafe,
		Detail:    res.Assessment,
	}, nil
}

// ReportHazard hazard report of the worker
func (m *Gateway) ReportHazard(workerID string, hazard model.HazardType) (*controller.ReadingResult, error) {
	state, _, err := m.workerCtl.ReportHazard(workerID, hazard)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return reported(state), nil
}

// ReportEmergency panic button of the worker
func (m *Gateway) ReportEmergency(workerID string) (*controller.ReadingResult, error) {
	state, _, err := m.workerCtl.ReportEmergency(workerID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return reported(state), nil
}

// AckMessage acknowledges a message of the worker
func (m *Gateway) AckMessage(workerID string, id uint64) error {
	return m.channelCtl.Acknowledge(workerID, id)
}

// AdminSnapshot runs the escalation sweep and returns workers and alerts
func (m *Gateway) AdminSnapshot() controller.AdminSnapshot {
	m.alertCtl.Escalate()
	return controller.AdminSnapshot{
		Workers: m.workerCtl.States(),
		Alerts:  m.alertCtl.ListActive(),
	}
}

// WorkerHistory most recent limit readings of the worker in chronological order
func (m *Gateway) WorkerHistory(workerID string, limit int) ([]model.Reading, error) {
	return m.workerCtl.History(workerID, limit)
}

// Latest reading of the worker
func (m *Gateway) Latest(workerID string) (model.Reading, error) {
	state, err := m.workerCtl.State(workerID)
	if err != nil {
		return model.Reading{}, errors.Trace(err)
	}
	if state.Latest == nil {
		return model.Reading{}, errors.NotFoundf("no data")
	}
	return *state.Latest, nil
}

// SendMessage queues an admin message for an existing worker
func (m *Gateway) SendMessage(workerID, text, action string) (model.Message, error) {
	if _, err := m.workerCtl.State(workerID); err != nil {
		return model.Message{}, errors.Trace(err)
	}
	msg, err := m.channelCtl.Send(workerID, text, action, model.RoleAdmin)
	if err != nil {
		return model.Message{}, errors.Trace(err)
	}
	return msg, nil
}

// AdminAction records the decision as a MANUAL alert and tells the worker. STOP is sent as the
// STOP WORK command, which the channel records itself
func (m *Gateway) AdminAction(workerID string, action model.AdminAction, by string) (model.Message, error) {
	if !action.IsValid() {
		return model.Message{}, errors.NotValidf("action %q", action)
	}
	if _, err := m.workerCtl.State(workerID); err != nil {
		return model.Message{}, errors.Trace(err)
	}

	text := "Admin action: " + string(action)
	command := ""
	if action == model.ActionStop {
		command = model.CommandStopWork
	} else {
		m.alertCtl.Raise(workerID, model.AlertManual, model.StatusSafe, model.PriorityMedium, text)
	}
	msg, err := m.channelCtl.Send(workerID, text, command, model.RoleAdmin)
	if err != nil {
		return model.Message{}, errors.Trace(err)
	}
	m.log.Infof("%s applied %s to %s", by, action, workerID)
	return msg, nil
}

// AckAlert acknowledges an alert on behalf of the admin
func (m *Gateway) AckAlert(id uint64, by string) error {
	return m.alertCtl.Acknowledge(id, by)
}

// ResolveAlert resolves an alert
func (m *Gateway) ResolveAlert(id uint64) error {
	return m.alertCtl.Resolve(id)
}

func reported(state model.WorkerState) *controller.ReadingResult {
	return &controller.ReadingResult{
		Status:    state.Status,
		RiskScore: state.RiskScore,
		PlaySound: true,
		Banner:    true,
	}
}
