package wearable

import (
	"context"
	"io/ioutil"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/safetywatch/model"
	"github.com/kirsrus/safetywatch/pkg/validator"
	"github.com/kirsrus/safetywatch/service"
)

const (
	MaximumResultChan = 64
	ReconnectTimeout  = 5 * time.Second
)

// State of the connection to the hub, used to log only changes
type connectType int

const (
	connectUnknown = iota
	connectSuccess
	connectFailed
)

// Websocket feed of a wearable hub pushing JSON readings over websocket. Built with NewWebsocket.
// Keeps reconnecting while ctx lives
type Websocket struct {
	feedInfo         model.FeedInfo
	ctx              context.Context
	log              *logrus.Entry
	reconnectTimeout time.Duration
	resultChan       chan model.Reading
	connectedFlag    connectType
}

// ConfigWebsocket configuration of Websocket
type ConfigWebsocket struct {
	Log              *logrus.Logger
	FeedInfo         model.FeedInfo
	ReconnectTimeout time.Duration
}

// NewWebsocket constructor of Websocket
func NewWebsocket(ctx context.Context, config *ConfigWebsocket) (service.TelemetrySvc, error) {
	if config == nil {
		return nil, errors.New("config is not set")
	}
	if err := validator.Get().Validate(&config.FeedInfo); err != nil {
		return nil, errors.Annotate(err, "invalid feed description")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}

	res := &Websocket{
		feedInfo: config.FeedInfo,
		ctx:      ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module":  "wearable",
			"scope":   "service",
			"id":      config.FeedInfo.ID,
			"address": config.FeedInfo.URL,
		}),
		reconnectTimeout: ReconnectTimeout,
		resultChan:       make(chan model.Reading, MaximumResultChan),
		connectedFlag:    connectUnknown,
	}
	if config.ReconnectTimeout != 0 {
		res.reconnectTimeout = config.ReconnectTimeout
	}

	go res.loop()

	return res, nil
}

// Reconnects to the hub until ctx is done
func (m *Websocket) loop() {
	m.log.Info("feed started")

	for {
		select {
		case <-m.ctx.Done():
			m.log.Info("feed stopped")
			return
		default:
		}

		err := m.connect()

		if err != nil && errors.Cause(err) != context.Canceled {
			select {
			case <-m.ctx.Done():
			case <-time.After(m.reconnectTimeout):
			}
		}
	}
}

// One connection to the hub. Returns when the connection breaks or ctx is done
func (m *Websocket) connect() error {
	read := make(chan []byte, 10)
	done := make(chan error, 1)

	conn, _, err := websocket.DefaultDialer.DialContext(m.ctx, m.feedInfo.URL, nil)
	if err != nil {
		if m.connectedFlag == connectUnknown || m.connectedFlag == connectSuccess {
			m.log.Warnf("connection failed: %v", err)
		}
		m.connectedFlag = connectFailed
		return errors.Trace(err)
	}
	defer func() { _ = conn.Close() }()
	if m.connectedFlag == connectUnknown || m.connectedFlag == connectFailed {
		m.log.Infof("connected")
		m.connectedFlag = connectSuccess
	}

	go func() {
		for {
			tpe, message, err := conn.ReadMessage()
			if err != nil {
				if !strings.Contains(err.Error(), "use of closed network connection") {
					m.log.Warnf("websocket read: %v", err)
					done <- errors.Trace(err)
				} else {
					done <- nil
				}
				return
			}
			if tpe != websocket.TextMessage {
				m.log.Warnf("skipped message of type %d, %d bytes", tpe, len(message))
				continue
			}

			select {
			case <-m.ctx.Done():
				return
			case read <- message:
			default:
				m.log.Warnf("read queue is full")
			}
		}
	}()

	for {
		select {
		case <-m.ctx.Done():
			return m.ctx.Err()
		case err := <-done:
			return err
		case message := <-read:
			readings, err := Decode(message)
			if err != nil {
				m.log.Warnf("invalid payload %q: %s", string(message), err)
				continue
			}
			for _, r := range readings {
				select {
				case m.resultChan <- r:
				case <-m.ctx.Done():
					return m.ctx.Err()
				}
			}
		}
	}
}

// EmitReading waits for the next reading of the hub. Returns context.Canceled on shutdown
func (m *Websocket) EmitReading() (*model.Reading, error) {
	select {
	case result := <-m.resultChan:
		return &result, nil
	case <-m.ctx.Done():
		return nil, m.ctx.Err()
	}
}
