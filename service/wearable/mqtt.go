package wearable

import (
	"context"
	"io/ioutil"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/safetywatch/model"
	"github.com/kirsrus/safetywatch/service"
)

const (
	mqttQos            = 1
	mqttConnectTimeout = 10 * time.Second
	mqttQuiesce        = 250
)

// Mqtt feed of readings published by wearables on an MQTT topic. Built with NewMqtt.
// The client reconnects by itself and subscribes again after every connection
type Mqtt struct {
	ctx        context.Context
	log        *logrus.Entry
	client     mqtt.Client
	topic      string
	resultChan chan model.Reading
}

// ConfigMqtt configuration of Mqtt
type ConfigMqtt struct {
	Log *logrus.Logger
	// tcp://host:1883
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
}

// NewMqtt constructor of Mqtt. The connection is made in the background
func NewMqtt(ctx context.Context, config *ConfigMqtt) (service.TelemetrySvc, error) {
	if config == nil {
		return nil, errors.New("config is not set")
	}
	if config.Broker == "" {
		return nil, errors.NotValidf("empty broker")
	}
	if config.Topic == "" {
		return nil, errors.NotValidf("empty topic")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}

	res := &Mqtt{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "wearable",
			"scope":  "service",
			"broker": config.Broker,
			"topic":  config.Topic,
		}),
		topic:      config.Topic,
		resultChan: make(chan model.Reading, MaximumResultChan),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	if config.Username != "" {
		opts.SetUsername(config.Username)
	}
	if config.Password != "" {
		opts.SetPassword(config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(mqttConnectTimeout)
	opts.SetOnConnectHandler(res.subscribe)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		res.log.Warnf("connection lost: %v", err)
	})
	res.client = mqtt.NewClient(opts)

	res.client.Connect()
	go func() {
		<-ctx.Done()
		res.client.Disconnect(mqttQuiesce)
		res.log.Info("feed stopped")
	}()

	return res, nil
}

func (m *Mqtt) subscribe(client mqtt.Client) {
	m.log.Info("connected")
	token := client.Subscribe(m.topic, mqttQos, func(_ mqtt.Client, msg mqtt.Message) {
		m.handle(msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		m.log.Errorf("subscribe: %v", token.Error())
	}
}

// Decodes a payload and queues its readings. Blocks while the queue is full
func (m *Mqtt) handle(payload []byte) {
	readings, err := Decode(payload)
	if err != nil {
		m.log.Warnf("invalid payload %q: %s", string(payload), err)
		return
	}
	for _, r := range readings {
		select {
		case m.resultChan <- r:
		case <-m.ctx.Done():
			return
		}
	}
}

// EmitReading waits for the next reading of the topic. Returns context.Canceled on shutdown
func (m *Mqtt) EmitReading() (*model.Reading, error) {
	select {
	case result := <-m.resultChan:
		return &result, nil
	case <-m.ctx.Done():
		return nil, m.ctx.Err()
	}
}
