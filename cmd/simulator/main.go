package main

import (
	"flag"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/juju/errors"
	"github.com/k0kubun/pp"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/safetywatch/pkg/logger"
)

type (
	loginResponse struct {
		Token string `json:"token"`
	}

	readingResponse struct {
		Status    string `json:"status"`
		RiskScore int    `json:"risk_score"`
		PlaySound bool   `json:"play_sound"`
	}

	pollResponse struct {
		Status   string `json:"status"`
		Messages []struct {
			ID       uint64 `json:"id"`
			FromRole string `json:"from_role"`
			Message  string `json:"message"`
			Command  string `json:"command"`
		} `json:"messages"`
	}

	errorResponse struct {
		Error string `json:"error"`
	}
)

var log *logrus.Logger

func main() {
	server := flag.String("server", "http://127.0.0.1:8080", "safety server address")
	workerID := flag.String("worker", "W-001", "worker id")
	pin := flag.String("pin", "1234", "worker pin")
	interval := flag.Duration("interval", time.Second, "period between readings")
	band := flag.String("band", "", "force normal, warning or critical readings")
	count := flag.Int("count", 0, "readings to send, 0 runs until interrupted")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	verbose := flag.Bool("v", false, "dump every response")
	flag.Parse()

	level := logrus.InfoLevel
	if *verbose {
		level = logrus.DebugLevel
	}
	log = logger.Get(level)

	sim := simulator{
		client:  resty.New().SetBaseURL(strings.TrimRight(*server, "/")).SetTimeout(5 * time.Second),
		sensor:  NewSensor(*seed, Band(*band)),
		worker:  *workerID,
		verbose: *verbose,
	}
	if err := sim.run(*pin, *interval, *count); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
}

type simulator struct {
	client  *resty.Client
	sensor  *Sensor
	worker  string
	verbose bool
}

func (m *simulator) run(pin string, interval time.Duration, count int) error {
	if err := m.login(pin); err != nil {
		return errors.Trace(err)
	}
	log.Infof("worker %s logged in", m.worker)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for sent := 0; count == 0 || sent < count; sent++ {
		if err := m.tick(); err != nil {
			log.Warnf("%s", err)
		}
		select {
		case <-interrupt:
			log.Info("interrupted")
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

func (m *simulator) login(pin string) error {
	var res loginResponse
	var fail errorResponse
	resp, err := m.client.R().
		SetBody(map[string]string{"worker_id": m.worker, "pin": pin}).
		SetResult(&res).
		SetError(&fail).
		Post("/login/worker")
	if err != nil {
		return errors.Annotate(err, "login")
	}
	if resp.IsError() {
		return errors.Errorf("login: %d %s", resp.StatusCode(), fail.Error)
	}
	m.client.SetHeader("X-Session-Token", res.Token)
	return nil
}

// Sends one reading, then polls and acknowledges the delivered messages
func (m *simulator) tick() error {
	sample, band := m.sensor.Next()

	var reading readingResponse
	var fail errorResponse
	resp, err := m.client.R().SetBody(sample).SetResult(&reading).SetError(&fail).Post("/worker/reading")
	if err != nil {
		return errors.Annotate(err, "reading")
	}
	if resp.IsError() {
		return errors.Errorf("reading: %d %s", resp.StatusCode(), fail.Error)
	}
	log.Infof("%-8s hr=%.1f spo2=%.1f temp=%.1f gas=%.1f fatigue=%d -> %s (%d)%s",
		band, sample.HeartRate, sample.SpO2, sample.Temperature, sample.Gas, sample.Fatigue,
		reading.Status, reading.RiskScore, alarm(reading.PlaySound))
	if m.verbose {
		_, _ = pp.Println(reading)
	}

	var poll pollResponse
	resp, err = m.client.R().SetResult(&poll).SetError(&fail).Post("/worker/poll")
	if err != nil {
		return errors.Annotate(err, "poll")
	}
	if resp.IsError() {
		return errors.Errorf("poll: %d %s", resp.StatusCode(), fail.Error)
	}
	for _, msg := range poll.Messages {
		if m.verbose {
			_, _ = pp.Println(msg)
		}
		if msg.Command != "" {
			log.Warnf("COMMAND from %s: %s (%s)", msg.FromRole, msg.Command, msg.Message)
		} else {
			log.Infof("message from %s: %s", msg.FromRole, msg.Message)
		}
		resp, err := m.client.R().
			SetBody(map[string]uint64{"id": msg.ID}).
			SetError(&fail).
			Post("/worker/ack_message")
		if err != nil {
			return errors.Annotatef(err, "ack message %d", msg.ID)
		}
		if resp.IsError() {
			return errors.Errorf("ack message %d: %d %s", msg.ID, resp.StatusCode(), fail.Error)
		}
	}
	return nil
}

func alarm(on bool) string {
	if on {
		return " [alarm]"
	}
	return ""
}
