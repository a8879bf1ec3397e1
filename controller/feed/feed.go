package feed

import (
	"context"
	"io/ioutil"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kirsrus/safetywatch/model"
	"github.com/kirsrus/safetywatch/service"
)

const (
	// Capacity of the merged reading channel
	eventCapacity = 64
	// Pause before the feeds are restarted after a failure
	restartDelay = 5 * time.Second
)

// Feed fan-in of the wearable feeds. Built with NewFeed. Keeps reading every feed and hands the
// readings out one by one through EmitReading
type Feed struct {
	ctx context.Context
	log *logrus.Entry

	telemetrySvc []service.TelemetrySvc

	event chan *model.Reading

	restartDelay time.Duration
}

// ConfigFeed configuration of Feed
type ConfigFeed struct {
	Log *logrus.Logger
	// Capacity of the merged reading channel
	EventCapacity uint
	// Pause before the feeds are restarted after a failure
	RestartDelay time.Duration
}

// NewFeed constructor of Feed. An empty feed list is allowed, EmitReading then blocks until ctx is done
func NewFeed(ctx context.Context, telemetrySvc []service.TelemetrySvc, config *ConfigFeed) (*Feed, error) {
	if config == nil {
		return nil, errors.New("config is not set")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if telemetrySvc == nil {
		return nil, errors.New("telemetrySvc list is not set")
	}

	capacity := uint(eventCapacity)
	if config.EventCapacity != 0 {
		capacity = config.EventCapacity
	}
	feed := Feed{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "feed",
			"scope":  "controller",
		}),
		telemetrySvc: telemetrySvc,
		event:        make(chan *model.Reading, capacity),
		restartDelay: restartDelay,
	}
	if config.RestartDelay != 0 {
		feed.restartDelay = config.RestartDelay
	}
	if len(telemetrySvc) != 0 {
		go feed.loop()
	}

	return &feed, nil
}

// Reads all feeds until ctx is done. A failed feed restarts the group after a pause
func (m Feed) loop() {
	m.log.Infof("reading %d feeds", len(m.telemetrySvc))
	for {
		g := new(errgroup.Group)

		for _, v := range m.telemetrySvc {
			v := v
			g.Go(func() error {
				for {
					reading, err := v.EmitReading()
					if err != nil {
						return errors.Trace(err)
					}
					select {
					case m.event <- reading:
					case <-m.ctx.Done():
						return m.ctx.Err()
					}
				}
			})
		}

		err := g.Wait()
		if err != nil && errors.Cause(err) != context.Canceled {
			m.log.Error(err)
		}
		select {
		case <-m.ctx.Done():
			m.log.Info("feeds stopped")
			return
		case <-time.After(m.restartDelay):
		}
	}
}

// EmitReading waits for a reading from any feed. Returns the context error on shutdown
func (m Feed) EmitReading() (*model.Reading, error) {
	select {
	case <-m.ctx.Done():
		return nil, m.ctx.Err()
	case reading := <-m.event:
		return reading, nil
	}
}
