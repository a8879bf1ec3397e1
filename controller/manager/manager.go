package manager

import (
	"context"
	"io/ioutil"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kirsrus/safetywatch/controller"
	"github.com/kirsrus/safetywatch/model"
	"github.com/kirsrus/safetywatch/service"
	"github.com/kirsrus/safetywatch/store"
)

const (
	sweepInterval        = time.Second
	cleanArchiveInterval = 30 * time.Minute
	archiveDays          = 30
	shutdownTimeout      = 5 * time.Second
)

// ConfigManager configuration of Manager
type ConfigManager struct {
	Log *logrus.Logger

	FeedCtl    controller.FeedCtl
	GatewayCtl controller.GatewayCtl
	WorkerCtl  controller.WorkerCtl
	AlertCtl   controller.AlertCtl

	// Optional, without it the server is not started
	WebSvc service.WebSvc
	// Optional, without it the archive is not cleaned
	DbStore store.DbStore

	// Period of the escalation, retention and inactivity sweep
	SweepInterval time.Duration
	// Period of the archive cleaning
	CleanArchiveInterval time.Duration
	// Audit records older than this are removed
	ArchiveDays int
}

// Manager runs the background loops of the engine. Built with NewManager
type Manager struct {
	ctx context.Context
	log *logrus.Entry

	feedCtl    controller.FeedCtl
	gatewayCtl controller.GatewayCtl
	workerCtl  controller.WorkerCtl
	alertCtl   controller.AlertCtl

	webSvc  service.WebSvc
	dbStore store.DbStore

	sweepInterval        time.Duration
	cleanArchiveInterval time.Duration
	archiveDays          int
}

// NewManager constructor of Manager
func NewManager(ctx context.Context, config *ConfigManager) (*Manager, error) {
	if config == nil {
		return nil, errors.New("config is not set")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if config.FeedCtl == nil {
		return nil, errors.New("feed controller is not set")
	}
	if config.GatewayCtl == nil {
		return nil, errors.New("gateway controller is not set")
	}
	if config.WorkerCtl == nil {
		return nil, errors.New("worker controller is not set")
	}
	if config.AlertCtl == nil {
		return nil, errors.New("alert controller is not set")
	}

	manager := Manager{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "manager",
			"scope":  "controller",
		}),
		feedCtl:    config.FeedCtl,
		gatewayCtl: config.GatewayCtl,
		workerCtl:  config.WorkerCtl,
		alertCtl:   config.AlertCtl,

		webSvc:  config.WebSvc,
		dbStore: config.DbStore,

		sweepInterval:        sweepInterval,
		cleanArchiveInterval: cleanArchiveInterval,
		archiveDays:          archiveDays,
	}
	if config.SweepInterval != 0 {
		manager.sweepInterval = config.SweepInterval
	}
	if config.CleanArchiveInterval != 0 {
		manager.cleanArchiveInterval = config.CleanArchiveInterval
	}
	if config.ArchiveDays != 0 {
		manager.archiveDays = config.ArchiveDays
	}

	manager.configToLog()

	return &manager, nil
}

func (m Manager) configToLog() {
	m.log.Debugf("sweepInterval: %s", m.sweepInterval)
	m.log.Debugf("cleanArchiveInterval: %s", m.cleanArchiveInterval)
	m.log.Debugf("archiveDays: %d", m.archiveDays)
}

// Serve runs the web server, the feed consumer, the sweep and the archive cleaner until ctx is done
// or one of them fails
func (m Manager) Serve() error {
	g, ctx := errgroup.WithContext(m.ctx)

	if m.webSvc != nil {
		g.Go(func() error {
			return errors.Trace(m.webSvc.Start())
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdown, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return errors.Trace(m.webSvc.Shutdown(shutdown))
		})
	}

	// Readings of the wearable feeds. The feed stops with the root context
	go m.consume()

	// Escalation, retention and inactivity
	g.Go(func() error {
		ticker := time.NewTicker(m.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				m.Sweep()
			}
		}
	})

	// Archive cleaning
	if m.dbStore != nil {
		g.Go(func() error {
			for {
				if err := m.dbStore.Clean(m.archiveDays); err != nil {
					m.log.Error(errors.ErrorStack(err))
				}
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(m.cleanArchiveInterval):
				}
			}
		})
	}

	err := g.Wait()
	if m.ctx.Err() != nil {
		m.log.Info("stopped")
		return nil
	}
	return err
}

// Sweep one pass of the time driven rules
func (m Manager) Sweep() {
	escalated := m.alertCtl.Escalate()
	pruned := m.alertCtl.Prune()
	silent := m.workerCtl.CheckInactivity()
	if len(escalated) != 0 || len(silent) != 0 {
		m.log.Infof("sweep: %d escalated, %d pruned, %d inactive", len(escalated), pruned, len(silent))
	}
}

func (m Manager) consume() {
	for {
		reading, err := m.feedCtl.EmitReading()
		if err != nil {
			if m.ctx.Err() == nil {
				m.log.Error(errors.ErrorStack(err))
			}
			return
		}
		m.ingest(*reading)
	}
}

// A failed reading of a feed is logged, it never stops the other feeds
func (m Manager) ingest(reading model.Reading) {
	res, err := m.gatewayCtl.SubmitReading(reading.WorkerID, reading)
	if err != nil {
		m.log.Warnf("feed reading of %s rejected: %s", reading.WorkerID, err)
		return
	}
	m.log.Debugf("feed reading of %s: %s, risk %d", reading.WorkerID, res.Status, res.RiskScore)
}
