package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/safetywatch/controller/alert"
	"github.com/kirsrus/safetywatch/controller/channel"
	"github.com/kirsrus/safetywatch/controller/classifier"
	"github.com/kirsrus/safetywatch/controller/feed"
	"github.com/kirsrus/safetywatch/controller/gateway"
	"github.com/kirsrus/safetywatch/controller/manager"
	"github.com/kirsrus/safetywatch/controller/worker"
	"github.com/kirsrus/safetywatch/model"
	"github.com/kirsrus/safetywatch/pkg/config"
	"github.com/kirsrus/safetywatch/pkg/logger"
	"github.com/kirsrus/safetywatch/service"
	notifySvcMod "github.com/kirsrus/safetywatch/service/notify"
	reportSvcMod "github.com/kirsrus/safetywatch/service/report"
	sessionSvcMod "github.com/kirsrus/safetywatch/service/session"
	wearableSvcMod "github.com/kirsrus/safetywatch/service/wearable"
	webSvcMod "github.com/kirsrus/safetywatch/service/web"
	"github.com/kirsrus/safetywatch/store"
	dbStoreMod "github.com/kirsrus/safetywatch/store/db"
)

var (
	cfg *config.Config
	log *logrus.Logger
)

func init() {
	cfg = config.Get()
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.WarnLevel
	}
	log = logger.GetWithConfig(logger.Config{
		Path:    cfg.Log.Path,
		File:    cfg.Log.Filename,
		Level:   level,
		Console: cfg.Log.Console,
	})
}

func main() {
	err := run()
	if err != nil {
		fmt.Printf("ERROR: the server stopped with an error: %v\n", err)
		fmt.Printf("See the log for details: %s/%s\n", cfg.Log.Path, cfg.Log.Filename)
		log.Fatal(errors.ErrorStack(err))
	}
}

func run() error {
	chanInterrupt := make(chan os.Signal, 1)
	signal.Notify(chanInterrupt, os.Interrupt, syscall.SIGTERM)

	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// region Database and seeding

	dbStore, err := dbStoreMod.NewDb(ctx, &dbStoreMod.ConfigDb{
		Log:    log,
		DbFile: cfg.Db.Filename,
	})
	if err != nil {
		return errors.Trace(err)
	}
	if err := seed(dbStore); err != nil {
		return errors.Trace(err)
	}
	roster, err := dbStore.Workers()
	if err != nil {
		return errors.Trace(err)
	}
	lastAlertID, lastMessageID, err := dbStore.LastIDs()
	if err != nil {
		return errors.Trace(err)
	}

	// endregion
	// region Monitoring engine

	var notifySvc service.NotifySvc
	if cfg.Notify.Sns.Enabled {
		notifySvc, err = notifySvcMod.NewSns(ctx, &notifySvcMod.ConfigSns{
			Log:      log,
			Region:   cfg.Notify.Sns.Region,
			TopicArn: cfg.Notify.Sns.TopicArn,
		})
		if err != nil {
			return errors.Trace(err)
		}
	}

	alertCtl, err := alert.NewManager(dbStore, notifySvc, &alert.ConfigManager{
		Log:               log,
		EscalationWindow:  time.Second * time.Duration(cfg.Monitor.EscalationWindow),
		ResolvedRetention: time.Second * time.Duration(cfg.Monitor.ResolvedRetention),
		LastID:            lastAlertID,
	})
	if err != nil {
		return errors.Trace(err)
	}

	channelCtl, err := channel.NewChannel(alertCtl, dbStore, &channel.ConfigChannel{
		Log:    log,
		LastID: lastMessageID,
	})
	if err != nil {
		return errors.Trace(err)
	}

	workerCtl, err := worker.NewTable(classifier.NewClassifier(&classifier.ConfigClassifier{
		ZoneSensitivity: cfg.Monitor.ZoneSensitivity,
	}), alertCtl, dbStore, &worker.ConfigTable{
		Log:               log,
		HistorySize:       cfg.Monitor.HistorySize,
		ReadingsPerSecond: cfg.Monitor.ReadingsPerSecond,
		InactivityTimeout: time.Second * time.Duration(cfg.Monitor.InactivityTimeout),
	})
	if err != nil {
		return errors.Trace(err)
	}

	gatewayCtl, err := gateway.NewGateway(workerCtl, alertCtl, channelCtl, &gateway.ConfigGateway{
		Log: log,
	})
	if err != nil {
		return errors.Trace(err)
	}
	for _, info := range roster {
		gatewayCtl.Register(info)
	}
	log.Infof("%d workers registered", len(roster))

	// endregion
	// region Wearable feeds

	telemetry := make([]service.TelemetrySvc, 0, len(cfg.Feeds.Websocket)+1)
	for _, i := range cfg.Feeds.Websocket {
		feedSvc, err := wearableSvcMod.NewWebsocket(ctx, &wearableSvcMod.ConfigWebsocket{
			Log: log,
			FeedInfo: model.FeedInfo{
				ID:   i.ID,
				URL:  i.Address,
				Name: i.Name,
			},
		})
		if err != nil {
			return errors.Trace(err)
		}
		telemetry = append(telemetry, feedSvc)
	}
	if cfg.Feeds.Mqtt.Broker != "" {
		feedSvc, err := wearableSvcMod.NewMqtt(ctx, &wearableSvcMod.ConfigMqtt{
			Log:      log,
			Broker:   cfg.Feeds.Mqtt.Broker,
			Topic:    cfg.Feeds.Mqtt.Topic,
			ClientID: cfg.Feeds.Mqtt.ClientID,
		})
		if err != nil {
			return errors.Trace(err)
		}
		telemetry = append(telemetry, feedSvc)
	}

	feedCtl, err := feed.NewFeed(ctx, telemetry, &feed.ConfigFeed{
		Log: log,
	})
	if err != nil {
		return errors.Trace(err)
	}

	// endregion
	// region Web

	sessionSvc, err := sessionSvcMod.NewSession(dbStore, gatewayCtl, &sessionSvcMod.ConfigSession{
		Log: log,
		TTL: time.Minute * time.Duration(cfg.Http.SessionTTL),
	})
	if err != nil {
		return errors.Trace(err)
	}

	reportSvc, err := reportSvcMod.NewReport(dbStore, &reportSvcMod.ConfigReport{
		Log: log,
	})
	if err != nil {
		return errors.Trace(err)
	}

	webSvc, err := webSvcMod.NewWeb(ctx, gatewayCtl, sessionSvc, reportSvc, &webSvcMod.ConfigWeb{
		Log:        log,
		WebPort:    cfg.Http.Port,
		AssetsDir:  cfg.Http.AssetsDir,
		CookieName: cfg.Http.CookieName,
	})
	if err != nil {
		return errors.Trace(err)
	}

	webSvc.Health("/healthz")
	webSvc.Auth("/")
	webSvc.WorkerApi("/worker")
	webSvc.AdminApi("/admin")
	webSvc.Static("/")

	// endregion
	// region Manager

	managerCtl, err := manager.NewManager(ctx, &manager.ConfigManager{
		Log:                  log,
		FeedCtl:              feedCtl,
		GatewayCtl:           gatewayCtl,
		WorkerCtl:            workerCtl,
		AlertCtl:             alertCtl,
		WebSvc:               webSvc,
		DbStore:              dbStore,
		SweepInterval:        time.Second * time.Duration(cfg.Monitor.SweepInterval),
		CleanArchiveInterval: time.Minute * time.Duration(cfg.Db.CleanArchiveInterval),
		ArchiveDays:          cfg.Db.ArchiveDays,
	})
	if err != nil {
		return errors.Trace(err)
	}

	go func() {
		done <- errors.Trace(managerCtl.Serve())
	}()

	// endregion

	select {
	case err := <-done:
		return errors.Trace(err)
	case <-chanInterrupt:
		log.Info("interrupt received, shutting down")
		cancel()
		select {
		case err := <-done:
			return errors.Trace(err)
		case <-time.After(10 * time.Second):
			return errors.New("shutdown timed out")
		}
	}
}

// Creates the admin login and the configured roster
func seed(dbStore store.DbStore) error {
	if err := dbStore.SetAdmin(cfg.Admin.Username, cfg.Admin.Password); err != nil {
		return errors.Trace(err)
	}
	for _, w := range cfg.Workers {
		_, err := dbStore.SetWorker(model.WorkerInfo{
			WorkerID: w.ID,
			Name:     w.Name,
			Zone:     w.Zone,
		}, w.Pin)
		if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}
