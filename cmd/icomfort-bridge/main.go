package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thermostat-io/icomfort-bridge/db"
	"github.com/thermostat-io/icomfort-bridge/internal/api"
	"github.com/thermostat-io/icomfort-bridge/internal/config"
	"github.com/thermostat-io/icomfort-bridge/internal/datadog"
	"github.com/thermostat-io/icomfort-bridge/internal/dispatch"
	"github.com/thermostat-io/icomfort-bridge/internal/logging"
	"github.com/thermostat-io/icomfort-bridge/internal/notifications"
	"github.com/thermostat-io/icomfort-bridge/internal/poller"
	"github.com/thermostat-io/icomfort-bridge/internal/rest"
	"github.com/thermostat-io/icomfort-bridge/internal/state"
	"github.com/thermostat-io/icomfort-bridge/internal/view"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Init(cfg.LogLevel)
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.LogLevel)

	log.Info().
		Str("username", cfg.Username).
		Int("refresh_interval_seconds", cfg.RefreshIntervalSeconds).
		Msg("Starting iComfort bridge")

	datadog.InitMetrics(&cfg)
	notifications.Init(cfg.NtfyTopic)

	journal, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open journal database")
	}
	defer journal.Close()

	client := api.NewClient(cfg.APIBaseURL, cfg.Username, cfg.Password, nil)
	repo := state.NewRepository(client, cfg.AlertsCount)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := repo.Login(ctx); err != nil {
		log.Fatal().Err(err).Msg("Login failed")
	}
	defer repo.Logout()

	p := poller.New(repo, time.Duration(cfg.RefreshIntervalSeconds)*time.Second)
	dispatcher := dispatch.New(client, repo, p)

	registry := view.NewRegistry(view.PublisherFunc(func(subject, channel string, value any) {
		log.Info().
			Str("subject", subject).
			Str("channel", channel).
			Interface("value", value).
			Msg("State changed")
	}))

	p.OnStatusChange(func(status poller.Status) {
		if err := db.RecordStatusTransition(journal, string(status)); err != nil {
			log.Warn().Err(err).Msg("Failed to journal status transition")
		}
		registry.SetStatus(status == poller.StatusOnline)
		notifications.NotifyConnectivity(status == poller.StatusOnline)
	})
	p.OnSnapshot(func(snap *state.Snapshot) {
		registry.Apply(snap)
		journalAlerts(journal, snap)
	})

	p.Start()
	defer p.Stop()

	server := rest.NewServer(repo, dispatcher, p, journal)
	go func() {
		if err := server.Start(cfg.HTTPPort); err != nil {
			log.Fatal().Err(err).Msg("REST server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
}

// journalAlerts records every alert the snapshot carries and notifies on
// newly observed raised ones.
func journalAlerts(journal *sql.DB, snap *state.Snapshot) {
	for i := range snap.Systems.Systems {
		sys := &snap.Systems.Systems[i]
		if sys.Alerts.ReturnStatus != api.StatusSuccess {
			continue
		}
		for _, a := range sys.Alerts.Alerts {
			fresh, err := db.RecordAlert(journal, sys.GatewaySN, a)
			if err != nil {
				log.Warn().Err(err).Str("gateway_sn", sys.GatewaySN).Msg("Failed to journal alert")
				continue
			}
			if fresh && a.Status == api.AlertRaised {
				notifications.NotifyAlert(sys.SystemName, a)
			}
		}
	}
}
