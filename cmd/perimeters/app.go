package main

import (
	"log/slog"

	"github.com/couchcryptid/disaster-perimeter-etl/internal/adapter/copernicus"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/adapter/disasters"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/adapter/fetch"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/adapter/geojsonfile"
	kafkaadapter "github.com/couchcryptid/disaster-perimeter-etl/internal/adapter/kafka"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/adapter/wfigs"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/config"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/domain"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/geo"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/observability"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/perimeter"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/workspace"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *observability.Metrics
	layout    workspace.Layout
	provider  *disasters.FileProvider
	pipeline  *perimeter.Pipeline
	refresher *perimeter.Refresher
	notifier  *kafkaadapter.Notifier

	// active queries the WFIGS current perimeters service.
	active wfigs.Fetcher
}

func newApp(cfg *config.Config, logger *slog.Logger) *app {
	metrics := observability.NewMetrics()
	layout := workspace.New(cfg.DataDir)
	engine := geo.NewEngine()

	var (
		notifier *kafkaadapter.Notifier
		notify   perimeter.Notifier
	)
	if cfg.NotificationsEnabled() {
		notifier = kafkaadapter.NewNotifier(cfg, logger)
		notify = notifier
		logger.Info("run notifications enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	p := perimeter.New(layout,
		[]perimeter.Source{
			perimeter.NewDomesticSource(engine, logger),
			perimeter.NewCopernicusSource(engine, logger),
		},
		engine,
		geojsonfile.NewWriter(layout, logger),
		notify,
		logger,
		metrics,
	)

	wfigsClient := fetch.New(string(domain.SourceWFIGS), cfg.HTTPTimeout, cfg.DownloadRateLimit, metrics, logger)
	copernicusClient := fetch.New(string(domain.SourceCopernicus), cfg.HTTPTimeout, cfg.DownloadRateLimit, metrics, logger)
	refresher := perimeter.NewRefresher(p, []perimeter.Downloader{
		wfigs.NewDownloader(wfigsClient, cfg.WFIGSURL, layout, logger),
		copernicus.NewDownloader(copernicusClient, cfg.CopernicusURL, layout, cfg.DownloadConcurrency, logger),
	}, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		layout:    layout,
		provider:  disasters.NewFileProvider(cfg.DisastersFile),
		pipeline:  p,
		refresher: refresher,
		notifier:  notifier,
		active:    wfigsClient,
	}
}

// pushMetrics sends the batch metrics to the Pushgateway when configured.
func (a *app) pushMetrics(instance string) {
	if a.cfg.PushgatewayURL == "" {
		return
	}
	if err := a.metrics.Push(a.cfg.PushgatewayURL, instance); err != nil {
		a.logger.Warn("metrics push failed", "error", err)
	}
}

func (a *app) close() {
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			a.logger.Error("kafka notifier close error", "error", err)
		}
	}
}
