package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

const (
	defaultWFIGSURL      = "https://services3.arcgis.com/T4QMspbfLg3qTGWY/arcgis/rest/services/WFIGS_Interagency_Perimeters/FeatureServer/0/query"
	defaultCopernicusURL = "https://rapidmapping.emergency.copernicus.eu/backend"
	defaultWFIGSActive   = "https://services3.arcgis.com/T4QMspbfLg3qTGWY/arcgis/rest/services/Current_WildlandFire_Perimeters/FeatureServer/0/query"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DataDir       string
	DisastersFile string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Upstream perimeter services.
	WFIGSURL            string
	WFIGSActiveURL      string
	CopernicusURL       string
	HTTPTimeout         time.Duration
	DownloadRateLimit   float64
	DownloadConcurrency int

	// Completion notifications; disabled when KafkaBrokers is empty.
	KafkaBrokers []string
	KafkaTopic   string

	WatchInterval  time.Duration
	PushgatewayURL string
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is loaded first when
// present; variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	httpTimeout, err := parsePositiveDuration("HTTP_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}
	watchInterval, err := parsePositiveDuration("WATCH_INTERVAL", "6h")
	if err != nil {
		return nil, err
	}

	rateLimit, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("DOWNLOAD_RATE_LIMIT", "2"), 64)
	if err != nil || rateLimit <= 0 {
		return nil, errors.New("invalid DOWNLOAD_RATE_LIMIT: must be a positive number of requests per second")
	}

	concurrency, err := strconv.Atoi(sharedcfg.EnvOrDefault("DOWNLOAD_CONCURRENCY", "4"))
	if err != nil || concurrency < 1 || concurrency > 16 {
		return nil, errors.New("invalid DOWNLOAD_CONCURRENCY: must be between 1 and 16")
	}

	dataDir := sharedcfg.EnvOrDefault("DATA_DIR", ".")
	disastersFile := sharedcfg.EnvOrDefault("DISASTERS_FILE", "output/disasters/disasters.json")
	if !filepath.IsAbs(disastersFile) {
		disastersFile = filepath.Join(dataDir, disastersFile)
	}

	cfg := &Config{
		DataDir:             dataDir,
		DisastersFile:       disastersFile,
		HTTPAddr:            sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:            sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:     shutdownTimeout,
		WFIGSURL:            sharedcfg.EnvOrDefault("WFIGS_URL", defaultWFIGSURL),
		WFIGSActiveURL:      sharedcfg.EnvOrDefault("WFIGS_ACTIVE_URL", defaultWFIGSActive),
		CopernicusURL:       sharedcfg.EnvOrDefault("COPERNICUS_URL", defaultCopernicusURL),
		HTTPTimeout:         httpTimeout,
		DownloadRateLimit:   rateLimit,
		DownloadConcurrency: concurrency,
		KafkaTopic:          sharedcfg.EnvOrDefault("KAFKA_TOPIC", "disaster-perimeters-processed"),
		WatchInterval:       watchInterval,
		PushgatewayURL:      os.Getenv("PUSHGATEWAY_URL"),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	if err := validateURL("WFIGS_URL", cfg.WFIGSURL); err != nil {
		return nil, err
	}
	if err := validateURL("WFIGS_ACTIVE_URL", cfg.WFIGSActiveURL); err != nil {
		return nil, err
	}
	if err := validateURL("COPERNICUS_URL", cfg.CopernicusURL); err != nil {
		return nil, err
	}
	if cfg.PushgatewayURL != "" {
		if err := validateURL("PUSHGATEWAY_URL", cfg.PushgatewayURL); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// NotificationsEnabled reports whether run notifications go to Kafka.
func (c *Config) NotificationsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid %s: %q is not an absolute URL", key, raw)
	}
	return nil
}
