package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.DataDir)
	assert.Equal(t, filepath.Join(".", "output/disasters/disasters.json"), cfg.DisastersFile)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, defaultWFIGSURL, cfg.WFIGSURL)
	assert.Equal(t, defaultWFIGSActive, cfg.WFIGSActiveURL)
	assert.Equal(t, defaultCopernicusURL, cfg.CopernicusURL)
	assert.Equal(t, 60*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 2.0, cfg.DownloadRateLimit)
	assert.Equal(t, 4, cfg.DownloadConcurrency)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.NotificationsEnabled())
	assert.Equal(t, "disaster-perimeters-processed", cfg.KafkaTopic)
	assert.Equal(t, 6*time.Hour, cfg.WatchInterval)
	assert.Empty(t, cfg.PushgatewayURL)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("DATA_DIR", "/srv/readymapper")
	t.Setenv("DISASTERS_FILE", "configs/disasters.yaml")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("WFIGS_URL", "http://localhost:8081/query")
	t.Setenv("WFIGS_ACTIVE_URL", "http://localhost:8081/active/query")
	t.Setenv("COPERNICUS_URL", "http://localhost:8082/backend")
	t.Setenv("HTTP_TIMEOUT", "5s")
	t.Setenv("DOWNLOAD_RATE_LIMIT", "0.5")
	t.Setenv("DOWNLOAD_CONCURRENCY", "8")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_TOPIC", "perimeters")
	t.Setenv("WATCH_INTERVAL", "30m")
	t.Setenv("PUSHGATEWAY_URL", "http://pushgateway:9091")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/readymapper", cfg.DataDir)
	assert.Equal(t, "/srv/readymapper/configs/disasters.yaml", cfg.DisastersFile)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "http://localhost:8081/query", cfg.WFIGSURL)
	assert.Equal(t, "http://localhost:8081/active/query", cfg.WFIGSActiveURL)
	assert.Equal(t, "http://localhost:8082/backend", cfg.CopernicusURL)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 0.5, cfg.DownloadRateLimit)
	assert.Equal(t, 8, cfg.DownloadConcurrency)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.NotificationsEnabled())
	assert.Equal(t, "perimeters", cfg.KafkaTopic)
	assert.Equal(t, 30*time.Minute, cfg.WatchInterval)
	assert.Equal(t, "http://pushgateway:9091", cfg.PushgatewayURL)
}

func TestLoad_AbsoluteDisastersFile(t *testing.T) {
	t.Setenv("DATA_DIR", "/srv/readymapper")
	t.Setenv("DISASTERS_FILE", "/etc/disasters.json")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/etc/disasters.json", cfg.DisastersFile)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("HTTP_ADDR=:7070\n"), 0o600))
	t.Chdir(dir)
	t.Cleanup(func() { os.Unsetenv("HTTP_ADDR") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTPAddr)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration"},
		{"SHUTDOWN_TIMEOUT", "-1s"},
		{"HTTP_TIMEOUT", "soon"},
		{"HTTP_TIMEOUT", "0s"},
		{"WATCH_INTERVAL", "-5m"},
		{"DOWNLOAD_RATE_LIMIT", "fast"},
		{"DOWNLOAD_RATE_LIMIT", "0"},
		{"DOWNLOAD_CONCURRENCY", "0"},
		{"DOWNLOAD_CONCURRENCY", "64"},
		{"WFIGS_URL", "not a url"},
		{"WFIGS_ACTIVE_URL", "ftp//nowhere"},
		{"COPERNICUS_URL", "/relative/path"},
		{"PUSHGATEWAY_URL", "pushgateway"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_EmptyKafkaTopicUsesDefault(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "localhost:9092")
	t.Setenv("KAFKA_TOPIC", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "disaster-perimeters-processed", cfg.KafkaTopic)
}
