package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("file skipped", "path", "20230819.geojson")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "file skipped", entry["msg"])
	assert.Equal(t, "20230819.geojson", entry["path"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "debug", "TEXT").Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "k=v")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestMetrics_Registry(t *testing.T) {
	m := NewMetricsForTesting()
	m.Observations.Add(3)
	m.DuplicateResolutions.WithLabelValues("fallback").Inc()

	reg := m.Registry()
	count, err := testutil.GatherAndCount(reg, "perimeter_etl_observations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Observations))
}

func TestMetrics_Push(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMetricsForTesting()
	m.Runs.WithLabelValues("ok").Inc()

	require.NoError(t, m.Push(srv.URL, "2021-marshall-fire"))
	assert.Contains(t, gotPath, "/metrics/job/"+PushJob)
	assert.Contains(t, gotPath, "instance/2021-marshall-fire")
}

func TestMetrics_PushError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewMetricsForTesting().Push(srv.URL, "")
	assert.Error(t, err)
}
