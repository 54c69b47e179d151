//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/disaster-perimeter-etl/internal/adapter/geojsonfile"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/adapter/kafka"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/config"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/domain"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/geo"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/observability"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/perimeter"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/workspace"
)

const testTopic = "test-perimeters-processed"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// writeFixture writes one domestic perimeter file per day.
func writeFixture(t *testing.T, layout workspace.Layout, id string) {
	t.Helper()
	dir := filepath.Join(layout.PerimeterInputDir(id), "Marshall")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	sizes := map[string]float64{"20211230": 0.02, "20220101": 0.04}
	for day, size := range sizes {
		x, y := -105.2, 39.9
		data := fmt.Sprintf(`{"type":"FeatureCollection","features":[{"type":"Feature",`+
			`"properties":{"poly_IncidentName":"Marshall","irwin_FireDiscoveryDateTime":1640887200000},`+
			`"geometry":{"type":"Polygon","coordinates":[[[%[1]f,%[2]f],[%[3]f,%[2]f],[%[3]f,%[4]f],[%[1]f,%[4]f],[%[1]f,%[2]f]]]}}]}`,
			x, y, x+size, y+size)
		require.NoError(t, os.WriteFile(filepath.Join(dir, day+".geojson"), []byte(data), 0o600))
	}
}

// TestPipelineNotifiesKafka runs a disaster through the pipeline with the
// GeoJSON sink and the Kafka notifier and reads the notification back.
func TestPipelineNotifiesKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTopic: testTopic}
	notifier := kafka.NewNotifier(cfg, discardLogger())
	t.Cleanup(func() { _ = notifier.Close() })

	layout := workspace.New(t.TempDir())
	d := domain.Disaster{ID: "2021-marshall-fire", Type: "fire", DateStart: "2021-12-30", DateEnd: "2022-01-01"}
	writeFixture(t, layout, d.ID)

	engine := geo.NewEngine()
	p := perimeter.New(layout,
		[]perimeter.Source{perimeter.NewDomesticSource(engine, discardLogger())},
		engine,
		geojsonfile.NewWriter(layout, discardLogger()),
		notifier,
		discardLogger(),
		observability.NewMetricsForTesting(),
	)

	report, err := p.Run(ctx, d)
	require.NoError(t, err)
	require.Equal(t, perimeter.StatusOK, report.Status)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read notification")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, d.ID, string(msg.Key))
	assert.Equal(t, report.RunID.String(), headers["run_id"])
	_, err = time.Parse(time.RFC3339, headers["processed_at"])
	assert.NoError(t, err, "processed_at should be valid RFC3339")

	var body kafka.RunMessage
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, "ok", body.Status)
	require.Len(t, body.Incidents, 1)
	assert.Equal(t, "Marshall", body.Incidents[0].Name)
	assert.Equal(t, 3, body.Incidents[0].Days)
	assert.Equal(t, 1, body.Incidents[0].Filled)
	assert.Len(t, body.Outputs, 3)
	for _, out := range body.Outputs {
		assert.FileExists(t, out)
	}
}
