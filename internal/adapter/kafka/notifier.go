package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/disaster-perimeter-etl/internal/config"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/domain"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/perimeter"
)

// Notifier publishes one message per finished run to a Kafka topic so the
// front-end deployment can pick up the refreshed layers.
// It implements perimeter.Notifier.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the configured notification topic.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Notifier{writer: w, logger: logger}
}

// Notify publishes the run report.
func (n *Notifier) Notify(ctx context.Context, report perimeter.RunReport) error {
	msg, err := serializeToMessage(report)
	if err != nil {
		return err
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish run %s: %w", report.RunID, err)
	}
	n.logger.Debug("run notification published", "disaster", report.DisasterID, "run_id", report.RunID)
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// RunMessage is the JSON value of a run notification.
type RunMessage struct {
	RunID       string            `json:"run_id"`
	DisasterID  string            `json:"disaster_id"`
	Source      string            `json:"source"`
	Status      string            `json:"status"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
	Files       int               `json:"files"`
	FailedFiles int               `json:"failed_files"`
	Incidents   []IncidentMessage `json:"incidents"`
	Unresolved  int               `json:"unresolved_duplicates"`
	Outputs     []string          `json:"outputs"`
}

// IncidentMessage summarizes one incident of a run.
type IncidentMessage struct {
	Name        string `json:"name"`
	Days        int    `json:"days"`
	Filled      int    `json:"filled"`
	Differences int    `json:"differences"`
	Repeated    int    `json:"repeated"`
	Error       string `json:"error,omitempty"`
}

func newRunMessage(r perimeter.RunReport) RunMessage {
	msg := RunMessage{
		RunID:       r.RunID.String(),
		DisasterID:  r.DisasterID,
		Source:      string(r.Source),
		Status:      r.Status,
		StartedAt:   r.StartedAt.UTC(),
		FinishedAt:  r.FinishedAt.UTC(),
		Files:       len(r.Files),
		FailedFiles: r.FailedFiles(),
		Incidents:   make([]IncidentMessage, 0, len(r.Incidents)),
		Outputs:     r.Outputs,
	}
	for _, inc := range r.Incidents {
		im := IncidentMessage{
			Name:        inc.Incident,
			Days:        inc.Days,
			Filled:      inc.Filled,
			Differences: inc.Differences,
			Repeated:    inc.Repeated,
		}
		if inc.Err != nil {
			im.Error = inc.Err.Error()
		}
		msg.Incidents = append(msg.Incidents, im)
	}
	for _, res := range r.Resolutions {
		if res.Outcome != domain.OutcomeResolved {
			msg.Unresolved++
		}
	}
	return msg
}

// serializeToMessage marshals a run report into a Kafka message keyed by
// disaster id, so runs of one disaster stay ordered on a partition.
func serializeToMessage(report perimeter.RunReport) (kafkago.Message, error) {
	data, err := json.Marshal(newRunMessage(report))
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize run report: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(report.DisasterID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(report.RunID.String())},
			{Key: "status", Value: []byte(report.Status)},
			{Key: "processed_at", Value: []byte(report.FinishedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
