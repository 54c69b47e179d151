package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus/push"
)

// PushJob is the Pushgateway job name for batch runs.
const PushJob = "disaster_perimeter_etl"

// Push sends the metrics of a finished batch run to a Pushgateway. Batch
// commands exit before a scrape could see them.
func (m *Metrics) Push(gatewayURL, instance string) error {
	p := push.New(gatewayURL, PushJob).Gatherer(m.Registry())
	if instance != "" {
		p = p.Grouping("instance", instance)
	}
	if err := p.Push(); err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
