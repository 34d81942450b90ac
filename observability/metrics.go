package observability

import (
	gu "github.com/xraph/go-utils/metrics"
)

// Metrics holds metric instruments for the relay, backed by any go-utils
// MetricFactory.
type Metrics struct {
	ActivitiesReceived gu.Counter
	FollowersGauge     gu.Gauge
	FanoutTargets      gu.Histogram
	DeliveriesTotal    gu.Counter
	DeliveryLatency    gu.Histogram
	DLQSize            gu.Gauge
	PendingDeliveries  gu.Gauge
}

// NewMetrics creates relay metric instruments using the supplied factory.
// Pass metrics.NewMetricsCollector("relay") for standalone usage.
func NewMetrics(factory gu.MetricFactory) *Metrics {
	return &Metrics{
		ActivitiesReceived: factory.Counter("relay_activities_received_total"),
		FollowersGauge:     factory.Gauge("relay_followers"),
		FanoutTargets:      factory.Histogram("relay_fanout_targets"),
		DeliveriesTotal:    factory.Counter("relay_deliveries_total"),
		DeliveryLatency:    factory.Histogram("relay_delivery_latency_seconds"),
		DLQSize:            factory.Gauge("relay_dlq_size"),
		PendingDeliveries:  factory.Gauge("relay_pending_deliveries"),
	}
}

// RecordActivity records an inbound activity by classified type.
func (m *Metrics) RecordActivity(activityType string) {
	m.ActivitiesReceived.WithLabels(map[string]string{"type": activityType}).Inc()
}

// RecordDelivery records a delivery attempt with the given status and latency.
func (m *Metrics) RecordDelivery(status string, latencySeconds float64) {
	m.DeliveriesTotal.WithLabels(map[string]string{"status": status}).Inc()
	m.DeliveryLatency.Observe(latencySeconds)
}
