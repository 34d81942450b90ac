package observability

import (
	"testing"

	gu "github.com/xraph/go-utils/metrics"
)

func newTestMetrics() *Metrics {
	return NewMetrics(gu.NewMetricsCollector("relay"))
}

func TestNewMetrics_Instruments(t *testing.T) {
	m := newTestMetrics()

	if m.ActivitiesReceived == nil {
		t.Fatal("ActivitiesReceived should not be nil")
	}
	if m.FollowersGauge == nil {
		t.Fatal("FollowersGauge should not be nil")
	}
	if m.FanoutTargets == nil {
		t.Fatal("FanoutTargets should not be nil")
	}
	if m.DeliveriesTotal == nil {
		t.Fatal("DeliveriesTotal should not be nil")
	}
	if m.DeliveryLatency == nil {
		t.Fatal("DeliveryLatency should not be nil")
	}
	if m.DLQSize == nil {
		t.Fatal("DLQSize should not be nil")
	}
	if m.PendingDeliveries == nil {
		t.Fatal("PendingDeliveries should not be nil")
	}
}

func TestRecordActivity(t *testing.T) {
	m := newTestMetrics()

	m.RecordActivity("Create")
	m.RecordActivity("Create")
	m.RecordActivity("Announce")
}

func TestRecordDelivery(t *testing.T) {
	m := newTestMetrics()

	m.RecordDelivery("delivered", 0.5)
	m.RecordDelivery("delivered", 1.2)
	m.RecordDelivery("failed", 0.3)
}

func TestGauges(t *testing.T) {
	m := newTestMetrics()

	m.FollowersGauge.Set(7)
	m.DLQSize.Set(42)
	m.PendingDeliveries.Set(100)
}
