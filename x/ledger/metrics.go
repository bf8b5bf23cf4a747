package ledger

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rvnrstnsyh/rhythm/metrics"
)

// Metrics holds entry log metrics. One set serves every Log in the process.
type Metrics struct {
	Appends         prometheus.Counter
	Length          prometheus.Gauge
	Subscribers     prometheus.Gauge
	SubscriberDrops prometheus.Counter
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

func newMetrics() *Metrics {
	metricsOnce.Do(func() {
		reg := metrics.NewComponentRegistry("ledger")

		sharedMetrics = &Metrics{
			Appends: reg.NewCounter(prometheus.CounterOpts{
				Name: "appends_total",
				Help: "Total number of entries appended",
			}),

			Length: reg.NewGauge(prometheus.GaugeOpts{
				Name: "length",
				Help: "Number of entries currently held",
			}),

			Subscribers: reg.NewGauge(prometheus.GaugeOpts{
				Name: "subscribers",
				Help: "Number of active push subscriptions",
			}),

			SubscriberDrops: reg.NewCounter(prometheus.CounterOpts{
				Name: "subscriber_drops_total",
				Help: "Entries dropped because a subscriber buffer was full",
			}),
		}
	})
	return sharedMetrics
}
