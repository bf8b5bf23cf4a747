package sequencer

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rvnrstnsyh/rhythm/metrics"
)

// Metrics holds tick loop metrics. One set serves every Sequencer in the
// process.
type Metrics struct {
	Ticks         *prometheus.CounterVec
	Hashes        prometheus.Counter
	TickDuration  prometheus.Histogram
	MixinSize     prometheus.Histogram
	CadenceMisses prometheus.Counter
	QueueDepth    prometheus.Gauge
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

func newMetrics() *Metrics {
	metricsOnce.Do(func() {
		reg := metrics.NewComponentRegistry("sequencer")

		sharedMetrics = &Metrics{
			Ticks: reg.NewCounterVec(prometheus.CounterOpts{
				Name: "ticks_total",
				Help: "Total ticks produced by kind",
			}, []string{"kind"}),

			Hashes: reg.NewCounter(prometheus.CounterOpts{
				Name: "hashes_total",
				Help: "Total chain hashes computed",
			}),

			TickDuration: reg.NewHistogram(prometheus.HistogramOpts{
				Name:    "tick_duration_seconds",
				Help:    "Time spent hashing and appending per tick",
				Buckets: metrics.TickDurationBuckets,
			}),

			MixinSize: reg.NewHistogram(prometheus.HistogramOpts{
				Name:    "mixin_size_bytes",
				Help:    "Size of mixed-in payloads",
				Buckets: metrics.SizeBuckets,
			}),

			CadenceMisses: reg.NewCounter(prometheus.CounterOpts{
				Name: "cadence_misses_total",
				Help: "Ticks that finished after the following tick's deadline",
			}),

			QueueDepth: reg.NewGauge(prometheus.GaugeOpts{
				Name: "queue_depth",
				Help: "Mix-in requests waiting in the hand-off queue",
			}),
		}
	})
	return sharedMetrics
}
