package verifier

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rvnrstnsyh/rhythm/metrics"
)

// Metrics holds verification metrics. One set serves every Verifier in the
// process.
type Metrics struct {
	Verifications *prometheus.CounterVec
	Duration      prometheus.Histogram
	Entries       prometheus.Counter
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

func newMetrics() *Metrics {
	metricsOnce.Do(func() {
		reg := metrics.NewComponentRegistry("verifier")

		sharedMetrics = &Metrics{
			Verifications: reg.NewCounterVec(prometheus.CounterOpts{
				Name: "verifications_total",
				Help: "Total verification passes by result",
			}, []string{"result"}),

			Duration: reg.NewHistogram(prometheus.HistogramOpts{
				Name:    "verify_duration_seconds",
				Help:    "Time spent replaying an entry range",
				Buckets: metrics.VerifyBuckets,
			}),

			Entries: reg.NewCounter(prometheus.CounterOpts{
				Name: "entries_verified_total",
				Help: "Total entries checked across all passes",
			}),
		}
	})
	return sharedMetrics
}

func resultLabel(err error) string {
	var structural *StructuralError
	var mismatch *MismatchError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &structural):
		return "structural"
	case errors.As(err, &mismatch):
		return "mismatch"
	default:
		return "error"
	}
}
