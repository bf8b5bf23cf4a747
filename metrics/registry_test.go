package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRegistrySingleton(t *testing.T) {
	assert.Same(t, GetRegistry(), GetRegistry(), "registry must be process-wide")
}

func TestComponentRegistryNaming(t *testing.T) {
	reg := NewComponentRegistry("naming_test")

	counter := reg.NewCounter(prometheus.CounterOpts{
		Name: "events_total",
		Help: "Total events",
	})
	counter.Inc()
	counter.Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(counter))

	count, err := testutil.GatherAndCount(GetRegistry(), "rhythm_naming_test_events_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "metric must be exposed under rhythm_<subsystem>_<name>")
}

func TestComponentRegistryVecLabels(t *testing.T) {
	reg := NewComponentRegistry("vec_test")

	vec := reg.NewCounterVec(prometheus.CounterOpts{
		Name: "ticks_total",
		Help: "Ticks by kind",
	}, []string{"kind"})

	vec.WithLabelValues("tick").Inc()
	vec.WithLabelValues("mixin").Add(3)

	assert.Equal(t, float64(1), testutil.ToFloat64(vec.WithLabelValues("tick")))
	assert.Equal(t, float64(3), testutil.ToFloat64(vec.WithLabelValues("mixin")))
}

func TestRuntimeCollector(t *testing.T) {
	collector := NewRuntimeCollector()

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(collector))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 4)

	names := make(map[string]bool, len(families))
	for _, fam := range families {
		names[fam.GetName()] = true
	}
	assert.True(t, names["rhythm_runtime_goroutines"])
	assert.True(t, names["rhythm_runtime_mem_alloc_bytes"])
}
