package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatherCounter(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)

	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		var total float64
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		return total
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}

func TestNew_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.Runs.WithLabelValues("success").Inc()
	c.Published.WithLabelValues("wow").Add(3)
	c.Observations.WithLabelValues("70:ee:50:00:00:01").Add(12)

	assert.Equal(t, 1.0, gatherCounter(t, reg, "netatmo2wow_runs_total"))
	assert.Equal(t, 3.0, gatherCounter(t, reg, "netatmo2wow_published_total"))
	assert.Equal(t, 12.0, gatherCounter(t, reg, "netatmo2wow_observations_total"))

	c.LatestObservation.WithLabelValues("70:ee:50:00:00:01").Set(1700000000)
	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "netatmo2wow_latest_observation_timestamp_seconds" {
			found = true
			assert.Equal(t, 1700000000.0, f.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.True(t, found)
}

func TestNew_NilRegisterer(t *testing.T) {
	c := New(nil)

	assert.NotPanics(t, func() {
		c.PublishFailures.WithLabelValues("wow").Inc()
	})
}

func TestNew_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	assert.Panics(t, func() { New(reg) })
}
