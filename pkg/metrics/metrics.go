package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "netatmo2wow"

// Collectors groups the bridge metrics
type Collectors struct {
	Runs            *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	LastSuccess     prometheus.Gauge
	Observations    *prometheus.CounterVec
	Published       *prometheus.CounterVec
	PublishFailures *prometheus.CounterVec

	// LatestObservation is the newest reconciled timestamp per device
	LatestObservation *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Reconciliation runs by result.",
		}, []string{"result"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a full pull, archive and publish run.",
			Buckets:   prometheus.DefBuckets,
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		Observations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_total",
			Help:      "Reconciled observations per device.",
		}, []string{"device_id"}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_total",
			Help:      "Observations accepted by a publisher.",
		}, []string{"publisher"}),
		PublishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Publish batches aborted by an error.",
		}, []string{"publisher"}),
		LatestObservation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "latest_observation_timestamp_seconds",
			Help:      "Unix time of the newest reconciled observation per device.",
		}, []string{"device_id"}),
	}

	if reg != nil {
		reg.MustRegister(c.Runs, c.RunDuration, c.LastSuccess, c.Observations, c.Published, c.PublishFailures, c.LatestObservation)
	}

	return c
}
