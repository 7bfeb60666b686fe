package rollout

import "github.com/prometheus/client_golang/prometheus"

// Prometheus deployment metrics.
var (
	deploymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetbridge",
			Name:      "rollout_deployments_total",
			Help:      "Finished deployments by outcome.",
		},
		[]string{"outcome"},
	)
	deploymentsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fleetbridge",
			Name:      "rollout_deployments_active",
			Help:      "Deployments currently running a step sequence.",
		},
	)
)

func init() {
	prometheus.MustRegister(deploymentsTotal)
	prometheus.MustRegister(deploymentsActive)
}
