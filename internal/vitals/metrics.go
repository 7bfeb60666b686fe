package vitals

import "github.com/prometheus/client_golang/prometheus"

// Prometheus liveness metrics.
var (
	devicesOnline = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fleetbridge",
			Name:      "devices_online",
			Help:      "Number of devices currently considered online.",
		},
		[]string{"category"},
	)
	heartbeatsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetbridge",
			Name:      "heartbeats_total",
			Help:      "Total heartbeats received.",
		},
		[]string{"category"},
	)
)

func init() {
	prometheus.MustRegister(devicesOnline)
	prometheus.MustRegister(heartbeatsTotal)
}
