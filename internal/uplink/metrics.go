package uplink

import "github.com/prometheus/client_golang/prometheus"

// Prometheus connection pool metrics.
var (
	connectionsByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fleetbridge",
			Name:      "uplink_connections",
			Help:      "Device connections by state.",
		},
		[]string{"state"},
	)
	dialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetbridge",
			Name:      "uplink_dials_total",
			Help:      "Dial attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(connectionsByState)
	prometheus.MustRegister(dialsTotal)
}
