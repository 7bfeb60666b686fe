package relay

import "github.com/prometheus/client_golang/prometheus"

var observersGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "fleetbridge",
		Name:      "relay_observers",
		Help:      "Currently attached stream observers.",
	},
)

func init() {
	prometheus.MustRegister(observersGauge)
}
