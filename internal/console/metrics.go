package console

import "github.com/prometheus/client_golang/prometheus"

var sessionsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "fleetbridge",
	Name:      "console_sessions_open",
	Help:      "Live remote sessions across all devices.",
})

func init() {
	prometheus.MustRegister(sessionsOpen)
}
