package relay

import "github.com/prometheus/client_golang/prometheus"

var (
	relayFires = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfid_relay_fires_total",
			Help: "Momentary relay commands written, by channel.",
		},
		[]string{"channel"},
	)

	relayFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rfid_relay_failures_total",
		Help: "Relay open, write or flush failures.",
	})
)

func init() {
	prometheus.MustRegister(relayFires, relayFailures)
}
