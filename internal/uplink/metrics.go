package uplink

import "github.com/prometheus/client_golang/prometheus"

var (
	// batchesTotal counts flush attempts by result ("ok" | "error").
	batchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfid_uplink_batches_total",
			Help: "Uplink batch deliveries by result.",
		},
		[]string{"result"},
	)

	// eventsSent counts tag reads acknowledged by the center.
	eventsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rfid_uplink_events_sent_total",
		Help: "Tag reads acknowledged by the center.",
	})
)

func init() {
	prometheus.MustRegister(batchesTotal, eventsSent)
}
