package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	// outboxPending gauges unsent rows as of the last Pending call.
	outboxPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rfid_outbox_pending",
		Help: "Unsent tag reads in the edge outbox.",
	})

	// outboxTrimmed counts rows dropped by the capacity cap.
	outboxTrimmed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rfid_outbox_trimmed_total",
		Help: "Tag reads dropped from the edge outbox by the capacity cap.",
	})
)

func init() {
	prometheus.MustRegister(outboxPending, outboxTrimmed)
}
