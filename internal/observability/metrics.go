package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tbourn/rfid-gate/internal/domain"
)

var (
	// decisions counts evaluated tag reads by outcome.
	decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfid_decisions_total",
			Help: "Tag reads evaluated by the decision engine, by reason.",
		},
		[]string{"reason"},
	)

	// retentionDeleted counts audit rows removed by the retention trim.
	retentionDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rfid_audit_trimmed_total",
		Help: "Audit rows deleted by retention.",
	})
)

func init() {
	prometheus.MustRegister(decisions, retentionDeleted)
	for _, r := range domain.Reasons {
		decisions.WithLabelValues(string(r))
	}
}

// ObserveDecision records one decision outcome.
func ObserveDecision(r domain.Reason) {
	decisions.WithLabelValues(string(r)).Inc()
}

// ObserveRetention records rows deleted by the retention trim.
func ObserveRetention(n int64) {
	if n > 0 {
		retentionDeleted.Add(float64(n))
	}
}
