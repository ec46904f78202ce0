package approval

import "github.com/prometheus/client_golang/prometheus"

var (
	submittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "approval_submitted_total",
		Help: "Approval requests mailed to the approver.",
	})

	// decisionsTotal is labelled by the channel that decided and the
	// outcome (approved or rejected).
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_decisions_total",
			Help: "Approval decisions absorbed, by channel and outcome.",
		},
		[]string{"channel", "outcome"},
	)

	sentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "approval_sent_total",
		Help: "Approved drafts delivered to their final recipient.",
	})

	sendFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "approval_send_failures_total",
		Help: "Failed deliveries of approved drafts.",
	})

	listenerErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "approval_listener_errors_total",
		Help: "Listener invocations that returned an error or panicked.",
	})

	pendingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "approval_pending",
		Help: "Requests currently awaiting a decision.",
	})
)

func init() {
	prometheus.MustRegister(
		submittedTotal, decisionsTotal, sentTotal,
		sendFailuresTotal, listenerErrorsTotal, pendingGauge,
	)
}
