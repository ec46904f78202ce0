package triage

import "github.com/prometheus/client_golang/prometheus"

var messagesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "triage_messages_total",
		Help: "Inbound messages logged by the triage agent, by disposition.",
	},
	[]string{"disposition"},
)

func init() {
	prometheus.MustRegister(messagesTotal)
}
