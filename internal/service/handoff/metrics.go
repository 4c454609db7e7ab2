package handoff

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	lifecycleTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdesk_handoff_transitions_total",
			Help: "Handoff lifecycle transitions by kind.",
		},
		[]string{"transition"},
	)

	claimRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdesk_handoff_claim_rejections_total",
			Help: "Claims rejected, by reason.",
		},
		[]string{"reason"},
	)

	relayMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdesk_handoff_messages_total",
			Help: "Messages appended to the handoff relay, by sender type.",
		},
		[]string{"sender"},
	)
)

func init() {
	prometheus.MustRegister(lifecycleTransitions)
	prometheus.MustRegister(claimRejections)
	prometheus.MustRegister(relayMessages)
}

func observeLifecycle(transition string) {
	lifecycleTransitions.WithLabelValues(transition).Inc()
}

func observeClaimRejected(reason string) {
	claimRejections.WithLabelValues(reason).Inc()
}

func observeMessage(sender string) {
	relayMessages.WithLabelValues(sender).Inc()
}
