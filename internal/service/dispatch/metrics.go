package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	dispatchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdesk_dispatch_attempts_total",
			Help: "Outbound dispatch attempts by outcome.",
		},
		[]string{"outcome"},
	)
	dispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatdesk_dispatch_duration_seconds",
			Help:    "Duration of outbound dispatch calls.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(dispatchAttempts, dispatchDuration)
}

func observeDispatch(outcome string, duration time.Duration) {
	dispatchAttempts.WithLabelValues(outcome).Inc()
	dispatchDuration.Observe(duration.Seconds())
}
