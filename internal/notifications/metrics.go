package notifications

import (
	"time"

	"github.com/juntavecinos/notifier/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch outcomes.
const (
	outcomeCompleted     = "completed"
	outcomeNoRecipients  = "no_recipients"
	outcomeNotConfigured = "not_configured"
	outcomeError         = "error"
)

var (
	notificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "sent_total",
			Help:      "Total per-recipient send attempts by result",
		},
		[]string{"channel", "status"},
	)

	notificationSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "send_duration_seconds",
			Help:      "Time spent in a sender call",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"channel"},
	)

	dispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "dispatch_total",
			Help:      "Dispatch runs by outcome",
		},
		[]string{"channel", "outcome"},
	)

	dispatchRecipients = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "recipients",
			Help:      "Recipients resolved by the last dispatch",
		},
		[]string{"channel"},
	)
)

func recordNotificationSent(channel, status string) {
	notificationsSent.WithLabelValues(channel, status).Inc()
}

func recordNotificationDuration(channel string, duration time.Duration) {
	notificationSendDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

func recordDispatch(channel, outcome string) {
	dispatches.WithLabelValues(channel, outcome).Inc()
}

func recordRecipients(channel string, n int) {
	dispatchRecipients.WithLabelValues(channel).Set(float64(n))
}
