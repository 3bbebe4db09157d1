package inbound

import (
	"github.com/juntavecinos/notifier/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var commandsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "inbound",
		Name:      "commands_total",
		Help:      "Inbound bot commands by channel, command and outcome.",
	},
	[]string{"channel", "command", "outcome"},
)
