package whatsapp

import (
	"github.com/juntavecinos/notifier/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var templateFallbacks = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "whatsapp",
		Name:      "template_fallback_total",
		Help:      "Template sends that failed and fell back to free text, by fallback result.",
	},
	[]string{"result"},
)
