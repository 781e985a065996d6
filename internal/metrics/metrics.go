package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatcher metrics.
var (
	UpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "maxbot_updates_total",
		Help: "Inbound updates by ingress source and outcome",
	}, []string{"source", "outcome"})

	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "maxbot_commands_total",
		Help: "Commands dispatched by command token",
	}, []string{"command"})

	RateLimitHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "maxbot_rate_limit_hits_total",
		Help: "Total rate limit rejections",
	})

	HandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "maxbot_handler_errors_total",
		Help: "Handler failures by kind (command or text)",
	}, []string{"kind"})
)

// Transport metrics.
var (
	SendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "maxbot_send_duration_seconds",
		Help:    "Outbound sendMessage call duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	WebhookRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "maxbot_webhook_requests_total",
		Help: "Webhook ingress requests by result",
	}, []string{"result"})
)

// Store metrics.
var (
	StoreSaveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "maxbot_store_save_duration_seconds",
		Help:    "Durable store save duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	StoreSaveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "maxbot_store_save_failures_total",
		Help: "Durable store saves that exhausted their retries",
	})
)
