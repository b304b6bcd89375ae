package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Dispatch metrics
	AlertsDispatched *prometheus.CounterVec
	DispatchLatency  prometheus.Histogram
	DispatchPasses   prometheus.Counter

	// Transport metrics
	TelegramSends       *prometheus.CounterVec
	TelegramSendLatency prometheus.Histogram

	// Bot poller metrics
	PollerBatches  prometheus.Counter
	PollerCommands *prometheus.CounterVec
	PollerErrors   prometheus.Counter
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		AlertsDispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "alerts_dispatched_total",
			Help:      "Alerts evaluated by the dispatcher, by outcome status",
		}, []string{"status"}),
		DispatchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispatch_pass_duration_seconds",
			Help:      "Time spent in one dispatch pass",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		DispatchPasses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispatch_passes_total",
			Help:      "Total number of dispatch passes",
		}),
		TelegramSends: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "telegram_sends_total",
			Help:      "Telegram sendMessage calls, by result",
		}, []string{"result"}),
		TelegramSendLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "telegram_send_duration_seconds",
			Help:      "Duration of Telegram sendMessage calls",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5},
		}),
		PollerBatches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bot_poller_batches_total",
			Help:      "Update batches processed by the bot poller",
		}),
		PollerCommands: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bot_poller_commands_total",
			Help:      "Bot commands handled, by command",
		}, []string{"command"}),
		PollerErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bot_poller_errors_total",
			Help:      "Transport errors seen by the bot poller",
		}),
	}
}
