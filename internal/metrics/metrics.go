package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpsbot_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vpsbot_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	PaymentIntentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpsbot_payment_intents_total",
			Help: "Payment intents by final outcome",
		},
		[]string{"status"},
	)

	PendingIntents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vpsbot_pending_payment_intents",
			Help: "Payment intents currently awaiting settlement",
		},
	)

	CreditedAmountTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vpsbot_credited_amount_total",
			Help: "Sum of requested amounts credited by reconciliation, in minor units",
		},
	)

	PollCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpsbot_settlement_poll_cycles_total",
			Help: "Settlement feed poll cycles by result",
		},
		[]string{"result"},
	)

	FeedFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vpsbot_settlement_feed_fetch_seconds",
			Help:    "Duration of settlement feed fetches",
			Buckets: prometheus.DefBuckets,
		},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpsbot_notifications_total",
			Help: "Outbound notifications by status",
		},
		[]string{"status"},
	)

	NotificationQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vpsbot_notification_queue_length",
			Help: "Current length of the notification queue",
		},
	)

	PurchasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpsbot_purchases_total",
			Help: "Server purchases by result",
		},
		[]string{"result"},
	)

	ChatCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpsbot_chat_commands_total",
			Help: "Chat commands handled by command and result",
		},
		[]string{"command", "result"},
	)

	LedgerInvariantViolations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vpsbot_ledger_invariant_violations_total",
			Help: "Ledger consistency checks that found sum(transactions) != balance",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordIntent(status string) {
	PaymentIntentsTotal.WithLabelValues(status).Inc()
}

func SetPending(n int) {
	PendingIntents.Set(float64(n))
}

func RecordCredit(amount int64) {
	CreditedAmountTotal.Add(float64(amount))
}

func RecordPollCycle(result string, seconds float64) {
	PollCyclesTotal.WithLabelValues(result).Inc()
	FeedFetchDuration.Observe(seconds)
}

func RecordNotification(status string) {
	NotificationsTotal.WithLabelValues(status).Inc()
}

func RecordPurchase(result string) {
	PurchasesTotal.WithLabelValues(result).Inc()
}

func RecordInvariantViolation() {
	LedgerInvariantViolations.Inc()
}

func SetNotificationQueueLength(n int64) {
	NotificationQueueLength.Set(float64(n))
}

func RecordChatCommand(command, result string) {
	ChatCommandsTotal.WithLabelValues(command, result).Inc()
}
