package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "code"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "code"},
	)

	// Notifications
	smsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_sent_total",
			Help: "Total number of SMS messages successfully sent.",
		},
		[]string{"type"},
	)
	smsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_failed_total",
			Help: "Total number of SMS send attempts that failed.",
		},
		[]string{"type"},
	)
	emailSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_sent_total",
			Help: "Total number of reminder e-mails successfully sent.",
		},
		[]string{"type"},
	)
	emailFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_failed_total",
			Help: "Total number of reminder e-mail attempts that failed.",
		},
		[]string{"type"},
	)
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_run_duration_seconds",
			Help:    "Duration of a full notification dispatch run (seconds).",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"run"},
	)
	logWriteErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_log_errors_total",
			Help: "Audit-log writes that failed; each one is a hole in the idempotency record.",
		},
	)
	notificationsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rent_notifications_count",
			Help: "Current count of rent_notifications rows by status.",
		},
		[]string{"status"},
	)

	// Kafka
	kafkaMessagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kafka_messages_sent_total",
			Help: "Total number of Kafka messages successfully sent.",
		},
	)
	kafkaErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_errors_total",
			Help: "Total number of Kafka-related errors.",
		},
		[]string{"component", "operation"},
	)

	// Outbox
	outboxMessagesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "outbox_events_count",
			Help: "Current count of notification_events rows by status.",
		},
		[]string{"status"},
	)
	outboxEventsSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_events_sent_total",
			Help: "Total number of outbox events marked as sent.",
		},
	)
	outboxEventsFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_events_failed_total",
			Help: "Total number of outbox events marked as failed.",
		},
	)
	outboxProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "outbox_processing_duration_seconds",
			Help:    "Time spent sending a single outbox event (seconds).",
			Buckets: prometheus.DefBuckets,
		},
	)
	outboxRetryCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_retries_total",
			Help: "Total number of outbox send retries (failed attempts).",
		},
	)
	outboxLagSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "outbox_lag_seconds",
			Help:    "Lag between outbox event creation and send attempt (seconds).",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
	)
	outboxPendingCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "outbox_pending_count",
			Help: "Current number of pending outbox events.",
		},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,

			smsSent,
			smsFailed,
			emailSent,
			emailFailed,
			dispatchDuration,
			logWriteErrors,
			notificationsByStatus,

			kafkaMessagesSent,
			kafkaErrors,

			outboxMessagesTotal,
			outboxEventsSentTotal,
			outboxEventsFailedTotal,
			outboxProcessingDuration,
			outboxRetryCount,
			outboxLagSeconds,
			outboxPendingCount,
		)
		registerRedisMetrics()
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// --- HTTP ---
func ObserveHTTPRequest(method, route, code string, d time.Duration) {
	httpRequests.WithLabelValues(method, route, code).Inc()
	httpDuration.WithLabelValues(method, route, code).Observe(d.Seconds())
}

// --- Notifications ---
func IncSMSSent(t string)   { smsSent.WithLabelValues(t).Inc() }
func IncSMSFailed(t string) { smsFailed.WithLabelValues(t).Inc() }

func IncEmailSent(t string)   { emailSent.WithLabelValues(t).Inc() }
func IncEmailFailed(t string) { emailFailed.WithLabelValues(t).Inc() }

func ObserveDispatchDuration(run string, d time.Duration) {
	dispatchDuration.WithLabelValues(run).Observe(d.Seconds())
}

func IncLogWriteError() { logWriteErrors.Inc() }

func SetNotificationStatusCount(status string, n int64) {
	notificationsByStatus.WithLabelValues(status).Set(float64(n))
}

// --- Kafka ---
func IncKafkaSent() { kafkaMessagesSent.Inc() }
func IncKafkaError(component, operation string) {
	kafkaErrors.WithLabelValues(component, operation).Inc()
}

// --- Outbox ---
func IncOutboxSent()                          { outboxEventsSentTotal.Inc() }
func IncOutboxFailed()                        { outboxEventsFailedTotal.Inc() }
func ObserveOutboxProcessing(d time.Duration) { outboxProcessingDuration.Observe(d.Seconds()) }
func IncOutboxRetry()                         { outboxRetryCount.Inc() }
func ObserveOutboxLagSeconds(sec float64) {
	if sec < 0 {
		sec = 0
	}
	outboxLagSeconds.Observe(sec)
}
func SetOutboxStatusCount(status string, n int64) {
	outboxMessagesTotal.WithLabelValues(status).Set(float64(n))
}
func SetOutboxPendingCount(n int64) {
	if n < 0 {
		n = 0
	}
	outboxPendingCount.Set(float64(n))
}

func fmtInt(n int64) string { return strconv.FormatInt(n, 10) }
