package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec

	chatSessionsActive      prometheus.Gauge
	chatMessagesSentTotal   *prometheus.CounterVec
	chatDecryptFailures     prometheus.Counter
	chatWatchdogTimeouts    prometheus.Counter
	chatMessagesExpired     prometheus.Counter
	membershipMirrorErrors  *prometheus.CounterVec
	membershipReconcileRuns *prometheus.CounterVec
	pushDeliveriesTotal     *prometheus.CounterVec
	notificationsPublished  *prometheus.CounterVec
	sseClientsActive        prometheus.Gauge
	uploadLatencySeconds    prometheus.Histogram
	uploadRejectedTotal     *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		chatSessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_sessions_active",
			Help: "Number of open chat synchronisation sessions.",
		})

		chatMessagesSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Messages accepted by the composer, by chat kind.",
		}, []string{"kind"})

		chatDecryptFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_decrypt_failures_total",
			Help: "Messages rendered with the undecryptable placeholder.",
		})

		chatWatchdogTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_watchdog_timeouts_total",
			Help: "Chat sessions that failed to receive an initial snapshot in time.",
		})

		chatMessagesExpired = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_messages_expired_total",
			Help: "Disappearing messages removed by the expiry sweeper.",
		})

		membershipMirrorErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "membership_mirror_failures_total",
			Help: "Best-effort membership mirror writes that failed, by saga step.",
		}, []string{"step"})

		membershipReconcileRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "membership_reconcile_runs_total",
			Help: "Membership mirror reconciliation runs by outcome.",
		}, []string{"result"})

		pushDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "push_deliveries_total",
			Help: "Push hand-offs to the Expo service by outcome.",
		}, []string{"result"})

		notificationsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "In-app notifications created, by type.",
		}, []string{"type"})

		sseClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sse_clients_active",
			Help: "Connected notification stream clients.",
		})

		uploadLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "avatar_upload_latency_seconds",
			Help:    "Time spent validating and storing profile images.",
			Buckets: prometheus.DefBuckets,
		})

		uploadRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "avatar_upload_rejected_total",
			Help: "Profile image uploads rejected, by reason.",
		}, []string{"reason"})

		prometheus.MustRegister(
			httpRequestsTotal, httpLatencySeconds, httpErrorsTotal,
			chatSessionsActive, chatMessagesSentTotal, chatDecryptFailures, chatWatchdogTimeouts, chatMessagesExpired,
			membershipMirrorErrors, membershipReconcileRuns,
			pushDeliveriesTotal, notificationsPublished, sseClientsActive,
			uploadLatencySeconds, uploadRejectedTotal,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

func ChatSessionsActive() prometheus.Gauge {
	RegisterMetrics()
	return chatSessionsActive
}

func ChatMessagesSent() *prometheus.CounterVec {
	RegisterMetrics()
	return chatMessagesSentTotal
}

func ChatDecryptFailures() prometheus.Counter {
	RegisterMetrics()
	return chatDecryptFailures
}

func ChatWatchdogTimeouts() prometheus.Counter {
	RegisterMetrics()
	return chatWatchdogTimeouts
}

func ChatMessagesExpired() prometheus.Counter {
	RegisterMetrics()
	return chatMessagesExpired
}

// MembershipMirrorFailures counts mirror writes left for reconciliation.
func MembershipMirrorFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return membershipMirrorErrors
}

func MembershipReconcileRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return membershipReconcileRuns
}

func PushDeliveries() *prometheus.CounterVec {
	RegisterMetrics()
	return pushDeliveriesTotal
}

func NotificationsPublishedTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsPublished
}

func SSEClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return sseClientsActive
}

func UploadLatency() prometheus.Histogram {
	RegisterMetrics()
	return uploadLatencySeconds
}

func UploadRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRejectedTotal
}
