package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	cache           *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	auditEntries    *prometheus.CounterVec
	policyGaps      prometheus.Counter
	notifications   *prometheus.CounterVec
	retention       *prometheus.CounterVec
}

// NewMetrics registers collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ticket_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_http_errors_total",
			Help: "HTTP errors by route, method and domain error code",
		}, []string{"route", "method", "code"}),
		cache: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_cache_operations_total",
			Help: "Cache lookups and invalidations by key class and result",
		}, []string{"class", "result"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_status_transitions_total",
			Help: "Committed ticket status transitions",
		}, []string{"from", "to"}),
		auditEntries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_audit_entries_total",
			Help: "Audit entries by write outcome",
		}, []string{"outcome"}),
		policyGaps: factory.NewCounter(prometheus.CounterOpts{
			Name: "ticket_sla_policy_gaps_total",
			Help: "Triage attempts whose priority had no SLA policy",
		}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_notifications_total",
			Help: "Notification deliveries by event type and outcome",
		}, []string{"event", "outcome"}),
		retention: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_retention_purges_total",
			Help: "Archived tickets processed by the retention purge",
		}, []string{"outcome"}),
	}
}

// RecordRequest counts a served request.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError counts a request that ended in a domain error.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// RecordCache counts a cache result (hit, miss, error, invalidate).
func (m *Metrics) RecordCache(class, result string) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(class, result).Inc()
}

// RecordTransition counts a committed status change.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordAudit counts n audit entries with the given outcome (written, failed).
func (m *Metrics) RecordAudit(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.auditEntries.WithLabelValues(outcome).Add(float64(n))
}

// RecordPolicyGap counts a triage that found no SLA policy.
func (m *Metrics) RecordPolicyGap() {
	if m == nil {
		return
	}
	m.policyGaps.Inc()
}

// RecordNotification counts a delivery attempt (sent, failed, dropped).
func (m *Metrics) RecordNotification(event, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(event, outcome).Inc()
}

// RecordRetention counts a ticket handled by the purge (purged, failed).
func (m *Metrics) RecordRetention(outcome string) {
	if m == nil {
		return
	}
	m.retention.WithLabelValues(outcome).Inc()
}
