package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	JobReasonDeadlineExceeded     = "deadline_exceeded"
	JobReasonDBLockTimeout        = "db_lock_timeout"
	JobReasonSerializationFailure = "serialization_failure"
	JobReasonUniqueViolation      = "unique_violation"
	JobReasonUnknown              = "unknown"
)

// IntegrationMetrics captures event bus and background job health for the
// Prometheus scrape endpoint.
type IntegrationMetrics struct {
	dispatched       *prometheus.CounterVec
	subscriberErrors *prometheus.CounterVec
	queueDepth       prometheus.Gauge
	dispatchDuration prometheus.Histogram
	journalErrors    prometheus.Counter
	jobRuns          *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	jobErrors        *prometheus.CounterVec
}

var (
	integrationMetricsOnce sync.Once
	integrationMetrics     *IntegrationMetrics
)

// Integration returns the singleton registry.
func Integration() *IntegrationMetrics {
	return IntegrationWithConfig(Config{})
}

// IntegrationWithConfig returns the singleton registry using config labels.
func IntegrationWithConfig(cfg Config) *IntegrationMetrics {
	integrationMetricsOnce.Do(func() {
		integrationMetrics = NewIntegrationMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return integrationMetrics
}

// ResetIntegrationMetricsForTest resets the singleton for tests.
func ResetIntegrationMetricsForTest() {
	integrationMetricsOnce = sync.Once{}
	integrationMetrics = nil
}

// NewIntegrationMetrics registers a fresh set of collectors on registerer.
func NewIntegrationMetrics(registerer prometheus.Registerer, cfg Config) *IntegrationMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "procurelink"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &IntegrationMetrics{
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "procurelink_eventbus_dispatched_total",
			Help:        "Integration events delivered to subscribers.",
			ConstLabels: constLabels,
		}, []string{"event_type"}),
		subscriberErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "procurelink_eventbus_subscriber_errors_total",
			Help:        "Subscriber failures recorded on dispatched events.",
			ConstLabels: constLabels,
		}, []string{"subscriber"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "procurelink_eventbus_queue_depth",
			Help:        "Events waiting for dispatch.",
			ConstLabels: constLabels,
		}),
		dispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "procurelink_eventbus_dispatch_duration_seconds",
			Help:        "Time spent dispatching one event to every subscriber.",
			Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			ConstLabels: constLabels,
		}),
		journalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "procurelink_eventbus_journal_errors_total",
			Help:        "Dispatched events the journal failed to persist.",
			ConstLabels: constLabels,
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "procurelink_scheduler_job_runs_total",
			Help:        "Scheduler job runs by name.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "procurelink_scheduler_job_duration_seconds",
			Help:        "Scheduler job latency.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "procurelink_scheduler_job_errors_total",
			Help:        "Scheduler job errors by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"job", "reason"}),
	}

	registerer.MustRegister(
		m.dispatched,
		m.subscriberErrors,
		m.queueDepth,
		m.dispatchDuration,
		m.journalErrors,
		m.jobRuns,
		m.jobDuration,
		m.jobErrors,
	)
	return m
}

func (m *IntegrationMetrics) IncDispatched(eventType string) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(eventType).Inc()
}

func (m *IntegrationMetrics) IncSubscriberError(subscriber string) {
	if m == nil {
		return
	}
	m.subscriberErrors.WithLabelValues(subscriber).Inc()
}

func (m *IntegrationMetrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

func (m *IntegrationMetrics) ObserveDispatch(duration time.Duration) {
	if m == nil {
		return
	}
	m.dispatchDuration.Observe(duration.Seconds())
}

func (m *IntegrationMetrics) IncJournalError() {
	if m == nil {
		return
	}
	m.journalErrors.Inc()
}

func (m *IntegrationMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *IntegrationMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *IntegrationMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyJobReason(err)).Inc()
}

// ClassifyJobReason maps job errors to low-cardinality reasons.
func ClassifyJobReason(err error) string {
	switch {
	case err == nil:
		return JobReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return JobReasonDeadlineExceeded
	case hasPGCode(err, "55P03"):
		return JobReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return JobReasonSerializationFailure
	case errors.Is(err, gorm.ErrDuplicatedKey), hasPGCode(err, "23505"):
		return JobReasonUniqueViolation
	default:
		return JobReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
