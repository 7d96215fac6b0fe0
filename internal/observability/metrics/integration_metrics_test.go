package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: JobReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: JobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: JobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: JobReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: JobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestIntegrationMetricsCounters(t *testing.T) {
	m := NewIntegrationMetrics(prometheus.NewRegistry(), Config{ServiceName: "test"})

	m.IncDispatched("create")
	m.IncDispatched("create")
	m.IncSubscriberError("automation_engine")
	m.SetQueueDepth(7)
	m.ObserveDispatch(5 * time.Millisecond)
	m.IncJobError("approval_escalation", context.DeadlineExceeded)

	if got := testutil.ToFloat64(m.dispatched.WithLabelValues("create")); got != 2 {
		t.Fatalf("expected 2 dispatched, got %v", got)
	}
	if got := testutil.ToFloat64(m.subscriberErrors.WithLabelValues("automation_engine")); got != 1 {
		t.Fatalf("expected 1 subscriber error, got %v", got)
	}
	if got := testutil.ToFloat64(m.queueDepth); got != 7 {
		t.Fatalf("expected queue depth 7, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobErrors.WithLabelValues("approval_escalation", JobReasonDeadlineExceeded)); got != 1 {
		t.Fatalf("expected 1 job error, got %v", got)
	}
}

func TestNilIntegrationMetricsIsSafe(t *testing.T) {
	var m *IntegrationMetrics
	m.IncDispatched("create")
	m.SetQueueDepth(1)
	m.IncJobError("job", errors.New("boom"))
}
