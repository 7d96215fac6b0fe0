package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	alertdomain "github.com/smallbiznis/procurelink/internal/alert/domain"
	approvaldomain "github.com/smallbiznis/procurelink/internal/approval/domain"
	"github.com/smallbiznis/procurelink/internal/clock"
	"github.com/smallbiznis/procurelink/internal/notification"
	obsmetrics "github.com/smallbiznis/procurelink/internal/observability/metrics"
	"go.uber.org/zap"
)

type fakeApprovals struct {
	approvaldomain.Service
	calls []time.Time
	count int
	err   error
}

func (f *fakeApprovals) EscalateExpired(_ context.Context, now time.Time) (int, error) {
	f.calls = append(f.calls, now)
	return f.count, f.err
}

type fakeAlerts struct {
	alerts  []alertdomain.Alert
	filters []alertdomain.Filter
}

func (f *fakeAlerts) List(_ context.Context, filter alertdomain.Filter) ([]alertdomain.Alert, error) {
	f.filters = append(f.filters, filter)
	out := make([]alertdomain.Alert, 0, len(f.alerts))
	for _, a := range f.alerts {
		if filter.Allows(a) {
			out = append(out, a)
		}
	}
	return out, nil
}

type recordingNotifier struct {
	messages []notification.Message
	err      error
}

func (n *recordingNotifier) Notify(_ context.Context, msg notification.Message) error {
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, msg)
	return nil
}

type testScheduler struct {
	*Scheduler
	registry  *prometheus.Registry
	approvals *fakeApprovals
	alerts    *fakeAlerts
	notifier  *recordingNotifier
	clock     *clock.FakeClock
}

func newTestScheduler(t *testing.T, cfg Config) testScheduler {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	registry := prometheus.NewRegistry()
	metrics := obsmetrics.NewIntegrationMetrics(registry, obsmetrics.Config{
		ServiceName: "procurelink",
		Environment: "test",
	})
	ts := testScheduler{
		registry:  registry,
		approvals: &fakeApprovals{},
		alerts:    &fakeAlerts{},
		notifier:  &recordingNotifier{},
		clock:     clock.NewFakeClock(time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC)),
	}
	s, err := New(Params{
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     ts.clock,
		Config:    cfg,
		Approvals: ts.approvals,
		Alerts:    ts.alerts,
		Notifier:  ts.notifier,
		Metrics:   metrics,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	ts.Scheduler = s
	return ts
}

func TestNewRequiresApprovals(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	_, err := New(Params{Log: zap.NewNop(), GenID: node, Clock: clock.NewFakeClock(time.Time{})})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestRunJobTimeoutDoesNotReturnError(t *testing.T) {
	ts := newTestScheduler(t, Config{})

	err := ts.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{
		"service": "procurelink",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.JobReasonDeadlineExceeded,
	}
	if got := getCounterValue(t, ts.registry, "procurelink_scheduler_job_errors_total", labels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func TestRunOnceEscalatesApprovals(t *testing.T) {
	ts := newTestScheduler(t, Config{})
	ts.approvals.count = 3

	if err := ts.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(ts.approvals.calls) != 1 {
		t.Fatalf("expected one escalation sweep, got %d", len(ts.approvals.calls))
	}
	if !ts.approvals.calls[0].Equal(ts.clock.Now()) {
		t.Fatalf("expected sweep at %v, got %v", ts.clock.Now(), ts.approvals.calls[0])
	}

	labels := map[string]string{
		"service": "procurelink",
		"env":     "test",
		"job":     JobApprovalEscalation,
	}
	if got := getCounterValue(t, ts.registry, "procurelink_scheduler_job_runs_total", labels); got != 1 {
		t.Fatalf("expected run count 1, got %v", got)
	}
}

func TestRunOnceReturnsJobErrors(t *testing.T) {
	ts := newTestScheduler(t, Config{})
	boom := errors.New("approval store unavailable")
	ts.approvals.err = boom

	err := ts.RunOnce(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}

	labels := map[string]string{
		"service": "procurelink",
		"env":     "test",
		"job":     JobApprovalEscalation,
		"reason":  obsmetrics.JobReasonUnknown,
	}
	if got := getCounterValue(t, ts.registry, "procurelink_scheduler_job_errors_total", labels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func TestRunOnceSkipsDisabledJobs(t *testing.T) {
	ts := newTestScheduler(t, Config{EnabledJobs: []string{"ALERT_DIGEST"}})

	if err := ts.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(ts.approvals.calls) != 0 {
		t.Fatalf("expected escalation job to be skipped")
	}
	if len(ts.alerts.filters) != 1 {
		t.Fatalf("expected digest to run once, got %d", len(ts.alerts.filters))
	}
}

type fakeLocker struct {
	held     map[string]bool
	released []string
	err      error
}

func (l *fakeLocker) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l.err != nil {
		return "", false, l.err
	}
	if ttl <= 0 {
		return "", false, errors.New("ttl must be positive")
	}
	if l.held[key] {
		return "", false, nil
	}
	return "token-" + key, true, nil
}

func (l *fakeLocker) Release(_ context.Context, key, token string) error {
	l.released = append(l.released, key+"="+token)
	return nil
}

func TestRunOnceSkipsJobsLeasedElsewhere(t *testing.T) {
	ts := newTestScheduler(t, Config{})
	locker := &fakeLocker{held: map[string]bool{"scheduler:" + JobApprovalEscalation: true}}
	ts.locker = locker

	if err := ts.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(ts.approvals.calls) != 0 {
		t.Fatalf("expected escalation to be skipped while leased")
	}
	if len(ts.alerts.filters) != 1 {
		t.Fatalf("expected digest to run, got %d", len(ts.alerts.filters))
	}
	want := "scheduler:" + JobAlertDigest + "=token-scheduler:" + JobAlertDigest
	if len(locker.released) != 1 || locker.released[0] != want {
		t.Fatalf("expected digest lease released, got %v", locker.released)
	}
}

func TestRunOnceSkipsJobsWhenLockerFails(t *testing.T) {
	ts := newTestScheduler(t, Config{})
	ts.locker = &fakeLocker{err: errors.New("redis down")}

	if err := ts.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(ts.approvals.calls) != 0 || len(ts.alerts.filters) != 0 {
		t.Fatalf("expected no jobs without a lease")
	}
}

func TestAlertDigestNotifiesOnce(t *testing.T) {
	ts := newTestScheduler(t, Config{DigestChannel: notification.ChannelSlack})
	ts.alerts.alerts = []alertdomain.Alert{
		{ID: "msme_payment_due:bill_1", Type: alertdomain.AlertTypeMSMEPaymentDue, Severity: alertdomain.SeverityHigh, Title: "MSME payment at_risk"},
		{ID: "tds_filing_due:2026-03", Type: alertdomain.AlertTypeTDSFilingDue, Severity: alertdomain.SeverityHigh},
		{ID: "three_way_match_discrepancy:bill_2", Type: alertdomain.AlertTypeMatchDiscrepancy, Severity: alertdomain.SeverityMedium},
	}
	ctx := context.Background()

	if err := ts.AlertDigestJob(ctx); err != nil {
		t.Fatalf("digest: %v", err)
	}
	if len(ts.notifier.messages) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(ts.notifier.messages))
	}
	first := ts.notifier.messages[0]
	if first.TemplateID != notification.TemplateMSMEPaymentDue || first.Channel != notification.ChannelSlack {
		t.Fatalf("unexpected message %+v", first)
	}
	if first.Context["alert_id"] != "msme_payment_due:bill_1" {
		t.Fatalf("expected alert id in context, got %v", first.Context)
	}
	if ts.alerts.filters[0].MinSeverity != alertdomain.SeverityHigh {
		t.Fatalf("expected high severity digest, got %s", ts.alerts.filters[0].MinSeverity)
	}

	if err := ts.AlertDigestJob(ctx); err != nil {
		t.Fatalf("digest: %v", err)
	}
	if len(ts.notifier.messages) != 2 {
		t.Fatalf("expected no repeat notifications, got %d", len(ts.notifier.messages))
	}

	ts.alerts.alerts[0].Severity = alertdomain.SeverityCritical
	if err := ts.AlertDigestJob(ctx); err != nil {
		t.Fatalf("digest: %v", err)
	}
	if len(ts.notifier.messages) != 3 {
		t.Fatalf("expected escalated alert to notify again, got %d", len(ts.notifier.messages))
	}

	cleared := ts.alerts.alerts[1]
	ts.alerts.alerts = ts.alerts.alerts[:1]
	if err := ts.AlertDigestJob(ctx); err != nil {
		t.Fatalf("digest: %v", err)
	}
	ts.alerts.alerts = append(ts.alerts.alerts, cleared)
	if err := ts.AlertDigestJob(ctx); err != nil {
		t.Fatalf("digest: %v", err)
	}
	if len(ts.notifier.messages) != 4 {
		t.Fatalf("expected recurring alert to notify again, got %d", len(ts.notifier.messages))
	}
}

func TestAlertDigestRetriesFailedNotifications(t *testing.T) {
	ts := newTestScheduler(t, Config{})
	ts.alerts.alerts = []alertdomain.Alert{
		{ID: "msme_payment_due:bill_1", Type: alertdomain.AlertTypeMSMEPaymentDue, Severity: alertdomain.SeverityCritical},
	}
	boom := errors.New("webhook down")
	ts.notifier.err = boom

	if err := ts.AlertDigestJob(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}

	ts.notifier.err = nil
	if err := ts.AlertDigestJob(context.Background()); err != nil {
		t.Fatalf("digest: %v", err)
	}
	if len(ts.notifier.messages) != 1 {
		t.Fatalf("expected retry to deliver, got %d", len(ts.notifier.messages))
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
