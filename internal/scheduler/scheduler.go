package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/smallbiznis/procurelink/internal/alert/domain"
	approvaldomain "github.com/smallbiznis/procurelink/internal/approval/domain"
	"github.com/smallbiznis/procurelink/internal/clock"
	"github.com/smallbiznis/procurelink/internal/notification"
	obsmetrics "github.com/smallbiznis/procurelink/internal/observability/metrics"
	"github.com/smallbiznis/procurelink/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobApprovalEscalation = "approval_escalation"
	JobAlertDigest        = "alert_digest"

	jobLockPrefix = "scheduler:"
)

// JobLocker leases a job to one scheduler instance at a time.
type JobLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Params struct {
	fx.In

	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    Config `optional:"true"`
	Approvals approvaldomain.Service
	Alerts    alertdomain.Service            `optional:"true"`
	Notifier  notification.Notifier          `optional:"true"`
	Metrics   *obsmetrics.IntegrationMetrics `optional:"true"`
	Locker    *ratelimit.Locker              `optional:"true"`
}

type Scheduler struct {
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	clock     clock.Clock
	approvals approvaldomain.Service
	alerts    alertdomain.Service
	notifier  notification.Notifier
	metrics   *obsmetrics.IntegrationMetrics
	locker    JobLocker

	mu       sync.Mutex
	notified map[string]alertdomain.Severity
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Approvals == nil {
		return nil, ErrInvalidConfig
	}
	metrics := p.Metrics
	if metrics == nil {
		metrics = obsmetrics.Integration()
	}
	sched := &Scheduler{
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		genID:     p.GenID,
		clock:     p.Clock,
		approvals: p.Approvals,
		alerts:    p.Alerts,
		notifier:  p.Notifier,
		metrics:   metrics,
		notified:  make(map[string]alertdomain.Severity),
	}
	if p.Locker != nil {
		sched.locker = p.Locker
	}
	return sched, nil
}

// runJob runs fn under a timeout. A job that runs out of time is logged
// and counted but does not fail the run; the next tick picks it up.
func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	s.metrics.IncJobError(name, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	log.Error("job failed", zap.Error(err))
	return err
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobApprovalEscalation, s.ApprovalEscalationJob},
		{JobAlertDigest, s.AlertDigestJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		release, ok := s.lease(parent, job.Name)
		if !ok {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.JobTimeout, job.Run))
		release()
	}
	return err
}

// lease claims the job for this instance. Without a locker every
// instance runs every job. A redis failure skips the job for this tick.
func (s *Scheduler) lease(ctx context.Context, job string) (func(), bool) {
	if s.locker == nil {
		return func() {}, true
	}
	key := jobLockPrefix + job
	token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		s.log.Warn("job lease failed", zap.String("job", job), zap.Error(err))
		return nil, false
	}
	if !ok {
		s.log.Debug("job leased by another instance", zap.String("job", job))
		return nil, false
	}
	return func() {
		if err := s.locker.Release(context.Background(), key, token); err != nil {
			s.log.Warn("job lease release failed", zap.String("job", job), zap.Error(err))
		}
	}, true
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// ApprovalEscalationJob marks pending approvals past their escalation time.
func (s *Scheduler) ApprovalEscalationJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobApprovalEscalation)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	count, err := s.approvals.EscalateExpired(ctx, s.clock.Now())
	if err != nil {
		s.logSchedulerError(ctx, run, "approval escalation failed", JobApprovalEscalation, err)
		return err
	}
	run.AddProcessed(count)
	return nil
}

// AlertDigestJob notifies operators of alerts at or above the digest
// severity. An alert is sent once and again only if its severity rises;
// alerts that clear are forgotten so a recurrence is sent again.
func (s *Scheduler) AlertDigestJob(ctx context.Context) error {
	if s.alerts == nil || s.notifier == nil {
		return nil
	}
	ctx, run, owner := s.ensureJobRun(ctx, JobAlertDigest)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	alerts, err := s.alerts.List(ctx, alertdomain.Filter{MinSeverity: s.cfg.DigestMinSeverity})
	if err != nil {
		s.logSchedulerError(ctx, run, "alert digest load failed", JobAlertDigest, err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var jobErr error
	active := make(map[string]struct{}, len(alerts))
	for _, alert := range alerts {
		active[alert.ID] = struct{}{}
		if prev, ok := s.notified[alert.ID]; ok && prev.Rank() >= alert.Severity.Rank() {
			continue
		}
		err := s.notifier.Notify(ctx, notification.Message{
			TemplateID: digestTemplate(alert.Type),
			Channel:    s.cfg.DigestChannel,
			Subject:    alert.Title,
			Text:       alert.Message,
			Context: map[string]string{
				"alert_id": alert.ID,
				"severity": string(alert.Severity),
			},
		})
		if err != nil {
			s.logSchedulerError(ctx, run, "alert notification failed", JobAlertDigest, err, zap.String("alert_id", alert.ID))
			jobErr = errors.Join(jobErr, err)
			continue
		}
		s.notified[alert.ID] = alert.Severity
		run.AddProcessed(1)
	}
	for id := range s.notified {
		if _, ok := active[id]; !ok {
			delete(s.notified, id)
		}
	}
	return jobErr
}

func digestTemplate(t alertdomain.AlertType) string {
	switch t {
	case alertdomain.AlertTypeMSMEPaymentDue:
		return notification.TemplateMSMEPaymentDue
	case alertdomain.AlertTypeMatchDiscrepancy:
		return notification.TemplateBillMatchDiscrepant
	}
	return notification.TemplateDefault
}
