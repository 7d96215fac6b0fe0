package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	approvaldomain "github.com/smallbiznis/procurelink/internal/approval/domain"
	"github.com/smallbiznis/procurelink/internal/clock"
	eventdomain "github.com/smallbiznis/procurelink/internal/integrationevent/domain"
	"github.com/smallbiznis/procurelink/internal/notification"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const escalationBatchSize = 200

// Publisher receives decision events so automation rules can react to them.
type Publisher interface {
	Publish(ctx context.Context, event eventdomain.IntegrationEvent) (eventdomain.IntegrationEvent, error)
}

type Params struct {
	fx.In

	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      approvaldomain.Repository
	Publisher Publisher             `optional:"true"`
	Notifier  notification.Notifier `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      approvaldomain.Repository
	publisher Publisher
	notifier  notification.Notifier
}

func NewService(p Params) *Service {
	return &Service{
		log:       p.Log.Named("approval.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		publisher: p.Publisher,
		notifier:  p.Notifier,
	}
}

// SetPublisher wires the event bus after construction; the bus depends on
// the automation engine, which depends on this service.
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

func (s *Service) RequestApproval(ctx context.Context, req approvaldomain.Request) (*approvaldomain.Approval, error) {
	approver := strings.TrimSpace(req.Approver)
	if approver == "" {
		return nil, approvaldomain.ErrApproverRequired
	}
	module := strings.TrimSpace(req.Module)
	recordID := strings.TrimSpace(req.RecordID)
	if module == "" || recordID == "" {
		return nil, approvaldomain.ErrRecordRequired
	}

	now := s.clock.Now()
	approval := approvaldomain.Approval{
		ID:        s.genID.Generate(),
		Approver:  approver,
		Module:    module,
		RecordID:  recordID,
		RuleID:    req.RuleID,
		ActionID:  req.ActionID,
		EventID:   req.EventID,
		Reason:    strings.TrimSpace(req.Reason),
		Status:    approvaldomain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.EscalationTimeout > 0 {
		escalateAt := now.Add(req.EscalationTimeout)
		approval.EscalateAt = &escalateAt
	}

	if err := s.repo.Insert(ctx, &approval); err != nil {
		return nil, err
	}
	s.log.Info("approval requested",
		zap.String("approval_id", approval.ID.String()),
		zap.String("approver", approver),
		zap.String("module", module),
		zap.String("record_id", recordID),
		zap.String("rule_id", req.RuleID),
	)
	return &approval, nil
}

func (s *Service) Get(ctx context.Context, id string) (*approvaldomain.Approval, error) {
	approvalID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	approval, err := s.repo.FindByID(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if approval == nil {
		return nil, approvaldomain.ErrNotFound
	}
	return approval, nil
}

func (s *Service) ListPending(ctx context.Context, approver string) ([]approvaldomain.Approval, error) {
	approvals, err := s.repo.ListByStatus(ctx, approvaldomain.StatusPending, strings.TrimSpace(approver), 0)
	if err != nil {
		return nil, err
	}
	if approvals == nil {
		approvals = []approvaldomain.Approval{}
	}
	return approvals, nil
}

// Decide closes a pending or escalated approval and publishes a
// status_change event for the underlying record.
func (s *Service) Decide(ctx context.Context, id string, decision approvaldomain.Decision) (*approvaldomain.Approval, error) {
	approval, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if approval.Status != approvaldomain.StatusPending && approval.Status != approvaldomain.StatusEscalated {
		return nil, approvaldomain.ErrAlreadyDecided
	}

	now := s.clock.Now()
	approval.Status = approvaldomain.StatusRejected
	if decision.Approved {
		approval.Status = approvaldomain.StatusApproved
	}
	approval.DecidedBy = strings.TrimSpace(decision.DecidedBy)
	if approval.DecidedBy == "" {
		approval.DecidedBy = approval.Approver
	}
	approval.Comment = strings.TrimSpace(decision.Comment)
	approval.DecidedAt = &now
	approval.UpdatedAt = now

	updated, err := s.repo.UpdateDecision(ctx, approval, []approvaldomain.Status{approvaldomain.StatusPending, approvaldomain.StatusEscalated})
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, approvaldomain.ErrAlreadyDecided
	}

	s.log.Info("approval decided",
		zap.String("approval_id", approval.ID.String()),
		zap.String("status", string(approval.Status)),
		zap.String("decided_by", approval.DecidedBy),
	)
	s.publishDecision(ctx, approval)
	return approval, nil
}

// EscalateExpired moves pending approvals past their escalation time to
// escalated and notifies about each one.
func (s *Service) EscalateExpired(ctx context.Context, now time.Time) (int, error) {
	overdue, err := s.repo.ListOverdue(ctx, now, escalationBatchSize)
	if err != nil {
		return 0, err
	}

	var errs []error
	escalated := 0
	for i := range overdue {
		approval := overdue[i]
		approval.Status = approvaldomain.StatusEscalated
		approval.UpdatedAt = now
		ok, err := s.repo.UpdateDecision(ctx, &approval, []approvaldomain.Status{approvaldomain.StatusPending})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		escalated++
		s.log.Warn("approval escalated",
			zap.String("approval_id", approval.ID.String()),
			zap.String("approver", approval.Approver),
			zap.String("module", approval.Module),
			zap.String("record_id", approval.RecordID),
		)
		s.notifyEscalation(ctx, approval)
	}
	return escalated, errors.Join(errs...)
}

func (s *Service) publishDecision(ctx context.Context, approval *approvaldomain.Approval) {
	if s.publisher == nil {
		return
	}
	decision := "rejected"
	if approval.Status == approvaldomain.StatusApproved {
		decision = "approved"
	}
	_, err := s.publisher.Publish(ctx, eventdomain.IntegrationEvent{
		EventType:        eventdomain.EventTypeStatusChange,
		SourceModule:     approval.Module,
		SourceRecordID:   approval.RecordID,
		SourceRecordType: "approval",
		EventData: map[string]any{
			"approvalId": approval.ID.String(),
			"approver":   approval.Approver,
			"decidedBy":  approval.DecidedBy,
			"decision":   decision,
			"ruleId":     approval.RuleID,
		},
	})
	if err != nil {
		s.log.Warn("publish approval decision failed",
			zap.String("approval_id", approval.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) notifyEscalation(ctx context.Context, approval approvaldomain.Approval) {
	if s.notifier == nil {
		return
	}
	subject, text := notification.Render(notification.Template{
		Subject: "Approval overdue for {{module}} {{recordId}}",
		Content: "Approval {{approvalId}} assigned to {{approver}} passed its escalation time without a decision.",
	}, map[string]any{
		"module":     approval.Module,
		"recordId":   approval.RecordID,
		"approvalId": approval.ID.String(),
		"approver":   approval.Approver,
	})
	err := s.notifier.Notify(ctx, notification.Message{
		TemplateID: "approval_escalated",
		Subject:    subject,
		Text:       text,
		Context: map[string]string{
			"approval_id": approval.ID.String(),
			"rule_id":     approval.RuleID,
		},
	})
	if err != nil {
		s.log.Warn("escalation notification failed", zap.String("approval_id", approval.ID.String()), zap.Error(err))
	}
}

func parseID(raw string) (snowflake.ID, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || value <= 0 {
		return 0, approvaldomain.ErrInvalidID
	}
	return snowflake.ID(value), nil
}
