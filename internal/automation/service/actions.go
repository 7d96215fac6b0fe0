package service

import (
	"context"
	"fmt"
	"strings"

	approvaldomain "github.com/smallbiznis/procurelink/internal/approval/domain"
	automationdomain "github.com/smallbiznis/procurelink/internal/automation/domain"
	eventdomain "github.com/smallbiznis/procurelink/internal/integrationevent/domain"
	"github.com/smallbiznis/procurelink/internal/notification"
	"go.uber.org/zap"
)

const (
	eventDataPrefix = "eventData."
	eventPrefix     = "event."
)

// ExecuteAction performs one action of rule for event.
func (e *Engine) ExecuteAction(ctx context.Context, rule automationdomain.Rule, action automationdomain.Action, event eventdomain.IntegrationEvent) error {
	switch cfg := action.Config.(type) {
	case automationdomain.NotificationConfig:
		return e.notify(ctx, rule, action, cfg, event)
	case automationdomain.StatusUpdateConfig:
		return e.updateStatus(ctx, action, cfg, event)
	case automationdomain.RecordCreationConfig:
		return e.createRecord(ctx, action, cfg, event)
	case automationdomain.ApprovalRequestConfig:
		return e.requestApproval(ctx, rule, action, cfg, event)
	default:
		return fmt.Errorf("%w: %q", automationdomain.ErrUnknownActionType, action.Type)
	}
}

func (e *Engine) notify(ctx context.Context, rule automationdomain.Rule, action automationdomain.Action, cfg automationdomain.NotificationConfig, event eventdomain.IntegrationEvent) error {
	if e.notifier == nil {
		return fmt.Errorf("%w: notifier", automationdomain.ErrCollaboratorMissing)
	}
	subject, text := notification.Render(notification.Lookup(cfg.TemplateID), templateVars(rule, event))
	return e.notifier.Notify(ctx, notification.Message{
		TemplateID: cfg.TemplateID,
		Channel:    notification.NormalizeChannel(cfg.Channel),
		Recipients: cfg.Recipients,
		Subject:    subject,
		Text:       text,
		Context: map[string]string{
			"rule_id":   rule.ID,
			"action_id": action.ID,
			"event_id":  event.ID.String(),
		},
	})
}

func templateVars(rule automationdomain.Rule, event eventdomain.IntegrationEvent) map[string]any {
	vars := make(map[string]any, len(event.EventData)+6)
	for k, v := range event.EventData {
		vars[k] = v
	}
	vars["eventType"] = string(event.EventType)
	vars["sourceModule"] = event.SourceModule
	vars["sourceRecordId"] = event.SourceRecordID
	vars["sourceRecordType"] = event.SourceRecordType
	vars["ruleId"] = rule.ID
	vars["ruleName"] = rule.Name
	return vars
}

func (e *Engine) updateStatus(ctx context.Context, action automationdomain.Action, cfg automationdomain.StatusUpdateConfig, event eventdomain.IntegrationEvent) error {
	if e.modules == nil {
		return fmt.Errorf("%w: modules", automationdomain.ErrCollaboratorMissing)
	}
	mutator, err := e.modules.StatusMutator(action.TargetModule)
	if err != nil {
		return err
	}

	recordID := event.SourceRecordID
	if field := strings.TrimSpace(cfg.RecordIDField); field != "" {
		recordID = lookupString(event, field)
	}
	if strings.TrimSpace(recordID) == "" {
		return automationdomain.ErrRecordIDMissing
	}

	status := strings.TrimSpace(cfg.Status)
	if status == "" {
		status = lookupString(event, cfg.StatusField)
	}
	if status == "" {
		return fmt.Errorf("%w: no status at %s", automationdomain.ErrInvalidAction, cfg.StatusField)
	}

	if err := mutator.UpdateStatus(ctx, recordID, status); err != nil {
		return err
	}
	e.log.Info("status updated by rule",
		zap.String("action_id", action.ID),
		zap.String("target_module", action.TargetModule),
		zap.String("record_id", recordID),
		zap.String("status", status),
	)
	return nil
}

func (e *Engine) createRecord(ctx context.Context, action automationdomain.Action, cfg automationdomain.RecordCreationConfig, event eventdomain.IntegrationEvent) error {
	if e.modules == nil {
		return fmt.Errorf("%w: modules", automationdomain.ErrCollaboratorMissing)
	}
	creator, err := e.modules.RecordCreator(action.TargetModule)
	if err != nil {
		return err
	}

	fields := make(map[string]any, len(cfg.Fields))
	for name, raw := range cfg.Fields {
		fields[name] = resolveField(raw, event)
	}
	id, err := creator.CreateRecord(ctx, fields)
	if err != nil {
		return err
	}
	e.log.Info("record created by rule",
		zap.String("action_id", action.ID),
		zap.String("target_module", action.TargetModule),
		zap.String("record_id", id),
	)
	return nil
}

func (e *Engine) requestApproval(ctx context.Context, rule automationdomain.Rule, action automationdomain.Action, cfg automationdomain.ApprovalRequestConfig, event eventdomain.IntegrationEvent) error {
	if e.approvals == nil {
		return fmt.Errorf("%w: approvals", automationdomain.ErrCollaboratorMissing)
	}
	if strings.TrimSpace(event.SourceRecordID) == "" {
		return automationdomain.ErrRecordIDMissing
	}
	reason := cfg.Reason
	if reason == "" {
		reason = rule.Name
	}
	_, err := e.approvals.RequestApproval(ctx, approvaldomain.Request{
		Approver:          cfg.Approver,
		Module:            action.TargetModule,
		RecordID:          event.SourceRecordID,
		RuleID:            rule.ID,
		ActionID:          action.ID,
		EventID:           event.ID.String(),
		Reason:            reason,
		EscalationTimeout: cfg.EscalationTimeout,
	})
	return err
}

// resolveField maps a record_creation field template to its value.
func resolveField(raw any, event eventdomain.IntegrationEvent) any {
	ref, ok := raw.(string)
	if !ok {
		return raw
	}
	switch {
	case strings.HasPrefix(ref, eventDataPrefix):
		value, _ := event.Lookup(strings.TrimPrefix(ref, eventDataPrefix))
		return value
	case ref == eventPrefix+"sourceRecordId":
		return event.SourceRecordID
	case ref == eventPrefix+"sourceModule":
		return event.SourceModule
	case ref == eventPrefix+"sourceRecordType":
		return event.SourceRecordType
	case ref == eventPrefix+"eventType":
		return string(event.EventType)
	}
	return raw
}

func lookupString(event eventdomain.IntegrationEvent, path string) string {
	path = strings.TrimPrefix(strings.TrimSpace(path), eventDataPrefix)
	if path == "" {
		return ""
	}
	value, ok := event.Lookup(path)
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}
