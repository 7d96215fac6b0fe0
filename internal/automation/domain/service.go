package domain

import (
	"context"

	approvaldomain "github.com/smallbiznis/procurelink/internal/approval/domain"
	eventdomain "github.com/smallbiznis/procurelink/internal/integrationevent/domain"
	modulesdomain "github.com/smallbiznis/procurelink/internal/modules/domain"
)

// ModuleResolver finds the module store an action targets.
type ModuleResolver interface {
	StatusMutator(module string) (modulesdomain.StatusMutator, error)
	RecordCreator(module string) (modulesdomain.RecordCreator, error)
}

// ApprovalRouter receives approval_request actions.
type ApprovalRouter interface {
	RequestApproval(ctx context.Context, req approvaldomain.Request) (*approvaldomain.Approval, error)
}

type Service interface {
	EvaluateEvent(ctx context.Context, event eventdomain.IntegrationEvent) error
	ExecuteAction(ctx context.Context, rule Rule, action Action, event eventdomain.IntegrationEvent) error

	AddRule(ctx context.Context, rule Rule) (Rule, error)
	RemoveRule(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) (Rule, error)
	GetRule(ctx context.Context, id string) (Rule, error)
	ListRules(ctx context.Context) []Rule
	ReplaceRules(ctx context.Context, rules []Rule) error
	Executions(limit int) []ExecutionRecord
}
