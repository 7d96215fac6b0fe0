package authorization

import (
	"context"
	"errors"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

// Roles an API caller can hold. Tokens map onto roles in config.
const (
	RoleOperator = "role:operator"
	RoleViewer   = "role:viewer"
	RoleProducer = "role:producer"
)

const (
	ObjectEvents      = "events"
	ObjectRules       = "rules"
	ObjectCrossModule = "crossmodule"
	ObjectAlerts      = "alerts"
	ObjectReferences  = "references"
	ObjectApprovals   = "approvals"
)

const (
	ActionView    = "view"
	ActionManage  = "manage"
	ActionPublish = "publish"
	ActionDecide  = "decide"
)

type Service interface {
	Authorize(ctx context.Context, role string, object string, action string) error
}
