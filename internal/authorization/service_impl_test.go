package authorization

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	enforcer, err := newEnforcer(nil)
	if err != nil {
		t.Fatalf("new enforcer: %v", err)
	}
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestAuthorizeRoles(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		role   string
		object string
		action string
		allow  bool
	}{
		{RoleViewer, ObjectAlerts, ActionView, true},
		{RoleViewer, ObjectRules, ActionManage, false},
		{RoleViewer, ObjectEvents, ActionPublish, false},
		{RoleProducer, ObjectEvents, ActionPublish, true},
		{RoleProducer, ObjectCrossModule, ActionView, false},
		{RoleOperator, ObjectRules, ActionManage, true},
		{RoleOperator, ObjectApprovals, ActionDecide, true},
		// inherited from viewer
		{RoleOperator, ObjectAlerts, ActionView, true},
		{"role:unknown", ObjectAlerts, ActionView, false},
	}

	for _, tc := range cases {
		err := svc.Authorize(ctx, tc.role, tc.object, tc.action)
		if tc.allow && err != nil {
			t.Fatalf("%s %s %s: expected allow, got %v", tc.role, tc.object, tc.action, err)
		}
		if !tc.allow && !errors.Is(err, ErrForbidden) {
			t.Fatalf("%s %s %s: expected forbidden, got %v", tc.role, tc.object, tc.action, err)
		}
	}
}

func TestAuthorizeValidatesInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.Authorize(ctx, " ", ObjectAlerts, ActionView); !errors.Is(err, ErrInvalidActor) {
		t.Fatalf("expected invalid actor, got %v", err)
	}
	if err := svc.Authorize(ctx, RoleViewer, "", ActionView); !errors.Is(err, ErrInvalidObject) {
		t.Fatalf("expected invalid object, got %v", err)
	}
	if err := svc.Authorize(ctx, RoleViewer, ObjectAlerts, ""); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected invalid action, got %v", err)
	}
}
