package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	obslogger "github.com/smallbiznis/procurelink/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type EnforcerParams struct {
	fx.In

	DB *gorm.DB `optional:"true"`
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer builds the policy enforcer. Policies persist in casbin_rule
// when a database is available and live in memory otherwise.
func NewEnforcer(p EnforcerParams) (*casbin.SyncedEnforcer, error) {
	return newEnforcer(p.DB)
}

func newEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}

	var enforcer *casbin.SyncedEnforcer
	if db != nil {
		adapter, err := gormadapter.NewAdapterByDB(db)
		if err != nil {
			return nil, err
		}
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
		if err != nil {
			return nil, err
		}
		enforcer.EnableAutoSave(true)
		if err := enforcer.LoadPolicy(); err != nil {
			return nil, err
		}
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err != nil {
			return nil, err
		}
	}
	enforcer.EnableAutoBuildRoleLinks(true)

	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, role string, object string, action string) error {
	role = strings.TrimSpace(role)
	if role == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(role, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		obslogger.WithContext(ctx, s.log).Warn("authorization denied",
			zap.String("role", role),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Viewer: read-only dashboards
		{RoleViewer, ObjectEvents, ActionView},
		{RoleViewer, ObjectRules, ActionView},
		{RoleViewer, ObjectCrossModule, ActionView},
		{RoleViewer, ObjectAlerts, ActionView},
		{RoleViewer, ObjectReferences, ActionView},
		{RoleViewer, ObjectApprovals, ActionView},

		// Producer: module backends pushing events
		{RoleProducer, ObjectEvents, ActionPublish},
		{RoleProducer, ObjectReferences, ActionView},

		// Operator
		{RoleOperator, ObjectEvents, ActionPublish},
		{RoleOperator, ObjectRules, ActionManage},
		{RoleOperator, ObjectCrossModule, ActionManage},
		{RoleOperator, ObjectApprovals, ActionDecide},
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	// Operators inherit everything a viewer can do.
	if _, err := enforcer.AddGroupingPolicy(RoleOperator, RoleViewer); err != nil {
		return err
	}
	return nil
}
