package automation

import (
	"context"

	approvalservice "github.com/smallbiznis/procurelink/internal/approval/service"
	automationdomain "github.com/smallbiznis/procurelink/internal/automation/domain"
	"github.com/smallbiznis/procurelink/internal/automation/rulestore"
	"github.com/smallbiznis/procurelink/internal/automation/service"
	"github.com/smallbiznis/procurelink/internal/clock"
	"github.com/smallbiznis/procurelink/internal/config"
	"github.com/smallbiznis/procurelink/internal/eventbus"
	modulesdomain "github.com/smallbiznis/procurelink/internal/modules/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("automation",
	fx.Provide(func(r *modulesdomain.Registry) automationdomain.ModuleResolver { return r }),
	fx.Provide(func(s *approvalservice.Service) automationdomain.ApprovalRouter { return s }),
	fx.Provide(service.NewEngine),
	fx.Provide(func(e *service.Engine) automationdomain.Service { return e }),
	fx.Invoke(wire),
)

type wireParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Log       *zap.Logger
	Clock     clock.Clock
	Engine    *service.Engine
	Bus       *eventbus.Bus
	Approvals *approvalservice.Service
	Rules     *config.RuleSetHolder `optional:"true"`
}

// wire closes the loop between the bus, the engine and approvals. The
// setters break what would otherwise be a constructor cycle.
func wire(p wireParams) {
	log := p.Log.Named("automation")
	p.Bus.SetEvaluator(p.Engine)
	p.Approvals.SetPublisher(p.Bus)

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			rules, source, err := rulestore.Load(p.Rules, p.Clock.Now())
			if err != nil {
				return err
			}
			if err := p.Engine.ReplaceRules(ctx, rules); err != nil {
				return err
			}
			log.Info("automation rules loaded", zap.String("source", source), zap.Int("rules", len(rules)))
			return nil
		},
	})

	if p.Rules == nil {
		return
	}
	p.Rules.OnChange(func(set config.RuleSet) {
		rules, err := rulestore.DecodeAll(set.Rules, p.Clock.Now())
		if err != nil {
			log.Warn("rule reload rejected", zap.String("source", set.Source), zap.Error(err))
			return
		}
		if err := p.Engine.ReplaceRules(context.Background(), rules); err != nil {
			log.Warn("rule reload rejected", zap.String("source", set.Source), zap.Error(err))
			return
		}
		log.Info("automation rules reloaded", zap.String("source", set.Source), zap.Int("rules", len(rules)))
	})
}
