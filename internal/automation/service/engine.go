package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/smallbiznis/procurelink/internal/automation/condition"
	automationdomain "github.com/smallbiznis/procurelink/internal/automation/domain"
	"github.com/smallbiznis/procurelink/internal/automation/rulestore"
	"github.com/smallbiznis/procurelink/internal/clock"
	eventdomain "github.com/smallbiznis/procurelink/internal/integrationevent/domain"
	"github.com/smallbiznis/procurelink/internal/notification"
	obsmetrics "github.com/smallbiznis/procurelink/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultExecutionLogSize = 500

type Config struct {
	ExecutionLogSize int
}

func (c Config) withDefaults() Config {
	if c.ExecutionLogSize <= 0 {
		c.ExecutionLogSize = defaultExecutionLogSize
	}
	return c
}

type Params struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	Config    Config                          `optional:"true"`
	Modules   automationdomain.ModuleResolver `optional:"true"`
	Notifier  notification.Notifier           `optional:"true"`
	Approvals automationdomain.ApprovalRouter `optional:"true"`
	Metrics   *obsmetrics.Metrics             `optional:"true"`
}

// compiledRule pairs a rule with its parsed condition and ordered actions.
// expr and actions are never mutated after compile; rule is, under mu.
type compiledRule struct {
	rule    automationdomain.Rule
	expr    *condition.Expr
	actions []automationdomain.Action
}

// Engine matches dispatched events against the active rules and runs the
// actions of every rule whose condition holds. The rule list is guarded by
// mu; evaluation works on a snapshot so rule management never blocks on
// action execution.
type Engine struct {
	log       *zap.Logger
	clock     clock.Clock
	cfg       Config
	modules   automationdomain.ModuleResolver
	notifier  notification.Notifier
	approvals automationdomain.ApprovalRouter
	metrics   *obsmetrics.Metrics

	mu    sync.RWMutex
	rules []*compiledRule
	index map[string]*compiledRule

	execMu     sync.Mutex
	executions []automationdomain.ExecutionRecord
	execNext   int
	execFull   bool
}

func NewEngine(p Params) *Engine {
	cfg := p.Config.withDefaults()
	return &Engine{
		log:        p.Log.Named("automation.engine"),
		clock:      p.Clock,
		cfg:        cfg,
		modules:    p.Modules,
		notifier:   p.Notifier,
		approvals:  p.Approvals,
		metrics:    p.Metrics,
		index:      map[string]*compiledRule{},
		executions: make([]automationdomain.ExecutionRecord, cfg.ExecutionLogSize),
	}
}

// EvaluateEvent runs every active rule triggered by the event's source
// module whose condition matches. Action failures never stop later actions
// or rules; they are logged and returned joined for the event's audit trail.
func (e *Engine) EvaluateEvent(ctx context.Context, event eventdomain.IntegrationEvent) error {
	candidates := e.candidates(event.SourceModule)
	if len(candidates) == 0 {
		return nil
	}

	env := condition.EventEnv(event)
	var errs []error
	for _, candidate := range candidates {
		if candidate.expr == nil || !candidate.expr.Match(env) {
			continue
		}
		if err := e.run(ctx, candidate, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// candidates snapshots the active rules for a module. Everything run needs
// is copied under the read lock; rule management may change the live
// entries while actions execute.
func (e *Engine) candidates(sourceModule string) []compiledRule {
	module := rulestore.NormalizeTriggerModule(sourceModule)

	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []compiledRule
	for _, cr := range e.rules {
		if cr.rule.IsActive && cr.rule.TriggerModule == module {
			out = append(out, compiledRule{
				rule:    cr.rule.Clone(),
				expr:    cr.expr,
				actions: cr.actions,
			})
		}
	}
	return out
}

func (e *Engine) run(ctx context.Context, cr compiledRule, event eventdomain.IntegrationEvent) error {
	rule := cr.rule
	log := e.log.With(
		zap.String("rule_id", rule.ID),
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", string(event.EventType)),
		zap.String("source_module", event.SourceModule),
	)
	log.Info("rule matched")

	record := automationdomain.ExecutionRecord{
		RuleID:       rule.ID,
		RuleName:     rule.Name,
		EventID:      event.ID.String(),
		SourceModule: event.SourceModule,
	}

	var errs []error
	for _, action := range cr.actions {
		result := automationdomain.ActionResult{ActionID: action.ID, Type: action.Type, Order: action.Order}
		if err := e.safeExecute(ctx, rule, action, event); err != nil {
			result.Error = err.Error()
			errs = append(errs, fmt.Errorf("rule %s action %s: %w", rule.ID, action.ID, err))
			log.Warn("automation action failed",
				zap.String("action_id", action.ID),
				zap.String("action_type", string(action.Type)),
				zap.String("target_module", action.TargetModule),
				zap.Error(err),
			)
			e.metrics.RecordActionFailure(ctx, string(action.Type), action.TargetModule)
		}
		record.ActionResults = append(record.ActionResults, result)
	}

	now := e.clock.Now()
	record.At = now
	e.mu.Lock()
	if current, ok := e.index[rule.ID]; ok {
		executed := now
		current.rule.LastExecuted = &executed
		current.rule.ExecutionCount++
	}
	e.mu.Unlock()

	e.remember(record)
	e.metrics.RecordRuleExecution(ctx, rule.ID, len(errs))
	return errors.Join(errs...)
}

func (e *Engine) safeExecute(ctx context.Context, rule automationdomain.Rule, action automationdomain.Action, event eventdomain.IntegrationEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", automationdomain.ErrActionPanicked, r)
		}
	}()
	return e.ExecuteAction(ctx, rule, action, event)
}

func (e *Engine) remember(record automationdomain.ExecutionRecord) {
	e.execMu.Lock()
	defer e.execMu.Unlock()
	e.executions[e.execNext] = record
	e.execNext = (e.execNext + 1) % len(e.executions)
	if e.execNext == 0 {
		e.execFull = true
	}
}

// Executions returns up to limit execution records, newest first.
func (e *Engine) Executions(limit int) []automationdomain.ExecutionRecord {
	e.execMu.Lock()
	defer e.execMu.Unlock()

	size := e.execNext
	if e.execFull {
		size = len(e.executions)
	}
	if limit <= 0 || limit > size {
		limit = size
	}
	out := make([]automationdomain.ExecutionRecord, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (e.execNext - 1 - i + len(e.executions)) % len(e.executions)
		out = append(out, e.executions[idx])
	}
	return out
}

func compile(rule automationdomain.Rule) *compiledRule {
	cr := &compiledRule{rule: rule.Clone(), actions: rule.SortedActions()}
	expr, err := condition.Compile(rule.TriggerCondition)
	if err != nil {
		cr.rule.ConditionError = err.Error()
		return cr
	}
	cr.rule.ConditionError = ""
	cr.expr = expr
	return cr
}

func validateRule(rule automationdomain.Rule) error {
	if strings.TrimSpace(rule.ID) == "" {
		return fmt.Errorf("%w: id is required", automationdomain.ErrInvalidRule)
	}
	if strings.TrimSpace(rule.TriggerModule) == "" {
		return fmt.Errorf("%w: rule %s needs a trigger module", automationdomain.ErrInvalidRule, rule.ID)
	}
	seen := make(map[string]struct{}, len(rule.Actions))
	for _, action := range rule.Actions {
		if err := action.Validate(); err != nil {
			return err
		}
		if _, dup := seen[action.ID]; dup {
			return fmt.Errorf("%w: rule %s has duplicate action id %s", automationdomain.ErrInvalidRule, rule.ID, action.ID)
		}
		seen[action.ID] = struct{}{}
	}
	return nil
}
