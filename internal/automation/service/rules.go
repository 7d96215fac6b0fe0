package service

import (
	"context"
	"fmt"

	automationdomain "github.com/smallbiznis/procurelink/internal/automation/domain"
	"github.com/smallbiznis/procurelink/internal/automation/rulestore"
	"go.uber.org/zap"
)

// AddRule registers a rule. A condition that does not parse is accepted and
// reported on the returned rule; the rule never fires until fixed.
func (e *Engine) AddRule(_ context.Context, rule automationdomain.Rule) (automationdomain.Rule, error) {
	rule.TriggerModule = rulestore.NormalizeTriggerModule(rule.TriggerModule)
	if err := validateRule(rule); err != nil {
		return automationdomain.Rule{}, err
	}
	if rule.CreatedDate.IsZero() {
		rule.CreatedDate = e.clock.Now()
	}
	cr := compile(rule)

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.index[rule.ID]; exists {
		return automationdomain.Rule{}, fmt.Errorf("%w: %s", automationdomain.ErrDuplicateRule, rule.ID)
	}
	e.rules = append(e.rules, cr)
	e.index[rule.ID] = cr

	if cr.rule.ConditionError != "" {
		e.log.Warn("rule condition rejected", zap.String("rule_id", rule.ID), zap.String("error", cr.rule.ConditionError))
	}
	return cr.rule.Clone(), nil
}

func (e *Engine) RemoveRule(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.index[id]; !ok {
		return fmt.Errorf("%w: %s", automationdomain.ErrRuleNotFound, id)
	}
	delete(e.index, id)
	kept := make([]*compiledRule, 0, len(e.rules))
	for _, cr := range e.rules {
		if cr.rule.ID != id {
			kept = append(kept, cr)
		}
	}
	e.rules = kept
	return nil
}

func (e *Engine) SetActive(_ context.Context, id string, active bool) (automationdomain.Rule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cr, ok := e.index[id]
	if !ok {
		return automationdomain.Rule{}, fmt.Errorf("%w: %s", automationdomain.ErrRuleNotFound, id)
	}
	cr.rule.IsActive = active
	return cr.rule.Clone(), nil
}

func (e *Engine) GetRule(_ context.Context, id string) (automationdomain.Rule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cr, ok := e.index[id]
	if !ok {
		return automationdomain.Rule{}, fmt.Errorf("%w: %s", automationdomain.ErrRuleNotFound, id)
	}
	return cr.rule.Clone(), nil
}

func (e *Engine) ListRules(_ context.Context) []automationdomain.Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]automationdomain.Rule, 0, len(e.rules))
	for _, cr := range e.rules {
		out = append(out, cr.rule.Clone())
	}
	return out
}

// ReplaceRules swaps the whole rule set, as on a rule store reload. Rules
// whose id survives keep their creation date and execution stats. Nothing
// is replaced if any rule is invalid.
func (e *Engine) ReplaceRules(_ context.Context, rules []automationdomain.Rule) error {
	compiled := make([]*compiledRule, 0, len(rules))
	index := make(map[string]*compiledRule, len(rules))
	for _, rule := range rules {
		rule.TriggerModule = rulestore.NormalizeTriggerModule(rule.TriggerModule)
		if err := validateRule(rule); err != nil {
			return err
		}
		if _, dup := index[rule.ID]; dup {
			return fmt.Errorf("%w: %s", automationdomain.ErrDuplicateRule, rule.ID)
		}
		if rule.CreatedDate.IsZero() {
			rule.CreatedDate = e.clock.Now()
		}
		cr := compile(rule)
		compiled = append(compiled, cr)
		index[rule.ID] = cr
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for id, cr := range index {
		if previous, ok := e.index[id]; ok {
			cr.rule.CreatedDate = previous.rule.CreatedDate
			cr.rule.ExecutionCount = previous.rule.ExecutionCount
			if previous.rule.LastExecuted != nil {
				t := *previous.rule.LastExecuted
				cr.rule.LastExecuted = &t
			}
		}
	}
	e.rules = compiled
	e.index = index

	e.log.Info("rules replaced", zap.Int("rules", len(compiled)))
	for _, cr := range compiled {
		if cr.rule.ConditionError != "" {
			e.log.Warn("rule condition rejected", zap.String("rule_id", cr.rule.ID), zap.String("error", cr.rule.ConditionError))
		}
	}
	return nil
}
