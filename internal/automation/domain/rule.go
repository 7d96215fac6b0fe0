package domain

import (
	"slices"
	"time"
)

// Rule is a standing automation: when an event from TriggerModule satisfies
// TriggerCondition, Actions run in ascending Order.
type Rule struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	TriggerModule    string     `json:"triggerModule"`
	TriggerCondition string     `json:"triggerCondition"`
	Actions          []Action   `json:"actions"`
	IsActive         bool       `json:"isActive"`
	CreatedDate      time.Time  `json:"createdDate"`
	LastExecuted     *time.Time `json:"lastExecuted,omitempty"`
	ExecutionCount   int64      `json:"executionCount"`
	// ConditionError is set when TriggerCondition failed to parse; such a
	// rule never fires.
	ConditionError string `json:"conditionError,omitempty"`
}

// SortedActions returns the actions by ascending Order, keeping declaration
// order for ties.
func (r Rule) SortedActions() []Action {
	actions := slices.Clone(r.Actions)
	slices.SortStableFunc(actions, func(a, b Action) int {
		return a.Order - b.Order
	})
	return actions
}

// Clone copies the rule so callers cannot mutate engine state.
func (r Rule) Clone() Rule {
	out := r
	out.Actions = slices.Clone(r.Actions)
	if r.LastExecuted != nil {
		t := *r.LastExecuted
		out.LastExecuted = &t
	}
	return out
}

type ActionResult struct {
	ActionID string     `json:"actionId"`
	Type     ActionType `json:"type"`
	Order    int        `json:"order"`
	Error    string     `json:"error,omitempty"`
}

// ExecutionRecord is one rule evaluation that matched an event.
type ExecutionRecord struct {
	RuleID        string         `json:"ruleId"`
	RuleName      string         `json:"ruleName"`
	EventID       string         `json:"eventId"`
	SourceModule  string         `json:"sourceModule"`
	ActionResults []ActionResult `json:"actionResults"`
	At            time.Time      `json:"at"`
}

// Failed reports whether any action of the execution failed.
func (r ExecutionRecord) Failed() bool {
	for _, res := range r.ActionResults {
		if res.Error != "" {
			return true
		}
	}
	return false
}
