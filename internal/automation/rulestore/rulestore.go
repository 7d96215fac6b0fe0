// Package rulestore turns externalized rule definitions into typed rules.
package rulestore

import (
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/smallbiznis/procurelink/internal/automation/condition"
	automationdomain "github.com/smallbiznis/procurelink/internal/automation/domain"
	"github.com/smallbiznis/procurelink/internal/config"
	modulesdomain "github.com/smallbiznis/procurelink/internal/modules/domain"
	"gopkg.in/yaml.v3"
)

// SourceDefaults names the embedded rule set in logs.
const SourceDefaults = "builtin"

//go:embed default_rules.yaml
var defaultRulesYAML []byte

type ruleFile struct {
	Rules []config.RuleDefinition `yaml:"rules"`
}

// Defaults returns the built-in rule definitions.
func Defaults() ([]config.RuleDefinition, error) {
	var file ruleFile
	if err := yaml.Unmarshal(defaultRulesYAML, &file); err != nil {
		return nil, fmt.Errorf("decode default rules: %w", err)
	}
	return file.Rules, nil
}

// Load returns the holder's rules when a rule store was found, otherwise
// the built-in rules, decoded with timestamps set to now.
func Load(holder *config.RuleSetHolder, now time.Time) ([]automationdomain.Rule, string, error) {
	if holder != nil {
		if set, found := holder.Get(); found {
			rules, err := DecodeAll(set.Rules, now)
			return rules, set.Source, err
		}
	}
	defs, err := Defaults()
	if err != nil {
		return nil, SourceDefaults, err
	}
	rules, err := DecodeAll(defs, now)
	return rules, SourceDefaults, err
}

func DecodeAll(defs []config.RuleDefinition, now time.Time) ([]automationdomain.Rule, error) {
	rules := make([]automationdomain.Rule, 0, len(defs))
	seen := make(map[string]struct{}, len(defs))
	for i, def := range defs {
		rule, err := Decode(def, now)
		if err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
		if _, dup := seen[rule.ID]; dup {
			return nil, fmt.Errorf("rules[%d]: %w: %s", i, automationdomain.ErrDuplicateRule, rule.ID)
		}
		seen[rule.ID] = struct{}{}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Decode validates one definition and decodes each action configuration
// into its typed variant. A condition that does not parse is kept on the
// rule as ConditionError rather than failing the load.
func Decode(def config.RuleDefinition, now time.Time) (automationdomain.Rule, error) {
	id := strings.TrimSpace(def.ID)
	if id == "" {
		return automationdomain.Rule{}, fmt.Errorf("%w: id is required", automationdomain.ErrInvalidRule)
	}
	trigger := NormalizeTriggerModule(def.TriggerModule)
	if trigger == "" {
		return automationdomain.Rule{}, fmt.Errorf("%w: rule %s needs trigger_module", automationdomain.ErrInvalidRule, id)
	}

	rule := automationdomain.Rule{
		ID:               id,
		Name:             strings.TrimSpace(def.Name),
		Description:      strings.TrimSpace(def.Description),
		TriggerModule:    trigger,
		TriggerCondition: strings.TrimSpace(def.TriggerCondition),
		IsActive:         def.Active == nil || *def.Active,
		CreatedDate:      now,
	}
	if rule.Name == "" {
		rule.Name = id
	}
	if _, err := condition.Compile(rule.TriggerCondition); err != nil {
		rule.ConditionError = err.Error()
	}

	seen := make(map[string]struct{}, len(def.Actions))
	for i, actionDef := range def.Actions {
		action, err := DecodeAction(actionDef)
		if err != nil {
			return automationdomain.Rule{}, fmt.Errorf("rule %s actions[%d]: %w", id, i, err)
		}
		if _, dup := seen[action.ID]; dup {
			return automationdomain.Rule{}, fmt.Errorf("%w: rule %s has duplicate action id %s", automationdomain.ErrInvalidRule, id, action.ID)
		}
		seen[action.ID] = struct{}{}
		rule.Actions = append(rule.Actions, action)
	}
	return rule, nil
}

func DecodeAction(def config.ActionDefinition) (automationdomain.Action, error) {
	action := automationdomain.Action{
		ID:    strings.TrimSpace(def.ID),
		Type:  automationdomain.ActionType(strings.ToLower(strings.TrimSpace(def.Type))),
		Order: def.Order,
	}
	if def.TargetModule != "" {
		action.TargetModule = NormalizeTriggerModule(def.TargetModule)
	}

	var (
		cfg automationdomain.ActionConfig
		err error
	)
	switch action.Type {
	case automationdomain.ActionNotification:
		cfg, err = decodeConfig[automationdomain.NotificationConfig](def.Configuration)
	case automationdomain.ActionStatusUpdate:
		cfg, err = decodeConfig[automationdomain.StatusUpdateConfig](def.Configuration)
	case automationdomain.ActionRecordCreation:
		cfg, err = decodeConfig[automationdomain.RecordCreationConfig](def.Configuration)
	case automationdomain.ActionApprovalRequest:
		cfg, err = decodeConfig[automationdomain.ApprovalRequestConfig](def.Configuration)
	default:
		return automationdomain.Action{}, fmt.Errorf("%w: %q", automationdomain.ErrUnknownActionType, def.Type)
	}
	if err != nil {
		return automationdomain.Action{}, fmt.Errorf("%w: action %s: %v", automationdomain.ErrInvalidAction, action.ID, err)
	}
	action.Config = cfg

	if err := action.Validate(); err != nil {
		return automationdomain.Action{}, err
	}
	return action, nil
}

// NormalizeTriggerModule maps module aliases onto canonical names and keeps
// unknown names lower-cased.
func NormalizeTriggerModule(raw string) string {
	if module, ok := modulesdomain.NormalizeModule(raw); ok {
		return module
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

func decodeConfig[T automationdomain.ActionConfig](raw map[string]any) (automationdomain.ActionConfig, error) {
	var out T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, err
	}
	return out, nil
}
