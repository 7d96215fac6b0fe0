package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// RuleDefinition is the externalized, not yet validated form of an automation rule.
type RuleDefinition struct {
	ID               string             `mapstructure:"id" yaml:"id" json:"id"`
	Name             string             `mapstructure:"name" yaml:"name" json:"name"`
	Description      string             `mapstructure:"description" yaml:"description" json:"description"`
	TriggerModule    string             `mapstructure:"trigger_module" yaml:"trigger_module" json:"trigger_module"`
	TriggerCondition string             `mapstructure:"trigger_condition" yaml:"trigger_condition" json:"trigger_condition"`
	Active           *bool              `mapstructure:"active" yaml:"active" json:"active,omitempty"`
	Actions          []ActionDefinition `mapstructure:"actions" yaml:"actions" json:"actions"`
}

// ActionDefinition carries an untyped configuration map decoded per action type at load time.
type ActionDefinition struct {
	ID            string         `mapstructure:"id" yaml:"id" json:"id"`
	Type          string         `mapstructure:"type" yaml:"type" json:"type"`
	TargetModule  string         `mapstructure:"target_module" yaml:"target_module" json:"target_module"`
	Order         int            `mapstructure:"order" yaml:"order" json:"order"`
	Configuration map[string]any `mapstructure:"configuration" yaml:"configuration" json:"configuration"`
}

// RuleSet is a snapshot of the rule store.
type RuleSet struct {
	Source string
	Rules  []RuleDefinition
}

// RuleSetHolder keeps the latest rule set read from rules.yml and reloads it on change.
type RuleSetHolder struct {
	current atomic.Value // holds RuleSet
	found   bool
	log     *zap.Logger

	mu        sync.Mutex
	listeners []func(RuleSet)
}

// NewRuleSetHolder reads the rule store. A missing file is not an error; Found reports false
// and callers fall back to the built-in rule set.
func NewRuleSetHolder(cfg Config, log *zap.Logger) (*RuleSetHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	v := viper.New()

	if cfg.RulesFile != "" {
		v.SetConfigFile(cfg.RulesFile)
	} else {
		v.SetConfigName("rules")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/procurelink")
		v.AddConfigPath(".")
	}

	holder := &RuleSetHolder{log: log.Named("config.rules")}
	holder.current.Store(RuleSet{})

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			holder.log.Info("rule store not found, using built-in rules")
			return holder, nil
		}
		return nil, err
	}

	set, err := decodeRuleSet(v)
	if err != nil {
		return nil, err
	}
	holder.found = true
	holder.current.Store(set)
	holder.log.Info("rule store loaded",
		zap.String("source", set.Source),
		zap.Int("rules", len(set.Rules)),
	)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeRuleSet(v)
		if err != nil {
			holder.log.Warn("rule store reload failed", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		holder.log.Info("rule store reloaded", zap.String("file", e.Name), zap.Int("rules", len(updated.Rules)))
		holder.notify(updated)
	})

	return holder, nil
}

// NewStaticRuleSetHolder returns a holder over a fixed rule set.
func NewStaticRuleSetHolder(set RuleSet) *RuleSetHolder {
	holder := &RuleSetHolder{found: true, log: zap.NewNop()}
	holder.current.Store(set)
	return holder
}

// Get returns the current rule set and whether a rule store was found.
func (h *RuleSetHolder) Get() (RuleSet, bool) {
	return h.current.Load().(RuleSet), h.found
}

// OnChange registers fn to run after every successful reload.
func (h *RuleSetHolder) OnChange(fn func(RuleSet)) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

func (h *RuleSetHolder) notify(set RuleSet) {
	h.mu.Lock()
	listeners := append([]func(RuleSet){}, h.listeners...)
	h.mu.Unlock()
	for _, fn := range listeners {
		fn(set)
	}
}

func decodeRuleSet(v *viper.Viper) (RuleSet, error) {
	var rules []RuleDefinition
	if err := v.UnmarshalKey("rules", &rules); err != nil {
		return RuleSet{}, fmt.Errorf("decode rules: %w", err)
	}
	if err := validateRuleDefinitions(rules); err != nil {
		return RuleSet{}, err
	}
	return RuleSet{Source: v.ConfigFileUsed(), Rules: rules}, nil
}

func validateRuleDefinitions(rules []RuleDefinition) error {
	seen := make(map[string]struct{}, len(rules))
	for i, rule := range rules {
		id := strings.TrimSpace(rule.ID)
		if id == "" {
			return fmt.Errorf("rules[%d]: id is required", i)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("rules[%d]: duplicate id %q", i, id)
		}
		seen[id] = struct{}{}
		if strings.TrimSpace(rule.TriggerModule) == "" {
			return fmt.Errorf("rules[%d]: trigger_module is required", i)
		}
	}
	return nil
}
