package domain

import (
	"fmt"
	"strings"
	"time"
)

type ActionType string

const (
	ActionNotification    ActionType = "notification"
	ActionStatusUpdate    ActionType = "status_update"
	ActionRecordCreation  ActionType = "record_creation"
	ActionApprovalRequest ActionType = "approval_request"
)

func (t ActionType) Valid() bool {
	switch t {
	case ActionNotification, ActionStatusUpdate, ActionRecordCreation, ActionApprovalRequest:
		return true
	}
	return false
}

// ActionConfig is the typed configuration of one action variant.
type ActionConfig interface {
	ActionType() ActionType
	Validate() error
}

type NotificationConfig struct {
	TemplateID string   `mapstructure:"template_id" json:"templateId"`
	Recipients []string `mapstructure:"recipients" json:"recipients"`
	Channel    string   `mapstructure:"channel" json:"channel"`
}

func (NotificationConfig) ActionType() ActionType { return ActionNotification }

func (c NotificationConfig) Validate() error {
	if strings.TrimSpace(c.TemplateID) == "" {
		return fmt.Errorf("%w: notification needs template_id", ErrInvalidAction)
	}
	return nil
}

// StatusUpdateConfig sets a status on the target record. The status is
// Status, or the payload value at StatusField when Status is empty. The
// record id is the payload value at RecordIDField when set, else the
// event's source record.
type StatusUpdateConfig struct {
	Status        string `mapstructure:"status" json:"status,omitempty"`
	StatusField   string `mapstructure:"status_field" json:"statusField,omitempty"`
	RecordIDField string `mapstructure:"record_id_field" json:"recordIdField,omitempty"`
}

func (StatusUpdateConfig) ActionType() ActionType { return ActionStatusUpdate }

func (c StatusUpdateConfig) Validate() error {
	if strings.TrimSpace(c.Status) == "" && strings.TrimSpace(c.StatusField) == "" {
		return fmt.Errorf("%w: status_update needs status or status_field", ErrInvalidAction)
	}
	return nil
}

// RecordCreationConfig builds the new record from Fields. A string value
// prefixed with "eventData." is resolved from the event payload; the
// prefixes "event.sourceRecordId" and "event.sourceModule" resolve from the
// event itself; anything else is copied as a literal.
type RecordCreationConfig struct {
	RecordType string         `mapstructure:"record_type" json:"recordType"`
	Fields     map[string]any `mapstructure:"fields" json:"fields"`
}

func (RecordCreationConfig) ActionType() ActionType { return ActionRecordCreation }

func (c RecordCreationConfig) Validate() error {
	if len(c.Fields) == 0 {
		return fmt.Errorf("%w: record_creation needs fields", ErrInvalidAction)
	}
	return nil
}

type ApprovalRequestConfig struct {
	Approver          string        `mapstructure:"approver" json:"approver"`
	EscalationTimeout time.Duration `mapstructure:"escalation_timeout" json:"escalationTimeout"`
	Reason            string        `mapstructure:"reason" json:"reason,omitempty"`
}

func (ApprovalRequestConfig) ActionType() ActionType { return ActionApprovalRequest }

func (c ApprovalRequestConfig) Validate() error {
	if strings.TrimSpace(c.Approver) == "" {
		return fmt.Errorf("%w: approval_request needs approver", ErrInvalidAction)
	}
	if c.EscalationTimeout < 0 {
		return fmt.Errorf("%w: escalation_timeout must not be negative", ErrInvalidAction)
	}
	return nil
}

// Action is one step of a rule. Config always matches Type.
type Action struct {
	ID           string       `json:"id"`
	Type         ActionType   `json:"type"`
	TargetModule string       `json:"targetModule"`
	Order        int          `json:"order"`
	Config       ActionConfig `json:"configuration"`
}

func (a Action) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("%w: action id is required", ErrInvalidAction)
	}
	if !a.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownActionType, a.Type)
	}
	if a.Config == nil || a.Config.ActionType() != a.Type {
		return fmt.Errorf("%w: action %s configuration does not match type %s", ErrInvalidAction, a.ID, a.Type)
	}
	if a.Type != ActionNotification && strings.TrimSpace(a.TargetModule) == "" {
		return fmt.Errorf("%w: action %s needs target_module", ErrInvalidAction, a.ID)
	}
	return a.Config.Validate()
}
