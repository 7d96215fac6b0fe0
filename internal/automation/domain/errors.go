package domain

import "errors"

var (
	ErrRuleNotFound        = errors.New("rule_not_found")
	ErrDuplicateRule       = errors.New("rule_already_exists")
	ErrInvalidRule         = errors.New("invalid_rule")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrUnknownActionType   = errors.New("unknown_action_type")
	ErrCollaboratorMissing = errors.New("action_collaborator_missing")
	ErrRecordIDMissing     = errors.New("action_record_id_missing")
	ErrActionPanicked      = errors.New("action_panicked")
)
