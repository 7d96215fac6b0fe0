package domain

import "errors"

var (
	ErrNotFound         = errors.New("not_found")
	ErrInvalidID        = errors.New("invalid_id")
	ErrApproverRequired = errors.New("approver_required")
	ErrRecordRequired   = errors.New("record_required")
	ErrAlreadyDecided   = errors.New("approval_already_decided")
)
