package domain

import "errors"

var (
	ErrInvalidSeverity  = errors.New("invalid_severity")
	ErrInvalidAlertType = errors.New("invalid_alert_type")
)
