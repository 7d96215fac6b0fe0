package domain

import "errors"

var (
	ErrInvalidEventType    = errors.New("invalid_event_type")
	ErrMissingSourceModule = errors.New("missing_source_module")
)
