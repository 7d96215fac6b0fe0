package domain

import "errors"

var (
	ErrNotFound         = errors.New("not_found")
	ErrInvalidType      = errors.New("invalid_reference_type")
	ErrInvalidID        = errors.New("invalid_reference_id")
	ErrSelfLink         = errors.New("self_link")
	ErrCausalOrder      = errors.New("child_precedes_parent")
	ErrCycle            = errors.New("reference_cycle")
	ErrInvalidDirection = errors.New("invalid_direction")
)
