package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not_found")
	ErrUnknownModule = errors.New("unknown_module")
	ErrInvalidStatus = errors.New("invalid_status")
	ErrInvalidRecord = errors.New("invalid_record")
	ErrOverpayment   = errors.New("payment_exceeds_outstanding")
)

// NotFoundError names the module and record that could not be resolved.
type NotFoundError struct {
	Module string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Module, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func NewNotFound(module, id string) error {
	return &NotFoundError{Module: module, ID: id}
}
