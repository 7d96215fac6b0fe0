package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest   = errors.New("invalid_request")
	ErrNoBills          = errors.New("no_bills")
	ErrInvalidAmount    = errors.New("invalid_payment_amount")
	ErrBillSettled      = errors.New("bill_already_settled")
	ErrPaymentExhausted = errors.New("payment_amount_exhausted")
	ErrVendorMismatch   = errors.New("vendor_mismatch")
	ErrNothingApplied   = errors.New("payment_not_applied")
)

// Stages of a per-bill payment failure.
const (
	StageLoad   = "load"
	StageApply  = "apply"
	StageTDS    = "tds"
	StageLink   = "link"
	StageAging  = "aging"
	StageStatus = "status"
)

// BillFailure is one bill of a payment batch that could not be fully
// processed. Earlier stages of the same bill may have succeeded.
type BillFailure struct {
	BillID string `json:"billId"`
	Stage  string `json:"stage"`
	Reason string `json:"error"`
	Err    error  `json:"-"`
}

func NewBillFailure(billID, stage string, err error) BillFailure {
	return BillFailure{BillID: billID, Stage: stage, Reason: err.Error(), Err: err}
}

func (f BillFailure) Error() string {
	return fmt.Sprintf("bill %s: %s: %v", f.BillID, f.Stage, f.Err)
}

func (f BillFailure) Unwrap() error {
	return f.Err
}
