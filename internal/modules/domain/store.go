package domain

import (
	"context"
	"time"
)

// Store is the contract each module exposes to the integration layer.
// Lookups of unknown ids fail with a *NotFoundError.
type Store[T any] interface {
	GetByID(ctx context.Context, id string) (T, error)
	UpdateStatus(ctx context.Context, id, status string) error
	Create(ctx context.Context, fields map[string]any) (T, error)
	ListByVendor(ctx context.Context, vendorID string) ([]T, error)
	List(ctx context.Context) ([]T, error)
}

type BillStore interface {
	Store[Bill]
	UpdateMatch(ctx context.Context, id string, match MatchResult) error
	// ApplyPayment adds paid and withheld amounts and moves the bill to
	// partially_paid or paid.
	ApplyPayment(ctx context.Context, id string, paid, tds int64) (Bill, error)
}

type AgingBucket struct {
	Label       string `json:"label"`
	Outstanding int64  `json:"outstanding"`
	Bills       int    `json:"bills"`
}

type AgingSnapshot struct {
	VendorID         string        `json:"vendorId"`
	TotalOutstanding int64         `json:"totalOutstanding"`
	Buckets          []AgingBucket `json:"buckets"`
	RefreshedAt      time.Time     `json:"refreshedAt"`
}

type PayablesAging interface {
	Refresh(ctx context.Context, vendorID string) (AgingSnapshot, error)
	MSMEStatus(bill Bill, now time.Time) MSMEStatus
}

// StatusMutator is the slice of a store used by status_update actions.
type StatusMutator interface {
	UpdateStatus(ctx context.Context, id, status string) error
}

// RecordCreator is the slice of a store used by record_creation actions.
type RecordCreator interface {
	CreateRecord(ctx context.Context, fields map[string]any) (string, error)
}

type recordCreator[T Record[T]] struct {
	store Store[T]
}

func (c recordCreator[T]) CreateRecord(ctx context.Context, fields map[string]any) (string, error) {
	record, err := c.store.Create(ctx, fields)
	if err != nil {
		return "", err
	}
	return record.RecordID(), nil
}

// CreatorOf adapts a typed store to RecordCreator.
func CreatorOf[T Record[T]](store Store[T]) RecordCreator {
	return recordCreator[T]{store: store}
}
