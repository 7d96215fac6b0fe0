package domain

import (
	"context"
	"time"
)

type Service interface {
	RequestApproval(ctx context.Context, req Request) (*Approval, error)
	Get(ctx context.Context, id string) (*Approval, error)
	ListPending(ctx context.Context, approver string) ([]Approval, error)
	Decide(ctx context.Context, id string, decision Decision) (*Approval, error)
	EscalateExpired(ctx context.Context, now time.Time) (int, error)
}
