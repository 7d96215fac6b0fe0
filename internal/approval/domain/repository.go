package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	Insert(ctx context.Context, approval *Approval) error
	// FindByID returns nil, nil when no approval has the id.
	FindByID(ctx context.Context, id snowflake.ID) (*Approval, error)
	ListByStatus(ctx context.Context, status Status, approver string, limit int) ([]Approval, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]Approval, error)
	// UpdateDecision writes the decision only while the row is still open
	// and reports whether it did.
	UpdateDecision(ctx context.Context, approval *Approval, from []Status) (bool, error)
}
