package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	// FindByKey returns nil, nil when the record has no reference yet.
	FindByKey(ctx context.Context, key Key) (*Reference, error)
	FindByIDs(ctx context.Context, ids []snowflake.ID) ([]Reference, error)
	Insert(ctx context.Context, ref *Reference) error
	// InsertLink ignores an edge that already exists.
	InsertLink(ctx context.Context, link *ReferenceLink) error
	ParentIDs(ctx context.Context, childID snowflake.ID) ([]snowflake.ID, error)
	ChildIDs(ctx context.Context, parentID snowflake.ID) ([]snowflake.ID, error)
}
