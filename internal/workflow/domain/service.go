package domain

import "context"

type Service interface {
	Register(ctx context.Context, ref WorkflowReference) (*WorkflowReference, error)
	Link(ctx context.Context, parent, child Key) error
	Get(ctx context.Context, key Key) (*WorkflowReference, error)
	Lineage(ctx context.Context, key Key, direction Direction, depth int) (*Lineage, error)
}
