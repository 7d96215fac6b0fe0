package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	workflowdomain "github.com/smallbiznis/procurelink/internal/workflow/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) workflowdomain.Repository {
	return &repository{db: db}
}

// AutoMigrate creates the lineage tables.
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(&workflowdomain.Reference{}, &workflowdomain.ReferenceLink{})
}

func (r *repository) FindByKey(ctx context.Context, key workflowdomain.Key) (*workflowdomain.Reference, error) {
	var ref workflowdomain.Reference
	err := r.db.WithContext(ctx).
		Where("record_type = ? AND record_id = ?", key.Type, key.ID).
		Take(&ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []snowflake.ID) ([]workflowdomain.Reference, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var refs []workflowdomain.Reference
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&refs).Error
	if err != nil {
		return nil, err
	}
	return refs, nil
}

func (r *repository) Insert(ctx context.Context, ref *workflowdomain.Reference) error {
	return r.db.WithContext(ctx).Create(ref).Error
}

func (r *repository) InsertLink(ctx context.Context, link *workflowdomain.ReferenceLink) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "parent_id"}, {Name: "child_id"}},
			DoNothing: true,
		}).
		Create(link).Error
}

func (r *repository) ParentIDs(ctx context.Context, childID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := r.db.WithContext(ctx).
		Model(&workflowdomain.ReferenceLink{}).
		Where("child_id = ?", childID).
		Order("id ASC").
		Pluck("parent_id", &ids).Error
	return ids, err
}

func (r *repository) ChildIDs(ctx context.Context, parentID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := r.db.WithContext(ctx).
		Model(&workflowdomain.ReferenceLink{}).
		Where("parent_id = ?", parentID).
		Order("id ASC").
		Pluck("child_id", &ids).Error
	return ids, err
}
