package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	approvaldomain "github.com/smallbiznis/procurelink/internal/approval/domain"
	"gorm.io/gorm"
)

const defaultListLimit = 200

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) approvaldomain.Repository {
	return &repository{db: db}
}

func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(&approvaldomain.Approval{})
}

func (r *repository) Insert(ctx context.Context, approval *approvaldomain.Approval) error {
	return r.db.WithContext(ctx).Create(approval).Error
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*approvaldomain.Approval, error) {
	var approval approvaldomain.Approval
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&approval).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &approval, nil
}

func (r *repository) ListByStatus(ctx context.Context, status approvaldomain.Status, approver string, limit int) ([]approvaldomain.Approval, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := r.db.WithContext(ctx).Where("status = ?", status)
	if approver != "" {
		query = query.Where("approver = ?", approver)
	}
	var approvals []approvaldomain.Approval
	err := query.Order("id ASC").Limit(limit).Find(&approvals).Error
	return approvals, err
}

func (r *repository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]approvaldomain.Approval, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var approvals []approvaldomain.Approval
	err := r.db.WithContext(ctx).
		Where("status = ? AND escalate_at IS NOT NULL AND escalate_at <= ?", approvaldomain.StatusPending, now).
		Order("escalate_at ASC").
		Limit(limit).
		Find(&approvals).Error
	return approvals, err
}

func (r *repository) UpdateDecision(ctx context.Context, approval *approvaldomain.Approval, from []approvaldomain.Status) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&approvaldomain.Approval{}).
		Where("id = ? AND status IN ?", approval.ID, from).
		Updates(map[string]any{
			"status":     approval.Status,
			"decided_by": approval.DecidedBy,
			"comment":    approval.Comment,
			"decided_at": approval.DecidedAt,
			"updated_at": approval.UpdatedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
