package journal

import (
	"context"
	"fmt"

	"github.com/smallbiznis/procurelink/internal/integrationevent/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormJournal appends dispatched events to the integration_events table.
type GormJournal struct {
	db *gorm.DB
}

func NewGormJournal(db *gorm.DB) *GormJournal {
	return &GormJournal{db: db}
}

func (j *GormJournal) Migrate(ctx context.Context) error {
	return j.db.WithContext(ctx).AutoMigrate(&IntegrationEventRecord{})
}

// Record is idempotent on event id.
func (j *GormJournal) Record(ctx context.Context, event domain.IntegrationEvent) error {
	row, err := newRecord(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	return j.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
}

// ListBySource returns journaled events for one source record, oldest first.
func (j *GormJournal) ListBySource(ctx context.Context, sourceModule, sourceRecordID string, limit int) ([]domain.IntegrationEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []IntegrationEventRecord
	err := j.db.WithContext(ctx).
		Where("source_module = ? AND source_record_id = ?", sourceModule, sourceRecordID).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	events := make([]domain.IntegrationEvent, 0, len(rows))
	for _, row := range rows {
		event, err := row.Event()
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}
