package journal

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procurelink/internal/integrationevent/domain"
	"gorm.io/datatypes"
)

// IntegrationEventRecord is the journal row for one dispatched event.
type IntegrationEventRecord struct {
	ID               snowflake.ID      `gorm:"primaryKey"`
	EventType        string            `gorm:"type:text;not null;index"`
	SourceModule     string            `gorm:"type:text;not null;index:ix_integration_events_source,priority:1"`
	SourceRecordID   string            `gorm:"type:text;index:ix_integration_events_source,priority:2"`
	SourceRecordType string            `gorm:"type:text"`
	Payload          datatypes.JSONMap `gorm:"type:jsonb"`
	ProcessedBy      datatypes.JSON    `gorm:"type:jsonb"`
	ProcessingErrors datatypes.JSON    `gorm:"type:jsonb"`
	OccurredAt       time.Time         `gorm:"not null"`
	CreatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (IntegrationEventRecord) TableName() string { return "integration_events" }

func newRecord(event domain.IntegrationEvent) (IntegrationEventRecord, error) {
	processedBy, err := json.Marshal(nonNil(event.ProcessedBy))
	if err != nil {
		return IntegrationEventRecord{}, err
	}
	processingErrors, err := json.Marshal(nonNil(event.ProcessingErrors))
	if err != nil {
		return IntegrationEventRecord{}, err
	}
	return IntegrationEventRecord{
		ID:               event.ID,
		EventType:        string(event.EventType),
		SourceModule:     event.SourceModule,
		SourceRecordID:   event.SourceRecordID,
		SourceRecordType: event.SourceRecordType,
		Payload:          datatypes.JSONMap(event.EventData),
		ProcessedBy:      datatypes.JSON(processedBy),
		ProcessingErrors: datatypes.JSON(processingErrors),
		OccurredAt:       event.Timestamp,
	}, nil
}

// Event converts the row back into the domain event.
func (r IntegrationEventRecord) Event() (domain.IntegrationEvent, error) {
	event := domain.IntegrationEvent{
		ID:               r.ID,
		EventType:        domain.EventType(r.EventType),
		SourceModule:     r.SourceModule,
		SourceRecordID:   r.SourceRecordID,
		SourceRecordType: r.SourceRecordType,
		EventData:        map[string]any(r.Payload),
		Timestamp:        r.OccurredAt,
	}
	if len(r.ProcessedBy) > 0 {
		if err := json.Unmarshal(r.ProcessedBy, &event.ProcessedBy); err != nil {
			return domain.IntegrationEvent{}, err
		}
	}
	if len(r.ProcessingErrors) > 0 {
		if err := json.Unmarshal(r.ProcessingErrors, &event.ProcessingErrors); err != nil {
			return domain.IntegrationEvent{}, err
		}
	}
	return event, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
