package journal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/procurelink/internal/integrationevent/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupJournal(t *testing.T) *GormJournal {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	j := NewGormJournal(db)
	require.NoError(t, j.Migrate(context.Background()))
	return j
}

func sampleEvent(id snowflake.ID) domain.IntegrationEvent {
	return domain.IntegrationEvent{
		ID:               id,
		EventType:        domain.EventTypeCreate,
		SourceModule:     "goods_receipt_note",
		SourceRecordID:   "grn_1",
		SourceRecordType: "grn",
		EventData:        map[string]any{"poId": "po_1"},
		Timestamp:        time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
		ProcessedBy:      []string{"integration_dispatcher", "automation_engine"},
		ProcessingErrors: []string{"subscriber_2: boom"},
	}
}

func TestGormJournalRecordIsIdempotent(t *testing.T) {
	j := setupJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Record(ctx, sampleEvent(100)))
	require.NoError(t, j.Record(ctx, sampleEvent(100)))
	require.NoError(t, j.Record(ctx, sampleEvent(101)))

	events, err := j.ListBySource(ctx, "goods_receipt_note", "grn_1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, snowflake.ID(100), events[0].ID)
	assert.Equal(t, []string{"integration_dispatcher", "automation_engine"}, events[0].ProcessedBy)
	assert.Equal(t, []string{"subscriber_2: boom"}, events[0].ProcessingErrors)
	assert.Equal(t, "po_1", events[0].EventData["poId"])
}

func TestStreamValues(t *testing.T) {
	values, err := streamValues(sampleEvent(42))
	require.NoError(t, err)

	assert.Equal(t, "42", values["event_id"])
	assert.Equal(t, "create", values["event_type"])
	assert.Equal(t, "2026-03-04T10:00:00Z", values["timestamp"])

	var processedBy []string
	require.NoError(t, json.Unmarshal([]byte(values["processed_by"].(string)), &processedBy))
	assert.Equal(t, []string{"integration_dispatcher", "automation_engine"}, processedBy)
}

func TestStreamValuesEmptyAuditFields(t *testing.T) {
	event := sampleEvent(7)
	event.ProcessingErrors = nil

	values, err := streamValues(event)
	require.NoError(t, err)
	assert.Equal(t, "[]", values["processing_errors"])
}
