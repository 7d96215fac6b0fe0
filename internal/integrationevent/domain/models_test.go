package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, IntegrationEvent{SourceModule: "bills"}.Validate(), ErrInvalidEventType)
	assert.ErrorIs(t, IntegrationEvent{EventType: EventTypeCreate}.Validate(), ErrMissingSourceModule)
	assert.NoError(t, IntegrationEvent{EventType: EventTypeStatusChange, SourceModule: "bills"}.Validate())
}

func TestCloneDoesNotAlias(t *testing.T) {
	original := IntegrationEvent{
		EventType:    EventTypeCreate,
		SourceModule: "purchase_orders",
		EventData: map[string]any{
			"finalAmount": 8000,
			"vendor":      map[string]any{"id": "v1"},
		},
		ProcessedBy: []string{"dispatcher"},
	}

	clone := original.Clone()
	clone.EventData["finalAmount"] = 1
	clone.EventData["vendor"].(map[string]any)["id"] = "v2"
	clone.ProcessedBy = append(clone.ProcessedBy[:0], "other")

	assert.Equal(t, 8000, original.EventData["finalAmount"])
	assert.Equal(t, "v1", original.EventData["vendor"].(map[string]any)["id"])
	assert.Equal(t, []string{"dispatcher"}, original.ProcessedBy)
}

func TestLookupPath(t *testing.T) {
	data := map[string]any{
		"bill": map[string]any{"totals": map[string]any{"tax": 180}},
		"po":   "PO-1",
	}

	v, ok := LookupPath(data, "bill.totals.tax")
	require.True(t, ok)
	assert.Equal(t, 180, v)

	_, ok = LookupPath(data, "po.number")
	assert.False(t, ok)

	_, ok = LookupPath(data, "missing")
	assert.False(t, ok)

	_, ok = LookupPath(nil, "po")
	assert.False(t, ok)
}
