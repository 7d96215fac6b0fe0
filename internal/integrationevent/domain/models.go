package domain

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type EventType string

const (
	EventTypeCreate       EventType = "create"
	EventTypeUpdate       EventType = "update"
	EventTypeDelete       EventType = "delete"
	EventTypeStatusChange EventType = "status_change"
)

func (t EventType) Valid() bool {
	switch t {
	case EventTypeCreate, EventTypeUpdate, EventTypeDelete, EventTypeStatusChange:
		return true
	}
	return false
}

// IntegrationEvent is a fact emitted by a module operation. Once enqueued only
// ProcessedBy and ProcessingErrors change, and only by appending.
type IntegrationEvent struct {
	ID               snowflake.ID   `json:"id"`
	EventType        EventType      `json:"eventType"`
	SourceModule     string         `json:"sourceModule"`
	SourceRecordID   string         `json:"sourceRecordId"`
	SourceRecordType string         `json:"sourceRecordType"`
	EventData        map[string]any `json:"eventData"`
	Timestamp        time.Time      `json:"timestamp"`
	ProcessedBy      []string       `json:"processedBy"`
	ProcessingErrors []string       `json:"processingErrors"`
}

// Validate checks the fields a producer must set before publishing.
func (e IntegrationEvent) Validate() error {
	if !e.EventType.Valid() {
		return ErrInvalidEventType
	}
	if strings.TrimSpace(e.SourceModule) == "" {
		return ErrMissingSourceModule
	}
	return nil
}

// Clone copies the event so subscribers cannot alias the queued instance.
func (e IntegrationEvent) Clone() IntegrationEvent {
	out := e
	out.EventData = cloneMap(e.EventData)
	out.ProcessedBy = slices.Clone(e.ProcessedBy)
	out.ProcessingErrors = slices.Clone(e.ProcessingErrors)
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch typed := v.(type) {
		case map[string]any:
			out[k] = cloneMap(typed)
		case []any:
			out[k] = slices.Clone(typed)
		default:
			out[k] = v
		}
	}
	return out
}

// Lookup resolves a dotted path inside EventData.
func (e IntegrationEvent) Lookup(path string) (any, bool) {
	return LookupPath(e.EventData, path)
}

// LookupPath walks nested maps by dotted key.
func LookupPath(data map[string]any, path string) (any, bool) {
	if data == nil || path == "" {
		return nil, false
	}
	var current any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Keys is a stable view of the payload keys, used in logs.
func (e IntegrationEvent) Keys() []string {
	return slices.Sorted(maps.Keys(e.EventData))
}
