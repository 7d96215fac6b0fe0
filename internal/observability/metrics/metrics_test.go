package metrics

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("rule_id", "rule_1"),
		attribute.String("event_id", "1830293847"),
		attribute.String("event_type", "create"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "event_id" {
			t.Fatalf("expected event_id to be dropped")
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordEventPublished(context.Background(), "create", "bills")
	m.RecordRuleExecution(context.Background(), "rule_1", 1)
	m.RecordActionFailure(context.Background(), "notification", "ap")
	m.RecordOperation(context.Background(), "process_payment", errors.New("boom"))
}

func TestNopRecords(t *testing.T) {
	m := Nop()
	if m == nil {
		t.Fatalf("expected nop metrics")
	}
	m.RecordEventPublished(context.Background(), "create", "bills")
}
