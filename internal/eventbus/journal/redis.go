package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/procurelink/internal/integrationevent/domain"
)

const defaultStreamMaxLen = 100_000

// RedisJournal appends dispatched events to a redis stream so downstream
// consumers can read them with XREADGROUP.
type RedisJournal struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisJournal(client *redis.Client, stream string) *RedisJournal {
	return &RedisJournal{client: client, stream: stream, maxLen: defaultStreamMaxLen}
}

func (j *RedisJournal) Record(ctx context.Context, event domain.IntegrationEvent) error {
	values, err := streamValues(event)
	if err != nil {
		return err
	}
	if err := j.client.XAdd(ctx, &redis.XAddArgs{
		Stream: j.stream,
		MaxLen: j.maxLen,
		Approx: true,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("journal event %s: %w", event.ID, err)
	}
	return nil
}

func (j *RedisJournal) Close() error {
	return j.client.Close()
}

func streamValues(event domain.IntegrationEvent) (map[string]any, error) {
	payload, err := json.Marshal(event.EventData)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	processedBy, err := json.Marshal(nonNil(event.ProcessedBy))
	if err != nil {
		return nil, err
	}
	processingErrors, err := json.Marshal(nonNil(event.ProcessingErrors))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"event_id":           event.ID.String(),
		"event_type":         string(event.EventType),
		"source_module":      event.SourceModule,
		"source_record_id":   event.SourceRecordID,
		"source_record_type": event.SourceRecordType,
		"payload":            string(payload),
		"processed_by":       string(processedBy),
		"processing_errors":  string(processingErrors),
		"timestamp":          event.Timestamp.UTC().Format(time.RFC3339Nano),
	}, nil
}
