package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procurelink/internal/clock"
	"github.com/smallbiznis/procurelink/internal/integrationevent/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingEvaluator struct {
	mu     sync.Mutex
	events []domain.IntegrationEvent
	err    error
}

func (r *recordingEvaluator) EvaluateEvent(_ context.Context, event domain.IntegrationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

type memoryJournal struct {
	mu     sync.Mutex
	events []domain.IntegrationEvent
	err    error
}

func (j *memoryJournal) Record(_ context.Context, event domain.IntegrationEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.events = append(j.events, event)
	return nil
}

func newTestBus(t *testing.T, evaluator Evaluator, journal Journal) *Bus {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	bus, err := New(Params{
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clock.NewFakeClock(time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)),
		Config:    Config{MaxBatch: 100, RecentSize: 3},
		Evaluator: evaluator,
		Journal:   journal,
	})
	require.NoError(t, err)
	return bus
}

func createEvent(recordID string) domain.IntegrationEvent {
	return domain.IntegrationEvent{
		EventType:      domain.EventTypeCreate,
		SourceModule:   "purchase_orders",
		SourceRecordID: recordID,
		EventData:      map[string]any{"finalAmount": 8000},
	}
}

func TestPublishDoesNotDispatch(t *testing.T) {
	bus := newTestBus(t, nil, nil)
	called := false
	bus.Subscribe("create", func(context.Context, domain.IntegrationEvent) error {
		called = true
		return nil
	})

	event, err := bus.Publish(context.Background(), createEvent("po_1"))
	require.NoError(t, err)

	assert.NotZero(t, event.ID)
	assert.Equal(t, time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC), event.Timestamp)
	assert.Equal(t, 1, bus.Len())
	assert.False(t, called)
}

func TestPublishRejectsInvalidEvent(t *testing.T) {
	bus := newTestBus(t, nil, nil)

	_, err := bus.Publish(context.Background(), domain.IntegrationEvent{EventType: "archived", SourceModule: "bills"})
	assert.ErrorIs(t, err, domain.ErrInvalidEventType)
	assert.Equal(t, 0, bus.Len())
}

func TestDispatchPreservesPublishOrder(t *testing.T) {
	bus := newTestBus(t, nil, nil)
	var seen []string
	bus.Subscribe(WildcardEventType, func(_ context.Context, e domain.IntegrationEvent) error {
		seen = append(seen, e.SourceRecordID)
		return nil
	})

	var published []string
	for _, id := range []string{"po_1", "po_2", "po_3", "po_4"} {
		_, err := bus.Publish(context.Background(), createEvent(id))
		require.NoError(t, err)
		published = append(published, id)
	}

	assert.Equal(t, 4, bus.Drain(context.Background()))
	assert.Equal(t, published, seen)
	assert.Equal(t, 0, bus.Len())
}

func TestEventIDsAreTimeOrdered(t *testing.T) {
	bus := newTestBus(t, nil, nil)

	first, err := bus.Publish(context.Background(), createEvent("po_1"))
	require.NoError(t, err)
	second, err := bus.Publish(context.Background(), createEvent("po_2"))
	require.NoError(t, err)

	assert.Less(t, int64(first.ID), int64(second.ID))
}

func TestSubscriberFailureIsIsolated(t *testing.T) {
	evaluator := &recordingEvaluator{}
	journal := &memoryJournal{}
	bus := newTestBus(t, evaluator, journal)

	var calls []string
	bus.Subscribe("create", func(context.Context, domain.IntegrationEvent) error {
		calls = append(calls, "first")
		return errors.New("boom")
	}, WithName("ledger_listener"))
	bus.Subscribe("create", func(context.Context, domain.IntegrationEvent) error {
		calls = append(calls, "second")
		panic("handler bug")
	}, WithName("ui_listener"))
	bus.Subscribe("create", func(context.Context, domain.IntegrationEvent) error {
		calls = append(calls, "third")
		return nil
	}, WithName("audit_listener"))

	_, err := bus.Publish(context.Background(), createEvent("po_1"))
	require.NoError(t, err)
	bus.Drain(context.Background())

	assert.Equal(t, []string{"first", "second", "third"}, calls)
	require.Len(t, evaluator.events, 1)
	require.Len(t, journal.events, 1)

	journaled := journal.events[0]
	assert.Equal(t, []string{DefaultName, "audit_listener", AutomationConsumerName}, journaled.ProcessedBy)
	require.Len(t, journaled.ProcessingErrors, 2)
	assert.Contains(t, journaled.ProcessingErrors[0], "ledger_listener: boom")
	assert.Contains(t, journaled.ProcessingErrors[1], "ui_listener: panic: handler bug")
}

func TestSubscribeFiltersByEventType(t *testing.T) {
	bus := newTestBus(t, nil, nil)
	var creates, all int
	bus.Subscribe("create", func(context.Context, domain.IntegrationEvent) error { creates++; return nil })
	bus.Subscribe(WildcardEventType, func(context.Context, domain.IntegrationEvent) error { all++; return nil })

	_, _ = bus.Publish(context.Background(), createEvent("po_1"))
	update := createEvent("po_1")
	update.EventType = domain.EventTypeStatusChange
	_, _ = bus.Publish(context.Background(), update)
	bus.Drain(context.Background())

	assert.Equal(t, 1, creates)
	assert.Equal(t, 2, all)
}

func TestDuplicateSubscriptionsAreBothHonored(t *testing.T) {
	bus := newTestBus(t, nil, nil)
	count := 0
	handler := func(context.Context, domain.IntegrationEvent) error { count++; return nil }
	bus.Subscribe("create", handler)
	bus.Subscribe("create", handler)

	_, _ = bus.Publish(context.Background(), createEvent("po_1"))
	bus.Drain(context.Background())

	assert.Equal(t, 2, count)
}

func TestUnsubscribeMidProcessing(t *testing.T) {
	bus := newTestBus(t, nil, nil)

	var targetCalls []string
	var target Subscription
	bus.Subscribe("create", func(_ context.Context, e domain.IntegrationEvent) error {
		if e.SourceRecordID == "po_1" {
			bus.Unsubscribe(target)
		}
		return nil
	})
	target = bus.Subscribe("create", func(_ context.Context, e domain.IntegrationEvent) error {
		targetCalls = append(targetCalls, e.SourceRecordID)
		return nil
	})

	_, _ = bus.Publish(context.Background(), createEvent("po_1"))
	_, _ = bus.Publish(context.Background(), createEvent("po_2"))
	bus.Drain(context.Background())

	// po_1 was already dequeued when the handler was removed.
	assert.Equal(t, []string{"po_1"}, targetCalls)

	bus.Unsubscribe(target)
}

func TestHandlersReceiveCopies(t *testing.T) {
	journal := &memoryJournal{}
	bus := newTestBus(t, nil, journal)
	bus.Subscribe("create", func(_ context.Context, e domain.IntegrationEvent) error {
		e.EventData["finalAmount"] = 1
		e.ProcessedBy = append(e.ProcessedBy, "forged")
		return nil
	}, WithName("mutator"))

	_, _ = bus.Publish(context.Background(), createEvent("po_1"))
	bus.Drain(context.Background())

	require.Len(t, journal.events, 1)
	assert.Equal(t, 8000, journal.events[0].EventData["finalAmount"])
	assert.Equal(t, []string{DefaultName, "mutator"}, journal.events[0].ProcessedBy)
}

func TestEvaluatorErrorIsRecorded(t *testing.T) {
	journal := &memoryJournal{}
	bus := newTestBus(t, &recordingEvaluator{err: errors.New("rule_1/act_2: target down")}, journal)

	_, _ = bus.Publish(context.Background(), createEvent("po_1"))
	bus.Drain(context.Background())

	require.Len(t, journal.events, 1)
	assert.Equal(t, []string{"automation_engine: rule_1/act_2: target down"}, journal.events[0].ProcessingErrors)
}

func TestJournalFailureDoesNotStopDispatch(t *testing.T) {
	bus := newTestBus(t, nil, &memoryJournal{err: errors.New("db down")})
	count := 0
	bus.Subscribe("create", func(context.Context, domain.IntegrationEvent) error { count++; return nil })

	_, _ = bus.Publish(context.Background(), createEvent("po_1"))
	_, _ = bus.Publish(context.Background(), createEvent("po_2"))

	assert.Equal(t, 2, bus.Drain(context.Background()))
	assert.Equal(t, 2, count)
}

func TestDrainIncludesCascadedEvents(t *testing.T) {
	bus := newTestBus(t, nil, nil)
	var seen []string
	bus.Subscribe("create", func(ctx context.Context, e domain.IntegrationEvent) error {
		seen = append(seen, e.SourceRecordID)
		if e.SourceRecordID == "po_1" {
			_, err := bus.Publish(ctx, createEvent("po_1_child"))
			return err
		}
		return nil
	})

	_, _ = bus.Publish(context.Background(), createEvent("po_1"))
	_, _ = bus.Publish(context.Background(), createEvent("po_2"))
	bus.Drain(context.Background())

	assert.Equal(t, []string{"po_1", "po_2", "po_1_child"}, seen)
}

func TestDrainIsBoundedByMaxBatch(t *testing.T) {
	bus := newTestBus(t, nil, nil)
	bus.cfg.MaxBatch = 2
	for _, id := range []string{"a", "b", "c"} {
		_, _ = bus.Publish(context.Background(), createEvent(id))
	}

	assert.Equal(t, 2, bus.Drain(context.Background()))
	assert.Equal(t, 1, bus.Len())
}

func TestRunDrainsBacklogBeyondMaxBatch(t *testing.T) {
	bus := newTestBus(t, nil, nil)
	bus.cfg.MaxBatch = 2
	bus.cfg.DispatchInterval = time.Hour

	var mu sync.Mutex
	var seen []string
	bus.Subscribe("create", func(_ context.Context, e domain.IntegrationEvent) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.SourceRecordID)
		return nil
	})

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		_, err := bus.Publish(context.Background(), createEvent(id))
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		bus.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 5
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, bus.Len())

	cancel()
	<-done
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, seen)
}

func TestRecentKeepsNewestFirst(t *testing.T) {
	bus := newTestBus(t, nil, nil)
	for _, id := range []string{"a", "b", "c", "d"} {
		_, _ = bus.Publish(context.Background(), createEvent(id))
	}
	bus.Drain(context.Background())

	recent := bus.Recent(10)
	require.Len(t, recent, 3)
	assert.Equal(t, "d", recent[0].SourceRecordID)
	assert.Equal(t, "b", recent[2].SourceRecordID)
	assert.Len(t, bus.Recent(1), 1)
}

func TestStartStopDrainsAndClosesBus(t *testing.T) {
	bus := newTestBus(t, nil, nil)
	bus.cfg.DispatchInterval = 10 * time.Millisecond

	var mu sync.Mutex
	var seen []string
	bus.Subscribe("create", func(_ context.Context, e domain.IntegrationEvent) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.SourceRecordID)
		return nil
	})

	require.NoError(t, bus.Start(context.Background()))
	require.NoError(t, bus.Start(context.Background()))
	_, err := bus.Publish(context.Background(), createEvent("po_1"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Stop(ctx))

	_, err = bus.Publish(context.Background(), createEvent("po_2"))
	assert.ErrorIs(t, err, ErrBusClosed)
	assert.ErrorIs(t, bus.Start(context.Background()), ErrBusClosed)
}
