package eventbus

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procurelink/internal/clock"
	"github.com/smallbiznis/procurelink/internal/integrationevent/domain"
	obscontext "github.com/smallbiznis/procurelink/internal/observability/context"
	obslogger "github.com/smallbiznis/procurelink/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/procurelink/internal/observability/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrBusClosed     = errors.New("event_bus_closed")
	ErrInvalidConfig = errors.New("invalid_event_bus_config")
)

// AutomationConsumerName is recorded on every event handed to the evaluator.
const AutomationConsumerName = "automation_engine"

// Evaluator receives every dispatched event after the subscribers ran.
type Evaluator interface {
	EvaluateEvent(ctx context.Context, event domain.IntegrationEvent) error
}

// Journal records dispatched events with their final audit trail.
type Journal interface {
	Record(ctx context.Context, event domain.IntegrationEvent) error
}

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     Config                         `optional:"true"`
	Evaluator  Evaluator                      `optional:"true"`
	Journal    Journal                        `optional:"true"`
	Metrics    *obsmetrics.Metrics            `optional:"true"`
	Collectors *obsmetrics.IntegrationMetrics `optional:"true"`
}

// Bus is an in-process, best-effort event bus. Publish never blocks on
// dispatch; a single dispatcher drains the queue in FIFO order.
type Bus struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	queue      *eventQueue
	evaluator  Evaluator
	journal    Journal
	metrics    *obsmetrics.Metrics
	collectors *obsmetrics.IntegrationMetrics
	tracer     trace.Tracer

	subMu     sync.RWMutex
	subs      []*subscriber
	nextSubID uint64

	// Held for the whole of a drain; handlers must not call Drain.
	dispatchMu sync.Mutex

	recentMu sync.Mutex
	recent   []domain.IntegrationEvent

	runMu   sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

func New(p Params) (*Bus, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	return &Bus{
		log:        p.Log.Named("eventbus").With(zap.String("component", cfg.Name)),
		cfg:        cfg,
		genID:      p.GenID,
		clock:      p.Clock,
		queue:      newEventQueue(),
		evaluator:  p.Evaluator,
		journal:    p.Journal,
		metrics:    p.Metrics,
		collectors: p.Collectors,
		tracer:     otel.Tracer("procurelink/eventbus"),
	}, nil
}

// SetEvaluator wires the rule engine after construction.
func (b *Bus) SetEvaluator(evaluator Evaluator) {
	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()
	b.evaluator = evaluator
}

// Subscribe registers handler for eventType, or every type with "*".
// Duplicate registrations are each honored.
func (b *Bus) Subscribe(eventType string, handler Handler, opts ...SubscribeOption) Subscription {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	b.nextSubID++
	sub := &subscriber{
		id:        b.nextSubID,
		eventType: eventType,
		name:      defaultSubscriberName(b.nextSubID),
		handler:   handler,
	}
	for _, opt := range opts {
		opt(sub)
	}
	// Copy on write: dispatch iterates a snapshot.
	next := make([]*subscriber, 0, len(b.subs)+1)
	next = append(next, b.subs...)
	b.subs = append(next, sub)
	return Subscription{id: sub.id}
}

// Unsubscribe removes the handler. Events already dequeued keep their snapshot.
func (b *Bus) Unsubscribe(s Subscription) {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	idx := slices.IndexFunc(b.subs, func(sub *subscriber) bool { return sub.id == s.id })
	if idx < 0 {
		return
	}
	b.subs = slices.Delete(slices.Clone(b.subs), idx, idx+1)
}

// Publish assigns an id and timestamp, appends the event and returns.
func (b *Bus) Publish(ctx context.Context, event domain.IntegrationEvent) (domain.IntegrationEvent, error) {
	if err := event.Validate(); err != nil {
		return domain.IntegrationEvent{}, err
	}

	event = event.Clone()
	queued, ok := b.queue.enqueue(event, func(e *domain.IntegrationEvent) {
		e.ID = b.genID.Generate()
		if e.Timestamp.IsZero() {
			e.Timestamp = b.clock.Now()
		}
		e.ProcessedBy = nil
		e.ProcessingErrors = nil
	})
	if !ok {
		return domain.IntegrationEvent{}, ErrBusClosed
	}

	b.metrics.RecordEventPublished(ctx, string(queued.EventType), queued.SourceModule)
	b.collectors.SetQueueDepth(b.queue.len())
	b.logger(ctx).Debug("event published",
		zap.String("event_id", queued.ID.String()),
		zap.String("event_type", string(queued.EventType)),
		zap.String("source_module", queued.SourceModule),
	)
	return queued.Clone(), nil
}

func (b *Bus) Len() int {
	return b.queue.len()
}

// Drain dispatches queued events until the queue is empty or MaxBatch events
// were handled. Events published by handlers during the drain are included.
func (b *Bus) Drain(ctx context.Context) int {
	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()

	processed := 0
	for processed < b.cfg.MaxBatch {
		if ctx.Err() != nil {
			break
		}
		event, ok := b.queue.tryDequeue()
		if !ok {
			break
		}
		b.dispatch(ctx, event)
		processed++
	}
	b.collectors.SetQueueDepth(b.queue.len())
	return processed
}

func (b *Bus) dispatch(ctx context.Context, event domain.IntegrationEvent) {
	start := time.Now()
	ctx = obscontext.WithActor(ctx, "system", b.cfg.Name)
	ctx, span := b.tracer.Start(ctx, "eventbus.dispatch "+string(event.EventType),
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("event.id", event.ID.String()),
			attribute.String("event.type", string(event.EventType)),
			attribute.String("event.source_module", event.SourceModule),
		),
	)
	defer span.End()

	log := b.logger(ctx).With(
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", string(event.EventType)),
		zap.String("source_module", event.SourceModule),
	)

	event.ProcessedBy = append(event.ProcessedBy, b.cfg.Name)

	b.subMu.RLock()
	subs := b.subs
	b.subMu.RUnlock()

	for _, sub := range subs {
		if !sub.matches(event.EventType) {
			continue
		}
		if err := b.invoke(ctx, sub, event); err != nil {
			event.ProcessingErrors = append(event.ProcessingErrors, fmt.Sprintf("%s: %v", sub.name, err))
			b.collectors.IncSubscriberError(sub.name)
			log.Warn("subscriber failed", zap.String("subscriber", sub.name), zap.Error(err))
			continue
		}
		event.ProcessedBy = append(event.ProcessedBy, sub.name)
	}

	if evaluator := b.evaluator; evaluator != nil {
		event.ProcessedBy = append(event.ProcessedBy, AutomationConsumerName)
		if err := b.evaluate(ctx, evaluator, event); err != nil {
			event.ProcessingErrors = append(event.ProcessingErrors, fmt.Sprintf("%s: %v", AutomationConsumerName, err))
			log.Warn("automation reported failures", zap.Error(err))
		}
	}

	if len(event.ProcessingErrors) > 0 {
		span.SetStatus(codes.Error, "processing errors")
	}

	if b.journal != nil {
		if err := b.journal.Record(ctx, event); err != nil {
			b.collectors.IncJournalError()
			log.Error("journal record failed", zap.Error(err))
		}
	}

	b.remember(event)
	b.collectors.IncDispatched(string(event.EventType))
	b.collectors.ObserveDispatch(time.Since(start))
}

func (b *Bus) invoke(ctx context.Context, sub *subscriber, event domain.IntegrationEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return sub.handler(ctx, event.Clone())
}

func (b *Bus) evaluate(ctx context.Context, evaluator Evaluator, event domain.IntegrationEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return evaluator.EvaluateEvent(ctx, event.Clone())
}

func (b *Bus) remember(event domain.IntegrationEvent) {
	b.recentMu.Lock()
	defer b.recentMu.Unlock()

	b.recent = append(b.recent, event)
	if overflow := len(b.recent) - b.cfg.RecentSize; overflow > 0 {
		b.recent = slices.Delete(b.recent, 0, overflow)
	}
}

// Recent returns up to limit dispatched events, newest first.
func (b *Bus) Recent(limit int) []domain.IntegrationEvent {
	b.recentMu.Lock()
	defer b.recentMu.Unlock()

	if limit <= 0 || limit > len(b.recent) {
		limit = len(b.recent)
	}
	out := make([]domain.IntegrationEvent, 0, limit)
	for i := len(b.recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, b.recent[i].Clone())
	}
	return out
}

// Run drains on every tick and whenever a publish signals the queue. A drain
// cut short by MaxBatch is followed by another without waiting, since the
// publish signals for that backlog were already consumed.
func (b *Bus) Run(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.DispatchInterval)
	defer ticker.Stop()

	for {
		if n := b.Drain(ctx); n >= b.cfg.MaxBatch && b.queue.len() > 0 {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-b.queue.wait():
		}
	}
}

// Start launches the dispatch loop. Calling Start twice is a no-op.
func (b *Bus) Start(ctx context.Context) error {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	if b.cancel != nil {
		return nil
	}
	if b.queue.isClosed() {
		return ErrBusClosed
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel
	b.stopped = make(chan struct{})
	go func() {
		defer close(b.stopped)
		b.Run(runCtx)
	}()

	b.log.Info("event dispatcher started", zap.Duration("interval", b.cfg.DispatchInterval))
	return nil
}

// Stop rejects new publishes, stops the loop and drains what is left.
func (b *Bus) Stop(ctx context.Context) error {
	b.queue.close()

	b.runMu.Lock()
	cancel, stopped := b.cancel, b.stopped
	b.cancel = nil
	b.runMu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-stopped:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for b.queue.len() > 0 && ctx.Err() == nil {
		b.Drain(ctx)
	}
	if remaining := b.queue.len(); remaining > 0 {
		b.log.Warn("event dispatcher stopped with undispatched events", zap.Int("remaining", remaining))
	}
	b.log.Info("event dispatcher stopped")
	return nil
}

func (b *Bus) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, b.log)
}
