package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/procurelink/internal/clock"
	"github.com/smallbiznis/procurelink/internal/config"
	crossdomain "github.com/smallbiznis/procurelink/internal/crossmodule/domain"
	eventdomain "github.com/smallbiznis/procurelink/internal/integrationevent/domain"
	modulesdomain "github.com/smallbiznis/procurelink/internal/modules/domain"
	obslogger "github.com/smallbiznis/procurelink/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/procurelink/internal/observability/metrics"
	workflowdomain "github.com/smallbiznis/procurelink/internal/workflow/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultPriceTolerance = 0.01

// Publisher is the event bus as seen by cross-module operations.
type Publisher interface {
	Publish(ctx context.Context, event eventdomain.IntegrationEvent) (eventdomain.IntegrationEvent, error)
}

type Params struct {
	fx.In

	Log       *zap.Logger
	Config    config.Config `optional:"true"`
	Clock     clock.Clock
	Modules   *modulesdomain.Registry
	Workflow  workflowdomain.Service
	Publisher Publisher
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	clock     clock.Clock
	modules   *modulesdomain.Registry
	workflow  workflowdomain.Service
	publisher Publisher
	metrics   *obsmetrics.Metrics
	tracer    trace.Tracer
	tolerance float64
}

func NewService(p Params) crossdomain.Service {
	tolerance := p.Config.Matching.PriceTolerance
	if tolerance <= 0 {
		tolerance = defaultPriceTolerance
	}
	return &Service{
		log:       p.Log.Named("crossmodule.service"),
		clock:     p.Clock,
		modules:   p.Modules,
		workflow:  p.Workflow,
		publisher: p.Publisher,
		metrics:   p.Metrics,
		tracer:    otel.Tracer("procurelink/crossmodule"),
		tolerance: tolerance,
	}
}

func (s *Service) LinkGRNToPO(ctx context.Context, grn modulesdomain.GoodsReceiptNote, poID string) (result *crossdomain.LinkResult, err error) {
	ctx, finish := s.begin(ctx, "link_grn_to_po", attribute.String("po_id", poID), attribute.String("grn_id", grn.ID))
	defer func() { finish(err) }()

	poID = strings.TrimSpace(poID)
	if poID == "" {
		poID = strings.TrimSpace(grn.POID)
	}
	if poID == "" && grn.ID != "" {
		if existing, err := s.modules.GRNs.GetByID(ctx, grn.ID); err == nil {
			poID = existing.POID
		}
	}
	if poID == "" {
		return nil, fmt.Errorf("%w: po id is required", crossdomain.ErrInvalidRequest)
	}

	po, err := s.modules.PurchaseOrders.GetByID(ctx, poID)
	if err != nil {
		return nil, err
	}

	grn.POID = po.ID
	if grn.VendorID == "" {
		grn.VendorID = po.VendorID
	}
	if grn.Status == "" {
		grn.Status = modulesdomain.GRNStatusReceived
	}
	if grn.ReceivedDate.IsZero() {
		grn.ReceivedDate = s.clock.Now()
	}
	if grn.ID != "" {
		existing, err := s.modules.GRNs.GetByID(ctx, grn.ID)
		switch {
		case err == nil && existing.POID != "" && existing.POID != po.ID:
			return nil, fmt.Errorf("%w: grn %s belongs to purchase order %s", crossdomain.ErrInvalidRequest, existing.ID, existing.POID)
		case err != nil && !errors.Is(err, modulesdomain.ErrNotFound):
			return nil, err
		}
	}

	// The PO moves first so a rejected transition leaves no orphan GRN.
	if advancesToPartial(po.Status) {
		if err := s.modules.PurchaseOrders.UpdateStatus(ctx, po.ID, modulesdomain.POStatusPartiallyDelivered); err != nil {
			return nil, err
		}
		po.Status = modulesdomain.POStatusPartiallyDelivered
	}
	stored, err := ensureRecord(ctx, s.modules.GRNs, grn)
	if err != nil {
		return nil, err
	}

	poRef, err := s.workflow.Register(ctx, purchaseOrderReference(po))
	if err != nil {
		return nil, err
	}
	if _, err := s.workflow.Register(ctx, grnReference(stored)); err != nil {
		return nil, err
	}
	grnKey := workflowdomain.Key{Type: workflowdomain.ReferenceTypeGRN, ID: stored.ID}
	if err := s.workflow.Link(ctx, poRef.Key(), grnKey); err != nil {
		return nil, err
	}
	grnRef, err := s.workflow.Get(ctx, grnKey)
	if err != nil {
		return nil, err
	}

	event, err := s.publish(ctx, eventdomain.IntegrationEvent{
		EventType:        eventdomain.EventTypeCreate,
		SourceModule:     modulesdomain.ModuleGoodsReceiptNote,
		SourceRecordID:   stored.ID,
		SourceRecordType: string(workflowdomain.ReferenceTypeGRN),
		EventData: map[string]any{
			"grnId":         stored.ID,
			"number":        stored.Number,
			"poId":          po.ID,
			"poNumber":      po.Number,
			"poStatus":      po.Status,
			"vendorId":      stored.VendorID,
			"receivedQty":   receivedQuantity(stored),
			"freightAmount": stored.FreightAmount,
		},
	})
	if err != nil {
		return nil, err
	}

	s.logger(ctx).Info("grn linked to purchase order",
		zap.String("grn_id", stored.ID),
		zap.String("po_id", po.ID),
		zap.String("event_id", event.ID.String()),
	)
	return &crossdomain.LinkResult{
		GRN:           stored,
		PurchaseOrder: po,
		Reference:     grnRef,
		Event:         event,
	}, nil
}

// advancesToPartial reports whether receiving goods moves the PO forward.
func advancesToPartial(status string) bool {
	switch status {
	case modulesdomain.POStatusPartiallyDelivered,
		modulesdomain.POStatusDelivered,
		modulesdomain.POStatusCompleted,
		modulesdomain.POStatusCancelled,
		modulesdomain.POStatusRejected:
		return false
	}
	return true
}

func receivedQuantity(grn modulesdomain.GoodsReceiptNote) float64 {
	var total float64
	for _, line := range grn.Lines {
		total += line.ReceivedQty
	}
	return total
}

func (s *Service) publish(ctx context.Context, event eventdomain.IntegrationEvent) (eventdomain.IntegrationEvent, error) {
	published, err := s.publisher.Publish(ctx, event)
	if err != nil {
		return eventdomain.IntegrationEvent{}, fmt.Errorf("publish %s event: %w", event.SourceModule, err)
	}
	return published, nil
}

// begin opens the operation span; finish records the outcome.
func (s *Service) begin(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "crossmodule."+operation, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.metrics.RecordOperation(ctx, operation, err)
	}
}

func (s *Service) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

// ensureRecord returns the stored record with the same id, creating it
// when the id is empty or unknown.
func ensureRecord[T modulesdomain.Record[T]](ctx context.Context, store modulesdomain.Store[T], record T) (T, error) {
	var zero T
	if id := record.RecordID(); id != "" {
		existing, err := store.GetByID(ctx, id)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, modulesdomain.ErrNotFound) {
			return zero, err
		}
	}
	fields, err := recordFields(record)
	if err != nil {
		return zero, err
	}
	return store.Create(ctx, fields)
}

// recordFields flattens a record to the field map module stores accept.
func recordFields(record any) (map[string]any, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func purchaseOrderReference(po modulesdomain.PurchaseOrder) workflowdomain.WorkflowReference {
	return workflowdomain.WorkflowReference{
		ID:     po.ID,
		Type:   workflowdomain.ReferenceTypePurchaseOrder,
		Number: po.Number,
		Status: po.Status,
		Date:   po.OrderDate,
		Amount: po.FinalAmount,
	}
}

func grnReference(grn modulesdomain.GoodsReceiptNote) workflowdomain.WorkflowReference {
	return workflowdomain.WorkflowReference{
		ID:     grn.ID,
		Type:   workflowdomain.ReferenceTypeGRN,
		Number: grn.Number,
		Status: grn.Status,
		Date:   grn.ReceivedDate,
	}
}

func billReference(bill modulesdomain.Bill) workflowdomain.WorkflowReference {
	return workflowdomain.WorkflowReference{
		ID:     bill.ID,
		Type:   workflowdomain.ReferenceTypeBill,
		Number: bill.Number,
		Status: bill.Status,
		Date:   bill.BillDate,
		Amount: bill.TotalAmount,
	}
}

func paymentReference(p modulesdomain.Payment) workflowdomain.WorkflowReference {
	return workflowdomain.WorkflowReference{
		ID:     p.ID,
		Type:   workflowdomain.ReferenceTypePayment,
		Number: p.Number,
		Status: p.Status,
		Date:   p.PaymentDate,
		Amount: p.Amount,
	}
}

func itcReference(r modulesdomain.ITCRecord) workflowdomain.WorkflowReference {
	return workflowdomain.WorkflowReference{
		ID:     r.ID,
		Type:   workflowdomain.ReferenceTypeITC,
		Number: r.Period,
		Status: r.Status,
		Date:   r.CreatedAt,
		Amount: r.Total(),
	}
}

func tdsReference(r modulesdomain.TDSRecord) workflowdomain.WorkflowReference {
	return workflowdomain.WorkflowReference{
		ID:     r.ID,
		Type:   workflowdomain.ReferenceTypeTDS,
		Number: r.Section,
		Status: r.Status,
		Date:   r.DeductedAt,
		Amount: r.TDSAmount,
	}
}
