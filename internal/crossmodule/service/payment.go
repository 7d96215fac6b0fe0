package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	crossdomain "github.com/smallbiznis/procurelink/internal/crossmodule/domain"
	eventdomain "github.com/smallbiznis/procurelink/internal/integrationevent/domain"
	modulesdomain "github.com/smallbiznis/procurelink/internal/modules/domain"
	workflowdomain "github.com/smallbiznis/procurelink/internal/workflow/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ProcessPayment spreads payment.Amount over the bills in the given order,
// each bill taking at most its outstanding balance. TDS is withheld from
// each allocation at the payment's section, or the vendor's default
// section when the payment names none. A bill that fails at any stage is
// reported and the batch moves on; one create event covers the payment.
func (s *Service) ProcessPayment(ctx context.Context, payment modulesdomain.Payment, billIDs []string) (result *crossdomain.PaymentResult, err error) {
	ctx, finish := s.begin(ctx, "process_payment", attribute.String("payment_id", payment.ID), attribute.Int("bills", len(billIDs)))
	defer func() { finish(err) }()

	billIDs = uniqueIDs(billIDs)
	if len(billIDs) == 0 {
		return nil, crossdomain.ErrNoBills
	}
	if payment.Amount <= 0 {
		return nil, crossdomain.ErrInvalidAmount
	}
	if payment.Status == "" {
		payment.Status = modulesdomain.PaymentStatusPending
	}
	if payment.PaymentDate.IsZero() {
		payment.PaymentDate = s.clock.Now()
	}
	payment, err = ensureRecord(ctx, s.modules.Payments, payment)
	if err != nil {
		return nil, err
	}

	result = &crossdomain.PaymentResult{
		Payment:     payment,
		Allocations: []crossdomain.BillAllocation{},
		Failures:    []crossdomain.BillFailure{},
	}
	remaining := payment.Amount
	vendorSections := map[string]string{}
	var vendors []string

	for _, billID := range billIDs {
		allocation, failure := s.applyToBill(ctx, payment, billID, remaining, vendorSections)
		if failure != nil {
			result.Failures = append(result.Failures, *failure)
			s.logger(ctx).Warn("payment not applied to bill",
				zap.String("payment_id", payment.ID),
				zap.String("bill_id", billID),
				zap.String("stage", failure.Stage),
				zap.Error(failure.Err),
			)
		}
		if allocation == nil {
			continue
		}
		remaining -= allocation.Allocated
		result.TotalPaid += allocation.Paid
		result.TotalTDS += allocation.TDS
		result.Allocations = append(result.Allocations, *allocation)
		if !slices.Contains(vendors, allocation.VendorID) {
			vendors = append(vendors, allocation.VendorID)
		}
	}
	result.Unapplied = remaining

	for _, vendorID := range vendors {
		if _, err := s.modules.Aging.Refresh(ctx, vendorID); err != nil {
			for _, a := range result.Allocations {
				if a.VendorID == vendorID {
					result.Failures = append(result.Failures, crossdomain.NewBillFailure(a.BillID, crossdomain.StageAging, err))
				}
			}
		}
	}

	status := paymentStatus(len(result.Allocations), len(billIDs))
	if err := s.modules.Payments.UpdateStatus(ctx, payment.ID, status); err != nil {
		s.logger(ctx).Warn("payment status update failed", zap.String("payment_id", payment.ID), zap.Error(err))
	} else {
		result.Payment.Status = status
	}

	if len(result.Allocations) == 0 {
		return result, fmt.Errorf("%w: %w", crossdomain.ErrNothingApplied, result.Err())
	}

	applied := make([]string, 0, len(result.Allocations))
	for _, a := range result.Allocations {
		applied = append(applied, a.BillID)
	}
	event, err := s.publish(ctx, eventdomain.IntegrationEvent{
		EventType:        eventdomain.EventTypeCreate,
		SourceModule:     modulesdomain.ModulePayments,
		SourceRecordID:   payment.ID,
		SourceRecordType: string(workflowdomain.ReferenceTypePayment),
		EventData: map[string]any{
			"paymentId":   payment.ID,
			"number":      payment.Number,
			"vendorId":    payment.VendorID,
			"amount":      payment.Amount,
			"status":      status,
			"billIds":     applied,
			"billCount":   len(applied),
			"failedCount": len(result.Failures),
			"totalPaid":   result.TotalPaid,
			"totalTds":    result.TotalTDS,
			"unapplied":   result.Unapplied,
		},
	})
	if err != nil {
		return result, err
	}
	result.Event = &event

	s.logger(ctx).Info("payment processed",
		zap.String("payment_id", payment.ID),
		zap.Int("applied", len(result.Allocations)),
		zap.Int("failed", len(result.Failures)),
		zap.Int64("total_tds", result.TotalTDS),
	)
	return result, nil
}

// applyToBill returns a nil allocation when nothing was applied. A failure
// after the payment was applied comes back with the allocation.
func (s *Service) applyToBill(ctx context.Context, payment modulesdomain.Payment, billID string, remaining int64, sections map[string]string) (*crossdomain.BillAllocation, *crossdomain.BillFailure) {
	fail := func(stage string, err error) *crossdomain.BillFailure {
		f := crossdomain.NewBillFailure(billID, stage, err)
		return &f
	}

	bill, err := s.modules.Bills.GetByID(ctx, billID)
	if err != nil {
		return nil, fail(crossdomain.StageLoad, err)
	}
	if payment.VendorID != "" && bill.VendorID != payment.VendorID {
		return nil, fail(crossdomain.StageLoad, fmt.Errorf("%w: bill vendor %s", crossdomain.ErrVendorMismatch, bill.VendorID))
	}
	outstanding := bill.Outstanding()
	if outstanding == 0 {
		return nil, fail(crossdomain.StageApply, crossdomain.ErrBillSettled)
	}
	if remaining <= 0 {
		return nil, fail(crossdomain.StageApply, crossdomain.ErrPaymentExhausted)
	}

	section, err := s.tdsSection(ctx, payment, bill.VendorID, sections)
	if err != nil {
		return nil, fail(crossdomain.StageLoad, err)
	}
	allocated := min(remaining, outstanding)
	tds := crossdomain.ComputeTDS(allocated, section)
	paid := allocated - tds

	updated, err := s.modules.Bills.ApplyPayment(ctx, bill.ID, paid, tds)
	if err != nil {
		return nil, fail(crossdomain.StageApply, err)
	}
	allocation := &crossdomain.BillAllocation{
		BillID:     bill.ID,
		VendorID:   bill.VendorID,
		Allocated:  allocated,
		Paid:       paid,
		TDS:        tds,
		TDSSection: section,
		BillStatus: updated.Status,
	}

	var tdsRecord *modulesdomain.TDSRecord
	if tds > 0 {
		record, err := s.modules.TDS.Create(ctx, map[string]any{
			"vendorId":   bill.VendorID,
			"paymentId":  payment.ID,
			"billId":     bill.ID,
			"section":    section,
			"baseAmount": allocated,
			"tdsAmount":  tds,
			"status":     modulesdomain.TDSStatusDeducted,
			"deductedAt": s.clock.Now(),
		})
		if err != nil {
			return allocation, fail(crossdomain.StageTDS, err)
		}
		allocation.TDSRecordID = record.ID
		tdsRecord = &record
	}

	if err := s.linkPayment(ctx, payment, updated, tdsRecord); err != nil {
		return allocation, fail(crossdomain.StageLink, err)
	}
	return allocation, nil
}

func (s *Service) tdsSection(ctx context.Context, payment modulesdomain.Payment, vendorID string, cache map[string]string) (string, error) {
	if section := strings.TrimSpace(payment.TDSSection); section != "" {
		return section, nil
	}
	if section, ok := cache[vendorID]; ok {
		return section, nil
	}
	vendor, err := s.modules.Vendors.GetByID(ctx, vendorID)
	switch {
	case err == nil:
		cache[vendorID] = vendor.DefaultTDSSection
		return vendor.DefaultTDSSection, nil
	case errors.Is(err, modulesdomain.ErrNotFound):
		cache[vendorID] = ""
		return "", nil
	}
	return "", err
}

func (s *Service) linkPayment(ctx context.Context, payment modulesdomain.Payment, bill modulesdomain.Bill, tds *modulesdomain.TDSRecord) error {
	if _, err := s.workflow.Register(ctx, billReference(bill)); err != nil {
		return err
	}
	if _, err := s.workflow.Register(ctx, paymentReference(payment)); err != nil {
		return err
	}
	paymentKey := workflowdomain.Key{Type: workflowdomain.ReferenceTypePayment, ID: payment.ID}
	billKey := workflowdomain.Key{Type: workflowdomain.ReferenceTypeBill, ID: bill.ID}
	if err := s.workflow.Link(ctx, billKey, paymentKey); err != nil {
		return err
	}
	if tds == nil {
		return nil
	}
	if _, err := s.workflow.Register(ctx, tdsReference(*tds)); err != nil {
		return err
	}
	return s.workflow.Link(ctx, paymentKey, workflowdomain.Key{Type: workflowdomain.ReferenceTypeTDS, ID: tds.ID})
}

func paymentStatus(applied, requested int) string {
	switch {
	case applied == 0:
		return modulesdomain.PaymentStatusFailed
	case applied < requested:
		return modulesdomain.PaymentStatusPartial
	default:
		return modulesdomain.PaymentStatusProcessed
	}
}

func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
