package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	crossdomain "github.com/smallbiznis/procurelink/internal/crossmodule/domain"
	eventdomain "github.com/smallbiznis/procurelink/internal/integrationevent/domain"
	modulesdomain "github.com/smallbiznis/procurelink/internal/modules/domain"
	workflowdomain "github.com/smallbiznis/procurelink/internal/workflow/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ProcessThreeWayMatching reconciles a bill with its PO and GRN. The PO
// and GRN ids default to the ones recorded on the bill; when either is
// still missing the match is skipped and nothing is written.
func (s *Service) ProcessThreeWayMatching(ctx context.Context, billID, poID, grnID string) (outcome *crossdomain.MatchOutcome, err error) {
	ctx, finish := s.begin(ctx, "three_way_matching", attribute.String("bill_id", billID))
	defer func() { finish(err) }()

	bill, err := s.modules.Bills.GetByID(ctx, strings.TrimSpace(billID))
	if err != nil {
		return nil, err
	}
	poID = firstNonEmpty(poID, bill.POID)
	grnID = firstNonEmpty(grnID, bill.GRNID)
	if poID == "" || grnID == "" {
		s.logger(ctx).Info("three-way match skipped",
			zap.String("bill_id", bill.ID),
			zap.Bool("has_po", poID != ""),
			zap.Bool("has_grn", grnID != ""),
		)
		return &crossdomain.MatchOutcome{
			Bill:    bill,
			Result:  modulesdomain.MatchResult{Matched: false, Confidence: 0, Discrepancies: []modulesdomain.Discrepancy{}},
			Skipped: true,
		}, nil
	}

	po, err := s.modules.PurchaseOrders.GetByID(ctx, poID)
	if err != nil {
		return nil, err
	}
	grn, err := s.modules.GRNs.GetByID(ctx, grnID)
	if err != nil {
		return nil, err
	}

	result := matchDocuments(bill, po, grn, s.tolerance)
	result.MatchedAt = s.clock.Now()
	if err := s.modules.Bills.UpdateMatch(ctx, bill.ID, result); err != nil {
		return nil, err
	}
	if refreshed, err := s.modules.Bills.GetByID(ctx, bill.ID); err == nil {
		bill = refreshed
	} else {
		s.logger(ctx).Warn("reload bill after match failed", zap.String("bill_id", bill.ID), zap.Error(err))
	}

	var itc *modulesdomain.ITCRecord
	if bill.TaxAmount() != 0 {
		itc, err = s.ensureITC(ctx, bill)
		if err != nil {
			return nil, err
		}
	}

	if err := s.linkBill(ctx, bill, po, grn, itc); err != nil {
		return nil, err
	}

	data := map[string]any{
		"billId":           bill.ID,
		"number":           bill.Number,
		"vendorId":         bill.VendorID,
		"poId":             po.ID,
		"grnId":            grn.ID,
		"matched":          result.Matched,
		"confidence":       result.Confidence,
		"discrepancyCount": len(result.Discrepancies),
		"taxAmount":        bill.TaxAmount(),
		"totalAmount":      bill.TotalAmount,
	}
	if itc != nil {
		data["itcRecordId"] = itc.ID
	}
	event, err := s.publish(ctx, eventdomain.IntegrationEvent{
		EventType:        eventdomain.EventTypeUpdate,
		SourceModule:     modulesdomain.ModuleBills,
		SourceRecordID:   bill.ID,
		SourceRecordType: string(workflowdomain.ReferenceTypeBill),
		EventData:        data,
	})
	if err != nil {
		return nil, err
	}

	s.logger(ctx).Info("three-way match recorded",
		zap.String("bill_id", bill.ID),
		zap.Bool("matched", result.Matched),
		zap.Int("confidence", result.Confidence),
		zap.Int("discrepancies", len(result.Discrepancies)),
	)
	return &crossdomain.MatchOutcome{
		Bill:      bill,
		Result:    result,
		ITCRecord: itc,
		Event:     &event,
	}, nil
}

// matchDocuments compares each bill line with the PO price and the GRN
// accepted quantity. Confidence is the share of checks that passed.
func matchDocuments(bill modulesdomain.Bill, po modulesdomain.PurchaseOrder, grn modulesdomain.GoodsReceiptNote, tolerance float64) modulesdomain.MatchResult {
	discrepancies := []modulesdomain.Discrepancy{}
	checks, passed := 0, 0
	check := func(ok bool, d modulesdomain.Discrepancy) {
		checks++
		if ok {
			passed++
			return
		}
		discrepancies = append(discrepancies, d)
	}

	check(grn.POID == po.ID, modulesdomain.Discrepancy{
		Field:   "grn_po",
		Message: fmt.Sprintf("grn %s was received against %s, not %s", grn.ID, grn.POID, po.ID),
	})
	check(bill.VendorID == "" || bill.VendorID == po.VendorID, modulesdomain.Discrepancy{
		Field:   "vendor",
		Message: fmt.Sprintf("bill vendor %s differs from purchase order vendor %s", bill.VendorID, po.VendorID),
	})

	poLines := make(map[string]modulesdomain.POLine, len(po.Lines))
	for _, line := range po.Lines {
		poLines[line.ItemCode] = line
	}
	accepted := make(map[string]float64, len(grn.Lines))
	for _, line := range grn.Lines {
		qty := line.AcceptedQty
		if qty == 0 {
			qty = line.ReceivedQty
		}
		accepted[line.ItemCode] += qty
	}

	if len(bill.Lines) == 0 {
		check(withinTolerance(float64(bill.Subtotal), float64(po.Subtotal), tolerance), modulesdomain.Discrepancy{
			Field:    "subtotal",
			Expected: float64(po.Subtotal),
			Actual:   float64(bill.Subtotal),
			Message:  "bill subtotal differs from purchase order",
		})
	}
	for _, line := range bill.Lines {
		poLine, ok := poLines[line.ItemCode]
		if !ok {
			check(false, modulesdomain.Discrepancy{
				ItemCode: line.ItemCode,
				Field:    "item",
				Actual:   line.Quantity,
				Message:  "item is not on the purchase order",
			})
			continue
		}
		received := accepted[line.ItemCode]
		check(line.Quantity <= received, modulesdomain.Discrepancy{
			ItemCode: line.ItemCode,
			Field:    "quantity",
			Expected: received,
			Actual:   line.Quantity,
			Message:  "billed quantity exceeds accepted quantity",
		})
		check(withinTolerance(float64(line.UnitPrice), float64(poLine.UnitPrice), tolerance), modulesdomain.Discrepancy{
			ItemCode: line.ItemCode,
			Field:    "unit_price",
			Expected: float64(poLine.UnitPrice),
			Actual:   float64(line.UnitPrice),
			Message:  "billed unit price differs from purchase order",
		})
	}

	confidence := 0
	if checks > 0 {
		confidence = int(math.Round(float64(passed) * 100 / float64(checks)))
	}
	return modulesdomain.MatchResult{
		Matched:       len(discrepancies) == 0,
		Confidence:    confidence,
		Discrepancies: discrepancies,
	}
}

func withinTolerance(actual, expected, tolerance float64) bool {
	return math.Abs(actual-expected) <= math.Abs(expected)*tolerance
}

// ensureITC creates the bill's ITC record once; a rerun of the match
// returns the existing record.
func (s *Service) ensureITC(ctx context.Context, bill modulesdomain.Bill) (*modulesdomain.ITCRecord, error) {
	existing, err := s.modules.ITC.ListByVendor(ctx, bill.VendorID)
	if err != nil {
		return nil, err
	}
	for _, record := range existing {
		if record.BillID == bill.ID {
			r := record
			return &r, nil
		}
	}

	gstin := ""
	vendor, err := s.modules.Vendors.GetByID(ctx, bill.VendorID)
	switch {
	case err == nil:
		gstin = vendor.GSTIN
	case errors.Is(err, modulesdomain.ErrNotFound):
		s.logger(ctx).Warn("itc vendor not found", zap.String("bill_id", bill.ID), zap.String("vendor_id", bill.VendorID))
	default:
		return nil, err
	}

	billDate := bill.BillDate
	if billDate.IsZero() {
		billDate = s.clock.Now()
	}
	record, err := s.modules.ITC.Create(ctx, map[string]any{
		"vendorId":  bill.VendorID,
		"billId":    bill.ID,
		"gstin":     gstin,
		"period":    billDate.UTC().Format("2006-01"),
		"cgst":      bill.CGST,
		"sgst":      bill.SGST,
		"igst":      bill.IGST,
		"status":    modulesdomain.ITCStatusEligible,
		"createdAt": s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Service) linkBill(ctx context.Context, bill modulesdomain.Bill, po modulesdomain.PurchaseOrder, grn modulesdomain.GoodsReceiptNote, itc *modulesdomain.ITCRecord) error {
	refs := []workflowdomain.WorkflowReference{
		purchaseOrderReference(po),
		grnReference(grn),
		billReference(bill),
	}
	if itc != nil {
		refs = append(refs, itcReference(*itc))
	}
	for _, ref := range refs {
		if _, err := s.workflow.Register(ctx, ref); err != nil {
			return err
		}
	}

	billKey := workflowdomain.Key{Type: workflowdomain.ReferenceTypeBill, ID: bill.ID}
	grnKey := workflowdomain.Key{Type: workflowdomain.ReferenceTypeGRN, ID: grn.ID}
	var links [][2]workflowdomain.Key
	if grn.POID == po.ID {
		links = append(links, [2]workflowdomain.Key{{Type: workflowdomain.ReferenceTypePurchaseOrder, ID: po.ID}, grnKey})
	}
	links = append(links, [2]workflowdomain.Key{grnKey, billKey})
	if itc != nil {
		links = append(links, [2]workflowdomain.Key{billKey, {Type: workflowdomain.ReferenceTypeITC, ID: itc.ID}})
	}
	for _, link := range links {
		if err := s.workflow.Link(ctx, link[0], link[1]); err != nil {
			return err
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
