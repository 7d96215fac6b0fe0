package domain

import (
	"errors"
	"time"

	eventdomain "github.com/smallbiznis/procurelink/internal/integrationevent/domain"
	modulesdomain "github.com/smallbiznis/procurelink/internal/modules/domain"
	workflowdomain "github.com/smallbiznis/procurelink/internal/workflow/domain"
)

type LinkResult struct {
	GRN           modulesdomain.GoodsReceiptNote    `json:"grn"`
	PurchaseOrder modulesdomain.PurchaseOrder       `json:"purchaseOrder"`
	Reference     *workflowdomain.WorkflowReference `json:"reference"`
	Event         eventdomain.IntegrationEvent      `json:"event"`
}

// MatchOutcome is the result of a three-way match. Skipped is set when the
// bill lacks a PO or GRN; nothing is persisted in that case.
type MatchOutcome struct {
	Bill      modulesdomain.Bill            `json:"bill"`
	Result    modulesdomain.MatchResult     `json:"result"`
	Skipped   bool                          `json:"skipped"`
	ITCRecord *modulesdomain.ITCRecord      `json:"itcRecord,omitempty"`
	Event     *eventdomain.IntegrationEvent `json:"event,omitempty"`
}

// BillAllocation is the share of a payment applied to one bill. Allocated
// is the gross amount settled: Paid in cash plus TDS withheld.
type BillAllocation struct {
	BillID      string `json:"billId"`
	VendorID    string `json:"vendorId"`
	Allocated   int64  `json:"allocated"`
	Paid        int64  `json:"paid"`
	TDS         int64  `json:"tds"`
	TDSSection  string `json:"tdsSection,omitempty"`
	TDSRecordID string `json:"tdsRecordId,omitempty"`
	BillStatus  string `json:"billStatus"`
}

type PaymentResult struct {
	Payment     modulesdomain.Payment         `json:"payment"`
	Allocations []BillAllocation              `json:"allocations"`
	Failures    []BillFailure                 `json:"failures"`
	TotalPaid   int64                         `json:"totalPaid"`
	TotalTDS    int64                         `json:"totalTds"`
	Unapplied   int64                         `json:"unapplied"`
	Event       *eventdomain.IntegrationEvent `json:"event,omitempty"`
}

// Err joins the per-bill failures, or returns nil.
func (r PaymentResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

type SearchParams struct {
	Query    string   `form:"q" json:"query"`
	Modules  []string `form:"module" json:"modules"`
	VendorID string   `form:"vendorId" json:"vendorId"`
	Status   string   `form:"status" json:"status"`
	Limit    int      `form:"limit" json:"limit"`
}

type SearchHit struct {
	Module   string    `json:"module"`
	ID       string    `json:"id"`
	Number   string    `json:"number"`
	VendorID string    `json:"vendorId"`
	Status   string    `json:"status"`
	Amount   int64     `json:"amount"`
	Date     time.Time `json:"date,omitempty"`
}

type SearchResult struct {
	Hits      []SearchHit `json:"hits"`
	Truncated bool        `json:"truncated"`
}

type MSMEBreakdown struct {
	Compliant int `json:"compliant"`
	AtRisk    int `json:"atRisk"`
	Violated  int `json:"violated"`
}

func (b *MSMEBreakdown) Add(status modulesdomain.MSMEStatus) {
	switch status {
	case modulesdomain.MSMEStatusAtRisk:
		b.AtRisk++
	case modulesdomain.MSMEStatusViolated:
		b.Violated++
	default:
		b.Compliant++
	}
}

// AggregatedData is every record of one vendor across modules. Totals are
// recomputed from the lists on each call.
type AggregatedData struct {
	Vendor           modulesdomain.Vendor             `json:"vendor"`
	PurchaseOrders   []modulesdomain.PurchaseOrder    `json:"purchaseOrders"`
	GRNs             []modulesdomain.GoodsReceiptNote `json:"grns"`
	Bills            []modulesdomain.Bill             `json:"bills"`
	Payments         []modulesdomain.Payment          `json:"payments"`
	TDSRecords       []modulesdomain.TDSRecord        `json:"tdsRecords"`
	ITCRecords       []modulesdomain.ITCRecord        `json:"itcRecords"`
	LandedCosts      []modulesdomain.LandedCost       `json:"landedCosts"`
	TotalSpend       int64                            `json:"totalSpend"`
	TotalOutstanding int64                            `json:"totalOutstanding"`
	TotalTDS         int64                            `json:"totalTds"`
	TotalITC         int64                            `json:"totalItc"`
	TotalLandedCost  int64                            `json:"totalLandedCost"`
	MSMECompliance   *MSMEBreakdown                   `json:"msmeCompliance,omitempty"`
	GeneratedAt      time.Time                        `json:"generatedAt"`
}

type DashboardMetrics struct {
	TotalVendors        int           `json:"totalVendors"`
	MSMEVendors         int           `json:"msmeVendors"`
	TotalPurchaseOrders int           `json:"totalPurchaseOrders"`
	PendingApprovalPOs  int           `json:"pendingApprovalPos"`
	OpenPurchaseOrders  int           `json:"openPurchaseOrders"`
	TotalGRNs           int           `json:"totalGrns"`
	TotalBills          int           `json:"totalBills"`
	UnmatchedBills      int           `json:"unmatchedBills"`
	DisputedBills       int           `json:"disputedBills"`
	TotalPayables       int64         `json:"totalPayables"`
	TotalPayments       int           `json:"totalPayments"`
	TotalPaid           int64         `json:"totalPaid"`
	TotalTDSDeducted    int64         `json:"totalTdsDeducted"`
	TotalITCEligible    int64         `json:"totalItcEligible"`
	MSMECompliance      MSMEBreakdown `json:"msmeCompliance"`
	GeneratedAt         time.Time     `json:"generatedAt"`
}
