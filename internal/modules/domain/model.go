package domain

import (
	"time"
)

// Amounts are minor currency units (paise).

const (
	POStatusDraft              = "draft"
	POStatusPendingApproval    = "pending_approval"
	POStatusApproved           = "approved"
	POStatusRejected           = "rejected"
	POStatusPartiallyDelivered = "partially_delivered"
	POStatusDelivered          = "delivered"
	POStatusCompleted          = "completed"
	POStatusCancelled          = "cancelled"

	GRNStatusDraft    = "draft"
	GRNStatusReceived = "received"
	GRNStatusAccepted = "accepted"
	GRNStatusRejected = "rejected"

	BillStatusDraft         = "draft"
	BillStatusPendingMatch  = "pending_match"
	BillStatusMatched       = "matched"
	BillStatusDisputed      = "disputed"
	BillStatusApproved      = "approved"
	BillStatusPartiallyPaid = "partially_paid"
	BillStatusPaid          = "paid"
	BillStatusCancelled     = "cancelled"

	PaymentStatusPending   = "pending"
	PaymentStatusProcessed = "processed"
	PaymentStatusPartial   = "partially_processed"
	PaymentStatusFailed    = "failed"

	TDSStatusDeducted = "deducted"
	TDSStatusFiled    = "filed"

	ITCStatusEligible = "eligible"
	ITCStatusClaimed  = "claimed"
)

type Vendor struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	GSTIN             string    `json:"gstin"`
	PAN               string    `json:"pan"`
	IsMSME            bool      `json:"isMsme"`
	MSMECategory      string    `json:"msmeCategory,omitempty"`
	DefaultTDSSection string    `json:"defaultTdsSection,omitempty"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
}

type POLine struct {
	ItemCode    string  `json:"itemCode"`
	Description string  `json:"description,omitempty"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   int64   `json:"unitPrice"`
}

type PurchaseOrder struct {
	ID           string    `json:"id"`
	Number       string    `json:"number"`
	VendorID     string    `json:"vendorId"`
	Status       string    `json:"status"`
	Lines        []POLine  `json:"lines"`
	Subtotal     int64     `json:"subtotal"`
	TaxAmount    int64     `json:"taxAmount"`
	FinalAmount  int64     `json:"finalAmount"`
	OrderDate    time.Time `json:"orderDate"`
	ExpectedDate time.Time `json:"expectedDate,omitempty"`
}

type GRNLine struct {
	ItemCode    string  `json:"itemCode"`
	ReceivedQty float64 `json:"receivedQty"`
	AcceptedQty float64 `json:"acceptedQty"`
}

type GoodsReceiptNote struct {
	ID           string    `json:"id"`
	Number       string    `json:"number"`
	VendorID     string    `json:"vendorId"`
	POID         string    `json:"poId"`
	Status       string    `json:"status"`
	Lines        []GRNLine `json:"lines"`
	ReceivedDate time.Time `json:"receivedDate"`
	// Inbound freight billed separately from the PO.
	FreightAmount int64 `json:"freightAmount,omitempty"`
}

type BillLine struct {
	ItemCode  string  `json:"itemCode"`
	Quantity  float64 `json:"quantity"`
	UnitPrice int64   `json:"unitPrice"`
}

type Discrepancy struct {
	ItemCode string  `json:"itemCode"`
	Field    string  `json:"field"`
	Expected float64 `json:"expected"`
	Actual   float64 `json:"actual"`
	Message  string  `json:"message"`
}

type MatchResult struct {
	Matched       bool          `json:"matched"`
	Confidence    int           `json:"confidence"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	MatchedAt     time.Time     `json:"matchedAt"`
}

type Bill struct {
	ID          string       `json:"id"`
	Number      string       `json:"number"`
	VendorID    string       `json:"vendorId"`
	POID        string       `json:"poId,omitempty"`
	GRNID       string       `json:"grnId,omitempty"`
	Status      string       `json:"status"`
	Lines       []BillLine   `json:"lines"`
	Subtotal    int64        `json:"subtotal"`
	CGST        int64        `json:"cgst"`
	SGST        int64        `json:"sgst"`
	IGST        int64        `json:"igst"`
	TotalAmount int64        `json:"totalAmount"`
	PaidAmount  int64        `json:"paidAmount"`
	TDSAmount   int64        `json:"tdsAmount"`
	BillDate    time.Time    `json:"billDate"`
	DueDate     time.Time    `json:"dueDate"`
	Match       *MatchResult `json:"match,omitempty"`
}

func (b Bill) TaxAmount() int64 {
	return b.CGST + b.SGST + b.IGST
}

// Outstanding is what is still owed; TDS withheld counts as settled.
func (b Bill) Outstanding() int64 {
	outstanding := b.TotalAmount - b.PaidAmount - b.TDSAmount
	if outstanding < 0 {
		return 0
	}
	return outstanding
}

type Payment struct {
	ID          string    `json:"id"`
	Number      string    `json:"number"`
	VendorID    string    `json:"vendorId"`
	Status      string    `json:"status"`
	Mode        string    `json:"mode,omitempty"`
	Amount      int64     `json:"amount"`
	TDSSection  string    `json:"tdsSection,omitempty"`
	PaymentDate time.Time `json:"paymentDate"`
}

type TDSRecord struct {
	ID         string    `json:"id"`
	VendorID   string    `json:"vendorId"`
	PaymentID  string    `json:"paymentId"`
	BillID     string    `json:"billId"`
	Section    string    `json:"section"`
	BaseAmount int64     `json:"baseAmount"`
	TDSAmount  int64     `json:"tdsAmount"`
	Status     string    `json:"status"`
	DeductedAt time.Time `json:"deductedAt"`
}

type ITCRecord struct {
	ID        string    `json:"id"`
	VendorID  string    `json:"vendorId"`
	BillID    string    `json:"billId"`
	GSTIN     string    `json:"gstin"`
	Period    string    `json:"period"`
	CGST      int64     `json:"cgst"`
	SGST      int64     `json:"sgst"`
	IGST      int64     `json:"igst"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func (r ITCRecord) Total() int64 {
	return r.CGST + r.SGST + r.IGST
}

type LandedCost struct {
	ID          string    `json:"id"`
	VendorID    string    `json:"vendorId"`
	POID        string    `json:"poId,omitempty"`
	BillID      string    `json:"billId,omitempty"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}
