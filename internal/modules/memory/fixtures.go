package memory

import (
	"time"

	modulesdomain "github.com/smallbiznis/procurelink/internal/modules/domain"
)

// SeedFixtures loads a small procure-to-pay chain used in dev mode:
// one MSME and one regular vendor, a PO awaiting receipt, and two open
// bills with different due dates relative to now.
func (s *Stores) SeedFixtures(now time.Time) {
	now = now.UTC()
	s.Vendors.Seed(
		modulesdomain.Vendor{
			ID:                "ven_acme",
			Name:              "Acme Components",
			GSTIN:             "29ABCDE1234F1Z5",
			PAN:               "ABCDE1234F",
			IsMSME:            true,
			MSMECategory:      "small",
			DefaultTDSSection: "194C",
			Status:            "active",
			CreatedAt:         now.AddDate(0, -6, 0),
		},
		modulesdomain.Vendor{
			ID:                "ven_globex",
			Name:              "Globex Services",
			GSTIN:             "27FGHIJ5678K1Z2",
			PAN:               "FGHIJ5678K",
			DefaultTDSSection: "194J",
			Status:            "active",
			CreatedAt:         now.AddDate(0, -3, 0),
		},
	)

	s.PurchaseOrders.Seed(
		modulesdomain.PurchaseOrder{
			ID:       "po_1001",
			Number:   "PO-1001",
			VendorID: "ven_acme",
			Status:   modulesdomain.POStatusApproved,
			Lines: []modulesdomain.POLine{
				{ItemCode: "BOLT-M8", Description: "M8 bolts", Quantity: 100, UnitPrice: 1200},
				{ItemCode: "NUT-M8", Description: "M8 nuts", Quantity: 100, UnitPrice: 400},
			},
			Subtotal:    160000,
			TaxAmount:   28800,
			FinalAmount: 188800,
			OrderDate:   now.AddDate(0, 0, -20),
		},
		modulesdomain.PurchaseOrder{
			ID:          "po_1002",
			Number:      "PO-1002",
			VendorID:    "ven_globex",
			Status:      modulesdomain.POStatusPendingApproval,
			Subtotal:    500000,
			TaxAmount:   90000,
			FinalAmount: 590000,
			OrderDate:   now.AddDate(0, 0, -5),
		},
	)

	s.GRNs.Seed(modulesdomain.GoodsReceiptNote{
		ID:       "grn_2001",
		Number:   "GRN-2001",
		VendorID: "ven_acme",
		POID:     "po_1001",
		Status:   modulesdomain.GRNStatusReceived,
		Lines: []modulesdomain.GRNLine{
			{ItemCode: "BOLT-M8", ReceivedQty: 100, AcceptedQty: 100},
			{ItemCode: "NUT-M8", ReceivedQty: 100, AcceptedQty: 100},
		},
		ReceivedDate: now.AddDate(0, 0, -10),
	})

	s.Bills.Seed(
		modulesdomain.Bill{
			ID:       "bill_3001",
			Number:   "INV-3001",
			VendorID: "ven_acme",
			POID:     "po_1001",
			GRNID:    "grn_2001",
			Status:   modulesdomain.BillStatusPendingMatch,
			Lines: []modulesdomain.BillLine{
				{ItemCode: "BOLT-M8", Quantity: 100, UnitPrice: 1200},
				{ItemCode: "NUT-M8", Quantity: 100, UnitPrice: 400},
			},
			Subtotal:    160000,
			CGST:        14400,
			SGST:        14400,
			TotalAmount: 188800,
			BillDate:    now.AddDate(0, 0, -40),
			DueDate:     now.AddDate(0, 0, 3),
		},
		modulesdomain.Bill{
			ID:          "bill_3002",
			Number:      "INV-3002",
			VendorID:    "ven_globex",
			Status:      modulesdomain.BillStatusApproved,
			Subtotal:    500000,
			IGST:        90000,
			TotalAmount: 590000,
			BillDate:    now.AddDate(0, 0, -50),
			DueDate:     now.AddDate(0, 0, -5),
		},
	)
}
