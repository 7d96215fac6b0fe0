package memory

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procurelink/internal/clock"
	modulesdomain "github.com/smallbiznis/procurelink/internal/modules/domain"
)

// Stores exposes the concrete in-memory stores so tests can seed records
// and inject failures.
type Stores struct {
	Vendors        *Store[modulesdomain.Vendor]
	PurchaseOrders *Store[modulesdomain.PurchaseOrder]
	GRNs           *Store[modulesdomain.GoodsReceiptNote]
	Bills          *BillStore
	Payments       *Store[modulesdomain.Payment]
	TDS            *Store[modulesdomain.TDSRecord]
	ITC            *Store[modulesdomain.ITCRecord]
	LandedCosts    *Store[modulesdomain.LandedCost]
	Aging          *Aging
}

func NewStores(genID *snowflake.Node, clk clock.Clock) *Stores {
	bills := NewBillStore(genID)
	return &Stores{
		Vendors:        NewStore[modulesdomain.Vendor](modulesdomain.ModuleVendors, "ven", genID),
		PurchaseOrders: NewStore[modulesdomain.PurchaseOrder](modulesdomain.ModulePurchaseOrders, "po", genID),
		GRNs:           NewStore[modulesdomain.GoodsReceiptNote](modulesdomain.ModuleGoodsReceiptNote, "grn", genID),
		Bills:          bills,
		Payments:       NewStore[modulesdomain.Payment](modulesdomain.ModulePayments, "pay", genID),
		TDS:            NewStore[modulesdomain.TDSRecord](modulesdomain.ModuleTDS, "tds", genID),
		ITC:            NewStore[modulesdomain.ITCRecord](modulesdomain.ModuleITC, "itc", genID),
		LandedCosts:    NewStore[modulesdomain.LandedCost](modulesdomain.ModuleLandedCosts, "lc", genID),
		Aging:          NewAging(bills, clk),
	}
}

// Registry returns the stores behind the collaborator interfaces.
func (s *Stores) Registry() *modulesdomain.Registry {
	return &modulesdomain.Registry{
		Vendors:        s.Vendors,
		PurchaseOrders: s.PurchaseOrders,
		GRNs:           s.GRNs,
		Bills:          s.Bills,
		Payments:       s.Payments,
		TDS:            s.TDS,
		ITC:            s.ITC,
		LandedCosts:    s.LandedCosts,
		Aging:          s.Aging,
	}
}
