package domain

// Record is implemented by every module record so generic stores can index,
// filter and mutate them without reflection.
type Record[T any] interface {
	RecordID() string
	RecordNumber() string
	RecordVendorID() string
	RecordStatus() string
	WithID(id string) T
	WithStatus(status string) T
}

func (v Vendor) RecordID() string           { return v.ID }
func (v Vendor) RecordNumber() string       { return v.Name }
func (v Vendor) RecordVendorID() string     { return v.ID }
func (v Vendor) RecordStatus() string       { return v.Status }
func (v Vendor) WithID(id string) Vendor    { v.ID = id; return v }
func (v Vendor) WithStatus(s string) Vendor { v.Status = s; return v }

func (p PurchaseOrder) RecordID() string                  { return p.ID }
func (p PurchaseOrder) RecordNumber() string              { return p.Number }
func (p PurchaseOrder) RecordVendorID() string            { return p.VendorID }
func (p PurchaseOrder) RecordStatus() string              { return p.Status }
func (p PurchaseOrder) WithID(id string) PurchaseOrder    { p.ID = id; return p }
func (p PurchaseOrder) WithStatus(s string) PurchaseOrder { p.Status = s; return p }

func (g GoodsReceiptNote) RecordID() string                     { return g.ID }
func (g GoodsReceiptNote) RecordNumber() string                 { return g.Number }
func (g GoodsReceiptNote) RecordVendorID() string               { return g.VendorID }
func (g GoodsReceiptNote) RecordStatus() string                 { return g.Status }
func (g GoodsReceiptNote) WithID(id string) GoodsReceiptNote    { g.ID = id; return g }
func (g GoodsReceiptNote) WithStatus(s string) GoodsReceiptNote { g.Status = s; return g }

func (b Bill) RecordID() string         { return b.ID }
func (b Bill) RecordNumber() string     { return b.Number }
func (b Bill) RecordVendorID() string   { return b.VendorID }
func (b Bill) RecordStatus() string     { return b.Status }
func (b Bill) WithID(id string) Bill    { b.ID = id; return b }
func (b Bill) WithStatus(s string) Bill { b.Status = s; return b }

func (p Payment) RecordID() string            { return p.ID }
func (p Payment) RecordNumber() string        { return p.Number }
func (p Payment) RecordVendorID() string      { return p.VendorID }
func (p Payment) RecordStatus() string        { return p.Status }
func (p Payment) WithID(id string) Payment    { p.ID = id; return p }
func (p Payment) WithStatus(s string) Payment { p.Status = s; return p }

func (r TDSRecord) RecordID() string              { return r.ID }
func (r TDSRecord) RecordNumber() string          { return r.Section + "/" + r.PaymentID }
func (r TDSRecord) RecordVendorID() string        { return r.VendorID }
func (r TDSRecord) RecordStatus() string          { return r.Status }
func (r TDSRecord) WithID(id string) TDSRecord    { r.ID = id; return r }
func (r TDSRecord) WithStatus(s string) TDSRecord { r.Status = s; return r }

func (r ITCRecord) RecordID() string              { return r.ID }
func (r ITCRecord) RecordNumber() string          { return r.Period + "/" + r.BillID }
func (r ITCRecord) RecordVendorID() string        { return r.VendorID }
func (r ITCRecord) RecordStatus() string          { return r.Status }
func (r ITCRecord) WithID(id string) ITCRecord    { r.ID = id; return r }
func (r ITCRecord) WithStatus(s string) ITCRecord { r.Status = s; return r }

func (l LandedCost) RecordID() string               { return l.ID }
func (l LandedCost) RecordNumber() string           { return l.Description }
func (l LandedCost) RecordVendorID() string         { return l.VendorID }
func (l LandedCost) RecordStatus() string           { return l.Status }
func (l LandedCost) WithID(id string) LandedCost    { l.ID = id; return l }
func (l LandedCost) WithStatus(s string) LandedCost { l.Status = s; return l }
