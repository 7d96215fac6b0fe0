package domain

import "fmt"

// Registry groups the collaborators of every module.
type Registry struct {
	Vendors        Store[Vendor]
	PurchaseOrders Store[PurchaseOrder]
	GRNs           Store[GoodsReceiptNote]
	Bills          BillStore
	Payments       Store[Payment]
	TDS            Store[TDSRecord]
	ITC            Store[ITCRecord]
	LandedCosts    Store[LandedCost]
	Aging          PayablesAging
}

// StatusMutator resolves the store behind a module name or alias.
func (r *Registry) StatusMutator(module string) (StatusMutator, error) {
	name, ok := NormalizeModule(module)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, module)
	}
	switch name {
	case ModuleVendors:
		return r.Vendors, nil
	case ModulePurchaseOrders:
		return r.PurchaseOrders, nil
	case ModuleGoodsReceiptNote:
		return r.GRNs, nil
	case ModuleBills:
		return r.Bills, nil
	case ModulePayments:
		return r.Payments, nil
	case ModuleTDS:
		return r.TDS, nil
	case ModuleITC:
		return r.ITC, nil
	case ModuleLandedCosts:
		return r.LandedCosts, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownModule, module)
}

func (r *Registry) RecordCreator(module string) (RecordCreator, error) {
	name, ok := NormalizeModule(module)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, module)
	}
	switch name {
	case ModuleVendors:
		return CreatorOf(r.Vendors), nil
	case ModulePurchaseOrders:
		return CreatorOf(r.PurchaseOrders), nil
	case ModuleGoodsReceiptNote:
		return CreatorOf(r.GRNs), nil
	case ModuleBills:
		return CreatorOf[Bill](r.Bills), nil
	case ModulePayments:
		return CreatorOf(r.Payments), nil
	case ModuleTDS:
		return CreatorOf(r.TDS), nil
	case ModuleITC:
		return CreatorOf(r.ITC), nil
	case ModuleLandedCosts:
		return CreatorOf(r.LandedCosts), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownModule, module)
}
