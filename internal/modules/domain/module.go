package domain

import "strings"

// Module names as they appear in IntegrationEvent.SourceModule and in
// automation rules.
const (
	ModuleVendors          = "vendors"
	ModulePurchaseOrders   = "purchase_orders"
	ModuleGoodsReceiptNote = "goods_receipt_note"
	ModuleBills            = "bills"
	ModulePayments         = "payments"
	ModuleTDS              = "tds"
	ModuleITC              = "itc"
	ModuleLandedCosts      = "landed_costs"
	ModulePayablesAging    = "payables_aging"
)

var moduleAliases = map[string]string{
	"vendor":              ModuleVendors,
	"vendors":             ModuleVendors,
	"purchase_order":      ModulePurchaseOrders,
	"purchase_orders":     ModulePurchaseOrders,
	"po":                  ModulePurchaseOrders,
	"grn":                 ModuleGoodsReceiptNote,
	"grns":                ModuleGoodsReceiptNote,
	"goods_receipt":       ModuleGoodsReceiptNote,
	"goods_receipt_note":  ModuleGoodsReceiptNote,
	"goods_receipt_notes": ModuleGoodsReceiptNote,
	"bill":                ModuleBills,
	"bills":               ModuleBills,
	"payment":             ModulePayments,
	"payments":            ModulePayments,
	"tds":                 ModuleTDS,
	"tds_records":         ModuleTDS,
	"itc":                 ModuleITC,
	"itc_records":         ModuleITC,
	"landed_cost":         ModuleLandedCosts,
	"landed_costs":        ModuleLandedCosts,
}

// NormalizeModule maps user-facing aliases onto canonical module names.
func NormalizeModule(raw string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, " ", "_")
	module, ok := moduleAliases[key]
	return module, ok
}

// AllModules lists the record modules in chain order.
func AllModules() []string {
	return []string{
		ModuleVendors,
		ModulePurchaseOrders,
		ModuleGoodsReceiptNote,
		ModuleBills,
		ModuleLandedCosts,
		ModulePayments,
		ModuleITC,
		ModuleTDS,
	}
}
