package service

import (
	"context"
	"strings"

	crossdomain "github.com/smallbiznis/procurelink/internal/crossmodule/domain"
	modulesdomain "github.com/smallbiznis/procurelink/internal/modules/domain"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 200
)

// SearchAcrossModules queries the selected module stores concurrently and
// returns hits grouped in chain order: vendors, POs, GRNs, bills and so on.
func (s *Service) SearchAcrossModules(ctx context.Context, params crossdomain.SearchParams) (result *crossdomain.SearchResult, err error) {
	ctx, finish := s.begin(ctx, "search", attribute.String("query", params.Query))
	defer func() { finish(err) }()

	modules, err := searchModules(params.Modules)
	if err != nil {
		return nil, err
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	limit = min(limit, maxSearchLimit)

	hits := make([][]crossdomain.SearchHit, len(modules))
	g, gctx := errgroup.WithContext(ctx)
	for i, module := range modules {
		g.Go(func() error {
			found, err := s.searchModule(gctx, module, params)
			if err != nil {
				return err
			}
			hits[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result = &crossdomain.SearchResult{Hits: []crossdomain.SearchHit{}}
	for _, group := range hits {
		for _, hit := range group {
			if len(result.Hits) == limit {
				result.Truncated = true
				return result, nil
			}
			result.Hits = append(result.Hits, hit)
		}
	}
	return result, nil
}

func searchModules(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return modulesdomain.AllModules(), nil
	}
	var out []string
	for _, raw := range requested {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			module, ok := modulesdomain.NormalizeModule(part)
			if !ok {
				return nil, modulesdomain.ErrUnknownModule
			}
			out = append(out, module)
		}
	}
	if len(out) == 0 {
		return modulesdomain.AllModules(), nil
	}
	// Keep chain order regardless of request order.
	ordered := make([]string, 0, len(out))
	for _, module := range modulesdomain.AllModules() {
		for _, m := range out {
			if m == module {
				ordered = append(ordered, module)
				break
			}
		}
	}
	return ordered, nil
}

func (s *Service) searchModule(ctx context.Context, module string, params crossdomain.SearchParams) ([]crossdomain.SearchHit, error) {
	r := s.modules
	switch module {
	case modulesdomain.ModuleVendors:
		return searchStore(ctx, module, r.Vendors, params, func(v modulesdomain.Vendor) crossdomain.SearchHit {
			return crossdomain.SearchHit{Number: v.Name, Date: v.CreatedAt}
		})
	case modulesdomain.ModulePurchaseOrders:
		return searchStore(ctx, module, r.PurchaseOrders, params, func(po modulesdomain.PurchaseOrder) crossdomain.SearchHit {
			return crossdomain.SearchHit{Amount: po.FinalAmount, Date: po.OrderDate}
		})
	case modulesdomain.ModuleGoodsReceiptNote:
		return searchStore(ctx, module, r.GRNs, params, func(g modulesdomain.GoodsReceiptNote) crossdomain.SearchHit {
			return crossdomain.SearchHit{Date: g.ReceivedDate}
		})
	case modulesdomain.ModuleBills:
		return searchStore[modulesdomain.Bill](ctx, module, r.Bills, params, func(b modulesdomain.Bill) crossdomain.SearchHit {
			return crossdomain.SearchHit{Amount: b.TotalAmount, Date: b.BillDate}
		})
	case modulesdomain.ModulePayments:
		return searchStore(ctx, module, r.Payments, params, func(p modulesdomain.Payment) crossdomain.SearchHit {
			return crossdomain.SearchHit{Amount: p.Amount, Date: p.PaymentDate}
		})
	case modulesdomain.ModuleTDS:
		return searchStore(ctx, module, r.TDS, params, func(t modulesdomain.TDSRecord) crossdomain.SearchHit {
			return crossdomain.SearchHit{Amount: t.TDSAmount, Date: t.DeductedAt}
		})
	case modulesdomain.ModuleITC:
		return searchStore(ctx, module, r.ITC, params, func(i modulesdomain.ITCRecord) crossdomain.SearchHit {
			return crossdomain.SearchHit{Amount: i.Total(), Date: i.CreatedAt}
		})
	case modulesdomain.ModuleLandedCosts:
		return searchStore(ctx, module, r.LandedCosts, params, func(l modulesdomain.LandedCost) crossdomain.SearchHit {
			return crossdomain.SearchHit{Amount: l.Amount, Date: l.CreatedAt}
		})
	}
	return nil, modulesdomain.ErrUnknownModule
}

// searchStore filters one store by vendor, status and a case-insensitive
// substring of the record id or number.
func searchStore[T modulesdomain.Record[T]](ctx context.Context, module string, store modulesdomain.Store[T], params crossdomain.SearchParams, describe func(T) crossdomain.SearchHit) ([]crossdomain.SearchHit, error) {
	var (
		records []T
		err     error
	)
	if vendorID := strings.TrimSpace(params.VendorID); vendorID != "" {
		records, err = store.ListByVendor(ctx, vendorID)
	} else {
		records, err = store.List(ctx)
	}
	if err != nil {
		return nil, err
	}

	query := strings.ToLower(strings.TrimSpace(params.Query))
	status := strings.TrimSpace(params.Status)
	var hits []crossdomain.SearchHit
	for _, record := range records {
		if status != "" && !strings.EqualFold(record.RecordStatus(), status) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(record.RecordID()), query) &&
			!strings.Contains(strings.ToLower(record.RecordNumber()), query) {
			continue
		}
		hit := describe(record)
		hit.Module = module
		hit.ID = record.RecordID()
		if hit.Number == "" {
			hit.Number = record.RecordNumber()
		}
		hit.VendorID = record.RecordVendorID()
		hit.Status = record.RecordStatus()
		hits = append(hits, hit)
	}
	return hits, nil
}

// GetAggregatedVendorData reads every module for one vendor concurrently.
// Nothing is cached.
func (s *Service) GetAggregatedVendorData(ctx context.Context, vendorID string) (data *crossdomain.AggregatedData, err error) {
	ctx, finish := s.begin(ctx, "aggregate_vendor", attribute.String("vendor_id", vendorID))
	defer func() { finish(err) }()

	vendorID = strings.TrimSpace(vendorID)
	if vendorID == "" {
		return nil, crossdomain.ErrInvalidRequest
	}

	r := s.modules
	data = &crossdomain.AggregatedData{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		data.Vendor, err = r.Vendors.GetByID(gctx, vendorID)
		return err
	})
	g.Go(func() (err error) {
		data.PurchaseOrders, err = r.PurchaseOrders.ListByVendor(gctx, vendorID)
		return err
	})
	g.Go(func() (err error) {
		data.GRNs, err = r.GRNs.ListByVendor(gctx, vendorID)
		return err
	})
	g.Go(func() (err error) {
		data.Bills, err = r.Bills.ListByVendor(gctx, vendorID)
		return err
	})
	g.Go(func() (err error) {
		data.Payments, err = r.Payments.ListByVendor(gctx, vendorID)
		return err
	})
	g.Go(func() (err error) {
		data.TDSRecords, err = r.TDS.ListByVendor(gctx, vendorID)
		return err
	})
	g.Go(func() (err error) {
		data.ITCRecords, err = r.ITC.ListByVendor(gctx, vendorID)
		return err
	})
	g.Go(func() (err error) {
		data.LandedCosts, err = r.LandedCosts.ListByVendor(gctx, vendorID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var msme crossdomain.MSMEBreakdown
	for _, bill := range data.Bills {
		data.TotalSpend += bill.TotalAmount
		data.TotalOutstanding += bill.Outstanding()
		if data.Vendor.IsMSME {
			msme.Add(r.Aging.MSMEStatus(bill, now))
		}
	}
	for _, record := range data.TDSRecords {
		data.TotalTDS += record.TDSAmount
	}
	for _, record := range data.ITCRecords {
		data.TotalITC += record.Total()
	}
	for _, cost := range data.LandedCosts {
		data.TotalLandedCost += cost.Amount
	}
	if data.Vendor.IsMSME {
		data.MSMECompliance = &msme
	}
	data.GeneratedAt = now
	return data, nil
}

// GetDashboardMetrics computes system-wide counts. MSME compliance covers
// unpaid bills of MSME vendors only.
func (s *Service) GetDashboardMetrics(ctx context.Context) (metrics *crossdomain.DashboardMetrics, err error) {
	ctx, finish := s.begin(ctx, "dashboard_metrics")
	defer func() { finish(err) }()

	r := s.modules
	var (
		vendors  []modulesdomain.Vendor
		pos      []modulesdomain.PurchaseOrder
		grns     []modulesdomain.GoodsReceiptNote
		bills    []modulesdomain.Bill
		payments []modulesdomain.Payment
		tds      []modulesdomain.TDSRecord
		itc      []modulesdomain.ITCRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { vendors, err = r.Vendors.List(gctx); return err })
	g.Go(func() (err error) { pos, err = r.PurchaseOrders.List(gctx); return err })
	g.Go(func() (err error) { grns, err = r.GRNs.List(gctx); return err })
	g.Go(func() (err error) { bills, err = r.Bills.List(gctx); return err })
	g.Go(func() (err error) { payments, err = r.Payments.List(gctx); return err })
	g.Go(func() (err error) { tds, err = r.TDS.List(gctx); return err })
	g.Go(func() (err error) { itc, err = r.ITC.List(gctx); return err })
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	metrics = &crossdomain.DashboardMetrics{
		TotalVendors:        len(vendors),
		TotalPurchaseOrders: len(pos),
		TotalGRNs:           len(grns),
		TotalBills:          len(bills),
		TotalPayments:       len(payments),
		GeneratedAt:         now,
	}

	msmeVendors := make(map[string]bool, len(vendors))
	for _, v := range vendors {
		if v.IsMSME {
			msmeVendors[v.ID] = true
			metrics.MSMEVendors++
		}
	}
	for _, po := range pos {
		switch po.Status {
		case modulesdomain.POStatusPendingApproval:
			metrics.PendingApprovalPOs++
		case modulesdomain.POStatusApproved, modulesdomain.POStatusPartiallyDelivered:
			metrics.OpenPurchaseOrders++
		}
	}
	for _, bill := range bills {
		if bill.Status == modulesdomain.BillStatusCancelled {
			continue
		}
		outstanding := bill.Outstanding()
		metrics.TotalPayables += outstanding
		if bill.Status == modulesdomain.BillStatusDisputed {
			metrics.DisputedBills++
		}
		if outstanding > 0 && (bill.Match == nil || !bill.Match.Matched) {
			metrics.UnmatchedBills++
		}
		if outstanding > 0 && msmeVendors[bill.VendorID] {
			metrics.MSMECompliance.Add(r.Aging.MSMEStatus(bill, now))
		}
	}
	for _, p := range payments {
		if p.Status == modulesdomain.PaymentStatusProcessed || p.Status == modulesdomain.PaymentStatusPartial {
			metrics.TotalPaid += p.Amount
		}
	}
	for _, record := range tds {
		metrics.TotalTDSDeducted += record.TDSAmount
	}
	for _, record := range itc {
		if record.Status == modulesdomain.ITCStatusEligible {
			metrics.TotalITCEligible += record.Total()
		}
	}
	return metrics, nil
}
