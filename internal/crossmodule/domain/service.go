package domain

import (
	"context"

	modulesdomain "github.com/smallbiznis/procurelink/internal/modules/domain"
)

type Service interface {
	// LinkGRNToPO records goods received against a purchase order. An
	// unknown PO fails with a not-found error before any side effect.
	LinkGRNToPO(ctx context.Context, grn modulesdomain.GoodsReceiptNote, poID string) (*LinkResult, error)
	ProcessThreeWayMatching(ctx context.Context, billID, poID, grnID string) (*MatchOutcome, error)
	// ProcessPayment applies a payment across bills in order. Per-bill
	// failures are reported in the result and do not stop the batch.
	ProcessPayment(ctx context.Context, payment modulesdomain.Payment, billIDs []string) (*PaymentResult, error)
	SearchAcrossModules(ctx context.Context, params SearchParams) (*SearchResult, error)
	GetAggregatedVendorData(ctx context.Context, vendorID string) (*AggregatedData, error)
	GetDashboardMetrics(ctx context.Context) (*DashboardMetrics, error)
}
