package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procurelink/internal/clock"
	modulesdomain "github.com/smallbiznis/procurelink/internal/modules/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStores(t *testing.T, now time.Time) *Stores {
	t.Helper()
	node, err := snowflake.NewNode(7)
	require.NoError(t, err)
	return NewStores(node, clock.NewFakeClock(now))
}

func TestStoreGetByIDNotFound(t *testing.T) {
	stores := newTestStores(t, time.Now())

	_, err := stores.PurchaseOrders.GetByID(context.Background(), "po_missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, modulesdomain.ErrNotFound))

	var nf *modulesdomain.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, modulesdomain.ModulePurchaseOrders, nf.Module)
	assert.Equal(t, "po_missing", nf.ID)
}

func TestStoreCreateDecodesJSONFields(t *testing.T) {
	stores := newTestStores(t, time.Now())

	po, err := stores.PurchaseOrders.Create(context.Background(), map[string]any{
		"number":      "PO-9",
		"vendorId":    "ven_1",
		"status":      modulesdomain.POStatusDraft,
		"finalAmount": "8000",
		"orderDate":   "2026-01-02T00:00:00Z",
		"lines": []any{
			map[string]any{"itemCode": "A", "quantity": 2, "unitPrice": 100},
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, po.ID)
	assert.Equal(t, int64(8000), po.FinalAmount)
	assert.Equal(t, "ven_1", po.VendorID)
	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), po.OrderDate.UTC())
	require.Len(t, po.Lines, 1)
	assert.Equal(t, int64(100), po.Lines[0].UnitPrice)

	stored, err := stores.PurchaseOrders.GetByID(context.Background(), po.ID)
	require.NoError(t, err)
	assert.Equal(t, po, stored)
}

func TestStoreCreateRejectsDuplicateID(t *testing.T) {
	stores := newTestStores(t, time.Now())
	stores.Vendors.Seed(modulesdomain.Vendor{ID: "ven_1", Name: "One"})

	_, err := stores.Vendors.Create(context.Background(), map[string]any{"id": "ven_1", "name": "Again"})
	assert.ErrorIs(t, err, modulesdomain.ErrInvalidRecord)
}

func TestStoreUpdateStatus(t *testing.T) {
	stores := newTestStores(t, time.Now())
	stores.PurchaseOrders.Seed(modulesdomain.PurchaseOrder{ID: "po_1", Status: modulesdomain.POStatusDraft})
	ctx := context.Background()

	require.NoError(t, stores.PurchaseOrders.UpdateStatus(ctx, "po_1", modulesdomain.POStatusApproved))
	po, err := stores.PurchaseOrders.GetByID(ctx, "po_1")
	require.NoError(t, err)
	assert.Equal(t, modulesdomain.POStatusApproved, po.Status)

	assert.ErrorIs(t, stores.PurchaseOrders.UpdateStatus(ctx, "po_1", " "), modulesdomain.ErrInvalidStatus)
	assert.ErrorIs(t, stores.PurchaseOrders.UpdateStatus(ctx, "po_2", "approved"), modulesdomain.ErrNotFound)

	calls := stores.PurchaseOrders.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, Call{Op: OpUpdateStatus, ID: "po_1", Status: modulesdomain.POStatusApproved}, calls[0])
}

func TestStoreFailOn(t *testing.T) {
	stores := newTestStores(t, time.Now())
	stores.Bills.Seed(modulesdomain.Bill{ID: "b1"}, modulesdomain.Bill{ID: "b2"})
	boom := errors.New("backend down")
	stores.Bills.FailOn(OpGetByID, "b2", boom)

	_, err := stores.Bills.GetByID(context.Background(), "b1")
	require.NoError(t, err)
	_, err = stores.Bills.GetByID(context.Background(), "b2")
	assert.ErrorIs(t, err, boom)

	stores.Bills.ClearFailures()
	_, err = stores.Bills.GetByID(context.Background(), "b2")
	assert.NoError(t, err)
}

func TestStoreListByVendorKeepsInsertionOrder(t *testing.T) {
	stores := newTestStores(t, time.Now())
	stores.Payments.Seed(
		modulesdomain.Payment{ID: "p3", VendorID: "v1"},
		modulesdomain.Payment{ID: "p1", VendorID: "v2"},
		modulesdomain.Payment{ID: "p2", VendorID: "v1"},
	)

	got, err := stores.Payments.ListByVendor(context.Background(), "v1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p3", got[0].ID)
	assert.Equal(t, "p2", got[1].ID)

	empty, err := stores.Payments.ListByVendor(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestBillStoreApplyPayment(t *testing.T) {
	stores := newTestStores(t, time.Now())
	stores.Bills.Seed(modulesdomain.Bill{ID: "b1", TotalAmount: 10000, Status: modulesdomain.BillStatusApproved})
	ctx := context.Background()

	bill, err := stores.Bills.ApplyPayment(ctx, "b1", 4000, 100)
	require.NoError(t, err)
	assert.Equal(t, modulesdomain.BillStatusPartiallyPaid, bill.Status)
	assert.Equal(t, int64(5900), bill.Outstanding())

	_, err = stores.Bills.ApplyPayment(ctx, "b1", 6000, 0)
	assert.ErrorIs(t, err, modulesdomain.ErrOverpayment)

	bill, err = stores.Bills.ApplyPayment(ctx, "b1", 5800, 100)
	require.NoError(t, err)
	assert.Equal(t, modulesdomain.BillStatusPaid, bill.Status)
	assert.Equal(t, int64(0), bill.Outstanding())
}

func TestBillStoreUpdateMatch(t *testing.T) {
	stores := newTestStores(t, time.Now())
	stores.Bills.Seed(modulesdomain.Bill{ID: "b1"}, modulesdomain.Bill{ID: "b2"})
	ctx := context.Background()

	require.NoError(t, stores.Bills.UpdateMatch(ctx, "b1", modulesdomain.MatchResult{Matched: true, Confidence: 100}))
	require.NoError(t, stores.Bills.UpdateMatch(ctx, "b2", modulesdomain.MatchResult{
		Confidence:    60,
		Discrepancies: []modulesdomain.Discrepancy{{ItemCode: "A", Field: "quantity"}},
	}))

	b1, err := stores.Bills.GetByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, modulesdomain.BillStatusMatched, b1.Status)
	require.NotNil(t, b1.Match)
	assert.Equal(t, 100, b1.Match.Confidence)

	b2, err := stores.Bills.GetByID(ctx, "b2")
	require.NoError(t, err)
	assert.Equal(t, modulesdomain.BillStatusDisputed, b2.Status)
}

func TestAgingRefreshBuckets(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stores := newTestStores(t, now)
	stores.Bills.Seed(
		modulesdomain.Bill{ID: "b1", VendorID: "v1", TotalAmount: 1000, DueDate: time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)},
		modulesdomain.Bill{ID: "b2", VendorID: "v1", TotalAmount: 500, DueDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)},
		modulesdomain.Bill{ID: "b3", VendorID: "v1", TotalAmount: 700, PaidAmount: 700},
		modulesdomain.Bill{ID: "b4", VendorID: "v1", TotalAmount: 300, DueDate: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)},
		modulesdomain.Bill{ID: "b5", VendorID: "v2", TotalAmount: 9999},
	)

	snapshot, err := stores.Aging.Refresh(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, int64(1800), snapshot.TotalOutstanding)
	assert.Equal(t, now, snapshot.RefreshedAt)

	byLabel := map[string]modulesdomain.AgingBucket{}
	for _, b := range snapshot.Buckets {
		byLabel[b.Label] = b
	}
	assert.Equal(t, int64(500), byLabel[BucketCurrent].Outstanding)
	assert.Equal(t, int64(1000), byLabel[Bucket1To30].Outstanding)
	assert.Equal(t, int64(300), byLabel[BucketOver90].Outstanding)
	assert.Equal(t, 1, stores.Aging.RefreshCount("v1"))

	cached, ok := stores.Aging.Snapshot("v1")
	require.True(t, ok)
	assert.Equal(t, snapshot, cached)
}

func TestRegistryResolvesByAlias(t *testing.T) {
	stores := newTestStores(t, time.Now())
	stores.PurchaseOrders.Seed(modulesdomain.PurchaseOrder{ID: "po_1", Status: modulesdomain.POStatusDraft})
	registry := stores.Registry()
	ctx := context.Background()

	mutator, err := registry.StatusMutator("purchase-order")
	require.NoError(t, err)
	require.NoError(t, mutator.UpdateStatus(ctx, "po_1", modulesdomain.POStatusApproved))

	creator, err := registry.RecordCreator("tds")
	require.NoError(t, err)
	id, err := creator.CreateRecord(ctx, map[string]any{"vendorId": "v1", "section": "194C", "tdsAmount": 200})
	require.NoError(t, err)
	rec, err := stores.TDS.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(200), rec.TDSAmount)

	_, err = registry.StatusMutator("warehouse")
	assert.ErrorIs(t, err, modulesdomain.ErrUnknownModule)
}

func TestSeedFixtures(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	stores := newTestStores(t, now)
	stores.SeedFixtures(now)

	bills, err := stores.Bills.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, bills, 2)
	assert.Equal(t, modulesdomain.MSMEStatusAtRisk, stores.Aging.MSMEStatus(bills[0], now))
	assert.Equal(t, modulesdomain.MSMEStatusViolated, stores.Aging.MSMEStatus(bills[1], now))
}
