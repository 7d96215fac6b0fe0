package restclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	modulesdomain "github.com/smallbiznis/procurelink/internal/modules/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(server.URL+"/", time.Second, zap.NewNop())
	require.NoError(t, err)
	return client
}

func writeData(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": v})
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient("  ", time.Second, nil)
	assert.ErrorIs(t, err, ErrBaseURLRequired)
}

func TestResourceGetByID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		switch r.URL.Path {
		case "/purchase-orders/po_1":
			writeData(w, modulesdomain.PurchaseOrder{ID: "po_1", Number: "PO-1", FinalAmount: 8000})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	registry := client.Registry()

	po, err := registry.PurchaseOrders.GetByID(context.Background(), "po_1")
	require.NoError(t, err)
	assert.Equal(t, int64(8000), po.FinalAmount)

	_, err = registry.PurchaseOrders.GetByID(context.Background(), "po_2")
	require.Error(t, err)
	var nf *modulesdomain.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, modulesdomain.ModulePurchaseOrders, nf.Module)
	assert.Equal(t, "po_2", nf.ID)
}

func TestResourceUpdateStatus(t *testing.T) {
	var got map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/bills/b1/status", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	})

	err := client.Registry().Bills.UpdateStatus(context.Background(), "b1", "approved")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"status": "approved"}, got)
}

func TestResourceListByVendor(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, "ven_1", r.URL.Query().Get("vendorId"))
		writeData(w, []modulesdomain.Payment{{ID: "p1", VendorID: "ven_1", Amount: 100}})
	})

	payments, err := client.Registry().Payments.ListByVendor(context.Background(), "ven_1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, int64(100), payments[0].Amount)
}

func TestResourceListNullData(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":null}`))
	})

	vendors, err := client.Registry().Vendors.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, vendors)
	assert.Empty(t, vendors)
}

func TestResourceErrorResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"code":"invalid_request","message":"vendorId is required"}}`))
	})

	_, err := client.Registry().TDS.Create(context.Background(), map[string]any{"section": "194C"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Contains(t, err.Error(), "vendorId is required")
}

func TestBillResourceApplyPayment(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/bills/b1/payments", r.URL.Path)
		var req applyPaymentRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeData(w, modulesdomain.Bill{ID: "b1", TotalAmount: 1000, PaidAmount: req.PaidAmount, TDSAmount: req.TDSAmount})
	})

	bill, err := client.Registry().Bills.ApplyPayment(context.Background(), "b1", 900, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(900), bill.PaidAmount)
	assert.Equal(t, int64(20), bill.TDSAmount)
}

func TestAgingRefresh(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payables-aging/ven_1/refresh", r.URL.Path)
		writeData(w, modulesdomain.AgingSnapshot{VendorID: "ven_1", TotalOutstanding: 500})
	})

	snapshot, err := client.Registry().Aging.Refresh(context.Background(), "ven_1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), snapshot.TotalOutstanding)
}
