package restclient

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	modulesdomain "github.com/smallbiznis/procurelink/internal/modules/domain"
)

// Resource implements modulesdomain.Store[T] against one backend collection.
type Resource[T modulesdomain.Record[T]] struct {
	client *Client
	module string
	path   string
}

func NewResource[T modulesdomain.Record[T]](client *Client, module, path string) *Resource[T] {
	return &Resource[T]{client: client, module: module, path: path}
}

func (r *Resource[T]) GetByID(ctx context.Context, id string) (T, error) {
	var out envelope[T]
	if err := r.client.do(ctx, http.MethodGet, r.itemPath(id), nil, nil, &out, r.module, id); err != nil {
		var zero T
		return zero, err
	}
	return out.Data, nil
}

func (r *Resource[T]) UpdateStatus(ctx context.Context, id, status string) error {
	status = strings.TrimSpace(status)
	if status == "" {
		return modulesdomain.ErrInvalidStatus
	}
	body := map[string]string{"status": status}
	return r.client.do(ctx, http.MethodPatch, r.itemPath(id)+"/status", nil, body, nil, r.module, id)
}

func (r *Resource[T]) Create(ctx context.Context, fields map[string]any) (T, error) {
	var out envelope[T]
	if err := r.client.do(ctx, http.MethodPost, r.path, nil, fields, &out, r.module, ""); err != nil {
		var zero T
		return zero, err
	}
	return out.Data, nil
}

func (r *Resource[T]) ListByVendor(ctx context.Context, vendorID string) ([]T, error) {
	query := url.Values{}
	query.Set("vendorId", vendorID)
	return r.list(ctx, query)
}

func (r *Resource[T]) List(ctx context.Context) ([]T, error) {
	return r.list(ctx, nil)
}

func (r *Resource[T]) list(ctx context.Context, query url.Values) ([]T, error) {
	var out envelope[[]T]
	if err := r.client.do(ctx, http.MethodGet, r.path, query, nil, &out, r.module, ""); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return []T{}, nil
	}
	return out.Data, nil
}

func (r *Resource[T]) itemPath(id string) string {
	return r.path + "/" + url.PathEscape(id)
}

// BillResource adds the match and payment endpoints.
type BillResource struct {
	*Resource[modulesdomain.Bill]
}

func NewBillResource(client *Client) *BillResource {
	return &BillResource{Resource: NewResource[modulesdomain.Bill](client, modulesdomain.ModuleBills, PathBills)}
}

func (r *BillResource) UpdateMatch(ctx context.Context, id string, match modulesdomain.MatchResult) error {
	return r.client.do(ctx, http.MethodPut, r.itemPath(id)+"/match", nil, match, nil, r.module, id)
}

type applyPaymentRequest struct {
	PaidAmount int64 `json:"paidAmount"`
	TDSAmount  int64 `json:"tdsAmount"`
}

func (r *BillResource) ApplyPayment(ctx context.Context, id string, paid, tds int64) (modulesdomain.Bill, error) {
	var out envelope[modulesdomain.Bill]
	body := applyPaymentRequest{PaidAmount: paid, TDSAmount: tds}
	if err := r.client.do(ctx, http.MethodPost, r.itemPath(id)+"/payments", nil, body, &out, r.module, id); err != nil {
		return modulesdomain.Bill{}, err
	}
	return out.Data, nil
}

// Aging refreshes payables aging on the backend. MSME classification is
// computed locally from the bill.
type Aging struct {
	client *Client
}

func NewAging(client *Client) *Aging {
	return &Aging{client: client}
}

func (a *Aging) Refresh(ctx context.Context, vendorID string) (modulesdomain.AgingSnapshot, error) {
	var out envelope[modulesdomain.AgingSnapshot]
	path := PathPayablesAging + "/" + url.PathEscape(vendorID) + "/refresh"
	if err := a.client.do(ctx, http.MethodPost, path, nil, nil, &out, modulesdomain.ModulePayablesAging, vendorID); err != nil {
		return modulesdomain.AgingSnapshot{}, err
	}
	return out.Data, nil
}

func (a *Aging) MSMEStatus(bill modulesdomain.Bill, now time.Time) modulesdomain.MSMEStatus {
	return modulesdomain.EvaluateMSMEStatus(bill, now)
}
