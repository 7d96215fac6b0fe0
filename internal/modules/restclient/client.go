package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	modulesdomain "github.com/smallbiznis/procurelink/internal/modules/domain"
	"go.uber.org/zap"
)

var (
	ErrBaseURLRequired = errors.New("modules_base_url_required")
	ErrRequestFailed   = errors.New("module_request_failed")
)

// Resource paths on the backend, relative to the base URL.
const (
	PathVendors        = "vendors"
	PathPurchaseOrders = "purchase-orders"
	PathGRNs           = "goods-receipt-notes"
	PathBills          = "bills"
	PathPayments       = "payments"
	PathTDS            = "tds-records"
	PathITC            = "itc-records"
	PathLandedCosts    = "landed-costs"
	PathPayablesAging  = "payables-aging"
)

type envelope[T any] struct {
	Data T `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks JSON to the module backend. Every response body is wrapped
// in a {"data": ...} envelope.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBaseURLRequired, err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log.Named("modules.restclient"),
	}, nil
}

// Registry builds REST-backed collaborators for every module.
func (c *Client) Registry() *modulesdomain.Registry {
	return &modulesdomain.Registry{
		Vendors:        NewResource[modulesdomain.Vendor](c, modulesdomain.ModuleVendors, PathVendors),
		PurchaseOrders: NewResource[modulesdomain.PurchaseOrder](c, modulesdomain.ModulePurchaseOrders, PathPurchaseOrders),
		GRNs:           NewResource[modulesdomain.GoodsReceiptNote](c, modulesdomain.ModuleGoodsReceiptNote, PathGRNs),
		Bills:          NewBillResource(c),
		Payments:       NewResource[modulesdomain.Payment](c, modulesdomain.ModulePayments, PathPayments),
		TDS:            NewResource[modulesdomain.TDSRecord](c, modulesdomain.ModuleTDS, PathTDS),
		ITC:            NewResource[modulesdomain.ITCRecord](c, modulesdomain.ModuleITC, PathITC),
		LandedCosts:    NewResource[modulesdomain.LandedCost](c, modulesdomain.ModuleLandedCosts, PathLandedCosts),
		Aging:          NewAging(c),
	}
}

// do sends body as JSON (when non-nil) and decodes the envelope into out
// (when non-nil). A 404 becomes a *NotFoundError for module/id.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, module, id string) error {
	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("module request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	c.log.Debug("module request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode == http.StatusNotFound {
		return modulesdomain.NewNotFound(module, id)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		message := strings.TrimSpace(apiErr.Error.Message)
		if message == "" {
			message = strings.TrimSpace(apiErr.Error.Code)
		}
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%w: %s %s: %d %s", ErrRequestFailed, method, path, resp.StatusCode, message)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrRequestFailed, path, err)
	}
	return nil
}
