package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	alertdomain "github.com/smallbiznis/procurelink/internal/alert/domain"
	approvaldomain "github.com/smallbiznis/procurelink/internal/approval/domain"
	"github.com/smallbiznis/procurelink/internal/authorization"
	automationdomain "github.com/smallbiznis/procurelink/internal/automation/domain"
	"github.com/smallbiznis/procurelink/internal/config"
	crossdomain "github.com/smallbiznis/procurelink/internal/crossmodule/domain"
	eventdomain "github.com/smallbiznis/procurelink/internal/integrationevent/domain"
	modulesdomain "github.com/smallbiznis/procurelink/internal/modules/domain"
	"github.com/smallbiznis/procurelink/internal/observability"
	"github.com/smallbiznis/procurelink/internal/ratelimit"
	workflowdomain "github.com/smallbiznis/procurelink/internal/workflow/domain"
	"go.uber.org/zap"
)

type fakeEvents struct {
	published []eventdomain.IntegrationEvent
}

func (f *fakeEvents) Publish(_ context.Context, event eventdomain.IntegrationEvent) (eventdomain.IntegrationEvent, error) {
	event.ID = 1
	f.published = append(f.published, event)
	return event, nil
}

func (f *fakeEvents) Recent(limit int) []eventdomain.IntegrationEvent {
	return f.published[:min(limit, len(f.published))]
}

type fakeAutomation struct {
	automationdomain.Service
	rules map[string]automationdomain.Rule
}

func (f *fakeAutomation) AddRule(_ context.Context, rule automationdomain.Rule) (automationdomain.Rule, error) {
	if f.rules == nil {
		f.rules = map[string]automationdomain.Rule{}
	}
	if _, ok := f.rules[rule.ID]; ok {
		return automationdomain.Rule{}, fmt.Errorf("%w: %s", automationdomain.ErrDuplicateRule, rule.ID)
	}
	f.rules[rule.ID] = rule
	return rule, nil
}

func (f *fakeAutomation) ListRules(context.Context) []automationdomain.Rule {
	out := make([]automationdomain.Rule, 0, len(f.rules))
	for _, rule := range f.rules {
		out = append(out, rule)
	}
	return out
}

func (f *fakeAutomation) GetRule(_ context.Context, id string) (automationdomain.Rule, error) {
	rule, ok := f.rules[id]
	if !ok {
		return automationdomain.Rule{}, fmt.Errorf("%w: %s", automationdomain.ErrRuleNotFound, id)
	}
	return rule, nil
}

type fakeCrossmodule struct {
	crossdomain.Service
	search       crossdomain.SearchParams
	paymentBills []string
}

func (f *fakeCrossmodule) GetAggregatedVendorData(_ context.Context, vendorID string) (*crossdomain.AggregatedData, error) {
	return nil, modulesdomain.NewNotFound(modulesdomain.ModuleVendors, vendorID)
}

func (f *fakeCrossmodule) ProcessPayment(_ context.Context, payment modulesdomain.Payment, billIDs []string) (*crossdomain.PaymentResult, error) {
	f.paymentBills = billIDs
	result := &crossdomain.PaymentResult{
		Payment:     payment,
		Allocations: []crossdomain.BillAllocation{},
		Failures: []crossdomain.BillFailure{
			crossdomain.NewBillFailure(billIDs[0], crossdomain.StageApply, crossdomain.ErrBillSettled),
		},
		Unapplied: payment.Amount,
	}
	return result, fmt.Errorf("%w: %w", crossdomain.ErrNothingApplied, result.Err())
}

func (f *fakeCrossmodule) SearchAcrossModules(_ context.Context, params crossdomain.SearchParams) (*crossdomain.SearchResult, error) {
	f.search = params
	return &crossdomain.SearchResult{Hits: []crossdomain.SearchHit{}}, nil
}

type fakeAlerts struct {
	alertdomain.Service
	calls int
}

func (f *fakeAlerts) List(context.Context, alertdomain.Filter) ([]alertdomain.Alert, error) {
	f.calls++
	return nil, nil
}

type fakeWorkflow struct {
	workflowdomain.Service
}

type fakeApprovals struct {
	approvaldomain.Service
}

type testServer struct {
	*Server
	events      *fakeEvents
	automation  *fakeAutomation
	crossmodule *fakeCrossmodule
	alerts      *fakeAlerts
}

func newTestServer(t *testing.T, cfg config.Config) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	enforcer, err := authorization.NewEnforcer(authorization.EnforcerParams{})
	if err != nil {
		t.Fatalf("new enforcer: %v", err)
	}

	ts := &testServer{
		events:      &fakeEvents{},
		automation:  &fakeAutomation{},
		crossmodule: &fakeCrossmodule{},
		alerts:      &fakeAlerts{},
	}
	ts.Server = NewServer(ServerParams{
		Gin:         NewEngine(observability.Config{MetricsPath: "/metrics", Environment: "test"}, nil),
		Cfg:         cfg,
		Events:      ts.events,
		Automation:  ts.automation,
		Crossmodule: ts.crossmodule,
		Alerts:      ts.alerts,
		Workflow:    &fakeWorkflow{},
		Approvals:   &fakeApprovals{},
		Authz:       authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer}),
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	ts.Engine().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return resp.Error
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, config.Config{})

	w := ts.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestPublishEventRejectsInvalidType(t *testing.T) {
	ts := newTestServer(t, config.Config{})

	w := ts.do(t, http.MethodPost, "/api/events", map[string]any{
		"eventType":    "archived",
		"sourceModule": "bills",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	payload := decodeError(t, w)
	if len(payload.Errors) != 1 || payload.Errors[0].Code != "invalid_event_type" {
		t.Fatalf("unexpected errors: %+v", payload.Errors)
	}
	if len(ts.events.published) != 0 {
		t.Fatalf("expected nothing published")
	}
}

func TestPublishEventNormalizesModule(t *testing.T) {
	ts := newTestServer(t, config.Config{})

	w := ts.do(t, http.MethodPost, "/api/events", map[string]any{
		"eventType":      "Status_Change",
		"sourceModule":   "Purchase-Order",
		"sourceRecordId": "po_1001",
		"eventData":      map[string]any{"status": "approved"},
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if len(ts.events.published) != 1 {
		t.Fatalf("expected one event, got %d", len(ts.events.published))
	}
	event := ts.events.published[0]
	if event.SourceModule != modulesdomain.ModulePurchaseOrders {
		t.Fatalf("expected normalized module, got %q", event.SourceModule)
	}
	if event.EventType != eventdomain.EventTypeStatusChange {
		t.Fatalf("expected status_change, got %q", event.EventType)
	}

	w = ts.do(t, http.MethodGet, "/api/events/recent?limit=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

type fakeLimiter struct {
	producers []string
	allow     bool
	err       error
}

func (f *fakeLimiter) AllowEvent(_ context.Context, producer string) (*ratelimit.RateLimitResult, error) {
	f.producers = append(f.producers, producer)
	if f.err != nil {
		return nil, f.err
	}
	return &ratelimit.RateLimitResult{Allowed: f.allow, Limit: 10, RetryAfter: 1500 * time.Millisecond}, nil
}

func TestPublishEventRateLimited(t *testing.T) {
	ts := newTestServer(t, config.Config{})
	limiter := &fakeLimiter{}
	ts.limiter = limiter

	body := map[string]any{"eventType": "create", "sourceModule": "bills", "sourceRecordId": "bill_1"}
	w := ts.do(t, http.MethodPost, "/api/events", body)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}
	if len(ts.events.published) != 0 {
		t.Fatalf("expected no event published")
	}
	if len(limiter.producers) != 1 || limiter.producers[0] != "role:operator:192.0.2.1" {
		t.Fatalf("unexpected producer keys %v", limiter.producers)
	}

	limiter.err = errors.New("redis down")
	w = ts.do(t, http.MethodPost, "/api/events", body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected limiter failure to let the event through, got %d", w.Code)
	}
}

func TestPublishEventRejectsUnknownModule(t *testing.T) {
	ts := newTestServer(t, config.Config{})

	w := ts.do(t, http.MethodPost, "/api/events", map[string]any{
		"eventType":    "create",
		"sourceModule": "warehouse",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if payload := decodeError(t, w); payload.Errors[0].Code != "unknown_module" {
		t.Fatalf("unexpected code %q", payload.Errors[0].Code)
	}
}

func TestCreateRuleDefaultsIDToSlug(t *testing.T) {
	ts := newTestServer(t, config.Config{})
	body := map[string]any{
		"name":             "Route High Value POs",
		"triggerModule":    "purchase_orders",
		"triggerCondition": "amount > 100000",
	}

	w := ts.do(t, http.MethodPost, "/api/rules", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	rule, ok := ts.automation.rules["route-high-value-pos"]
	if !ok {
		t.Fatalf("expected slug id, got %v", ts.automation.rules)
	}
	if !rule.IsActive {
		t.Fatalf("expected new rule to be active")
	}

	w = ts.do(t, http.MethodPost, "/api/rules", body)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate, got %d", w.Code)
	}
}

func TestGetUnknownRuleIsNotFound(t *testing.T) {
	ts := newTestServer(t, config.Config{})

	w := ts.do(t, http.MethodGet, "/api/rules/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestVendorAggregateNotFound(t *testing.T) {
	ts := newTestServer(t, config.Config{})

	w := ts.do(t, http.MethodGet, "/api/vendors/ven_404/aggregate", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if payload := decodeError(t, w); payload.Message != "vendors ven_404 not found" {
		t.Fatalf("unexpected message %q", payload.Message)
	}
}

func TestProcessPaymentNothingAppliedKeepsResult(t *testing.T) {
	ts := newTestServer(t, config.Config{})

	w := ts.do(t, http.MethodPost, "/api/payments/pay_1/process", map[string]any{
		"vendorId": "ven_globex",
		"amount":   5000,
		"billIds":  []string{"bill_paid"},
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data  crossdomain.PaymentResult `json:"data"`
		Error errorPayload              `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Payment.ID != "pay_1" || resp.Data.Unapplied != 5000 {
		t.Fatalf("unexpected result: %+v", resp.Data)
	}
	if len(resp.Data.Failures) != 1 || resp.Data.Failures[0].BillID != "bill_paid" {
		t.Fatalf("unexpected failures: %+v", resp.Data.Failures)
	}
	if resp.Error.Type != "unprocessable" {
		t.Fatalf("unexpected error type %q", resp.Error.Type)
	}
}

func TestSearchParsesQuery(t *testing.T) {
	ts := newTestServer(t, config.Config{})

	w := ts.do(t, http.MethodGet, "/api/search?q=inv-300&module=bills,po&module=grn&status=open&limit=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	got := ts.crossmodule.search
	if got.Query != "inv-300" || got.Status != "open" || got.Limit != 5 {
		t.Fatalf("unexpected params: %+v", got)
	}
	if len(got.Modules) != 3 || got.Modules[0] != "bills" || got.Modules[2] != "grn" {
		t.Fatalf("unexpected modules: %v", got.Modules)
	}
}

func TestListAlertsRejectsBadSeverity(t *testing.T) {
	ts := newTestServer(t, config.Config{})

	w := ts.do(t, http.MethodGet, "/api/alerts?severity=urgent", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if ts.alerts.calls != 0 {
		t.Fatalf("alerts should not be listed")
	}

	w = ts.do(t, http.MethodGet, "/api/alerts?severity=high&type=msme_payment_due", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != `{"data":[]}` {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

func TestReferenceRejectsUnknownType(t *testing.T) {
	ts := newTestServer(t, config.Config{})

	w := ts.do(t, http.MethodGet, "/api/references/invoice/inv_1", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestAPITokenRequired(t *testing.T) {
	ts := newTestServer(t, config.Config{OperatorToken: "s3cret"})

	w := ts.do(t, http.MethodGet, "/api/rules", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/api/rules", nil, HeaderAPIToken, "wrong")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown token, got %d", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/api/rules", nil, HeaderAPIToken, "s3cret")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/api/rules", nil, "Authorization", "Bearer s3cret")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with bearer token, got %d", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health must stay open, got %d", w.Code)
	}
}

func TestRolePolicies(t *testing.T) {
	ts := newTestServer(t, config.Config{
		OperatorToken: "op",
		ViewerToken:   "view",
		ProducerToken: "prod",
	})
	rule := map[string]any{"name": "Notify Bills", "triggerModule": "bills"}
	event := map[string]any{"eventType": "create", "sourceModule": "bills"}

	if w := ts.do(t, http.MethodGet, "/api/rules", nil, HeaderAPIToken, "view"); w.Code != http.StatusOK {
		t.Fatalf("viewer list rules: expected 200, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodPost, "/api/rules", rule, HeaderAPIToken, "view"); w.Code != http.StatusForbidden {
		t.Fatalf("viewer create rule: expected 403, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodPost, "/api/events", event, HeaderAPIToken, "prod"); w.Code != http.StatusAccepted {
		t.Fatalf("producer publish: expected 202, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/api/alerts", nil, HeaderAPIToken, "prod"); w.Code != http.StatusForbidden {
		t.Fatalf("producer alerts: expected 403, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodPost, "/api/rules", rule, HeaderAPIToken, "op"); w.Code != http.StatusCreated {
		t.Fatalf("operator create rule: expected 201, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/api/alerts", nil, HeaderAPIToken, "op"); w.Code != http.StatusOK {
		t.Fatalf("operator alerts: expected 200, got %d", w.Code)
	}
}
