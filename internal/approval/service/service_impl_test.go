package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	approvaldomain "github.com/smallbiznis/procurelink/internal/approval/domain"
	"github.com/smallbiznis/procurelink/internal/approval/repository"
	"github.com/smallbiznis/procurelink/internal/clock"
	eventdomain "github.com/smallbiznis/procurelink/internal/integrationevent/domain"
	"github.com/smallbiznis/procurelink/internal/notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []eventdomain.IntegrationEvent
}

func (p *capturePublisher) Publish(_ context.Context, event eventdomain.IntegrationEvent) (eventdomain.IntegrationEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return event, nil
}

type captureNotifier struct {
	messages []notification.Message
}

func (n *captureNotifier) Notify(_ context.Context, msg notification.Message) error {
	n.messages = append(n.messages, msg)
	return nil
}

type fixture struct {
	svc       *Service
	clock     *clock.FakeClock
	publisher *capturePublisher
	notifier  *captureNotifier
}

func setup(t *testing.T) fixture {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, repository.AutoMigrate(context.Background(), conn))

	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
	publisher := &capturePublisher{}
	notifier := &captureNotifier{}
	svc := NewService(Params{
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Repo:     repository.NewRepository(conn),
		Notifier: notifier,
	})
	svc.SetPublisher(publisher)
	return fixture{svc: svc, clock: clk, publisher: publisher, notifier: notifier}
}

func TestRequestApprovalValidates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.RequestApproval(ctx, approvaldomain.Request{Module: "purchase_orders", RecordID: "po_1"})
	assert.ErrorIs(t, err, approvaldomain.ErrApproverRequired)

	_, err = f.svc.RequestApproval(ctx, approvaldomain.Request{Approver: "finance"})
	assert.ErrorIs(t, err, approvaldomain.ErrRecordRequired)
}

func TestRequestApprovalAndListPending(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a, err := f.svc.RequestApproval(ctx, approvaldomain.Request{
		Approver:          "finance_manager",
		Module:            "purchase_orders",
		RecordID:          "po_1",
		RuleID:            "po_high_value_approval",
		EscalationTimeout: 24 * time.Hour,
	})
	require.NoError(t, err)
	assert.Equal(t, approvaldomain.StatusPending, a.Status)
	require.NotNil(t, a.EscalateAt)
	assert.Equal(t, f.clock.Now().Add(24*time.Hour), *a.EscalateAt)

	_, err = f.svc.RequestApproval(ctx, approvaldomain.Request{Approver: "cfo", Module: "bills", RecordID: "b_1"})
	require.NoError(t, err)

	all, err := f.svc.ListPending(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := f.svc.ListPending(ctx, "cfo")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "b_1", mine[0].RecordID)
	assert.Nil(t, mine[0].EscalateAt)
}

func TestDecidePublishesStatusChange(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a, err := f.svc.RequestApproval(ctx, approvaldomain.Request{Approver: "finance", Module: "purchase_orders", RecordID: "po_1", RuleID: "r1"})
	require.NoError(t, err)

	decided, err := f.svc.Decide(ctx, a.ID.String(), approvaldomain.Decision{Approved: true, Comment: " ok "})
	require.NoError(t, err)
	assert.Equal(t, approvaldomain.StatusApproved, decided.Status)
	assert.Equal(t, "finance", decided.DecidedBy)
	assert.Equal(t, "ok", decided.Comment)

	require.Len(t, f.publisher.events, 1)
	event := f.publisher.events[0]
	assert.Equal(t, eventdomain.EventTypeStatusChange, event.EventType)
	assert.Equal(t, "purchase_orders", event.SourceModule)
	assert.Equal(t, "po_1", event.SourceRecordID)
	assert.Equal(t, "approved", event.EventData["decision"])

	_, err = f.svc.Decide(ctx, a.ID.String(), approvaldomain.Decision{Approved: false})
	assert.ErrorIs(t, err, approvaldomain.ErrAlreadyDecided)
	assert.Len(t, f.publisher.events, 1)

	stored, err := f.svc.Get(ctx, a.ID.String())
	require.NoError(t, err)
	assert.Equal(t, approvaldomain.StatusApproved, stored.Status)
	require.NotNil(t, stored.DecidedAt)
}

func TestDecideUnknownOrInvalidID(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Decide(ctx, "abc", approvaldomain.Decision{})
	assert.ErrorIs(t, err, approvaldomain.ErrInvalidID)

	_, err = f.svc.Decide(ctx, "12345", approvaldomain.Decision{})
	assert.ErrorIs(t, err, approvaldomain.ErrNotFound)
}

func TestEscalateExpired(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	soon, err := f.svc.RequestApproval(ctx, approvaldomain.Request{Approver: "a", Module: "bills", RecordID: "b1", EscalationTimeout: time.Hour})
	require.NoError(t, err)
	_, err = f.svc.RequestApproval(ctx, approvaldomain.Request{Approver: "a", Module: "bills", RecordID: "b2", EscalationTimeout: 48 * time.Hour})
	require.NoError(t, err)
	_, err = f.svc.RequestApproval(ctx, approvaldomain.Request{Approver: "a", Module: "bills", RecordID: "b3"})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	count, err := f.svc.EscalateExpired(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0].Subject, "bills b1")

	escalated, err := f.svc.Get(ctx, soon.ID.String())
	require.NoError(t, err)
	assert.Equal(t, approvaldomain.StatusEscalated, escalated.Status)

	count, err = f.svc.EscalateExpired(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Escalated approvals can still be decided.
	decided, err := f.svc.Decide(ctx, soon.ID.String(), approvaldomain.Decision{Approved: false, DecidedBy: "cfo"})
	require.NoError(t, err)
	assert.Equal(t, approvaldomain.StatusRejected, decided.Status)
	assert.Equal(t, "rejected", f.publisher.events[0].EventData["decision"])
}
