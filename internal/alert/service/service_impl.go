package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	alertdomain "github.com/smallbiznis/procurelink/internal/alert/domain"
	automationdomain "github.com/smallbiznis/procurelink/internal/automation/domain"
	"github.com/smallbiznis/procurelink/internal/clock"
	modulesdomain "github.com/smallbiznis/procurelink/internal/modules/domain"
	obslogger "github.com/smallbiznis/procurelink/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/procurelink/internal/observability/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// TDS deducted in a month is deposited by the 7th of the next month.
	tdsFilingDay = 7
	// GSTR-3B for a period is due on the 20th of the following month.
	gstReturnDay = 20

	dueSoonDays        = 5
	executionScanLimit = 100
)

// ExecutionSource exposes the automation execution log.
type ExecutionSource interface {
	Executions(limit int) []automationdomain.ExecutionRecord
}

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	Modules    *modulesdomain.Registry
	Executions ExecutionSource     `optional:"true"`
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	clock      clock.Clock
	modules    *modulesdomain.Registry
	executions ExecutionSource
	metrics    *obsmetrics.Metrics
	tracer     trace.Tracer
}

func NewService(p Params) alertdomain.Service {
	return &Service{
		log:        p.Log.Named("alert.service"),
		clock:      p.Clock,
		modules:    p.Modules,
		executions: p.Executions,
		metrics:    p.Metrics,
		tracer:     otel.Tracer("procurelink/alert"),
	}
}

type snapshot struct {
	vendors map[string]modulesdomain.Vendor
	bills   []modulesdomain.Bill
	tds     []modulesdomain.TDSRecord
	itc     []modulesdomain.ITCRecord
}

// List derives alerts from current module state. Nothing is stored between
// calls.
func (s *Service) List(ctx context.Context, filter alertdomain.Filter) (alerts []alertdomain.Alert, err error) {
	ctx, span := s.tracer.Start(ctx, "alert.list")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("alerts", len(alerts)))
		span.End()
		if s.metrics != nil {
			s.metrics.RecordOperation(ctx, "list_alerts", err)
		}
	}()

	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()

	var all []alertdomain.Alert
	all = append(all, s.msmeAlerts(snap, now)...)
	all = append(all, matchAlerts(snap, now)...)
	all = append(all, tdsAlerts(snap, now)...)
	all = append(all, gstAlerts(snap, now)...)
	all = append(all, s.automationAlerts()...)

	alerts = make([]alertdomain.Alert, 0, len(all))
	for _, a := range all {
		if filter.Allows(a) {
			alerts = append(alerts, a)
		}
	}
	Sort(alerts)
	if filter.Limit > 0 && len(alerts) > filter.Limit {
		alerts = alerts[:filter.Limit]
	}

	obslogger.WithContext(ctx, s.log).Debug("alerts derived",
		zap.Int("total", len(all)),
		zap.Int("returned", len(alerts)),
	)
	return alerts, nil
}

func (s *Service) load(ctx context.Context) (*snapshot, error) {
	r := s.modules
	var vendors []modulesdomain.Vendor
	snap := &snapshot{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { vendors, err = r.Vendors.List(gctx); return err })
	g.Go(func() (err error) { snap.bills, err = r.Bills.List(gctx); return err })
	g.Go(func() (err error) { snap.tds, err = r.TDS.List(gctx); return err })
	g.Go(func() (err error) { snap.itc, err = r.ITC.List(gctx); return err })
	if err := g.Wait(); err != nil {
		return nil, err
	}
	snap.vendors = make(map[string]modulesdomain.Vendor, len(vendors))
	for _, v := range vendors {
		snap.vendors[v.ID] = v
	}
	return snap, nil
}

func (s *Service) msmeAlerts(snap *snapshot, now time.Time) []alertdomain.Alert {
	var out []alertdomain.Alert
	for _, bill := range snap.bills {
		vendor, ok := snap.vendors[bill.VendorID]
		if !ok || !vendor.IsMSME || !billOpen(bill) {
			continue
		}
		status := s.modules.Aging.MSMEStatus(bill, now)
		var severity alertdomain.Severity
		switch status {
		case modulesdomain.MSMEStatusAtRisk:
			severity = alertdomain.SeverityHigh
		case modulesdomain.MSMEStatusViolated:
			severity = alertdomain.SeverityCritical
		default:
			continue
		}
		deadline := modulesdomain.MSMEDeadline(bill)
		days := modulesdomain.DaysUntil(deadline, now)
		message := fmt.Sprintf("%s owes %s on %s, due in %d days", vendor.Name, formatAmount(bill.Outstanding()), bill.Number, days)
		if days < 0 {
			message = fmt.Sprintf("%s owes %s on %s, %d days past the MSME deadline", vendor.Name, formatAmount(bill.Outstanding()), bill.Number, -days)
		}
		out = append(out, alertdomain.Alert{
			ID:        string(alertdomain.AlertTypeMSMEPaymentDue) + ":" + bill.ID,
			Type:      alertdomain.AlertTypeMSMEPaymentDue,
			Severity:  severity,
			Title:     "MSME payment " + string(status),
			Message:   message,
			Module:    modulesdomain.ModuleBills,
			RecordID:  bill.ID,
			VendorID:  bill.VendorID,
			Amount:    bill.Outstanding(),
			DueDate:   &deadline,
			CreatedAt: now,
		})
	}
	return out
}

func matchAlerts(snap *snapshot, now time.Time) []alertdomain.Alert {
	var out []alertdomain.Alert
	for _, bill := range snap.bills {
		if bill.Match == nil || bill.Match.Matched || !billOpen(bill) {
			continue
		}
		fields := make([]string, 0, len(bill.Match.Discrepancies))
		for _, d := range bill.Match.Discrepancies {
			fields = append(fields, d.Field)
		}
		alert := alertdomain.Alert{
			ID:       string(alertdomain.AlertTypeMatchDiscrepancy) + ":" + bill.ID,
			Type:     alertdomain.AlertTypeMatchDiscrepancy,
			Severity: alertdomain.SeverityMedium,
			Title:    "Three-way match discrepancy",
			Message: fmt.Sprintf("%s matched at %d%% confidence with %d discrepancies (%s)",
				bill.Number, bill.Match.Confidence, len(bill.Match.Discrepancies), strings.Join(fields, ", ")),
			Module:    modulesdomain.ModuleBills,
			RecordID:  bill.ID,
			VendorID:  bill.VendorID,
			Amount:    bill.Outstanding(),
			CreatedAt: now,
		}
		if !bill.DueDate.IsZero() {
			due := bill.DueDate
			alert.DueDate = &due
		}
		out = append(out, alert)
	}
	return out
}

func tdsAlerts(snap *snapshot, now time.Time) []alertdomain.Alert {
	type period struct {
		amount  int64
		records int
	}
	periods := map[string]*period{}
	for _, record := range snap.tds {
		if record.Status != modulesdomain.TDSStatusDeducted || record.DeductedAt.IsZero() {
			continue
		}
		key := record.DeductedAt.UTC().Format("2006-01")
		p, ok := periods[key]
		if !ok {
			p = &period{}
			periods[key] = p
		}
		p.amount += record.TDSAmount
		p.records++
	}

	var out []alertdomain.Alert
	for key, p := range periods {
		month, err := time.Parse("2006-01", key)
		if err != nil {
			continue
		}
		deadline := time.Date(month.Year(), month.Month()+1, tdsFilingDay, 0, 0, 0, 0, time.UTC)
		days := modulesdomain.DaysUntil(deadline, now)
		var severity alertdomain.Severity
		switch {
		case days < 0:
			severity = alertdomain.SeverityHigh
		case days <= dueSoonDays:
			severity = alertdomain.SeverityMedium
		default:
			continue
		}
		out = append(out, alertdomain.Alert{
			ID:        string(alertdomain.AlertTypeTDSFilingDue) + ":" + key,
			Type:      alertdomain.AlertTypeTDSFilingDue,
			Severity:  severity,
			Title:     "TDS deposit due for " + key,
			Message:   fmt.Sprintf("%d deductions totalling %s are not yet filed", p.records, formatAmount(p.amount)),
			Module:    modulesdomain.ModuleTDS,
			Amount:    p.amount,
			DueDate:   &deadline,
			CreatedAt: now,
		})
	}
	return out
}

// gstAlerts warns about the next GSTR-3B deadline when the return period
// has ITC to claim.
func gstAlerts(snap *snapshot, now time.Time) []alertdomain.Alert {
	period, deadline := nextGSTReturn(now)
	days := modulesdomain.DaysUntil(deadline, now)
	if days > dueSoonDays {
		return nil
	}
	var (
		amount  int64
		records int
	)
	for _, record := range snap.itc {
		if record.Period == period && record.Status == modulesdomain.ITCStatusEligible {
			amount += record.Total()
			records++
		}
	}
	if records == 0 {
		return nil
	}
	return []alertdomain.Alert{{
		ID:        string(alertdomain.AlertTypeGSTReturnDue) + ":" + period,
		Type:      alertdomain.AlertTypeGSTReturnDue,
		Severity:  alertdomain.SeverityMedium,
		Title:     "GSTR-3B due for " + period,
		Message:   fmt.Sprintf("%d ITC records worth %s are eligible for %s", records, formatAmount(amount), period),
		Module:    modulesdomain.ModuleITC,
		Amount:    amount,
		DueDate:   &deadline,
		CreatedAt: now,
	}}
}

func nextGSTReturn(now time.Time) (string, time.Time) {
	y, m, d := now.UTC().Date()
	deadline := time.Date(y, m, gstReturnDay, 0, 0, 0, 0, time.UTC)
	if d > gstReturnDay {
		deadline = time.Date(y, m+1, gstReturnDay, 0, 0, 0, 0, time.UTC)
	}
	period := time.Date(deadline.Year(), deadline.Month()-1, 1, 0, 0, 0, 0, time.UTC)
	return period.Format("2006-01"), deadline
}

func (s *Service) automationAlerts() []alertdomain.Alert {
	if s.executions == nil {
		return nil
	}
	var out []alertdomain.Alert
	for _, record := range s.executions.Executions(executionScanLimit) {
		if !record.Failed() {
			continue
		}
		var failures []string
		for _, res := range record.ActionResults {
			if res.Error != "" {
				failures = append(failures, fmt.Sprintf("%s: %s", res.ActionID, res.Error))
			}
		}
		out = append(out, alertdomain.Alert{
			ID:        fmt.Sprintf("%s:%s:%s", alertdomain.AlertTypeAutomationFailure, record.RuleID, record.EventID),
			Type:      alertdomain.AlertTypeAutomationFailure,
			Severity:  alertdomain.SeverityLow,
			Title:     "Automation rule " + record.RuleName + " failed",
			Message:   strings.Join(failures, "; "),
			Module:    record.SourceModule,
			CreatedAt: record.At,
		})
	}
	return out
}

// Sort orders alerts by severity, most severe first, then by due date with
// undated alerts last.
func Sort(alerts []alertdomain.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
			return ra > rb
		}
		switch {
		case a.DueDate != nil && b.DueDate != nil:
			if !a.DueDate.Equal(*b.DueDate) {
				return a.DueDate.Before(*b.DueDate)
			}
		case a.DueDate != nil:
			return true
		case b.DueDate != nil:
			return false
		}
		return a.ID < b.ID
	})
}

func billOpen(bill modulesdomain.Bill) bool {
	return bill.Status != modulesdomain.BillStatusCancelled && bill.Outstanding() > 0
}

// formatAmount renders minor units as rupees.
func formatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%sINR %d.%02d", sign, minor/100, minor%100)
}
