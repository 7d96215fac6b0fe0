package domain

import "time"

type MSMEStatus string

const (
	MSMEStatusCompliant MSMEStatus = "compliant"
	MSMEStatusAtRisk    MSMEStatus = "at_risk"
	MSMEStatusViolated  MSMEStatus = "violated"
)

const (
	// MSMEPaymentLimitDays is the statutory ceiling on credit to MSME vendors.
	MSMEPaymentLimitDays = 45
	MSMEAtRiskWindowDays = 7
)

// MSMEDeadline is the earlier of the bill due date and the statutory limit.
func MSMEDeadline(bill Bill) time.Time {
	limit := bill.BillDate.AddDate(0, 0, MSMEPaymentLimitDays)
	if !bill.DueDate.IsZero() && bill.DueDate.Before(limit) {
		return bill.DueDate
	}
	return limit
}

// EvaluateMSMEStatus classifies an unpaid bill by days until its deadline.
// Settled bills are always compliant.
func EvaluateMSMEStatus(bill Bill, now time.Time) MSMEStatus {
	if bill.Outstanding() == 0 {
		return MSMEStatusCompliant
	}
	days := DaysUntil(MSMEDeadline(bill), now)
	switch {
	case days < 0:
		return MSMEStatusViolated
	case days <= MSMEAtRiskWindowDays:
		return MSMEStatusAtRisk
	default:
		return MSMEStatusCompliant
	}
}

// DaysUntil counts whole calendar days from now to t in UTC.
func DaysUntil(t, now time.Time) int {
	t = truncateDay(t)
	now = truncateDay(now)
	return int(t.Sub(now).Hours() / 24)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
