package domain

import (
	"strings"
	"time"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities; unknown values rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

func ParseSeverity(raw string) (Severity, error) {
	s := Severity(strings.ToLower(strings.TrimSpace(raw)))
	if s.Rank() == 0 {
		return "", ErrInvalidSeverity
	}
	return s, nil
}

type AlertType string

const (
	AlertTypeMSMEPaymentDue    AlertType = "msme_payment_due"
	AlertTypeMatchDiscrepancy  AlertType = "three_way_match_discrepancy"
	AlertTypeTDSFilingDue      AlertType = "tds_filing_due"
	AlertTypeGSTReturnDue      AlertType = "gst_return_due"
	AlertTypeAutomationFailure AlertType = "automation_failure"
)

func ParseAlertType(raw string) (AlertType, error) {
	t := AlertType(strings.ToLower(strings.TrimSpace(raw)))
	switch t {
	case AlertTypeMSMEPaymentDue, AlertTypeMatchDiscrepancy, AlertTypeTDSFilingDue,
		AlertTypeGSTReturnDue, AlertTypeAutomationFailure:
		return t, nil
	}
	return "", ErrInvalidAlertType
}

// Alert is a CrossModuleAlert. IDs are derived from the record the alert is
// about, so the same condition yields the same id on every call.
type Alert struct {
	ID        string     `json:"id"`
	Type      AlertType  `json:"type"`
	Severity  Severity   `json:"severity"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Module    string     `json:"module,omitempty"`
	RecordID  string     `json:"recordId,omitempty"`
	VendorID  string     `json:"vendorId,omitempty"`
	Amount    int64      `json:"amount,omitempty"`
	DueDate   *time.Time `json:"dueDate,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

type Filter struct {
	MinSeverity Severity
	Types       []AlertType
	Limit       int
}

func (f Filter) Allows(a Alert) bool {
	if f.MinSeverity != "" && a.Severity.Rank() < f.MinSeverity.Rank() {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == a.Type {
			return true
		}
	}
	return false
}
