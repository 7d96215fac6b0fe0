package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusEscalated Status = "escalated"
)

// Approval is a request routed to a human approver by an automation rule.
type Approval struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	Approver   string       `gorm:"type:text;not null;index" json:"approver"`
	Module     string       `gorm:"type:text;not null" json:"module"`
	RecordID   string       `gorm:"type:text;not null;index" json:"recordId"`
	RuleID     string       `gorm:"type:text" json:"ruleId,omitempty"`
	ActionID   string       `gorm:"type:text" json:"actionId,omitempty"`
	EventID    string       `gorm:"type:text" json:"eventId,omitempty"`
	Reason     string       `gorm:"type:text" json:"reason,omitempty"`
	Status     Status       `gorm:"type:text;not null;index" json:"status"`
	EscalateAt *time.Time   `gorm:"index" json:"escalateAt,omitempty"`
	DecidedBy  string       `gorm:"type:text" json:"decidedBy,omitempty"`
	Comment    string       `gorm:"type:text" json:"comment,omitempty"`
	DecidedAt  *time.Time   `json:"decidedAt,omitempty"`
	CreatedAt  time.Time    `gorm:"not null" json:"createdAt"`
	UpdatedAt  time.Time    `gorm:"not null" json:"updatedAt"`
}

func (Approval) TableName() string { return "approval_requests" }

// Request is what an approval_request action submits.
type Request struct {
	Approver          string
	Module            string
	RecordID          string
	RuleID            string
	ActionID          string
	EventID           string
	Reason            string
	EscalationTimeout time.Duration
}

type Decision struct {
	Approved  bool   `json:"approved"`
	DecidedBy string `json:"decidedBy"`
	Comment   string `json:"comment"`
}
