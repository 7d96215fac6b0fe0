package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type ReferenceType string

const (
	ReferenceTypeVendor        ReferenceType = "vendor"
	ReferenceTypePurchaseOrder ReferenceType = "purchase_order"
	ReferenceTypeGRN           ReferenceType = "grn"
	ReferenceTypeBill          ReferenceType = "bill"
	ReferenceTypePayment       ReferenceType = "payment"
	ReferenceTypeExpense       ReferenceType = "expense"
	ReferenceTypeTDS           ReferenceType = "tds"
	ReferenceTypeITC           ReferenceType = "itc"
	ReferenceTypeLandedCost    ReferenceType = "landed_cost"
)

// causalRank orders reference types by when they appear in a transaction
// chain. A child may never rank below its parent.
var causalRank = map[ReferenceType]int{
	ReferenceTypeVendor:        0,
	ReferenceTypePurchaseOrder: 1,
	ReferenceTypeGRN:           2,
	ReferenceTypeBill:          3,
	ReferenceTypeLandedCost:    3,
	ReferenceTypeExpense:       3,
	ReferenceTypePayment:       4,
	ReferenceTypeITC:           4,
	ReferenceTypeTDS:           5,
}

func (t ReferenceType) Valid() bool {
	_, ok := causalRank[t]
	return ok
}

func (t ReferenceType) Rank() int {
	if rank, ok := causalRank[t]; ok {
		return rank
	}
	return -1
}

func ParseReferenceType(raw string) (ReferenceType, error) {
	t := ReferenceType(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", ErrInvalidType
	}
	return t, nil
}

// Key identifies a record in its source module.
type Key struct {
	Type ReferenceType `json:"type"`
	ID   string        `json:"id"`
}

func (k Key) Validate() error {
	if !k.Type.Valid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(k.ID) == "" {
		return ErrInvalidID
	}
	return nil
}

func (k Key) String() string {
	return string(k.Type) + ":" + k.ID
}

// WorkflowReference is one record inside a transaction chain. References are
// append-only: only new child links are ever added.
type WorkflowReference struct {
	ID               string              `json:"id"`
	Type             ReferenceType       `json:"type"`
	Number           string              `json:"number"`
	Status           string              `json:"status"`
	Date             time.Time           `json:"date"`
	Amount           int64               `json:"amount"`
	ParentReferences []WorkflowReference `json:"parentReferences,omitempty"`
	ChildReferences  []WorkflowReference `json:"childReferences,omitempty"`
}

func (r WorkflowReference) Key() Key {
	return Key{Type: r.Type, ID: r.ID}
}

// Reference is the persisted row behind a WorkflowReference.
type Reference struct {
	ID         snowflake.ID  `gorm:"primaryKey"`
	RecordType ReferenceType `gorm:"type:text;not null;uniqueIndex:ux_workflow_reference_record,priority:1"`
	RecordID   string        `gorm:"type:text;not null;uniqueIndex:ux_workflow_reference_record,priority:2"`
	Number     string        `gorm:"type:text"`
	Status     string        `gorm:"type:text"`
	RecordDate time.Time     `gorm:"not null"`
	Amount     int64         `gorm:"not null;default:0"`
	CreatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Reference) TableName() string { return "workflow_references" }

func (r Reference) Key() Key {
	return Key{Type: r.RecordType, ID: r.RecordID}
}

func (r Reference) ToWorkflowReference() WorkflowReference {
	return WorkflowReference{
		ID:     r.RecordID,
		Type:   r.RecordType,
		Number: r.Number,
		Status: r.Status,
		Date:   r.RecordDate,
		Amount: r.Amount,
	}
}

// ReferenceLink is a parent to child edge.
type ReferenceLink struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	ParentID  snowflake.ID `gorm:"not null;uniqueIndex:ux_workflow_reference_link,priority:1"`
	ChildID   snowflake.ID `gorm:"not null;index;uniqueIndex:ux_workflow_reference_link,priority:2"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ReferenceLink) TableName() string { return "workflow_reference_links" }

type Direction string

const (
	DirectionParents  Direction = "parents"
	DirectionChildren Direction = "children"
)

func ParseDirection(raw string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(raw))) {
	case DirectionParents, "up", "ancestors":
		return DirectionParents, nil
	case DirectionChildren, "", "down", "descendants":
		return DirectionChildren, nil
	}
	return "", ErrInvalidDirection
}

type LineageStep struct {
	Depth         int               `json:"depth"`
	From          *Key              `json:"from,omitempty"`
	Reference     WorkflowReference `json:"reference"`
	CycleDetected bool              `json:"cycleDetected"`
}

// Lineage is the breadth-first walk from Root in one direction.
type Lineage struct {
	Root          Key           `json:"root"`
	Direction     Direction     `json:"direction"`
	Steps         []LineageStep `json:"steps"`
	CycleDetected bool          `json:"cycleDetected"`
	Truncated     bool          `json:"truncated"`
}
