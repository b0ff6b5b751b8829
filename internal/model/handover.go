package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HandoverStatus is the closed set of states a handover can be in.
type HandoverStatus string

const (
	HandoverPending    HandoverStatus = "pending"
	HandoverHandedOver HandoverStatus = "handed_over"
	HandoverReturned   HandoverStatus = "returned"
	HandoverRejected   HandoverStatus = "rejected"
)

// Valid reports whether s is one of the four known states.
func (s HandoverStatus) Valid() bool {
	switch s {
	case HandoverPending, HandoverHandedOver, HandoverReturned, HandoverRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave s.
// handed_over is not terminal: it must be returned or deleted eventually.
func (s HandoverStatus) Terminal() bool {
	return s == HandoverReturned || s == HandoverRejected
}

// CanTransitionTo reports whether moving from s to next is a legal
// state-machine edge. Deletion is not an edge; it is allowed from any state.
func (s HandoverStatus) CanTransitionTo(next HandoverStatus) bool {
	switch s {
	case HandoverPending:
		return next == HandoverHandedOver || next == HandoverRejected
	case HandoverHandedOver:
		return next == HandoverReturned
	case HandoverReturned, HandoverRejected:
		return false
	}
	return false
}

// Handover records N units of a product being held by an employee.
//
// Timestamps are each set exactly once, on the transition that produces
// them: DecisionAt on approve/reject, HandedOverAt on approve or direct
// handover, ReturnedAt on return. A rejected handover never has
// HandedOverAt set.
type Handover struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProductID  uuid.UUID `gorm:"type:uuid;not null;index" json:"product_id"`
	// Product deletion is refused while a handover is open; terminal history
	// rows go with the product.
	Product    *Product  `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"product,omitempty"`
	EmployeeID uuid.UUID `gorm:"type:uuid;not null;index" json:"employee_id"`
	Employee   *User     `gorm:"foreignKey:EmployeeID" json:"employee,omitempty"`

	Quantity int            `gorm:"not null" json:"quantity"` // Fixed at request time, immutable
	Status   HandoverStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`

	RequestReason   string `gorm:"type:text" json:"request_reason"`
	ApprovalNotes   string `gorm:"type:text" json:"approval_notes"`
	RejectionReason string `gorm:"type:text" json:"rejection_reason"`
	ReturnNotes     string `gorm:"type:text" json:"return_notes"`

	DecidedByID *uuid.UUID `gorm:"type:uuid" json:"decided_by"`
	DecidedBy   *User      `gorm:"foreignKey:DecidedByID" json:"decider,omitempty"`

	RequestedAt  time.Time  `gorm:"not null" json:"requested_at"`
	DecisionAt   *time.Time `json:"decision_at"`
	HandedOverAt *time.Time `json:"handed_over_at"`
	ReturnedAt   *time.Time `json:"returned_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (h *Handover) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if h.RequestedAt.IsZero() {
		h.RequestedAt = time.Now()
	}
	return nil
}
