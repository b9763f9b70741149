package main

import (
	"time"

	"github.com/google/uuid"

	"github.com/openlend/lending-platform/internal/faults"
)

// Status is the lifecycle state of a borrow request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusReturned  Status = "returned"
	StatusLate      Status = "late"
	StatusCancelled Status = "cancelled"
)

// transitions is the closed transition table. Everything not listed here
// is rejected with InvalidTransition.
var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved: {StatusLate, StatusReturned},
	StatusLate:     {StatusReturned},
}

// ValidStatus reports whether s is a known status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusReturned, StatusLate, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the state machine allows from → to.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// BorrowRequest represents one borrowing request and its status.
type BorrowRequest struct {
	ID         string    `json:"id" db:"id"`
	UserID     string    `json:"user_id" db:"user_id"`
	ItemID     string    `json:"item_id" db:"item_id"`
	Quantity   int       `json:"quantity" db:"quantity"`
	StartDate  time.Time `json:"start_date" db:"start_date"`
	EndDate    time.Time `json:"end_date" db:"end_date"`
	Notes      string    `json:"notes" db:"notes"`
	AdminNotes string    `json:"admin_notes" db:"admin_notes"`
	Status     Status    `json:"status" db:"status"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// NewBorrowRequest creates a pending request after validating its shape.
func NewBorrowRequest(userID, itemID string, quantity int, startDate, endDate time.Time, notes string) (*BorrowRequest, error) {
	if userID == "" {
		return nil, faults.New(faults.KindInvalidArgument, "user_id is required")
	}
	if itemID == "" {
		return nil, faults.New(faults.KindInvalidArgument, "item_id is required")
	}
	if quantity <= 0 {
		return nil, faults.New(faults.KindInvalidArgument, "quantity must be > 0")
	}
	if startDate.IsZero() || endDate.IsZero() {
		return nil, faults.New(faults.KindInvalidArgument, "start_date and end_date are required")
	}
	if !startDate.Before(endDate) {
		return nil, faults.New(faults.KindInvalidArgument, "start_date must be before end_date")
	}

	now := time.Now()
	return &BorrowRequest{
		ID:        uuid.New().String(),
		UserID:    userID,
		ItemID:    itemID,
		Quantity:  quantity,
		StartDate: startDate,
		EndDate:   endDate,
		Notes:     notes,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Overdue reports whether an approved request has passed its end date
// without being returned.
func (b *BorrowRequest) Overdue(now time.Time) bool {
	return b.Status == StatusApproved && now.After(b.EndDate)
}

// WithEffectiveStatus surfaces lateness lazily on read: an approved request
// past its end date is reported as late even before the sweep persists it.
func (b *BorrowRequest) WithEffectiveStatus(now time.Time) *BorrowRequest {
	if !b.Overdue(now) {
		return b
	}
	late := *b
	late.Status = StatusLate
	return &late
}
