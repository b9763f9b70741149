package main

import "time"

// Borrow request statuses as they travel on the wire. The borrowings
// service owns the transition table; the gateway only names the states it
// orchestrates between.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusReturned  = "returned"
	StatusLate      = "late"
	StatusCancelled = "cancelled"
)

// BorrowRequest is the gateway's view of a borrowings-service record.
type BorrowRequest struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ItemID     string    `json:"item_id"`
	Quantity   int       `json:"quantity"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	Notes      string    `json:"notes"`
	AdminNotes string    `json:"admin_notes"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Item is the gateway's view of an items-service record.
type Item struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	Category          string    `json:"category"`
	ImageURL          string    `json:"image_url"`
	TotalQuantity     int       `json:"total_quantity"`
	AvailableQuantity int       `json:"available_quantity"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// CreateBorrowingInput carries a client's borrow intent.
type CreateBorrowingInput struct {
	UserID    string    `json:"user_id"`
	ItemID    string    `json:"item_id"`
	Quantity  int       `json:"quantity"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Notes     string    `json:"notes"`
}

// HistoryQuery narrows a history listing.
type HistoryQuery struct {
	UserID        string
	CreatedAfter  string
	CreatedBefore string
}
