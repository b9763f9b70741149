package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/openlend/lending-platform/internal/faults"
)

// BorrowUseCase contains the business logic of the state machine.
type BorrowUseCase struct {
	repository BorrowRepository
	now        func() time.Time
}

// NewBorrowUseCase creates a new BorrowUseCase.
func NewBorrowUseCase(repository BorrowRepository) *BorrowUseCase {
	return &BorrowUseCase{repository: repository, now: time.Now}
}

func storeFault(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return faults.New(faults.KindNotFound, "borrow request not found")
	case errors.Is(err, context.DeadlineExceeded):
		return faults.New(faults.KindTimeout, "storage deadline exceeded")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return faults.New(faults.KindAlreadyExists, "borrow request already exists")
	}
	log.Printf("❌ [BORROWINGS] storage error: %v", err)
	return faults.New(faults.KindInternal, "storage error")
}

// Create registers a new pending request. No availability check happens
// here: reservation is deferred to approval time.
func (uc *BorrowUseCase) Create(ctx context.Context, userID, itemID string, quantity int, startDate, endDate time.Time, notes string) (*BorrowRequest, error) {
	request, err := NewBorrowRequest(userID, itemID, quantity, startDate, endDate, notes)
	if err != nil {
		return nil, err
	}
	if err := uc.repository.Create(ctx, request); err != nil {
		return nil, storeFault(err)
	}
	log.Printf("➡️ [CREATE] request=%s user=%s item=%s qty=%d", request.ID, userID, itemID, quantity)
	return request, nil
}

// Get fetches one request, surfacing lateness lazily.
func (uc *BorrowUseCase) Get(ctx context.Context, requestID string) (*BorrowRequest, error) {
	request, err := uc.repository.Get(ctx, requestID)
	if err != nil {
		return nil, storeFault(err)
	}
	return request.WithEffectiveStatus(uc.now()), nil
}

// UpdateStatus moves a request along the transition table with an
// optimistic-concurrency guard on the expected current status.
func (uc *BorrowUseCase) UpdateStatus(ctx context.Context, requestID string, expected, newStatus Status, adminNotes *string) (*BorrowRequest, error) {
	if !ValidStatus(expected) || !ValidStatus(newStatus) {
		return nil, faults.New(faults.KindInvalidArgument, "unknown status")
	}
	if !CanTransition(expected, newStatus) {
		return nil, faults.Errorf(faults.KindInvalidTransition,
			"cannot transition from %s to %s", expected, newStatus)
	}

	// Callers that read a lazily-surfaced "late" status may race the sweep:
	// persist the lateness first so the guard below sees what they saw.
	if expected == StatusLate {
		if current, err := uc.repository.Get(ctx, requestID); err == nil && current.Overdue(uc.now()) {
			if _, err := uc.repository.UpdateStatus(ctx, requestID, StatusApproved, StatusLate, nil); err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return nil, storeFault(err)
			}
		}
	}

	request, err := uc.repository.UpdateStatus(ctx, requestID, expected, newStatus, adminNotes)
	if err == nil {
		log.Printf("✅ [STATUS] request=%s %s -> %s", requestID, expected, newStatus)
		return request, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, storeFault(err)
	}

	// The guard did not match: report Conflict with the stored status so
	// the orchestrator can refresh and decide, or NotFound if the request
	// never existed.
	current, getErr := uc.repository.Get(ctx, requestID)
	if getErr != nil {
		return nil, storeFault(getErr)
	}
	return nil, faults.Errorf(faults.KindConflict,
		"expected status %s but request is %s", expected, current.Status)
}

// ListByUser fetches all requests of one user.
func (uc *BorrowUseCase) ListByUser(ctx context.Context, userID string) ([]*BorrowRequest, error) {
	if userID == "" {
		return nil, faults.New(faults.KindInvalidArgument, "user_id is required")
	}
	requests, err := uc.repository.ListByUser(ctx, userID)
	if err != nil {
		return nil, storeFault(err)
	}
	return uc.effective(requests), nil
}

// ListAll fetches all requests, optionally filtered by status.
func (uc *BorrowUseCase) ListAll(ctx context.Context, statusFilter Status) ([]*BorrowRequest, error) {
	if statusFilter != "" && !ValidStatus(statusFilter) {
		return nil, faults.New(faults.KindInvalidArgument, "unknown status filter")
	}
	requests, err := uc.repository.ListAll(ctx, statusFilter)
	if err != nil {
		return nil, storeFault(err)
	}
	return uc.effective(requests), nil
}

// History fetches settled requests.
func (uc *BorrowUseCase) History(ctx context.Context, filter HistoryFilter) ([]*BorrowRequest, error) {
	requests, err := uc.repository.History(ctx, filter)
	if err != nil {
		return nil, storeFault(err)
	}
	return requests, nil
}

// SweepLate persists lateness for overdue approved requests.
func (uc *BorrowUseCase) SweepLate(ctx context.Context) (int64, error) {
	marked, err := uc.repository.SweepLate(ctx, uc.now())
	if err != nil {
		return 0, storeFault(err)
	}
	if marked > 0 {
		log.Printf("⏰ [SWEEP] marked %d requests late", marked)
	}
	return marked, nil
}

func (uc *BorrowUseCase) effective(requests []*BorrowRequest) []*BorrowRequest {
	now := uc.now()
	out := make([]*BorrowRequest, len(requests))
	for i, r := range requests {
		out[i] = r.WithEffectiveStatus(now)
	}
	return out
}
