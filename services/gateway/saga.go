package main

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openlend/lending-platform/internal/faults"
)

// Orchestrator drives the lending sagas. Each operation is a sequence of
// calls against the borrowings and items services with no shared
// transaction: forward steps are retried, failed flows are compensated,
// and mutations that stay ambiguous land in the reconciliation queue.
type Orchestrator struct {
	borrowings BorrowingsAPI
	items      ItemsAPI
	store      SagaStore
	notifier   Notifier
	tracer     trace.Tracer

	maxTries      uint
	retryInterval time.Duration
}

// NewOrchestrator creates a new Orchestrator with default retry settings.
func NewOrchestrator(borrowings BorrowingsAPI, items ItemsAPI, store SagaStore, notifier Notifier, tracer trace.Tracer) *Orchestrator {
	return &Orchestrator{
		borrowings:    borrowings,
		items:         items,
		store:         store,
		notifier:      notifier,
		tracer:        tracer,
		maxTries:      3,
		retryInterval: 200 * time.Millisecond,
	}
}

// withRetry runs op under bounded exponential backoff. Only Timeout and
// Internal faults are retried; every other kind is a definitive answer
// from the remote service and aborts immediately.
func withRetry[T any](ctx context.Context, maxTries uint, interval time.Duration, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval

	return backoff.Retry(ctx, func() (T, error) {
		result, err := op()
		if err != nil && !faults.Retryable(err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(maxTries))
}

// Create registers a borrow request after confirming the item exists.
// No stock moves here: the reservation is taken at approval time.
func (o *Orchestrator) Create(ctx context.Context, input CreateBorrowingInput) (*BorrowRequest, error) {
	ctx, span := o.tracer.Start(ctx, "saga.create")
	defer span.End()

	item, err := o.items.GetItem(ctx, input.ItemID)
	if err != nil {
		return nil, err
	}
	if input.Quantity > item.TotalQuantity {
		return nil, faults.Errorf(faults.KindInvalidArgument,
			"requested %d exceeds total stock %d of item %s", input.Quantity, item.TotalQuantity, item.ID)
	}

	request, err := o.borrowings.Create(ctx, input)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("borrow_request_id", request.ID))

	log.Printf("✅ [SAGA] borrow request %s created for item %s", request.ID, request.ItemID)
	o.notifier.Send(request.UserID, "request_created", "Your borrow request was received and is pending review.")
	return request, nil
}

// Approve runs the approval saga: reserve stock, then flip the request to
// approved. If the reservation cannot be taken the request is auto-rejected;
// if the flip fails after the reservation, the reservation is released.
// A reservation whose outcome stays unknown is handed to the reconciler so
// stock is never silently lost.
func (o *Orchestrator) Approve(ctx context.Context, requestID string) (*BorrowRequest, error) {
	ctx, span := o.tracer.Start(ctx, "saga.approve")
	defer span.End()
	span.SetAttributes(attribute.String("borrow_request_id", requestID))

	request, err := o.borrowings.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != StatusPending {
		return nil, faults.Errorf(faults.KindConflict,
			"borrow request %s is %s, only pending requests can be approved", requestID, request.Status)
	}

	released, err := o.store.StepApplied(ctx, requestID, StepRelease)
	if err != nil {
		return nil, faults.Errorf(faults.KindInternal, "saga log unavailable: %v", err)
	}
	if released {
		return nil, faults.Errorf(faults.KindConflict,
			"borrow request %s was compensated after a failed approval, submit a new request", requestID)
	}

	// Write-ahead marker: the reserve step is claimed before the ledger is
	// touched, so the same pair can never be applied twice and a second
	// approval of the same request cannot start a second reservation.
	inserted, err := o.store.RecordStep(ctx, requestID, StepReserve)
	if err != nil {
		return nil, faults.Errorf(faults.KindInternal, "saga log unavailable: %v", err)
	}
	if !inserted {
		return nil, faults.Errorf(faults.KindConflict,
			"an approval of borrow request %s is already in flight or did not complete", requestID)
	}

	log.Printf("➡️ [SAGA] reserving %d of item %s for request %s", request.Quantity, request.ItemID, requestID)
	if _, err := withRetry(ctx, o.maxTries, o.retryInterval, func() (*Item, error) {
		return o.items.Reserve(ctx, request.ItemID, request.Quantity, requestID)
	}); err != nil {
		return nil, o.reservationFailed(ctx, request, err)
	}

	updated, err := withRetry(ctx, o.maxTries, o.retryInterval, func() (*BorrowRequest, error) {
		return o.borrowings.UpdateStatus(ctx, requestID, StatusPending, StatusApproved, nil)
	})
	if err != nil {
		o.compensateReservation(ctx, request, err)
		if faults.Retryable(err) {
			return nil, faults.Errorf(faults.KindInternal, "approval of %s could not be completed", requestID)
		}
		return nil, err
	}

	log.Printf("✅ [SAGA] borrow request %s approved", requestID)
	o.notifier.Send(updated.UserID, "request_approved", "Your borrow request was approved. Enjoy!")
	return updated, nil
}

// reservationFailed handles a Reserve call that did not succeed. A
// definitive shortage rejects the request outright; an ambiguous outcome
// goes backward through the reconciliation queue.
func (o *Orchestrator) reservationFailed(ctx context.Context, request *BorrowRequest, reserveErr error) error {
	switch faults.KindOf(reserveErr) {
	case faults.KindInsufficientStock:
		log.Printf("❌ [SAGA] insufficient stock for request %s, auto-rejecting", request.ID)
		notes := "insufficient stock"
		if _, err := withRetry(ctx, o.maxTries, o.retryInterval, func() (*BorrowRequest, error) {
			return o.borrowings.UpdateStatus(ctx, request.ID, StatusPending, StatusRejected, &notes)
		}); err != nil {
			log.Printf("❌ [SAGA] auto-reject of %s failed, request stays pending: %v", request.ID, err)
			return reserveErr
		}
		o.notifier.Send(request.UserID, "request_rejected", "Your borrow request was rejected: insufficient stock.")
		return reserveErr
	case faults.KindTimeout, faults.KindInternal:
		// The reservation may or may not have landed. Going backward is
		// safe either way: the ledger only undoes a reserve it recorded
		// for this request, so an unapplied reserve releases nothing, and
		// the released marker fences out the reserve if it is still in
		// flight.
		if _, err := o.store.RecordStep(ctx, request.ID, StepRelease); err != nil {
			log.Printf("❌ [SAGA] recording release step for %s failed: %v", request.ID, err)
		}
		o.enqueueRelease(ctx, request, "reserve outcome unknown: "+reserveErr.Error())
		return faults.Errorf(faults.KindInternal, "approval of %s could not be completed", request.ID)
	default:
		return reserveErr
	}
}

// compensateReservation undoes the stock reserved for a request whose
// approval flip failed. The request stays pending and can be retried.
func (o *Orchestrator) compensateReservation(ctx context.Context, request *BorrowRequest, cause error) {
	log.Printf("↩️ [SAGA] approval flip of %s failed (%v), releasing reservation", request.ID, cause)

	if _, err := o.store.RecordStep(ctx, request.ID, StepRelease); err != nil {
		log.Printf("❌ [SAGA] recording release step for %s failed: %v", request.ID, err)
	}
	if _, err := withRetry(ctx, o.maxTries, o.retryInterval, func() (*Item, error) {
		return o.items.Release(ctx, request.ItemID, request.Quantity, request.ID)
	}); err != nil {
		o.enqueueRelease(ctx, request, "compensating release failed: "+err.Error())
		return
	}
	log.Printf("↩️ [SAGA] reservation for %s released", request.ID)
}

// enqueueRelease hands a release to the reconciler. Enqueueing itself is
// the last line of defense, so a failure here is loud.
func (o *Orchestrator) enqueueRelease(ctx context.Context, request *BorrowRequest, reason string) {
	if err := o.store.Enqueue(ctx, request.ID, request.ItemID, request.Quantity, ActionRelease, reason); err != nil {
		log.Printf("❌ [SAGA] FAILED to enqueue reconciliation for request %s (item %s, qty %d): %v",
			request.ID, request.ItemID, request.Quantity, err)
		return
	}
	log.Printf("⏳ [SAGA] release of %d x item %s queued for reconciliation (request %s): %s",
		request.Quantity, request.ItemID, request.ID, reason)
}

// Return closes out an active loan: flip the request to returned, then put
// the stock back. The flip comes first so a half-finished return can only
// leave stock to be restored, never a loan that looks open after its stock
// came back. A failed release is queued for reconciliation and the return
// still succeeds.
func (o *Orchestrator) Return(ctx context.Context, requestID string) (*BorrowRequest, error) {
	ctx, span := o.tracer.Start(ctx, "saga.return")
	defer span.End()
	span.SetAttributes(attribute.String("borrow_request_id", requestID))

	request, err := o.borrowings.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status == StatusReturned {
		// Replayed return. The stock already came back (or is queued to);
		// touching the ledger again would double-count it.
		return nil, faults.Errorf(faults.KindConflict, "borrow request %s is already returned", requestID)
	}

	updated, err := withRetry(ctx, o.maxTries, o.retryInterval, func() (*BorrowRequest, error) {
		return o.borrowings.UpdateStatus(ctx, requestID, request.Status, StatusReturned, nil)
	})
	if err != nil {
		if faults.Retryable(err) {
			return nil, faults.Errorf(faults.KindInternal, "return of %s could not be completed", requestID)
		}
		return nil, err
	}
	log.Printf("✅ [SAGA] borrow request %s returned", requestID)

	// Write-ahead marker again: if the release step was already claimed by
	// an earlier attempt or a compensation, the stock is not touched twice.
	inserted, err := o.store.RecordStep(ctx, requestID, StepRelease)
	if err != nil {
		log.Printf("❌ [SAGA] saga log unavailable for %s: %v", requestID, err)
		o.enqueueRelease(ctx, request, "saga log unavailable on return: "+err.Error())
		inserted = false
	}
	if inserted {
		if _, err := withRetry(ctx, o.maxTries, o.retryInterval, func() (*Item, error) {
			return o.items.Release(ctx, request.ItemID, request.Quantity, requestID)
		}); err != nil {
			if !faults.IsKind(err, faults.KindNotFound) {
				o.enqueueRelease(ctx, request, "release on return failed: "+err.Error())
			}
		} else {
			log.Printf("↩️ [SAGA] stock for request %s restored", requestID)
		}
	}

	o.notifier.Send(updated.UserID, "request_returned", "Thanks, your return was registered.")
	return updated, nil
}

// Reject declines a pending request. Pending requests hold no stock, so
// this is a plain status flip.
func (o *Orchestrator) Reject(ctx context.Context, requestID string, adminNotes *string) (*BorrowRequest, error) {
	ctx, span := o.tracer.Start(ctx, "saga.reject")
	defer span.End()
	span.SetAttributes(attribute.String("borrow_request_id", requestID))

	updated, err := withRetry(ctx, o.maxTries, o.retryInterval, func() (*BorrowRequest, error) {
		return o.borrowings.UpdateStatus(ctx, requestID, StatusPending, StatusRejected, adminNotes)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("✅ [SAGA] borrow request %s rejected", requestID)
	o.notifier.Send(updated.UserID, "request_rejected", "Your borrow request was rejected.")
	return updated, nil
}

// Cancel withdraws a pending request at the requester's initiative.
func (o *Orchestrator) Cancel(ctx context.Context, requestID string) (*BorrowRequest, error) {
	ctx, span := o.tracer.Start(ctx, "saga.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("borrow_request_id", requestID))

	updated, err := withRetry(ctx, o.maxTries, o.retryInterval, func() (*BorrowRequest, error) {
		return o.borrowings.UpdateStatus(ctx, requestID, StatusPending, StatusCancelled, nil)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("✅ [SAGA] borrow request %s cancelled", requestID)
	o.notifier.Send(updated.UserID, "request_cancelled", "Your borrow request was cancelled.")
	return updated, nil
}

// Read-side pass-throughs. The gateway adds nothing here beyond fault
// translation, which the clients already do.

func (o *Orchestrator) GetBorrowing(ctx context.Context, requestID string) (*BorrowRequest, error) {
	return o.borrowings.Get(ctx, requestID)
}

func (o *Orchestrator) ListBorrowingsByUser(ctx context.Context, userID string) ([]*BorrowRequest, error) {
	return o.borrowings.ListByUser(ctx, userID)
}

func (o *Orchestrator) ListBorrowings(ctx context.Context, statusFilter string) ([]*BorrowRequest, error) {
	return o.borrowings.ListAll(ctx, statusFilter)
}

func (o *Orchestrator) History(ctx context.Context, query HistoryQuery) ([]*BorrowRequest, error) {
	return o.borrowings.History(ctx, query)
}

func (o *Orchestrator) GetItem(ctx context.Context, itemID string) (*Item, error) {
	return o.items.GetItem(ctx, itemID)
}

func (o *Orchestrator) ListItems(ctx context.Context, categoryFilter string) ([]*Item, error) {
	return o.items.ListItems(ctx, categoryFilter)
}
