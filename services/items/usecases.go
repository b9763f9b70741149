package main

import (
	"context"
	"errors"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/openlend/lending-platform/internal/faults"
)

// ItemUseCase contains the business logic of the availability ledger.
type ItemUseCase struct {
	repository ItemRepository
}

// NewItemUseCase creates a new ItemUseCase.
func NewItemUseCase(repository ItemRepository) *ItemUseCase {
	return &ItemUseCase{repository: repository}
}

// storeFault wraps a storage error into the taxonomy. No driver error
// leaves this service unclassified.
func storeFault(err error, notFoundMsg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return faults.New(faults.KindNotFound, notFoundMsg)
	case errors.Is(err, context.DeadlineExceeded):
		return faults.New(faults.KindTimeout, "storage deadline exceeded")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return faults.New(faults.KindAlreadyExists, "item already exists")
	}
	log.Printf("❌ [ITEMS] storage error: %v", err)
	return faults.New(faults.KindInternal, "storage error")
}

// CreateItem registers a new item with its full quantity available.
func (uc *ItemUseCase) CreateItem(ctx context.Context, name, description, category, imageURL string, totalQuantity int) (*Item, error) {
	item, err := NewItem(name, description, category, imageURL, totalQuantity)
	if err != nil {
		return nil, err
	}
	if err := uc.repository.CreateItem(ctx, item); err != nil {
		return nil, storeFault(err, "item not found")
	}
	return item, nil
}

// GetItem fetches a single item.
func (uc *ItemUseCase) GetItem(ctx context.Context, itemID string) (*Item, error) {
	item, err := uc.repository.GetItem(ctx, itemID)
	if err != nil {
		return nil, storeFault(err, "item not found")
	}
	return item, nil
}

// ListItems lists items, optionally filtered by category.
func (uc *ItemUseCase) ListItems(ctx context.Context, categoryFilter string) ([]*Item, error) {
	items, err := uc.repository.ListItems(ctx, categoryFilter)
	if err != nil {
		return nil, storeFault(err, "item not found")
	}
	return items, nil
}

// UpdateItem applies a partial update under a row lock and re-validates
// the stock invariant before committing.
func (uc *ItemUseCase) UpdateItem(ctx context.Context, itemID string, patch ItemPatch) (*Item, error) {
	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, storeFault(err, "item not found")
	}
	defer tx.Rollback()

	item, err := uc.repository.GetItemForUpdate(ctx, tx, itemID)
	if err != nil {
		return nil, storeFault(err, "item not found")
	}

	if err := item.Apply(patch); err != nil {
		return nil, err
	}

	if err := uc.repository.UpdateItem(ctx, tx, item); err != nil {
		return nil, storeFault(err, "item not found")
	}
	if err := tx.Commit(); err != nil {
		return nil, storeFault(err, "item not found")
	}
	return item, nil
}

// DeleteItem removes an item.
func (uc *ItemUseCase) DeleteItem(ctx context.Context, itemID string) error {
	deleted, err := uc.repository.DeleteItem(ctx, itemID)
	if err != nil {
		return storeFault(err, "item not found")
	}
	if !deleted {
		return faults.New(faults.KindNotFound, "item not found")
	}
	return nil
}

// Reserve provisionally takes quantity out of the available stock. The
// movement is recorded against the borrow request in the same commit, so
// a replayed call returns the current state without moving stock twice,
// and a reserve that arrives after its own release is refused.
func (uc *ItemUseCase) Reserve(ctx context.Context, itemID, borrowRequestID string, quantity int) (*Item, error) {
	if quantity <= 0 {
		return nil, faults.New(faults.KindInvalidArgument, "quantity must be > 0")
	}
	if borrowRequestID == "" {
		return nil, faults.New(faults.KindInvalidArgument, "borrow_request_id is required")
	}

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, storeFault(err, "item not found")
	}
	defer tx.Rollback()

	item, err := uc.repository.GetItemForUpdate(ctx, tx, itemID)
	if err != nil {
		return nil, storeFault(err, "item not found")
	}

	released, err := uc.repository.GetMovementByRequestAndType(ctx, tx, borrowRequestID, MovementReleased)
	if err != nil {
		return nil, storeFault(err, "item not found")
	}
	if released {
		return nil, faults.Errorf(faults.KindConflict,
			"borrow request %s was already released, refusing a late reservation", borrowRequestID)
	}

	reserved, err := uc.repository.GetMovementByRequestAndType(ctx, tx, borrowRequestID, MovementReserved)
	if err != nil {
		return nil, storeFault(err, "item not found")
	}
	if reserved {
		log.Printf("ℹ️ [RESERVE] request %s already reserved, replay ignored", borrowRequestID)
		return item, nil
	}

	if item.AvailableQuantity < quantity {
		return nil, faults.Errorf(faults.KindInsufficientStock,
			"requested %d, available %d", quantity, item.AvailableQuantity)
	}

	item, err = uc.repository.Reserve(ctx, tx, itemID, borrowRequestID, quantity)
	if err != nil {
		return nil, storeFault(err, "item not found")
	}
	if err := tx.Commit(); err != nil {
		return nil, storeFault(err, "item not found")
	}
	log.Printf("➡️ [RESERVE] item=%s qty=%d request=%s available=%d",
		item.ID, quantity, borrowRequestID, item.AvailableQuantity)
	return item, nil
}

// Release puts quantity back into the available stock, clamped at the
// total. Only a recorded reservation is undone: when no reserve movement
// exists for the borrow request the stock was never taken, so the counter
// stays put and the released marker fences out a reserve still in flight.
func (uc *ItemUseCase) Release(ctx context.Context, itemID, borrowRequestID string, quantity int) (*Item, error) {
	if quantity <= 0 {
		return nil, faults.New(faults.KindInvalidArgument, "quantity must be > 0")
	}
	if borrowRequestID == "" {
		return nil, faults.New(faults.KindInvalidArgument, "borrow_request_id is required")
	}

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, storeFault(err, "item not found")
	}
	defer tx.Rollback()

	item, err := uc.repository.GetItemForUpdate(ctx, tx, itemID)
	if err != nil {
		return nil, storeFault(err, "item not found")
	}

	released, err := uc.repository.GetMovementByRequestAndType(ctx, tx, borrowRequestID, MovementReleased)
	if err != nil {
		return nil, storeFault(err, "item not found")
	}
	if released {
		log.Printf("ℹ️ [RELEASE] request %s already released, replay ignored", borrowRequestID)
		return item, nil
	}

	reserved, err := uc.repository.GetMovementByRequestAndType(ctx, tx, borrowRequestID, MovementReserved)
	if err != nil {
		return nil, storeFault(err, "item not found")
	}
	if !reserved {
		if err := uc.repository.RecordMovement(ctx, tx, itemID, borrowRequestID, MovementReleased, quantity); err != nil {
			return nil, storeFault(err, "item not found")
		}
		if err := tx.Commit(); err != nil {
			return nil, storeFault(err, "item not found")
		}
		log.Printf("ℹ️ [RELEASE] no reservation recorded for request %s, stock untouched", borrowRequestID)
		return item, nil
	}

	item, err = uc.repository.Release(ctx, tx, itemID, borrowRequestID, quantity)
	if err != nil {
		return nil, storeFault(err, "item not found")
	}
	if err := tx.Commit(); err != nil {
		return nil, storeFault(err, "item not found")
	}
	log.Printf("↩️ [RELEASE] item=%s qty=%d request=%s available=%d",
		item.ID, quantity, borrowRequestID, item.AvailableQuantity)
	return item, nil
}
