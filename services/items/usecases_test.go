package main

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openlend/lending-platform/internal/faults"
)

// MockItemRepository simulates the storage layer.
type MockItemRepository struct {
	mock.Mock
}

func (m *MockItemRepository) CreateItem(ctx context.Context, item *Item) error {
	return m.Called(ctx, item).Error(0)
}

func (m *MockItemRepository) GetItem(ctx context.Context, itemID string) (*Item, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Item), args.Error(1)
}

func (m *MockItemRepository) ListItems(ctx context.Context, categoryFilter string) ([]*Item, error) {
	args := m.Called(ctx, categoryFilter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Item), args.Error(1)
}

func (m *MockItemRepository) DeleteItem(ctx context.Context, itemID string) (bool, error) {
	args := m.Called(ctx, itemID)
	return args.Bool(0), args.Error(1)
}

func (m *MockItemRepository) Reserve(ctx context.Context, tx Tx, itemID, borrowRequestID string, quantity int) (*Item, error) {
	args := m.Called(ctx, tx, itemID, borrowRequestID, quantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Item), args.Error(1)
}

func (m *MockItemRepository) Release(ctx context.Context, tx Tx, itemID, borrowRequestID string, quantity int) (*Item, error) {
	args := m.Called(ctx, tx, itemID, borrowRequestID, quantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Item), args.Error(1)
}

func (m *MockItemRepository) GetMovementByRequestAndType(ctx context.Context, tx Tx, borrowRequestID, movementType string) (bool, error) {
	args := m.Called(ctx, tx, borrowRequestID, movementType)
	return args.Bool(0), args.Error(1)
}

func (m *MockItemRepository) RecordMovement(ctx context.Context, tx Tx, itemID, borrowRequestID, movementType string, quantity int) error {
	return m.Called(ctx, tx, itemID, borrowRequestID, movementType, quantity).Error(0)
}

func (m *MockItemRepository) BeginTx(ctx context.Context) (Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Tx), args.Error(1)
}

func (m *MockItemRepository) GetItemForUpdate(ctx context.Context, tx Tx, itemID string) (*Item, error) {
	args := m.Called(ctx, tx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Item), args.Error(1)
}

func (m *MockItemRepository) UpdateItem(ctx context.Context, tx Tx, item *Item) error {
	return m.Called(ctx, tx, item).Error(0)
}

// MockTx simulates a transaction handle.
type MockTx struct {
	mock.Mock
}

func (m *MockTx) Commit() error   { return m.Called().Error(0) }
func (m *MockTx) Rollback() error { return m.Called().Error(0) }

func testItem(total, available int) *Item {
	return &Item{
		ID:                "item-1",
		Name:              "Projector",
		TotalQuantity:     total,
		AvailableQuantity: available,
	}
}

// stockTx wires the usual transaction expectations for a stock call.
func stockTx(repo *MockItemRepository) *MockTx {
	tx := new(MockTx)
	repo.On("BeginTx", mock.Anything).Return(tx, nil)
	tx.On("Commit").Return(nil)
	tx.On("Rollback").Return(nil)
	return tx
}

func TestReserveSuccess(t *testing.T) {
	repo := new(MockItemRepository)
	uc := NewItemUseCase(repo)
	tx := stockTx(repo)

	repo.On("GetItemForUpdate", mock.Anything, tx, "item-1").Return(testItem(5, 5), nil)
	repo.On("GetMovementByRequestAndType", mock.Anything, tx, "req-1", MovementReleased).Return(false, nil)
	repo.On("GetMovementByRequestAndType", mock.Anything, tx, "req-1", MovementReserved).Return(false, nil)
	repo.On("Reserve", mock.Anything, tx, "item-1", "req-1", 3).Return(testItem(5, 2), nil)

	item, err := uc.Reserve(context.Background(), "item-1", "req-1", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, item.AvailableQuantity)
	repo.AssertExpectations(t)
	tx.AssertCalled(t, "Commit")
}

func TestReserveReplaySkipsStock(t *testing.T) {
	repo := new(MockItemRepository)
	uc := NewItemUseCase(repo)
	tx := stockTx(repo)

	// The movement for this request already landed, so the replay returns
	// the current state without touching the counter.
	repo.On("GetItemForUpdate", mock.Anything, tx, "item-1").Return(testItem(5, 2), nil)
	repo.On("GetMovementByRequestAndType", mock.Anything, tx, "req-1", MovementReleased).Return(false, nil)
	repo.On("GetMovementByRequestAndType", mock.Anything, tx, "req-1", MovementReserved).Return(true, nil)

	item, err := uc.Reserve(context.Background(), "item-1", "req-1", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, item.AvailableQuantity)
	repo.AssertNotCalled(t, "Reserve",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReserveAfterReleaseConflicts(t *testing.T) {
	repo := new(MockItemRepository)
	uc := NewItemUseCase(repo)
	tx := stockTx(repo)

	// A release already settled this request; a reserve that shows up
	// afterwards must not take stock the request no longer holds.
	repo.On("GetItemForUpdate", mock.Anything, tx, "item-1").Return(testItem(5, 5), nil)
	repo.On("GetMovementByRequestAndType", mock.Anything, tx, "req-1", MovementReleased).Return(true, nil)

	_, err := uc.Reserve(context.Background(), "item-1", "req-1", 3)
	assert.Equal(t, faults.KindConflict, faults.KindOf(err))
	repo.AssertNotCalled(t, "Reserve",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReserveInsufficientStock(t *testing.T) {
	repo := new(MockItemRepository)
	uc := NewItemUseCase(repo)
	tx := stockTx(repo)

	repo.On("GetItemForUpdate", mock.Anything, tx, "item-1").Return(testItem(5, 2), nil)
	repo.On("GetMovementByRequestAndType", mock.Anything, tx, "req-1", mock.Anything).Return(false, nil)

	_, err := uc.Reserve(context.Background(), "item-1", "req-1", 5)
	assert.Equal(t, faults.KindInsufficientStock, faults.KindOf(err))
	repo.AssertNotCalled(t, "Reserve",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReserveItemNotFound(t *testing.T) {
	repo := new(MockItemRepository)
	uc := NewItemUseCase(repo)
	tx := stockTx(repo)

	repo.On("GetItemForUpdate", mock.Anything, tx, "missing").Return(nil, pgx.ErrNoRows)

	_, err := uc.Reserve(context.Background(), "missing", "req-1", 1)
	assert.Equal(t, faults.KindNotFound, faults.KindOf(err))
}

func TestReserveRejectsBadArguments(t *testing.T) {
	uc := NewItemUseCase(new(MockItemRepository))

	_, err := uc.Reserve(context.Background(), "item-1", "req-1", 0)
	assert.Equal(t, faults.KindInvalidArgument, faults.KindOf(err))

	_, err = uc.Reserve(context.Background(), "item-1", "req-1", -2)
	assert.Equal(t, faults.KindInvalidArgument, faults.KindOf(err))

	_, err = uc.Reserve(context.Background(), "item-1", "", 2)
	assert.Equal(t, faults.KindInvalidArgument, faults.KindOf(err))
}

func TestReleaseRestoresReservedStock(t *testing.T) {
	repo := new(MockItemRepository)
	uc := NewItemUseCase(repo)
	tx := stockTx(repo)

	repo.On("GetItemForUpdate", mock.Anything, tx, "item-1").Return(testItem(5, 3), nil)
	repo.On("GetMovementByRequestAndType", mock.Anything, tx, "req-1", MovementReleased).Return(false, nil)
	repo.On("GetMovementByRequestAndType", mock.Anything, tx, "req-1", MovementReserved).Return(true, nil)
	repo.On("Release", mock.Anything, tx, "item-1", "req-1", 2).Return(testItem(5, 5), nil)

	item, err := uc.Release(context.Background(), "item-1", "req-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 5, item.AvailableQuantity)
	repo.AssertExpectations(t)
}

func TestReleaseWithoutReservationLeavesStock(t *testing.T) {
	repo := new(MockItemRepository)
	uc := NewItemUseCase(repo)
	tx := stockTx(repo)

	// No reserve ever landed for this request: six of the ten units are
	// out with other borrowers, and releasing must not resurrect them.
	repo.On("GetItemForUpdate", mock.Anything, tx, "item-1").Return(testItem(10, 4), nil)
	repo.On("GetMovementByRequestAndType", mock.Anything, tx, "req-1", mock.Anything).Return(false, nil)
	repo.On("RecordMovement", mock.Anything, tx, "item-1", "req-1", MovementReleased, 2).Return(nil)

	item, err := uc.Release(context.Background(), "item-1", "req-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 4, item.AvailableQuantity)
	repo.AssertNotCalled(t, "Release",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	tx.AssertCalled(t, "Commit")
}

func TestReleaseReplayIgnored(t *testing.T) {
	repo := new(MockItemRepository)
	uc := NewItemUseCase(repo)
	tx := stockTx(repo)

	repo.On("GetItemForUpdate", mock.Anything, tx, "item-1").Return(testItem(5, 5), nil)
	repo.On("GetMovementByRequestAndType", mock.Anything, tx, "req-1", MovementReleased).Return(true, nil)

	item, err := uc.Release(context.Background(), "item-1", "req-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 5, item.AvailableQuantity)
	repo.AssertNotCalled(t, "Release",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReleaseNotFound(t *testing.T) {
	repo := new(MockItemRepository)
	uc := NewItemUseCase(repo)
	tx := stockTx(repo)

	repo.On("GetItemForUpdate", mock.Anything, tx, "missing").Return(nil, pgx.ErrNoRows)

	_, err := uc.Release(context.Background(), "missing", "req-1", 2)
	assert.Equal(t, faults.KindNotFound, faults.KindOf(err))
}

func TestUpdateItemAppliesPatchUnderLock(t *testing.T) {
	repo := new(MockItemRepository)
	tx := new(MockTx)
	uc := NewItemUseCase(repo)

	repo.On("BeginTx", mock.Anything).Return(tx, nil)
	repo.On("GetItemForUpdate", mock.Anything, tx, "item-1").Return(testItem(5, 5), nil)
	repo.On("UpdateItem", mock.Anything, tx, mock.MatchedBy(func(item *Item) bool {
		return item.Category == "av-equipment" && item.TotalQuantity == 5
	})).Return(nil)
	tx.On("Commit").Return(nil)
	tx.On("Rollback").Return(nil)

	item, err := uc.UpdateItem(context.Background(), "item-1", ItemPatch{Category: strPtr("av-equipment")})
	require.NoError(t, err)
	assert.Equal(t, "av-equipment", item.Category)
	repo.AssertExpectations(t)
	tx.AssertCalled(t, "Commit")
}

func TestUpdateItemRejectsInvariantViolation(t *testing.T) {
	repo := new(MockItemRepository)
	tx := new(MockTx)
	uc := NewItemUseCase(repo)

	repo.On("BeginTx", mock.Anything).Return(tx, nil)
	repo.On("GetItemForUpdate", mock.Anything, tx, "item-1").Return(testItem(5, 3), nil)
	tx.On("Rollback").Return(nil)

	_, err := uc.UpdateItem(context.Background(), "item-1", ItemPatch{AvailableQuantity: intPtr(9)})
	assert.Equal(t, faults.KindInvalidArgument, faults.KindOf(err))
	repo.AssertNotCalled(t, "UpdateItem", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteItemNotFound(t *testing.T) {
	repo := new(MockItemRepository)
	uc := NewItemUseCase(repo)

	repo.On("DeleteItem", mock.Anything, "missing").Return(false, nil)

	err := uc.DeleteItem(context.Background(), "missing")
	assert.Equal(t, faults.KindNotFound, faults.KindOf(err))
}
