package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ItemRepository defines the storage operations of the availability ledger.
type ItemRepository interface {
	CreateItem(ctx context.Context, item *Item) error
	GetItem(ctx context.Context, itemID string) (*Item, error)
	ListItems(ctx context.Context, categoryFilter string) ([]*Item, error)
	DeleteItem(ctx context.Context, itemID string) (bool, error)

	// Reserve and Release run inside the caller's transaction, which holds
	// the item row lock. Each one moves the stock and records the movement
	// against the borrow request in the same commit.
	Reserve(ctx context.Context, tx Tx, itemID, borrowRequestID string, quantity int) (*Item, error)
	Release(ctx context.Context, tx Tx, itemID, borrowRequestID string, quantity int) (*Item, error)
	GetMovementByRequestAndType(ctx context.Context, tx Tx, borrowRequestID, movementType string) (bool, error)
	RecordMovement(ctx context.Context, tx Tx, itemID, borrowRequestID, movementType string, quantity int) error

	BeginTx(ctx context.Context) (Tx, error)
	GetItemForUpdate(ctx context.Context, tx Tx, itemID string) (*Item, error)
	UpdateItem(ctx context.Context, tx Tx, item *Item) error
}

// Movement types recorded in the stock ledger.
const (
	MovementReserved = "reserved"
	MovementReleased = "released"
)

// Tx abstracts a database transaction.
type Tx interface {
	Commit() error
	Rollback() error
}

// PostgresItemRepository implements ItemRepository using PostgreSQL.
type PostgresItemRepository struct {
	db *pgxpool.Pool
}

// NewItemRepository creates a new PostgresItemRepository.
func NewItemRepository(db *pgxpool.Pool) ItemRepository {
	return &PostgresItemRepository{db: db}
}

const itemColumns = `id, name, description, category, image_url, total_quantity, available_quantity, created_at, updated_at`

func scanItem(row pgx.Row) (*Item, error) {
	var item Item
	err := row.Scan(
		&item.ID,
		&item.Name,
		&item.Description,
		&item.Category,
		&item.ImageURL,
		&item.TotalQuantity,
		&item.AvailableQuantity,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateItem inserts a new item row.
func (r *PostgresItemRepository) CreateItem(ctx context.Context, item *Item) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO items (id, name, description, category, image_url, total_quantity, available_quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, item.ID, item.Name, item.Description, item.Category, item.ImageURL,
		item.TotalQuantity, item.AvailableQuantity, item.CreatedAt, item.UpdatedAt)
	return err
}

// GetItem fetches one item by id.
func (r *PostgresItemRepository) GetItem(ctx context.Context, itemID string) (*Item, error) {
	row := r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, itemID)
	return scanItem(row)
}

// ListItems fetches items ordered by name, optionally filtered by category.
func (r *PostgresItemRepository) ListItems(ctx context.Context, categoryFilter string) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items`
	args := []any{}
	if categoryFilter != "" {
		query += ` WHERE category ILIKE '%' || $1 || '%'`
		args = append(args, categoryFilter)
	}
	query += ` ORDER BY name ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DeleteItem removes an item and reports whether a row existed.
func (r *PostgresItemRepository) DeleteItem(ctx context.Context, itemID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM items WHERE id = $1`, itemID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Reserve decrements available_quantity and records the reserved movement
// in one commit. The caller holds the row lock and has already checked
// the stock, so the update is unconditional here.
func (r *PostgresItemRepository) Reserve(ctx context.Context, tx Tx, itemID, borrowRequestID string, quantity int) (*Item, error) {
	pgTx := tx.(*PostgresTx).tx
	row := pgTx.QueryRow(ctx, `
		UPDATE items
		SET available_quantity = available_quantity - $2,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+itemColumns,
		itemID, quantity)
	item, err := scanItem(row)
	if err != nil {
		return nil, err
	}
	if err := r.RecordMovement(ctx, tx, itemID, borrowRequestID, MovementReserved, quantity); err != nil {
		return nil, err
	}
	return item, nil
}

// Release increments available_quantity, clamped at total_quantity, and
// records the released movement in the same commit.
func (r *PostgresItemRepository) Release(ctx context.Context, tx Tx, itemID, borrowRequestID string, quantity int) (*Item, error) {
	pgTx := tx.(*PostgresTx).tx
	row := pgTx.QueryRow(ctx, `
		UPDATE items
		SET available_quantity = LEAST(available_quantity + $2, total_quantity),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+itemColumns,
		itemID, quantity)
	item, err := scanItem(row)
	if err != nil {
		return nil, err
	}
	if err := r.RecordMovement(ctx, tx, itemID, borrowRequestID, MovementReleased, quantity); err != nil {
		return nil, err
	}
	return item, nil
}

// GetMovementByRequestAndType reports whether a movement of the given type
// was already applied for the borrow request.
func (r *PostgresItemRepository) GetMovementByRequestAndType(ctx context.Context, tx Tx, borrowRequestID, movementType string) (bool, error) {
	pgTx := tx.(*PostgresTx).tx
	var exists bool
	err := pgTx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM stock_movements
			WHERE borrow_request_id = $1 AND movement_type = $2
		)
	`, borrowRequestID, movementType).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// RecordMovement inserts a movement row inside the caller's transaction.
func (r *PostgresItemRepository) RecordMovement(ctx context.Context, tx Tx, itemID, borrowRequestID, movementType string, quantity int) error {
	pgTx := tx.(*PostgresTx).tx
	_, err := pgTx.Exec(ctx, `
		INSERT INTO stock_movements (id, item_id, borrow_request_id, movement_type, quantity)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New().String(), itemID, borrowRequestID, movementType, quantity)
	return err
}

// PostgresTx implements the Tx interface.
type PostgresTx struct {
	tx pgx.Tx
}

func (t *PostgresTx) Commit() error {
	return t.tx.Commit(context.Background())
}

func (t *PostgresTx) Rollback() error {
	return t.tx.Rollback(context.Background())
}

// BeginTx starts a new transaction.
func (r *PostgresItemRepository) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &PostgresTx{tx: tx}, nil
}

// GetItemForUpdate fetches an item holding a row lock (FOR UPDATE) so a
// patch can re-validate the stock invariant without racing Reserve/Release.
func (r *PostgresItemRepository) GetItemForUpdate(ctx context.Context, tx Tx, itemID string) (*Item, error) {
	pgTx := tx.(*PostgresTx).tx
	row := pgTx.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1 FOR UPDATE`, itemID)
	return scanItem(row)
}

// UpdateItem writes the full patched row inside the caller's transaction.
func (r *PostgresItemRepository) UpdateItem(ctx context.Context, tx Tx, item *Item) error {
	pgTx := tx.(*PostgresTx).tx
	tag, err := pgTx.Exec(ctx, `
		UPDATE items
		SET name = $2, description = $3, category = $4, image_url = $5,
		    total_quantity = $6, available_quantity = $7, updated_at = NOW()
		WHERE id = $1
	`, item.ID, item.Name, item.Description, item.Category, item.ImageURL,
		item.TotalQuantity, item.AvailableQuantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("item %s vanished during update", item.ID)
	}
	return nil
}
