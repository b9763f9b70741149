package main

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HistoryFilter narrows GetHistory results.
type HistoryFilter struct {
	UserID        string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// BorrowRepository defines the storage operations of the state machine.
type BorrowRepository interface {
	Create(ctx context.Context, request *BorrowRequest) error
	Get(ctx context.Context, requestID string) (*BorrowRequest, error)

	// UpdateStatus flips the status only when the stored value still
	// matches expected. pgx.ErrNoRows signals the guard did not match.
	UpdateStatus(ctx context.Context, requestID string, expected, newStatus Status, adminNotes *string) (*BorrowRequest, error)

	ListByUser(ctx context.Context, userID string) ([]*BorrowRequest, error)
	ListAll(ctx context.Context, statusFilter Status) ([]*BorrowRequest, error)
	History(ctx context.Context, filter HistoryFilter) ([]*BorrowRequest, error)

	// SweepLate persists lateness for approved requests past their end
	// date, using the same guarded update as any other transition.
	SweepLate(ctx context.Context, now time.Time) (int64, error)
}

// PostgresBorrowRepository implements BorrowRepository using PostgreSQL.
type PostgresBorrowRepository struct {
	db *pgxpool.Pool
}

// NewBorrowRepository creates a new PostgresBorrowRepository.
func NewBorrowRepository(db *pgxpool.Pool) BorrowRepository {
	return &PostgresBorrowRepository{db: db}
}

const borrowColumns = `id, user_id, item_id, quantity, start_date, end_date, notes, admin_notes, status, created_at, updated_at`

func scanBorrow(row pgx.Row) (*BorrowRequest, error) {
	var b BorrowRequest
	err := row.Scan(
		&b.ID,
		&b.UserID,
		&b.ItemID,
		&b.Quantity,
		&b.StartDate,
		&b.EndDate,
		&b.Notes,
		&b.AdminNotes,
		&b.Status,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *PostgresBorrowRepository) collect(ctx context.Context, query string, args ...any) ([]*BorrowRequest, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := []*BorrowRequest{}
	for rows.Next() {
		b, err := scanBorrow(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, b)
	}
	return requests, rows.Err()
}

// Create inserts a new borrow request.
func (r *PostgresBorrowRepository) Create(ctx context.Context, request *BorrowRequest) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO borrow_requests (id, user_id, item_id, quantity, start_date, end_date, notes, admin_notes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, request.ID, request.UserID, request.ItemID, request.Quantity,
		request.StartDate, request.EndDate, request.Notes, request.AdminNotes,
		request.Status, request.CreatedAt, request.UpdatedAt)
	return err
}

// Get fetches one request by id.
func (r *PostgresBorrowRepository) Get(ctx context.Context, requestID string) (*BorrowRequest, error) {
	row := r.db.QueryRow(ctx, `SELECT `+borrowColumns+` FROM borrow_requests WHERE id = $1`, requestID)
	return scanBorrow(row)
}

// UpdateStatus performs the optimistic-concurrency status flip.
func (r *PostgresBorrowRepository) UpdateStatus(ctx context.Context, requestID string, expected, newStatus Status, adminNotes *string) (*BorrowRequest, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE borrow_requests
		SET status = $3,
		    admin_notes = COALESCE($4, admin_notes),
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+borrowColumns,
		requestID, expected, newStatus, adminNotes)
	return scanBorrow(row)
}

// ListByUser fetches all requests of one user, newest first.
func (r *PostgresBorrowRepository) ListByUser(ctx context.Context, userID string) ([]*BorrowRequest, error) {
	return r.collect(ctx, `
		SELECT `+borrowColumns+` FROM borrow_requests
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
}

// ListAll fetches all requests, optionally filtered by status, newest first.
func (r *PostgresBorrowRepository) ListAll(ctx context.Context, statusFilter Status) ([]*BorrowRequest, error) {
	if statusFilter == "" {
		return r.collect(ctx, `SELECT `+borrowColumns+` FROM borrow_requests ORDER BY created_at DESC`)
	}
	return r.collect(ctx, `
		SELECT `+borrowColumns+` FROM borrow_requests
		WHERE status = $1
		ORDER BY created_at DESC
	`, statusFilter)
}

// History fetches settled requests ordered by last update.
func (r *PostgresBorrowRepository) History(ctx context.Context, filter HistoryFilter) ([]*BorrowRequest, error) {
	query := `
		SELECT ` + borrowColumns + ` FROM borrow_requests
		WHERE status = ANY($1)`
	args := []any{[]string{string(StatusReturned), string(StatusRejected), string(StatusLate), string(StatusCancelled)}}

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += ` AND user_id = $` + strconv.Itoa(len(args))
	}
	if filter.CreatedAfter != nil {
		args = append(args, *filter.CreatedAfter)
		query += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	if filter.CreatedBefore != nil {
		args = append(args, *filter.CreatedBefore)
		query += ` AND created_at <= $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY updated_at DESC`

	return r.collect(ctx, query, args...)
}

// SweepLate marks overdue approved requests as late.
func (r *PostgresBorrowRepository) SweepLate(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE borrow_requests
		SET status = $1, updated_at = NOW()
		WHERE status = $2 AND end_date < $3
	`, StatusLate, StatusApproved, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
