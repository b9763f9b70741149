package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Saga step names. One pair per borrow request lifetime: the reserve taken
// at approval and the release that undoes or settles it.
const (
	StepReserve = "reserve"
	StepRelease = "release"
)

// Reconciliation action names.
const ActionRelease = "release"

// Reconciliation is a ledger mutation that could not be confirmed inline
// and is retried asynchronously until it converges.
type Reconciliation struct {
	ID              string     `json:"id"`
	BorrowRequestID string     `json:"borrow_request_id"`
	ItemID          string     `json:"item_id"`
	Quantity        int        `json:"quantity"`
	Action          string     `json:"action"`
	Attempts        int        `json:"attempts"`
	LastError       string     `json:"last_error"`
	CreatedAt       time.Time  `json:"created_at"`
	ResolvedAt      *time.Time `json:"resolved_at"`
}

// SagaStore persists the gateway's saga bookkeeping: the append-only step
// log that makes ledger mutations replay-safe, and the reconciliation queue.
type SagaStore interface {
	// RecordStep appends (borrowRequestID, step) if absent and reports
	// whether this call inserted it. Rows are never updated or deleted.
	RecordStep(ctx context.Context, borrowRequestID, step string) (bool, error)
	StepApplied(ctx context.Context, borrowRequestID, step string) (bool, error)

	Enqueue(ctx context.Context, borrowRequestID, itemID string, quantity int, action, reason string) error
	ListUnresolved(ctx context.Context, limit int) ([]*Reconciliation, error)
	MarkResolved(ctx context.Context, reconciliationID string) error
	RecordAttempt(ctx context.Context, reconciliationID, lastError string) error
}

// PostgresSagaStore implements SagaStore using PostgreSQL.
type PostgresSagaStore struct {
	db *pgxpool.Pool
}

// NewSagaStore creates a new PostgresSagaStore.
func NewSagaStore(db *pgxpool.Pool) SagaStore {
	return &PostgresSagaStore{db: db}
}

// RecordStep appends a step marker; ON CONFLICT keeps the log append-only.
func (s *PostgresSagaStore) RecordStep(ctx context.Context, borrowRequestID, step string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO saga_steps (borrow_request_id, step, applied_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (borrow_request_id, step) DO NOTHING
	`, borrowRequestID, step)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// StepApplied reports whether the step marker exists.
func (s *PostgresSagaStore) StepApplied(ctx context.Context, borrowRequestID, step string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM saga_steps WHERE borrow_request_id = $1 AND step = $2)
	`, borrowRequestID, step).Scan(&exists)
	return exists, err
}

// Enqueue adds a reconciliation entry for asynchronous retry.
func (s *PostgresSagaStore) Enqueue(ctx context.Context, borrowRequestID, itemID string, quantity int, action, reason string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO reconciliations (id, borrow_request_id, item_id, quantity, action, attempts, last_error, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, NOW())
	`, uuid.New().String(), borrowRequestID, itemID, quantity, action, reason)
	return err
}

// ListUnresolved fetches pending reconciliations, oldest first.
func (s *PostgresSagaStore) ListUnresolved(ctx context.Context, limit int) ([]*Reconciliation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, borrow_request_id, item_id, quantity, action, attempts, last_error, created_at, resolved_at
		FROM reconciliations
		WHERE resolved_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*Reconciliation{}
	for rows.Next() {
		var r Reconciliation
		if err := rows.Scan(&r.ID, &r.BorrowRequestID, &r.ItemID, &r.Quantity, &r.Action,
			&r.Attempts, &r.LastError, &r.CreatedAt, &r.ResolvedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &r)
	}
	return entries, rows.Err()
}

// MarkResolved settles an entry; the guard keeps resolution single-shot.
func (s *PostgresSagaStore) MarkResolved(ctx context.Context, reconciliationID string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE reconciliations SET resolved_at = NOW()
		WHERE id = $1 AND resolved_at IS NULL
	`, reconciliationID)
	return err
}

// RecordAttempt bumps the retry counter after a failed attempt.
func (s *PostgresSagaStore) RecordAttempt(ctx context.Context, reconciliationID, lastError string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE reconciliations SET attempts = attempts + 1, last_error = $2
		WHERE id = $1
	`, reconciliationID, lastError)
	return err
}
