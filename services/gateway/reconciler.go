package main

import (
	"context"
	"log"
	"time"

	"github.com/openlend/lending-platform/internal/faults"
)

// Reconciler drains the reconciliation queue. Every queued action points
// backward (release only), and the ledger only undoes reservations it
// recorded, so draining the queue restores exactly the stock that was
// taken. Entries are retried until the ledger accepts them or the item
// turns out to be gone.
type Reconciler struct {
	store     SagaStore
	items     ItemsAPI
	interval  time.Duration
	batchSize int
}

// NewReconciler creates a new Reconciler.
func NewReconciler(store SagaStore, items ItemsAPI, interval time.Duration) *Reconciler {
	return &Reconciler{store: store, items: items, interval: interval, batchSize: 50}
}

// Run sweeps the queue on a fixed ticker until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Printf("⏳ [RECONCILER] sweeping every %s", r.interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("ℹ️ [RECONCILER] stopped")
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				log.Printf("❌ [RECONCILER] sweep failed: %v", err)
			}
		}
	}
}

// Sweep processes one batch of unresolved entries.
func (r *Reconciler) Sweep(ctx context.Context) error {
	entries, err := r.store.ListUnresolved(ctx, r.batchSize)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		r.resolve(ctx, entry)
	}
	return nil
}

// resolve applies a single entry. Failures just bump the attempt counter;
// the entry comes back on the next sweep.
func (r *Reconciler) resolve(ctx context.Context, entry *Reconciliation) {
	if entry.Action != ActionRelease {
		log.Printf("❌ [RECONCILER] entry %s has unknown action %q, leaving it queued", entry.ID, entry.Action)
		return
	}

	_, err := r.items.Release(ctx, entry.ItemID, entry.Quantity, entry.BorrowRequestID)
	switch {
	case err == nil:
	case faults.IsKind(err, faults.KindNotFound):
		// The item no longer exists, so there is no ledger to restore.
		log.Printf("ℹ️ [RECONCILER] item %s gone, settling entry %s", entry.ItemID, entry.ID)
	default:
		log.Printf("⏳ [RECONCILER] release for request %s failed (attempt %d): %v",
			entry.BorrowRequestID, entry.Attempts+1, err)
		if err := r.store.RecordAttempt(ctx, entry.ID, err.Error()); err != nil {
			log.Printf("❌ [RECONCILER] recording attempt for entry %s failed: %v", entry.ID, err)
		}
		return
	}

	if err := r.store.MarkResolved(ctx, entry.ID); err != nil {
		log.Printf("❌ [RECONCILER] settling entry %s failed: %v", entry.ID, err)
		return
	}
	log.Printf("✅ [RECONCILER] released %d x item %s for request %s", entry.Quantity, entry.ItemID, entry.BorrowRequestID)
}
