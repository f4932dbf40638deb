/*
audit.go - Batch lifecycle log

PURPOSE:
  Records the lifecycle of every distribution run, keyed by its batch ID.
  This is both the idempotency mechanism (a terminal record short-circuits
  replays) and the audit surface admin tooling queries.

STATE MACHINE:
  processing -> completed
  processing -> failed
  Both terminal. No other transitions exist; terminal records are
  immutable and a batch ID is never reprocessed once terminal.

CRASH RECOVERY:
  A crash mid-distribution leaves a record stuck in processing. ReapStale
  re-finalizes records older than a grace period as failed, so callers
  can retry with the same batch ID.

SEE ALSO:
  - store.go: AuditStore persistence contract
  - api/scheduler.go: Periodic ReapStale driver
*/
package referral

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AUDIT LOG - Lifecycle operations over AuditStore
// =============================================================================

type AuditLog struct {
	Store AuditStore
}

func NewAuditLog(store AuditStore) *AuditLog {
	return &AuditLog{Store: store}
}

// Begin creates the processing record for a new batch.
// ErrDuplicateBatch if the batch ID already exists.
func (a *AuditLog) Begin(ctx context.Context, batchID BatchID, sourceUserID UserID, currency Currency, earned decimal.Decimal) error {
	return a.Store.CreateBatch(ctx, BatchAuditRecord{
		BatchID:          batchID,
		SourceUserID:     sourceUserID,
		Currency:         currency,
		EarnedAmount:     earned,
		Status:           BatchProcessing,
		TotalDistributed: decimal.Zero,
		CreatedAt:        time.Now().UTC(),
	})
}

// Complete finalizes a batch as completed with its totals.
func (a *AuditLog) Complete(ctx context.Context, batchID BatchID, levels, beneficiaries int, total decimal.Decimal) error {
	now := time.Now().UTC()
	return a.Store.FinalizeBatch(ctx, BatchAuditRecord{
		BatchID:          batchID,
		Status:           BatchCompleted,
		LevelsProcessed:  levels,
		BeneficiaryCount: beneficiaries,
		TotalDistributed: total,
		CompletedAt:      &now,
	})
}

// Fail finalizes a batch as failed with the cause.
func (a *AuditLog) Fail(ctx context.Context, batchID BatchID, cause error) error {
	now := time.Now().UTC()
	return a.Store.FinalizeBatch(ctx, BatchAuditRecord{
		BatchID:          batchID,
		Status:           BatchFailed,
		TotalDistributed: decimal.Zero,
		ErrorMessage:     cause.Error(),
		CompletedAt:      &now,
	})
}

// Get returns the record for a batch ID.
func (a *AuditLog) Get(ctx context.Context, batchID BatchID) (BatchAuditRecord, error) {
	return a.Store.GetBatch(ctx, batchID)
}

// History returns a source user's distribution runs, newest first.
func (a *AuditLog) History(ctx context.Context, id UserID, limit int) ([]BatchAuditRecord, error) {
	return a.Store.BatchesBySource(ctx, id, limit)
}

// ReapStale fails processing records older than the grace period and
// returns how many were reaped. Safe to run concurrently with live
// distributions: FinalizeBatch refuses records that went terminal in
// the meantime.
func (a *AuditLog) ReapStale(ctx context.Context, grace time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-grace)
	stale, err := a.Store.StaleBatches(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, rec := range stale {
		err := a.Fail(ctx, rec.BatchID, fmt.Errorf("stale after %v in processing", grace))
		if err != nil {
			// Already finalized by a racing distribution; skip.
			continue
		}
		reaped++
	}
	return reaped, nil
}
