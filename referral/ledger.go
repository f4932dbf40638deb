/*
ledger.go - Append-only commission ledger

PURPOSE:
  The Ledger is the immutable record of every commission credit. Each
  entry carries level, percentage, source user, source amount, and batch
  ID, so an external auditor can recompute the expected amount as
  sourceAmount × percentage / 100 from the row alone.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, entries cannot be modified
  3. SELF-DESCRIBING: Level and batch ID are persisted at write time;
     nothing is ever inferred from amounts after the fact
  4. IDEMPOTENT: (batch, beneficiary, level) is unique

SEE ALSO:
  - store.go: LedgerStore persistence contract
  - engine.go: The only writer
*/
package referral

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER - Writer and read surface over LedgerStore
// =============================================================================

type Ledger struct {
	Store LedgerStore
}

func NewLedger(store LedgerStore) *Ledger {
	return &Ledger{Store: store}
}

// Append writes one commission credit entry. The entry ID is generated
// here; CreatedAt defaults to now.
func (l *Ledger) Append(ctx context.Context, e LedgerEntry) error {
	if e.ID == "" {
		e.ID = EntryID(uuid.NewString())
	}
	if e.Kind == "" {
		e.Kind = KindReferralReward
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return l.Store.AppendEntry(ctx, e)
}

// History returns a beneficiary's credits, newest first. This is the
// read surface the wallet UI renders transaction history from.
func (l *Ledger) History(ctx context.Context, id UserID, limit int) ([]LedgerEntry, error) {
	return l.Store.EntriesByBeneficiary(ctx, id, limit)
}

// BatchEntries returns every entry written for one batch, for audit.
func (l *Ledger) BatchEntries(ctx context.Context, batchID BatchID) ([]LedgerEntry, error) {
	return l.Store.EntriesByBatch(ctx, batchID)
}

// SumForBatch totals the entries of a batch. Used by tests and audit
// tooling to reconcile balance deltas against ledger rows.
func (l *Ledger) SumForBatch(ctx context.Context, batchID BatchID) (decimal.Decimal, error) {
	entries, err := l.Store.EntriesByBatch(ctx, batchID)
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	return sum, nil
}
