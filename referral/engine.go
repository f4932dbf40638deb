/*
engine.go - Distribution orchestration

PURPOSE:
  The Engine is the single entry point for commission distribution. Given
  one earning event (source user, amount, currency), it resolves the
  ancestor chain, computes per-level amounts, credits each ancestor
  exactly once, writes ledger rows, and finalizes the audit record.

FLOW (one logical unit of work):
  1. Validate input (amount > 0, supported currency)
  2. Verify the source user exists (no batch is created for unknown users)
  3. Idempotency check: terminal audit record -> return cached totals
  4. Create BatchAuditRecord(processing); a duplicate key here means a
     concurrent or replayed run won the race
  5. Resolve the ancestor chain (cycle -> batch failed, no credits)
  6. Per ancestor: amount × percentageFor(level) / 100, credit balance
     atomically, append ledger row
  7. Finalize the audit record with totals

FAILURE ISOLATION:
  A single ancestor's credit failure (e.g., the user was deleted) is
  recorded in the result and skipped; the batch still completes with a
  reduced beneficiary count. Only graph resolution or audit-log write
  failures fail the whole batch.

IDEMPOTENCY:
  Replaying the same batch ID never double-credits. Callers that retry
  supply their own stable batch ID; otherwise the engine derives one from
  the event fields and a minute-granularity timestamp.

SEE ALSO:
  - resolver.go: Chain resolution
  - commission.go: Percentage table
  - ledger.go / audit.go: Write targets
*/
package referral

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

// amountScale is the decimal precision commissions are rounded to.
// Matches the token precision of the wallet.
const amountScale = 8

// Engine orchestrates commission distribution.
type Engine struct {
	store    Store
	resolver *Resolver
	ledger   *Ledger
	audit    *AuditLog

	now func() time.Time // injectable for deterministic batch derivation
}

// NewEngine wires the engine onto an explicit storage handle.
func NewEngine(store Store) *Engine {
	return &Engine{
		store:    store,
		resolver: NewResolver(store),
		ledger:   NewLedger(store),
		audit:    NewAuditLog(store),
		now:      time.Now,
	}
}

// Ledger exposes the read surface for wallet history.
func (e *Engine) Ledger() *Ledger { return e.ledger }

// Audit exposes the read surface for admin tooling.
func (e *Engine) Audit() *AuditLog { return e.audit }

// Resolver exposes chain resolution for diagnostics.
func (e *Engine) Resolver() *Resolver { return e.resolver }

// Distribute runs one commission distribution. See the package flow above.
func (e *Engine) Distribute(ctx context.Context, req DistributionRequest) (*DistributionResult, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !SupportedCurrency(req.Currency) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, req.Currency)
	}

	// Unknown source: rejected before any write, no batch record.
	if _, err := e.store.GetUser(ctx, req.SourceUserID); err != nil {
		return nil, err
	}

	batchID := req.BatchID
	if batchID == "" {
		batchID = deriveBatchID(req, e.now().UTC())
	}

	// Fast idempotency path: a terminal record short-circuits the replay.
	if rec, err := e.audit.Get(ctx, batchID); err == nil && rec.Status.Terminal() {
		return replayResult(rec), nil
	}

	if err := e.audit.Begin(ctx, batchID, req.SourceUserID, req.Currency, req.Amount); err != nil {
		if errors.Is(err, ErrDuplicateBatch) {
			// Lost a race with a concurrent run of the same batch.
			rec, getErr := e.audit.Get(ctx, batchID)
			if getErr == nil && rec.Status.Terminal() {
				return replayResult(rec), nil
			}
			return nil, fmt.Errorf("%w: %s", ErrBatchInFlight, batchID)
		}
		return nil, err
	}

	chain, err := e.resolver.Resolve(ctx, req.SourceUserID)
	if err != nil {
		// Resolution failure fails the whole batch; no credits were issued.
		if failErr := e.audit.Fail(ctx, batchID, err); failErr != nil {
			log.Printf("[Engine] batch %s: failed to mark failed: %v", batchID, failErr)
		}
		return nil, err
	}

	result := &DistributionResult{
		BatchID:          batchID,
		TotalDistributed: decimal.Zero,
	}

	for _, link := range chain {
		pct, err := PercentageFor(link.Level)
		if err != nil {
			// Only a store returning more rows than the depth bound can
			// land here; treat it like a resolution failure.
			if failErr := e.audit.Fail(ctx, batchID, err); failErr != nil {
				log.Printf("[Engine] batch %s: failed to mark failed: %v", batchID, failErr)
			}
			return nil, err
		}
		result.LevelsProcessed = link.Level

		share := req.Amount.Mul(pct).Div(decimal.NewFromInt(100)).Round(amountScale)
		if !share.IsPositive() {
			continue
		}

		if err := e.creditAncestor(ctx, batchID, req, link, pct, share); err != nil {
			log.Printf("[Engine] batch %s: %v", batchID, err)
			result.Failures = append(result.Failures, AncestorFailure{
				UserID: link.UserID,
				Level:  link.Level,
				Reason: err.Error(),
			})
			continue
		}

		result.BeneficiaryCount++
		result.TotalDistributed = result.TotalDistributed.Add(share)
	}

	err = e.audit.Complete(ctx, batchID,
		result.LevelsProcessed, result.BeneficiaryCount, result.TotalDistributed)
	if err != nil {
		if errors.Is(err, ErrBatchAlreadyFinal) {
			// The stale-batch reaper finalized us mid-flight. The credits
			// above are already on the ledger; surface the prior record.
			if rec, getErr := e.audit.Get(ctx, batchID); getErr == nil {
				return replayResult(rec), nil
			}
		}
		return nil, err
	}

	return result, nil
}

// creditAncestor performs the balance increment plus the ledger append
// for one ancestor. The credit goes first: a vanished ancestor fails
// before anything is written, so a failed ancestor never appears on the
// ledger for the batch. If the append fails after the credit landed,
// the credit is reversed with a compensating debit, keeping the balance
// equal to the sum of the ancestor's ledger rows. The (batch,
// beneficiary, level) uniqueness on the ledger is a backstop against
// double writes; the audit-record gate means a replayed batch never
// reaches this code.
func (e *Engine) creditAncestor(ctx context.Context, batchID BatchID, req DistributionRequest, link ChainLink, pct, share decimal.Decimal) error {
	if err := e.store.Credit(ctx, link.UserID, req.Currency, share); err != nil {
		return &CreditError{BatchID: batchID, UserID: link.UserID, Level: link.Level, Err: err}
	}

	entry := LedgerEntry{
		BeneficiaryUserID: link.UserID,
		Kind:              KindReferralReward,
		Currency:          req.Currency,
		Amount:            share,
		Level:             link.Level,
		Percentage:        pct,
		SourceUserID:      req.SourceUserID,
		SourceAmount:      req.Amount,
		BatchID:           batchID,
	}
	if err := e.ledger.Append(ctx, entry); err != nil {
		// Reverse the credit: money must never exist outside the ledger.
		if dErr := e.store.Credit(ctx, link.UserID, req.Currency, share.Neg()); dErr != nil {
			log.Printf("[Engine] batch %s: compensating debit for %s failed: %v",
				batchID, link.UserID, dErr)
		}
		return &CreditError{BatchID: batchID, UserID: link.UserID, Level: link.Level, Err: err}
	}
	return nil
}

// replayResult rebuilds a caller-visible result from a terminal record.
func replayResult(rec BatchAuditRecord) *DistributionResult {
	return &DistributionResult{
		BatchID:          rec.BatchID,
		LevelsProcessed:  rec.LevelsProcessed,
		BeneficiaryCount: rec.BeneficiaryCount,
		TotalDistributed: rec.TotalDistributed,
		Replayed:         true,
	}
}

// deriveBatchID builds a deterministic idempotency key for callers that
// do not supply one: hash of the event fields plus a minute-granularity
// timestamp, so an immediate retry of the same event coalesces.
func deriveBatchID(req DistributionRequest, at time.Time) BatchID {
	bucket := at.Truncate(time.Minute).Format(time.RFC3339)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s",
		req.SourceUserID, req.Amount.String(), req.Currency, bucket)))
	return BatchID(hex.EncodeToString(sum[:16]))
}
