/*
store.go - Persistence interfaces for the referral engine

PURPOSE:
  Defines the interface between the engine and the database. The storage
  handle is injected into the engine's constructor; there are no ambient
  globals, so tests substitute an in-memory double.

KEY INTERFACES:
  GraphStore:   Read the invitation graph, bounded chain loading
  BalanceStore: Atomic per-user balance credits
  LedgerStore:  Append-only commission ledger
  AuditStore:   Batch lifecycle records (idempotency keys)
  Store:        All of the above, one handle

APPEND-ONLY CONTRACT:
  LedgerStore has AppendEntry and reads. NO Update() or Delete() methods
  exist. Corrections would be opposite-sign entries, never edits.

ATOMIC CREDITS:
  Credit() must serialize per (user, currency): multiple concurrent
  batches crediting the same ancestor must never lose an update. SQL
  stores use an atomic UPSERT increment; the memory store uses per-user
  locks.

BOUNDED CHAIN LOADING:
  LoadInviterChain returns the inviter chain in ONE bounded query (a
  recursive CTE in SQL stores), so resolution latency is independent of
  chain depth. The returned chain may contain repeats when the graph is
  corrupted; cycle detection is the resolver's job.

IMPLEMENTATIONS:
  - referral/store/memory.go: In-memory, for tests and dev
  - store/sqlite/sqlite.go:   SQLite (WAL)
  - store/postgres/postgres.go: Postgres over pgxpool

SEE ALSO:
  - engine.go: The consumer of Store
*/
package referral

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// GRAPH STORE - Invitation graph reads
// =============================================================================

// GraphStore reads the invitation graph. The identity subsystem owns the
// user records; CreateUser exists so deployments and tests can seed them.
type GraphStore interface {
	// GetUser returns a user by ID. ErrUserNotFound if absent.
	GetUser(ctx context.Context, id UserID) (User, error)

	// GetUserByInviteCode returns the owner of an invite code.
	// ErrUserNotFound if absent.
	GetUserByInviteCode(ctx context.Context, code InviteCode) (User, error)

	// LoadInviterChain follows inviter pointers starting from the given
	// invite code, returning up to maxDepth users in chain order (closest
	// first). One bounded query; it must terminate even on a cyclic graph
	// and may return repeated users in that case.
	LoadInviterChain(ctx context.Context, code InviteCode, maxDepth int) ([]User, error)

	// CreateUser registers a user node. InviterCode is immutable afterward.
	CreateUser(ctx context.Context, u User) error
}

// =============================================================================
// BALANCE STORE - Mutable per-user balances
// =============================================================================

// BalanceStore mutates and reads per-user, per-currency balances.
type BalanceStore interface {
	// Credit atomically increments the balance. Serialized per
	// (user, currency): concurrent credits never lose an update.
	// ErrUserNotFound if the user no longer exists.
	Credit(ctx context.Context, id UserID, currency Currency, amount decimal.Decimal) error

	// Balance returns the current balance (zero if never credited).
	Balance(ctx context.Context, id UserID, currency Currency) (decimal.Decimal, error)
}

// =============================================================================
// LEDGER STORE - Append-only commission ledger
// =============================================================================

// LedgerStore persists ledger entries. APPEND-ONLY: no update, no delete.
type LedgerStore interface {
	// AppendEntry persists one entry. ErrDuplicateEntry if an entry with
	// the same (batch, beneficiary, level) already exists.
	AppendEntry(ctx context.Context, e LedgerEntry) error

	// EntriesByBeneficiary returns a user's credits, newest first.
	EntriesByBeneficiary(ctx context.Context, id UserID, limit int) ([]LedgerEntry, error)

	// EntriesByBatch returns all entries written for one batch.
	EntriesByBatch(ctx context.Context, batchID BatchID) ([]LedgerEntry, error)
}

// =============================================================================
// AUDIT STORE - Batch lifecycle records
// =============================================================================

// AuditStore persists batch audit records. A batch ID is unique; a record
// transitions processing -> {completed, failed} exactly once.
type AuditStore interface {
	// CreateBatch inserts a processing record. ErrDuplicateBatch if the
	// batch ID already exists (idempotency backstop).
	CreateBatch(ctx context.Context, rec BatchAuditRecord) error

	// FinalizeBatch transitions a processing record to a terminal state.
	// ErrBatchNotFound if absent, ErrBatchAlreadyFinal if already terminal.
	FinalizeBatch(ctx context.Context, rec BatchAuditRecord) error

	// GetBatch returns the record for a batch ID. ErrBatchNotFound if absent.
	GetBatch(ctx context.Context, batchID BatchID) (BatchAuditRecord, error)

	// BatchesBySource returns a user's distribution history, newest first.
	BatchesBySource(ctx context.Context, id UserID, limit int) ([]BatchAuditRecord, error)

	// StaleBatches returns processing records created before the cutoff.
	// Used by the reaper to fail batches orphaned by a crash.
	StaleBatches(ctx context.Context, cutoff time.Time) ([]BatchAuditRecord, error)
}

// =============================================================================
// STORE - Everything the engine needs, one handle
// =============================================================================

type Store interface {
	GraphStore
	BalanceStore
	LedgerStore
	AuditStore
}
