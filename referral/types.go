/*
Package referral implements the multi-level referral commission engine.

PURPOSE:
  When a user earns an amount (farming harvest, paid upgrade, mission,
  daily bonus), the engine walks up to 20 levels of that user's invitation
  chain, computes a per-level commission, credits each ancestor exactly
  once, and leaves an auditable, idempotent trail.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A monetary quantity with a currency (decimal-backed)
  - User: A node in the invitation graph (id, invite code, inviter code)
  - ChainLink: One resolved ancestor with its commission level
  - LedgerEntry: An immutable commission credit record
  - BatchAuditRecord: Lifecycle record of one distribution run

DESIGN PRINCIPLES:
  1. Immutability: Ledger entries are never modified or deleted
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing user/batch IDs
  4. Idempotency: Every distribution is keyed by a batch ID

SEE ALSO:
  - commission.go: Level-to-percentage lookup table
  - resolver.go: Invitation chain traversal
  - engine.go: Distribution orchestration
*/
package referral

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Monetary quantity with currency
// =============================================================================

type Amount struct {
	Value    decimal.Decimal
	Currency Currency
}

type Currency string

const (
	CurrencyUNI Currency = "UNI"
	CurrencyTON Currency = "TON"
)

// SupportedCurrency reports whether the engine distributes in this currency.
func SupportedCurrency(c Currency) bool {
	return c == CurrencyUNI || c == CurrencyTON
}

func NewAmount(value float64, currency Currency) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Currency: currency}
}

func NewAmountFromInt(value int, currency Currency) Amount {
	return Amount{Value: decimal.NewFromInt(int64(value)), Currency: currency}
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Zero() Amount              { return Amount{Value: decimal.Zero, Currency: a.Currency} }
func (a Amount) Add(b Amount) Amount       { return Amount{Value: a.Value.Add(b.Value), Currency: a.Currency} }
func (a Amount) Sub(b Amount) Amount       { return Amount{Value: a.Value.Sub(b.Value), Currency: a.Currency} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Currency: a.Currency} }
func (a Amount) IsNegative() bool          { return a.Value.IsNegative() }
func (a Amount) IsZero() bool              { return a.Value.IsZero() }
func (a Amount) IsPositive() bool          { return a.Value.IsPositive() }
func (a Amount) Equal(b Amount) bool       { return a.Currency == b.Currency && a.Value.Equal(b.Value) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type InviteCode string
type BatchID string
type EntryID string

// =============================================================================
// USER - Node in the invitation graph
// =============================================================================

// User is the engine's read view of a registered user.
// The identity subsystem owns creation; InviterCode is immutable after
// registration. The engine only reads the graph and mutates balances.
type User struct {
	ID          UserID
	InviteCode  InviteCode // unique, stable
	InviterCode InviteCode // empty for root users
	CreatedAt   time.Time
}

// HasInviter reports whether this user was invited by someone.
func (u User) HasInviter() bool { return u.InviterCode != "" }

// =============================================================================
// CHAIN LINK - One resolved ancestor
// =============================================================================

// ChainLink is one ancestor in the resolved invitation chain.
// Level 1 is the direct inviter, level 2 the inviter's inviter, and so on.
type ChainLink struct {
	UserID     UserID
	InviteCode InviteCode
	Level      int
}

// =============================================================================
// LEDGER ENTRY - Immutable commission credit record
// =============================================================================

type EntryKind string

const (
	// KindReferralReward is the only kind this engine writes.
	KindReferralReward EntryKind = "REFERRAL_REWARD"
)

// LedgerEntry records a single ancestor credit. Self-describing: an external
// auditor can recompute the expected amount from SourceAmount and Percentage
// without consulting any other table.
type LedgerEntry struct {
	ID                EntryID
	BeneficiaryUserID UserID
	Kind              EntryKind
	Currency          Currency
	Amount            decimal.Decimal
	Level             int
	Percentage        decimal.Decimal
	SourceUserID      UserID
	SourceAmount      decimal.Decimal
	BatchID           BatchID
	CreatedAt         time.Time
}

// =============================================================================
// BATCH AUDIT RECORD - Lifecycle of one distribution run
// =============================================================================

type BatchStatus string

const (
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// Terminal reports whether the status can never change again.
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchFailed
}

// BatchAuditRecord tracks one distribution run, keyed by its idempotency
// batch ID. Created as processing, finalized exactly once to a terminal
// state, then immutable.
type BatchAuditRecord struct {
	BatchID          BatchID
	SourceUserID     UserID
	Currency         Currency
	EarnedAmount     decimal.Decimal
	Status           BatchStatus
	LevelsProcessed  int
	BeneficiaryCount int
	TotalDistributed decimal.Decimal
	ErrorMessage     string
	CreatedAt        time.Time
	CompletedAt      *time.Time
}

// =============================================================================
// DISTRIBUTION REQUEST / RESULT
// =============================================================================

// DistributionRequest is one earning event to distribute commissions for.
// BatchID is optional: callers that retry should supply their own stable key;
// otherwise the engine derives one.
type DistributionRequest struct {
	SourceUserID UserID
	Amount       decimal.Decimal
	Currency     Currency
	BatchID      BatchID
}

// AncestorFailure reports a single ancestor credit that failed and was
// skipped. The batch itself still completes.
type AncestorFailure struct {
	UserID UserID
	Level  int
	Reason string
}

// DistributionResult summarizes one distribution run.
type DistributionResult struct {
	BatchID          BatchID
	LevelsProcessed  int
	BeneficiaryCount int
	TotalDistributed decimal.Decimal
	Failures         []AncestorFailure
	Replayed         bool // true when served from a prior terminal batch
}
