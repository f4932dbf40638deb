/*
Package sqlite provides a SQLite-backed implementation of referral.Store.

PURPOSE:
  Implements all persistence interfaces (GraphStore, BalanceStore,
  LedgerStore, AuditStore) using SQLite. The same patterns apply to the
  hosted Postgres deployment - see store/postgres for that dialect.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements touch ledger_entries
  - batch_audit rows are updated exactly once: processing -> terminal

KEY TABLES:
  users:                Invitation graph nodes (read-mostly)
  balances:             Mutable per-user, per-currency balances
  ledger_entries:       Immutable commission credit ledger
  batch_audit:          Distribution run lifecycle, keyed by batch ID
  referral_chain_cache: Denormalized (user, inviter, level) index;
                        rebuildable, never treated as authoritative

CRITICAL CONSTRAINTS:
  - users.invite_code UNIQUE: the graph's parent pointer target
  - ledger_entries (batch_id, beneficiary_user_id, level) UNIQUE:
    replaying a batch can never double-write a credit
  - batch_audit.batch_id PRIMARY KEY: one lifecycle per idempotency key

CHAIN LOADING:
  LoadInviterChain is a single depth-bounded recursive CTE, so chain
  resolution latency is independent of chain depth. The depth bound also
  terminates the query on a corrupted (cyclic) graph; cycle detection on
  the returned rows is the resolver's job.

CONCURRENCY:
  Balance credits use an atomic UPSERT increment, so concurrent batches
  crediting the same ancestor serialize at the row without lost updates.
  A struct-level RWMutex guards the single-writer SQLite connection; WAL
  mode keeps readers unblocked.

USAGE:
  st, err := sqlite.New("./data/unifarm.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()
  engine := referral.NewEngine(st)

SEE ALSO:
  - referral/store.go: Interface definitions
  - referral/store/memory.go: In-memory implementation for testing
  - store/postgres/postgres.go: Postgres implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/Dimaosadchuk888/UniFarmConnectX-sub009/referral"
)

// timeLayout is RFC 3339 with a fixed-width 9-digit fraction. Stored
// stamps are compared lexicographically in SQL (ORDER BY, cutoffs), and
// trimmed fractions would break that at whole-second values.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	// RFC3339Nano accepts both fixed-width and legacy trimmed stamps.
	return time.Parse(time.RFC3339Nano, s)
}

// Store implements referral.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection gets its own in-memory database;
		// pin the pool to one so the schema is actually shared.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Invitation graph nodes. Owned by the identity subsystem;
	-- inviter_code is immutable after registration.
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		invite_code TEXT NOT NULL UNIQUE,
		inviter_code TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_inviter_code
		ON users(inviter_code) WHERE inviter_code IS NOT NULL;

	-- Mutable per-user, per-currency balances.
	CREATE TABLE IF NOT EXISTS balances (
		user_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		balance TEXT NOT NULL DEFAULT '0',
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, currency)
	);

	-- Commission ledger (append-only).
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		beneficiary_user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		currency TEXT NOT NULL,
		amount TEXT NOT NULL,
		level INTEGER NOT NULL,
		percentage TEXT NOT NULL,
		source_user_id TEXT NOT NULL,
		source_amount TEXT NOT NULL,
		batch_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: replaying a batch can never double-write a credit.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_batch_beneficiary_level
		ON ledger_entries(batch_id, beneficiary_user_id, level);

	-- Wallet history read surface (hot path).
	CREATE INDEX IF NOT EXISTS idx_ledger_beneficiary_created
		ON ledger_entries(beneficiary_user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_ledger_batch
		ON ledger_entries(batch_id);

	-- Distribution run lifecycle, keyed by the idempotency batch ID.
	CREATE TABLE IF NOT EXISTS batch_audit (
		batch_id TEXT PRIMARY KEY,
		source_user_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		earned_amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'processing',
		levels_processed INTEGER NOT NULL DEFAULT 0,
		beneficiary_count INTEGER NOT NULL DEFAULT 0,
		total_distributed TEXT NOT NULL DEFAULT '0',
		error_message TEXT,
		created_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_batch_audit_source
		ON batch_audit(source_user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_batch_audit_status
		ON batch_audit(status);

	-- Denormalized chain membership. Rebuildable from a fresh walk; a
	-- fresh walk always wins when they disagree.
	CREATE TABLE IF NOT EXISTS referral_chain_cache (
		user_id TEXT NOT NULL,
		inviter_id TEXT NOT NULL,
		level INTEGER NOT NULL,
		refreshed_at TEXT NOT NULL,
		PRIMARY KEY (user_id, level)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// GRAPH STORE (referral.GraphStore interface)
// =============================================================================

// GetUser returns a user by ID.
func (s *Store) GetUser(ctx context.Context, id referral.UserID) (referral.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, invite_code, inviter_code, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByInviteCode returns the owner of an invite code.
func (s *Store) GetUserByInviteCode(ctx context.Context, code referral.InviteCode) (referral.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, invite_code, inviter_code, created_at FROM users WHERE invite_code = ?`, code)
	return scanUser(row)
}

// LoadInviterChain resolves the inviter chain in one depth-bounded
// recursive CTE. Terminates on cyclic graphs via the depth bound.
func (s *Store) LoadInviterChain(ctx context.Context, code referral.InviteCode, maxDepth int) ([]referral.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		WITH RECURSIVE chain(id, invite_code, inviter_code, created_at, depth) AS (
			SELECT id, invite_code, inviter_code, created_at, 1
			FROM users WHERE invite_code = ?
			UNION ALL
			SELECT u.id, u.invite_code, u.inviter_code, u.created_at, c.depth + 1
			FROM users u
			JOIN chain c ON u.invite_code = c.inviter_code
			WHERE c.depth < ?
		)
		SELECT id, invite_code, inviter_code, created_at FROM chain ORDER BY depth ASC
	`

	rows, err := s.db.QueryContext(ctx, query, code, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to load inviter chain: %w", err)
	}
	defer rows.Close()

	var chain []referral.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		chain = append(chain, u)
	}
	return chain, rows.Err()
}

// CreateUser registers a user node.
func (s *Store) CreateUser(ctx context.Context, u referral.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, invite_code, inviter_code, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.InviteCode, nullString(string(u.InviterCode)), formatTime(createdAt))
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (referral.User, error) {
	var (
		u           referral.User
		inviterCode sql.NullString
		createdAt   string
	)
	err := row.Scan(&u.ID, &u.InviteCode, &inviterCode, &createdAt)
	if err == sql.ErrNoRows {
		return u, referral.ErrUserNotFound
	}
	if err != nil {
		return u, fmt.Errorf("failed to scan user: %w", err)
	}
	u.InviterCode = referral.InviteCode(inviterCode.String)
	t, err := parseTime(createdAt)
	if err != nil {
		return u, fmt.Errorf("corrupt created_at for user %s: %w", u.ID, err)
	}
	u.CreatedAt = t
	return u, nil
}

// =============================================================================
// BALANCE STORE (referral.BalanceStore interface)
// =============================================================================

// Credit atomically increments a balance via UPSERT. The row-level
// increment never loses concurrent updates.
func (s *Store) Credit(ctx context.Context, id referral.UserID, currency referral.Currency, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if exists == 0 {
		return referral.ErrUserNotFound
	}

	// Balances are stored as decimal strings; the increment happens in
	// Go under the store lock to keep decimal precision exact.
	var raw sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT balance FROM balances WHERE user_id = ? AND currency = ?`,
		id, currency).Scan(&raw)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to read balance: %w", err)
	}

	current := decimal.Zero
	if raw.Valid {
		current, err = decimal.NewFromString(raw.String)
		if err != nil {
			return fmt.Errorf("corrupt balance for %s/%s: %w", id, currency, err)
		}
	}
	next := current.Add(amount)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO balances (user_id, currency, balance, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, currency) DO UPDATE SET
			balance = excluded.balance,
			updated_at = excluded.updated_at
	`, id, currency, next.String(), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}
	return nil
}

// Balance returns the current balance, zero if never credited.
func (s *Store) Balance(ctx context.Context, id referral.UserID, currency referral.Currency) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM balances WHERE user_id = ? AND currency = ?`,
		id, currency).Scan(&raw)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read balance: %w", err)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt balance for %s/%s: %w", id, currency, err)
	}
	return d, nil
}

// =============================================================================
// LEDGER STORE (referral.LedgerStore interface, append-only)
// =============================================================================

// AppendEntry persists one ledger entry.
func (s *Store) AppendEntry(ctx context.Context, e referral.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries
		(id, beneficiary_user_id, kind, currency, amount, level, percentage,
		 source_user_id, source_amount, batch_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.BeneficiaryUserID, e.Kind, e.Currency,
		e.Amount.String(), e.Level, e.Percentage.String(),
		e.SourceUserID, e.SourceAmount.String(), e.BatchID,
		formatTime(e.CreatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return referral.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// EntriesByBeneficiary returns a user's credits, newest first.
func (s *Store) EntriesByBeneficiary(ctx context.Context, id referral.UserID, limit int) ([]referral.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, beneficiary_user_id, kind, currency, amount, level, percentage,
		       source_user_id, source_amount, batch_id, created_at
		FROM ledger_entries
		WHERE beneficiary_user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`
	return s.queryEntries(ctx, query, id, limit)
}

// EntriesByBatch returns every entry of a batch, by level.
func (s *Store) EntriesByBatch(ctx context.Context, batchID referral.BatchID) ([]referral.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, beneficiary_user_id, kind, currency, amount, level, percentage,
		       source_user_id, source_amount, batch_id, created_at
		FROM ledger_entries
		WHERE batch_id = ?
		ORDER BY level ASC
	`
	return s.queryEntries(ctx, query, batchID)
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]referral.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []referral.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (referral.LedgerEntry, error) {
	var (
		e          referral.LedgerEntry
		amount     string
		percentage string
		sourceAmt  string
		createdAt  string
	)
	err := rows.Scan(
		&e.ID, &e.BeneficiaryUserID, &e.Kind, &e.Currency,
		&amount, &e.Level, &percentage,
		&e.SourceUserID, &sourceAmt, &e.BatchID, &createdAt,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan ledger entry: %w", err)
	}
	e.Amount = referral.MustParseDecimal(amount)
	e.Percentage = referral.MustParseDecimal(percentage)
	e.SourceAmount = referral.MustParseDecimal(sourceAmt)
	t, err := parseTime(createdAt)
	if err != nil {
		return e, fmt.Errorf("corrupt created_at for entry %s: %w", e.ID, err)
	}
	e.CreatedAt = t
	return e, nil
}

// =============================================================================
// AUDIT STORE (referral.AuditStore interface)
// =============================================================================

// CreateBatch inserts a processing record.
func (s *Store) CreateBatch(ctx context.Context, rec referral.BatchAuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batch_audit
		(batch_id, source_user_id, currency, earned_amount, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		rec.BatchID, rec.SourceUserID, rec.Currency,
		rec.EarnedAmount.String(), string(referral.BatchProcessing),
		formatTime(createdAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return referral.ErrDuplicateBatch
		}
		return fmt.Errorf("failed to create batch record: %w", err)
	}
	return nil
}

// FinalizeBatch transitions processing -> terminal exactly once.
// The status guard in the WHERE clause makes the transition atomic:
// a racing finalizer affects zero rows instead of overwriting.
func (s *Store) FinalizeBatch(ctx context.Context, rec referral.BatchAuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	completedAt := ""
	if rec.CompletedAt != nil {
		completedAt = formatTime(*rec.CompletedAt)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE batch_audit SET
			status = ?,
			levels_processed = ?,
			beneficiary_count = ?,
			total_distributed = ?,
			error_message = ?,
			completed_at = ?
		WHERE batch_id = ? AND status = ?
	`,
		string(rec.Status), rec.LevelsProcessed, rec.BeneficiaryCount,
		rec.TotalDistributed.String(), nullString(rec.ErrorMessage), completedAt,
		rec.BatchID, string(referral.BatchProcessing))
	if err != nil {
		return fmt.Errorf("failed to finalize batch: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finalize batch: %w", err)
	}
	if affected == 0 {
		var count int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM batch_audit WHERE batch_id = ?`, rec.BatchID,
		).Scan(&count); err != nil {
			return fmt.Errorf("failed to finalize batch: %w", err)
		}
		if count == 0 {
			return referral.ErrBatchNotFound
		}
		return referral.ErrBatchAlreadyFinal
	}
	return nil
}

// GetBatch returns the record for a batch ID.
func (s *Store) GetBatch(ctx context.Context, batchID referral.BatchID) (referral.BatchAuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT batch_id, source_user_id, currency, earned_amount, status,
		       levels_processed, beneficiary_count, total_distributed,
		       error_message, created_at, completed_at
		FROM batch_audit WHERE batch_id = ?
	`, batchID)
	return scanBatch(row)
}

// BatchesBySource returns a user's distribution runs, newest first.
func (s *Store) BatchesBySource(ctx context.Context, id referral.UserID, limit int) ([]referral.BatchAuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT batch_id, source_user_id, currency, earned_amount, status,
		       levels_processed, beneficiary_count, total_distributed,
		       error_message, created_at, completed_at
		FROM batch_audit
		WHERE source_user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	return collectBatches(rows)
}

// StaleBatches returns processing records created before the cutoff.
func (s *Store) StaleBatches(ctx context.Context, cutoff time.Time) ([]referral.BatchAuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT batch_id, source_user_id, currency, earned_amount, status,
		       levels_processed, beneficiary_count, total_distributed,
		       error_message, created_at, completed_at
		FROM batch_audit
		WHERE status = ? AND created_at < ?
	`, string(referral.BatchProcessing), formatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to query stale batches: %w", err)
	}
	defer rows.Close()

	return collectBatches(rows)
}

func collectBatches(rows *sql.Rows) ([]referral.BatchAuditRecord, error) {
	var records []referral.BatchAuditRecord
	for rows.Next() {
		rec, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanBatch(row rowScanner) (referral.BatchAuditRecord, error) {
	var (
		rec          referral.BatchAuditRecord
		earned       string
		total        string
		errorMessage sql.NullString
		createdAt    string
		completedAt  sql.NullString
	)
	err := row.Scan(
		&rec.BatchID, &rec.SourceUserID, &rec.Currency, &earned, &rec.Status,
		&rec.LevelsProcessed, &rec.BeneficiaryCount, &total,
		&errorMessage, &createdAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return rec, referral.ErrBatchNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("failed to scan batch record: %w", err)
	}
	rec.EarnedAmount = referral.MustParseDecimal(earned)
	rec.TotalDistributed = referral.MustParseDecimal(total)
	rec.ErrorMessage = errorMessage.String
	t, err := parseTime(createdAt)
	if err != nil {
		return rec, fmt.Errorf("corrupt created_at for batch %s: %w", rec.BatchID, err)
	}
	rec.CreatedAt = t
	if completedAt.Valid && completedAt.String != "" {
		ct, err := parseTime(completedAt.String)
		if err != nil {
			return rec, fmt.Errorf("corrupt completed_at for batch %s: %w", rec.BatchID, err)
		}
		rec.CompletedAt = &ct
	}
	return rec, nil
}

// =============================================================================
// CHAIN CACHE - Denormalized chain membership (diagnostics only)
// =============================================================================

// RefreshChainCache replaces the cached chain rows for a user with a
// freshly resolved chain. The cache is advisory: reads must never trust
// it over a fresh walk.
func (s *Store) RefreshChainCache(ctx context.Context, userID referral.UserID, chain []referral.ChainLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cache refresh: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM referral_chain_cache WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear chain cache: %w", err)
	}

	now := formatTime(time.Now())
	for _, link := range chain {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO referral_chain_cache (user_id, inviter_id, level, refreshed_at)
			VALUES (?, ?, ?, ?)
		`, userID, link.UserID, link.Level, now); err != nil {
			return fmt.Errorf("failed to write chain cache: %w", err)
		}
	}

	return tx.Commit()
}

// CachedChain returns the cached (inviter, level) rows for a user.
func (s *Store) CachedChain(ctx context.Context, userID referral.UserID) ([]referral.ChainLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT inviter_id, level FROM referral_chain_cache
		WHERE user_id = ? ORDER BY level ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chain cache: %w", err)
	}
	defer rows.Close()

	var links []referral.ChainLink
	for rows.Next() {
		var link referral.ChainLink
		if err := rows.Scan(&link.UserID, &link.Level); err != nil {
			return nil, fmt.Errorf("failed to scan chain cache: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
