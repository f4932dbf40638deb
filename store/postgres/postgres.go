/*
Package postgres provides a Postgres-backed implementation of referral.Store.

PURPOSE:
  The hosted deployment path: same schema shape as store/sqlite, but on
  a pgx connection pool with database-level concurrency control instead
  of a store mutex. Balance credits are a single atomic UPSERT increment,
  so concurrent batches crediting the same ancestor serialize on the row
  lock with no lost updates.

DIALECT DIFFERENCES FROM SQLITE:
  - NUMERIC columns for amounts (no string round-trip)
  - $n placeholders
  - Unique violations detected via pgconn error code 23505
  - No store-level mutex: the pool and row locks do the serialization

CHAIN LOADING:
  Same depth-bounded recursive CTE as the SQLite store. One query,
  latency independent of chain depth, terminates on cyclic graphs.

USAGE:
  st, err := postgres.New(ctx, os.Getenv("DATABASE_URL"))
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()
  engine := referral.NewEngine(st)

SEE ALSO:
  - referral/store.go: Interface definitions
  - store/sqlite/sqlite.go: SQLite implementation
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Dimaosadchuk888/UniFarmConnectX-sub009/referral"
)

// Store implements referral.Store using Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// New connects a pool and migrates the schema.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	store := &Store{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	return store, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		invite_code TEXT NOT NULL UNIQUE,
		inviter_code TEXT,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_inviter_code
		ON users(inviter_code) WHERE inviter_code IS NOT NULL;

	CREATE TABLE IF NOT EXISTS balances (
		user_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		balance NUMERIC(30, 8) NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, currency)
	);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		beneficiary_user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		currency TEXT NOT NULL,
		amount NUMERIC(30, 8) NOT NULL,
		level INTEGER NOT NULL,
		percentage NUMERIC(10, 4) NOT NULL,
		source_user_id TEXT NOT NULL,
		source_amount NUMERIC(30, 8) NOT NULL,
		batch_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_batch_beneficiary_level
		ON ledger_entries(batch_id, beneficiary_user_id, level);
	CREATE INDEX IF NOT EXISTS idx_ledger_beneficiary_created
		ON ledger_entries(beneficiary_user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_ledger_batch
		ON ledger_entries(batch_id);

	CREATE TABLE IF NOT EXISTS batch_audit (
		batch_id TEXT PRIMARY KEY,
		source_user_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		earned_amount NUMERIC(30, 8) NOT NULL,
		status TEXT NOT NULL DEFAULT 'processing',
		levels_processed INTEGER NOT NULL DEFAULT 0,
		beneficiary_count INTEGER NOT NULL DEFAULT 0,
		total_distributed NUMERIC(30, 8) NOT NULL DEFAULT 0,
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_batch_audit_source
		ON batch_audit(source_user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_batch_audit_status
		ON batch_audit(status);

	CREATE TABLE IF NOT EXISTS referral_chain_cache (
		user_id TEXT NOT NULL,
		inviter_id TEXT NOT NULL,
		level INTEGER NOT NULL,
		refreshed_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, level)
	);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// =============================================================================
// GRAPH STORE
// =============================================================================

func (s *Store) GetUser(ctx context.Context, id referral.UserID) (referral.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, invite_code, COALESCE(inviter_code, ''), created_at FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *Store) GetUserByInviteCode(ctx context.Context, code referral.InviteCode) (referral.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, invite_code, COALESCE(inviter_code, ''), created_at FROM users WHERE invite_code = $1`, code)
	return scanUser(row)
}

func (s *Store) LoadInviterChain(ctx context.Context, code referral.InviteCode, maxDepth int) ([]referral.User, error) {
	query := `
		WITH RECURSIVE chain(id, invite_code, inviter_code, created_at, depth) AS (
			SELECT id, invite_code, inviter_code, created_at, 1
			FROM users WHERE invite_code = $1
			UNION ALL
			SELECT u.id, u.invite_code, u.inviter_code, u.created_at, c.depth + 1
			FROM users u
			JOIN chain c ON u.invite_code = c.inviter_code
			WHERE c.depth < $2
		)
		SELECT id, invite_code, COALESCE(inviter_code, ''), created_at
		FROM chain ORDER BY depth ASC
	`

	rows, err := s.pool.Query(ctx, query, code, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("load inviter chain: %w", err)
	}
	defer rows.Close()

	var chainUsers []referral.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		chainUsers = append(chainUsers, u)
	}
	return chainUsers, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, u referral.User) error {
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, invite_code, inviter_code, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4)
	`, u.ID, u.InviteCode, string(u.InviterCode), createdAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (referral.User, error) {
	var u referral.User
	err := row.Scan(&u.ID, &u.InviteCode, &u.InviterCode, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return u, referral.ErrUserNotFound
	}
	if err != nil {
		return u, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

// =============================================================================
// BALANCE STORE
// =============================================================================

// Credit is one atomic UPSERT increment; the row lock serializes
// concurrent credits to the same (user, currency).
func (s *Store) Credit(ctx context.Context, id referral.UserID, currency referral.Currency, amount decimal.Decimal) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return referral.ErrUserNotFound
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO balances (user_id, currency, balance, updated_at)
		VALUES ($1, $2, $3::numeric, NOW())
		ON CONFLICT (user_id, currency) DO UPDATE SET
			balance = balances.balance + EXCLUDED.balance,
			updated_at = NOW()
	`, id, currency, amount.String())
	if err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	return nil
}

func (s *Store) Balance(ctx context.Context, id referral.UserID, currency referral.Currency) (decimal.Decimal, error) {
	var raw string
	err := s.pool.QueryRow(ctx,
		`SELECT balance::text FROM balances WHERE user_id = $1 AND currency = $2`,
		id, currency).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("read balance: %w", err)
	}
	return decimal.NewFromString(raw)
}

// =============================================================================
// LEDGER STORE (append-only)
// =============================================================================

func (s *Store) AppendEntry(ctx context.Context, e referral.LedgerEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ledger_entries
		(id, beneficiary_user_id, kind, currency, amount, level, percentage,
		 source_user_id, source_amount, batch_id, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7::numeric, $8, $9::numeric, $10, $11)
	`,
		e.ID, e.BeneficiaryUserID, e.Kind, e.Currency,
		e.Amount.String(), e.Level, e.Percentage.String(),
		e.SourceUserID, e.SourceAmount.String(), e.BatchID, e.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return referral.ErrDuplicateEntry
		}
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

func (s *Store) EntriesByBeneficiary(ctx context.Context, id referral.UserID, limit int) ([]referral.LedgerEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryEntries(ctx, `
		SELECT id, beneficiary_user_id, kind, currency, amount::text, level, percentage::text,
		       source_user_id, source_amount::text, batch_id, created_at
		FROM ledger_entries
		WHERE beneficiary_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, id, limit)
}

func (s *Store) EntriesByBatch(ctx context.Context, batchID referral.BatchID) ([]referral.LedgerEntry, error) {
	return s.queryEntries(ctx, `
		SELECT id, beneficiary_user_id, kind, currency, amount::text, level, percentage::text,
		       source_user_id, source_amount::text, batch_id, created_at
		FROM ledger_entries
		WHERE batch_id = $1
		ORDER BY level ASC
	`, batchID)
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]referral.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []referral.LedgerEntry
	for rows.Next() {
		var (
			e          referral.LedgerEntry
			amount     string
			percentage string
			sourceAmt  string
		)
		err := rows.Scan(
			&e.ID, &e.BeneficiaryUserID, &e.Kind, &e.Currency,
			&amount, &e.Level, &percentage,
			&e.SourceUserID, &sourceAmt, &e.BatchID, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Amount = referral.MustParseDecimal(amount)
		e.Percentage = referral.MustParseDecimal(percentage)
		e.SourceAmount = referral.MustParseDecimal(sourceAmt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// AUDIT STORE
// =============================================================================

func (s *Store) CreateBatch(ctx context.Context, rec referral.BatchAuditRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO batch_audit
		(batch_id, source_user_id, currency, earned_amount, status, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)
	`,
		rec.BatchID, rec.SourceUserID, rec.Currency,
		rec.EarnedAmount.String(), string(referral.BatchProcessing), createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return referral.ErrDuplicateBatch
		}
		return fmt.Errorf("create batch record: %w", err)
	}
	return nil
}

// FinalizeBatch transitions processing -> terminal exactly once; the
// status guard makes a racing finalizer affect zero rows.
func (s *Store) FinalizeBatch(ctx context.Context, rec referral.BatchAuditRecord) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE batch_audit SET
			status = $1,
			levels_processed = $2,
			beneficiary_count = $3,
			total_distributed = $4::numeric,
			error_message = NULLIF($5, ''),
			completed_at = $6
		WHERE batch_id = $7 AND status = $8
	`,
		string(rec.Status), rec.LevelsProcessed, rec.BeneficiaryCount,
		rec.TotalDistributed.String(), rec.ErrorMessage, rec.CompletedAt,
		rec.BatchID, string(referral.BatchProcessing))
	if err != nil {
		return fmt.Errorf("finalize batch: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM batch_audit WHERE batch_id = $1)`, rec.BatchID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("finalize batch: %w", err)
		}
		if !exists {
			return referral.ErrBatchNotFound
		}
		return referral.ErrBatchAlreadyFinal
	}
	return nil
}

func (s *Store) GetBatch(ctx context.Context, batchID referral.BatchID) (referral.BatchAuditRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT batch_id, source_user_id, currency, earned_amount::text, status,
		       levels_processed, beneficiary_count, total_distributed::text,
		       COALESCE(error_message, ''), created_at, completed_at
		FROM batch_audit WHERE batch_id = $1
	`, batchID)
	return scanBatch(row)
}

func (s *Store) BatchesBySource(ctx context.Context, id referral.UserID, limit int) ([]referral.BatchAuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT batch_id, source_user_id, currency, earned_amount::text, status,
		       levels_processed, beneficiary_count, total_distributed::text,
		       COALESCE(error_message, ''), created_at, completed_at
		FROM batch_audit
		WHERE source_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	return collectBatches(rows)
}

func (s *Store) StaleBatches(ctx context.Context, cutoff time.Time) ([]referral.BatchAuditRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT batch_id, source_user_id, currency, earned_amount::text, status,
		       levels_processed, beneficiary_count, total_distributed::text,
		       COALESCE(error_message, ''), created_at, completed_at
		FROM batch_audit
		WHERE status = $1 AND created_at < $2
	`, string(referral.BatchProcessing), cutoff)
	if err != nil {
		return nil, fmt.Errorf("query stale batches: %w", err)
	}
	defer rows.Close()

	return collectBatches(rows)
}

func collectBatches(rows pgx.Rows) ([]referral.BatchAuditRecord, error) {
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

func scanBatch(row pgx.Row) (referral.BatchAuditRecord, error) {
	var (
		rec    referral.BatchAuditRecord
		earned string
		total  string
	)
	err := row.Scan(
		&rec.BatchID, &rec.SourceUserID, &rec.Currency, &earned, &rec.Status,
		&rec.LevelsProcessed, &rec.BeneficiaryCount, &total,
		&rec.ErrorMessage, &rec.CreatedAt, &rec.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, referral.ErrBatchNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("scan batch record: %w", err)
	}
	rec.EarnedAmount = referral.MustParseDecimal(earned)
	rec.TotalDistributed = referral.MustParseDecimal(total)
	return rec, nil
}

// =============================================================================
// CHAIN CACHE
// =============================================================================

// RefreshChainCache replaces the cached chain rows for a user.
func (s *Store) RefreshChainCache(ctx context.Context, userID referral.UserID, chain []referral.ChainLink) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin cache refresh: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM referral_chain_cache WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear chain cache: %w", err)
	}
	for _, link := range chain {
		if _, err := tx.Exec(ctx, `
			INSERT INTO referral_chain_cache (user_id, inviter_id, level, refreshed_at)
			VALUES ($1, $2, $3, NOW())
		`, userID, link.UserID, link.Level); err != nil {
			return fmt.Errorf("write chain cache: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// CachedChain returns the cached (inviter, level) rows for a user.
func (s *Store) CachedChain(ctx context.Context, userID referral.UserID) ([]referral.ChainLink, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT inviter_id, level FROM referral_chain_cache
		WHERE user_id = $1 ORDER BY level ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query chain cache: %w", err)
	}
	defer rows.Close()

	var links []referral.ChainLink
	for rows.Next() {
		var link referral.ChainLink
		if err := rows.Scan(&link.UserID, &link.Level); err != nil {
			return nil, fmt.Errorf("scan chain cache: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
