package sqlite_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dimaosadchuk888/UniFarmConnectX-sub009/referral"
	"github.com/Dimaosadchuk888/UniFarmConnectX-sub009/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func seedUsers(t *testing.T, s *sqlite.Store, n int) []referral.UserID {
	t.Helper()
	ctx := context.Background()

	ids := make([]referral.UserID, 0, n)
	for i := 0; i < n; i++ {
		u := referral.User{
			ID:         referral.UserID(fmt.Sprintf("u-%d", i)),
			InviteCode: referral.InviteCode(fmt.Sprintf("code-%d", i)),
		}
		if i > 0 {
			u.InviterCode = referral.InviteCode(fmt.Sprintf("code-%d", i-1))
		}
		require.NoError(t, s.CreateUser(ctx, u))
		ids = append(ids, u.ID)
	}
	return ids
}

// =============================================================================
// GRAPH STORE
// =============================================================================

func TestSQLite_UserRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := referral.User{
		ID:          "u-1",
		InviteCode:  "code-1",
		InviterCode: "code-root",
		CreatedAt:   time.Date(2026, 2, 1, 10, 30, 0, 0, time.UTC),
	}
	require.NoError(t, s.CreateUser(ctx, referral.User{ID: "root", InviteCode: "code-root"}))
	require.NoError(t, s.CreateUser(ctx, created))

	byID, err := s.GetUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, created.InviteCode, byID.InviteCode)
	assert.Equal(t, created.InviterCode, byID.InviterCode)
	assert.True(t, created.CreatedAt.Equal(byID.CreatedAt))

	byCode, err := s.GetUserByInviteCode(ctx, "code-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byCode.ID)

	root, err := s.GetUser(ctx, "root")
	require.NoError(t, err)
	assert.False(t, root.HasInviter(), "empty inviter must round-trip as empty")

	_, err = s.GetUser(ctx, "ghost")
	assert.ErrorIs(t, err, referral.ErrUserNotFound)

	_, err = s.GetUserByInviteCode(ctx, "code-ghost")
	assert.ErrorIs(t, err, referral.ErrUserNotFound)
}

func TestSQLite_LoadInviterChain_OrderAndBound(t *testing.T) {
	// GIVEN: A 30-user chain
	// WHEN: Loading from the deepest user's inviter with maxDepth 20
	// THEN: Exactly 20 rows, closest ancestor first

	s := newTestStore(t)
	ids := seedUsers(t, s, 30)
	ctx := context.Background()

	chain, err := s.LoadInviterChain(ctx, "code-28", 20)
	require.NoError(t, err)
	require.Len(t, chain, 20)
	assert.Equal(t, ids[28], chain[0].ID)
	assert.Equal(t, ids[9], chain[19].ID)
}

func TestSQLite_LoadInviterChain_CycleTerminates(t *testing.T) {
	// GIVEN: a <-> b invite each other (corrupted graph)
	// WHEN: Loading the chain with maxDepth 20
	// THEN: The query terminates and returns repeated rows up to the bound

	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, referral.User{
		ID: "a", InviteCode: "code-a", InviterCode: "code-b",
	}))
	require.NoError(t, s.CreateUser(ctx, referral.User{
		ID: "b", InviteCode: "code-b", InviterCode: "code-a",
	}))

	chain, err := s.LoadInviterChain(ctx, "code-a", 20)
	require.NoError(t, err)
	require.Len(t, chain, 20)
	assert.Equal(t, referral.UserID("a"), chain[0].ID)
	assert.Equal(t, referral.UserID("b"), chain[1].ID)
	assert.Equal(t, referral.UserID("a"), chain[2].ID, "cycle must surface as repeats")
}

func TestSQLite_LoadInviterChain_MissingCode(t *testing.T) {
	s := newTestStore(t)

	chain, err := s.LoadInviterChain(context.Background(), "code-gone", 20)
	require.NoError(t, err)
	assert.Empty(t, chain)
}

// =============================================================================
// BALANCE STORE
// =============================================================================

func TestSQLite_CreditAccumulates(t *testing.T) {
	s := newTestStore(t)
	ids := seedUsers(t, s, 1)
	ctx := context.Background()

	require.NoError(t, s.Credit(ctx, ids[0], referral.CurrencyUNI, dec("0.00000001")))
	require.NoError(t, s.Credit(ctx, ids[0], referral.CurrencyUNI, dec("1.5")))
	require.NoError(t, s.Credit(ctx, ids[0], referral.CurrencyTON, dec("3")))

	uni, err := s.Balance(ctx, ids[0], referral.CurrencyUNI)
	require.NoError(t, err)
	assert.True(t, uni.Equal(dec("1.50000001")), "got %s", uni)

	ton, err := s.Balance(ctx, ids[0], referral.CurrencyTON)
	require.NoError(t, err)
	assert.True(t, ton.Equal(dec("3")), "currencies must not mix")
}

func TestSQLite_CreditUnknownUser(t *testing.T) {
	s := newTestStore(t)

	err := s.Credit(context.Background(), "ghost", referral.CurrencyUNI, dec("1"))
	assert.ErrorIs(t, err, referral.ErrUserNotFound)
}

func TestSQLite_BalanceNeverCredited(t *testing.T) {
	s := newTestStore(t)
	ids := seedUsers(t, s, 1)

	b, err := s.Balance(context.Background(), ids[0], referral.CurrencyUNI)
	require.NoError(t, err)
	assert.True(t, b.IsZero())
}

func TestSQLite_ConcurrentCredits_NoLostUpdates(t *testing.T) {
	// GIVEN: One user credited from many goroutines
	// WHEN: All credits land
	// THEN: The balance is the exact sum

	const workers = 50

	s := newTestStore(t)
	ids := seedUsers(t, s, 1)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Credit(ctx, ids[0], referral.CurrencyUNI, dec("0.1"))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "worker %d", i)
	}

	b, err := s.Balance(ctx, ids[0], referral.CurrencyUNI)
	require.NoError(t, err)
	assert.True(t, b.Equal(dec("5")), "lost update: got %s", b)
}

// =============================================================================
// LEDGER STORE
// =============================================================================

func TestSQLite_LedgerAppendAndQuery(t *testing.T) {
	s := newTestStore(t)
	ids := seedUsers(t, s, 3)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for level, beneficiary := range []referral.UserID{ids[1], ids[0]} {
		require.NoError(t, s.AppendEntry(ctx, referral.LedgerEntry{
			ID:                referral.EntryID(fmt.Sprintf("e-%d", level)),
			BeneficiaryUserID: beneficiary,
			Kind:              referral.KindReferralReward,
			Currency:          referral.CurrencyUNI,
			Amount:            dec("1.23456789"),
			Level:             level + 1,
			Percentage:        dec("100"),
			SourceUserID:      ids[2],
			SourceAmount:      dec("1.23456789"),
			BatchID:           "batch-q",
			CreatedAt:         base.Add(time.Duration(level) * time.Second),
		}))
	}

	byBatch, err := s.EntriesByBatch(ctx, "batch-q")
	require.NoError(t, err)
	require.Len(t, byBatch, 2)
	assert.Equal(t, 1, byBatch[0].Level)
	assert.Equal(t, 2, byBatch[1].Level)
	assert.True(t, byBatch[0].Amount.Equal(dec("1.23456789")), "decimal must round-trip exactly")
	assert.Equal(t, ids[2], byBatch[0].SourceUserID)

	byUser, err := s.EntriesByBeneficiary(ctx, ids[1], 10)
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, referral.BatchID("batch-q"), byUser[0].BatchID)
}

func TestSQLite_LedgerOrdering_SecondBoundary(t *testing.T) {
	// GIVEN: Two entries half a second apart across a whole-second stamp
	// WHEN: Reading newest first
	// THEN: The fractional stamp sorts after the whole second; stored
	//       stamps must be fixed-width for lexicographic ORDER BY

	s := newTestStore(t)
	ids := seedUsers(t, s, 2)
	ctx := context.Background()

	whole := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fractional := whole.Add(500 * time.Millisecond)

	for _, e := range []struct {
		id referral.EntryID
		at time.Time
	}{
		{"e-whole", whole},
		{"e-frac", fractional},
	} {
		require.NoError(t, s.AppendEntry(ctx, referral.LedgerEntry{
			ID:                e.id,
			BeneficiaryUserID: ids[0],
			Kind:              referral.KindReferralReward,
			Currency:          referral.CurrencyUNI,
			Amount:            dec("1"),
			Level:             1,
			Percentage:        dec("100"),
			SourceUserID:      ids[1],
			SourceAmount:      dec("1"),
			BatchID:           referral.BatchID(e.id),
			CreatedAt:         e.at,
		}))
	}

	entries, err := s.EntriesByBeneficiary(ctx, ids[0], 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, referral.EntryID("e-frac"), entries[0].ID)
	assert.Equal(t, referral.EntryID("e-whole"), entries[1].ID)
	assert.True(t, entries[0].CreatedAt.Equal(fractional), "fraction must round-trip")
}

func TestSQLite_StaleBatches_SecondBoundaryCutoff(t *testing.T) {
	// GIVEN: A batch created half a second AFTER the cutoff's whole second
	// WHEN: Sweeping with that cutoff
	// THEN: The batch is not stale

	s := newTestStore(t)
	ids := seedUsers(t, s, 1)
	ctx := context.Background()

	cutoff := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateBatch(ctx, referral.BatchAuditRecord{
		BatchID: "b-after", SourceUserID: ids[0], Currency: referral.CurrencyUNI,
		EarnedAmount: dec("1"), CreatedAt: cutoff.Add(500 * time.Millisecond),
	}))
	require.NoError(t, s.CreateBatch(ctx, referral.BatchAuditRecord{
		BatchID: "b-before", SourceUserID: ids[0], Currency: referral.CurrencyUNI,
		EarnedAmount: dec("1"), CreatedAt: cutoff.Add(-500 * time.Millisecond),
	}))

	stale, err := s.StaleBatches(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, referral.BatchID("b-before"), stale[0].BatchID)
}

func TestSQLite_LedgerDuplicateTriple(t *testing.T) {
	s := newTestStore(t)
	ids := seedUsers(t, s, 2)
	ctx := context.Background()

	entry := referral.LedgerEntry{
		ID:                "e-1",
		BeneficiaryUserID: ids[0],
		Kind:              referral.KindReferralReward,
		Currency:          referral.CurrencyUNI,
		Amount:            dec("1"),
		Level:             1,
		Percentage:        dec("100"),
		SourceUserID:      ids[1],
		SourceAmount:      dec("1"),
		BatchID:           "batch-dup",
		CreatedAt:         time.Now().UTC(),
	}
	require.NoError(t, s.AppendEntry(ctx, entry))

	entry.ID = "e-2"
	err := s.AppendEntry(ctx, entry)
	assert.ErrorIs(t, err, referral.ErrDuplicateEntry)
}

// =============================================================================
// AUDIT STORE
// =============================================================================

func TestSQLite_BatchLifecycle(t *testing.T) {
	s := newTestStore(t)
	ids := seedUsers(t, s, 1)
	ctx := context.Background()

	rec := referral.BatchAuditRecord{
		BatchID:      "b-1",
		SourceUserID: ids[0],
		Currency:     referral.CurrencyUNI,
		EarnedAmount: dec("100"),
		Status:       referral.BatchProcessing,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, s.CreateBatch(ctx, rec))

	err := s.CreateBatch(ctx, rec)
	assert.ErrorIs(t, err, referral.ErrDuplicateBatch)

	got, err := s.GetBatch(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, referral.BatchProcessing, got.Status)
	assert.True(t, got.EarnedAmount.Equal(dec("100")))
	assert.Nil(t, got.CompletedAt)

	now := time.Now().UTC()
	require.NoError(t, s.FinalizeBatch(ctx, referral.BatchAuditRecord{
		BatchID:          "b-1",
		Status:           referral.BatchCompleted,
		LevelsProcessed:  2,
		BeneficiaryCount: 2,
		TotalDistributed: dec("120"),
		CompletedAt:      &now,
	}))

	got, err = s.GetBatch(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, referral.BatchCompleted, got.Status)
	assert.Equal(t, 2, got.BeneficiaryCount)
	assert.True(t, got.TotalDistributed.Equal(dec("120")))
	require.NotNil(t, got.CompletedAt)
}

func TestSQLite_FinalizeIsSingleShot(t *testing.T) {
	// GIVEN: A finalized batch
	// WHEN: Finalizing again (a racing reaper or replay)
	// THEN: ErrBatchAlreadyFinal, the terminal record is untouched

	s := newTestStore(t)
	ids := seedUsers(t, s, 1)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.CreateBatch(ctx, referral.BatchAuditRecord{
		BatchID:      "b-once",
		SourceUserID: ids[0],
		Currency:     referral.CurrencyUNI,
		EarnedAmount: dec("1"),
		CreatedAt:    now,
	}))
	require.NoError(t, s.FinalizeBatch(ctx, referral.BatchAuditRecord{
		BatchID: "b-once", Status: referral.BatchCompleted,
		TotalDistributed: dec("1"), CompletedAt: &now,
	}))

	err := s.FinalizeBatch(ctx, referral.BatchAuditRecord{
		BatchID: "b-once", Status: referral.BatchFailed,
		TotalDistributed: dec("0"), ErrorMessage: "late reaper", CompletedAt: &now,
	})
	assert.ErrorIs(t, err, referral.ErrBatchAlreadyFinal)

	got, err := s.GetBatch(ctx, "b-once")
	require.NoError(t, err)
	assert.Equal(t, referral.BatchCompleted, got.Status)
	assert.Empty(t, got.ErrorMessage)
}

func TestSQLite_FinalizeUnknownBatch(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	err := s.FinalizeBatch(context.Background(), referral.BatchAuditRecord{
		BatchID: "b-ghost", Status: referral.BatchFailed,
		TotalDistributed: dec("0"), CompletedAt: &now,
	})
	assert.ErrorIs(t, err, referral.ErrBatchNotFound)
}

func TestSQLite_StaleBatches(t *testing.T) {
	s := newTestStore(t)
	ids := seedUsers(t, s, 1)
	ctx := context.Background()

	old := time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, s.CreateBatch(ctx, referral.BatchAuditRecord{
		BatchID: "b-stale", SourceUserID: ids[0], Currency: referral.CurrencyUNI,
		EarnedAmount: dec("1"), CreatedAt: old,
	}))
	require.NoError(t, s.CreateBatch(ctx, referral.BatchAuditRecord{
		BatchID: "b-fresh", SourceUserID: ids[0], Currency: referral.CurrencyUNI,
		EarnedAmount: dec("1"), CreatedAt: time.Now().UTC(),
	}))

	stale, err := s.StaleBatches(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, referral.BatchID("b-stale"), stale[0].BatchID)
}

func TestSQLite_BatchesBySource_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ids := seedUsers(t, s, 2)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateBatch(ctx, referral.BatchAuditRecord{
			BatchID:      referral.BatchID(fmt.Sprintf("b-%d", i)),
			SourceUserID: ids[0],
			Currency:     referral.CurrencyUNI,
			EarnedAmount: dec("1"),
			CreatedAt:    base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, s.CreateBatch(ctx, referral.BatchAuditRecord{
		BatchID: "b-other", SourceUserID: ids[1], Currency: referral.CurrencyUNI,
		EarnedAmount: dec("1"), CreatedAt: base,
	}))

	batches, err := s.BatchesBySource(ctx, ids[0], 2)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, referral.BatchID("b-2"), batches[0].BatchID)
	assert.Equal(t, referral.BatchID("b-1"), batches[1].BatchID)
}

// =============================================================================
// CHAIN CACHE
// =============================================================================

func TestSQLite_ChainCacheRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ids := seedUsers(t, s, 3)
	ctx := context.Background()

	chain := []referral.ChainLink{
		{UserID: ids[1], InviteCode: "code-1", Level: 1},
		{UserID: ids[0], InviteCode: "code-0", Level: 2},
	}
	require.NoError(t, s.RefreshChainCache(ctx, ids[2], chain))

	cached, err := s.CachedChain(ctx, ids[2])
	require.NoError(t, err)
	require.Len(t, cached, 2)
	assert.Equal(t, ids[1], cached[0].UserID)
	assert.Equal(t, 1, cached[0].Level)

	// Refresh replaces, never appends.
	require.NoError(t, s.RefreshChainCache(ctx, ids[2], chain[:1]))
	cached, err = s.CachedChain(ctx, ids[2])
	require.NoError(t, err)
	assert.Len(t, cached, 1)
}

// =============================================================================
// END-TO-END: ENGINE ON SQLITE
// =============================================================================

func TestSQLite_EngineDistribution(t *testing.T) {
	// GIVEN: root <- u-1 <- u-2 persisted in SQLite
	// WHEN: u-2 earns 100 UNI twice with the same batch ID
	// THEN: Single distribution, balances and ledger reconcile

	s := newTestStore(t)
	ids := seedUsers(t, s, 3)
	engine := referral.NewEngine(s)
	ctx := context.Background()

	req := referral.DistributionRequest{
		SourceUserID: ids[2],
		Amount:       dec("100"),
		Currency:     referral.CurrencyUNI,
		BatchID:      "batch-e2e",
	}

	first, err := engine.Distribute(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, first.BeneficiaryCount)
	assert.True(t, first.TotalDistributed.Equal(dec("120")))

	second, err := engine.Distribute(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)

	b1, err := s.Balance(ctx, ids[1], referral.CurrencyUNI)
	require.NoError(t, err)
	assert.True(t, b1.Equal(dec("100")), "got %s", b1)

	sum, err := engine.Ledger().SumForBatch(ctx, "batch-e2e")
	require.NoError(t, err)
	assert.True(t, sum.Equal(dec("120")), "ledger sum %s", sum)
}
