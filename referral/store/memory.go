// Package store provides referral.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Dimaosadchuk888/UniFarmConnectX-sub009/referral"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	users    map[referral.UserID]referral.User
	byCode   map[referral.InviteCode]referral.UserID
	balances map[balanceKey]*balanceCell
	entries  []referral.LedgerEntry
	entryKey map[entryKey]bool
	batches  map[referral.BatchID]referral.BatchAuditRecord
}

type balanceKey struct {
	UserID   referral.UserID
	Currency referral.Currency
}

type entryKey struct {
	BatchID referral.BatchID
	UserID  referral.UserID
	Level   int
}

// balanceCell carries its own lock so concurrent credits to different
// ancestors never contend with each other, mirroring row-level locking.
type balanceCell struct {
	mu    sync.Mutex
	value decimal.Decimal
}

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[referral.UserID]referral.User),
		byCode:   make(map[referral.InviteCode]referral.UserID),
		balances: make(map[balanceKey]*balanceCell),
		entryKey: make(map[entryKey]bool),
		batches:  make(map[referral.BatchID]referral.BatchAuditRecord),
	}
}

// =============================================================================
// GRAPH STORE
// =============================================================================

func (m *Memory) GetUser(_ context.Context, id referral.UserID) (referral.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return referral.User{}, referral.ErrUserNotFound
	}
	return u, nil
}

func (m *Memory) GetUserByInviteCode(_ context.Context, code referral.InviteCode) (referral.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.userByCodeLocked(code)
}

func (m *Memory) userByCodeLocked(code referral.InviteCode) (referral.User, error) {
	id, ok := m.byCode[code]
	if !ok {
		return referral.User{}, referral.ErrUserNotFound
	}
	return m.users[id], nil
}

// LoadInviterChain walks inviter pointers iteratively up to maxDepth.
// Terminates on a cyclic graph by construction (depth bound); repeated
// users are returned as-is for the resolver's cycle detection.
func (m *Memory) LoadInviterChain(_ context.Context, code referral.InviteCode, maxDepth int) ([]referral.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var chain []referral.User
	next := code
	for level := 0; level < maxDepth; level++ {
		u, err := m.userByCodeLocked(next)
		if err != nil {
			// Dangling inviter pointer: the chain just ends here.
			break
		}
		chain = append(chain, u)
		if !u.HasInviter() {
			break
		}
		next = u.InviterCode
	}
	return chain, nil
}

func (m *Memory) CreateUser(_ context.Context, u referral.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	m.users[u.ID] = u
	m.byCode[u.InviteCode] = u.ID
	return nil
}

// =============================================================================
// BALANCE STORE
// =============================================================================

func (m *Memory) Credit(_ context.Context, id referral.UserID, currency referral.Currency, amount decimal.Decimal) error {
	m.mu.Lock()
	if _, ok := m.users[id]; !ok {
		m.mu.Unlock()
		return referral.ErrUserNotFound
	}
	k := balanceKey{UserID: id, Currency: currency}
	cell, ok := m.balances[k]
	if !ok {
		cell = &balanceCell{value: decimal.Zero}
		m.balances[k] = cell
	}
	m.mu.Unlock()

	// Per-ancestor serialization: only credits to the same cell contend.
	cell.mu.Lock()
	cell.value = cell.value.Add(amount)
	cell.mu.Unlock()
	return nil
}

func (m *Memory) Balance(_ context.Context, id referral.UserID, currency referral.Currency) (decimal.Decimal, error) {
	m.mu.RLock()
	cell, ok := m.balances[balanceKey{UserID: id, Currency: currency}]
	m.mu.RUnlock()

	if !ok {
		return decimal.Zero, nil
	}
	cell.mu.Lock()
	defer cell.mu.Unlock()
	return cell.value, nil
}

// =============================================================================
// LEDGER STORE (append-only)
// =============================================================================

func (m *Memory) AppendEntry(_ context.Context, e referral.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := entryKey{BatchID: e.BatchID, UserID: e.BeneficiaryUserID, Level: e.Level}
	if m.entryKey[k] {
		return referral.ErrDuplicateEntry
	}
	m.entryKey[k] = true
	m.entries = append(m.entries, e)
	return nil
}

func (m *Memory) EntriesByBeneficiary(_ context.Context, id referral.UserID, limit int) ([]referral.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []referral.LedgerEntry
	for _, e := range m.entries {
		if e.BeneficiaryUserID == id {
			result = append(result, e)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *Memory) EntriesByBatch(_ context.Context, batchID referral.BatchID) ([]referral.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []referral.LedgerEntry
	for _, e := range m.entries {
		if e.BatchID == batchID {
			result = append(result, e)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Level < result[j].Level
	})
	return result, nil
}

// =============================================================================
// AUDIT STORE
// =============================================================================

func (m *Memory) CreateBatch(_ context.Context, rec referral.BatchAuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.batches[rec.BatchID]; exists {
		return referral.ErrDuplicateBatch
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.batches[rec.BatchID] = rec
	return nil
}

func (m *Memory) FinalizeBatch(_ context.Context, rec referral.BatchAuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.batches[rec.BatchID]
	if !ok {
		return referral.ErrBatchNotFound
	}
	if existing.Status.Terminal() {
		return referral.ErrBatchAlreadyFinal
	}

	existing.Status = rec.Status
	existing.LevelsProcessed = rec.LevelsProcessed
	existing.BeneficiaryCount = rec.BeneficiaryCount
	existing.TotalDistributed = rec.TotalDistributed
	existing.ErrorMessage = rec.ErrorMessage
	existing.CompletedAt = rec.CompletedAt
	m.batches[rec.BatchID] = existing
	return nil
}

func (m *Memory) GetBatch(_ context.Context, batchID referral.BatchID) (referral.BatchAuditRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.batches[batchID]
	if !ok {
		return referral.BatchAuditRecord{}, referral.ErrBatchNotFound
	}
	return rec, nil
}

func (m *Memory) BatchesBySource(_ context.Context, id referral.UserID, limit int) ([]referral.BatchAuditRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []referral.BatchAuditRecord
	for _, rec := range m.batches {
		if rec.SourceUserID == id {
			result = append(result, rec)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *Memory) StaleBatches(_ context.Context, cutoff time.Time) ([]referral.BatchAuditRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []referral.BatchAuditRecord
	for _, rec := range m.batches {
		if rec.Status == referral.BatchProcessing && rec.CreatedAt.Before(cutoff) {
			result = append(result, rec)
		}
	}
	return result, nil
}
