/*
handlers.go - HTTP API handlers for the referral commission engine

PURPOSE:
  Exposes the distribution engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Distribution:
    POST   /api/distributions           Distribute commissions for one earning event

  Users:
    POST   /api/users                   Register a user node
    GET    /api/users/{id}              Get user details
    GET    /api/users/{id}/ledger       Commission history (wallet read surface)
    GET    /api/users/{id}/balances     Per-currency balances
    GET    /api/users/{id}/batches      Distribution runs originated by the user
    GET    /api/users/{id}/chain        Fresh ancestor chain walk (diagnostics)

  Audit:
    GET    /api/batches/{id}            Batch audit record
    GET    /api/batches/{id}/entries    Ledger rows of one batch

  Admin:
    POST   /api/admin/reap              Fail stale processing batches now

  Scenarios:
    GET    /api/scenarios               List demo scenarios
    POST   /api/scenarios/load          Seed a demo referral tree

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (batch still processing)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: Background stale-batch reaper
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Dimaosadchuk888/UniFarmConnectX-sub009/referral"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// ChainCache is the optional denormalized-chain capability of a store.
// SQL stores implement it; the memory store does not need to.
type ChainCache interface {
	RefreshChainCache(ctx context.Context, userID referral.UserID, chain []referral.ChainLink) error
	CachedChain(ctx context.Context, userID referral.UserID) ([]referral.ChainLink, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  referral.Store
	Engine *referral.Engine

	// StaleGrace is how long a processing batch may live before the
	// manual reap endpoint fails it.
	StaleGrace time.Duration
}

// NewHandler creates a handler over an explicit storage handle.
func NewHandler(store referral.Store) *Handler {
	return &Handler{
		Store:      store,
		Engine:     referral.NewEngine(store),
		StaleGrace: 10 * time.Minute,
	}
}

// =============================================================================
// DISTRIBUTION ENDPOINT
// =============================================================================

// Distribute runs one commission distribution.
// POST /api/distributions
func (h *Handler) Distribute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req DistributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	result, err := h.Engine.Distribute(ctx, referral.DistributionRequest{
		SourceUserID: referral.UserID(req.SourceUserID),
		Amount:       amount,
		Currency:     referral.Currency(req.Currency),
		BatchID:      referral.BatchID(req.BatchID),
	})
	if err != nil {
		switch {
		case referral.IsClientError(err):
			writeError(w, http.StatusBadRequest, "Distribution rejected", err)
		case referral.IsNotFound(err):
			writeError(w, http.StatusNotFound, "Source user not found", err)
		case referral.IsRetryable(err):
			writeError(w, http.StatusConflict, "Batch still processing, retry later", err)
		default:
			writeError(w, http.StatusInternalServerError, "Distribution failed", err)
		}
		return
	}

	// Opportunistic cache refresh: advisory only, failures are ignored.
	if cache, ok := h.Store.(ChainCache); ok {
		if chain, rerr := h.Engine.Resolver().Resolve(ctx, referral.UserID(req.SourceUserID)); rerr == nil {
			_ = cache.RefreshChainCache(ctx, referral.UserID(req.SourceUserID), chain)
		}
	}

	writeJSON(w, http.StatusOK, toResultDTO(result))
}

// =============================================================================
// USER ENDPOINTS
// =============================================================================

// CreateUser registers a user node in the invitation graph.
// POST /api/users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.InviteCode == "" {
		writeError(w, http.StatusBadRequest, "id and invite_code are required", nil)
		return
	}

	u := referral.User{
		ID:          referral.UserID(req.ID),
		InviteCode:  referral.InviteCode(req.InviteCode),
		InviterCode: referral.InviteCode(req.InviterCode),
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.Store.CreateUser(ctx, u); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create user", err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserDTO(u))
}

// GetUser returns one user.
// GET /api/users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := referral.UserID(chi.URLParam(r, "id"))

	u, err := h.Store.GetUser(ctx, id)
	if err != nil {
		if referral.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "User not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get user", err)
		return
	}

	writeJSON(w, http.StatusOK, toUserDTO(u))
}

// GetLedger returns a user's commission history, newest first.
// GET /api/users/{id}/ledger
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := referral.UserID(chi.URLParam(r, "id"))

	entries, err := h.Engine.Ledger().History(ctx, id, queryLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load ledger", err)
		return
	}

	dtos := make([]LedgerEntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, toEntryDTO(e))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBalances returns a user's per-currency balances.
// GET /api/users/{id}/balances
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := referral.UserID(chi.URLParam(r, "id"))

	if _, err := h.Store.GetUser(ctx, id); err != nil {
		if referral.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "User not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get user", err)
		return
	}

	currencies := []referral.Currency{referral.CurrencyUNI, referral.CurrencyTON}
	dtos := make([]BalanceDTO, 0, len(currencies))
	for _, c := range currencies {
		b, err := h.Store.Balance(ctx, id, c)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to read balance", err)
			return
		}
		dtos = append(dtos, BalanceDTO{Currency: string(c), Balance: b.String()})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetUserBatches returns distribution runs originated by a user.
// GET /api/users/{id}/batches
func (h *Handler) GetUserBatches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := referral.UserID(chi.URLParam(r, "id"))

	records, err := h.Engine.Audit().History(ctx, id, queryLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load batches", err)
		return
	}

	dtos := make([]BatchDTO, 0, len(records))
	for _, rec := range records {
		dtos = append(dtos, toBatchDTO(rec))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetChain performs a fresh ancestor chain walk and reports drift
// against the denormalized cache when the store maintains one.
// GET /api/users/{id}/chain
func (h *Handler) GetChain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := referral.UserID(chi.URLParam(r, "id"))

	chain, err := h.Engine.Resolver().Resolve(ctx, id)
	if err != nil {
		switch {
		case referral.IsNotFound(err):
			writeError(w, http.StatusNotFound, "User not found", err)
		default:
			writeError(w, http.StatusInternalServerError, "Chain resolution failed", err)
		}
		return
	}

	dto := ChainDTO{UserID: string(id), Chain: make([]ChainLinkDTO, 0, len(chain))}
	for _, link := range chain {
		dto.Chain = append(dto.Chain, ChainLinkDTO{UserID: string(link.UserID), Level: link.Level})
	}
	dto.CacheDrift = h.chainCacheDrifted(ctx, id, chain)

	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// AUDIT ENDPOINTS
// =============================================================================

// GetBatch returns one batch audit record.
// GET /api/batches/{id}
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID := referral.BatchID(chi.URLParam(r, "id"))

	rec, err := h.Engine.Audit().Get(ctx, batchID)
	if err != nil {
		if referral.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Batch not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load batch", err)
		return
	}

	writeJSON(w, http.StatusOK, toBatchDTO(rec))
}

// GetBatchEntries returns the ledger rows of one batch.
// GET /api/batches/{id}/entries
func (h *Handler) GetBatchEntries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID := referral.BatchID(chi.URLParam(r, "id"))

	entries, err := h.Engine.Ledger().BatchEntries(ctx, batchID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load batch entries", err)
		return
	}

	dtos := make([]LedgerEntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, toEntryDTO(e))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// ReapStale fails processing batches older than the grace period.
// POST /api/admin/reap
func (h *Handler) ReapStale(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	reaped, err := h.Engine.Audit().ReapStale(ctx, h.StaleGrace)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Reap failed", err)
		return
	}

	writeJSON(w, http.StatusOK, ReapResponse{Reaped: reaped})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// chainCacheDrifted compares a fresh walk against the cached rows.
// Returns false when the store keeps no cache.
func (h *Handler) chainCacheDrifted(ctx context.Context, id referral.UserID, fresh []referral.ChainLink) bool {
	cache, ok := h.Store.(ChainCache)
	if !ok {
		return false
	}
	cached, err := cache.CachedChain(ctx, id)
	if err != nil || len(cached) == 0 {
		return false
	}
	if len(cached) != len(fresh) {
		return true
	}
	for i := range fresh {
		if cached[i].UserID != fresh[i].UserID || cached[i].Level != fresh[i].Level {
			return true
		}
	}
	return false
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
