/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract. Amounts are
  serialized as decimal strings so clients never see float rounding.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/Dimaosadchuk888/UniFarmConnectX-sub009/referral"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// CreateUserRequest registers a user node in the invitation graph.
type CreateUserRequest struct {
	ID          string `json:"id"`
	InviteCode  string `json:"invite_code"`
	InviterCode string `json:"inviter_code,omitempty"`
}

// UserDTO represents a user in API responses.
type UserDTO struct {
	ID          string `json:"id"`
	InviteCode  string `json:"invite_code"`
	InviterCode string `json:"inviter_code,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// DistributeRequest is one earning event to distribute commissions for.
type DistributeRequest struct {
	SourceUserID string `json:"source_user_id"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	BatchID      string `json:"batch_id,omitempty"`
}

// DistributionResultDTO reports the outcome of one distribution run.
type DistributionResultDTO struct {
	BatchID          string               `json:"batch_id"`
	LevelsProcessed  int                  `json:"levels_processed"`
	BeneficiaryCount int                  `json:"beneficiary_count"`
	TotalDistributed string               `json:"total_distributed"`
	Replayed         bool                 `json:"replayed"`
	Failures         []AncestorFailureDTO `json:"failures,omitempty"`
}

// AncestorFailureDTO reports one skipped ancestor credit.
type AncestorFailureDTO struct {
	UserID string `json:"user_id"`
	Level  int    `json:"level"`
	Reason string `json:"reason"`
}

// LedgerEntryDTO represents one commission credit in wallet history.
type LedgerEntryDTO struct {
	ID           string `json:"id"`
	Beneficiary  string `json:"beneficiary_user_id"`
	Kind         string `json:"kind"`
	Currency     string `json:"currency"`
	Amount       string `json:"amount"`
	Level        int    `json:"level"`
	Percentage   string `json:"percentage"`
	SourceUserID string `json:"source_user_id"`
	SourceAmount string `json:"source_amount"`
	BatchID      string `json:"batch_id"`
	CreatedAt    string `json:"created_at"`
}

// BatchDTO represents a batch audit record.
type BatchDTO struct {
	BatchID          string `json:"batch_id"`
	SourceUserID     string `json:"source_user_id"`
	Currency         string `json:"currency"`
	EarnedAmount     string `json:"earned_amount"`
	Status           string `json:"status"`
	LevelsProcessed  int    `json:"levels_processed"`
	BeneficiaryCount int    `json:"beneficiary_count"`
	TotalDistributed string `json:"total_distributed"`
	ErrorMessage     string `json:"error_message,omitempty"`
	CreatedAt        string `json:"created_at"`
	CompletedAt      string `json:"completed_at,omitempty"`
}

// ChainLinkDTO is one resolved ancestor in the diagnostics view.
type ChainLinkDTO struct {
	UserID string `json:"user_id"`
	Level  int    `json:"level"`
}

// ChainDTO is the fresh walk plus cache drift diagnostics.
type ChainDTO struct {
	UserID     string         `json:"user_id"`
	Chain      []ChainLinkDTO `json:"chain"`
	CacheDrift bool           `json:"cache_drift"`
}

// BalanceDTO is one per-currency balance.
type BalanceDTO struct {
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
}

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to seed.
type LoadScenarioRequest struct {
	ID string `json:"id"`
}

// ReapResponse reports a stale-batch sweep.
type ReapResponse struct {
	Reaped int `json:"reaped"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toUserDTO(u referral.User) UserDTO {
	return UserDTO{
		ID:          string(u.ID),
		InviteCode:  string(u.InviteCode),
		InviterCode: string(u.InviterCode),
		CreatedAt:   u.CreatedAt.Format(time.RFC3339),
	}
}

func toResultDTO(r *referral.DistributionResult) DistributionResultDTO {
	dto := DistributionResultDTO{
		BatchID:          string(r.BatchID),
		LevelsProcessed:  r.LevelsProcessed,
		BeneficiaryCount: r.BeneficiaryCount,
		TotalDistributed: r.TotalDistributed.String(),
		Replayed:         r.Replayed,
	}
	for _, f := range r.Failures {
		dto.Failures = append(dto.Failures, AncestorFailureDTO{
			UserID: string(f.UserID),
			Level:  f.Level,
			Reason: f.Reason,
		})
	}
	return dto
}

func toEntryDTO(e referral.LedgerEntry) LedgerEntryDTO {
	return LedgerEntryDTO{
		ID:           string(e.ID),
		Beneficiary:  string(e.BeneficiaryUserID),
		Kind:         string(e.Kind),
		Currency:     string(e.Currency),
		Amount:       e.Amount.String(),
		Level:        e.Level,
		Percentage:   e.Percentage.String(),
		SourceUserID: string(e.SourceUserID),
		SourceAmount: e.SourceAmount.String(),
		BatchID:      string(e.BatchID),
		CreatedAt:    e.CreatedAt.Format(time.RFC3339),
	}
}

func toBatchDTO(rec referral.BatchAuditRecord) BatchDTO {
	dto := BatchDTO{
		BatchID:          string(rec.BatchID),
		SourceUserID:     string(rec.SourceUserID),
		Currency:         string(rec.Currency),
		EarnedAmount:     rec.EarnedAmount.String(),
		Status:           string(rec.Status),
		LevelsProcessed:  rec.LevelsProcessed,
		BeneficiaryCount: rec.BeneficiaryCount,
		TotalDistributed: rec.TotalDistributed.String(),
		ErrorMessage:     rec.ErrorMessage,
		CreatedAt:        rec.CreatedAt.Format(time.RFC3339),
	}
	if rec.CompletedAt != nil {
		dto.CompletedAt = rec.CompletedAt.Format(time.RFC3339)
	}
	return dto
}
