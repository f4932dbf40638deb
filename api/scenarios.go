/*
scenarios.go - Demo referral trees for manual testing

PURPOSE:
  Seeds recognizable invitation graphs so the API can be exercised
  end-to-end without the identity subsystem. Each scenario is a set of
  user nodes with invite/inviter codes.

SCENARIOS:
  two-level:  root <- alice <- bob (partial chain, 2 paid levels)
  deep-chain: 21-user chain (level-20 truncation is observable)
  wide-tree:  one root with three direct invitees sharing an ancestor
              (concurrency demos: all earnings credit the same root)

NOTE:
  Loading a scenario twice fails on the invite-code uniqueness
  constraint; restart with a fresh database to reload.

SEE ALSO:
  - handlers.go: ListScenarios / LoadScenario endpoints
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Dimaosadchuk888/UniFarmConnectX-sub009/referral"
)

type scenario struct {
	ID          string
	Name        string
	Description string
	Users       []referral.User
}

func chainUsers(prefix string, length int) []referral.User {
	users := make([]referral.User, 0, length)
	for i := 0; i < length; i++ {
		u := referral.User{
			ID:         referral.UserID(fmt.Sprintf("%s-%02d", prefix, i)),
			InviteCode: referral.InviteCode(fmt.Sprintf("%s-code-%02d", prefix, i)),
		}
		if i > 0 {
			u.InviterCode = referral.InviteCode(fmt.Sprintf("%s-code-%02d", prefix, i-1))
		}
		users = append(users, u)
	}
	return users
}

func scenarios() []scenario {
	wide := []referral.User{
		{ID: "wide-root", InviteCode: "wide-root-code"},
		{ID: "wide-a", InviteCode: "wide-a-code", InviterCode: "wide-root-code"},
		{ID: "wide-b", InviteCode: "wide-b-code", InviterCode: "wide-root-code"},
		{ID: "wide-c", InviteCode: "wide-c-code", InviterCode: "wide-root-code"},
	}

	return []scenario{
		{
			ID:          "two-level",
			Name:        "Two-level chain",
			Description: "root invites alice, alice invites bob; bob's earnings pay levels 1 and 2",
			Users:       chainUsers("two", 3),
		},
		{
			ID:          "deep-chain",
			Name:        "Deep chain (21 users)",
			Description: "the deepest user's earnings pay exactly 20 levels",
			Users:       chainUsers("deep", 21),
		},
		{
			ID:          "wide-tree",
			Name:        "Wide tree",
			Description: "three invitees share one root; concurrent earnings all credit it",
			Users:       wide,
		},
	}
}

// ListScenarios returns the available demo scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, _ *http.Request) {
	dtos := make([]ScenarioDTO, 0)
	for _, sc := range scenarios() {
		dtos = append(dtos, ScenarioDTO{ID: sc.ID, Name: sc.Name, Description: sc.Description})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// LoadScenario seeds one scenario's users.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	for _, sc := range scenarios() {
		if sc.ID != req.ID {
			continue
		}
		if err := h.seedScenario(ctx, sc); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
			return
		}
		writeJSON(w, http.StatusOK, ScenarioDTO{ID: sc.ID, Name: sc.Name, Description: sc.Description})
		return
	}

	writeError(w, http.StatusNotFound, "Unknown scenario", nil)
}

func (h *Handler) seedScenario(ctx context.Context, sc scenario) error {
	now := time.Now().UTC()
	for _, u := range sc.Users {
		u.CreatedAt = now
		if err := h.Store.CreateUser(ctx, u); err != nil {
			return fmt.Errorf("seed user %s: %w", u.ID, err)
		}
	}
	return nil
}
