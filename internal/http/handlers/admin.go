package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/consult-billing/internal/models"
	"github.com/jmylchreest/consult-billing/internal/repository"
)

// AdminHandler handles party administration. Parties mirror the identity
// provider's profiles; these endpoints are how roles and rates get here.
type AdminHandler struct {
	parties repository.PartyRepository
	logger  *slog.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(parties repository.PartyRepository, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{parties: parties, logger: logger.With("component", "admin")}
}

// PartyOutput represents a party in API responses.
type PartyOutput struct {
	ID              string `json:"id"`
	Role            string `json:"role"`
	DisplayName     string `json:"display_name,omitempty"`
	RatePaisePerMin int64  `json:"rate_paise_per_min"`
	UpdatedAt       string `json:"updated_at"`
}

func partyToOutput(p *models.Party) PartyOutput {
	return PartyOutput{
		ID:              p.ID,
		Role:            string(p.Role),
		DisplayName:     p.DisplayName,
		RatePaisePerMin: p.RatePaisePerMin,
		UpdatedAt:       p.UpdatedAt.Format(time.RFC3339),
	}
}

// PartyResponse wraps a single party.
type PartyResponse struct {
	Body PartyOutput
}

// GetPartyInput identifies a party.
type GetPartyInput struct {
	ID string `path:"id" doc:"Party ID"`
}

// GetParty returns a party.
func (h *AdminHandler) GetParty(ctx context.Context, input *GetPartyInput) (*PartyResponse, error) {
	p, err := h.parties.Get(ctx, input.ID)
	if err != nil {
		return nil, billingError(ctx, h.logger, "get party", err)
	}
	if p == nil {
		return nil, huma.Error404NotFound("party not found")
	}
	return &PartyResponse{Body: partyToOutput(p)}, nil
}

// UpsertPartyInput represents a party upsert.
type UpsertPartyInput struct {
	ID   string `path:"id" doc:"Party ID"`
	Body struct {
		Role            string `json:"role" enum:"consumer,provider" doc:"Billing role"`
		DisplayName     string `json:"display_name,omitempty" maxLength:"120"`
		RatePaisePerMin int64  `json:"rate_paise_per_min,omitempty" minimum:"0" doc:"Required and positive for providers"`
	}
}

// UpsertParty creates or replaces a party's role and rate. Rate changes apply
// to sessions started afterwards; live sessions keep their starting rate.
func (h *AdminHandler) UpsertParty(ctx context.Context, input *UpsertPartyInput) (*PartyResponse, error) {
	role := models.Role(input.Body.Role)
	rate := input.Body.RatePaisePerMin
	if role == models.RoleProvider && rate <= 0 {
		return nil, huma.Error422UnprocessableEntity("providers need a positive rate_paise_per_min")
	}
	if role == models.RoleConsumer {
		rate = 0
	}

	p := &models.Party{
		ID:              input.ID,
		Role:            role,
		DisplayName:     input.Body.DisplayName,
		RatePaisePerMin: rate,
	}
	if err := h.parties.Upsert(ctx, p); err != nil {
		return nil, billingError(ctx, h.logger, "upsert party", err)
	}

	h.logger.Info("party updated",
		"party_id", p.ID,
		"role", p.Role,
		"rate_paise_per_min", p.RatePaisePerMin,
		"by", getUserID(ctx),
	)
	return &PartyResponse{Body: partyToOutput(p)}, nil
}
