package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/consult-billing/internal/service"
)

// GateHandler exposes the balance pre-check.
type GateHandler struct {
	gate *service.BalanceGate
}

// NewGateHandler creates a new gate handler.
func NewGateHandler(gate *service.BalanceGate) *GateHandler {
	return &GateHandler{gate: gate}
}

// GateCheckInput represents a gate request.
type GateCheckInput struct {
	Body struct {
		Action string `json:"action" minLength:"1" maxLength:"64" example:"chat:message" doc:"Action the caller is about to perform"`
	}
}

// GateCheckOutput represents the gate decision.
type GateCheckOutput struct {
	Body service.GateDecision
}

// Check decides whether the caller may perform the action. A denial is a
// normal 200 response with allowed=false.
func (h *GateHandler) Check(ctx context.Context, input *GateCheckInput) (*GateCheckOutput, error) {
	claims := getUserClaims(ctx)
	if claims == nil {
		return nil, huma.Error401Unauthorized("unauthorized")
	}
	return &GateCheckOutput{Body: h.gate.Check(ctx, claims.UserID, claims.Role, input.Body.Action)}, nil
}
