package service

import (
	"context"
	"log/slog"

	"github.com/jmylchreest/consult-billing/internal/billing"
	"github.com/jmylchreest/consult-billing/internal/models"
)

// Gate decision reasons.
const (
	GateReasonProvider            = "provider"
	GateReasonNoActiveSession     = "no_active_session"
	GateReasonSufficientBalance   = "sufficient_balance"
	GateReasonInsufficientBalance = "insufficient_balance"
	GateReasonCheckFailed         = "check_failed"
)

// TickCoster is the part of the billing engine the gate consults.
type TickCoster interface {
	GetNextTickCost(ctx context.Context, consumerID string) (*billing.TickCost, error)
	PublishLowBalance(ctx context.Context, consumerID, sessionID string, balance, required int64)
}

// GateDecision is the outcome of a balance pre-check.
type GateDecision struct {
	Allowed        bool   `json:"allowed"`
	Reason         string `json:"reason"`
	SessionID      string `json:"session_id,omitempty"`
	DeductionPaise int64  `json:"deduction_paise"`
	BalancePaise   int64  `json:"balance_paise"`
}

// BalanceGate answers "can the next tick be afforded?" before a consumer
// action such as sending a chat message or placing a call. It never writes.
// The tick path remains the authoritative enforcement point, so any
// internal error allows the action.
type BalanceGate struct {
	engine TickCoster
	logger *slog.Logger
}

// NewBalanceGate creates a new balance gate.
func NewBalanceGate(engine TickCoster, logger *slog.Logger) *BalanceGate {
	return &BalanceGate{
		engine: engine,
		logger: logger.With("component", "balance_gate"),
	}
}

// Check evaluates the action for userID acting in role. A denial also
// publishes billing:low-balance to the consumer.
func (g *BalanceGate) Check(ctx context.Context, userID string, role models.Role, action string) GateDecision {
	if role == models.RoleProvider {
		return GateDecision{Allowed: true, Reason: GateReasonProvider}
	}

	cost, err := g.engine.GetNextTickCost(ctx, userID)
	if err != nil {
		g.logger.Warn("balance pre-check failed, allowing action",
			"user_id", userID,
			"action", action,
			"error", err,
		)
		return GateDecision{Allowed: true, Reason: GateReasonCheckFailed}
	}

	d := GateDecision{
		Allowed:        cost.OK,
		SessionID:      cost.SessionID,
		DeductionPaise: cost.DeductionPaise,
		BalancePaise:   cost.BalancePaise,
	}
	switch {
	case cost.SessionID == "":
		d.Allowed = true
		d.Reason = GateReasonNoActiveSession
	case cost.OK:
		d.Reason = GateReasonSufficientBalance
	default:
		d.Reason = GateReasonInsufficientBalance
		g.logger.Info("action denied by balance gate",
			"user_id", userID,
			"session_id", cost.SessionID,
			"action", action,
			"balance_paise", cost.BalancePaise,
			"required_paise", cost.DeductionPaise,
		)
		g.engine.PublishLowBalance(ctx, userID, cost.SessionID, cost.BalancePaise, cost.DeductionPaise)
	}
	return d
}
