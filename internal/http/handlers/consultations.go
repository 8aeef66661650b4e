package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/consult-billing/internal/billing"
	"github.com/jmylchreest/consult-billing/internal/models"
	"github.com/jmylchreest/consult-billing/internal/repository"
)

// ConsultationHandler handles consultation lifecycle endpoints.
type ConsultationHandler struct {
	engine  *billing.Engine
	parties repository.PartyRepository
	logger  *slog.Logger
}

// NewConsultationHandler creates a new consultation handler.
func NewConsultationHandler(engine *billing.Engine, parties repository.PartyRepository, logger *slog.Logger) *ConsultationHandler {
	return &ConsultationHandler{
		engine:  engine,
		parties: parties,
		logger:  logger.With("component", "consultations"),
	}
}

// SessionOutput represents a billing session in API responses.
type SessionOutput struct {
	ID              string `json:"id" doc:"Session ID"`
	ConsumerID      string `json:"consumer_id" doc:"Paying party"`
	ProviderID      string `json:"provider_id" doc:"Earning party"`
	SessionType     string `json:"session_type" doc:"chat or call"`
	RatePaisePerMin int64  `json:"rate_paise_per_min" doc:"Rate fixed at session start"`
	SecondsElapsed  int64  `json:"seconds_elapsed" doc:"Seconds billed so far"`
	TotalCostPaise  int64  `json:"total_cost_paise" doc:"Amount charged so far"`
	Live            bool   `json:"live" doc:"Whether the session is still being billed"`
	StartedAt       string `json:"started_at" doc:"Start timestamp"`
	EndedAt         string `json:"ended_at,omitempty" doc:"End timestamp"`
	EndReason       string `json:"end_reason,omitempty" doc:"Why the session ended"`
}

func sessionToOutput(s *models.BillingSession) SessionOutput {
	out := SessionOutput{
		ID:              s.ID,
		ConsumerID:      s.ConsumerID,
		ProviderID:      s.ProviderID,
		SessionType:     string(s.SessionType),
		RatePaisePerMin: s.RatePaisePerMin,
		SecondsElapsed:  s.SecondsElapsed,
		TotalCostPaise:  s.TotalCostPaise,
		Live:            s.Live,
		StartedAt:       s.StartedAt.Format(time.RFC3339),
		EndReason:       string(s.EndReason),
	}
	if s.EndedAt != nil {
		out.EndedAt = s.EndedAt.Format(time.RFC3339)
	}
	return out
}

// ========================================
// Start
// ========================================

// StartConsultationInput represents a start request.
type StartConsultationInput struct {
	Body struct {
		ProviderID  string `json:"provider_id" minLength:"1" doc:"Provider to consult"`
		SessionType string `json:"session_type" enum:"chat,call" doc:"Kind of consultation"`
	}
}

// SessionResponse wraps a single session.
type SessionResponse struct {
	Body SessionOutput
}

// StartConsultation starts a metered session between the caller and a provider
// at the provider's current rate.
func (h *ConsultationHandler) StartConsultation(ctx context.Context, input *StartConsultationInput) (*SessionResponse, error) {
	claims := getUserClaims(ctx)
	if claims == nil {
		return nil, huma.Error401Unauthorized("unauthorized")
	}
	if claims.IsProvider() {
		return nil, huma.Error403Forbidden("providers cannot start paid consultations")
	}

	provider, err := h.parties.Get(ctx, input.Body.ProviderID)
	if err != nil {
		return nil, billingError(ctx, h.logger, "lookup provider", err)
	}
	if provider == nil || provider.Role != models.RoleProvider {
		return nil, huma.Error404NotFound("provider not found")
	}

	s, err := h.engine.StartSession(ctx, claims.UserID, provider.ID, provider.RatePaisePerMin, models.SessionType(input.Body.SessionType))
	if err != nil {
		return nil, billingError(ctx, h.logger, "start session", err)
	}
	return &SessionResponse{Body: sessionToOutput(s)}, nil
}

// ========================================
// End
// ========================================

// EndConsultationInput represents an end request. Without a session ID the
// caller's live session is ended.
type EndConsultationInput struct {
	Body struct {
		SessionID string `json:"session_id,omitempty" doc:"Session to end; defaults to the caller's live session"`
		Reason    string `json:"reason,omitempty" enum:"user_ended,user_disconnected" doc:"Why the session is ending (default user_ended)"`
	}
}

// SettlementOutput represents the outcome of ending a session.
type SettlementOutput struct {
	Session              SessionOutput `json:"session"`
	FinalSettlementPaise int64         `json:"final_settlement_paise" doc:"Charge for the time since the last tick"`
	UnbilledSeconds      int64         `json:"unbilled_seconds" doc:"Seconds since the last tick"`
	Reason               string        `json:"reason"`
	AlreadyEnded         bool          `json:"already_ended" doc:"True when the session had already stopped"`
}

// EndConsultationOutput represents the end response.
type EndConsultationOutput struct {
	Body SettlementOutput
}

// EndConsultation stops a session and settles the partial interval. Either
// party to the session may end it.
func (h *ConsultationHandler) EndConsultation(ctx context.Context, input *EndConsultationInput) (*EndConsultationOutput, error) {
	claims := getUserClaims(ctx)
	if claims == nil {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	var s *models.BillingSession
	var err error
	if input.Body.SessionID == "" {
		s, err = h.engine.GetActiveSession(ctx, claims.UserID)
	} else {
		s, err = h.engine.GetSession(ctx, input.Body.SessionID)
	}
	if err != nil {
		return nil, billingError(ctx, h.logger, "lookup session", err)
	}
	if s == nil {
		return nil, huma.Error404NotFound("no active session")
	}
	if !claims.IsAdmin() && s.ConsumerID != claims.UserID && s.ProviderID != claims.UserID {
		return nil, huma.Error404NotFound("session not found")
	}

	reason := models.EndReasonUserEnded
	if input.Body.Reason != "" {
		reason = models.EndReason(input.Body.Reason)
	}

	st, err := h.engine.StopSession(ctx, s.ID, reason)
	if err != nil {
		return nil, billingError(ctx, h.logger, "stop session", err)
	}
	return &EndConsultationOutput{Body: SettlementOutput{
		Session:              sessionToOutput(st.Session),
		FinalSettlementPaise: st.FinalSettlementPaise,
		UnbilledSeconds:      st.UnbilledSeconds,
		Reason:               string(st.Reason),
		AlreadyEnded:         st.AlreadyEnded,
	}}, nil
}

// ========================================
// Queries
// ========================================

// ActiveConsultationOutput represents the caller's live session, if any.
type ActiveConsultationOutput struct {
	Body struct {
		Session *SessionOutput `json:"session" doc:"Live session, null when none"`
	}
}

// GetActiveConsultation returns the caller's live session as consumer.
func (h *ConsultationHandler) GetActiveConsultation(ctx context.Context, input *struct{}) (*ActiveConsultationOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	s, err := h.engine.GetActiveSession(ctx, userID)
	if err != nil {
		return nil, billingError(ctx, h.logger, "get active session", err)
	}
	out := &ActiveConsultationOutput{}
	if s != nil {
		so := sessionToOutput(s)
		out.Body.Session = &so
	}
	return out, nil
}

// NextTickCostOutput represents the projection of the caller's next tick.
type NextTickCostOutput struct {
	Body billing.TickCost
}

// GetNextTickCost reports whether the caller can afford the next tick.
func (h *ConsultationHandler) GetNextTickCost(ctx context.Context, input *struct{}) (*NextTickCostOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	tc, err := h.engine.GetNextTickCost(ctx, userID)
	if err != nil {
		return nil, billingError(ctx, h.logger, "get next tick cost", err)
	}
	return &NextTickCostOutput{Body: *tc}, nil
}

// ListConsultationsInput represents history paging.
type ListConsultationsInput struct {
	Limit  int `query:"limit" default:"20" minimum:"1" maximum:"100" doc:"Page size"`
	Offset int `query:"offset" default:"0" minimum:"0" doc:"Rows to skip"`
}

// ListConsultationsOutput represents session history.
type ListConsultationsOutput struct {
	Body struct {
		Sessions []SessionOutput `json:"sessions" doc:"Sessions, newest first"`
	}
}

// ListConsultations returns sessions where the caller is consumer or provider.
func (h *ConsultationHandler) ListConsultations(ctx context.Context, input *ListConsultationsInput) (*ListConsultationsOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	sessions, err := h.engine.ListSessions(ctx, userID, input.Limit, input.Offset)
	if err != nil {
		return nil, billingError(ctx, h.logger, "list sessions", err)
	}
	out := &ListConsultationsOutput{}
	out.Body.Sessions = make([]SessionOutput, 0, len(sessions))
	for _, s := range sessions {
		out.Body.Sessions = append(out.Body.Sessions, sessionToOutput(s))
	}
	return out, nil
}
