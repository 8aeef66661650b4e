package routes

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/consult-billing/internal/http/handlers"
)

// ConsultationHandlers defines the interface for session lifecycle operations.
type ConsultationHandlers interface {
	StartConsultation(ctx context.Context, input *handlers.StartConsultationInput) (*handlers.SessionResponse, error)
	EndConsultation(ctx context.Context, input *handlers.EndConsultationInput) (*handlers.EndConsultationOutput, error)
	GetActiveConsultation(ctx context.Context, input *struct{}) (*handlers.ActiveConsultationOutput, error)
	GetNextTickCost(ctx context.Context, input *struct{}) (*handlers.NextTickCostOutput, error)
	ListConsultations(ctx context.Context, input *handlers.ListConsultationsInput) (*handlers.ListConsultationsOutput, error)
}

// WalletHandlers defines the interface for wallet operations.
type WalletHandlers interface {
	GetWallet(ctx context.Context, input *struct{}) (*handlers.GetWalletOutput, error)
	Recharge(ctx context.Context, input *handlers.RechargeInput) (*handlers.RechargeOutput, error)
	ListTransactions(ctx context.Context, input *handlers.ListTransactionsInput) (*handlers.ListTransactionsOutput, error)
}

// GateHandlers defines the interface for the balance gate.
type GateHandlers interface {
	Check(ctx context.Context, input *handlers.GateCheckInput) (*handlers.GateCheckOutput, error)
}

// AdminHandlers defines the interface for party administration.
type AdminHandlers interface {
	GetParty(ctx context.Context, input *handlers.GetPartyInput) (*handlers.PartyResponse, error)
	UpsertParty(ctx context.Context, input *handlers.UpsertPartyInput) (*handlers.PartyResponse, error)
}

// EventHandlers documents the raw SSE stream.
type EventHandlers interface {
	// RegisterRawEndpoints registers SSE endpoints for OpenAPI documentation.
	RegisterRawEndpoints(api huma.API)
}

// Handlers aggregates all handler interfaces for route registration.
// For the main server, pass real handler implementations.
// For OpenAPI generation, pass stub implementations.
type Handlers struct {
	// Public endpoints
	HealthCheck func(ctx context.Context, input *struct{}) (*handlers.HealthCheckOutput, error)

	// Kubernetes probes (hidden from docs)
	Livez  func(ctx context.Context, input *struct{}) (*handlers.LivezOutput, error)
	Readyz func(ctx context.Context, input *struct{}) (*handlers.ReadyzOutput, error)

	// Protected endpoint handlers
	Consultation ConsultationHandlers
	Wallet       WalletHandlers
	Gate         GateHandlers
	Admin        AdminHandlers
	Events       EventHandlers
}
