package routes

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/consult-billing/internal/http/handlers"
)

// StubHandlers returns a Handlers instance with stub implementations.
// All handlers return nil responses - these are only used for OpenAPI generation
// where Huma extracts type information from function signatures.
func StubHandlers() *Handlers {
	return &Handlers{
		HealthCheck: stubHealthCheck,
		Livez:       stubLivez,
		Readyz:      stubReadyz,

		Consultation: &stubConsultationHandlers{},
		Wallet:       &stubWalletHandlers{},
		Gate:         &stubGateHandlers{},
		Admin:        &stubAdminHandlers{},
		Events:       &stubEventHandlers{},
	}
}

// --- Public endpoint stubs ---

func stubHealthCheck(_ context.Context, _ *struct{}) (*handlers.HealthCheckOutput, error) {
	return nil, nil
}

func stubLivez(_ context.Context, _ *struct{}) (*handlers.LivezOutput, error) {
	return nil, nil
}

func stubReadyz(_ context.Context, _ *struct{}) (*handlers.ReadyzOutput, error) {
	return nil, nil
}

// --- Consultation stubs ---

type stubConsultationHandlers struct{}

func (s *stubConsultationHandlers) StartConsultation(_ context.Context, _ *handlers.StartConsultationInput) (*handlers.SessionResponse, error) {
	return nil, nil
}

func (s *stubConsultationHandlers) EndConsultation(_ context.Context, _ *handlers.EndConsultationInput) (*handlers.EndConsultationOutput, error) {
	return nil, nil
}

func (s *stubConsultationHandlers) GetActiveConsultation(_ context.Context, _ *struct{}) (*handlers.ActiveConsultationOutput, error) {
	return nil, nil
}

func (s *stubConsultationHandlers) GetNextTickCost(_ context.Context, _ *struct{}) (*handlers.NextTickCostOutput, error) {
	return nil, nil
}

func (s *stubConsultationHandlers) ListConsultations(_ context.Context, _ *handlers.ListConsultationsInput) (*handlers.ListConsultationsOutput, error) {
	return nil, nil
}

// --- Wallet stubs ---

type stubWalletHandlers struct{}

func (s *stubWalletHandlers) GetWallet(_ context.Context, _ *struct{}) (*handlers.GetWalletOutput, error) {
	return nil, nil
}

func (s *stubWalletHandlers) Recharge(_ context.Context, _ *handlers.RechargeInput) (*handlers.RechargeOutput, error) {
	return nil, nil
}

func (s *stubWalletHandlers) ListTransactions(_ context.Context, _ *handlers.ListTransactionsInput) (*handlers.ListTransactionsOutput, error) {
	return nil, nil
}

// --- Gate stubs ---

type stubGateHandlers struct{}

func (s *stubGateHandlers) Check(_ context.Context, _ *handlers.GateCheckInput) (*handlers.GateCheckOutput, error) {
	return nil, nil
}

// --- Admin stubs ---

type stubAdminHandlers struct{}

func (s *stubAdminHandlers) GetParty(_ context.Context, _ *handlers.GetPartyInput) (*handlers.PartyResponse, error) {
	return nil, nil
}

func (s *stubAdminHandlers) UpsertParty(_ context.Context, _ *handlers.UpsertPartyInput) (*handlers.PartyResponse, error) {
	return nil, nil
}

// --- Events stubs ---

type stubEventHandlers struct{}

// RegisterRawEndpoints documents the stream with the same event schemas as
// the real handler, without needing a broker or engine.
func (s *stubEventHandlers) RegisterRawEndpoints(api huma.API) {
	(&handlers.EventsHandler{}).RegisterRawEndpoints(api)
}
