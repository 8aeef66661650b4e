package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/consult-billing/internal/http/mw"
)

// Register registers all API routes with the given Huma API instance.
// Pass real handler implementations for the main server, or stub implementations
// for OpenAPI generation.
func Register(api huma.API, h *Handlers) {
	// =========================================================================
	// Public Routes (no auth required)
	// =========================================================================

	mw.PublicGet(api, "/api/v1/health", h.HealthCheck,
		mw.WithTags("Health"),
		mw.WithSummary("Health check"),
		mw.WithOperationID("healthCheck"))

	// Kubernetes probes (hidden from docs - internal use only)
	mw.HiddenGet(api, "/healthz", h.Livez)
	mw.HiddenGet(api, "/readyz", h.Readyz)

	// =========================================================================
	// Protected Routes (require bearer auth)
	// =========================================================================

	// --- Consultations ---
	mw.ProtectedPost(api, "/api/v1/consultations", h.Consultation.StartConsultation,
		mw.WithTags("Consultations"),
		mw.WithSummary("Start a consultation"),
		mw.WithDescription("Starts a metered session with a provider at the provider's current rate. Fails with 409 if the caller already has a live session."),
		mw.WithOperationID("startConsultation"))
	mw.ProtectedPost(api, "/api/v1/consultations/end", h.Consultation.EndConsultation,
		mw.WithTags("Consultations"),
		mw.WithSummary("End a consultation"),
		mw.WithDescription("Stops a session and charges the time since the last tick. Ending an already ended session is a no-op."),
		mw.WithOperationID("endConsultation"))
	mw.ProtectedGet(api, "/api/v1/consultations/active", h.Consultation.GetActiveConsultation,
		mw.WithTags("Consultations"),
		mw.WithSummary("Get the live session"),
		mw.WithOperationID("getActiveConsultation"))
	mw.ProtectedGet(api, "/api/v1/consultations/next-tick-cost", h.Consultation.GetNextTickCost,
		mw.WithTags("Consultations"),
		mw.WithSummary("Project the next tick"),
		mw.WithOperationID("getNextTickCost"))
	mw.ProtectedGet(api, "/api/v1/consultations", h.Consultation.ListConsultations,
		mw.WithTags("Consultations"),
		mw.WithSummary("List consultations"),
		mw.WithOperationID("listConsultations"))

	// --- Gate ---
	mw.ProtectedPost(api, "/api/v1/gate/check", h.Gate.Check,
		mw.WithTags("Gate"),
		mw.WithSummary("Check balance before an action"),
		mw.WithDescription("Reports whether the caller can afford the next tick of their live session. A denial also sends billing:low-balance."),
		mw.WithOperationID("gateCheck"))

	// --- Wallet ---
	mw.ProtectedGet(api, "/api/v1/wallet", h.Wallet.GetWallet,
		mw.WithTags("Wallet"),
		mw.WithSummary("Get wallet"),
		mw.WithOperationID("getWallet"))
	mw.ProtectedPost(api, "/api/v1/wallet/recharge", h.Wallet.Recharge,
		mw.WithTags("Wallet"),
		mw.WithSummary("Recharge wallet"),
		mw.WithOperationID("rechargeWallet"))
	mw.ProtectedGet(api, "/api/v1/wallet/transactions", h.Wallet.ListTransactions,
		mw.WithTags("Wallet"),
		mw.WithSummary("List wallet transactions"),
		mw.WithOperationID("listWalletTransactions"))

	// --- Events ---
	// The SSE handler is mounted on chi; this adds it to OpenAPI.
	h.Events.RegisterRawEndpoints(api)

	// --- Admin ---
	mw.ProtectedGet(api, "/api/v1/admin/parties/{id}", h.Admin.GetParty,
		mw.WithTags("Admin"),
		mw.WithSummary("Get party"),
		mw.WithOperationID("getParty"),
		mw.WithAdmin())
	mw.ProtectedPut(api, "/api/v1/admin/parties/{id}", h.Admin.UpsertParty,
		mw.WithTags("Admin"),
		mw.WithSummary("Create or update party"),
		mw.WithDescription("Sets a party's role and, for providers, the per-minute rate used by sessions started afterwards."),
		mw.WithOperationID("upsertParty"),
		mw.WithAdmin())
}
