// Package routes provides shared route registration for the billing API.
// This allows both the main server and the OpenAPI generator to use
// the same route definitions, ensuring the spec is always in sync.
package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/consult-billing/internal/http/mw"
	"github.com/jmylchreest/consult-billing/internal/version"
)

// NewHumaConfig creates the shared Huma configuration for the API.
// This includes API metadata, security schemes, and tag definitions.
func NewHumaConfig(baseURL string) huma.Config {
	cfg := huma.DefaultConfig("Consult Billing API", version.Get().Short())
	cfg.Info.Description = "Per-second metered billing for paid chat and call consultations between consumers and providers."

	// Disable $schema field in responses
	cfg.CreateHooks = nil

	if baseURL != "" {
		cfg.Servers = []*huma.Server{
			{URL: baseURL, Description: "API Server"},
		}
	}

	cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		mw.SecurityScheme: {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
			Description:  "HS256 JWT issued by the identity service. The `sub` claim is the party ID and `role` is consumer, provider or admin.",
		},
	}

	cfg.Tags = []*huma.Tag{
		{Name: "Consultations", Description: "Start, end and inspect metered sessions", Extensions: map[string]any{"x-displayName": "Consultations"}},
		{Name: "Wallet", Description: "Balance, recharge and transaction history", Extensions: map[string]any{"x-displayName": "Wallet"}},
		{Name: "Gate", Description: "Balance pre-checks before consumer actions", Extensions: map[string]any{"x-displayName": "Gate"}},
		{Name: "Events", Description: "Real-time billing notifications", Extensions: map[string]any{"x-displayName": "Events"}},
		{Name: "Admin", Description: "Party roles and provider rates", Extensions: map[string]any{"x-displayName": "Admin"}},
		{Name: "Health", Description: "System health and status", Extensions: map[string]any{"x-displayName": "Health"}},
	}

	return cfg
}
