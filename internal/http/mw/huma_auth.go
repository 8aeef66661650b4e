package mw

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// SecurityScheme is the name of the security scheme used in OpenAPI.
const SecurityScheme = "bearerAuth"

// OperationMetadataKey is the key for storing additional operation requirements.
type OperationMetadataKey string

const (
	// MetaKeyRequireAdmin is metadata key for admin requirement.
	MetaKeyRequireAdmin OperationMetadataKey = "requireAdmin"
)

// HumaAuth returns a Huma middleware that handles authentication based on operation security.
// It checks ctx.Operation().Security to determine if authentication is required.
func HumaAuth(api huma.API, a *Authenticator) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op == nil || !operationRequiresAuth(op) {
			next(ctx)
			return
		}

		claims, err := a.authenticate(ctx.Header, "")
		if err != nil {
			if errors.Is(err, errMissingAuth) {
				huma.WriteErr(api, ctx, http.StatusUnauthorized, "missing authorization header")
				return
			}
			slog.Debug("auth validation failed", "error", err)
			huma.WriteErr(api, ctx, http.StatusUnauthorized, "invalid token")
			return
		}

		if requiresAdmin(op) && !claims.IsAdmin() {
			huma.WriteErr(api, ctx, http.StatusForbidden, "admin access required")
			return
		}

		next(huma.WithContext(ctx, WithUserClaims(ctx.Context(), claims)))
	}
}

// operationRequiresAuth checks if the operation has bearerAuth in its security requirements.
func operationRequiresAuth(op *huma.Operation) bool {
	for _, secReq := range op.Security {
		if _, ok := secReq[SecurityScheme]; ok {
			return true
		}
	}
	return false
}

// requiresAdmin checks operation metadata for admin requirement.
func requiresAdmin(op *huma.Operation) bool {
	if op.Metadata == nil {
		return false
	}
	if val, ok := op.Metadata[string(MetaKeyRequireAdmin)]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}
