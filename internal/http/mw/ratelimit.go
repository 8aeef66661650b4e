package mw

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// UserRequestsPerMinute limits authenticated callers. 0 means unlimited.
	UserRequestsPerMinute int
	// IPRequestsPerMinute is a fallback rate limit by IP for unauthenticated requests
	IPRequestsPerMinute int
}

// DefaultRateLimitConfig returns the limits used when none are configured.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		UserRequestsPerMinute: 120,
		IPRequestsPerMinute:   300,
	}
}

// RateLimitByUser returns a middleware that rate limits by user ID.
// Should be applied AFTER authentication middleware.
// Falls back to IP-based limiting if user is not authenticated.
func RateLimitByUser(cfg RateLimitConfig) func(http.Handler) http.Handler {
	fallbackLimiter := httprate.NewRateLimiter(
		cfg.IPRequestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	)

	var userLimiter *httprate.RateLimiter
	if cfg.UserRequestsPerMinute > 0 {
		userLimiter = httprate.NewRateLimiter(
			cfg.UserRequestsPerMinute,
			time.Minute,
			httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
				return "user:" + GetUserClaims(r.Context()).UserID, nil
			}),
		)
	}

	return func(next http.Handler) http.Handler {
		limited := fallbackLimiter.Handler(next)
		var userLimited http.Handler
		if userLimiter != nil {
			userLimited = userLimiter.Handler(next)
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetUserClaims(r.Context())
			if claims == nil || claims.UserID == "" {
				limited.ServeHTTP(w, r)
				return
			}
			if userLimited == nil {
				// Unlimited
				next.ServeHTTP(w, r)
				return
			}
			userLimited.ServeHTTP(w, r)
		})
	}
}

// RateLimitByIP returns a middleware that rate limits by IP address.
// Useful for public endpoints or as a global fallback.
func RateLimitByIP(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}
