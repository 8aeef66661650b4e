package mw

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jmylchreest/consult-billing/internal/version"
)

// Response headers describing the server.
const (
	HeaderAPIVersion  = "X-API-Version"
	HeaderTickSeconds = "X-Billing-Tick-Seconds"
)

// APIVersion returns middleware that adds the X-API-Version header to all responses.
func APIVersion() func(http.Handler) http.Handler {
	return staticHeader(HeaderAPIVersion, version.Get().Short())
}

// BillingTick advertises the billing interval so clients can show a
// countdown to the next charge without polling.
func BillingTick(interval time.Duration) func(http.Handler) http.Handler {
	return staticHeader(HeaderTickSeconds, strconv.FormatInt(int64(interval/time.Second), 10))
}

func staticHeader(name, value string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(name, value)
			next.ServeHTTP(w, r)
		})
	}
}
