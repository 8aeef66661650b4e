package models

import "time"

// Role is a party's role in a consultation.
type Role string

const (
	RoleConsumer Role = "consumer" // Pays for consultation time
	RoleProvider Role = "provider" // Earns for consultation time
	RoleAdmin    Role = "admin"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleConsumer, RoleProvider, RoleAdmin:
		return true
	}
	return false
}

// Party is the billing view of a user profile: who they are and, for
// providers, what they charge.
type Party struct {
	ID              string    `json:"id"`
	Role            Role      `json:"role"`
	DisplayName     string    `json:"display_name"`
	RatePaisePerMin int64     `json:"rate_paise_per_min"` // Only meaningful for providers
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SessionType is the kind of consultation being metered.
type SessionType string

const (
	SessionTypeChat SessionType = "chat"
	SessionTypeCall SessionType = "call"
)

// IsValid reports whether t is a known session type.
func (t SessionType) IsValid() bool {
	return t == SessionTypeChat || t == SessionTypeCall
}

// EndReason records why a session stopped.
type EndReason string

const (
	EndReasonUserEnded           EndReason = "user_ended"
	EndReasonUserDisconnected    EndReason = "user_disconnected"
	EndReasonInsufficientBalance EndReason = "insufficient_balance"
	EndReasonInvalidRole         EndReason = "invalid_role"
	EndReasonProcessingError     EndReason = "processing_error"
	EndReasonStaleSession        EndReason = "stale_session"
)

// BillingSession is one metered relationship between a consumer and a provider.
type BillingSession struct {
	ID              string      `json:"id"`
	ConsumerID      string      `json:"consumer_id"`
	ProviderID      string      `json:"provider_id"`
	SessionType     SessionType `json:"session_type"`
	RatePaisePerMin int64       `json:"rate_paise_per_min"`
	SecondsElapsed  int64       `json:"seconds_elapsed"`
	TotalCostPaise  int64       `json:"total_cost_paise"`
	Live            bool        `json:"live"`
	StartedAt       time.Time   `json:"started_at"`
	EndedAt         *time.Time  `json:"ended_at,omitempty"`
	EndReason       EndReason   `json:"end_reason,omitempty"`
	Version         int64       `json:"-"` // Optimistic concurrency token
	UpdatedAt       time.Time   `json:"updated_at"`
}

// CalculateCurrentCost derives the session cost from the billed seconds.
// TotalCostPaise is only ever a cached copy of this value.
func (s *BillingSession) CalculateCurrentCost() int64 {
	return CostForSeconds(s.RatePaisePerMin, s.SecondsElapsed)
}

// CostForSeconds returns ceil(seconds * ratePerMin / 60) in paise.
func CostForSeconds(ratePaisePerMin, seconds int64) int64 {
	if ratePaisePerMin <= 0 || seconds <= 0 {
		return 0
	}
	return (seconds*ratePaisePerMin + 59) / 60
}
