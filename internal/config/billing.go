package config

import (
	"errors"
	"fmt"
	"time"
)

// BillingConfig holds billing engine configuration.
type BillingConfig struct {
	// TickInterval is the billing interval T. Each tick charges
	// ceil(rate * T / 60) paise, so it must be a whole number of seconds.
	TickInterval time.Duration

	// GracePeriod is how long a consumer has to top up after a failed tick
	// before the session is force-stopped.
	GracePeriod time.Duration

	// MaxRetries bounds retries of a write-conflicted transaction.
	MaxRetries int

	// BackoffBase is the first retry delay; each retry doubles it.
	BackoffBase time.Duration

	// StaleAfter closes sessions at startup that have not been billed for
	// this long (the process was down).
	StaleAfter time.Duration
}

// DefaultBillingConfig returns the default billing configuration.
func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		TickInterval: 15 * time.Second,
		GracePeriod:  30 * time.Second,
		MaxRetries:   3,
		BackoffBase:  100 * time.Millisecond,
		StaleAfter:   2 * time.Minute,
	}
}

// Validate checks the billing settings.
func (c BillingConfig) Validate() error {
	var errs []error
	if c.TickInterval < time.Second || c.TickInterval%time.Second != 0 {
		errs = append(errs, fmt.Errorf("BILLING_TICK_INTERVAL must be a whole number of seconds, got %s", c.TickInterval))
	}
	if c.GracePeriod <= 0 {
		errs = append(errs, errors.New("BILLING_GRACE_PERIOD must be positive"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("BILLING_MAX_RETRIES must not be negative"))
	}
	if c.BackoffBase <= 0 {
		errs = append(errs, errors.New("BILLING_BACKOFF_BASE must be positive"))
	}
	if c.StaleAfter < c.TickInterval {
		errs = append(errs, errors.New("BILLING_STALE_SESSION_AFTER must be at least one tick interval"))
	}
	return errors.Join(errs...)
}
