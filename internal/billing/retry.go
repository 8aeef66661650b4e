package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/jmylchreest/consult-billing/internal/repository"
)

// ExponentialBackOff waits base, 2*base, 4*base, ... between attempts.
type ExponentialBackOff struct {
	Base    time.Duration
	attempt int
}

// NextBackOff implements backoff.BackOff.
func (b *ExponentialBackOff) NextBackOff() time.Duration {
	d := b.Base << b.attempt
	b.attempt++
	return d
}

// Reset implements backoff.BackOff.
func (b *ExponentialBackOff) Reset() {
	b.attempt = 0
}

// withRetry runs fn, retrying only on write conflicts. Any other error is
// returned after the first attempt.
func (e *Engine) withRetry(ctx context.Context, op string, fn func() error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := fn()
		if err == nil {
			return struct{}{}, nil
		}
		if errors.Is(err, repository.ErrWriteConflict) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(e.newBackOff()),
		backoff.WithMaxTries(uint(e.cfg.MaxRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			e.logger.Warn("write conflict, retrying",
				"op", op,
				"wait", wait,
				"error", err,
			)
		}),
	)
	if err != nil && errors.Is(err, repository.ErrWriteConflict) {
		return fmt.Errorf("%s: retries exhausted: %w", op, err)
	}
	return err
}
