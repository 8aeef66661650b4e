package billing

import (
	"errors"
	"fmt"

	"github.com/jmylchreest/consult-billing/internal/repository"
)

var (
	// ErrDuplicateSession is returned by StartSession when the consumer
	// already has a live session. The concrete error is *DuplicateSessionError.
	ErrDuplicateSession = errors.New("consumer already has a live session")
	// ErrWriteConflict is transient and retried with backoff.
	ErrWriteConflict = repository.ErrWriteConflict
	// ErrInvalidRole means the paying side of a session is not a billable
	// consumer. Never retried.
	ErrInvalidRole = errors.New("party is not a billable consumer")
	// ErrSessionNotFound is returned when the session id is unknown.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidRate is returned when the rate is not a positive paise amount.
	ErrInvalidRate = errors.New("rate must be positive")
	// ErrInvalidSessionType is returned for anything other than chat or call.
	ErrInvalidSessionType = errors.New("invalid session type")
	// ErrTickInFlight is returned when a tick for the same session is still
	// being processed. The tick is dropped, not queued.
	ErrTickInFlight = errors.New("tick already in flight")
	// ErrEngineClosed is returned after Close.
	ErrEngineClosed = errors.New("billing engine closed")
)

// DuplicateSessionError carries the session that blocked a new start.
type DuplicateSessionError struct {
	ConsumerID string
	SessionID  string
}

func (e *DuplicateSessionError) Error() string {
	return fmt.Sprintf("consumer %s already has live session %s", e.ConsumerID, e.SessionID)
}

// Is lets errors.Is(err, ErrDuplicateSession) match.
func (e *DuplicateSessionError) Is(target error) bool {
	return target == ErrDuplicateSession
}
