package repository

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInsufficientFunds is returned by a conditional debit that would take
	// the balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrWriteConflict is returned when a concurrent writer won: either a
	// version check failed or SQLite reported the database busy or locked.
	// It is the only retryable repository error.
	ErrWriteConflict = errors.New("write conflict")
	// ErrInvalidAmount is returned for non-positive money movements.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrLiveSessionExists is returned when a consumer already has a live session.
	ErrLiveSessionExists = errors.New("consumer already has a live session")
)

// classify maps driver-level contention errors onto ErrWriteConflict.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrWriteConflict) {
		return err
	}
	msg := err.Error()
	if strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED") ||
		strings.Contains(msg, "database table is locked") {
		return fmt.Errorf("%w: %v", ErrWriteConflict, err)
	}
	return err
}
