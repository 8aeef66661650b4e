// Package repository defines repository interfaces for data access.
// Parties are owned by the identity provider; wallets, their history and
// billing sessions are owned here.
package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmylchreest/consult-billing/internal/models"
)

// PartyRepository defines methods for party (profile) data access.
type PartyRepository interface {
	// Get returns nil, nil when the party is unknown.
	Get(ctx context.Context, id string) (*models.Party, error)
	Upsert(ctx context.Context, party *models.Party) error
}

// WalletRepository defines methods for wallet and ledger data access.
// Debit and Credit change the balance and append the history row in one
// statement pair, so callers run them inside Repositories.InTx.
type WalletRepository interface {
	// Get returns a zero-balance wallet when none exists yet. It never writes.
	Get(ctx context.Context, userID string) (*models.Wallet, error)
	// Debit decrements the balance by amount only if balance >= amount.
	// Returns ErrInsufficientFunds otherwise.
	Debit(ctx context.Context, userID string, amountPaise int64, entry models.LedgerEntry) (*models.WalletTransaction, error)
	// Credit increments the balance by amount, creating the wallet if needed.
	Credit(ctx context.Context, userID string, amountPaise int64, entry models.LedgerEntry) (*models.WalletTransaction, error)
	ListTransactions(ctx context.Context, userID string, limit, offset int) ([]*models.WalletTransaction, error)
}

// SessionRepository defines methods for billing session data access.
type SessionRepository interface {
	// CreateIfNoLive inserts the session unless the consumer already has a
	// live one, in which case it returns ErrLiveSessionExists.
	CreateIfNoLive(ctx context.Context, s *models.BillingSession) error
	// GetByID returns nil, nil when the session does not exist.
	GetByID(ctx context.Context, id string) (*models.BillingSession, error)
	// GetLiveByConsumer returns nil, nil when the consumer has no live session.
	GetLiveByConsumer(ctx context.Context, consumerID string) (*models.BillingSession, error)
	ListLive(ctx context.Context) ([]*models.BillingSession, error)
	ListByParty(ctx context.Context, partyID string, limit, offset int) ([]*models.BillingSession, error)
	// Update writes s if the stored version still equals s.Version and bumps
	// the version. Returns ErrWriteConflict when another writer got there first.
	Update(ctx context.Context, s *models.BillingSession) error
}

// DBTX is the subset of *sql.DB and *sql.Tx the SQLite repositories use.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repositories holds all repository instances.
type Repositories struct {
	db *sql.DB // nil when bound to a transaction

	Party   PartyRepository
	Wallet  WalletRepository
	Session SessionRepository
}

// NewRepositories creates all repository instances.
func NewRepositories(db *sql.DB) *Repositories {
	r := newRepositories(db)
	r.db = db
	return r
}

func newRepositories(q DBTX) *Repositories {
	return &Repositories{
		Party:   NewSQLitePartyRepository(q),
		Wallet:  NewSQLiteWalletRepository(q),
		Session: NewSQLiteSessionRepository(q),
	}
}

// InTx runs fn against repositories bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise. Calling
// InTx on transaction-bound repositories runs fn in the outer transaction.
func (r *Repositories) InTx(ctx context.Context, fn func(tx *Repositories) error) error {
	if r.db == nil {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(newRepositories(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// Ping checks database connectivity.
func (r *Repositories) Ping(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	return r.db.PingContext(ctx)
}
