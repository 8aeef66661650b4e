package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/consult-billing/internal/models"
)

// ========================================
// Wallet Repository
// ========================================

// SQLiteWalletRepository implements WalletRepository for SQLite.
type SQLiteWalletRepository struct {
	db DBTX
}

// NewSQLiteWalletRepository creates a new SQLite wallet repository.
func NewSQLiteWalletRepository(db DBTX) *SQLiteWalletRepository {
	return &SQLiteWalletRepository{db: db}
}

func (r *SQLiteWalletRepository) Get(ctx context.Context, userID string) (*models.Wallet, error) {
	query := `SELECT user_id, balance_paise, lifetime_added, lifetime_spent, created_at, updated_at FROM wallets WHERE user_id = ?`
	var w models.Wallet
	var createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&w.UserID, &w.BalancePaise, &w.LifetimeAdded, &w.LifetimeSpent, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return &models.Wallet{UserID: userID}, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	w.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	w.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &w, nil
}

// Debit is a single conditional UPDATE: the balance check and the decrement
// cannot be separated by another writer.
func (r *SQLiteWalletRepository) Debit(ctx context.Context, userID string, amountPaise int64, entry models.LedgerEntry) (*models.WalletTransaction, error) {
	if amountPaise <= 0 {
		return nil, ErrInvalidAmount
	}
	now := time.Now().UTC()

	query := `UPDATE wallets SET
			balance_paise = balance_paise - ?,
			lifetime_spent = lifetime_spent + ?,
			updated_at = ?
		WHERE user_id = ? AND balance_paise >= ?
		RETURNING balance_paise`
	var balanceAfter int64
	err := r.db.QueryRowContext(ctx, query, amountPaise, amountPaise, now.Format(time.RFC3339), userID, amountPaise).Scan(&balanceAfter)
	if err == sql.ErrNoRows {
		return nil, ErrInsufficientFunds
	}
	if err != nil {
		return nil, classify(err)
	}

	return r.appendTransaction(ctx, userID, amountPaise, balanceAfter, entry, now)
}

func (r *SQLiteWalletRepository) Credit(ctx context.Context, userID string, amountPaise int64, entry models.LedgerEntry) (*models.WalletTransaction, error) {
	if amountPaise <= 0 {
		return nil, ErrInvalidAmount
	}
	now := time.Now().UTC()
	ts := now.Format(time.RFC3339)

	query := `INSERT INTO wallets (user_id, balance_paise, lifetime_added, lifetime_spent, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			balance_paise = wallets.balance_paise + excluded.balance_paise,
			lifetime_added = wallets.lifetime_added + excluded.lifetime_added,
			updated_at = excluded.updated_at
		RETURNING balance_paise`
	var balanceAfter int64
	if err := r.db.QueryRowContext(ctx, query, userID, amountPaise, amountPaise, ts, ts).Scan(&balanceAfter); err != nil {
		return nil, classify(err)
	}

	return r.appendTransaction(ctx, userID, amountPaise, balanceAfter, entry, now)
}

func (r *SQLiteWalletRepository) appendTransaction(ctx context.Context, userID string, amountPaise, balanceAfter int64, entry models.LedgerEntry, now time.Time) (*models.WalletTransaction, error) {
	tx := &models.WalletTransaction{
		ID:           ulid.Make().String(),
		UserID:       userID,
		Type:         entry.Type,
		AmountPaise:  amountPaise,
		BalanceAfter: balanceAfter,
		Description:  entry.Description,
		CreatedAt:    now,
	}
	var sessionID sql.NullString
	if entry.SessionID != "" {
		tx.SessionID = &entry.SessionID
		sessionID = sql.NullString{String: entry.SessionID, Valid: true}
	}

	query := `INSERT INTO wallet_transactions (id, user_id, type, amount_paise, balance_after, session_id, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, tx.ID, tx.UserID, string(tx.Type), tx.AmountPaise, tx.BalanceAfter, sessionID, tx.Description, now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, classify(err)
	}
	return tx, nil
}

// ListTransactions returns a wallet's history, newest first.
func (r *SQLiteWalletRepository) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]*models.WalletTransaction, error) {
	query := `SELECT id, user_id, type, amount_paise, balance_after, session_id, description, created_at
		FROM wallet_transactions WHERE user_id = ? ORDER BY id DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var txs []*models.WalletTransaction
	for rows.Next() {
		var tx models.WalletTransaction
		var txType, createdAt string
		var sessionID sql.NullString
		if err := rows.Scan(&tx.ID, &tx.UserID, &txType, &tx.AmountPaise, &tx.BalanceAfter, &sessionID, &tx.Description, &createdAt); err != nil {
			return nil, err
		}
		tx.Type = models.WalletTransactionType(txType)
		if sessionID.Valid {
			tx.SessionID = &sessionID.String
		}
		tx.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		txs = append(txs, &tx)
	}
	return txs, rows.Err()
}
