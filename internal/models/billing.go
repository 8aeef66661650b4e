// Package models defines the domain models for the application.
package models

import "time"

// ========================================
// Wallets
// ========================================

// Wallet tracks a party's balance in paise. Consumers spend from it,
// providers are credited into it.
type Wallet struct {
	UserID        string    `json:"user_id"`
	BalancePaise  int64     `json:"balance_paise"`
	LifetimeAdded int64     `json:"lifetime_added_paise"`
	LifetimeSpent int64     `json:"lifetime_spent_paise"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ========================================
// Wallet Transactions
// ========================================

// WalletTransactionType defines the type of wallet transaction.
type WalletTransactionType string

const (
	TxTypeRecharge WalletTransactionType = "recharge" // Trusted top-up
	TxTypeDebit    WalletTransactionType = "debit"    // Consumer charged for consultation time
	TxTypeCredit   WalletTransactionType = "credit"   // Provider paid for consultation time
)

// WalletTransaction is one append-only entry in a wallet's history.
type WalletTransaction struct {
	ID           string                `json:"id"`
	UserID       string                `json:"user_id"`
	Type         WalletTransactionType `json:"type"`
	AmountPaise  int64                 `json:"amount_paise"`  // Always positive; Type gives the direction
	BalanceAfter int64                 `json:"balance_after"` // Balance after this transaction
	SessionID    *string               `json:"session_id,omitempty"`
	Description  string                `json:"description"`
	CreatedAt    time.Time             `json:"created_at"`
}

// LedgerEntry describes the history row written alongside a balance change.
type LedgerEntry struct {
	Type        WalletTransactionType
	SessionID   string
	Description string
}
