package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/jmylchreest/consult-billing/internal/billing"
	"github.com/jmylchreest/consult-billing/internal/models"
	"github.com/jmylchreest/consult-billing/internal/repository"
)

// MaxRechargePaise caps a single top-up (1,00,000 rupees).
const MaxRechargePaise int64 = 10_000_000

// Default and maximum page sizes for transaction history.
const (
	DefaultTransactionLimit = 50
	MaxTransactionLimit     = 200
)

// ErrRechargeTooLarge is returned when a top-up exceeds MaxRechargePaise.
var ErrRechargeTooLarge = errors.New("recharge amount exceeds limit")

// WalletService handles wallet top-ups and balance reads.
// Recharge is a trusted, always-succeeding credit; there is no payment
// gateway behind it.
type WalletService struct {
	repos  *repository.Repositories
	cfg    billing.Config
	logger *slog.Logger
}

// NewWalletService creates a new wallet service.
func NewWalletService(repos *repository.Repositories, cfg billing.Config, logger *slog.Logger) *WalletService {
	return &WalletService{
		repos:  repos,
		cfg:    cfg,
		logger: logger.With("component", "wallet"),
	}
}

// GetWallet returns the user's wallet. Users without one read as zero.
func (s *WalletService) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	w, err := s.repos.Wallet.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return w, nil
}

// Recharge credits the user's wallet and records a recharge transaction.
func (s *WalletService) Recharge(ctx context.Context, userID string, amountPaise int64, description string) (*models.WalletTransaction, error) {
	if amountPaise <= 0 {
		return nil, repository.ErrInvalidAmount
	}
	if amountPaise > MaxRechargePaise {
		return nil, ErrRechargeTooLarge
	}
	if description == "" {
		description = "Wallet recharge"
	}

	var txn *models.WalletTransaction
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := s.repos.InTx(ctx, func(tx *repository.Repositories) error {
			var err error
			txn, err = tx.Wallet.Credit(ctx, userID, amountPaise, models.LedgerEntry{
				Type:        models.TxTypeRecharge,
				Description: description,
			})
			return err
		})
		if err != nil && !errors.Is(err, repository.ErrWriteConflict) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(&billing.ExponentialBackOff{Base: s.cfg.BackoffBase}),
		backoff.WithMaxTries(uint(s.cfg.MaxRetries+1)),
		backoff.WithMaxElapsedTime(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to recharge wallet: %w", err)
	}

	s.logger.Info("wallet recharged",
		"user_id", userID,
		"amount_paise", amountPaise,
		"balance_paise", txn.BalanceAfter,
	)
	return txn, nil
}

// ListTransactions returns the user's ledger, newest first.
func (s *WalletService) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]*models.WalletTransaction, error) {
	if limit <= 0 {
		limit = DefaultTransactionLimit
	}
	if limit > MaxTransactionLimit {
		limit = MaxTransactionLimit
	}
	if offset < 0 {
		offset = 0
	}
	txns, err := s.repos.Wallet.ListTransactions(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, nil
}
