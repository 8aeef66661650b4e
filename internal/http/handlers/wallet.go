package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/consult-billing/internal/models"
	"github.com/jmylchreest/consult-billing/internal/service"
)

// WalletHandler handles wallet endpoints.
type WalletHandler struct {
	svc    *service.WalletService
	logger *slog.Logger
}

// NewWalletHandler creates a new wallet handler.
func NewWalletHandler(svc *service.WalletService, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{svc: svc, logger: logger.With("component", "wallet_handler")}
}

// WalletOutput represents a wallet in API responses.
type WalletOutput struct {
	UserID             string `json:"user_id"`
	BalancePaise       int64  `json:"balance_paise" doc:"Spendable balance"`
	LifetimeAddedPaise int64  `json:"lifetime_added_paise" doc:"Total ever credited"`
	LifetimeSpentPaise int64  `json:"lifetime_spent_paise" doc:"Total ever debited"`
}

// GetWalletOutput represents the wallet response.
type GetWalletOutput struct {
	Body WalletOutput
}

// GetWallet returns the caller's wallet.
func (h *WalletHandler) GetWallet(ctx context.Context, input *struct{}) (*GetWalletOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	w, err := h.svc.GetWallet(ctx, userID)
	if err != nil {
		return nil, billingError(ctx, h.logger, "get wallet", err)
	}
	return &GetWalletOutput{Body: WalletOutput{
		UserID:             w.UserID,
		BalancePaise:       w.BalancePaise,
		LifetimeAddedPaise: w.LifetimeAdded,
		LifetimeSpentPaise: w.LifetimeSpent,
	}}, nil
}

// TransactionOutput represents a ledger entry in API responses.
type TransactionOutput struct {
	ID                string `json:"id"`
	Type              string `json:"type" doc:"recharge, debit or credit"`
	AmountPaise       int64  `json:"amount_paise"`
	BalanceAfterPaise int64  `json:"balance_after_paise"`
	SessionID         string `json:"session_id,omitempty"`
	Description       string `json:"description,omitempty"`
	CreatedAt         string `json:"created_at"`
}

func transactionToOutput(t *models.WalletTransaction) TransactionOutput {
	out := TransactionOutput{
		ID:                t.ID,
		Type:              string(t.Type),
		AmountPaise:       t.AmountPaise,
		BalanceAfterPaise: t.BalanceAfter,
		Description:       t.Description,
		CreatedAt:         t.CreatedAt.Format(time.RFC3339),
	}
	if t.SessionID != nil {
		out.SessionID = *t.SessionID
	}
	return out
}

// RechargeInput represents a recharge request. Admins may top up another
// user's wallet.
type RechargeInput struct {
	Body struct {
		AmountPaise int64  `json:"amount_paise" minimum:"1" doc:"Amount to add in paise"`
		Description string `json:"description,omitempty" maxLength:"200" doc:"Ledger description"`
		UserID      string `json:"user_id,omitempty" doc:"Admin only: wallet to credit"`
	}
}

// RechargeOutput represents the recharge response.
type RechargeOutput struct {
	Body TransactionOutput
}

// Recharge credits a wallet. This is the trusted top-up path; there is no
// payment gateway behind it.
func (h *WalletHandler) Recharge(ctx context.Context, input *RechargeInput) (*RechargeOutput, error) {
	claims := getUserClaims(ctx)
	if claims == nil {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	target := claims.UserID
	if input.Body.UserID != "" && input.Body.UserID != claims.UserID {
		if !claims.IsAdmin() {
			return nil, huma.Error403Forbidden("cannot recharge another user's wallet")
		}
		target = input.Body.UserID
	}

	txn, err := h.svc.Recharge(ctx, target, input.Body.AmountPaise, input.Body.Description)
	if err != nil {
		return nil, billingError(ctx, h.logger, "recharge", err)
	}
	return &RechargeOutput{Body: transactionToOutput(txn)}, nil
}

// ListTransactionsInput represents ledger paging.
type ListTransactionsInput struct {
	Limit  int `query:"limit" default:"50" minimum:"1" maximum:"200" doc:"Page size"`
	Offset int `query:"offset" default:"0" minimum:"0" doc:"Rows to skip"`
}

// ListTransactionsOutput represents the ledger response.
type ListTransactionsOutput struct {
	Body struct {
		Transactions []TransactionOutput `json:"transactions" doc:"Transactions, newest first"`
	}
}

// ListTransactions returns the caller's wallet history.
func (h *WalletHandler) ListTransactions(ctx context.Context, input *ListTransactionsInput) (*ListTransactionsOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	txns, err := h.svc.ListTransactions(ctx, userID, input.Limit, input.Offset)
	if err != nil {
		return nil, billingError(ctx, h.logger, "list transactions", err)
	}
	out := &ListTransactionsOutput{}
	out.Body.Transactions = make([]TransactionOutput, 0, len(txns))
	for _, t := range txns {
		out.Body.Transactions = append(out.Body.Transactions, transactionToOutput(t))
	}
	return out, nil
}
