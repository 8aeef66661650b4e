// Package service contains the business logic layer around the billing
// engine: wallet top-ups, the balance gate and receipt archiving.
package service

import (
	"fmt"
	"log/slog"

	"github.com/jmylchreest/consult-billing/internal/billing"
	"github.com/jmylchreest/consult-billing/internal/config"
	"github.com/jmylchreest/consult-billing/internal/repository"
)

// Services holds all service instances.
type Services struct {
	Wallet   *WalletService
	Gate     *BalanceGate
	Storage  *StorageService
	Receipts *ReceiptService
	Engine   *billing.Engine
}

// NewReceipts creates the storage-backed receipt archiver. It is built
// before the engine because it subscribes to the engine's event bus.
func NewReceipts(cfg *config.Config, repos *repository.Repositories, logger *slog.Logger) (*ReceiptService, *StorageService, error) {
	storageSvc, err := NewStorageService(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create storage service: %w", err)
	}
	return NewReceiptService(storageSvc, repos, logger), storageSvc, nil
}

// NewServices creates the services that depend on the engine.
func NewServices(repos *repository.Repositories, engine *billing.Engine, receipts *ReceiptService, storage *StorageService, logger *slog.Logger) *Services {
	return &Services{
		Wallet:   NewWalletService(repos, engine.Config(), logger),
		Gate:     NewBalanceGate(engine, logger),
		Storage:  storage,
		Receipts: receipts,
		Engine:   engine,
	}
}
