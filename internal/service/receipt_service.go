package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/consult-billing/internal/events"
	"github.com/jmylchreest/consult-billing/internal/repository"
)

const receiptTimeout = 30 * time.Second

// ReceiptService archives a receipt for every stopped session. It plugs into
// the engine's event bus as a Publisher and uploads in the background so a
// slow object store never holds up billing.
type ReceiptService struct {
	storage *StorageService
	repos   *repository.Repositories
	logger  *slog.Logger
	now     func() time.Time
	wg      sync.WaitGroup
}

// NewReceiptService creates a new receipt service.
func NewReceiptService(storage *StorageService, repos *repository.Repositories, logger *slog.Logger) *ReceiptService {
	return &ReceiptService{
		storage: storage,
		repos:   repos,
		logger:  logger.With("component", "receipts"),
		now:     time.Now,
	}
}

// Publish implements events.Publisher. Only session:stopped is handled.
func (r *ReceiptService) Publish(ctx context.Context, ev events.Event) error {
	stopped, ok := ev.(events.SessionStopped)
	if !ok || !r.storage.IsEnabled() {
		return nil
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), receiptTimeout)
		defer cancel()
		if err := r.archive(ctx, stopped); err != nil {
			r.logger.Error("failed to archive receipt",
				"session_id", stopped.SessionID,
				"error", err,
			)
		}
	}()
	return nil
}

func (r *ReceiptService) archive(ctx context.Context, ev events.SessionStopped) error {
	receipt := &Receipt{
		SessionID:            ev.SessionID,
		ConsumerID:           ev.ConsumerID,
		ProviderID:           ev.ProviderID,
		SecondsElapsed:       ev.SecondsElapsed,
		TotalCostPaise:       ev.TotalCostPaise,
		FinalSettlementPaise: ev.FinalSettlementPaise,
		UnbilledSeconds:      ev.UnbilledSeconds,
		EndReason:            ev.Reason,
		GeneratedAt:          r.now().UTC(),
	}

	s, err := r.repos.Session.GetByID(ctx, ev.SessionID)
	if err != nil {
		return err
	}
	if s != nil {
		receipt.SessionType = s.SessionType
		receipt.RatePaisePerMin = s.RatePaisePerMin
		receipt.StartedAt = s.StartedAt
		receipt.EndedAt = s.EndedAt
	}

	return r.storage.StoreReceipt(ctx, receipt)
}

// Wait blocks until pending uploads finish.
func (r *ReceiptService) Wait() {
	r.wg.Wait()
}
