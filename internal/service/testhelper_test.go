package service

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/jmylchreest/consult-billing/internal/billing"
	"github.com/jmylchreest/consult-billing/internal/database/migrations"
	"github.com/jmylchreest/consult-billing/internal/events"
	"github.com/jmylchreest/consult-billing/internal/models"
	"github.com/jmylchreest/consult-billing/internal/repository"
)

var testEpoch = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestRepos creates repositories over a migrated in-memory database.
func setupTestRepos(t *testing.T) *repository.Repositories {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return repository.NewRepositories(db)
}

// eventLog records published events.
type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) Publish(_ context.Context, ev events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) kinds() []events.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]events.Kind, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Kind())
	}
	return out
}

// newTestEngine creates an engine on a fake clock that retries immediately.
func newTestEngine(t *testing.T, repos *repository.Repositories, bus events.Publisher) (*billing.Engine, *billing.FakeClock) {
	t.Helper()
	clock := billing.NewFakeClock(testEpoch)
	engine := billing.New(repos, bus, billing.DefaultConfig(),
		billing.WithClock(clock),
		billing.WithLogger(testLogger()),
		billing.WithMetrics(nil),
		billing.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	)
	t.Cleanup(engine.Close)
	return engine, clock
}

func fundWallet(t *testing.T, repos *repository.Repositories, userID string, paise int64) {
	t.Helper()
	err := repos.InTx(context.Background(), func(tx *repository.Repositories) error {
		_, err := tx.Wallet.Credit(context.Background(), userID, paise, models.LedgerEntry{Type: models.TxTypeRecharge})
		return err
	})
	if err != nil {
		t.Fatalf("failed to fund wallet: %v", err)
	}
}
