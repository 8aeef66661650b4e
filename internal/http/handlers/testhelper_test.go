package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/danielgtaylor/huma/v2/humatest"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/jmylchreest/consult-billing/internal/billing"
	"github.com/jmylchreest/consult-billing/internal/database/migrations"
	"github.com/jmylchreest/consult-billing/internal/events"
	"github.com/jmylchreest/consult-billing/internal/http/mw"
	"github.com/jmylchreest/consult-billing/internal/models"
	"github.com/jmylchreest/consult-billing/internal/repository"
	"github.com/jmylchreest/consult-billing/internal/service"
)

var testEpoch = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv wires the handlers over a migrated in-memory database, a fake
// clock and an in-process broker. Auth runs in header mode, so callers are
// chosen with asUser.
type testEnv struct {
	api    humatest.TestAPI
	repos  *repository.Repositories
	engine *billing.Engine
	clock  *billing.FakeClock
	broker *events.Broker
}

func newTestEnv(t *testing.T) *testEnv {
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

	repos := repository.NewRepositories(db)
	broker := events.NewBroker(2, 16, testLogger())
	clock := billing.NewFakeClock(testEpoch)
	engine := billing.New(repos, broker, billing.DefaultConfig(),
		billing.WithClock(clock),
		billing.WithLogger(testLogger()),
		billing.WithMetrics(nil),
		billing.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	)
	t.Cleanup(engine.Close)

	_, api := humatest.New(t)
	api.UseMiddleware(mw.HumaAuth(api, mw.NewAuthenticator(nil, true)))

	logger := testLogger()
	consultations := NewConsultationHandler(engine, repos.Party, logger)
	mw.ProtectedPost(api, "/api/v1/consultations", consultations.StartConsultation)
	mw.ProtectedPost(api, "/api/v1/consultations/end", consultations.EndConsultation)
	mw.ProtectedGet(api, "/api/v1/consultations/active", consultations.GetActiveConsultation)
	mw.ProtectedGet(api, "/api/v1/consultations/next-tick-cost", consultations.GetNextTickCost)
	mw.ProtectedGet(api, "/api/v1/consultations", consultations.ListConsultations)

	wallet := NewWalletHandler(service.NewWalletService(repos, billing.DefaultConfig(), logger), logger)
	mw.ProtectedGet(api, "/api/v1/wallet", wallet.GetWallet)
	mw.ProtectedPost(api, "/api/v1/wallet/recharge", wallet.Recharge)
	mw.ProtectedGet(api, "/api/v1/wallet/transactions", wallet.ListTransactions)

	gate := NewGateHandler(service.NewBalanceGate(engine, logger))
	mw.ProtectedPost(api, "/api/v1/gate/check", gate.Check)

	admin := NewAdminHandler(repos.Party, logger)
	mw.ProtectedGet(api, "/api/v1/admin/parties/{id}", admin.GetParty, mw.WithAdmin())
	mw.ProtectedPut(api, "/api/v1/admin/parties/{id}", admin.UpsertParty, mw.WithAdmin())

	return &testEnv{api: api, repos: repos, engine: engine, clock: clock, broker: broker}
}

// asUser returns humatest header arguments for a caller.
func asUser(userID string, role models.Role) []any {
	return []any{
		mw.HeaderUserID + ": " + userID,
		mw.HeaderUserRole + ": " + string(role),
	}
}

func (e *testEnv) addProvider(t *testing.T, id string, ratePaisePerMin int64) {
	t.Helper()
	err := e.repos.Party.Upsert(context.Background(), &models.Party{
		ID:              id,
		Role:            models.RoleProvider,
		RatePaisePerMin: ratePaisePerMin,
	})
	if err != nil {
		t.Fatalf("failed to add provider: %v", err)
	}
}

func (e *testEnv) fund(t *testing.T, userID string, paise int64) {
	t.Helper()
	err := e.repos.InTx(context.Background(), func(tx *repository.Repositories) error {
		_, err := tx.Wallet.Credit(context.Background(), userID, paise, models.LedgerEntry{Type: models.TxTypeRecharge})
		return err
	})
	if err != nil {
		t.Fatalf("failed to fund wallet: %v", err)
	}
}

func (e *testEnv) balance(t *testing.T, userID string) int64 {
	t.Helper()
	w, err := e.repos.Wallet.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("failed to get wallet: %v", err)
	}
	return w.BalancePaise
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("failed to decode %s: %v", data, err)
	}
	return v
}
