package billing

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/require"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/jmylchreest/consult-billing/internal/database/migrations"
	"github.com/jmylchreest/consult-billing/internal/events"
	"github.com/jmylchreest/consult-billing/internal/models"
	"github.com/jmylchreest/consult-billing/internal/repository"
)

var epoch = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

// recorder is a Publisher that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) ofKind(k events.Kind) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.Kind() == k {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) stopped() []events.SessionStopped {
	var out []events.SessionStopped
	for _, ev := range r.ofKind(events.KindSessionStopped) {
		out = append(out, ev.(events.SessionStopped))
	}
	return out
}

func (r *recorder) lowBalance() []events.LowBalance {
	var out []events.LowBalance
	for _, ev := range r.ofKind(events.KindLowBalance) {
		out = append(out, ev.(events.LowBalance))
	}
	return out
}

func (r *recorder) ticks() []events.BillingTick {
	var out []events.BillingTick
	for _, ev := range r.ofKind(events.KindBillingTick) {
		out = append(out, ev.(events.BillingTick))
	}
	return out
}

// zeroBackOff retries immediately.
func zeroBackOff() backoff.BackOff { return &backoff.ZeroBackOff{} }

type harness struct {
	db     *sql.DB
	repos  *repository.Repositories
	clock  *FakeClock
	bus    *recorder
	engine *Engine
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, migrations.Run(db, nil))
	t.Cleanup(func() { _ = db.Close() })

	h := &harness{
		db:    db,
		repos: repository.NewRepositories(db),
		clock: NewFakeClock(epoch),
		bus:   &recorder{},
	}
	base := []Option{WithClock(h.clock), WithBackOff(zeroBackOff), WithMetrics(nil)}
	h.engine = New(h.repos, h.bus, DefaultConfig(), append(base, opts...)...)
	t.Cleanup(h.engine.Close)
	return h
}

func (h *harness) fund(t *testing.T, userID string, paise int64) {
	t.Helper()
	err := h.repos.InTx(context.Background(), func(tx *repository.Repositories) error {
		_, err := tx.Wallet.Credit(context.Background(), userID, paise, models.LedgerEntry{Type: models.TxTypeRecharge})
		return err
	})
	require.NoError(t, err)
}

func (h *harness) balance(t *testing.T, userID string) int64 {
	t.Helper()
	w, err := h.repos.Wallet.Get(context.Background(), userID)
	require.NoError(t, err)
	return w.BalancePaise
}

func (h *harness) session(t *testing.T, id string) *models.BillingSession {
	t.Helper()
	s, err := h.repos.Session.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, s)
	return s
}

func (h *harness) party(t *testing.T, id string, role models.Role) {
	t.Helper()
	require.NoError(t, h.repos.Party.Upsert(context.Background(), &models.Party{ID: id, Role: role}))
}
