package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmylchreest/consult-billing/internal/models"
)

// ========================================
// Billing Session Repository Tests
// ========================================

func TestSessionRepository_CreateAndGet(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	start := time.Date(2026, 10, 1, 9, 0, 0, 500_000_000, time.UTC)

	s := newTestSession("sess-1", "consumer", "provider", start)
	if err := repos.Session.CreateIfNoLive(ctx, s); err != nil {
		t.Fatalf("CreateIfNoLive failed: %v", err)
	}
	if s.Version != 1 {
		t.Errorf("Version = %d, want 1", s.Version)
	}

	got, err := repos.Session.GetByID(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected session, got nil")
	}
	if !got.Live || got.ConsumerID != "consumer" || got.RatePaisePerMin != 600 {
		t.Errorf("unexpected session: %+v", got)
	}
	if !got.StartedAt.Equal(start) {
		t.Errorf("StartedAt = %v, want %v (sub-second precision kept)", got.StartedAt, start)
	}
	if got.EndedAt != nil || got.EndReason != "" {
		t.Errorf("new session should not have end fields: %+v", got)
	}

	missing, err := repos.Session.GetByID(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("GetByID(nope) = %v, %v; want nil, nil", missing, err)
	}
}

func TestSessionRepository_OneLivePerConsumer(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repos.Session.CreateIfNoLive(ctx, newTestSession("a", "consumer", "p1", now)); err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	err := repos.Session.CreateIfNoLive(ctx, newTestSession("b", "consumer", "p2", now))
	if !errors.Is(err, ErrLiveSessionExists) {
		t.Fatalf("expected ErrLiveSessionExists, got %v", err)
	}

	// A different consumer is unaffected.
	if err := repos.Session.CreateIfNoLive(ctx, newTestSession("c", "other", "p1", now)); err != nil {
		t.Fatalf("other consumer create failed: %v", err)
	}

	live, err := repos.Session.GetLiveByConsumer(ctx, "consumer")
	if err != nil || live == nil || live.ID != "a" {
		t.Fatalf("GetLiveByConsumer = %+v, %v; want session a", live, err)
	}

	// Ending the session frees the consumer.
	ended := now.Add(time.Minute)
	live.Live = false
	live.EndedAt = &ended
	live.EndReason = models.EndReasonUserEnded
	live.UpdatedAt = ended
	if err := repos.Session.Update(ctx, live); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := repos.Session.CreateIfNoLive(ctx, newTestSession("d", "consumer", "p2", ended)); err != nil {
		t.Fatalf("create after end failed: %v", err)
	}
}

func TestSessionRepository_UpdateVersionCheck(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	s := newTestSession("sess-1", "consumer", "provider", time.Now().UTC())
	if err := repos.Session.CreateIfNoLive(ctx, s); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	first, _ := repos.Session.GetByID(ctx, "sess-1")
	second, _ := repos.Session.GetByID(ctx, "sess-1")

	first.SecondsElapsed = 15
	first.TotalCostPaise = first.CalculateCurrentCost()
	if err := repos.Session.Update(ctx, first); err != nil {
		t.Fatalf("first update failed: %v", err)
	}
	if first.Version != 2 {
		t.Errorf("Version after update = %d, want 2", first.Version)
	}

	second.SecondsElapsed = 15
	if err := repos.Session.Update(ctx, second); !errors.Is(err, ErrWriteConflict) {
		t.Fatalf("stale update error = %v, want ErrWriteConflict", err)
	}

	got, _ := repos.Session.GetByID(ctx, "sess-1")
	if got.SecondsElapsed != 15 || got.TotalCostPaise != 150 || got.Version != 2 {
		t.Errorf("unexpected stored session: %+v", got)
	}
}

func TestSessionRepository_ListLiveAndByParty(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	for i, c := range []string{"c1", "c2", "c3"} {
		s := newTestSession("s-"+c, c, "provider", base.Add(time.Duration(i)*time.Second))
		if err := repos.Session.CreateIfNoLive(ctx, s); err != nil {
			t.Fatalf("create %s failed: %v", c, err)
		}
	}

	c2, _ := repos.Session.GetByID(ctx, "s-c2")
	end := base.Add(time.Minute)
	c2.Live = false
	c2.EndedAt = &end
	c2.UpdatedAt = end
	if err := repos.Session.Update(ctx, c2); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	live, err := repos.Session.ListLive(ctx)
	if err != nil {
		t.Fatalf("ListLive failed: %v", err)
	}
	if len(live) != 2 || live[0].ID != "s-c1" || live[1].ID != "s-c3" {
		t.Errorf("ListLive = %v", ids(live))
	}

	byProvider, err := repos.Session.ListByParty(ctx, "provider", 10, 0)
	if err != nil {
		t.Fatalf("ListByParty failed: %v", err)
	}
	if len(byProvider) != 3 || byProvider[0].ID != "s-c3" {
		t.Errorf("ListByParty(provider) = %v, want newest first", ids(byProvider))
	}

	byConsumer, _ := repos.Session.ListByParty(ctx, "c2", 10, 0)
	if len(byConsumer) != 1 || byConsumer[0].EndedAt == nil {
		t.Errorf("ListByParty(c2) = %+v", byConsumer)
	}
}

func ids(sessions []*models.BillingSession) []string {
	out := make([]string, len(sessions))
	for i, s := range sessions {
		out[i] = s.ID
	}
	return out
}

// ========================================
// Party Repository Tests
// ========================================

func TestPartyRepository_Upsert(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	if p, err := repos.Party.Get(ctx, "p1"); err != nil || p != nil {
		t.Fatalf("Get(unknown) = %v, %v; want nil, nil", p, err)
	}

	p := &models.Party{ID: "p1", Role: models.RoleProvider, DisplayName: "Dr. P", RatePaisePerMin: 1200}
	if err := repos.Party.Upsert(ctx, p); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	p.RatePaisePerMin = 1500
	if err := repos.Party.Upsert(ctx, p); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	got, err := repos.Party.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Role != models.RoleProvider || got.RatePaisePerMin != 1500 || got.DisplayName != "Dr. P" {
		t.Errorf("unexpected party: %+v", got)
	}
}
