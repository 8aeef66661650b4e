// Package billing meters live consultations: it bills consumers in fixed
// ticks, credits providers, and settles the partial interval when a session
// ends.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"

	"github.com/jmylchreest/consult-billing/internal/events"
	"github.com/jmylchreest/consult-billing/internal/models"
	"github.com/jmylchreest/consult-billing/internal/repository"
)

// Config holds the engine's tunables.
type Config struct {
	TickInterval time.Duration // Billing interval T, whole seconds
	GracePeriod  time.Duration // Time to top up after a failed tick
	MaxRetries   int           // Retries after the first attempt on write conflict
	BackoffBase  time.Duration // First retry delay, doubled per retry
	StaleAfter   time.Duration // Live sessions idle longer than this are closed on Resume
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval: 15 * time.Second,
		GracePeriod:  30 * time.Second,
		MaxRetries:   3,
		BackoffBase:  100 * time.Millisecond,
		StaleAfter:   2 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TickInterval < time.Second {
		c.TickInterval = d.TickInterval
	}
	c.TickInterval = c.TickInterval.Truncate(time.Second)
	if c.GracePeriod <= 0 {
		c.GracePeriod = d.GracePeriod
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = d.StaleAfter
	}
	return c
}

// TickSeconds returns T in whole seconds.
func (c Config) TickSeconds() int64 {
	return int64(c.TickInterval / time.Second)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock. The default scheduler follows it.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithScheduler sets the scheduler.
func WithScheduler(s *Scheduler) Option {
	return func(e *Engine) { e.sched = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithBackOff sets the backoff factory used between write-conflict retries.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(e *Engine) { e.newBackOff = f }
}

// WithMetrics sets the metrics sink. Pass nil to disable metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
		e.metricsSet = true
	}
}

// Engine owns billing session state transitions.
type Engine struct {
	repos      *repository.Repositories
	bus        events.Publisher
	cfg        Config
	clock      Clock
	sched      *Scheduler
	logger     *slog.Logger
	newBackOff func() backoff.BackOff
	metrics    *Metrics
	metricsSet bool

	inflight sync.Map // session id -> struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
	mu     sync.Mutex
}

// New creates a billing engine.
func New(repos *repository.Repositories, bus events.Publisher, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		repos: repos,
		bus:   bus,
		cfg:   cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.bus == nil {
		e.bus = events.Discard
	}
	if e.clock == nil {
		e.clock = SystemClock()
	}
	if e.sched == nil {
		e.sched = NewScheduler(e.clock)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "billing-engine")
	if e.newBackOff == nil {
		base := e.cfg.BackoffBase
		e.newBackOff = func() backoff.BackOff { return &ExponentialBackOff{Base: base} }
	}
	if !e.metricsSet {
		m, err := NewMetrics(otel.Meter("github.com/jmylchreest/consult-billing/internal/billing"))
		if err != nil {
			e.logger.Warn("billing metrics disabled", "error", err)
		}
		e.metrics = m
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Metrics returns the engine's metrics sink, which may be nil.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// ========================================
// Start
// ========================================

// StartSession creates a live session and arms its billing ticker.
func (e *Engine) StartSession(ctx context.Context, consumerID, providerID string, ratePaisePerMin int64, sessionType models.SessionType) (*models.BillingSession, error) {
	if e.isClosed() {
		return nil, ErrEngineClosed
	}
	if ratePaisePerMin <= 0 {
		return nil, ErrInvalidRate
	}
	if !sessionType.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionType, sessionType)
	}
	if consumerID == "" || consumerID == providerID {
		return nil, fmt.Errorf("%w: consumer and provider must be distinct parties", ErrInvalidRole)
	}

	now := e.clock.Now().UTC()
	s := &models.BillingSession{
		ID:              ulid.Make().String(),
		ConsumerID:      consumerID,
		ProviderID:      providerID,
		SessionType:     sessionType,
		RatePaisePerMin: ratePaisePerMin,
		Live:            true,
		StartedAt:       now,
		UpdatedAt:       now,
	}

	err := e.withRetry(ctx, "start session", func() error {
		s.Version = 0
		return e.repos.InTx(ctx, func(tx *repository.Repositories) error {
			party, err := tx.Party.Get(ctx, consumerID)
			if err != nil {
				return err
			}
			if !billable(party) {
				return fmt.Errorf("%w: %s has role %s", ErrInvalidRole, consumerID, party.Role)
			}
			err = tx.Session.CreateIfNoLive(ctx, s)
			if errors.Is(err, repository.ErrLiveSessionExists) {
				dup := &DuplicateSessionError{ConsumerID: consumerID}
				if existing, gerr := tx.Session.GetLiveByConsumer(ctx, consumerID); gerr == nil && existing != nil {
					dup.SessionID = existing.ID
				}
				return dup
			}
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	e.armTicker(s.ID)

	e.logger.Info("session started",
		"session_id", s.ID,
		"consumer_id", consumerID,
		"provider_id", providerID,
		"rate_paise_per_min", ratePaisePerMin,
		"session_type", sessionType,
	)
	e.metrics.recordStarted(ctx, sessionType)
	e.publish(ctx, events.SessionStarted{
		SessionID:       s.ID,
		ConsumerID:      consumerID,
		ProviderID:      providerID,
		RatePaisePerMin: ratePaisePerMin,
		SessionType:     string(sessionType),
	})
	return s, nil
}

// billable reports whether a party may pay for a session. Unknown parties are
// treated as consumers; only a provider role is disqualifying.
func billable(p *models.Party) bool {
	return p == nil || p.Role != models.RoleProvider
}

func (e *Engine) armTicker(sessionID string) {
	e.sched.Every(sessionID, e.cfg.TickInterval, func() {
		e.runScheduled(func(ctx context.Context) {
			err := e.ProcessTick(ctx, sessionID)
			switch {
			case err == nil, errors.Is(err, ErrTickInFlight):
			case errors.Is(err, ErrWriteConflict):
				e.logger.Error("tick failed after retries, session stays live",
					"session_id", sessionID,
					"error", err,
				)
			default:
				e.logger.Error("tick failed", "session_id", sessionID, "error", err)
			}
		})
	})
}

// runScheduled runs fn for a timer callback unless the engine is closing.
func (e *Engine) runScheduled(fn func(ctx context.Context)) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()
	defer e.wg.Done()

	fn(e.ctx)
}

// ========================================
// Tick
// ========================================

type tickOutcome struct {
	gone         bool
	insufficient bool
	session      *models.BillingSession
	balance      int64
	deduction    int64
}

// ProcessTick bills one interval for a live session. Concurrent calls for
// the same session are dropped with ErrTickInFlight.
func (e *Engine) ProcessTick(ctx context.Context, sessionID string) error {
	if _, busy := e.inflight.LoadOrStore(sessionID, struct{}{}); busy {
		e.logger.Debug("tick dropped, previous tick still in flight", "session_id", sessionID)
		return ErrTickInFlight
	}
	defer e.inflight.Delete(sessionID)

	var out tickOutcome
	err := e.withRetry(ctx, "tick", func() error {
		out = tickOutcome{}
		return e.repos.InTx(ctx, func(tx *repository.Repositories) error {
			return e.tickUnit(ctx, tx, sessionID, &out)
		})
	})

	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidRole):
		e.logger.Error("billing anomaly: consumer is not billable, ending session",
			"session_id", sessionID,
			"error", err,
		)
		if _, serr := e.stop(ctx, sessionID, models.EndReasonInvalidRole, false); serr != nil {
			e.logger.Error("failed to stop session", "session_id", sessionID, "error", serr)
		}
		return err
	case errors.Is(err, ErrWriteConflict), errors.Is(err, context.Canceled):
		return err
	default:
		if _, serr := e.stop(ctx, sessionID, models.EndReasonProcessingError, false); serr != nil {
			e.logger.Error("failed to stop session", "session_id", sessionID, "error", serr)
		}
		return fmt.Errorf("tick %s: %w", sessionID, err)
	}

	if out.gone {
		e.sched.Cancel(sessionID)
		return nil
	}

	s := out.session
	if out.insufficient {
		e.lowBalance(ctx, s, out.balance, out.deduction)
		return nil
	}

	// A paid tick supersedes any pending forced stop.
	e.sched.CancelOnce(sessionID)

	e.logger.Info("tick billed",
		"session_id", s.ID,
		"consumer_id", s.ConsumerID,
		"amount_paise", out.deduction,
		"seconds_elapsed", s.SecondsElapsed,
	)
	e.metrics.recordTick(ctx, out.deduction)
	e.publish(ctx, events.BillingTick{
		SessionID:      s.ID,
		ConsumerID:     s.ConsumerID,
		ProviderID:     s.ProviderID,
		SecondsElapsed: s.SecondsElapsed,
		BalancePaise:   out.balance,
		DeductedPaise:  out.deduction,
	})
	return nil
}

// tickUnit is the transactional body of a tick: debit, credit and session
// update commit together or not at all.
func (e *Engine) tickUnit(ctx context.Context, tx *repository.Repositories, sessionID string, out *tickOutcome) error {
	s, err := tx.Session.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if s == nil || !s.Live {
		out.gone = true
		return nil
	}
	out.session = s

	party, err := tx.Party.Get(ctx, s.ConsumerID)
	if err != nil {
		return err
	}
	if !billable(party) {
		return fmt.Errorf("%w: %s has role %s", ErrInvalidRole, s.ConsumerID, party.Role)
	}

	deduction := models.CostForSeconds(s.RatePaisePerMin, e.cfg.TickSeconds())
	out.deduction = deduction

	debit, err := tx.Wallet.Debit(ctx, s.ConsumerID, deduction, models.LedgerEntry{
		Type:        models.TxTypeDebit,
		SessionID:   s.ID,
		Description: fmt.Sprintf("%s consultation, %ds", s.SessionType, e.cfg.TickSeconds()),
	})
	if errors.Is(err, repository.ErrInsufficientFunds) {
		w, werr := tx.Wallet.Get(ctx, s.ConsumerID)
		if werr != nil {
			return werr
		}
		out.insufficient = true
		out.balance = w.BalancePaise
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := tx.Wallet.Credit(ctx, s.ProviderID, deduction, models.LedgerEntry{
		Type:        models.TxTypeCredit,
		SessionID:   s.ID,
		Description: fmt.Sprintf("%s consultation earnings, %ds", s.SessionType, e.cfg.TickSeconds()),
	}); err != nil {
		return err
	}

	s.SecondsElapsed += e.cfg.TickSeconds()
	s.TotalCostPaise = s.CalculateCurrentCost()
	s.UpdatedAt = e.clock.Now().UTC()
	if err := tx.Session.Update(ctx, s); err != nil {
		return err
	}
	out.balance = debit.BalanceAfter
	return nil
}

// lowBalance warns the consumer and arms the forced stop if none is pending.
func (e *Engine) lowBalance(ctx context.Context, s *models.BillingSession, balance, required int64) {
	sessionID := s.ID
	e.sched.Once(sessionID, e.cfg.GracePeriod, func() {
		e.runScheduled(func(ctx context.Context) {
			e.graceExpired(ctx, sessionID)
		})
	})
	remaining, ok := e.sched.Remaining(sessionID)
	if !ok {
		remaining = e.cfg.GracePeriod
	}
	graceSeconds := int64((remaining + time.Second - 1) / time.Second)

	e.logger.Warn("insufficient balance for tick",
		"session_id", sessionID,
		"consumer_id", s.ConsumerID,
		"balance_paise", balance,
		"required_paise", required,
		"grace_seconds", graceSeconds,
	)
	e.metrics.RecordLowBalance(ctx)
	e.publish(ctx, events.LowBalance{
		SessionID:        sessionID,
		ConsumerID:       s.ConsumerID,
		BalancePaise:     balance,
		RequiredPaise:    required,
		Message:          LowBalanceMessage(balance, required),
		GraceTimeSeconds: graceSeconds,
	})
}

// LowBalanceMessage is the user-facing low-balance text.
func LowBalanceMessage(balance, required int64) string {
	return fmt.Sprintf("Low balance: %d paise available, %d paise needed to continue. Please recharge to keep the consultation going.", balance, required)
}

// graceExpired ends the session unless the consumer topped up in time.
func (e *Engine) graceExpired(ctx context.Context, sessionID string) {
	s, err := e.repos.Session.GetByID(ctx, sessionID)
	if err != nil {
		e.logger.Error("grace check failed", "session_id", sessionID, "error", err)
	}
	if err == nil {
		if s == nil || !s.Live {
			return
		}
		w, werr := e.repos.Wallet.Get(ctx, s.ConsumerID)
		deduction := models.CostForSeconds(s.RatePaisePerMin, e.cfg.TickSeconds())
		if werr == nil && w.BalancePaise >= deduction {
			e.logger.Info("balance restored within grace period",
				"session_id", sessionID,
				"balance_paise", w.BalancePaise,
			)
			return
		}
	}

	if _, err := e.StopSession(ctx, sessionID, models.EndReasonInsufficientBalance); err != nil {
		e.logger.Error("forced stop failed", "session_id", sessionID, "error", err)
	}
}

// ========================================
// Stop
// ========================================

// Settlement is the outcome of stopping a session.
type Settlement struct {
	Session              *models.BillingSession `json:"session"`
	FinalSettlementPaise int64                  `json:"final_settlement_paise"`
	UnbilledSeconds      int64                  `json:"unbilled_seconds"`
	Reason               models.EndReason       `json:"reason"`
	AlreadyEnded         bool                   `json:"already_ended"`
}

// StopSession ends a session and settles the time since the last tick. It is
// idempotent: stopping an ended session returns AlreadyEnded and publishes
// nothing.
func (e *Engine) StopSession(ctx context.Context, sessionID string, reason models.EndReason) (*Settlement, error) {
	return e.stop(ctx, sessionID, reason, settles(reason))
}

// settles reports whether the partial interval is charged for reason.
// Anomalies and stale sessions end without a final charge.
func settles(reason models.EndReason) bool {
	switch reason {
	case models.EndReasonInvalidRole, models.EndReasonProcessingError, models.EndReasonStaleSession:
		return false
	}
	return true
}

func (e *Engine) stop(ctx context.Context, sessionID string, reason models.EndReason, settle bool) (*Settlement, error) {
	e.sched.Cancel(sessionID)

	var st Settlement
	err := e.withRetry(ctx, "stop session", func() error {
		st = Settlement{Reason: reason}
		return e.repos.InTx(ctx, func(tx *repository.Repositories) error {
			return e.stopUnit(ctx, tx, sessionID, settle, &st)
		})
	})
	if errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}
	if err != nil {
		if e.stillLive(ctx, sessionID) {
			e.armTicker(sessionID)
		}
		return nil, fmt.Errorf("stop %s: %w", sessionID, err)
	}
	if st.AlreadyEnded {
		return &st, nil
	}

	s := st.Session
	e.logger.Info("session stopped",
		"session_id", s.ID,
		"consumer_id", s.ConsumerID,
		"reason", reason,
		"seconds_elapsed", s.SecondsElapsed,
		"total_cost_paise", s.TotalCostPaise,
		"amount_paise", st.FinalSettlementPaise,
		"unbilled_seconds", st.UnbilledSeconds,
	)
	e.metrics.recordSettlement(ctx, st.FinalSettlementPaise)
	e.metrics.recordStopped(ctx, reason)
	e.publish(ctx, events.SessionStopped{
		SessionID:            s.ID,
		ConsumerID:           s.ConsumerID,
		ProviderID:           s.ProviderID,
		TotalCostPaise:       s.TotalCostPaise,
		SecondsElapsed:       s.SecondsElapsed,
		FinalSettlementPaise: st.FinalSettlementPaise,
		UnbilledSeconds:      st.UnbilledSeconds,
		Reason:               string(reason),
	})
	return &st, nil
}

// stillLive reports whether a session that failed to stop must keep
// billing. A failed lookup counts as live; the next tick re-checks.
func (e *Engine) stillLive(ctx context.Context, sessionID string) bool {
	s, err := e.repos.Session.GetByID(context.WithoutCancel(ctx), sessionID)
	if err != nil {
		return true
	}
	return s != nil && s.Live
}

func (e *Engine) stopUnit(ctx context.Context, tx *repository.Repositories, sessionID string, settle bool, st *Settlement) error {
	s, err := tx.Session.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if s == nil {
		return ErrSessionNotFound
	}
	st.Session = s
	if !s.Live {
		st.AlreadyEnded = true
		st.Reason = s.EndReason
		return nil
	}

	now := e.clock.Now().UTC()
	actual := int64(now.Sub(s.StartedAt) / time.Second)
	unbilled := actual - s.SecondsElapsed
	if unbilled < 0 {
		unbilled = 0
	}
	st.UnbilledSeconds = unbilled

	if settle && unbilled > 0 {
		amount := models.CostForSeconds(s.RatePaisePerMin, unbilled)
		_, err := tx.Wallet.Debit(ctx, s.ConsumerID, amount, models.LedgerEntry{
			Type:        models.TxTypeDebit,
			SessionID:   s.ID,
			Description: fmt.Sprintf("%s consultation final settlement, %ds", s.SessionType, unbilled),
		})
		switch {
		case errors.Is(err, repository.ErrInsufficientFunds):
			// Termination never waits on payment; the partial interval goes unbilled.
		case err != nil:
			return err
		default:
			if _, err := tx.Wallet.Credit(ctx, s.ProviderID, amount, models.LedgerEntry{
				Type:        models.TxTypeCredit,
				SessionID:   s.ID,
				Description: fmt.Sprintf("%s consultation final settlement earnings, %ds", s.SessionType, unbilled),
			}); err != nil {
				return err
			}
			s.SecondsElapsed += unbilled
			st.FinalSettlementPaise = amount
		}
	}

	s.Live = false
	s.EndedAt = &now
	s.EndReason = st.Reason
	s.TotalCostPaise = s.CalculateCurrentCost()
	s.UpdatedAt = now
	return tx.Session.Update(ctx, s)
}

// ========================================
// Queries
// ========================================

// GetActiveSession returns the consumer's live session, or nil.
func (e *Engine) GetActiveSession(ctx context.Context, consumerID string) (*models.BillingSession, error) {
	return e.repos.Session.GetLiveByConsumer(ctx, consumerID)
}

// GetSession returns a session by id.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*models.BillingSession, error) {
	s, err := e.repos.Session.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// ListSessions returns sessions where the party is consumer or provider.
func (e *Engine) ListSessions(ctx context.Context, partyID string, limit, offset int) ([]*models.BillingSession, error) {
	return e.repos.Session.ListByParty(ctx, partyID, limit, offset)
}

// TickCost projects the next tick for a consumer.
type TickCost struct {
	OK             bool   `json:"ok"`
	DeductionPaise int64  `json:"deduction_paise"`
	BalancePaise   int64  `json:"balance_paise"`
	SessionID      string `json:"session_id,omitempty"`
}

// GetNextTickCost reports whether the consumer can pay the next tick of
// their live session. It never writes. Without a live session it returns
// OK with a zero deduction.
func (e *Engine) GetNextTickCost(ctx context.Context, consumerID string) (*TickCost, error) {
	s, err := e.repos.Session.GetLiveByConsumer(ctx, consumerID)
	if err != nil {
		return nil, err
	}
	w, err := e.repos.Wallet.Get(ctx, consumerID)
	if err != nil {
		return nil, err
	}
	tc := &TickCost{OK: true, BalancePaise: w.BalancePaise}
	if s == nil {
		return tc, nil
	}
	tc.SessionID = s.ID
	tc.DeductionPaise = models.CostForSeconds(s.RatePaisePerMin, e.cfg.TickSeconds())
	tc.OK = w.BalancePaise >= tc.DeductionPaise
	return tc, nil
}

// PublishLowBalance publishes the low-balance warning for a consumer's live
// session outside the tick path.
func (e *Engine) PublishLowBalance(ctx context.Context, consumerID, sessionID string, balance, required int64) {
	graceSeconds := int64(e.cfg.GracePeriod / time.Second)
	if remaining, ok := e.sched.Remaining(sessionID); ok {
		graceSeconds = int64((remaining + time.Second - 1) / time.Second)
	}
	e.metrics.RecordLowBalance(ctx)
	e.publish(ctx, events.LowBalance{
		SessionID:        sessionID,
		ConsumerID:       consumerID,
		BalancePaise:     balance,
		RequiredPaise:    required,
		Message:          LowBalanceMessage(balance, required),
		GraceTimeSeconds: graceSeconds,
	})
}

// ========================================
// Lifecycle
// ========================================

// Resume rebuilds timers for sessions left live by a previous process.
// Sessions idle for longer than StaleAfter are closed with reason
// stale_session and no final charge.
func (e *Engine) Resume(ctx context.Context) (resumed, closed int, err error) {
	live, err := e.repos.Session.ListLive(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list live sessions: %w", err)
	}

	now := e.clock.Now()
	for _, s := range live {
		if now.Sub(s.UpdatedAt) > e.cfg.StaleAfter {
			if _, err := e.stop(ctx, s.ID, models.EndReasonStaleSession, false); err != nil {
				e.logger.Error("failed to close stale session", "session_id", s.ID, "error", err)
				continue
			}
			closed++
			continue
		}
		e.armTicker(s.ID)
		resumed++
	}

	e.logger.Info("billing sessions reconciled", "resumed", resumed, "closed", closed)
	return resumed, closed, nil
}

// Close cancels every timer and waits for in-flight ticks to finish.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.sched.Stop()
	e.cancel()
	e.wg.Wait()
}

// LiveSessions returns the number of sessions this process is billing.
func (e *Engine) LiveSessions() int {
	return e.sched.Len()
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if err := e.bus.Publish(ctx, ev); err != nil {
		e.logger.Warn("event publish failed", "type", ev.Kind(), "error", err)
	}
}
