package billing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jmylchreest/consult-billing/internal/models"
)

// Metrics holds the engine's counters. A nil *Metrics records nothing.
type Metrics struct {
	ticks           metric.Int64Counter
	lowBalance      metric.Int64Counter
	sessionsStarted metric.Int64Counter
	sessionsStopped metric.Int64Counter
	paiseDebited    metric.Int64Counter
}

// NewMetrics creates the engine counters on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.ticks, err = meter.Int64Counter("consult.billing.ticks",
		metric.WithDescription("Successful billing ticks"),
		metric.WithUnit("{tick}"),
	); err != nil {
		return nil, err
	}
	if m.lowBalance, err = meter.Int64Counter("consult.billing.low_balance",
		metric.WithDescription("Low-balance warnings published"),
		metric.WithUnit("{event}"),
	); err != nil {
		return nil, err
	}
	if m.sessionsStarted, err = meter.Int64Counter("consult.billing.sessions_started",
		metric.WithDescription("Billing sessions started"),
		metric.WithUnit("{session}"),
	); err != nil {
		return nil, err
	}
	if m.sessionsStopped, err = meter.Int64Counter("consult.billing.sessions_stopped",
		metric.WithDescription("Billing sessions stopped, by reason"),
		metric.WithUnit("{session}"),
	); err != nil {
		return nil, err
	}
	if m.paiseDebited, err = meter.Int64Counter("consult.billing.paise_debited",
		metric.WithDescription("Paise moved from consumers to providers"),
		metric.WithUnit("{paise}"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) recordTick(ctx context.Context, paise int64) {
	if m == nil {
		return
	}
	m.ticks.Add(ctx, 1)
	m.paiseDebited.Add(ctx, paise)
}

func (m *Metrics) recordSettlement(ctx context.Context, paise int64) {
	if m == nil || paise <= 0 {
		return
	}
	m.paiseDebited.Add(ctx, paise)
}

// RecordLowBalance counts a low-balance warning. Exported for the balance gate.
func (m *Metrics) RecordLowBalance(ctx context.Context) {
	if m == nil {
		return
	}
	m.lowBalance.Add(ctx, 1)
}

func (m *Metrics) recordStarted(ctx context.Context, sessionType models.SessionType) {
	if m == nil {
		return
	}
	m.sessionsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("session_type", string(sessionType))))
}

func (m *Metrics) recordStopped(ctx context.Context, reason models.EndReason) {
	if m == nil {
		return
	}
	m.sessionsStopped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))
}
