// Package events defines the billing events published to transport bridges
// and the publishers that deliver them.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Kind names an event. The set is closed.
type Kind string

const (
	KindSessionStarted Kind = "session:started"
	KindBillingTick    Kind = "billing:tick"
	KindLowBalance     Kind = "billing:low-balance"
	KindSessionStopped Kind = "session:stopped"
)

// Kinds lists every event kind.
var Kinds = []Kind{KindSessionStarted, KindBillingTick, KindLowBalance, KindSessionStopped}

// Event is implemented only by the payload types in this package.
type Event interface {
	Kind() Kind
	// Recipients are the user ids the event is delivered to.
	Recipients() []string
	sealed()
}

// ========================================
// Payloads
// ========================================

// SessionStarted is published once a session is live and its ticker armed.
type SessionStarted struct {
	SessionID       string `json:"sessionId"`
	ConsumerID      string `json:"consumerId"`
	ProviderID      string `json:"providerId"`
	RatePaisePerMin int64  `json:"ratePaisePerMin"`
	SessionType     string `json:"sessionType"`
}

func (SessionStarted) Kind() Kind { return KindSessionStarted }
func (e SessionStarted) Recipients() []string {
	return []string{e.ConsumerID, e.ProviderID}
}
func (SessionStarted) sealed() {}

// BillingTick is published after a successful tick. BalancePaise is the
// consumer's post-debit balance, so it only goes to the consumer.
type BillingTick struct {
	SessionID      string `json:"sessionId"`
	ConsumerID     string `json:"consumerId"`
	ProviderID     string `json:"providerId"`
	SecondsElapsed int64  `json:"secondsElapsed"`
	BalancePaise   int64  `json:"balancePaise"`
	DeductedPaise  int64  `json:"deductedPaise"`
}

func (BillingTick) Kind() Kind { return KindBillingTick }
func (e BillingTick) Recipients() []string {
	return []string{e.ConsumerID}
}
func (BillingTick) sealed() {}

// LowBalance warns the consumer that the next tick cannot be paid.
type LowBalance struct {
	SessionID        string `json:"sessionId"`
	ConsumerID       string `json:"-"`
	BalancePaise     int64  `json:"balancePaise"`
	RequiredPaise    int64  `json:"requiredPaise"`
	Message          string `json:"message"`
	GraceTimeSeconds int64  `json:"graceTimeSeconds"`
}

func (LowBalance) Kind() Kind { return KindLowBalance }
func (e LowBalance) Recipients() []string {
	return []string{e.ConsumerID}
}
func (LowBalance) sealed() {}

// SessionStopped is published exactly once per session.
type SessionStopped struct {
	SessionID            string `json:"sessionId"`
	ConsumerID           string `json:"consumerId"`
	ProviderID           string `json:"providerId"`
	TotalCostPaise       int64  `json:"totalCostPaise"`
	SecondsElapsed       int64  `json:"secondsElapsed"`
	FinalSettlementPaise int64  `json:"finalSettlementPaise"`
	UnbilledSeconds      int64  `json:"unbilledSeconds"`
	Reason               string `json:"reason"`
}

func (SessionStopped) Kind() Kind { return KindSessionStopped }
func (e SessionStopped) Recipients() []string {
	return []string{e.ConsumerID, e.ProviderID}
}
func (SessionStopped) sealed() {}

// ========================================
// Envelope
// ========================================

// Envelope is the wire form of an event.
type Envelope struct {
	Type      Kind            `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Wrap encodes ev into an Envelope.
func Wrap(ev Event, now time.Time) (Envelope, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: ev.Kind(), Data: data, Timestamp: now.UTC()}, nil
}

// ========================================
// Publishers
// ========================================

// Publisher delivers events. Implementations must not block on slow readers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev Event) error

func (f PublisherFunc) Publish(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Multi fans an event out to every publisher and joins their errors.
func Multi(pubs ...Publisher) Publisher {
	var nonNil []Publisher
	for _, p := range pubs {
		if p != nil {
			nonNil = append(nonNil, p)
		}
	}
	return multi(nonNil)
}

type multi []Publisher

func (m multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(context.Context, Event) error { return nil })
