package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrTooManySubscribers is returned when a user already holds the maximum
	// number of subscriptions.
	ErrTooManySubscribers = errors.New("too many event subscriptions for user")
	// ErrBrokerClosed is returned by Subscribe after Close.
	ErrBrokerClosed = errors.New("event broker closed")
)

// Broker delivers events in-process to per-user subscriptions. Subscriptions
// are bounded per user and each has a bounded buffer; a full buffer drops the
// event for that subscriber instead of blocking the publisher.
type Broker struct {
	maxPerUser int
	bufferSize int
	logger     *slog.Logger

	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

// Subscription receives envelopes addressed to one user.
type Subscription struct {
	UserID string

	broker  *Broker
	ch      chan Envelope
	once    sync.Once
	dropped int
}

// NewBroker creates a broker. maxPerUser <= 0 means 1.
func NewBroker(maxPerUser, bufferSize int, logger *slog.Logger) *Broker {
	if maxPerUser <= 0 {
		maxPerUser = 1
	}
	if bufferSize <= 0 {
		bufferSize = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		maxPerUser: maxPerUser,
		bufferSize: bufferSize,
		logger:     logger.With("component", "event-broker"),
		subs:       make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers a new subscription for userID.
func (b *Broker) Subscribe(userID string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}
	set := b.subs[userID]
	if len(set) >= b.maxPerUser {
		return nil, ErrTooManySubscribers
	}
	if set == nil {
		set = make(map[*Subscription]struct{})
		b.subs[userID] = set
	}
	sub := &Subscription{UserID: userID, broker: b, ch: make(chan Envelope, b.bufferSize)}
	set[sub] = struct{}{}
	return sub, nil
}

// C returns the channel events are delivered on. It is closed when the
// subscription or the broker is closed.
func (s *Subscription) C() <-chan Envelope {
	return s.ch
}

// Close unregisters the subscription and returns how many subscriptions the
// user still holds.
func (s *Subscription) Close() int {
	remaining, _ := s.Release()
	return remaining
}

// Release is Close that also reports whether the broker had already shut
// down, in which case the client did not leave on its own.
func (s *Subscription) Release() (remaining int, brokerClosed bool) {
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	s.closeLocked()
	return len(b.subs[s.UserID]), b.closed
}

func (s *Subscription) closeLocked() {
	s.once.Do(func() {
		b := s.broker
		if set, ok := b.subs[s.UserID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(b.subs, s.UserID)
			}
		}
		close(s.ch)
	})
}

// Subscribers returns the number of open subscriptions for userID.
func (b *Broker) Subscribers(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[userID])
}

// Publish implements Publisher.
func (b *Broker) Publish(_ context.Context, ev Event) error {
	env, err := Wrap(ev, time.Now())
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	for _, userID := range ev.Recipients() {
		for sub := range b.subs[userID] {
			select {
			case sub.ch <- env:
			default:
				sub.dropped++
				b.logger.Warn("dropping event for slow subscriber",
					"user_id", userID,
					"type", env.Type,
					"dropped", sub.dropped,
				)
			}
		}
	}
	return nil
}

// Close closes every subscription and returns how many were open.
func (b *Broker) Close() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0
	}
	b.closed = true
	n := 0
	for _, set := range b.subs {
		for sub := range set {
			sub.closeLocked()
			n++
		}
	}
	return n
}
