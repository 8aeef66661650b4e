package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_FieldNames(t *testing.T) {
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.FixedZone("IST", 5*3600+1800))
	env, err := Wrap(LowBalance{
		SessionID:        "s1",
		ConsumerID:       "c1",
		BalancePaise:     500,
		RequiredPaise:    750,
		Message:          "top up",
		GraceTimeSeconds: 30,
	}, now)
	require.NoError(t, err)

	assert.Equal(t, KindLowBalance, env.Type)
	assert.Equal(t, time.UTC, env.Timestamp.Location())

	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "s1", data["sessionId"])
	assert.EqualValues(t, 500, data["balancePaise"])
	assert.EqualValues(t, 750, data["requiredPaise"])
	assert.EqualValues(t, 30, data["graceTimeSeconds"])
	assert.NotContains(t, data, "consumerId", "recipient is routing data, not payload")
}

func TestRecipients(t *testing.T) {
	assert.Equal(t, []string{"c", "p"}, SessionStarted{ConsumerID: "c", ProviderID: "p"}.Recipients())
	assert.Equal(t, []string{"c"}, BillingTick{ConsumerID: "c", ProviderID: "p"}.Recipients())
	assert.Equal(t, []string{"c"}, LowBalance{ConsumerID: "c"}.Recipients())
	assert.Equal(t, []string{"c", "p"}, SessionStopped{ConsumerID: "c", ProviderID: "p"}.Recipients())
}

func TestMulti(t *testing.T) {
	var got []Kind
	ok := PublisherFunc(func(_ context.Context, ev Event) error {
		got = append(got, ev.Kind())
		return nil
	})
	failing := PublisherFunc(func(context.Context, Event) error {
		return errors.New("relay down")
	})

	err := Multi(ok, nil, failing, ok).Publish(context.Background(), SessionStopped{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay down")
	assert.Equal(t, []Kind{KindSessionStopped, KindSessionStopped}, got, "a failing publisher does not stop the others")

	assert.NoError(t, Discard.Publish(context.Background(), BillingTick{}))
}

// ========================================
// Broker
// ========================================

func TestBroker_RoutesToRecipients(t *testing.T) {
	b := NewBroker(2, 4, nil)

	consumer, err := b.Subscribe("c")
	require.NoError(t, err)
	provider, err := b.Subscribe("p")
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), BillingTick{SessionID: "s1", ConsumerID: "c", ProviderID: "p"}))
	require.NoError(t, b.Publish(context.Background(), SessionStopped{SessionID: "s1", ConsumerID: "c", ProviderID: "p"}))

	assert.Equal(t, KindBillingTick, (<-consumer.C()).Type)
	assert.Equal(t, KindSessionStopped, (<-consumer.C()).Type)
	assert.Equal(t, KindSessionStopped, (<-provider.C()).Type, "provider never sees the consumer's balance")
	assert.Empty(t, provider.C())
}

func TestBroker_BoundsSubscriptions(t *testing.T) {
	b := NewBroker(2, 1, nil)

	s1, err := b.Subscribe("u")
	require.NoError(t, err)
	s2, err := b.Subscribe("u")
	require.NoError(t, err)
	_, err = b.Subscribe("u")
	assert.ErrorIs(t, err, ErrTooManySubscribers)

	assert.Equal(t, 1, s1.Close())
	assert.Equal(t, 1, s1.Close(), "second close is a no-op")
	assert.Equal(t, 0, s2.Close())
	assert.Zero(t, b.Subscribers("u"))

	_, ok := <-s1.C()
	assert.False(t, ok, "channel closed")
}

func TestBroker_DropsForSlowSubscriber(t *testing.T) {
	b := NewBroker(1, 1, nil)
	sub, err := b.Subscribe("c")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Publish(context.Background(), BillingTick{ConsumerID: "c", SecondsElapsed: int64(i)}))
	}

	env := <-sub.C()
	var tick BillingTick
	require.NoError(t, json.Unmarshal(env.Data, &tick))
	assert.Equal(t, int64(0), tick.SecondsElapsed, "oldest buffered event kept")
	assert.Empty(t, sub.C())
}

func TestBroker_Close(t *testing.T) {
	b := NewBroker(2, 1, nil)
	_, _ = b.Subscribe("a")
	_, _ = b.Subscribe("a")
	sub, _ := b.Subscribe("b")

	assert.Equal(t, 3, b.Close())
	assert.Zero(t, b.Close())

	_, ok := <-sub.C()
	assert.False(t, ok)
	_, err := b.Subscribe("a")
	assert.ErrorIs(t, err, ErrBrokerClosed)
	assert.NoError(t, b.Publish(context.Background(), SessionStopped{ConsumerID: "a"}))
	assert.Equal(t, 0, sub.Close())
}

func TestSubscription_ReleaseReportsShutdown(t *testing.T) {
	b := NewBroker(2, 1, nil)
	s1, _ := b.Subscribe("u")
	s2, _ := b.Subscribe("u")

	remaining, closed := s1.Release()
	assert.Equal(t, 1, remaining)
	assert.False(t, closed)

	b.Close()
	remaining, closed = s2.Release()
	assert.Zero(t, remaining)
	assert.True(t, closed, "release after broker shutdown")
}

// ========================================
// Redis relay
// ========================================

func TestRedis_Channel(t *testing.T) {
	assert.Equal(t, "consult:events:user_1", Channel("user_1"))
}

func TestNewRedisClient(t *testing.T) {
	c, err := NewRedisClient("redis://:secret@localhost:6380/2")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	assert.Equal(t, "localhost:6380", c.Options().Addr)
	assert.Equal(t, 2, c.Options().DB)

	_, err = NewRedisClient("http://not-redis")
	assert.Error(t, err)
}

func TestRedisPublisher_WrapsErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	err := NewRedisPublisher(client).Publish(context.Background(), SessionStopped{ConsumerID: "c", ProviderID: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis publish session:stopped")
}
