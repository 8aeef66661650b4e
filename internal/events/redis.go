package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jmylchreest/consult-billing/internal/version"
)

// ChannelPrefix is prepended to the user id to form the relay channel.
const ChannelPrefix = "consult:events:"

// RedisPublisher relays events over Redis pub/sub so transport bridges in
// other processes can deliver them.
type RedisPublisher struct {
	client redis.UniversalClient
}

// NewRedisPublisher wraps an existing client.
func NewRedisPublisher(client redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// NewRedisClient parses a redis:// URL and returns a client.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if opts.ClientName == "" {
		opts.ClientName = version.ServiceName
	}
	return redis.NewClient(opts), nil
}

// Channel returns the relay channel for userID.
func Channel(userID string) string {
	return ChannelPrefix + userID
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	env, err := Wrap(ev, time.Now())
	if err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	for _, userID := range ev.Recipients() {
		if err := p.client.Publish(ctx, Channel(userID), payload).Err(); err != nil {
			return fmt.Errorf("redis publish %s: %w", ev.Kind(), err)
		}
	}
	return nil
}
