package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/pointledger/internal/models"
)

const DefaultRedisChannel = "pointledger.balances"

// RedisSink publishes events to redis pub/sub channel
type RedisSink struct {
	client  *redis.Client
	channel string
}

func NewRedisSink(addr string, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultRedisChannel
	}

	return &RedisSink{
		client:  redis.NewClient(&redis.Options{Addr: addr}),
		channel: channel,
	}
}

// Ping checks redis is reachable
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSink) Send(ctx context.Context, ev models.BalanceEvent) error {
	payload, err := Encode(ev)
	if err != nil {
		return fmt.Errorf("error while encoding event. Err: %w", err)
	}

	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish error: %w", err)
	}

	return nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
