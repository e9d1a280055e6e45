package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/mossy-p/chat-relay/config"
	"github.com/redis/go-redis/v9"
)

const presenceTTL = 24 * time.Hour

// Presence mirrors relay room occupancy into Redis sets keyed "<room>:peers".
type Presence struct {
	client *redis.Client
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, cfg config.RedisConfig) (*Presence, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewPresence(client), nil
}

func NewPresence(client *redis.Client) *Presence {
	return &Presence{client: client}
}

func peersKey(room string) string {
	return room + ":peers"
}

func (p *Presence) Add(ctx context.Context, room, connID string) error {
	key := peersKey(room)
	pipe := p.client.TxPipeline()
	pipe.SAdd(ctx, key, connID)
	pipe.Expire(ctx, key, presenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence add %s: %w", key, err)
	}
	return nil
}

func (p *Presence) Remove(ctx context.Context, room, connID string) error {
	key := peersKey(room)
	if err := p.client.SRem(ctx, key, connID).Err(); err != nil {
		return fmt.Errorf("presence remove %s: %w", key, err)
	}
	return nil
}

// Count returns the set size. Ids left behind by a crashed process linger
// until the key's TTL lapses.
func (p *Presence) Count(ctx context.Context, room string) (int64, error) {
	n, err := p.client.SCard(ctx, peersKey(room)).Result()
	if err != nil {
		return 0, fmt.Errorf("presence count: %w", err)
	}
	return n, nil
}

// Close closes the Redis connection.
func (p *Presence) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
